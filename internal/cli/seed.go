package cli

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"quizplay-service/internal/app"
)

// NewSeedCmd stores the demo quizzes in the configured quiz store.
func NewSeedCmd(configPath *string) *cobra.Command {
	var owner string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create the demo quizzes",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			s, err := buildStack(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer s.Close()
			return seedQuizzes(cmd.Context(), s.quizzes, owner, log)
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "demo-host", "owner id of the seeded quizzes")
	return cmd
}

func seedQuizzes(ctx context.Context, quizzes *app.QuizService, owner string, log *slog.Logger) error {
	for _, draft := range sampleQuizzes() {
		quiz, err := quizzes.CreateQuiz(ctx, owner, draft)
		if err != nil {
			return err
		}
		log.Info("seeded quiz", "quiz_id", quiz.ID, "title", quiz.Title)
	}
	return nil
}

// sampleQuizzes is the demo content served when no quiz database is configured.
func sampleQuizzes() []app.QuizDraft {
	return []app.QuizDraft{
		{
			Title:       "Capitals",
			Description: "Name the capital city.",
			Questions: []app.QuestionDraft{
				{Text: "Capital of France?", Options: []string{"Berlin", "Paris", "Rome", "Madrid"}, CorrectOption: 1},
				{Text: "Capital of Japan?", Options: []string{"Osaka", "Kyoto", "Tokyo", "Nagoya"}, CorrectOption: 2},
				{Text: "Capital of Canada?", Options: []string{"Toronto", "Vancouver", "Montreal", "Ottawa"}, CorrectOption: 3},
			},
		},
		{
			Title: "Arithmetic",
			Questions: []app.QuestionDraft{
				{Text: "What is 2 + 2?", Options: []string{"3", "4", "5", "22"}, CorrectOption: 1, Points: 50},
				{Text: "What is 9 x 7?", Options: []string{"63", "56", "72", "81"}, CorrectOption: 0, Points: 150},
			},
		},
	}
}
