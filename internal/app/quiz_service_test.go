package app_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"quizplay-service/internal/app"
	"quizplay-service/internal/domain"
	"quizplay-service/internal/infra/memory"
)

func riversDraft() app.QuizDraft {
	return app.QuizDraft{
		Title:       "  Rivers ",
		Description: "Long ones",
		Questions: []app.QuestionDraft{
			{Text: "Longest river in Africa?", Options: []string{"Congo", "Niger", "Nile", "Zambezi"}, CorrectOption: 2},
			{Text: "River through Vienna?", Options: []string{"Danube", "Rhine", "Elbe", "Oder"}, CorrectOption: 0, Points: 250},
		},
	}
}

func TestCreateQuizStoresOrderedQuestions(t *testing.T) {
	ctx := context.Background()
	svc := newServices(t)

	quiz, err := svc.quizzes.CreateQuiz(ctx, "author-7", riversDraft())
	require.NoError(t, err)
	require.NotEmpty(t, quiz.ID)
	require.Equal(t, "Rivers", quiz.Title)
	require.True(t, quiz.Active)
	require.NotNil(t, quiz.Description)

	loaded, err := svc.quizzes.LoadQuiz(ctx, quiz.ID)
	require.NoError(t, err)
	require.Len(t, loaded.Questions, 2)
	require.Equal(t, "Longest river in Africa?", loaded.Questions[0].Text)
	require.Equal(t, domain.DefaultPoints, loaded.Questions[0].Points)
	require.Equal(t, 250, loaded.Questions[1].Points)
	require.Equal(t, quiz.ID, loaded.Questions[1].QuizID)
}

func TestCreateQuizValidation(t *testing.T) {
	ctx := context.Background()
	svc := newServices(t)

	_, err := svc.quizzes.CreateQuiz(ctx, " ", riversDraft())
	require.True(t, domain.IsValidation(err), "owner is required")

	cases := map[string]func(*app.QuizDraft){
		"blank title":     func(d *app.QuizDraft) { d.Title = "   " },
		"no questions":    func(d *app.QuizDraft) { d.Questions = nil },
		"three options":   func(d *app.QuizDraft) { d.Questions[0].Options = []string{"a", "b", "c"} },
		"empty option":    func(d *app.QuizDraft) { d.Questions[0].Options[3] = "" },
		"correct too big": func(d *app.QuizDraft) { d.Questions[1].CorrectOption = 4 },
		"negative points": func(d *app.QuizDraft) { d.Questions[1].Points = -5 },
		"blank question":  func(d *app.QuizDraft) { d.Questions[0].Text = "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			draft := riversDraft()
			mutate(&draft)
			_, err := svc.quizzes.CreateQuiz(ctx, "author-7", draft)
			var ve *domain.ValidationError
			require.ErrorAs(t, err, &ve)
			require.NotEmpty(t, ve.Field)
		})
	}

	all, err := svc.quizzes.ListOwned(ctx, "author-7")
	require.NoError(t, err)
	require.Empty(t, all, "rejected drafts are never stored")
}

func TestValidationErrorNamesJSONField(t *testing.T) {
	svc := newServices(t)
	draft := riversDraft()
	draft.Questions[1].Options = []string{"Danube"}

	_, err := svc.quizzes.CreateQuiz(context.Background(), "author-7", draft)
	var ve *domain.ValidationError
	require.ErrorAs(t, err, &ve)
	require.Equal(t, "questions[1].options", ve.Field)
	require.Equal(t, "failed len=4", ve.Reason)
}

func TestListActiveAndOwned(t *testing.T) {
	ctx := context.Background()
	svc := newServices(t, capitalsQuiz())

	mine, err := svc.quizzes.CreateQuiz(ctx, "author-7", riversDraft())
	require.NoError(t, err)

	active, err := svc.quizzes.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 2)

	owned, err := svc.quizzes.ListOwned(ctx, "author-7")
	require.NoError(t, err)
	require.Len(t, owned, 1)
	require.Equal(t, mine.ID, owned[0].ID)

	require.NoError(t, svc.quizzes.SetActive(ctx, mine.ID, false))
	active, err = svc.quizzes.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	require.Equal(t, "quiz-1", active[0].ID)

	owned, err = svc.quizzes.ListOwned(ctx, "author-7")
	require.NoError(t, err)
	require.Len(t, owned, 1, "inactive quizzes still belong to their owner")

	require.ErrorIs(t, svc.quizzes.SetActive(ctx, "missing", true), domain.ErrNotFound)
}

func TestSetActiveInvalidatesCache(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	store.Seed(capitalsQuiz())
	cache := memory.NewQuizCache(store, time.Hour)
	quizzes := app.NewQuizService(store, cache, memory.NewBroker(), discardLogger())

	quiz, err := quizzes.LoadQuiz(ctx, "quiz-1")
	require.NoError(t, err)
	require.True(t, quiz.Active)

	require.NoError(t, quizzes.SetActive(ctx, "quiz-1", false))
	quiz, err = quizzes.LoadQuiz(ctx, "quiz-1")
	require.NoError(t, err)
	require.False(t, quiz.Active, "cached copy is dropped on change")
}

func TestWatchActiveFollowsChanges(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc := newServices(t, capitalsQuiz())

	updates, stop, err := svc.quizzes.WatchActive(ctx)
	require.NoError(t, err)
	defer stop()

	initial := <-updates
	require.Len(t, initial, 1)

	_, err = svc.quizzes.CreateQuiz(ctx, "author-7", riversDraft())
	require.NoError(t, err)

	select {
	case next := <-updates:
		require.Len(t, next, 2)
		require.Equal(t, "Rivers", next[0].Title, "newest first")
	case <-time.After(2 * time.Second):
		t.Fatal("no update after create")
	}

	stop()
	require.Eventually(t, func() bool {
		return svc.broker.Subscribers(domain.QuizzesTopic) == 0
	}, time.Second, 10*time.Millisecond)
}
