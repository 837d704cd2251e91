package http

import (
	"time"

	"quizplay-service/internal/app"
	"quizplay-service/internal/domain"
)

// quizView is the public shape of a quiz. Correct options are never included.
type quizView struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	Description *string        `json:"description"`
	OwnerID     string         `json:"ownerId"`
	Active      bool           `json:"active"`
	CreatedAt   time.Time      `json:"createdAt"`
	Questions   []questionView `json:"questions,omitempty"`
}

type questionView struct {
	ID       string   `json:"id"`
	Text     string   `json:"question"`
	Options  []string `json:"options"`
	Points   int      `json:"points"`
	Position int      `json:"position"`
}

func newQuizView(q domain.Quiz) quizView {
	view := quizView{
		ID:          q.ID,
		Title:       q.Title,
		Description: q.Description,
		OwnerID:     q.OwnerID,
		Active:      q.Active,
		CreatedAt:   q.CreatedAt,
	}
	for _, question := range q.Questions {
		view.Questions = append(view.Questions, newQuestionView(question))
	}
	return view
}

func newQuestionView(q domain.Question) questionView {
	return questionView{
		ID:       q.ID,
		Text:     q.Text,
		Options:  q.Options,
		Points:   q.Points,
		Position: q.Position,
	}
}

func newQuizViews(quizzes []domain.Quiz) []quizView {
	out := make([]quizView, 0, len(quizzes))
	for _, q := range quizzes {
		out = append(out, newQuizView(q))
	}
	return out
}

// stateView is what a player's screen needs. CorrectOption is only set while
// the answer is being revealed.
type stateView struct {
	Phase          string        `json:"phase"`
	QuizID         string        `json:"quizId"`
	QuizTitle      string        `json:"quizTitle"`
	QuestionIndex  int           `json:"questionIndex"`
	TotalQuestions int           `json:"totalQuestions"`
	Question       *questionView `json:"question,omitempty"`
	Selected       *int          `json:"selected,omitempty"`
	CorrectOption  *int          `json:"correctOption,omitempty"`
	LastAwarded    int           `json:"lastAwarded"`
	Score          int           `json:"score"`
	Progress       float64       `json:"progress"`
	SessionID      string        `json:"sessionId,omitempty"`
	PlayerID       string        `json:"playerId,omitempty"`
	PlayerName     string        `json:"playerName,omitempty"`
	Error          string        `json:"error,omitempty"`
}

func newStateView(title string, s app.PlayState) stateView {
	view := stateView{
		Phase:          s.Phase.String(),
		QuizID:         s.QuizID,
		QuizTitle:      title,
		QuestionIndex:  s.QuestionIndex,
		TotalQuestions: s.TotalQuestions,
		LastAwarded:    s.LastAwarded,
		Score:          s.Score,
		Progress:       s.Progress(),
		SessionID:      s.SessionID,
		PlayerID:       s.PlayerID,
		PlayerName:     s.PlayerName,
	}
	if s.Question != nil {
		q := newQuestionView(*s.Question)
		view.Question = &q
	}
	if s.Selected >= 0 {
		selected := s.Selected
		view.Selected = &selected
	}
	if s.Phase == app.PhaseRevealing && s.CorrectOption >= 0 {
		correct := s.CorrectOption
		view.CorrectOption = &correct
	}
	if s.Err != nil {
		view.Error = s.Err.Error()
	}
	return view
}
