package domain

import "time"

// OptionsPerQuestion is the fixed number of answer options on every question.
const OptionsPerQuestion = 4

// DefaultPoints is applied to authored questions that carry no point value.
const DefaultPoints = 100

// Quiz is an authored set of questions. Questions is only populated by LoadQuiz.
type Quiz struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description *string    `json:"description"`
	OwnerID     string     `json:"ownerId"`
	Active      bool       `json:"active"`
	CreatedAt   time.Time  `json:"createdAt"`
	Questions   []Question `json:"questions,omitempty"`
}

// Question models a four-option MCQ question with exactly one correct option.
type Question struct {
	ID            string    `json:"id"`
	QuizID        string    `json:"quizId"`
	Text          string    `json:"question"`
	Options       []string  `json:"options"`
	CorrectOption int       `json:"correctOption"`
	Points        int       `json:"points"`
	Position      int       `json:"position"`
	CreatedAt     time.Time `json:"createdAt"`
}

// ValidOption reports whether index addresses one of the question's options.
func (q Question) ValidOption(index int) bool {
	return index >= 0 && index < len(q.Options)
}

// GameSession is one instance of a quiz being played.
type GameSession struct {
	ID                   string     `json:"id"`
	QuizID               string     `json:"quizId"`
	CreatedAt            time.Time  `json:"createdAt"`
	EndedAt              *time.Time `json:"endedAt"`
	CurrentQuestionIndex int        `json:"currentQuestionIndex"`
}

// Ended reports whether the session has been closed.
func (s GameSession) Ended() bool {
	return s.EndedAt != nil
}

// PlayerScore is one participant's cumulative points within one session.
type PlayerScore struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"sessionId"`
	PlayerName string    `json:"playerName"`
	Score      int       `json:"score"`
	CreatedAt  time.Time `json:"createdAt"`
}

// LeaderboardEntry is a ranked, display-ready view of a player score.
type LeaderboardEntry struct {
	Rank       int    `json:"rank"`
	Leader     bool   `json:"leader"`
	ScoreID    string `json:"scoreId"`
	PlayerName string `json:"playerName"`
	Score      int    `json:"score"`
}

// Leaderboard captures the ordered scoreboard for a game session.
type Leaderboard struct {
	SessionID string             `json:"sessionId"`
	Entries   []LeaderboardEntry `json:"entries"`
	UpdatedAt time.Time          `json:"updatedAt"`
}
