package domain

import "time"

// ChangeOp is the kind of row mutation a change notification describes.
type ChangeOp string

const (
	ChangeInsert ChangeOp = "INSERT"
	ChangeUpdate ChangeOp = "UPDATE"
	ChangeDelete ChangeOp = "DELETE"
)

// Table names carried on change notifications.
const (
	TableQuizzes      = "quizzes"
	TableGameSessions = "game_sessions"
	TablePlayerScores = "player_scores"
)

// Change is a single row-change notification. Session is set for game session
// changes so subscribers can apply the new row without re-fetching it.
type Change struct {
	Table   string       `json:"table"`
	Op      ChangeOp     `json:"op"`
	ID      string       `json:"id"`
	Session *GameSession `json:"session,omitempty"`
	At      time.Time    `json:"at"`
}

// QuizzesTopic carries changes to any quiz row.
const QuizzesTopic = "quizzes"

// ScoresTopic carries changes to the player scores of one session.
func ScoresTopic(sessionID string) string {
	return "player_scores:" + sessionID
}

// SessionTopic carries changes to one game session row.
func SessionTopic(sessionID string) string {
	return "game_session:" + sessionID
}
