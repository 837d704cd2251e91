package app

import (
	"context"
	"time"

	"quizplay-service/internal/domain"
)

// QuizLoader loads a quiz with its ordered questions (from cache or backing store).
type QuizLoader interface {
	LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// QuizStore abstracts where quizzes and their questions live (in-memory, Postgres).
type QuizStore interface {
	QuizLoader
	// CreateQuiz persists the quiz and its questions atomically and returns the
	// stored quiz with Questions populated in authoring order.
	CreateQuiz(ctx context.Context, quiz domain.Quiz, questions []domain.Question) (domain.Quiz, error)
	ListActive(ctx context.Context) ([]domain.Quiz, error)
	ListByOwner(ctx context.Context, ownerID string) ([]domain.Quiz, error)
	SetActive(ctx context.Context, quizID string, active bool) error
}

// SessionStore abstracts how game sessions and player scores are stored
// (in-memory, Redis, Postgres).
type SessionStore interface {
	CreateSession(ctx context.Context, quizID string) (domain.GameSession, error)
	GetSession(ctx context.Context, sessionID string) (domain.GameSession, error)
	SetQuestionIndex(ctx context.Context, sessionID string, index int) (domain.GameSession, error)
	EndSession(ctx context.Context, sessionID string, at time.Time) (domain.GameSession, error)
	JoinSession(ctx context.Context, sessionID, playerName string) (domain.PlayerScore, error)
	UpdateScore(ctx context.Context, scoreID string, score int) (domain.PlayerScore, error)
	// ListScores returns the session's scores ordered by score, highest first.
	ListScores(ctx context.Context, sessionID string) ([]domain.PlayerScore, error)
}

// ChangeFeed delivers row-change notifications per topic.
// The caller must invoke the returned cancel function to avoid leaks.
type ChangeFeed interface {
	Publish(ctx context.Context, topic string, change domain.Change) error
	Subscribe(ctx context.Context, topic string) (<-chan domain.Change, func(), error)
}

// QuizInvalidator is implemented by quiz caches that can drop a cached entry.
type QuizInvalidator interface {
	Invalidate(ctx context.Context, quizID string) error
}

// PlaySessions is the durable side of a play controller.
type PlaySessions interface {
	CreateSession(ctx context.Context, quizID string) (domain.GameSession, error)
	JoinSession(ctx context.Context, sessionID, playerName string) (domain.PlayerScore, error)
	UpdateScore(ctx context.Context, scoreID string, score int) (domain.PlayerScore, error)
	AdvanceSession(ctx context.Context, sessionID string, index int) (domain.GameSession, error)
	EndSession(ctx context.Context, sessionID string) (domain.GameSession, error)
}
