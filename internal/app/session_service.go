package app

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"quizplay-service/internal/domain"
)

// SessionSnapshot is a game session together with its ranked scores.
type SessionSnapshot struct {
	Session     domain.GameSession `json:"session"`
	Leaderboard domain.Leaderboard `json:"leaderboard"`
}

// SessionService contains the game session use cases. Every successful
// mutation is published on the change feed.
type SessionService struct {
	store   SessionStore
	quizzes QuizLoader
	feed    ChangeFeed
	log     *slog.Logger
	now     func() time.Time
}

func NewSessionService(store SessionStore, quizzes QuizLoader, feed ChangeFeed, log *slog.Logger) *SessionService {
	return NewSessionServiceWithClock(store, quizzes, feed, log, time.Now)
}

// NewSessionServiceWithClock allows deterministic timestamps in tests.
func NewSessionServiceWithClock(store SessionStore, quizzes QuizLoader, feed ChangeFeed, log *slog.Logger, now func() time.Time) *SessionService {
	if log == nil {
		log = slog.Default()
	}
	return &SessionService{store: store, quizzes: quizzes, feed: feed, log: log, now: now}
}

// CreateSession opens a new game session for an existing quiz.
func (s *SessionService) CreateSession(ctx context.Context, quizID string) (domain.GameSession, error) {
	// Sessions cannot reference unknown quizzes.
	if _, err := s.quizzes.LoadQuiz(ctx, quizID); err != nil {
		return domain.GameSession{}, err
	}
	session, err := s.store.CreateSession(ctx, quizID)
	if err != nil {
		return domain.GameSession{}, err
	}
	s.log.Debug("game session created", "session_id", session.ID, "quiz_id", quizID)
	s.publishSession(ctx, domain.ChangeInsert, session)
	return session, nil
}

// JoinSession registers a player with score 0. Names are unique per session.
func (s *SessionService) JoinSession(ctx context.Context, sessionID, playerName string) (domain.PlayerScore, error) {
	playerName = strings.TrimSpace(playerName)
	if playerName == "" {
		return domain.PlayerScore{}, &domain.ValidationError{Field: "playerName", Reason: "must not be empty"}
	}
	player, err := s.store.JoinSession(ctx, sessionID, playerName)
	if err != nil {
		return domain.PlayerScore{}, err
	}
	s.log.Debug("player joined", "session_id", sessionID, "score_id", player.ID, "player", playerName)
	s.publishScore(ctx, domain.ChangeInsert, player)
	return player, nil
}

// UpdateScore stores the player's cumulative score.
func (s *SessionService) UpdateScore(ctx context.Context, scoreID string, score int) (domain.PlayerScore, error) {
	if score < 0 {
		return domain.PlayerScore{}, &domain.ValidationError{Field: "score", Reason: "must not be negative"}
	}
	player, err := s.store.UpdateScore(ctx, scoreID, score)
	if err != nil {
		return domain.PlayerScore{}, err
	}
	s.publishScore(ctx, domain.ChangeUpdate, player)
	return player, nil
}

// AdvanceSession records the question index the session has reached.
func (s *SessionService) AdvanceSession(ctx context.Context, sessionID string, index int) (domain.GameSession, error) {
	session, err := s.store.SetQuestionIndex(ctx, sessionID, index)
	if err != nil {
		return domain.GameSession{}, err
	}
	s.publishSession(ctx, domain.ChangeUpdate, session)
	return session, nil
}

// EndSession stamps the session's end time.
func (s *SessionService) EndSession(ctx context.Context, sessionID string) (domain.GameSession, error) {
	session, err := s.store.EndSession(ctx, sessionID, s.now())
	if err != nil {
		return domain.GameSession{}, err
	}
	s.log.Debug("game session ended", "session_id", sessionID)
	s.publishSession(ctx, domain.ChangeUpdate, session)
	return session, nil
}

func (s *SessionService) Session(ctx context.Context, sessionID string) (domain.GameSession, error) {
	return s.store.GetSession(ctx, sessionID)
}

// Leaderboard returns the ranked scores of a session.
func (s *SessionService) Leaderboard(ctx context.Context, sessionID string) (domain.Leaderboard, error) {
	scores, err := s.store.ListScores(ctx, sessionID)
	if err != nil {
		return domain.Leaderboard{}, err
	}
	return ProjectLeaderboard(sessionID, scores, s.now()), nil
}

// Snapshot fetches the session row and its scores concurrently.
func (s *SessionService) Snapshot(ctx context.Context, sessionID string) (SessionSnapshot, error) {
	var (
		session domain.GameSession
		scores  []domain.PlayerScore
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		session, err = s.store.GetSession(gctx, sessionID)
		return err
	})
	g.Go(func() error {
		var err error
		scores, err = s.store.ListScores(gctx, sessionID)
		return err
	})
	if err := g.Wait(); err != nil {
		return SessionSnapshot{}, err
	}
	return SessionSnapshot{
		Session:     session,
		Leaderboard: ProjectLeaderboard(sessionID, scores, s.now()),
	}, nil
}

// WatchScores streams the session leaderboard, re-fetched and re-projected on
// every score change. The caller must invoke the returned cancel function.
func (s *SessionService) WatchScores(ctx context.Context, sessionID string) (<-chan domain.Leaderboard, func(), error) {
	if _, err := s.store.GetSession(ctx, sessionID); err != nil {
		return nil, nil, err
	}
	changes, unsubscribe, err := s.feed.Subscribe(ctx, domain.ScoresTopic(sessionID))
	if err != nil {
		return nil, nil, err
	}
	initial, err := s.Leaderboard(ctx, sessionID)
	if err != nil {
		unsubscribe()
		return nil, nil, err
	}
	out, cancel := relay(ctx, changes, unsubscribe, initial, func(ctx context.Context, _ domain.Change) (domain.Leaderboard, bool) {
		lb, err := s.Leaderboard(ctx, sessionID)
		if err != nil {
			s.log.Warn("refresh leaderboard failed", "session_id", sessionID, "error", err)
			return domain.Leaderboard{}, false
		}
		return lb, true
	})
	return out, cancel, nil
}

// WatchSession streams the session row. Changes carry the updated row, which
// is forwarded as-is; a change without one falls back to a re-fetch.
func (s *SessionService) WatchSession(ctx context.Context, sessionID string) (<-chan domain.GameSession, func(), error) {
	changes, unsubscribe, err := s.feed.Subscribe(ctx, domain.SessionTopic(sessionID))
	if err != nil {
		return nil, nil, err
	}
	initial, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		unsubscribe()
		return nil, nil, err
	}
	out, cancel := relay(ctx, changes, unsubscribe, initial, func(ctx context.Context, change domain.Change) (domain.GameSession, bool) {
		if change.Session != nil {
			return *change.Session, true
		}
		session, err := s.store.GetSession(ctx, sessionID)
		if err != nil {
			s.log.Warn("refresh game session failed", "session_id", sessionID, "error", err)
			return domain.GameSession{}, false
		}
		return session, true
	})
	return out, cancel, nil
}

func (s *SessionService) publishSession(ctx context.Context, op domain.ChangeOp, session domain.GameSession) {
	change := domain.Change{Table: domain.TableGameSessions, Op: op, ID: session.ID, Session: &session, At: s.now()}
	if err := s.feed.Publish(ctx, domain.SessionTopic(session.ID), change); err != nil {
		s.log.Warn("publish session change failed", "session_id", session.ID, "error", err)
	}
}

func (s *SessionService) publishScore(ctx context.Context, op domain.ChangeOp, player domain.PlayerScore) {
	change := domain.Change{Table: domain.TablePlayerScores, Op: op, ID: player.ID, At: s.now()}
	if err := s.feed.Publish(ctx, domain.ScoresTopic(player.SessionID), change); err != nil {
		s.log.Warn("publish score change failed", "session_id", player.SessionID, "error", err)
	}
}
