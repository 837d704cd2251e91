package app_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"quizplay-service/internal/app"
	"quizplay-service/internal/domain"
	"quizplay-service/internal/infra/memory"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func capitalsQuiz() domain.Quiz {
	return domain.Quiz{
		ID:      "quiz-1",
		Title:   "Capitals",
		OwnerID: "host-1",
		Active:  true,
		Questions: []domain.Question{
			{
				ID:            "q1",
				QuizID:        "quiz-1",
				Text:          "Capital of France?",
				Options:       []string{"Berlin", "Paris", "Rome", "Madrid"},
				CorrectOption: 1,
				Points:        100,
				Position:      0,
			},
			{
				ID:            "q2",
				QuizID:        "quiz-1",
				Text:          "Capital of Japan?",
				Options:       []string{"Osaka", "Kyoto", "Tokyo", "Nagoya"},
				CorrectOption: 2,
				Points:        100,
				Position:      1,
			},
		},
	}
}

type services struct {
	store    *memory.Store
	broker   *memory.Broker
	quizzes  *app.QuizService
	sessions *app.SessionService
}

func newServices(t *testing.T, quizzes ...domain.Quiz) services {
	t.Helper()
	store := memory.NewStore()
	store.Seed(quizzes...)
	broker := memory.NewBroker()
	return services{
		store:    store,
		broker:   broker,
		quizzes:  app.NewQuizService(store, nil, broker, discardLogger()),
		sessions: app.NewSessionService(store, store, broker, discardLogger()),
	}
}

// manualTimers hands out timers that only fire when the test says so.
type manualTimers struct {
	mu     sync.Mutex
	timers []*manualTimer
}

type manualTimer struct {
	d       time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (m *manualTimers) AfterFunc(d time.Duration, f func()) app.Timer {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &manualTimer{d: d, f: f}
	m.timers = append(m.timers, t)
	return t
}

func (t *manualTimer) Stop() bool {
	if t.fired || t.stopped {
		return false
	}
	t.stopped = true
	return true
}

// fire runs the newest pending timer on the calling goroutine.
func (m *manualTimers) fire(t *testing.T) {
	t.Helper()
	m.mu.Lock()
	var next *manualTimer
	for i := len(m.timers) - 1; i >= 0; i-- {
		if !m.timers[i].stopped && !m.timers[i].fired {
			next = m.timers[i]
			break
		}
	}
	m.mu.Unlock()
	if next == nil {
		t.Fatalf("no pending timer")
	}
	next.fired = true
	next.f()
}

func (m *manualTimers) pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

// flakySessions fails selected calls and delegates the rest.
type flakySessions struct {
	app.PlaySessions
	createErr  error
	scoreErr   error
	advanceErr error
}

func (f *flakySessions) CreateSession(ctx context.Context, quizID string) (domain.GameSession, error) {
	if f.createErr != nil {
		return domain.GameSession{}, f.createErr
	}
	return f.PlaySessions.CreateSession(ctx, quizID)
}

func (f *flakySessions) UpdateScore(ctx context.Context, scoreID string, score int) (domain.PlayerScore, error) {
	if f.scoreErr != nil {
		return domain.PlayerScore{}, f.scoreErr
	}
	return f.PlaySessions.UpdateScore(ctx, scoreID, score)
}

func (f *flakySessions) AdvanceSession(ctx context.Context, sessionID string, index int) (domain.GameSession, error) {
	if f.advanceErr != nil {
		return domain.GameSession{}, f.advanceErr
	}
	return f.PlaySessions.AdvanceSession(ctx, sessionID, index)
}

// blockingAdvance holds AdvanceSession until release is closed.
type blockingAdvance struct {
	app.PlaySessions
	entered chan struct{}
	release chan struct{}
}

func (b *blockingAdvance) AdvanceSession(ctx context.Context, sessionID string, index int) (domain.GameSession, error) {
	close(b.entered)
	select {
	case <-b.release:
	case <-ctx.Done():
		return domain.GameSession{}, ctx.Err()
	}
	return b.PlaySessions.AdvanceSession(ctx, sessionID, index)
}

// stateLog records every state a controller reports.
type stateLog struct {
	mu     sync.Mutex
	states []app.PlayState
}

func (l *stateLog) record(s app.PlayState) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.states = append(l.states, s)
}

func (l *stateLog) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.states)
}

func (l *stateLog) last() app.PlayState {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.states) == 0 {
		return app.PlayState{}
	}
	return l.states[len(l.states)-1]
}

func (l *stateLog) phases() []app.Phase {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]app.Phase, 0, len(l.states))
	for _, s := range l.states {
		out = append(out, s.Phase)
	}
	return out
}
