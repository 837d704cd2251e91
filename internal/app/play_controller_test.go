package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"quizplay-service/internal/app"
	"quizplay-service/internal/domain"
)

type countingObserver struct {
	joined    int
	correct   int
	wrong     int
	completed []int
}

func (o *countingObserver) PlayerJoined() { o.joined++ }

func (o *countingObserver) AnswerScored(correct bool, _ int) {
	if correct {
		o.correct++
	} else {
		o.wrong++
	}
}

func (o *countingObserver) PlayCompleted(score int) { o.completed = append(o.completed, score) }

func newController(t *testing.T, quiz domain.Quiz, sessions app.PlaySessions) (*app.PlayController, *manualTimers, *stateLog, *countingObserver) {
	t.Helper()
	timers := &manualTimers{}
	log := &stateLog{}
	obs := &countingObserver{}
	c := app.NewPlayController(quiz, sessions, app.PlayConfig{
		RevealDwell: time.Second,
		AfterFunc:   timers.AfterFunc,
		Logger:      discardLogger(),
		Observer:    obs,
		OnChange:    log.record,
	})
	t.Cleanup(c.Close)
	return c, timers, log, obs
}

func TestPlayControllerCapitalsRun(t *testing.T) {
	ctx := context.Background()
	svc := newServices(t, capitalsQuiz())
	c, timers, _, obs := newController(t, capitalsQuiz(), svc.sessions)

	require.Equal(t, app.PhaseNotJoined, c.State().Phase)
	require.Zero(t, c.State().Progress())

	require.NoError(t, c.Join(ctx, "  Alice "))
	st := c.State()
	require.Equal(t, app.PhaseAnswering, st.Phase)
	require.Equal(t, 0, st.QuestionIndex)
	require.Equal(t, "Alice", st.PlayerName)
	require.Equal(t, -1, st.CorrectOption)
	require.Equal(t, "Capital of France?", st.Question.Text)
	require.Equal(t, 50.0, st.Progress())

	require.True(t, c.SelectOption(ctx, 1))
	st = c.State()
	require.Equal(t, app.PhaseRevealing, st.Phase)
	require.Equal(t, 1, st.CorrectOption)
	require.Equal(t, 100, st.Score)
	require.Equal(t, 100, st.LastAwarded)

	scores, err := svc.store.ListScores(ctx, st.SessionID)
	require.NoError(t, err)
	require.Equal(t, 100, scores[0].Score, "score is persisted right after the answer")

	timers.fire(t)
	st = c.State()
	require.Equal(t, app.PhaseAnswering, st.Phase)
	require.Equal(t, 1, st.QuestionIndex)
	require.Equal(t, -1, st.Selected)

	session, err := svc.store.GetSession(ctx, st.SessionID)
	require.NoError(t, err)
	require.Equal(t, 1, session.CurrentQuestionIndex)

	require.True(t, c.SelectOption(ctx, 0))
	require.Equal(t, 100, c.State().Score)
	require.Zero(t, c.State().LastAwarded)

	timers.fire(t)
	st = c.State()
	require.Equal(t, app.PhaseResults, st.Phase)
	require.Equal(t, 100, st.Score)
	require.Equal(t, 100.0, st.Progress())

	session, err = svc.store.GetSession(ctx, st.SessionID)
	require.NoError(t, err)
	require.True(t, session.Ended())

	require.Equal(t, 1, obs.joined)
	require.Equal(t, 1, obs.correct)
	require.Equal(t, 1, obs.wrong)
	require.Equal(t, []int{100}, obs.completed)
}

func TestPlayControllerIgnoresSecondSelection(t *testing.T) {
	ctx := context.Background()
	svc := newServices(t, capitalsQuiz())
	c, timers, _, _ := newController(t, capitalsQuiz(), svc.sessions)

	require.False(t, c.SelectOption(ctx, 1), "select before join is a no-op")
	require.NoError(t, c.Join(ctx, "Alice"))
	require.True(t, c.SelectOption(ctx, 0))
	require.False(t, c.SelectOption(ctx, 1))

	st := c.State()
	require.Equal(t, 0, st.Selected)
	require.Zero(t, st.Score)
	require.Equal(t, 1, timers.pending(), "only one dwell timer is scheduled")
}

func TestPlayControllerStaleTimerIsIgnored(t *testing.T) {
	ctx := context.Background()
	svc := newServices(t, capitalsQuiz())
	c, timers, _, _ := newController(t, capitalsQuiz(), svc.sessions)

	require.NoError(t, c.Join(ctx, "Alice"))
	require.True(t, c.SelectOption(ctx, 1))
	first := timers.timers[0]
	timers.fire(t)
	require.Equal(t, 1, c.State().QuestionIndex)

	// A late duplicate firing of the first dwell must not skip question two.
	first.f()
	require.Equal(t, app.PhaseAnswering, c.State().Phase)
	require.Equal(t, 1, c.State().QuestionIndex)
}

func TestPlayControllerEmptyQuizGoesStraightToResults(t *testing.T) {
	ctx := context.Background()
	quiz := domain.Quiz{ID: "quiz-empty", Title: "Empty", OwnerID: "host-1", Active: true}
	svc := newServices(t, quiz)
	c, timers, _, obs := newController(t, quiz, svc.sessions)

	require.NoError(t, c.Join(ctx, "Alice"))
	st := c.State()
	require.Equal(t, app.PhaseResults, st.Phase)
	require.Zero(t, st.Score)
	require.Equal(t, 100.0, st.Progress())
	require.Zero(t, timers.pending())
	require.Equal(t, []int{0}, obs.completed)

	session, err := svc.store.GetSession(ctx, st.SessionID)
	require.NoError(t, err)
	require.True(t, session.Ended())
}

func TestPlayControllerJoinFailureStaysNotJoined(t *testing.T) {
	ctx := context.Background()
	svc := newServices(t, capitalsQuiz())
	boom := &domain.StorageError{Op: "create session", Err: errors.New("connection refused")}
	sessions := &flakySessions{PlaySessions: svc.sessions, createErr: boom}
	c, _, log, obs := newController(t, capitalsQuiz(), sessions)

	err := c.Join(ctx, "Alice")
	require.ErrorIs(t, err, boom)
	st := c.State()
	require.Equal(t, app.PhaseNotJoined, st.Phase)
	require.ErrorIs(t, st.Err, boom)
	require.Empty(t, st.SessionID)
	require.Zero(t, obs.joined)
	require.Equal(t, []app.Phase{app.PhaseNotJoined}, log.phases())

	// The player can retry once storage recovers.
	sessions.createErr = nil
	require.NoError(t, c.Join(ctx, "Alice"))
	require.Equal(t, app.PhaseAnswering, c.State().Phase)
	require.NoError(t, c.State().Err)
}

func TestPlayControllerRejectsBlankAndRepeatedJoins(t *testing.T) {
	ctx := context.Background()
	svc := newServices(t, capitalsQuiz())
	c, _, _, _ := newController(t, capitalsQuiz(), svc.sessions)

	err := c.Join(ctx, "   ")
	require.True(t, domain.IsValidation(err))
	require.Equal(t, app.PhaseNotJoined, c.State().Phase)

	require.NoError(t, c.Join(ctx, "Alice"))
	require.ErrorIs(t, c.Join(ctx, "Bob"), domain.ErrInvalidTransition)
}

func TestPlayControllerScoreWriteFailureKeepsLocalScore(t *testing.T) {
	ctx := context.Background()
	svc := newServices(t, capitalsQuiz())
	boom := errors.New("write timeout")
	sessions := &flakySessions{PlaySessions: svc.sessions, scoreErr: boom}
	c, timers, _, _ := newController(t, capitalsQuiz(), sessions)

	require.NoError(t, c.Join(ctx, "Alice"))
	require.True(t, c.SelectOption(ctx, 1))
	st := c.State()
	require.Equal(t, app.PhaseRevealing, st.Phase)
	require.Equal(t, 100, st.Score)
	require.ErrorIs(t, st.Err, boom)

	sessions.scoreErr = nil
	timers.fire(t)
	require.Equal(t, app.PhaseAnswering, c.State().Phase)
	require.True(t, c.SelectOption(ctx, 2))
	require.NoError(t, c.State().Err)

	scores, err := svc.store.ListScores(ctx, st.SessionID)
	require.NoError(t, err)
	require.Equal(t, 200, scores[0].Score, "the next write carries the cumulative total")
}

func TestPlayControllerAnnouncesNextQuestionBeforeProgressWrite(t *testing.T) {
	ctx := context.Background()
	svc := newServices(t, capitalsQuiz())
	sessions := &blockingAdvance{
		PlaySessions: svc.sessions,
		entered:      make(chan struct{}),
		release:      make(chan struct{}),
	}
	c, timers, log, _ := newController(t, capitalsQuiz(), sessions)

	require.NoError(t, c.Join(ctx, "Alice"))
	require.True(t, c.SelectOption(ctx, 1))
	require.Equal(t, app.PhaseRevealing, log.last().Phase, "reveal is reported without waiting for storage")

	dwell := timers.timers[0]
	done := make(chan struct{})
	go func() {
		defer close(done)
		dwell.f()
	}()

	<-sessions.entered
	st := log.last()
	require.Equal(t, app.PhaseAnswering, st.Phase)
	require.Equal(t, 1, st.QuestionIndex)
	seen := log.len()

	close(sessions.release)
	<-done
	require.Equal(t, seen, log.len(), "a successful write sends no second update")

	session, err := svc.store.GetSession(ctx, st.SessionID)
	require.NoError(t, err)
	require.Equal(t, 1, session.CurrentQuestionIndex)
}

func TestPlayControllerProgressWriteFailureIsReported(t *testing.T) {
	ctx := context.Background()
	svc := newServices(t, capitalsQuiz())
	boom := errors.New("write timeout")
	sessions := &flakySessions{PlaySessions: svc.sessions, advanceErr: boom}
	c, timers, log, _ := newController(t, capitalsQuiz(), sessions)

	require.NoError(t, c.Join(ctx, "Alice"))
	require.True(t, c.SelectOption(ctx, 1))
	before := log.len()

	timers.fire(t)
	require.Equal(t, before+2, log.len())
	require.Equal(t, app.PhaseAnswering, log.phases()[before])
	st := log.last()
	require.Equal(t, app.PhaseAnswering, st.Phase)
	require.Equal(t, 1, st.QuestionIndex)
	require.ErrorIs(t, st.Err, boom)
}

func TestPlayControllerRestartOpensNewSession(t *testing.T) {
	ctx := context.Background()
	svc := newServices(t, capitalsQuiz())
	c, timers, _, _ := newController(t, capitalsQuiz(), svc.sessions)

	require.ErrorIs(t, c.Restart(), domain.ErrInvalidTransition)

	require.NoError(t, c.Join(ctx, "Alice"))
	first := c.State().SessionID
	for i := 0; i < 2; i++ {
		require.True(t, c.SelectOption(ctx, 1))
		timers.fire(t)
	}
	require.Equal(t, app.PhaseResults, c.State().Phase)

	require.NoError(t, c.Restart())
	st := c.State()
	require.Equal(t, app.PhaseNotJoined, st.Phase)
	require.Zero(t, st.Score)
	require.Empty(t, st.SessionID)

	require.NoError(t, c.Join(ctx, "Alice"))
	require.NotEqual(t, first, c.State().SessionID)
}

func TestPlayControllerCloseStopsTimer(t *testing.T) {
	ctx := context.Background()
	svc := newServices(t, capitalsQuiz())
	c, timers, log, _ := newController(t, capitalsQuiz(), svc.sessions)

	require.NoError(t, c.Join(ctx, "Alice"))
	require.True(t, c.SelectOption(ctx, 1))
	require.Equal(t, 1, timers.pending())

	c.Close()
	require.Zero(t, timers.pending())
	seen := len(log.phases())

	require.False(t, c.SelectOption(ctx, 2))
	require.ErrorIs(t, c.Join(ctx, "Bob"), domain.ErrControllerClosed)
	require.ErrorIs(t, c.Restart(), domain.ErrControllerClosed)
	require.Len(t, log.phases(), seen, "no notifications after close")
	c.Close()
}

func TestPlayControllerRealTimerAdvances(t *testing.T) {
	ctx := context.Background()
	svc := newServices(t, capitalsQuiz())
	changes := make(chan app.PlayState, 16)
	c := app.NewPlayController(capitalsQuiz(), svc.sessions, app.PlayConfig{
		RevealDwell: 10 * time.Millisecond,
		Logger:      discardLogger(),
		OnChange:    func(s app.PlayState) { changes <- s },
	})
	defer c.Close()

	require.NoError(t, c.Join(ctx, "Alice"))
	require.True(t, c.SelectOption(ctx, 1))

	deadline := time.After(2 * time.Second)
	for {
		select {
		case s := <-changes:
			if s.Phase == app.PhaseAnswering && s.QuestionIndex == 1 {
				return
			}
		case <-deadline:
			t.Fatalf("dwell never elapsed; state %+v", c.State())
		}
	}
}
