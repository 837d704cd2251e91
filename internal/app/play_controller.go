package app

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"quizplay-service/internal/domain"
)

// Phase is where a participant is in the play progression.
type Phase int

const (
	PhaseNotJoined Phase = iota
	PhaseAnswering
	PhaseRevealing
	PhaseResults
)

var phaseNames = [...]string{"not_joined", "answering", "revealing", "results"}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return "unknown"
	}
	return phaseNames[p]
}

func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

const (
	// DefaultRevealDwell is how long the correct option stays on screen after an answer.
	DefaultRevealDwell = 2 * time.Second
	// DefaultStorageTimeout bounds the progress writes made from the dwell timer.
	DefaultStorageTimeout = 5 * time.Second
)

// Timer is a scheduled callback that can be cancelled.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f to run once after d.
type AfterFunc func(d time.Duration, f func()) Timer

func timeAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// PlayObserver receives play milestones (metrics).
type PlayObserver interface {
	PlayerJoined()
	AnswerScored(correct bool, points int)
	PlayCompleted(score int)
}

type nopObserver struct{}

func (nopObserver) PlayerJoined()           {}
func (nopObserver) AnswerScored(bool, int)  {}
func (nopObserver) PlayCompleted(score int) {}

// PlayConfig tunes a PlayController. Zero values pick the defaults.
type PlayConfig struct {
	RevealDwell    time.Duration
	StorageTimeout time.Duration
	AfterFunc      AfterFunc
	Logger         *slog.Logger
	Observer       PlayObserver
	// OnChange is called after every state transition, outside the controller
	// lock. It must not call Close.
	OnChange func(PlayState)
}

// PlayState is a snapshot of one participant's progression.
type PlayState struct {
	Phase          Phase            `json:"phase"`
	QuizID         string           `json:"quizId"`
	QuestionIndex  int              `json:"questionIndex"`
	TotalQuestions int              `json:"totalQuestions"`
	Question       *domain.Question `json:"-"`
	Selected       int              `json:"selected"`
	CorrectOption  int              `json:"correctOption"`
	LastAwarded    int              `json:"lastAwarded"`
	Score          int              `json:"score"`
	SessionID      string           `json:"sessionId,omitempty"`
	PlayerID       string           `json:"playerId,omitempty"`
	PlayerName     string           `json:"playerName,omitempty"`
	Err            error            `json:"-"`
}

// Progress is the completed share of the quiz in percent, counting the
// current question as reached.
func (s PlayState) Progress() float64 {
	switch {
	case s.Phase == PhaseResults:
		return 100
	case s.Phase == PhaseNotJoined || s.TotalQuestions == 0:
		return 0
	}
	return float64(s.QuestionIndex+1) / float64(s.TotalQuestions) * 100
}

// PlayController drives a single participant through one quiz:
// NotJoined -> Answering(i) -> Revealing(i) -> ... -> Results.
// Joining is the only transition that must persist before it happens; score and
// progress writes follow the local state and never roll it back.
type PlayController struct {
	quiz     domain.Quiz
	sessions PlaySessions
	cfg      PlayConfig
	log      *slog.Logger

	ctx       context.Context
	cancel    context.CancelFunc
	callbacks sync.WaitGroup

	mu       sync.Mutex
	phase    Phase
	index    int
	selected int
	awarded  int
	score    int
	session  *domain.GameSession
	player   *domain.PlayerScore
	timer    Timer
	joining  bool
	closed   bool
	err      error
}

func NewPlayController(quiz domain.Quiz, sessions PlaySessions, cfg PlayConfig) *PlayController {
	if cfg.RevealDwell <= 0 {
		cfg.RevealDwell = DefaultRevealDwell
	}
	if cfg.StorageTimeout <= 0 {
		cfg.StorageTimeout = DefaultStorageTimeout
	}
	if cfg.AfterFunc == nil {
		cfg.AfterFunc = timeAfterFunc
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Observer == nil {
		cfg.Observer = nopObserver{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &PlayController{
		quiz:     quiz,
		sessions: sessions,
		cfg:      cfg,
		log:      cfg.Logger.With("quiz_id", quiz.ID),
		ctx:      ctx,
		cancel:   cancel,
		selected: -1,
	}
}

// State returns the current snapshot.
func (c *PlayController) State() PlayState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Join creates a session and a score record for name and starts the quiz.
// On failure the controller stays in NotJoined and exposes the error.
func (c *PlayController) Join(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)

	c.mu.Lock()
	switch {
	case c.closed:
		c.mu.Unlock()
		return domain.ErrControllerClosed
	case c.joining:
		c.mu.Unlock()
		return domain.ErrJoinInProgress
	case c.phase != PhaseNotJoined:
		c.mu.Unlock()
		return domain.ErrInvalidTransition
	}
	if name == "" {
		err := &domain.ValidationError{Field: "playerName", Reason: "must not be empty"}
		c.err = err
		c.unlockAndNotify()
		return err
	}
	c.joining = true
	c.mu.Unlock()

	session, player, err := c.persistJoin(ctx, name)

	c.mu.Lock()
	c.joining = false
	if c.closed {
		c.mu.Unlock()
		return domain.ErrControllerClosed
	}
	if err != nil {
		c.err = err
		c.unlockAndNotify()
		return err
	}
	c.session = &session
	c.player = &player
	c.index = 0
	c.selected = -1
	c.awarded = 0
	c.score = 0
	c.err = nil
	empty := len(c.quiz.Questions) == 0
	if empty {
		c.phase = PhaseResults
	} else {
		c.phase = PhaseAnswering
	}
	c.mu.Unlock()

	c.log.Info("player joined", "session_id", session.ID, "player", name)
	c.cfg.Observer.PlayerJoined()
	if empty {
		// Nothing to answer; close the session straight away.
		c.cfg.Observer.PlayCompleted(0)
		if _, err := c.sessions.EndSession(ctx, session.ID); err != nil {
			c.log.Warn("end session failed", "session_id", session.ID, "error", err)
		}
	}

	c.mu.Lock()
	c.unlockAndNotify()
	return nil
}

func (c *PlayController) persistJoin(ctx context.Context, name string) (domain.GameSession, domain.PlayerScore, error) {
	session, err := c.sessions.CreateSession(ctx, c.quiz.ID)
	if err != nil {
		c.log.Error("create session failed", "error", err)
		return domain.GameSession{}, domain.PlayerScore{}, err
	}
	player, err := c.sessions.JoinSession(ctx, session.ID, name)
	if err != nil {
		c.log.Error("join session failed", "session_id", session.ID, "error", err)
		return domain.GameSession{}, domain.PlayerScore{}, err
	}
	return session, player, nil
}

// SelectOption answers the current question. Only the first selection while
// answering is accepted; every other call is a no-op and returns false.
func (c *PlayController) SelectOption(ctx context.Context, option int) bool {
	c.mu.Lock()
	if c.closed || c.phase != PhaseAnswering {
		c.mu.Unlock()
		return false
	}
	question := c.quiz.Questions[c.index]
	points := Score(question, option)
	index := c.index
	c.selected = option
	c.awarded = points
	c.score += points
	c.phase = PhaseRevealing
	c.err = nil
	total := c.score
	scoreID := c.player.ID
	c.timer = c.cfg.AfterFunc(c.cfg.RevealDwell, func() { c.advance(index) })
	c.unlockAndNotify()

	c.cfg.Observer.AnswerScored(points > 0, points)
	if _, err := c.sessions.UpdateScore(ctx, scoreID, total); err != nil {
		c.log.Warn("score write failed", "score_id", scoreID, "score", total, "error", err)
		c.mu.Lock()
		c.err = err
		c.unlockAndNotify()
	}
	return true
}

// advance ends the reveal dwell of question index.
func (c *PlayController) advance(index int) {
	c.mu.Lock()
	if c.closed || c.phase != PhaseRevealing || c.index != index {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	last := index >= len(c.quiz.Questions)-1
	if last {
		c.phase = PhaseResults
	} else {
		c.index++
		c.phase = PhaseAnswering
		c.selected = -1
		c.awarded = 0
	}
	next := c.index
	score := c.score
	sessionID := c.session.ID
	c.callbacks.Add(1)
	defer c.callbacks.Done()
	c.unlockAndNotify()

	ctx, cancel := context.WithTimeout(c.ctx, c.cfg.StorageTimeout)
	defer cancel()
	var err error
	if last {
		c.log.Info("quiz completed", "session_id", sessionID, "score", score)
		c.cfg.Observer.PlayCompleted(score)
		_, err = c.sessions.EndSession(ctx, sessionID)
	} else {
		_, err = c.sessions.AdvanceSession(ctx, sessionID, next)
	}

	if err == nil || c.ctx.Err() != nil {
		return
	}
	c.log.Warn("session progress write failed", "session_id", sessionID, "error", err)
	c.mu.Lock()
	c.err = err
	c.unlockAndNotify()
}

// Restart discards the finished play and returns to NotJoined. The next Join
// opens a brand-new session.
func (c *PlayController) Restart() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return domain.ErrControllerClosed
	}
	if c.phase != PhaseResults {
		c.mu.Unlock()
		return domain.ErrInvalidTransition
	}
	c.phase = PhaseNotJoined
	c.session = nil
	c.player = nil
	c.index = 0
	c.selected = -1
	c.awarded = 0
	c.score = 0
	c.err = nil
	c.unlockAndNotify()
	return nil
}

// Close cancels the pending dwell timer and in-flight progress writes, then
// waits for running callbacks. Later commands are no-ops.
func (c *PlayController) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.cancel()
	c.mu.Unlock()
	c.callbacks.Wait()
}

// unlockAndNotify releases c.mu and hands a snapshot to the state listener.
func (c *PlayController) unlockAndNotify() {
	if c.closed || c.cfg.OnChange == nil {
		c.mu.Unlock()
		return
	}
	state := c.snapshotLocked()
	c.callbacks.Add(1)
	c.mu.Unlock()
	defer c.callbacks.Done()
	c.cfg.OnChange(state)
}

func (c *PlayController) snapshotLocked() PlayState {
	state := PlayState{
		Phase:          c.phase,
		QuizID:         c.quiz.ID,
		QuestionIndex:  c.index,
		TotalQuestions: len(c.quiz.Questions),
		Selected:       c.selected,
		CorrectOption:  -1,
		LastAwarded:    c.awarded,
		Score:          c.score,
		Err:            c.err,
	}
	if c.session != nil {
		state.SessionID = c.session.ID
	}
	if c.player != nil {
		state.PlayerID = c.player.ID
		state.PlayerName = c.player.PlayerName
	}
	if c.phase == PhaseAnswering || c.phase == PhaseRevealing {
		q := c.quiz.Questions[c.index]
		state.Question = &q
	}
	if c.phase == PhaseRevealing {
		state.CorrectOption = c.quiz.Questions[c.index].CorrectOption
	}
	return state
}
