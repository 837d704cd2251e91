package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"quizplay-service/internal/domain"
)

// Store is an in-memory implementation of app.QuizStore and app.SessionStore.
// Rows are copied in and out so callers never share memory with the store.
type Store struct {
	now func() time.Time

	mu        sync.RWMutex
	seq       int64
	quizzes   map[string]*quizRow
	sessions  map[string]*domain.GameSession
	scores    map[string]*scoreRow
	bySession map[string][]string
}

type quizRow struct {
	quiz      domain.Quiz
	questions []domain.Question
	seq       int64
}

type scoreRow struct {
	score domain.PlayerScore
	seq   int64
}

func NewStore() *Store {
	return NewStoreWithClock(time.Now)
}

// NewStoreWithClock allows deterministic timestamps in tests.
func NewStoreWithClock(now func() time.Time) *Store {
	return &Store{
		now:       now,
		quizzes:   make(map[string]*quizRow),
		sessions:  make(map[string]*domain.GameSession),
		scores:    make(map[string]*scoreRow),
		bySession: make(map[string][]string),
	}
}

// Seed stores quizzes as-is (keeping their IDs), e.g. demo content at startup.
func (s *Store) Seed(quizzes ...domain.Quiz) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, quiz := range quizzes {
		s.seq++
		questions := cloneQuestions(quiz.Questions)
		for i := range questions {
			questions[i].QuizID = quiz.ID
		}
		quiz.Questions = nil
		if quiz.CreatedAt.IsZero() {
			quiz.CreatedAt = s.now()
		}
		s.quizzes[quiz.ID] = &quizRow{quiz: quiz, questions: questions, seq: s.seq}
	}
}

func (s *Store) CreateQuiz(_ context.Context, quiz domain.Quiz, questions []domain.Question) (domain.Quiz, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.seq++
	quiz.ID = uuid.NewString()
	quiz.CreatedAt = now
	quiz.Questions = nil
	stored := cloneQuestions(questions)
	for i := range stored {
		stored[i].ID = uuid.NewString()
		stored[i].QuizID = quiz.ID
		stored[i].Position = i
		stored[i].CreatedAt = now
	}
	s.quizzes[quiz.ID] = &quizRow{quiz: quiz, questions: stored, seq: s.seq}

	quiz.Questions = cloneQuestions(stored)
	return quiz, nil
}

func (s *Store) LoadQuiz(_ context.Context, quizID string) (domain.Quiz, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.quizzes[quizID]
	if !ok {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	quiz := row.quiz
	quiz.Questions = cloneQuestions(row.questions)
	sort.SliceStable(quiz.Questions, func(i, j int) bool {
		return quiz.Questions[i].Position < quiz.Questions[j].Position
	})
	return quiz, nil
}

func (s *Store) ListActive(_ context.Context) ([]domain.Quiz, error) {
	return s.listQuizzes(func(q domain.Quiz) bool { return q.Active }), nil
}

func (s *Store) ListByOwner(_ context.Context, ownerID string) ([]domain.Quiz, error) {
	return s.listQuizzes(func(q domain.Quiz) bool { return q.OwnerID == ownerID }), nil
}

func (s *Store) SetActive(_ context.Context, quizID string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.quizzes[quizID]
	if !ok {
		return domain.ErrQuizNotFound
	}
	row.quiz.Active = active
	return nil
}

// listQuizzes returns matching quizzes newest first.
func (s *Store) listQuizzes(match func(domain.Quiz) bool) []domain.Quiz {
	type listed struct {
		quiz domain.Quiz
		seq  int64
	}
	s.mu.RLock()
	rows := make([]listed, 0, len(s.quizzes))
	for _, row := range s.quizzes {
		if match(row.quiz) {
			rows = append(rows, listed{quiz: row.quiz, seq: row.seq})
		}
	}
	s.mu.RUnlock()

	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].quiz.CreatedAt.Equal(rows[j].quiz.CreatedAt) {
			return rows[i].quiz.CreatedAt.After(rows[j].quiz.CreatedAt)
		}
		return rows[i].seq > rows[j].seq
	})
	out := make([]domain.Quiz, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.quiz)
	}
	return out
}

func (s *Store) CreateSession(_ context.Context, quizID string) (domain.GameSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session := &domain.GameSession{
		ID:        uuid.NewString(),
		QuizID:    quizID,
		CreatedAt: s.now(),
	}
	s.sessions[session.ID] = session
	return copySession(session), nil
}

func (s *Store) GetSession(_ context.Context, sessionID string) (domain.GameSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return domain.GameSession{}, domain.ErrSessionNotFound
	}
	return copySession(session), nil
}

func (s *Store) SetQuestionIndex(_ context.Context, sessionID string, index int) (domain.GameSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return domain.GameSession{}, domain.ErrSessionNotFound
	}
	if index > session.CurrentQuestionIndex {
		session.CurrentQuestionIndex = index
	}
	return copySession(session), nil
}

func (s *Store) EndSession(_ context.Context, sessionID string, at time.Time) (domain.GameSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return domain.GameSession{}, domain.ErrSessionNotFound
	}
	if session.EndedAt == nil {
		session.EndedAt = &at
	}
	return copySession(session), nil
}

func (s *Store) JoinSession(_ context.Context, sessionID, playerName string) (domain.PlayerScore, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sessionID]; !ok {
		return domain.PlayerScore{}, domain.ErrSessionNotFound
	}
	key := NormalizeName(playerName)
	for _, id := range s.bySession[sessionID] {
		if NormalizeName(s.scores[id].score.PlayerName) == key {
			return domain.PlayerScore{}, domain.ErrDuplicatePlayer
		}
	}
	s.seq++
	row := &scoreRow{
		score: domain.PlayerScore{
			ID:         uuid.NewString(),
			SessionID:  sessionID,
			PlayerName: playerName,
			CreatedAt:  s.now(),
		},
		seq: s.seq,
	}
	s.scores[row.score.ID] = row
	s.bySession[sessionID] = append(s.bySession[sessionID], row.score.ID)
	return row.score, nil
}

func (s *Store) UpdateScore(_ context.Context, scoreID string, score int) (domain.PlayerScore, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.scores[scoreID]
	if !ok {
		return domain.PlayerScore{}, domain.ErrPlayerNotFound
	}
	row.score.Score = score
	return row.score, nil
}

func (s *Store) ListScores(_ context.Context, sessionID string) ([]domain.PlayerScore, error) {
	s.mu.RLock()
	rows := make([]*scoreRow, 0, len(s.bySession[sessionID]))
	for _, id := range s.bySession[sessionID] {
		rows = append(rows, s.scores[id])
	}
	out := make([]domain.PlayerScore, 0, len(rows))
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].score.Score > rows[j].score.Score
	})
	for _, row := range rows {
		out = append(out, row.score)
	}
	s.mu.RUnlock()
	return out, nil
}

// NormalizeName is the key player names are compared by within a session.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func copySession(s *domain.GameSession) domain.GameSession {
	out := *s
	if s.EndedAt != nil {
		ended := *s.EndedAt
		out.EndedAt = &ended
	}
	return out
}

func cloneQuestions(questions []domain.Question) []domain.Question {
	if questions == nil {
		return nil
	}
	out := make([]domain.Question, len(questions))
	for i, q := range questions {
		q.Options = append([]string(nil), q.Options...)
		out[i] = q
	}
	return out
}
