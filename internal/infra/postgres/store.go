package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"quizplay-service/internal/domain"
)

const (
	codeForeignKeyViolation = "23503"
	codeUniqueViolation     = "23505"
)

// Store implements app.QuizStore and app.SessionStore on Postgres.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const quizColumns = `id, title, description, owner_id, is_active, created_at`

const sessionColumns = `id, quiz_id, created_at, ended_at, current_question_index`

const scoreColumns = `id, session_id, player_name, score, created_at`

func (s *Store) CreateQuiz(ctx context.Context, quiz domain.Quiz, questions []domain.Question) (domain.Quiz, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.Quiz{}, domain.NewStorageError("create quiz", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	err = tx.QueryRow(ctx,
		`INSERT INTO quizzes (title, description, owner_id, is_active) VALUES ($1, $2, $3, $4) RETURNING `+quizColumns,
		quiz.Title, quiz.Description, quiz.OwnerID, quiz.Active,
	).Scan(&quiz.ID, &quiz.Title, &quiz.Description, &quiz.OwnerID, &quiz.Active, &quiz.CreatedAt)
	if err != nil {
		return domain.Quiz{}, domain.NewStorageError("create quiz", err)
	}

	quiz.Questions = make([]domain.Question, 0, len(questions))
	for i, q := range questions {
		q.QuizID = quiz.ID
		q.Position = i
		err := tx.QueryRow(ctx,
			`INSERT INTO questions (quiz_id, question, options, correct_option, points, position)
			 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id, created_at`,
			q.QuizID, q.Text, q.Options, q.CorrectOption, q.Points, q.Position,
		).Scan(&q.ID, &q.CreatedAt)
		if err != nil {
			return domain.Quiz{}, domain.NewStorageError("create question", err)
		}
		quiz.Questions = append(quiz.Questions, q)
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Quiz{}, domain.NewStorageError("create quiz", err)
	}
	return quiz, nil
}

func (s *Store) LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	var quiz domain.Quiz
	err := s.pool.QueryRow(ctx, `SELECT `+quizColumns+` FROM quizzes WHERE id = $1`, quizID).
		Scan(&quiz.ID, &quiz.Title, &quiz.Description, &quiz.OwnerID, &quiz.Active, &quiz.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	if err != nil {
		return domain.Quiz{}, domain.NewStorageError("load quiz", err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, quiz_id, question, options, correct_option, points, position, created_at
		 FROM questions WHERE quiz_id = $1 ORDER BY position, created_at, id`, quizID)
	if err != nil {
		return domain.Quiz{}, domain.NewStorageError("load questions", err)
	}
	defer rows.Close()

	for rows.Next() {
		var q domain.Question
		if err := rows.Scan(&q.ID, &q.QuizID, &q.Text, &q.Options, &q.CorrectOption, &q.Points, &q.Position, &q.CreatedAt); err != nil {
			return domain.Quiz{}, domain.NewStorageError("scan question", err)
		}
		quiz.Questions = append(quiz.Questions, q)
	}
	if err := rows.Err(); err != nil {
		return domain.Quiz{}, domain.NewStorageError("load questions", err)
	}
	return quiz, nil
}

func (s *Store) ListActive(ctx context.Context) ([]domain.Quiz, error) {
	return s.listQuizzes(ctx, "list active quizzes",
		`SELECT `+quizColumns+` FROM quizzes WHERE is_active ORDER BY created_at DESC, id`)
}

func (s *Store) ListByOwner(ctx context.Context, ownerID string) ([]domain.Quiz, error) {
	return s.listQuizzes(ctx, "list owned quizzes",
		`SELECT `+quizColumns+` FROM quizzes WHERE owner_id = $1 ORDER BY created_at DESC, id`, ownerID)
}

func (s *Store) listQuizzes(ctx context.Context, op, query string, args ...interface{}) ([]domain.Quiz, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, domain.NewStorageError(op, err)
	}
	defer rows.Close()

	quizzes := []domain.Quiz{}
	for rows.Next() {
		var q domain.Quiz
		if err := rows.Scan(&q.ID, &q.Title, &q.Description, &q.OwnerID, &q.Active, &q.CreatedAt); err != nil {
			return nil, domain.NewStorageError(op, err)
		}
		quizzes = append(quizzes, q)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewStorageError(op, err)
	}
	return quizzes, nil
}

func (s *Store) SetActive(ctx context.Context, quizID string, active bool) error {
	tag, err := s.pool.Exec(ctx, `UPDATE quizzes SET is_active = $2 WHERE id = $1`, quizID, active)
	if err != nil {
		return domain.NewStorageError("set quiz active", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrQuizNotFound
	}
	return nil
}

func (s *Store) CreateSession(ctx context.Context, quizID string) (domain.GameSession, error) {
	session, err := scanSession(s.pool.QueryRow(ctx,
		`INSERT INTO game_sessions (quiz_id, current_question_index) VALUES ($1, 0) RETURNING `+sessionColumns, quizID))
	if hasCode(err, codeForeignKeyViolation) {
		return domain.GameSession{}, domain.ErrQuizNotFound
	}
	if err != nil {
		return domain.GameSession{}, domain.NewStorageError("create session", err)
	}
	return session, nil
}

func (s *Store) GetSession(ctx context.Context, sessionID string) (domain.GameSession, error) {
	session, err := scanSession(s.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM game_sessions WHERE id = $1`, sessionID))
	return session, sessionErr("get session", err)
}

func (s *Store) SetQuestionIndex(ctx context.Context, sessionID string, index int) (domain.GameSession, error) {
	session, err := scanSession(s.pool.QueryRow(ctx,
		`UPDATE game_sessions SET current_question_index = GREATEST(current_question_index, $2)
		 WHERE id = $1 RETURNING `+sessionColumns, sessionID, index))
	return session, sessionErr("set question index", err)
}

func (s *Store) EndSession(ctx context.Context, sessionID string, at time.Time) (domain.GameSession, error) {
	session, err := scanSession(s.pool.QueryRow(ctx,
		`UPDATE game_sessions SET ended_at = COALESCE(ended_at, $2)
		 WHERE id = $1 RETURNING `+sessionColumns, sessionID, at))
	return session, sessionErr("end session", err)
}

func (s *Store) JoinSession(ctx context.Context, sessionID, playerName string) (domain.PlayerScore, error) {
	player, err := scanScore(s.pool.QueryRow(ctx,
		`INSERT INTO player_scores (session_id, player_name, score) VALUES ($1, $2, 0) RETURNING `+scoreColumns,
		sessionID, playerName))
	switch {
	case err == nil:
		return player, nil
	case hasCode(err, codeForeignKeyViolation):
		return domain.PlayerScore{}, domain.ErrSessionNotFound
	case hasCode(err, codeUniqueViolation):
		return domain.PlayerScore{}, domain.ErrDuplicatePlayer
	default:
		return domain.PlayerScore{}, domain.NewStorageError("join session", err)
	}
}

func (s *Store) UpdateScore(ctx context.Context, scoreID string, score int) (domain.PlayerScore, error) {
	player, err := scanScore(s.pool.QueryRow(ctx,
		`UPDATE player_scores SET score = $2 WHERE id = $1 RETURNING `+scoreColumns, scoreID, score))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.PlayerScore{}, domain.ErrPlayerNotFound
	}
	if err != nil {
		return domain.PlayerScore{}, domain.NewStorageError("update score", err)
	}
	return player, nil
}

func (s *Store) ListScores(ctx context.Context, sessionID string) ([]domain.PlayerScore, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+scoreColumns+` FROM player_scores WHERE session_id = $1 ORDER BY score DESC, seq`, sessionID)
	if err != nil {
		return nil, domain.NewStorageError("list scores", err)
	}
	defer rows.Close()

	scores := []domain.PlayerScore{}
	for rows.Next() {
		player, err := scanScore(rows)
		if err != nil {
			return nil, domain.NewStorageError("list scores", err)
		}
		scores = append(scores, player)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewStorageError("list scores", err)
	}
	return scores, nil
}

func scanSession(row pgx.Row) (domain.GameSession, error) {
	var session domain.GameSession
	err := row.Scan(&session.ID, &session.QuizID, &session.CreatedAt, &session.EndedAt, &session.CurrentQuestionIndex)
	return session, err
}

func scanScore(row pgx.Row) (domain.PlayerScore, error) {
	var player domain.PlayerScore
	err := row.Scan(&player.ID, &player.SessionID, &player.PlayerName, &player.Score, &player.CreatedAt)
	return player, err
}

func sessionErr(op string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrSessionNotFound
	}
	return domain.NewStorageError(op, err)
}

func hasCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}
