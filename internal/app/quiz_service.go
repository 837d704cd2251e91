package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"quizplay-service/internal/domain"
)

// QuizDraft is the authoring input for a new quiz.
type QuizDraft struct {
	Title       string          `json:"title" validate:"required,max=200"`
	Description string          `json:"description" validate:"max=2000"`
	Questions   []QuestionDraft `json:"questions" validate:"required,min=1,dive"`
}

// QuestionDraft is one authored question. Points default to domain.DefaultPoints when zero.
type QuestionDraft struct {
	Text          string   `json:"question" validate:"required"`
	Options       []string `json:"options" validate:"len=4,dive,required"`
	CorrectOption int      `json:"correctOption" validate:"min=0,max=3"`
	Points        int      `json:"points" validate:"min=0"`
}

// QuizService contains the quiz authoring and catalogue use cases.
type QuizService struct {
	store    QuizStore
	loader   QuizLoader
	feed     ChangeFeed
	validate *validator.Validate
	log      *slog.Logger
	now      func() time.Time
}

// NewQuizService wires the quiz use cases. loader may be a cache in front of
// store; when nil, quizzes are loaded from store directly.
func NewQuizService(store QuizStore, loader QuizLoader, feed ChangeFeed, log *slog.Logger) *QuizService {
	if loader == nil {
		loader = store
	}
	if log == nil {
		log = slog.Default()
	}
	validate := validator.New()
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return &QuizService{
		store:    store,
		loader:   loader,
		feed:     feed,
		validate: validate,
		log:      log,
		now:      time.Now,
	}
}

// CreateQuiz validates and stores a new active quiz owned by ownerID.
func (s *QuizService) CreateQuiz(ctx context.Context, ownerID string, draft QuizDraft) (domain.Quiz, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return domain.Quiz{}, &domain.ValidationError{Field: "ownerId", Reason: "must not be empty"}
	}
	draft.Title = strings.TrimSpace(draft.Title)
	draft.Description = strings.TrimSpace(draft.Description)
	if err := s.validate.Struct(draft); err != nil {
		return domain.Quiz{}, toValidationError(err)
	}

	quiz := domain.Quiz{
		Title:   draft.Title,
		OwnerID: ownerID,
		Active:  true,
	}
	if draft.Description != "" {
		desc := draft.Description
		quiz.Description = &desc
	}
	questions := make([]domain.Question, 0, len(draft.Questions))
	for i, q := range draft.Questions {
		points := q.Points
		if points == 0 {
			points = domain.DefaultPoints
		}
		questions = append(questions, domain.Question{
			Text:          strings.TrimSpace(q.Text),
			Options:       append([]string(nil), q.Options...),
			CorrectOption: q.CorrectOption,
			Points:        points,
			Position:      i,
		})
	}

	created, err := s.store.CreateQuiz(ctx, quiz, questions)
	if err != nil {
		return domain.Quiz{}, err
	}
	s.log.Info("quiz created", "quiz_id", created.ID, "owner_id", ownerID, "questions", len(created.Questions))
	s.publish(ctx, domain.ChangeInsert, created.ID)
	return created, nil
}

// LoadQuiz returns the quiz with its questions in play order. A quiz without
// questions is a valid result.
func (s *QuizService) LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	return s.loader.LoadQuiz(ctx, quizID)
}

// ListActive returns the active quizzes, newest first.
func (s *QuizService) ListActive(ctx context.Context) ([]domain.Quiz, error) {
	return s.store.ListActive(ctx)
}

// ListOwned returns the quizzes authored by ownerID, newest first.
func (s *QuizService) ListOwned(ctx context.Context, ownerID string) ([]domain.Quiz, error) {
	return s.store.ListByOwner(ctx, ownerID)
}

// SetActive toggles whether the quiz is listed for play. Ownership is not
// checked here; callers sit behind the auth proxy.
func (s *QuizService) SetActive(ctx context.Context, quizID string, active bool) error {
	if err := s.store.SetActive(ctx, quizID, active); err != nil {
		return err
	}
	if inv, ok := s.loader.(QuizInvalidator); ok {
		if err := inv.Invalidate(ctx, quizID); err != nil {
			s.log.Warn("quiz cache invalidation failed", "quiz_id", quizID, "error", err)
		}
	}
	s.log.Info("quiz activity changed", "quiz_id", quizID, "active", active)
	s.publish(ctx, domain.ChangeUpdate, quizID)
	return nil
}

// WatchActive streams the active quiz list, re-fetched on every quiz change.
// The caller must invoke the returned cancel function to avoid leaks.
func (s *QuizService) WatchActive(ctx context.Context) (<-chan []domain.Quiz, func(), error) {
	changes, unsubscribe, err := s.feed.Subscribe(ctx, domain.QuizzesTopic)
	if err != nil {
		return nil, nil, err
	}
	initial, err := s.store.ListActive(ctx)
	if err != nil {
		unsubscribe()
		return nil, nil, err
	}
	out, cancel := relay(ctx, changes, unsubscribe, initial, func(ctx context.Context, _ domain.Change) ([]domain.Quiz, bool) {
		quizzes, err := s.store.ListActive(ctx)
		if err != nil {
			s.log.Warn("refresh active quizzes failed", "error", err)
			return nil, false
		}
		return quizzes, true
	})
	return out, cancel, nil
}

func (s *QuizService) publish(ctx context.Context, op domain.ChangeOp, quizID string) {
	change := domain.Change{Table: domain.TableQuizzes, Op: op, ID: quizID, At: s.now()}
	if err := s.feed.Publish(ctx, domain.QuizzesTopic, change); err != nil {
		s.log.Warn("publish quiz change failed", "quiz_id", quizID, "error", err)
	}
}

func toValidationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return &domain.ValidationError{Field: "quiz", Reason: err.Error()}
	}
	fe := fieldErrs[0]
	field := strings.TrimPrefix(fe.Namespace(), "QuizDraft.")
	reason := "failed " + fe.Tag()
	if fe.Param() != "" {
		reason = fmt.Sprintf("failed %s=%s", fe.Tag(), fe.Param())
	}
	return &domain.ValidationError{Field: field, Reason: reason}
}
