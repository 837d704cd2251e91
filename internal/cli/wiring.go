package cli

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"

	"quizplay-service/internal/app"
	"quizplay-service/internal/config"
	"quizplay-service/internal/infra/memory"
	pgstore "quizplay-service/internal/infra/postgres"
	redisinfra "quizplay-service/internal/infra/redis"
)

// stack is the storage and service graph selected by config.
type stack struct {
	quizStore    app.QuizStore
	sessionStore app.SessionStore
	feed         app.ChangeFeed
	quizzes      *app.QuizService
	sessions     *app.SessionService

	pool        *pgxpool.Pool
	redisClient *redis.Client
}

func buildStack(ctx context.Context, cfg config.Config, log *slog.Logger) (*stack, error) {
	s := &stack{}

	if cfg.Redis.Addr != "" {
		s.redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}
	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.pool = pool
	}

	var mem *memory.Store
	memStore := func() *memory.Store {
		if mem == nil {
			mem = memory.NewStore()
		}
		return mem
	}

	switch cfg.Storage.Quizzes {
	case config.DriverMemory:
		s.quizStore = memStore()
	case config.DriverPostgres:
		if s.pool == nil {
			s.Close()
			return nil, fmt.Errorf("quiz storage %q needs postgres.url", cfg.Storage.Quizzes)
		}
		s.quizStore = pgstore.NewStore(s.pool)
	default:
		s.Close()
		return nil, fmt.Errorf("unknown quiz storage driver %q", cfg.Storage.Quizzes)
	}

	redisTTL := config.TTLDuration(cfg.Redis.TTL, 10*time.Minute)
	switch cfg.Storage.Sessions {
	case config.DriverMemory:
		s.sessionStore = memStore()
	case config.DriverRedis:
		if s.redisClient == nil {
			s.Close()
			return nil, fmt.Errorf("session storage %q needs redis.addr", cfg.Storage.Sessions)
		}
		s.sessionStore = redisinfra.NewSessionStore(s.redisClient, redisTTL)
	case config.DriverPostgres:
		if s.pool == nil {
			s.Close()
			return nil, fmt.Errorf("session storage %q needs postgres.url", cfg.Storage.Sessions)
		}
		s.sessionStore = pgstore.NewStore(s.pool)
	default:
		s.Close()
		return nil, fmt.Errorf("unknown session storage driver %q", cfg.Storage.Sessions)
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	var loader app.QuizLoader
	if s.redisClient != nil {
		loader = redisinfra.NewQuizCache(s.redisClient, s.quizStore, quizTTL, log)
		s.feed = redisinfra.NewChangeFeed(s.redisClient, log)
	} else {
		loader = memory.NewQuizCache(s.quizStore, quizTTL)
		s.feed = memory.NewBroker()
	}

	s.quizzes = app.NewQuizService(s.quizStore, loader, s.feed, log)
	s.sessions = app.NewSessionService(s.sessionStore, loader, s.feed, log)

	log.Info("storage configured",
		"quizzes", cfg.Storage.Quizzes,
		"sessions", cfg.Storage.Sessions,
		"redis", s.redisClient != nil,
	)
	return s, nil
}

func (s *stack) Close() {
	if s.redisClient != nil {
		_ = s.redisClient.Close()
	}
	if s.pool != nil {
		s.pool.Close()
	}
}
