package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/spf13/cobra"

	"quizplay-service/internal/app"
	"quizplay-service/internal/config"
	"quizplay-service/internal/metrics"
	transport "quizplay-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, log, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg, log); err != nil {
			return err
		}
	}

	finalPort := resolvePort(portFlag, cfg)

	s, err := buildStack(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer s.Close()

	if cfg.Storage.Quizzes == config.DriverMemory || cfg.Storage.Seed {
		existing, err := s.quizzes.ListActive(ctx)
		if err != nil {
			return err
		}
		if len(existing) == 0 {
			if err := seedQuizzes(ctx, s.quizzes, "demo-host", log); err != nil {
				return err
			}
		}
	}

	play := app.PlayConfig{
		RevealDwell:    config.TTLDuration(cfg.Play.RevealDwell, app.DefaultRevealDwell),
		StorageTimeout: config.TTLDuration(cfg.Play.StorageTimeout, app.DefaultStorageTimeout),
	}
	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
		play.Observer = m
	}

	handler := transport.NewRouter(transport.RouterConfig{
		REST:           transport.NewRESTHandler(s.quizzes, s.sessions, log),
		WS:             transport.NewWSHandler(s.quizzes, s.sessions, play, m, log, cfg.Server.AllowedOrigins),
		Metrics:        m,
		Logger:         log,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	})

	// Websocket connections outlive any write timeout, so only headers are bounded.
	server := &http.Server{
		Addr:              ":" + finalPort,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	poolCtx, stopPool := context.WithCancel(ctx)
	defer stopPool()
	if s.pool != nil && m != nil {
		go reportPoolStats(poolCtx, s.pool, m)
	}

	go func() {
		log.Info("starting quiz service", "port", finalPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("failed to start server", "error", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	select {
	case <-stop:
		log.Info("shutting down server")
	case <-ctx.Done():
		log.Info("context canceled, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// resolvePort prefers the flag (or PORT), then server.port from config.
func resolvePort(flag string, cfg config.Config) string {
	if flag != "" {
		return flag
	}
	if cfg.Server.Port != "" {
		return cfg.Server.Port
	}
	return "8080"
}

func reportPoolStats(ctx context.Context, pool *pgxpool.Pool, m *metrics.Metrics) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		stat := pool.Stat()
		m.ObservePool(stat.TotalConns(), stat.IdleConns(), stat.AcquiredConns())
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
