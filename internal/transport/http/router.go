package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"quizplay-service/internal/metrics"
)

// RouterConfig collects what NewRouter mounts. Metrics may be nil.
type RouterConfig struct {
	REST           *RESTHandler
	WS             *WSHandler
	Metrics        *metrics.Metrics
	Logger         *slog.Logger
	AllowedOrigins []string
}

func NewRouter(cfg RouterConfig) http.Handler {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	mux := chi.NewRouter()
	mux.Use(middleware.RequestID)
	mux.Use(middleware.RealIP)
	mux.Use(requestLogger(log))
	mux.Use(middleware.Recoverer)
	mux.Use(corsHandler(cfg.AllowedOrigins))
	if cfg.Metrics != nil {
		mux.Use(cfg.Metrics.Middleware)
		mux.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())
	}

	mux.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"}, "")
	})

	mux.Route("/quizzes", func(r chi.Router) {
		r.Get("/", cfg.REST.ListActiveQuizzes)
		r.Post("/", cfg.REST.CreateQuiz)
		r.Get("/mine", cfg.REST.ListMyQuizzes)
		r.Get("/{quizID}", cfg.REST.GetQuiz)
		r.Put("/{quizID}/active", cfg.REST.SetQuizActive)
		r.Post("/{quizID}/sessions", cfg.REST.CreateSession)
	})

	mux.Route("/sessions", func(r chi.Router) {
		r.Get("/{sessionID}", cfg.REST.GetSession)
		r.Post("/{sessionID}/players", cfg.REST.JoinSession)
		r.Get("/{sessionID}/leaderboard", cfg.REST.GetLeaderboard)
	})

	mux.Route("/ws", func(r chi.Router) {
		r.Get("/play", cfg.WS.ServePlay)
		r.Get("/sessions/{sessionID}", cfg.WS.ServeSession)
		r.Get("/quizzes", cfg.WS.ServeQuizzes)
	})

	return mux
}

func corsHandler(origins []string) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		return cors.AllowAll().Handler
	}
	return cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", UserHeader},
		MaxAge:         300,
	})
}

func requestLogger(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Debug("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}
