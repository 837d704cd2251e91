package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors of the quiz play service.
type Metrics struct {
	registry *prometheus.Registry

	RequestCounter  *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	WebSockets      *prometheus.GaugeVec
	DBConnPool      *prometheus.GaugeVec
	PlayersJoined   prometheus.Counter
	AnswersTotal    *prometheus.CounterVec
	PointsAwarded   prometheus.Counter
	PlaysCompleted  prometheus.Counter
	FinalScore      prometheus.Histogram
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		RequestCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "quizplay",
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"route", "method", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "quizplay",
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"route", "method"},
		),
		WebSockets: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "quizplay",
				Subsystem: "ws",
				Name:      "connections",
				Help:      "Open websocket connections",
			},
			[]string{"stream"}, // play, session, quizzes
		),
		DBConnPool: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "quizplay",
				Subsystem: "postgres",
				Name:      "connection_pool",
				Help:      "Database connection pool statistics",
			},
			[]string{"stat"}, // total, idle, acquired
		),
		PlayersJoined: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "quizplay",
			Subsystem: "play",
			Name:      "players_joined_total",
			Help:      "Players that joined a game session",
		}),
		AnswersTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "quizplay",
				Subsystem: "play",
				Name:      "answers_total",
				Help:      "Answers submitted, by correctness",
			},
			[]string{"correct"},
		),
		PointsAwarded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "quizplay",
			Subsystem: "play",
			Name:      "points_awarded_total",
			Help:      "Points awarded across all plays",
		}),
		PlaysCompleted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "quizplay",
			Subsystem: "play",
			Name:      "completed_total",
			Help:      "Plays that reached the results screen",
		}),
		FinalScore: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "quizplay",
			Subsystem: "play",
			Name:      "final_score",
			Help:      "Score at the results screen",
			Buckets:   prometheus.LinearBuckets(0, 100, 11),
		}),
	}
}

// Handler exposes the registry for scraping.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry is exposed for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// PlayerJoined, AnswerScored and PlayCompleted make Metrics an app.PlayObserver.
func (m *Metrics) PlayerJoined() {
	m.PlayersJoined.Inc()
}

func (m *Metrics) AnswerScored(correct bool, points int) {
	m.AnswersTotal.WithLabelValues(strconv.FormatBool(correct)).Inc()
	m.PointsAwarded.Add(float64(points))
}

func (m *Metrics) PlayCompleted(score int) {
	m.PlaysCompleted.Inc()
	m.FinalScore.Observe(float64(score))
}

// ObservePool records a pgx pool snapshot.
func (m *Metrics) ObservePool(total, idle, acquired int32) {
	m.DBConnPool.WithLabelValues("total").Set(float64(total))
	m.DBConnPool.WithLabelValues("idle").Set(float64(idle))
	m.DBConnPool.WithLabelValues("acquired").Set(float64(acquired))
}

// Middleware records request counts and durations by chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.RequestDuration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
		m.RequestCounter.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
	})
}
