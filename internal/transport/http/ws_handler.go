package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"quizplay-service/internal/app"
	"quizplay-service/internal/metrics"
)

type WSHandler struct {
	quizzes  *app.QuizService
	sessions *app.SessionService
	play     app.PlayConfig
	metrics  *metrics.Metrics
	log      *slog.Logger
	upgrader websocket.Upgrader
}

// NewWSHandler wires the websocket streams. play is the template for every
// per-connection controller; its OnChange is replaced. m may be nil.
func NewWSHandler(quizzes *app.QuizService, sessions *app.SessionService, play app.PlayConfig, m *metrics.Metrics, log *slog.Logger, allowedOrigins []string) *WSHandler {
	if log == nil {
		log = slog.Default()
	}
	return &WSHandler{
		quizzes:  quizzes,
		sessions: sessions,
		play:     play,
		metrics:  m,
		log:      log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(allowed) == 0 {
			return true
		}
		for _, a := range allowed {
			if a == "*" || strings.EqualFold(a, origin) {
				return true
			}
		}
		return false
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type joinPayload struct {
	Name string `json:"name"`
}

type selectPayload struct {
	Option *int `json:"option"`
}

type outboundMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

func errorMessage(msg string) outboundMessage {
	return outboundMessage{Type: "error", Payload: errorPayload{Message: msg}}
}

// wsConn owns the single writer goroutine of a websocket. Every producer goes
// through push, which gives up once the writer or the connection is gone.
type wsConn struct {
	ws           *websocket.Conn
	log          *slog.Logger
	send         chan outboundMessage
	closeSignals chan struct{}
	writerDone   chan struct{}
}

func newWSConn(ws *websocket.Conn, log *slog.Logger) *wsConn {
	c := &wsConn{
		ws:           ws,
		log:          log,
		send:         make(chan outboundMessage, 16),
		closeSignals: make(chan struct{}),
		writerDone:   make(chan struct{}),
	}
	go c.writeLoop()
	return c
}

func (c *wsConn) writeLoop() {
	defer close(c.writerDone)
	for msg := range c.send {
		if err := c.ws.WriteJSON(msg); err != nil {
			c.log.Debug("ws write error", "error", err)
			return
		}
	}
}

func (c *wsConn) push(msg outboundMessage) bool {
	select {
	case c.send <- msg:
		return true
	case <-c.closeSignals:
		return false
	case <-c.writerDone:
		return false
	}
}

// stopProducers must be called once the read loop has ended and before finish.
func (c *wsConn) stopProducers() {
	close(c.closeSignals)
}

// finish drains the writer; no producer may push afterwards.
func (c *wsConn) finish() {
	close(c.send)
	<-c.writerDone
}

// discardReads blocks until the client goes away.
func (c *wsConn) discardReads() {
	for {
		if _, _, err := c.ws.NextReader(); err != nil {
			return
		}
	}
}

func (h *WSHandler) track(stream string) func() {
	if h.metrics == nil {
		return func() {}
	}
	gauge := h.metrics.WebSockets.WithLabelValues(stream)
	gauge.Inc()
	return gauge.Dec
}

// ServePlay runs one participant's play through a dedicated controller.
func (h *WSHandler) ServePlay(w http.ResponseWriter, r *http.Request) {
	quizID := r.URL.Query().Get("quizId")
	if quizID == "" {
		writeErrorMessage(w, http.StatusBadRequest, "missing quizId")
		return
	}
	quiz, err := h.quizzes.LoadQuiz(r.Context(), quizID)
	if err != nil {
		writeError(w, err)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", "error", err)
		return
	}
	defer ws.Close()
	defer h.track("play")()

	conn := newWSConn(ws, h.log)
	cfg := h.play
	cfg.Logger = h.log
	cfg.OnChange = func(s app.PlayState) {
		conn.push(outboundMessage{Type: "state", Payload: newStateView(quiz.Title, s)})
	}
	controller := app.NewPlayController(quiz, h.sessions, cfg)
	conn.push(outboundMessage{Type: "state", Payload: newStateView(quiz.Title, controller.State())})

	ctx := r.Context()
	for {
		var inbound inboundMessage
		if err := ws.ReadJSON(&inbound); err != nil {
			break
		}
		h.dispatchPlay(ctx, conn, controller, inbound)
	}

	conn.stopProducers()
	controller.Close()
	conn.finish()
}

func (h *WSHandler) dispatchPlay(ctx context.Context, conn *wsConn, controller *app.PlayController, inbound inboundMessage) {
	switch inbound.Type {
	case "join":
		var payload joinPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			conn.push(errorMessage("invalid join payload"))
			return
		}
		if err := controller.Join(ctx, payload.Name); err != nil {
			conn.push(errorMessage(err.Error()))
		}
	case "select":
		var payload selectPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil || payload.Option == nil {
			conn.push(errorMessage("invalid select payload"))
			return
		}
		if !controller.SelectOption(ctx, *payload.Option) {
			conn.push(errorMessage("no question is awaiting an answer"))
		}
	case "restart":
		if err := controller.Restart(); err != nil {
			conn.push(errorMessage(err.Error()))
		}
	default:
		conn.push(errorMessage("unsupported message type"))
	}
}

// ServeSession streams a session's row and leaderboard until the client leaves.
func (h *WSHandler) ServeSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sessions, stopSessions, err := h.sessions.WatchSession(ctx, sessionID)
	if err != nil {
		writeError(w, err)
		return
	}
	defer stopSessions()
	boards, stopBoards, err := h.sessions.WatchScores(ctx, sessionID)
	if err != nil {
		writeError(w, err)
		return
	}
	defer stopBoards()

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", "error", err)
		return
	}
	defer ws.Close()
	defer h.track("session")()

	conn := newWSConn(ws, h.log)
	forwardDone := make(chan struct{})
	go func() {
		defer close(forwardDone)
		for sessions != nil || boards != nil {
			select {
			case s, ok := <-sessions:
				if !ok {
					sessions = nil
					continue
				}
				if !conn.push(outboundMessage{Type: "session", Payload: s}) {
					return
				}
			case lb, ok := <-boards:
				if !ok {
					boards = nil
					continue
				}
				if !conn.push(outboundMessage{Type: "leaderboard", Payload: lb}) {
					return
				}
			case <-conn.closeSignals:
				return
			}
		}
	}()

	conn.discardReads()
	conn.stopProducers()
	<-forwardDone
	conn.finish()
}

// ServeQuizzes streams the active quiz catalogue.
func (h *WSHandler) ServeQuizzes(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	updates, stop, err := h.quizzes.WatchActive(ctx)
	if err != nil {
		writeError(w, err)
		return
	}
	defer stop()

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", "error", err)
		return
	}
	defer ws.Close()
	defer h.track("quizzes")()

	conn := newWSConn(ws, h.log)
	forwardDone := make(chan struct{})
	go func() {
		defer close(forwardDone)
		for {
			select {
			case quizzes, ok := <-updates:
				if !ok {
					return
				}
				if !conn.push(outboundMessage{Type: "quizzes", Payload: newQuizViews(quizzes)}) {
					return
				}
			case <-conn.closeSignals:
				return
			}
		}
	}()

	conn.discardReads()
	conn.stopProducers()
	<-forwardDone
	conn.finish()
}
