package http

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"quizplay-service/internal/app"
	"quizplay-service/internal/domain"
	"quizplay-service/internal/infra/memory"
	"quizplay-service/internal/metrics"
)

type fixture struct {
	server  *httptest.Server
	store   *memory.Store
	metrics *metrics.Metrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.NewStore()
	store.Seed(sampleQuiz())
	broker := memory.NewBroker()
	cache := memory.NewQuizCache(store, time.Minute)

	quizzes := app.NewQuizService(store, cache, broker, log)
	sessions := app.NewSessionService(store, cache, broker, log)
	m := metrics.New()

	play := app.PlayConfig{RevealDwell: 150 * time.Millisecond, Observer: m}
	router := NewRouter(RouterConfig{
		REST:    NewRESTHandler(quizzes, sessions, log),
		WS:      NewWSHandler(quizzes, sessions, play, m, log, nil),
		Metrics: m,
		Logger:  log,
	})
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return &fixture{server: server, store: store, metrics: m}
}

func (f *fixture) dial(t *testing.T, path string) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(f.server.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", path, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func (f *fixture) do(t *testing.T, method, path, user string, body any) (int, envelopeResponse) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = strings.NewReader(string(raw))
	}
	req, err := http.NewRequest(method, f.server.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if user != "" {
		req.Header.Set(UserHeader, user)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	var env envelopeResponse
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decode %s %s: %v", method, path, err)
	}
	return resp.StatusCode, env
}

type envelopeResponse struct {
	Error   bool            `json:"error"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

type wsMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func readMessage(t *testing.T, conn *websocket.Conn) wsMessage {
	t.Helper()
	var msg wsMessage
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read json: %v", err)
	}
	return msg
}

// readState skips messages until a state in the wanted phase arrives.
func readState(t *testing.T, conn *websocket.Conn, phase string) stateView {
	t.Helper()
	for i := 0; i < 10; i++ {
		msg := readMessage(t, conn)
		if msg.Type != "state" {
			continue
		}
		var state stateView
		if err := json.Unmarshal(msg.Payload, &state); err != nil {
			t.Fatalf("decode state: %v", err)
		}
		if state.Phase == phase {
			return state
		}
	}
	t.Fatalf("no %s state received", phase)
	return stateView{}
}

func send(t *testing.T, conn *websocket.Conn, typ string, payload any) {
	t.Helper()
	if err := conn.WriteJSON(map[string]any{"type": typ, "payload": payload}); err != nil {
		t.Fatalf("write %s: %v", typ, err)
	}
}

func sampleQuiz() domain.Quiz {
	return domain.Quiz{
		ID:      "quiz-1",
		Title:   "Capitals",
		OwnerID: "host-1",
		Active:  true,
		Questions: []domain.Question{
			{
				ID:            "q1",
				QuizID:        "quiz-1",
				Text:          "Capital of France?",
				Options:       []string{"Berlin", "Paris", "Rome", "Madrid"},
				CorrectOption: 1,
				Points:        100,
				Position:      0,
			},
			{
				ID:            "q2",
				QuizID:        "quiz-1",
				Text:          "Capital of Japan?",
				Options:       []string{"Osaka", "Kyoto", "Tokyo", "Nagoya"},
				CorrectOption: 2,
				Points:        100,
				Position:      1,
			},
		},
	}
}
