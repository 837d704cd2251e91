package http

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"quizplay-service/internal/app"
)

// UserHeader carries the authenticated author's id, set by the gateway in front of the service.
const UserHeader = "X-User-ID"

type RESTHandler struct {
	quizzes  *app.QuizService
	sessions *app.SessionService
	log      *slog.Logger
}

func NewRESTHandler(quizzes *app.QuizService, sessions *app.SessionService, log *slog.Logger) *RESTHandler {
	if log == nil {
		log = slog.Default()
	}
	return &RESTHandler{quizzes: quizzes, sessions: sessions, log: log}
}

func userID(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(UserHeader))
}

func (h *RESTHandler) CreateQuiz(w http.ResponseWriter, r *http.Request) {
	owner := userID(r)
	if owner == "" {
		writeErrorMessage(w, http.StatusUnauthorized, "missing "+UserHeader+" header")
		return
	}
	var draft app.QuizDraft
	if err := decodeJSON(w, r, &draft); err != nil {
		writeError(w, err)
		return
	}
	quiz, err := h.quizzes.CreateQuiz(r.Context(), owner, draft)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	// The author gets the full quiz back, answers included.
	writeJSON(w, http.StatusCreated, quiz, "quiz created")
}

func (h *RESTHandler) ListActiveQuizzes(w http.ResponseWriter, r *http.Request) {
	quizzes, err := h.quizzes.ListActive(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newQuizViews(quizzes), "")
}

func (h *RESTHandler) ListMyQuizzes(w http.ResponseWriter, r *http.Request) {
	owner := userID(r)
	if owner == "" {
		writeErrorMessage(w, http.StatusUnauthorized, "missing "+UserHeader+" header")
		return
	}
	quizzes, err := h.quizzes.ListOwned(r.Context(), owner)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newQuizViews(quizzes), "")
}

func (h *RESTHandler) GetQuiz(w http.ResponseWriter, r *http.Request) {
	quiz, err := h.quizzes.LoadQuiz(r.Context(), chi.URLParam(r, "quizID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newQuizView(quiz), "")
}

type setActiveRequest struct {
	Active *bool `json:"active"`
}

func (h *RESTHandler) SetQuizActive(w http.ResponseWriter, r *http.Request) {
	var req setActiveRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Active == nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid active: required")
		return
	}
	quizID := chi.URLParam(r, "quizID")
	if err := h.quizzes.SetActive(r.Context(), quizID, *req.Active); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": quizID, "active": *req.Active}, "quiz updated")
}

func (h *RESTHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.sessions.CreateSession(r.Context(), chi.URLParam(r, "quizID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, session, "game session created")
}

func (h *RESTHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.sessions.Snapshot(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshot, "")
}

type joinRequest struct {
	Name string `json:"name"`
}

func (h *RESTHandler) JoinSession(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	player, err := h.sessions.JoinSession(r.Context(), chi.URLParam(r, "sessionID"), req.Name)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, player, "joined")
}

func (h *RESTHandler) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.sessions.Snapshot(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshot.Leaderboard, "")
}

func (h *RESTHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.log.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeErrorMessage(w, status, err.Error())
}
