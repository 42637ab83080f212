package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/letsssgooo/quizResults/internal/cache"
	"github.com/letsssgooo/quizResults/internal/domain/models"
	"github.com/letsssgooo/quizResults/internal/submission"
)

// Handler обслуживает HTTP API результатов тестов.
type Handler struct {
	deps Deps
	log  *slog.Logger
}

// NewHandler создаёт Handler.
func NewHandler(deps Deps) *Handler {
	log := deps.Log
	if log == nil {
		log = slog.Default()
	}

	return &Handler{
		deps: deps,
		log:  log.With(slog.String("component", "api")),
	}
}

// RegisterRoutes регистрирует маршруты API и проверки состояния.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/save-test-result", h.saveTestResult)
	r.Get("/tests", h.tests)
	r.Get("/leaderboard", h.leaderboard)

	r.Route("/api", func(r chi.Router) {
		r.Get("/user-tests-count", h.userTestsCount)
		r.Get("/topusers", h.topUsers)
	})

	r.Get("/livez", h.livez)
	r.Get("/readyz", h.readyz)
}

func (h *Handler) saveTestResult(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		h.respondSubmission(w, r, submission.ErrMalformed)
		return
	}

	s, err := submission.Decode(body, r.Header.Get(HeaderSignature))
	if err != nil {
		h.respondSubmission(w, r, err)
		return
	}

	h.respondSubmission(w, r, h.deps.Gate.Submit(r.Context(), s))
}

// respondSubmission переводит результат Submit в HTTP-ответ.
func (h *Handler) respondSubmission(w http.ResponseWriter, r *http.Request, err error) {
	if err == nil {
		h.observe(outcomeAccepted)
		writeJSON(w, http.StatusOK, SuccessResponse{Success: true})
		return
	}

	for _, rej := range rejections {
		if errors.Is(err, rej.err) {
			h.observe(rej.outcome)
			h.log.Debug("submission rejected",
				slog.String("outcome", rej.outcome),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			)
			writeError(w, rej.status, rej.message)
			return
		}
	}

	h.observe(outcomeError)
	h.fail(w, r, http.StatusInternalServerError, msgSaveFailed, err)
}

func (h *Handler) tests(w http.ResponseWriter, r *http.Request) {
	userID, ok := queryUserID(w, r)
	if !ok {
		return
	}

	tests, err := h.deps.Results.ListByUser(r.Context(), userID)
	if err != nil {
		h.fail(w, r, http.StatusInternalServerError, msgTestsFailed, err)
		return
	}

	if tests == nil {
		tests = []models.UserTest{}
	}

	writeJSON(w, http.StatusOK, tests)
}

func (h *Handler) userTestsCount(w http.ResponseWriter, r *http.Request) {
	userID, ok := queryUserID(w, r)
	if !ok {
		return
	}

	count, err := h.deps.Results.CountByUser(r.Context(), userID)
	if err != nil {
		h.fail(w, r, http.StatusInternalServerError, msgCountFailed, err)
		return
	}

	writeJSON(w, http.StatusOK, CountResponse{TestsCount: count})
}

func (h *Handler) topUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.deps.TopUsers.Get(r.Context())
	if errors.Is(err, cache.ErrNotReady) {
		writeError(w, http.StatusInternalServerError, msgTopUsersMiss)
		return
	}
	if err != nil {
		h.fail(w, r, http.StatusInternalServerError, msgTopUsersFailed, err)
		return
	}

	if users == nil {
		users = []models.TopUser{}
	}

	writeJSON(w, http.StatusOK, users)
}

func (h *Handler) leaderboard(w http.ResponseWriter, r *http.Request) {
	entries, err := h.deps.Leaderboard.Get(r.Context())
	if err != nil {
		h.fail(w, r, http.StatusInternalServerError, msgLeaderboardFail, err)
		return
	}

	if entries == nil {
		entries = []models.LeaderboardEntry{}
	}

	writeJSON(w, http.StatusOK, entries)
}

func (h *Handler) livez(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) readyz(w http.ResponseWriter, r *http.Request) {
	if h.deps.Ready == nil {
		w.WriteHeader(http.StatusOK)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeoutReady)
	defer cancel()

	if err := h.deps.Ready(ctx); err != nil {
		h.log.Warn("readiness check failed", slog.Any("error", err))
		writeError(w, http.StatusServiceUnavailable, msgNotReady)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// fail логирует сбой, отправляет его в журнал ошибок и отвечает общим сообщением.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, status int, message string, err error) {
	attrs := []slog.Attr{
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	}

	h.log.LogAttrs(r.Context(), slog.LevelError, message, append(attrs, slog.Any("error", err))...)

	if h.deps.Errors != nil {
		h.deps.Errors.Record(message, err, attrs...)
	}

	writeError(w, status, message)
}

func (h *Handler) observe(outcome string) {
	if h.deps.Metrics != nil {
		h.deps.Metrics.ObserveSubmission(outcome)
	}
}

// queryUserID читает обязательный целый параметр user_id.
func queryUserID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	userID, err := strconv.ParseInt(r.URL.Query().Get("user_id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidUserID)
		return 0, false
	}

	return userID, true
}
