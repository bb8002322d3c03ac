package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/leavend/genstudio/internal/domain"
	"github.com/leavend/genstudio/internal/generation"
	"github.com/leavend/genstudio/internal/infra"
	"github.com/leavend/genstudio/internal/middleware"
	"github.com/leavend/genstudio/internal/notify"
	"github.com/leavend/genstudio/internal/queue"
)

const maxBodyBytes = 1 << 20

// JobLookup reads job state across every known queue.
type JobLookup interface {
	Find(ctx context.Context, id string) (*queue.Job, error)
	Ping(ctx context.Context) error
}

// App holds the dependencies shared by every handler.
type App struct {
	Generations   *generation.Service
	Jobs          JobLookup
	Notifications domain.NotificationRepository
	Hub           *notify.Hub
	Logger        infra.Logger
}

func NewApp(generations *generation.Service, jobs JobLookup, notifications domain.NotificationRepository, hub *notify.Hub, logger infra.Logger) *App {
	return &App{
		Generations:   generations,
		Jobs:          jobs,
		Notifications: notifications,
		Hub:           hub,
		Logger:        infra.Component(logger, "http"),
	}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, errCode, msg string) {
	a.json(w, code, map[string]string{"error": errCode, "message": msg})
}

// fail maps service errors onto HTTP responses.
func (a *App) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, queue.ErrNotFound):
		a.error(w, http.StatusNotFound, "not_found", "resource not found")
	case errors.Is(err, domain.ErrUnsupportedKind):
		a.error(w, http.StatusNotFound, "unsupported_kind", err.Error())
	case errors.Is(err, domain.ErrInvalidRequest):
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
	case errors.Is(err, queue.ErrUnavailable):
		a.error(w, http.StatusServiceUnavailable, "unavailable", "queue backend unavailable")
	default:
		a.Logger.Error().Err(err).Str("request_id", middleware.RequestIDFromContext(r.Context())).Str("path", r.URL.Path).Msg("request failed")
		a.error(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

func (a *App) currentUserID(r *http.Request) string {
	return middleware.UserIDFromContext(r.Context())
}

// requireUser writes 401 and returns "" when the request is anonymous.
func (a *App) requireUser(w http.ResponseWriter, r *http.Request) string {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
	}
	return userID
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
}
