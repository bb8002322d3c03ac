package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/leavend/genstudio/internal/domain"
)

// ListNotifications is the catch-up fetch clients run after reconnecting.
func (a *App) ListNotifications(w http.ResponseWriter, r *http.Request) {
	userID := a.requireUser(w, r)
	if userID == "" {
		return
	}
	unread, _ := strconv.ParseBool(r.URL.Query().Get("unread"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	items, err := a.Notifications.ListForUser(r.Context(), userID, unread, limit)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if items == nil {
		items = []domain.Notification{}
	}
	a.json(w, http.StatusOK, map[string]any{"items": items})
}

func (a *App) MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	userID := a.requireUser(w, r)
	if userID == "" {
		return
	}
	if err := a.Notifications.MarkRead(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *App) MarkAllNotificationsRead(w http.ResponseWriter, r *http.Request) {
	userID := a.requireUser(w, r)
	if userID == "" {
		return
	}
	n, err := a.Notifications.MarkAllRead(r.Context(), userID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]int64{"updated": n})
}

// Live upgrades to the per-user push channel.
func (a *App) Live(w http.ResponseWriter, r *http.Request) {
	userID := a.requireUser(w, r)
	if userID == "" {
		return
	}
	a.Hub.ServeWS(w, r, userID)
}
