package handlers

import (
	"net/http"

	"github.com/leavend/genstudio/internal/generation"
)

// Broadcast enqueues a notification for a list of users. The fanout queue
// delivers it.
func (a *App) Broadcast(w http.ResponseWriter, r *http.Request) {
	var req generation.Broadcast
	if err := decode(w, r, &req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if err := req.Validate(); err != nil {
		a.fail(w, r, err)
		return
	}
	handle, err := a.Generations.Broadcast(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusAccepted, map[string]any{"job_id": handle.ID, "queue": handle.Queue, "recipients": len(req.UserIDs)})
}
