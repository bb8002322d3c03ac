package handlers

import (
	"context"
	"net/http"
	"time"
)

func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{"status": "ok", "queue": "ok"}
	if a.Jobs != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := a.Jobs.Ping(ctx); err != nil {
			// The API keeps serving in sync mode without a queue.
			status["status"] = "degraded"
			status["queue"] = err.Error()
		}
	}
	if a.Hub != nil {
		status["connections"] = a.Hub.Connections()
	}
	a.json(w, http.StatusOK, status)
}
