package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/leavend/genstudio/internal/middleware"
	"github.com/leavend/genstudio/internal/queue"
)

type jobTimestamps struct {
	Created   time.Time  `json:"created"`
	Processed *time.Time `json:"processed,omitempty"`
	Finished  *time.Time `json:"finished,omitempty"`
}

type jobStatus struct {
	ID           string          `json:"id"`
	Queue        string          `json:"queue"`
	State        queue.State     `json:"state"`
	Progress     int             `json:"progress"`
	Data         json.RawMessage `json:"data"`
	Result       json.RawMessage `json:"result,omitempty"`
	FailedReason string          `json:"failedReason,omitempty"`
	AttemptsMade int             `json:"attemptsMade"`
	Timestamps   jobTimestamps   `json:"timestamps"`
}

// JobStatus looks a job up across every known queue. Jobs carrying another
// user's id are reported as missing unless the caller is an operator.
func (a *App) JobStatus(w http.ResponseWriter, r *http.Request) {
	userID := a.requireUser(w, r)
	if userID == "" {
		return
	}
	job, err := a.Jobs.Find(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if middleware.RoleFromContext(r.Context()) != middleware.RoleOperator && !ownedBy(job.Data, userID) {
		a.error(w, http.StatusNotFound, "not_found", "job not found")
		return
	}
	a.json(w, http.StatusOK, jobStatus{
		ID:           job.ID,
		Queue:        job.Queue,
		State:        job.State,
		Progress:     job.Progress,
		Data:         job.Data,
		Result:       job.Result,
		FailedReason: job.FailedReason,
		AttemptsMade: job.AttemptsMade,
		Timestamps: jobTimestamps{
			Created:   job.CreatedAt,
			Processed: job.ProcessedAt,
			Finished:  job.FinishedAt,
		},
	})
}

func ownedBy(data json.RawMessage, userID string) bool {
	var owner struct {
		UserID string `json:"user_id"`
	}
	if err := json.Unmarshal(data, &owner); err != nil {
		return false
	}
	return owner.UserID == userID
}
