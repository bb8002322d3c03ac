package queue

import (
	"encoding/json"
	"errors"
	"time"
)

// State is the lifecycle position of a job inside its queue.
type State string

const (
	StateWaiting   State = "waiting"
	StateActive    State = "active"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateDelayed   State = "delayed"
)

// Terminal reports whether the job will never be claimed again.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

var (
	// ErrUnavailable is returned when the backend cannot be reached. Callers
	// use it to fall back to synchronous execution.
	ErrUnavailable = errors.New("queue backend unavailable")
	// ErrNotFound is returned for unknown or garbage-collected jobs.
	ErrNotFound = errors.New("job not found")
	// ErrLockLost is returned when a worker reports on a job whose claim
	// expired and was handed to another worker.
	ErrLockLost = errors.New("job lock lost")
	// ErrUnknownQueue is returned for queue names without a registered config.
	ErrUnknownQueue = errors.New("unknown queue")
	// ErrEmpty is returned by Claim when no job is ready.
	ErrEmpty = errors.New("queue empty")
)

// Job is one unit of work. Identity is Queue + ID.
type Job struct {
	ID           string          `json:"id"`
	Queue        string          `json:"queue"`
	Data         json.RawMessage `json:"data"`
	State        State           `json:"state"`
	Progress     int             `json:"progress"`
	AttemptsMade int             `json:"attemptsMade"`
	MaxAttempts  int             `json:"maxAttempts"`
	FailedReason string          `json:"failedReason,omitempty"`
	Result       json.RawMessage `json:"result,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
	ProcessedAt  *time.Time      `json:"processedAt,omitempty"`
	FinishedAt   *time.Time      `json:"finishedAt,omitempty"`

	// Token identifies the claim currently holding the job. It is empty
	// unless the job is active.
	Token string `json:"-"`
}

// Final reports whether the current attempt is the last one allowed.
func (j *Job) Final() bool {
	return j.AttemptsMade >= j.MaxAttempts
}

func (j *Job) clone() *Job {
	cp := *j
	cp.Data = append(json.RawMessage(nil), j.Data...)
	if j.Result != nil {
		cp.Result = append(json.RawMessage(nil), j.Result...)
	}
	if j.ProcessedAt != nil {
		t := *j.ProcessedAt
		cp.ProcessedAt = &t
	}
	if j.FinishedAt != nil {
		t := *j.FinishedAt
		cp.FinishedAt = &t
	}
	return &cp
}
