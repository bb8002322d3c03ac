package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/leavend/genstudio/internal/queue"
)

// Job is the handler's view of a claimed queue job.
type Job struct {
	ID           string
	Queue        string
	Data         json.RawMessage
	AttemptsMade int
	MaxAttempts  int

	raw  *queue.Job
	pool *Pool
}

// Decode unmarshals the job payload into v.
func (j *Job) Decode(v any) error {
	if err := json.Unmarshal(j.Data, v); err != nil {
		return fmt.Errorf("decode %s job %s: %w", j.Queue, j.ID, err)
	}
	return nil
}

// Final reports whether a failure of this attempt is terminal.
func (j *Job) Final() bool {
	return j.AttemptsMade >= j.MaxAttempts
}

// Progress records 0-100 progress. It is observability only; a lost lock is
// reported so the handler can tell it no longer owns the job.
func (j *Job) Progress(ctx context.Context, pct int) error {
	if j.pool == nil {
		return nil
	}
	return j.pool.backend.Progress(ctx, j.pool.cfg, j.raw, pct)
}

func newJob(p *Pool, raw *queue.Job) *Job {
	return &Job{
		ID:           raw.ID,
		Queue:        raw.Queue,
		Data:         raw.Data,
		AttemptsMade: raw.AttemptsMade,
		MaxAttempts:  raw.MaxAttempts,
		raw:          raw,
		pool:         p,
	}
}

// stalledJob wraps a job that is already terminal. Nobody holds its lock, so
// it reports no progress.
func stalledJob(raw *queue.Job) *Job {
	return &Job{
		ID:           raw.ID,
		Queue:        raw.Queue,
		Data:         raw.Data,
		AttemptsMade: raw.AttemptsMade,
		MaxAttempts:  raw.MaxAttempts,
		raw:          raw,
	}
}

// NewDetachedJob wraps a payload that bypasses the queue, such as the
// synchronous fallback path. It has exactly one attempt.
func NewDetachedJob(queueName, id string, data json.RawMessage) *Job {
	return &Job{ID: id, Queue: queueName, Data: data, AttemptsMade: 1, MaxAttempts: 1}
}
