package queue

import (
	"context"
	"time"
)

// Backend stores jobs and enforces claim semantics. Implementations must make
// Claim atomic: a job is handed to at most one claimant until its lock
// expires or it is reported on.
type Backend interface {
	// Add stores a waiting job unless one with the same id already exists;
	// created is false in that case and the existing job is returned.
	Add(ctx context.Context, cfg Config, id string, data []byte) (job *Job, created bool, err error)
	// Claim promotes due delayed jobs, recovers jobs with expired locks and
	// then claims the oldest waiting job. It returns ErrEmpty if none is ready.
	Claim(ctx context.Context, cfg Config, token string) (*Job, error)
	Complete(ctx context.Context, cfg Config, job *Job, result []byte) error
	// Fail schedules a retry or, when attempts are exhausted, marks the job
	// failed. It returns the resulting state.
	Fail(ctx context.Context, cfg Config, job *Job, reason string) (State, error)
	Progress(ctx context.Context, cfg Config, job *Job, progress int) error
	// TakeStalled returns the jobs that Claim failed terminally because their
	// lock expired on the last attempt, and forgets them. Each such job is
	// returned to exactly one caller.
	TakeStalled(ctx context.Context, cfg Config) ([]*Job, error)
	Get(ctx context.Context, queue, id string) (*Job, error)
	Counts(ctx context.Context, queue string) (map[State]int64, error)
	Ping(ctx context.Context) error
}

// Clock returns the current time. Backends accept one so tests can move time
// without sleeping.
type Clock func() time.Time
