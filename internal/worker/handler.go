package worker

import "context"

// Handler processes one job. A returned error fails the attempt; the queue
// retries it until the queue's max attempts are used up.
type Handler interface {
	Process(ctx context.Context, job *Job) (any, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, job *Job) (any, error)

func (f HandlerFunc) Process(ctx context.Context, job *Job) (any, error) {
	return f(ctx, job)
}

// FailedHandler is implemented by handlers that must react when a job fails
// for good. The pool calls OnFailed once per terminal failure: after the last
// attempt returned an error or panicked, and for jobs whose lock expired on the
// last attempt while no handler was left to report them.
type FailedHandler interface {
	OnFailed(ctx context.Context, job *Job, reason string)
}
