package providers

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/leavend/genstudio/internal/domain"
	"github.com/leavend/genstudio/internal/infra"
)

const defaultTimeout = 2 * time.Minute

// Attempt records one invocation inside a chain.
type Attempt = domain.Attempt

// Outcome aggregates a chain run. Attempts lists every counted candidate in
// the order it was tried; skipped candidates do not appear.
type Outcome struct {
	Success    bool      `json:"success"`
	Provider   string    `json:"provider,omitempty"`
	Result     *Result   `json:"result,omitempty"`
	Attempts   []Attempt `json:"attempts"`
	FinalError string    `json:"final_error,omitempty"`
}

// InvokeFunc performs one adapter call. Callers pass nil to use Adapter.Invoke.
type InvokeFunc func(ctx context.Context, adapter Adapter, req Request) (Response, error)

// Options configures an Executor.
type Options struct {
	// Timeout bounds every single attempt.
	Timeout time.Duration
	Logger  infra.Logger
}

// Executor runs capability-specific failover chains. It never touches job or
// generation state.
type Executor struct {
	chains  map[string][]Adapter
	timeout time.Duration
	logger  infra.Logger
}

func NewExecutor(chains map[string][]Adapter, opts Options) *Executor {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	copied := make(map[string][]Adapter, len(chains))
	for capability, adapters := range chains {
		copied[capability] = append([]Adapter(nil), adapters...)
	}
	return &Executor{
		chains:  copied,
		timeout: timeout,
		logger:  infra.Component(opts.Logger, "providers"),
	}
}

// Timeout reports the per-attempt bound.
func (e *Executor) Timeout() time.Duration {
	return e.timeout
}

// Chain returns the adapter names configured for capability.
func (e *Executor) Chain(capability string) []string {
	names := make([]string, 0, len(e.chains[capability]))
	for _, a := range e.chains[capability] {
		names = append(names, a.Name())
	}
	return names
}

// Capabilities lists configured capabilities in sorted order.
func (e *Executor) Capabilities() []string {
	out := make([]string, 0, len(e.chains))
	for c := range e.chains {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Execute tries each candidate for capability in order and stops at the
// first success. Only a Go error returned by an adapter escapes as err.
func (e *Executor) Execute(ctx context.Context, capability string, req Request, invoke InvokeFunc) (Outcome, error) {
	if invoke == nil {
		invoke = func(ctx context.Context, a Adapter, r Request) (Response, error) { return a.Invoke(ctx, r) }
	}
	req.Capability = capability
	logger := e.logger.With().Str("capability", capability).Str("request_id", req.ID).Logger()

	out := Outcome{Attempts: []Attempt{}}
	for _, adapter := range e.chains[capability] {
		if err := ctx.Err(); err != nil {
			out.FinalError = fmt.Sprintf("aborted: %v", err)
			return out, nil
		}
		if !adapter.Supports(capability) {
			logger.Warn().Str("provider", adapter.Name()).Str("reason", "unsupported").Msg("providers: candidate skipped")
			continue
		}
		if err := adapter.Available(ctx); err != nil {
			logger.Warn().Err(err).Str("provider", adapter.Name()).Str("reason", "not_configured").Msg("providers: candidate skipped")
			continue
		}

		start := time.Now()
		resp, err := e.call(ctx, adapter, req, invoke)
		elapsed := time.Since(start)
		if err != nil {
			return out, fmt.Errorf("provider %s: %w", adapter.Name(), err)
		}

		attempt := Attempt{Provider: adapter.Name(), DurationMS: elapsed.Milliseconds()}
		switch {
		case resp.Status == StatusCompleted && resp.Result != nil:
			attempt.Success = true
			out.Attempts = append(out.Attempts, attempt)
			out.Success = true
			out.Provider = adapter.Name()
			out.Result = resp.Result
			event := logger.Info()
			if len(out.Attempts) > 1 {
				event = event.Int("failed_before", len(out.Attempts)-1)
			}
			event.Str("provider", adapter.Name()).Dur("duration", elapsed).Msg("providers: attempt succeeded")
			return out, nil
		case resp.Status == StatusCompleted:
			attempt.Error = "provider returned no result"
		default:
			attempt.Error = resp.Error
			if attempt.Error == "" {
				attempt.Error = "provider reported failure"
			}
		}
		out.Attempts = append(out.Attempts, attempt)
		logger.Error().Str("provider", adapter.Name()).Str("error", attempt.Error).Dur("duration", elapsed).Msg("providers: attempt failed")
	}

	if len(out.Attempts) == 0 {
		out.FinalError = fmt.Sprintf("%v for capability %s", ErrNoProvider, capability)
		logger.Error().Msg("providers: no provider configured")
		return out, nil
	}
	out.FinalError = summarize(out.Attempts)
	return out, nil
}

// call races the invocation against the per-attempt timeout. A timed-out
// call keeps running until its context cancellation is observed, but its
// response is discarded.
func (e *Executor) call(ctx context.Context, adapter Adapter, req Request, invoke InvokeFunc) (Response, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	type reply struct {
		resp Response
		err  error
	}
	done := make(chan reply, 1)
	go func() {
		resp, err := invoke(callCtx, adapter, req)
		done <- reply{resp: resp, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return Failed("timeout after %s", e.timeout), nil
		}
		return r.resp, r.err
	case <-callCtx.Done():
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return Failed("timeout after %s", e.timeout), nil
		}
		return Failed("cancelled: %v", callCtx.Err()), nil
	}
}

func summarize(attempts []Attempt) string {
	parts := make([]string, 0, len(attempts))
	for _, a := range attempts {
		parts = append(parts, a.Provider+": "+a.Error)
	}
	return "all providers failed (" + strings.Join(parts, "; ") + ")"
}
