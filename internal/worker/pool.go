package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/leavend/genstudio/internal/infra"
	"github.com/leavend/genstudio/internal/queue"
)

// Pool runs up to Concurrency handlers for one queue. Each slot loops
// claim, run, report.
type Pool struct {
	cfg         queue.Config
	concurrency int
	backend     queue.Backend
	handler     Handler
	logger      infra.Logger
	poll        time.Duration

	active    atomic.Int64
	processed atomic.Int64
	failed    atomic.Int64
	lastErr   atomic.Value
}

// Stats is a point-in-time snapshot used by health endpoints.
type Stats struct {
	Queue       string `json:"queue"`
	Concurrency int    `json:"concurrency"`
	Active      int64  `json:"active"`
	Processed   int64  `json:"processed"`
	Failed      int64  `json:"failed"`
	LastError   string `json:"last_error,omitempty"`
}

func (p *Pool) start(ctx context.Context, wg *sync.WaitGroup) {
	for slot := 0; slot < p.concurrency; slot++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			p.loop(ctx, slot)
		}(slot)
	}
}

func (p *Pool) loop(ctx context.Context, slot int) {
	logger := p.logger.With().Int("slot", slot).Logger()
	for {
		if ctx.Err() != nil {
			return
		}
		raw, err := p.backend.Claim(ctx, p.cfg, uuid.NewString())
		// Claim is where lock expiry is detected, so collect what it failed.
		p.reap(ctx, logger)
		if err != nil {
			if !errors.Is(err, queue.ErrEmpty) && ctx.Err() == nil {
				logger.Error().Err(err).Msg("worker: failed to claim job")
			}
			if !sleep(ctx, p.poll) {
				return
			}
			continue
		}
		// In-flight handlers are never cancelled by shutdown; an abandoned
		// job is recovered through lock expiry instead.
		p.run(context.WithoutCancel(ctx), newJob(p, raw))
	}
}

func (p *Pool) run(ctx context.Context, job *Job) {
	p.active.Add(1)
	defer p.active.Add(-1)

	logger := p.logger.With().Str("job_id", job.ID).Int("attempt", job.AttemptsMade).Logger()
	logger.Info().Msg("worker: picked job")
	start := time.Now()

	result, err := p.invoke(ctx, job)
	if err == nil {
		var encoded []byte
		encoded, err = json.Marshal(result)
		if err == nil {
			if cerr := p.backend.Complete(ctx, p.cfg, job.raw, encoded); cerr != nil {
				p.reportLost(logger, cerr)
				return
			}
			p.processed.Add(1)
			logger.Info().Dur("duration", time.Since(start)).Msg("worker: job completed")
			return
		}
		err = fmt.Errorf("encode result: %w", err)
	}

	p.failed.Add(1)
	p.lastErr.Store(err.Error())
	state, ferr := p.backend.Fail(ctx, p.cfg, job.raw, err.Error())
	if ferr != nil {
		p.reportLost(logger, ferr)
		return
	}
	level := zerolog.WarnLevel
	if state == queue.StateFailed {
		level = zerolog.ErrorLevel
	}
	logger.WithLevel(level).Err(err).Str("state", string(state)).Dur("duration", time.Since(start)).Msg("worker: job failed")
	if state == queue.StateFailed {
		p.onFailed(ctx, job, err.Error())
	}
}

// reap reports jobs the queue failed because their lock expired on the last
// attempt. The worker that held them is gone, so this pool reports instead.
func (p *Pool) reap(ctx context.Context, logger infra.Logger) {
	if ctx.Err() != nil {
		return
	}
	stalled, err := p.backend.TakeStalled(ctx, p.cfg)
	if err != nil {
		logger.Error().Err(err).Msg("worker: failed to collect stalled jobs")
		return
	}
	for _, raw := range stalled {
		p.failed.Add(1)
		p.lastErr.Store(raw.FailedReason)
		logger.Error().Str("job_id", raw.ID).Int("attempt", raw.AttemptsMade).Str("reason", raw.FailedReason).Msg("worker: stalled job failed")
		p.onFailed(context.WithoutCancel(ctx), stalledJob(raw), raw.FailedReason)
	}
}

// onFailed runs the handler's terminal failure hook, if it has one.
func (p *Pool) onFailed(ctx context.Context, job *Job, reason string) {
	fh, ok := p.handler.(FailedHandler)
	if !ok {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			p.logger.Error().Str("job_id", job.ID).Bytes("stack", debug.Stack()).Msg("worker: failure hook panic")
		}
	}()
	fh.OnFailed(ctx, job, reason)
}

// invoke runs the handler, turning a panic into an attempt failure.
func (p *Pool) invoke(ctx context.Context, job *Job) (result any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			p.logger.Error().Str("job_id", job.ID).Bytes("stack", debug.Stack()).Msg("worker: handler panic")
			err = fmt.Errorf("handler panic: %v", rec)
		}
	}()
	return p.handler.Process(ctx, job)
}

func (p *Pool) reportLost(logger infra.Logger, err error) {
	if errors.Is(err, queue.ErrLockLost) {
		logger.Warn().Msg("worker: lock lost before completion, result discarded")
		return
	}
	logger.Error().Err(err).Msg("worker: failed to record job outcome")
}

// Stats returns current counters.
func (p *Pool) Stats() Stats {
	s := Stats{
		Queue:       p.cfg.Name,
		Concurrency: p.concurrency,
		Active:      p.active.Load(),
		Processed:   p.processed.Load(),
		Failed:      p.failed.Load(),
	}
	if v, ok := p.lastErr.Load().(string); ok {
		s.LastError = v
	}
	return s
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
