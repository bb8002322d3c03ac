package generation

import (
	"context"
	"errors"
	"fmt"

	"github.com/leavend/genstudio/internal/domain"
	"github.com/leavend/genstudio/internal/infra"
	"github.com/leavend/genstudio/internal/notify"
	"github.com/leavend/genstudio/internal/providers"
	"github.com/leavend/genstudio/internal/worker"
)

// Progress checkpoints reported while a job runs.
const (
	progressStarted   = 10
	progressInvoking  = 30
	progressInvoked   = 90
	progressCompleted = 100
)

// Chain runs a capability's provider failover chain.
type Chain interface {
	Execute(ctx context.Context, capability string, req providers.Request, invoke providers.InvokeFunc) (providers.Outcome, error)
}

// Notifier persists user notifications and pushes live job updates.
type Notifier interface {
	Notify(ctx context.Context, msg notify.Message) (*domain.Notification, error)
	JobUpdate(ctx context.Context, userID string, update notify.JobUpdate)
}

// ArtifactStore keeps inline provider output and returns its public URL.
type ArtifactStore interface {
	Save(ctx context.Context, folder, id, mime string, data []byte) (string, error)
}

// Result is stored as the queue job's return value.
type Result struct {
	GenerationID string           `json:"generation_id"`
	URL          string           `json:"url"`
	Provider     string           `json:"provider"`
	Attempts     []domain.Attempt `json:"attempts"`
}

// Runner is the processor shared by every generation queue: mark the record
// PROCESSING, run the chain, record the outcome, notify. Each step is a
// plain overwrite, so a job re-run after a crash converges on the same
// record.
type Runner struct {
	generations domain.GenerationRepository
	chain       Chain
	store       ArtifactStore
	notifier    Notifier
	logger      infra.Logger
}

func NewRunner(generations domain.GenerationRepository, chain Chain, store ArtifactStore, notifier Notifier, logger infra.Logger) *Runner {
	return &Runner{
		generations: generations,
		chain:       chain,
		store:       store,
		notifier:    notifier,
		logger:      infra.Component(logger, "generation"),
	}
}

var _ worker.FailedHandler = (*Runner)(nil)

// Process implements worker.Handler.
func (r *Runner) Process(ctx context.Context, job *worker.Job) (any, error) {
	var p Payload
	if err := job.Decode(&p); err != nil {
		return nil, err
	}
	if p.GenerationID == "" {
		p.GenerationID = job.ID
	}
	entry, ok := Lookup(p.Kind)
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnsupportedKind, p.Kind)
	}
	return r.run(ctx, job, entry, p)
}

func (r *Runner) run(ctx context.Context, job *worker.Job, entry Entry, p Payload) (*Result, error) {
	logger := r.logger.With().
		Str("queue", job.Queue).
		Str("job_id", job.ID).
		Str("generation_id", p.GenerationID).
		Int("attempt", job.AttemptsMade).
		Logger()
	// Record writes must land even when the caller has gone away.
	recordCtx := context.WithoutCancel(ctx)

	if err := r.generations.MarkProcessing(recordCtx, p.GenerationID); err != nil {
		return nil, fmt.Errorf("mark generation processing: %w", err)
	}
	r.progress(ctx, job, p, progressStarted)
	r.progress(ctx, job, p, progressInvoking)

	out, err := r.chain.Execute(ctx, entry.Capability, p.request(), nil)
	if err != nil {
		return nil, r.fail(recordCtx, job, p, err.Error(), out.Attempts)
	}
	r.progress(ctx, job, p, progressInvoked)
	if !out.Success {
		return nil, r.fail(recordCtx, job, p, out.FinalError, out.Attempts)
	}

	url, err := r.persist(recordCtx, entry, p, out.Result)
	if err != nil {
		return nil, r.fail(recordCtx, job, p, err.Error(), out.Attempts)
	}
	if err := r.generations.MarkCompleted(recordCtx, p.GenerationID, url, out.Provider, out.Attempts); err != nil {
		return nil, fmt.Errorf("mark generation completed: %w", err)
	}
	if err := job.Progress(ctx, progressCompleted); err != nil {
		logger.Warn().Err(err).Msg("generation: progress not recorded")
	}
	r.notifier.JobUpdate(recordCtx, p.UserID, notify.JobUpdate{
		JobID:        job.ID,
		Queue:        job.Queue,
		GenerationID: p.GenerationID,
		State:        "completed",
		Progress:     progressCompleted,
		ResultURL:    url,
	})

	title, body := notify.CompletedText(p.Locale, p.Kind)
	if _, err := r.notifier.Notify(recordCtx, notify.Message{
		UserID:  p.UserID,
		Type:    domain.NotificationGenerationCompleted,
		Title:   title,
		Message: body,
		Data: map[string]any{
			"generation_id": p.GenerationID,
			"kind":          p.Kind,
			"result_url":    url,
			"provider":      out.Provider,
		},
	}); err != nil {
		// The record is already COMPLETED; a retry would only rerun the chain.
		logger.Error().Err(err).Msg("generation: completion notification not stored")
	}
	logger.Info().Str("provider", out.Provider).Int("attempts", len(out.Attempts)).Msg("generation: completed")
	return &Result{GenerationID: p.GenerationID, URL: url, Provider: out.Provider, Attempts: out.Attempts}, nil
}

// persist returns the result reference, storing inline bytes when present.
func (r *Runner) persist(ctx context.Context, entry Entry, p Payload, res *providers.Result) (string, error) {
	if len(res.Data) > 0 && r.store != nil {
		url, err := r.store.Save(ctx, entry.Kind, p.GenerationID, res.MIME, res.Data)
		if err != nil {
			return "", fmt.Errorf("store artifact: %w", err)
		}
		return url, nil
	}
	if res.URL != "" {
		return res.URL, nil
	}
	return "", errors.New("provider result has no url and no artifact store is configured")
}

// fail records a terminal failure on the last attempt and otherwise leaves
// the record PROCESSING for the retry. The returned error fails the job.
func (r *Runner) fail(ctx context.Context, job *worker.Job, p Payload, reason string, attempts []domain.Attempt) error {
	if !job.Final() {
		logger := r.logger.With().Str("job_id", job.ID).Str("generation_id", p.GenerationID).Logger()
		logger.Warn().Str("reason", reason).Int("attempt", job.AttemptsMade).Int("max_attempts", job.MaxAttempts).Msg("generation: attempt failed, will retry")
		r.notifier.JobUpdate(ctx, p.UserID, notify.JobUpdate{
			JobID: job.ID, Queue: job.Queue, GenerationID: p.GenerationID, State: "retrying", Error: reason,
		})
		return errors.New(reason)
	}

	r.terminal(ctx, job, p, reason, attempts)
	return errors.New(reason)
}

// OnFailed implements worker.FailedHandler. It covers terminal failures the
// processor could not record itself: a crash or panic on the last attempt, or
// a lock that expired with no attempts left. A record that is already
// terminal was handled by the processor and is left alone.
func (r *Runner) OnFailed(ctx context.Context, job *worker.Job, reason string) {
	ctx = context.WithoutCancel(ctx)
	logger := r.logger.With().Str("queue", job.Queue).Str("job_id", job.ID).Logger()
	var p Payload
	if err := job.Decode(&p); err != nil {
		logger.Error().Err(err).Msg("generation: terminal failure for undecodable job")
		return
	}
	if p.GenerationID == "" {
		p.GenerationID = job.ID
	}
	g, err := r.generations.Get(ctx, p.GenerationID)
	if err != nil {
		logger.Error().Err(err).Str("generation_id", p.GenerationID).Msg("generation: record for failed job not found")
		return
	}
	if g.Status.Terminal() {
		return
	}
	r.terminal(ctx, job, p, reason, g.Attempts)
}

// terminal marks the record FAILED and tells the user, once per job outcome.
func (r *Runner) terminal(ctx context.Context, job *worker.Job, p Payload, reason string, attempts []domain.Attempt) {
	logger := r.logger.With().Str("job_id", job.ID).Str("generation_id", p.GenerationID).Logger()
	if err := r.generations.MarkFailed(ctx, p.GenerationID, reason, attempts); err != nil {
		logger.Error().Err(err).Msg("generation: failed to record failure")
	}
	r.notifier.JobUpdate(ctx, p.UserID, notify.JobUpdate{
		JobID: job.ID, Queue: job.Queue, GenerationID: p.GenerationID, State: "failed", Error: reason,
	})
	title, body := notify.FailedText(p.Locale, p.Kind, reason)
	if _, err := r.notifier.Notify(ctx, notify.Message{
		UserID:  p.UserID,
		Type:    domain.NotificationGenerationFailed,
		Title:   title,
		Message: body,
		Data:    map[string]any{"generation_id": p.GenerationID, "kind": p.Kind, "error": reason},
	}); err != nil {
		logger.Error().Err(err).Msg("generation: failure notification not stored")
	}
	logger.Error().Str("reason", reason).Msg("generation: failed")
}

func (r *Runner) progress(ctx context.Context, job *worker.Job, p Payload, pct int) {
	if err := job.Progress(ctx, pct); err != nil {
		r.logger.Warn().Err(err).Str("job_id", job.ID).Int("progress", pct).Msg("generation: progress not recorded")
	}
	r.notifier.JobUpdate(context.WithoutCancel(ctx), p.UserID, notify.JobUpdate{
		JobID:        job.ID,
		Queue:        job.Queue,
		GenerationID: p.GenerationID,
		State:        "active",
		Progress:     pct,
	})
}
