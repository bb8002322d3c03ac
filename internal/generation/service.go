package generation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/leavend/genstudio/internal/domain"
	"github.com/leavend/genstudio/internal/infra"
	"github.com/leavend/genstudio/internal/queue"
	"github.com/leavend/genstudio/internal/worker"
)

// Submission modes.
const (
	ModeQueued = "queued"
	ModeSync   = "sync"
)

// Enqueuer is the subset of queue.Queue the service needs.
type Enqueuer interface {
	Enqueue(ctx context.Context, queueName string, payload any, opts queue.Options) (queue.Handle, error)
}

// Submission describes how a request was accepted.
type Submission struct {
	Generation *domain.Generation `json:"generation"`
	JobID      string             `json:"job_id"`
	Queue      string             `json:"queue"`
	Mode       string             `json:"mode"`
	Duplicate  bool               `json:"duplicate,omitempty"`
	Error      string             `json:"error,omitempty"`
}

// Service is the entry point for request handlers and the operator CLI.
type Service struct {
	generations domain.GenerationRepository
	queue       Enqueuer
	runner      *Runner
	logger      infra.Logger
}

func NewService(generations domain.GenerationRepository, q Enqueuer, runner *Runner, logger infra.Logger) *Service {
	return &Service{generations: generations, queue: q, runner: runner, logger: infra.Component(logger, "generation")}
}

// Submit creates a PENDING record and enqueues it under the record id. When
// the queue backend is unavailable the job runs inline instead.
func (s *Service) Submit(ctx context.Context, p Payload) (*Submission, error) {
	entry, g, existed, err := s.create(ctx, &p)
	if err != nil {
		return nil, err
	}
	sub := &Submission{Generation: g, JobID: g.ID, Queue: entry.Queue.Name, Mode: ModeQueued}
	if existed && g.Status.Terminal() {
		sub.Duplicate = true
		return sub, nil
	}

	handle, err := s.queue.Enqueue(ctx, entry.Queue.Name, p, queue.Options{JobID: g.ID})
	switch {
	case err == nil:
		sub.Duplicate = !handle.Created
		return sub, nil
	case !errors.Is(err, queue.ErrUnavailable):
		return nil, fmt.Errorf("enqueue generation: %w", err)
	}

	s.logger.Warn().Err(err).Str("generation_id", g.ID).Str("queue", entry.Queue.Name).Msg("generation: queue unavailable, running inline")
	sub.Mode = ModeSync
	if _, runErr := s.runInline(ctx, entry, p); runErr != nil {
		sub.Error = runErr.Error()
	}
	if latest, err := s.generations.Get(context.WithoutCancel(ctx), g.ID); err == nil {
		sub.Generation = latest
	}
	return sub, nil
}

// RunInline creates a record and processes it synchronously, bypassing the
// queue. The returned record reflects the final state.
func (s *Service) RunInline(ctx context.Context, p Payload) (*domain.Generation, *Result, error) {
	entry, g, existed, err := s.create(ctx, &p)
	if err != nil {
		return nil, nil, err
	}
	if existed {
		return g, nil, fmt.Errorf("%w: generation %s already exists", domain.ErrInvalidRequest, g.ID)
	}
	res, runErr := s.runInline(ctx, entry, p)
	if latest, err := s.generations.Get(context.WithoutCancel(ctx), g.ID); err == nil {
		g = latest
	}
	return g, res, runErr
}

// Broadcast enqueues a notification fanout.
func (s *Service) Broadcast(ctx context.Context, b Broadcast) (queue.Handle, error) {
	if err := b.Validate(); err != nil {
		return queue.Handle{}, err
	}
	return s.queue.Enqueue(ctx, QueueNotificationFanout, b, queue.Options{})
}

// Get returns a record owned by userID.
func (s *Service) Get(ctx context.Context, userID, id string) (*domain.Generation, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.ErrNotFound
	}
	g, err := s.generations.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if g.UserID != userID {
		return nil, domain.ErrNotFound
	}
	return g, nil
}

// IdempotentID derives a stable generation id from a client supplied key.
func IdempotentID(userID, key string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("genstudio:"+userID+":"+key)).String()
}

// create inserts the record, or returns the existing one when the payload
// carries the id of a record the same user already owns.
func (s *Service) create(ctx context.Context, p *Payload) (Entry, *domain.Generation, bool, error) {
	if err := p.Validate(); err != nil {
		return Entry{}, nil, false, err
	}
	entry, _ := Lookup(p.Kind)
	if p.GenerationID == "" {
		p.GenerationID = uuid.NewString()
	} else if existing, err := s.generations.Get(ctx, p.GenerationID); err == nil {
		if existing.UserID != p.UserID || existing.Kind != p.Kind {
			return Entry{}, nil, false, fmt.Errorf("%w: idempotency key reused for a different request", domain.ErrInvalidRequest)
		}
		return entry, existing, true, nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return Entry{}, nil, false, err
	}
	var params json.RawMessage
	if len(p.Params) > 0 {
		raw, err := json.Marshal(p.Params)
		if err != nil {
			return Entry{}, nil, false, fmt.Errorf("%w: params: %v", domain.ErrInvalidRequest, err)
		}
		params = raw
	}
	g := &domain.Generation{
		ID:     p.GenerationID,
		UserID: p.UserID,
		Kind:   p.Kind,
		Prompt: p.Prompt,
		Model:  p.Model,
		Params: params,
	}
	if err := s.generations.Create(ctx, g); err != nil {
		return Entry{}, nil, false, err
	}
	return entry, g, false, nil
}

func (s *Service) runInline(ctx context.Context, entry Entry, p Payload) (*Result, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	job := worker.NewDetachedJob(entry.Queue.Name, p.GenerationID, data)
	return s.runner.run(ctx, job, entry, p)
}

// Register binds the runner to every generation queue and the fanout
// handler to the notification queue.
func Register(reg *worker.Registry, runner *Runner, fanout *FanoutHandler) error {
	for _, e := range catalog {
		if err := reg.Register(e.Queue.Name, 0, runner); err != nil {
			return err
		}
	}
	return reg.Register(QueueNotificationFanout, 0, fanout)
}
