package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Options tune a single enqueue call.
type Options struct {
	// JobID makes the enqueue idempotent: while a job with this id exists in
	// the queue, including its retention window, no second job is created.
	JobID string
}

// Handle is returned by Enqueue.
type Handle struct {
	ID      string `json:"id"`
	Queue   string `json:"queue"`
	Created bool   `json:"created"`
}

// Queue is the entry point request handlers use to submit work and look jobs
// up. It knows the full set of queue names and their configs.
type Queue struct {
	backend Backend
	configs map[string]Config
	names   []string
	logger  zerolog.Logger
}

// New validates every config and returns a Queue over backend.
func New(backend Backend, logger zerolog.Logger, configs ...Config) (*Queue, error) {
	if backend == nil {
		return nil, errors.New("queue backend is required")
	}
	q := &Queue{
		backend: backend,
		configs: make(map[string]Config, len(configs)),
		logger:  logger.With().Str("component", "queue").Logger(),
	}
	for _, cfg := range configs {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		if _, dup := q.configs[cfg.Name]; dup {
			return nil, fmt.Errorf("queue %s configured twice", cfg.Name)
		}
		q.configs[cfg.Name] = cfg
		q.names = append(q.names, cfg.Name)
	}
	sort.Strings(q.names)
	return q, nil
}

// Enqueue persists payload as a waiting job and returns without waiting for
// execution. Backend failures are reported as ErrUnavailable.
func (q *Queue) Enqueue(ctx context.Context, queueName string, payload any, opts Options) (Handle, error) {
	cfg, ok := q.configs[queueName]
	if !ok {
		return Handle{}, fmt.Errorf("%w: %s", ErrUnknownQueue, queueName)
	}
	data, err := encodePayload(payload)
	if err != nil {
		return Handle{}, err
	}
	id := opts.JobID
	if id == "" {
		id = uuid.NewString()
	}
	job, created, err := q.backend.Add(ctx, cfg, id, data)
	if err != nil {
		q.logger.Warn().Err(err).Str("queue", queueName).Str("job_id", id).Msg("enqueue failed")
		return Handle{}, err
	}
	if created {
		q.logger.Debug().Str("queue", queueName).Str("job_id", id).Msg("job enqueued")
	} else {
		q.logger.Info().Str("queue", queueName).Str("job_id", id).Str("state", string(job.State)).Msg("duplicate enqueue ignored")
	}
	return Handle{ID: job.ID, Queue: queueName, Created: created}, nil
}

// Find scans every known queue for id. Queue names are visited in sorted
// order, so a collision across queues resolves deterministically.
func (q *Queue) Find(ctx context.Context, id string) (*Job, error) {
	for _, name := range q.names {
		job, err := q.backend.Get(ctx, name, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return job, nil
	}
	return nil, ErrNotFound
}

// Get looks id up in one queue.
func (q *Queue) Get(ctx context.Context, queueName, id string) (*Job, error) {
	if _, ok := q.configs[queueName]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownQueue, queueName)
	}
	return q.backend.Get(ctx, queueName, id)
}

// Config returns the validated config for a queue.
func (q *Queue) Config(name string) (Config, bool) {
	cfg, ok := q.configs[name]
	return cfg, ok
}

// Names lists known queues in sorted order.
func (q *Queue) Names() []string {
	return append([]string(nil), q.names...)
}

// Backend exposes the storage used for claims.
func (q *Queue) Backend() Backend {
	return q.backend
}

// Ping reports whether the backend is reachable.
func (q *Queue) Ping(ctx context.Context) error {
	return q.backend.Ping(ctx)
}

func encodePayload(payload any) ([]byte, error) {
	switch p := payload.(type) {
	case nil:
		return []byte("null"), nil
	case json.RawMessage:
		return p, nil
	case []byte:
		if !json.Valid(p) {
			return nil, errors.New("payload bytes must be valid json")
		}
		return p, nil
	default:
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode payload: %w", err)
		}
		return data, nil
	}
}
