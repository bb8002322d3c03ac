package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/leavend/genstudio/internal/infra"
	"github.com/leavend/genstudio/internal/queue"
)

const defaultPollInterval = 2 * time.Second

// Registry maps queue names to handlers. It is filled once at startup and
// turned into running pools by Initialize.
type Registry struct {
	queue   *queue.Queue
	logger  infra.Logger
	poll    time.Duration
	entries map[string]registration
	order   []string
}

type registration struct {
	concurrency int
	handler     Handler
}

// Option configures a Registry.
type Option func(*Registry)

// WithPollInterval sets how long an idle slot waits before claiming again.
func WithPollInterval(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.poll = d
		}
	}
}

func NewRegistry(q *queue.Queue, logger infra.Logger, opts ...Option) *Registry {
	r := &Registry{
		queue:   q,
		logger:  infra.Component(logger, "worker"),
		poll:    defaultPollInterval,
		entries: make(map[string]registration),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register binds handler to queueName. A concurrency of zero uses the queue's
// configured concurrency.
func (r *Registry) Register(queueName string, concurrency int, handler Handler) error {
	cfg, ok := r.queue.Config(queueName)
	if !ok {
		return fmt.Errorf("%w: %s", queue.ErrUnknownQueue, queueName)
	}
	if handler == nil {
		return fmt.Errorf("queue %s: handler is required", queueName)
	}
	if _, dup := r.entries[queueName]; dup {
		return fmt.Errorf("queue %s: handler already registered", queueName)
	}
	if concurrency == 0 {
		concurrency = cfg.Concurrency
	}
	if concurrency < 1 || concurrency > queue.MaxConcurrency {
		return fmt.Errorf("queue %s: concurrency must be between 1 and %d", queueName, queue.MaxConcurrency)
	}
	r.entries[queueName] = registration{concurrency: concurrency, handler: handler}
	r.order = append(r.order, queueName)
	return nil
}

// Initialize starts one pool per registered queue and returns the handles.
func (r *Registry) Initialize(ctx context.Context) (*Workers, error) {
	if len(r.order) == 0 {
		return nil, errors.New("no handlers registered")
	}
	runCtx, cancel := context.WithCancel(ctx)
	w := &Workers{cancel: cancel, logger: r.logger}
	for _, name := range r.order {
		cfg, _ := r.queue.Config(name)
		reg := r.entries[name]
		pool := &Pool{
			cfg:         cfg,
			concurrency: reg.concurrency,
			backend:     r.queue.Backend(),
			handler:     reg.handler,
			logger:      r.logger.With().Str("queue", name).Logger(),
			poll:        r.poll,
		}
		w.pools = append(w.pools, pool)
		pool.start(runCtx, &w.wg)
		r.logger.Info().
			Str("queue", name).
			Int("concurrency", reg.concurrency).
			Int("max_attempts", cfg.MaxAttempts).
			Dur("lock", cfg.LockDuration).
			Msg("worker: pool started")
	}
	return w, nil
}

// Workers owns the running pools.
type Workers struct {
	pools  []*Pool
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger infra.Logger
	once   sync.Once
}

// Shutdown stops claiming new jobs and waits for in-flight handlers. If ctx
// ends first the remaining jobs are left to lock expiry.
func (w *Workers) Shutdown(ctx context.Context) error {
	w.once.Do(w.cancel)
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		w.logger.Info().Msg("worker: drained")
		return nil
	case <-ctx.Done():
		w.logger.Warn().Err(ctx.Err()).Msg("worker: shutdown deadline reached with jobs in flight")
		return ctx.Err()
	}
}

// Stats snapshots every pool in registration order.
func (w *Workers) Stats() []Stats {
	out := make([]Stats, 0, len(w.pools))
	for _, p := range w.pools {
		out = append(out, p.Stats())
	}
	return out
}
