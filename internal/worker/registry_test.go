package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leavend/genstudio/internal/queue"
)

func newQueue(t *testing.T, cfgs ...queue.Config) *queue.Queue {
	t.Helper()
	q, err := queue.New(queue.NewMemoryBackend(nil), zerolog.Nop(), cfgs...)
	require.NoError(t, err)
	return q
}

func cfg(name string, attempts int) queue.Config {
	return queue.Config{
		Name:         name,
		Concurrency:  1,
		MaxAttempts:  attempts,
		LockDuration: time.Minute,
		Retention:    time.Hour,
	}
}

func start(t *testing.T, r *Registry) *Workers {
	t.Helper()
	w, err := r.Initialize(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = w.Shutdown(ctx)
	})
	return w
}

func waitState(t *testing.T, q *queue.Queue, queueName, id string, state queue.State) *queue.Job {
	t.Helper()
	var job *queue.Job
	require.Eventually(t, func() bool {
		j, err := q.Get(context.Background(), queueName, id)
		if err != nil {
			return false
		}
		job = j
		return j.State == state
	}, 2*time.Second, 5*time.Millisecond, "job %s never reached %s", id, state)
	return job
}

func TestRegisterValidation(t *testing.T) {
	q := newQueue(t, cfg("image", 1))
	r := NewRegistry(q, zerolog.Nop())
	noop := HandlerFunc(func(ctx context.Context, job *Job) (any, error) { return nil, nil })

	assert.ErrorIs(t, r.Register("audio", 1, noop), queue.ErrUnknownQueue)
	assert.Error(t, r.Register("image", 1, nil))
	assert.Error(t, r.Register("image", queue.MaxConcurrency+1, noop))
	require.NoError(t, r.Register("image", 0, noop))
	assert.Error(t, r.Register("image", 1, noop), "duplicate registration")
}

func TestInitializeWithoutHandlers(t *testing.T) {
	r := NewRegistry(newQueue(t, cfg("image", 1)), zerolog.Nop())
	_, err := r.Initialize(context.Background())
	assert.Error(t, err)
}

func TestWorkerCompletesJob(t *testing.T) {
	q := newQueue(t, cfg("image", 3))
	r := NewRegistry(q, zerolog.Nop(), WithPollInterval(5*time.Millisecond))
	require.NoError(t, r.Register("image", 1, HandlerFunc(func(ctx context.Context, job *Job) (any, error) {
		var payload struct {
			Prompt string `json:"prompt"`
		}
		if err := job.Decode(&payload); err != nil {
			return nil, err
		}
		if err := job.Progress(ctx, 60); err != nil {
			return nil, err
		}
		return map[string]string{"echo": payload.Prompt}, nil
	})))
	w := start(t, r)

	_, err := q.Enqueue(context.Background(), "image", map[string]string{"prompt": "owl"}, queue.Options{JobID: "j1"})
	require.NoError(t, err)

	job := waitState(t, q, "image", "j1", queue.StateCompleted)
	assert.JSONEq(t, `{"echo":"owl"}`, string(job.Result))
	assert.Equal(t, 60, job.Progress)
	require.Eventually(t, func() bool { return w.Stats()[0].Processed == 1 }, time.Second, 5*time.Millisecond)
}

func TestWorkerRetriesThenFailsTerminally(t *testing.T) {
	q := newQueue(t, cfg("video", 2))
	r := NewRegistry(q, zerolog.Nop(), WithPollInterval(5*time.Millisecond))
	var calls atomic.Int32
	var finals []bool
	var mu sync.Mutex
	require.NoError(t, r.Register("video", 1, HandlerFunc(func(ctx context.Context, job *Job) (any, error) {
		calls.Add(1)
		mu.Lock()
		finals = append(finals, job.Final())
		mu.Unlock()
		return nil, errors.New("all providers failed")
	})))
	w := start(t, r)

	_, err := q.Enqueue(context.Background(), "video", nil, queue.Options{JobID: "v1"})
	require.NoError(t, err)

	job := waitState(t, q, "video", "v1", queue.StateFailed)
	assert.Equal(t, 2, job.AttemptsMade)
	assert.Equal(t, "all providers failed", job.FailedReason)

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(2), calls.Load(), "terminal job must not run again")
	mu.Lock()
	assert.Equal(t, []bool{false, true}, finals)
	mu.Unlock()
	assert.Equal(t, "all providers failed", w.Stats()[0].LastError)
}

func TestWorkerRecoversPanics(t *testing.T) {
	q := newQueue(t, cfg("logo", 1))
	r := NewRegistry(q, zerolog.Nop(), WithPollInterval(5*time.Millisecond))
	require.NoError(t, r.Register("logo", 1, HandlerFunc(func(ctx context.Context, job *Job) (any, error) {
		panic("nil map")
	})))
	start(t, r)

	_, err := q.Enqueue(context.Background(), "logo", nil, queue.Options{JobID: "l1"})
	require.NoError(t, err)
	job := waitState(t, q, "logo", "l1", queue.StateFailed)
	assert.Contains(t, job.FailedReason, "handler panic")
}

func TestWorkerRespectsConcurrency(t *testing.T) {
	q := newQueue(t, cfg("enhancement", 1))
	r := NewRegistry(q, zerolog.Nop(), WithPollInterval(5*time.Millisecond))
	var active, peak atomic.Int32
	release := make(chan struct{})
	require.NoError(t, r.Register("enhancement", 2, HandlerFunc(func(ctx context.Context, job *Job) (any, error) {
		n := active.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		<-release
		active.Add(-1)
		return "ok", nil
	})))
	w := start(t, r)

	ids := []string{"e1", "e2", "e3", "e4", "e5"}
	for _, id := range ids {
		_, err := q.Enqueue(context.Background(), "enhancement", nil, queue.Options{JobID: id})
		require.NoError(t, err)
	}
	require.Eventually(t, func() bool { return active.Load() == 2 }, time.Second, 5*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(2), peak.Load())
	assert.Equal(t, int64(2), w.Stats()[0].Active)

	close(release)
	for _, id := range ids {
		waitState(t, q, "enhancement", id, queue.StateCompleted)
	}
	assert.Equal(t, int32(2), peak.Load())
}

func TestShutdownDrainsInFlightJobs(t *testing.T) {
	q := newQueue(t, cfg("training", 1))
	r := NewRegistry(q, zerolog.Nop(), WithPollInterval(5*time.Millisecond))
	started := make(chan struct{})
	release := make(chan struct{})
	require.NoError(t, r.Register("training", 1, HandlerFunc(func(ctx context.Context, job *Job) (any, error) {
		close(started)
		<-release
		return "trained", ctx.Err()
	})))
	w, err := r.Initialize(context.Background())
	require.NoError(t, err)

	_, err = q.Enqueue(context.Background(), "training", nil, queue.Options{JobID: "t1"})
	require.NoError(t, err)
	<-started

	done := make(chan error, 1)
	go func() { done <- w.Shutdown(context.Background()) }()

	select {
	case <-done:
		t.Fatal("shutdown returned while a handler was running")
	case <-time.After(30 * time.Millisecond):
	}
	close(release)
	require.NoError(t, <-done)

	job, err := q.Get(context.Background(), "training", "t1")
	require.NoError(t, err)
	assert.Equal(t, queue.StateCompleted, job.State, "handler context must not be cancelled by shutdown")
}

func TestShutdownDeadline(t *testing.T) {
	q := newQueue(t, cfg("training", 1))
	r := NewRegistry(q, zerolog.Nop(), WithPollInterval(5*time.Millisecond))
	started := make(chan struct{})
	release := make(chan struct{})
	defer close(release)
	require.NoError(t, r.Register("training", 1, HandlerFunc(func(ctx context.Context, job *Job) (any, error) {
		close(started)
		<-release
		return nil, nil
	})))
	w, err := r.Initialize(context.Background())
	require.NoError(t, err)
	_, err = q.Enqueue(context.Background(), "training", nil, queue.Options{JobID: "t1"})
	require.NoError(t, err)
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, w.Shutdown(ctx), context.DeadlineExceeded)
}

func TestDetachedJobIsFinal(t *testing.T) {
	job := NewDetachedJob("image", "g1", []byte(`{}`))
	assert.True(t, job.Final())
	assert.NoError(t, job.Progress(context.Background(), 50))
}

type failureRecorder struct {
	HandlerFunc
	mu       sync.Mutex
	failures []string
}

func (f *failureRecorder) OnFailed(ctx context.Context, job *Job, reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = append(f.failures, job.ID+": "+reason)
}

func (f *failureRecorder) recorded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.failures...)
}

func TestFailureHookRunsOnceAfterLastAttempt(t *testing.T) {
	q := newQueue(t, cfg("logo", 2))
	r := NewRegistry(q, zerolog.Nop(), WithPollInterval(5*time.Millisecond))
	var calls atomic.Int32
	handler := &failureRecorder{HandlerFunc: func(ctx context.Context, job *Job) (any, error) {
		if calls.Add(1) == 1 {
			return nil, errors.New("provider down")
		}
		panic("nil map")
	}}
	require.NoError(t, r.Register("logo", 1, handler))
	start(t, r)

	_, err := q.Enqueue(context.Background(), "logo", nil, queue.Options{JobID: "l1"})
	require.NoError(t, err)
	waitState(t, q, "logo", "l1", queue.StateFailed)

	require.Eventually(t, func() bool { return len(handler.recorded()) == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	got := handler.recorded()
	require.Len(t, got, 1, "retryable failures must not reach the hook")
	assert.Contains(t, got[0], "l1: handler panic")
}

func TestFailureHookRunsForStalledJob(t *testing.T) {
	var mu sync.Mutex
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	training := cfg("training", 1)
	q, err := queue.New(queue.NewMemoryBackend(clock), zerolog.Nop(), training)
	require.NoError(t, err)

	ctx := context.Background()
	_, err = q.Enqueue(ctx, "training", map[string]string{"user_id": "u1"}, queue.Options{JobID: "t1"})
	require.NoError(t, err)
	// A worker claims the job and dies without reporting.
	_, err = q.Backend().Claim(ctx, training, "crashed-worker")
	require.NoError(t, err)
	mu.Lock()
	now = now.Add(training.LockDuration + time.Second)
	mu.Unlock()

	var ran atomic.Int32
	handler := &failureRecorder{HandlerFunc: func(ctx context.Context, job *Job) (any, error) {
		ran.Add(1)
		return nil, nil
	}}
	r := NewRegistry(q, zerolog.Nop(), WithPollInterval(5*time.Millisecond))
	require.NoError(t, r.Register("training", 1, handler))
	w := start(t, r)

	require.Eventually(t, func() bool { return len(handler.recorded()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"t1: job lock expired"}, handler.recorded())
	assert.Equal(t, int32(0), ran.Load(), "a job out of attempts must not run again")
	job := waitState(t, q, "training", "t1", queue.StateFailed)
	assert.Equal(t, 1, job.AttemptsMade)
	assert.Equal(t, int64(1), w.Stats()[0].Failed)
}
