package queue

import (
	"context"
	"sort"
	"sync"
	"time"
)

const stalledReason = "job lock expired"

// MemoryBackend keeps jobs in process memory. It has the same claim, retry
// and retention semantics as RedisBackend and backs tests and single-process
// development runs. Jobs do not survive a restart.
type MemoryBackend struct {
	mu     sync.Mutex
	now    Clock
	queues map[string]*memQueue
}

type memQueue struct {
	jobs    map[string]*memJob
	wait    []string
	stalled []string
}

type memJob struct {
	job       *Job
	lockUntil time.Time
	runAt     time.Time
	expiresAt time.Time
}

// NewMemoryBackend returns an empty backend. A nil clock uses time.Now.
func NewMemoryBackend(clock Clock) *MemoryBackend {
	if clock == nil {
		clock = time.Now
	}
	return &MemoryBackend{now: clock, queues: make(map[string]*memQueue)}
}

func (b *MemoryBackend) queue(name string) *memQueue {
	q, ok := b.queues[name]
	if !ok {
		q = &memQueue{jobs: make(map[string]*memJob)}
		b.queues[name] = q
	}
	return q
}

func (b *MemoryBackend) Add(ctx context.Context, cfg Config, id string, data []byte) (*Job, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	q := b.queue(cfg.Name)
	q.gc(now)
	if existing, ok := q.jobs[id]; ok {
		return existing.job.clone(), false, nil
	}
	job := &Job{
		ID:          id,
		Queue:       cfg.Name,
		Data:        append([]byte(nil), data...),
		State:       StateWaiting,
		MaxAttempts: cfg.MaxAttempts,
		CreatedAt:   now,
	}
	q.jobs[id] = &memJob{job: job}
	q.wait = append(q.wait, id)
	return job.clone(), true, nil
}

func (b *MemoryBackend) Claim(ctx context.Context, cfg Config, token string) (*Job, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	q := b.queue(cfg.Name)
	q.gc(now)
	q.promote(now)
	q.recover(now, cfg)

	for len(q.wait) > 0 {
		id := q.wait[0]
		q.wait = q.wait[1:]
		mj, ok := q.jobs[id]
		if !ok || mj.job.State != StateWaiting {
			continue
		}
		mj.job.State = StateActive
		mj.job.AttemptsMade++
		mj.job.Token = token
		processed := now
		mj.job.ProcessedAt = &processed
		mj.lockUntil = now.Add(cfg.LockDuration)
		return mj.job.clone(), nil
	}
	return nil, ErrEmpty
}

func (b *MemoryBackend) Complete(ctx context.Context, cfg Config, job *Job, result []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	mj, err := b.owned(cfg.Name, job)
	if err != nil {
		return err
	}
	finished := now
	mj.job.State = StateCompleted
	mj.job.Result = append([]byte(nil), result...)
	mj.job.FinishedAt = &finished
	mj.job.Token = ""
	mj.expiresAt = now.Add(cfg.Retention)
	return nil
}

func (b *MemoryBackend) Fail(ctx context.Context, cfg Config, job *Job, reason string) (State, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	mj, err := b.owned(cfg.Name, job)
	if err != nil {
		return "", err
	}
	mj.job.FailedReason = reason
	mj.job.Token = ""
	if mj.job.AttemptsMade < mj.job.MaxAttempts {
		mj.job.State = StateDelayed
		mj.runAt = now.Add(cfg.RetryDelay(mj.job.AttemptsMade))
		return StateDelayed, nil
	}
	finished := now
	mj.job.State = StateFailed
	mj.job.FinishedAt = &finished
	mj.expiresAt = now.Add(cfg.Retention)
	return StateFailed, nil
}

func (b *MemoryBackend) Progress(ctx context.Context, cfg Config, job *Job, progress int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	mj, err := b.owned(cfg.Name, job)
	if err != nil {
		return err
	}
	mj.job.Progress = clampProgress(progress)
	return nil
}

func (b *MemoryBackend) TakeStalled(ctx context.Context, cfg Config) ([]*Job, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	q := b.queue(cfg.Name)
	var out []*Job
	for _, id := range q.stalled {
		if mj, ok := q.jobs[id]; ok {
			out = append(out, mj.job.clone())
		}
	}
	q.stalled = nil
	return out, nil
}

func (b *MemoryBackend) Get(ctx context.Context, queue, id string) (*Job, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	q, ok := b.queues[queue]
	if !ok {
		return nil, ErrNotFound
	}
	q.gc(b.now())
	mj, ok := q.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return mj.job.clone(), nil
}

func (b *MemoryBackend) Counts(ctx context.Context, queue string) (map[State]int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	counts := map[State]int64{}
	q, ok := b.queues[queue]
	if !ok {
		return counts, nil
	}
	q.gc(b.now())
	for _, mj := range q.jobs {
		counts[mj.job.State]++
	}
	return counts, nil
}

func (b *MemoryBackend) Ping(ctx context.Context) error { return nil }

// owned returns the job while job.Token still holds its claim. An expired
// lock stays valid until another Claim recovers the job.
func (b *MemoryBackend) owned(queue string, job *Job) (*memJob, error) {
	q, ok := b.queues[queue]
	if !ok {
		return nil, ErrNotFound
	}
	mj, ok := q.jobs[job.ID]
	if !ok {
		return nil, ErrNotFound
	}
	if mj.job.State != StateActive || mj.job.Token != job.Token || job.Token == "" {
		return nil, ErrLockLost
	}
	return mj, nil
}

func (q *memQueue) gc(now time.Time) {
	for id, mj := range q.jobs {
		if mj.job.State.Terminal() && !mj.expiresAt.After(now) {
			delete(q.jobs, id)
		}
	}
}

func (q *memQueue) promote(now time.Time) {
	var due []*memJob
	for _, mj := range q.jobs {
		if mj.job.State == StateDelayed && !mj.runAt.After(now) {
			due = append(due, mj)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].runAt.Before(due[j].runAt) })
	for _, mj := range due {
		mj.job.State = StateWaiting
		q.wait = append(q.wait, mj.job.ID)
	}
}

// recover returns jobs whose lock expired to the head of the wait list, or
// fails them when no attempts remain.
func (q *memQueue) recover(now time.Time, cfg Config) {
	var stalled []*memJob
	for _, mj := range q.jobs {
		if mj.job.State == StateActive && !mj.lockUntil.After(now) {
			stalled = append(stalled, mj)
		}
	}
	sort.Slice(stalled, func(i, j int) bool { return stalled[i].lockUntil.Before(stalled[j].lockUntil) })
	var requeue []string
	for _, mj := range stalled {
		mj.job.Token = ""
		if mj.job.AttemptsMade >= mj.job.MaxAttempts {
			finished := now
			mj.job.State = StateFailed
			mj.job.FailedReason = stalledReason
			mj.job.FinishedAt = &finished
			mj.expiresAt = now.Add(cfg.Retention)
			q.stalled = append(q.stalled, mj.job.ID)
			continue
		}
		mj.job.State = StateWaiting
		requeue = append(requeue, mj.job.ID)
	}
	if len(requeue) > 0 {
		q.wait = append(requeue, q.wait...)
	}
}

func clampProgress(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

var _ Backend = (*MemoryBackend)(nil)
