package repo

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/leavend/genstudio/internal/domain"
)

// MemoryGenerationRepository keeps generation records in process memory. It
// backs offline runs of the operator CLI and tests that do not need Postgres.
type MemoryGenerationRepository struct {
	mu    sync.Mutex
	items map[string]domain.Generation
	now   func() time.Time
}

func NewMemoryGenerationRepository() *MemoryGenerationRepository {
	return &MemoryGenerationRepository{items: make(map[string]domain.Generation), now: time.Now}
}

func (r *MemoryGenerationRepository) Create(ctx context.Context, g *domain.Generation) error {
	if g.ID == "" || g.UserID == "" || g.Kind == "" {
		return fmt.Errorf("%w: generation id, user and kind are required", domain.ErrInvalidRequest)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.items[g.ID]; exists {
		return fmt.Errorf("insert generation: duplicate id %s", g.ID)
	}
	now := r.now()
	g.Status = domain.GenerationPending
	g.CreatedAt, g.UpdatedAt = now, now
	r.items[g.ID] = *g
	return nil
}

func (r *MemoryGenerationRepository) MarkProcessing(ctx context.Context, id string) error {
	return r.update(id, func(g *domain.Generation) {
		g.Status = domain.GenerationProcessing
		g.Error = ""
	})
}

func (r *MemoryGenerationRepository) MarkCompleted(ctx context.Context, id, resultURL, provider string, attempts []domain.Attempt) error {
	return r.update(id, func(g *domain.Generation) {
		now := r.now()
		g.Status = domain.GenerationCompleted
		g.ResultURL = resultURL
		g.Provider = provider
		g.Attempts = append([]domain.Attempt(nil), attempts...)
		g.Error = ""
		g.CompletedAt = &now
	})
}

func (r *MemoryGenerationRepository) MarkFailed(ctx context.Context, id, reason string, attempts []domain.Attempt) error {
	return r.update(id, func(g *domain.Generation) {
		now := r.now()
		g.Status = domain.GenerationFailed
		g.Error = reason
		g.Attempts = append([]domain.Attempt(nil), attempts...)
		g.CompletedAt = &now
	})
}

func (r *MemoryGenerationRepository) Get(ctx context.Context, id string) (*domain.Generation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.items[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	g.Attempts = append([]domain.Attempt(nil), g.Attempts...)
	return &g, nil
}

func (r *MemoryGenerationRepository) update(id string, fn func(*domain.Generation)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.items[id]
	if !ok {
		return domain.ErrNotFound
	}
	fn(&g)
	g.UpdatedAt = r.now()
	r.items[id] = g
	return nil
}

// MemoryNotificationRepository is the in-process counterpart of
// NotificationRepositoryPG, including its ULID ordering and limits.
type MemoryNotificationRepository struct {
	mu    sync.Mutex
	items []domain.Notification
	now   func() time.Time
}

func NewMemoryNotificationRepository() *MemoryNotificationRepository {
	return &MemoryNotificationRepository{now: time.Now}
}

func (r *MemoryNotificationRepository) Create(ctx context.Context, n *domain.Notification) error {
	if n.UserID == "" || n.Type == "" {
		return fmt.Errorf("%w: notification user and type are required", domain.ErrInvalidRequest)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if n.ID == "" {
		n.ID = ulid.Make().String()
	}
	n.Read = false
	n.CreatedAt = r.now()
	r.items = append(r.items, *n)
	return nil
}

func (r *MemoryNotificationRepository) ListForUser(ctx context.Context, userID string, unreadOnly bool, limit int) ([]domain.Notification, error) {
	if limit <= 0 {
		limit = defaultNotificationLimit
	}
	if limit > maxNotificationLimit {
		limit = maxNotificationLimit
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Notification, 0)
	for _, n := range r.items {
		if n.UserID != userID || (unreadOnly && n.Read) {
			continue
		}
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryNotificationRepository) MarkRead(ctx context.Context, userID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.items {
		if r.items[i].ID == id && r.items[i].UserID == userID {
			r.items[i].Read = true
			return nil
		}
	}
	return domain.ErrNotFound
}

func (r *MemoryNotificationRepository) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for i := range r.items {
		if r.items[i].UserID == userID && !r.items[i].Read {
			r.items[i].Read = true
			n++
		}
	}
	return n, nil
}

var (
	_ domain.GenerationRepository   = (*MemoryGenerationRepository)(nil)
	_ domain.NotificationRepository = (*MemoryNotificationRepository)(nil)
)
