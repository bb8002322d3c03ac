package domain

import "context"

// GenerationRepository persists generation records. Status writes are
// last-write-wins; only the processor holding the job claim issues them.
type GenerationRepository interface {
	Create(ctx context.Context, g *Generation) error
	MarkProcessing(ctx context.Context, id string) error
	MarkCompleted(ctx context.Context, id, resultURL, provider string, attempts []Attempt) error
	MarkFailed(ctx context.Context, id, reason string, attempts []Attempt) error
	Get(ctx context.Context, id string) (*Generation, error)
}

// NotificationRepository persists notifications for later retrieval.
type NotificationRepository interface {
	Create(ctx context.Context, n *Notification) error
	ListForUser(ctx context.Context, userID string, unreadOnly bool, limit int) ([]Notification, error)
	MarkRead(ctx context.Context, userID, id string) error
	MarkAllRead(ctx context.Context, userID string) (int64, error)
}
