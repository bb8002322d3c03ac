package repo

import (
	"context"
	"fmt"

	"github.com/oklog/ulid/v2"

	"github.com/leavend/genstudio/internal/domain"
	"github.com/leavend/genstudio/internal/infra"
	"github.com/leavend/genstudio/internal/sqlinline"
)

const (
	defaultNotificationLimit = 50
	maxNotificationLimit     = 200
)

// NotificationRepositoryPG implements domain.NotificationRepository. Ids are
// ULIDs so listing by id order is listing by creation order.
type NotificationRepositoryPG struct {
	sql   infra.SQLExecutor
	newID func() string
}

// NewNotificationRepository creates a notification repository backed by PostgreSQL.
func NewNotificationRepository(sql infra.SQLExecutor) *NotificationRepositoryPG {
	return &NotificationRepositoryPG{sql: sql, newID: func() string { return ulid.Make().String() }}
}

func (r *NotificationRepositoryPG) Create(ctx context.Context, n *domain.Notification) error {
	if n.UserID == "" || n.Type == "" {
		return fmt.Errorf("%w: notification user and type are required", domain.ErrInvalidRequest)
	}
	if n.ID == "" {
		n.ID = r.newID()
	}
	row := r.sql.QueryRow(ctx, sqlinline.QInsertNotification, n.ID, n.UserID, n.Type, n.Title, n.Message, nullableJSON(n.Data))
	if err := row.Scan(&n.CreatedAt); err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	n.Read = false
	return nil
}

// ListForUser returns the newest notifications first.
func (r *NotificationRepositoryPG) ListForUser(ctx context.Context, userID string, unreadOnly bool, limit int) ([]domain.Notification, error) {
	if limit <= 0 {
		limit = defaultNotificationLimit
	}
	if limit > maxNotificationLimit {
		limit = maxNotificationLimit
	}
	rows, err := r.sql.Query(ctx, sqlinline.QListNotifications, userID, unreadOnly, limit)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	items := make([]domain.Notification, 0)
	for rows.Next() {
		var n domain.Notification
		var data []byte
		if err := rows.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Message, &data, &n.Read, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		if len(data) > 0 {
			n.Data = data
		}
		items = append(items, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return items, nil
}

func (r *NotificationRepositoryPG) MarkRead(ctx context.Context, userID, id string) error {
	tag, err := r.sql.Exec(ctx, sqlinline.QMarkNotificationRead, id, userID)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *NotificationRepositoryPG) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	tag, err := r.sql.Exec(ctx, sqlinline.QMarkAllNotificationsRead, userID)
	if err != nil {
		return 0, fmt.Errorf("mark notifications read: %w", err)
	}
	return tag.RowsAffected(), nil
}

var _ domain.NotificationRepository = (*NotificationRepositoryPG)(nil)
