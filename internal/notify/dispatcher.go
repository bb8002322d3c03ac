package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/leavend/genstudio/internal/domain"
	"github.com/leavend/genstudio/internal/infra"
	"github.com/leavend/genstudio/internal/relay"
)

// Message is the input to Notify.
type Message struct {
	UserID  string
	Type    string
	Title   string
	Message string
	Data    any
}

// JobUpdate is the payload of a job:update event.
type JobUpdate struct {
	JobID        string `json:"job_id"`
	Queue        string `json:"queue"`
	GenerationID string `json:"generation_id,omitempty"`
	State        string `json:"state"`
	Progress     int    `json:"progress"`
	ResultURL    string `json:"result_url,omitempty"`
	Error        string `json:"error,omitempty"`
}

// Dispatcher persists notifications and pushes them live. The stored row is
// the durable copy; a failed push is logged and left to the client's
// catch-up fetch.
type Dispatcher struct {
	repo   domain.NotificationRepository
	pub    relay.Publisher
	logger infra.Logger
}

func NewDispatcher(repo domain.NotificationRepository, pub relay.Publisher, logger infra.Logger) *Dispatcher {
	return &Dispatcher{repo: repo, pub: pub, logger: infra.Component(logger, "notify")}
}

// Notify stores the notification and then publishes it.
func (d *Dispatcher) Notify(ctx context.Context, msg Message) (*domain.Notification, error) {
	if strings.TrimSpace(msg.UserID) == "" {
		return nil, fmt.Errorf("%w: notification user is required", domain.ErrInvalidRequest)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("%w: notification type is required", domain.ErrInvalidRequest)
	}
	var data json.RawMessage
	if msg.Data != nil {
		raw, err := json.Marshal(msg.Data)
		if err != nil {
			return nil, fmt.Errorf("encode notification data: %w", err)
		}
		data = raw
	}
	n := &domain.Notification{
		UserID:  msg.UserID,
		Type:    msg.Type,
		Title:   msg.Title,
		Message: msg.Message,
		Data:    data,
	}
	if err := d.repo.Create(ctx, n); err != nil {
		return nil, fmt.Errorf("persist notification: %w", err)
	}
	d.publish(ctx, relay.EventNotification, n.UserID, n)
	return n, nil
}

// JobUpdate pushes progress for a job. It is never persisted.
func (d *Dispatcher) JobUpdate(ctx context.Context, userID string, update JobUpdate) {
	if userID == "" {
		return
	}
	d.publish(ctx, relay.EventJobUpdate, userID, update)
}

func (d *Dispatcher) publish(ctx context.Context, eventType, userID string, payload any) {
	if d.pub == nil {
		return
	}
	evt, err := relay.NewEvent(eventType, userID, payload)
	if err == nil {
		err = d.pub.Publish(ctx, evt)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		d.logger.Warn().Err(err).Str("event", eventType).Str("user_id", userID).Msg("live push failed")
	}
}
