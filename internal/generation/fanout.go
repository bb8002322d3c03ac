package generation

import (
	"context"
	"fmt"

	"github.com/leavend/genstudio/internal/domain"
	"github.com/leavend/genstudio/internal/infra"
	"github.com/leavend/genstudio/internal/notify"
	"github.com/leavend/genstudio/internal/worker"
)

// FanoutHandler delivers a broadcast to each recipient. A retry after a
// partial failure notifies every recipient again; stored delivery is
// at-least-once.
type FanoutHandler struct {
	notifier Notifier
	logger   infra.Logger
}

func NewFanoutHandler(notifier Notifier, logger infra.Logger) *FanoutHandler {
	return &FanoutHandler{notifier: notifier, logger: infra.Component(logger, "fanout")}
}

func (h *FanoutHandler) Process(ctx context.Context, job *worker.Job) (any, error) {
	var b Broadcast
	if err := job.Decode(&b); err != nil {
		return nil, err
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	failed := 0
	for i, userID := range b.UserIDs {
		if _, err := h.notifier.Notify(ctx, notify.Message{
			UserID:  userID,
			Type:    domain.NotificationBroadcast,
			Title:   b.Title,
			Message: b.Message,
			Data:    b.Data,
		}); err != nil {
			failed++
			h.logger.Warn().Err(err).Str("job_id", job.ID).Str("user_id", userID).Msg("fanout: delivery failed")
		}
		_ = job.Progress(ctx, (i+1)*100/len(b.UserIDs))
	}
	if failed > 0 {
		return nil, fmt.Errorf("broadcast: %d of %d deliveries failed", failed, len(b.UserIDs))
	}
	return map[string]int{"delivered": len(b.UserIDs)}, nil
}
