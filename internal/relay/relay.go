// Package relay carries live events from the processes that produce them
// (workers) to the process holding the user's websocket (api).
package relay

import (
	"context"
	"encoding/json"
	"fmt"
)

// Event types pushed to clients.
const (
	EventNotification = "notification"
	EventJobUpdate    = "job:update"
)

// Event is one live message addressed to a user.
type Event struct {
	Type    string          `json:"type"`
	UserID  string          `json:"user_id"`
	Payload json.RawMessage `json:"payload"`
}

// NewEvent marshals payload into an Event.
func NewEvent(eventType, userID string, payload any) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("relay: encode %s payload: %w", eventType, err)
	}
	return Event{Type: eventType, UserID: userID, Payload: raw}, nil
}

// Publisher sends events. Delivery is at most once.
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
}

// Subscriber delivers events to handle until ctx is cancelled.
type Subscriber interface {
	Subscribe(ctx context.Context, handle func(Event)) error
}

// Relay is a transport that can both publish and subscribe.
type Relay interface {
	Publisher
	Subscriber
	Close() error
}
