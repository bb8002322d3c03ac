package domain

import (
	"encoding/json"
	"time"
)

// Notification types emitted on terminal job outcomes.
const (
	NotificationGenerationCompleted = "generation.completed"
	NotificationGenerationFailed    = "generation.failed"
	NotificationBroadcast           = "broadcast"
)

// Notification is a durable user-facing message. Live delivery is best
// effort; the stored copy is what clients catch up from.
type Notification struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	Type      string          `json:"type"`
	Title     string          `json:"title"`
	Message   string          `json:"message"`
	Data      json.RawMessage `json:"data,omitempty"`
	Read      bool            `json:"read"`
	CreatedAt time.Time       `json:"created_at"`
}
