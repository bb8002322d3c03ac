package domain

import (
	"encoding/json"
	"time"
)

// GenerationStatus enumerates the lifecycle of a requested artifact. It is
// tracked independently from the queue job that produces it.
type GenerationStatus string

const (
	GenerationPending    GenerationStatus = "PENDING"
	GenerationProcessing GenerationStatus = "PROCESSING"
	GenerationCompleted  GenerationStatus = "COMPLETED"
	GenerationFailed     GenerationStatus = "FAILED"
)

// Terminal reports whether no further transition is expected.
func (s GenerationStatus) Terminal() bool {
	return s == GenerationCompleted || s == GenerationFailed
}

// Generation is the durable record of one requested artifact.
type Generation struct {
	ID          string           `json:"id"`
	UserID      string           `json:"user_id"`
	Kind        string           `json:"kind"`
	Prompt      string           `json:"prompt"`
	Model       string           `json:"model,omitempty"`
	Params      json.RawMessage  `json:"params,omitempty"`
	Status      GenerationStatus `json:"status"`
	ResultURL   string           `json:"result_url,omitempty"`
	Provider    string           `json:"provider,omitempty"`
	Error       string           `json:"error,omitempty"`
	Attempts    []Attempt        `json:"attempts,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
}

// Attempt records one provider invocation inside a failover chain.
type Attempt struct {
	Provider   string `json:"provider"`
	Success    bool   `json:"success"`
	DurationMS int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}
