package providers

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotConfigured is returned by Available when an adapter lacks the
// endpoint or credentials it needs. Such candidates are skipped, not counted.
var ErrNotConfigured = errors.New("provider not configured")

// ErrNoProvider is reported when a capability has no usable candidate.
var ErrNoProvider = errors.New("no provider configured")

// Status is the outcome reported by an adapter invocation.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Request is the normalized input handed to any adapter.
type Request struct {
	ID             string         `json:"request_id"`
	Capability     string         `json:"capability"`
	Prompt         string         `json:"prompt"`
	NegativePrompt string         `json:"negative_prompt,omitempty"`
	Model          string         `json:"model,omitempty"`
	Width          int            `json:"width,omitempty"`
	Height         int            `json:"height,omitempty"`
	SourceURL      string         `json:"source_url,omitempty"`
	Locale         string         `json:"locale,omitempty"`
	Params         map[string]any `json:"params,omitempty"`
}

// Result is a produced artifact. Adapters either return a URL the backend
// hosts or inline Data for the caller to store.
type Result struct {
	URL    string         `json:"url,omitempty"`
	Data   []byte         `json:"-"`
	MIME   string         `json:"mime,omitempty"`
	Width  int            `json:"width,omitempty"`
	Height int            `json:"height,omitempty"`
	Meta   map[string]any `json:"meta,omitempty"`
}

// Response is what an adapter returns for ordinary outcomes. Remote failures
// are reported with StatusFailed; a Go error from Invoke means the adapter
// itself is broken and aborts the chain.
type Response struct {
	Status Status
	Result *Result
	Error  string
}

// Completed builds a successful response.
func Completed(r *Result) Response {
	return Response{Status: StatusCompleted, Result: r}
}

// Failed builds a failed response.
func Failed(format string, args ...any) Response {
	return Response{Status: StatusFailed, Error: fmt.Sprintf(format, args...)}
}

// Adapter is the uniform contract for one inference backend.
type Adapter interface {
	Name() string
	Supports(capability string) bool
	// Available returns nil when the adapter is configured and live.
	Available(ctx context.Context) error
	Invoke(ctx context.Context, req Request) (Response, error)
}
