package generation

import (
	"fmt"
	"strings"

	"github.com/leavend/genstudio/internal/domain"
	"github.com/leavend/genstudio/internal/providers"
)

const maxDimension = 2048

// Payload is the job data of every generation queue.
type Payload struct {
	GenerationID   string         `json:"generation_id"`
	UserID         string         `json:"user_id"`
	Kind           string         `json:"kind"`
	Prompt         string         `json:"prompt"`
	NegativePrompt string         `json:"negative_prompt,omitempty"`
	Model          string         `json:"model,omitempty"`
	Width          int            `json:"width,omitempty"`
	Height         int            `json:"height,omitempty"`
	SourceURL      string         `json:"source_url,omitempty"`
	Locale         string         `json:"locale,omitempty"`
	Params         map[string]any `json:"params,omitempty"`
}

// needsSource lists kinds that transform an existing image.
var needsSource = map[string]bool{
	KindEnhancement:       true,
	KindBackgroundRemoval: true,
	KindStyleTransfer:     true,
}

// Validate checks the fields a processor relies on.
func (p *Payload) Validate() error {
	p.Prompt = strings.TrimSpace(p.Prompt)
	p.SourceURL = strings.TrimSpace(p.SourceURL)
	if _, ok := Lookup(p.Kind); !ok {
		return fmt.Errorf("%w: %q", domain.ErrUnsupportedKind, p.Kind)
	}
	if p.UserID == "" {
		return fmt.Errorf("%w: user is required", domain.ErrInvalidRequest)
	}
	if needsSource[p.Kind] {
		if p.SourceURL == "" {
			return fmt.Errorf("%w: source_url is required for %s", domain.ErrInvalidRequest, p.Kind)
		}
	} else if p.Prompt == "" {
		return fmt.Errorf("%w: prompt is required", domain.ErrInvalidRequest)
	}
	if p.Width < 0 || p.Height < 0 || p.Width > maxDimension || p.Height > maxDimension {
		return fmt.Errorf("%w: dimensions must be between 0 and %d", domain.ErrInvalidRequest, maxDimension)
	}
	return nil
}

func (p Payload) request() providers.Request {
	return providers.Request{
		ID:             p.GenerationID,
		Prompt:         p.Prompt,
		NegativePrompt: p.NegativePrompt,
		Model:          p.Model,
		Width:          p.Width,
		Height:         p.Height,
		SourceURL:      p.SourceURL,
		Locale:         p.Locale,
		Params:         p.Params,
	}
}

// Broadcast is the job data of the notification-fanout queue.
type Broadcast struct {
	UserIDs []string       `json:"user_ids"`
	Title   string         `json:"title"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}

// Validate trims and dedupes recipients.
func (b *Broadcast) Validate() error {
	seen := make(map[string]bool, len(b.UserIDs))
	users := b.UserIDs[:0]
	for _, id := range b.UserIDs {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		users = append(users, id)
	}
	b.UserIDs = users
	if len(b.UserIDs) == 0 {
		return fmt.Errorf("%w: at least one recipient is required", domain.ErrInvalidRequest)
	}
	if strings.TrimSpace(b.Title) == "" {
		return fmt.Errorf("%w: title is required", domain.ErrInvalidRequest)
	}
	return nil
}
