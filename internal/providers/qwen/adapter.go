package qwen

import (
	"context"
	"fmt"

	"github.com/leavend/genstudio/internal/providers"
)

const Name = "qwen"

var supported = map[string]bool{
	"image":          true,
	"logo":           true,
	"style-transfer": true,
	"enhancement":    true,
}

// Adapter exposes the Qwen client through the provider contract.
type Adapter struct {
	client *Client
}

func NewAdapter(client *Client) *Adapter {
	return &Adapter{client: client}
}

func (a *Adapter) Name() string { return Name }

func (a *Adapter) Supports(capability string) bool { return supported[capability] }

// Available only checks that a key resolves; DashScope has no cheap health
// endpoint.
func (a *Adapter) Available(ctx context.Context) error {
	if _, err := a.client.APIKey(ctx); err != nil {
		return fmt.Errorf("%w: %v", providers.ErrNotConfigured, err)
	}
	return nil
}

func (a *Adapter) Invoke(ctx context.Context, req providers.Request) (providers.Response, error) {
	seed, _ := req.Params["seed"].(float64)
	res, err := a.client.Generate(ctx, ImageRequest{
		Prompt:         buildInstruction(req.Capability, req.Locale, req.Prompt, req.Params, req.Width, req.Height),
		NegativePrompt: req.NegativePrompt,
		Width:          req.Width,
		Height:         req.Height,
		Seed:           int(seed),
		RequestID:      req.ID,
		SourceURL:      req.SourceURL,
	})
	if err != nil {
		return providers.Failed("%v", err), nil
	}
	return providers.Completed(res), nil
}

var _ providers.Adapter = (*Adapter)(nil)
