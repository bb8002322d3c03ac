package local

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/leavend/genstudio/internal/infra"
	"github.com/leavend/genstudio/internal/providers"
)

const Name = "local"

// Options configures the adapter for the self-hosted GPU inference service.
type Options struct {
	BaseURL      string
	HTTPClient   *http.Client
	Logger       infra.Logger
	HealthTTL    time.Duration
	Capabilities []string
}

// Adapter talks to a local GPU service exposing GET /health and
// POST /v1/generate.
type Adapter struct {
	baseURL      string
	httpClient   *http.Client
	logger       infra.Logger
	healthTTL    time.Duration
	capabilities map[string]bool

	mu        sync.Mutex
	checkedAt time.Time
	healthErr error
}

type generateResponse struct {
	Status      string         `json:"status"`
	URL         string         `json:"url"`
	ImageBase64 string         `json:"image_base64"`
	MIME        string         `json:"mime"`
	Width       int            `json:"width"`
	Height      int            `json:"height"`
	Error       string         `json:"error"`
	Meta        map[string]any `json:"meta"`
}

func NewAdapter(opts Options) *Adapter {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	ttl := opts.HealthTTL
	if ttl <= 0 {
		ttl = 15 * time.Second
	}
	var caps map[string]bool
	if len(opts.Capabilities) > 0 {
		caps = make(map[string]bool, len(opts.Capabilities))
		for _, c := range opts.Capabilities {
			caps[c] = true
		}
	}
	return &Adapter{
		baseURL:      strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"),
		httpClient:   httpClient,
		logger:       infra.Component(opts.Logger, "providers.local"),
		healthTTL:    ttl,
		capabilities: caps,
	}
}

func (a *Adapter) Name() string { return Name }

// Supports reports every capability unless the adapter was restricted.
func (a *Adapter) Supports(capability string) bool {
	return a.capabilities == nil || a.capabilities[capability]
}

// Available checks configuration and caches the health check result for HealthTTL.
func (a *Adapter) Available(ctx context.Context) error {
	if a.baseURL == "" {
		return fmt.Errorf("%w: LOCAL_GPU_URL is empty", providers.ErrNotConfigured)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.checkedAt.IsZero() && time.Since(a.checkedAt) < a.healthTTL {
		return a.healthErr
	}
	a.healthErr = a.checkHealth(ctx)
	a.checkedAt = time.Now()
	return a.healthErr
}

func (a *Adapter) checkHealth(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("local: build health request: %w", err)
	}
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("local: health check: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("local: health status %d", resp.StatusCode)
	}
	return nil
}

// Invoke submits one generation. Transport and remote errors become failed
// responses so the chain can move on.
func (a *Adapter) Invoke(ctx context.Context, req providers.Request) (providers.Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return providers.Response{}, fmt.Errorf("local: encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v1/generate", bytes.NewReader(body))
	if err != nil {
		return providers.Response{}, fmt.Errorf("local: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		a.markUnhealthy(err)
		return providers.Failed("local: http request: %v", err), nil
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return providers.Failed("local: read response: %v", err), nil
	}
	var decoded generateResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		if resp.StatusCode >= 300 {
			return providers.Failed("local: status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw))), nil
		}
		return providers.Failed("local: decode response: %v", err), nil
	}
	if resp.StatusCode >= 300 || decoded.Status == string(providers.StatusFailed) {
		msg := decoded.Error
		if msg == "" {
			msg = fmt.Sprintf("status %d", resp.StatusCode)
		}
		return providers.Failed("local: %s", msg), nil
	}

	result := &providers.Result{
		URL:    decoded.URL,
		MIME:   decoded.MIME,
		Width:  decoded.Width,
		Height: decoded.Height,
		Meta:   decoded.Meta,
	}
	if decoded.ImageBase64 != "" {
		data, err := base64.StdEncoding.DecodeString(decoded.ImageBase64)
		if err != nil {
			return providers.Failed("local: invalid inline data: %v", err), nil
		}
		result.Data = data
	}
	if result.URL == "" && len(result.Data) == 0 {
		return providers.Failed("local: empty result"), nil
	}
	if result.MIME == "" {
		result.MIME = "image/png"
	}
	a.logger.Debug().Str("request_id", req.ID).Str("capability", req.Capability).Msg("local: generation completed")
	return providers.Completed(result), nil
}

func (a *Adapter) markUnhealthy(err error) {
	a.mu.Lock()
	a.healthErr = fmt.Errorf("local: last call failed: %w", err)
	a.checkedAt = time.Now()
	a.mu.Unlock()
}

var _ providers.Adapter = (*Adapter)(nil)
