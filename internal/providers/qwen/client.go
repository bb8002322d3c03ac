package qwen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/leavend/genstudio/internal/infra"
	"github.com/leavend/genstudio/internal/providers"
)

const (
	defaultBaseURL  = "https://dashscope-intl.aliyuncs.com/api/v1"
	defaultModel    = "qwen-image-plus"
	generationRoute = "/services/aigc/multimodal-generation/generation"

	// maxImageBytes caps a downloaded artifact before it reaches the store.
	maxImageBytes = 20 << 20
)

// ErrMissingAPIKey indicates that the client was configured without credentials.
var ErrMissingAPIKey = errors.New("qwen: api key is required")

// KeySource resolves the API key at call time so keys rotated through the
// credential store take effect without a restart.
type KeySource func(ctx context.Context) (string, error)

// Options configures the DashScope client.
type Options struct {
	APIKey         string
	Keys           KeySource
	BaseURL        string
	Model          string
	PromptExtend   bool
	Watermark      bool
	HTTPClient     *http.Client
	Logger         infra.Logger
	RequestTimeout time.Duration
}

// Client calls the DashScope multimodal generation endpoint and downloads the
// produced image.
type Client struct {
	apiKey       string
	keys         KeySource
	endpoint     string
	model        string
	promptExtend bool
	watermark    bool
	httpClient   *http.Client
	logger       infra.Logger
}

// ImageRequest is one generation call. SourceURL turns it into an edit of an
// existing image. An empty Size lets the client pick one from Width/Height.
type ImageRequest struct {
	Prompt         string
	NegativePrompt string
	Size           string
	Width          int
	Height         int
	Seed           int
	RequestID      string
	SourceURL      string
}

// APIError is a rejection reported by DashScope itself.
type APIError struct {
	Status    int
	Code      string
	Message   string
	RequestID string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("qwen: status %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("qwen: %s (%s)", e.Message, e.Code)
}

type generationRequest struct {
	Model      string           `json:"model"`
	Input      generationInput  `json:"input"`
	Parameters generationParams `json:"parameters"`
}

type generationInput struct {
	Messages []generationMessage `json:"messages"`
}

type generationMessage struct {
	Role    string              `json:"role"`
	Content []generationContent `json:"content"`
}

type generationContent struct {
	Image string `json:"image,omitempty"`
	Text  string `json:"text,omitempty"`
}

type generationParams struct {
	NegativePrompt string `json:"negative_prompt,omitempty"`
	Size           string `json:"size,omitempty"`
	PromptExtend   *bool  `json:"prompt_extend,omitempty"`
	Watermark      *bool  `json:"watermark,omitempty"`
	Seed           *int   `json:"seed,omitempty"`
}

type generationResponse struct {
	Output struct {
		Choices []struct {
			Message struct {
				Content []struct {
					Image string `json:"image"`
				} `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	} `json:"output"`
	Usage struct {
		Width  int `json:"width"`
		Height int `json:"height"`
	} `json:"usage"`
	RequestID string `json:"request_id"`
	Code      string `json:"code"`
	Message   string `json:"message"`
}

func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 45 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = defaultModel
	}
	return &Client{
		apiKey:       strings.TrimSpace(opts.APIKey),
		keys:         opts.Keys,
		endpoint:     baseURL + generationRoute,
		model:        model,
		promptExtend: opts.PromptExtend,
		watermark:    opts.Watermark,
		httpClient:   httpClient,
		logger:       infra.Component(opts.Logger, "providers.qwen"),
	}
}

func (c *Client) Model() string {
	return c.model
}

// APIKey returns the key to use for the next call.
func (c *Client) APIKey(ctx context.Context) (string, error) {
	if c.keys != nil {
		key, err := c.keys(ctx)
		if err != nil {
			return "", fmt.Errorf("qwen: resolve api key: %w", err)
		}
		if key = strings.TrimSpace(key); key != "" {
			return key, nil
		}
	}
	if c.apiKey == "" {
		return "", ErrMissingAPIKey
	}
	return c.apiKey, nil
}

// Generate runs one generation and returns the downloaded image. The remote
// URL is kept on the result next to the bytes.
func (c *Client) Generate(ctx context.Context, req ImageRequest) (*providers.Result, error) {
	apiKey, err := c.APIKey(ctx)
	if err != nil {
		return nil, err
	}
	payload, err := c.payload(req)
	if err != nil {
		return nil, err
	}
	decoded, err := c.call(ctx, apiKey, req.RequestID, payload)
	if err != nil {
		return nil, err
	}
	imageURL := firstImageURL(decoded)
	if imageURL == "" {
		return nil, errors.New("qwen: response carried no image")
	}
	data, mime, err := c.fetch(ctx, imageURL)
	if err != nil {
		return nil, err
	}

	res := &providers.Result{
		URL:    imageURL,
		Data:   data,
		MIME:   mime,
		Width:  decoded.Usage.Width,
		Height: decoded.Usage.Height,
		Meta: map[string]any{
			"model":      c.model,
			"size":       payload.Parameters.Size,
			"request_id": decoded.RequestID,
		},
	}
	if res.Width == 0 || res.Height == 0 {
		if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
			res.Width, res.Height = cfg.Width, cfg.Height
		}
	}
	c.logger.Debug().
		Str("model", c.model).
		Str("request_id", decoded.RequestID).
		Str("size", payload.Parameters.Size).
		Int("bytes", len(data)).
		Msg("qwen: image generated")
	return res, nil
}

func (c *Client) payload(req ImageRequest) (generationRequest, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return generationRequest{}, errors.New("qwen: prompt is required")
	}
	source := strings.TrimSpace(req.SourceURL)
	content := make([]generationContent, 0, 2)
	if source != "" {
		content = append(content, generationContent{Image: source})
	}
	content = append(content, generationContent{Text: prompt})

	size := strings.TrimSpace(req.Size)
	if size == "" {
		size = sizeFor(req.Width, req.Height)
	}
	watermark := c.watermark
	out := generationRequest{
		Model: c.model,
		Input: generationInput{Messages: []generationMessage{{Role: "user", Content: content}}},
		Parameters: generationParams{
			NegativePrompt: strings.TrimSpace(req.NegativePrompt),
			Size:           size,
			Watermark:      &watermark,
		},
	}
	// Prompt rewriting drifts edits away from the source image.
	if extend := c.promptExtend; extend && source == "" {
		out.Parameters.PromptExtend = &extend
	}
	if req.Seed > 0 {
		seed := req.Seed
		out.Parameters.Seed = &seed
	}
	return out, nil
}

func (c *Client) call(ctx context.Context, apiKey, requestID string, payload generationRequest) (generationResponse, error) {
	var decoded generationResponse
	body, err := json.Marshal(payload)
	if err != nil {
		return decoded, fmt.Errorf("qwen: encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return decoded, fmt.Errorf("qwen: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)
	if requestID != "" {
		httpReq.Header.Set("X-Request-ID", requestID)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return decoded, fmt.Errorf("qwen: http request: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return decoded, fmt.Errorf("qwen: read response: %w", err)
	}

	if err := json.Unmarshal(raw, &decoded); err != nil {
		if resp.StatusCode >= 300 {
			return decoded, &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
		}
		return decoded, fmt.Errorf("qwen: decode response: %w", err)
	}
	if resp.StatusCode >= 300 || decoded.Code != "" {
		msg := decoded.Message
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return decoded, &APIError{Status: resp.StatusCode, Code: decoded.Code, Message: msg, RequestID: decoded.RequestID}
	}
	return decoded, nil
}

// fetch downloads the generated image. The MIME type falls back to sniffing
// when the CDN sends none or a generic one.
func (c *Client) fetch(ctx context.Context, imageURL string) ([]byte, string, error) {
	parsed, err := url.Parse(imageURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return nil, "", fmt.Errorf("qwen: invalid image url %q", imageURL)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.String(), nil)
	if err != nil {
		return nil, "", fmt.Errorf("qwen: build download request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("qwen: download image: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, "", fmt.Errorf("qwen: download status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("qwen: read image: %w", err)
	}
	if len(data) > maxImageBytes {
		return nil, "", fmt.Errorf("qwen: image exceeds %d bytes", maxImageBytes)
	}
	mime := strings.TrimSpace(strings.Split(resp.Header.Get("Content-Type"), ";")[0])
	if mime == "" || mime == "application/octet-stream" {
		mime = http.DetectContentType(data)
	}
	return data, mime, nil
}

func firstImageURL(resp generationResponse) string {
	for _, choice := range resp.Output.Choices {
		for _, content := range choice.Message.Content {
			if u := strings.TrimSpace(content.Image); u != "" {
				return u
			}
		}
	}
	return ""
}

// supportedSizes are the output sizes the image models accept, in "W*H" form.
var supportedSizes = []struct{ w, h int }{
	{1664, 928},
	{1472, 1140},
	{1328, 1328},
	{1140, 1472},
	{928, 1664},
}

// sizeFor picks the supported size whose aspect ratio is closest to the
// requested one. Missing dimensions mean square.
func sizeFor(width, height int) string {
	if width <= 0 || height <= 0 {
		width, height = 1, 1
	}
	want := math.Log(float64(width) / float64(height))
	best, bestDist := supportedSizes[0], math.Inf(1)
	for _, s := range supportedSizes {
		if d := math.Abs(math.Log(float64(s.w)/float64(s.h)) - want); d < bestDist {
			best, bestDist = s, d
		}
	}
	return fmt.Sprintf("%d*%d", best.w, best.h)
}
