package handlers

import (
	"context"
	"maps"
	"net/http"
	"time"

	"github.com/leavend/genstudio/internal/generation"
	"github.com/leavend/genstudio/internal/middleware"
	"github.com/leavend/genstudio/internal/stream"
)

const defaultLogoBatch = 4

type logoStreamRequest struct {
	Prompt         string         `json:"prompt"`
	NegativePrompt string         `json:"negative_prompt"`
	Model          string         `json:"model"`
	Width          int            `json:"width"`
	Height         int            `json:"height"`
	N              int            `json:"n"`
	Params         map[string]any `json:"params"`
}

// LogoStream generates n logos one after another and writes one NDJSON line
// per finished item. Items bypass the queue but create records exactly like
// queued ones.
func (a *App) LogoStream(w http.ResponseWriter, r *http.Request) {
	userID := a.requireUser(w, r)
	if userID == "" {
		return
	}
	var req logoStreamRequest
	if err := decode(w, r, &req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if req.N == 0 {
		req.N = defaultLogoBatch
	}
	if req.N < 1 || req.N > stream.MaxBatch {
		a.error(w, http.StatusBadRequest, "bad_request", stream.ErrBatchSize.Error())
		return
	}
	template := generation.Payload{
		UserID:         userID,
		Kind:           generation.KindLogo,
		Prompt:         req.Prompt,
		NegativePrompt: req.NegativePrompt,
		Model:          req.Model,
		Width:          req.Width,
		Height:         req.Height,
		Locale:         middleware.LocaleFromContext(r.Context()),
	}
	if err := template.Validate(); err != nil {
		a.fail(w, r, err)
		return
	}

	rc := http.NewResponseController(w)
	// The batch outlives the server write timeout.
	_ = rc.SetWriteDeadline(time.Time{})
	w.Header().Set("Content-Type", stream.ContentType)
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	start := time.Now()
	sum, err := stream.NewExecutor(w, rc.Flush).Run(r.Context(), req.N, func(ctx context.Context, i int) (stream.Item, error) {
		p := template
		p.Params = maps.Clone(req.Params)
		if p.Params == nil {
			p.Params = make(map[string]any, 1)
		}
		p.Params["variant"] = i + 1
		g, res, err := a.Generations.RunInline(ctx, p)
		var item stream.Item
		if g != nil {
			item.ID = g.ID
		}
		if err != nil {
			return item, err
		}
		item.Result = res
		return item, nil
	})
	event := a.Logger.Info()
	if err != nil {
		event = a.Logger.Warn().Err(err)
	}
	event.Str("user_id", userID).
		Int("requested", req.N).
		Int("completed", sum.Completed).
		Int("failed", sum.Failed).
		Dur("duration", time.Since(start)).
		Msg("logo stream finished")
}
