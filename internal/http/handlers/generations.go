package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/leavend/genstudio/internal/generation"
	"github.com/leavend/genstudio/internal/middleware"
)

type generationRequest struct {
	Prompt         string         `json:"prompt"`
	NegativePrompt string         `json:"negative_prompt"`
	Model          string         `json:"model"`
	Width          int            `json:"width"`
	Height         int            `json:"height"`
	SourceURL      string         `json:"source_url"`
	Params         map[string]any `json:"params"`
}

func (req generationRequest) payload(r *http.Request, userID, kind string) generation.Payload {
	p := generation.Payload{
		UserID:         userID,
		Kind:           kind,
		Prompt:         req.Prompt,
		NegativePrompt: req.NegativePrompt,
		Model:          req.Model,
		Width:          req.Width,
		Height:         req.Height,
		SourceURL:      req.SourceURL,
		Locale:         middleware.LocaleFromContext(r.Context()),
		Params:         req.Params,
	}
	if key := strings.TrimSpace(r.Header.Get("Idempotency-Key")); key != "" {
		p.GenerationID = generation.IdempotentID(userID, key)
	}
	return p
}

// CreateGeneration accepts a request for one artifact of {kind}. The record
// is created before the job is enqueued; without a queue the job runs inline
// and the response carries mode "sync".
func (a *App) CreateGeneration(w http.ResponseWriter, r *http.Request) {
	userID := a.requireUser(w, r)
	if userID == "" {
		return
	}
	var req generationRequest
	if err := decode(w, r, &req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	kind := strings.ToLower(chi.URLParam(r, "kind"))
	sub, err := a.Generations.Submit(r.Context(), req.payload(r, userID, kind))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	code := http.StatusAccepted
	if sub.Mode == generation.ModeSync || sub.Generation.Status.Terminal() {
		code = http.StatusOK
	}
	a.json(w, code, sub)
}

func (a *App) GetGeneration(w http.ResponseWriter, r *http.Request) {
	userID := a.requireUser(w, r)
	if userID == "" {
		return
	}
	g, err := a.Generations.Get(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, g)
}
