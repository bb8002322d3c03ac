package repo

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/leavend/genstudio/internal/domain"
	"github.com/leavend/genstudio/internal/sqlinline"
)

func TestGenerationCreateSetsPending(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	exec := &stubExecutor{row: func(dest ...any) error {
		return assign([]any{now, now}, dest)
	}}
	repo := NewGenerationRepository(exec)

	g := &domain.Generation{ID: "0b7e4c1a-3d2f-4e5a-9b8c-7d6e5f4a3b2c", UserID: "u1", Kind: "image", Prompt: "a cat"}
	if err := repo.Create(context.Background(), g); err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if g.Status != domain.GenerationPending {
		t.Fatalf("status = %q", g.Status)
	}
	if !g.CreatedAt.Equal(now) {
		t.Fatalf("CreatedAt = %v", g.CreatedAt)
	}
	if exec.calls[0].query != sqlinline.QInsertGeneration {
		t.Fatalf("unexpected query %q", exec.calls[0].query)
	}
	if params, _ := exec.calls[0].args[5].([]byte); params != nil {
		t.Fatalf("empty params should be sent as NULL, got %#v", exec.calls[0].args[5])
	}
}

func TestGenerationCreateRequiresIdentity(t *testing.T) {
	repo := NewGenerationRepository(&stubExecutor{})
	err := repo.Create(context.Background(), &domain.Generation{UserID: "u1", Kind: "image"})
	if !errors.Is(err, domain.ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}

func TestGenerationMarkCompletedEncodesAttempts(t *testing.T) {
	exec := &stubExecutor{rowsAff: 1}
	repo := NewGenerationRepository(exec)

	attempts := []domain.Attempt{
		{Provider: "local", Success: false, DurationMS: 1200, Error: "timeout"},
		{Provider: "qwen", Success: true, DurationMS: 800},
	}
	if err := repo.MarkCompleted(context.Background(), "g1", "http://cdn/x.png", "qwen", attempts); err != nil {
		t.Fatalf("MarkCompleted error: %v", err)
	}
	args := exec.calls[0].args
	if args[1] != "http://cdn/x.png" || args[2] != "qwen" {
		t.Fatalf("unexpected args %#v", args)
	}
	var decoded []domain.Attempt
	if err := json.Unmarshal(args[3].([]byte), &decoded); err != nil {
		t.Fatalf("attempts not json: %v", err)
	}
	if len(decoded) != 2 || decoded[0].Provider != "local" || !decoded[1].Success {
		t.Fatalf("attempts = %#v", decoded)
	}
}

func TestGenerationMarkFailedNilAttemptsIsEmptyArray(t *testing.T) {
	exec := &stubExecutor{rowsAff: 1}
	repo := NewGenerationRepository(exec)
	if err := repo.MarkFailed(context.Background(), "g1", "no provider configured", nil); err != nil {
		t.Fatalf("MarkFailed error: %v", err)
	}
	if got := string(exec.calls[0].args[2].([]byte)); got != "[]" {
		t.Fatalf("attempts = %s", got)
	}
}

func TestGenerationMarkProcessingMissing(t *testing.T) {
	repo := NewGenerationRepository(&stubExecutor{rowsAff: 0})
	if err := repo.MarkProcessing(context.Background(), "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGenerationMarkProcessingIsRepeatable(t *testing.T) {
	exec := &stubExecutor{rowsAff: 1}
	repo := NewGenerationRepository(exec)
	for i := 0; i < 2; i++ {
		if err := repo.MarkProcessing(context.Background(), "g1"); err != nil {
			t.Fatalf("MarkProcessing #%d error: %v", i, err)
		}
	}
	if !strings.Contains(exec.calls[1].query, "error = null") {
		t.Fatalf("processing update should clear previous error")
	}
}

func TestGenerationGet(t *testing.T) {
	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	done := created.Add(time.Minute)
	exec := &stubExecutor{row: func(dest ...any) error {
		return assign([]any{
			"g1", "u1", "video", "sunset", "", []byte(`{"seconds":4}`), "COMPLETED",
			"http://cdn/v.mp4", "local", "",
			[]byte(`[{"provider":"local","success":true,"duration_ms":5}]`),
			created, done, done,
		}, dest)
	}}
	repo := NewGenerationRepository(exec)

	g, err := repo.Get(context.Background(), "g1")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if g.Status != domain.GenerationCompleted || g.ResultURL != "http://cdn/v.mp4" {
		t.Fatalf("unexpected generation %+v", g)
	}
	if len(g.Attempts) != 1 || g.Attempts[0].Provider != "local" {
		t.Fatalf("attempts = %#v", g.Attempts)
	}
	if g.CompletedAt == nil || !g.CompletedAt.Equal(done) {
		t.Fatalf("CompletedAt = %v", g.CompletedAt)
	}
}

func TestGenerationGetNotFound(t *testing.T) {
	repo := NewGenerationRepository(&stubExecutor{})
	if _, err := repo.Get(context.Background(), "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
