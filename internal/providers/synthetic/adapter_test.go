package synthetic

import (
	"bytes"
	"context"
	"image/gif"
	"image/png"
	"testing"
	"time"

	"github.com/leavend/genstudio/internal/providers"
)

func TestInvokeIsDeterministic(t *testing.T) {
	a := NewAdapter(Options{})
	req := providers.Request{Capability: "logo", Prompt: "coffee shop", Width: 64, Height: 32}

	first, err := a.Invoke(context.Background(), req)
	if err != nil {
		t.Fatalf("Invoke error: %v", err)
	}
	second, _ := a.Invoke(context.Background(), req)
	if !bytes.Equal(first.Result.Data, second.Result.Data) {
		t.Fatalf("same request produced different bytes")
	}

	img, err := png.Decode(bytes.NewReader(first.Result.Data))
	if err != nil {
		t.Fatalf("result is not a png: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 64 || b.Dy() != 32 {
		t.Fatalf("bounds = %v", b)
	}

	other, _ := a.Invoke(context.Background(), providers.Request{Capability: "logo", Prompt: "bakery", Width: 64, Height: 32})
	if bytes.Equal(first.Result.Data, other.Result.Data) {
		t.Fatalf("different prompts produced identical bytes")
	}
}

func TestInvokeVideoIsAnimated(t *testing.T) {
	resp, err := NewAdapter(Options{}).Invoke(context.Background(), providers.Request{Capability: "video", Prompt: "waves", Width: 16, Height: 16})
	if err != nil {
		t.Fatalf("Invoke error: %v", err)
	}
	if resp.Result.MIME != "image/gif" {
		t.Fatalf("mime = %q", resp.Result.MIME)
	}
	anim, err := gif.DecodeAll(bytes.NewReader(resp.Result.Data))
	if err != nil {
		t.Fatalf("decode gif: %v", err)
	}
	if len(anim.Image) != videoFrames {
		t.Fatalf("frames = %d, want %d", len(anim.Image), videoFrames)
	}
}

func TestSizeClamped(t *testing.T) {
	if clampSize(0) != defaultSize || clampSize(5000) != maxSize || clampSize(10) != 10 {
		t.Fatalf("unexpected clamp results")
	}
}

func TestLatencyHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	resp, err := NewAdapter(Options{Latency: time.Hour}).Invoke(ctx, providers.Request{})
	if err != nil {
		t.Fatalf("Invoke error: %v", err)
	}
	if resp.Status != providers.StatusFailed {
		t.Fatalf("expected failed response after cancel, got %+v", resp)
	}
}
