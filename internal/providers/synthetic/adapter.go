// Package synthetic renders deterministic placeholder artwork. It keeps the
// pipeline usable in development and acts as the last link of every chain.
package synthetic

import (
	"bytes"
	"context"
	"fmt"
	"hash/fnv"
	"image"
	"image/color"
	"image/color/palette"
	"image/gif"
	"image/png"
	"time"

	"github.com/leavend/genstudio/internal/providers"
)

const (
	Name          = "synthetic"
	defaultSize   = 256
	maxSize       = 1024
	videoFrames   = 8
	videoCapability = "video"
)

// Options configures the synthetic adapter.
type Options struct {
	// Latency simulates remote work before each result.
	Latency time.Duration
}

type Adapter struct {
	latency time.Duration
}

func NewAdapter(opts Options) *Adapter {
	return &Adapter{latency: opts.Latency}
}

func (a *Adapter) Name() string { return Name }

func (a *Adapter) Supports(string) bool { return true }

func (a *Adapter) Available(context.Context) error { return nil }

// Invoke returns a gradient seeded by the prompt, so equal requests always
// produce equal bytes.
func (a *Adapter) Invoke(ctx context.Context, req providers.Request) (providers.Response, error) {
	if a.latency > 0 {
		timer := time.NewTimer(a.latency)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return providers.Failed("synthetic: %v", ctx.Err()), nil
		case <-timer.C:
		}
	}

	width, height := clampSize(req.Width), clampSize(req.Height)
	seed := seedFor(req)

	var (
		buf  bytes.Buffer
		mime string
		err  error
	)
	if req.Capability == videoCapability {
		mime = "image/gif"
		err = encodeGIF(&buf, width, height, seed)
	} else {
		mime = "image/png"
		err = png.Encode(&buf, render(width, height, seed, 0))
	}
	if err != nil {
		return providers.Response{}, fmt.Errorf("synthetic: encode: %w", err)
	}
	return providers.Completed(&providers.Result{
		Data:   buf.Bytes(),
		MIME:   mime,
		Width:  width,
		Height: height,
		Meta:   map[string]any{"seed": seed},
	}), nil
}

func clampSize(v int) int {
	switch {
	case v <= 0:
		return defaultSize
	case v > maxSize:
		return maxSize
	default:
		return v
	}
}

func seedFor(req providers.Request) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(req.Capability))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(req.Prompt))
	return h.Sum32()
}

func render(width, height int, seed uint32, frame int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	base := [3]uint8{uint8(seed), uint8(seed >> 8), uint8(seed >> 16)}
	shift := frame * 16
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{
				R: base[0] + uint8((x+shift)*255/width),
				G: base[1] + uint8(y*255/height),
				B: base[2] + uint8(((x+y)/2+shift)*255/(width+height)),
				A: 0xff,
			})
		}
	}
	return img
}

func encodeGIF(buf *bytes.Buffer, width, height int, seed uint32) error {
	anim := &gif.GIF{LoopCount: 0}
	for i := 0; i < videoFrames; i++ {
		src := render(width, height, seed, i)
		frame := image.NewPaletted(src.Bounds(), palette.Plan9)
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				frame.Set(x, y, src.At(x, y))
			}
		}
		anim.Image = append(anim.Image, frame)
		anim.Delay = append(anim.Delay, 10)
	}
	return gif.EncodeAll(buf, anim)
}

var _ providers.Adapter = (*Adapter)(nil)
