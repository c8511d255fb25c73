// Package providers contains one adapter per upstream image service. Every
// adapter owns exactly the request-shape knowledge for its API: auth headers,
// JSON vs multipart encoding, and response decoding. Adapters never moderate,
// persist, or convert formats; that belongs to the dispatcher and the
// post-processing pipeline.
package providers

import (
	"context"
	"strconv"
	"strings"
)

// Request is the normalized generation input handed to any adapter. Size is
// the already-resolved dimension encoding for the target model family.
type Request struct {
	Prompt         string
	NegativePrompt string
	Model          string
	Size           string // "WxH" pixel pair or "W:H" ratio
	Count          int
	Strength       float64 // image-to-image only, 0.0..1.0
	Seed           uint32
	UserHash       string
	SourceImage    []byte
	SourceURL      string
}

// EditRequest carries instruction-driven image editing input.
type EditRequest struct {
	Images       [][]byte
	Instructions string
	Model        string
	UserHash     string
}

// Generator produces a batch of raw image buffers from a text prompt.
type Generator interface {
	Generate(ctx context.Context, req Request) ([][]byte, error)
}

// Transformer performs image-to-image generation with a strength parameter.
type Transformer interface {
	Transform(ctx context.Context, req Request) ([][]byte, error)
}

// Editor applies natural-language edit instructions to source images.
type Editor interface {
	Edit(ctx context.Context, req EditRequest) ([][]byte, error)
}

// Upscaler enlarges a single image.
type Upscaler interface {
	Upscale(ctx context.Context, image []byte, model string) ([]byte, error)
}

// BalanceChecker reports remaining credit for metered providers. The
// dispatcher treats a failing query as "allow" with a logged warning.
type BalanceChecker interface {
	RemainingBalance(ctx context.Context) (float64, error)
}

func (r Request) count() int {
	if r.Count <= 0 {
		return 1
	}
	return r.Count
}

// pixels splits a "WxH" encoding. Ratio encodings yield ok=false.
func (r Request) pixels() (width, height int, ok bool) {
	w, h, found := strings.Cut(r.Size, "x")
	if !found {
		return 0, 0, false
	}
	width, err1 := strconv.Atoi(w)
	height, err2 := strconv.Atoi(h)
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return width, height, true
}

// negativeOr substitutes the adapter's boilerplate negative prompt when the
// caller left theirs empty. Deliberate quality-of-life default; not visible
// to callers who pass their own value.
func (r Request) negativeOr(def string) string {
	if strings.TrimSpace(r.NegativePrompt) != "" {
		return r.NegativePrompt
	}
	return def
}
