// Package postprocess re-encodes raw provider output into the configured
// storage and delivery formats and optionally writes artifacts to disk under
// a correlation-id derived filename.
package postprocess

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"

	"genrelay/internal/storage"
)

// Encoder re-encodes raw image bytes into the named format. It is a field so
// tests can count invocations; the default uses the stdlib image codecs.
type Encoder func(raw []byte, format string, quality int) ([]byte, error)

// Options configures a Pipeline.
type Options struct {
	SaveFormat  string
	SendFormat  string
	JPEGQuality int
	Store       *storage.FileStore // nil disables persistence
	Encoder     Encoder
}

// Result is the outcome for one artifact.
type Result struct {
	Delivered []byte
	Saved     []byte // nil when persistence is disabled
	Key       string // storage key when persisted
}

// Pipeline normalizes provider buffers. Adapters never touch it; the
// dispatcher owns the post-processing step.
type Pipeline struct {
	saveFormat string
	sendFormat string
	quality    int
	store      *storage.FileStore
	encode     Encoder
}

func NewPipeline(opts Options) *Pipeline {
	enc := opts.Encoder
	if enc == nil {
		enc = Reencode
	}
	saveFormat := opts.SaveFormat
	if saveFormat == "" {
		saveFormat = "png"
	}
	sendFormat := opts.SendFormat
	if sendFormat == "" {
		sendFormat = saveFormat
	}
	quality := opts.JPEGQuality
	if quality <= 0 || quality > 100 {
		quality = 85
	}
	return &Pipeline{
		saveFormat: saveFormat,
		sendFormat: sendFormat,
		quality:    quality,
		store:      opts.Store,
		encode:     enc,
	}
}

// Process normalizes one artifact. When save and send formats agree the
// encode happens exactly once and the same buffer serves both purposes.
func (p *Pipeline) Process(ctx context.Context, kind, correlationID string, index int, raw []byte) (*Result, error) {
	delivered, err := p.encode(raw, p.sendFormat, p.quality)
	if err != nil {
		return nil, fmt.Errorf("postprocess: encode %s: %w", p.sendFormat, err)
	}
	res := &Result{Delivered: delivered}

	if p.store == nil {
		return res, nil
	}

	saved := delivered
	if p.saveFormat != p.sendFormat {
		saved, err = p.encode(raw, p.saveFormat, p.quality)
		if err != nil {
			return nil, fmt.Errorf("postprocess: encode %s: %w", p.saveFormat, err)
		}
	}
	key := fmt.Sprintf("%s_%s_%d.%s", kind, correlationID, index, extension(p.saveFormat))
	storedKey, err := p.store.Write(ctx, key, saved)
	if err != nil {
		return nil, err
	}
	res.Saved = saved
	res.Key = storedKey
	return res, nil
}

// ProcessBatch runs Process over every buffer, preserving order. Any failure
// aborts the batch; partial-success policy lives in the adapters, not here.
func (p *Pipeline) ProcessBatch(ctx context.Context, kind, correlationID string, buffers [][]byte) ([][]byte, error) {
	out := make([][]byte, 0, len(buffers))
	for i, raw := range buffers {
		res, err := p.Process(ctx, kind, correlationID, i, raw)
		if err != nil {
			return nil, err
		}
		out = append(out, res.Delivered)
	}
	return out, nil
}

// Reencode decodes raw bytes and encodes them into the requested format.
// Quality applies to jpeg only and is ignored for lossless formats.
func Reencode(raw []byte, format string, quality int) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	switch format {
	case "jpeg", "jpg":
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality})
	case "png":
		err = png.Encode(&buf, img)
	case "gif":
		err = gif.Encode(&buf, img, nil)
	default:
		return nil, fmt.Errorf("unsupported format %q", format)
	}
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func extension(format string) string {
	if format == "jpeg" {
		return "jpg"
	}
	return format
}
