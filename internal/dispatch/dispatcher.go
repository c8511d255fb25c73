// Package dispatch orchestrates one generation request end to end: validate,
// moderate, resolve dimensions, check balance, call the adapter, post-process.
// Moderation always completes before any paid upstream call.
package dispatch

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"genrelay/internal/dimensions"
	"genrelay/internal/domain"
	"genrelay/internal/identity"
	"genrelay/internal/moderation"
	"genrelay/internal/postprocess"
	"genrelay/internal/providers"
)

// Request is the caller-facing generation input. Size accepts either a
// logical size class ("square", "tall", "wide") or a raw provider encoding;
// an empty value means square.
type Request struct {
	Prompt         string
	NegativePrompt string
	Model          string
	Size           string
	Count          int
	Strength       float64
	Seed           uint32
	UserID         any
	SourceImage    []byte
	SourceURL      string
}

// PromptRewriter rewrites generation prompts through a chat model. It
// receives the pseudonymized user hash, never the raw id.
type PromptRewriter interface {
	OptimizePrompt(ctx context.Context, text, userHash string) (string, error)
	AdaptPrompt(ctx context.Context, current, refinement, userHash string) (string, error)
}

// Options wires a Dispatcher.
type Options struct {
	Registry     *providers.Registry
	Gate         *moderation.Gate
	Hasher       *identity.Hasher
	Pipeline     *postprocess.Pipeline
	Rewriter     PromptRewriter
	DefaultModel string
	// ModelPrices maps model id to the per-image credit cost used for the
	// advisory balance check. Models absent from the map are never blocked.
	ModelPrices map[string]float64
	Logger      zerolog.Logger
}

// Dispatcher routes logical operations to the right adapter. It owns the
// ordering guarantees; adapters only know their own wire format.
type Dispatcher struct {
	registry     *providers.Registry
	gate         *moderation.Gate
	hasher       *identity.Hasher
	pipeline     *postprocess.Pipeline
	rewriter     PromptRewriter
	defaultModel string
	prices       map[string]float64
	logger       zerolog.Logger
}

func New(opts Options) *Dispatcher {
	return &Dispatcher{
		registry:     opts.Registry,
		gate:         opts.Gate,
		hasher:       opts.Hasher,
		pipeline:     opts.Pipeline,
		rewriter:     opts.Rewriter,
		defaultModel: opts.DefaultModel,
		prices:       opts.ModelPrices,
		logger:       opts.Logger,
	}
}

// Generate runs a text-to-image request.
func (d *Dispatcher) Generate(ctx context.Context, req Request) ([][]byte, error) {
	model := d.modelOr(req.Model)
	entry, ok := d.registry.Lookup(model)
	if !ok || entry.Generator == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedModel, model)
	}

	verdict, err := d.moderate(ctx, moderation.Input{Text: req.Prompt})
	if err != nil {
		return nil, err
	}

	size, err := d.resolveSize(model, req.Size)
	if err != nil {
		return nil, err
	}
	if err := d.checkBalance(ctx, entry, model, req.Count); err != nil {
		return nil, err
	}

	correlationID := uuid.NewString()
	log := d.logger.With().Str("correlation_id", correlationID).Str("model", model).Logger()
	log.Info().Int("count", req.Count).Msg("dispatching text-to-image")

	buffers, err := entry.Generator.Generate(ctx, d.providerRequest(req, model, size, verdict))
	if err != nil {
		return nil, err
	}
	return d.pipeline.ProcessBatch(ctx, "txt2img", correlationID, buffers)
}

// ImageToImage runs a strength-guided transformation of a source image.
func (d *Dispatcher) ImageToImage(ctx context.Context, req Request) ([][]byte, error) {
	model := d.modelOr(req.Model)
	entry, ok := d.registry.Lookup(model)
	if !ok || entry.Transformer == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedModel, model)
	}

	input := moderation.Input{Text: req.Prompt}
	switch {
	case len(req.SourceImage) > 0:
		input.Image = req.SourceImage
	case req.SourceURL != "":
		input.Image = req.SourceURL
	}
	verdict, err := d.moderate(ctx, input)
	if err != nil {
		return nil, err
	}

	size, err := d.resolveSize(model, req.Size)
	if err != nil {
		return nil, err
	}
	if err := d.checkBalance(ctx, entry, model, req.Count); err != nil {
		return nil, err
	}

	correlationID := uuid.NewString()
	d.logger.Info().Str("correlation_id", correlationID).Str("model", model).Msg("dispatching image-to-image")

	buffers, err := entry.Transformer.Transform(ctx, d.providerRequest(req, model, size, verdict))
	if err != nil {
		return nil, err
	}
	return d.pipeline.ProcessBatch(ctx, "img2img", correlationID, buffers)
}

// ImageEdit applies natural-language instructions to one or more images.
func (d *Dispatcher) ImageEdit(ctx context.Context, images [][]byte, instructions, model string, userID any) ([][]byte, error) {
	model = d.modelOr(model)
	entry, ok := d.registry.Lookup(model)
	if !ok || entry.Editor == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedModel, model)
	}

	input := moderation.Input{Text: instructions}
	if len(images) > 0 {
		input.Image = images[0]
	}
	verdict, err := d.moderate(ctx, input)
	if err != nil {
		return nil, err
	}
	if err := d.checkBalance(ctx, entry, model, len(images)); err != nil {
		return nil, err
	}

	correlationID := uuid.NewString()
	d.logger.Info().Str("correlation_id", correlationID).Str("model", model).Int("images", len(images)).Msg("dispatching image edit")

	buffers, err := entry.Editor.Edit(ctx, providers.EditRequest{
		Images:       images,
		Instructions: verdict.CleanedText,
		Model:        model,
		UserHash:     d.hasher.HashUserID(userID),
	})
	if err != nil {
		return nil, err
	}
	return d.pipeline.ProcessBatch(ctx, "edit", correlationID, buffers)
}

// Upscale enlarges a single image through an upscale-capable model.
func (d *Dispatcher) Upscale(ctx context.Context, image []byte, model string) ([]byte, error) {
	entry, ok := d.registry.Lookup(model)
	if !ok || entry.Upscaler == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedModel, model)
	}
	if _, err := d.moderate(ctx, moderation.Input{Image: image}); err != nil {
		return nil, err
	}
	if err := d.checkBalance(ctx, entry, model, 1); err != nil {
		return nil, err
	}

	correlationID := uuid.NewString()
	d.logger.Info().Str("correlation_id", correlationID).Str("model", model).Msg("dispatching upscale")

	out, err := entry.Upscaler.Upscale(ctx, image, model)
	if err != nil {
		return nil, err
	}
	res, err := d.pipeline.Process(ctx, "upscale", correlationID, 0, out)
	if err != nil {
		return nil, err
	}
	return res.Delivered, nil
}

// OptimizePrompt expands a raw idea into a richer generation prompt. Like
// every operation, moderation runs before the upstream call and only the
// user hash crosses the process boundary.
func (d *Dispatcher) OptimizePrompt(ctx context.Context, text string, userID any) (string, error) {
	verdict, err := d.moderate(ctx, moderation.Input{Text: text})
	if err != nil {
		return "", err
	}
	return d.rewriter.OptimizePrompt(ctx, verdict.CleanedText, d.hasher.HashUserID(userID))
}

// AdaptPrompt applies a refinement to an existing prompt. Both texts are
// screened in one moderation pass before the rewrite is dispatched.
func (d *Dispatcher) AdaptPrompt(ctx context.Context, current, refinement string, userID any) (string, error) {
	if _, err := d.moderate(ctx, moderation.Input{Text: current + "\n\n" + refinement}); err != nil {
		return "", err
	}
	return d.rewriter.AdaptPrompt(ctx, current, refinement, d.hasher.HashUserID(userID))
}

// Moderate exposes the gate directly so boundary callers can pre-screen
// content without dispatching a generation.
func (d *Dispatcher) Moderate(ctx context.Context, in moderation.Input) (*moderation.Verdict, error) {
	return d.gate.Moderate(ctx, in)
}

func (d *Dispatcher) modelOr(model string) string {
	if model == "" {
		return d.defaultModel
	}
	return model
}

func (d *Dispatcher) moderate(ctx context.Context, in moderation.Input) (*moderation.Verdict, error) {
	verdict, err := d.gate.Moderate(ctx, in)
	if err != nil {
		return nil, err
	}
	if verdict.Flagged {
		return nil, fmt.Errorf("%w: %v", domain.ErrContentFlagged, verdict.Categories)
	}
	return verdict, nil
}

// resolveSize maps a logical size class onto the model's encoding. A value
// that is not a known class is passed through untouched so callers can pin
// exact dimensions.
func (d *Dispatcher) resolveSize(model, size string) (string, error) {
	switch class := dimensions.SizeClass(size); class {
	case dimensions.Square, dimensions.Tall, dimensions.Wide:
		return dimensions.Resolve(model, class)
	case "":
		return dimensions.Resolve(model, dimensions.Square)
	default:
		return size, nil
	}
}

// checkBalance blocks a dispatch only when the provider definitively reports
// too little credit for the requested batch. A failing query is advisory: the
// dispatch proceeds with a logged warning rather than failing a paid-up user
// on a flaky balance endpoint.
func (d *Dispatcher) checkBalance(ctx context.Context, entry providers.Entry, model string, count int) error {
	if entry.Balance == nil {
		return nil
	}
	price, ok := d.prices[model]
	if !ok || price <= 0 {
		return nil
	}
	if count <= 0 {
		count = 1
	}
	balance, err := entry.Balance.RemainingBalance(ctx)
	if err != nil {
		d.logger.Warn().Err(err).Str("model", model).Msg("balance check failed, proceeding")
		return nil
	}
	if needed := price * float64(count); balance < needed {
		return fmt.Errorf("%w: have %.2f, need %.2f", domain.ErrInsufficientBalance, balance, needed)
	}
	return nil
}

func (d *Dispatcher) providerRequest(req Request, model, size string, verdict *moderation.Verdict) providers.Request {
	return providers.Request{
		Prompt:         verdict.CleanedText,
		NegativePrompt: req.NegativePrompt,
		Model:          model,
		Size:           size,
		Count:          req.Count,
		Strength:       req.Strength,
		Seed:           req.Seed,
		UserHash:       d.hasher.HashUserID(req.UserID),
		SourceImage:    req.SourceImage,
		SourceURL:      req.SourceURL,
	}
}
