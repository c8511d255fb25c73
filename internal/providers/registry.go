package providers

import (
	"fmt"
	"sort"
	"time"

	"genrelay/internal/config"
	"genrelay/internal/dimensions"
	"genrelay/internal/domain"
)

// Entry describes one registered model: the adapter behind it and which of
// the optional capabilities it offers.
type Entry struct {
	Generator   Generator
	Transformer Transformer
	Editor      Editor
	Upscaler    Upscaler
	Balance     BalanceChecker
}

// Registry maps model ids to adapters. Adding a provider means adding one
// adapter file and one Register call here; the dispatcher is untouched.
type Registry struct {
	entries map[string]Entry
}

func NewRegistry() *Registry {
	return &Registry{entries: map[string]Entry{}}
}

func (r *Registry) Register(model string, entry Entry) {
	r.entries[model] = entry
}

// Lookup resolves a model id; the second return is false for unknown models.
func (r *Registry) Lookup(model string) (Entry, bool) {
	e, ok := r.entries[model]
	return e, ok
}

// Models lists every registered model id, sorted.
func (r *Registry) Models() []string {
	out := make([]string, 0, len(r.entries))
	for id := range r.entries {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Build constructs every adapter whose credential is configured and registers
// its models. Providers without a key are simply absent from the registry, so
// dispatching to them fails with ErrUnsupportedModel instead of a late auth
// error upstream.
func Build(cfg *config.Config, secrets *config.Secrets) (*Registry, error) {
	r := NewRegistry()
	neg := cfg.DefaultNegativePrompt

	if secrets.OpenAIKey != "" {
		openai := NewOpenAI(secrets.OpenAIKey, nil)
		r.Register("dall-e-3", Entry{Generator: openai})
		r.Register("gpt-image-1", Entry{Generator: openai, Editor: openai})
	}
	if secrets.StabilityKey != "" {
		stability := NewStability(secrets.StabilityKey, neg, nil)
		r.Register("stable-image-core", Entry{Generator: stability, Transformer: stability, Balance: stability})
		r.Register("stable-image-ultra", Entry{Generator: stability, Transformer: stability, Balance: stability})
		r.Register("stability-fast-upscale", Entry{Upscaler: stability, Balance: stability})
	}
	if secrets.TogetherKey != "" {
		together := NewTogether(secrets.TogetherKey, neg, nil)
		r.Register("flux-schnell", Entry{Generator: together})
		r.Register("flux-dev", Entry{Generator: together})
	}
	if secrets.DeepInfraKey != "" {
		r.Register("deepinfra-flux-dev", Entry{Generator: NewDeepInfra(secrets.DeepInfraKey, nil)})
	}
	if secrets.ProdiaKey != "" {
		r.Register("prodia-sdxl", Entry{Generator: NewProdia(secrets.ProdiaKey, neg, nil)})
	}
	if secrets.IdeogramKey != "" {
		r.Register("ideogram-v2", Entry{Generator: NewIdeogram(secrets.IdeogramKey, neg, nil)})
	}
	if secrets.RecraftKey != "" {
		r.Register("recraftv3", Entry{Generator: NewRecraft(secrets.RecraftKey, nil)})
	}
	if secrets.LeonardoKey != "" {
		leonardo := NewLeonardo(secrets.LeonardoKey, neg, nil)
		r.Register("leonardo-phoenix", Entry{Generator: leonardo, Balance: leonardo})
	}
	if secrets.HuggingFaceKey != "" {
		r.Register("hf-sdxl", Entry{Generator: NewHuggingFace(secrets.HuggingFaceKey, neg, nil)})
	}
	if secrets.SegmindKey != "" {
		r.Register("segmind-sdxl", Entry{Generator: NewSegmind(secrets.SegmindKey, neg, nil)})
	}
	if secrets.HyperbolicKey != "" {
		hyperbolic := NewHyperbolic(secrets.HyperbolicKey, neg, nil)
		r.Register("hyperbolic-sdxl", Entry{Generator: hyperbolic, Transformer: hyperbolic})
	}
	if secrets.DeepAIKey != "" {
		deepai := NewDeepAI(secrets.DeepAIKey, nil)
		r.Register("deepai-standard", Entry{Generator: deepai})
		r.Register("deepai-srgan", Entry{Upscaler: deepai})
	}
	if secrets.NovitaKey != "" {
		r.Register("novita-sdxl", Entry{Generator: NewNovita(secrets.NovitaKey, neg, nil)})
	}
	if secrets.FluxKey != "" {
		r.Register("flux-pro", Entry{Generator: NewFlux(secrets.FluxKey, nil)})
	}
	if secrets.GeminiKey != "" {
		gemini, err := NewGemini(secrets.GeminiKey)
		if err != nil {
			return nil, fmt.Errorf("providers: gemini client: %w", err)
		}
		r.Register("imagen-3", Entry{Generator: gemini})
		r.Register("gemini-image", Entry{Generator: gemini, Editor: gemini})
	}

	if _, ok := r.Lookup(cfg.DefaultImageModel); !ok {
		return nil, fmt.Errorf("%w: default model %q has no registered adapter", domain.ErrMissingCredential, cfg.DefaultImageModel)
	}
	if err := verifyDimensionCoverage(r); err != nil {
		return nil, err
	}
	return r, nil
}

// verifyDimensionCoverage asserts every registered generating model has a
// dimension-family mapping, so a new adapter cannot ship without its size
// table. Upscale-only models take no dimensions and are exempt.
func verifyDimensionCoverage(r *Registry) error {
	for _, model := range r.Models() {
		entry, _ := r.Lookup(model)
		if entry.Generator == nil && entry.Transformer == nil {
			continue
		}
		if _, ok := dimensions.FamilyOf(model); !ok {
			return fmt.Errorf("providers: model %q has no dimension mapping", model)
		}
	}
	return nil
}

// pollInterval is shared by the job-submit-then-poll providers.
const pollInterval = 2 * time.Second
