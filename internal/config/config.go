package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"genrelay/internal/domain"
)

// Config represents application configuration loaded from environment variables.
// It is read once at startup and never mutated afterwards, so it is safe to
// share across concurrent requests.
type Config struct {
	AppEnv string
	Port   string

	// Identity hashing.
	HashSalt string

	// Moderation switches and word lists.
	ModerationEnabled bool
	WordFilterEnabled bool
	BannedWords       []string
	AllowedWords      []string

	// Image post-processing.
	SaveImages            bool
	OutputDir             string
	SaveFormat            string
	SendFormat            string
	JPEGQuality           int
	DefaultNegativePrompt string

	// Generation defaults and pricing.
	DefaultImageModel string
	ModelPrices       map[string]float64

	// Chat.
	ChatModel         string
	ChatTemperature   float64
	ChatMaxTokens     int
	ChatSystemMessage string
	ChatBackend       string // "completions" or "responses"
	PromptBackend     string // "openai" or "anthropic"
	PromptModel       string

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	AllowedOrigins   []string
}

// Load reads configuration from the environment, applying defaults where a
// value is absent. A missing .env file is not an error.
func Load() (*Config, error) {
	_ = godotenv.Load(".env", ".env.local")

	cfg := &Config{
		AppEnv:            getEnv("APP_ENV", "development"),
		Port:              getEnv("PORT", "8080"),
		HashSalt:          os.Getenv("USER_HASH_SALT"),
		ModerationEnabled: getEnvBool("MODERATION_ENABLED", true),
		WordFilterEnabled: getEnvBool("WORD_FILTER_ENABLED", true),
		BannedWords:       getEnvList("BANNED_WORDS"),
		AllowedWords:      getEnvList("ALLOWED_WORDS"),
		SaveImages:        getEnvBool("SAVE_IMAGES", false),
		OutputDir:         getEnv("OUTPUT_DIR", "output"),
		SaveFormat:        getEnv("SAVE_FORMAT", "png"),
		SendFormat:        getEnv("SEND_FORMAT", "jpeg"),
		JPEGQuality:       getEnvInt("JPEG_QUALITY", 85),
		DefaultNegativePrompt: getEnv("DEFAULT_NEGATIVE_PROMPT",
			"blurry, low resolution, low quality, jpeg artifacts, watermark, distorted, deformed"),
		DefaultImageModel: getEnv("DEFAULT_IMAGE_MODEL", "dall-e-3"),
		ModelPrices:       getEnvPrices("MODEL_PRICES"),
		ChatModel:         getEnv("CHAT_MODEL", "gpt-4o-mini"),
		ChatTemperature:   getEnvFloat("CHAT_TEMPERATURE", 0.7),
		ChatMaxTokens:     getEnvInt("CHAT_MAX_TOKENS", 1024),
		ChatSystemMessage: getEnv("CHAT_SYSTEM_MESSAGE", "You are a helpful assistant."),
		ChatBackend:       getEnv("CHAT_BACKEND", "completions"),
		PromptBackend:     getEnv("PROMPT_BACKEND", "openai"),
		PromptModel:       getEnv("PROMPT_MODEL", "gpt-4o-mini"),
		HTTPReadTimeout:   time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout:  time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 300)),
		HTTPIdleTimeout:   time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		AllowedOrigins:    getEnvList("ALLOWED_ORIGINS"),
	}

	if cfg.HashSalt == "" {
		return nil, fmt.Errorf("USER_HASH_SALT is required")
	}
	if cfg.JPEGQuality < 1 || cfg.JPEGQuality > 100 {
		return nil, fmt.Errorf("JPEG_QUALITY must be within 1..100, got %d", cfg.JPEGQuality)
	}
	switch cfg.ChatBackend {
	case "completions", "responses":
	default:
		return nil, fmt.Errorf("CHAT_BACKEND must be \"completions\" or \"responses\", got %q", cfg.ChatBackend)
	}
	return cfg, nil
}

// BackendSelector returns a getter that re-reads the chat backend switch on
// every call, falling back to the startup value. The router consults it per
// request rather than caching the choice.
func (c *Config) BackendSelector() func() string {
	return func() string {
		if v := strings.TrimSpace(os.Getenv("CHAT_BACKEND")); v != "" {
			return v
		}
		return c.ChatBackend
	}
}

// Secrets holds per-provider API credentials. Like Config it is read-only
// after startup.
type Secrets struct {
	OpenAIKey      string
	AnthropicKey   string
	GeminiKey      string
	StabilityKey   string
	TogetherKey    string
	DeepInfraKey   string
	ProdiaKey      string
	IdeogramKey    string
	RecraftKey     string
	LeonardoKey    string
	HuggingFaceKey string
	SegmindKey     string
	HyperbolicKey  string
	DeepAIKey      string
	NovitaKey      string
	FluxKey        string
}

// LoadSecrets reads provider credentials. The key backing the configured
// default image model must be present; everything else is optional and the
// corresponding adapter is simply not registered without it.
func LoadSecrets(cfg *Config) (*Secrets, error) {
	s := &Secrets{
		OpenAIKey:      os.Getenv("OPENAI_API_KEY"),
		AnthropicKey:   os.Getenv("ANTHROPIC_API_KEY"),
		GeminiKey:      os.Getenv("GEMINI_API_KEY"),
		StabilityKey:   os.Getenv("STABILITY_API_KEY"),
		TogetherKey:    os.Getenv("TOGETHER_API_KEY"),
		DeepInfraKey:   os.Getenv("DEEPINFRA_API_KEY"),
		ProdiaKey:      os.Getenv("PRODIA_API_KEY"),
		IdeogramKey:    os.Getenv("IDEOGRAM_API_KEY"),
		RecraftKey:     os.Getenv("RECRAFT_API_KEY"),
		LeonardoKey:    os.Getenv("LEONARDO_API_KEY"),
		HuggingFaceKey: os.Getenv("HUGGINGFACE_API_KEY"),
		SegmindKey:     os.Getenv("SEGMIND_API_KEY"),
		HyperbolicKey:  os.Getenv("HYPERBOLIC_API_KEY"),
		DeepAIKey:      os.Getenv("DEEPAI_API_KEY"),
		NovitaKey:      os.Getenv("NOVITA_API_KEY"),
		FluxKey:        os.Getenv("BFL_API_KEY"),
	}
	if key := s.keyForModel(cfg.DefaultImageModel); strings.TrimSpace(key) == "" {
		return nil, fmt.Errorf("%w: api key for default model %q", domain.ErrMissingCredential, cfg.DefaultImageModel)
	}
	if cfg.ModerationEnabled && strings.TrimSpace(s.OpenAIKey) == "" {
		return nil, fmt.Errorf("%w: OPENAI_API_KEY (moderation enabled)", domain.ErrMissingCredential)
	}
	return s, nil
}

func (s *Secrets) keyForModel(model string) string {
	switch {
	case strings.HasPrefix(model, "dall-e"), strings.HasPrefix(model, "gpt-image"):
		return s.OpenAIKey
	case strings.HasPrefix(model, "stable-image"), strings.HasPrefix(model, "stability"):
		return s.StabilityKey
	case strings.HasPrefix(model, "flux-schnell"), strings.HasPrefix(model, "flux-dev"):
		return s.TogetherKey
	case strings.HasPrefix(model, "deepinfra"):
		return s.DeepInfraKey
	case strings.HasPrefix(model, "prodia"):
		return s.ProdiaKey
	case strings.HasPrefix(model, "ideogram"):
		return s.IdeogramKey
	case strings.HasPrefix(model, "recraft"):
		return s.RecraftKey
	case strings.HasPrefix(model, "leonardo"):
		return s.LeonardoKey
	case strings.HasPrefix(model, "hf-"):
		return s.HuggingFaceKey
	case strings.HasPrefix(model, "segmind"):
		return s.SegmindKey
	case strings.HasPrefix(model, "hyperbolic"):
		return s.HyperbolicKey
	case strings.HasPrefix(model, "deepai"):
		return s.DeepAIKey
	case strings.HasPrefix(model, "novita"):
		return s.NovitaKey
	case strings.HasPrefix(model, "flux-pro"):
		return s.FluxKey
	case strings.HasPrefix(model, "imagen"), strings.HasPrefix(model, "gemini"):
		return s.GeminiKey
	default:
		return ""
	}
}

func getEnv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getEnvInt(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getEnvFloat(k string, def float64) float64 {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func getEnvBool(k string, def bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(k)))
	if v == "" {
		return def
	}
	return v == "1" || v == "true" || v == "yes" || v == "on"
}

func getEnvList(k string) []string {
	raw := os.Getenv(k)
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// getEnvPrices parses "model=price,model=price" pairs; malformed entries are
// skipped so a typo in one price never blocks startup.
func getEnvPrices(k string) map[string]float64 {
	prices := map[string]float64{}
	for _, pair := range getEnvList(k) {
		name, value, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		price, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			continue
		}
		prices[strings.TrimSpace(name)] = price
	}
	return prices
}
