package providers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
)

const hyperbolicBaseURL = "https://api.hyperbolic.xyz/v1"

// Hyperbolic generates one image per call and returns it base64-encoded in a
// JSON envelope. Batches fan out best-effort. The same endpoint accepts an
// init image plus strength for image-to-image.
type Hyperbolic struct {
	apiKey          string
	baseURL         string
	defaultNegative string
	httpClient      *http.Client
}

func NewHyperbolic(apiKey, defaultNegative string, httpClient *http.Client) *Hyperbolic {
	return &Hyperbolic{
		apiKey:          apiKey,
		baseURL:         hyperbolicBaseURL,
		defaultNegative: defaultNegative,
		httpClient:      defaultHTTPClient(httpClient),
	}
}

type hyperbolicRequest struct {
	ModelName      string  `json:"model_name"`
	Prompt         string  `json:"prompt"`
	NegativePrompt string  `json:"negative_prompt,omitempty"`
	Width          int     `json:"width,omitempty"`
	Height         int     `json:"height,omitempty"`
	Backend        string  `json:"backend"`
	Image          string  `json:"image,omitempty"`
	Strength       float64 `json:"strength,omitempty"`
	Seed           uint32  `json:"seed,omitempty"`
}

type hyperbolicResponse struct {
	Images []struct {
		Image string `json:"image"`
	} `json:"images"`
}

func (h *Hyperbolic) Generate(ctx context.Context, req Request) ([][]byte, error) {
	return h.run(ctx, req, "")
}

func (h *Hyperbolic) Transform(ctx context.Context, req Request) ([][]byte, error) {
	if len(req.SourceImage) == 0 {
		return nil, fmt.Errorf("hyperbolic: source image required for image-to-image")
	}
	return h.run(ctx, req, base64.StdEncoding.EncodeToString(req.SourceImage))
}

func (h *Hyperbolic) run(ctx context.Context, req Request, initImage string) ([][]byte, error) {
	width, height, _ := req.pixels()
	return fanOut(ctx, req.count(), func(ctx context.Context, _ int) ([]byte, error) {
		payload := hyperbolicRequest{
			ModelName:      "SDXL1.0-base",
			Prompt:         req.Prompt,
			NegativePrompt: req.negativeOr(h.defaultNegative),
			Width:          width,
			Height:         height,
			Backend:        "auto",
			Image:          initImage,
			Strength:       req.Strength,
			Seed:           req.Seed,
		}
		raw, err := doJSON(ctx, h.httpClient, "hyperbolic", http.MethodPost, h.baseURL+"/image/generation",
			map[string]string{"Authorization": "Bearer " + h.apiKey}, payload)
		if err != nil {
			return nil, err
		}
		var decoded hyperbolicResponse
		if err := json.Unmarshal(raw, &decoded); err != nil {
			return nil, fmt.Errorf("hyperbolic: decode response: %w", err)
		}
		if len(decoded.Images) == 0 {
			return nil, fmt.Errorf("hyperbolic: no image data in response")
		}
		return base64.StdEncoding.DecodeString(decoded.Images[0].Image)
	})
}

var (
	_ Generator   = (*Hyperbolic)(nil)
	_ Transformer = (*Hyperbolic)(nil)
)
