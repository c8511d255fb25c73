package providers

import (
	"context"
	"net/http"
)

const huggingFaceModelURL = "https://api-inference.huggingface.co/models/stabilityai/stable-diffusion-xl-base-1.0"

// HuggingFace calls the serverless inference API, which answers with raw
// image bytes directly. One image per call; batches fan out best-effort.
type HuggingFace struct {
	apiKey          string
	endpoint        string
	defaultNegative string
	httpClient      *http.Client
}

func NewHuggingFace(apiKey, defaultNegative string, httpClient *http.Client) *HuggingFace {
	return &HuggingFace{
		apiKey:          apiKey,
		endpoint:        huggingFaceModelURL,
		defaultNegative: defaultNegative,
		httpClient:      defaultHTTPClient(httpClient),
	}
}

type huggingFaceRequest struct {
	Inputs     string                `json:"inputs"`
	Parameters huggingFaceParameters `json:"parameters"`
}

type huggingFaceParameters struct {
	NegativePrompt string `json:"negative_prompt,omitempty"`
	Width          int    `json:"width,omitempty"`
	Height         int    `json:"height,omitempty"`
	Seed           uint32 `json:"seed,omitempty"`
}

func (h *HuggingFace) Generate(ctx context.Context, req Request) ([][]byte, error) {
	width, height, _ := req.pixels()
	return fanOut(ctx, req.count(), func(ctx context.Context, _ int) ([]byte, error) {
		payload := huggingFaceRequest{
			Inputs: req.Prompt,
			Parameters: huggingFaceParameters{
				NegativePrompt: req.negativeOr(h.defaultNegative),
				Width:          width,
				Height:         height,
				Seed:           req.Seed,
			},
		}
		// The inference API responds with the encoded image itself.
		return doJSON(ctx, h.httpClient, "huggingface", http.MethodPost, h.endpoint,
			map[string]string{"Authorization": "Bearer " + h.apiKey}, payload)
	})
}

var _ Generator = (*HuggingFace)(nil)
