package providers

import (
	"context"
	"net/http"
)

const segmindEndpoint = "https://api.segmind.com/v1/sdxl1.0-txt2img"

// Segmind answers with raw image bytes per call. Batches fan out as
// independent calls with best-effort aggregation.
type Segmind struct {
	apiKey          string
	endpoint        string
	defaultNegative string
	httpClient      *http.Client
}

func NewSegmind(apiKey, defaultNegative string, httpClient *http.Client) *Segmind {
	return &Segmind{
		apiKey:          apiKey,
		endpoint:        segmindEndpoint,
		defaultNegative: defaultNegative,
		httpClient:      defaultHTTPClient(httpClient),
	}
}

type segmindRequest struct {
	Prompt         string `json:"prompt"`
	NegativePrompt string `json:"negative_prompt,omitempty"`
	ImgWidth       int    `json:"img_width,omitempty"`
	ImgHeight      int    `json:"img_height,omitempty"`
	Samples        int    `json:"samples"`
	Seed           uint32 `json:"seed,omitempty"`
	Base64         bool   `json:"base64"`
}

func (s *Segmind) Generate(ctx context.Context, req Request) ([][]byte, error) {
	width, height, _ := req.pixels()
	return fanOut(ctx, req.count(), func(ctx context.Context, _ int) ([]byte, error) {
		payload := segmindRequest{
			Prompt:         req.Prompt,
			NegativePrompt: req.negativeOr(s.defaultNegative),
			ImgWidth:       width,
			ImgHeight:      height,
			Samples:        1,
			Seed:           req.Seed,
			Base64:         false,
		}
		return doJSON(ctx, s.httpClient, "segmind", http.MethodPost, s.endpoint,
			map[string]string{"x-api-key": s.apiKey}, payload)
	})
}

var _ Generator = (*Segmind)(nil)
