package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

const ideogramBaseURL = "https://api.ideogram.ai"

// ideogramRatios translates the resolver's ratio encoding into Ideogram's
// aspect tokens.
var ideogramRatios = map[string]string{
	"1:1":  "ASPECT_1_1",
	"9:16": "ASPECT_9_16",
	"16:9": "ASPECT_16_9",
}

// Ideogram issues one batched call (num_images) and returns result URLs;
// any upstream error fails the whole batch.
type Ideogram struct {
	apiKey          string
	baseURL         string
	defaultNegative string
	httpClient      *http.Client
}

func NewIdeogram(apiKey, defaultNegative string, httpClient *http.Client) *Ideogram {
	return &Ideogram{
		apiKey:          apiKey,
		baseURL:         ideogramBaseURL,
		defaultNegative: defaultNegative,
		httpClient:      defaultHTTPClient(httpClient),
	}
}

type ideogramRequest struct {
	ImageRequest ideogramImageRequest `json:"image_request"`
}

type ideogramImageRequest struct {
	Prompt         string `json:"prompt"`
	Model          string `json:"model"`
	AspectRatio    string `json:"aspect_ratio"`
	NumImages      int    `json:"num_images"`
	NegativePrompt string `json:"negative_prompt,omitempty"`
	Seed           uint32 `json:"seed,omitempty"`
}

type ideogramResponse struct {
	Data []struct {
		URL string `json:"url"`
	} `json:"data"`
}

func (i *Ideogram) Generate(ctx context.Context, req Request) ([][]byte, error) {
	aspect, ok := ideogramRatios[req.Size]
	if !ok {
		return nil, fmt.Errorf("ideogram: unsupported ratio %q", req.Size)
	}
	payload := ideogramRequest{ImageRequest: ideogramImageRequest{
		Prompt:         req.Prompt,
		Model:          "V_2",
		AspectRatio:    aspect,
		NumImages:      req.count(),
		NegativePrompt: req.negativeOr(i.defaultNegative),
		Seed:           req.Seed,
	}}
	raw, err := doJSON(ctx, i.httpClient, "ideogram", http.MethodPost, i.baseURL+"/generate",
		map[string]string{"Api-Key": i.apiKey}, payload)
	if err != nil {
		return nil, err
	}
	var decoded ideogramResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("ideogram: decode response: %w", err)
	}
	if len(decoded.Data) == 0 {
		return nil, fmt.Errorf("ideogram: no image data in response")
	}
	out := make([][]byte, 0, len(decoded.Data))
	for _, item := range decoded.Data {
		buf, err := download(ctx, i.httpClient, "ideogram", item.URL)
		if err != nil {
			return nil, err
		}
		out = append(out, buf)
	}
	return out, nil
}

var _ Generator = (*Ideogram)(nil)
