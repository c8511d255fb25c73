package providers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
)

const togetherBaseURL = "https://api.together.xyz/v1"

var togetherModels = map[string]struct {
	Name  string
	Steps int
}{
	"flux-schnell": {Name: "black-forest-labs/FLUX.1-schnell", Steps: 4},
	"flux-dev":     {Name: "black-forest-labs/FLUX.1-dev", Steps: 28},
}

// Together drives the Together AI image endpoint. One batched call carries
// the whole request (n=count), so any upstream error fails the entire batch;
// there is no partial success here.
type Together struct {
	apiKey          string
	baseURL         string
	defaultNegative string
	httpClient      *http.Client
}

func NewTogether(apiKey, defaultNegative string, httpClient *http.Client) *Together {
	return &Together{
		apiKey:          apiKey,
		baseURL:         togetherBaseURL,
		defaultNegative: defaultNegative,
		httpClient:      defaultHTTPClient(httpClient),
	}
}

type togetherRequest struct {
	Model          string `json:"model"`
	Prompt         string `json:"prompt"`
	NegativePrompt string `json:"negative_prompt,omitempty"`
	Width          int    `json:"width"`
	Height         int    `json:"height"`
	Steps          int    `json:"steps"`
	N              int    `json:"n"`
	Seed           uint32 `json:"seed,omitempty"`
	ResponseFormat string `json:"response_format"`
}

type togetherResponse struct {
	Data []struct {
		B64JSON string `json:"b64_json"`
	} `json:"data"`
}

func (t *Together) Generate(ctx context.Context, req Request) ([][]byte, error) {
	model, ok := togetherModels[req.Model]
	if !ok {
		return nil, fmt.Errorf("together: unknown model %q", req.Model)
	}
	width, height, ok := req.pixels()
	if !ok {
		return nil, fmt.Errorf("together: pixel size required, got %q", req.Size)
	}
	payload := togetherRequest{
		Model:          model.Name,
		Prompt:         req.Prompt,
		NegativePrompt: req.negativeOr(t.defaultNegative),
		Width:          width,
		Height:         height,
		Steps:          model.Steps,
		N:              req.count(),
		Seed:           req.Seed,
		ResponseFormat: "b64_json",
	}
	raw, err := doJSON(ctx, t.httpClient, "together", http.MethodPost, t.baseURL+"/images/generations",
		map[string]string{"Authorization": "Bearer " + t.apiKey}, payload)
	if err != nil {
		return nil, err
	}
	var decoded togetherResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("together: decode response: %w", err)
	}
	out := make([][]byte, 0, len(decoded.Data))
	for _, item := range decoded.Data {
		buf, err := base64.StdEncoding.DecodeString(item.B64JSON)
		if err != nil {
			return nil, fmt.Errorf("together: decode image: %w", err)
		}
		out = append(out, buf)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("together: no image data in response")
	}
	return out, nil
}

var _ Generator = (*Together)(nil)
