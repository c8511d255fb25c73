package providers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

const deepInfraBaseURL = "https://api.deepinfra.com/v1/openai"

// DeepInfra exposes FLUX through an OpenAI-compatible images endpoint. One
// batched call (n=count); any upstream error fails the whole batch.
type DeepInfra struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

func NewDeepInfra(apiKey string, httpClient *http.Client) *DeepInfra {
	return &DeepInfra{
		apiKey:     apiKey,
		baseURL:    deepInfraBaseURL,
		httpClient: defaultHTTPClient(httpClient),
	}
}

type deepInfraRequest struct {
	Model          string `json:"model"`
	Prompt         string `json:"prompt"`
	N              int    `json:"n"`
	Size           string `json:"size"`
	ResponseFormat string `json:"response_format"`
	User           string `json:"user,omitempty"`
}

type deepInfraResponse struct {
	Data []struct {
		B64JSON string `json:"b64_json"`
	} `json:"data"`
}

func (d *DeepInfra) Generate(ctx context.Context, req Request) ([][]byte, error) {
	payload := deepInfraRequest{
		Model:          "black-forest-labs/FLUX-1-dev",
		Prompt:         req.Prompt,
		N:              req.count(),
		Size:           req.Size,
		ResponseFormat: "b64_json",
		User:           req.UserHash,
	}
	raw, err := doJSON(ctx, d.httpClient, "deepinfra", http.MethodPost, d.baseURL+"/images/generations",
		map[string]string{"Authorization": "Bearer " + d.apiKey}, payload)
	if err != nil {
		return nil, err
	}
	var decoded deepInfraResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("deepinfra: decode response: %w", err)
	}
	out := make([][]byte, 0, len(decoded.Data))
	for _, item := range decoded.Data {
		// DeepInfra sometimes prefixes a data-url scheme.
		b64 := item.B64JSON
		if idx := strings.Index(b64, ","); idx >= 0 && strings.HasPrefix(b64, "data:") {
			b64 = b64[idx+1:]
		}
		buf, err := base64.StdEncoding.DecodeString(b64)
		if err != nil {
			return nil, fmt.Errorf("deepinfra: decode image: %w", err)
		}
		out = append(out, buf)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("deepinfra: no image data in response")
	}
	return out, nil
}

var _ Generator = (*DeepInfra)(nil)
