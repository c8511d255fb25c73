package providers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
)

const recraftBaseURL = "https://external.api.recraft.ai/v1"

// Recraft follows the OpenAI images wire shape and may answer with either
// URLs or inline base64 per item. One batched call; all-or-nothing.
type Recraft struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

func NewRecraft(apiKey string, httpClient *http.Client) *Recraft {
	return &Recraft{
		apiKey:     apiKey,
		baseURL:    recraftBaseURL,
		httpClient: defaultHTTPClient(httpClient),
	}
}

type recraftRequest struct {
	Prompt string `json:"prompt"`
	Model  string `json:"model,omitempty"`
	Size   string `json:"size,omitempty"`
	N      int    `json:"n,omitempty"`
}

type recraftResponse struct {
	Data []struct {
		URL     string `json:"url"`
		B64JSON string `json:"b64_json"`
	} `json:"data"`
}

func (r *Recraft) Generate(ctx context.Context, req Request) ([][]byte, error) {
	payload := recraftRequest{
		Prompt: req.Prompt,
		Model:  "recraftv3",
		Size:   req.Size,
		N:      req.count(),
	}
	raw, err := doJSON(ctx, r.httpClient, "recraft", http.MethodPost, r.baseURL+"/images/generations",
		map[string]string{"Authorization": "Bearer " + r.apiKey}, payload)
	if err != nil {
		return nil, err
	}
	var decoded recraftResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("recraft: decode response: %w", err)
	}
	if len(decoded.Data) == 0 {
		return nil, fmt.Errorf("recraft: no image data in response")
	}
	out := make([][]byte, 0, len(decoded.Data))
	for _, item := range decoded.Data {
		switch {
		case item.B64JSON != "":
			buf, err := base64.StdEncoding.DecodeString(item.B64JSON)
			if err != nil {
				return nil, fmt.Errorf("recraft: decode image: %w", err)
			}
			out = append(out, buf)
		case item.URL != "":
			buf, err := download(ctx, r.httpClient, "recraft", item.URL)
			if err != nil {
				return nil, err
			}
			out = append(out, buf)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("recraft: response items carried neither url nor data")
	}
	return out, nil
}

var _ Generator = (*Recraft)(nil)
