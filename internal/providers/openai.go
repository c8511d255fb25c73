package providers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	oai "github.com/sashabaranov/go-openai"

	"genrelay/internal/domain"
)

// OpenAI generates images through the OpenAI image API. DALL-E refuses n>1,
// so a batch of N is issued as N independent calls with best-effort
// aggregation: failed individual generations are dropped silently and only
// survivors are returned. Editing goes through /v1/images/edits, which the
// SDK does not model for multi-image gpt-image input, so that call is built
// as multipart directly.
type OpenAI struct {
	client     *oai.Client
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

func NewOpenAI(apiKey string, httpClient *http.Client) *OpenAI {
	hc := defaultHTTPClient(httpClient)
	cfg := oai.DefaultConfig(apiKey)
	cfg.HTTPClient = hc
	return &OpenAI{
		client:     oai.NewClientWithConfig(cfg),
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: hc,
	}
}

func (o *OpenAI) Generate(ctx context.Context, req Request) ([][]byte, error) {
	return fanOut(ctx, req.count(), func(ctx context.Context, _ int) ([]byte, error) {
		imageReq := oai.ImageRequest{
			Prompt: req.Prompt,
			Model:  req.Model,
			N:      1,
			Size:   req.Size,
			User:   req.UserHash,
		}
		// gpt-image-1 always returns base64 and rejects response_format.
		if req.Model != "gpt-image-1" {
			imageReq.ResponseFormat = oai.CreateImageResponseFormatB64JSON
		}
		resp, err := o.client.CreateImage(ctx, imageReq)
		if err != nil {
			return nil, wrapOpenAIError(err)
		}
		if len(resp.Data) == 0 {
			return nil, domain.NewProviderError("openai", 0, "empty image data")
		}
		return base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	})
}

func (o *OpenAI) Edit(ctx context.Context, req EditRequest) ([][]byte, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	for i, img := range req.Images {
		part, err := writer.CreateFormFile("image[]", fmt.Sprintf("image_%d.png", i))
		if err != nil {
			return nil, fmt.Errorf("openai: build form: %w", err)
		}
		if _, err := part.Write(img); err != nil {
			return nil, fmt.Errorf("openai: write form: %w", err)
		}
	}
	_ = writer.WriteField("prompt", req.Instructions)
	_ = writer.WriteField("model", req.Model)
	if req.UserHash != "" {
		_ = writer.WriteField("user", req.UserHash)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("openai: close form: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/images/edits", &body)
	if err != nil {
		return nil, fmt.Errorf("openai: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())
	httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("openai: http request: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("openai: read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, apiError("openai", resp.StatusCode, raw)
	}

	var decoded struct {
		Data []struct {
			B64JSON string `json:"b64_json"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("openai: decode response: %w", err)
	}
	if len(decoded.Data) == 0 {
		return nil, domain.NewProviderError("openai", 0, "empty edit data")
	}
	out := make([][]byte, 0, len(decoded.Data))
	for _, item := range decoded.Data {
		buf, err := base64.StdEncoding.DecodeString(item.B64JSON)
		if err != nil {
			return nil, fmt.Errorf("openai: decode image: %w", err)
		}
		out = append(out, buf)
	}
	return out, nil
}

// wrapOpenAIError converts SDK errors into the shared taxonomy so callers see
// the upstream status and message regardless of transport.
func wrapOpenAIError(err error) error {
	var apiErr *oai.APIError
	if errors.As(err, &apiErr) {
		return domain.NewProviderError("openai", apiErr.HTTPStatusCode, apiErr.Message)
	}
	return fmt.Errorf("openai: %w", err)
}

var _ Generator = (*OpenAI)(nil)
var _ Editor = (*OpenAI)(nil)
