package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
)

const deepAIBaseURL = "https://api.deepai.org/api"

// DeepAI takes form-encoded requests and answers with a result URL. One
// image per call; batches fan out best-effort. The torch-srgan endpoint
// provides upscaling.
type DeepAI struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

func NewDeepAI(apiKey string, httpClient *http.Client) *DeepAI {
	return &DeepAI{
		apiKey:     apiKey,
		baseURL:    deepAIBaseURL,
		httpClient: defaultHTTPClient(httpClient),
	}
}

type deepAIResponse struct {
	OutputURL string `json:"output_url"`
	Err       string `json:"err"`
}

func (d *DeepAI) Generate(ctx context.Context, req Request) ([][]byte, error) {
	return fanOut(ctx, req.count(), func(ctx context.Context, _ int) ([]byte, error) {
		form := url.Values{}
		form.Set("text", req.Prompt)
		if w, h, ok := req.pixels(); ok {
			form.Set("width", fmt.Sprint(w))
			form.Set("height", fmt.Sprint(h))
		}
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"/text2img",
			strings.NewReader(form.Encode()))
		if err != nil {
			return nil, fmt.Errorf("deepai: build request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		httpReq.Header.Set("api-key", d.apiKey)
		return d.resolveResult(ctx, httpReq)
	})
}

func (d *DeepAI) Upscale(ctx context.Context, image []byte, _ string) ([]byte, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("image", "input.png")
	if err != nil {
		return nil, fmt.Errorf("deepai: build form: %w", err)
	}
	if _, err := part.Write(image); err != nil {
		return nil, fmt.Errorf("deepai: write form: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("deepai: close form: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"/torch-srgan", &body)
	if err != nil {
		return nil, fmt.Errorf("deepai: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())
	httpReq.Header.Set("api-key", d.apiKey)
	return d.resolveResult(ctx, httpReq)
}

// resolveResult executes the request, decodes the output_url envelope, and
// downloads the artifact it points at.
func (d *DeepAI) resolveResult(ctx context.Context, req *http.Request) ([]byte, error) {
	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("deepai: http request: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("deepai: read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, apiError("deepai", resp.StatusCode, raw)
	}
	var decoded deepAIResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("deepai: decode response: %w", err)
	}
	if decoded.Err != "" {
		return nil, apiError("deepai", resp.StatusCode, raw)
	}
	if decoded.OutputURL == "" {
		return nil, fmt.Errorf("deepai: no output url in response")
	}
	return download(ctx, d.httpClient, "deepai", decoded.OutputURL)
}

var (
	_ Generator = (*DeepAI)(nil)
	_ Upscaler  = (*DeepAI)(nil)
)
