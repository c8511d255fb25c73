package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
)

const stabilityBaseURL = "https://api.stability.ai"

// Stability speaks the Stability AI v2beta stable-image API: multipart form
// requests with an "Accept: image/*" header, direct binary responses. Batches
// are issued as per-image calls with best-effort aggregation. The same client
// covers text-to-image (core/ultra), image-to-image via the sd3 route, and
// the fast upscaler, and exposes the account credit balance.
type Stability struct {
	apiKey          string
	baseURL         string
	defaultNegative string
	httpClient      *http.Client
}

func NewStability(apiKey, defaultNegative string, httpClient *http.Client) *Stability {
	return &Stability{
		apiKey:          apiKey,
		baseURL:         stabilityBaseURL,
		defaultNegative: defaultNegative,
		httpClient:      defaultHTTPClient(httpClient),
	}
}

func (s *Stability) Generate(ctx context.Context, req Request) ([][]byte, error) {
	endpoint := s.baseURL + "/v2beta/stable-image/generate/core"
	if req.Model == "stable-image-ultra" {
		endpoint = s.baseURL + "/v2beta/stable-image/generate/ultra"
	}
	return fanOut(ctx, req.count(), func(ctx context.Context, _ int) ([]byte, error) {
		fields := map[string]string{
			"prompt":          req.Prompt,
			"negative_prompt": req.negativeOr(s.defaultNegative),
			"aspect_ratio":    req.Size,
			"output_format":   "png",
		}
		if req.Seed != 0 {
			fields["seed"] = strconv.FormatUint(uint64(req.Seed), 10)
		}
		return s.postForm(ctx, endpoint, fields, nil)
	})
}

func (s *Stability) Transform(ctx context.Context, req Request) ([][]byte, error) {
	endpoint := s.baseURL + "/v2beta/stable-image/generate/sd3"
	return fanOut(ctx, req.count(), func(ctx context.Context, _ int) ([]byte, error) {
		fields := map[string]string{
			"prompt":          req.Prompt,
			"negative_prompt": req.negativeOr(s.defaultNegative),
			"mode":            "image-to-image",
			"strength":        strconv.FormatFloat(req.Strength, 'f', 2, 64),
			"output_format":   "png",
		}
		if req.Seed != 0 {
			fields["seed"] = strconv.FormatUint(uint64(req.Seed), 10)
		}
		return s.postForm(ctx, endpoint, fields, req.SourceImage)
	})
}

func (s *Stability) Upscale(ctx context.Context, image []byte, _ string) ([]byte, error) {
	endpoint := s.baseURL + "/v2beta/stable-image/upscale/fast"
	return s.postForm(ctx, endpoint, map[string]string{"output_format": "png"}, image)
}

// RemainingBalance queries the account's credit balance.
func (s *Stability) RemainingBalance(ctx context.Context) (float64, error) {
	raw, err := doJSON(ctx, s.httpClient, "stability", http.MethodGet, s.baseURL+"/v1/user/balance",
		map[string]string{"Authorization": "Bearer " + s.apiKey}, nil)
	if err != nil {
		return 0, err
	}
	var decoded struct {
		Credits float64 `json:"credits"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return 0, fmt.Errorf("stability: decode balance: %w", err)
	}
	return decoded.Credits, nil
}

func (s *Stability) postForm(ctx context.Context, endpoint string, fields map[string]string, image []byte) ([]byte, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	for k, v := range fields {
		if strings.TrimSpace(v) == "" {
			continue
		}
		_ = writer.WriteField(k, v)
	}
	if image != nil {
		part, err := writer.CreateFormFile("image", "input.png")
		if err != nil {
			return nil, fmt.Errorf("stability: build form: %w", err)
		}
		if _, err := part.Write(image); err != nil {
			return nil, fmt.Errorf("stability: write form: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("stability: close form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return nil, fmt.Errorf("stability: build request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Accept", "image/*")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("stability: http request: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("stability: read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, apiError("stability", resp.StatusCode, raw)
	}
	return raw, nil
}

var (
	_ Generator      = (*Stability)(nil)
	_ Transformer    = (*Stability)(nil)
	_ Upscaler       = (*Stability)(nil)
	_ BalanceChecker = (*Stability)(nil)
)
