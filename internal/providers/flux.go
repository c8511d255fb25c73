package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"genrelay/internal/domain"
)

const fluxBaseURL = "https://api.bfl.ml/v1"

// Flux talks to the Black Forest Labs API: submit a task, poll for the
// result sample URL, download it. Each task yields one image, so batches fan
// out as independent tasks with best-effort aggregation.
type Flux struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

func NewFlux(apiKey string, httpClient *http.Client) *Flux {
	return &Flux{
		apiKey:     apiKey,
		baseURL:    fluxBaseURL,
		httpClient: defaultHTTPClient(httpClient),
	}
}

type fluxRequest struct {
	Prompt string `json:"prompt"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
	Seed   uint32 `json:"seed,omitempty"`
}

type fluxSubmitResponse struct {
	ID string `json:"id"`
}

type fluxResultResponse struct {
	Status string `json:"status"`
	Result struct {
		Sample string `json:"sample"`
	} `json:"result"`
}

func (f *Flux) Generate(ctx context.Context, req Request) ([][]byte, error) {
	width, height, _ := req.pixels()
	return fanOut(ctx, req.count(), func(ctx context.Context, _ int) ([]byte, error) {
		payload := fluxRequest{
			Prompt: req.Prompt,
			Width:  width,
			Height: height,
			Seed:   req.Seed,
		}
		raw, err := doJSON(ctx, f.httpClient, "flux", http.MethodPost, f.baseURL+"/flux-pro-1.1", f.headers(), payload)
		if err != nil {
			return nil, err
		}
		var submitted fluxSubmitResponse
		if err := json.Unmarshal(raw, &submitted); err != nil {
			return nil, fmt.Errorf("flux: decode submit: %w", err)
		}
		if submitted.ID == "" {
			return nil, domain.NewProviderError("flux", 0, "missing task id")
		}
		sample, err := f.waitForResult(ctx, submitted.ID)
		if err != nil {
			return nil, err
		}
		return download(ctx, f.httpClient, "flux", sample)
	})
}

func (f *Flux) waitForResult(ctx context.Context, id string) (string, error) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		raw, err := doJSON(ctx, f.httpClient, "flux", http.MethodGet, f.baseURL+"/get_result?id="+id, f.headers(), nil)
		if err != nil {
			return "", err
		}
		var result fluxResultResponse
		if err := json.Unmarshal(raw, &result); err != nil {
			return "", fmt.Errorf("flux: decode result: %w", err)
		}
		switch result.Status {
		case "Ready":
			if result.Result.Sample == "" {
				return "", domain.NewProviderError("flux", 0, "result ready without sample url")
			}
			return result.Result.Sample, nil
		case "Error", "Content Moderated", "Request Moderated", "Task not found":
			return "", domain.NewProviderError("flux", 0, "task "+id+": "+result.Status)
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}
	}
}

func (f *Flux) headers() map[string]string {
	return map[string]string{"x-key": f.apiKey}
}

var _ Generator = (*Flux)(nil)
