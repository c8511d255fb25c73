package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"genrelay/internal/domain"
)

const prodiaBaseURL = "https://api.prodia.com/v1"

// Prodia uses a submit-then-poll job API that produces one image per job.
// Batches fan out as independent jobs with best-effort aggregation.
type Prodia struct {
	apiKey          string
	baseURL         string
	defaultNegative string
	httpClient      *http.Client
}

func NewProdia(apiKey, defaultNegative string, httpClient *http.Client) *Prodia {
	return &Prodia{
		apiKey:          apiKey,
		baseURL:         prodiaBaseURL,
		defaultNegative: defaultNegative,
		httpClient:      defaultHTTPClient(httpClient),
	}
}

type prodiaJobRequest struct {
	Prompt         string `json:"prompt"`
	NegativePrompt string `json:"negative_prompt,omitempty"`
	Width          int    `json:"width,omitempty"`
	Height         int    `json:"height,omitempty"`
	Seed           uint32 `json:"seed,omitempty"`
}

type prodiaJob struct {
	Job      string `json:"job"`
	Status   string `json:"status"`
	ImageURL string `json:"imageUrl"`
}

func (p *Prodia) Generate(ctx context.Context, req Request) ([][]byte, error) {
	width, height, _ := req.pixels()
	return fanOut(ctx, req.count(), func(ctx context.Context, _ int) ([]byte, error) {
		payload := prodiaJobRequest{
			Prompt:         req.Prompt,
			NegativePrompt: req.negativeOr(p.defaultNegative),
			Width:          width,
			Height:         height,
			Seed:           req.Seed,
		}
		raw, err := doJSON(ctx, p.httpClient, "prodia", http.MethodPost, p.baseURL+"/sdxl/generate",
			map[string]string{"X-Prodia-Key": p.apiKey}, payload)
		if err != nil {
			return nil, err
		}
		var job prodiaJob
		if err := json.Unmarshal(raw, &job); err != nil {
			return nil, fmt.Errorf("prodia: decode job: %w", err)
		}
		url, err := p.waitForJob(ctx, job.Job)
		if err != nil {
			return nil, err
		}
		return download(ctx, p.httpClient, "prodia", url)
	})
}

func (p *Prodia) waitForJob(ctx context.Context, jobID string) (string, error) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		raw, err := doJSON(ctx, p.httpClient, "prodia", http.MethodGet, p.baseURL+"/job/"+jobID,
			map[string]string{"X-Prodia-Key": p.apiKey}, nil)
		if err != nil {
			return "", err
		}
		var job prodiaJob
		if err := json.Unmarshal(raw, &job); err != nil {
			return "", fmt.Errorf("prodia: decode job status: %w", err)
		}
		switch job.Status {
		case "succeeded":
			if job.ImageURL == "" {
				return "", domain.NewProviderError("prodia", 0, "job succeeded without image url")
			}
			return job.ImageURL, nil
		case "failed":
			return "", domain.NewProviderError("prodia", 0, "job "+jobID+" failed")
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}
	}
}

var _ Generator = (*Prodia)(nil)
