package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"genrelay/internal/domain"
)

const (
	leonardoBaseURL        = "https://cloud.leonardo.ai/api/rest/v1"
	leonardoPhoenixModelID = "6b645e3a-d64f-4341-a6d8-7a3690fbf042"
)

// Leonardo submits one generation job for the whole batch (num_images) and
// polls for completion; any job failure fails the entire batch. Also exposes
// the account's remaining API token balance.
type Leonardo struct {
	apiKey          string
	baseURL         string
	defaultNegative string
	httpClient      *http.Client
}

func NewLeonardo(apiKey, defaultNegative string, httpClient *http.Client) *Leonardo {
	return &Leonardo{
		apiKey:          apiKey,
		baseURL:         leonardoBaseURL,
		defaultNegative: defaultNegative,
		httpClient:      defaultHTTPClient(httpClient),
	}
}

type leonardoGenerationRequest struct {
	Prompt         string `json:"prompt"`
	NegativePrompt string `json:"negative_prompt,omitempty"`
	ModelID        string `json:"modelId"`
	Width          int    `json:"width"`
	Height         int    `json:"height"`
	NumImages      int    `json:"num_images"`
	Seed           uint32 `json:"seed,omitempty"`
}

type leonardoGenerationResponse struct {
	SDGenerationJob struct {
		GenerationID string `json:"generationId"`
	} `json:"sdGenerationJob"`
}

type leonardoStatusResponse struct {
	GenerationsByPK struct {
		Status          string `json:"status"`
		GeneratedImages []struct {
			URL string `json:"url"`
		} `json:"generated_images"`
	} `json:"generations_by_pk"`
}

func (l *Leonardo) Generate(ctx context.Context, req Request) ([][]byte, error) {
	width, height, ok := req.pixels()
	if !ok {
		return nil, fmt.Errorf("leonardo: pixel size required, got %q", req.Size)
	}
	payload := leonardoGenerationRequest{
		Prompt:         req.Prompt,
		NegativePrompt: req.negativeOr(l.defaultNegative),
		ModelID:        leonardoPhoenixModelID,
		Width:          width,
		Height:         height,
		NumImages:      req.count(),
		Seed:           req.Seed,
	}
	raw, err := doJSON(ctx, l.httpClient, "leonardo", http.MethodPost, l.baseURL+"/generations", l.headers(), payload)
	if err != nil {
		return nil, err
	}
	var created leonardoGenerationResponse
	if err := json.Unmarshal(raw, &created); err != nil {
		return nil, fmt.Errorf("leonardo: decode job: %w", err)
	}
	id := created.SDGenerationJob.GenerationID
	if id == "" {
		return nil, domain.NewProviderError("leonardo", 0, "missing generation id")
	}

	urls, err := l.waitForGeneration(ctx, id)
	if err != nil {
		return nil, err
	}
	out := make([][]byte, 0, len(urls))
	for _, u := range urls {
		buf, err := download(ctx, l.httpClient, "leonardo", u)
		if err != nil {
			return nil, err
		}
		out = append(out, buf)
	}
	return out, nil
}

func (l *Leonardo) waitForGeneration(ctx context.Context, id string) ([]string, error) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		raw, err := doJSON(ctx, l.httpClient, "leonardo", http.MethodGet, l.baseURL+"/generations/"+id, l.headers(), nil)
		if err != nil {
			return nil, err
		}
		var status leonardoStatusResponse
		if err := json.Unmarshal(raw, &status); err != nil {
			return nil, fmt.Errorf("leonardo: decode status: %w", err)
		}
		switch status.GenerationsByPK.Status {
		case "COMPLETE":
			if len(status.GenerationsByPK.GeneratedImages) == 0 {
				return nil, domain.NewProviderError("leonardo", 0, "generation completed without images")
			}
			urls := make([]string, 0, len(status.GenerationsByPK.GeneratedImages))
			for _, img := range status.GenerationsByPK.GeneratedImages {
				urls = append(urls, img.URL)
			}
			return urls, nil
		case "FAILED":
			return nil, domain.NewProviderError("leonardo", 0, "generation "+id+" failed")
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// RemainingBalance reports the subscription token balance.
func (l *Leonardo) RemainingBalance(ctx context.Context) (float64, error) {
	raw, err := doJSON(ctx, l.httpClient, "leonardo", http.MethodGet, l.baseURL+"/me", l.headers(), nil)
	if err != nil {
		return 0, err
	}
	var decoded struct {
		UserDetails []struct {
			SubscriptionTokens float64 `json:"subscriptionTokens"`
		} `json:"user_details"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return 0, fmt.Errorf("leonardo: decode balance: %w", err)
	}
	if len(decoded.UserDetails) == 0 {
		return 0, domain.NewProviderError("leonardo", 0, "empty user details")
	}
	return decoded.UserDetails[0].SubscriptionTokens, nil
}

func (l *Leonardo) headers() map[string]string {
	return map[string]string{
		"Authorization": "Bearer " + l.apiKey,
		"Accept":        "application/json",
	}
}

var (
	_ Generator      = (*Leonardo)(nil)
	_ BalanceChecker = (*Leonardo)(nil)
)
