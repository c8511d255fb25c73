package moderation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"genrelay/internal/domain"
)

// ClassifierClient calls the OpenAI moderation endpoint with the multi-modal
// omni model. go-openai's moderation binding only accepts a single text
// string, so this client speaks the wire format directly: one batched call
// carrying text and image items together.
type ClassifierClient struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

// ClassifierOptions configures the moderation client.
type ClassifierOptions struct {
	APIKey         string
	BaseURL        string
	Model          string
	HTTPClient     *http.Client
	RequestTimeout time.Duration
}

const defaultModerationModel = "omni-moderation-latest"

// NewClassifierClient constructs a classifier client with sane defaults.
func NewClassifierClient(opts ClassifierOptions) *ClassifierClient {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = defaultModerationModel
	}
	return &ClassifierClient{
		apiKey:     strings.TrimSpace(opts.APIKey),
		baseURL:    baseURL,
		model:      model,
		httpClient: httpClient,
	}
}

type moderationItem struct {
	Type     string              `json:"type"`
	Text     string              `json:"text,omitempty"`
	ImageURL *moderationImageURL `json:"image_url,omitempty"`
}

type moderationImageURL struct {
	URL string `json:"url"`
}

type moderationRequest struct {
	Model string           `json:"model"`
	Input []moderationItem `json:"input"`
}

type moderationResponse struct {
	Results []struct {
		Flagged    bool            `json:"flagged"`
		Categories map[string]bool `json:"categories"`
	} `json:"results"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// classification is the aggregated verdict over one batched call.
type classification struct {
	Flagged    bool
	Categories []string
}

// Classify sends every provided item in one call and unions the per-item
// category flags: any item tripping any category flags the whole batch.
func (c *ClassifierClient) Classify(ctx context.Context, items []moderationItem) (*classification, error) {
	payload := moderationRequest{Model: c.model, Input: items}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("moderation: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/moderations", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("moderation: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("moderation: http request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("moderation: read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		var decoded moderationResponse
		if err := json.Unmarshal(raw, &decoded); err == nil && decoded.Error != nil {
			return nil, domain.NewProviderError("moderation", resp.StatusCode, decoded.Error.Message)
		}
		return nil, domain.NewProviderError("moderation", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var decoded moderationResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("moderation: decode response: %w", err)
	}

	out := &classification{}
	seen := map[string]struct{}{}
	for _, result := range decoded.Results {
		if result.Flagged {
			out.Flagged = true
		}
		for name, tripped := range result.Categories {
			if !tripped {
				continue
			}
			if _, dup := seen[name]; dup {
				continue
			}
			seen[name] = struct{}{}
			out.Categories = append(out.Categories, name)
		}
	}
	// Category maps decode in randomized order; sort for a stable verdict.
	sort.Strings(out.Categories)
	return out, nil
}

func textItem(text string) moderationItem {
	return moderationItem{Type: "text", Text: text}
}

func imageItem(url string) moderationItem {
	return moderationItem{Type: "image_url", ImageURL: &moderationImageURL{URL: url}}
}
