package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"genrelay/internal/domain"
)

const responsesBaseURL = "https://api.openai.com/v1"

// responsesClient talks to the OpenAI Responses API directly. The SDK used
// for the completions path does not cover this surface yet.
type responsesClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

func newResponsesClient(apiKey string, httpClient *http.Client) *responsesClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 120 * time.Second}
	}
	return &responsesClient{apiKey: apiKey, baseURL: responsesBaseURL, httpClient: httpClient}
}

type responsesRequest struct {
	Model           string    `json:"model"`
	Instructions    string    `json:"instructions,omitempty"`
	Input           []Message `json:"input"`
	Temperature     float64   `json:"temperature,omitempty"`
	MaxOutputTokens int       `json:"max_output_tokens,omitempty"`
	Store           bool      `json:"store"`
}

type responsesReply struct {
	OutputText string `json:"output_text"`
	Output     []struct {
		Type    string `json:"type"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	} `json:"output"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Send posts the conversation and extracts plain text. The aggregated
// output_text field is preferred; when absent the output items are scanned
// for the first message carrying text content.
func (c *responsesClient) Send(ctx context.Context, req responsesRequest) (string, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("responses: encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/responses", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("responses: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("responses: http request: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("responses: read response: %w", err)
	}

	var decoded responsesReply
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", fmt.Errorf("responses: decode response: %w", err)
	}
	if resp.StatusCode >= 300 {
		msg := strings.TrimSpace(string(raw))
		if decoded.Error != nil {
			msg = decoded.Error.Message
		}
		return "", domain.NewProviderError("openai", resp.StatusCode, msg)
	}

	if text := strings.TrimSpace(decoded.OutputText); text != "" {
		return text, nil
	}
	for _, item := range decoded.Output {
		if item.Type != "message" {
			continue
		}
		for _, part := range item.Content {
			if part.Type == "output_text" && strings.TrimSpace(part.Text) != "" {
				return part.Text, nil
			}
		}
	}
	return "", domain.ErrNoResponseContent
}
