package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"genrelay/internal/domain"
)

const novitaBaseURL = "https://api.novita.ai/v3"

// Novita submits one async task for the whole batch (image_num) and polls
// for its result; any task failure fails the entire batch.
type Novita struct {
	apiKey          string
	baseURL         string
	defaultNegative string
	httpClient      *http.Client
}

func NewNovita(apiKey, defaultNegative string, httpClient *http.Client) *Novita {
	return &Novita{
		apiKey:          apiKey,
		baseURL:         novitaBaseURL,
		defaultNegative: defaultNegative,
		httpClient:      defaultHTTPClient(httpClient),
	}
}

type novitaRequest struct {
	Extra   novitaExtra   `json:"extra"`
	Request novitaPayload `json:"request"`
}

type novitaExtra struct {
	ResponseImageType string `json:"response_image_type"`
}

type novitaPayload struct {
	ModelName      string `json:"model_name"`
	Prompt         string `json:"prompt"`
	NegativePrompt string `json:"negative_prompt,omitempty"`
	Width          int    `json:"width"`
	Height         int    `json:"height"`
	ImageNum       int    `json:"image_num"`
	Steps          int    `json:"steps"`
	Seed           int64  `json:"seed"`
}

type novitaTaskResponse struct {
	TaskID string `json:"task_id"`
}

type novitaResultResponse struct {
	Task struct {
		Status string `json:"status"`
		Reason string `json:"reason"`
	} `json:"task"`
	Images []struct {
		ImageURL string `json:"image_url"`
	} `json:"images"`
}

func (n *Novita) Generate(ctx context.Context, req Request) ([][]byte, error) {
	width, height, ok := req.pixels()
	if !ok {
		return nil, fmt.Errorf("novita: pixel size required, got %q", req.Size)
	}
	seed := int64(-1)
	if req.Seed != 0 {
		seed = int64(req.Seed)
	}
	payload := novitaRequest{
		Extra: novitaExtra{ResponseImageType: "png"},
		Request: novitaPayload{
			ModelName:      "sd_xl_base_1.0.safetensors",
			Prompt:         req.Prompt,
			NegativePrompt: req.negativeOr(n.defaultNegative),
			Width:          width,
			Height:         height,
			ImageNum:       req.count(),
			Steps:          30,
			Seed:           seed,
		},
	}
	raw, err := doJSON(ctx, n.httpClient, "novita", http.MethodPost, n.baseURL+"/async/txt2img", n.headers(), payload)
	if err != nil {
		return nil, err
	}
	var task novitaTaskResponse
	if err := json.Unmarshal(raw, &task); err != nil {
		return nil, fmt.Errorf("novita: decode task: %w", err)
	}
	if task.TaskID == "" {
		return nil, domain.NewProviderError("novita", 0, "missing task id")
	}
	return n.waitForTask(ctx, task.TaskID)
}

func (n *Novita) waitForTask(ctx context.Context, taskID string) ([][]byte, error) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		raw, err := doJSON(ctx, n.httpClient, "novita", http.MethodGet,
			n.baseURL+"/async/task-result?task_id="+taskID, n.headers(), nil)
		if err != nil {
			return nil, err
		}
		var result novitaResultResponse
		if err := json.Unmarshal(raw, &result); err != nil {
			return nil, fmt.Errorf("novita: decode result: %w", err)
		}
		switch result.Task.Status {
		case "TASK_STATUS_SUCCEED":
			if len(result.Images) == 0 {
				return nil, domain.NewProviderError("novita", 0, "task succeeded without images")
			}
			out := make([][]byte, 0, len(result.Images))
			for _, img := range result.Images {
				buf, err := download(ctx, n.httpClient, "novita", img.ImageURL)
				if err != nil {
					return nil, err
				}
				out = append(out, buf)
			}
			return out, nil
		case "TASK_STATUS_FAILED":
			return nil, domain.NewProviderError("novita", 0, "task failed: "+result.Task.Reason)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (n *Novita) headers() map[string]string {
	return map[string]string{"Authorization": "Bearer " + n.apiKey}
}

var _ Generator = (*Novita)(nil)
