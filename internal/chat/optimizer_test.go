package chat

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"genrelay/internal/domain"
)

func TestOptimizePromptOpenAI(t *testing.T) {
	var captured []byte
	transport := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		if req.URL.Path != "/v1/chat/completions" {
			t.Fatalf("unexpected path %s", req.URL.Path)
		}
		captured, _ = io.ReadAll(req.Body)
		return jsonResponse(http.StatusOK, `{"choices":[{"message":{"content":"  a misty forest at dawn, volumetric light  "}}]}`), nil
	})

	opt, err := NewOptimizer(OptimizerOptions{
		Backend:    "openai",
		OpenAIKey:  "key",
		Model:      "gpt-4o-mini",
		HTTPClient: &http.Client{Transport: transport},
	})
	if err != nil {
		t.Fatalf("new optimizer: %v", err)
	}

	got, err := opt.OptimizePrompt(context.Background(), "forest", "deadbeef")
	if err != nil {
		t.Fatalf("optimize: %v", err)
	}
	if got != "a misty forest at dawn, volumetric light" {
		t.Fatalf("got %q", got)
	}

	var payload struct {
		User     string `json:"user"`
		Messages []struct {
			Role string `json:"role"`
		} `json:"messages"`
	}
	if err := json.Unmarshal(captured, &payload); err != nil {
		t.Fatalf("decode request: %v", err)
	}
	if payload.User != "deadbeef" {
		t.Fatalf("user = %q, want hashed id", payload.User)
	}
	if len(payload.Messages) != 2 || payload.Messages[0].Role != "system" {
		t.Fatalf("expected system+user messages, got %+v", payload.Messages)
	}
}

func TestAdaptPromptCarriesBothInputs(t *testing.T) {
	var captured []byte
	transport := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		captured, _ = io.ReadAll(req.Body)
		return jsonResponse(http.StatusOK, `{"choices":[{"message":{"content":"a red fox"}}]}`), nil
	})

	opt, err := NewOptimizer(OptimizerOptions{
		Backend:    "openai",
		OpenAIKey:  "key",
		Model:      "gpt-4o-mini",
		HTTPClient: &http.Client{Transport: transport},
	})
	if err != nil {
		t.Fatalf("new optimizer: %v", err)
	}
	if _, err := opt.AdaptPrompt(context.Background(), "a grey fox", "make it red", "u"); err != nil {
		t.Fatalf("adapt: %v", err)
	}
	body := string(captured)
	if !strings.Contains(body, "a grey fox") || !strings.Contains(body, "make it red") {
		t.Fatal("request body missing current prompt or refinement")
	}
}

func TestOptimizePromptAnthropic(t *testing.T) {
	transport := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		if !strings.HasSuffix(req.URL.Path, "/messages") {
			t.Fatalf("unexpected path %s", req.URL.Path)
		}
		return jsonResponse(http.StatusOK, `{
			"id":"msg_1","type":"message","role":"assistant","model":"claude-sonnet-4-20250514",
			"content":[{"type":"text","text":"a neon city street at night"}],
			"stop_reason":"end_turn","usage":{"input_tokens":10,"output_tokens":12}
		}`), nil
	})

	opt, err := NewOptimizer(OptimizerOptions{
		Backend:      "anthropic",
		AnthropicKey: "key",
		Model:        "claude-sonnet-4-20250514",
		HTTPClient:   &http.Client{Transport: transport},
	})
	if err != nil {
		t.Fatalf("new optimizer: %v", err)
	}
	got, err := opt.OptimizePrompt(context.Background(), "city", "u")
	if err != nil {
		t.Fatalf("optimize: %v", err)
	}
	if got != "a neon city street at night" {
		t.Fatalf("got %q", got)
	}
}

func TestNewOptimizerRequiresCredential(t *testing.T) {
	if _, err := NewOptimizer(OptimizerOptions{Backend: "openai"}); !errors.Is(err, domain.ErrMissingCredential) {
		t.Fatalf("err = %v, want ErrMissingCredential", err)
	}
	if _, err := NewOptimizer(OptimizerOptions{Backend: "anthropic"}); !errors.Is(err, domain.ErrMissingCredential) {
		t.Fatalf("err = %v, want ErrMissingCredential", err)
	}
	if _, err := NewOptimizer(OptimizerOptions{Backend: "cohere", OpenAIKey: "k"}); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}
