package chat

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	oai "github.com/sashabaranov/go-openai"

	"genrelay/internal/domain"
)

// Message is one turn of a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Options configures the chat router.
type Options struct {
	APIKey        string
	Model         string
	Temperature   float64
	MaxTokens     int
	SystemMessage string
	// Backend is consulted on every SendChat call and must return either
	// "completions" or "responses". Anything else falls back to completions.
	Backend    func() string
	HTTPClient *http.Client
}

// Router sends a conversation to one of two OpenAI call shapes and
// normalizes both into plain text.
type Router struct {
	completions   *oai.Client
	responses     *responsesClient
	model         string
	temperature   float64
	maxTokens     int
	systemMessage string
	backend       func() string
}

func NewRouter(opts Options) *Router {
	cfg := oai.DefaultConfig(opts.APIKey)
	if opts.HTTPClient != nil {
		cfg.HTTPClient = opts.HTTPClient
	}
	backend := opts.Backend
	if backend == nil {
		backend = func() string { return "completions" }
	}
	return &Router{
		completions:   oai.NewClientWithConfig(cfg),
		responses:     newResponsesClient(opts.APIKey, opts.HTTPClient),
		model:         opts.Model,
		temperature:   opts.Temperature,
		maxTokens:     opts.MaxTokens,
		systemMessage: opts.SystemMessage,
		backend:       backend,
	}
}

// SendChat runs the history through the configured backend. The backend
// switch is read per call, so flipping it takes effect without a restart.
func (r *Router) SendChat(ctx context.Context, history []Message) (string, error) {
	if r.backend() == "responses" {
		return r.sendResponses(ctx, history)
	}
	return r.sendCompletions(ctx, history)
}

func (r *Router) sendCompletions(ctx context.Context, history []Message) (string, error) {
	messages := make([]oai.ChatCompletionMessage, 0, len(history)+1)
	if r.systemMessage != "" {
		messages = append(messages, oai.ChatCompletionMessage{
			Role:    oai.ChatMessageRoleSystem,
			Content: r.systemMessage,
		})
	}
	for _, m := range history {
		messages = append(messages, oai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	resp, err := r.completions.CreateChatCompletion(ctx, oai.ChatCompletionRequest{
		Model:       r.model,
		Messages:    messages,
		Temperature: float32(r.temperature),
		MaxTokens:   r.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("chat completions: %w", err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", domain.ErrNoResponseContent
	}
	return resp.Choices[0].Message.Content, nil
}

func (r *Router) sendResponses(ctx context.Context, history []Message) (string, error) {
	return r.responses.Send(ctx, responsesRequest{
		Model:           r.model,
		Instructions:    r.systemMessage,
		Input:           history,
		Temperature:     r.temperature,
		MaxOutputTokens: r.maxTokens,
		Store:           false,
	})
}
