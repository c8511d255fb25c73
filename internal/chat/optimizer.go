package chat

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	oai "github.com/sashabaranov/go-openai"

	"genrelay/internal/domain"
)

const optimizeInstruction = "You rewrite text-to-image prompts. Expand the user's idea into a single " +
	"vivid, concrete prompt: subject, setting, lighting, composition, style. " +
	"Reply with the rewritten prompt only, no commentary."

const adaptInstruction = "You revise text-to-image prompts. Apply the requested change to the current " +
	"prompt while keeping everything the change does not touch. Reply with the " +
	"revised prompt only, no commentary."

// OptimizerOptions configures the prompt optimizer.
type OptimizerOptions struct {
	// Backend selects the model provider: "openai" or "anthropic".
	Backend      string
	OpenAIKey    string
	AnthropicKey string
	Model        string
	MaxTokens    int
	HTTPClient   *http.Client
}

// Optimizer rewrites image prompts through a chat model. It backs both the
// initial prompt-optimize step and later incremental refinements.
type Optimizer struct {
	backend   string
	model     string
	maxTokens int
	openai    *oai.Client
	anthropic anthropic.Client
}

func NewOptimizer(opts OptimizerOptions) (*Optimizer, error) {
	o := &Optimizer{
		backend:   opts.Backend,
		model:     opts.Model,
		maxTokens: opts.MaxTokens,
	}
	if o.maxTokens <= 0 {
		o.maxTokens = 1024
	}
	switch opts.Backend {
	case "openai":
		if strings.TrimSpace(opts.OpenAIKey) == "" {
			return nil, fmt.Errorf("%w: OPENAI_API_KEY (prompt backend)", domain.ErrMissingCredential)
		}
		cfg := oai.DefaultConfig(opts.OpenAIKey)
		if opts.HTTPClient != nil {
			cfg.HTTPClient = opts.HTTPClient
		}
		o.openai = oai.NewClientWithConfig(cfg)
	case "anthropic":
		if strings.TrimSpace(opts.AnthropicKey) == "" {
			return nil, fmt.Errorf("%w: ANTHROPIC_API_KEY (prompt backend)", domain.ErrMissingCredential)
		}
		clientOpts := []option.RequestOption{option.WithAPIKey(opts.AnthropicKey)}
		if opts.HTTPClient != nil {
			clientOpts = append(clientOpts, option.WithHTTPClient(opts.HTTPClient))
		}
		o.anthropic = anthropic.NewClient(clientOpts...)
	default:
		return nil, fmt.Errorf("unknown prompt backend %q", opts.Backend)
	}
	return o, nil
}

// OptimizePrompt expands a raw idea into a richer generation prompt.
func (o *Optimizer) OptimizePrompt(ctx context.Context, text, userHash string) (string, error) {
	return o.run(ctx, optimizeInstruction, text, userHash)
}

// AdaptPrompt applies a refinement to an existing prompt.
func (o *Optimizer) AdaptPrompt(ctx context.Context, current, refinement, userHash string) (string, error) {
	input := fmt.Sprintf("Current prompt:\n%s\n\nRequested change:\n%s", current, refinement)
	return o.run(ctx, adaptInstruction, input, userHash)
}

func (o *Optimizer) run(ctx context.Context, instruction, input, userHash string) (string, error) {
	if o.backend == "anthropic" {
		return o.runAnthropic(ctx, instruction, input)
	}
	return o.runOpenAI(ctx, instruction, input, userHash)
}

func (o *Optimizer) runOpenAI(ctx context.Context, instruction, input, userHash string) (string, error) {
	resp, err := o.openai.CreateChatCompletion(ctx, oai.ChatCompletionRequest{
		Model: o.model,
		Messages: []oai.ChatCompletionMessage{
			{Role: oai.ChatMessageRoleSystem, Content: instruction},
			{Role: oai.ChatMessageRoleUser, Content: input},
		},
		MaxTokens: o.maxTokens,
		User:      userHash,
	})
	if err != nil {
		return "", fmt.Errorf("prompt optimizer: %w", err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", domain.ErrNoResponseContent
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func (o *Optimizer) runAnthropic(ctx context.Context, instruction, input string) (string, error) {
	msg, err := o.anthropic.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(o.model),
		MaxTokens: int64(o.maxTokens),
		System:    []anthropic.TextBlockParam{{Text: instruction}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(input)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("prompt optimizer: %w", err)
	}
	for _, block := range msg.Content {
		if text := strings.TrimSpace(block.Text); text != "" {
			return text, nil
		}
	}
	return "", domain.ErrNoResponseContent
}
