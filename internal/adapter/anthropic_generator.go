package adapter

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const (
	defaultAnthropicModel     = "claude-3-5-haiku-latest"
	defaultAnthropicMaxTokens = 512
)

// AnthropicGenerator produces completions with the Anthropic Messages API.
type AnthropicGenerator struct {
	api       anthropic.Client
	model     anthropic.Model
	maxTokens int64
}

// NewAnthropicGenerator creates a generator; the key usually comes from
// ANTHROPIC_API_KEY.
func NewAnthropicGenerator(apiKey, model string, maxTokens int, opts ...option.RequestOption) (*AnthropicGenerator, error) {
	if apiKey == "" {
		return nil, errors.New("anthropic: no API key provided")
	}

	if model == "" {
		model = defaultAnthropicModel
	}

	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}

	return &AnthropicGenerator{
		api:       anthropic.NewClient(append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)...),
		model:     anthropic.Model(model),
		maxTokens: int64(maxTokens),
	}, nil
}

// Generate sends the prompt as a single user message and joins the text
// blocks of the reply.
func (g *AnthropicGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	msg, err := g.api.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     g.model,
		MaxTokens: g.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic: %w", err)
	}

	var out strings.Builder

	for i := range msg.Content {
		if text, ok := msg.Content[i].AsAny().(anthropic.TextBlock); ok {
			out.WriteString(text.Text)
		}
	}

	return out.String(), nil
}

// Name identifies the backend and model in run records.
func (g *AnthropicGenerator) Name() string {
	return "anthropic:" + string(g.model)
}
