package adapter

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"
)

const defaultGenAIModel = "gemini-2.0-flash"

// GenAIGenerator produces completions with the Gemini API.
type GenAIGenerator struct {
	client    *genai.Client
	model     string
	maxTokens int32
}

// NewGenAIGenerator creates a Gemini-backed generator.
func NewGenAIGenerator(ctx context.Context, apiKey, model string, maxTokens int) (*GenAIGenerator, error) {
	if apiKey == "" {
		return nil, errors.New("genai: API key is required")
	}

	if model == "" {
		model = defaultGenAIModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return &GenAIGenerator{
		client:    client,
		model:     model,
		maxTokens: int32(min(max(maxTokens, 0), 1<<20)), // #nosec G115 - clamped
	}, nil
}

// Generate sends one prompt and returns the text of the first candidate.
func (g *GenAIGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	var cfg *genai.GenerateContentConfig
	if g.maxTokens > 0 {
		cfg = &genai.GenerateContentConfig{MaxOutputTokens: g.maxTokens}
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), cfg)
	if err != nil {
		return "", fmt.Errorf("genai: %w", err)
	}

	return resp.Text(), nil
}

// Name identifies the backend and model in run records.
func (g *GenAIGenerator) Name() string {
	return "genai:" + g.model
}
