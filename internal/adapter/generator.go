package adapter

import (
	"context"
	"fmt"
	"os"
)

// Model backends understood by NewGenerator.
const (
	ProviderOllama    = "ollama"
	ProviderCommand   = "command"
	ProviderAnthropic = "anthropic"
	ProviderGenAI     = "genai"
)

// Generator is the text-generation capability the sample collector drives.
// One call produces one completion for the prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GeneratorOptions configures NewGenerator.
type GeneratorOptions struct {
	Provider  string
	Model     string
	Endpoint  string
	MaxTokens int
	// Command is the argv of the command backend; the prompt goes to stdin.
	Command []string
	// APIKey overrides the provider's environment variable.
	APIKey string
}

// NewGenerator builds the backend selected by opts.Provider.
func NewGenerator(ctx context.Context, opts GeneratorOptions) (Generator, error) {
	switch opts.Provider {
	case ProviderOllama, "":
		return NewOllamaGenerator(opts.Endpoint, opts.Model, opts.MaxTokens), nil
	case ProviderCommand:
		return NewCommandGenerator(opts.Command, opts.Model)
	case ProviderAnthropic:
		return NewAnthropicGenerator(firstNonEmpty(opts.APIKey, os.Getenv("ANTHROPIC_API_KEY")), opts.Model, opts.MaxTokens)
	case ProviderGenAI:
		apiKey := firstNonEmpty(opts.APIKey, os.Getenv("GEMINI_API_KEY"), os.Getenv("GOOGLE_API_KEY"))
		return NewGenAIGenerator(ctx, apiKey, opts.Model, opts.MaxTokens)
	default:
		return nil, fmt.Errorf("unknown model provider %q", opts.Provider)
	}
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}

	return ""
}

// GeneratorName returns the backend name recorded in run records.
func GeneratorName(g Generator) string {
	if named, ok := g.(interface{ Name() string }); ok {
		return named.Name()
	}

	return fmt.Sprintf("%T", g)
}
