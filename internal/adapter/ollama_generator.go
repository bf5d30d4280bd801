package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

const (
	defaultOllamaEndpoint = "http://localhost:11434"
	defaultOllamaModel    = "qwen2.5-coder:1.5b"
)

// OllamaGenerator calls the /api/generate endpoint of an Ollama server with
// streaming disabled.
type OllamaGenerator struct {
	endpoint  string
	model     string
	maxTokens int
	client    *http.Client
}

// NewOllamaGenerator creates a generator for a local or remote Ollama server.
// Timeouts come from the caller's context.
func NewOllamaGenerator(endpoint, model string, maxTokens int) *OllamaGenerator {
	if endpoint == "" {
		endpoint = defaultOllamaEndpoint
	}

	if model == "" {
		model = defaultOllamaModel
	}

	return &OllamaGenerator{
		endpoint:  strings.TrimSuffix(endpoint, "/"),
		model:     model,
		maxTokens: maxTokens,
		client:    &http.Client{},
	}
}

type ollamaGenerateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
	Error    string `json:"error"`
}

// Generate sends one prompt and returns the completion.
func (g *OllamaGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	req := ollamaGenerateRequest{
		Model:  g.model,
		Prompt: prompt,
	}

	if g.maxTokens > 0 {
		req.Options = map[string]any{"num_predict": g.maxTokens}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("ollama request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		slog.Warn("Ollama returned an error status", "status", resp.StatusCode, "model", g.model)

		return "", fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	var result ollamaGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}

	if result.Error != "" {
		return "", fmt.Errorf("ollama: %s", result.Error)
	}

	return result.Response, nil
}

// Name identifies the backend and model in run records.
func (g *OllamaGenerator) Name() string {
	return "ollama:" + g.model
}
