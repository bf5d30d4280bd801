package adapter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// CommandGenerator runs an external command per completion, writing the
// prompt to its stdin and reading the completion from stdout. The default
// command is `ollama run <model>`.
type CommandGenerator struct {
	argv []string
}

// NewCommandGenerator constructs a CommandGenerator. An empty argv falls
// back to `ollama run <model>`.
func NewCommandGenerator(argv []string, model string) (*CommandGenerator, error) {
	if len(argv) == 0 {
		if model == "" {
			model = defaultOllamaModel
		}

		argv = []string{"ollama", "run", model}
	}

	if strings.TrimSpace(argv[0]) == "" {
		return nil, errors.New("command generator: empty executable")
	}

	return &CommandGenerator{argv: argv}, nil
}

// Generate runs the command once. A non-zero exit status is reported together
// with the command's stderr.
func (g *CommandGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	// #nosec G204 - argv comes from the user's configuration
	cmd := exec.CommandContext(ctx, g.argv[0], g.argv[1:]...)
	cmd.Stdin = strings.NewReader(prompt)

	var stdout, stderr bytes.Buffer

	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}

		return "", fmt.Errorf("%s: %w: %s", g.argv[0], err, strings.TrimSpace(stderr.String()))
	}

	return stdout.String(), nil
}

// Name identifies the backend in run records.
func (g *CommandGenerator) Name() string {
	return "command:" + strings.Join(g.argv, " ")
}
