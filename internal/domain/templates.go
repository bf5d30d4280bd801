package domain

import (
	"context"
	"fmt"

	"gopkg.in/yaml.v3"

	"fixbench.dev/pkg/fixbench/internal/adapter"
	m "fixbench.dev/pkg/fixbench/internal/model"
)

const fixLineInstruction = "Fix the bug and return ONLY the corrected line of code, without explanations."

// DefaultTemplates returns the built-in prompt template of every mode.
func DefaultTemplates() map[m.Mode]string {
	return map[m.Mode]string{
		m.ModeFN: `You are given a Python function from {{.File}} that contains a bug.
` + fixLineInstruction + `

{{.Context}}`,

		m.ModeFLN: `You are given a Python function from {{.File}} that contains a bug.
The buggy line is marked with <BUGGY LINE>.
` + fixLineInstruction + `

{{.Context}}`,

		m.ModeCFN: `You are given a Python function from {{.File}} together with the code around it.
The buggy line is marked with <BUGGY LINE>.
` + fixLineInstruction + `

{{.Context}}`,

		m.ModeInstruction: `The following line of Python code from {{.File}} (line {{.Line}}) contains a bug.
` + fixLineInstruction + `

{{.BuggyCode}}`,

		m.ModeInstructionLabel: `The following line of Python code from {{.File}} (line {{.Line}}) contains a bug.
` + fixLineInstruction + `

Buggy line:
{{.BuggyCode}}

Fixed line:`,

		m.ModeInstructionMask: `The buggy line of the following Python function is masked as <FILL ME>.
Replace it with the correct code and return ONLY the line that replaces <FILL ME>.

{{.Masked}}`,
	}
}

// LoadTemplates returns the built-in templates with the overrides of a YAML
// file applied. The file maps mode names to template text:
//
//	FLN: |
//	  Fix the line marked <BUGGY LINE>.
//	  {{.Context}}
//
// An empty path returns the built-in templates.
func LoadTemplates(ctx context.Context, fsAdapter adapter.SourceFSAdapter, path m.Path) (map[m.Mode]string, error) {
	templates := DefaultTemplates()
	if path == "" {
		return templates, nil
	}

	content, err := fsAdapter.ReadFile(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("read templates: %w", err)
	}

	var overrides map[string]string
	if err := yaml.Unmarshal(content, &overrides); err != nil {
		return nil, fmt.Errorf("parse templates %s: %w", path, err)
	}

	for name, text := range overrides {
		mode, err := m.ParseMode(name)
		if err != nil {
			return nil, fmt.Errorf("templates %s: %w", path, err)
		}

		templates[mode] = text
	}

	return templates, nil
}
