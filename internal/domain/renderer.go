package domain

import (
	"context"
	"fmt"
	"strings"
	"text/template"

	m "fixbench.dev/pkg/fixbench/internal/model"
)

// PromptRenderer renders the prompt of a mode. Tier modes and
// InstructionMask need the heuristic context of their tier; Instruction and
// InstructionLabel only use the bug record and ignore hc.
type PromptRenderer interface {
	Render(ctx context.Context, mode m.Mode, record m.BugRecord, hc m.HeuristicContext) (m.Prompt, error)
}

type promptRenderer struct {
	templates map[m.Mode]*template.Template
}

// NewPromptRenderer parses templates up front so a broken template fails the
// run before any model call.
func NewPromptRenderer(templates map[m.Mode]string) (PromptRenderer, error) {
	parsed := make(map[m.Mode]*template.Template, len(templates))

	for mode, text := range templates {
		tmpl, err := template.New(string(mode)).Option("missingkey=error").Parse(text)
		if err != nil {
			return nil, fmt.Errorf("parse %s template: %w", mode, err)
		}

		parsed[mode] = tmpl
	}

	return &promptRenderer{templates: parsed}, nil
}

func (r *promptRenderer) Render(_ context.Context, mode m.Mode, record m.BugRecord, hc m.HeuristicContext) (m.Prompt, error) {
	tmpl, ok := r.templates[mode]
	if !ok {
		return m.Prompt{}, fmt.Errorf("no template for mode %s", mode)
	}

	fields := recordFields(record)

	if tier, needsContext := mode.Tier(); needsContext {
		if hc == nil || hc.Tier() != tier {
			return m.Prompt{}, fmt.Errorf("mode %s needs a %s context", mode, tier)
		}

		contextFields(fields, hc)

		if mode == m.ModeInstructionMask {
			fields["Masked"] = strings.Join(maskedExcerpt(hc.Base()), "\n")
		}
	}

	var out strings.Builder
	if err := tmpl.Execute(&out, fields); err != nil {
		if strings.Contains(err.Error(), "map has no entry for key") {
			return m.Prompt{}, fmt.Errorf("%s %s: %w: %w", record.Key, mode, m.ErrTemplateMissingField, err)
		}

		return m.Prompt{}, fmt.Errorf("render %s for %s: %w", mode, record.Key, err)
	}

	return m.Prompt{
		Mode:     mode,
		Template: tmpl.Name(),
		Text:     strings.TrimSpace(out.String()),
		Bug:      record.Key,
	}, nil
}

func recordFields(record m.BugRecord) map[string]any {
	return map[string]any{
		"Project":   record.Key.Project,
		"BugID":     record.Key.BugID,
		"File":      record.FilePath,
		"Line":      record.Span.Start,
		"Span":      record.Span.String(),
		"BuggyCode": strings.Join(record.BuggyLines, "\n"),
	}
}

func contextFields(fields map[string]any, hc m.HeuristicContext) {
	base := hc.Base()

	fields["Tier"] = string(hc.Tier())
	fields["Function"] = base.Function
	fields["Region"] = base.Region.String()
	fields["Context"] = m.ContextText(hc)

	if cfn, ok := hc.(*m.CFNContext); ok {
		fields["Truncated"] = cfn.Truncated
	}
}

// maskedExcerpt replaces the defective lines of the FN excerpt with a single
// MaskMarker line indented like the first of them.
func maskedExcerpt(fn *m.FNContext) []string {
	lines := make([]string, 0, len(fn.Excerpt))

	for i, text := range fn.Excerpt {
		line := fn.Region.Start + i

		switch {
		case line == fn.Bug.Span.Start:
			indent := text[:len(text)-len(strings.TrimLeft(text, " \t"))]
			lines = append(lines, indent+m.MaskMarker)
		case fn.Bug.Span.Contains(line):
			// folded into the marker line
		default:
			lines = append(lines, text)
		}
	}

	return lines
}
