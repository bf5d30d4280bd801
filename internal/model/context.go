package model

import (
	"fmt"
	"strings"
)

// Tier is a level of heuristic hinting supplied to the model.
type Tier string

const (
	// TierFN supplies the buggy function.
	TierFN Tier = "FN"
	// TierFLN supplies the buggy function with the defective lines marked.
	TierFLN Tier = "FLN"
	// TierCFN supplies the marked function plus its surroundings.
	TierCFN Tier = "CFN"
)

// Tiers lists the heuristic tiers from least to most informative.
var Tiers = []Tier{TierFN, TierFLN, TierCFN}

// Mode selects how a prompt is built: one of the heuristic tiers or a
// history-agnostic baseline. Every experiment runs exactly one mode.
type Mode string

const (
	ModeFN  Mode = Mode(TierFN)
	ModeFLN Mode = Mode(TierFLN)
	ModeCFN Mode = Mode(TierCFN)

	// ModeInstruction asks for the fix given only the task description and the buggy line.
	ModeInstruction Mode = "Instruction"
	// ModeInstructionLabel adds an explicit label of the expected output.
	ModeInstructionLabel Mode = "InstructionLabel"
	// ModeInstructionMask masks the buggy line inside its function.
	ModeInstructionMask Mode = "InstructionMask"
)

// Modes lists every supported mode.
var Modes = []Mode{ModeFN, ModeFLN, ModeCFN, ModeInstruction, ModeInstructionLabel, ModeInstructionMask}

// ParseMode resolves a mode or tier name case-insensitively.
func ParseMode(value string) (Mode, error) {
	for _, mode := range Modes {
		if strings.EqualFold(string(mode), strings.TrimSpace(value)) {
			return mode, nil
		}
	}

	return "", fmt.Errorf("unknown mode %q", value)
}

// Tier returns the heuristic tier whose context the mode needs, if any.
// InstructionMask needs the FN excerpt to mask the buggy line in.
func (m Mode) Tier() (Tier, bool) {
	switch m {
	case ModeFN, ModeInstructionMask:
		return TierFN, true
	case ModeFLN:
		return TierFLN, true
	case ModeCFN:
		return TierCFN, true
	case ModeInstruction, ModeInstructionLabel:
		return "", false
	}

	return "", false
}

// IsBaseline reports whether the mode is a history-agnostic baseline.
func (m Mode) IsBaseline() bool {
	switch m {
	case ModeInstruction, ModeInstructionLabel, ModeInstructionMask:
		return true
	case ModeFN, ModeFLN, ModeCFN:
		return false
	}

	return false
}

const (
	// BuggyLineMarker is appended to every defective line from FLN upwards.
	BuggyLineMarker = "# <BUGGY LINE>"
	// MaskMarker replaces the defective lines in InstructionMask prompts.
	MaskMarker = "<FILL ME>"
	// TruncationMarker stands in for context clipped to fit the budget.
	TruncationMarker = "# ... [truncated]"
)

// HeuristicContext is the payload a tier contributes to a prompt. It is a
// closed set: *FNContext, *FLNContext and *CFNContext. Each tier embeds the
// payload of the tier below it, so FN ⊆ FLN ⊆ CFN holds by construction.
type HeuristicContext interface {
	Tier() Tier
	// Base returns the FN payload every tier carries.
	Base() *FNContext
	// Lines returns the tier's excerpt as it is embedded in prompts.
	Lines() []string
	isHeuristicContext()
}

// FNContext carries the function enclosing the defective span.
type FNContext struct {
	Bug BugRecord
	// Function is the enclosing function name; empty when Fallback is set.
	Function string
	Region   Span
	Excerpt  []string
	// Fallback is set when no enclosing function was found and Region is a
	// fixed-size window centered on the span.
	Fallback bool
}

// Tier implements HeuristicContext.
func (c *FNContext) Tier() Tier { return TierFN }

// Base implements HeuristicContext.
func (c *FNContext) Base() *FNContext { return c }

// Lines implements HeuristicContext.
func (c *FNContext) Lines() []string { return c.Excerpt }

func (c *FNContext) isHeuristicContext() {}

// FLNContext adds explicit markers on every defective line.
type FLNContext struct {
	FNContext
	// Markers holds the absolute line numbers that carry a marker.
	Markers []int
	// Marked is Excerpt with BuggyLineMarker appended to the marked lines.
	Marked []string
}

// Tier implements HeuristicContext.
func (c *FLNContext) Tier() Tier { return TierFLN }

// Base implements HeuristicContext.
func (c *FLNContext) Base() *FNContext { return &c.FNContext }

// Lines implements HeuristicContext.
func (c *FLNContext) Lines() []string { return c.Marked }

// CFNContext adds the surroundings of the marked function.
type CFNContext struct {
	FLNContext
	Extended Span
	// ExtendedExcerpt covers Extended and keeps the FLN markers. When
	// Truncated is set, clipped sides are replaced by TruncationMarker.
	ExtendedExcerpt []string
	Truncated       bool
}

// Tier implements HeuristicContext.
func (c *CFNContext) Tier() Tier { return TierCFN }

// Base implements HeuristicContext.
func (c *CFNContext) Base() *FNContext { return &c.FNContext }

// Lines implements HeuristicContext.
func (c *CFNContext) Lines() []string { return c.ExtendedExcerpt }

// ContextText joins the tier excerpt into the text embedded in prompts.
func ContextText(c HeuristicContext) string {
	return strings.Join(c.Lines(), "\n")
}
