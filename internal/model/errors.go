package model

import (
	"context"
	"errors"
)

// Location errors: fatal for the bug in every experiment.
var (
	ErrBugNotFound       = errors.New("bug not found")
	ErrSourceUnavailable = errors.New("source unavailable")
	ErrInvalidSpan       = errors.New("invalid span")
)

// Construction errors: fatal for the bug in one experiment.
var (
	ErrContextTooLarge      = errors.New("context too large")
	ErrTemplateMissingField = errors.New("template missing field")
)

// ErrGenerationFailed marks a model invocation that failed after retries.
var ErrGenerationFailed = errors.New("generation failed")

// ErrorKind classifies pipeline errors for reporting.
type ErrorKind string

// Known error kinds.
const (
	KindBugNotFound          ErrorKind = "bug_not_found"
	KindSourceUnavailable    ErrorKind = "source_unavailable"
	KindInvalidSpan          ErrorKind = "invalid_span"
	KindContextTooLarge      ErrorKind = "context_too_large"
	KindTemplateMissingField ErrorKind = "template_missing_field"
	KindGenerationFailed     ErrorKind = "generation_failed"
	KindCancelled            ErrorKind = "cancelled"
	KindInternal             ErrorKind = "internal"
)

// KindOf maps an error onto its kind.
func KindOf(err error) ErrorKind {
	switch {
	case errors.Is(err, ErrBugNotFound):
		return KindBugNotFound
	case errors.Is(err, ErrSourceUnavailable):
		return KindSourceUnavailable
	case errors.Is(err, ErrInvalidSpan):
		return KindInvalidSpan
	case errors.Is(err, ErrContextTooLarge):
		return KindContextTooLarge
	case errors.Is(err, ErrTemplateMissingField):
		return KindTemplateMissingField
	case errors.Is(err, ErrGenerationFailed):
		return KindGenerationFailed
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCancelled
	default:
		return KindInternal
	}
}

// IsLocationError reports whether err prevents the bug from being located.
func IsLocationError(err error) bool {
	return errors.Is(err, ErrBugNotFound) ||
		errors.Is(err, ErrSourceUnavailable) ||
		errors.Is(err, ErrInvalidSpan)
}
