package model

// Path represents a file system path.
type Path string

// ScopeKind defines the syntactic construct a scope was extracted from.
type ScopeKind string

const (
	// ScopeFunction represents a module-level function definition.
	ScopeFunction ScopeKind = "function"

	// ScopeMethod represents a function defined inside a class body.
	ScopeMethod ScopeKind = "method"

	// ScopeClass represents a class definition. Classes are never selected as
	// the enclosing function of a bug, but they bound neighbor lookups.
	ScopeClass ScopeKind = "class"
)

// Scope is a named definition found in a source file. Lines are 1-indexed and
// inclusive; decorators belong to the scope they decorate.
type Scope struct {
	Name string
	Kind ScopeKind
	Span Span
	// Parent is the index of the enclosing scope in the slice the scope came
	// from, or -1 for top-level definitions.
	Parent int
}

// IsCallable reports whether the scope is a function or method.
func (s Scope) IsCallable() bool {
	return s.Kind == ScopeFunction || s.Kind == ScopeMethod
}
