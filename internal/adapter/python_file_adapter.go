package adapter

import (
	"context"
	"fmt"
	"log/slog"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"

	m "fixbench.dev/pkg/fixbench/internal/model"
)

// PythonFileAdapter encapsulates Python-specific parsing so the context
// builder can reason about definitions without knowing the grammar.
type PythonFileAdapter interface {
	// ExtractScopes parses content and returns every function, method and
	// class definition in source order. Decorators belong to the definition.
	ExtractScopes(ctx context.Context, path m.Path, content []byte) ([]m.Scope, error)
}

// TreeSitterPythonAdapter is the tree-sitter backed PythonFileAdapter.
type TreeSitterPythonAdapter struct{}

// NewTreeSitterPythonAdapter constructs a TreeSitterPythonAdapter.
func NewTreeSitterPythonAdapter() *TreeSitterPythonAdapter {
	return &TreeSitterPythonAdapter{}
}

// ExtractScopes walks the syntax tree of a Python file. A fresh parser is
// used per call since tree-sitter parsers are not safe for concurrent use.
func (a *TreeSitterPythonAdapter) ExtractScopes(ctx context.Context, path m.Path, content []byte) ([]m.Scope, error) {
	parser := sitter.NewParser()
	defer parser.Close()

	parser.SetLanguage(python.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		slog.Error("Failed to parse python source", "path", path, "error", err)
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		slog.Debug("Python source has syntax errors, scopes may be partial", "path", path)
	}

	var scopes []m.Scope
	walkPythonScopes(root, content, -1, &scopes)

	return scopes, nil
}

func walkPythonScopes(node *sitter.Node, content []byte, parent int, scopes *[]m.Scope) {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)

		switch child.Type() {
		case "decorated_definition":
			definition := child.ChildByFieldName("definition")
			if definition == nil {
				continue
			}

			addPythonScope(child, definition, content, parent, scopes)
		case "function_definition", "class_definition":
			addPythonScope(child, child, content, parent, scopes)
		default:
			walkPythonScopes(child, content, parent, scopes)
		}
	}
}

// addPythonScope records definition with the line range of outer, which is
// the decorated_definition wrapper when decorators are present.
func addPythonScope(outer, definition *sitter.Node, content []byte, parent int, scopes *[]m.Scope) {
	kind := m.ScopeClass
	if definition.Type() == "function_definition" {
		kind = m.ScopeFunction
		if parent >= 0 && (*scopes)[parent].Kind == m.ScopeClass {
			kind = m.ScopeMethod
		}
	}

	name := ""
	if nameNode := definition.ChildByFieldName("name"); nameNode != nil {
		name = string(content[nameNode.StartByte():nameNode.EndByte()])
	}

	*scopes = append(*scopes, m.Scope{
		Name: name,
		Kind: kind,
		Span: m.Span{
			Start: int(outer.StartPoint().Row) + 1,
			End:   int(outer.EndPoint().Row) + 1,
		},
		Parent: parent,
	})

	index := len(*scopes) - 1

	if body := definition.ChildByFieldName("body"); body != nil {
		walkPythonScopes(body, content, index, scopes)
	}
}
