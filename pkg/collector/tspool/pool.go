// Package tspool provides tree-sitter Python parsers for concurrent parsing.
//
// Parsers are not pooled: a parser whose ParseCtx was cancelled keeps its
// cancellation flag set and fails every later parse with "operation limit
// was hit". Fresh parsers avoid this.
//
// Thread-safety: parsers returned by Get are NOT safe for concurrent use.
// Each goroutine must Get its own parser or use Parse.
package tspool

import (
	"context"
	"fmt"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

// MaxTreeDepth is the maximum recursion depth when walking AST trees.
const MaxTreeDepth = 1000

var (
	pyLang   *sitter.Language
	langOnce sync.Once
)

// Language returns the tree-sitter Python grammar.
func Language() *sitter.Language {
	langOnce.Do(func() {
		pyLang = python.GetLanguage()
	})
	return pyLang
}

// Get returns a Python parser.
// Caller MUST call parser.Close() when done to free resources.
func Get() *sitter.Parser {
	parser := sitter.NewParser()
	parser.SetLanguage(Language())
	return parser
}

// Parse parses source using a fresh parser.
// Caller MUST call tree.Close() to free resources.
func Parse(ctx context.Context, source []byte) (*sitter.Tree, error) {
	parser := Get()
	defer parser.Close()

	tree, err := parser.ParseCtx(ctx, nil, source)
	if err != nil {
		return nil, fmt.Errorf("parse python failed: %w", err)
	}

	return tree, nil
}
