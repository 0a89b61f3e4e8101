package tree

import (
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/specvital/explorer/pkg/domain"
)

// Tree is an insertion-ordered mapping of node paths to nodes.
//
// Adding a node whose path already exists replaces the stored node but keeps
// its original position. A Tree is not safe for concurrent use.
type Tree struct {
	order []string
	nodes map[string]Node
}

// New returns a tree containing the nodes of items.
func New(items ...domain.TestItem) *Tree {
	t := &Tree{nodes: make(map[string]Node)}
	t.Add(items...)
	return t
}

// Add decomposes each item and merges the resulting nodes into the tree.
func (t *Tree) Add(items ...domain.TestItem) {
	if t.nodes == nil {
		t.nodes = make(map[string]Node)
	}
	for _, item := range items {
		for _, n := range ParseItem(item) {
			t.put(n)
		}
	}
}

func (t *Tree) put(n Node) {
	path := n.Path()
	if _, ok := t.nodes[path]; !ok {
		t.order = append(t.order, path)
	}
	t.nodes[path] = n
}

// Len returns the number of nodes.
func (t *Tree) Len() int {
	return len(t.order)
}

// Get returns the node stored at path.
func (t *Tree) Get(path string) (Node, bool) {
	n, ok := t.nodes[path]
	return n, ok
}

// List returns the nodes in insertion order.
// When prefixes are given, only nodes whose path starts with every prefix are
// returned. The comparison is a plain string prefix, so "dir" also selects
// "dir2/...".
func (t *Tree) List(prefix ...string) []Node {
	nodes := make([]Node, 0, len(t.order))
	for _, path := range t.order {
		if hasPrefixes(path, prefix) {
			nodes = append(nodes, t.nodes[path])
		}
	}
	return nodes
}

// IDs returns the node paths in insertion order, filtered like List.
func (t *Tree) IDs(prefix ...string) []string {
	ids := make([]string, 0, len(t.order))
	for _, path := range t.order {
		if hasPrefixes(path, prefix) {
			ids = append(ids, path)
		}
	}
	return ids
}

// Includes reports whether a node exists at id and matches the prefixes.
func (t *Tree) Includes(id string, prefix ...string) bool {
	if !hasPrefixes(id, prefix) {
		return false
	}
	_, ok := t.nodes[id]
	return ok
}

// Match returns the nodes whose path matches a doublestar glob pattern,
// in insertion order.
func (t *Tree) Match(pattern string) ([]Node, error) {
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("tree: %w: %q", doublestar.ErrBadPattern, pattern)
	}
	var nodes []Node
	for _, path := range t.order {
		ok, err := doublestar.Match(pattern, path)
		if err != nil {
			return nil, fmt.Errorf("tree: match %q: %w", pattern, err)
		}
		if ok {
			nodes = append(nodes, t.nodes[path])
		}
	}
	return nodes, nil
}

// View materializes the whole tree.
func (t *Tree) View() ([]View, error) {
	return MakeView(t.List())
}

// MakeNodes builds a fresh tree out of items and returns its nodes.
func MakeNodes(items ...domain.TestItem) []Node {
	return New(items...).List()
}

func hasPrefixes(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if !strings.HasPrefix(path, p) {
			return false
		}
	}
	return true
}
