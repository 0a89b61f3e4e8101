// Package tree builds a navigable hierarchy out of flat test items.
//
// Items are decomposed into directory, file, suite, matrix and case nodes
// keyed by path. Nodes are kept in an insertion-ordered Tree and later
// materialized into nested views.
package tree

import (
	"encoding/json"

	"github.com/specvital/explorer/pkg/domain"
)

// NodeType identifies the kind of a node or view.
type NodeType string

const (
	NodeTypeDirectory NodeType = "directory"
	NodeTypeFile      NodeType = "file"
	NodeTypeSuite     NodeType = "suite"
	NodeTypeMatrix    NodeType = "matrix"
	NodeTypeCase      NodeType = "case"
)

// Node is one element of the path tree.
// It is implemented by *Directory, *File, *Suite, *Matrix and *Case.
type Node interface {
	Type() NodeType
	// Path is the unique key of the node.
	Path() string
	Name() string
	// Parent is the path of the enclosing node, empty for roots.
	Parent() string
	isNode()
}

type header struct {
	path   string
	name   string
	parent string
}

func (h header) Path() string   { return h.path }
func (h header) Name() string   { return h.name }
func (h header) Parent() string { return h.parent }
func (h header) isNode()        {}

// Directory is a path segment of a test file location.
type Directory struct{ header }

// File is a test file.
type File struct{ header }

// Suite is a test class. Suites may be nested.
type Suite struct{ header }

// Matrix groups the parametrized variants of a test function.
type Matrix struct{ header }

// Case is a single test. It always has a parent.
type Case struct {
	header
	// Properties holds the item the case was built from.
	Properties domain.TestItem
}

func (*Directory) Type() NodeType { return NodeTypeDirectory }
func (*File) Type() NodeType      { return NodeTypeFile }
func (*Suite) Type() NodeType     { return NodeTypeSuite }
func (*Matrix) Type() NodeType    { return NodeTypeMatrix }
func (*Case) Type() NodeType      { return NodeTypeCase }

// NewDirectory creates a directory node. The path is parent/name, or name
// alone when parent is empty.
func NewDirectory(name, parent string) *Directory {
	path := name
	if parent != "" {
		path = parent + "/" + name
	}
	return &Directory{header{path: path, name: name, parent: parent}}
}

// NewFile creates a file node located in the parent directory.
func NewFile(filename, parent string) *File {
	path := filename
	if parent != "" {
		path = parent + "/" + filename
	}
	return &File{header{path: path, name: filename, parent: parent}}
}

// NewSuite creates a suite node below a file or another suite.
func NewSuite(name, parent string) *Suite {
	return &Suite{header{path: parent + "::" + name, name: name, parent: parent}}
}

// NewMatrix creates a matrix node below a file or a suite.
func NewMatrix(name, parent string) *Matrix {
	return &Matrix{header{path: parent + "::" + name, name: name, parent: parent}}
}

// NewCase creates a case node below a file or a suite.
func NewCase(name, parent string, item domain.TestItem) *Case {
	return &Case{
		header:     header{path: parent + "::" + name, name: name, parent: parent},
		Properties: item,
	}
}

type nodeJSON struct {
	Type       NodeType         `json:"type"`
	Path       string           `json:"path"`
	Name       string           `json:"name"`
	Parent     string           `json:"parent,omitempty"`
	Properties *domain.TestItem `json:"properties,omitempty"`
}

func marshalNode(t NodeType, h header, props *domain.TestItem) ([]byte, error) {
	return json.Marshal(nodeJSON{
		Type:       t,
		Path:       h.path,
		Name:       h.name,
		Parent:     h.parent,
		Properties: props,
	})
}

func (d *Directory) MarshalJSON() ([]byte, error) {
	return marshalNode(NodeTypeDirectory, d.header, nil)
}

func (f *File) MarshalJSON() ([]byte, error) {
	return marshalNode(NodeTypeFile, f.header, nil)
}

func (s *Suite) MarshalJSON() ([]byte, error) {
	return marshalNode(NodeTypeSuite, s.header, nil)
}

func (m *Matrix) MarshalJSON() ([]byte, error) {
	return marshalNode(NodeTypeMatrix, m.header, nil)
}

func (c *Case) MarshalJSON() ([]byte, error) {
	return marshalNode(NodeTypeCase, c.header, &c.Properties)
}
