package tree

import (
	"regexp"
	"strings"

	"github.com/specvital/explorer/pkg/domain"
)

// matrixPattern captures the function name and the parametrization suffix of
// a node id such as "dir/test.py::test_x[1-2]".
var matrixPattern = regexp.MustCompile(`(\w*)(\[.*\])`)

// NormalizePath converts backslashes to slashes and collapses doubled slashes.
func NormalizePath(path string) string {
	path = strings.ReplaceAll(path, `\`, "/")
	return strings.ReplaceAll(path, "//", "/")
}

// ParseItem decomposes an item into its ancestor nodes followed by its case,
// from the outermost directory down to the case.
// Items without a file, or whose file path ends with a slash, yield nil.
func ParseItem(item domain.TestItem) []Node {
	if item.File == "" {
		return nil
	}

	parts := strings.Split(NormalizePath(item.File), "/")
	filename := parts[len(parts)-1]
	if filename == "" {
		return nil
	}

	var nodes []Node
	parent := ""
	for _, name := range parts[:len(parts)-1] {
		// leading slash of an absolute path
		if name == "" && parent == "" {
			continue
		}
		dir := NewDirectory(name, parent)
		nodes = append(nodes, dir)
		parent = dir.Path()
	}

	file := NewFile(filename, parent)
	nodes = append(nodes, file)
	parent = file.Path()

	segments := strings.Split(item.NodeID, "::")
	if len(segments) > 2 {
		for _, name := range segments[1 : len(segments)-1] {
			suite := NewSuite(name, parent)
			nodes = append(nodes, suite)
			parent = suite.Path()
		}
	}

	if m := matrixPattern.FindStringSubmatch(item.NodeID); m != nil {
		nodes = append(nodes, NewMatrix(m[1], parent))
	}

	// The case stays attached to the suite or file, not to the matrix.
	nodes = append(nodes, NewCase(item.Name, parent, item))
	return nodes
}
