package tree

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/specvital/explorer/pkg/domain"
)

func TestMakeView(t *testing.T) {
	t.Run("should return an empty view for no nodes", func(t *testing.T) {
		views, err := MakeView(nil)
		require.NoError(t, err)
		assert.Empty(t, views)
	})

	t.Run("should nest a single item", func(t *testing.T) {
		views, err := MakeView(MakeNodes(item1))
		require.NoError(t, err)

		require.Len(t, views, 1)
		root, ok := views[0].(*DirectoryView)
		require.True(t, ok)
		assert.Equal(t, "parent", root.Path)
		require.Len(t, root.Files, 1)

		file := root.Files[0]
		assert.Equal(t, "parent/test.py", file.Path)
		assert.Empty(t, file.Suites)
		assert.Empty(t, file.Matrices)
		require.Len(t, file.Cases, 1)
		assert.Equal(t, "parent/test.py::test_something", file.Cases[0].Path())
	})

	t.Run("should open one root per unrelated directory", func(t *testing.T) {
		views, err := MakeView(MakeNodes(
			item1,
			item("another_parent/test.py::test_x", "another_parent/test.py", "", "test_x"),
			item("yet_another_parent/test.py::test_y", "yet_another_parent/test.py", "", "test_y"),
		))
		require.NoError(t, err)

		require.Len(t, views, 3)
		assert.Equal(t, "parent", views[0].Header().Path)
		assert.Equal(t, "another_parent", views[1].Header().Path)
		assert.Equal(t, "yet_another_parent", views[2].Header().Path)
	})

	t.Run("should attach sibling directories to the root view", func(t *testing.T) {
		views, err := MakeView(MakeNodes(
			item("parent/child/test.py::test_a", "parent/child/test.py", "", "test_a"),
			item("parent/other/test.py::test_b", "parent/other/test.py", "", "test_b"),
		))
		require.NoError(t, err)

		require.Len(t, views, 1)
		root := views[0].(*DirectoryView)
		require.Len(t, root.Directories, 2)
		assert.Equal(t, "parent/child", root.Directories[0].Path)
		assert.Equal(t, "parent/other", root.Directories[1].Path)
		assert.Len(t, root.Directories[1].Files, 1)
	})

	t.Run("should use loose prefixes for directory placement", func(t *testing.T) {
		views, err := MakeView(MakeNodes(
			item1,
			item("parent2/test.py::test_y", "parent2/test.py", "", "test_y"),
		))
		require.NoError(t, err)

		require.Len(t, views, 1)
		root := views[0].(*DirectoryView)
		require.Len(t, root.Directories, 1)
		assert.Equal(t, "parent2", root.Directories[0].Path)
	})

	t.Run("should attach every suite to the current file", func(t *testing.T) {
		views, err := MakeView(MakeNodes(
			item("parent/test.py::suite1::test_another", "parent/test.py", "suite1", "test_another"),
			item("parent/test.py::suite2::suite3::test_yet_another", "parent/test.py", "suite2::suite3", "test_yet_another"),
		))
		require.NoError(t, err)

		file := views[0].(*DirectoryView).Files[0]
		require.Len(t, file.Suites, 3)
		assert.Equal(t, "parent/test.py::suite2::suite3", file.Suites[2].Path)
		require.Len(t, file.Suites[2].Cases, 1)
		assert.Equal(t, "test_yet_another", file.Suites[2].Cases[0].Name())
	})

	t.Run("should attach matrices to the file and cases to the matrix", func(t *testing.T) {
		views, err := MakeView(MakeNodes(
			item("parent/test.py::suite1::test_another[a-b]", "parent/test.py", "suite1", "test_another[a-b]"),
			item("parent/test.py::suite1::test_another[c-d]", "parent/test.py", "suite1", "test_another[c-d]"),
		))
		require.NoError(t, err)

		file := views[0].(*DirectoryView).Files[0]
		require.Len(t, file.Suites, 1)
		assert.Empty(t, file.Suites[0].Cases)
		require.Len(t, file.Matrices, 1)
		assert.Equal(t, "parent/test.py::suite1::test_another", file.Matrices[0].Path)
		assert.Len(t, file.Matrices[0].Cases, 2)
	})

	t.Run("should return a case view when the first node is a case", func(t *testing.T) {
		c := NewCase("test_x", "parent/test.py", item1)

		views, err := MakeView([]Node{c, NewDirectory("ignored", "")})
		require.NoError(t, err)

		require.Len(t, views, 1)
		assert.Equal(t, NewCaseView(c), views[0])
	})

	t.Run("should start from a file root", func(t *testing.T) {
		views, err := MakeView(MakeNodes(item("test.py::test_x", "test.py", "", "test_x")))
		require.NoError(t, err)

		require.Len(t, views, 1)
		file := views[0].(*FileView)
		assert.Len(t, file.Cases, 1)
	})

	t.Run("should keep root-level files out of directories", func(t *testing.T) {
		dirFirst := []domain.TestItem{
			item("a_dir/test_b.py::test_b", "a_dir/test_b.py", "", "test_b"),
			item("test_root.py::test_r", "test_root.py", "", "test_r"),
		}
		rootFirst := []domain.TestItem{dirFirst[1], dirFirst[0]}

		for _, items := range [][]domain.TestItem{dirFirst, rootFirst} {
			views, err := MakeView(MakeNodes(items...))
			require.NoError(t, err)
			require.Len(t, views, 2)

			byPath := make(map[string]View, len(views))
			for _, v := range views {
				byPath[v.Header().Path] = v
			}
			dir, ok := byPath["a_dir"].(*DirectoryView)
			require.True(t, ok)
			require.Len(t, dir.Files, 1)
			assert.Equal(t, "a_dir/test_b.py", dir.Files[0].Path)

			file, ok := byPath["test_root.py"].(*FileView)
			require.True(t, ok)
			require.Len(t, file.Cases, 1)
			assert.Equal(t, "test_r", file.Cases[0].Name())
		}
	})

	t.Run("should return to a directory after a root-level file", func(t *testing.T) {
		views, err := MakeView(MakeNodes(
			item("a/b/test_x.py::test_x", "a/b/test_x.py", "", "test_x"),
			item("test_root.py::test_r", "test_root.py", "", "test_r"),
			item("a/c/test_y.py::test_y", "a/c/test_y.py", "", "test_y"),
			item("a/test_z.py::test_z", "a/test_z.py", "", "test_z"),
		))
		require.NoError(t, err)

		require.Len(t, views, 2)
		root := views[0].(*DirectoryView)
		require.Len(t, root.Directories, 2)
		assert.Equal(t, "a/c", root.Directories[1].Path)
		assert.Len(t, root.Directories[1].Files, 1)
		require.Len(t, root.Files, 1)
		assert.Equal(t, "a/test_z.py", root.Files[0].Path)
		assert.Len(t, root.Directories[0].Files, 1)
	})

	t.Run("should not modify its input", func(t *testing.T) {
		nodes := MakeNodes(item1)
		snapshot := append([]Node(nil), nodes...)

		_, err := MakeView(nodes)
		require.NoError(t, err)
		assert.Equal(t, snapshot, nodes)
	})

	t.Run("should be repeatable", func(t *testing.T) {
		nodes := MakeNodes(item1)

		first, err := MakeView(nodes)
		require.NoError(t, err)
		second, err := MakeView(nodes)
		require.NoError(t, err)
		assert.Equal(t, first, second)
	})
}

func TestMakeView_Errors(t *testing.T) {
	tests := []struct {
		name  string
		nodes []Node
		want  error
	}{
		{
			name:  "should reject a directory without parent",
			nodes: []Node{NewFile("a.py", ""), NewDirectory("dir", "outside")},
			want:  ErrDirectoryWithoutParent,
		},
		{
			name:  "should reject a file without directory",
			nodes: []Node{NewSuite("S", "a.py"), NewFile("b.py", "dir")},
			want:  ErrFileWithoutDirectory,
		},
		{
			name:  "should reject a suite without file",
			nodes: []Node{NewDirectory("dir", ""), NewSuite("S", "dir/a.py")},
			want:  ErrSuiteWithoutFile,
		},
		{
			name:  "should reject a matrix without file",
			nodes: []Node{NewDirectory("dir", ""), NewMatrix("test_x", "dir/a.py")},
			want:  ErrMatrixWithoutFile,
		},
		{
			name:  "should reject a case without container",
			nodes: []Node{NewDirectory("dir", ""), NewCase("test_x", "dir/a.py", item1)},
			want:  ErrCaseWithoutContainer,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := MakeView(tt.nodes)

			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want))

			var viewErr *ViewError
			require.True(t, errors.As(err, &viewErr))
			assert.Equal(t, tt.nodes[1], viewErr.Node)
		})
	}
}

func TestView_MarshalJSON(t *testing.T) {
	views, err := MakeView(MakeNodes(item1))
	require.NoError(t, err)

	data, err := json.Marshal(views)
	require.NoError(t, err)

	var decoded []map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Len(t, decoded, 1)
	assert.Equal(t, "directory", decoded[0]["type"])
	assert.Equal(t, "parent", decoded[0]["path"])
	assert.Equal(t, []any{}, decoded[0]["directories"])

	file := decoded[0]["files"].([]any)[0].(map[string]any)
	assert.Equal(t, "file", file["type"])
	c := file["cases"].([]any)[0].(map[string]any)
	assert.Equal(t, "case", c["type"])
	assert.Equal(t, "parent/test.py", c["parent"])
	assert.Equal(t, "parent/test.py::test_something", c["properties"].(map[string]any)["node_id"])
}

func TestWalk(t *testing.T) {
	views, err := MakeView(MakeNodes(
		item("parent/test.py::test_b[1]", "parent/test.py", "", "test_b[1]"),
		item("parent/child/test.py::Suite::test_a", "parent/child/test.py", "Suite", "test_a"),
	))
	require.NoError(t, err)

	var visited []string
	err = Walk(views, func(v View, depth int) error {
		visited = append(visited, strings.Repeat(" ", depth)+string(v.Type())+":"+v.Header().Name)
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"directory:parent",
		" directory:child",
		"  file:test.py",
		"   suite:Suite",
		"    case:test_a",
		" file:test.py",
		"  matrix:test_b",
		"   case:test_b[1]",
	}, visited)

	stop := errors.New("stop")
	count := 0
	err = Walk(views, func(View, int) error {
		count++
		return stop
	})
	assert.Equal(t, stop, err)
	assert.Equal(t, 1, count)
}
