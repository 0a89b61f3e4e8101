package display

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/specvital/explorer/pkg/domain"
	"github.com/specvital/explorer/pkg/filter"
	"github.com/specvital/explorer/pkg/search"
	"github.com/specvital/explorer/pkg/stats"
	"github.com/specvital/explorer/pkg/tree"
)

var items = []domain.TestItem{
	{NodeID: "a/test_x.py::TestS::test_m", File: "a/test_x.py", Module: "test_x", Parent: "TestS", Name: "test_m", Markers: []string{"slow"}},
	{NodeID: "a/test_x.py::test_f", File: "a/test_x.py", Module: "test_x", Name: "test_f"},
}

func views(t *testing.T) []tree.View {
	t.Helper()
	v, err := tree.New(items...).View()
	require.NoError(t, err)
	return v
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatText, false},
		{"json", FormatJSON, false},
		{"YAML", FormatYAML, false},
		{"xml", "", true},
	}

	for _, tt := range tests {
		t.Run("should parse "+tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPrinter_Tree(t *testing.T) {
	t.Run("should indent text by depth", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, New(&buf, FormatText, true).Tree(views(t)))

		assert.Equal(t, "a/\n  test_x.py\n    TestS\n      test_m [slow]\n    test_f\n", buf.String())
	})

	t.Run("should encode json with node types", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, New(&buf, FormatJSON, true).Tree(views(t)))

		var decoded []map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
		require.Len(t, decoded, 1)
		assert.Equal(t, "directory", decoded[0]["type"])
	})

	t.Run("should encode yaml through json field names", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, New(&buf, FormatYAML, true).Tree(views(t)))

		var decoded []map[string]any
		require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))
		require.Len(t, decoded, 1)
		assert.Equal(t, "directory", decoded[0]["type"])
		assert.Equal(t, "a", decoded[0]["path"])
	})

	t.Run("should encode an empty tree as an empty list", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, New(&buf, FormatJSON, true).Tree(nil))
		assert.JSONEq(t, "[]", buf.String())
	})
}

func TestPrinter_Nodes(t *testing.T) {
	nodes, err := tree.New(items...).Match("a/*.py")
	require.NoError(t, err)
	require.Len(t, nodes, 1)

	t.Run("should print one node per line", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, New(&buf, FormatText, true).Nodes(nodes))
		assert.Equal(t, "file      a/test_x.py\n", buf.String())
	})

	t.Run("should encode nodes as JSON", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, New(&buf, FormatJSON, true).Nodes(nodes))

		var decoded []map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
		require.Len(t, decoded, 1)
		assert.Equal(t, "file", decoded[0]["type"])
		assert.Equal(t, "a", decoded[0]["parent"])
	})
}

func TestPrinter_Results(t *testing.T) {
	docs := search.SanitizeAll(items)

	t.Run("should list node ids with markers", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, New(&buf, FormatText, true).Results(Page{Offset: 20, Total: 22, Results: docs}))

		assert.Equal(t, "a/test_x.py::TestS::test_m [slow]\na/test_x.py::test_f\nshowing 21-22 of 22\n", buf.String())
	})

	t.Run("should say when nothing matches", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, New(&buf, FormatText, true).Results(Page{}))
		assert.Equal(t, "no matches\n", buf.String())
	})

	t.Run("should encode json", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, New(&buf, FormatJSON, true).Results(Page{Total: 2, Results: docs}))

		var decoded struct {
			Total   int `json:"total"`
			Results []struct {
				ID string `json:"id"`
			} `json:"results"`
		}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
		assert.Equal(t, 2, decoded.Total)
		assert.Equal(t, "a/test_x.py::test_f", decoded.Results[1].ID)
	})
}

func TestPrinter_Statistics(t *testing.T) {
	s := stats.Compute(items, &domain.DiscoveryResult{Warnings: []domain.WarningMessage{{}}})

	t.Run("should align text", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, New(&buf, FormatText, true).Statistics(&s))

		assert.Contains(t, buf.String(), "tests     2\n")
		assert.Contains(t, buf.String(), "warnings  1\n")
	})

	t.Run("should encode yaml with camel case keys", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, New(&buf, FormatYAML, true).Statistics(&s))

		assert.Contains(t, buf.String(), "totalCount: 2\n")
		assert.Contains(t, buf.String(), "totalSuites: 2\n")
	})
}

func TestPrinter_Markers(t *testing.T) {
	statuses := []filter.MarkerStatus{
		{Marker: "slow", Status: filter.StatusIncluded},
		{Marker: "db", Status: filter.StatusExcluded},
		{Marker: "fast", Status: filter.StatusNeither},
	}

	var buf bytes.Buffer
	require.NoError(t, New(&buf, FormatText, true).Markers(statuses))
	assert.Equal(t, "markers: +slow -db fast\n", buf.String())

	buf.Reset()
	require.NoError(t, New(&buf, FormatJSON, true).Markers(statuses))
	assert.JSONEq(t, `[{"marker":"slow","status":"included"},{"marker":"db","status":"excluded"},{"marker":"fast","status":"neither"}]`, buf.String())
}

func TestPrinter_Messages(t *testing.T) {
	report := &domain.DiscoveryResult{
		Errors:   []domain.ErrorMessage{{Filename: "test_a.py", Lineno: 3, ExceptionType: "SyntaxError", ExceptionValue: "invalid syntax"}},
		Warnings: []domain.WarningMessage{{Filename: "test_b.py", Lineno: 7, Category: "PytestUnknownMarkWarning", Message: "Unknown pytest.mark.x"}},
	}

	var buf bytes.Buffer
	require.NoError(t, New(&buf, FormatText, true).Messages(report))
	assert.Equal(t,
		"ERROR test_a.py:3: SyntaxError: invalid syntax\nWARNING test_b.py:7: PytestUnknownMarkWarning: Unknown pytest.mark.x\n",
		buf.String())

	assert.NoError(t, New(&buf, FormatText, true).Messages(nil))
}
