package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"
)

// ErrInvalidReport is returned when a document is not a valid discovery result.
var ErrInvalidReport = errors.New("domain: invalid discovery result")

var nullableString = &jsonschema.Schema{Types: []string{"null", "string"}}

var itemSchema = &jsonschema.Schema{
	Type:     "object",
	Required: []string{"node_id", "name"},
	Properties: map[string]*jsonschema.Schema{
		"node_id":  {Type: "string"},
		"name":     {Type: "string"},
		"file":     nullableString,
		"module":   nullableString,
		"parent":   nullableString,
		"function": nullableString,
		"doc":      nullableString,
		"markers": {
			Type:  "array",
			Items: &jsonschema.Schema{Type: "string"},
		},
		"parameters": {
			Type:                 "object",
			AdditionalProperties: &jsonschema.Schema{Type: "string"},
		},
	},
}

var errorSchema = &jsonschema.Schema{
	Type: "object",
	Properties: map[string]*jsonschema.Schema{
		"when":            {Enum: []any{"config", "collect", "runtest"}},
		"filename":        {Type: "string"},
		"lineno":          {Type: "integer"},
		"exception_type":  {Type: "string"},
		"exception_value": {Type: "string"},
	},
}

var warningSchema = &jsonschema.Schema{
	Type: "object",
	Properties: map[string]*jsonschema.Schema{
		"when":     {Enum: []any{"config", "collect", "runtest"}},
		"filename": {Type: "string"},
		"lineno":   {Type: "integer"},
		"category": nullableString,
		"message":  {Type: "string"},
	},
}

// ReportSchema is the JSON schema a discovery result document must satisfy.
var ReportSchema = &jsonschema.Schema{
	Title:    "Pytest Discover Result",
	Type:     "object",
	Required: []string{"pytest_version", "plugin_version", "exit_status", "errors", "warnings", "items"},
	Properties: map[string]*jsonschema.Schema{
		"pytest_version": {Type: "string"},
		"plugin_version": {Type: "string"},
		"exit_status":    {Type: "integer"},
		"errors":         {Type: "array", Items: errorSchema},
		"warnings":       {Type: "array", Items: warningSchema},
		"items":          {Type: "array", Items: itemSchema},
	},
}

var (
	resolveOnce sync.Once
	resolved    *jsonschema.Resolved
	resolveErr  error
)

func resolvedSchema() (*jsonschema.Resolved, error) {
	resolveOnce.Do(func() {
		resolved, resolveErr = ReportSchema.Resolve(nil)
	})
	return resolved, resolveErr
}

// DecodeReport reads a discovery result from r.
// The raw document is validated against ReportSchema before it is decoded.
func DecodeReport(r io.Reader) (*DiscoveryResult, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read report: %w", err)
	}

	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidReport, err)
	}

	schema, err := resolvedSchema()
	if err != nil {
		return nil, fmt.Errorf("resolve report schema: %w", err)
	}
	if err := schema.Validate(raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidReport, err)
	}

	var result DiscoveryResult
	if err := json.NewDecoder(bytes.NewReader(data)).Decode(&result); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidReport, err)
	}
	return &result, nil
}

// ReadReport reads and decodes the discovery result stored at path.
func ReadReport(path string) (*DiscoveryResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open report: %w", err)
	}
	defer func() { _ = f.Close() }()

	result, err := DecodeReport(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return result, nil
}

// WriteReport encodes result as indented JSON.
// Nil slices and maps are written as empty arrays and objects so that the
// output always satisfies ReportSchema.
func WriteReport(w io.Writer, result *DiscoveryResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(normalize(result)); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return nil
}

func normalize(result *DiscoveryResult) *DiscoveryResult {
	if result == nil {
		return &DiscoveryResult{
			Errors:   []ErrorMessage{},
			Warnings: []WarningMessage{},
			Items:    []TestItem{},
		}
	}
	out := *result
	if out.Errors == nil {
		out.Errors = []ErrorMessage{}
	}
	if out.Warnings == nil {
		out.Warnings = []WarningMessage{}
	}
	out.Items = make([]TestItem, len(result.Items))
	for i, item := range result.Items {
		if item.Markers == nil {
			item.Markers = []string{}
		}
		if item.Parameters == nil {
			item.Parameters = map[string]string{}
		}
		out.Items[i] = item
	}
	return &out
}
