// Package domain defines the report types produced by test discovery.
package domain

// TestItem represents a single collected test.
//
// Optional string fields use the empty string for "absent"; a JSON null decodes
// to the empty string as well.
type TestItem struct {
	// Event is the event type, always "TestItem" when present.
	Event string `json:"event,omitempty"`
	// NodeID is the unique, "::"-delimited identifier of the test.
	NodeID string `json:"node_id"`
	// File is the slash-delimited path of the file declaring the test.
	File string `json:"file,omitempty"`
	// Module is the name of the module declaring the test.
	Module string `json:"module,omitempty"`
	// Parent is the "::"-delimited chain of classes enclosing the test.
	Parent string `json:"parent,omitempty"`
	// Function is the name of the test function.
	Function string `json:"function,omitempty"`
	// Name is the test name, including the parametrization suffix.
	Name string `json:"name"`
	// Doc is the test docstring.
	Doc string `json:"doc"`
	// Markers contains the test markers in declaration order.
	Markers []string `json:"markers"`
	// Parameters maps parameter names to their types.
	Parameters map[string]string `json:"parameters"`
}

// HasMarker reports whether the item carries the given marker.
func (i TestItem) HasMarker(marker string) bool {
	for _, m := range i.Markers {
		if m == marker {
			return true
		}
	}
	return false
}
