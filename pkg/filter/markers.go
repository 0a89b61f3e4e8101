package filter

import (
	"slices"

	"github.com/specvital/explorer/pkg/domain"
)

// Markers holds the marker vocabulary of a report and the marker filter
// applied to its items.
type Markers struct {
	IncludeExclude[string]
	values []string
}

// NewMarkers returns a marker filter over the given vocabulary.
func NewMarkers(values ...string) *Markers {
	m := &Markers{}
	m.Set(values)
	return m
}

// Values returns the marker vocabulary.
func (m *Markers) Values() []string {
	return slices.Clone(m.values)
}

// Set replaces the vocabulary. Included and excluded markers are kept.
func (m *Markers) Set(values []string) {
	m.values = slices.Clone(values)
}

// Match reports whether the markers of item pass the filter.
func (m *Markers) Match(item domain.TestItem) bool {
	return m.Filter(item.Markers...)
}

// Statuses returns the status of every marker of the vocabulary, in order.
func (m *Markers) Statuses() []MarkerStatus {
	out := make([]MarkerStatus, len(m.values))
	for i, v := range m.values {
		out[i] = MarkerStatus{Marker: v, Status: m.Get(v)}
	}
	return out
}

// MarkerStatus pairs a marker with its filter status.
type MarkerStatus struct {
	Marker string `json:"marker" yaml:"marker"`
	Status Status `json:"status" yaml:"status"`
}
