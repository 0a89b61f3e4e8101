// Package filter implements tri-state include/exclude filtering.
package filter

import "slices"

// Status is the state of a value in an IncludeExclude filter.
type Status string

const (
	StatusIncluded Status = "included"
	StatusExcluded Status = "excluded"
	StatusNeither  Status = "neither"
)

// IncludeExclude keeps a list of included and a list of excluded values.
// Toggling a value cycles it through neither, included and excluded.
// The zero value is an empty filter that accepts everything.
type IncludeExclude[T comparable] struct {
	Included []T
	Excluded []T
}

// Toggle advances value to its next state:
// neither -> included -> excluded -> neither.
func (f *IncludeExclude[T]) Toggle(value T) {
	inIncluded := slices.Contains(f.Included, value)
	inExcluded := slices.Contains(f.Excluded, value)

	switch {
	case !inIncluded && !inExcluded:
		f.Included = append(f.Included, value)
	case inIncluded:
		f.Included = remove(f.Included, value)
		f.Excluded = append(f.Excluded, value)
	default:
		f.Excluded = remove(f.Excluded, value)
	}
}

// Filter reports whether values pass the filter.
// Values are rejected when any of them is excluded. When some values are
// included, at least one of values must be among them.
func (f *IncludeExclude[T]) Filter(values ...T) bool {
	for _, v := range values {
		if slices.Contains(f.Excluded, v) {
			return false
		}
	}
	if len(f.Included) == 0 {
		return true
	}
	for _, v := range values {
		if slices.Contains(f.Included, v) {
			return true
		}
	}
	return false
}

// Get returns the status of value.
func (f *IncludeExclude[T]) Get(value T) Status {
	if slices.Contains(f.Included, value) {
		return StatusIncluded
	}
	if slices.Contains(f.Excluded, value) {
		return StatusExcluded
	}
	return StatusNeither
}

// Active reports whether any value is included or excluded.
func (f *IncludeExclude[T]) Active() bool {
	return len(f.Included) > 0 || len(f.Excluded) > 0
}

// Reset empties both lists.
func (f *IncludeExclude[T]) Reset() {
	f.Included = nil
	f.Excluded = nil
}

func remove[T comparable](values []T, value T) []T {
	return slices.DeleteFunc(slices.Clone(values), func(v T) bool { return v == value })
}
