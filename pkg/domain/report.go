package domain

import (
	"sort"
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// DiscoveryResult is the report produced by a discovery run.
type DiscoveryResult struct {
	// PytestVersion is the version of pytest that generated the report.
	PytestVersion string `json:"pytest_version"`
	// PluginVersion is the version of the plugin that generated the report.
	PluginVersion string `json:"plugin_version"`
	// ExitStatus is the exit status of the discovery run.
	ExitStatus int `json:"exit_status"`
	// Errors contains errors emitted during discovery.
	Errors []ErrorMessage `json:"errors"`
	// Warnings contains warnings emitted during discovery.
	Warnings []WarningMessage `json:"warnings"`
	// Items contains the collected items.
	Items []TestItem `json:"items"`
}

// CountItems returns the number of collected items.
func (r *DiscoveryResult) CountItems() int {
	if r == nil {
		return 0
	}
	return len(r.Items)
}

// Markers returns every marker used by the report, deduplicated, in first-seen order.
func (r *DiscoveryResult) Markers() []string {
	if r == nil {
		return nil
	}
	seen := make(map[string]struct{})
	var markers []string
	for _, item := range r.Items {
		for _, m := range item.Markers {
			if _, ok := seen[m]; ok {
				continue
			}
			seen[m] = struct{}{}
			markers = append(markers, m)
		}
	}
	return markers
}

// Fingerprint identifies a report version.
// Reports with the same items and the same error and warning counts share a
// fingerprint.
func (r *DiscoveryResult) Fingerprint() uint64 {
	if r == nil {
		return 0
	}
	d := xxhash.New()
	for _, item := range r.Items {
		for _, v := range []string{item.NodeID, item.File, item.Module, item.Parent, item.Function, item.Name, item.Doc} {
			_, _ = d.WriteString(v)
			_, _ = d.WriteString("\x00")
		}
		for _, m := range item.Markers {
			_, _ = d.WriteString(m)
			_, _ = d.WriteString("\x01")
		}
		keys := make([]string, 0, len(item.Parameters))
		for k := range item.Parameters {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			_, _ = d.WriteString(k + "=" + item.Parameters[k])
			_, _ = d.WriteString("\x01")
		}
		_, _ = d.WriteString("\x02")
	}
	_, _ = d.WriteString(strconv.Itoa(len(r.Errors)) + ":" + strconv.Itoa(len(r.Warnings)))
	return d.Sum64()
}
