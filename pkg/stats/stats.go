// Package stats computes summary counts over test items.
package stats

import "github.com/specvital/explorer/pkg/domain"

// Statistics summarizes a set of items.
type Statistics struct {
	TotalCount        int `json:"totalCount" yaml:"totalCount"`
	TotalMarkersCount int `json:"totalMarkersCount" yaml:"totalMarkersCount"`
	TotalFiles        int `json:"totalFiles" yaml:"totalFiles"`
	TotalModules      int `json:"totalModules" yaml:"totalModules"`
	TotalSuites       int `json:"totalSuites" yaml:"totalSuites"`
	TotalErrors       int `json:"totalErrors" yaml:"totalErrors"`
	TotalWarnings     int `json:"totalWarnings" yaml:"totalWarnings"`
}

// Compute counts items and their distinct markers, files, modules and suites.
// Error and warning counts come from report, which may be nil.
//
// The suite of an item is its parent, else its module, else its file, else
// its name.
func Compute(items []domain.TestItem, report *domain.DiscoveryResult) Statistics {
	markers := make(map[string]struct{})
	files := make(map[string]struct{})
	modules := make(map[string]struct{})
	suites := make(map[string]struct{})

	for _, item := range items {
		for _, m := range item.Markers {
			if m != "" {
				markers[m] = struct{}{}
			}
		}
		if item.File != "" {
			files[item.File] = struct{}{}
		}
		if item.Module != "" {
			modules[item.Module] = struct{}{}
		}
		suites[suiteKey(item)] = struct{}{}
	}

	s := Statistics{
		TotalCount:        len(items),
		TotalMarkersCount: len(markers),
		TotalFiles:        len(files),
		TotalModules:      len(modules),
		TotalSuites:       len(suites),
	}
	if report != nil {
		s.TotalErrors = len(report.Errors)
		s.TotalWarnings = len(report.Warnings)
	}
	return s
}

// ComputeReport computes statistics over every item of report.
func ComputeReport(report *domain.DiscoveryResult) Statistics {
	if report == nil {
		return Statistics{}
	}
	return Compute(report.Items, report)
}

func suiteKey(item domain.TestItem) string {
	for _, k := range []string{item.Parent, item.Module, item.File} {
		if k != "" {
			return k
		}
	}
	return item.Name
}
