// Package display renders explorer state as text, JSON or YAML.
package display

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"gopkg.in/yaml.v3"

	"github.com/specvital/explorer/pkg/domain"
	"github.com/specvital/explorer/pkg/filter"
	"github.com/specvital/explorer/pkg/search"
	"github.com/specvital/explorer/pkg/stats"
	"github.com/specvital/explorer/pkg/tree"
)

// Format selects the output encoding.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// Formats lists the supported formats.
var Formats = []Format{FormatText, FormatJSON, FormatYAML}

// ParseFormat validates a format name. An empty name means text.
func ParseFormat(s string) (Format, error) {
	if s == "" {
		return FormatText, nil
	}
	for _, f := range Formats {
		if string(f) == strings.ToLower(s) {
			return f, nil
		}
	}
	return "", fmt.Errorf("unsupported format %q (use text, json or yaml)", s)
}

// Page is one page of search results.
type Page struct {
	Offset  int               `json:"offset"`
	Total   int               `json:"total"`
	Results []search.Document `json:"results"`
}

// Printer writes explorer state to w.
type Printer struct {
	w      io.Writer
	format Format

	dir, file, suite, matrix, marker, dim *color.Color
	included, excluded, failure, warning  *color.Color
}

// New returns a printer. Colors apply to the text format only and follow
// color.NoColor unless noColor forces them off.
func New(w io.Writer, format Format, noColor bool) *Printer {
	p := &Printer{
		w:        w,
		format:   format,
		dir:      color.New(color.FgBlue, color.Bold),
		file:     color.New(color.FgCyan),
		suite:    color.New(color.FgYellow),
		matrix:   color.New(color.FgMagenta),
		marker:   color.New(color.FgHiBlack),
		dim:      color.New(color.Faint),
		included: color.New(color.FgGreen),
		excluded: color.New(color.FgRed),
		failure:  color.New(color.FgRed, color.Bold),
		warning:  color.New(color.FgYellow),
	}
	if noColor {
		for _, c := range []*color.Color{p.dir, p.file, p.suite, p.matrix, p.marker, p.dim, p.included, p.excluded, p.failure, p.warning} {
			c.DisableColor()
		}
	}
	return p
}

// Tree prints nested views, one node per line.
func (p *Printer) Tree(views []tree.View) error {
	if p.format != FormatText {
		if views == nil {
			views = []tree.View{}
		}
		return p.encode(views, true)
	}

	return tree.Walk(views, func(v tree.View, depth int) error {
		indent := strings.Repeat("  ", depth)
		h := v.Header()

		var label string
		switch v := v.(type) {
		case *tree.DirectoryView:
			label = p.dir.Sprint(h.Name + "/")
		case *tree.FileView:
			label = p.file.Sprint(h.Name)
		case *tree.SuiteView:
			label = p.suite.Sprint(h.Name)
		case *tree.MatrixView:
			label = p.matrix.Sprint(h.Name) + p.dim.Sprintf(" (%d)", len(v.Cases))
		case *tree.CaseView:
			label = h.Name + p.markers(v.Properties.Markers)
		default:
			label = h.Name
		}
		_, err := fmt.Fprintln(p.w, indent+label)
		return err
	})
}

// Nodes prints flat tree nodes, one path per line.
func (p *Printer) Nodes(nodes []tree.Node) error {
	if p.format != FormatText {
		if nodes == nil {
			nodes = []tree.Node{}
		}
		return p.encode(nodes, true)
	}

	for _, n := range nodes {
		var c *color.Color
		switch n.Type() {
		case tree.NodeTypeDirectory:
			c = p.dir
		case tree.NodeTypeFile:
			c = p.file
		case tree.NodeTypeSuite:
			c = p.suite
		case tree.NodeTypeMatrix:
			c = p.matrix
		default:
			c = p.dim
		}
		if _, err := fmt.Fprintf(p.w, "%-9s %s\n", n.Type(), c.Sprint(n.Path())); err != nil {
			return err
		}
	}
	return nil
}

// Results prints a page of matches.
func (p *Printer) Results(page Page) error {
	if p.format != FormatText {
		if page.Results == nil {
			page.Results = []search.Document{}
		}
		return p.encode(page, true)
	}

	if page.Total == 0 {
		_, err := fmt.Fprintln(p.w, p.dim.Sprint("no matches"))
		return err
	}

	for _, doc := range page.Results {
		if _, err := fmt.Fprintln(p.w, doc.ID+p.markers(doc.Markers)); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(p.w, p.dim.Sprintf("showing %d-%d of %d", page.Offset+1, page.Offset+len(page.Results), page.Total))
	return err
}

// Statistics prints summary counts.
func (p *Printer) Statistics(s *stats.Statistics) error {
	if s == nil {
		s = &stats.Statistics{}
	}
	if p.format != FormatText {
		return p.encode(s, false)
	}

	tw := tabwriter.NewWriter(p.w, 0, 0, 2, ' ', 0)
	rows := []struct {
		label string
		value int
	}{
		{"tests", s.TotalCount},
		{"markers", s.TotalMarkersCount},
		{"files", s.TotalFiles},
		{"modules", s.TotalModules},
		{"suites", s.TotalSuites},
		{"errors", s.TotalErrors},
		{"warnings", s.TotalWarnings},
	}
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%d\n", r.label, r.value)
	}
	return tw.Flush()
}

// Markers prints the marker filter, "+" for included and "-" for excluded.
func (p *Printer) Markers(statuses []filter.MarkerStatus) error {
	if p.format != FormatText {
		if statuses == nil {
			statuses = []filter.MarkerStatus{}
		}
		return p.encode(statuses, false)
	}

	parts := make([]string, len(statuses))
	for i, s := range statuses {
		switch s.Status {
		case filter.StatusIncluded:
			parts[i] = p.included.Sprint("+" + s.Marker)
		case filter.StatusExcluded:
			parts[i] = p.excluded.Sprint("-" + s.Marker)
		default:
			parts[i] = s.Marker
		}
	}
	_, err := fmt.Fprintln(p.w, "markers: "+strings.Join(parts, " "))
	return err
}

// Messages prints the errors and warnings of a report.
func (p *Printer) Messages(report *domain.DiscoveryResult) error {
	if report == nil {
		return nil
	}
	if p.format != FormatText {
		return p.encode(struct {
			Errors   []domain.ErrorMessage   `json:"errors" yaml:"errors"`
			Warnings []domain.WarningMessage `json:"warnings" yaml:"warnings"`
		}{report.Errors, report.Warnings}, true)
	}

	for _, e := range report.Errors {
		if _, err := fmt.Fprintf(p.w, "%s %s:%d: %s: %s\n", p.failure.Sprint("ERROR"), e.Filename, e.Lineno, e.ExceptionType, e.ExceptionValue); err != nil {
			return err
		}
	}
	for _, w := range report.Warnings {
		if _, err := fmt.Fprintf(p.w, "%s %s:%d: %s: %s\n", p.warning.Sprint("WARNING"), w.Filename, w.Lineno, w.Category, w.Message); err != nil {
			return err
		}
	}
	return nil
}

func (p *Printer) markers(markers []string) string {
	if len(markers) == 0 {
		return ""
	}
	return " " + p.marker.Sprint("["+strings.Join(markers, ", ")+"]")
}

// encode writes v as JSON or YAML. viaJSON converts v through its JSON form
// first so that YAML output uses the JSON field names and custom marshalers.
func (p *Printer) encode(v any, viaJSON bool) error {
	switch p.format {
	case FormatJSON:
		enc := json.NewEncoder(p.w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)

	case FormatYAML:
		if viaJSON {
			data, err := json.Marshal(v)
			if err != nil {
				return fmt.Errorf("failed to encode YAML: %w", err)
			}
			var generic any
			if err := json.Unmarshal(data, &generic); err != nil {
				return fmt.Errorf("failed to encode YAML: %w", err)
			}
			v = generic
		}
		enc := yaml.NewEncoder(p.w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("failed to encode YAML: %w", err)
		}
		return enc.Close()

	default:
		return fmt.Errorf("unsupported format: %s", p.format)
	}
}
