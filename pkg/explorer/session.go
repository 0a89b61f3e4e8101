// Package explorer ties a discovery report to its search index, marker
// filter, statistics and paginated results.
package explorer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/specvital/explorer/pkg/domain"
	"github.com/specvital/explorer/pkg/filter"
	"github.com/specvital/explorer/pkg/repository"
	"github.com/specvital/explorer/pkg/search"
	"github.com/specvital/explorer/pkg/stats"
	"github.com/specvital/explorer/pkg/tree"
)

var closedChan = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

// Session holds the explorer state for one report.
//
// Three triggers drive it: SetReport, SetTerms and ToggleMarker (SetScope
// acts like a marker change). Each recomputes the matches synchronously.
// Index population runs in the background; a search issued before it
// completes sees a partially populated index.
//
// A Session is not safe for concurrent use, except for IndexReady.
type Session struct {
	repo   repository.Repository
	engine *search.Engine
	opts   *options
	log    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	report      *domain.DiscoveryResult
	fingerprint uint64
	items       []search.Document
	markers     *filter.Markers
	terms       string
	scope       string
	matches     []search.Document
	statistics  *stats.Statistics
	offset      int

	population *search.Population
	workers    sync.WaitGroup

	readyMu sync.Mutex
	ready   chan struct{}
}

// NewSession creates a session and loads the report stored in repo.
func NewSession(repo repository.Repository, opts ...Option) (*Session, error) {
	const op = "explorer.NewSession"

	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		repo:    repo,
		engine:  search.NewEngine(o.engineOpts...),
		opts:    o,
		log:     o.logger,
		ctx:     ctx,
		cancel:  cancel,
		markers: filter.NewMarkers(),
		scope:   o.scope,
		ready:   closedChan,
	}

	report, err := repo.Load()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if report != nil {
		s.load(report)
	}
	return s, nil
}

// SetReport replaces the active report and persists it.
// A nil report clears the repository and the session state. A new report
// resets the marker filter; a report with the same fingerprint as the active
// one is stored without re-indexing and keeps it.
func (s *Session) SetReport(report *domain.DiscoveryResult) error {
	if report == nil {
		if err := s.repo.Clear(); err != nil {
			return fmt.Errorf("explorer: clear report: %w", err)
		}
		s.report = nil
		s.fingerprint = 0
		s.Reset()
		return nil
	}

	if err := s.repo.Save(report); err != nil {
		return fmt.Errorf("explorer: save report: %w", err)
	}

	if s.report != nil && report.Fingerprint() == s.fingerprint {
		s.report = report
		s.log.Debug("report unchanged, keeping search index",
			slog.Uint64("fingerprint", s.fingerprint))
		s.refresh()
		return nil
	}
	s.load(report)
	return nil
}

func (s *Session) load(report *domain.DiscoveryResult) {
	s.report = report
	s.fingerprint = report.Fingerprint()
	s.items = search.SanitizeAll(report.Items)
	s.markers.Set(report.Markers())
	s.markers.Reset()

	s.stopPopulation()
	s.engine.RemoveAll()
	s.populate(s.items)

	s.log.Info("report loaded",
		slog.Int("items", len(s.items)),
		slog.Int("markers", len(s.markers.Values())),
		slog.Int("errors", len(report.Errors)),
		slog.Int("warnings", len(report.Warnings)))

	s.offset = 0
	s.refresh()
}

func (s *Session) populate(docs []search.Document) {
	const op = "explorer.Session.populate"
	log := s.log.With(slog.String("op", op))

	p := s.engine.AddAllAsync(s.ctx, docs)
	s.population = p
	ready := make(chan struct{})

	s.readyMu.Lock()
	s.ready = ready
	s.readyMu.Unlock()

	s.workers.Add(1)
	go func() {
		defer s.workers.Done()
		defer close(ready)
		<-p.Done()

		err := p.Err()
		switch {
		case err == nil:
			log.Debug("search index populated", slog.Int("documents", p.Added()))
		case errors.Is(err, context.Canceled):
			log.Debug("search index population cancelled")
		default:
			log.Error("failed to add items to search engine", slog.String("error", err.Error()))
		}
	}()
}

// stopPopulation cancels the population in progress and waits for it, so
// that none of its batches land in the index after it is emptied.
func (s *Session) stopPopulation() {
	if s.population == nil {
		return
	}
	s.population.Cancel()
	<-s.population.Done()
	s.population = nil
}

// IndexReady returns a channel closed once the latest index population has
// finished. It is safe for concurrent use.
func (s *Session) IndexReady() <-chan struct{} {
	s.readyMu.Lock()
	defer s.readyMu.Unlock()
	return s.ready
}

// SetTerms sets the search query and moves back to the first page.
func (s *Session) SetTerms(terms string) {
	s.terms = terms
	s.offset = 0
	s.refresh()
}

// ToggleMarker cycles the filter status of marker and moves back to the
// first page.
func (s *Session) ToggleMarker(marker string) {
	s.markers.Toggle(marker)
	s.offset = 0
	s.refresh()
}

// SetScope restricts matches to node ids starting with prefix. An empty
// prefix removes the restriction.
func (s *Session) SetScope(prefix string) {
	s.scope = prefix
	s.offset = 0
	s.refresh()
}

// refresh recomputes the matches and their statistics.
func (s *Session) refresh() {
	if s.report == nil {
		s.matches = nil
		s.statistics = nil
		return
	}

	if strings.TrimSpace(s.terms) == "" {
		matches := make([]search.Document, 0, len(s.items))
		for _, doc := range s.items {
			if s.accept(doc.TestItem) {
				matches = append(matches, doc)
			}
		}
		s.matches = matches
	} else {
		results := s.engine.Search(s.terms, search.Options{
			Boost:  s.opts.boost,
			Filter: func(r search.Result) bool { return s.accept(r.TestItem) },
			Limit:  s.opts.limit,
			Prefix: s.opts.prefix,
			Fuzzy:  s.opts.fuzzy,
		})
		s.matches = make([]search.Document, len(results))
		for i, r := range results {
			s.matches[i] = r.Document
		}
	}

	items := make([]domain.TestItem, len(s.matches))
	for i, doc := range s.matches {
		items[i] = doc.TestItem
	}
	st := stats.Compute(items, s.report)
	s.statistics = &st
	s.setOffset(s.offset)
}

func (s *Session) accept(item domain.TestItem) bool {
	if s.scope != "" && !strings.HasPrefix(item.NodeID, s.scope) {
		return false
	}
	return s.markers.Match(item)
}

// NextPage advances by one page without going past the last page.
func (s *Session) NextPage() {
	s.setOffset(s.offset + s.opts.pageSize)
}

// PrevPage goes back by one page without going below zero.
func (s *Session) PrevPage() {
	s.setOffset(s.offset - s.opts.pageSize)
}

// SetPage moves to the zero-based page n, clamped like NextPage and PrevPage.
func (s *Session) SetPage(n int) {
	s.setOffset(n * s.opts.pageSize)
}

func (s *Session) setOffset(offset int) {
	last := max(0, len(s.matches)-s.opts.pageSize)
	s.offset = min(max(offset, 0), last)
}

// Offset returns the index of the first result of the current page.
func (s *Session) Offset() int {
	return s.offset
}

// PageSize returns the number of results per page.
func (s *Session) PageSize() int {
	return s.opts.pageSize
}

// Results returns the current page of matches.
func (s *Session) Results() []search.Document {
	end := min(s.offset+s.opts.pageSize, len(s.matches))
	return s.matches[s.offset:end]
}

// Matches returns every match of the current query and filters.
func (s *Session) Matches() []search.Document {
	return s.matches
}

// Report returns the active report, nil when none is loaded.
func (s *Session) Report() *domain.DiscoveryResult {
	return s.report
}

// Fingerprint identifies the active report version, zero without a report.
func (s *Session) Fingerprint() uint64 {
	return s.fingerprint
}

// Terms returns the current search query.
func (s *Session) Terms() string {
	return s.terms
}

// Scope returns the node id prefix restricting matches.
func (s *Session) Scope() string {
	return s.scope
}

// Statistics returns the statistics of the matches, nil without a report.
func (s *Session) Statistics() *stats.Statistics {
	return s.statistics
}

// Markers returns the marker vocabulary and filter.
// Toggle markers through ToggleMarker so that matches are recomputed.
func (s *Session) Markers() *filter.Markers {
	return s.markers
}

// MarkerStatus returns the filter status of marker.
func (s *Session) MarkerStatus(marker string) filter.Status {
	return s.markers.Get(marker)
}

// Tree materializes the matches into nested views.
func (s *Session) Tree() ([]tree.View, error) {
	items := make([]domain.TestItem, len(s.matches))
	for i, doc := range s.matches {
		items[i] = doc.TestItem
	}
	return tree.New(items...).View()
}

// Reset drops the items, the marker vocabulary and filter, the matches and
// the search index. The active report and the repository are left untouched.
func (s *Session) Reset() {
	s.items = nil
	s.markers.Set(nil)
	s.markers.Reset()
	s.matches = nil
	s.offset = 0
	s.stopPopulation()
	s.engine.RemoveAll()
	if s.report == nil {
		s.statistics = nil
		return
	}
	st := stats.Compute(nil, s.report)
	s.statistics = &st
}

// Close stops any index population in progress and waits for every
// population goroutine the session started.
func (s *Session) Close() {
	s.cancel()
	s.workers.Wait()
}
