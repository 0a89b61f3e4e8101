package explorer

import (
	"log/slog"

	"github.com/specvital/explorer/pkg/search"
)

const (
	// DefaultLimit caps the number of search hits.
	DefaultLimit = 1000
	// DefaultPageSize is the number of results per page.
	DefaultPageSize = 20
	// DefaultNodeIDBoost weighs node id matches against other fields.
	DefaultNodeIDBoost = 2.0
)

// Option configures a Session.
type Option func(*options)

type options struct {
	limit      int
	pageSize   int
	logger     *slog.Logger
	engineOpts []search.EngineOption
	boost      map[string]float64
	scope      string
	prefix     bool
	fuzzy      float64
}

// WithLimit caps the number of search hits. Zero means unlimited.
func WithLimit(n int) Option {
	return func(o *options) {
		if n >= 0 {
			o.limit = n
		}
	}
}

// WithPageSize sets the number of results per page.
func WithPageSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.pageSize = n
		}
	}
}

// WithLogger sets the session logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithEngineOptions configures the search engine of the session.
func WithEngineOptions(opts ...search.EngineOption) Option {
	return func(o *options) {
		o.engineOpts = append(o.engineOpts, opts...)
	}
}

// WithBoost replaces the field boosts used for searches.
func WithBoost(boost map[string]float64) Option {
	return func(o *options) {
		o.boost = boost
	}
}

// WithScope restricts results to node ids starting with prefix.
func WithScope(prefix string) Option {
	return func(o *options) {
		o.scope = prefix
	}
}

// WithPrefixSearch lets query terms match indexed terms they are a prefix of.
func WithPrefixSearch(enabled bool) Option {
	return func(o *options) {
		o.prefix = enabled
	}
}

// WithFuzzy enables edit-distance matching. See search.Options.Fuzzy.
func WithFuzzy(fuzzy float64) Option {
	return func(o *options) {
		o.fuzzy = fuzzy
	}
}

func defaultOptions() *options {
	return &options{
		limit:    DefaultLimit,
		pageSize: DefaultPageSize,
		logger:   slog.Default(),
		boost:    map[string]float64{search.FieldNodeID: DefaultNodeIDBoost},
	}
}
