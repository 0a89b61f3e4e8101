package collector

import (
	"log/slog"
	"time"
)

// Options configures collector behavior.
type Options struct {
	// ExcludePatterns specifies directory names or globs to skip during
	// file discovery. These are combined with DefaultSkipPatterns and the
	// norecursedirs ini option.
	ExcludePatterns []string

	// Logger receives per-file diagnostics. Default: slog.Default().
	Logger *slog.Logger

	// MaxFileSize is the maximum file size in bytes to process.
	// Larger files are skipped.
	MaxFileSize int64

	// Patterns specifies doublestar globs, relative to the root, that test
	// files must match in addition to python_files.
	// Empty means every python_files match is collected.
	Patterns []string

	// PytestVersion is reported as the pytest version of the result.
	PytestVersion string

	// Timeout is the maximum duration for the entire collection.
	// Zero or negative values use DefaultTimeout.
	Timeout time.Duration

	// Workers specifies the number of concurrent file parsers.
	// Zero or negative values use runtime.GOMAXPROCS(0).
	Workers int
}

// Option is a functional option for configuring a Collector.
type Option func(*Options)

// WithWorkers sets the number of concurrent file parsers.
// Negative values are ignored.
func WithWorkers(n int) Option {
	return func(o *Options) {
		if n >= 0 {
			o.Workers = n
		}
	}
}

// WithTimeout sets the collection timeout.
// Negative values are ignored.
func WithTimeout(d time.Duration) Option {
	return func(o *Options) {
		if d >= 0 {
			o.Timeout = d
		}
	}
}

// WithExcludePatterns adds directory patterns to skip during file discovery.
func WithExcludePatterns(patterns []string) Option {
	return func(o *Options) {
		o.ExcludePatterns = patterns
	}
}

// WithMaxFileSize sets the maximum file size to process.
func WithMaxFileSize(size int64) Option {
	return func(o *Options) {
		if size >= 0 {
			o.MaxFileSize = size
		}
	}
}

// WithPatterns sets glob patterns to filter test files.
func WithPatterns(patterns []string) Option {
	return func(o *Options) {
		o.Patterns = patterns
	}
}

// WithLogger sets the collector logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Options) {
		if l != nil {
			o.Logger = l
		}
	}
}

// WithPytestVersion sets the pytest version written to the report.
func WithPytestVersion(v string) Option {
	return func(o *Options) {
		o.PytestVersion = v
	}
}

func applyDefaults(opts *Options) {
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = DefaultMaxFileSize
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.PytestVersion == "" {
		opts.PytestVersion = DefaultPytestVersion
	}
}
