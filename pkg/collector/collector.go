// Package collector statically collects pytest tests from Python sources
// into a discovery report.
package collector

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/specvital/explorer/pkg/domain"
)

const (
	// DefaultTimeout is the default collection timeout.
	DefaultTimeout = 5 * time.Minute
	// MaxWorkers is the maximum number of concurrent workers allowed.
	MaxWorkers = 1024
	// DefaultMaxFileSize is the default maximum file size (10MB).
	DefaultMaxFileSize = 10 * 1024 * 1024
	// DefaultPytestVersion is reported when no pytest version is configured.
	DefaultPytestVersion = "unknown"
	// Version is reported as the plugin version of collected reports.
	Version = "0.1.0"
)

// Pytest exit codes written to the report.
const (
	ExitOK          = 0
	ExitInterrupted = 2
	ExitNoTests     = 5
)

// DefaultSkipPatterns contains directory names that are never collected.
var DefaultSkipPatterns = []string{
	".git",
	".tox",
	".venv",
	"__pycache__",
	"build",
	"dist",
	"node_modules",
	"venv",
}

var (
	// ErrCollectCancelled is returned when collection is cancelled via context.
	ErrCollectCancelled = errors.New("collector: collect cancelled")
	// ErrCollectTimeout is returned when collection exceeds the timeout.
	ErrCollectTimeout = errors.New("collector: collect timeout")
)

// Collector discovers pytest test modules and collects their tests.
type Collector struct {
	options *Options
}

// Result contains the outcome of a collection.
type Result struct {
	// Report is the discovery result, always non-nil.
	Report *domain.DiscoveryResult

	// Errors contains non-fatal errors encountered while collecting.
	// File level failures also appear in Report.Errors.
	Errors []CollectError

	Stats Stats
}

// Stats provides statistics about a collection.
type Stats struct {
	// FilesScanned is the number of test modules discovered.
	FilesScanned int

	// FilesParsed is the number of test modules parsed without error.
	FilesParsed int

	// FilesFailed is the number of test modules that could not be collected.
	FilesFailed int

	Duration time.Duration
}

// CollectError represents an error that occurred during a collection phase.
type CollectError struct {
	Err error

	// Path is the slash separated file path, empty for non-file errors.
	Path string

	// Phase is one of "config", "discovery", "read", "parse".
	Phase string
}

// Error implements the error interface.
func (e CollectError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("[%s] %v", e.Phase, e.Err)
	}
	return fmt.Sprintf("[%s] %s: %v", e.Phase, e.Path, e.Err)
}

// Unwrap returns the underlying error.
func (e CollectError) Unwrap() error {
	return e.Err
}

// New creates a collector with the given options.
func New(opts ...Option) *Collector {
	options := &Options{}
	for _, opt := range opts {
		opt(options)
	}
	applyDefaults(options)
	return &Collector{options: options}
}

// Collect is a shorthand for New(opts...).Collect(ctx, root).
func Collect(ctx context.Context, root string, opts ...Option) (*Result, error) {
	return New(opts...).Collect(ctx, root)
}

// Collect discovers test modules under root and collects their tests:
//  1. Read [tool.pytest.ini_options] from root/pyproject.toml
//  2. Walk testpaths (or root) for python_files matches
//  3. Parse the modules in parallel
//  4. Assemble the report in discovery order
//
// A partial result is returned together with ErrCollectTimeout or
// ErrCollectCancelled when the context ends early.
func (c *Collector) Collect(ctx context.Context, root string) (*Result, error) {
	const op = "collector.Collect"
	log := c.options.Logger.With(slog.String("op", op), slog.String("root", root))
	startTime := time.Now()

	ctx, cancel := context.WithTimeout(ctx, c.options.Timeout)
	defer cancel()

	result := &Result{
		Report: &domain.DiscoveryResult{
			PytestVersion: c.options.PytestVersion,
			PluginVersion: Version,
			Errors:        []domain.ErrorMessage{},
			Warnings:      []domain.WarningMessage{},
			Items:         []domain.TestItem{},
		},
		Errors: []CollectError{},
	}

	cfg, err := LoadConfig(root)
	if err != nil {
		result.Errors = append(result.Errors, CollectError{Err: err, Path: PyprojectFile, Phase: "config"})
		result.Report.Errors = append(result.Report.Errors, domain.ErrorMessage{
			Event:          domain.EventErrorMessage,
			When:           domain.WhenConfig,
			Filename:       PyprojectFile,
			ExceptionType:  "ConfigError",
			ExceptionValue: err.Error(),
		})
	}

	files, errs := c.discoverTestFiles(ctx, root, cfg)
	for _, err := range errs {
		result.Errors = append(result.Errors, CollectError{Err: err, Phase: "discovery"})
	}
	result.Stats.FilesScanned = len(files)

	c.parseFilesParallel(ctx, root, cfg, files, result)

	report := result.Report
	switch {
	case len(report.Errors) > 0:
		report.ExitStatus = ExitInterrupted
	case len(report.Items) == 0:
		report.ExitStatus = ExitNoTests
	default:
		report.ExitStatus = ExitOK
	}
	result.Stats.Duration = time.Since(startTime)

	log.Debug("collection finished",
		slog.Int("files", result.Stats.FilesScanned),
		slog.Int("items", len(report.Items)),
		slog.Int("errors", len(report.Errors)),
		slog.Int("warnings", len(report.Warnings)),
		slog.Duration("duration", result.Stats.Duration))

	if err := ctx.Err(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return result, ErrCollectTimeout
		}
		if errors.Is(err, context.Canceled) {
			return result, ErrCollectCancelled
		}
	}

	return result, nil
}

// discoverTestFiles walks testpaths, or root when none are configured, and
// returns slash separated paths relative to root in walk order.
func (c *Collector) discoverTestFiles(ctx context.Context, root string, cfg *Config) ([]string, []error) {
	skip := slices.Concat(DefaultSkipPatterns, cfg.NoRecurseDirs, c.options.ExcludePatterns)

	starts, errs := c.startPaths(root, cfg)
	seen := make(map[string]bool)
	var files []string

	for _, start := range starts {
		err := filepath.WalkDir(start, func(path string, d fs.DirEntry, walkErr error) error {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			if walkErr != nil {
				errs = append(errs, fmt.Errorf("access error at %s: %w", path, walkErr))
				return nil
			}

			if d.IsDir() {
				if path != start && shouldSkipDir(d.Name(), skip) {
					return filepath.SkipDir
				}
				return nil
			}

			relPath, err := filepath.Rel(root, path)
			if err != nil {
				errs = append(errs, fmt.Errorf("compute relative path for %s: %w", path, err))
				return nil
			}
			relPath = filepath.ToSlash(relPath)

			if seen[relPath] || !c.isTestFile(relPath, cfg) {
				return nil
			}

			if c.options.MaxFileSize > 0 {
				info, err := d.Info()
				if err != nil {
					errs = append(errs, fmt.Errorf("failed to get file info for %s: %w", path, err))
					return nil
				}
				if info.Size() > c.options.MaxFileSize {
					return nil
				}
			}

			seen[relPath] = true
			files = append(files, relPath)
			return nil
		})

		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			errs = append(errs, err)
		}
	}

	return files, errs
}

// startPaths resolves testpaths, expanding globs, relative to root.
func (c *Collector) startPaths(root string, cfg *Config) ([]string, []error) {
	if len(cfg.TestPaths) == 0 {
		return []string{root}, nil
	}

	var (
		starts []string
		errs   []error
	)
	for _, p := range cfg.TestPaths {
		matches, err := doublestar.Glob(os.DirFS(root), filepath.ToSlash(filepath.Clean(p)))
		if err != nil {
			errs = append(errs, fmt.Errorf("testpaths %q: %w", p, err))
			continue
		}
		if len(matches) == 0 {
			errs = append(errs, fmt.Errorf("testpaths %q: no such file or directory", p))
			continue
		}
		slices.Sort(matches)
		for _, m := range matches {
			starts = append(starts, filepath.Join(root, filepath.FromSlash(m)))
		}
	}
	return starts, errs
}

func (c *Collector) isTestFile(relPath string, cfg *Config) bool {
	base := filepath.Base(relPath)
	if filepath.Ext(base) != ".py" || !matchesAnyPattern(base, cfg.PythonFiles) {
		return false
	}
	if len(c.options.Patterns) > 0 {
		return matchesAnyPattern(relPath, c.options.Patterns)
	}
	return true
}

func (c *Collector) parseFilesParallel(ctx context.Context, root string, cfg *Config, files []string, result *Result) {
	workers := c.options.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > MaxWorkers {
		workers = MaxWorkers
	}

	sem := semaphore.NewWeighted(int64(workers))
	g, gCtx := errgroup.WithContext(ctx)

	var (
		mu      sync.Mutex
		results = make([]*fileResult, len(files))
	)

	for i, file := range files {
		g.Go(func() error {
			if err := sem.Acquire(gCtx, 1); err != nil {
				return nil
			}
			defer sem.Release(1)

			res, collectErr := c.parseFile(gCtx, root, cfg, file)

			mu.Lock()
			defer mu.Unlock()

			if collectErr != nil {
				result.Errors = append(result.Errors, *collectErr)
				result.Stats.FilesFailed++
				results[i] = collectErr.toFileResult()
				return nil
			}
			if len(res.errors) > 0 {
				result.Stats.FilesFailed++
			} else {
				result.Stats.FilesParsed++
			}
			results[i] = res
			return nil
		})
	}

	_ = g.Wait()

	// Merge in discovery order; goroutines finish in arbitrary order.
	report := result.Report
	for _, res := range results {
		if res == nil {
			continue
		}
		report.Items = append(report.Items, res.items...)
		report.Errors = append(report.Errors, res.errors...)
		report.Warnings = append(report.Warnings, res.warnings...)
	}
}

func (c *Collector) parseFile(ctx context.Context, root string, cfg *Config, relPath string) (*fileResult, *CollectError) {
	log := c.options.Logger.With(slog.String("file", relPath))

	if err := ctx.Err(); err != nil {
		return nil, &CollectError{Err: err, Path: relPath, Phase: "read"}
	}

	content, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(relPath)))
	if err != nil {
		log.Warn("failed to read test module", slog.String("error", err.Error()))
		return nil, &CollectError{Err: err, Path: relPath, Phase: "read"}
	}

	res, err := parseModule(ctx, cfg, relPath, content)
	if err != nil {
		log.Warn("failed to parse test module", slog.String("error", err.Error()))
		return nil, &CollectError{Err: fmt.Errorf("parse: %w", err), Path: relPath, Phase: "parse"}
	}

	log.Debug("collected test module",
		slog.Int("items", len(res.items)),
		slog.Int("errors", len(res.errors)))
	return res, nil
}

// toFileResult reports a read or parse failure as a collection error.
// Context errors are not reported.
func (e CollectError) toFileResult() *fileResult {
	if errors.Is(e.Err, context.Canceled) || errors.Is(e.Err, context.DeadlineExceeded) {
		return nil
	}
	excType := "OSError"
	if e.Phase == "parse" {
		excType = "ParseError"
	}
	return &fileResult{errors: []domain.ErrorMessage{{
		Event:          domain.EventErrorMessage,
		When:           domain.WhenCollect,
		Filename:       e.Path,
		ExceptionType:  excType,
		ExceptionValue: e.Err.Error(),
	}}}
}

func shouldSkipDir(name string, patterns []string) bool {
	for _, p := range patterns {
		if name == p {
			return true
		}
		if ok, _ := doublestar.Match(p, name); ok {
			return true
		}
	}
	return false
}

// matchesAnyPattern reports whether the slash separated path matches one of
// the doublestar patterns.
func matchesAnyPattern(path string, patterns []string) bool {
	for _, pattern := range patterns {
		if matched, _ := doublestar.Match(pattern, path); matched {
			return true
		}
	}
	return false
}
