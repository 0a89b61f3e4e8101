// Package watch re-reads a discovery report whenever its file changes.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/specvital/explorer/pkg/domain"
)

// DefaultDebounce is the quiet period after the last change before the
// report is read.
const DefaultDebounce = 200 * time.Millisecond

// Handler receives each successfully decoded report.
// Calls are serialised on the watcher goroutine.
type Handler func(report *domain.DiscoveryResult) error

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets the quiet period. Non-positive values are ignored.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithLogger sets the watcher logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Watcher) {
		if l != nil {
			w.log = l
		}
	}
}

// Watcher monitors a single report file.
//
// The parent directory is watched rather than the file itself so that
// reports replaced through rename keep being tracked.
type Watcher struct {
	path     string
	handler  Handler
	debounce time.Duration
	log      *slog.Logger

	watcher *fsnotify.Watcher
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a watcher for the report at path.
func New(path string, handler Handler, opts ...Option) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("watch: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &Watcher{
		path:     abs,
		handler:  handler,
		debounce: DefaultDebounce,
		log:      slog.Default(),
		watcher:  fsw,
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(w)
	}
	w.log = w.log.With(slog.String("report", w.path))
	return w, nil
}

// Start begins watching. It does not read the current report.
func (w *Watcher) Start() error {
	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("watch: add %s: %w", filepath.Dir(w.path), err)
	}

	w.wg.Add(1)
	go w.processEvents()

	w.log.Debug("report watcher started")
	return nil
}

// Stop stops the watcher and waits for a running handler to return.
// Changes still inside the debounce window are dropped.
func (w *Watcher) Stop() error {
	w.cancel()
	err := w.watcher.Close()
	w.wg.Wait()

	w.log.Debug("report watcher stopped")
	if err != nil {
		return fmt.Errorf("watch: close: %w", err)
	}
	return nil
}

func (w *Watcher) processEvents() {
	defer w.wg.Done()

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.relevant(event) {
				continue
			}
			w.log.Debug("report changed", slog.String("event", event.Op.String()))
			timer.Reset(w.debounce)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Error("report watcher error", slog.String("error", err.Error()))

		case <-timer.C:
			w.reload()
		}
	}
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if filepath.Clean(event.Name) != w.path {
		return false
	}
	return event.Has(fsnotify.Create) || event.Has(fsnotify.Write) || event.Has(fsnotify.Rename)
}

// reload reads the report and passes it to the handler. A missing or
// invalid file keeps the previous report.
func (w *Watcher) reload() {
	const op = "watch.Watcher.reload"
	log := w.log.With(slog.String("op", op))

	report, err := domain.ReadReport(w.path)
	if errors.Is(err, fs.ErrNotExist) {
		log.Debug("report removed, keeping the previous one")
		return
	}
	if err != nil {
		log.Error("failed to read report", slog.String("error", err.Error()))
		return
	}

	if err := w.handler(report); err != nil {
		log.Error("failed to apply report", slog.String("error", err.Error()))
		return
	}
	log.Info("report reloaded", slog.Int("items", report.CountItems()))
}
