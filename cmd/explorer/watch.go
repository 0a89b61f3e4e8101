package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/specvital/explorer/pkg/domain"
	"github.com/specvital/explorer/pkg/explorer"
	"github.com/specvital/explorer/pkg/repository"
	"github.com/specvital/explorer/pkg/watch"
)

// watchCommand prints statistics for the report and again after each change
// of the report file, until interrupted.
func watchCommand(c *cli.Context) error {
	e, err := setup(c)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()
	c.Context = ctx

	// The file is only read here and by the watcher; the session keeps its
	// copy in memory.
	initial, err := repository.NewFile(e.cfg.Report).Load()
	if err != nil {
		e.log.Warn("ignoring unreadable report", slog.String("path", e.cfg.Report), slog.String("error", err.Error()))
		initial = nil
	}
	repo := repository.NewMemory()
	if initial != nil {
		_ = repo.Save(initial)
	}

	s, err := e.session(c, repo)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	defer s.Close()

	if s.Report() != nil {
		if err := e.printer.Statistics(s.Statistics()); err != nil {
			return err
		}
	}

	w, err := watch.New(e.cfg.Report, func(report *domain.DiscoveryResult) error {
		return e.apply(c, s, report)
	}, watch.WithDebounce(e.cfg.Watch.Debounce), watch.WithLogger(e.log))
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	if err := w.Start(); err != nil {
		_ = w.Stop()
		return cli.Exit(err.Error(), 1)
	}
	e.log.Info("watching report", slog.String("path", e.cfg.Report))

	<-ctx.Done()
	return w.Stop()
}

// apply swaps the session report, applies the filter flags again since a new
// report resets the marker filter, and prints the new statistics.
func (e *env) apply(c *cli.Context, s *explorer.Session, report *domain.DiscoveryResult) error {
	previous := s.Fingerprint()
	if err := s.SetReport(report); err != nil {
		return err
	}
	if s.Fingerprint() != previous {
		if err := e.applyFilters(c, s); err != nil {
			return err
		}
	}
	return e.printer.Statistics(s.Statistics())
}
