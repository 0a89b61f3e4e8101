package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/specvital/explorer/pkg/collector"
	"github.com/specvital/explorer/pkg/domain"
	"github.com/specvital/explorer/pkg/repository"
	"github.com/specvital/explorer/pkg/stats"
)

// collectCommand collects the items under a directory, stores the report and
// exits with the report exit status.
func collectCommand(c *cli.Context) error {
	e, err := setup(c)
	if err != nil {
		return err
	}

	root := "."
	if c.NArg() > 0 {
		root = c.Args().First()
	}
	if c.NArg() > 1 {
		return cli.Exit("collect takes at most one directory", 2)
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := []collector.Option{
		collector.WithWorkers(e.cfg.Collect.Workers),
		collector.WithTimeout(e.cfg.Collect.Timeout),
		collector.WithPatterns(e.cfg.Collect.Patterns),
		collector.WithExcludePatterns(e.cfg.Collect.Exclude),
		collector.WithMaxFileSize(e.cfg.Collect.MaxFileSize),
		collector.WithLogger(e.log),
	}
	if v := c.String("pytest-version"); v != "" {
		opts = append(opts, collector.WithPytestVersion(v))
	}

	result, err := collector.Collect(ctx, root, opts...)
	if err != nil {
		if errors.Is(err, collector.ErrCollectTimeout) || errors.Is(err, collector.ErrCollectCancelled) {
			return cli.Exit(err.Error(), collector.ExitInterrupted)
		}
		return cli.Exit(err.Error(), 1)
	}
	report := result.Report

	output := e.cfg.Report
	if c.IsSet("output") {
		output = c.String("output")
	}
	if output == "-" {
		if err := domain.WriteReport(c.App.Writer, report); err != nil {
			return cli.Exit(err.Error(), 1)
		}
	} else {
		if err := repository.NewFile(output).Save(report); err != nil {
			return cli.Exit(err.Error(), 1)
		}
		if err := e.printer.Messages(report); err != nil {
			return err
		}
		st := stats.ComputeReport(report)
		if err := e.printer.Statistics(&st); err != nil {
			return err
		}
	}

	e.log.Info("collect finished",
		slog.String("root", root),
		slog.String("output", output),
		slog.Int("items", len(report.Items)),
		slog.Int("files_scanned", result.Stats.FilesScanned),
		slog.Int("files_failed", result.Stats.FilesFailed),
		slog.Duration("duration", result.Stats.Duration),
		slog.Int("exit_status", report.ExitStatus))

	if report.ExitStatus != collector.ExitOK {
		return cli.Exit(fmt.Sprintf("collected %d items with %d errors", len(report.Items), len(report.Errors)), report.ExitStatus)
	}
	return nil
}
