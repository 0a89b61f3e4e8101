package main

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/specvital/explorer/pkg/collector"
	"github.com/specvital/explorer/pkg/config"
	"github.com/specvital/explorer/pkg/display"
	"github.com/specvital/explorer/pkg/explorer"
	"github.com/specvital/explorer/pkg/filter"
	"github.com/specvital/explorer/pkg/repository"
	"github.com/specvital/explorer/pkg/search"
)

func newApp() *cli.App {
	return &cli.App{
		Name:                   "explorer",
		Usage:                  "Collect and explore pytest discovery reports",
		Version:                collector.Version,
		UseShortOptionHandling: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Config file path (defaults to $" + config.EnvConfigPath + ")",
			},
			&cli.StringFlag{
				Name:    "report",
				Aliases: []string{"r"},
				Usage:   "Discovery report path (overrides config)",
			},
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Usage:   "Output format: text, json or yaml",
				Value:   string(display.FormatText),
			},
			&cli.BoolFlag{
				Name:  "no-color",
				Usage: "Disable colored output",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level: debug, info, warn or error (overrides config)",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "collect",
				Usage:     "Collect pytest items under a directory into a report",
				ArgsUsage: "[dir]",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Write the report to this path, - for stdout (defaults to --report)",
					},
					&cli.IntFlag{
						Name:    "workers",
						Aliases: []string{"w"},
						Usage:   "Parallel parsers (0 = number of CPUs)",
					},
					&cli.DurationFlag{
						Name:  "timeout",
						Usage: "Give up collecting after this long",
					},
					&cli.StringSliceFlag{
						Name:    "pattern",
						Aliases: []string{"p"},
						Usage:   "Only parse files whose relative path matches (e.g., --pattern 'tests/unit/**')",
					},
					&cli.StringSliceFlag{
						Name:  "exclude",
						Usage: "Skip directories matching name or glob (e.g., --exclude build)",
					},
					&cli.StringFlag{
						Name:  "pytest-version",
						Usage: "pytest version recorded in the report",
					},
				},
				Action: collectCommand,
			},
			{
				Name:      "search",
				Aliases:   []string{"s"},
				Usage:     "Search the report",
				ArgsUsage: "[terms...]",
				Flags: append(filterFlags(),
					&cli.IntFlag{
						Name:  "page",
						Usage: "Page number, starting at 1",
						Value: 1,
					},
					&cli.IntFlag{
						Name:  "page-size",
						Usage: "Results per page (overrides config)",
					},
					&cli.Float64Flag{
						Name:  "fuzzy",
						Usage: "Edit distance as a fraction of term length (overrides config)",
					},
					&cli.BoolFlag{
						Name:  "prefix",
						Usage: "Match indexed terms starting with a query term",
					},
				),
				Action: searchCommand,
			},
			{
				Name:      "tree",
				Aliases:   []string{"t"},
				Usage:     "Print the matching items as a directory tree",
				ArgsUsage: "[terms...]",
				Flags: append(filterFlags(),
					&cli.StringFlag{
						Name:    "match",
						Aliases: []string{"m"},
						Usage:   "List tree nodes whose path matches a glob (e.g., 'tests/**/test_*.py')",
					},
				),
				Action: treeCommand,
			},
			{
				Name:      "stats",
				Usage:     "Print statistics of the matching items",
				ArgsUsage: "[terms...]",
				Flags:     filterFlags(),
				Action:    statsCommand,
			},
			{
				Name:   "watch",
				Usage:  "Print statistics each time the report changes",
				Flags:  filterFlags(),
				Action: watchCommand,
			},
		},
	}
}

// filterFlags are shared by the commands that browse a report.
func filterFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringSliceFlag{
			Name:  "marker",
			Usage: "Keep only items with this marker (repeatable)",
		},
		&cli.StringSliceFlag{
			Name:  "without-marker",
			Usage: "Drop items with this marker (repeatable)",
		},
		&cli.StringFlag{
			Name:  "scope",
			Usage: "Keep only node ids starting with this prefix",
		},
	}
}

// loadConfigWithOverrides loads configuration and applies CLI flag overrides
func loadConfigWithOverrides(c *cli.Context) (*config.Config, error) {
	path := config.FetchPath(c.String("config"))
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if report := c.String("report"); report != "" {
		cfg.Report = report
	}
	if level := c.String("log-level"); level != "" {
		cfg.LogLevel = level
	}

	if c.IsSet("workers") {
		cfg.Collect.Workers = c.Int("workers")
	}
	if c.IsSet("timeout") {
		cfg.Collect.Timeout = c.Duration("timeout")
	}
	if patterns := c.StringSlice("pattern"); len(patterns) > 0 {
		cfg.Collect.Patterns = patterns
	}
	if exclude := c.StringSlice("exclude"); len(exclude) > 0 {
		cfg.Collect.Exclude = append(cfg.Collect.Exclude, exclude...)
	}

	if c.IsSet("page-size") {
		cfg.Search.PageSize = c.Int("page-size")
	}
	if c.IsSet("fuzzy") {
		cfg.Search.Fuzzy = c.Float64("fuzzy")
	}
	if c.Bool("prefix") {
		cfg.Search.Prefix = true
	}
	return cfg, nil
}

// env bundles what every command needs.
type env struct {
	cfg     *config.Config
	log     *slog.Logger
	printer *display.Printer
	format  display.Format
}

func setup(c *cli.Context) (*env, error) {
	cfg, err := loadConfigWithOverrides(c)
	if err != nil {
		return nil, cli.Exit(err.Error(), 1)
	}
	format, err := display.ParseFormat(c.String("format"))
	if err != nil {
		return nil, cli.Exit(err.Error(), 1)
	}

	log := slog.New(slog.NewTextHandler(c.App.ErrWriter, &slog.HandlerOptions{Level: cfg.Level()}))
	return &env{
		cfg:     cfg,
		log:     log,
		printer: display.New(c.App.Writer, format, c.Bool("no-color")),
		format:  format,
	}, nil
}

// session opens an explorer session over repo and applies the filter flags.
func (e *env) session(c *cli.Context, repo repository.Repository) (*explorer.Session, error) {
	engineOpts := []search.EngineOption{}
	if e.cfg.Search.Stemming {
		engineOpts = append(engineOpts, search.WithStemming())
	}

	s, err := explorer.NewSession(repo,
		explorer.WithLimit(e.cfg.Search.Limit),
		explorer.WithPageSize(e.cfg.Search.PageSize),
		explorer.WithBoost(map[string]float64{search.FieldNodeID: e.cfg.Search.NodeIDBoost}),
		explorer.WithFuzzy(e.cfg.Search.Fuzzy),
		explorer.WithPrefixSearch(e.cfg.Search.Prefix),
		explorer.WithEngineOptions(engineOpts...),
		explorer.WithScope(c.String("scope")),
		explorer.WithLogger(e.log),
	)
	if err != nil {
		return nil, err
	}

	if err := e.applyFilters(c, s); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// applyFilters applies the marker flags and the search terms of c. It waits
// for the search index so that terms see every item.
func (e *env) applyFilters(c *cli.Context, s *explorer.Session) error {
	select {
	case <-s.IndexReady():
	case <-c.Context.Done():
		return c.Context.Err()
	}

	for _, m := range markerTargets(c) {
		// Neither -> included -> excluded -> neither.
		for range 3 {
			if s.MarkerStatus(m.Marker) == m.Status {
				break
			}
			s.ToggleMarker(m.Marker)
		}
	}
	if c.NArg() > 0 {
		s.SetTerms(strings.Join(c.Args().Slice(), " "))
	}
	return nil
}

// markerTargets returns the wanted status of each marker flag, in flag order.
// Repeated flags collapse into one, and --without-marker wins over --marker.
func markerTargets(c *cli.Context) []filter.MarkerStatus {
	var targets []filter.MarkerStatus
	index := make(map[string]int)
	set := func(marker string, status filter.Status) {
		if i, ok := index[marker]; ok {
			targets[i].Status = status
			return
		}
		index[marker] = len(targets)
		targets = append(targets, filter.MarkerStatus{Marker: marker, Status: status})
	}
	for _, m := range c.StringSlice("marker") {
		set(m, filter.StatusIncluded)
	}
	for _, m := range c.StringSlice("without-marker") {
		set(m, filter.StatusExcluded)
	}
	return targets
}

// openReport opens a session over the configured report file. A missing
// report is an error for commands that only read it.
func (e *env) openReport(c *cli.Context) (*explorer.Session, error) {
	s, err := e.session(c, repository.NewFile(e.cfg.Report))
	if err != nil {
		return nil, cli.Exit(err.Error(), 1)
	}
	if s.Report() == nil {
		s.Close()
		return nil, cli.Exit(fmt.Sprintf("no report found at %s (run 'explorer collect' first)", e.cfg.Report), 1)
	}
	return s, nil
}
