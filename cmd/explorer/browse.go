package main

import (
	"github.com/urfave/cli/v2"

	"github.com/specvital/explorer/pkg/display"
	"github.com/specvital/explorer/pkg/domain"
	"github.com/specvital/explorer/pkg/tree"
)

func searchCommand(c *cli.Context) error {
	e, err := setup(c)
	if err != nil {
		return err
	}
	s, err := e.openReport(c)
	if err != nil {
		return err
	}
	defer s.Close()

	if page := c.Int("page"); page > 1 {
		s.SetPage(page - 1)
	}

	if e.format == display.FormatText {
		if err := e.printer.Markers(s.Markers().Statuses()); err != nil {
			return err
		}
	}
	return e.printer.Results(display.Page{
		Offset:  s.Offset(),
		Total:   len(s.Matches()),
		Results: s.Results(),
	})
}

func treeCommand(c *cli.Context) error {
	e, err := setup(c)
	if err != nil {
		return err
	}
	s, err := e.openReport(c)
	if err != nil {
		return err
	}
	defer s.Close()

	if pattern := c.String("match"); pattern != "" {
		items := make([]domain.TestItem, len(s.Matches()))
		for i, doc := range s.Matches() {
			items[i] = doc.TestItem
		}
		nodes, err := tree.New(items...).Match(pattern)
		if err != nil {
			return cli.Exit(err.Error(), 2)
		}
		return e.printer.Nodes(nodes)
	}

	views, err := s.Tree()
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	return e.printer.Tree(views)
}

func statsCommand(c *cli.Context) error {
	e, err := setup(c)
	if err != nil {
		return err
	}
	s, err := e.openReport(c)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := e.printer.Statistics(s.Statistics()); err != nil {
		return err
	}
	if e.format == display.FormatText {
		return e.printer.Messages(s.Report())
	}
	return nil
}
