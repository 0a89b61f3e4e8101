package collector

import (
	"context"
	"errors"
	"fmt"
	"path"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/specvital/explorer/pkg/collector/pyast"
	"github.com/specvital/explorer/pkg/collector/tspool"
	"github.com/specvital/explorer/pkg/domain"
)

// Warning categories emitted during collection.
const (
	CategoryCollectionWarning  = "PytestCollectionWarning"
	CategoryUnknownMarkWarning = "PytestUnknownMarkWarning"
)

// fileResult is what a single test module contributes to the report.
type fileResult struct {
	items    []domain.TestItem
	errors   []domain.ErrorMessage
	warnings []domain.WarningMessage
}

type moduleParser struct {
	cfg     *Config
	path    string
	module  string
	source  []byte
	aliases map[string][]mark
	warned  map[string]bool
	result  fileResult
}

// parseModule collects the tests of one Python file.
// relPath is the slash separated path reported in node ids.
func parseModule(ctx context.Context, cfg *Config, relPath string, source []byte) (*fileResult, error) {
	tree, err := tspool.Parse(ctx, source)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	p := &moduleParser{
		cfg:     cfg,
		path:    relPath,
		module:  strings.TrimSuffix(path.Base(relPath), ".py"),
		source:  source,
		aliases: make(map[string][]mark),
		warned:  make(map[string]bool),
	}

	root := tree.RootNode()
	if bad := tspool.FirstError(root); bad != nil {
		p.collectError(tspool.Line(bad), "SyntaxError", "invalid syntax")
		return &p.result, nil
	}

	if err := p.collectAliases(root); err != nil {
		return nil, err
	}
	stmts := tspool.NamedChildren(root)
	p.collectBody(stmts, nil, p.pytestmark(stmts))
	return &p.result, nil
}

// moduleAssignments matches `name = value` statements directly under the
// module.
const moduleAssignments = `(module
  (expression_statement
    (assignment left: (identifier) @name right: (_) @value)))`

// collectAliases records module level names bound to a single mark.
func (p *moduleParser) collectAliases(root *sitter.Node) error {
	matches, err := tspool.QueryWithCache(root, moduleAssignments)
	if err != nil {
		return fmt.Errorf("collect mark aliases: %w", err)
	}
	for _, m := range matches {
		name := tspool.GetNodeText(m.Captures["name"], p.source)
		if name == "pytestmark" {
			continue
		}
		value := m.Captures["value"]
		if _, isList := pyast.Elements(value); isList {
			continue
		}
		if marks := p.marksOf(value); len(marks) == 1 {
			p.aliases[name] = marks
		}
	}
	return nil
}

func (p *moduleParser) collectBody(stmts []*sitter.Node, classes []string, inherited []mark) {
	for _, stmt := range stmts {
		def := stmt
		var decorators []*sitter.Node
		if stmt.Type() == pyast.NodeDecoratedDefinition {
			decorators = pyast.GetDecorators(stmt)
			def = pyast.GetDecoratedDefinition(stmt)
		}
		if def == nil {
			continue
		}

		switch def.Type() {
		case pyast.NodeFunctionDefinition:
			p.collectFunction(def, decorators, classes, inherited)
		case pyast.NodeClassDefinition:
			p.collectClass(def, decorators, classes, inherited)
		}
	}
}

func (p *moduleParser) collectClass(def *sitter.Node, decorators []*sitter.Node, classes []string, inherited []mark) {
	name := tspool.GetNodeText(def.ChildByFieldName("name"), p.source)
	if !matchName(p.cfg.PythonClasses, name) {
		return
	}

	if pyast.HasMethod(def, "__init__", p.source) {
		p.warn(tspool.Line(def), CategoryCollectionWarning,
			fmt.Sprintf("cannot collect test class '%s' because it has a __init__ constructor (from: %s)", name, p.path))
		return
	}

	body := def.ChildByFieldName("body")
	if body == nil {
		return
	}
	stmts := tspool.NamedChildren(body)

	marks := append(p.pytestmark(stmts), p.decoratorMarks(decorators)...)
	marks = append(marks, inherited...)

	p.collectBody(stmts, append(slices.Clone(classes), name), marks)
}

func (p *moduleParser) collectFunction(def *sitter.Node, decorators []*sitter.Node, classes []string, inherited []mark) {
	function := tspool.GetNodeText(def.ChildByFieldName("name"), p.source)
	if !matchName(p.cfg.PythonFunctions, function) {
		return
	}

	marks := append(p.decoratorMarks(decorators), inherited...)
	p.checkMarks(marks)

	var expansions [][]paramSet
	for _, m := range marks {
		if m.name != markParametrize {
			continue
		}
		sets, err := p.parametrize(m)
		if errors.Is(err, errNotStatic) {
			p.warn(m.line, CategoryCollectionWarning,
				fmt.Sprintf("cannot expand parametrize of %s statically; collected without parameters", function))
			continue
		}
		if err != nil {
			p.collectError(m.line, "Failed", fmt.Sprintf("%s: %v", function, err))
			return
		}
		for _, set := range sets {
			p.checkMarks(set.marks)
		}
		expansions = append(expansions, sets)
	}

	parent := strings.Join(classes, "::")
	prefix := p.path + "::"
	if parent != "" {
		prefix += parent + "::"
	}
	doc := pyast.Docstring(def, p.source)

	for _, set := range combine(expansions) {
		name := function
		if len(expansions) > 0 {
			name += "[" + set.id + "]"
		}
		p.result.items = append(p.result.items, domain.TestItem{
			NodeID:     prefix + name,
			File:       p.path,
			Module:     p.module,
			Parent:     parent,
			Function:   function,
			Name:       name,
			Doc:        doc,
			Markers:    markerNames(marks, set.marks),
			Parameters: set.types,
		})
	}
}

// markerNames returns the distinct mark names, sorted.
func markerNames(groups ...[]mark) []string {
	var names []string
	for _, marks := range groups {
		for _, m := range marks {
			names = append(names, m.name)
		}
	}
	slices.Sort(names)
	return slices.Compact(names)
}

func (p *moduleParser) checkMarks(marks []mark) {
	for _, m := range marks {
		if p.cfg.KnownMarker(m.name) {
			continue
		}
		key := fmt.Sprintf("%s:%d", m.name, m.line)
		if p.warned[key] {
			continue
		}
		p.warned[key] = true
		p.warn(m.line, CategoryUnknownMarkWarning,
			fmt.Sprintf("Unknown pytest.mark.%s - is this a typo?  You can register custom marks to avoid this warning - for details, see https://docs.pytest.org/en/stable/how-to/mark.html", m.name))
	}
}

func (p *moduleParser) warn(line int, category, message string) {
	p.result.warnings = append(p.result.warnings, domain.WarningMessage{
		Event:    domain.EventWarningMessage,
		When:     domain.WhenCollect,
		Filename: p.path,
		Lineno:   line,
		Category: category,
		Message:  message,
	})
}

func (p *moduleParser) collectError(line int, excType, excValue string) {
	p.result.errors = append(p.result.errors, domain.ErrorMessage{
		Event:          domain.EventErrorMessage,
		When:           domain.WhenCollect,
		Filename:       p.path,
		Lineno:         line,
		ExceptionType:  excType,
		ExceptionValue: excValue,
	})
}

// matchName applies python_classes / python_functions: each option matches
// as a name prefix, or as a glob when it has glob characters.
func matchName(options []string, name string) bool {
	for _, option := range options {
		if strings.HasPrefix(name, option) {
			return true
		}
		if strings.ContainsAny(option, "*?[") {
			if ok, _ := doublestar.Match(option, name); ok {
				return true
			}
		}
	}
	return false
}
