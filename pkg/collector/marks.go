package collector

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/specvital/explorer/pkg/collector/pyast"
	"github.com/specvital/explorer/pkg/collector/tspool"
)

const (
	markParametrize = "parametrize"
	markSkip        = "skip"
)

// mark is a pytest mark applied to a test, a class or a module.
type mark struct {
	name string
	// call holds the mark arguments, nil for a bare mark.
	call *sitter.Node
	line int
}

// markName returns "slow" for "pytest.mark.slow" or "mark.slow", else "".
func markName(dotted string) string {
	for _, prefix := range []string{"pytest.mark.", "mark."} {
		rest, ok := strings.CutPrefix(dotted, prefix)
		if ok && rest != "" && !strings.Contains(rest, ".") {
			return rest
		}
	}
	return ""
}

// marksOf resolves a decorator or pytestmark expression into marks.
// Module level aliases such as `slow = pytest.mark.slow` are followed.
func (p *moduleParser) marksOf(expr *sitter.Node) []mark {
	expr = pyast.Unwrap(expr)
	if expr == nil {
		return nil
	}

	if elems, ok := pyast.Elements(expr); ok {
		var marks []mark
		for _, e := range elems {
			marks = append(marks, p.marksOf(e)...)
		}
		return marks
	}

	line := tspool.Line(expr)
	switch expr.Type() {
	case pyast.NodeIdentifier:
		name := tspool.GetNodeText(expr, p.source)
		return p.aliases[name]
	case pyast.NodeAttribute:
		if name := markName(pyast.DottedName(expr, p.source)); name != "" {
			return []mark{{name: name, line: line}}
		}
	case pyast.NodeCall:
		fn := pyast.Unwrap(expr.ChildByFieldName("function"))
		if fn == nil {
			return nil
		}
		if name := markName(pyast.DottedName(fn, p.source)); name != "" {
			return []mark{{name: name, call: expr, line: line}}
		}
		if fn.Type() == pyast.NodeIdentifier {
			aliased := p.aliases[tspool.GetNodeText(fn, p.source)]
			if len(aliased) == 1 && aliased[0].call == nil {
				return []mark{{name: aliased[0].name, call: expr, line: line}}
			}
		}
	}
	return nil
}

// decoratorMarks returns the marks of decorators in application order,
// bottom decorator first.
func (p *moduleParser) decoratorMarks(decorators []*sitter.Node) []mark {
	var marks []mark
	for i := len(decorators) - 1; i >= 0; i-- {
		marks = append(marks, p.marksOf(pyast.DecoratorExpression(decorators[i]))...)
	}
	return marks
}

// pytestmark returns the marks assigned to `pytestmark` among statements.
func (p *moduleParser) pytestmark(stmts []*sitter.Node) []mark {
	var marks []mark
	for _, stmt := range stmts {
		left, right := assignment(stmt)
		if left == nil || tspool.GetNodeText(left, p.source) != "pytestmark" {
			continue
		}
		marks = p.marksOf(right)
	}
	return marks
}

// assignment returns both sides of a plain `name = value` statement.
func assignment(stmt *sitter.Node) (left, right *sitter.Node) {
	if stmt.Type() != pyast.NodeExpressionStatement || stmt.NamedChildCount() != 1 {
		return nil, nil
	}
	assign := stmt.NamedChild(0)
	if assign.Type() != pyast.NodeAssignment {
		return nil, nil
	}
	left = assign.ChildByFieldName("left")
	right = assign.ChildByFieldName("right")
	if left == nil || right == nil || left.Type() != pyast.NodeIdentifier {
		return nil, nil
	}
	return left, right
}
