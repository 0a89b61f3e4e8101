package collector

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/specvital/explorer/pkg/collector/pyast"
	"github.com/specvital/explorer/pkg/collector/tspool"
)

// errNotStatic is returned when parametrize arguments are not literals.
var errNotStatic = errors.New("parametrize arguments cannot be resolved statically")

// paramSet is one row of a parametrization.
type paramSet struct {
	id    string
	types map[string]string
	marks []mark
}

// parametrize expands a parametrize mark into its rows, ids made unique.
func (p *moduleParser) parametrize(m mark) ([]paramSet, error) {
	if m.call == nil {
		return nil, errNotStatic
	}
	positional, keywords := pyast.Arguments(m.call, p.source)

	argnames := keywords["argnames"]
	argvalues := keywords["argvalues"]
	if len(positional) > 0 {
		argnames = positional[0]
	}
	if len(positional) > 1 {
		argvalues = positional[1]
	}

	names, ok := p.argnames(argnames)
	if !ok {
		return nil, errNotStatic
	}
	rows, ok := pyast.Elements(argvalues)
	if !ok {
		return nil, errNotStatic
	}

	if len(rows) == 0 {
		set := paramSet{types: make(map[string]string, len(names)), marks: []mark{{name: markSkip, line: m.line}}}
		ids := make([]string, len(names))
		for i, name := range names {
			ids[i] = name + "0"
			set.types[name] = "NotSetType"
		}
		set.id = strings.Join(ids, "-")
		return []paramSet{set}, nil
	}

	var explicit []*sitter.Node
	if idsNode, ok := keywords["ids"]; ok {
		explicit, _ = pyast.Elements(idsNode)
	}

	sets := make([]paramSet, 0, len(rows))
	for i, row := range rows {
		set, err := p.paramRow(names, row, i)
		if err != nil {
			return nil, err
		}
		if set.id == "" && i < len(explicit) {
			if id, ok := pyast.StringValue(explicit[i], p.source); ok {
				set.id = id
			}
		}
		if set.id == "" {
			set.id = autoID(p.values(names, row, i))
		}
		sets = append(sets, set)
	}

	ids := make([]string, len(sets))
	for i, s := range sets {
		ids[i] = s.id
	}
	for i, id := range uniqueIDs(ids) {
		sets[i].id = id
	}
	return sets, nil
}

func (p *moduleParser) argnames(node *sitter.Node) ([]string, bool) {
	if node == nil {
		return nil, false
	}
	if s, ok := pyast.StringValue(node, p.source); ok {
		var names []string
		for _, name := range strings.Split(s, ",") {
			if name = strings.TrimSpace(name); name != "" {
				names = append(names, name)
			}
		}
		return names, len(names) > 0
	}
	elems, ok := pyast.Elements(node)
	if !ok || len(elems) == 0 {
		return nil, false
	}
	names := make([]string, len(elems))
	for i, e := range elems {
		if names[i], ok = pyast.StringValue(e, p.source); !ok {
			return nil, false
		}
	}
	return names, true
}

// paramRow reads one argvalues entry. The id is only set for
// pytest.param(..., id=...).
func (p *moduleParser) paramRow(names []string, row *sitter.Node, index int) (paramSet, error) {
	values, id, marks := p.rowValues(names, row)
	if len(values) != len(names) {
		return paramSet{}, fmt.Errorf("in \"parametrize\" the number of names (%d): %v must be equal to the number of values (%d): %s",
			len(names), names, len(values), tspool.GetNodeText(row, p.source))
	}

	set := paramSet{id: id, types: make(map[string]string, len(names)), marks: marks}
	for i, name := range names {
		_, typ := p.literal(values[i])
		set.types[name] = typ
	}
	return set, nil
}

// rowValues splits a row into its values, unwrapping pytest.param.
func (p *moduleParser) rowValues(names []string, row *sitter.Node) (values []*sitter.Node, id string, marks []mark) {
	row = pyast.Unwrap(row)
	if row.Type() == pyast.NodeCall {
		fn := pyast.DottedName(row.ChildByFieldName("function"), p.source)
		if fn == "pytest.param" || fn == "param" {
			positional, keywords := pyast.Arguments(row, p.source)
			if idNode, ok := keywords["id"]; ok {
				id, _ = pyast.StringValue(idNode, p.source)
			}
			if marksNode, ok := keywords["marks"]; ok {
				marks = p.marksOf(marksNode)
			}
			return positional, id, marks
		}
	}

	if len(names) == 1 {
		return []*sitter.Node{row}, "", nil
	}
	elems, ok := pyast.Elements(row)
	if !ok {
		return []*sitter.Node{row}, "", nil
	}
	return elems, "", nil
}

type idValue struct {
	name  string
	value *sitter.Node
	id    string
	index int
}

func (p *moduleParser) values(names []string, row *sitter.Node, index int) []idValue {
	values, _, _ := p.rowValues(names, row)
	out := make([]idValue, len(names))
	for i, name := range names {
		id, _ := p.literal(values[i])
		out[i] = idValue{name: name, value: values[i], id: id, index: index}
	}
	return out
}

// autoID joins the value ids, using argname+index for values without one.
func autoID(values []idValue) string {
	parts := make([]string, len(values))
	for i, v := range values {
		if v.id == "" && !isStringLiteral(v.value) {
			parts[i] = v.name + strconv.Itoa(v.index)
			continue
		}
		parts[i] = v.id
	}
	return strings.Join(parts, "-")
}

func isStringLiteral(node *sitter.Node) bool {
	node = pyast.Unwrap(node)
	return node != nil && (node.Type() == pyast.NodeString || node.Type() == pyast.NodeConcatenatedString)
}

// literal returns the pytest id and Python type name of a value expression.
// The id is empty when pytest would fall back to argname+index.
func (p *moduleParser) literal(node *sitter.Node) (id, typ string) {
	node = pyast.Unwrap(node)
	if node == nil {
		return "", "object"
	}
	text := tspool.GetNodeText(node, p.source)

	switch node.Type() {
	case "integer":
		if strings.ContainsAny(text, "jJ") {
			return text, "complex"
		}
		if n, err := strconv.ParseInt(text, 0, 64); err == nil {
			return strconv.FormatInt(n, 10), "int"
		}
		return text, "int"
	case "float":
		if strings.ContainsAny(text, "jJ") {
			return text, "complex"
		}
		return text, "float"
	case "true":
		return "True", "bool"
	case "false":
		return "False", "bool"
	case "none":
		return "None", "NoneType"
	case pyast.NodeString:
		typ := "str"
		if i := strings.IndexAny(text, `'"`); i > 0 && strings.ContainsAny(text[:i], "bB") {
			typ = "bytes"
		}
		body, _ := pyast.StringText(node, p.source)
		return asciiEscaped(body), typ
	case pyast.NodeConcatenatedString:
		s, _ := pyast.StringValue(node, p.source)
		return asciiEscaped(s), "str"
	case "unary_operator":
		operand := node.ChildByFieldName("argument")
		opID, opType := p.literal(operand)
		if opType != "int" && opType != "float" && opType != "complex" {
			return "", "object"
		}
		return strings.TrimSpace(strings.TrimSuffix(text, tspool.GetNodeText(operand, p.source))) + opID, opType
	case pyast.NodeList:
		return "", "list"
	case pyast.NodeTuple:
		return "", "tuple"
	case "dictionary":
		return "", "dict"
	case "set":
		return "", "set"
	default:
		return "", "object"
	}
}

// asciiEscaped escapes non-printable and non-ASCII characters like pytest ids.
func asciiEscaped(s string) string {
	var sb strings.Builder
	for _, r := range s {
		switch {
		case r == '\n':
			sb.WriteString(`\n`)
		case r == '\t':
			sb.WriteString(`\t`)
		case r == '\r':
			sb.WriteString(`\r`)
		case r < 0x80 && unicode.IsPrint(r):
			sb.WriteRune(r)
		case r <= 0xff:
			fmt.Fprintf(&sb, `\x%02x`, r)
		case r <= 0xffff:
			fmt.Fprintf(&sb, `\u%04x`, r)
		default:
			fmt.Fprintf(&sb, `\U%08x`, r)
		}
	}
	return sb.String()
}

// uniqueIDs suffixes duplicated ids with a counter, separated by "_" when
// the id already ends with a digit.
func uniqueIDs(ids []string) []string {
	counts := make(map[string]int, len(ids))
	for _, id := range ids {
		counts[id]++
	}

	taken := make(map[string]bool, len(ids))
	for _, id := range ids {
		taken[id] = true
	}

	out := make([]string, len(ids))
	suffixes := make(map[string]int)
	for i, id := range ids {
		if counts[id] < 2 {
			out[i] = id
			continue
		}
		sep := ""
		if id != "" && unicode.IsDigit(rune(id[len(id)-1])) {
			sep = "_"
		}
		next := id + sep + strconv.Itoa(suffixes[id])
		for taken[next] {
			suffixes[id]++
			next = id + sep + strconv.Itoa(suffixes[id])
		}
		out[i] = next
		taken[next] = true
		suffixes[id]++
	}
	return out
}

// combine applies parametrizations in order; earlier ones vary slowest.
func combine(sets [][]paramSet) []paramSet {
	out := []paramSet{{types: map[string]string{}}}
	for _, rows := range sets {
		next := make([]paramSet, 0, len(out)*len(rows))
		for _, base := range out {
			for _, row := range rows {
				merged := paramSet{
					id:    joinID(base.id, row.id),
					types: make(map[string]string, len(base.types)+len(row.types)),
					marks: append(append([]mark(nil), base.marks...), row.marks...),
				}
				for k, v := range base.types {
					merged.types[k] = v
				}
				for k, v := range row.types {
					merged.types[k] = v
				}
				next = append(next, merged)
			}
		}
		out = next
	}
	return out
}

func joinID(a, b string) string {
	if a == "" {
		return b
	}
	return a + "-" + b
}
