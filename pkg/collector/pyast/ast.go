// Package pyast provides Python AST helpers for the pytest collector.
package pyast

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/specvital/explorer/pkg/collector/tspool"
)

// Python AST node types.
const (
	NodeAssignment          = "assignment"
	NodeAttribute           = "attribute"
	NodeBlock               = "block"
	NodeCall                = "call"
	NodeClassDefinition     = "class_definition"
	NodeConcatenatedString  = "concatenated_string"
	NodeDecorator           = "decorator"
	NodeDecoratedDefinition = "decorated_definition"
	NodeExpressionStatement = "expression_statement"
	NodeFunctionDefinition  = "function_definition"
	NodeIdentifier          = "identifier"
	NodeKeywordArgument     = "keyword_argument"
	NodeList                = "list"
	NodeParenthesized       = "parenthesized_expression"
	NodeString              = "string"
	NodeTuple               = "tuple"
)

// GetDecoratedDefinition extracts the actual definition from a decorated_definition node.
func GetDecoratedDefinition(node *sitter.Node) *sitter.Node {
	definition := node.ChildByFieldName("definition")
	if definition != nil {
		return definition
	}

	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child.Type() == NodeFunctionDefinition || child.Type() == NodeClassDefinition {
			return child
		}
	}
	return nil
}

// GetDecorators extracts all decorator nodes from a decorated_definition,
// top to bottom.
func GetDecorators(node *sitter.Node) []*sitter.Node {
	return tspool.FindChildrenByType(node, NodeDecorator)
}

// DecoratorExpression returns the expression following the "@" of a decorator.
func DecoratorExpression(decorator *sitter.Node) *sitter.Node {
	for i := 0; i < int(decorator.NamedChildCount()); i++ {
		child := decorator.NamedChild(i)
		if child.Type() != "comment" {
			return child
		}
	}
	return nil
}

// Unwrap strips parentheses around an expression.
func Unwrap(node *sitter.Node) *sitter.Node {
	for node != nil && node.Type() == NodeParenthesized && node.NamedChildCount() == 1 {
		node = node.NamedChild(0)
	}
	return node
}

// Docstring returns the docstring of a function or class definition with
// surrounding whitespace removed, or "" when it has none.
func Docstring(definition *sitter.Node, source []byte) string {
	body := definition.ChildByFieldName("body")
	if body == nil {
		return ""
	}
	stmts := tspool.NamedChildren(body)
	if len(stmts) == 0 || stmts[0].Type() != NodeExpressionStatement {
		return ""
	}
	expr := stmts[0].NamedChild(0)
	if expr == nil {
		return ""
	}
	doc, ok := StringValue(expr, source)
	if !ok {
		return ""
	}
	return strings.TrimSpace(doc)
}

// StringValue returns the value of a string literal, or false when node is
// not a plain string literal. Adjacent literals are concatenated.
func StringValue(node *sitter.Node, source []byte) (string, bool) {
	node = Unwrap(node)
	if node == nil {
		return "", false
	}

	switch node.Type() {
	case NodeString:
		return literal(tspool.GetNodeText(node, source))
	case NodeConcatenatedString:
		var sb strings.Builder
		for _, part := range tspool.NamedChildren(node) {
			s, ok := StringValue(part, source)
			if !ok {
				return "", false
			}
			sb.WriteString(s)
		}
		return sb.String(), true
	default:
		return "", false
	}
}

// StringText returns the text between the quotes of a string literal without
// interpreting escape sequences.
func StringText(node *sitter.Node, source []byte) (string, bool) {
	node = Unwrap(node)
	if node == nil || node.Type() != NodeString {
		return "", false
	}
	_, body, ok := splitLiteral(tspool.GetNodeText(node, source))
	return body, ok
}

func literal(text string) (string, bool) {
	prefix, body, ok := splitLiteral(text)
	if !ok {
		return "", false
	}
	if strings.ContainsAny(prefix, "fF") && strings.Contains(body, "{") {
		return "", false
	}
	if strings.ContainsAny(prefix, "rR") {
		return body, true
	}
	return unescape(body), true
}

func splitLiteral(text string) (prefix, body string, ok bool) {
	i := strings.IndexAny(text, `'"`)
	if i < 0 {
		return "", "", false
	}
	prefix, rest := text[:i], text[i:]
	for _, quote := range []string{`"""`, `'''`, `"`, `'`} {
		if len(rest) >= 2*len(quote) && strings.HasPrefix(rest, quote) && strings.HasSuffix(rest, quote) {
			return prefix, rest[len(quote) : len(rest)-len(quote)], true
		}
	}
	return "", "", false
}

var escapes = map[byte]string{
	'\\': `\`, '\'': `'`, '"': `"`, 'n': "\n", 't': "\t", 'r': "\r",
	'a': "\a", 'b': "\b", 'f': "\f", 'v': "\v", '0': "\x00", '\n': "",
}

func unescape(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var sb strings.Builder
	sb.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' || i+1 == len(s) {
			sb.WriteByte(s[i])
			continue
		}
		if r, ok := escapes[s[i+1]]; ok {
			sb.WriteString(r)
			i++
			continue
		}
		sb.WriteByte(s[i])
	}
	return sb.String()
}

// DottedName returns the dotted name of an identifier or attribute chain,
// such as "pytest.mark.slow", or "" for any other expression.
func DottedName(node *sitter.Node, source []byte) string {
	node = Unwrap(node)
	if node == nil {
		return ""
	}
	switch node.Type() {
	case NodeIdentifier:
		return tspool.GetNodeText(node, source)
	case NodeAttribute:
		object := DottedName(node.ChildByFieldName("object"), source)
		attr := node.ChildByFieldName("attribute")
		if object == "" || attr == nil {
			return ""
		}
		return object + "." + tspool.GetNodeText(attr, source)
	default:
		return ""
	}
}

// Arguments splits the argument list of a call into positional arguments and
// keyword arguments.
func Arguments(call *sitter.Node, source []byte) (positional []*sitter.Node, keywords map[string]*sitter.Node) {
	keywords = make(map[string]*sitter.Node)
	args := call.ChildByFieldName("arguments")
	if args == nil {
		return nil, keywords
	}
	for _, arg := range tspool.NamedChildren(args) {
		if arg.Type() == NodeKeywordArgument {
			name := tspool.GetNodeText(arg.ChildByFieldName("name"), source)
			keywords[name] = arg.ChildByFieldName("value")
			continue
		}
		positional = append(positional, arg)
	}
	return positional, keywords
}

// Elements returns the items of a list or tuple literal, or false for any
// other expression. A bare expression_list counts as a tuple.
func Elements(node *sitter.Node) ([]*sitter.Node, bool) {
	node = Unwrap(node)
	if node == nil {
		return nil, false
	}
	switch node.Type() {
	case NodeList, NodeTuple, "expression_list":
		return tspool.NamedChildren(node), true
	default:
		return nil, false
	}
}

// HasMethod reports whether a class body defines the named method.
func HasMethod(class *sitter.Node, name string, source []byte) bool {
	body := class.ChildByFieldName("body")
	if body == nil {
		return false
	}
	for _, stmt := range tspool.NamedChildren(body) {
		def := stmt
		if def.Type() == NodeDecoratedDefinition {
			def = GetDecoratedDefinition(def)
		}
		if def == nil || def.Type() != NodeFunctionDefinition {
			continue
		}
		if tspool.GetNodeText(def.ChildByFieldName("name"), source) == name {
			return true
		}
	}
	return false
}
