// Package condition implements the minimal conditional-node/edge expression
// grammar from spec.md §4.6 as a hand-written recursive-descent
// lexer/parser/interpreter — deliberately NOT built on expr-lang/expr (the
// teacher's own condition engine in
// internal/application/executor/conditions.go), per spec.md §9's explicit
// "do not use a general expression engine" instruction for this one
// grammar. expr-lang/expr remains legitimately used elsewhere (loop/variable
// node expressions, see internal/engine/exec).
//
// Grammar:
//
//	condition := term (LOGICAL term)*
//	term      := "variable" IDENT OP VALUE
//	           | "tool_calls" CMP (NUMBER | "variable" IDENT)
//	           | "has_tool_calls"
//	           | "no_tool_calls"
//	LOGICAL   := "AND" | "OR"
//	OP        := "equals" | "not_equals"
//	CMP       := "<" | "<=" | ">=" | ">" | "=="
package condition

import (
	"fmt"
	"strconv"
	"strings"
)

// Evaluator is the read-only view over execution state the condition
// language is evaluated against.
type Evaluator interface {
	Variable(name string) (any, bool)
	ToolCallCount() int
	HasToolCalls() bool
}

// Node is a parsed condition AST node.
type Node interface {
	eval(e Evaluator) (bool, error)
}

// Parse parses a condition string eagerly, at graph-compile time, exactly
// as spec.md §4.6 requires ("a malformed condition fails Layer-1
// validation" — that check is Parse returning an error).
func Parse(src string) (Node, error) {
	p := &parser{tokens: lex(src)}
	node, err := p.parseCondition()
	if err != nil {
		return nil, err
	}
	if p.pos != len(p.tokens) {
		return nil, fmt.Errorf("condition: unexpected trailing token %q", p.tokens[p.pos])
	}
	return node, nil
}

// Eval parses and evaluates src in one call; compiled conditions should
// normally be cached via Parse once, at compile time.
func Eval(src string, e Evaluator) (bool, error) {
	node, err := Parse(src)
	if err != nil {
		return false, err
	}
	return node.eval(e)
}

func lex(src string) []string {
	var tokens []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			tokens = append(tokens, cur.String())
			cur.Reset()
		}
	}
	runes := []rune(src)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case r == ' ' || r == '\t' || r == '\n':
			flush()
		case r == '<' || r == '>':
			flush()
			if i+1 < len(runes) && runes[i+1] == '=' {
				tokens = append(tokens, string(r)+"=")
				i++
			} else {
				tokens = append(tokens, string(r))
			}
		case r == '=' && i+1 < len(runes) && runes[i+1] == '=':
			flush()
			tokens = append(tokens, "==")
			i++
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return tokens
}

type parser struct {
	tokens []string
	pos    int
}

func (p *parser) peek() (string, bool) {
	if p.pos >= len(p.tokens) {
		return "", false
	}
	return p.tokens[p.pos], true
}

func (p *parser) next() (string, bool) {
	tok, ok := p.peek()
	if ok {
		p.pos++
	}
	return tok, ok
}

func (p *parser) parseCondition() (Node, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for {
		tok, ok := p.peek()
		if !ok {
			break
		}
		upper := strings.ToUpper(tok)
		if upper != "AND" && upper != "OR" {
			break
		}
		p.next()
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		left = &logicalNode{op: upper, left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseTerm() (Node, error) {
	tok, ok := p.next()
	if !ok {
		return nil, fmt.Errorf("condition: unexpected end of input")
	}
	switch tok {
	case "variable":
		name, ok := p.next()
		if !ok {
			return nil, fmt.Errorf("condition: expected variable name after 'variable'")
		}
		opTok, ok := p.next()
		if !ok {
			return nil, fmt.Errorf("condition: expected operator after variable %q", name)
		}
		op := strings.ToLower(opTok)
		if op != "equals" && op != "not_equals" {
			return nil, fmt.Errorf("condition: unknown operator %q (want equals|not_equals)", opTok)
		}
		valueTok, ok := p.next()
		if !ok {
			return nil, fmt.Errorf("condition: expected value after operator")
		}
		return &variableNode{name: name, op: op, value: parseLiteral(valueTok)}, nil

	case "tool_calls":
		cmpTok, ok := p.next()
		if !ok {
			return nil, fmt.Errorf("condition: expected comparator after tool_calls")
		}
		if !isComparator(cmpTok) {
			return nil, fmt.Errorf("condition: unknown comparator %q", cmpTok)
		}
		operandTok, ok := p.next()
		if !ok {
			return nil, fmt.Errorf("condition: expected number or variable after comparator")
		}
		if operandTok == "variable" {
			varName, ok := p.next()
			if !ok {
				return nil, fmt.Errorf("condition: expected variable name after 'variable'")
			}
			return &toolCallsNode{cmp: cmpTok, varName: varName}, nil
		}
		n, err := strconv.Atoi(operandTok)
		if err != nil {
			return nil, fmt.Errorf("condition: invalid number %q: %w", operandTok, err)
		}
		return &toolCallsNode{cmp: cmpTok, value: n, hasLiteral: true}, nil

	case "has_tool_calls":
		return &hasToolCallsNode{want: true}, nil

	case "no_tool_calls":
		return &hasToolCallsNode{want: false}, nil

	default:
		return nil, fmt.Errorf("condition: unknown term %q", tok)
	}
}

func isComparator(tok string) bool {
	switch tok {
	case "<", "<=", ">=", ">", "==":
		return true
	default:
		return false
	}
}

func parseLiteral(tok string) any {
	if tok == "true" {
		return true
	}
	if tok == "false" {
		return false
	}
	if n, err := strconv.Atoi(tok); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(tok, 64); err == nil {
		return f
	}
	return strings.Trim(tok, `"'`)
}

type logicalNode struct {
	op          string
	left, right Node
}

func (n *logicalNode) eval(e Evaluator) (bool, error) {
	l, err := n.left.eval(e)
	if err != nil {
		return false, err
	}
	r, err := n.right.eval(e)
	if err != nil {
		return false, err
	}
	if n.op == "AND" {
		return l && r, nil
	}
	return l || r, nil
}

type variableNode struct {
	name  string
	op    string
	value any
}

func (n *variableNode) eval(e Evaluator) (bool, error) {
	actual, _ := e.Variable(n.name)
	equal := valuesEqual(actual, n.value)
	if n.op == "not_equals" {
		return !equal, nil
	}
	return equal, nil
}

func valuesEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == b
	}
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		return af == bf
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	default:
		return 0, false
	}
}

type toolCallsNode struct {
	cmp        string
	value      int
	hasLiteral bool
	varName    string
}

func (n *toolCallsNode) eval(e Evaluator) (bool, error) {
	count := e.ToolCallCount()
	value := n.value
	if !n.hasLiteral {
		raw, _ := e.Variable(n.varName)
		f, ok := toFloat(raw)
		if !ok {
			return false, fmt.Errorf("condition: variable %q is not numeric", n.varName)
		}
		value = int(f)
	}
	switch n.cmp {
	case "<":
		return count < value, nil
	case "<=":
		return count <= value, nil
	case ">=":
		return count >= value, nil
	case ">":
		return count > value, nil
	case "==":
		return count == value, nil
	default:
		return false, fmt.Errorf("condition: unknown comparator %q", n.cmp)
	}
}

type hasToolCallsNode struct {
	want bool
}

func (n *hasToolCallsNode) eval(e Evaluator) (bool, error) {
	return e.HasToolCalls() == n.want, nil
}
