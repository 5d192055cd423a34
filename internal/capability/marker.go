package capability

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Marker variables understood by the evaluator.
const (
	// VariableSysPlatform holds the platform family, e.g. win32.
	VariableSysPlatform = "sys_platform"
	// VariablePlatformTag holds the concrete platform tag, e.g. win_amd64.
	VariablePlatformTag = "platform_tag"
)

// ErrInvalidMarker is returned when a marker expression cannot be parsed.
var ErrInvalidMarker = errors.New("invalid marker")

// Environment carries the variable values a marker is evaluated against.
type Environment map[string]string

// Marker is a compiled boolean expression over an Environment.
type Marker struct {
	source string
	root   markerNode
}

type markerNode interface {
	evaluate(env Environment) bool
}

type (
	andNode struct{ left, right markerNode }
	orNode  struct{ left, right markerNode }

	// compareNode compares two operands, each a variable name or a literal.
	compareNode struct {
		op          string
		left, right operand
	}

	operand struct {
		value      string
		isVariable bool
	}
)

// ParseMarker compiles a marker expression.
//
// The grammar is the environment-marker subset used by rule tables:
// comparisons with ==, !=, in and not in, combined with and, or and parentheses.
func ParseMarker(expression string) (*Marker, error) {
	tokens, err := tokenizeMarker(expression)
	if err != nil {
		return nil, fmt.Errorf("marker %q: %w", expression, err)
	}

	p := &markerParser{tokens: tokens}

	root, err := p.parseOr()
	if err != nil {
		return nil, fmt.Errorf("marker %q: %w", expression, err)
	}

	if !p.done() {
		return nil, fmt.Errorf("marker %q: unexpected %q: %w", expression, p.peek().text, ErrInvalidMarker)
	}

	return &Marker{source: expression, root: root}, nil
}

// Evaluate reports whether the marker holds in env.
func (m *Marker) Evaluate(env Environment) bool {
	if m == nil || m.root == nil {
		return true
	}

	return m.root.evaluate(env)
}

// String returns the expression the marker was compiled from.
func (m *Marker) String() string {
	if m == nil {
		return ""
	}

	return m.source
}

func (n andNode) evaluate(env Environment) bool {
	return n.left.evaluate(env) && n.right.evaluate(env)
}

func (n orNode) evaluate(env Environment) bool {
	return n.left.evaluate(env) || n.right.evaluate(env)
}

func (n compareNode) evaluate(env Environment) bool {
	left, right := n.left.resolve(env), n.right.resolve(env)

	switch n.op {
	case "==":
		return left == right
	case "!=":
		return left != right
	case "in":
		return strings.Contains(right, left)
	case "not in":
		return !strings.Contains(right, left)
	default:
		return false
	}
}

func (o operand) resolve(env Environment) string {
	if o.isVariable {
		return env[o.value]
	}

	return o.value
}

type tokenKind int

const (
	tokenIdentifier tokenKind = iota
	tokenString
	tokenOperator
	tokenOpenParen
	tokenCloseParen
)

type markerToken struct {
	kind tokenKind
	text string
}

var knownVariables = []string{VariableSysPlatform, VariablePlatformTag}

func tokenizeMarker(expression string) ([]markerToken, error) {
	var (
		tokens []markerToken
		i      int
	)

	for i < len(expression) {
		c := expression[i]

		switch {
		case c == ' ' || c == '\t':
			i++
		case c == '(':
			tokens = append(tokens, markerToken{kind: tokenOpenParen, text: "("})
			i++
		case c == ')':
			tokens = append(tokens, markerToken{kind: tokenCloseParen, text: ")"})
			i++
		case c == '"' || c == '\'':
			end := strings.IndexByte(expression[i+1:], c)
			if end < 0 {
				return nil, fmt.Errorf("unterminated string at %d: %w", i, ErrInvalidMarker)
			}

			tokens = append(tokens, markerToken{kind: tokenString, text: expression[i+1 : i+1+end]})
			i += end + 2
		case c == '=' || c == '!':
			if i+1 >= len(expression) || expression[i+1] != '=' {
				return nil, fmt.Errorf("unexpected %q at %d: %w", c, i, ErrInvalidMarker)
			}

			tokens = append(tokens, markerToken{kind: tokenOperator, text: expression[i : i+2]})
			i += 2
		case isIdentifierByte(c):
			start := i
			for i < len(expression) && isIdentifierByte(expression[i]) {
				i++
			}

			word := expression[start:i]
			switch word {
			case "and", "or", "in", "not":
				tokens = append(tokens, markerToken{kind: tokenOperator, text: word})
			default:
				if !slices.Contains(knownVariables, word) {
					return nil, fmt.Errorf("unknown variable %q: %w", word, ErrInvalidMarker)
				}

				tokens = append(tokens, markerToken{kind: tokenIdentifier, text: word})
			}
		default:
			return nil, fmt.Errorf("unexpected %q at %d: %w", c, i, ErrInvalidMarker)
		}
	}

	return tokens, nil
}

func isIdentifierByte(c byte) bool {
	return c == '_' || c == '.' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

type markerParser struct {
	tokens []markerToken
	pos    int
}

func (p *markerParser) done() bool {
	return p.pos >= len(p.tokens)
}

func (p *markerParser) peek() markerToken {
	if p.done() {
		return markerToken{}
	}

	return p.tokens[p.pos]
}

func (p *markerParser) acceptOperator(text string) bool {
	if token := p.peek(); !p.done() && token.kind == tokenOperator && token.text == text {
		p.pos++
		return true
	}

	return false
}

func (p *markerParser) parseOr() (markerNode, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}

	for p.acceptOperator("or") {
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}

		left = orNode{left: left, right: right}
	}

	return left, nil
}

func (p *markerParser) parseAnd() (markerNode, error) {
	left, err := p.parseAtom()
	if err != nil {
		return nil, err
	}

	for p.acceptOperator("and") {
		right, err := p.parseAtom()
		if err != nil {
			return nil, err
		}

		left = andNode{left: left, right: right}
	}

	return left, nil
}

func (p *markerParser) parseAtom() (markerNode, error) {
	if p.done() {
		return nil, fmt.Errorf("unexpected end of expression: %w", ErrInvalidMarker)
	}

	if p.peek().kind == tokenOpenParen {
		p.pos++

		node, err := p.parseOr()
		if err != nil {
			return nil, err
		}

		if p.done() || p.peek().kind != tokenCloseParen {
			return nil, fmt.Errorf("missing closing parenthesis: %w", ErrInvalidMarker)
		}

		p.pos++

		return node, nil
	}

	left, err := p.parseOperand()
	if err != nil {
		return nil, err
	}

	op, err := p.parseComparison()
	if err != nil {
		return nil, err
	}

	right, err := p.parseOperand()
	if err != nil {
		return nil, err
	}

	if !left.isVariable && !right.isVariable {
		return nil, fmt.Errorf("comparison of two literals: %w", ErrInvalidMarker)
	}

	return compareNode{op: op, left: left, right: right}, nil
}

func (p *markerParser) parseOperand() (operand, error) {
	token := p.peek()
	if p.done() {
		return operand{}, fmt.Errorf("expected operand: %w", ErrInvalidMarker)
	}

	switch token.kind {
	case tokenIdentifier:
		p.pos++
		return operand{value: token.text, isVariable: true}, nil
	case tokenString:
		p.pos++
		return operand{value: token.text}, nil
	default:
		return operand{}, fmt.Errorf("expected operand, got %q: %w", token.text, ErrInvalidMarker)
	}
}

func (p *markerParser) parseComparison() (string, error) {
	token := p.peek()
	if p.done() || token.kind != tokenOperator {
		return "", fmt.Errorf("expected comparison operator: %w", ErrInvalidMarker)
	}

	switch token.text {
	case "==", "!=", "in":
		p.pos++
		return token.text, nil
	case "not":
		p.pos++
		if !p.acceptOperator("in") {
			return "", fmt.Errorf("expected \"in\" after \"not\": %w", ErrInvalidMarker)
		}

		return "not in", nil
	default:
		return "", fmt.Errorf("unexpected operator %q: %w", token.text, ErrInvalidMarker)
	}
}
