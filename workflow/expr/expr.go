package expr

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/BaSui01/flowengine/types"
)

// Evaluator evaluates boolean expressions against a variable context.
// Implementations must not mutate vars.
type Evaluator interface {
	Evaluate(expression string, vars map[string]any) (bool, error)
}

// Engine is the default Evaluator. It compiles each distinct expression once
// and caches the result.
//
// Grammar:
//
//	or      = and { "||" and }
//	and     = compare { "&&" compare }
//	compare = unary [ ("=="|"!="|">"|"<"|">="|"<=") unary ]
//	unary   = "!" unary | primary
//	primary = number | string | "true" | "false" | "null" | path | "(" or ")"
//
// Paths use dots to descend into maps and numeric segments to index slices:
// "input.items.0.name".
type Engine struct {
	cache sync.Map // string -> node
}

// New creates an Engine.
func New() *Engine {
	return &Engine{}
}

var _ Evaluator = (*Engine)(nil)

// Evaluate compiles (or reuses) the expression and reports its truthiness.
// An empty expression is false.
func (e *Engine) Evaluate(expression string, vars map[string]any) (bool, error) {
	n, err := e.compile(expression)
	if err != nil {
		return false, err
	}
	if n == nil {
		return false, nil
	}
	return truthy(n.eval(vars)), nil
}

// Compile checks that expression parses.
func (e *Engine) Compile(expression string) error {
	_, err := e.compile(expression)
	return err
}

func (e *Engine) compile(expression string) (node, error) {
	src := strings.TrimSpace(expression)
	if src == "" {
		return nil, nil
	}
	if cached, ok := e.cache.Load(src); ok {
		return cached.(node), nil
	}

	toks, err := lex(src)
	if err != nil {
		return nil, invalid(expression, err)
	}
	p := &parser{toks: toks}
	n, err := p.parseOr()
	if err != nil {
		return nil, invalid(expression, err)
	}
	if t := p.peek(); t.kind != tokEOF {
		return nil, invalid(expression, fmt.Errorf("unexpected %q at position %d", t.text, t.pos))
	}
	e.cache.Store(src, n)
	return n, nil
}

func invalid(expression string, cause error) error {
	return types.Errorf(types.ErrInvalidExpression, "invalid expression %q", expression).WithCause(cause)
}

// --- AST ---

type node interface {
	eval(vars map[string]any) any
}

type literal struct{ value any }

func (l literal) eval(map[string]any) any { return l.value }

type path struct{ segments []string }

func (p path) eval(vars map[string]any) any {
	var cur any = vars
	for _, seg := range p.segments {
		next, ok := descend(cur, seg)
		if !ok {
			return nil
		}
		cur = next
	}
	return cur
}

type not struct{ operand node }

func (n not) eval(vars map[string]any) any { return !truthy(n.operand.eval(vars)) }

type logical struct {
	op          string
	left, right node
}

func (l logical) eval(vars map[string]any) any {
	lv := truthy(l.left.eval(vars))
	if l.op == "&&" {
		return lv && truthy(l.right.eval(vars))
	}
	return lv || truthy(l.right.eval(vars))
}

type comparison struct {
	op          string
	left, right node
}

func (c comparison) eval(vars map[string]any) any {
	return compare(c.left.eval(vars), c.op, c.right.eval(vars))
}

// --- parser ---

type parser struct {
	toks []token
	pos  int
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) advance() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) isOp(text string) bool {
	t := p.peek()
	return t.kind == tokOp && t.text == text
}

func (p *parser) parseOr() (node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.isOp("||") {
		p.advance()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = logical{op: "||", left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (node, error) {
	left, err := p.parseCompare()
	if err != nil {
		return nil, err
	}
	for p.isOp("&&") {
		p.advance()
		right, err := p.parseCompare()
		if err != nil {
			return nil, err
		}
		left = logical{op: "&&", left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseCompare() (node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	t := p.peek()
	if t.kind != tokOp {
		return left, nil
	}
	switch t.text {
	case "==", "!=", ">", "<", ">=", "<=":
		p.advance()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return comparison{op: t.text, left: left, right: right}, nil
	}
	return left, nil
}

func (p *parser) parseUnary() (node, error) {
	if p.isOp("!") {
		p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return not{operand: operand}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (node, error) {
	t := p.advance()
	switch t.kind {
	case tokNumber:
		f, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return nil, fmt.Errorf("bad number %q: %w", t.text, err)
		}
		return literal{value: f}, nil
	case tokString:
		return literal{value: t.text}, nil
	case tokIdent:
		switch t.text {
		case "true":
			return literal{value: true}, nil
		case "false":
			return literal{value: false}, nil
		case "null", "nil", "undefined":
			return literal{value: nil}, nil
		}
		segs := strings.Split(t.text, ".")
		for _, s := range segs {
			if s == "" {
				return nil, fmt.Errorf("empty path segment in %q", t.text)
			}
		}
		return path{segments: segs}, nil
	case tokLParen:
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.peek().kind != tokRParen {
			return nil, fmt.Errorf("expected ')' at position %d", p.peek().pos)
		}
		p.advance()
		return inner, nil
	case tokEOF:
		return nil, fmt.Errorf("unexpected end of expression")
	default:
		return nil, fmt.Errorf("unexpected %q at position %d", t.text, t.pos)
	}
}

// --- values ---

func descend(cur any, seg string) (any, bool) {
	switch c := cur.(type) {
	case map[string]any:
		v, ok := c[seg]
		return v, ok
	case []any:
		i, err := strconv.Atoi(seg)
		if err != nil || i < 0 || i >= len(c) {
			return nil, false
		}
		return c[i], true
	}

	rv := reflect.ValueOf(cur)
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, false
		}
		v := rv.MapIndex(reflect.ValueOf(seg).Convert(rv.Type().Key()))
		if !v.IsValid() {
			return nil, false
		}
		return v.Interface(), true
	case reflect.Slice, reflect.Array:
		i, err := strconv.Atoi(seg)
		if err != nil || i < 0 || i >= rv.Len() {
			return nil, false
		}
		return rv.Index(i).Interface(), true
	}
	return nil, false
}

func truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case string:
		return val != ""
	}
	if f, ok := number(v); ok {
		return f != 0 && !math.IsNaN(f)
	}
	return true
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

// compare applies op to two values. Numbers compare numerically, strings
// lexically; a numeric string compared with a number is converted first.
// Values of unrelated kinds are only ever unequal.
func compare(left any, op string, right any) bool {
	if left == nil || right == nil {
		switch op {
		case "==":
			return left == nil && right == nil
		case "!=":
			return !(left == nil && right == nil)
		default:
			return false
		}
	}

	lf, lnum := number(left)
	rf, rnum := number(right)
	if lnum != rnum {
		if ls, ok := left.(string); ok {
			lf, lnum = parseFloat(ls)
		}
		if rs, ok := right.(string); ok {
			rf, rnum = parseFloat(rs)
		}
	}
	if lnum && rnum {
		return ordered(lf, op, rf)
	}

	ls, lstr := left.(string)
	rs, rstr := right.(string)
	if lstr && rstr {
		return ordered(ls, op, rs)
	}

	lb, lbool := left.(bool)
	rb, rbool := right.(bool)
	if lbool && rbool {
		switch op {
		case "==":
			return lb == rb
		case "!=":
			return lb != rb
		}
		return false
	}

	switch op {
	case "==":
		return reflect.DeepEqual(left, right)
	case "!=":
		return !reflect.DeepEqual(left, right)
	}
	return false
}

func parseFloat(s string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return f, err == nil
}

func ordered[T float64 | string](l T, op string, r T) bool {
	switch op {
	case "==":
		return l == r
	case "!=":
		return l != r
	case ">":
		return l > r
	case "<":
		return l < r
	case ">=":
		return l >= r
	case "<=":
		return l <= r
	}
	return false
}
