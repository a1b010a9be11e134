package rules

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/atinyakov/practiceserver/internal/models"
)

// Env is the evaluation scope of an expression.
type Env struct {
	User    models.Record
	Data    models.Record
	NewData models.Record
	// Get resolves get(collection, id). A nil Get or a missing record yields null.
	Get func(collection, id string) (models.Record, bool)
}

// Expr is a compiled rule expression. It is safe for concurrent use.
type Expr struct {
	source string
	root   node
}

// String returns the source text.
func (e *Expr) String() string { return e.source }

// Eval evaluates the expression to a boolean using JavaScript truthiness.
func (e *Expr) Eval(env Env) bool {
	return models.Truthy(e.root.eval(&env))
}

type node interface {
	eval(env *Env) any
}

type literal struct{ value any }

func (n literal) eval(*Env) any { return n.value }

type path struct {
	root   string
	fields []string
}

func (n path) eval(env *Env) any {
	var cur any
	switch n.root {
	case "user":
		cur = recordValue(env.User)
	case "data":
		cur = recordValue(env.Data)
	case "newData":
		cur = recordValue(env.NewData)
	}
	for _, f := range n.fields {
		rec, ok := models.AsRecord(cur)
		if !ok {
			return nil
		}
		cur = rec[f]
	}
	return cur
}

func recordValue(r models.Record) any {
	if r == nil {
		return nil
	}
	return r
}

type not struct{ operand node }

func (n not) eval(env *Env) any { return !models.Truthy(n.operand.eval(env)) }

type logical struct {
	and         bool
	left, right node
}

func (n logical) eval(env *Env) any {
	l := models.Truthy(n.left.eval(env))
	if n.and {
		return l && models.Truthy(n.right.eval(env))
	}
	return l || models.Truthy(n.right.eval(env))
}

type comparison struct {
	op          string
	left, right node
}

func (n comparison) eval(env *Env) any {
	a, b := n.left.eval(env), n.right.eval(env)
	switch n.op {
	case "=", "==":
		return models.LooseEqual(a, b)
	case "!=":
		return !models.LooseEqual(a, b)
	case "===":
		return strictEqual(a, b)
	case "!==":
		return !strictEqual(a, b)
	}
	c, ok := models.Compare(a, b)
	if !ok {
		return false
	}
	switch n.op {
	case "<":
		return c < 0
	case "<=":
		return c <= 0
	case ">":
		return c > 0
	default:
		return c >= 0
	}
}

func strictEqual(a, b any) bool {
	switch av := a.(type) {
	case nil:
		return b == nil
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	}
	switch b.(type) {
	case nil, string, bool:
		return false
	}
	an, aok := models.ToNumber(a)
	bn, bok := models.ToNumber(b)
	return aok && bok && an == bn
}

type isOwnerCall struct{ user, record node }

func (n isOwnerCall) eval(env *Env) any {
	user, ok := models.AsRecord(n.user.eval(env))
	if !ok {
		return false
	}
	rec, ok := models.AsRecord(n.record.eval(env))
	if !ok {
		return false
	}
	id := user.ID()
	return id != "" && id == rec.OwnerID()
}

type getCall struct{ collection, id node }

func (n getCall) eval(env *Env) any {
	if env.Get == nil {
		return nil
	}
	collection, ok := n.collection.eval(env).(string)
	if !ok {
		return nil
	}
	id, ok := n.id.eval(env).(string)
	if !ok {
		return nil
	}
	rec, found := env.Get(collection, id)
	if !found {
		return nil
	}
	return rec
}

// Compile parses an expression over user, data and newData. Supported are
// literals, dotted paths, comparisons (= == === != !== < <= > >=), && || !,
// parentheses and the functions isOwner(user, record) and get(collection, id).
func Compile(source string) (*Expr, error) {
	toks, err := lex(source)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	root, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != tokEOF {
		return nil, fmt.Errorf("unexpected %q at offset %d", t.text, t.pos)
	}
	return &Expr{source: source, root: root}, nil
}

type tokKind int

const (
	tokEOF tokKind = iota
	tokIdent
	tokString
	tokNumber
	tokOp
	tokPunct
)

type token struct {
	kind tokKind
	text string
	pos  int
}

var multiOps = []string{"===", "!==", "==", "!=", "<=", ">=", "&&", "||"}

func lex(src string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(src) {
		c := rune(src[i])
		switch {
		case unicode.IsSpace(c):
			i++
		case c == '\'' || c == '"':
			j := i + 1
			var sb strings.Builder
			for j < len(src) && rune(src[j]) != c {
				if src[j] == '\\' && j+1 < len(src) {
					j++
				}
				sb.WriteByte(src[j])
				j++
			}
			if j >= len(src) {
				return nil, fmt.Errorf("unterminated string at offset %d", i)
			}
			toks = append(toks, token{tokString, sb.String(), i})
			i = j + 1
		case unicode.IsDigit(c) || (c == '-' && i+1 < len(src) && unicode.IsDigit(rune(src[i+1]))):
			j := i + 1
			for j < len(src) && (unicode.IsDigit(rune(src[j])) || src[j] == '.') {
				j++
			}
			toks = append(toks, token{tokNumber, src[i:j], i})
			i = j
		case unicode.IsLetter(c) || c == '_' || c == '$':
			j := i + 1
			for j < len(src) && (unicode.IsLetter(rune(src[j])) || unicode.IsDigit(rune(src[j])) || src[j] == '_' || src[j] == '$') {
				j++
			}
			toks = append(toks, token{tokIdent, src[i:j], i})
			i = j
		case strings.ContainsRune("().,[]", c):
			toks = append(toks, token{tokPunct, string(c), i})
			i++
		default:
			op := ""
			for _, m := range multiOps {
				if strings.HasPrefix(src[i:], m) {
					op = m
					break
				}
			}
			if op == "" && strings.ContainsRune("=<>!", c) {
				op = string(c)
			}
			if op == "" {
				return nil, fmt.Errorf("unexpected character %q at offset %d", c, i)
			}
			toks = append(toks, token{tokOp, op, i})
			i += len(op)
		}
	}
	return append(toks, token{kind: tokEOF, pos: len(src)}), nil
}

type parser struct {
	toks []token
	pos  int
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) expect(kind tokKind, text string) error {
	t := p.next()
	if t.kind != kind || t.text != text {
		return fmt.Errorf("expected %q at offset %d", text, t.pos)
	}
	return nil
}

func (p *parser) parseOr() (node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokOp && p.peek().text == "||" {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = logical{and: false, left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokOp && p.peek().text == "&&" {
		p.next()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = logical{and: true, left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseUnary() (node, error) {
	if t := p.peek(); t.kind == tokOp && t.text == "!" {
		p.next()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return not{operand: operand}, nil
	}
	return p.parseComparison()
}

func (p *parser) parseComparison() (node, error) {
	left, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	t := p.peek()
	if t.kind != tokOp || t.text == "&&" || t.text == "||" || t.text == "!" {
		return left, nil
	}
	p.next()
	right, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	return comparison{op: t.text, left: left, right: right}, nil
}

func (p *parser) parsePrimary() (node, error) {
	t := p.next()
	switch t.kind {
	case tokString:
		return literal{t.text}, nil
	case tokNumber:
		f, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return nil, fmt.Errorf("bad number %q at offset %d", t.text, t.pos)
		}
		return literal{f}, nil
	case tokPunct:
		if t.text != "(" {
			break
		}
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if err := p.expect(tokPunct, ")"); err != nil {
			return nil, err
		}
		return inner, nil
	case tokIdent:
		return p.parseIdent(t)
	case tokEOF:
		return nil, errors.New("unexpected end of expression")
	}
	return nil, fmt.Errorf("unexpected %q at offset %d", t.text, t.pos)
}

func (p *parser) parseIdent(t token) (node, error) {
	switch t.text {
	case "true":
		return literal{true}, nil
	case "false":
		return literal{false}, nil
	case "null", "undefined":
		return literal{nil}, nil
	case "user", "data", "newData":
		return p.parsePath(t.text)
	case "isOwner", "get":
		args, err := p.parseArgs(2)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", t.text, err)
		}
		if t.text == "isOwner" {
			return isOwnerCall{user: args[0], record: args[1]}, nil
		}
		return getCall{collection: args[0], id: args[1]}, nil
	}
	return nil, fmt.Errorf("unknown identifier %q at offset %d", t.text, t.pos)
}

func (p *parser) parsePath(root string) (node, error) {
	n := path{root: root}
	for {
		t := p.peek()
		if t.kind != tokPunct || (t.text != "." && t.text != "[") {
			return n, nil
		}
		p.next()
		if t.text == "." {
			f := p.next()
			if f.kind != tokIdent {
				return nil, fmt.Errorf("expected field name at offset %d", f.pos)
			}
			n.fields = append(n.fields, f.text)
			continue
		}
		f := p.next()
		if f.kind != tokString && f.kind != tokNumber {
			return nil, fmt.Errorf("expected field key at offset %d", f.pos)
		}
		n.fields = append(n.fields, f.text)
		if err := p.expect(tokPunct, "]"); err != nil {
			return nil, err
		}
	}
}

func (p *parser) parseArgs(n int) ([]node, error) {
	if err := p.expect(tokPunct, "("); err != nil {
		return nil, err
	}
	args := make([]node, 0, n)
	for i := 0; i < n; i++ {
		if i > 0 {
			if err := p.expect(tokPunct, ","); err != nil {
				return nil, err
			}
		}
		arg, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
	}
	if err := p.expect(tokPunct, ")"); err != nil {
		return nil, fmt.Errorf("expected %d arguments: %w", n, err)
	}
	return args, nil
}
