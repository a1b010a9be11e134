package query

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/atinyakov/practiceserver/internal/models"
)

// Predicate reports whether a record satisfies a where expression.
type Predicate func(models.Record) bool

var (
	// ErrMixedConnectives is returned for expressions using both and and or.
	ErrMixedConnectives = errors.New("mixing 'and' with 'or' is not supported")
	// ErrNoOperator is returned for a clause without a recognised operator.
	ErrNoOperator = errors.New("expected <field><operator><value>")

	andPattern = regexp.MustCompile(`(?i) and `)
	orPattern  = regexp.MustCompile(`(?i) or `)
)

// ClauseError names the part of a query that could not be parsed.
type ClauseError struct {
	Param  string
	Clause string
	Err    error
}

func (e *ClauseError) Error() string {
	return fmt.Sprintf("invalid %s clause %q: %v", e.Param, e.Clause, e.Err)
}

func (e *ClauseError) Unwrap() error {
	return e.Err
}

type operator struct {
	token string
	build func(field string, value any) (Predicate, error)
}

// Checked in this order at every position, so longer tokens win.
var operators = []operator{
	{"<=", compareWith(func(c int) bool { return c <= 0 })},
	{"<", compareWith(func(c int) bool { return c < 0 })},
	{">=", compareWith(func(c int) bool { return c >= 0 })},
	{">", compareWith(func(c int) bool { return c > 0 })},
	{"=", equals},
	{" like ", like},
	{" in ", in},
}

// ParseWhere compiles a where expression. An expression joins clauses with a
// single connective: all " and " or all " or ".
func ParseWhere(expr string) (Predicate, error) {
	expr = strings.TrimSpace(expr)
	hasAnd := andPattern.MatchString(expr)
	hasOr := orPattern.MatchString(expr)

	var clauses []string
	all := true
	switch {
	case hasAnd && hasOr:
		return nil, &ClauseError{Param: "where", Clause: expr, Err: ErrMixedConnectives}
	case hasAnd:
		clauses = andPattern.Split(expr, -1)
	case hasOr:
		clauses = orPattern.Split(expr, -1)
		all = false
	default:
		clauses = []string{expr}
	}

	checks := make([]Predicate, 0, len(clauses))
	for _, c := range clauses {
		p, err := parseClause(c)
		if err != nil {
			return nil, &ClauseError{Param: "where", Clause: strings.TrimSpace(c), Err: err}
		}
		checks = append(checks, p)
	}

	return func(rec models.Record) bool {
		for _, check := range checks {
			ok := check(rec)
			if all && !ok {
				return false
			}
			if !all && ok {
				return true
			}
		}
		return all
	}, nil
}

func parseClause(clause string) (Predicate, error) {
	// The field needs at least one character.
	for i := 1; i < len(clause); i++ {
		for _, op := range operators {
			end := i + len(op.token)
			if end > len(clause) || !strings.EqualFold(clause[i:end], op.token) {
				continue
			}
			field := strings.TrimSpace(clause[:i])
			raw := strings.TrimSpace(clause[end:])
			if field == "" || raw == "" {
				continue
			}
			if op.token == " in " {
				raw = bracketList(raw)
			}
			var value any
			if err := json.Unmarshal([]byte(raw), &value); err != nil {
				return nil, fmt.Errorf("value %s is not a JSON literal: %w", raw, err)
			}
			return op.build(field, value)
		}
	}
	return nil, ErrNoOperator
}

// bracketList turns the parenthesised form ("a","b") into a JSON array.
func bracketList(raw string) string {
	if strings.HasPrefix(raw, "(") && strings.HasSuffix(raw, ")") {
		return "[" + raw[1:len(raw)-1] + "]"
	}
	return raw
}

func compareWith(accept func(int) bool) func(string, any) (Predicate, error) {
	return func(field string, value any) (Predicate, error) {
		return func(rec models.Record) bool {
			c, ok := models.Compare(rec[field], value)
			return ok && accept(c)
		}, nil
	}
}

func equals(field string, value any) (Predicate, error) {
	return func(rec models.Record) bool {
		return models.LooseEqual(rec[field], value)
	}, nil
}

func like(field string, value any) (Predicate, error) {
	needle, ok := value.(string)
	if !ok {
		return nil, errors.New("like expects a string")
	}
	needle = strings.ToLower(needle)
	return func(rec models.Record) bool {
		s, ok := rec[field].(string)
		return ok && strings.Contains(strings.ToLower(s), needle)
	}, nil
}

func in(field string, value any) (Predicate, error) {
	list, ok := value.([]any)
	if !ok {
		return nil, errors.New("in expects a list")
	}
	return func(rec models.Record) bool {
		v, ok := rec[field]
		if !ok {
			return false
		}
		for _, item := range list {
			if strictEqual(v, item) {
				return true
			}
		}
		return false
	}, nil
}

// strictEqual matches values of the same kind only.
func strictEqual(a, b any) bool {
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case nil:
		return b == nil
	}
	if _, ok := b.(string); ok {
		return false
	}
	if _, ok := b.(bool); ok {
		return false
	}
	an, aok := models.ToNumber(a)
	bn, bok := models.ToNumber(b)
	return aok && bok && an == bn
}
