// Package rules implements the declarative access-control rule set: loading
// from YAML or JSON, compiling string expressions and evaluating a request
// against the rules of a collection, a record and its properties.
package rules

import (
	_ "embed"
	"fmt"
	"net/http"
	"os"
	"strings"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

//go:embed defaults/rules.yaml
var defaultRules []byte

// Action is a rule key derived from the HTTP method.
type Action string

const (
	ActionRead   Action = ".read"
	ActionCreate Action = ".create"
	ActionUpdate Action = ".update"
	ActionDelete Action = ".delete"
)

// Wildcard names the fallback collection and the property-rule node.
const Wildcard = "*"

// ActionForMethod maps an HTTP method to its action.
func ActionForMethod(method string) (Action, bool) {
	switch method {
	case http.MethodGet:
		return ActionRead, true
	case http.MethodPost:
		return ActionCreate, true
	case http.MethodPut, http.MethodPatch:
		return ActionUpdate, true
	case http.MethodDelete:
		return ActionDelete, true
	}
	return "", false
}

// Role names accepted in role lists.
const (
	RoleGuest = "Guest"
	RoleUser  = "User"
	RoleOwner = "Owner"
)

type ruleKind int

const (
	kindUnset ruleKind = iota
	kindBool
	kindRoles
	kindExpr
)

// Rule is a boolean, a role list or a compiled expression. The zero Rule is
// unset and never overrides a less specific rule.
type Rule struct {
	kind  ruleKind
	allow bool
	roles []string
	expr  *Expr
}

// Allow returns a constant rule.
func Allow(v bool) Rule { return Rule{kind: kindBool, allow: v} }

// Roles returns a role-list rule. An empty list is unset.
func Roles(roles ...string) Rule {
	if len(roles) == 0 {
		return Rule{}
	}
	return Rule{kind: kindRoles, roles: roles}
}

// Expression compiles source into a rule. An empty source is unset.
func Expression(source string) (Rule, error) {
	if strings.TrimSpace(source) == "" {
		return Rule{}, nil
	}
	e, err := Compile(source)
	if err != nil {
		return Rule{}, err
	}
	return Rule{kind: kindExpr, expr: e}, nil
}

// IsSet reports whether the rule overrides a less specific one.
func (r Rule) IsSet() bool { return r.kind != kindUnset }

func (r Rule) or(fallback Rule) Rule {
	if r.IsSet() {
		return r
	}
	return fallback
}

// PropertyRule pairs a property name with its rule for one action.
type PropertyRule struct {
	Property string
	Rule     Rule
}

// Node holds the action rules and property rules of a collection wildcard
// node or a record node.
type Node struct {
	Actions    map[Action]Rule
	Properties []PropertyRules
}

// PropertyRules are the per-action rules of one property.
type PropertyRules struct {
	Property string
	Actions  map[Action]Rule
}

func (n *Node) propertyRules(action Action) []PropertyRule {
	if n == nil {
		return nil
	}
	var out []PropertyRule
	for _, p := range n.Properties {
		if r, ok := p.Actions[action]; ok && r.IsSet() {
			out = append(out, PropertyRule{Property: p.Property, Rule: r})
		}
	}
	return out
}

// Collection holds the rules of one collection.
type Collection struct {
	Actions    map[Action]Rule
	Properties *Node
	Records    map[string]*Node
}

// Set is a complete rule set keyed by collection name. The Wildcard entry
// supplies default action rules.
type Set struct {
	Collections map[string]*Collection
}

// Resolved is the outcome of rule resolution for one request.
type Resolved struct {
	Gate       Rule
	Properties []PropertyRule
}

// Resolve walks wildcard, collection and record rules for action. recordID
// may be empty.
func (s *Set) Resolve(action Action, collection, recordID string) Resolved {
	res := Resolved{Gate: Allow(true)}
	if w, ok := s.Collections[Wildcard]; ok {
		res.Gate = w.Actions[action].or(res.Gate)
	}
	c, ok := s.Collections[collection]
	if !ok || collection == Wildcard {
		return res
	}
	res.Gate = c.Actions[action].or(res.Gate)
	if props := c.Properties.propertyRules(action); len(props) > 0 {
		res.Properties = props
	}
	if recordID == "" {
		return res
	}
	if rec, ok := c.Records[recordID]; ok {
		res.Gate = rec.Actions[action].or(res.Gate)
		if props := rec.propertyRules(action); len(props) > 0 {
			res.Properties = props
		}
	}
	return res
}

// Merge overlays other onto s. Wildcard actions are merged one by one, every
// other collection in other replaces the one in s. Parse only accepts
// action rules under the wildcard collection.
func (s *Set) Merge(other *Set) {
	if other == nil {
		return
	}
	if s.Collections == nil {
		s.Collections = map[string]*Collection{}
	}
	for name, c := range other.Collections {
		existing, ok := s.Collections[name]
		if name != Wildcard || !ok {
			s.Collections[name] = c
			continue
		}
		for a, r := range c.Actions {
			existing.Actions[a] = r
		}
	}
}

// Defaults returns the built-in rule set.
func Defaults() *Set {
	s, err := Parse(defaultRules)
	if err != nil {
		panic(fmt.Sprintf("rules: embedded defaults: %v", err))
	}
	return s
}

// LoadFile reads a YAML or JSON rule file and merges it over the defaults.
// An empty path returns the defaults.
func LoadFile(path string) (*Set, error) {
	set := Defaults()
	if path == "" {
		return set, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules %s: %w", path, err)
	}
	custom, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse rules %s: %w", path, err)
	}
	set.Merge(custom)
	return set, nil
}

// Parse decodes a rule document. All invalid rules are reported together.
func Parse(data []byte) (*Set, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	set := &Set{Collections: map[string]*Collection{}}
	if len(doc.Content) == 0 {
		return set, nil
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("line %d: rules must be a mapping", root.Line)
	}

	var errs error
	eachPair(root, func(name string, value *yaml.Node) {
		c, err := parseCollection(name, value)
		errs = multierr.Append(errs, err)
		if c != nil {
			set.Collections[name] = c
		}
	})
	if errs != nil {
		return nil, errs
	}
	return set, nil
}

func eachPair(m *yaml.Node, fn func(key string, value *yaml.Node)) {
	for i := 0; i+1 < len(m.Content); i += 2 {
		fn(m.Content[i].Value, m.Content[i+1])
	}
}

func parseCollection(name string, value *yaml.Node) (*Collection, error) {
	if value.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%s (line %d): expected a mapping", name, value.Line)
	}
	c := &Collection{Actions: map[Action]Rule{}, Records: map[string]*Node{}}
	var errs error
	eachPair(value, func(key string, v *yaml.Node) {
		where := name + "." + strings.TrimPrefix(key, ".")
		switch {
		case name == Wildcard && !strings.HasPrefix(key, "."):
			errs = multierr.Append(errs, fmt.Errorf("%s (line %d): only action rules are allowed under %q", where, v.Line, Wildcard))
		case strings.HasPrefix(key, "."):
			r, err := parseRule(where, v)
			errs = multierr.Append(errs, err)
			c.Actions[Action(key)] = r
		case key == Wildcard:
			n, err := parseNode(name+".*", v, false)
			errs = multierr.Append(errs, err)
			c.Properties = n
		default:
			n, err := parseNode(where, v, true)
			errs = multierr.Append(errs, err)
			c.Records[key] = n
		}
	})
	return c, errs
}

// parseNode reads property rules and, for record nodes, action rules.
func parseNode(where string, value *yaml.Node, withActions bool) (*Node, error) {
	if value.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%s (line %d): expected a mapping", where, value.Line)
	}
	n := &Node{Actions: map[Action]Rule{}}
	var errs error
	eachPair(value, func(key string, v *yaml.Node) {
		if strings.HasPrefix(key, ".") {
			if !withActions {
				return
			}
			r, err := parseRule(where+key, v)
			errs = multierr.Append(errs, err)
			n.Actions[Action(key)] = r
			return
		}
		if v.Kind != yaml.MappingNode {
			errs = multierr.Append(errs, fmt.Errorf("%s.%s (line %d): expected a mapping", where, key, v.Line))
			return
		}
		prop := PropertyRules{Property: key, Actions: map[Action]Rule{}}
		eachPair(v, func(action string, rv *yaml.Node) {
			r, err := parseRule(where+"."+key+action, rv)
			errs = multierr.Append(errs, err)
			prop.Actions[Action(action)] = r
		})
		n.Properties = append(n.Properties, prop)
	})
	return n, errs
}

func parseRule(where string, v *yaml.Node) (Rule, error) {
	switch v.Kind {
	case yaml.ScalarNode:
		switch v.Tag {
		case "!!bool":
			var b bool
			if err := v.Decode(&b); err != nil {
				return Rule{}, fmt.Errorf("%s (line %d): %w", where, v.Line, err)
			}
			return Allow(b), nil
		case "!!null":
			return Rule{}, nil
		case "!!str":
			r, err := Expression(v.Value)
			if err != nil {
				return Rule{}, fmt.Errorf("%s (line %d): %w", where, v.Line, err)
			}
			return r, nil
		}
	case yaml.SequenceNode:
		var roles []string
		if err := v.Decode(&roles); err != nil {
			return Rule{}, fmt.Errorf("%s (line %d): %w", where, v.Line, err)
		}
		for _, role := range roles {
			switch role {
			case RoleGuest, RoleUser, RoleOwner:
			default:
				return Rule{}, fmt.Errorf("%s (line %d): unknown role %q", where, v.Line, role)
			}
		}
		return Roles(roles...), nil
	}
	return Rule{}, fmt.Errorf("%s (line %d): expected a boolean, a role list or an expression", where, v.Line)
}
