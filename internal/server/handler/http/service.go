// Package http provides the HTTP surface of the server: the router, the
// dispatcher that maps /<service>/<tokens...> onto service action tables and
// the response encoding.
package http

import (
	"context"
	"net/http"

	"github.com/atinyakov/practiceserver/internal/service"
)

// HandlerFunc handles one service action. A nil result is sent as 204.
type HandlerFunc func(ctx context.Context, sc *service.Scope) (any, error)

// MatchKind selects how a pattern compares to the first path token.
type MatchKind int

const (
	// MatchExact matches a token equal to the pattern value.
	MatchExact MatchKind = iota
	// MatchParam matches any token, including a missing one, and binds it.
	MatchParam
	// MatchWildcard matches anything.
	MatchWildcard
)

// Pattern is the first-token matcher of an action.
type Pattern struct {
	Kind  MatchKind
	Value string
}

// Exact matches the literal token name.
func Exact(name string) Pattern { return Pattern{Kind: MatchExact, Value: name} }

// Param binds the token to the parameter name.
func Param(name string) Pattern { return Pattern{Kind: MatchParam, Value: name} }

// Wildcard matches any token.
func Wildcard() Pattern { return Pattern{Kind: MatchWildcard} }

func (p Pattern) match(token string, present bool, params map[string]string) bool {
	switch p.Kind {
	case MatchWildcard:
		return true
	case MatchParam:
		params[p.Value] = token
		return true
	default:
		return present && token == p.Value
	}
}

type action struct {
	method  string
	pattern Pattern
	handler HandlerFunc
}

// Service is an ordered action table. The first action whose method and
// pattern match handles the request.
type Service struct {
	actions []action
}

// NewService returns an empty action table.
func NewService() *Service {
	return &Service{}
}

// Register appends an action.
func (s *Service) Register(method string, p Pattern, h HandlerFunc) *Service {
	s.actions = append(s.actions, action{method: method, pattern: p, handler: h})
	return s
}

// Get registers a GET action.
func (s *Service) Get(p Pattern, h HandlerFunc) *Service { return s.Register(http.MethodGet, p, h) }

// Post registers a POST action.
func (s *Service) Post(p Pattern, h HandlerFunc) *Service { return s.Register(http.MethodPost, p, h) }

// Put registers a PUT action.
func (s *Service) Put(p Pattern, h HandlerFunc) *Service { return s.Register(http.MethodPut, p, h) }

// Patch registers a PATCH action.
func (s *Service) Patch(p Pattern, h HandlerFunc) *Service { return s.Register(http.MethodPatch, p, h) }

// Delete registers a DELETE action.
func (s *Service) Delete(p Pattern, h HandlerFunc) *Service { return s.Register(http.MethodDelete, p, h) }

// Lookup finds the action for method and tokens. It returns the handler, the
// parameters bound by the pattern and the tokens that follow the matched one.
func (s *Service) Lookup(method string, tokens []string) (HandlerFunc, map[string]string, []string, bool) {
	first, present := "", len(tokens) > 0
	rest := []string{}
	if present {
		first, rest = tokens[0], tokens[1:]
	}
	for _, a := range s.actions {
		if a.method != method {
			continue
		}
		params := map[string]string{}
		if a.pattern.match(first, present, params) {
			return a.handler, params, rest, true
		}
	}
	return nil, nil, nil, false
}
