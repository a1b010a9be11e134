// Package service implements the request-level operations of the server:
// authentication, collection CRUD and the utility toggles. Services receive
// a Scope assembled by the HTTP dispatcher and return plain values or
// *apierror.Error values.
package service

import (
	"net/url"

	"github.com/atinyakov/practiceserver/internal/models"
	"github.com/atinyakov/practiceserver/internal/rules"
)

// Scope is the per-request execution context.
type Scope struct {
	// Method is the HTTP method of the request.
	Method string
	// Params holds values bound by parameter patterns, e.g. "collection".
	Params map[string]string
	// Tokens are the path segments after the matched action segment.
	Tokens []string
	// Query is the parsed query string.
	Query url.Values
	// Body is the decoded JSON body, the raw string when it is not JSON, or nil.
	Body any
	// User is the authenticated user or nil.
	User models.Record
	// Admin is set by the admin override header.
	Admin bool
}

// Principal returns the caller for access checks.
func (s *Scope) Principal() rules.Principal {
	return rules.Principal{User: s.User, Admin: s.Admin}
}

// Param returns a bound parameter or an empty string.
func (s *Scope) Param(name string) string {
	return s.Params[name]
}

// BodyRecord returns the body as a record.
func (s *Scope) BodyRecord() (models.Record, bool) {
	rec, ok := models.AsRecord(s.Body)
	if !ok {
		return nil, false
	}
	return rec.Clone(), true
}
