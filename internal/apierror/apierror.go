// Package apierror defines the service error taxonomy. Every error that is
// meant to reach a client carries an HTTP status and a message; anything else
// is treated as an internal defect by the HTTP layer.
package apierror

import (
	"encoding/json"
	"errors"
	"net/http"
)

// Error is a client-facing service error.
type Error struct {
	// Status is the HTTP status code sent to the client.
	Status int
	// Message is the human readable reason.
	Message string
	// Err is the optional underlying cause. It is never serialized.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

func newError(status int, fallback string, message []string) *Error {
	msg := fallback
	if len(message) > 0 && message[0] != "" {
		msg = message[0]
	}
	return &Error{Status: status, Message: msg}
}

// NotFound reports a missing collection or record (404).
func NotFound(message ...string) *Error {
	return newError(http.StatusNotFound, "Resource not found", message)
}

// Request reports a malformed or invalid request (400).
func Request(message ...string) *Error {
	return newError(http.StatusBadRequest, "Request error", message)
}

// Conflict reports a uniqueness violation (409).
func Conflict(message ...string) *Error {
	return newError(http.StatusConflict, "Resource conflict", message)
}

// Authorization reports missing credentials where they are required (401).
func Authorization(message ...string) *Error {
	return newError(http.StatusUnauthorized, "Unauthorized", message)
}

// Credential reports wrong credentials or a forbidden action (403).
func Credential(message ...string) *Error {
	return newError(http.StatusForbidden, "Forbidden", message)
}

// Wrap attaches cause to e and returns e.
func (e *Error) Wrap(cause error) *Error {
	e.Err = cause
	return e
}

// As extracts a service error from err's chain.
func As(err error) (*Error, bool) {
	var target *Error
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// StatusOf returns the HTTP status of err, or 500 when err is not a service error.
func StatusOf(err error) int {
	if e, ok := As(err); ok {
		return e.Status
	}
	return http.StatusInternalServerError
}

// Body is the JSON shape of an error response.
type Body struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Write sends err as a JSON error body. Errors that are not service errors
// are reported as a generic 500 without detail.
func Write(w http.ResponseWriter, err error) {
	body := Body{Code: http.StatusInternalServerError, Message: "Server Error"}
	if e, ok := As(err); ok {
		body = Body{Code: e.Status, Message: e.Message}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(body.Code)
	_ = json.NewEncoder(w).Encode(body)
}
