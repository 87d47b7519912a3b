// Package apperr carries business-rule failures from services to the
// HTTP boundary. Anything that is not an *Error is an infrastructure
// fault.
package apperr

import (
	"encoding/json"
	"errors"
	"net/http"
)

type Kind int

const (
	NotFound Kind = iota + 1
	PermissionDenied
	InvalidState
	Validation
)

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "not_found"
	case PermissionDenied:
		return "permission_denied"
	case InvalidState:
		return "invalid_state"
	case Validation:
		return "validation_error"
	}
	return "unknown"
}

// Error is an expected failure with a human readable reason.
type Error struct {
	Kind   Kind
	Reason string
}

func (e *Error) Error() string {
	return e.Reason
}

func New(kind Kind, reason string) *Error {
	return &Error{Kind: kind, Reason: reason}
}

func NewNotFound(reason string) *Error   { return New(NotFound, reason) }
func NewForbidden(reason string) *Error  { return New(PermissionDenied, reason) }
func NewConflict(reason string) *Error   { return New(InvalidState, reason) }
func NewValidation(reason string) *Error { return New(Validation, reason) }

// As unwraps err into an *Error.
func As(err error) (*Error, bool) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// IsKind reports whether err is a business failure of the given kind.
func IsKind(err error, kind Kind) bool {
	ae, ok := As(err)
	return ok && ae.Kind == kind
}

// Status maps a kind to its HTTP status code.
func Status(kind Kind) int {
	switch kind {
	case NotFound:
		return http.StatusNotFound
	case PermissionDenied:
		return http.StatusForbidden
	case InvalidState:
		return http.StatusConflict
	case Validation:
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func WriteError(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, map[string]string{"error": msg})
}
