package main

import (
	"errors"
	"net/http"
)

// Validation failures surfaced by the match store and the messaging
// gate. Handlers map them to HTTP responses with errorResponse; the
// score-degradation cases in the scorer are deliberately not errors.
var (
	// ErrInvalidPair is returned on a self-match attempt.
	ErrInvalidPair = errors.New("cannot match a user with themselves")

	// ErrInvalidStatus is returned for a status string outside
	// pending/accepted/rejected/cancelled.
	ErrInvalidStatus = errors.New("invalid match status")

	// ErrNotFound is returned for an unknown match or user reference.
	ErrNotFound = errors.New("not found")

	// ErrNotAuthorized is returned when the requesting user is not part
	// of the match they are trying to act on.
	ErrNotAuthorized = errors.New("not authorized")
)

// errorResponse translates a store error into an HTTP status plus the
// short error code the frontend matches on.
func errorResponse(err error) (int, string) {
	switch {
	case errors.Is(err, ErrInvalidPair):
		return http.StatusBadRequest, "invalid_pair"
	case errors.Is(err, ErrInvalidStatus):
		return http.StatusBadRequest, "invalid_status"
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, ErrNotAuthorized):
		return http.StatusForbidden, "not_authorized"
	default:
		return http.StatusInternalServerError, "db_error"
	}
}
