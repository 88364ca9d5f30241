// Package apperr holds the error taxonomy shared by every auth component and
// its classification into client-facing status codes.
package apperr

import (
	"errors"
	"net/http"
)

var (
	// credential and registration errors
	ErrAlreadyExists      = errors.New("already exists")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrMissingPassword    = errors.New("password is required")
	ErrValidation         = errors.New("validation error")

	// entity and link errors
	ErrNotFound        = errors.New("not found")
	ErrExpired         = errors.New("link has expired")
	ErrSamePassword    = errors.New("new password matches the current one")
	ErrAlreadyVerified = errors.New("email is already verified")

	// token errors
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
	ErrForbidden    = errors.New("forbidden")

	// upstream errors
	ErrProviderError = errors.New("identity provider error")
	ErrNotifier      = errors.New("notifier error")

	ErrUnexpected = errors.New("unexpected error")
)

type class struct {
	status int
	code   string
}

// Ordered so that the most specific kind wins when an error wraps several.
var classes = []struct {
	err error
	class
}{
	{ErrAlreadyExists, class{http.StatusBadRequest, "ALREADY_EXISTS"}},
	{ErrInvalidCredentials, class{http.StatusBadRequest, "INVALID_CREDENTIALS"}},
	{ErrMissingPassword, class{http.StatusBadRequest, "MISSING_PASSWORD"}},
	{ErrValidation, class{http.StatusBadRequest, "INVALID_REQUEST"}},
	{ErrExpired, class{http.StatusBadRequest, "LINK_EXPIRED"}},
	{ErrSamePassword, class{http.StatusBadRequest, "SAME_PASSWORD"}},
	{ErrAlreadyVerified, class{http.StatusBadRequest, "ALREADY_VERIFIED"}},
	{ErrNotFound, class{http.StatusNotFound, "NOT_FOUND"}},
	{ErrTokenExpired, class{http.StatusUnauthorized, "TOKEN_EXPIRED"}},
	{ErrInvalidToken, class{http.StatusUnauthorized, "INVALID_TOKEN"}},
	{ErrForbidden, class{http.StatusForbidden, "FORBIDDEN"}},
	{ErrProviderError, class{http.StatusBadGateway, "PROVIDER_ERROR"}},
	{ErrNotifier, class{http.StatusBadGateway, "NOTIFIER_ERROR"}},
}

func classify(err error) class {
	for _, c := range classes {
		if errors.Is(err, c.err) {
			return c.class
		}
	}
	return class{http.StatusInternalServerError, "INTERNAL_ERROR"}
}

// Status returns the HTTP status equivalent for err.
func Status(err error) int { return classify(err).status }

// Code returns the stable machine-readable code for err.
func Code(err error) string { return classify(err).code }

// Message returns the stable client-visible message for err. Unexpected
// failures never leak their text here.
func Message(err error) string {
	for _, c := range classes {
		if errors.Is(err, c.err) {
			return c.err.Error()
		}
	}
	return "internal server error"
}

// IsExpected reports whether err belongs to the taxonomy above, i.e. it is
// a recoverable client or upstream condition rather than an internal fault.
func IsExpected(err error) bool {
	return classify(err).status != http.StatusInternalServerError
}
