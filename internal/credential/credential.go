// Package credential extracts bearer credentials from HTTP requests.
package credential

import (
	"net/http"
	"strings"
)

const (
	AccessCookie  = "accessToken"
	RefreshCookie = "refreshToken"
)

// Source finds a credential on a request. ok is false when the request does
// not carry one in the place the source looks.
type Source interface {
	Extract(r *http.Request) (value string, ok bool)
}

// Cookie reads the credential from the named cookie.
type Cookie string

func (c Cookie) Extract(r *http.Request) (string, bool) {
	ck, err := r.Cookie(string(c))
	if err != nil || ck.Value == "" {
		return "", false
	}
	return ck.Value, true
}

// Bearer reads the credential from an `Authorization: Bearer` header.
type Bearer struct{}

func (Bearer) Extract(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	scheme, v, found := strings.Cut(h, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

// Chain tries each source in order and returns the first hit.
type Chain []Source

func (c Chain) Extract(r *http.Request) (string, bool) {
	for _, s := range c {
		if v, ok := s.Extract(r); ok {
			return v, true
		}
	}
	return "", false
}

// AccessToken looks for an access token in the Authorization header first,
// then in the access cookie.
var AccessToken Source = Chain{Bearer{}, Cookie(AccessCookie)}

// RefreshToken looks for a refresh token in the refresh cookie.
var RefreshToken Source = Cookie(RefreshCookie)
