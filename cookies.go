package main

import (
	"net/http"
	"time"

	"github.com/example/authcore/internal/credential"
	"github.com/example/authcore/internal/token"
)

// setSessionCookies stores the pair in HttpOnly cookies. Without persist the
// cookies carry no Max-Age and end with the browser session.
func (a *App) setSessionCookies(w http.ResponseWriter, pair token.Pair, persist bool) {
	http.SetCookie(w, a.cookie(credential.AccessCookie, pair.AccessToken, a.Auth.AccessTTL(), persist))
	http.SetCookie(w, a.cookie(credential.RefreshCookie, pair.RefreshToken, a.Auth.RefreshTTL(), persist))
}

func (a *App) clearSessionCookies(w http.ResponseWriter) {
	for _, name := range []string{credential.AccessCookie, credential.RefreshCookie} {
		c := a.cookie(name, "", 0, false)
		c.MaxAge = -1
		c.Expires = time.Unix(0, 0)
		http.SetCookie(w, c)
	}
}

func (a *App) cookie(name, value string, ttl time.Duration, persist bool) *http.Cookie {
	c := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   a.Cfg.IsProduction(),
		SameSite: http.SameSiteLaxMode,
	}
	if persist {
		c.MaxAge = int(ttl.Seconds())
	}
	return c
}
