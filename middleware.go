package main

import (
	"context"
	"net"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/example/authcore/internal/apperr"
	"github.com/example/authcore/internal/credential"
	"github.com/example/authcore/internal/store"
	"github.com/example/authcore/internal/token"
	"github.com/gorilla/mux"
)

type ctxKey int

const claimsKey ctxKey = iota

// claimsFrom returns the access token claims RequireAuth stored on ctx.
func claimsFrom(ctx context.Context) *token.Claims {
	c, _ := ctx.Value(claimsKey).(*token.Claims)
	return c
}

// RequireAuth rejects requests without a valid access token and stores its
// claims on the request context.
func (a *App) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tok, _ := credential.AccessToken.Extract(r)
		claims, err := a.Auth.Authenticate(tok)
		if err != nil {
			a.writeAppError(w, r, err)
			return
		}
		ctx := context.WithValue(r.Context(), claimsKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole is RequireAuth plus a minimum role.
func (a *App) RequireRole(role store.Role, next http.Handler) http.Handler {
	return a.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !roleOf(claimsFrom(r.Context())).Satisfies(role) {
			a.writeAppError(w, r, apperr.ErrForbidden)
			return
		}
		next.ServeHTTP(w, r)
	}))
}

// roleOf reads the role claim; an unknown role satisfies nothing.
func roleOf(c *token.Claims) store.Role {
	if c == nil {
		return ""
	}
	r, err := store.ParseRole(c.Role)
	if err != nil {
		return ""
	}
	return r
}

// CORS middleware handles CORS headers. Without configured origins only the
// frontend's origin is allowed.
func (a *App) CORS(next http.Handler) http.Handler {
	allowed := a.Cfg.CORSOrigins
	if len(allowed) == 0 {
		allowed = []string{strings.TrimRight(a.Cfg.FrontendURL, "/")}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && (slices.Contains(allowed, origin) || slices.Contains(allowed, "*")) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Add("Vary", "Origin")
		}

		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Credentials", "true")
		w.Header().Set("Access-Control-Max-Age", "3600")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// RateLimit throttles next per client IP under the given bucket name.
func (a *App) RateLimit(bucket string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ok, retryAfter, err := a.Limiter.Allow(r.Context(), bucket+":"+clientIP(r))
		if err != nil {
			// fail open
			a.Log.WarnContext(r.Context(), "rate limiter unavailable", "bucket", bucket, "error", err)
			next.ServeHTTP(w, r)
			return
		}
		if !ok {
			secs := int((retryAfter + time.Second - 1) / time.Second)
			w.Header().Set("Retry-After", strconv.Itoa(secs))
			writeError(w, http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED", "Too many requests, try again later")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Logging middleware logs requests and records their latency
func (a *App) Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start)
		route := "unmatched"
		if cr := mux.CurrentRoute(r); cr != nil {
			if tpl, err := cr.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		a.Metrics.ObserveRequest(route, r.Method, wrapped.statusCode, duration)
		a.Log.InfoContext(r.Context(), "request",
			"method", r.Method,
			"route", route,
			"status", wrapped.statusCode,
			"duration", duration,
			"remote", clientIP(r),
		)
	})
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// SecurityHeaders middleware adds security headers
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-XSS-Protection", "1; mode=block")
		w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		next.ServeHTTP(w, r)
	})
}
