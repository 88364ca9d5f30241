// Package session maps a user to its single active refresh token. A Put
// replaces whatever session the user had, which is what enforces the
// one-session-per-user model; the store is the authority on revocation.
package session

import (
	"context"
	"errors"
	"time"
)

// ErrNoSession is returned by Get when the user has no live session.
var ErrNoSession = errors.New("no active session")

// Store is the session store contract. Put and Delete are single atomic key
// operations; there is no read-modify-write.
type Store interface {
	Put(ctx context.Context, userID, refreshToken string, ttl time.Duration) error
	Get(ctx context.Context, userID string) (string, error)
	Delete(ctx context.Context, userID string) error
}

// ttlSeconds rounds ttl up to whole seconds, the store's precision.
func ttlSeconds(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return 0
	}
	s := ttl.Truncate(time.Second)
	if s < ttl {
		s += time.Second
	}
	return s
}
