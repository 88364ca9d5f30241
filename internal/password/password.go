// Package password hashes and verifies user passwords with bcrypt.
package password

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// Hasher is the one-way hashing capability used by the auth flows.
type Hasher interface {
	Hash(secret string) (string, error)
	// Verify reports whether secret matches digest. An empty digest never
	// matches.
	Verify(secret, digest string) bool
}

// ErrTooLong is returned for secrets bcrypt would silently truncate.
var ErrTooLong = errors.New("password exceeds 72 bytes")

type Bcrypt struct {
	Cost int
}

func NewBcrypt(cost int) *Bcrypt {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &Bcrypt{Cost: cost}
}

func (b *Bcrypt) Hash(secret string) (string, error) {
	if len(secret) > 72 {
		return "", ErrTooLong
	}
	h, err := bcrypt.GenerateFromPassword([]byte(secret), b.Cost)
	return string(h), err
}

func (b *Bcrypt) Verify(secret, digest string) bool {
	if digest == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(secret)) == nil
}
