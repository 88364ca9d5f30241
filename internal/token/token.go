// Package token issues and validates the signed access/refresh token pair.
//
// Access and refresh tokens are HS256 JWTs signed with two distinct secrets,
// so a leaked access secret cannot mint refresh tokens and vice versa.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/example/authcore/internal/apperr"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims are the claims carried by both token classes.
type Claims struct {
	Role          string `json:"role"`
	EmailVerified bool   `json:"email_verified"`
	Avatar        string `json:"user_photo,omitempty"`

	// BrowserSession marks a login that asked not to be remembered.
	BrowserSession bool `json:"browser_session,omitempty"`

	jwt.RegisteredClaims
}

// Subject describes who a pair is issued for.
type Subject struct {
	UserID        string
	Role          string
	EmailVerified bool
	Avatar        string
	// BrowserSession carries a "do not remember me" login across refreshes.
	BrowserSession bool
}

// Pair is a freshly issued access/refresh token pair.
type Pair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

type Config struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

// Issuer signs and verifies token pairs.
type Issuer struct {
	cfg Config
	now func() time.Time
}

func NewIssuer(cfg Config) (*Issuer, error) {
	if len(cfg.AccessSecret) == 0 || len(cfg.RefreshSecret) == 0 {
		return nil, errors.New("token secrets must not be empty")
	}
	if string(cfg.AccessSecret) == string(cfg.RefreshSecret) {
		return nil, errors.New("access and refresh secrets must differ")
	}
	return &Issuer{cfg: cfg, now: time.Now}, nil
}

// WithClock returns a copy of the issuer reading time from now.
func (i *Issuer) WithClock(now func() time.Time) *Issuer {
	cp := *i
	cp.now = now
	return &cp
}

func (i *Issuer) AccessTTL() time.Duration  { return i.cfg.AccessTTL }
func (i *Issuer) RefreshTTL() time.Duration { return i.cfg.RefreshTTL }

// IssuePair signs a new access/refresh pair for sub. Every token gets a
// unique jti, so two pairs issued within the same second still differ.
func (i *Issuer) IssuePair(sub Subject) (Pair, error) {
	now := i.now()
	accessExp := now.Add(i.cfg.AccessTTL)
	refreshExp := now.Add(i.cfg.RefreshTTL)

	access, err := sign(sub, now, accessExp, i.cfg.AccessSecret)
	if err != nil {
		return Pair{}, fmt.Errorf("sign access token: %w", err)
	}
	refresh, err := sign(sub, now, refreshExp, i.cfg.RefreshSecret)
	if err != nil {
		return Pair{}, fmt.Errorf("sign refresh token: %w", err)
	}
	return Pair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

func sign(sub Subject, now, exp time.Time, secret []byte) (string, error) {
	claims := Claims{
		Role:           sub.Role,
		EmailVerified:  sub.EmailVerified,
		Avatar:         sub.Avatar,
		BrowserSession: sub.BrowserSession,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub.UserID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// VerifyAccess verifies tok against the access secret.
func (i *Issuer) VerifyAccess(tok string) (*Claims, error) {
	return i.verify(tok, i.cfg.AccessSecret)
}

// VerifyRefresh verifies tok against the refresh secret.
func (i *Issuer) VerifyRefresh(tok string) (*Claims, error) {
	return i.verify(tok, i.cfg.RefreshSecret)
}

func (i *Issuer) verify(tok string, secret []byte) (*Claims, error) {
	return verify(tok, secret, jwt.WithTimeFunc(i.now))
}

// Verify checks signature and expiry of tok against secret. A well-signed
// but expired token yields apperr.ErrTokenExpired; anything else that fails
// yields apperr.ErrInvalidToken.
func Verify(tok string, secret []byte) (*Claims, error) {
	return verify(tok, secret)
}

func verify(tok string, secret []byte, opts ...jwt.ParserOption) (*Claims, error) {
	opts = append(opts,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	claims := &Claims{}
	t, err := jwt.ParseWithClaims(tok, claims, func(*jwt.Token) (any, error) {
		return secret, nil
	}, opts...)
	switch {
	case err == nil && t.Valid:
	case errors.Is(err, jwt.ErrTokenExpired) && !errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return nil, fmt.Errorf("%w: %v", apperr.ErrTokenExpired, err)
	default:
		return nil, fmt.Errorf("%w: %v", apperr.ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", apperr.ErrInvalidToken)
	}
	return claims, nil
}

// Decode parses tok into claims without checking its signature. It is meant
// for tokens signed by someone else, such as an identity provider's id token.
func Decode(tok string, claims jwt.Claims) error {
	if _, _, err := jwt.NewParser().ParseUnverified(tok, claims); err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrInvalidToken, err)
	}
	return nil
}
