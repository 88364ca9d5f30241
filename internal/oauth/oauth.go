// Package oauth bridges an OAuth2 authorization-code login with a local
// user record.
//
// The id token returned by the provider is decoded without verifying its
// signature; it is trusted because it arrives over TLS straight from the
// token endpoint in exchange for a one-time code.
package oauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/example/authcore/internal/apperr"
	"github.com/example/authcore/internal/store"
	"github.com/example/authcore/internal/token"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

// Claims are the identity claims read from the provider's id token.
type Claims struct {
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	GivenName     string `json:"given_name"`
	FamilyName    string `json:"family_name"`
	Picture       string `json:"picture"`
	jwt.RegisteredClaims
}

// DisplayName prefers the full name and falls back to given + family name.
func (c *Claims) DisplayName() string {
	if n := strings.TrimSpace(c.Name); n != "" {
		return n
	}
	return strings.TrimSpace(c.GivenName + " " + c.FamilyName)
}

type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	AuthURL      string
	TokenURL     string
	Timeout      time.Duration
	// HTTPClient is used for the token exchange; nil means http.DefaultClient.
	HTTPClient *http.Client
}

type Bridge struct {
	oauth   *oauth2.Config
	timeout time.Duration
	client  *http.Client
	users   store.Users
	now     func() time.Time
}

func NewBridge(cfg Config, users store.Users) *Bridge {
	return &Bridge{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		timeout: cfg.Timeout,
		client:  cfg.HTTPClient,
		users:   users,
		now:     time.Now,
	}
}

// WithClock makes the bridge read time from now.
func (b *Bridge) WithClock(now func() time.Time) *Bridge {
	b.now = now
	return b
}

// AuthorizationURL is the provider consent URL the client is sent to. It is
// the same for every call.
func (b *Bridge) AuthorizationURL() string {
	return b.oauth.AuthCodeURL("", oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// ExchangeCode trades an authorization code for the caller's identity
// claims. Every provider-side failure is reported as apperr.ErrProviderError.
func (b *Bridge) ExchangeCode(ctx context.Context, code string) (*Claims, error) {
	if code == "" {
		return nil, fmt.Errorf("%w: missing authorization code", apperr.ErrProviderError)
	}
	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}
	if b.client != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, b.client)
	}

	tok, err := b.oauth.Exchange(ctx, code)
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.Response != nil {
			return nil, fmt.Errorf("%w: token endpoint returned %d", apperr.ErrProviderError, re.Response.StatusCode)
		}
		return nil, fmt.Errorf("%w: %v", apperr.ErrProviderError, err)
	}

	raw, _ := tok.Extra("id_token").(string)
	if raw == "" {
		return nil, fmt.Errorf("%w: response carries no id_token", apperr.ErrProviderError)
	}
	claims := &Claims{}
	if err := token.Decode(raw, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrProviderError, err)
	}
	claims.Email = store.NormalizeEmail(claims.Email)
	if claims.Email == "" {
		return nil, fmt.Errorf("%w: id token carries no email", apperr.ErrProviderError)
	}
	return claims, nil
}

// ReconcileUser returns the local user for claims, creating a verified
// password-less account on first login. For existing users only an unset
// avatar and an unset verified flag are filled in.
func (b *Bridge) ReconcileUser(ctx context.Context, claims *Claims) (*store.User, error) {
	email := store.NormalizeEmail(claims.Email)
	u, err := b.users.FindUserByEmail(ctx, email)
	if errors.Is(err, apperr.ErrNotFound) {
		u, err = b.create(ctx, email, claims)
		if errors.Is(err, apperr.ErrAlreadyExists) {
			// lost a race with a concurrent first login
			u, err = b.users.FindUserByEmail(ctx, email)
		}
		if err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}

	if u.EmailVerified && (u.AvatarURL != "" || claims.Picture == "") {
		return u, nil
	}
	now := b.now().UTC()
	if err := b.users.ConfirmExternalLogin(ctx, u.ID, claims.Picture, now); err != nil {
		return nil, fmt.Errorf("backfill user: %w", err)
	}
	u.EmailVerified = true
	if u.AvatarURL == "" {
		u.AvatarURL = claims.Picture
	}
	u.UpdatedAt = now
	return u, nil
}

func (b *Bridge) create(ctx context.Context, email string, claims *Claims) (*store.User, error) {
	now := b.now().UTC()
	u := &store.User{
		ID:            uuid.NewString(),
		Role:          store.RoleGuest,
		Name:          claims.DisplayName(),
		Email:         email,
		EmailVerified: true,
		AvatarURL:     claims.Picture,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := b.users.InsertUser(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}
