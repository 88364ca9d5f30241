// Package link manages the one-time expiring capabilities mailed to users
// for email verification and password reset.
//
// Each user holds at most one pending link of each kind. Creating a link
// supersedes the previous one; consuming a link deletes it in the same store
// transaction that applies its effect. Expired links are reported as such and
// left in place until superseded or purged.
package link

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/example/authcore/internal/apperr"
	"github.com/example/authcore/internal/password"
	"github.com/example/authcore/internal/store"
)

const idBytes = 32

type Service struct {
	users    store.Users
	links    store.Links
	hasher   password.Hasher
	ttl      time.Duration
	frontend string
	now      func() time.Time
}

type Config struct {
	TTL         time.Duration
	FrontendURL string
}

func NewService(db store.DB, hasher password.Hasher, cfg Config) *Service {
	return &Service{
		users:    db,
		links:    db,
		hasher:   hasher,
		ttl:      cfg.TTL,
		frontend: strings.TrimRight(cfg.FrontendURL, "/"),
		now:      time.Now,
	}
}

// WithClock makes the service read time from now.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func genToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// NewVerification builds, without persisting, a fresh verification link for
// userID. Registration stores it together with the user.
func (s *Service) NewVerification(userID string) (*store.VerificationLink, error) {
	id, err := genToken(idBytes)
	if err != nil {
		return nil, fmt.Errorf("generate link id: %w", err)
	}
	now := s.now().UTC()
	return &store.VerificationLink{ID: id, UserID: userID, ExpiresAt: now.Add(s.ttl), CreatedAt: now}, nil
}

// CreateVerificationLink replaces any pending verification link of userID
// and returns the new link id.
func (s *Service) CreateVerificationLink(ctx context.Context, userID string) (string, error) {
	v, err := s.NewVerification(userID)
	if err != nil {
		return "", err
	}
	err = replace(
		func() error { return s.links.DeleteVerificationByUser(ctx, userID) },
		func() error { return s.links.InsertVerification(ctx, v) },
	)
	if err != nil {
		return "", fmt.Errorf("create verification link: %w", err)
	}
	return v.ID, nil
}

// ConsumeVerificationLink marks the owner of linkID verified and deletes the
// link.
func (s *Service) ConsumeVerificationLink(ctx context.Context, linkID string) (string, error) {
	v, err := s.links.FindVerificationByID(ctx, linkID)
	if err != nil {
		return "", err
	}
	now := s.now()
	if v.Expired(now) {
		return "", apperr.ErrExpired
	}
	if err := s.links.ConfirmVerification(ctx, v, now.UTC()); err != nil {
		return "", fmt.Errorf("confirm verification: %w", err)
	}
	return v.UserID, nil
}

// CreateResetLink replaces any pending reset link of userID and returns the
// new link id.
func (s *Service) CreateResetLink(ctx context.Context, userID string) (string, error) {
	id, err := genToken(idBytes)
	if err != nil {
		return "", fmt.Errorf("generate link id: %w", err)
	}
	now := s.now().UTC()
	r := &store.ResetLink{ID: id, UserID: userID, ExpiresAt: now.Add(s.ttl), CreatedAt: now, UpdatedAt: now}
	err = replace(
		func() error { return s.links.DeleteResetByUser(ctx, userID) },
		func() error { return s.links.InsertReset(ctx, r) },
	)
	if err != nil {
		return "", fmt.Errorf("create reset link: %w", err)
	}
	return id, nil
}

// ConsumeResetLink sets newPassword on the owner of linkID and deletes the
// link. It returns the owner's id.
func (s *Service) ConsumeResetLink(ctx context.Context, linkID, newPassword string) (string, error) {
	if newPassword == "" {
		return "", apperr.ErrMissingPassword
	}
	r, err := s.links.FindResetByID(ctx, linkID)
	if err != nil {
		return "", err
	}
	now := s.now()
	if r.Expired(now) {
		return "", apperr.ErrExpired
	}
	u, err := s.users.FindUserByID(ctx, r.UserID)
	if err != nil {
		return "", err
	}
	if !u.HasPassword() {
		return "", apperr.ErrMissingPassword
	}
	if s.hasher.Verify(newPassword, u.PasswordHash) {
		return "", apperr.ErrSamePassword
	}
	digest, err := s.hasher.Hash(newPassword)
	if err != nil {
		if errors.Is(err, password.ErrTooLong) {
			return "", fmt.Errorf("%w: %v", apperr.ErrValidation, err)
		}
		return "", fmt.Errorf("hash password: %w", err)
	}
	if err := s.links.CompleteReset(ctx, r, digest, now.UTC()); err != nil {
		return "", fmt.Errorf("complete reset: %w", err)
	}
	return u.ID, nil
}

// PurgeExpired deletes every link that expired before now.
func (s *Service) PurgeExpired(ctx context.Context) (int64, error) {
	return s.links.PurgeExpiredLinks(ctx, s.now().UTC())
}

func (s *Service) VerificationURL(id string) string {
	return s.frontend + "/register/verify-email?verificationID=" + url.QueryEscape(id)
}

func (s *Service) ResetURL(id string) string {
	return s.frontend + "/login/forgot-pw?verificationID=" + url.QueryEscape(id)
}

// replace deletes the current row and inserts its successor. A concurrent
// writer can slip its own row in between; in that case its row is removed
// and the insert retried once, so the last writer wins.
func replace(del, ins func() error) error {
	if err := del(); err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return err
	}
	err := ins()
	if !errors.Is(err, apperr.ErrAlreadyExists) {
		return err
	}
	if err := del(); err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return err
	}
	return ins()
}
