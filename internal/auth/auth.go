// Package auth implements the account flows: registration, password and
// OAuth login, token refresh, logout, email verification and password reset.
// It is the one place where the token, session, link, OAuth and notifier
// components are combined.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/example/authcore/internal/apperr"
	"github.com/example/authcore/internal/link"
	"github.com/example/authcore/internal/notify"
	"github.com/example/authcore/internal/oauth"
	"github.com/example/authcore/internal/password"
	"github.com/example/authcore/internal/session"
	"github.com/example/authcore/internal/store"
	"github.com/example/authcore/internal/token"
	"github.com/google/uuid"
)

// Events records flow outcomes, typically into metrics.
type Events interface {
	AuthEvent(event, outcome string)
}

type noEvents struct{}

func (noEvents) AuthEvent(string, string) {}

type Deps struct {
	DB       store.DB
	Links    *link.Service
	Tokens   *token.Issuer
	Sessions session.Store
	Hasher   password.Hasher
	OAuth    *oauth.Bridge
	Notifier notify.Notifier
	Events   Events
	Log      *slog.Logger
}

type Service struct {
	db       store.DB
	links    *link.Service
	tokens   *token.Issuer
	sessions session.Store
	hasher   password.Hasher
	oauth    *oauth.Bridge
	notifier notify.Notifier
	events   Events
	log      *slog.Logger
	now      func() time.Time

	// compared against when a login has no real digest, so every failed
	// login costs one hash comparison
	dummyDigest string
}

func New(d Deps) *Service {
	s := &Service{
		db:       d.DB,
		links:    d.Links,
		tokens:   d.Tokens,
		sessions: d.Sessions,
		hasher:   d.Hasher,
		oauth:    d.OAuth,
		notifier: d.Notifier,
		events:   d.Events,
		log:      d.Log,
		now:      time.Now,
	}
	if s.events == nil {
		s.events = noEvents{}
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	if s.hasher != nil {
		digest, err := s.hasher.Hash(uuid.NewString())
		if err != nil {
			s.log.Error("create dummy password digest", "error", err)
		}
		s.dummyDigest = digest
	}
	return s
}

// WithClock makes the service stamp records with now.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Session is the result of every flow that logs a user in. Persistent is
// false for a login that should end with the browser session.
type Session struct {
	User       *store.User
	Tokens     token.Pair
	Persistent bool
}

type RegisterInput struct {
	Name     string
	Email    string
	Password string
}

// Register creates a password account, logs it in and mails a verification
// link. Either all of user, link and session exist afterwards or none do.
func (s *Service) Register(ctx context.Context, in RegisterInput) (_ *Session, err error) {
	defer s.record("register", &err)

	if in.Password == "" {
		return nil, apperr.ErrMissingPassword
	}
	email, err := validEmail(in.Email)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", apperr.ErrValidation)
	}
	if _, err := s.db.FindUserByEmail(ctx, email); err == nil {
		return nil, apperr.ErrAlreadyExists
	} else if !errors.Is(err, apperr.ErrNotFound) {
		return nil, fmt.Errorf("find user: %w", err)
	}

	digest, err := s.hash(in.Password)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	u := &store.User{
		ID:           uuid.NewString(),
		Role:         store.RoleGuest,
		Name:         name,
		Email:        email,
		PasswordHash: digest,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	v, err := s.links.NewVerification(u.ID)
	if err != nil {
		return nil, err
	}
	if err := s.db.RegisterUser(ctx, u, v); err != nil {
		return nil, fmt.Errorf("register user: %w", err)
	}

	sess, err := s.startSession(ctx, u, true)
	if err == nil {
		err = s.notify(ctx, u, "Verify your email", s.links.VerificationURL(v.ID), notify.KindVerification)
	}
	if err != nil {
		s.rollbackRegistration(u.ID)
		return nil, err
	}

	s.log.InfoContext(ctx, "user registered", "user_id", u.ID)
	return sess, nil
}

// rollbackRegistration removes what a failed registration left behind. It
// runs detached from the request so a cancelled client cannot interrupt it.
func (s *Service) rollbackRegistration(userID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.sessions.Delete(ctx, userID); err != nil {
		s.log.Error("rollback registration: delete session", "user_id", userID, "error", err)
	}
	if err := s.db.DeleteUser(ctx, userID); err != nil && !errors.Is(err, apperr.ErrNotFound) {
		s.log.Error("rollback registration: delete user", "user_id", userID, "error", err)
	}
}

// Login authenticates by email and password. Unknown email, wrong password
// and password-less accounts are indistinguishable to the caller. Without
// remember the session stays non-persistent across refreshes.
func (s *Service) Login(ctx context.Context, email, pw string, remember bool) (_ *Session, err error) {
	defer s.record("login", &err)

	u, err := s.db.FindUserByEmail(ctx, store.NormalizeEmail(email))
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return nil, fmt.Errorf("find user: %w", err)
	}
	found := u != nil && u.HasPassword()
	digest := s.dummyDigest
	if found {
		digest = u.PasswordHash
	}
	if ok := s.hasher.Verify(pw, digest); !ok || !found {
		return nil, apperr.ErrInvalidCredentials
	}
	sess, err := s.startSession(ctx, u, remember)
	if err != nil {
		return nil, err
	}
	s.log.InfoContext(ctx, "user logged in", "user_id", u.ID)
	return sess, nil
}

// Refresh exchanges the user's current refresh token for a new pair. The
// presented token must be the one held by the session store; the new
// refresh token replaces it.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (_ *Session, err error) {
	defer s.record("refresh", &err)

	if refreshToken == "" {
		return nil, fmt.Errorf("%w: missing refresh token", apperr.ErrInvalidToken)
	}
	claims, err := s.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		return nil, err
	}
	stored, err := s.sessions.Get(ctx, claims.Subject)
	if errors.Is(err, session.ErrNoSession) {
		return nil, fmt.Errorf("%w: session revoked", apperr.ErrInvalidToken)
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if subtle.ConstantTimeCompare([]byte(stored), []byte(refreshToken)) != 1 {
		return nil, fmt.Errorf("%w: refresh token superseded", apperr.ErrInvalidToken)
	}

	u, err := s.db.FindUserByID(ctx, claims.Subject)
	if errors.Is(err, apperr.ErrNotFound) {
		_ = s.sessions.Delete(ctx, claims.Subject)
		return nil, fmt.Errorf("%w: user no longer exists", apperr.ErrInvalidToken)
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	return s.startSession(ctx, u, !claims.BrowserSession)
}

// Logout revokes the session the refresh token belongs to. A missing,
// invalid or expired token has nothing to revoke and is not an error.
func (s *Service) Logout(ctx context.Context, refreshToken string) (err error) {
	defer s.record("logout", &err)

	if refreshToken == "" {
		return nil
	}
	claims, err := s.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		return nil
	}
	if err := s.sessions.Delete(ctx, claims.Subject); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	s.log.InfoContext(ctx, "user logged out", "user_id", claims.Subject)
	return nil
}

// VerifyEmail consumes a verification link.
func (s *Service) VerifyEmail(ctx context.Context, linkID string) (err error) {
	defer s.record("verify_email", &err)

	userID, err := s.links.ConsumeVerificationLink(ctx, linkID)
	if err != nil {
		return err
	}
	s.log.InfoContext(ctx, "email verified", "user_id", userID)
	return nil
}

// ResendVerification replaces the caller's verification link and mails the
// new one. The caller is identified by its access token.
func (s *Service) ResendVerification(ctx context.Context, accessToken string) (err error) {
	defer s.record("resend_verification", &err)

	claims, err := s.Authenticate(accessToken)
	if err != nil {
		return err
	}
	u, err := s.db.FindUserByID(ctx, claims.Subject)
	if err != nil {
		return err
	}
	if u.EmailVerified {
		return apperr.ErrAlreadyVerified
	}
	id, err := s.links.CreateVerificationLink(ctx, u.ID)
	if err != nil {
		return err
	}
	return s.notify(ctx, u, "Verify your email", s.links.VerificationURL(id), notify.KindVerification)
}

// ForgotPassword replaces the reset link of the account at email and mails
// the new one.
func (s *Service) ForgotPassword(ctx context.Context, email string) (err error) {
	defer s.record("forgot_password", &err)

	u, err := s.db.FindUserByEmail(ctx, store.NormalizeEmail(email))
	if err != nil {
		return err
	}
	if !u.HasPassword() {
		return apperr.ErrMissingPassword
	}
	id, err := s.links.CreateResetLink(ctx, u.ID)
	if err != nil {
		return err
	}
	return s.notify(ctx, u, "Reset your password", s.links.ResetURL(id), notify.KindPasswordReset)
}

// ResetPassword consumes a reset link, setting newPassword. The user's
// session is revoked so other devices must log in again.
func (s *Service) ResetPassword(ctx context.Context, linkID, newPassword string) (err error) {
	defer s.record("reset_password", &err)

	userID, err := s.links.ConsumeResetLink(ctx, linkID, newPassword)
	if err != nil {
		return err
	}
	if err := s.sessions.Delete(ctx, userID); err != nil {
		s.log.WarnContext(ctx, "revoke session after reset", "user_id", userID, "error", err)
	}
	s.log.InfoContext(ctx, "password reset", "user_id", userID)
	return nil
}

// OAuthURL is where a client starts an OAuth login.
func (s *Service) OAuthURL() string {
	return s.oauth.AuthorizationURL()
}

// OAuthLogin completes an OAuth login with the provider's authorization
// code, creating or linking the local account.
func (s *Service) OAuthLogin(ctx context.Context, code string) (_ *Session, err error) {
	defer s.record("oauth_login", &err)

	claims, err := s.oauth.ExchangeCode(ctx, code)
	if err != nil {
		return nil, err
	}
	u, err := s.oauth.ReconcileUser(ctx, claims)
	if err != nil {
		return nil, err
	}
	sess, err := s.startSession(ctx, u, true)
	if err != nil {
		return nil, err
	}
	s.log.InfoContext(ctx, "user logged in via oauth", "user_id", u.ID)
	return sess, nil
}

// Authenticate validates an access token and returns its claims.
func (s *Service) Authenticate(accessToken string) (*token.Claims, error) {
	if accessToken == "" {
		return nil, fmt.Errorf("%w: missing access token", apperr.ErrInvalidToken)
	}
	return s.tokens.VerifyAccess(accessToken)
}

// AccessTTL and RefreshTTL size the session cookies.
func (s *Service) AccessTTL() time.Duration  { return s.tokens.AccessTTL() }
func (s *Service) RefreshTTL() time.Duration { return s.tokens.RefreshTTL() }

func (s *Service) startSession(ctx context.Context, u *store.User, persistent bool) (*Session, error) {
	pair, err := s.tokens.IssuePair(token.Subject{
		UserID:         u.ID,
		Role:           string(u.Role),
		EmailVerified:  u.EmailVerified,
		Avatar:         u.AvatarURL,
		BrowserSession: !persistent,
	})
	if err != nil {
		return nil, fmt.Errorf("issue tokens: %w", err)
	}
	if err := s.sessions.Put(ctx, u.ID, pair.RefreshToken, s.tokens.RefreshTTL()); err != nil {
		return nil, fmt.Errorf("store session: %w", err)
	}
	return &Session{User: u, Tokens: pair, Persistent: persistent}, nil
}

func (s *Service) notify(ctx context.Context, u *store.User, subject, url string, kind notify.Kind) error {
	err := s.notifier.Send(ctx, notify.Message{
		To:      []notify.Recipient{{Email: u.Email, Name: u.Name}},
		Subject: subject,
		Link:    url,
		Kind:    kind,
	})
	if err != nil && !errors.Is(err, apperr.ErrNotifier) {
		err = fmt.Errorf("%w: %v", apperr.ErrNotifier, err)
	}
	return err
}

func (s *Service) hash(pw string) (string, error) {
	digest, err := s.hasher.Hash(pw)
	if errors.Is(err, password.ErrTooLong) {
		return "", fmt.Errorf("%w: %v", apperr.ErrValidation, err)
	}
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return digest, nil
}

func (s *Service) record(event string, err *error) {
	outcome := "ok"
	if *err != nil {
		outcome = strings.ToLower(apperr.Code(*err))
		if !apperr.IsExpected(*err) {
			s.log.Error("auth flow failed", "event", event, "error", *err)
		}
	}
	s.events.AuthEvent(event, outcome)
}

func validEmail(raw string) (string, error) {
	email := store.NormalizeEmail(raw)
	if email == "" {
		return "", fmt.Errorf("%w: email is required", apperr.ErrValidation)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("%w: invalid email address", apperr.ErrValidation)
	}
	return email, nil
}
