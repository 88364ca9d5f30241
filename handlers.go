package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/example/authcore/internal/apperr"
	"github.com/example/authcore/internal/auth"
	"github.com/example/authcore/internal/credential"
	"github.com/example/authcore/internal/store"
	"github.com/gorilla/mux"
)

const maxBodyBytes = 1 << 20

type userView struct {
	ID            string    `json:"id"`
	Role          string    `json:"role"`
	Name          string    `json:"name"`
	Email         string    `json:"email"`
	EmailVerified bool      `json:"emailVerified"`
	AvatarURL     string    `json:"avatarUrl,omitempty"`
	HasPassword   bool      `json:"hasPassword"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

func viewUser(u *store.User) userView {
	return userView{
		ID:            u.ID,
		Role:          string(u.Role),
		Name:          u.Name,
		Email:         u.Email,
		EmailVerified: u.EmailVerified,
		AvatarURL:     u.AvatarURL,
		HasPassword:   u.HasPassword(),
		CreatedAt:     u.CreatedAt,
		UpdatedAt:     u.UpdatedAt,
	}
}

// decode reads a JSON body into v. An empty body is accepted when optional.
func decode(w http.ResponseWriter, r *http.Request, v interface{}, optional bool) error {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
	if err == nil || (optional && errors.Is(err, io.EOF)) {
		return nil
	}
	return fmt.Errorf("%w: invalid request body: %v", apperr.ErrValidation, err)
}

type registerRequest struct {
	Name      string `json:"name"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Password  string `json:"password"`
}

func (a *App) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var in registerRequest
	if err := decode(w, r, &in, false); err != nil {
		a.writeAppError(w, r, err)
		return
	}
	name := in.Name
	if name == "" {
		name = strings.TrimSpace(in.FirstName + " " + in.LastName)
	}
	s, err := a.Auth.Register(r.Context(), auth.RegisterInput{Name: name, Email: in.Email, Password: in.Password})
	if err != nil {
		a.writeAppError(w, r, err)
		return
	}
	a.setSessionCookies(w, s.Tokens, true)
	writeJSON(w, http.StatusCreated, viewUser(s.User))
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Remember *bool  `json:"remember"`
}

func (a *App) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var in loginRequest
	if err := decode(w, r, &in, false); err != nil {
		a.writeAppError(w, r, err)
		return
	}
	s, err := a.Auth.Login(r.Context(), in.Email, in.Password, in.Remember == nil || *in.Remember)
	if err != nil {
		a.writeAppError(w, r, err)
		return
	}
	a.setSessionCookies(w, s.Tokens, s.Persistent)
	writeJSON(w, http.StatusOK, viewUser(s.User))
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// refreshToken takes the refresh token from its cookie, falling back to the
// JSON body for clients that do not keep cookies.
func refreshToken(w http.ResponseWriter, r *http.Request) (string, error) {
	if tok, ok := credential.RefreshToken.Extract(r); ok {
		return tok, nil
	}
	var in refreshRequest
	if err := decode(w, r, &in, true); err != nil {
		return "", err
	}
	return in.RefreshToken, nil
}

func (a *App) HandleLogout(w http.ResponseWriter, r *http.Request) {
	tok, _ := refreshToken(w, r)
	if err := a.Auth.Logout(r.Context(), tok); err != nil {
		a.Log.WarnContext(r.Context(), "logout", "error", err)
	}
	a.clearSessionCookies(w)
	writeSuccess(w, http.StatusOK, map[string]bool{"loggedOut": true})
}

func (a *App) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	tok, err := refreshToken(w, r)
	if err != nil {
		a.writeAppError(w, r, err)
		return
	}
	s, err := a.Auth.Refresh(r.Context(), tok)
	if err != nil {
		a.writeAppError(w, r, err)
		return
	}
	a.setSessionCookies(w, s.Tokens, s.Persistent)
	writeJSON(w, http.StatusOK, map[string]string{"accessToken": s.Tokens.AccessToken})
}

func (a *App) HandleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	if err := a.Auth.VerifyEmail(r.Context(), mux.Vars(r)["id"]); err != nil {
		a.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Email verified"})
}

func (a *App) HandleResendVerification(w http.ResponseWriter, r *http.Request) {
	tok, _ := credential.AccessToken.Extract(r)
	if err := a.Auth.ResendVerification(r.Context(), tok); err != nil {
		a.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Verification email sent"})
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

func (a *App) HandleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var in forgotPasswordRequest
	if err := decode(w, r, &in, false); err != nil {
		a.writeAppError(w, r, err)
		return
	}
	if err := a.Auth.ForgotPassword(r.Context(), in.Email); err != nil {
		a.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Password reset email sent"})
}

type resetPasswordRequest struct {
	NewPassword string `json:"newPassword"`
}

func (a *App) HandleResetPassword(w http.ResponseWriter, r *http.Request) {
	var in resetPasswordRequest
	if err := decode(w, r, &in, false); err != nil {
		a.writeAppError(w, r, err)
		return
	}
	if err := a.Auth.ResetPassword(r.Context(), mux.Vars(r)["id"], in.NewPassword); err != nil {
		a.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Password changed"})
}

func (a *App) HandleGoogleLogin(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"url": a.Auth.OAuthURL()})
}

func (a *App) HandleGoogleCallback(w http.ResponseWriter, r *http.Request) {
	s, err := a.Auth.OAuthLogin(r.Context(), r.URL.Query().Get("code"))
	if err != nil {
		a.writeAppError(w, r, err)
		return
	}
	a.setSessionCookies(w, s.Tokens, true)
	http.Redirect(w, r, strings.TrimRight(a.Cfg.FrontendURL, "/")+"/dashboard", http.StatusPermanentRedirect)
}
