package main

import (
	"net/http"

	"github.com/example/authcore/internal/apperr"
	"github.com/example/authcore/internal/store"
	"github.com/gorilla/mux"
)

// HandleListUsers lists every account
// GET /users (admin)
func (a *App) HandleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := a.DB.ListUsers(r.Context())
	if err != nil {
		a.writeAppError(w, r, err)
		return
	}
	out := make([]userView, 0, len(users))
	for _, u := range users {
		out = append(out, viewUser(u))
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleMe returns the caller's account
// GET /users/me
func (a *App) HandleMe(w http.ResponseWriter, r *http.Request) {
	u, err := a.DB.FindUserByID(r.Context(), claimsFrom(r.Context()).Subject)
	if err != nil {
		a.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewUser(u))
}

// HandleGetUser returns one account to its owner or an admin
// GET /users/{id}
func (a *App) HandleGetUser(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())
	id := mux.Vars(r)["id"]
	if id != claims.Subject && !roleOf(claims).Satisfies(store.RoleAdmin) {
		a.writeAppError(w, r, apperr.ErrForbidden)
		return
	}
	u, err := a.DB.FindUserByID(r.Context(), id)
	if err != nil {
		a.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewUser(u))
}
