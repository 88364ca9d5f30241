package main

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/example/authcore/internal/apperr"
	"github.com/example/authcore/internal/store"
	"github.com/gorilla/mux"
	"github.com/oklog/ulid/v2"
)

type todoView struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"ownerId"`
	Title     string    `json:"title"`
	Done      bool      `json:"done"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func viewTodo(t *store.Todo) todoView {
	return todoView{ID: t.ID, OwnerID: t.OwnerID, Title: t.Title, Done: t.Done, CreatedAt: t.CreatedAt, UpdatedAt: t.UpdatedAt}
}

func validTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" || len(title) > 500 {
		return "", fmt.Errorf("%w: title must be 1 to 500 characters", apperr.ErrValidation)
	}
	return title, nil
}

// ownedTodo loads the todo named in the path, hiding todos of other users
// from everyone but admins.
func (a *App) ownedTodo(r *http.Request) (*store.Todo, error) {
	t, err := a.DB.FindTodo(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		return nil, err
	}
	claims := claimsFrom(r.Context())
	if t.OwnerID != claims.Subject && !roleOf(claims).Satisfies(store.RoleAdmin) {
		return nil, apperr.ErrNotFound
	}
	return t, nil
}

func (a *App) HandleListTodos(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())
	owner := claims.Subject
	if roleOf(claims).Satisfies(store.RoleAdmin) {
		owner = ""
	}
	todos, err := a.DB.ListTodos(r.Context(), owner)
	if err != nil {
		a.writeAppError(w, r, err)
		return
	}
	out := make([]todoView, 0, len(todos))
	for _, t := range todos {
		out = append(out, viewTodo(t))
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *App) HandleCreateTodo(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Title string `json:"title"`
	}
	if err := decode(w, r, &in, false); err != nil {
		a.writeAppError(w, r, err)
		return
	}
	title, err := validTitle(in.Title)
	if err != nil {
		a.writeAppError(w, r, err)
		return
	}
	now := time.Now().UTC()
	t := &store.Todo{
		ID:        ulid.Make().String(),
		OwnerID:   claimsFrom(r.Context()).Subject,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := a.DB.InsertTodo(r.Context(), t); err != nil {
		a.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, viewTodo(t))
}

func (a *App) HandleGetTodo(w http.ResponseWriter, r *http.Request) {
	t, err := a.ownedTodo(r)
	if err != nil {
		a.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewTodo(t))
}

func (a *App) HandleUpdateTodo(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Title *string `json:"title"`
		Done  *bool   `json:"done"`
	}
	if err := decode(w, r, &in, false); err != nil {
		a.writeAppError(w, r, err)
		return
	}
	t, err := a.ownedTodo(r)
	if err != nil {
		a.writeAppError(w, r, err)
		return
	}
	if in.Title != nil {
		if t.Title, err = validTitle(*in.Title); err != nil {
			a.writeAppError(w, r, err)
			return
		}
	}
	if in.Done != nil {
		t.Done = *in.Done
	}
	t.UpdatedAt = time.Now().UTC()
	if err := a.DB.UpdateTodo(r.Context(), t); err != nil {
		a.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewTodo(t))
}

func (a *App) HandleDeleteTodo(w http.ResponseWriter, r *http.Request) {
	t, err := a.ownedTodo(r)
	if err != nil {
		a.writeAppError(w, r, err)
		return
	}
	if err := a.DB.DeleteTodo(r.Context(), t.ID); err != nil {
		a.writeAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
