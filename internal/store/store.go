// Package store is the credential store: users, verification links, reset
// links and todos, with memory, SQLite and PostgreSQL adapters.
//
// Lookups return apperr.ErrNotFound for absent rows and inserts return
// apperr.ErrAlreadyExists when a uniqueness constraint (email, link owner)
// rejects the write.
package store

import (
	"context"
	"time"
)

// Users is the user half of the credential store.
type Users interface {
	InsertUser(ctx context.Context, u *User) error
	FindUserByID(ctx context.Context, id string) (*User, error)
	FindUserByEmail(ctx context.Context, email string) (*User, error)
	UpdateUser(ctx context.Context, u *User) error
	// ConfirmExternalLogin marks the user's email verified and sets
	// avatarURL unless an avatar is already present. No other column is
	// touched.
	ConfirmExternalLogin(ctx context.Context, id, avatarURL string, at time.Time) error
	DeleteUser(ctx context.Context, id string) error
	ListUsers(ctx context.Context) ([]*User, error)
	// RegisterUser inserts u and its first verification link in one
	// transaction.
	RegisterUser(ctx context.Context, u *User, v *VerificationLink) error
}

// Links is the link half of the credential store.
type Links interface {
	InsertVerification(ctx context.Context, v *VerificationLink) error
	FindVerificationByID(ctx context.Context, id string) (*VerificationLink, error)
	FindVerificationByUser(ctx context.Context, userID string) (*VerificationLink, error)
	DeleteVerificationByUser(ctx context.Context, userID string) error
	// ConfirmVerification marks the owner verified and deletes the link.
	ConfirmVerification(ctx context.Context, v *VerificationLink, at time.Time) error

	InsertReset(ctx context.Context, r *ResetLink) error
	FindResetByID(ctx context.Context, id string) (*ResetLink, error)
	FindResetByUser(ctx context.Context, userID string) (*ResetLink, error)
	DeleteResetByUser(ctx context.Context, userID string) error
	// CompleteReset stores the new digest on the owner and deletes the link.
	CompleteReset(ctx context.Context, r *ResetLink, passwordHash string, at time.Time) error

	// PurgeExpiredLinks removes verification and reset links expired at now.
	PurgeExpiredLinks(ctx context.Context, now time.Time) (int64, error)
}

// Todos is the todo resource store.
type Todos interface {
	InsertTodo(ctx context.Context, t *Todo) error
	FindTodo(ctx context.Context, id string) (*Todo, error)
	ListTodos(ctx context.Context, ownerID string) ([]*Todo, error)
	UpdateTodo(ctx context.Context, t *Todo) error
	DeleteTodo(ctx context.Context, id string) error
}

// DB is the full credential store.
type DB interface {
	Users
	Links
	Todos
	Ping(ctx context.Context) error
	Close() error
}
