package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/example/authcore/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func adapters(t *testing.T) map[string]DB {
	t.Helper()
	sqlite, err := NewSQLiteDB(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlite.Close() })
	return map[string]DB{
		"memory": NewMemoryDB(),
		"sqlite": sqlite,
	}
}

func newUser(id, email string) *User {
	return &User{
		ID:           id,
		Role:         RoleGuest,
		Name:         "Test " + id,
		Email:        email,
		PasswordHash: "$2a$hash",
		CreatedAt:    t0,
		UpdatedAt:    t0,
	}
}

func TestUsers(t *testing.T) {
	for name, db := range adapters(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			u := newUser("u1", "a@x.com")
			require.NoError(t, db.InsertUser(ctx, u))

			err := db.InsertUser(ctx, newUser("u2", "a@x.com"))
			assert.ErrorIs(t, err, apperr.ErrAlreadyExists)

			got, err := db.FindUserByEmail(ctx, "a@x.com")
			require.NoError(t, err)
			assert.Equal(t, u, got)

			_, err = db.FindUserByID(ctx, "missing")
			assert.ErrorIs(t, err, apperr.ErrNotFound)

			got.AvatarURL = "https://img/1.png"
			got.EmailVerified = true
			got.UpdatedAt = t0.Add(time.Minute)
			require.NoError(t, db.UpdateUser(ctx, got))

			again, err := db.FindUserByID(ctx, "u1")
			require.NoError(t, err)
			assert.Equal(t, got, again)

			assert.ErrorIs(t, db.UpdateUser(ctx, newUser("ghost", "g@x.com")), apperr.ErrNotFound)

			list, err := db.ListUsers(ctx)
			require.NoError(t, err)
			assert.Len(t, list, 1)
		})
	}
}

func TestOAuthUserHasNoPassword(t *testing.T) {
	for name, db := range adapters(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			u := newUser("u1", "o@x.com")
			u.PasswordHash = ""
			require.NoError(t, db.InsertUser(ctx, u))

			got, err := db.FindUserByID(ctx, "u1")
			require.NoError(t, err)
			assert.False(t, got.HasPassword())
		})
	}
}

func TestRegisterUserIsAtomic(t *testing.T) {
	for name, db := range adapters(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			u := newUser("u1", "a@x.com")
			v := &VerificationLink{ID: "v1", UserID: "u1", ExpiresAt: t0.Add(15 * time.Minute), CreatedAt: t0}
			require.NoError(t, db.RegisterUser(ctx, u, v))

			got, err := db.FindVerificationByUser(ctx, "u1")
			require.NoError(t, err)
			assert.Equal(t, v, got)

			dup := newUser("u2", "a@x.com")
			err = db.RegisterUser(ctx, dup, &VerificationLink{ID: "v2", UserID: "u2", ExpiresAt: t0, CreatedAt: t0})
			assert.ErrorIs(t, err, apperr.ErrAlreadyExists)
			_, err = db.FindVerificationByID(ctx, "v2")
			assert.ErrorIs(t, err, apperr.ErrNotFound)
		})
	}
}

func TestVerificationLinks(t *testing.T) {
	for name, db := range adapters(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, db.InsertUser(ctx, newUser("u1", "a@x.com")))

			v := &VerificationLink{ID: "v1", UserID: "u1", ExpiresAt: t0.Add(15 * time.Minute), CreatedAt: t0}
			require.NoError(t, db.InsertVerification(ctx, v))

			// one pending link per user
			err := db.InsertVerification(ctx, &VerificationLink{ID: "v2", UserID: "u1", ExpiresAt: t0, CreatedAt: t0})
			assert.ErrorIs(t, err, apperr.ErrAlreadyExists)

			err = db.InsertVerification(ctx, &VerificationLink{ID: "v3", UserID: "nobody", ExpiresAt: t0, CreatedAt: t0})
			assert.ErrorIs(t, err, apperr.ErrNotFound)

			require.NoError(t, db.ConfirmVerification(ctx, v, t0.Add(time.Minute)))
			u, err := db.FindUserByID(ctx, "u1")
			require.NoError(t, err)
			assert.True(t, u.EmailVerified)

			_, err = db.FindVerificationByID(ctx, "v1")
			assert.ErrorIs(t, err, apperr.ErrNotFound)
			assert.ErrorIs(t, db.ConfirmVerification(ctx, v, t0), apperr.ErrNotFound)
		})
	}
}

func TestResetLinks(t *testing.T) {
	for name, db := range adapters(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, db.InsertUser(ctx, newUser("u1", "a@x.com")))

			r := &ResetLink{ID: "r1", UserID: "u1", ExpiresAt: t0.Add(15 * time.Minute), CreatedAt: t0, UpdatedAt: t0}
			require.NoError(t, db.InsertReset(ctx, r))
			assert.ErrorIs(t, db.InsertReset(ctx, &ResetLink{ID: "r2", UserID: "u1", ExpiresAt: t0, CreatedAt: t0, UpdatedAt: t0}), apperr.ErrAlreadyExists)

			got, err := db.FindResetByUser(ctx, "u1")
			require.NoError(t, err)
			assert.Equal(t, r, got)

			require.NoError(t, db.CompleteReset(ctx, r, "$2a$new", t0.Add(time.Minute)))
			u, err := db.FindUserByID(ctx, "u1")
			require.NoError(t, err)
			assert.Equal(t, "$2a$new", u.PasswordHash)

			_, err = db.FindResetByID(ctx, "r1")
			assert.ErrorIs(t, err, apperr.ErrNotFound)
		})
	}
}

func TestDeleteUserCascadesLinks(t *testing.T) {
	for name, db := range adapters(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			u := newUser("u1", "a@x.com")
			require.NoError(t, db.RegisterUser(ctx, u, &VerificationLink{ID: "v1", UserID: "u1", ExpiresAt: t0, CreatedAt: t0}))
			require.NoError(t, db.InsertReset(ctx, &ResetLink{ID: "r1", UserID: "u1", ExpiresAt: t0, CreatedAt: t0, UpdatedAt: t0}))

			require.NoError(t, db.DeleteUser(ctx, "u1"))

			_, err := db.FindVerificationByID(ctx, "v1")
			assert.ErrorIs(t, err, apperr.ErrNotFound)
			_, err = db.FindResetByID(ctx, "r1")
			assert.ErrorIs(t, err, apperr.ErrNotFound)
			assert.ErrorIs(t, db.DeleteUser(ctx, "u1"), apperr.ErrNotFound)
		})
	}
}

func TestPurgeExpiredLinks(t *testing.T) {
	for name, db := range adapters(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, db.InsertUser(ctx, newUser("u1", "a@x.com")))
			require.NoError(t, db.InsertUser(ctx, newUser("u2", "b@x.com")))
			require.NoError(t, db.InsertVerification(ctx, &VerificationLink{ID: "old", UserID: "u1", ExpiresAt: t0.Add(-time.Minute), CreatedAt: t0}))
			require.NoError(t, db.InsertVerification(ctx, &VerificationLink{ID: "fresh", UserID: "u2", ExpiresAt: t0.Add(time.Minute), CreatedAt: t0}))
			require.NoError(t, db.InsertReset(ctx, &ResetLink{ID: "r-old", UserID: "u2", ExpiresAt: t0.Add(-time.Second), CreatedAt: t0, UpdatedAt: t0}))

			n, err := db.PurgeExpiredLinks(ctx, t0)
			require.NoError(t, err)
			assert.Equal(t, int64(2), n)

			_, err = db.FindVerificationByID(ctx, "fresh")
			assert.NoError(t, err)
		})
	}
}

func TestTodos(t *testing.T) {
	for name, db := range adapters(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, db.InsertUser(ctx, newUser("u1", "a@x.com")))
			require.NoError(t, db.InsertUser(ctx, newUser("u2", "b@x.com")))

			a := &Todo{ID: "01A", OwnerID: "u1", Title: "write tests", CreatedAt: t0, UpdatedAt: t0}
			b := &Todo{ID: "01B", OwnerID: "u2", Title: "review", CreatedAt: t0, UpdatedAt: t0}
			require.NoError(t, db.InsertTodo(ctx, a))
			require.NoError(t, db.InsertTodo(ctx, b))

			mine, err := db.ListTodos(ctx, "u1")
			require.NoError(t, err)
			assert.Equal(t, []*Todo{a}, mine)

			all, err := db.ListTodos(ctx, "")
			require.NoError(t, err)
			assert.Len(t, all, 2)

			a.Done = true
			a.UpdatedAt = t0.Add(time.Hour)
			require.NoError(t, db.UpdateTodo(ctx, a))
			got, err := db.FindTodo(ctx, "01A")
			require.NoError(t, err)
			assert.Equal(t, a, got)

			require.NoError(t, db.DeleteTodo(ctx, "01A"))
			assert.ErrorIs(t, db.DeleteTodo(ctx, "01A"), apperr.ErrNotFound)
		})
	}
}

func TestRole(t *testing.T) {
	r, err := ParseRole(" Admin ")
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, r)

	_, err = ParseRole("root")
	assert.Error(t, err)

	assert.True(t, RoleAdmin.Satisfies(RoleOwner))
	assert.True(t, RoleGuest.Satisfies(RoleGuest))
	assert.False(t, RoleGuest.Satisfies(RoleAdmin))
	assert.False(t, Role("root").Satisfies(RoleGuest))
}

func TestRebind(t *testing.T) {
	s := &SQLDB{dialect: dialectPostgres}
	assert.Equal(t, "UPDATE t SET a = $1 WHERE b = $2", s.q("UPDATE t SET a = ? WHERE b = ?"))
	s.dialect = dialectSQLite
	assert.Equal(t, "SELECT ?", s.q("SELECT ?"))
}

func TestConfirmExternalLogin(t *testing.T) {
	for name, db := range adapters(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, db.InsertUser(ctx, newUser("u1", "a@x.com")))
			mine := newUser("u2", "b@x.com")
			mine.AvatarURL = "https://img/mine.png"
			require.NoError(t, db.InsertUser(ctx, mine))

			require.NoError(t, db.ConfirmExternalLogin(ctx, "u1", "https://img/g.png", t0.Add(time.Minute)))
			u, err := db.FindUserByID(ctx, "u1")
			require.NoError(t, err)
			assert.True(t, u.EmailVerified)
			assert.Equal(t, "https://img/g.png", u.AvatarURL)
			assert.Equal(t, "$2a$hash", u.PasswordHash)
			assert.Equal(t, t0.Add(time.Minute), u.UpdatedAt)

			require.NoError(t, db.ConfirmExternalLogin(ctx, "u2", "https://img/g.png", t0))
			u, err = db.FindUserByID(ctx, "u2")
			require.NoError(t, err)
			assert.Equal(t, "https://img/mine.png", u.AvatarURL)

			require.NoError(t, db.ConfirmExternalLogin(ctx, "u1", "", t0))
			u, err = db.FindUserByID(ctx, "u1")
			require.NoError(t, err)
			assert.Equal(t, "https://img/g.png", u.AvatarURL)

			assert.ErrorIs(t, db.ConfirmExternalLogin(ctx, "ghost", "", t0), apperr.ErrNotFound)
		})
	}
}
