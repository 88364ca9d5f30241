package oauth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/example/authcore/internal/apperr"
	"github.com/example/authcore/internal/store"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func idToken(t *testing.T, c Claims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte("provider-key"))
	require.NoError(t, err)
	return s
}

// provider fakes a token endpoint. It answers with body for the code "good"
// and with 400 otherwise.
func provider(t *testing.T, body map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "client-1", r.PostForm.Get("client_id"))
		assert.Equal(t, "secret-1", r.PostForm.Get("client_secret"))
		assert.Equal(t, "authorization_code", r.PostForm.Get("grant_type"))
		assert.Equal(t, "http://api.test/callback", r.PostForm.Get("redirect_uri"))
		if r.PostForm.Get("code") != "good" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newBridge(tokenURL string, users store.Users) *Bridge {
	return NewBridge(Config{
		ClientID:     "client-1",
		ClientSecret: "secret-1",
		RedirectURL:  "http://api.test/callback",
		AuthURL:      "https://accounts.example.com/o/oauth2/v2/auth",
		TokenURL:     tokenURL,
		Timeout:      5 * time.Second,
	}, users)
}

func TestAuthorizationURL(t *testing.T) {
	b := newBridge("http://unused", store.NewMemoryDB())
	first := b.AuthorizationURL()
	assert.Equal(t, first, b.AuthorizationURL())

	u, err := url.Parse(first)
	require.NoError(t, err)
	assert.Equal(t, "accounts.example.com", u.Host)
	q := u.Query()
	assert.Equal(t, "client-1", q.Get("client_id"))
	assert.Equal(t, "http://api.test/callback", q.Get("redirect_uri"))
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "openid email profile", q.Get("scope"))
	assert.Equal(t, "offline", q.Get("access_type"))
	assert.Equal(t, "consent", q.Get("prompt"))
}

func TestExchangeCode(t *testing.T) {
	srv := provider(t, map[string]any{
		"access_token": "at",
		"token_type":   "Bearer",
		"expires_in":   3600,
		"id_token":     idToken(t, Claims{Email: "Ada@X.com", GivenName: "Ada", FamilyName: "Lovelace", Picture: "https://img/ada.png"}),
	})
	b := newBridge(srv.URL, store.NewMemoryDB())

	c, err := b.ExchangeCode(context.Background(), "good")
	require.NoError(t, err)
	assert.Equal(t, "ada@x.com", c.Email)
	assert.Equal(t, "Ada Lovelace", c.DisplayName())
	assert.Equal(t, "https://img/ada.png", c.Picture)

	_, err = b.ExchangeCode(context.Background(), "bad")
	assert.ErrorIs(t, err, apperr.ErrProviderError)

	_, err = b.ExchangeCode(context.Background(), "")
	assert.ErrorIs(t, err, apperr.ErrProviderError)
}

func TestExchangeCodeWithoutIDToken(t *testing.T) {
	srv := provider(t, map[string]any{"access_token": "at", "token_type": "Bearer"})
	b := newBridge(srv.URL, store.NewMemoryDB())

	_, err := b.ExchangeCode(context.Background(), "good")
	assert.ErrorIs(t, err, apperr.ErrProviderError)
}

func TestExchangeCodeUnreachableProvider(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	b := newBridge(srv.URL, store.NewMemoryDB())

	_, err := b.ExchangeCode(context.Background(), "good")
	assert.ErrorIs(t, err, apperr.ErrProviderError)
}

func TestReconcileCreatesVerifiedUserWithoutPassword(t *testing.T) {
	db := store.NewMemoryDB()
	b := newBridge("http://unused", db)

	u, err := b.ReconcileUser(context.Background(), &Claims{Email: "new@x.com", Name: "New User", Picture: "https://img/n.png"})
	require.NoError(t, err)
	assert.True(t, u.EmailVerified)
	assert.False(t, u.HasPassword())
	assert.Equal(t, store.RoleGuest, u.Role)
	assert.Equal(t, "New User", u.Name)
	assert.Equal(t, "https://img/n.png", u.AvatarURL)

	again, err := b.ReconcileUser(context.Background(), &Claims{Email: "new@x.com"})
	require.NoError(t, err)
	assert.Equal(t, u.ID, again.ID)
}

func TestReconcileBackfillsOnlyUnsetFields(t *testing.T) {
	db := store.NewMemoryDB()
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, db.InsertUser(ctx, &store.User{
		ID: "u1", Role: store.RoleGuest, Name: "Ada", Email: "ada@x.com",
		PasswordHash: "$2a$digest", CreatedAt: now, UpdatedAt: now,
	}))
	require.NoError(t, db.InsertUser(ctx, &store.User{
		ID: "u2", Role: store.RoleGuest, Name: "Bob", Email: "bob@x.com", EmailVerified: true,
		AvatarURL: "https://img/mine.png", CreatedAt: now, UpdatedAt: now,
	}))
	b := newBridge("http://unused", db)

	u, err := b.ReconcileUser(ctx, &Claims{Email: "ada@x.com", Picture: "https://img/google.png"})
	require.NoError(t, err)
	assert.True(t, u.EmailVerified)
	assert.Equal(t, "https://img/google.png", u.AvatarURL)
	assert.Equal(t, "$2a$digest", u.PasswordHash)

	stored, err := db.FindUserByID(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, stored.EmailVerified)

	u, err = b.ReconcileUser(ctx, &Claims{Email: "bob@x.com", Picture: "https://img/google.png"})
	require.NoError(t, err)
	assert.Equal(t, "https://img/mine.png", u.AvatarURL)
}

// interleavedUsers runs afterFind once the user row has been read, standing
// in for a write that commits while ReconcileUser holds a stale copy.
type interleavedUsers struct {
	store.Users
	afterFind func()
}

func (u *interleavedUsers) FindUserByEmail(ctx context.Context, email string) (*store.User, error) {
	found, err := u.Users.FindUserByEmail(ctx, email)
	if u.afterFind != nil {
		u.afterFind()
		u.afterFind = nil
	}
	return found, err
}

func TestReconcileKeepsConcurrentWrites(t *testing.T) {
	db := store.NewMemoryDB()
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, db.InsertUser(ctx, &store.User{
		ID: "u1", Role: store.RoleGuest, Name: "Ada", Email: "ada@x.com",
		PasswordHash: "$2a$old", CreatedAt: now, UpdatedAt: now,
	}))
	users := &interleavedUsers{Users: db, afterFind: func() {
		cur, err := db.FindUserByID(ctx, "u1")
		require.NoError(t, err)
		cur.PasswordHash = "$2a$reset"
		require.NoError(t, db.UpdateUser(ctx, cur))
	}}

	_, err := newBridge("http://unused", users).ReconcileUser(ctx, &Claims{Email: "ada@x.com", Picture: "https://img/google.png"})
	require.NoError(t, err)

	stored, err := db.FindUserByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "$2a$reset", stored.PasswordHash)
	assert.True(t, stored.EmailVerified)
	assert.Equal(t, "https://img/google.png", stored.AvatarURL)
}
