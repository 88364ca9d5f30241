package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func base() map[string]string {
	return map[string]string{
		"DB_ADAPTER":      "memory",
		"SESSION_ADAPTER": "memory",
	}
}

func TestDefaults(t *testing.T) {
	c, err := FromMap(base())
	require.NoError(t, err)

	assert.Equal(t, "8080", c.Port)
	assert.Equal(t, 15*time.Minute, c.AccessTokenTTL)
	assert.Equal(t, 7*24*time.Hour, c.RefreshTokenTTL)
	assert.Equal(t, 15*time.Minute, c.LinkTTL)
	assert.Equal(t, 2, c.RateLimitMax)
	assert.False(t, c.IsProduction())
	assert.NotEqual(t, c.AccessTokenSecret, c.RefreshTokenSecret)
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name string
		vars map[string]string
	}{
		{"same secrets", map[string]string{"ACCESS_TOKEN_SECRET": "s", "REFRESH_TOKEN_SECRET": "s"}},
		{"default secrets in production", map[string]string{"ENV": "production"}},
		{"unknown db adapter", map[string]string{"DB_ADAPTER": "mongo"}},
		{"unknown session adapter", map[string]string{"SESSION_ADAPTER": "memcached"}},
		{"mailjet without keys", map[string]string{"MAILER": "mailjet"}},
		{"bad port", map[string]string{"PORT": "http"}},
		{"zero rate limit", map[string]string{"RATE_LIMIT_MAX": "0"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vars := base()
			for k, v := range tt.vars {
				vars[k] = v
			}
			_, err := FromMap(vars)
			assert.Error(t, err)
		})
	}
}

func TestProductionWithSecrets(t *testing.T) {
	vars := base()
	vars["ENV"] = "production"
	vars["ACCESS_TOKEN_SECRET"] = "a-long-access-secret"
	vars["REFRESH_TOKEN_SECRET"] = "a-long-refresh-secret"
	vars["CORS_ORIGINS"] = "https://app.example.com,https://admin.example.com"

	c, err := FromMap(vars)
	require.NoError(t, err)
	assert.True(t, c.IsProduction())
	assert.Equal(t, []string{"https://app.example.com", "https://admin.example.com"}, c.CORSOrigins)
}

func TestBuildPostgresDSN(t *testing.T) {
	c := &Config{PostgresHost: "db", PostgresUser: "u", PostgresDB: "auth", PostgresPassword: "p"}
	dsn, err := c.BuildPostgresDSN()
	require.NoError(t, err)
	assert.Equal(t, "host=db port=5432 user=u dbname=auth sslmode=disable password=p", dsn)

	c = &Config{PostgresDSN: "postgres://x"}
	dsn, err = c.BuildPostgresDSN()
	require.NoError(t, err)
	assert.Equal(t, "postgres://x", dsn)

	_, err = (&Config{}).BuildPostgresDSN()
	assert.Error(t, err)
}
