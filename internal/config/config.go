package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

const defaultSecret = "change-me"

type Config struct {
	Port       string `env:"PORT" envDefault:"8080"`
	Env        string `env:"ENV" envDefault:"development"`
	LogLevel   string `env:"LOG_LEVEL" envDefault:"info"`
	DBAdapter  string `env:"DB_ADAPTER" envDefault:"postgres"`
	SQLiteFile string `env:"SQLITE_FILE" envDefault:"./data/authcore.db"`
	// PostgreSQL connection settings
	PostgresDSN      string `env:"POSTGRES_DSN"`
	PostgresHost     string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort     string `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser     string `env:"POSTGRES_USER" envDefault:"authcore"`
	PostgresPassword string `env:"POSTGRES_PASSWORD"`
	PostgresDB       string `env:"POSTGRES_DB" envDefault:"authcore"`
	PostgresSSLMode  string `env:"POSTGRES_SSLMODE" envDefault:"disable"`
	MigrationsDir    string `env:"MIGRATIONS_DIR" envDefault:"./migrations"`

	SessionAdapter string `env:"SESSION_ADAPTER" envDefault:"redis"`
	RedisURL       string `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`

	AccessTokenSecret  string        `env:"ACCESS_TOKEN_SECRET" envDefault:"change-me"`
	RefreshTokenSecret string        `env:"REFRESH_TOKEN_SECRET" envDefault:"change-me-too"`
	AccessTokenTTL     time.Duration `env:"ACCESS_TOKEN_TTL" envDefault:"15m"`
	RefreshTokenTTL    time.Duration `env:"REFRESH_TOKEN_TTL" envDefault:"168h"`
	LinkTTL            time.Duration `env:"LINK_TTL" envDefault:"15m"`
	FrontendURL        string        `env:"FRONTEND_URL" envDefault:"http://localhost:5173"`

	GoogleClientID     string `env:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `env:"GOOGLE_CLIENT_SECRET"`
	GoogleRedirectURL  string `env:"GOOGLE_REDIRECT_URL" envDefault:"http://localhost:8080/users/oauth/google/callback"`
	GoogleAuthURL      string `env:"GOOGLE_AUTH_URL" envDefault:"https://accounts.google.com/o/oauth2/v2/auth"`
	GoogleTokenURL     string `env:"GOOGLE_TOKEN_URL" envDefault:"https://oauth2.googleapis.com/token"`

	Mailer           string `env:"MAILER" envDefault:"log"`
	MailjetAPIKey    string `env:"MAILJET_API_KEY"`
	MailjetSecretKey string `env:"MAILJET_SECRET_KEY"`
	MailFromEmail    string `env:"MAIL_FROM_EMAIL" envDefault:"no-reply@example.com"`
	MailFromName     string `env:"MAIL_FROM_NAME" envDefault:"Authcore"`
	MailjetBaseURL   string `env:"MAILJET_BASE_URL"`

	OutboundTimeout time.Duration `env:"OUTBOUND_TIMEOUT" envDefault:"10s"`
	RateLimitMax    int           `env:"RATE_LIMIT_MAX" envDefault:"2"`
	RateLimitWindow time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"15m"`
	CORSOrigins     []string      `env:"CORS_ORIGINS" envSeparator:","`
}

// IsProduction reports whether cookies must be Secure and error details hidden.
func (c *Config) IsProduction() bool {
	switch strings.ToLower(c.Env) {
	case "production", "prod":
		return true
	}
	return false
}

// BuildPostgresDSN constructs a PostgreSQL DSN from individual components or returns the provided DSN
func (c *Config) BuildPostgresDSN() (string, error) {
	if c.PostgresDSN != "" {
		return c.PostgresDSN, nil
	}

	if c.PostgresHost == "" {
		return "", errors.New("POSTGRES_HOST or POSTGRES_DSN must be set")
	}
	if c.PostgresUser == "" {
		return "", errors.New("POSTGRES_USER must be set")
	}
	if c.PostgresDB == "" {
		return "", errors.New("POSTGRES_DB must be set")
	}

	port := c.PostgresPort
	if port == "" {
		port = "5432"
	}
	sslMode := c.PostgresSSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	dsn := fmt.Sprintf("host=%s port=%s user=%s dbname=%s sslmode=%s",
		c.PostgresHost, port, c.PostgresUser, c.PostgresDB, sslMode)
	if c.PostgresPassword != "" {
		dsn += " password=" + c.PostgresPassword
	}
	return dsn, nil
}

// New loads the configuration from the process environment.
func New() (*Config, error) {
	return load(env.Options{})
}

// FromMap loads the configuration from vars instead of the process environment.
func FromMap(vars map[string]string) (*Config, error) {
	return load(env.Options{Environment: vars})
}

func load(opts env.Options) (*Config, error) {
	c := &Config{}
	if err := env.ParseWithOptions(c, opts); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) validate() error {
	switch c.DBAdapter {
	case "postgres":
		dsn, err := c.BuildPostgresDSN()
		if err != nil {
			return fmt.Errorf("postgres configuration error: %w", err)
		}
		c.PostgresDSN = dsn
	case "sqlite":
		if c.SQLiteFile == "" {
			return errors.New("SQLITE_FILE must be set when DB_ADAPTER=sqlite")
		}
	case "memory":
	default:
		return fmt.Errorf("unsupported DB_ADAPTER: %s (supported: postgres, sqlite, memory)", c.DBAdapter)
	}

	switch c.SessionAdapter {
	case "redis":
		if c.RedisURL == "" {
			return errors.New("REDIS_URL must be set when SESSION_ADAPTER=redis")
		}
	case "memory":
	default:
		return fmt.Errorf("unsupported SESSION_ADAPTER: %s (supported: redis, memory)", c.SessionAdapter)
	}

	if c.AccessTokenSecret == "" || c.RefreshTokenSecret == "" {
		return errors.New("ACCESS_TOKEN_SECRET and REFRESH_TOKEN_SECRET must be set")
	}
	if c.AccessTokenSecret == c.RefreshTokenSecret {
		return errors.New("ACCESS_TOKEN_SECRET and REFRESH_TOKEN_SECRET must differ")
	}
	if c.IsProduction() {
		if strings.HasPrefix(c.AccessTokenSecret, defaultSecret) || strings.HasPrefix(c.RefreshTokenSecret, defaultSecret) {
			return errors.New("token secrets must be set in production")
		}
	}
	if c.AccessTokenTTL <= 0 || c.RefreshTokenTTL <= 0 || c.LinkTTL <= 0 {
		return errors.New("token and link TTLs must be positive")
	}

	switch c.Mailer {
	case "log":
	case "mailjet":
		if c.MailjetAPIKey == "" || c.MailjetSecretKey == "" {
			return errors.New("MAILJET_API_KEY and MAILJET_SECRET_KEY must be set when MAILER=mailjet")
		}
	default:
		return fmt.Errorf("unsupported MAILER: %s (supported: log, mailjet)", c.Mailer)
	}

	if c.RateLimitMax <= 0 || c.RateLimitWindow <= 0 {
		return errors.New("RATE_LIMIT_MAX and RATE_LIMIT_WINDOW must be positive")
	}

	if _, err := strconv.Atoi(c.Port); err != nil {
		return fmt.Errorf("invalid PORT: %s", c.Port)
	}
	return nil
}
