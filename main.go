package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/example/authcore/internal/auth"
	cfg "github.com/example/authcore/internal/config"
	"github.com/example/authcore/internal/link"
	"github.com/example/authcore/internal/metrics"
	"github.com/example/authcore/internal/notify"
	"github.com/example/authcore/internal/oauth"
	"github.com/example/authcore/internal/password"
	"github.com/example/authcore/internal/ratelimit"
	"github.com/example/authcore/internal/session"
	"github.com/example/authcore/internal/store"
	"github.com/example/authcore/internal/token"
	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
)

const (
	purgeInterval = time.Hour
	// room left after an outbound call times out to write the error response
	writeHeadroom = 5 * time.Second
)

type App struct {
	Cfg     *cfg.Config
	Log     *slog.Logger
	DB      store.DB
	Links   *link.Service
	Auth    *auth.Service
	Metrics *metrics.Metrics
	Limiter ratelimit.Limiter

	// readiness checks keyed by dependency name
	checks  map[string]func(context.Context) error
	closers []func() error
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("write json", "error", err)
	}
}

func newLogger(c *cfg.Config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:     level,
		AddSource: !c.IsProduction(),
	}))
}

func openStore(ctx context.Context, c *cfg.Config, log *slog.Logger) (store.DB, error) {
	switch c.DBAdapter {
	case "sqlite":
		return store.NewSQLiteDB(ctx, c.SQLiteFile)
	case "postgres":
		log.Info("applying database migrations", "dir", c.MigrationsDir)
		if err := store.ApplyMigrations(c.MigrationsDir, c.PostgresDSN, log); err != nil {
			return nil, fmt.Errorf("migrations: %w", err)
		}
		db, err := store.NewPostgresDB(ctx, c.PostgresDSN)
		if err != nil {
			return nil, err
		}
		log.Info("connected to PostgreSQL database")
		return db, nil
	case "memory":
		log.Warn("using in-memory database (not recommended for production)")
		return store.NewMemoryDB(), nil
	default:
		return nil, fmt.Errorf("unsupported DB_ADAPTER: %s", c.DBAdapter)
	}
}

// build wires every component described by c.
func build(ctx context.Context, c *cfg.Config, log *slog.Logger) (*App, error) {
	a := &App{
		Cfg:     c,
		Log:     log,
		Metrics: metrics.New(),
		checks:  map[string]func(context.Context) error{},
	}

	db, err := openStore(ctx, c, log)
	if err != nil {
		return nil, err
	}
	a.DB = db
	a.closers = append(a.closers, db.Close)
	a.checks["database"] = db.Ping

	var sessions session.Store
	switch c.SessionAdapter {
	case "redis":
		opts, err := redis.ParseURL(c.RedisURL)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		rdb := redis.NewClient(opts)
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			a.Close()
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		a.closers = append(a.closers, rdb.Close)
		a.checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
		sessions = session.NewRedis(rdb)
		a.Limiter = ratelimit.NewRedis(rdb, "rate-limit:", c.RateLimitMax, c.RateLimitWindow)
	default:
		log.Warn("using in-memory session store; sessions do not survive restarts")
		sessions = session.NewMemory()
		a.Limiter = ratelimit.NewMemory(c.RateLimitMax, c.RateLimitWindow)
	}

	tokens, err := token.NewIssuer(token.Config{
		AccessSecret:  []byte(c.AccessTokenSecret),
		RefreshSecret: []byte(c.RefreshTokenSecret),
		AccessTTL:     c.AccessTokenTTL,
		RefreshTTL:    c.RefreshTokenTTL,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	var notifier notify.Notifier
	switch c.Mailer {
	case "mailjet":
		notifier = notify.NewMailjet(notify.MailjetConfig{
			APIKey:    c.MailjetAPIKey,
			SecretKey: c.MailjetSecretKey,
			FromEmail: c.MailFromEmail,
			FromName:  c.MailFromName,
			Timeout:   c.OutboundTimeout,
			BaseURL:   c.MailjetBaseURL,
		})
	default:
		notifier = notify.NewLog(log)
	}

	hasher := password.NewBcrypt(0)
	a.Links = link.NewService(db, hasher, link.Config{TTL: c.LinkTTL, FrontendURL: c.FrontendURL})
	a.Auth = auth.New(auth.Deps{
		DB:       db,
		Links:    a.Links,
		Tokens:   tokens,
		Sessions: sessions,
		Hasher:   hasher,
		OAuth: oauth.NewBridge(oauth.Config{
			ClientID:     c.GoogleClientID,
			ClientSecret: c.GoogleClientSecret,
			RedirectURL:  c.GoogleRedirectURL,
			AuthURL:      c.GoogleAuthURL,
			TokenURL:     c.GoogleTokenURL,
			Timeout:      c.OutboundTimeout,
		}, db),
		Notifier: notifier,
		Events:   a.Metrics,
		Log:      log,
	})
	return a, nil
}

func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.Log.Warn("close", "error", err)
		}
	}
	a.closers = nil
}

// purgeLinks removes expired verification and reset links now and then every
// interval until ctx is done.
func (a *App) purgeLinks(ctx context.Context, interval time.Duration) {
	purge := func() {
		n, err := a.Links.PurgeExpired(ctx)
		if err != nil {
			if ctx.Err() == nil {
				a.Log.Error("purge expired links", "error", err)
			}
			return
		}
		if n > 0 {
			a.Log.Info("purged expired links", "count", n)
		}
	}
	purge()
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			purge()
		}
	}
}

func (a *App) routes() http.Handler {
	r := mux.NewRouter()

	r.Use(SecurityHeaders)
	r.Use(a.Logging)
	r.Use(a.CORS)

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)
	r.HandleFunc("/ready", a.HandleReady).Methods(http.MethodGet)
	r.Handle("/metrics", a.Metrics.Handler()).Methods(http.MethodGet)

	u := r.PathPrefix("/users").Subrouter()
	u.HandleFunc("", a.HandleRegister).Methods(http.MethodPost)
	u.HandleFunc("/login", a.HandleLogin).Methods(http.MethodPost)
	u.HandleFunc("/logout", a.HandleLogout).Methods(http.MethodPost)
	u.HandleFunc("/newAccessToken", a.HandleRefresh).Methods(http.MethodPost)
	u.HandleFunc("/verify-email/{id}", a.HandleVerifyEmail).Methods(http.MethodGet)
	u.Handle("/verify-email", a.RateLimit("resend-verification", http.HandlerFunc(a.HandleResendVerification))).Methods(http.MethodPost)
	u.Handle("/forgot-password", a.RateLimit("forgot-password", http.HandlerFunc(a.HandleForgotPassword))).Methods(http.MethodPost)
	u.HandleFunc("/forgot-password/{id}", a.HandleResetPassword).Methods(http.MethodPost)
	u.HandleFunc("/oauth/google", a.HandleGoogleLogin).Methods(http.MethodPost)
	u.HandleFunc("/oauth/google/callback", a.HandleGoogleCallback).Methods(http.MethodGet)
	u.Handle("", a.RequireRole(store.RoleAdmin, http.HandlerFunc(a.HandleListUsers))).Methods(http.MethodGet)
	u.Handle("/me", a.RequireAuth(http.HandlerFunc(a.HandleMe))).Methods(http.MethodGet)
	u.Handle("/{id}", a.RequireAuth(http.HandlerFunc(a.HandleGetUser))).Methods(http.MethodGet)

	t := r.PathPrefix("/todos").Subrouter()
	t.Use(a.RequireAuth)
	t.HandleFunc("", a.HandleListTodos).Methods(http.MethodGet)
	t.HandleFunc("", a.HandleCreateTodo).Methods(http.MethodPost)
	t.HandleFunc("/{id}", a.HandleGetTodo).Methods(http.MethodGet)
	t.HandleFunc("/{id}", a.HandleUpdateTodo).Methods(http.MethodPatch)
	t.HandleFunc("/{id}", a.HandleDeleteTodo).Methods(http.MethodDelete)

	// preflight requests only need the CORS middleware
	r.PathPrefix("/").Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return r
}

func (a *App) HandleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	failed := []string{}
	for name, check := range a.checks {
		if err := check(ctx); err != nil {
			a.Log.WarnContext(ctx, "readiness check failed", "dependency", name, "error", err)
			failed = append(failed, name)
		}
	}
	if len(failed) > 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{"ready": false, "failing": strings.Join(failed, ",")})
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ready": true})
}

// newServer sizes the write timeout so a request that spends the whole
// outbound timeout on a provider or mail call can still answer.
func newServer(c *cfg.Config, h http.Handler) *http.Server {
	return &http.Server{
		Handler:      h,
		Addr:         ":" + c.Port,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: c.OutboundTimeout + writeHeadroom,
	}
}

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	c, err := cfg.New()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	log := newLogger(c)
	slog.SetDefault(log)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	app, err := build(ctx, c, log)
	if err != nil {
		return fmt.Errorf("startup: %w", err)
	}
	defer app.Close()

	go app.purgeLinks(ctx, purgeInterval)

	srv := newServer(c, app.routes())

	serveErr := make(chan error, 1)
	go func() {
		log.Info("starting server", "port", c.Port, "env", c.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serveErr:
		return fmt.Errorf("server error: %w", err)
	}
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	log.Info("server exited properly")
	return nil
}
