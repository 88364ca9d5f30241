package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/example/authcore/internal/config"
	"github.com/example/authcore/internal/store"
)

func main() {
	var (
		command = flag.String("command", "up", "Command: up, down, version, force, purge-links")
		steps   = flag.Int("steps", 0, "Number of migration steps (for up/down)")
		version = flag.Uint("version", 0, "Target version (for force command)")
		dir     = flag.String("dir", "", "Migrations directory (defaults to MIGRATIONS_DIR)")
	)
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stderr, nil))
	if err := run(*command, *steps, *version, *dir, log); err != nil {
		log.Error(*command+" failed", "error", err)
		os.Exit(1)
	}
}

func run(command string, steps int, version uint, dir string, log *slog.Logger) error {
	cfg, err := config.New()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if dir == "" {
		dir = cfg.MigrationsDir
	}

	if command == "purge-links" {
		return purgeLinks(cfg, log)
	}

	if cfg.DBAdapter != "postgres" {
		return fmt.Errorf("migrations only work with PostgreSQL, current adapter: %s", cfg.DBAdapter)
	}
	m, err := store.NewMigrator(dir, cfg.PostgresDSN)
	if err != nil {
		return err
	}
	defer m.Close()

	switch command {
	case "up":
		if err := m.Up(steps); err != nil {
			return err
		}
		log.Info("migrations applied")
	case "down":
		if err := m.Down(steps); err != nil {
			return err
		}
		log.Info("migrations rolled back")
	case "version":
		v, dirty, err := m.Version()
		if err != nil {
			return err
		}
		if dirty {
			return fmt.Errorf("database is in a dirty state (version %d)", v)
		}
		fmt.Printf("Current migration version: %d\n", v)
	case "force":
		if version == 0 {
			return fmt.Errorf("version required for force command (use -version flag)")
		}
		if err := m.Force(int(version)); err != nil {
			return err
		}
		log.Info("forced database version", "version", version)
	default:
		return fmt.Errorf("unknown command: %s (supported: up, down, version, force, purge-links)", command)
	}
	return nil
}

// purgeLinks deletes expired verification and reset links.
func purgeLinks(cfg *config.Config, log *slog.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	var (
		db  store.DB
		err error
	)
	switch cfg.DBAdapter {
	case "postgres":
		db, err = store.NewPostgresDB(ctx, cfg.PostgresDSN)
	case "sqlite":
		db, err = store.NewSQLiteDB(ctx, cfg.SQLiteFile)
	default:
		return fmt.Errorf("purge-links needs a persistent store, current adapter: %s", cfg.DBAdapter)
	}
	if err != nil {
		return err
	}
	defer db.Close()

	n, err := db.PurgeExpiredLinks(ctx, time.Now().UTC())
	if err != nil {
		return err
	}
	log.Info("purged expired links", "count", n)
	return nil
}
