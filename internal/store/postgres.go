package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// NewPostgresDB connects through the pgx database/sql driver. The schema is
// owned by the migrations directory, so this only verifies connectivity.
func NewPostgresDB(ctx context.Context, dsn string) (*SQLDB, error) {
	d, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	d.SetMaxOpenConns(20)
	d.SetConnMaxIdleTime(5 * time.Minute)

	if err := d.PingContext(ctx); err != nil {
		d.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return &SQLDB{db: d, dialect: dialectPostgres}, nil
}
