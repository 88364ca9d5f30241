package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/example/authcore/internal/apperr"
	"github.com/jackc/pgx/v5/pgconn"
)

type dialect int

const (
	dialectSQLite dialect = iota
	dialectPostgres
)

// SQLDB implements DB over database/sql for SQLite and PostgreSQL. Queries
// are written with '?' placeholders and rebound for PostgreSQL.
type SQLDB struct {
	db      *sql.DB
	dialect dialect
}

func (s *SQLDB) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }
func (s *SQLDB) Close() error                   { return s.db.Close() }

func (s *SQLDB) q(query string) string {
	if s.dialect != dialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *SQLDB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// classify maps driver constraint errors onto the apperr taxonomy.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return fmt.Errorf("%w: %s", apperr.ErrAlreadyExists, pgErr.ConstraintName)
		case "23503":
			return fmt.Errorf("%w: %s", apperr.ErrNotFound, pgErr.ConstraintName)
		}
		return err
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "UNIQUE constraint failed"), strings.Contains(msg, "PRIMARY KEY constraint failed"):
		return fmt.Errorf("%w: %s", apperr.ErrAlreadyExists, msg)
	case strings.Contains(msg, "FOREIGN KEY constraint failed"):
		return fmt.Errorf("%w: %s", apperr.ErrNotFound, msg)
	}
	return err
}

func ms(t time.Time) int64 { return t.UnixMilli() }

func fromMS(v int64) time.Time { return time.UnixMilli(v).UTC() }

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func affectedOrNotFound(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

// users

const userColumns = `id,role,name,email,email_verified,password_hash,avatar_url,created_at,updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner) (*User, error) {
	var (
		u                User
		role             string
		hash, avatar     sql.NullString
		created, updated int64
	)
	if err := row.Scan(&u.ID, &role, &u.Name, &u.Email, &u.EmailVerified, &hash, &avatar, &created, &updated); err != nil {
		return nil, classify(err)
	}
	u.Role = Role(role)
	u.PasswordHash = hash.String
	u.AvatarURL = avatar.String
	u.CreatedAt = fromMS(created)
	u.UpdatedAt = fromMS(updated)
	return &u, nil
}

func (s *SQLDB) insertUser(ctx context.Context, ex execer, u *User) error {
	_, err := ex.ExecContext(ctx, s.q(`INSERT INTO users(`+userColumns+`) VALUES(?,?,?,?,?,?,?,?,?)`),
		u.ID, string(u.Role), u.Name, u.Email, u.EmailVerified, nullable(u.PasswordHash), nullable(u.AvatarURL), ms(u.CreatedAt), ms(u.UpdatedAt))
	return classify(err)
}

func (s *SQLDB) InsertUser(ctx context.Context, u *User) error {
	return s.insertUser(ctx, s.db, u)
}

func (s *SQLDB) RegisterUser(ctx context.Context, u *User, v *VerificationLink) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.insertUser(ctx, tx, u); err != nil {
			return err
		}
		return s.insertVerification(ctx, tx, v)
	})
}

func (s *SQLDB) FindUserByID(ctx context.Context, id string) (*User, error) {
	return scanUser(s.db.QueryRowContext(ctx, s.q(`SELECT `+userColumns+` FROM users WHERE id = ?`), id))
}

func (s *SQLDB) FindUserByEmail(ctx context.Context, email string) (*User, error) {
	return scanUser(s.db.QueryRowContext(ctx, s.q(`SELECT `+userColumns+` FROM users WHERE email = ?`), email))
}

func (s *SQLDB) UpdateUser(ctx context.Context, u *User) error {
	res, err := s.db.ExecContext(ctx, s.q(`UPDATE users SET role=?,name=?,email=?,email_verified=?,password_hash=?,avatar_url=?,updated_at=? WHERE id=?`),
		string(u.Role), u.Name, u.Email, u.EmailVerified, nullable(u.PasswordHash), nullable(u.AvatarURL), ms(u.UpdatedAt), u.ID)
	if err != nil {
		return classify(err)
	}
	return affectedOrNotFound(res)
}

func (s *SQLDB) ConfirmExternalLogin(ctx context.Context, id, avatarURL string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, s.q(`UPDATE users SET email_verified = TRUE, avatar_url = COALESCE(NULLIF(avatar_url, ''), ?), updated_at = ? WHERE id = ?`),
		nullable(avatarURL), ms(at), id)
	if err != nil {
		return classify(err)
	}
	return affectedOrNotFound(res)
}

func (s *SQLDB) DeleteUser(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.q(`DELETE FROM users WHERE id = ?`), id)
	if err != nil {
		return classify(err)
	}
	return affectedOrNotFound(res)
}

func (s *SQLDB) ListUsers(ctx context.Context) ([]*User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var users []*User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// verification links

func (s *SQLDB) insertVerification(ctx context.Context, ex execer, v *VerificationLink) error {
	_, err := ex.ExecContext(ctx, s.q(`INSERT INTO verification_links(id,user_id,expires_at,created_at) VALUES(?,?,?,?)`),
		v.ID, v.UserID, ms(v.ExpiresAt), ms(v.CreatedAt))
	return classify(err)
}

func (s *SQLDB) InsertVerification(ctx context.Context, v *VerificationLink) error {
	return s.insertVerification(ctx, s.db, v)
}

func scanVerification(row scanner) (*VerificationLink, error) {
	var (
		v                VerificationLink
		expires, created int64
	)
	if err := row.Scan(&v.ID, &v.UserID, &expires, &created); err != nil {
		return nil, classify(err)
	}
	v.ExpiresAt = fromMS(expires)
	v.CreatedAt = fromMS(created)
	return &v, nil
}

func (s *SQLDB) FindVerificationByID(ctx context.Context, id string) (*VerificationLink, error) {
	return scanVerification(s.db.QueryRowContext(ctx, s.q(`SELECT id,user_id,expires_at,created_at FROM verification_links WHERE id = ?`), id))
}

func (s *SQLDB) FindVerificationByUser(ctx context.Context, userID string) (*VerificationLink, error) {
	return scanVerification(s.db.QueryRowContext(ctx, s.q(`SELECT id,user_id,expires_at,created_at FROM verification_links WHERE user_id = ?`), userID))
}

func (s *SQLDB) DeleteVerificationByUser(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, s.q(`DELETE FROM verification_links WHERE user_id = ?`), userID)
	return err
}

func (s *SQLDB) ConfirmVerification(ctx context.Context, v *VerificationLink, at time.Time) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, s.q(`DELETE FROM verification_links WHERE id = ?`), v.ID)
		if err != nil {
			return err
		}
		if err := affectedOrNotFound(res); err != nil {
			return err
		}
		res, err = tx.ExecContext(ctx, s.q(`UPDATE users SET email_verified = ?, updated_at = ? WHERE id = ?`), true, ms(at), v.UserID)
		if err != nil {
			return err
		}
		return affectedOrNotFound(res)
	})
}

// reset links

func (s *SQLDB) InsertReset(ctx context.Context, r *ResetLink) error {
	_, err := s.db.ExecContext(ctx, s.q(`INSERT INTO reset_links(id,user_id,expires_at,created_at,updated_at) VALUES(?,?,?,?,?)`),
		r.ID, r.UserID, ms(r.ExpiresAt), ms(r.CreatedAt), ms(r.UpdatedAt))
	return classify(err)
}

func scanReset(row scanner) (*ResetLink, error) {
	var (
		r                         ResetLink
		expires, created, updated int64
	)
	if err := row.Scan(&r.ID, &r.UserID, &expires, &created, &updated); err != nil {
		return nil, classify(err)
	}
	r.ExpiresAt = fromMS(expires)
	r.CreatedAt = fromMS(created)
	r.UpdatedAt = fromMS(updated)
	return &r, nil
}

func (s *SQLDB) FindResetByID(ctx context.Context, id string) (*ResetLink, error) {
	return scanReset(s.db.QueryRowContext(ctx, s.q(`SELECT id,user_id,expires_at,created_at,updated_at FROM reset_links WHERE id = ?`), id))
}

func (s *SQLDB) FindResetByUser(ctx context.Context, userID string) (*ResetLink, error) {
	return scanReset(s.db.QueryRowContext(ctx, s.q(`SELECT id,user_id,expires_at,created_at,updated_at FROM reset_links WHERE user_id = ?`), userID))
}

func (s *SQLDB) DeleteResetByUser(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, s.q(`DELETE FROM reset_links WHERE user_id = ?`), userID)
	return err
}

func (s *SQLDB) CompleteReset(ctx context.Context, r *ResetLink, passwordHash string, at time.Time) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, s.q(`DELETE FROM reset_links WHERE id = ?`), r.ID)
		if err != nil {
			return err
		}
		if err := affectedOrNotFound(res); err != nil {
			return err
		}
		res, err = tx.ExecContext(ctx, s.q(`UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`), passwordHash, ms(at), r.UserID)
		if err != nil {
			return err
		}
		return affectedOrNotFound(res)
	})
}

func (s *SQLDB) PurgeExpiredLinks(ctx context.Context, now time.Time) (int64, error) {
	var total int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for _, table := range []string{"verification_links", "reset_links"} {
			res, err := tx.ExecContext(ctx, s.q(`DELETE FROM `+table+` WHERE expires_at < ?`), ms(now))
			if err != nil {
				return fmt.Errorf("purge %s: %w", table, err)
			}
			n, _ := res.RowsAffected()
			total += n
		}
		return nil
	})
	return total, err
}

// todos

func scanTodo(row scanner) (*Todo, error) {
	var (
		t                Todo
		created, updated int64
	)
	if err := row.Scan(&t.ID, &t.OwnerID, &t.Title, &t.Done, &created, &updated); err != nil {
		return nil, classify(err)
	}
	t.CreatedAt = fromMS(created)
	t.UpdatedAt = fromMS(updated)
	return &t, nil
}

func (s *SQLDB) InsertTodo(ctx context.Context, t *Todo) error {
	_, err := s.db.ExecContext(ctx, s.q(`INSERT INTO todos(id,owner_id,title,done,created_at,updated_at) VALUES(?,?,?,?,?,?)`),
		t.ID, t.OwnerID, t.Title, t.Done, ms(t.CreatedAt), ms(t.UpdatedAt))
	return classify(err)
}

func (s *SQLDB) FindTodo(ctx context.Context, id string) (*Todo, error) {
	return scanTodo(s.db.QueryRowContext(ctx, s.q(`SELECT id,owner_id,title,done,created_at,updated_at FROM todos WHERE id = ?`), id))
}

func (s *SQLDB) ListTodos(ctx context.Context, ownerID string) ([]*Todo, error) {
	query := `SELECT id,owner_id,title,done,created_at,updated_at FROM todos`
	var args []any
	if ownerID != "" {
		query += ` WHERE owner_id = ?`
		args = append(args, ownerID)
	}
	rows, err := s.db.QueryContext(ctx, s.q(query+` ORDER BY id`), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	todos := []*Todo{}
	for rows.Next() {
		t, err := scanTodo(rows)
		if err != nil {
			return nil, err
		}
		todos = append(todos, t)
	}
	return todos, rows.Err()
}

func (s *SQLDB) UpdateTodo(ctx context.Context, t *Todo) error {
	res, err := s.db.ExecContext(ctx, s.q(`UPDATE todos SET title = ?, done = ?, updated_at = ? WHERE id = ?`), t.Title, t.Done, ms(t.UpdatedAt), t.ID)
	if err != nil {
		return classify(err)
	}
	return affectedOrNotFound(res)
}

func (s *SQLDB) DeleteTodo(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.q(`DELETE FROM todos WHERE id = ?`), id)
	if err != nil {
		return classify(err)
	}
	return affectedOrNotFound(res)
}
