package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"pennylogs/internal/core"
	"pennylogs/internal/ports"
)

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (r *SQLiteRepository) CreateUser(ctx context.Context, email, passwordHash string) (core.User, error) {
	u := core.User{
		ID:        uuid.NewString(),
		Email:     normalizeEmail(email),
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, email, password_hash, created_at) VALUES (?, ?, ?, ?)`,
		u.ID, u.Email, passwordHash, u.CreatedAt.Format(time.RFC3339))
	if isUniqueViolation(err) {
		return core.User{}, core.ErrEmailTaken
	}
	if err != nil {
		return core.User{}, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

func scanUser(row *sql.Row, withHash bool) (core.User, string, error) {
	var (
		u         core.User
		hash      string
		createdAt string
	)
	dest := []any{&u.ID, &u.Email, &createdAt}
	if withHash {
		dest = append(dest, &hash)
	}
	if err := row.Scan(dest...); err != nil {
		return core.User{}, "", err
	}
	t, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return core.User{}, "", fmt.Errorf("parse created_at: %w", err)
	}
	u.CreatedAt = t
	return u, hash, nil
}

func (r *SQLiteRepository) GetUserByEmail(ctx context.Context, email string) (core.User, string, error) {
	email = normalizeEmail(email)
	row := r.db.QueryRowContext(ctx,
		`SELECT id, email, created_at, password_hash FROM users WHERE email = ?`, email)
	u, hash, err := scanUser(row, true)
	if errors.Is(err, sql.ErrNoRows) {
		return core.User{}, "", fmt.Errorf("user %s: %w", email, core.ErrNotFound)
	}
	if err != nil {
		return core.User{}, "", fmt.Errorf("get user by email: %w", err)
	}
	return u, hash, nil
}

func (r *SQLiteRepository) GetUser(ctx context.Context, id string) (core.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT id, email, created_at FROM users WHERE id = ?`, id)
	u, _, err := scanUser(row, false)
	if errors.Is(err, sql.ErrNoRows) {
		return core.User{}, fmt.Errorf("user %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.User{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (r *SQLiteRepository) CreateSession(ctx context.Context, tokenHash, uid string, expiresAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sessions (token_hash, user_id, expires_at) VALUES (?, ?, ?)`,
		tokenHash, uid, expiresAt.Unix())
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetSession(ctx context.Context, tokenHash string, now time.Time) (string, error) {
	var uid string
	err := r.db.QueryRowContext(ctx,
		`SELECT user_id FROM sessions WHERE token_hash = ? AND expires_at > ?`,
		tokenHash, now.Unix()).Scan(&uid)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("session: %w", core.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("get session: %w", err)
	}
	return uid, nil
}

func (r *SQLiteRepository) DeleteSession(ctx context.Context, tokenHash string) (string, error) {
	var uid string
	err := r.db.QueryRowContext(ctx,
		`DELETE FROM sessions WHERE token_hash = ? RETURNING user_id`, tokenHash).Scan(&uid)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("session: %w", core.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("delete session: %w", err)
	}
	return uid, nil
}

func (r *SQLiteRepository) CountSessions(ctx context.Context, uid string, now time.Time) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sessions WHERE user_id = ? AND expires_at > ?`, uid, now.Unix()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count sessions: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) GetAttempts(ctx context.Context, email string) (ports.LoginAttempts, error) {
	var (
		a     ports.LoginAttempts
		start int64
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT failures, window_start FROM login_attempts WHERE email = ?`,
		normalizeEmail(email)).Scan(&a.Failures, &start)
	if errors.Is(err, sql.ErrNoRows) {
		return ports.LoginAttempts{}, nil
	}
	if err != nil {
		return ports.LoginAttempts{}, fmt.Errorf("get login attempts: %w", err)
	}
	a.WindowStart = time.Unix(start, 0).UTC()
	return a, nil
}

func (r *SQLiteRepository) PutAttempts(ctx context.Context, email string, a ports.LoginAttempts) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO login_attempts (email, failures, window_start) VALUES (?, ?, ?)
		ON CONFLICT(email) DO UPDATE SET failures = excluded.failures, window_start = excluded.window_start`,
		normalizeEmail(email), a.Failures, a.WindowStart.Unix())
	if err != nil {
		return fmt.Errorf("put login attempts: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) ResetAttempts(ctx context.Context, email string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM login_attempts WHERE email = ?`, normalizeEmail(email))
	if err != nil {
		return fmt.Errorf("reset login attempts: %w", err)
	}
	return nil
}
