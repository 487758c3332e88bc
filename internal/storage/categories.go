package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"pennylogs/internal/core"
)

func (r *SQLiteRepository) ListCategories(ctx context.Context, uid string) ([]core.Category, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, icon FROM custom_categories WHERE user_id = ? ORDER BY seq`, uid)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var out []core.Category
	for rows.Next() {
		c := core.Category{Custom: true}
		if err := rows.Scan(&c.ID, &c.Name, &c.Icon); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) CreateCategory(ctx context.Context, uid string, c core.Category) (core.Category, error) {
	if err := c.Validate(); err != nil {
		return core.Category{}, err
	}
	c.ID = uuid.NewString()
	c.Custom = true
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO custom_categories (id, user_id, name, icon) VALUES (?, ?, ?, ?)`,
		c.ID, uid, c.Name, c.Icon)
	if err != nil {
		return core.Category{}, fmt.Errorf("create category: %w", err)
	}
	return c, nil
}

func (r *SQLiteRepository) DeleteCategory(ctx context.Context, uid, id string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM custom_categories WHERE user_id = ? AND id = ?`, uid, id)
	if err != nil {
		return fmt.Errorf("delete category %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("category %s: %w", id, core.ErrNotFound)
	}
	return nil
}

func (r *SQLiteRepository) GetPreferences(ctx context.Context, uid string) (core.Preferences, error) {
	var (
		p        core.Preferences
		reminder int
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT display_currency, roll_forward_reminder FROM user_preferences WHERE user_id = ?`,
		uid).Scan(&p.DisplayCurrency, &reminder)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Preferences{DisplayCurrency: core.ReferenceCurrency}, nil
	}
	if err != nil {
		return core.Preferences{}, fmt.Errorf("get preferences: %w", err)
	}
	p.RollForwardReminder = reminder != 0
	return p, nil
}

func (r *SQLiteRepository) PutPreferences(ctx context.Context, uid string, p core.Preferences) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO user_preferences (user_id, display_currency, roll_forward_reminder) VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			display_currency = excluded.display_currency,
			roll_forward_reminder = excluded.roll_forward_reminder`,
		uid, p.DisplayCurrency, boolToInt(p.RollForwardReminder))
	if err != nil {
		return fmt.Errorf("put preferences: %w", err)
	}
	return nil
}
