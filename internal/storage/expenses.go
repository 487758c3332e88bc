package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"pennylogs/internal/core"
	"pennylogs/internal/ports"
)

const expenseColumns = `id, name, amount_cents, category, category_name, date, monthly, is_paused, last_added, next_date, start_date`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExpense(row rowScanner) (core.Expense, error) {
	var (
		e                                   core.Expense
		date, lastAdded, nextDate, startDay string
		monthly, paused                     int
	)
	if err := row.Scan(&e.ID, &e.Name, &e.Amount.Cents, &e.Category, &e.CategoryName,
		&date, &monthly, &paused, &lastAdded, &nextDate, &startDay); err != nil {
		return core.Expense{}, err
	}
	var err error
	if e.Date, err = core.ParseDate(date); err != nil {
		return core.Expense{}, fmt.Errorf("expense %s date: %w", e.ID, err)
	}
	if e.LastAdded, err = core.ParseTimestamp(lastAdded); err != nil {
		return core.Expense{}, fmt.Errorf("expense %s lastAdded: %w", e.ID, err)
	}
	if e.NextDate, err = core.ParseDate(nextDate); err != nil {
		return core.Expense{}, fmt.Errorf("expense %s nextDate: %w", e.ID, err)
	}
	if e.StartDate, err = core.ParseDate(startDay); err != nil {
		return core.Expense{}, fmt.Errorf("expense %s startDate: %w", e.ID, err)
	}
	e.Monthly = monthly != 0
	e.IsPaused = paused != 0
	return e, nil
}

func timestampText(t core.Timestamp) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func (r *SQLiteRepository) ListExpenses(ctx context.Context, uid string) ([]core.Expense, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+expenseColumns+` FROM expenses WHERE user_id = ? ORDER BY seq`, uid)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	defer rows.Close()

	var out []core.Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) GetExpense(ctx context.Context, uid, id string) (core.Expense, error) {
	return getExpense(ctx, r.db, uid, id)
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func getExpense(ctx context.Context, q querier, uid, id string) (core.Expense, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+expenseColumns+` FROM expenses WHERE user_id = ? AND id = ?`, uid, id)
	e, err := scanExpense(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Expense{}, fmt.Errorf("expense %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.Expense{}, fmt.Errorf("get expense %s: %w", id, err)
	}
	return e, nil
}

func insertExpense(ctx context.Context, q querier, uid string, e core.Expense) (core.Expense, error) {
	e.ID = uuid.NewString()
	_, err := q.ExecContext(ctx, `
		INSERT INTO expenses (id, user_id, name, amount_cents, category, category_name, date,
			monthly, is_paused, last_added, next_date, start_date, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, uid, e.Name, e.Amount.Cents, e.Category, e.CategoryName, e.Date.String(),
		boolToInt(e.Monthly), boolToInt(e.IsPaused), timestampText(e.LastAdded),
		e.NextDate.String(), e.StartDate.String(), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return core.Expense{}, fmt.Errorf("insert expense: %w", err)
	}
	return e, nil
}

func (r *SQLiteRepository) CreateExpense(ctx context.Context, uid string, e core.Expense) (core.Expense, error) {
	if err := e.Validate(); err != nil {
		return core.Expense{}, err
	}
	created, err := insertExpense(ctx, r.db, uid, e)
	if err != nil {
		return core.Expense{}, err
	}
	slog.DebugContext(ctx, "Expense saved to SQLite",
		"id", created.ID,
		"user_id", uid,
		"amount_cents", created.Amount.Cents,
		"date", created.Date.String())
	return created, nil
}

func (r *SQLiteRepository) UpdateExpense(ctx context.Context, uid, id string, patch core.ExpensePatch) (core.Expense, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Expense{}, fmt.Errorf("begin update: %w", err)
	}
	defer tx.Rollback()

	current, err := getExpense(ctx, tx, uid, id)
	if err != nil {
		return core.Expense{}, err
	}
	e := patch.Apply(current)
	if err := e.Validate(); err != nil {
		return core.Expense{}, err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE expenses SET name = ?, amount_cents = ?, category = ?, category_name = ?, date = ?,
			monthly = ?, is_paused = ?, last_added = ?, next_date = ?, start_date = ?
		WHERE user_id = ? AND id = ?`,
		e.Name, e.Amount.Cents, e.Category, e.CategoryName, e.Date.String(),
		boolToInt(e.Monthly), boolToInt(e.IsPaused), timestampText(e.LastAdded),
		e.NextDate.String(), e.StartDate.String(), uid, id)
	if err != nil {
		return core.Expense{}, fmt.Errorf("update expense %s: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return core.Expense{}, fmt.Errorf("commit update: %w", err)
	}
	return e, nil
}

func (r *SQLiteRepository) DeleteExpense(ctx context.Context, uid, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM expenses WHERE user_id = ? AND id = ?`, uid, id)
	if err != nil {
		return fmt.Errorf("delete expense %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete expense %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("expense %s: %w", id, core.ErrNotFound)
	}
	return nil
}

// InsertRollForward claims the ledger key and inserts the instance in one
// transaction; a second claim for the same key is a no-op.
func (r *SQLiteRepository) InsertRollForward(ctx context.Context, uid string, key ports.RollForwardKey, instance core.Expense) (core.Expense, bool, error) {
	if err := instance.Validate(); err != nil {
		return core.Expense{}, false, err
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Expense{}, false, fmt.Errorf("begin roll-forward: %w", err)
	}
	defer tx.Rollback()

	e, err := insertExpense(ctx, tx, uid, instance)
	if err != nil {
		return core.Expense{}, false, err
	}
	res, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO rollforwards (user_id, template_id, year_month, expense_id, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		uid, key.TemplateID, key.YearMonth, e.ID, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return core.Expense{}, false, fmt.Errorf("claim roll-forward: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return core.Expense{}, false, fmt.Errorf("claim roll-forward: %w", err)
	}
	if n == 0 {
		// Already claimed; the deferred rollback discards the instance.
		return core.Expense{}, false, nil
	}
	if err := tx.Commit(); err != nil {
		return core.Expense{}, false, fmt.Errorf("commit roll-forward: %w", err)
	}
	return e, true, nil
}
