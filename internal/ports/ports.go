// Package ports declares the persistence contracts the services consume.
// Every call is scoped to a user id; records never cross user namespaces.
package ports

import (
	"context"
	"time"

	"pennylogs/internal/core"
)

type (
	// ExpenseStore persists expenses/{uid}/{expenseId}.
	ExpenseStore interface {
		// ListExpenses returns all of a user's expenses in insertion order.
		ListExpenses(ctx context.Context, uid string) ([]core.Expense, error)
		GetExpense(ctx context.Context, uid, id string) (core.Expense, error)
		// CreateExpense assigns the id and returns the stored record.
		CreateExpense(ctx context.Context, uid string, e core.Expense) (core.Expense, error)
		UpdateExpense(ctx context.Context, uid, id string, patch core.ExpensePatch) (core.Expense, error)
		DeleteExpense(ctx context.Context, uid, id string) error
		// InsertRollForward claims key and creates instance in one step. When the
		// key was already claimed nothing is written and created is false.
		InsertRollForward(ctx context.Context, uid string, key RollForwardKey, instance core.Expense) (e core.Expense, created bool, err error)
	}

	// UserLister enumerates users for the scheduled roll-forward job.
	UserLister interface {
		ListUserIDs(ctx context.Context) ([]string, error)
	}

	// CategoryStore persists customCategories/{uid}/{categoryId}.
	CategoryStore interface {
		ListCategories(ctx context.Context, uid string) ([]core.Category, error)
		CreateCategory(ctx context.Context, uid string, c core.Category) (core.Category, error)
		DeleteCategory(ctx context.Context, uid, id string) error
	}

	// PreferenceStore persists userPreferences/{uid}.
	PreferenceStore interface {
		GetPreferences(ctx context.Context, uid string) (core.Preferences, error)
		PutPreferences(ctx context.Context, uid string, p core.Preferences) error
	}

	UserStore interface {
		CreateUser(ctx context.Context, email, passwordHash string) (core.User, error)
		GetUserByEmail(ctx context.Context, email string) (core.User, string, error)
		GetUser(ctx context.Context, id string) (core.User, error)
	}

	SessionStore interface {
		CreateSession(ctx context.Context, tokenHash, uid string, expiresAt time.Time) error
		// GetSession returns the owner of a live session.
		GetSession(ctx context.Context, tokenHash string, now time.Time) (uid string, err error)
		DeleteSession(ctx context.Context, tokenHash string) (uid string, err error)
		CountSessions(ctx context.Context, uid string, now time.Time) (int, error)
	}

	// AttemptStore persists failed login counters per email.
	AttemptStore interface {
		GetAttempts(ctx context.Context, email string) (LoginAttempts, error)
		PutAttempts(ctx context.Context, email string, a LoginAttempts) error
		ResetAttempts(ctx context.Context, email string) error
	}

	// ExpenseExporter receives created expenses for an external sink.
	ExpenseExporter interface {
		Export(ctx context.Context, uid string, e core.Expense) (ref string, err error)
	}

	// Store bundles every persistence port a backend provides.
	Store interface {
		ExpenseStore
		UserLister
		CategoryStore
		PreferenceStore
		UserStore
		SessionStore
		AttemptStore
		Close() error
	}
)

// RollForwardKey is the idempotency key of one template's instance for one month.
type RollForwardKey struct {
	TemplateID string
	YearMonth  string // "2006-01"
}

// LoginAttempts counts failures inside a window that opened at WindowStart.
type LoginAttempts struct {
	Failures    int
	WindowStart time.Time
}
