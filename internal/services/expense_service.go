package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"pennylogs/internal/amqp"
	"pennylogs/internal/core"
	"pennylogs/internal/currency"
	"pennylogs/internal/ports"
)

// EventPublisher announces expense changes to other processes.
type EventPublisher interface {
	PublishExpenseEvent(ctx context.Context, kind amqp.EventKind, uid, expenseID string) error
}

// Converter converts an amount in a foreign currency to the reference currency.
type Converter interface {
	Convert(ctx context.Context, from string, amount decimal.Decimal) (decimal.Decimal, error)
}

// RecurringStatus pairs a template with its computed status.
type RecurringStatus struct {
	core.Expense
	Status core.Status `json:"status"`
}

// ExpenseService orchestrates user-facing expense operations.
type ExpenseService struct {
	store      ports.ExpenseStore
	categories ports.CategoryStore
	publisher  EventPublisher
	converter  Converter
	now        func() time.Time
}

type Option func(*ExpenseService)

// WithPublisher sends change events after each successful write.
func WithPublisher(p EventPublisher) Option {
	return func(s *ExpenseService) { s.publisher = p }
}

// WithConverter enables adds in non-reference currencies.
func WithConverter(c Converter) Option {
	return func(s *ExpenseService) { s.converter = c }
}

// WithClock replaces the service clock.
func WithClock(now func() time.Time) Option {
	return func(s *ExpenseService) { s.now = now }
}

func NewExpenseService(store ports.ExpenseStore, categories ports.CategoryStore, opts ...Option) *ExpenseService {
	s := &ExpenseService{store: store, categories: categories, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Now returns the service clock reading.
func (s *ExpenseService) Now() time.Time { return s.now() }

func (s *ExpenseService) categorySet(ctx context.Context, uid string) core.CategorySet {
	if s.categories == nil {
		return core.NewCategorySet(nil)
	}
	custom, err := s.categories.ListCategories(ctx, uid)
	if err != nil {
		slog.WarnContext(ctx, "Failed to load custom categories", "user_id", uid, "error", err)
	}
	return core.NewCategorySet(custom)
}

// AddExpense persists a new expense unless one with the same name and
// category is already dated in the current month. A non-empty currency other
// than the reference currency converts the amount first.
func (s *ExpenseService) AddExpense(ctx context.Context, uid string, e core.Expense, fromCurrency string) (core.Expense, error) {
	now := s.now()
	e.Name = strings.TrimSpace(e.Name)
	if e.Date.IsEmpty() {
		e.Date = core.DateOf(now)
	}
	if err := e.Validate(); err != nil {
		return core.Expense{}, err
	}

	code, err := currency.NormalizeCode(fromCurrency)
	if err != nil {
		return core.Expense{}, err
	}
	if code != core.ReferenceCurrency {
		if s.converter == nil {
			return core.Expense{}, fmt.Errorf("no converter for %s: %w", code, currency.ErrConversionFailed)
		}
		usd, err := s.converter.Convert(ctx, code, e.Amount.Decimal())
		if err != nil {
			return core.Expense{}, fmt.Errorf("convert amount: %w", err)
		}
		if e.Amount, err = core.MoneyFromDecimal(usd); err != nil {
			return core.Expense{}, err
		}
	}

	existing, err := s.store.ListExpenses(ctx, uid)
	if err != nil {
		return core.Expense{}, fmt.Errorf("load expenses: %w", err)
	}
	if core.HasRecordInMonth(existing, e.Name, e.Category, core.YearMonthOf(now)) {
		return core.Expense{}, fmt.Errorf("%s: %w", e.Name, core.ErrDuplicateExpense)
	}

	e.CategoryName = s.categorySet(ctx, uid).Name(e.Category)
	e.NextDate = core.FirstOfNextMonth(now)
	e.LastAdded = core.Timestamp{}
	if e.Monthly {
		e.LastAdded = core.Timestamp{Time: now}
	} else {
		e.IsPaused = false
	}

	created, err := s.store.CreateExpense(ctx, uid, e)
	if err != nil {
		return core.Expense{}, fmt.Errorf("save expense: %w", err)
	}

	slog.InfoContext(ctx, "Expense added",
		"user_id", uid,
		"id", created.ID,
		"amount_cents", created.Amount.Cents,
		"monthly", created.Monthly,
		"currency", code)
	s.publish(ctx, amqp.EventCreated, uid, created.ID)
	return created, nil
}

func (s *ExpenseService) ListExpenses(ctx context.Context, uid string) ([]core.Expense, error) {
	return s.store.ListExpenses(ctx, uid)
}

func (s *ExpenseService) GetExpense(ctx context.Context, uid, id string) (core.Expense, error) {
	return s.store.GetExpense(ctx, uid, id)
}

// UpdateExpense applies a partial update. A category change re-resolves the
// display name unless the patch sets one.
func (s *ExpenseService) UpdateExpense(ctx context.Context, uid, id string, patch core.ExpensePatch) (core.Expense, error) {
	if patch.IsEmpty() {
		return s.store.GetExpense(ctx, uid, id)
	}
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		patch.Name = &name
	}
	if patch.Category != nil && patch.CategoryName == nil {
		name := s.categorySet(ctx, uid).Name(*patch.Category)
		patch.CategoryName = &name
	}
	updated, err := s.store.UpdateExpense(ctx, uid, id, patch)
	if err != nil {
		return core.Expense{}, fmt.Errorf("update expense: %w", err)
	}
	s.publish(ctx, amqp.EventUpdated, uid, id)
	return updated, nil
}

func (s *ExpenseService) DeleteExpense(ctx context.Context, uid, id string) error {
	if err := s.store.DeleteExpense(ctx, uid, id); err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	s.publish(ctx, amqp.EventDeleted, uid, id)
	return nil
}

// SetPaused toggles roll-forward for a recurring template.
func (s *ExpenseService) SetPaused(ctx context.Context, uid, id string, paused bool) (core.Expense, error) {
	e, err := s.store.GetExpense(ctx, uid, id)
	if err != nil {
		return core.Expense{}, err
	}
	if !e.Monthly {
		return core.Expense{}, fmt.Errorf("%s: %w", id, core.ErrNotRecurring)
	}
	if e.IsPaused == paused {
		return e, nil
	}
	updated, err := s.store.UpdateExpense(ctx, uid, id, core.ExpensePatch{IsPaused: &paused})
	if err != nil {
		return core.Expense{}, fmt.Errorf("set paused: %w", err)
	}
	slog.InfoContext(ctx, "Recurring expense paused state changed",
		"user_id", uid, "id", id, "paused", paused)
	s.publish(ctx, amqp.EventUpdated, uid, id)
	return updated, nil
}

// ListRecurring returns every template with its status as of today.
func (s *ExpenseService) ListRecurring(ctx context.Context, uid string, today time.Time) ([]RecurringStatus, error) {
	all, err := s.store.ListExpenses(ctx, uid)
	if err != nil {
		return nil, fmt.Errorf("load expenses: %w", err)
	}
	templates := core.Templates(all)
	out := make([]RecurringStatus, 0, len(templates))
	for _, t := range templates {
		out = append(out, RecurringStatus{Expense: t, Status: core.ComputeStatus(t, all, today)})
	}
	return out, nil
}

// MonthOverview totals a month by category. Recurring is the monthly
// commitment of active templates, independent of the month.
func (s *ExpenseService) MonthOverview(ctx context.Context, uid string, year, month int) (core.MonthOverview, error) {
	if month < 1 || month > 12 {
		return core.MonthOverview{}, fmt.Errorf("month %d: %w", month, core.ErrInvalidDate)
	}
	all, err := s.store.ListExpenses(ctx, uid)
	if err != nil {
		return core.MonthOverview{}, fmt.Errorf("load expenses: %w", err)
	}
	names := s.categorySet(ctx, uid)
	ym := core.YearMonth{Year: year, Month: time.Month(month)}

	ov := core.MonthOverview{Year: year, Month: month, ByCategory: []core.CategoryAmount{}}
	byCategory := map[string]*core.CategoryAmount{}
	for _, e := range all {
		if core.IsActiveTemplate(e) {
			ov.Recurring = ov.Recurring.Add(e.Amount)
		}
		if !ym.Contains(e.Date.Time) {
			continue
		}
		ov.Count++
		ov.Total = ov.Total.Add(e.Amount)
		key := e.Category
		if _, known := names[key]; !known {
			key = ""
		}
		ca, ok := byCategory[key]
		if !ok {
			ca = &core.CategoryAmount{Category: key, Name: names.Name(key)}
			byCategory[key] = ca
		}
		ca.Amount = ca.Amount.Add(e.Amount)
	}
	for _, ca := range byCategory {
		ov.ByCategory = append(ov.ByCategory, *ca)
	}
	sort.Slice(ov.ByCategory, func(i, j int) bool {
		a, b := ov.ByCategory[i], ov.ByCategory[j]
		if a.Amount.Cents != b.Amount.Cents {
			return a.Amount.Cents > b.Amount.Cents
		}
		return a.Name < b.Name
	})
	return ov, nil
}

func (s *ExpenseService) publish(ctx context.Context, kind amqp.EventKind, uid, id string) {
	publishEvent(ctx, s.publisher, kind, uid, id)
}

func publishEvent(ctx context.Context, p EventPublisher, kind amqp.EventKind, uid, id string) {
	if p == nil {
		return
	}
	if err := p.PublishExpenseEvent(ctx, kind, uid, id); err != nil {
		level := slog.LevelError
		if errors.Is(err, amqp.ErrCircuitOpen) {
			level = slog.LevelWarn
		}
		slog.Log(ctx, level, "Failed to publish expense event",
			"kind", kind, "user_id", uid, "id", id, "error", err)
	}
}
