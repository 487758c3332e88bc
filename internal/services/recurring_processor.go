package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"pennylogs/internal/amqp"
	"pennylogs/internal/core"
	"pennylogs/internal/ports"
)

// RollForwardResult summarizes one roll-forward run.
type RollForwardResult struct {
	Checked int  `json:"checked"`
	Created int  `json:"created"`
	Skipped int  `json:"skipped"`
	Failed  int  `json:"failed"`
	Gated   bool `json:"gated"`
}

func (r *RollForwardResult) add(o RollForwardResult) {
	r.Checked += o.Checked
	r.Created += o.Created
	r.Skipped += o.Skipped
	r.Failed += o.Failed
}

// RecurringProcessor keeps a user's recurring templates consistent and
// materializes them into monthly instances.
type RecurringProcessor struct {
	store     ports.ExpenseStore
	gate      RollForwardGate
	publisher EventPublisher
}

// NewRecurringProcessor returns a processor; a nil gate means CatchUpGate.
func NewRecurringProcessor(store ports.ExpenseStore, gate RollForwardGate) *RecurringProcessor {
	if gate == nil {
		gate = CatchUpGate{}
	}
	return &RecurringProcessor{store: store, gate: gate}
}

// WithPublisher announces created instances and demotions.
func (p *RecurringProcessor) WithPublisher(pub EventPublisher) *RecurringProcessor {
	p.publisher = pub
	return p
}

// Deduplicate demotes every recurring template that loses its (name,
// category) group and persists each demotion on its own. The returned slice
// reflects the demotions even when a write fails; failures are logged.
func (p *RecurringProcessor) Deduplicate(ctx context.Context, uid string, expenses []core.Expense) []core.Expense {
	out, demoted := core.DedupeTemplates(expenses)
	if len(demoted) == 0 {
		return out
	}

	monthly := false
	for _, e := range demoted {
		if _, err := p.store.UpdateExpense(ctx, uid, e.ID, core.ExpensePatch{Monthly: &monthly}); err != nil {
			slog.ErrorContext(ctx, "Failed to demote duplicate recurring expense",
				"user_id", uid,
				"id", e.ID,
				"name", e.Name,
				"category", e.Category,
				"error", err)
			continue
		}
		publishEvent(ctx, p.publisher, amqp.EventUpdated, uid, e.ID)
	}

	slog.InfoContext(ctx, "Deduplicated recurring expenses",
		"user_id", uid,
		"demoted", len(demoted))
	return out
}

// DeduplicateUser loads the user's expenses and deduplicates them.
func (p *RecurringProcessor) DeduplicateUser(ctx context.Context, uid string) ([]core.Expense, error) {
	all, err := p.store.ListExpenses(ctx, uid)
	if err != nil {
		return nil, fmt.Errorf("load expenses: %w", err)
	}
	return p.Deduplicate(ctx, uid, all), nil
}

// RollForward creates this month's instance of every active template that
// has no matching record dated this month. Each instance is claimed under
// (uid, template id, month), so repeated or concurrent runs insert once.
// Per-template failures are logged and counted; only the initial load
// returns an error.
func (p *RecurringProcessor) RollForward(ctx context.Context, uid string, today time.Time) (RollForwardResult, error) {
	var res RollForwardResult
	if !p.gate.Permits(today) {
		res.Gated = true
		slog.DebugContext(ctx, "Roll-forward gated", "user_id", uid, "date", today.Format(time.DateOnly))
		return res, nil
	}

	all, err := p.store.ListExpenses(ctx, uid)
	if err != nil {
		return res, fmt.Errorf("load expenses: %w", err)
	}

	ym := core.YearMonthOf(today)
	day := core.DateOf(today)
	for _, t := range all {
		if !core.IsActiveTemplate(t) {
			continue
		}
		res.Checked++

		if core.HasRecordInMonth(all, t.Name, t.Category, ym) {
			res.Skipped++
			continue
		}

		key := ports.RollForwardKey{TemplateID: t.ID, YearMonth: ym.Key()}
		inst, created, err := p.store.InsertRollForward(ctx, uid, key, core.NewExpenseFromTemplate(t, day))
		if err != nil {
			res.Failed++
			slog.ErrorContext(ctx, "Failed to create expense from recurring template",
				"user_id", uid,
				"template_id", t.ID,
				"name", t.Name,
				"error", err)
			continue
		}
		if !created {
			res.Skipped++
			continue
		}
		res.Created++
		all = append(all, inst)
		publishEvent(ctx, p.publisher, amqp.EventCreated, uid, inst.ID)

		lastAdded := core.Timestamp{Time: today}
		next := core.FirstOfNextMonth(today)
		if _, err := p.store.UpdateExpense(ctx, uid, t.ID, core.ExpensePatch{LastAdded: &lastAdded, NextDate: &next}); err != nil {
			// The instance exists; only the bookkeeping on the template is stale.
			slog.ErrorContext(ctx, "Failed to update recurring template after roll-forward",
				"user_id", uid,
				"template_id", t.ID,
				"error", err)
		}

		slog.InfoContext(ctx, "Created expense from recurring template",
			"user_id", uid,
			"template_id", t.ID,
			"expense_id", inst.ID,
			"amount_cents", inst.Amount.Cents)
	}

	slog.InfoContext(ctx, "Roll-forward complete",
		"user_id", uid,
		"month", ym.Key(),
		"checked", res.Checked,
		"created", res.Created,
		"skipped", res.Skipped,
		"failed", res.Failed)
	return res, nil
}

// RollForwardAll deduplicates and rolls forward every user listed, running up
// to concurrency users at a time. Per-user failures are logged and counted.
func (p *RecurringProcessor) RollForwardAll(ctx context.Context, users ports.UserLister, today time.Time, concurrency int) (RollForwardResult, error) {
	var total RollForwardResult
	if !p.gate.Permits(today) {
		total.Gated = true
		return total, nil
	}
	ids, err := users.ListUserIDs(ctx)
	if err != nil {
		return total, fmt.Errorf("list users: %w", err)
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, uid := range ids {
		g.Go(func() error {
			if _, err := p.DeduplicateUser(gctx, uid); err != nil {
				slog.ErrorContext(gctx, "Dedup failed", "user_id", uid, "error", err)
			}
			res, err := p.RollForward(gctx, uid, today)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				slog.ErrorContext(gctx, "Roll-forward failed", "user_id", uid, "error", err)
				total.Failed++
				return nil
			}
			total.add(res)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return total, err
	}
	return total, ctx.Err()
}
