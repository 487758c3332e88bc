// Package worker exports stored expenses to an external sink in response to
// change events.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"pennylogs/internal/amqp"
	"pennylogs/internal/core"
	"pennylogs/internal/ports"
)

// ExportWorker appends created expenses to the exporter. The exporter is
// idempotent per expense id, so redelivered events are harmless.
type ExportWorker struct {
	store    ports.ExpenseStore
	exporter ports.ExpenseExporter
}

func NewExportWorker(store ports.ExpenseStore, exporter ports.ExpenseExporter) *ExportWorker {
	return &ExportWorker{store: store, exporter: exporter}
}

// HandleEvent processes one event from the bus. A returned error requeues it.
func (w *ExportWorker) HandleEvent(ctx context.Context, msg *amqp.ExpenseEvent) error {
	if msg.Kind != amqp.EventCreated {
		slog.DebugContext(ctx, "Ignoring non-create event",
			"message_id", msg.MessageID,
			"kind", msg.Kind,
			"expense_id", msg.ExpenseID)
		return nil
	}

	e, err := w.store.GetExpense(ctx, msg.UserID, msg.ExpenseID)
	if errors.Is(err, core.ErrNotFound) {
		slog.WarnContext(ctx, "Expense deleted before export",
			"user_id", msg.UserID,
			"expense_id", msg.ExpenseID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("get expense from storage: %w", err)
	}

	_, err = w.export(ctx, msg.UserID, e)
	return err
}

// export reports permanent failures as (false, nil) so the event is acked.
func (w *ExportWorker) export(ctx context.Context, uid string, e core.Expense) (bool, error) {
	if err := e.Validate(); err != nil {
		slog.ErrorContext(ctx, "Skipping invalid expense",
			"user_id", uid,
			"expense_id", e.ID,
			"error", err)
		return false, nil
	}

	ref, err := w.exporter.Export(ctx, uid, e)
	if err != nil {
		return false, fmt.Errorf("export expense %s: %w", e.ID, err)
	}

	slog.InfoContext(ctx, "Exported expense",
		"user_id", uid,
		"expense_id", e.ID,
		"sheets_ref", ref,
		"amount_cents", e.Amount.Cents)
	return true, nil
}

// ExportResult counts a backfill run.
type ExportResult struct {
	Exported int
	Skipped  int
	Failed   int
}

// ExportUser exports every stored expense of uid. Failures are logged and
// counted; only the initial load returns an error.
func (w *ExportWorker) ExportUser(ctx context.Context, uid string) (ExportResult, error) {
	var res ExportResult
	all, err := w.store.ListExpenses(ctx, uid)
	if err != nil {
		return res, fmt.Errorf("load expenses: %w", err)
	}
	for _, e := range all {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		ok, err := w.export(ctx, uid, e)
		switch {
		case err != nil:
			res.Failed++
			slog.ErrorContext(ctx, "Failed to export expense", "user_id", uid, "expense_id", e.ID, "error", err)
		case ok:
			res.Exported++
		default:
			res.Skipped++
		}
	}
	return res, nil
}

// ExportAll backfills every listed user, recovering events lost while the
// worker was down.
func (w *ExportWorker) ExportAll(ctx context.Context, users ports.UserLister) (ExportResult, error) {
	var total ExportResult
	uids, err := users.ListUserIDs(ctx)
	if err != nil {
		return total, fmt.Errorf("list users: %w", err)
	}
	for _, uid := range uids {
		res, err := w.ExportUser(ctx, uid)
		if err != nil {
			if ctx.Err() != nil {
				return total, ctx.Err()
			}
			slog.ErrorContext(ctx, "Failed to export user", "user_id", uid, "error", err)
			total.Failed++
			continue
		}
		total.Exported += res.Exported
		total.Skipped += res.Skipped
		total.Failed += res.Failed
	}

	slog.InfoContext(ctx, "Export backfill completed",
		"users", len(uids),
		"exported", total.Exported,
		"skipped", total.Skipped,
		"failed", total.Failed)
	return total, nil
}
