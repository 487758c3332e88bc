// Package session runs the reconciler for each signed-in user: dedup on
// every snapshot of their expenses and a periodic roll-forward.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"pennylogs/internal/core"
	"pennylogs/internal/events"
	"pennylogs/internal/services"
)

// Subscriber streams a user's expense snapshots.
type Subscriber interface {
	Subscribe(ctx context.Context, uid string) (<-chan events.Snapshot, func(), error)
}

// Reconciler is the part of services.RecurringProcessor a watcher drives.
type Reconciler interface {
	Deduplicate(ctx context.Context, uid string, expenses []core.Expense) []core.Expense
	RollForward(ctx context.Context, uid string, today time.Time) (services.RollForwardResult, error)
}

// Watcher owns one user's subscription and roll-forward ticker.
type Watcher struct {
	uid      string
	sub      Subscriber
	rec      Reconciler
	interval time.Duration
	now      func() time.Time

	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
}

func startWatcher(parent context.Context, uid string, sub Subscriber, rec Reconciler, interval time.Duration, now func() time.Time) *Watcher {
	ctx, cancel := context.WithCancel(parent)
	w := &Watcher{
		uid:      uid,
		sub:      sub,
		rec:      rec,
		interval: interval,
		now:      now,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go w.run(ctx)
	return w
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.done)

	snapshots, unsubscribe, err := w.sub.Subscribe(ctx, w.uid)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to subscribe to expenses", "user_id", w.uid, "error", err)
		return
	}
	defer unsubscribe()

	slog.InfoContext(ctx, "Reconciler watcher started", "user_id", w.uid, "interval", w.interval)
	w.rollForward(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "Reconciler watcher stopped", "user_id", w.uid)
			return
		case snap, ok := <-snapshots:
			if !ok {
				return
			}
			w.rec.Deduplicate(ctx, w.uid, snap.Expenses)
		case <-ticker.C:
			w.rollForward(ctx)
		}
	}
}

func (w *Watcher) rollForward(ctx context.Context) {
	if _, err := w.rec.RollForward(ctx, w.uid, w.now()); err != nil && ctx.Err() == nil {
		slog.ErrorContext(ctx, "Scheduled roll-forward failed", "user_id", w.uid, "error", err)
	}
}

func (w *Watcher) exited() bool {
	select {
	case <-w.done:
		return true
	default:
		return false
	}
}

// Stop cancels the subscription and ticker and waits for the loop to exit.
func (w *Watcher) Stop() {
	w.stopOnce.Do(w.cancel)
	<-w.done
}
