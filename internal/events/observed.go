package events

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"pennylogs/internal/core"
	"pennylogs/internal/ports"
)

// ObservedStore decorates a store so every successful expense write
// publishes the user's fresh snapshot.
type ObservedStore struct {
	ports.Store
	hub *Hub
	now func() time.Time

	locks sync.Map // uid -> *sync.Mutex
}

var _ ports.Store = (*ObservedStore)(nil)

func NewObservedStore(store ports.Store, hub *Hub) *ObservedStore {
	return &ObservedStore{Store: store, hub: hub, now: time.Now}
}

func (o *ObservedStore) Hub() *Hub { return o.hub }

// Subscribe delivers the current snapshot first, then one per change.
func (o *ObservedStore) Subscribe(ctx context.Context, uid string) (<-chan Snapshot, func(), error) {
	ch, unsubscribe := o.hub.Subscribe(uid)
	if err := o.refresh(ctx, uid); err != nil {
		unsubscribe()
		return nil, nil, err
	}
	return ch, unsubscribe, nil
}

// refresh reads and publishes under a per-user lock, so the last snapshot
// published always comes from the last read.
func (o *ObservedStore) refresh(ctx context.Context, uid string) error {
	v, _ := o.locks.LoadOrStore(uid, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	defer mu.Unlock()

	list, err := o.Store.ListExpenses(ctx, uid)
	if err != nil {
		return fmt.Errorf("snapshot expenses: %w", err)
	}
	o.hub.Publish(uid, Snapshot{UserID: uid, Expenses: list, At: o.now()})
	return nil
}

func (o *ObservedStore) changed(ctx context.Context, uid string) {
	if o.hub.Subscribers(uid) == 0 {
		return
	}
	if err := o.refresh(ctx, uid); err != nil {
		slog.WarnContext(ctx, "Failed to publish expense snapshot", "user_id", uid, "error", err)
	}
}

func (o *ObservedStore) CreateExpense(ctx context.Context, uid string, e core.Expense) (core.Expense, error) {
	created, err := o.Store.CreateExpense(ctx, uid, e)
	if err == nil {
		o.changed(ctx, uid)
	}
	return created, err
}

func (o *ObservedStore) UpdateExpense(ctx context.Context, uid, id string, patch core.ExpensePatch) (core.Expense, error) {
	updated, err := o.Store.UpdateExpense(ctx, uid, id, patch)
	if err == nil {
		o.changed(ctx, uid)
	}
	return updated, err
}

func (o *ObservedStore) DeleteExpense(ctx context.Context, uid, id string) error {
	err := o.Store.DeleteExpense(ctx, uid, id)
	if err == nil {
		o.changed(ctx, uid)
	}
	return err
}

func (o *ObservedStore) InsertRollForward(ctx context.Context, uid string, key ports.RollForwardKey, instance core.Expense) (core.Expense, bool, error) {
	e, created, err := o.Store.InsertRollForward(ctx, uid, key, instance)
	if err == nil && created {
		o.changed(ctx, uid)
	}
	return e, created, err
}
