package backend

import (
	"context"
	"errors"

	"pennylogs/internal/amqp"
	"pennylogs/internal/auth"
	"pennylogs/internal/cache"
	"pennylogs/internal/currency"
	"pennylogs/internal/events"
	"pennylogs/internal/ports"
	"pennylogs/internal/services"
	"pennylogs/internal/session"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// Backend is the fully wired application graph behind one store.
type Backend struct {
	Store     *events.ObservedStore
	Expenses  *services.ExpenseService
	Settings  *services.SettingsService
	Recurring *services.RecurringProcessor
	Auth      *auth.Service
	Sessions  *session.Manager
	Currency  *currency.Client
	Caches    *cache.Manager
	// AMQP is nil when no event bus is configured.
	AMQP *amqp.Client

	raw      ports.Store
	cleanups []CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*Backend, error)
}

// Pinger is implemented by stores that can report reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Ping checks the underlying store when it supports it.
func (b *Backend) Ping(ctx context.Context) error {
	if p, ok := b.raw.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// Close releases resources in reverse order of acquisition.
func (b *Backend) Close() error {
	var errs []error
	for i := len(b.cleanups) - 1; i >= 0; i-- {
		if err := b.cleanups[i](); err != nil {
			errs = append(errs, err)
		}
	}
	b.cleanups = nil
	return errors.Join(errs...)
}
