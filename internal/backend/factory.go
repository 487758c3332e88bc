package backend

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"pennylogs/internal/amqp"
	"pennylogs/internal/auth"
	"pennylogs/internal/cache"
	"pennylogs/internal/currency"
	"pennylogs/internal/events"
	"pennylogs/internal/ports"
	"pennylogs/internal/services"
	"pennylogs/internal/session"
	"pennylogs/internal/storage"
	"pennylogs/internal/storage/memory"
)

const cacheCleanupInterval = 5 * time.Minute

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
	now    func() time.Time
}

func NewFactory(logger *slog.Logger) *DefaultFactory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{logger: logger, now: time.Now}
}

// WithClock sets the clock shared by every service the factory builds.
func (f *DefaultFactory) WithClock(now func() time.Time) *DefaultFactory {
	f.now = now
	return f
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*Backend, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	store, err := f.openStore(config)
	if err != nil {
		return nil, err
	}
	b := &Backend{raw: store}
	b.cleanups = append(b.cleanups, store.Close)

	gate, err := services.GetRollForwardGate(orDefault(config.RollForwardPolicy, services.PolicyCatchUp))
	if err != nil {
		b.Close()
		return nil, err
	}

	hub := events.NewHub()
	b.cleanups = append(b.cleanups, func() error { hub.Close(); return nil })
	b.Store = events.NewObservedStore(store, hub)

	b.Currency = currency.NewClient(orDefault(config.ExchangeRateURL, currency.DefaultBaseURL), config.ExchangeRateTTL, &http.Client{Timeout: 10 * time.Second})
	b.Caches = cache.NewManager()
	b.Caches.Register(b.Currency.Cache())
	b.Caches.StartCleanup(cacheCleanupInterval)
	b.cleanups = append(b.cleanups, func() error { b.Caches.Stop(); return nil })

	opts := []services.Option{services.WithConverter(b.Currency), services.WithClock(f.now)}
	b.Recurring = services.NewRecurringProcessor(b.Store, gate)

	if config.AMQPURL != "" {
		client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
		if err != nil {
			f.logger.WarnContext(ctx, "Failed to initialize AMQP client, continuing without events", "error", err)
		} else {
			b.AMQP = client
			b.cleanups = append(b.cleanups, client.Close)
			opts = append(opts, services.WithPublisher(client))
			b.Recurring.WithPublisher(client)
			f.logger.InfoContext(ctx, "Initialized AMQP client",
				"exchange", config.AMQPExchange,
				"queue", config.AMQPQueue)
		}
	}

	b.Expenses = services.NewExpenseService(b.Store, b.Store, opts...)
	b.Settings = services.NewSettingsService(b.Store, b.Store)

	b.Auth = auth.NewService(b.Store, auth.Config{
		SessionTTL:    config.SessionTTL,
		MaxAttempts:   config.LoginMaxAttempts,
		AttemptWindow: config.LoginAttemptWindow,
	}).WithClock(f.now)

	b.Sessions = session.NewManager(b.Store, b.Recurring, config.RollForwardInterval).WithClock(f.now)
	removeListener := b.Auth.OnAuthStateChanged(b.Sessions)
	b.cleanups = append(b.cleanups, func() error {
		removeListener()
		b.Sessions.Close()
		return nil
	})

	f.logger.InfoContext(ctx, "Initialized backend",
		"type", config.Type,
		"rollforward_policy", orDefault(config.RollForwardPolicy, services.PolicyCatchUp),
		"amqp_enabled", b.AMQP != nil)
	return b, nil
}

func (f *DefaultFactory) openStore(config Config) (ports.Store, error) {
	switch config.Type {
	case SQLiteBackend:
		repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
		}
		f.logger.Info("Initialized SQLite store", "db_path", config.SQLiteDBPath)
		return repo, nil
	case MemoryBackend:
		f.logger.Info("Initialized memory store")
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
