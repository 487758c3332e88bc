package backend

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pennylogs/internal/config"
	"pennylogs/internal/core"
)

func TestFromAppConfig(t *testing.T) {
	_, err := FromAppConfig(nil)
	assert.Error(t, err)

	_, err = FromAppConfig(&config.Config{DataBackend: "sheets"})
	assert.EqualError(t, err, "invalid backend type in config: sheets")

	cfg, err := FromAppConfig(&config.Config{
		DataBackend:       "sqlite",
		SQLiteDBPath:      "./data/x.db",
		RollForwardPolicy: "first_of_month",
		LoginMaxAttempts:  3,
	})
	require.NoError(t, err)
	assert.Equal(t, SQLiteBackend, cfg.Type)
	assert.Equal(t, "first_of_month", cfg.RollForwardPolicy)
	assert.Equal(t, 3, cfg.LoginMaxAttempts)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{"memory", Config{Type: MemoryBackend}, false},
		{"sqlite with path", Config{Type: SQLiteBackend, SQLiteDBPath: "x.db"}, false},
		{"sqlite without path", Config{Type: SQLiteBackend}, true},
		{"unknown", Config{Type: "sheets"}, true},
		{"negative ttl", Config{Type: MemoryBackend, SessionTTL: -time.Second}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCreateBackend_UnknownPolicy(t *testing.T) {
	_, err := NewFactory(nil).CreateBackend(context.Background(), Config{Type: MemoryBackend, RollForwardPolicy: "weekly"})
	assert.ErrorContains(t, err, "unknown roll-forward policy")
}

func TestCreateBackend_EndToEnd(t *testing.T) {
	now := time.Date(2024, time.April, 1, 9, 0, 0, 0, time.UTC)

	backends := map[string]Config{
		"memory": {Type: MemoryBackend},
		"sqlite": {Type: SQLiteBackend, SQLiteDBPath: filepath.Join(t.TempDir(), "pennylogs.db")},
	}
	for name, cfg := range backends {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			b, err := NewFactory(nil).WithClock(func() time.Time { return now }).CreateBackend(ctx, cfg)
			require.NoError(t, err)
			defer b.Close()

			assert.Nil(t, b.AMQP)
			require.NoError(t, b.Ping(ctx))

			user, err := b.Auth.Register(ctx, "ada@example.com", "correct horse")
			require.NoError(t, err)

			_, err = b.Expenses.AddExpense(ctx, user.ID, core.Expense{
				Name:     "Gym",
				Amount:   core.Money{Cents: 1000},
				Category: "5",
				Date:     core.NewDate(2024, 3, 1),
				Monthly:  true,
			}, "")
			require.NoError(t, err)

			sess, err := b.Auth.Login(ctx, "ada@example.com", "correct horse")
			require.NoError(t, err)
			assert.Eventually(t, func() bool { return b.Sessions.Active(user.ID) }, time.Second, 10*time.Millisecond)

			assert.Eventually(t, func() bool {
				list, err := b.Expenses.ListExpenses(ctx, user.ID)
				return err == nil && len(list) == 2
			}, 2*time.Second, 20*time.Millisecond, "login rolls the template into April")

			require.NoError(t, b.Auth.Logout(ctx, sess.Token))
			assert.Eventually(t, func() bool { return !b.Sessions.Active(user.ID) }, time.Second, 10*time.Millisecond)
		})
	}
}
