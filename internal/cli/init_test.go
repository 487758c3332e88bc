package cli

import (
	"context"
	"log/slog"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupLogger(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	logger := SetupLogger(slog.LevelWarn, "test")
	require.NotNil(t, logger)
	assert.Same(t, logger.Handler(), slog.Default().Handler())
	assert.False(t, logger.Enabled(context.Background(), slog.LevelInfo))
	assert.True(t, logger.Enabled(context.Background(), slog.LevelWarn))
}

func TestGracefulShutdown_RunsCleanupOnSignal(t *testing.T) {
	cleaned := make(chan struct{})
	ctx, done := GracefulShutdown(slog.Default(), time.Second, func(context.Context) { close(cleaned) })

	require.NoError(t, syscall.Kill(syscall.Getpid(), syscall.SIGTERM))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown did not complete")
	}
	assert.Error(t, ctx.Err())
	select {
	case <-cleaned:
	default:
		t.Fatal("cleanup was not called")
	}
}
