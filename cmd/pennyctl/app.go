package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"pennylogs/internal/backend"
	"pennylogs/internal/cli"
	"pennylogs/internal/config"
	"pennylogs/internal/core"
	applog "pennylogs/internal/log"
)

// app carries what every command needs; tests swap open for a shared backend.
type app struct {
	in  io.Reader
	out io.Writer

	cfg  *config.Config
	open func(ctx context.Context, cfg *config.Config) (*backend.Backend, func(), error)
}

func newApp(in io.Reader, out io.Writer) *app {
	return &app{in: in, out: out, open: openBackend}
}

func openBackend(ctx context.Context, cfg *config.Config) (*backend.Backend, func(), error) {
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, nil, err
	}
	b, err := backend.NewFactory(slog.Default()).CreateBackend(ctx, bcfg)
	if err != nil {
		return nil, nil, fmt.Errorf("initialize backend: %w", err)
	}
	return b, func() {
		if err := b.Close(); err != nil {
			slog.Error("failed to close backend", "error", err)
		}
	}, nil
}

func newRootCmd(a *app) *cobra.Command {
	var logLevel string
	root := &cobra.Command{
		Use:           "pennyctl",
		Short:         "Administer a Penny Logs data store",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if a.cfg != nil {
				return nil
			}
			cli.LoadEnvFile()
			cfg := config.Load()
			if cmd.Flags().Changed("log-level") {
				cfg.LogLevel = logLevel
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			cli.SetupLogger(cfg.SlogLevel(), applog.ComponentApp)
			a.cfg = cfg
			return nil
		},
	}
	root.SetIn(a.in)
	root.SetOut(a.out)
	root.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")

	root.AddCommand(
		addUserCmd(a),
		rollForwardCmd(a),
		dedupeCmd(a),
		statusCmd(a),
		convertCmd(a),
		exportCmd(a),
	)
	return root
}

// withBackend opens the backend for the duration of fn.
func (a *app) withBackend(ctx context.Context, fn func(b *backend.Backend) error) error {
	b, release, err := a.open(ctx, a.cfg)
	if err != nil {
		return err
	}
	defer release()
	return fn(b)
}

func lookupUser(ctx context.Context, b *backend.Backend, email string) (core.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return core.User{}, fmt.Errorf("--user is required")
	}
	u, _, err := b.Store.GetUserByEmail(ctx, email)
	if err != nil {
		return core.User{}, fmt.Errorf("user %s: %w", email, err)
	}
	return u, nil
}

// parseToday reads a YYYY-MM-DD override, defaulting to now.
func parseToday(b *backend.Backend, s string) (time.Time, error) {
	if s == "" {
		return b.Expenses.Now(), nil
	}
	d, err := core.ParseDate(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("--date %q: %w", s, err)
	}
	return d.Time, nil
}

func readPassword(in io.Reader) (string, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		if err != nil {
			return "", err
		}
		return string(b), nil
	}

	// Pipes and tests.
	scanner := bufio.NewScanner(in)
	if scanner.Scan() {
		return scanner.Text(), nil
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}
