package main

import (
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"pennylogs/internal/backend"
	"pennylogs/internal/core"
	"pennylogs/internal/services"
	gsheet "pennylogs/internal/sheets/google"
	"pennylogs/internal/worker"
)

func addUserCmd(a *app) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "adduser",
		Short: "Create an account",
		Long:  "Create an account. The password is prompted for when --password is omitted.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if email == "" {
				return fmt.Errorf("--email is required")
			}
			if password == "" {
				fmt.Fprint(cmd.OutOrStdout(), "Password: ")
				var err error
				password, err = readPassword(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read password: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout())
			}
			return a.withBackend(cmd.Context(), func(b *backend.Backend) error {
				u, err := b.Auth.Register(cmd.Context(), email, password)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "User %s created with ID %s\n", u.Email, u.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "password (prompted if omitted)")
	return cmd
}

func rollForwardCmd(a *app) *cobra.Command {
	var user, date string
	cmd := &cobra.Command{
		Use:   "rollforward",
		Short: "Materialize this month's recurring expenses",
		Long: `Roll every active recurring template into the current month, for one
user or for all of them. Runs are idempotent per template and month.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			return a.withBackend(ctx, func(b *backend.Backend) error {
				today, err := parseToday(b, date)
				if err != nil {
					return err
				}
				var res services.RollForwardResult
				if user == "" {
					res, err = b.Recurring.RollForwardAll(ctx, b.Store, today, a.cfg.RollForwardConcurrency)
				} else {
					var u core.User
					if u, err = lookupUser(ctx, b, user); err != nil {
						return err
					}
					res, err = b.Recurring.RollForward(ctx, u.ID, today)
				}
				if err != nil {
					return err
				}
				if res.Gated {
					fmt.Fprintf(cmd.OutOrStdout(), "Roll-forward not permitted on %s by policy %s\n", today.Format("2006-01-02"), a.cfg.RollForwardPolicy)
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "checked=%d created=%d skipped=%d failed=%d\n", res.Checked, res.Created, res.Skipped, res.Failed)
				if res.Failed > 0 {
					return fmt.Errorf("%d templates failed", res.Failed)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "only this user's email")
	cmd.Flags().StringVar(&date, "date", "", "treat this day (YYYY-MM-DD) as today")
	return cmd
}

func dedupeCmd(a *app) *cobra.Command {
	var user string
	cmd := &cobra.Command{
		Use:   "dedupe",
		Short: "Demote duplicate recurring templates",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			return a.withBackend(ctx, func(b *backend.Backend) error {
				u, err := lookupUser(ctx, b, user)
				if err != nil {
					return err
				}
				before, err := b.Expenses.ListExpenses(ctx, u.ID)
				if err != nil {
					return err
				}
				after, err := b.Recurring.DeduplicateUser(ctx, u.ID)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d recurring templates, %d demoted\n",
					len(core.Templates(after)), len(core.Templates(before))-len(core.Templates(after)))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "user email")
	return cmd
}

func statusCmd(a *app) *cobra.Command {
	var user, date string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show each recurring template and its status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			return a.withBackend(ctx, func(b *backend.Backend) error {
				u, err := lookupUser(ctx, b, user)
				if err != nil {
					return err
				}
				today, err := parseToday(b, date)
				if err != nil {
					return err
				}
				list, err := b.Expenses.ListRecurring(ctx, u.ID, today)
				if err != nil {
					return err
				}
				if len(list) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No recurring expenses.")
					return nil
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "NAME\tCATEGORY\tAMOUNT\tSTATUS\tLAST ADDED")
				for _, r := range list {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", r.Name, r.CategoryName, r.Amount, r.Status, r.LastAdded)
				}
				return w.Flush()
			})
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "user email")
	cmd.Flags().StringVar(&date, "date", "", "evaluate as of this day (YYYY-MM-DD)")
	return cmd
}

func convertCmd(a *app) *cobra.Command {
	var from, to string
	cmd := &cobra.Command{
		Use:   "convert AMOUNT",
		Short: "Convert an amount between currencies",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cents, err := core.ParseDecimalToCents(args[0])
			if err != nil {
				return fmt.Errorf("amount %q: %w", args[0], err)
			}
			amount := core.Money{Cents: cents}.Decimal()
			return a.withBackend(cmd.Context(), func(b *backend.Backend) error {
				out, err := b.Currency.ConvertBetween(cmd.Context(), from, to, amount)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s = %s %s\n",
					amount.StringFixed(2), strings.ToUpper(from), out.StringFixed(2), strings.ToUpper(orReference(to)))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "source currency code")
	cmd.Flags().StringVar(&to, "to", core.ReferenceCurrency, "target currency code")
	_ = cmd.MarkFlagRequired("from")
	return cmd
}

func orReference(code string) string {
	if code == "" {
		return core.ReferenceCurrency
	}
	return code
}

func exportCmd(a *app) *cobra.Command {
	var user string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Append expenses to the configured Google spreadsheet",
		Long: `Export every expense, or one user's, to the spreadsheet. Rows already
present are left alone, so the command can be re-run safely.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if a.cfg.GoogleSpreadsheetID == "" {
				return errors.New("GOOGLE_SPREADSHEET_ID is not set")
			}
			exporter, err := gsheet.New(ctx, gsheet.Config{
				SpreadsheetID:      a.cfg.GoogleSpreadsheetID,
				SheetName:          a.cfg.GoogleSheetName,
				ServiceAccountFile: a.cfg.GoogleServiceAccountFile,
				ServiceAccountJSON: a.cfg.GoogleServiceAccountJSON,
				OAuthClientFile:    a.cfg.GoogleOAuthClientFile,
				OAuthTokenFile:     a.cfg.GoogleOAuthTokenFile,
			})
			if err != nil {
				return err
			}
			return a.withBackend(ctx, func(b *backend.Backend) error {
				w := worker.NewExportWorker(b.Store, exporter)
				var res worker.ExportResult
				if user == "" {
					res, err = w.ExportAll(ctx, b.Store)
				} else {
					var u core.User
					if u, err = lookupUser(ctx, b, user); err != nil {
						return err
					}
					res, err = w.ExportUser(ctx, u.ID)
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "exported=%d skipped=%d failed=%d\n", res.Exported, res.Skipped, res.Failed)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "only this user's email")
	return cmd
}
