//go:build integration

package google

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"pennylogs/internal/core"
)

// Integration tests require real Google Sheets credentials
// Run with: go test -tags=integration ./internal/sheets/google

func TestIntegration_Export(t *testing.T) {
	cfg := Config{
		SpreadsheetID:      os.Getenv("GOOGLE_SPREADSHEET_ID"),
		SheetName:          "Integration",
		ServiceAccountFile: os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"),
		ServiceAccountJSON: os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"),
		OAuthClientFile:    os.Getenv("GOOGLE_OAUTH_CLIENT_FILE"),
		OAuthTokenFile:     os.Getenv("GOOGLE_OAUTH_TOKEN_FILE"),
	}
	if cfg.SpreadsheetID == "" {
		t.Skip("GOOGLE_SPREADSHEET_ID not set, skipping integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	x, err := New(ctx, cfg)
	if err != nil {
		t.Fatalf("Failed to create exporter: %v", err)
	}

	e := core.Expense{
		ID:       uuid.NewString(),
		Name:     "Integration test",
		Amount:   core.Money{Cents: 123},
		Category: "12",
		Date:     core.DateOf(time.Now()),
	}
	first, err := x.Export(ctx, "integration", e)
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	second, err := x.Export(ctx, "integration", e)
	if err != nil {
		t.Fatalf("Second export failed: %v", err)
	}
	if first != second {
		t.Errorf("expected the same row twice, got %s and %s", first, second)
	}
	t.Logf("Exported to %s", first)
}
