// Package google exports expenses as rows of a Google Sheets spreadsheet,
// one sheet per year.
package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"pennylogs/internal/cache"
	"pennylogs/internal/core"
	"pennylogs/internal/ports"
)

const (
	DefaultSheetName = "Expenses"
	knownSheetsTTL   = time.Hour
)

// Config selects the spreadsheet and credentials. A service account wins
// over an OAuth client when both are set.
type Config struct {
	SpreadsheetID      string
	SheetName          string
	ServiceAccountFile string
	ServiceAccountJSON string
	OAuthClientFile    string
	OAuthTokenFile     string
}

// Exporter appends expenses to the sheet of their year, at most once per
// expense id.
type Exporter struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetBase     string
	knownSheets   *cache.LRUCache[bool]
}

var _ ports.ExpenseExporter = (*Exporter)(nil)

// New creates an exporter authenticated from cfg.
func New(ctx context.Context, cfg Config) (*Exporter, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	svc, err := newSheetsService(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return NewWithService(svc, cfg.SpreadsheetID, cfg.SheetName), nil
}

// NewWithService wraps an already configured Sheets service.
func NewWithService(svc *gsheet.Service, spreadsheetID, sheetBase string) *Exporter {
	if strings.TrimSpace(sheetBase) == "" {
		sheetBase = DefaultSheetName
	}
	return &Exporter{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		sheetBase:     strings.TrimSpace(sheetBase),
		knownSheets:   cache.NewLRUCache[bool](32, knownSheetsTTL),
	}
}

// Cache exposes the known-sheet cache for registration with a cache.Manager.
func (x *Exporter) Cache() cache.Cleaner { return x.knownSheets }

func newSheetsService(ctx context.Context, cfg Config) (*gsheet.Service, error) {
	switch {
	case cfg.ServiceAccountJSON != "" || cfg.ServiceAccountFile != "":
		credentialsJSON := []byte(cfg.ServiceAccountJSON)
		if len(credentialsJSON) == 0 {
			var err error
			credentialsJSON, err = os.ReadFile(cfg.ServiceAccountFile)
			if err != nil {
				return nil, fmt.Errorf("read service account file: %w", err)
			}
		}
		slog.InfoContext(ctx, "Creating Google Sheets service with service account", "credentials_size", len(credentialsJSON))
		return gsheet.NewService(ctx,
			goption.WithCredentialsJSON(credentialsJSON),
			goption.WithScopes(gsheet.SpreadsheetsScope),
			goption.WithHTTPClient(newHTTPClientWithPooling()))

	case cfg.OAuthClientFile != "":
		client, err := oauthClient(ctx, cfg.OAuthClientFile, cfg.OAuthTokenFile)
		if err != nil {
			return nil, err
		}
		slog.InfoContext(ctx, "Creating Google Sheets service with OAuth token", "token_file", cfg.OAuthTokenFile)
		return gsheet.NewService(ctx, goption.WithHTTPClient(client))

	default:
		return nil, errors.New("missing credentials (set a service account or an OAuth client and token)")
	}
}

// oauthClient builds a refreshing HTTP client from the client secret and the
// token written by oauth-init.
func oauthClient(ctx context.Context, clientFile, tokenFile string) (*http.Client, error) {
	b, err := os.ReadFile(clientFile)
	if err != nil {
		return nil, fmt.Errorf("read oauth client file: %w", err)
	}
	oc, err := google.ConfigFromJSON(b, gsheet.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("oauth config: %w", err)
	}
	if tokenFile == "" {
		return nil, errors.New("missing oauth token file")
	}
	tb, err := os.ReadFile(tokenFile)
	if err != nil {
		return nil, fmt.Errorf("read oauth token file: %w", err)
	}
	var tok oauth2.Token
	if err := json.Unmarshal(tb, &tok); err != nil {
		return nil, fmt.Errorf("decode oauth token: %w", err)
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, newHTTPClientWithPooling())
	return oauth2.NewClient(ctx, oc.TokenSource(ctx, &tok)), nil
}

// newHTTPClientWithPooling returns a client tuned for the Sheets API.
func newHTTPClientWithPooling() *http.Client {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		MaxConnsPerHost:       50,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
	}
	return &http.Client{Transport: transport, Timeout: 60 * time.Second}
}

// Export appends e to its year's sheet and returns the A1 range of the row.
// An expense already present in the sheet is not appended again.
func (x *Exporter) Export(ctx context.Context, uid string, e core.Expense) (string, error) {
	if err := e.Validate(); err != nil {
		return "", fmt.Errorf("validation failed: %w", err)
	}
	if e.ID == "" {
		return "", errors.New("expense has no id")
	}
	if x.svc == nil {
		return "", errors.New("sheets service not initialized")
	}

	sheet := yearPrefixedName(x.sheetBase, e.Date.Year())
	if err := x.ensureSheet(ctx, sheet); err != nil {
		return "", err
	}

	rng := fmt.Sprintf("%s!A:%s", quoteSheet(sheet), lastColumn)
	resp, err := x.svc.Spreadsheets.Values.Get(x.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("read %s: %w", rng, err)
	}
	if row := findExpenseRow(resp.Values, e.ID); row > 0 {
		slog.DebugContext(ctx, "Expense already exported", "expense_id", e.ID, "sheet", sheet, "row", row)
		return rowRange(sheet, row), nil
	}

	vr := &gsheet.ValueRange{Values: [][]any{exportRow(uid, e)}}
	out, err := x.svc.Spreadsheets.Values.Append(x.spreadsheetID, rng, vr).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("append to sheet %s: %w", sheet, err)
	}
	if out.Updates != nil && out.Updates.UpdatedRange != "" {
		return out.Updates.UpdatedRange, nil
	}
	return rowRange(sheet, len(resp.Values)+1), nil
}

// ensureSheet creates the sheet with a header row when the spreadsheet lacks it.
func (x *Exporter) ensureSheet(ctx context.Context, sheet string) error {
	if _, ok := x.knownSheets.Get(sheet); ok {
		return nil
	}

	ss, err := x.svc.Spreadsheets.Get(x.spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read spreadsheet: %w", err)
	}
	for _, s := range ss.Sheets {
		if s.Properties != nil {
			x.knownSheets.Set(s.Properties.Title, true)
		}
	}
	if _, ok := x.knownSheets.Get(sheet); ok {
		return nil
	}

	req := &gsheet.BatchUpdateSpreadsheetRequest{Requests: []*gsheet.Request{{
		AddSheet: &gsheet.AddSheetRequest{Properties: &gsheet.SheetProperties{Title: sheet}},
	}}}
	if _, err := x.svc.Spreadsheets.BatchUpdate(x.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("add sheet %s: %w", sheet, err)
	}

	header := &gsheet.ValueRange{Values: [][]any{headerRow()}}
	rng := fmt.Sprintf("%s!A1:%s1", quoteSheet(sheet), lastColumn)
	if _, err := x.svc.Spreadsheets.Values.Update(x.spreadsheetID, rng, header).
		ValueInputOption("RAW").Context(ctx).Do(); err != nil {
		return fmt.Errorf("write header to %s: %w", sheet, err)
	}

	slog.InfoContext(ctx, "Created export sheet", "sheet", sheet)
	x.knownSheets.Set(sheet, true)
	return nil
}
