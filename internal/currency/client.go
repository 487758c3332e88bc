// Package currency converts amounts through the open.er-api.com latest-rates
// endpoint. Rate tables are cached per base currency.
package currency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"pennylogs/internal/cache"
	"pennylogs/internal/core"
)

const (
	DefaultBaseURL = "https://open.er-api.com"
	DefaultTTL     = time.Hour
	requestTimeout = 10 * time.Second
	maxCachedBases = 64
)

var (
	ErrConversionFailed = errors.New("currency conversion failed")
	ErrInvalidCurrency  = errors.New("invalid currency code")
)

type ratesResponse struct {
	Result    string                     `json:"result"`
	BaseCode  string                     `json:"base_code"`
	ErrorType string                     `json:"error-type"`
	Rates     map[string]decimal.Decimal `json:"rates"`
}

// Client fetches rate tables and converts amounts.
type Client struct {
	baseURL string
	http    *http.Client
	rates   *cache.LRUCache[map[string]decimal.Decimal]
	group   singleflight.Group
}

// NewClient returns a client for baseURL. A nil httpClient uses a client
// with a request timeout.
func NewClient(baseURL string, ttl time.Duration, httpClient *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: requestTimeout}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		rates:   cache.NewLRUCache[map[string]decimal.Decimal](maxCachedBases, ttl),
	}
}

// Cache exposes the rate cache so it can be registered with a cache.Manager.
func (c *Client) Cache() cache.Cleaner { return c.rates }

// NormalizeCode upper-cases a currency code; "" means the reference currency.
func NormalizeCode(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return core.ReferenceCurrency, nil
	}
	if len(code) != 3 {
		return "", fmt.Errorf("%q: %w", code, ErrInvalidCurrency)
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return "", fmt.Errorf("%q: %w", code, ErrInvalidCurrency)
		}
	}
	return code, nil
}

// Convert converts amount in from to the reference currency, rounded to cents.
func (c *Client) Convert(ctx context.Context, from string, amount decimal.Decimal) (decimal.Decimal, error) {
	return c.ConvertBetween(ctx, from, core.ReferenceCurrency, amount)
}

// ConvertBetween converts amount from one currency to another, rounded to cents.
func (c *Client) ConvertBetween(ctx context.Context, from, to string, amount decimal.Decimal) (decimal.Decimal, error) {
	from, err := NormalizeCode(from)
	if err != nil {
		return decimal.Zero, err
	}
	to, err = NormalizeCode(to)
	if err != nil {
		return decimal.Zero, err
	}
	if from == to {
		return amount.Round(2), nil
	}
	rate, err := c.Rate(ctx, from, to)
	if err != nil {
		return decimal.Zero, err
	}
	return amount.Mul(rate).Round(2), nil
}

// Rate returns how many units of to one unit of from buys.
func (c *Client) Rate(ctx context.Context, from, to string) (decimal.Decimal, error) {
	table, err := c.table(ctx, from)
	if err != nil {
		return decimal.Zero, err
	}
	rate, ok := table[to]
	if !ok || !rate.IsPositive() {
		return decimal.Zero, fmt.Errorf("no %s rate for %s: %w", to, from, ErrConversionFailed)
	}
	return rate, nil
}

func (c *Client) table(ctx context.Context, base string) (map[string]decimal.Decimal, error) {
	if t, ok := c.rates.Get(base); ok {
		return t, nil
	}
	v, err, shared := c.group.Do(base, func() (any, error) {
		// The flight is shared; one caller giving up must not fail the others.
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), requestTimeout)
		defer cancel()
		t, err := c.fetch(fctx, base)
		if err != nil {
			return nil, err
		}
		c.rates.Set(base, t)
		return t, nil
	})
	if err != nil {
		slog.WarnContext(ctx, "Exchange rate lookup failed", "base", base, "shared", shared, "error", err)
		return nil, err
	}
	return v.(map[string]decimal.Decimal), nil
}

func (c *Client) fetch(ctx context.Context, base string) (map[string]decimal.Decimal, error) {
	endpoint := c.baseURL + "/v6/latest/" + url.PathEscape(base)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build rate request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch rates for %s: %v: %w", base, err, ErrConversionFailed)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("fetch rates for %s: status %d: %w", base, resp.StatusCode, ErrConversionFailed)
	}

	var body ratesResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode rates for %s: %v: %w", base, err, ErrConversionFailed)
	}
	if body.Result != "success" {
		return nil, fmt.Errorf("rates for %s: result %q %s: %w", base, body.Result, body.ErrorType, ErrConversionFailed)
	}

	slog.DebugContext(ctx, "Fetched exchange rates", "base", base, "count", len(body.Rates))
	return body.Rates, nil
}
