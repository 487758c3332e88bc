package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
)

type Config struct {
	// HTTP Server
	Port               string
	RateLimitPerMinute int

	// Storage
	DataBackend  string
	SQLiteDBPath string

	// AMQP; an empty URL disables the event bus
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Google Sheets export
	GoogleSpreadsheetID      string
	GoogleSheetName          string
	GoogleServiceAccountFile string
	GoogleServiceAccountJSON string
	GoogleOAuthClientFile    string
	GoogleOAuthTokenFile     string

	// Recurring reconciler
	RollForwardInterval    time.Duration
	RollForwardConcurrency int

	// RollForwardPolicy is "catch_up" (default) or "first_of_month".
	// catch_up runs on any day and relies on the (template, month) ledger
	// key to insert once; first_of_month only runs on the 1st, so a missed
	// run on that day skips the month.
	RollForwardPolicy string

	// Currency conversion
	ExchangeRateURL string
	ExchangeRateTTL time.Duration

	// Auth
	SessionTTL         time.Duration
	LoginMaxAttempts   int
	LoginAttemptWindow time.Duration

	LogLevel string
}

func Load() *Config {
	return &Config{
		Port:               getEnv("PORT", "8081"),
		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 60),

		DataBackend:  getEnv("DATA_BACKEND", BackendSQLite),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/pennylogs.db"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "pennylogs"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "expense_events"),

		GoogleSpreadsheetID:      getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleSheetName:          getEnv("GOOGLE_SHEET_NAME", "Expenses"),
		GoogleServiceAccountFile: getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", ""),
		GoogleServiceAccountJSON: getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", ""),
		GoogleOAuthClientFile:    getEnv("GOOGLE_OAUTH_CLIENT_FILE", ""),
		GoogleOAuthTokenFile:     getEnv("GOOGLE_OAUTH_TOKEN_FILE", ""),

		RollForwardInterval:    getEnvDuration("ROLLFORWARD_INTERVAL", time.Hour),
		RollForwardPolicy:      getEnv("ROLLFORWARD_POLICY", "catch_up"),
		RollForwardConcurrency: getEnvInt("ROLLFORWARD_CONCURRENCY", 4),

		ExchangeRateURL: getEnv("EXCHANGE_RATE_URL", "https://open.er-api.com"),
		ExchangeRateTTL: getEnvDuration("EXCHANGE_RATE_TTL", time.Hour),

		SessionTTL:         getEnvDuration("SESSION_TTL", 30*24*time.Hour),
		LoginMaxAttempts:   getEnvInt("LOGIN_MAX_ATTEMPTS", 5),
		LoginAttemptWindow: getEnvDuration("LOGIN_ATTEMPT_WINDOW", 15*time.Minute),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
}

// AMQPEnabled reports whether an event bus is configured.
func (c *Config) AMQPEnabled() bool { return c.AMQPURL != "" }

// ExportEnabled reports whether a spreadsheet export target is configured.
func (c *Config) ExportEnabled() bool { return c.GoogleSpreadsheetID != "" }

// SlogLevel maps LogLevel to a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// Validate validates the configuration and returns every problem at once.
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	switch c.DataBackend {
	case BackendMemory:
	case BackendSQLite:
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else if dir := filepath.Dir(c.SQLiteDBPath); dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
				}
			}
		}
	default:
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of [memory sqlite]", c.DataBackend))
	}

	if c.AMQPEnabled() {
		if parsed, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsed.Scheme != "amqp" && parsed.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsed.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.ExportEnabled() {
		errors = append(errors, c.validateGoogle()...)
	}

	if c.RollForwardInterval < time.Minute || c.RollForwardInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid roll-forward interval %v: must be between 1 minute and 24 hours", c.RollForwardInterval))
	}
	if c.RollForwardPolicy != "catch_up" && c.RollForwardPolicy != "first_of_month" {
		errors = append(errors, fmt.Sprintf("invalid roll-forward policy '%s': must be 'catch_up' or 'first_of_month'", c.RollForwardPolicy))
	}
	if c.RollForwardConcurrency < 1 || c.RollForwardConcurrency > 64 {
		errors = append(errors, fmt.Sprintf("invalid roll-forward concurrency %d: must be between 1 and 64", c.RollForwardConcurrency))
	}

	if parsed, err := url.Parse(c.ExchangeRateURL); err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		errors = append(errors, fmt.Sprintf("invalid exchange rate URL '%s': must be http or https", c.ExchangeRateURL))
	}
	if c.ExchangeRateTTL < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid exchange rate TTL %v: must be at least 1 minute", c.ExchangeRateTTL))
	}

	if c.SessionTTL < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid session TTL %v: must be at least 1 minute", c.SessionTTL))
	}
	if c.LoginMaxAttempts < 1 {
		errors = append(errors, fmt.Sprintf("invalid login max attempts %d: must be at least 1", c.LoginMaxAttempts))
	}
	if c.LoginAttemptWindow < time.Second {
		errors = append(errors, fmt.Sprintf("invalid login attempt window %v: must be at least 1 second", c.LoginAttemptWindow))
	}
	if c.RateLimitPerMinute < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must be at least 1 per minute", c.RateLimitPerMinute))
	}

	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be debug, info, warn or error", c.LogLevel))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

func (c *Config) validateGoogle() []string {
	var errors []string
	if c.GoogleSheetName == "" {
		errors = append(errors, "Google Sheet name is required when a spreadsheet ID is set")
	}

	hasServiceAccount := c.GoogleServiceAccountFile != "" || c.GoogleServiceAccountJSON != ""
	hasOAuth := c.GoogleOAuthClientFile != "" && c.GoogleOAuthTokenFile != ""
	if !hasServiceAccount && !hasOAuth {
		errors = append(errors, "either a service account (GOOGLE_SERVICE_ACCOUNT_FILE or GOOGLE_SERVICE_ACCOUNT_JSON) or GOOGLE_OAUTH_CLIENT_FILE with GOOGLE_OAUTH_TOKEN_FILE must be provided for export")
	}

	for _, f := range []struct{ name, path string }{
		{"Google service account file", c.GoogleServiceAccountFile},
		{"Google OAuth client file", c.GoogleOAuthClientFile},
		{"Google OAuth token file", c.GoogleOAuthTokenFile},
	} {
		if f.path == "" {
			continue
		}
		if _, err := os.Stat(f.path); os.IsNotExist(err) {
			errors = append(errors, fmt.Sprintf("%s does not exist: %s", f.name, f.path))
		}
	}
	return errors
}

// ValidateExport checks what the export worker needs on top of Validate.
func (c *Config) ValidateExport() error {
	var missing []string
	if !c.AMQPEnabled() {
		missing = append(missing, "AMQP_URL")
	}
	if !c.ExportEnabled() {
		missing = append(missing, "GOOGLE_SPREADSHEET_ID")
	}
	if len(missing) > 0 {
		return fmt.Errorf("export worker requires %s", strings.Join(missing, " and "))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
