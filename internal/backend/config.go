package backend

import (
	"fmt"
	"time"

	"pennylogs/internal/config"
)

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}

	backendType := BackendType(appConfig.DataBackend)
	if !backendType.IsValid() {
		return Config{}, fmt.Errorf("invalid backend type in config: %s", appConfig.DataBackend)
	}

	return Config{
		Type:         backendType,
		SQLiteDBPath: appConfig.SQLiteDBPath,

		AMQPURL:      appConfig.AMQPURL,
		AMQPExchange: appConfig.AMQPExchange,
		AMQPQueue:    appConfig.AMQPQueue,

		ExchangeRateURL: appConfig.ExchangeRateURL,
		ExchangeRateTTL: appConfig.ExchangeRateTTL,

		RollForwardPolicy:   appConfig.RollForwardPolicy,
		RollForwardInterval: appConfig.RollForwardInterval,

		SessionTTL:         appConfig.SessionTTL,
		LoginMaxAttempts:   appConfig.LoginMaxAttempts,
		LoginAttemptWindow: appConfig.LoginAttemptWindow,
	}, nil
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid backend type: %s", c.Type)
	}
	if c.Type == SQLiteBackend && c.SQLiteDBPath == "" {
		return fmt.Errorf("SQLite database path is required for sqlite backend")
	}
	if c.ExchangeRateTTL < 0 || c.RollForwardInterval < 0 || c.SessionTTL < 0 {
		return fmt.Errorf("durations cannot be negative")
	}
	return nil
}

// GetBackendTypes returns all valid backend types
func GetBackendTypes() []BackendType {
	return []BackendType{SQLiteBackend, MemoryBackend}
}

// Config holds configuration for backend creation
type Config struct {
	Type         BackendType
	SQLiteDBPath string

	// AMQP is optional; an empty URL leaves events unpublished.
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	ExchangeRateURL string
	ExchangeRateTTL time.Duration

	RollForwardPolicy   string
	RollForwardInterval time.Duration

	SessionTTL         time.Duration
	LoginMaxAttempts   int
	LoginAttemptWindow time.Duration
}

// BackendType represents the type of backend
type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

func (bt BackendType) String() string {
	return string(bt)
}

func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
