// Package config defines the configuration for the email delivery subsystem.
// Configuration is loaded once at process initialization and is immutable
// thereafter. It follows 12-Factor App principles by strictly separating
// code from configuration: everything comes from the environment, with an
// optional .env file for local development.
//
// Any missing required value or invalid format causes the process to exit
// immediately on startup (fail fast).
package config

import (
	"time"

	"lokumail/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type
// used for configuration values that must never appear in logs.
type SecretString = types.SecretString

// Config is the top-level configuration struct shared by the worker and the
// webhook server. Sub-components receive only the specific subsets they
// require.
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" default:"local" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"lokumail"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// Domain Configurations
	Server   ServerConfig
	Database DatabaseConfig
	Email    EmailConfig
	Resend   ResendConfig
}

// ServerConfig holds HTTP server settings for the webhook server process.
type ServerConfig struct {
	Port            string        `envconfig:"PORT" default:"8090"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"10s"`
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required"`

	// Tuning Parameters
	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	AcquireTimeout    time.Duration `envconfig:"DB_ACQUIRE_TIMEOUT" default:"2s"`     // Fail fast when pool exhausted
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"` // Detect dead connections during failover
}

// EmailConfig holds delivery policy: kill switches, addressing defaults, and
// the worker's retry, rate, lease, and polling parameters.
type EmailConfig struct {
	// Kill switches. QueueEnabled=false refuses new enqueues and cancels
	// leased jobs; Enabled=false suppresses instead of sending.
	QueueEnabled bool `envconfig:"EMAIL_QUEUE_ENABLED" default:"true"`
	Enabled      bool `envconfig:"EMAIL_ENABLED" default:"true"`

	FromAddress    string `envconfig:"EMAIL_FROM_ADDRESS" validate:"required,email"`
	FromName       string `envconfig:"EMAIL_FROM_NAME" default:"Loku Caters"`
	ReplyToAddress string `envconfig:"EMAIL_REPLY_TO_ADDRESS" validate:"omitempty,email"`

	MaxAttempts       int           `envconfig:"EMAIL_MAX_ATTEMPTS" default:"8" validate:"min=1"`
	SendRatePerSecond int           `envconfig:"EMAIL_SEND_RATE_PER_SECOND" default:"1" validate:"min=1"`
	LockDuration      time.Duration `envconfig:"EMAIL_LOCK_DURATION" default:"60s"`
	PollInterval      time.Duration `envconfig:"EMAIL_POLL_INTERVAL" default:"1s"`
}

// ResendConfig holds Resend API credentials and webhook verification secrets.
type ResendConfig struct {
	APIKey SecretString `envconfig:"RESEND_API_KEY" validate:"required"`
	// WebhookSecret is required by the webhook server only; the worker
	// process does not verify inbound signatures.
	WebhookSecret SecretString  `envconfig:"RESEND_WEBHOOK_SECRET"`
	BaseURL       string        `envconfig:"RESEND_BASE_URL"` // Override for testing; defaults to the public API
	Timeout       time.Duration `envconfig:"RESEND_TIMEOUT" default:"30s"`
}

// ConfigErrorType categorizes configuration loading failures to aid debugging.
type ConfigErrorType string

const (
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates a failure when parsing environment variable values
	// into their target types.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
)
