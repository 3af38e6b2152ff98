// Package config defines the global configuration structure for the Ticketdesk
// dispatch service. Configuration is loaded once at process initialization and
// is immutable thereafter. It follows 12-Factor App principles by strictly
// separating code from configuration.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File (Lowest)
//
// Any missing required value or invalid format causes the application to fail
// immediately on startup.
package config

import (
	"time"

	"ticketdesk/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type
// used throughout configuration to prevent accidental logging of sensitive
// values.
type SecretString = types.SecretString

// Config is the top-level configuration struct for the dispatch service.
// It is populated once during process initialization and never modified.
// Sub-components receive only the specific config subsets they require.
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"ticketdesk"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	IsTestMode  bool   `envconfig:"IS_TEST_MODE" default:"false"`

	// Domain Configurations
	Server        ServerConfig
	Database      DatabaseConfig
	AWS           AWSConfig
	Email         EmailConfig
	Webhook       WebhookConfig
	Observability ObservabilityConfig
	Feature       FeatureConfig

	// Build Metadata (Injected via ldflags, not Env)
	Build BuildInfo
}

// ServerConfig holds HTTP server and public URL configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8080"`
	// Public dashboard URL used for ticket permalinks in payloads and emails
	// (no trailing slash).
	DashboardURL string `envconfig:"DASHBOARD_URL" validate:"required,url"`
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required,url"`

	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	AcquireTimeout    time.Duration `envconfig:"DB_ACQUIRE_TIMEOUT" default:"2s"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
}

// AWSConfig holds AWS resource identifiers and regional configuration.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"us-east-1"`

	// Queue URLs for the asynchronous delivery workers.
	WebhookQueue string `envconfig:"SQS_WEBHOOK_JOBS" validate:"required,url"`
	EmailQueue   string `envconfig:"SQS_EMAIL_JOBS" validate:"required,url"`
	DlqURL       string `envconfig:"SQS_DLQ"`

	// LocalStack support (empty in prod).
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// EmailConfig holds provider endpoints and default sender identity. Per-tenant
// channel credentials live in the database; these are process-level settings.
type EmailConfig struct {
	FromName string `envconfig:"EMAIL_FROM_NAME" default:"Ticketdesk"`

	// Base URL overrides for provider APIs. Empty means the provider default;
	// set in tests and LocalStack-style environments.
	GraphBaseURL string `envconfig:"EMAIL_GRAPH_BASE_URL"`
	GmailBaseURL string `envconfig:"EMAIL_GMAIL_BASE_URL"`
	SMTPRelayURL string `envconfig:"EMAIL_SMTP_RELAY_URL"`

	// OAuth application credentials for connecting tenant mailboxes. Channel
	// tokens are minted against these apps and stored per channel.
	GraphClientID     string       `envconfig:"EMAIL_GRAPH_CLIENT_ID"`
	GraphClientSecret SecretString `envconfig:"EMAIL_GRAPH_CLIENT_SECRET"`
	GraphTenant       string       `envconfig:"EMAIL_GRAPH_TENANT" default:"common"`
	GmailClientID     string       `envconfig:"EMAIL_GMAIL_CLIENT_ID"`
	GmailClientSecret SecretString `envconfig:"EMAIL_GMAIL_CLIENT_SECRET"`

	SendTimeout time.Duration `envconfig:"EMAIL_SEND_TIMEOUT" default:"10s"`
}

// WebhookConfig holds settings for outbound webhook delivery.
type WebhookConfig struct {
	UserAgent      string        `envconfig:"WEBHOOK_USER_AGENT" default:"Ticketdesk-Webhook/1.0"`
	DefaultTimeout time.Duration `envconfig:"WEBHOOK_TIMEOUT" default:"10s"`
	MaxRedirects   int           `envconfig:"WEBHOOK_MAX_REDIRECTS" default:"3"`
}

// ObservabilityConfig holds telemetry settings.
type ObservabilityConfig struct {
	MetricNamespace string `envconfig:"METRIC_NAMESPACE" default:"Ticketdesk"`
}

// FeatureConfig holds emergency kill switches for delivery capabilities.
type FeatureConfig struct {
	EnableEmail    bool `envconfig:"FEATURE_ENABLE_EMAIL" default:"true"`
	EnableWebhooks bool `envconfig:"FEATURE_ENABLE_WEBHOOKS" default:"true"`
}

// BuildInfo holds build-time metadata injected via ldflags.
// These values are NOT populated from environment variables.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration loading failures to aid debugging.
type ConfigErrorType string

const (
	// ErrMissingEnv indicates a required environment variable was not found.
	ErrMissingEnv ConfigErrorType = "MISSING_ENV"
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates a failure when parsing environment variable values
	// into their target types.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
)
