// Package config defines the process configuration for the treasury service
// and the cycle-runner Lambda. Configuration is loaded once at startup and is
// immutable thereafter.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File -> Secret Files (Lowest)
//
// Any missing required value or invalid format fails startup.
package config

import (
	"time"

	"treasury/internal/types"
)

// SecretString is an alias for types.SecretString so config consumers do not
// need to import types for it.
type SecretString = types.SecretString

// Config is the top-level configuration struct. Sub-components receive only
// the subset they need.
type Config struct {
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"OTEL_SERVICE_NAME" default:"treasury"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	Server        ServerConfig
	Database      DatabaseConfig
	Scheduler     SchedulerConfig
	Portfolio     PortfolioConfig
	Alerts        AlertsConfig
	Stream        StreamConfig
	AWS           AWSConfig
	Observability ObservabilityConfig

	// Build Metadata (Injected via ldflags, not Env)
	Build BuildInfo
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string        `envconfig:"PORT" default:"8080"`
	RequestTimeout     time.Duration `envconfig:"REQUEST_TIMEOUT" default:"30s" validate:"gt=0"`
	ShutdownTimeout    time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"20s" validate:"gt=0"`
	CorsAllowedOrigins []string      `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	URL             SecretString  `envconfig:"DATABASE_URL" validate:"required"`
	MaxConns        int32         `envconfig:"DB_MAX_CONNS" default:"10" validate:"gte=1"`
	MinConns        int32         `envconfig:"DB_MIN_CONNS" default:"1" validate:"gte=0,ltefield=MaxConns"`
	MaxConnLifetime time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
}

// SchedulerConfig controls the two runners.
type SchedulerConfig struct {
	ExecutionInterval  time.Duration `envconfig:"EXECUTION_INTERVAL" default:"5m" validate:"gt=0"`
	MonitoringInterval time.Duration `envconfig:"MONITORING_INTERVAL" default:"1m" validate:"gt=0"`
	AutoStart          bool          `envconfig:"SCHEDULER_AUTO_START" default:"true"`

	// AutoExecute lets the execution cycle submit agent actions. When false
	// the cycle only previews.
	AutoExecute bool          `envconfig:"AUTO_EXECUTE" default:"false"`
	LockTTL     time.Duration `envconfig:"SCHEDULER_LOCK_TTL" default:"10m" validate:"gt=0"`
	WorkerID    string        `envconfig:"WORKER_ID"`
}

// PortfolioConfig points at the portfolio service that computes snapshots,
// risk and agent decisions.
type PortfolioConfig struct {
	BaseURL          string        `envconfig:"PORTFOLIO_API_URL" validate:"required,url"`
	APIKey           SecretString  `envconfig:"PORTFOLIO_API_KEY"`
	Timeout          time.Duration `envconfig:"PORTFOLIO_TIMEOUT" default:"15s" validate:"gt=0"`
	MaxRetries       int           `envconfig:"PORTFOLIO_MAX_RETRIES" default:"2" validate:"gte=0,lte=5"`
	BreakerFailures  uint32        `envconfig:"PORTFOLIO_BREAKER_FAILURES" default:"5" validate:"gte=1"`
	BreakerOpenDelay time.Duration `envconfig:"PORTFOLIO_BREAKER_OPEN" default:"30s"`
	UserAgent        string        `envconfig:"PORTFOLIO_USER_AGENT" default:"Treasury-Scheduler/1.0"`
}

// AlertsConfig configures the dispatcher and its sinks. At least one of
// WebhookURL and QueueURL should be set; with neither, alerts are only logged.
type AlertsConfig struct {
	WebhookURL           string        `envconfig:"ALERT_WEBHOOK_URL" validate:"omitempty,url"`
	WebhookSecret        SecretString  `envconfig:"ALERT_WEBHOOK_SECRET"`
	QueueURL             string        `envconfig:"ALERT_QUEUE_URL" validate:"omitempty,url"`
	RiskScoreThreshold   float64       `envconfig:"ALERT_RISK_THRESHOLD" default:"0.7" validate:"gte=0"`
	UtilizationThreshold float64       `envconfig:"ALERT_UTILIZATION_THRESHOLD" default:"0.85" validate:"gte=0"`
	Cooldown             time.Duration `envconfig:"ALERT_COOLDOWN" default:"15m" validate:"gte=0"`
	Timeout              time.Duration `envconfig:"ALERT_TIMEOUT" default:"10s" validate:"gt=0"`
	MaxRedirects         int           `envconfig:"ALERT_MAX_REDIRECTS" default:"3" validate:"gte=0"`
	AllowPrivate         bool          `envconfig:"ALERT_ALLOW_PRIVATE_TARGETS" default:"false"`
	UserAgent            string        `envconfig:"ALERT_USER_AGENT" default:"Treasury-Alerts/1.0"`
}

// StreamConfig tunes the live subscription gateway.
type StreamConfig struct {
	Keepalive  time.Duration `envconfig:"STREAM_KEEPALIVE" default:"15s" validate:"gt=0"`
	BufferSize int           `envconfig:"STREAM_BUFFER_SIZE" default:"64" validate:"gte=1"`
}

// AWSConfig holds regional configuration.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"us-east-1"`

	// LocalStack Support (Empty in Prod)
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// ObservabilityConfig holds telemetry settings.
type ObservabilityConfig struct {
	MetricNamespace  string `envconfig:"METRIC_NAMESPACE" default:"Treasury"`
	EnableCloudWatch bool   `envconfig:"ENABLE_CLOUDWATCH_METRICS" default:"false"`
	OTLPEndpoint     string `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTLPInsecure     bool   `envconfig:"OTEL_EXPORTER_OTLP_INSECURE" default:"false"`
	EnableTracing    bool   `envconfig:"ENABLE_TRACING" default:"true"`
}

// BuildInfo holds build-time metadata injected via ldflags.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration loading failures.
type ConfigErrorType string

const (
	// ErrSecretResolution indicates a secret file could not be read.
	ErrSecretResolution ConfigErrorType = "SECRET_FAILURE"
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates a failure when parsing environment variable values
	// into their target types.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
)
