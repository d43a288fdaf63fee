package models

// Config holds the application configuration
type Config struct {
	Database  DatabaseConfig  `json:"database" mapstructure:"database"`
	Server    ServerConfig    `json:"server" mapstructure:"server"`
	Sync      SyncConfig      `json:"sync" mapstructure:"sync"`
	Gateways  []GatewayConfig `json:"gateways" mapstructure:"gateways" validate:"dive"`
	Mailboxes []MailboxConfig `json:"mailboxes" mapstructure:"mailboxes" validate:"dive"`
	Retention RetentionConfig `json:"retention" mapstructure:"retention"`
	Retry     RetryConfig     `json:"retry" mapstructure:"retry"`
	Lock      LockConfig      `json:"lock" mapstructure:"lock"`
	Influx    InfluxConfig    `json:"influx" mapstructure:"influx"`
	Tracing   TracingSettings `json:"tracing" mapstructure:"tracing"`
	Monitor   MonitorConfig   `json:"monitor" mapstructure:"monitor"`
	LogLevel  string          `json:"log_level" mapstructure:"log_level"`
}

// DatabaseConfig selects the storage backend. Driver is "sqlite3" or "postgres";
// Path is a file for sqlite and a connection string for postgres.
type DatabaseConfig struct {
	Driver       string `json:"driver" mapstructure:"driver" validate:"omitempty,oneof=sqlite3 postgres"`
	Path         string `json:"path" mapstructure:"path"`
	MaxOpenConns int    `json:"max_open_conns" mapstructure:"max_open_conns"`
}

// ServerConfig holds HTTP trigger surface settings
type ServerConfig struct {
	Port      int    `json:"port" mapstructure:"port" validate:"gte=0,lte=65535"`
	JWTSecret string `json:"jwt_secret" mapstructure:"jwt_secret"`
}

// SyncConfig controls the polling cycles
type SyncConfig struct {
	OriginatedIntervalSec int `json:"originated_interval_sec" mapstructure:"originated_interval_sec"`
	StatusIntervalSec     int `json:"status_interval_sec" mapstructure:"status_interval_sec"`
	MaxPages              int `json:"max_pages" mapstructure:"max_pages"`
	MailboxConcurrency    int `json:"mailbox_concurrency" mapstructure:"mailbox_concurrency"`
	RequestTimeoutSec     int `json:"request_timeout_sec" mapstructure:"request_timeout_sec"`
	RequestsPerSecond     int `json:"requests_per_second" mapstructure:"requests_per_second"`
}

// GatewayConfig provisions a message gateway
type GatewayConfig struct {
	Name string `json:"name" mapstructure:"name" validate:"required"`
	URL  string `json:"url" mapstructure:"url" validate:"required,url"`
}

// MailboxConfig provisions a mailbox on a gateway
type MailboxConfig struct {
	AccessID    string `json:"access_id" mapstructure:"access_id" validate:"required"`
	Password    string `json:"password" mapstructure:"password" validate:"required"`
	Gateway     string `json:"gateway" mapstructure:"gateway" validate:"required"`
	Description string `json:"description" mapstructure:"description"`
	Enabled     *bool  `json:"enabled" mapstructure:"enabled"`
}

// IsEnabled reports whether the mailbox takes part in cycles; unset means enabled
func (m MailboxConfig) IsEnabled() bool {
	return m.Enabled == nil || *m.Enabled
}

// RetentionConfig bounds the call log and records message lifetimes
type RetentionConfig struct {
	MaxCallLogs    int `json:"max_call_logs" mapstructure:"max_call_logs"`
	MessageTTLDays int `json:"message_ttl_days" mapstructure:"message_ttl_days"`
	CallLogTTLDays int `json:"call_log_ttl_days" mapstructure:"call_log_ttl_days"`
}

// RetryConfig holds retry related configurations
type RetryConfig struct {
	InitialBackoffMs int `json:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int `json:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	MaxAttempts      int `json:"max_attempts" mapstructure:"max_attempts"`
}

// LockConfig selects the (mailbox, operation) lock backend
type LockConfig struct {
	RedisAddr     string `json:"redis_addr" mapstructure:"redis_addr"`
	RedisPassword string `json:"redis_password" mapstructure:"redis_password"`
	RedisDB       int    `json:"redis_db" mapstructure:"redis_db"`
	TTLSec        int    `json:"ttl_sec" mapstructure:"ttl_sec"`
}

// InfluxConfig enables the decoded telemetry sink
type InfluxConfig struct {
	URL    string `json:"url" mapstructure:"url" validate:"omitempty,url"`
	Token  string `json:"token" mapstructure:"token"`
	Org    string `json:"org" mapstructure:"org"`
	Bucket string `json:"bucket" mapstructure:"bucket"`
}

// TracingSettings mirrors tracing.TracingConfig in the config file
type TracingSettings struct {
	Enabled      bool    `json:"enabled" mapstructure:"enabled"`
	UseStdout    bool    `json:"use_stdout" mapstructure:"use_stdout"`
	OTLPEndpoint string  `json:"otlp_endpoint" mapstructure:"otlp_endpoint"`
	SampleRate   float64 `json:"sample_rate" mapstructure:"sample_rate"`
	Environment  string  `json:"environment" mapstructure:"environment"`
}

// MonitorConfig drives the open-command monitor
type MonitorConfig struct {
	IntervalMin     int `json:"interval_min" mapstructure:"interval_min"`
	StaleThresholdH int `json:"stale_threshold_hours" mapstructure:"stale_threshold_hours"`
}

type ConfigError struct {
	Message string
}

func (e ConfigError) Error() string {
	return e.Message
}
