package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"

	"satsync/internal/constants"
	apperrors "satsync/internal/errors"
	"satsync/internal/models"
	"satsync/internal/security"
	"satsync/internal/validation"
)

var (
	ErrMissingDBPath    = models.ConfigError{Message: "missing database path"}
	ErrMissingGateways  = models.ConfigError{Message: "at least one gateway is required"}
	ErrMissingMailboxes = models.ConfigError{Message: "at least one mailbox is required"}
)

// LoadConfig reads a yaml or json configuration file. Every key can be
// overridden from the environment with the SATSYNC_ prefix, for example
// SATSYNC_SERVER_JWT_SECRET or SATSYNC_DATABASE_PATH.
func LoadConfig(path string) (*models.Config, error) {
	if err := security.ValidateFilePath(path); err != nil {
		return nil, fmt.Errorf("invalid config path: %w", err)
	}

	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	var config models.Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, err
	}

	if err := validateSecurity(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(constants.EnvConfigPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv only resolves keys viper already knows about
	v.SetDefault("log_level", "info")
	v.SetDefault("database.driver", constants.DefaultDatabaseDriver)
	v.SetDefault("database.path", constants.DefaultDatabasePath)
	v.SetDefault("database.max_open_conns", constants.DefaultMaxOpenConns)
	v.SetDefault("server.port", constants.DefaultServerPort)
	v.SetDefault("server.jwt_secret", "")
	v.SetDefault("sync.originated_interval_sec", constants.DefaultOriginatedIntervalSec)
	v.SetDefault("sync.status_interval_sec", constants.DefaultStatusIntervalSec)
	v.SetDefault("sync.max_pages", constants.DefaultMaxPages)
	v.SetDefault("sync.mailbox_concurrency", constants.DefaultMailboxConcurrency)
	v.SetDefault("sync.request_timeout_sec", constants.DefaultRequestTimeoutSec)
	v.SetDefault("sync.requests_per_second", constants.DefaultRequestsPerSecond)
	v.SetDefault("retention.max_call_logs", constants.DefaultMaxCallLogs)
	v.SetDefault("retention.message_ttl_days", constants.DefaultMessageTTLDays)
	v.SetDefault("retention.call_log_ttl_days", constants.DefaultCallLogTTLDays)
	v.SetDefault("retry.initial_backoff_ms", constants.DefaultRetryBackoffMs)
	v.SetDefault("retry.max_backoff_ms", constants.DefaultMaxBackoffMs)
	v.SetDefault("retry.max_attempts", constants.DefaultMaxAttempts)
	v.SetDefault("lock.redis_addr", "")
	v.SetDefault("lock.redis_password", "")
	v.SetDefault("lock.redis_db", 0)
	v.SetDefault("lock.ttl_sec", constants.DefaultLockTTLSec)
	v.SetDefault("influx.url", "")
	v.SetDefault("influx.token", "")
	v.SetDefault("influx.org", "")
	v.SetDefault("influx.bucket", "")
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.use_stdout", false)
	v.SetDefault("tracing.otlp_endpoint", "")
	v.SetDefault("tracing.sample_rate", 1.0)
	v.SetDefault("tracing.environment", "development")
	v.SetDefault("monitor.interval_min", constants.DefaultMonitorIntervalMin)
	v.SetDefault("monitor.stale_threshold_hours", constants.DefaultStaleCommandHours)
	return v
}

func validate(c *models.Config) error {
	if err := validation.Struct(c); err != nil {
		return models.ConfigError{Message: apperrors.GetUserMessage(err)}
	}

	if c.Database.Path == "" {
		return ErrMissingDBPath
	}
	if len(c.Gateways) == 0 {
		return ErrMissingGateways
	}
	if len(c.Mailboxes) == 0 {
		return ErrMissingMailboxes
	}

	gateways := make(map[string]bool)
	for _, gw := range c.Gateways {
		if gateways[gw.Name] {
			return models.ConfigError{Message: fmt.Sprintf("duplicate gateway name: %s", gw.Name)}
		}
		gateways[gw.Name] = true
	}

	accessIDs := make(map[string]bool)
	for i, mb := range c.Mailboxes {
		if !gateways[mb.Gateway] {
			return models.ConfigError{Message: fmt.Sprintf("mailbox %d references unknown gateway %q", i, mb.Gateway)}
		}
		if accessIDs[mb.AccessID] {
			return models.ConfigError{Message: fmt.Sprintf("duplicate mailbox access id in mailbox %d", i)}
		}
		accessIDs[mb.AccessID] = true
	}

	if c.Database.Driver == "" {
		c.Database.Driver = constants.DefaultDatabaseDriver
	}
	if c.Database.MaxOpenConns <= 0 {
		c.Database.MaxOpenConns = constants.DefaultMaxOpenConns
	}
	if c.Sync.OriginatedIntervalSec <= 0 {
		c.Sync.OriginatedIntervalSec = constants.DefaultOriginatedIntervalSec
	}
	if c.Sync.StatusIntervalSec <= 0 {
		c.Sync.StatusIntervalSec = constants.DefaultStatusIntervalSec
	}
	if c.Sync.MaxPages <= 0 {
		c.Sync.MaxPages = constants.DefaultMaxPages
	}
	if c.Sync.MailboxConcurrency <= 0 {
		c.Sync.MailboxConcurrency = constants.DefaultMailboxConcurrency
	}
	if c.Sync.RequestTimeoutSec <= 0 {
		c.Sync.RequestTimeoutSec = constants.DefaultRequestTimeoutSec
	}
	if c.Sync.RequestsPerSecond <= 0 {
		c.Sync.RequestsPerSecond = constants.DefaultRequestsPerSecond
	}
	if c.Retention.MaxCallLogs < constants.MinMaxCallLogs {
		c.Retention.MaxCallLogs = constants.MinMaxCallLogs
	}
	if c.Retention.MessageTTLDays <= 0 {
		c.Retention.MessageTTLDays = constants.DefaultMessageTTLDays
	}
	if c.Retry.InitialBackoffMs <= 0 {
		c.Retry.InitialBackoffMs = constants.DefaultRetryBackoffMs
	}
	if c.Retry.MaxBackoffMs <= 0 {
		c.Retry.MaxBackoffMs = constants.DefaultMaxBackoffMs
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = constants.DefaultMaxAttempts
	}
	if c.Lock.TTLSec <= 0 {
		c.Lock.TTLSec = constants.DefaultLockTTLSec
	}
	if c.Monitor.IntervalMin <= 0 {
		c.Monitor.IntervalMin = constants.DefaultMonitorIntervalMin
	}
	if c.Monitor.StaleThresholdH <= 0 {
		c.Monitor.StaleThresholdH = constants.DefaultStaleCommandHours
	}
	return nil
}

// validateSecurity performs security-specific validation
func validateSecurity(c *models.Config) error {
	isProduction := os.Getenv("SATSYNC_ENV") == "production"

	if c.Server.JWTSecret != "" && len(c.Server.JWTSecret) < 32 {
		return models.ConfigError{Message: "server JWT secret must be at least 32 characters long"}
	}

	if isProduction {
		if c.Server.JWTSecret == "" {
			return models.ConfigError{Message: "server JWT secret is required in production (set SATSYNC_SERVER_JWT_SECRET)"}
		}
		if c.LogLevel == "debug" {
			return models.ConfigError{Message: "debug logging should not be used in production (security risk)"}
		}
	} else if c.Server.JWTSecret == "" {
		fmt.Fprintf(os.Stderr, "WARNING: command API is unauthenticated. Set SATSYNC_SERVER_JWT_SECRET to require bearer tokens.\n")
	}

	return nil
}
