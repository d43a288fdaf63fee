package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"satsync/internal/config"
	"satsync/internal/constants"
	"satsync/internal/database"
	"satsync/internal/lock"
	"satsync/internal/metrics"
	"satsync/internal/models"
	"satsync/internal/notify"
	"satsync/internal/retry"
	"satsync/internal/service"
	"satsync/internal/tracing"
	"satsync/pkg/circuitbreaker"
	"satsync/pkg/idp"
)

// app holds everything a command needs. close releases it in reverse order.
type app struct {
	cfg      *models.Config
	logger   *logrus.Logger
	metrics  *metrics.Metrics
	db       *database.DB
	engine   *service.Engine
	hub      *notify.Hub
	notifier notify.Notifier
	closers  []func()
}

func newLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stderr)
	return logger
}

// applyLogLevel sets the configured level. Debug output carries more ids,
// so without --verbose the level is capped at info.
func applyLogLevel(logger *logrus.Logger, level string, verbose bool) {
	if verbose {
		logger.SetLevel(logrus.DebugLevel)
		return
	}
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		if level != "" {
			logger.Warnf("Invalid log level %q, defaulting to info", level)
		}
		parsed = logrus.InfoLevel
	}
	if parsed > logrus.InfoLevel {
		parsed = logrus.InfoLevel
	}
	logger.SetLevel(parsed)
}

// openDatabase connects with exponential backoff so the service survives a
// database that starts after it.
func openDatabase(ctx context.Context, cfg *models.Config, logger *logrus.Logger) (*database.DB, error) {
	backoffCfg := retry.FromConfig(cfg.Retry)
	backoffCfg.MaxAttempts = constants.DefaultDatabaseRetryAttempts
	backoffCfg.OnRetry = func(attempt int, delay time.Duration, err error) {
		logger.WithFields(logrus.Fields{
			"attempt": attempt,
			"delay":   delay.String(),
		}).WithError(err).Warn("Failed to open database, retrying")
	}

	var db *database.DB
	err := retry.NewBackoff(backoffCfg).Retry(ctx, func() error {
		var openErr error
		db, openErr = database.Open(ctx, cfg.Database, logger)
		return openErr
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database after retries: %w", err)
	}
	db.SetRetention(cfg.Retention)
	return db, nil
}

func newGatewayClient(cfg *models.Config, m *metrics.Metrics, logger *logrus.Logger) *idp.Client {
	return idp.NewClient(idp.Options{
		Timeout:           time.Duration(cfg.Sync.RequestTimeoutSec) * time.Second,
		RequestsPerSecond: float64(cfg.Sync.RequestsPerSecond),
		Burst:             cfg.Sync.RequestsPerSecond,
		Breaker: circuitbreaker.Config{
			MaxFailures:   constants.DefaultCircuitMaxFailures,
			Timeout:       constants.DefaultCircuitTimeoutSec * time.Second,
			OnStateChange: m.BreakerStateChanged,
		},
		ErrorCacheTTL: constants.DefaultErrorNameCacheMinutes * time.Minute,
		Logger:        logger,
		Observe:       m.ObserveGatewayCall,
	})
}

// newLocker uses Redis when an address is configured so several instances
// can share mailboxes, and an in-process lock otherwise.
func newLocker(ctx context.Context, cfg models.LockConfig, logger *logrus.Logger) (lock.Locker, func(), error) {
	if cfg.RedisAddr == "" {
		return lock.NewMemoryLocker(), func() {}, nil
	}
	locker := lock.NewRedisLocker(cfg, logger)
	if err := locker.Ping(ctx); err != nil {
		_ = locker.Close()
		return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	logger.WithField("addr", cfg.RedisAddr).Info("Using Redis mailbox locks")
	return locker, func() {
		if err := locker.Close(); err != nil {
			logger.WithError(err).Warn("Failed to close redis client")
		}
	}, nil
}

// openApp loads configuration and wires storage, the gateway client and
// the engine. Configured gateways and mailboxes are provisioned.
func openApp(ctx context.Context, configPath string, verbose bool) (*app, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger := newLogger()
	applyLogLevel(logger, cfg.LogLevel, verbose)

	a := &app{cfg: cfg, logger: logger, metrics: metrics.New(true)}

	tracingManager := tracing.NewManager(cfg.Tracing, Version, logger)
	if err := tracingManager.Initialize(ctx); err != nil {
		logger.WithError(err).Warn("Failed to initialize tracing")
	}
	a.closers = append(a.closers, func() {
		if err := tracingManager.Shutdown(context.Background()); err != nil {
			logger.WithError(err).Warn("Failed to shutdown tracing")
		}
	})

	db, err := openDatabase(ctx, cfg, logger)
	if err != nil {
		a.close()
		return nil, err
	}
	a.db = db
	a.closers = append(a.closers, func() {
		if err := db.Close(); err != nil {
			logger.WithError(err).Warn("Failed to close database")
		}
	})

	locker, closeLocker, err := newLocker(ctx, cfg.Lock, logger)
	if err != nil {
		a.close()
		return nil, err
	}
	a.closers = append(a.closers, closeLocker)

	a.hub = notify.NewHub(logger)
	notifiers := notify.Multi{notify.NewLogNotifier(logger), a.hub}
	if cfg.Influx.URL != "" {
		sink := notify.NewInfluxSink(cfg.Influx, logger)
		notifiers = append(notifiers, sink)
		a.closers = append(a.closers, sink.Close)
		logger.WithField("bucket", cfg.Influx.Bucket).Info("Writing telemetry to InfluxDB")
	}

	a.notifier = notifiers

	a.engine = service.NewEngine(db, newGatewayClient(cfg, a.metrics, logger), service.EngineOptions{
		Notifier:           notifiers,
		Locker:             locker,
		Metrics:            a.metrics,
		Logger:             logger,
		MaxPages:           cfg.Sync.MaxPages,
		MailboxConcurrency: cfg.Sync.MailboxConcurrency,
		MaxCallLogs:        cfg.Retention.MaxCallLogs,
	})

	if err := a.engine.ProvisionFromConfig(ctx, cfg); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func intervalOr(sec, def int) time.Duration {
	if sec <= 0 {
		sec = def
	}
	return time.Duration(sec) * time.Second
}
