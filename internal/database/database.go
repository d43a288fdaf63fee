package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	"satsync/internal/constants"
	"satsync/internal/migrations"
	"satsync/internal/models"
	"satsync/internal/security"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// DB owns the connection pool. Work is done through a Session acquired per
// cycle or request.
type DB struct {
	db             *sql.DB
	driver         string
	secrets        *secretBox
	logger         *logrus.Logger
	now            func() time.Time
	messageTTLDays int
	callLogTTLDays int
}

// Open connects to the configured backend and applies pending migrations
func Open(ctx context.Context, cfg models.DatabaseConfig, logger *logrus.Logger) (*DB, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = DriverSQLite
	}

	dsn, err := dataSourceName(driver, cfg.Path)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	maxOpen := cfg.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = constants.DefaultMaxOpenConns
	}
	db.SetMaxOpenConns(maxOpen)

	if err := db.PingContext(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to ping database: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	secrets, err := newSecretBox()
	if err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to initialize password encryption: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to initialize password encryption: %w", err)
	}

	if logger == nil {
		logger = logrus.New()
	}
	d := &DB{db: db, driver: driver, secrets: secrets, logger: logger, now: time.Now}

	if err := d.Migrate(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to initialize schema: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return d, nil
}

func dataSourceName(driver, path string) (string, error) {
	switch driver {
	case DriverSQLite:
		if err := security.ValidateFilePath(path); err != nil {
			return "", fmt.Errorf("invalid database path: %w", err)
		}
		file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0600)
		if err != nil {
			return "", fmt.Errorf("failed to create database file: %w", err)
		}
		if err := file.Close(); err != nil {
			return "", fmt.Errorf("failed to close database file: %w", err)
		}
		return fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=%d", path, constants.SQLiteBusyTimeoutMs), nil
	case DriverPostgres:
		if path == "" {
			return "", fmt.Errorf("postgres connection string is required")
		}
		return path, nil
	default:
		return "", fmt.Errorf("unsupported database driver %q", driver)
	}
}

// Migrate applies every embedded migration not yet recorded in schema_migrations
func (d *DB) Migrate(ctx context.Context) error {
	all, err := migrations.Load(d.driver)
	if err != nil {
		return err
	}

	if _, err := d.db.ExecContext(ctx, createMigrationsTableQuery); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	for _, m := range all {
		var count int
		if err := d.db.QueryRowContext(ctx, countMigrationQuery, m.Version).Scan(&count); err != nil {
			return fmt.Errorf("failed to check migration %d: %w", m.Version, err)
		}
		if count > 0 {
			continue
		}

		if _, err := d.db.ExecContext(ctx, m.SQL); err != nil {
			return fmt.Errorf("failed to apply migration %d (%s): %w", m.Version, m.Name, err)
		}
		if _, err := d.db.ExecContext(ctx, insertMigrationQuery, m.Version, d.now().UTC()); err != nil {
			return fmt.Errorf("failed to record migration %d: %w", m.Version, err)
		}
		d.logger.WithFields(logrus.Fields{
			"version": m.Version,
			"name":    m.Name,
		}).Info("Applied database migration")
	}
	return nil
}

// SetRetention sets the ttl_days stamped on new message and call log rows
func (d *DB) SetRetention(cfg models.RetentionConfig) {
	d.messageTTLDays = cfg.MessageTTLDays
	d.callLogTTLDays = cfg.CallLogTTLDays
}

// Driver returns the database/sql driver name in use
func (d *DB) Driver() string {
	return d.driver
}

// Ping checks connectivity
func (d *DB) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

func (d *DB) Close() error {
	return d.db.Close()
}

// Acquire pins a connection for the duration of a cycle. The caller must
// Release the session on every exit path.
func (d *DB) Acquire(ctx context.Context) (*Session, error) {
	conn, err := d.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}
	return &Session{conn: conn, db: d}, nil
}

// Session is a per-invocation handle on the store. It is not safe for
// concurrent use; parallel work acquires one session each.
type Session struct {
	conn     *sql.Conn
	db       *DB
	released bool
}

// Release returns the pinned connection to the pool. It is safe to call twice.
func (s *Session) Release() error {
	if s.released {
		return nil
	}
	s.released = true
	return s.conn.Close()
}

func (s *Session) now() time.Time {
	return s.db.now().UTC()
}

func (s *Session) exec(ctx context.Context, name, query string, args ...interface{}) (sql.Result, error) {
	var result sql.Result
	err := withContentionRetry(ctx, name, func() error {
		var execErr error
		result, execErr = s.conn.ExecContext(ctx, query, args...)
		return execErr
	})
	return result, err
}

// nullTime maps a zero time to NULL
func nullTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}
