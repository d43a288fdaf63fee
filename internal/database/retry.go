package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"

	"satsync/internal/constants"
)

// withContentionRetry runs op and retries it while the database reports lock
// contention. Every other error is returned on the first attempt.
func withContentionRetry(ctx context.Context, name string, op func() error) error {
	backoff := time.Duration(constants.DefaultDatabaseRetryBackoffMs) * time.Millisecond

	var err error
	for attempt := 1; attempt <= constants.DefaultDatabaseRetryAttempts; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err = op(); err == nil || !isContention(err) {
			return err
		}
		if attempt == constants.DefaultDatabaseRetryAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * backoff):
		}
	}
	return fmt.Errorf("%s: database still busy after %d attempts: %w", name, constants.DefaultDatabaseRetryAttempts, err)
}

// isContention reports sqlite busy/locked results and postgres
// serialization failures or deadlocks.
func isContention(err error) bool {
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code == sqlite3.ErrBusy || liteErr.Code == sqlite3.ErrLocked
	}
	var pgErr *pq.Error
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}
