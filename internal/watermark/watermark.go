// Package watermark derives gateway retrieval cursors from the call log.
package watermark

import (
	"context"
	"time"

	"satsync/internal/constants"
	apperrors "satsync/internal/errors"
	"satsync/internal/models"
	"satsync/pkg/idp/types"
)

// CallLogReader is the part of the store the tracker reads
type CallLogReader interface {
	LatestSuccessfulCallLog(ctx context.Context, accessID, operation string) (*models.APICallLog, error)
}

// Tracker hands out the cursor for the next listing call of a mailbox
type Tracker struct {
	reader   CallLogReader
	lookback time.Duration
	now      func() time.Time
}

// NewTracker creates a tracker over reader. A zero lookback uses the default
// of 48 hours.
func NewTracker(reader CallLogReader, lookback time.Duration) *Tracker {
	if lookback <= 0 {
		lookback = constants.DefaultCursorLookback
	}
	return &Tracker{reader: reader, lookback: lookback, now: time.Now}
}

// Supported reports whether operation is a paginated listing call
func Supported(operation string) bool {
	return operation == models.OperationGetReturnMessages || operation == models.OperationGetForwardStatuses
}

// Cursor returns where the next call for the mailbox and operation starts.
// Only successful calls move the watermark; a mailbox with no history
// starts one lookback window before now.
func (t *Tracker) Cursor(ctx context.Context, accessID, operation string) (models.Cursor, error) {
	if !Supported(operation) {
		return models.Cursor{}, apperrors.New(apperrors.ErrCodeInvalidInput, "unsupported watermark operation").
			WithContext("operation", operation)
	}

	last, err := t.reader.LatestSuccessfulCallLog(ctx, accessID, operation)
	if err != nil {
		return models.Cursor{}, apperrors.NewDatabaseError("read watermark", err)
	}
	if last != nil {
		if cursor, ok := (Mark{NextStartID: last.NextStartID, NextStartUTC: last.NextStartUTC}).Cursor(); ok {
			return cursor, nil
		}
	}
	return models.TimeCursor(types.FormatTime(t.now().Add(-t.lookback))), nil
}

// Mark is the continuation recorded in a call log row
type Mark struct {
	NextStartID  int64
	NextStartUTC string
}

// Cursor turns the mark into a cursor. A positive id wins over the time.
// It returns false when the mark carries neither.
func (m Mark) Cursor() (models.Cursor, bool) {
	if m.NextStartID > 0 {
		return models.IDCursor(m.NextStartID), true
	}
	if utc, ok := types.NormalizeTime(m.NextStartUTC); ok {
		return models.TimeCursor(utc), true
	}
	return models.Cursor{}, false
}

// Advance computes the mark to record after a successful call that used
// cursor used. An empty continuation time falls back to the call time, and
// the result never points before used.
func Advance(used models.Cursor, nextStartID int64, nextStartUTC string, callTime time.Time) Mark {
	utc, ok := types.NormalizeTime(nextStartUTC)
	if !ok {
		utc = types.FormatTime(callTime)
	}
	// gateway format sorts lexically
	if used.Kind == models.CursorByTime && used.StartUTC != "" && utc < used.StartUTC {
		utc = used.StartUTC
	}

	id := nextStartID
	if id < 0 {
		id = 0
	}
	if used.Kind == models.CursorByID && id < used.StartID {
		id = used.StartID
	}
	return Mark{NextStartID: id, NextStartUTC: utc}
}
