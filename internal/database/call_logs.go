package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"satsync/internal/constants"
	"satsync/internal/models"
)

// AppendCallLog records one gateway call. Call log rows are never updated.
func (s *Session) AppendCallLog(ctx context.Context, l models.APICallLog) error {
	callTime := l.CallTime
	if callTime.IsZero() {
		callTime = s.now()
	}
	ttl := s.db.callLogTTLDays
	if ttl <= 0 {
		ttl = constants.DefaultCallLogTTLDays
	}
	_, err := s.exec(ctx, "append call log", insertCallLogQuery,
		callTime.UTC(), l.AccessID, l.Operation, l.GatewayURL, l.CursorID, l.CursorUTC,
		l.Success, l.ErrorID, l.ErrorDesc, l.NextStartID, l.NextStartUTC, l.More,
		l.MessageCount, ttl,
	)
	if err != nil {
		return fmt.Errorf("failed to append call log: %w", err)
	}
	return nil
}

// LatestSuccessfulCallLog returns the newest successful call for the
// mailbox and operation, or nil when there is none.
func (s *Session) LatestSuccessfulCallLog(ctx context.Context, accessID, operation string) (*models.APICallLog, error) {
	l, err := scanCallLog(s.conn.QueryRowContext(ctx, selectLatestSuccessfulCallLogQuery, accessID, operation, true))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get latest call log: %w", err)
	}
	return l, nil
}

// CallLogs lists the call log for a mailbox and operation, oldest first
func (s *Session) CallLogs(ctx context.Context, accessID, operation string) ([]models.APICallLog, error) {
	rows, err := s.conn.QueryContext(ctx, selectCallLogsQuery, accessID, operation)
	if err != nil {
		return nil, fmt.Errorf("failed to list call logs: %w", err)
	}
	defer rows.Close()

	var out []models.APICallLog
	for rows.Next() {
		l, err := scanCallLog(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan call log: %w", err)
		}
		out = append(out, *l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate call logs: %w", err)
	}
	return out, nil
}

// CountCallLogs returns the number of stored call log rows
func (s *Session) CountCallLogs(ctx context.Context) (int, error) {
	var count int
	if err := s.conn.QueryRowContext(ctx, countCallLogsQuery).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count call logs: %w", err)
	}
	return count, nil
}

// TrimCallLogs deletes the oldest rows beyond max. max is raised to the
// floor of constants.MinMaxCallLogs.
func (s *Session) TrimCallLogs(ctx context.Context, max int) (int64, error) {
	if max < constants.MinMaxCallLogs {
		max = constants.MinMaxCallLogs
	}
	result, err := s.exec(ctx, "trim call logs", trimCallLogsQuery, max)
	if err != nil {
		return 0, fmt.Errorf("failed to trim call logs: %w", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return deleted, nil
}

func scanCallLog(row rowScanner) (*models.APICallLog, error) {
	var l models.APICallLog
	err := row.Scan(
		&l.ID, &l.CallTime, &l.AccessID, &l.Operation, &l.GatewayURL, &l.CursorID, &l.CursorUTC,
		&l.Success, &l.ErrorID, &l.ErrorDesc, &l.NextStartID, &l.NextStartUTC, &l.More, &l.MessageCount,
	)
	if err != nil {
		return nil, err
	}
	l.CallTime = l.CallTime.UTC()
	return &l, nil
}
