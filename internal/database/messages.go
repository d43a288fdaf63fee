package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"satsync/internal/constants"
	"satsync/internal/models"
)

// MergeOutcome reports how a status update was applied
type MergeOutcome struct {
	Result        models.MergeResult
	PreviousState int
	// Closed is true only when this update closed the message
	Closed bool
}

func (s *Session) ttlDays() int {
	if s.db.messageTTLDays > 0 {
		return s.db.messageTTLDays
	}
	return constants.DefaultMessageTTLDays
}

// InsertOriginatedIfAbsent stores a mobile-originated message unless one
// with the same id exists. It reports whether a row was created.
func (s *Session) InsertOriginatedIfAbsent(ctx context.Context, m models.OriginatedMessage) (bool, error) {
	now := s.now()
	result, err := s.exec(ctx, "insert originated message", insertOriginatedIfAbsentQuery,
		models.CategoryOriginated.Tag(), m.MessageID, m.AccessID, m.MobileID, m.SIN, m.MIN,
		nullTime(m.MessageUTC), nullTime(m.ReceiveUTC), m.RegionName, m.OTAMessageSize,
		m.RawPayload, m.PayloadJSON, s.ttlDays(), now, now,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert originated message: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return affected > 0, nil
}

// InsertTerminatedIfAbsent stores a submitted command unless one with the
// same forward id exists. It reports whether a row was created.
func (s *Session) InsertTerminatedIfAbsent(ctx context.Context, m models.TerminatedMessage) (bool, error) {
	now := s.now()
	var stateUTC interface{}
	if m.StateUTC != nil {
		stateUTC = m.StateUTC.UTC()
	}
	result, err := s.exec(ctx, "insert terminated message", insertTerminatedIfAbsentQuery,
		models.CategoryTerminated.Tag(), m.MessageID, m.AccessID, m.MobileID, m.SIN, m.MIN,
		m.UserMessageID, nullTime(m.SubmitUTC), m.State, stateUTC, m.IsClosed,
		m.ErrorID, m.ErrorDesc, m.OTAMessageSize, m.RawPayload, m.PayloadJSON,
		s.ttlDays(), now, now,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert terminated message: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return affected > 0, nil
}

// MergeTerminatedStatus applies a delivery status to a stored command. The
// row is written only when the state differs, and a closed command stays
// closed whatever the update says.
func (s *Session) MergeTerminatedStatus(ctx context.Context, u models.StatusUpdate) (MergeOutcome, error) {
	tag := models.CategoryTerminated.Tag()

	var prevState sql.NullInt64
	var prevClosed bool
	err := s.conn.QueryRowContext(ctx, selectTerminatedStateQuery, tag, u.MessageID).Scan(&prevState, &prevClosed)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return MergeOutcome{Result: models.MergeNotFound}, nil
		}
		return MergeOutcome{}, fmt.Errorf("failed to read terminated message state: %w", err)
	}

	outcome := MergeOutcome{Result: models.MergeUnchanged, PreviousState: int(prevState.Int64)}
	if prevState.Valid && int(prevState.Int64) == u.State {
		return outcome, nil
	}

	var reference interface{}
	if u.ReferenceNumber != 0 {
		reference = u.ReferenceNumber
	}
	result, err := s.exec(ctx, "merge terminated status", mergeTerminatedStatusQuery,
		u.State, nullTime(u.StateUTC), u.ErrorID, u.ErrorDesc, reference, u.IsClosed,
		s.now(), tag, u.MessageID,
	)
	if err != nil {
		return MergeOutcome{}, fmt.Errorf("failed to merge terminated status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return MergeOutcome{}, fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return outcome, nil
	}

	outcome.Result = models.MergeUpdated
	outcome.Closed = u.IsClosed && !prevClosed
	return outcome, nil
}

// OriginatedMessage returns a stored mobile-originated message, or nil
func (s *Session) OriginatedMessage(ctx context.Context, messageID int64) (*models.OriginatedMessage, error) {
	var (
		m                   models.OriginatedMessage
		min, size           sql.NullInt64
		msgUTC, rcvUTC      sql.NullTime
		region, payloadJSON sql.NullString
	)
	err := s.conn.QueryRowContext(ctx, selectOriginatedQuery, models.CategoryOriginated.Tag(), messageID).Scan(
		&m.MessageID, &m.AccessID, &m.MobileID, &m.SIN, &min, &msgUTC, &rcvUTC,
		&region, &size, &m.RawPayload, &payloadJSON,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get originated message: %w", err)
	}
	m.MIN = int(min.Int64)
	if t := timePtr(msgUTC); t != nil {
		m.MessageUTC = *t
	}
	if t := timePtr(rcvUTC); t != nil {
		m.ReceiveUTC = *t
	}
	m.RegionName = region.String
	m.OTAMessageSize = int(size.Int64)
	m.PayloadJSON = payloadJSON.String
	return &m, nil
}

// TerminatedMessage returns a stored command with its merged state, or nil
func (s *Session) TerminatedMessage(ctx context.Context, messageID int64) (*models.TerminatedMessage, error) {
	var (
		m                           models.TerminatedMessage
		min, userMsgID, state, size sql.NullInt64
		reference                   sql.NullInt64
		submitUTC, stateUTC         sql.NullTime
		payloadJSON                 sql.NullString
	)
	err := s.conn.QueryRowContext(ctx, selectTerminatedQuery, models.CategoryTerminated.Tag(), messageID).Scan(
		&m.MessageID, &m.AccessID, &m.MobileID, &m.SIN, &min, &userMsgID, &submitUTC,
		&state, &stateUTC, &m.IsClosed, &m.ErrorID, &m.ErrorDesc, &reference,
		&size, &m.RawPayload, &payloadJSON,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get terminated message: %w", err)
	}
	m.MIN = int(min.Int64)
	m.UserMessageID = userMsgID.Int64
	if t := timePtr(submitUTC); t != nil {
		m.SubmitUTC = *t
	}
	m.State = int(state.Int64)
	m.StateUTC = timePtr(stateUTC)
	m.ReferenceNumber = reference.Int64
	m.OTAMessageSize = int(size.Int64)
	m.PayloadJSON = payloadJSON.String
	return &m, nil
}

// OpenTerminatedIDs lists forward ids of commands on a mailbox that are not closed
func (s *Session) OpenTerminatedIDs(ctx context.Context, accessID string) ([]int64, error) {
	rows, err := s.conn.QueryContext(ctx, selectOpenTerminatedIDsQuery, models.CategoryTerminated.Tag(), accessID, false)
	if err != nil {
		return nil, fmt.Errorf("failed to list open terminated messages: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan terminated message id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate open terminated messages: %w", err)
	}
	return ids, nil
}

// CountOpenTerminatedBefore counts open commands submitted before cutoff
func (s *Session) CountOpenTerminatedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	var count int
	err := s.conn.QueryRowContext(ctx, countOpenTerminatedBeforeQuery, models.CategoryTerminated.Tag(), false, cutoff.UTC()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count open terminated messages: %w", err)
	}
	return count, nil
}
