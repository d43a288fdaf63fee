package database

import (
	"context"
	"testing"
	"time"

	"satsync/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsertOriginatedIfAbsent(t *testing.T) {
	ctx := context.Background()
	s := openTestSession(t)

	msg := models.OriginatedMessage{
		MessageID:      10970,
		AccessID:       "70000934",
		MobileID:       "01097623SKY2C68",
		SIN:            128,
		MIN:            1,
		MessageUTC:     time.Date(2026, 2, 28, 9, 30, 0, 0, time.UTC),
		ReceiveUTC:     time.Date(2026, 2, 28, 9, 30, 5, 0, time.UTC),
		RegionName:     "AMERRB16",
		OTAMessageSize: 4,
		RawPayload:     []byte{128, 1, 2, 3},
	}

	created, err := s.InsertOriginatedIfAbsent(ctx, msg)
	require.NoError(t, err)
	assert.True(t, created)

	msg.RegionName = "changed"
	created, err = s.InsertOriginatedIfAbsent(ctx, msg)
	require.NoError(t, err)
	assert.False(t, created)

	stored, err := s.OriginatedMessage(ctx, 10970)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "AMERRB16", stored.RegionName, "first write wins")
	assert.Equal(t, []byte{128, 1, 2, 3}, stored.RawPayload)
	assert.True(t, stored.MessageUTC.Equal(msg.MessageUTC))

	// same id in the other category is a different message
	created, err = s.InsertTerminatedIfAbsent(ctx, models.TerminatedMessage{MessageID: 10970, AccessID: "70000934", MobileID: "01097623SKY2C68", SIN: 16})
	require.NoError(t, err)
	assert.True(t, created)
}

func insertOpenCommand(t *testing.T, s *Session, id int64, submitted time.Time) {
	t.Helper()
	created, err := s.InsertTerminatedIfAbsent(context.Background(), models.TerminatedMessage{
		MessageID:     id,
		AccessID:      "70000934",
		MobileID:      "01097623SKY2C68",
		SIN:           16,
		MIN:           1,
		UserMessageID: 7,
		SubmitUTC:     submitted,
		State:         models.StateSubmitted,
	})
	require.NoError(t, err)
	require.True(t, created)
}

func TestMergeTerminatedStatus(t *testing.T) {
	ctx := context.Background()
	s := openTestSession(t)
	submitted := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	insertOpenCommand(t, s, 5001, submitted)

	t.Run("unknown id", func(t *testing.T) {
		out, err := s.MergeTerminatedStatus(ctx, models.StatusUpdate{MessageID: 9999, State: models.StateReceived})
		require.NoError(t, err)
		assert.Equal(t, models.MergeNotFound, out.Result)
	})

	t.Run("same state is not written", func(t *testing.T) {
		out, err := s.MergeTerminatedStatus(ctx, models.StatusUpdate{MessageID: 5001, State: models.StateSubmitted})
		require.NoError(t, err)
		assert.Equal(t, models.MergeUnchanged, out.Result)
		assert.False(t, out.Closed)
	})

	stateUTC := submitted.Add(10 * time.Minute)

	t.Run("closing update", func(t *testing.T) {
		out, err := s.MergeTerminatedStatus(ctx, models.StatusUpdate{
			MessageID:       5001,
			State:           models.StateReceived,
			StateUTC:        stateUTC,
			IsClosed:        true,
			ReferenceNumber: 42,
		})
		require.NoError(t, err)
		assert.Equal(t, models.MergeUpdated, out.Result)
		assert.Equal(t, models.StateSubmitted, out.PreviousState)
		assert.True(t, out.Closed)

		m, err := s.TerminatedMessage(ctx, 5001)
		require.NoError(t, err)
		require.NotNil(t, m)
		assert.Equal(t, models.StateReceived, m.State)
		assert.True(t, m.IsClosed)
		assert.Equal(t, int64(42), m.ReferenceNumber)
		require.NotNil(t, m.StateUTC)
		assert.True(t, m.StateUTC.Equal(stateUTC))
	})

	t.Run("closed message never reopens", func(t *testing.T) {
		out, err := s.MergeTerminatedStatus(ctx, models.StatusUpdate{
			MessageID: 5001,
			State:     models.StateWaiting,
			IsClosed:  false,
		})
		require.NoError(t, err)
		assert.Equal(t, models.MergeUpdated, out.Result)
		assert.False(t, out.Closed, "already closed")

		m, err := s.TerminatedMessage(ctx, 5001)
		require.NoError(t, err)
		assert.Equal(t, models.StateWaiting, m.State)
		assert.True(t, m.IsClosed)
		assert.Equal(t, int64(42), m.ReferenceNumber, "missing reference keeps the stored one")
		require.NotNil(t, m.StateUTC)
		assert.True(t, m.StateUTC.Equal(stateUTC), "missing state time keeps the stored one")
	})
}

func TestOpenTerminated(t *testing.T) {
	ctx := context.Background()
	s := openTestSession(t)
	base := time.Date(2026, 2, 20, 0, 0, 0, 0, time.UTC)

	insertOpenCommand(t, s, 3, base)
	insertOpenCommand(t, s, 1, base.Add(48*time.Hour))
	insertOpenCommand(t, s, 2, base.Add(96*time.Hour))

	_, err := s.MergeTerminatedStatus(ctx, models.StatusUpdate{MessageID: 2, State: models.StateTimedOut, IsClosed: true})
	require.NoError(t, err)

	ids, err := s.OpenTerminatedIDs(ctx, "70000934")
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3}, ids)

	none, err := s.OpenTerminatedIDs(ctx, "other")
	require.NoError(t, err)
	assert.Empty(t, none)

	stale, err := s.CountOpenTerminatedBefore(ctx, base.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, stale)
}

func TestMessageTTL(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	db.SetRetention(models.RetentionConfig{MessageTTLDays: 30, CallLogTTLDays: 3})
	s, err := db.Acquire(ctx)
	require.NoError(t, err)
	defer s.Release()

	_, err = s.InsertOriginatedIfAbsent(ctx, models.OriginatedMessage{MessageID: 1, AccessID: "a", MobileID: "m", SIN: 128})
	require.NoError(t, err)
	require.NoError(t, s.AppendCallLog(ctx, models.APICallLog{AccessID: "a", Operation: models.OperationGetReturnMessages, Success: true}))

	var msgTTL, logTTL int
	require.NoError(t, s.conn.QueryRowContext(ctx, "SELECT ttl_days FROM raw_messages").Scan(&msgTTL))
	require.NoError(t, s.conn.QueryRowContext(ctx, "SELECT ttl_days FROM api_call_logs").Scan(&logTTL))
	assert.Equal(t, 30, msgTTL)
	assert.Equal(t, 3, logTTL)
}
