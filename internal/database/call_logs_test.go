package database

import (
	"context"
	"testing"

	"satsync/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLatestSuccessfulCallLog(t *testing.T) {
	ctx := context.Background()
	s := openTestSession(t)
	op := models.OperationGetReturnMessages

	latest, err := s.LatestSuccessfulCallLog(ctx, "70000934", op)
	require.NoError(t, err)
	assert.Nil(t, latest)

	require.NoError(t, s.AppendCallLog(ctx, models.APICallLog{AccessID: "70000934", Operation: op, Success: true, NextStartID: 100, More: true}))
	require.NoError(t, s.AppendCallLog(ctx, models.APICallLog{AccessID: "70000934", Operation: op, Success: true, NextStartID: 150}))
	require.NoError(t, s.AppendCallLog(ctx, models.APICallLog{AccessID: "70000934", Operation: op, Success: false, ErrorID: 21785, ErrorDesc: "bad credentials"}))
	require.NoError(t, s.AppendCallLog(ctx, models.APICallLog{AccessID: "70000934", Operation: models.OperationGetForwardStatuses, Success: true, NextStartUTC: "2026-03-01 11:00:00"}))
	require.NoError(t, s.AppendCallLog(ctx, models.APICallLog{AccessID: "other", Operation: op, Success: true, NextStartID: 999}))

	latest, err = s.LatestSuccessfulCallLog(ctx, "70000934", op)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, int64(150), latest.NextStartID)
	assert.False(t, latest.More)
	assert.False(t, latest.CallTime.IsZero())

	logs, err := s.CallLogs(ctx, "70000934", op)
	require.NoError(t, err)
	require.Len(t, logs, 3)
	assert.Equal(t, int64(100), logs[0].NextStartID)
	assert.False(t, logs[2].Success)
	assert.Equal(t, 21785, logs[2].ErrorID)
}

func TestTrimCallLogs(t *testing.T) {
	ctx := context.Background()
	s := openTestSession(t)

	for i := 1; i <= 15; i++ {
		require.NoError(t, s.AppendCallLog(ctx, models.APICallLog{
			AccessID:    "70000934",
			Operation:   models.OperationGetReturnMessages,
			Success:     true,
			NextStartID: int64(i),
		}))
	}

	// below the floor the limit is raised to ten
	deleted, err := s.TrimCallLogs(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(5), deleted)

	count, err := s.CountCallLogs(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10, count)

	latest, err := s.LatestSuccessfulCallLog(ctx, "70000934", models.OperationGetReturnMessages)
	require.NoError(t, err)
	assert.Equal(t, int64(15), latest.NextStartID, "newest rows survive")

	deleted, err = s.TrimCallLogs(ctx, 100)
	require.NoError(t, err)
	assert.Zero(t, deleted)
}
