package watermark

import (
	"context"
	"errors"
	"testing"
	"time"

	apperrors "satsync/internal/errors"
	"satsync/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockReader struct {
	mock.Mock
}

func (m *mockReader) LatestSuccessfulCallLog(ctx context.Context, accessID, operation string) (*models.APICallLog, error) {
	args := m.Called(ctx, accessID, operation)
	if l := args.Get(0); l != nil {
		return l.(*models.APICallLog), args.Error(1)
	}
	return nil, args.Error(1)
}

func newTracker(reader CallLogReader) *Tracker {
	tr := NewTracker(reader, 0)
	tr.now = func() time.Time { return time.Date(2026, 3, 3, 12, 0, 0, 0, time.UTC) }
	return tr
}

func TestCursor(t *testing.T) {
	ctx := context.Background()
	op := models.OperationGetReturnMessages

	tests := []struct {
		name string
		last *models.APICallLog
		want models.Cursor
	}{
		{"no history", nil, models.TimeCursor("2026-03-01 12:00:00")},
		{"id wins", &models.APICallLog{NextStartID: 10971, NextStartUTC: "2026-03-02 00:00:00"}, models.IDCursor(10971)},
		{"time normalized", &models.APICallLog{NextStartID: -1, NextStartUTC: "2026-03-02T08:15:00Z"}, models.TimeCursor("2026-03-02 08:15:00")},
		{"empty mark", &models.APICallLog{}, models.TimeCursor("2026-03-01 12:00:00")},
		{"unparseable time", &models.APICallLog{NextStartUTC: "soon"}, models.TimeCursor("2026-03-01 12:00:00")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reader := &mockReader{}
			reader.On("LatestSuccessfulCallLog", ctx, "70000934", op).Return(tt.last, nil)

			got, err := newTracker(reader).Cursor(ctx, "70000934", op)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			reader.AssertExpectations(t)
		})
	}
}

func TestCursorUnsupportedOperation(t *testing.T) {
	reader := &mockReader{}
	_, err := newTracker(reader).Cursor(context.Background(), "70000934", models.OperationSubmitMessages)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeInvalidInput, apperrors.GetCode(err))
	reader.AssertNotCalled(t, "LatestSuccessfulCallLog")
}

func TestCursorStoreFailure(t *testing.T) {
	ctx := context.Background()
	reader := &mockReader{}
	reader.On("LatestSuccessfulCallLog", ctx, "a", models.OperationGetForwardStatuses).Return(nil, errors.New("disk full"))

	_, err := newTracker(reader).Cursor(ctx, "a", models.OperationGetForwardStatuses)
	require.Error(t, err)
	assert.True(t, apperrors.IsFatal(err))
}

func TestAdvance(t *testing.T) {
	callTime := time.Date(2026, 3, 3, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		used    models.Cursor
		nextID  int64
		nextUTC string
		want    Mark
	}{
		{
			name:    "gateway continuation",
			used:    models.TimeCursor("2026-03-01 12:00:00"),
			nextID:  10971,
			nextUTC: "2026-03-02 10:00:00",
			want:    Mark{NextStartID: 10971, NextStartUTC: "2026-03-02 10:00:00"},
		},
		{
			name:   "empty time falls back to call time",
			used:   models.TimeCursor("2026-03-01 12:00:00"),
			nextID: -1,
			want:   Mark{NextStartID: 0, NextStartUTC: "2026-03-03 12:00:00"},
		},
		{
			name:    "time never moves back",
			used:    models.TimeCursor("2026-03-02 10:00:00"),
			nextUTC: "2026-03-02 09:00:00",
			want:    Mark{NextStartUTC: "2026-03-02 10:00:00"},
		},
		{
			name:    "id never moves back",
			used:    models.IDCursor(500),
			nextID:  400,
			nextUTC: "2026-03-02 09:00:00",
			want:    Mark{NextStartID: 500, NextStartUTC: "2026-03-02 09:00:00"},
		},
		{
			name:   "missing id keeps the id cursor",
			used:   models.IDCursor(500),
			nextID: -1,
			want:   Mark{NextStartID: 500, NextStartUTC: "2026-03-03 12:00:00"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Advance(tt.used, tt.nextID, tt.nextUTC, callTime))
		})
	}
}

func TestMarkCursor(t *testing.T) {
	c, ok := Mark{NextStartID: 7}.Cursor()
	assert.True(t, ok)
	assert.Equal(t, models.IDCursor(7), c)

	_, ok = Mark{}.Cursor()
	assert.False(t, ok)
}

func TestSupported(t *testing.T) {
	assert.True(t, Supported(models.OperationGetReturnMessages))
	assert.True(t, Supported(models.OperationGetForwardStatuses))
	assert.False(t, Supported(models.OperationSubmitMessages))
	assert.False(t, Supported(""))
}
