package database

import (
	"context"
	"testing"
	"time"

	"satsync/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildMobileUpsert(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("bare id does nothing on conflict", func(t *testing.T) {
		query, args := buildMobileUpsert(models.MobileUpdate{MobileID: "m1"}, now)
		assert.Contains(t, query, "INSERT INTO mobiles (mobile_id, updated_at) VALUES ($1, $2)")
		assert.Contains(t, query, "DO NOTHING")
		assert.Equal(t, []interface{}{"m1", now}, args)
	})

	t.Run("only supplied columns are written", func(t *testing.T) {
		query, args := buildMobileUpsert(models.MobileUpdate{
			MobileID:        "m1",
			WakeupPeriodSec: models.Ptr(30),
			ModemHWVersion:  models.Ptr("3.1"),
		}, now)
		assert.Contains(t, query, "(mobile_id, wakeup_period_sec, modem_hw_version, updated_at)")
		assert.Contains(t, query, "wakeup_period_sec = excluded.wakeup_period_sec")
		assert.Contains(t, query, "mobiles.modem_hw_version IS DISTINCT FROM excluded.modem_hw_version")
		assert.NotContains(t, query, "location_latitude")
		assert.Equal(t, []interface{}{"m1", 30, "3.1", now}, args)
	})
}

func TestUpsertMobile(t *testing.T) {
	ctx := context.Background()
	s := openTestSession(t)
	received := time.Date(2026, 2, 28, 9, 30, 0, 0, time.UTC)

	written, err := s.UpsertMobile(ctx, models.MobileUpdate{
		MobileID:            "01097623SKY2C68",
		AccessID:            models.Ptr("70000934"),
		LastMessageReceived: &received,
		LastSatelliteRegion: models.Ptr("AMERRB16"),
	})
	require.NoError(t, err)
	assert.True(t, written)

	t.Run("identical update writes nothing", func(t *testing.T) {
		written, err := s.UpsertMobile(ctx, models.MobileUpdate{
			MobileID:            "01097623SKY2C68",
			LastSatelliteRegion: models.Ptr("AMERRB16"),
		})
		require.NoError(t, err)
		assert.False(t, written)
	})

	t.Run("partial update keeps other attributes", func(t *testing.T) {
		written, err := s.UpsertMobile(ctx, models.MobileUpdate{
			MobileID:  "01097623SKY2C68",
			Latitude:  models.Ptr(45.28507),
			Longitude: models.Ptr(-75.78069),
			Heading:   models.Ptr(180),
		})
		require.NoError(t, err)
		assert.True(t, written)

		m, err := s.Mobile(ctx, "01097623SKY2C68")
		require.NoError(t, err)
		require.NotNil(t, m)
		assert.Equal(t, "70000934", m.AccessID)
		assert.Equal(t, "AMERRB16", m.LastSatelliteRegion)
		require.NotNil(t, m.LastMessageReceived)
		assert.True(t, m.LastMessageReceived.Equal(received))
		require.NotNil(t, m.Latitude)
		assert.InDelta(t, 45.28507, *m.Latitude, 1e-9)
		require.NotNil(t, m.Heading)
		assert.Equal(t, 180, *m.Heading)
		assert.Nil(t, m.WakeupPeriodSec)
	})

	t.Run("ensure does not overwrite", func(t *testing.T) {
		require.NoError(t, s.EnsureMobile(ctx, "01097623SKY2C68"))
		require.NoError(t, s.EnsureMobile(ctx, "01000000SKY0000"))

		m, err := s.Mobile(ctx, "01097623SKY2C68")
		require.NoError(t, err)
		assert.Equal(t, "70000934", m.AccessID)

		fresh, err := s.Mobile(ctx, "01000000SKY0000")
		require.NoError(t, err)
		require.NotNil(t, fresh)
		assert.Empty(t, fresh.AccessID)
	})

	t.Run("requires id", func(t *testing.T) {
		_, err := s.UpsertMobile(ctx, models.MobileUpdate{})
		assert.Error(t, err)
	})

	missing, err := s.Mobile(ctx, "unknown")
	require.NoError(t, err)
	assert.Nil(t, missing)
}
