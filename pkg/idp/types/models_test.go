package types

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlexibleInt64(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    int64
		wantErr bool
	}{
		{"number", `10970`, 10970, false},
		{"string", `"10970"`, 10970, false},
		{"empty string", `""`, 0, false},
		{"negative", `-1`, -1, false},
		{"garbage", `"abc"`, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var f FlexibleInt64
			err := json.Unmarshal([]byte(tt.input), &f)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, f.Int64())
		})
	}
}

func TestRawPayload(t *testing.T) {
	t.Run("encodes as byte array", func(t *testing.T) {
		out, err := json.Marshal(ForwardMessage{DestinationID: "m", RawPayload: RawPayload{0, 112, 255}})
		require.NoError(t, err)
		assert.Contains(t, string(out), `"RawPayload":[0,112,255]`)
	})

	t.Run("omitted when empty", func(t *testing.T) {
		out, err := json.Marshal(ForwardMessage{DestinationID: "m"})
		require.NoError(t, err)
		assert.NotContains(t, string(out), "RawPayload")
	})

	t.Run("accepts base64", func(t *testing.T) {
		var r RawPayload
		require.NoError(t, json.Unmarshal([]byte(`"AEg="`), &r))
		assert.Equal(t, RawPayload{0, 72}, r)
	})

	t.Run("rejects values outside a byte", func(t *testing.T) {
		var r RawPayload
		assert.Error(t, json.Unmarshal([]byte(`[0,256]`), &r))
		assert.Error(t, json.Unmarshal([]byte(`[-1,72]`), &r))
		assert.Nil(t, r)

		require.NoError(t, json.Unmarshal([]byte(`[0,255]`), &r))
		assert.Equal(t, RawPayload{0, 255}, r)
	})

	t.Run("accepts null", func(t *testing.T) {
		r := RawPayload{1}
		require.NoError(t, json.Unmarshal([]byte(`null`), &r))
		assert.Nil(t, r)
	})
}

func TestTime(t *testing.T) {
	ts := time.Date(2026, 3, 1, 9, 5, 7, 0, time.FixedZone("EST", -5*3600))
	assert.Equal(t, "2026-03-01 14:05:07", FormatTime(ts))

	for _, in := range []string{"2026-03-01 14:05:07", "2026-03-01T14:05:07Z", "2026-03-01T14:05:07", "2026-03-01T09:05:07-05:00", " 2026-03-01 14:05:07 "} {
		got, ok := NormalizeTime(in)
		assert.True(t, ok, in)
		assert.Equal(t, "2026-03-01 14:05:07", got, in)
	}

	_, ok := NormalizeTime("yesterday")
	assert.False(t, ok)

	parsed, err := ParseTime("2026-03-01T14:05:07.250Z")
	require.NoError(t, err)
	assert.Equal(t, time.UTC, parsed.Location())
}
