package codec

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"satsync/pkg/idp/types"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func field(name, value string) types.Field {
	return types.Field{Name: name, Value: value}
}

var receivedAt = time.Date(2020, 4, 16, 20, 39, 50, 0, time.UTC)

func TestDecode_Location(t *testing.T) {
	d := NewDecoder(quietLogger())
	payload := types.Payload{
		Name: "location",
		SIN:  0,
		MIN:  72,
		Fields: []types.Field{
			field("fixStatus", "1"),
			field("latitude", "2717104"),
			field("longitude", "-4550914"),
			field("altitude", "89"),
			field("speed", "0"),
			field("heading", "0"),
			field("dayOfMonth", "16"),
			field("minuteOfDay", "1239"),
		},
	}

	tel, err := d.Decode(payload, Meta{MobileID: "01174907SKYFDA4", ReceiveUTC: receivedAt})
	require.NoError(t, err)

	loc, ok := tel.(*Location)
	require.True(t, ok)
	assert.Equal(t, "location", loc.Schema())
	assert.Equal(t, 1, loc.FixStatus)
	assert.InDelta(t, 45.28507, *loc.Latitude, 1e-5)
	assert.InDelta(t, -75.84857, *loc.Longitude, 1e-5)
	assert.Equal(t, 89, *loc.Altitude)
	assert.Equal(t, 0, *loc.Heading)
	require.NotNil(t, loc.FixTime)
	assert.Equal(t, time.Date(2020, 4, 16, 20, 39, 0, 0, time.UTC), *loc.FixTime)

	update := loc.MobileUpdate("01174907SKYFDA4")
	assert.Equal(t, "01174907SKYFDA4", update.MobileID)
	assert.Equal(t, loc.Latitude, update.Latitude)
	assert.Equal(t, loc.FixTime, update.LocationTime)
	assert.Nil(t, update.WakeupPeriodSec)
}

func TestDecode_UnknownFieldIgnored(t *testing.T) {
	d := NewDecoder(quietLogger())
	payload := types.Payload{SIN: 0, MIN: 72, Fields: []types.Field{
		field("latitude", "60000"),
		field("satellitesInView", "9"),
	}}

	tel, err := d.Decode(payload, Meta{ReceiveUTC: receivedAt})
	require.NoError(t, err)
	loc := tel.(*Location)
	assert.InDelta(t, 1.0, *loc.Latitude, 1e-9)
	assert.Nil(t, loc.Longitude)
	assert.Nil(t, loc.FixTime)
}

func TestDecode_MalformedField(t *testing.T) {
	d := NewDecoder(quietLogger())
	payload := types.Payload{SIN: 0, MIN: 72, Fields: []types.Field{field("latitude", "north")}}

	_, err := d.Decode(payload, Meta{})
	assert.ErrorIs(t, err, ErrMalformedField)
}

func TestDecode_NoSchema(t *testing.T) {
	d := NewDecoder(nil)

	_, err := d.Decode(types.Payload{SIN: 0, MIN: 200}, Meta{})
	assert.ErrorIs(t, err, ErrNoSchema)

	_, err = d.Decode(types.Payload{SIN: 128, MIN: 1}, Meta{})
	assert.ErrorIs(t, err, ErrNoSchema)
}

func TestDecode_Registration(t *testing.T) {
	d := NewDecoder(quietLogger())
	fields := []types.Field{
		field("hardwareMajorVersion", "3"),
		field("hardwareMinorVersion", "1"),
		field("softwareMajorVersion", "4"),
		field("softwareMinorVersion", "12"),
		field("product", "7"),
		field("wakeupPeriod", "Seconds30"),
		field("lastResetReason", "PowerOn"),
		field("virtualCarrier", "101"),
		field("beam", "3"),
		field("vain", "0"),
		field("operatorTxState", "0"),
		field("userTxState", "0"),
		field("broadcastIDCount", "0"),
	}

	for _, min := range []int{0, 1, 97} {
		tel, err := d.Decode(types.Payload{SIN: 0, MIN: min, Fields: fields}, Meta{MessageUTC: receivedAt})
		require.NoError(t, err)
		reg := tel.(*Registration)
		assert.Equal(t, min, reg.MIN)
		assert.Equal(t, "3.1", reg.HardwareVersion())
		assert.Equal(t, "4.12", reg.SoftwareVersion())
		assert.Equal(t, 30, *reg.WakeupPeriodSec)

		update := reg.MobileUpdate("01174907SKYFDA4")
		assert.Equal(t, "3.1", *update.ModemHWVersion)
		assert.Equal(t, 7, *update.ModemProductID)
		if min == 0 {
			require.NotNil(t, update.LastRegistration)
			assert.Equal(t, receivedAt, *update.LastRegistration)
		} else {
			assert.Nil(t, update.LastRegistration)
		}
	}
}

func TestDecode_ProtocolError(t *testing.T) {
	d := NewDecoder(quietLogger())
	tests := []struct {
		code string
		desc string
	}{
		{"1", "Unable to allocate message buffer"},
		{"2", "Unknown message type"},
		{"9", "UNHANDLED ERROR"},
	}

	for _, tt := range tests {
		tel, err := d.Decode(types.Payload{SIN: 0, MIN: 2, Fields: []types.Field{
			field("messageReference", "12"),
			field("errorCode", tt.code),
			field("errorInfo", "0"),
		}}, Meta{})
		require.NoError(t, err)
		assert.Equal(t, tt.desc, tel.(*ProtocolError).ErrorDesc)
	}
}

func TestDecode_SleepSchedule(t *testing.T) {
	d := NewDecoder(quietLogger())

	tel, err := d.Decode(types.Payload{SIN: 0, MIN: 70, Fields: []types.Field{
		field("wakeupPeriod", "4"),
		field("mobileInitiated", "True"),
		field("messageReference", "3"),
	}}, Meta{})
	require.NoError(t, err)

	s := tel.(*SleepSchedule)
	assert.Equal(t, 600, *s.WakeupPeriodSec)
	assert.True(t, s.MobileInitiated)
	assert.Equal(t, 600, *s.MobileUpdate("x").WakeupPeriodSec)
}

func TestDecode_TxMetrics(t *testing.T) {
	d := NewDecoder(quietLogger())
	element := func(total, ok, failed string) types.Element {
		return types.Element{Fields: []types.Field{
			field("PacketsTotal", total),
			field("PacketsSuccess", ok),
			field("PacketsFailed", failed),
		}}
	}

	tel, err := d.Decode(types.Payload{SIN: 0, MIN: 100, Fields: []types.Field{
		field("period", "2"),
		field("packetTypeMask", "37"),
		{Name: "txMetrics", Type: "array", Elements: []types.Element{
			element("10", "9", "1"),
			element("5", "5", "0"),
			element("3", "2", "1"),
		}},
	}}, Meta{})
	require.NoError(t, err)

	tx := tel.(*TxMetrics)
	assert.Equal(t, "LastFullMinute", tx.Period)
	require.Len(t, tx.Metrics, 3)
	assert.Equal(t, TxPacketMetric{Type: "ack", Total: 10, Success: 9, Failed: 1}, tx.Metrics[0])
	assert.Equal(t, "0.5s subframe 0.5 rate", tx.Metrics[1].Type)
	assert.Equal(t, "1s subframe 0.33 rate", tx.Metrics[2].Type)
	assert.Equal(t, 2, tx.Metrics[2].Success)
}

func TestDecode_PingReply(t *testing.T) {
	d := NewDecoder(quietLogger())
	receive := time.Date(2020, 4, 16, 0, 1, 50, 0, time.UTC)

	tel, err := d.Decode(types.Payload{SIN: 0, MIN: 112, Fields: []types.Field{
		field("requestTime", "100"),
		field("responseTime", "104"),
	}}, Meta{ReceiveUTC: receive})
	require.NoError(t, err)

	p := tel.(*PingReply)
	assert.Equal(t, 110, p.ReceiveTime)
	assert.Equal(t, Latency{MobileTerminated: 4, MobileOriginated: 6, RoundTrip: 10}, p.Latency)
}

func TestDecode_NetworkPingRequest(t *testing.T) {
	d := NewDecoder(quietLogger())
	receive := time.Date(2020, 4, 16, 0, 1, 50, 0, time.UTC)

	tel, err := d.Decode(types.Payload{SIN: 0, MIN: 113, Fields: []types.Field{
		field("requestSent", "98"),
	}}, Meta{ReceiveUTC: receive})
	require.NoError(t, err)
	assert.Equal(t, 12, tel.(*NetworkPingRequest).Latency)
}

func TestDecode_BroadcastIDs(t *testing.T) {
	d := NewDecoder(quietLogger())

	tel, err := d.Decode(types.Payload{SIN: 0, MIN: 115, Fields: []types.Field{
		{Name: "broadcastIDs", Type: "array", Elements: []types.Element{
			{Index: 0, Fields: []types.Field{field("id", "17")}},
			{Index: 1, Fields: []types.Field{field("id", "255")}},
		}},
	}}, Meta{})
	require.NoError(t, err)

	update := tel.MobileUpdate("01174907SKYFDA4")
	require.NotNil(t, update.BroadcastIDs)
	assert.Equal(t, "[17,255]", *update.BroadcastIDs)
}

func TestSchemaTables_CoverCoreModem(t *testing.T) {
	for _, min := range []int{0, 1, 2, 70, 72, 97, 98, 99, 100, 112, 113, 115} {
		assert.True(t, HasSchema(0, min), "MIN %d", min)
	}
	assert.False(t, HasSchema(0, 68))
	assert.False(t, HasSchema(15, 255))
	assert.ElementsMatch(t,
		[]string{"fixStatus", "latitude", "longitude", "altitude", "speed", "heading", "dayOfMonth", "minuteOfDay"},
		locationTable.Names())
}

func TestIsVendorLocked(t *testing.T) {
	assert.True(t, IsVendorLocked(15, 255))
	assert.False(t, IsVendorLocked(0, 255))
}
