package codec

import (
	"encoding/json"
	"strconv"
	"time"

	"satsync/internal/models"
	"satsync/pkg/idp/types"
)

// Telemetry is a decoded core modem message
type Telemetry interface {
	// Schema is the message name, e.g. "location"
	Schema() string
	// MobileUpdate returns the mobile metadata the message carries
	MobileUpdate(mobileID string) models.MobileUpdate
	// Fields flattens the record for time series sinks
	Fields() map[string]interface{}
}

// Registration is sent by the modem after reset (MIN 0), on beam change
// (MIN 1) and in reply to getConfiguration (MIN 97).
type Registration struct {
	MIN              int
	HardwareMajor    string
	HardwareMinor    string
	SoftwareMajor    string
	SoftwareMinor    string
	Product          *int
	WakeupPeriodSec  *int
	LastResetReason  string
	VirtualCarrier   *int
	Beam             *int
	VAIN             *int
	OperatorTxState  *int
	UserTxState      *int
	BroadcastIDCount *int
	MessageUTC       time.Time
}

func (r *Registration) Schema() string { return "registration" }

// HardwareVersion joins the hardware version as major.minor
func (r *Registration) HardwareVersion() string {
	if r.HardwareMajor == "" {
		return ""
	}
	return r.HardwareMajor + "." + r.HardwareMinor
}

// SoftwareVersion joins the firmware version as major.minor
func (r *Registration) SoftwareVersion() string {
	if r.SoftwareMajor == "" {
		return ""
	}
	return r.SoftwareMajor + "." + r.SoftwareMinor
}

func (r *Registration) MobileUpdate(mobileID string) models.MobileUpdate {
	u := models.MobileUpdate{MobileID: mobileID, WakeupPeriodSec: r.WakeupPeriodSec}
	if r.MIN == 0 && !r.MessageUTC.IsZero() {
		u.LastRegistration = models.Ptr(r.MessageUTC)
	}
	if hw := r.HardwareVersion(); hw != "" {
		u.ModemHWVersion = models.Ptr(hw)
		u.ModemSWVersion = models.Ptr(r.SoftwareVersion())
		u.ModemProductID = r.Product
	}
	return u
}

func (r *Registration) Fields() map[string]interface{} {
	f := map[string]interface{}{"min": r.MIN}
	putString(f, "hw_version", r.HardwareVersion())
	putString(f, "sw_version", r.SoftwareVersion())
	putString(f, "last_reset_reason", r.LastResetReason)
	putInt(f, "product", r.Product)
	putInt(f, "wakeup_period_sec", r.WakeupPeriodSec)
	putInt(f, "virtual_carrier", r.VirtualCarrier)
	putInt(f, "beam", r.Beam)
	putInt(f, "vain", r.VAIN)
	putInt(f, "operator_tx_state", r.OperatorTxState)
	putInt(f, "user_tx_state", r.UserTxState)
	putInt(f, "broadcast_id_count", r.BroadcastIDCount)
	return f
}

// ProtocolError reports a forward message the modem could not handle
type ProtocolError struct {
	MessageReference int
	ErrorCode        int
	ErrorDesc        string
	ErrorInfo        int
}

func (p *ProtocolError) Schema() string { return "protocolError" }

func (p *ProtocolError) MobileUpdate(mobileID string) models.MobileUpdate {
	return models.MobileUpdate{MobileID: mobileID}
}

func (p *ProtocolError) Fields() map[string]interface{} {
	return map[string]interface{}{
		"message_reference": p.MessageReference,
		"error_code":        p.ErrorCode,
		"error_desc":        p.ErrorDesc,
		"error_info":        p.ErrorInfo,
	}
}

func protocolErrorDesc(code int) string {
	switch code {
	case 1:
		return "Unable to allocate message buffer"
	case 2:
		return "Unknown message type"
	default:
		return "UNHANDLED ERROR"
	}
}

// SleepSchedule notifies a wakeup period change
type SleepSchedule struct {
	WakeupPeriodSec  *int
	MobileInitiated  bool
	MessageReference int
}

func (s *SleepSchedule) Schema() string { return "sleepSchedule" }

func (s *SleepSchedule) MobileUpdate(mobileID string) models.MobileUpdate {
	return models.MobileUpdate{MobileID: mobileID, WakeupPeriodSec: s.WakeupPeriodSec}
}

func (s *SleepSchedule) Fields() map[string]interface{} {
	f := map[string]interface{}{
		"mobile_initiated":  s.MobileInitiated,
		"message_reference": s.MessageReference,
	}
	putInt(f, "wakeup_period_sec", s.WakeupPeriodSec)
	return f
}

// Location is a GNSS fix
type Location struct {
	FixStatus   int
	Latitude    *float64
	Longitude   *float64
	Altitude    *int
	Speed       *int
	Heading     *int
	DayOfMonth  int
	MinuteOfDay int
	FixTime     *time.Time
}

func (l *Location) Schema() string { return "location" }

func (l *Location) MobileUpdate(mobileID string) models.MobileUpdate {
	return models.MobileUpdate{
		MobileID:     mobileID,
		Latitude:     l.Latitude,
		Longitude:    l.Longitude,
		Altitude:     l.Altitude,
		Speed:        l.Speed,
		Heading:      l.Heading,
		LocationTime: l.FixTime,
	}
}

func (l *Location) Fields() map[string]interface{} {
	f := map[string]interface{}{"fix_status": l.FixStatus}
	if l.Latitude != nil {
		f["latitude"] = *l.Latitude
	}
	if l.Longitude != nil {
		f["longitude"] = *l.Longitude
	}
	putInt(f, "altitude", l.Altitude)
	putInt(f, "speed", l.Speed)
	putInt(f, "heading", l.Heading)
	return f
}

// LastRxInfo describes the last forward frame the modem received
type LastRxInfo struct {
	SIPValid        bool
	Subframe        int
	Packets         int
	PacketsOK       int
	FrequencyOffset int
	TimingOffset    int
	PacketCN0       int
	UWCN0           int
	UWRSSI          int
	UWSymbols       int
	UWErrors        int
	PacketSymbols   int
	PacketErrors    int
}

func (l *LastRxInfo) Schema() string { return "lastRxInfo" }

func (l *LastRxInfo) MobileUpdate(mobileID string) models.MobileUpdate {
	return models.MobileUpdate{MobileID: mobileID}
}

func (l *LastRxInfo) Fields() map[string]interface{} {
	return map[string]interface{}{
		"sip_valid":        l.SIPValid,
		"subframe":         l.Subframe,
		"packets":          l.Packets,
		"packets_ok":       l.PacketsOK,
		"frequency_offset": l.FrequencyOffset,
		"timing_offset":    l.TimingOffset,
		"packet_cn0":       l.PacketCN0,
		"uw_cn0":           l.UWCN0,
		"uw_rssi":          l.UWRSSI,
		"uw_symbols":       l.UWSymbols,
		"uw_errors":        l.UWErrors,
		"packet_symbols":   l.PacketSymbols,
		"packet_errors":    l.PacketErrors,
	}
}

// RxMetrics are forward link statistics over Period
type RxMetrics struct {
	Period           string
	NumSegments      int
	NumSegmentsOK    int
	AvgCN0           int
	SamplesCN0       int
	ChannelErrorRate int
	UWErrorRate      int
}

func (r *RxMetrics) Schema() string { return "rxMetrics" }

func (r *RxMetrics) MobileUpdate(mobileID string) models.MobileUpdate {
	return models.MobileUpdate{MobileID: mobileID}
}

func (r *RxMetrics) Fields() map[string]interface{} {
	return map[string]interface{}{
		"period":             r.Period,
		"num_segments":       r.NumSegments,
		"num_segments_ok":    r.NumSegmentsOK,
		"avg_cn0":            r.AvgCN0,
		"samples_cn0":        r.SamplesCN0,
		"channel_error_rate": r.ChannelErrorRate,
		"uw_error_rate":      r.UWErrorRate,
	}
}

// TxPacketMetric are return link counters for one packet type
type TxPacketMetric struct {
	Type    string
	Total   int
	Success int
	Failed  int
}

// TxMetrics are return link statistics over Period
type TxMetrics struct {
	Period         string
	PacketTypeMask int
	Metrics        []TxPacketMetric
	packets        []types.Element
}

func (t *TxMetrics) Schema() string { return "txMetrics" }

func (t *TxMetrics) MobileUpdate(mobileID string) models.MobileUpdate {
	return models.MobileUpdate{MobileID: mobileID}
}

func (t *TxMetrics) Fields() map[string]interface{} {
	f := map[string]interface{}{
		"period":           t.Period,
		"packet_type_mask": t.PacketTypeMask,
	}
	for i, m := range t.Metrics {
		prefix := "packet_" + strconv.Itoa(i) + "_"
		f[prefix+"type"] = m.Type
		f[prefix+"total"] = m.Total
		f[prefix+"success"] = m.Success
		f[prefix+"failed"] = m.Failed
	}
	return f
}

var packetTypeNames = map[int]string{
	0: "ack",
	1: "0.5s subframe 0.33 rate",
	2: "0.5s subframe 0.5 rate",
	3: "0.5s subframe 0.75 rate",
	5: "1s subframe 0.33 rate",
	6: "1s subframe 0.5 rate",
}

// PingReply answers a pingModem command
type PingReply struct {
	RequestTime  int
	ResponseTime int
	ReceiveTime  int
	Latency      Latency
}

func (p *PingReply) Schema() string { return "pingReply" }

func (p *PingReply) MobileUpdate(mobileID string) models.MobileUpdate {
	return models.MobileUpdate{MobileID: mobileID}
}

func (p *PingReply) Fields() map[string]interface{} {
	return map[string]interface{}{
		"request_time":         p.RequestTime,
		"response_time":        p.ResponseTime,
		"receive_time":         p.ReceiveTime,
		"latency_terminated_s": p.Latency.MobileTerminated,
		"latency_originated_s": p.Latency.MobileOriginated,
		"latency_round_trip_s": p.Latency.RoundTrip,
	}
}

// NetworkPingRequest is a modem initiated ping toward the network
type NetworkPingRequest struct {
	RequestTime int
	ReceiveTime int
	Latency     int
}

func (n *NetworkPingRequest) Schema() string { return "networkPingRequest" }

func (n *NetworkPingRequest) MobileUpdate(mobileID string) models.MobileUpdate {
	return models.MobileUpdate{MobileID: mobileID}
}

func (n *NetworkPingRequest) Fields() map[string]interface{} {
	return map[string]interface{}{
		"request_time": n.RequestTime,
		"receive_time": n.ReceiveTime,
		"latency_s":    n.Latency,
	}
}

// BroadcastIDs lists the broadcast groups the modem listens to
type BroadcastIDs struct {
	IDs []int
}

func (b *BroadcastIDs) Schema() string { return "broadcastIds" }

func (b *BroadcastIDs) MobileUpdate(mobileID string) models.MobileUpdate {
	ids := b.IDs
	if ids == nil {
		ids = []int{}
	}
	encoded, _ := json.Marshal(ids)
	return models.MobileUpdate{MobileID: mobileID, BroadcastIDs: models.Ptr(string(encoded))}
}

func (b *BroadcastIDs) Fields() map[string]interface{} {
	return map[string]interface{}{"count": len(b.IDs)}
}

func putInt(f map[string]interface{}, key string, v *int) {
	if v != nil {
		f[key] = *v
	}
}

func putString(f map[string]interface{}, key, v string) {
	if v != "" {
		f[key] = v
	}
}
