package codec

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"satsync/pkg/idp/types"
)

// assignFunc stores one field value into a record
type assignFunc[T any] func(rec *T, f types.Field, logger *logrus.Logger) error

// fieldTable maps field names to assignments for one schema. finish runs
// after all fields are assigned and may derive values from the message metadata.
type fieldTable[T any] struct {
	name   string
	fields map[string]assignFunc[T]
	finish func(rec *T, meta Meta)
}

func (t fieldTable[T]) decode(fields []types.Field, meta Meta, logger *logrus.Logger) (*T, error) {
	rec := new(T)
	for _, f := range fields {
		assign, ok := t.fields[f.Name]
		if !ok {
			logger.WithFields(logrus.Fields{
				"schema": t.name,
				"field":  f.Name,
			}).Debug("Ignoring unknown field")
			continue
		}
		if err := assign(rec, f, logger); err != nil {
			return nil, fmt.Errorf("%w: %s field %s: %v", ErrMalformedField, t.name, f.Name, err)
		}
	}
	if t.finish != nil {
		t.finish(rec, meta)
	}
	return rec, nil
}

// Names lists the declared field names, used for coverage checks
func (t fieldTable[T]) Names() []string {
	names := make([]string, 0, len(t.fields))
	for name := range t.fields {
		names = append(names, name)
	}
	return names
}

func parseInt(v string) (int64, error) {
	return strconv.ParseInt(strings.TrimSpace(v), 10, 64)
}

func intInto[T any](target func(*T) *int) assignFunc[T] {
	return func(rec *T, f types.Field, _ *logrus.Logger) error {
		n, err := parseInt(f.Value)
		if err != nil {
			return err
		}
		*target(rec) = int(n)
		return nil
	}
}

func optIntInto[T any](target func(*T) **int) assignFunc[T] {
	return func(rec *T, f types.Field, _ *logrus.Logger) error {
		n, err := parseInt(f.Value)
		if err != nil {
			return err
		}
		v := int(n)
		*target(rec) = &v
		return nil
	}
}

func stringInto[T any](target func(*T) *string) assignFunc[T] {
	return func(rec *T, f types.Field, _ *logrus.Logger) error {
		*target(rec) = strings.TrimSpace(f.Value)
		return nil
	}
}

func boolInto[T any](target func(*T) *bool) assignFunc[T] {
	return func(rec *T, f types.Field, _ *logrus.Logger) error {
		b, err := strconv.ParseBool(strings.TrimSpace(f.Value))
		if err != nil {
			return err
		}
		*target(rec) = b
		return nil
	}
}

func coordinateInto[T any](target func(*T) **float64) assignFunc[T] {
	return func(rec *T, f types.Field, _ *logrus.Logger) error {
		n, err := parseInt(f.Value)
		if err != nil {
			return err
		}
		v := Coordinate(n)
		*target(rec) = &v
		return nil
	}
}

func headingInto[T any](target func(*T) **int) assignFunc[T] {
	return func(rec *T, f types.Field, _ *logrus.Logger) error {
		n, err := parseInt(f.Value)
		if err != nil {
			return err
		}
		v := Heading(n)
		*target(rec) = &v
		return nil
	}
}

func wakeupInto[T any](target func(*T) **int) assignFunc[T] {
	return func(rec *T, f types.Field, logger *logrus.Logger) error {
		v := WakeupSeconds(f.Value, logger)
		*target(rec) = &v
		return nil
	}
}

func periodInto[T any](target func(*T) *string) assignFunc[T] {
	return func(rec *T, f types.Field, _ *logrus.Logger) error {
		*target(rec) = MetricsPeriod(f.Value)
		return nil
	}
}

func elementsInto[T any](target func(*T) *[]types.Element) assignFunc[T] {
	return func(rec *T, f types.Field, _ *logrus.Logger) error {
		*target(rec) = f.Elements
		return nil
	}
}

var registrationTable = fieldTable[Registration]{
	name: "registration",
	fields: map[string]assignFunc[Registration]{
		"hardwareMajorVersion": stringInto(func(r *Registration) *string { return &r.HardwareMajor }),
		"hardwareMinorVersion": stringInto(func(r *Registration) *string { return &r.HardwareMinor }),
		"softwareMajorVersion": stringInto(func(r *Registration) *string { return &r.SoftwareMajor }),
		"softwareMinorVersion": stringInto(func(r *Registration) *string { return &r.SoftwareMinor }),
		"product":              optIntInto(func(r *Registration) **int { return &r.Product }),
		"wakeupPeriod":         wakeupInto(func(r *Registration) **int { return &r.WakeupPeriodSec }),
		"lastResetReason":      stringInto(func(r *Registration) *string { return &r.LastResetReason }),
		"virtualCarrier":       optIntInto(func(r *Registration) **int { return &r.VirtualCarrier }),
		"beam":                 optIntInto(func(r *Registration) **int { return &r.Beam }),
		"vain":                 optIntInto(func(r *Registration) **int { return &r.VAIN }),
		"operatorTxState":      optIntInto(func(r *Registration) **int { return &r.OperatorTxState }),
		"userTxState":          optIntInto(func(r *Registration) **int { return &r.UserTxState }),
		"broadcastIDCount":     optIntInto(func(r *Registration) **int { return &r.BroadcastIDCount }),
	},
	finish: func(r *Registration, meta Meta) {
		r.MIN = meta.MIN
		r.MessageUTC = meta.MessageUTC
	},
}

var protocolErrorTable = fieldTable[ProtocolError]{
	name: "protocolError",
	fields: map[string]assignFunc[ProtocolError]{
		"messageReference": intInto(func(p *ProtocolError) *int { return &p.MessageReference }),
		"errorCode":        intInto(func(p *ProtocolError) *int { return &p.ErrorCode }),
		"errorInfo":        intInto(func(p *ProtocolError) *int { return &p.ErrorInfo }),
	},
	finish: func(p *ProtocolError, _ Meta) {
		p.ErrorDesc = protocolErrorDesc(p.ErrorCode)
	},
}

var sleepScheduleTable = fieldTable[SleepSchedule]{
	name: "sleepSchedule",
	fields: map[string]assignFunc[SleepSchedule]{
		"wakeupPeriod":     wakeupInto(func(s *SleepSchedule) **int { return &s.WakeupPeriodSec }),
		"mobileInitiated":  boolInto(func(s *SleepSchedule) *bool { return &s.MobileInitiated }),
		"messageReference": intInto(func(s *SleepSchedule) *int { return &s.MessageReference }),
	},
}

var locationTable = fieldTable[Location]{
	name: "location",
	fields: map[string]assignFunc[Location]{
		"fixStatus":   intInto(func(l *Location) *int { return &l.FixStatus }),
		"latitude":    coordinateInto(func(l *Location) **float64 { return &l.Latitude }),
		"longitude":   coordinateInto(func(l *Location) **float64 { return &l.Longitude }),
		"altitude":    optIntInto(func(l *Location) **int { return &l.Altitude }),
		"speed":       optIntInto(func(l *Location) **int { return &l.Speed }),
		"heading":     headingInto(func(l *Location) **int { return &l.Heading }),
		"dayOfMonth":  intInto(func(l *Location) *int { return &l.DayOfMonth }),
		"minuteOfDay": intInto(func(l *Location) *int { return &l.MinuteOfDay }),
	},
	finish: func(l *Location, meta Meta) {
		if l.DayOfMonth > 0 && !meta.ReceiveUTC.IsZero() {
			fix := DayMinuteTime(meta.ReceiveUTC, l.DayOfMonth, l.MinuteOfDay)
			l.FixTime = &fix
		}
	},
}

var lastRxInfoTable = fieldTable[LastRxInfo]{
	name: "lastRxInfo",
	fields: map[string]assignFunc[LastRxInfo]{
		"sipValid":        boolInto(func(l *LastRxInfo) *bool { return &l.SIPValid }),
		"subframe":        intInto(func(l *LastRxInfo) *int { return &l.Subframe }),
		"packets":         intInto(func(l *LastRxInfo) *int { return &l.Packets }),
		"packetsOK":       intInto(func(l *LastRxInfo) *int { return &l.PacketsOK }),
		"frequencyOffset": intInto(func(l *LastRxInfo) *int { return &l.FrequencyOffset }),
		"timingOffset":    intInto(func(l *LastRxInfo) *int { return &l.TimingOffset }),
		"packetCNO":       intInto(func(l *LastRxInfo) *int { return &l.PacketCN0 }),
		"uwCNO":           intInto(func(l *LastRxInfo) *int { return &l.UWCN0 }),
		"uwRSSI":          intInto(func(l *LastRxInfo) *int { return &l.UWRSSI }),
		"uwSymbols":       intInto(func(l *LastRxInfo) *int { return &l.UWSymbols }),
		"uwErrors":        intInto(func(l *LastRxInfo) *int { return &l.UWErrors }),
		"packetSymbols":   intInto(func(l *LastRxInfo) *int { return &l.PacketSymbols }),
		"packetErrors":    intInto(func(l *LastRxInfo) *int { return &l.PacketErrors }),
	},
}

var rxMetricsTable = fieldTable[RxMetrics]{
	name: "rxMetrics",
	fields: map[string]assignFunc[RxMetrics]{
		"period":           periodInto(func(r *RxMetrics) *string { return &r.Period }),
		"numSegments":      intInto(func(r *RxMetrics) *int { return &r.NumSegments }),
		"numSegmentsOk":    intInto(func(r *RxMetrics) *int { return &r.NumSegmentsOK }),
		"AvgCN0":           intInto(func(r *RxMetrics) *int { return &r.AvgCN0 }),
		"SamplesCN0":       intInto(func(r *RxMetrics) *int { return &r.SamplesCN0 }),
		"ChannelErrorRate": intInto(func(r *RxMetrics) *int { return &r.ChannelErrorRate }),
		"uwErrorRate":      intInto(func(r *RxMetrics) *int { return &r.UWErrorRate }),
	},
}

var txMetricsTable = fieldTable[TxMetrics]{
	name: "txMetrics",
	fields: map[string]assignFunc[TxMetrics]{
		"period":         periodInto(func(t *TxMetrics) *string { return &t.Period }),
		"packetTypeMask": intInto(func(t *TxMetrics) *int { return &t.PacketTypeMask }),
		"txMetrics":      elementsInto(func(t *TxMetrics) *[]types.Element { return &t.packets }),
	},
	finish: func(t *TxMetrics, _ Meta) {
		t.Metrics = expandTxMetrics(t.PacketTypeMask, t.packets)
		t.packets = nil
	},
}

// expandTxMetrics pairs each set bit of mask, lowest first, with the next
// element of the txMetrics array.
func expandTxMetrics(mask int, elements []types.Element) []TxPacketMetric {
	var metrics []TxPacketMetric
	next := 0
	for bit := 0; bit < 8; bit++ {
		if (mask>>bit)&1 == 0 {
			continue
		}
		if next >= len(elements) {
			break
		}
		name, ok := packetTypeNames[bit]
		if !ok {
			name = "undefined"
		}
		m := TxPacketMetric{Type: name}
		for _, f := range elements[next].Fields {
			n, err := parseInt(f.Value)
			if err != nil {
				continue
			}
			switch f.Name {
			case "PacketsTotal":
				m.Total = int(n)
			case "PacketsSuccess":
				m.Success = int(n)
			case "PacketsFailed":
				m.Failed = int(n)
			}
		}
		metrics = append(metrics, m)
		next++
	}
	return metrics
}

var pingReplyTable = fieldTable[PingReply]{
	name: "pingReply",
	fields: map[string]assignFunc[PingReply]{
		"requestTime":  intInto(func(p *PingReply) *int { return &p.RequestTime }),
		"responseTime": intInto(func(p *PingReply) *int { return &p.ResponseTime }),
	},
	finish: func(p *PingReply, meta Meta) {
		p.Latency, p.ResponseTime, p.ReceiveTime = PingLatency(p.RequestTime, p.ResponseTime, PingTime(meta.ReceiveUTC))
	},
}

var networkPingTable = fieldTable[NetworkPingRequest]{
	name: "networkPingRequest",
	fields: map[string]assignFunc[NetworkPingRequest]{
		"requestSent": intInto(func(n *NetworkPingRequest) *int { return &n.RequestTime }),
	},
	finish: func(n *NetworkPingRequest, meta Meta) {
		n.ReceiveTime = unwrapPing(n.RequestTime, PingTime(meta.ReceiveUTC))
		n.Latency = n.ReceiveTime - n.RequestTime
	},
}

var broadcastIDsTable = fieldTable[BroadcastIDs]{
	name: "broadcastIds",
	fields: map[string]assignFunc[BroadcastIDs]{
		"broadcastIDs": func(b *BroadcastIDs, f types.Field, _ *logrus.Logger) error {
			for _, e := range f.Elements {
				for _, ef := range e.Fields {
					n, err := parseInt(ef.Value)
					if err != nil {
						return err
					}
					b.IDs = append(b.IDs, int(n))
				}
			}
			return nil
		},
	},
}
