// Package notify delivers edge-triggered sync events to operators.
package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// EventType names what happened
type EventType string

const (
	EventGatewayDown         EventType = "gateway_down"
	EventGatewayRecovered    EventType = "gateway_recovered"
	EventTelemetry           EventType = "telemetry"
	EventVendorLock          EventType = "vendor_lock"
	EventCommandSubmitted    EventType = "command_submitted"
	EventCommandStateChanged EventType = "command_state_changed"
	EventCommandClosed       EventType = "command_closed"
	EventStaleCommands       EventType = "stale_commands"
)

// Event is one notification. Only the fields relevant to Type are set.
type Event struct {
	ID            string                 `json:"id"`
	Type          EventType              `json:"type"`
	Time          time.Time              `json:"time"`
	Gateway       string                 `json:"gateway,omitempty"`
	AccessID      string                 `json:"access_id,omitempty"`
	MobileID      string                 `json:"mobile_id,omitempty"`
	MessageID     int64                  `json:"message_id,omitempty"`
	State         string                 `json:"state,omitempty"`
	PreviousState string                 `json:"previous_state,omitempty"`
	Success       *bool                  `json:"success,omitempty"`
	Schema        string                 `json:"schema,omitempty"`
	Fields        map[string]interface{} `json:"fields,omitempty"`
	Detail        string                 `json:"detail,omitempty"`
}

// NewEvent stamps a fresh id and the current time on an event of type t
func NewEvent(t EventType) Event {
	return Event{ID: uuid.NewString(), Type: t, Time: time.Now().UTC()}
}

// Notifier receives events. Delivery is best effort: a notifier logs its
// own failures and never blocks the sync cycle for long.
type Notifier interface {
	Notify(ctx context.Context, e Event)
}

// Multi fans an event out to several notifiers in order
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, e Event) {
	for _, n := range m {
		if n != nil {
			n.Notify(ctx, e)
		}
	}
}

// Nop discards events
type Nop struct{}

func (Nop) Notify(context.Context, Event) {}

// LogNotifier writes events to the structured log
type LogNotifier struct {
	logger *logrus.Logger
}

func NewLogNotifier(logger *logrus.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, e Event) {
	fields := logrus.Fields{
		"event_id":   e.ID,
		"event_type": string(e.Type),
	}
	if e.Gateway != "" {
		fields["gateway"] = e.Gateway
	}
	if e.MobileID != "" {
		fields["mobile_id"] = e.MobileID
	}
	if e.MessageID != 0 {
		fields["message_id"] = e.MessageID
	}
	if e.State != "" {
		fields["state"] = e.State
	}
	if e.Schema != "" {
		fields["schema"] = e.Schema
	}
	if e.Success != nil {
		fields["success"] = *e.Success
	}
	for k, v := range e.Fields {
		fields["field_"+k] = v
	}

	entry := n.logger.WithFields(fields)
	switch e.Type {
	case EventGatewayDown, EventVendorLock, EventStaleCommands:
		entry.Warn(message(e))
	default:
		entry.Info(message(e))
	}
}

func message(e Event) string {
	switch e.Type {
	case EventGatewayDown:
		return "Gateway unreachable"
	case EventGatewayRecovered:
		return "Gateway recovered"
	case EventTelemetry:
		return "Telemetry received"
	case EventVendorLock:
		return "Terminal reports vendor lock"
	case EventCommandSubmitted:
		return "Command submitted"
	case EventCommandStateChanged:
		return "Command state changed"
	case EventCommandClosed:
		if e.Success != nil && *e.Success {
			return "Command delivered"
		}
		return "Command failed"
	case EventStaleCommands:
		return "Commands open past threshold"
	default:
		return "Event"
	}
}
