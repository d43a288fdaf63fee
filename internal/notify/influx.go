package notify

import (
	"context"
	"fmt"
	"time"

	"satsync/internal/models"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/sirupsen/logrus"
)

const influxWriteTimeout = 10 * time.Second

// PointWriter is the part of the InfluxDB write API the sink uses
type PointWriter interface {
	WritePoint(ctx context.Context, point ...*write.Point) error
}

// InfluxSink records telemetry and gateway availability as time series
type InfluxSink struct {
	writer PointWriter
	logger *logrus.Logger
	close  func()
}

// NewInfluxSink connects to InfluxDB with a blocking writer
func NewInfluxSink(cfg models.InfluxConfig, logger *logrus.Logger) *InfluxSink {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	return &InfluxSink{
		writer: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		logger: logger,
		close:  client.Close,
	}
}

// NewInfluxSinkWithWriter builds a sink over an existing writer
func NewInfluxSinkWithWriter(writer PointWriter, logger *logrus.Logger) *InfluxSink {
	return &InfluxSink{writer: writer, logger: logger}
}

// Close releases the InfluxDB client
func (s *InfluxSink) Close() {
	if s.close != nil {
		s.close()
	}
}

// Notify writes the point for e. Events without a time series are ignored.
func (s *InfluxSink) Notify(ctx context.Context, e Event) {
	p := point(e)
	if p == nil {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, influxWriteTimeout)
	defer cancel()
	if err := s.writer.WritePoint(ctx, p); err != nil {
		s.logger.WithError(err).WithField("event_type", string(e.Type)).Warn("Failed to write event to InfluxDB")
	}
}

func point(e Event) *write.Point {
	switch e.Type {
	case EventTelemetry:
		fields := make(map[string]interface{}, len(e.Fields))
		for k, v := range e.Fields {
			if f, ok := fieldValue(v); ok {
				fields[k] = f
			}
		}
		if len(fields) == 0 {
			return nil
		}
		return influxdb2.NewPoint("telemetry",
			map[string]string{"mobile_id": e.MobileID, "schema": e.Schema},
			fields, e.Time)
	case EventGatewayDown, EventGatewayRecovered:
		return influxdb2.NewPoint("gateway_alive",
			map[string]string{"gateway": e.Gateway},
			map[string]interface{}{"alive": e.Type == EventGatewayRecovered}, e.Time)
	case EventCommandClosed:
		success := e.Success != nil && *e.Success
		return influxdb2.NewPoint("command_closed",
			map[string]string{"mobile_id": e.MobileID, "state": e.State},
			map[string]interface{}{"success": success, "message_id": e.MessageID}, e.Time)
	default:
		return nil
	}
}

// fieldValue keeps the scalar values line protocol can carry
func fieldValue(v interface{}) (interface{}, bool) {
	switch x := v.(type) {
	case int, int32, int64, uint32, float64, bool, string:
		return x, true
	case *int:
		if x == nil {
			return nil, false
		}
		return *x, true
	case *float64:
		if x == nil {
			return nil, false
		}
		return *x, true
	case time.Time:
		return x.UTC().Format(time.RFC3339), true
	case fmt.Stringer:
		return x.String(), true
	default:
		return nil, false
	}
}
