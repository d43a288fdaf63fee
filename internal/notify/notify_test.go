package notify

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	events []Event
}

func (r *recorder) Notify(_ context.Context, e Event) {
	r.events = append(r.events, e)
}

func TestNewEvent(t *testing.T) {
	a := NewEvent(EventTelemetry)
	b := NewEvent(EventTelemetry)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, EventTelemetry, a.Type)
	assert.False(t, a.Time.IsZero())
}

func TestMulti(t *testing.T) {
	r1, r2 := &recorder{}, &recorder{}
	m := Multi{r1, nil, r2, Nop{}}
	m.Notify(context.Background(), NewEvent(EventGatewayDown))

	assert.Len(t, r1.events, 1)
	assert.Len(t, r2.events, 1)
}

func TestLogNotifier(t *testing.T) {
	logger, hook := test.NewNullLogger()
	n := NewLogNotifier(logger)

	down := NewEvent(EventGatewayDown)
	down.Gateway = "gw.example"
	n.Notify(context.Background(), down)

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.WarnLevel, entry.Level)
	assert.Equal(t, "Gateway unreachable", entry.Message)
	assert.Equal(t, "gw.example", entry.Data["gateway"])

	success := false
	closed := NewEvent(EventCommandClosed)
	closed.MessageID = 5001
	closed.Success = &success
	closed.Fields = map[string]interface{}{"reason": "timeout"}
	n.Notify(context.Background(), closed)

	entry = hook.LastEntry()
	assert.Equal(t, logrus.InfoLevel, entry.Level)
	assert.Equal(t, "Command failed", entry.Message)
	assert.Equal(t, int64(5001), entry.Data["message_id"])
	assert.Equal(t, false, entry.Data["success"])
	assert.Equal(t, "timeout", entry.Data["field_reason"])
}
