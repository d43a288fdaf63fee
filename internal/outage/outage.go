// Package outage tracks gateway reachability and reports transitions.
package outage

import (
	"context"
	"time"

	"satsync/internal/notify"

	"github.com/sirupsen/logrus"
)

// AliveStore persists the alive flag. SetGatewayAlive reports whether the
// stored value changed.
type AliveStore interface {
	SetGatewayAlive(ctx context.Context, name string, alive bool, at time.Time) (bool, error)
}

// GaugeFunc publishes the current alive state of a gateway
type GaugeFunc func(gateway string, alive bool)

// Tracker is edge triggered: repeated observations of the same state
// produce no writes and no events.
type Tracker struct {
	notifier notify.Notifier
	gauge    GaugeFunc
	logger   *logrus.Logger
	now      func() time.Time
}

func NewTracker(notifier notify.Notifier, gauge GaugeFunc, logger *logrus.Logger) *Tracker {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Tracker{notifier: notifier, gauge: gauge, logger: logger, now: time.Now}
}

// MarkAlive records a successful call to gateway
func (t *Tracker) MarkAlive(ctx context.Context, store AliveStore, gateway string) (bool, error) {
	return t.observe(ctx, store, gateway, true, nil)
}

// MarkDown records a transport failure talking to gateway
func (t *Tracker) MarkDown(ctx context.Context, store AliveStore, gateway string, cause error) (bool, error) {
	return t.observe(ctx, store, gateway, false, cause)
}

func (t *Tracker) observe(ctx context.Context, store AliveStore, gateway string, alive bool, cause error) (bool, error) {
	at := t.now().UTC()
	changed, err := store.SetGatewayAlive(ctx, gateway, alive, at)
	if err != nil {
		return false, err
	}
	if t.gauge != nil {
		t.gauge(gateway, alive)
	}
	if !changed {
		return false, nil
	}

	e := notify.NewEvent(notify.EventGatewayRecovered)
	if !alive {
		e = notify.NewEvent(notify.EventGatewayDown)
		if cause != nil {
			e.Detail = cause.Error()
		}
	}
	e.Gateway = gateway
	e.Time = at
	t.notifier.Notify(ctx, e)
	return true, nil
}
