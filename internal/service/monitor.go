package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"satsync/internal/metrics"
	"satsync/internal/notify"
)

// CommandMonitor watches submitted commands that never closed
type CommandMonitor struct {
	db             SessionSource
	metrics        *metrics.Metrics
	notifier       notify.Notifier
	checkInterval  time.Duration
	staleThreshold time.Duration
	logger         *logrus.Logger
	now            func() time.Time
	stopCh         chan struct{}
}

func NewCommandMonitor(db SessionSource, m *metrics.Metrics, notifier notify.Notifier, checkInterval, staleThreshold time.Duration, logger *logrus.Logger) *CommandMonitor {
	if m == nil {
		m = metrics.New(false)
	}
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &CommandMonitor{
		db:             db,
		metrics:        m,
		notifier:       notifier,
		checkInterval:  checkInterval,
		staleThreshold: staleThreshold,
		logger:         logger,
		now:            time.Now,
		stopCh:         make(chan struct{}),
	}
}

func (m *CommandMonitor) Start(ctx context.Context) {
	ticker := time.NewTicker(m.checkInterval)
	defer ticker.Stop()

	m.logger.WithFields(logrus.Fields{
		"check_interval":  m.checkInterval,
		"stale_threshold": m.staleThreshold,
	}).Info("Starting open command monitor")

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.checkOpenCommands(ctx)
		}
	}
}

func (m *CommandMonitor) Stop() {
	close(m.stopCh)
}

func (m *CommandMonitor) checkOpenCommands(ctx context.Context) {
	session, err := m.db.Acquire(ctx)
	if err != nil {
		m.logger.WithError(err).Error("Failed to acquire storage session for command monitor")
		return
	}
	defer func() {
		if err := session.Release(); err != nil {
			m.logger.WithError(err).Warn("Failed to release storage session")
		}
	}()

	mailboxes, err := session.Mailboxes(ctx)
	if err != nil {
		m.logger.WithError(err).Error("Failed to list mailboxes")
		return
	}
	open := 0
	for _, mb := range mailboxes {
		ids, err := session.OpenTerminatedIDs(ctx, mb.AccessID)
		if err != nil {
			m.logger.WithError(err).Error("Failed to list open commands")
			return
		}
		open += len(ids)
	}
	m.metrics.OpenCommands.Set(float64(open))

	stale, err := session.CountOpenTerminatedBefore(ctx, m.now().Add(-m.staleThreshold))
	if err != nil {
		m.logger.WithError(err).Error("Failed to check for stale commands")
		return
	}
	m.metrics.StaleCommands.Set(float64(stale))

	if stale > 0 {
		m.logger.WithFields(logrus.Fields{
			"stale_count": stale,
			"open_count":  open,
			"threshold":   m.staleThreshold,
		}).Warn("Commands still open past threshold without a closing status")

		e := notify.NewEvent(notify.EventStaleCommands)
		e.Fields = map[string]interface{}{"stale": stale, "open": open}
		m.notifier.Notify(ctx, e)
	}
}
