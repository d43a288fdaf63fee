package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	apperrors "satsync/internal/errors"
)

// CycleRunner runs one synchronization cycle
type CycleRunner func(ctx context.Context, pastDue bool) (CycleReport, error)

// Scheduler triggers a cycle on a fixed interval. Ticks are dropped while a
// cycle runs, so a tick arriving more than two intervals after the previous
// one means the cycle overran and is flagged past due.
type Scheduler struct {
	name     string
	run      CycleRunner
	interval time.Duration
	logger   *logrus.Logger
	now      func() time.Time
	stopCh   chan struct{}
}

func NewScheduler(name string, run CycleRunner, interval time.Duration, logger *logrus.Logger) *Scheduler {
	return &Scheduler{
		name:     name,
		run:      run,
		interval: interval,
		logger:   logger,
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}
}

func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.WithFields(logrus.Fields{
		"scheduler": s.name,
		"interval":  s.interval,
	}).Info("Starting sync scheduler")

	last := s.now()
	s.runCycle(ctx, false)

	for {
		select {
		case <-ctx.Done():
			s.logger.WithField("scheduler", s.name).Info("Scheduler context cancelled, stopping")
			return
		case <-s.stopCh:
			s.logger.WithField("scheduler", s.name).Info("Scheduler stop signal received, stopping")
			return
		case <-ticker.C:
			started := s.now()
			pastDue := started.Sub(last) > 2*s.interval
			last = started
			s.runCycle(ctx, pastDue)
		}
	}
}

func (s *Scheduler) Stop() {
	close(s.stopCh)
}

func (s *Scheduler) runCycle(ctx context.Context, pastDue bool) {
	report, err := s.run(ctx, pastDue)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		entry := s.logger.WithFields(logrus.Fields{
			"scheduler": s.name,
			"cycle_id":  report.CycleID,
		})
		if appErr, ok := apperrors.As(err); ok {
			entry = entry.WithField("error_code", appErr.Code)
		}
		entry.WithError(err).Error("Sync cycle failed")
	}
}
