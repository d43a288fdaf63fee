package service

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"satsync/internal/codec"
	"satsync/internal/constants"
	"satsync/internal/database"
	apperrors "satsync/internal/errors"
	"satsync/internal/lock"
	"satsync/internal/metrics"
	"satsync/internal/models"
	"satsync/internal/notify"
	"satsync/internal/outage"
	"satsync/internal/privacy"
	"satsync/internal/tracing"
	"satsync/pkg/idp/types"
)

// SessionSource hands out per-invocation storage sessions. *database.DB
// implements it.
type SessionSource interface {
	Acquire(ctx context.Context) (*database.Session, error)
}

// EngineOptions configures an Engine. Zero values fall back to defaults.
type EngineOptions struct {
	Notifier           notify.Notifier
	Locker             lock.Locker
	Metrics            *metrics.Metrics
	Logger             *logrus.Logger
	MaxPages           int
	MailboxConcurrency int
	MaxCallLogs        int
}

// CycleReport summarizes one synchronization cycle
type CycleReport struct {
	CycleID   string
	Operation string
	Mailboxes int
	Skipped   int
	Failed    int
	Pages     int
	Items     int
	Created   int
	Duration  time.Duration
}

// Engine runs synchronization cycles and submissions against the store.
// Each invocation acquires its own session and releases it on return.
type Engine struct {
	db          SessionSource
	locker      lock.Locker
	metrics     *metrics.Metrics
	logger      *logrus.Logger
	errLogger   *apperrors.Logger
	concurrency int
	maxCallLogs int
	now         func() time.Time

	originated *OriginatedPoller
	statuses   *StatusPoller
	submitter  *Submitter
}

func NewEngine(db SessionSource, client types.Client, opts EngineOptions) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.New()
	}
	m := opts.Metrics
	if m == nil {
		m = metrics.New(false)
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = notify.Nop{}
	}
	locker := opts.Locker
	if locker == nil {
		locker = lock.NewMemoryLocker()
	}
	concurrency := opts.MailboxConcurrency
	if concurrency <= 0 {
		concurrency = constants.DefaultMailboxConcurrency
	}
	maxCallLogs := opts.MaxCallLogs
	if maxCallLogs < constants.MinMaxCallLogs {
		maxCallLogs = constants.MinMaxCallLogs
	}

	tracker := outage.NewTracker(notifier, m.SetGatewayAlive, logger)
	decoder := codec.NewDecoder(logger)

	return &Engine{
		db:          db,
		locker:      locker,
		metrics:     m,
		logger:      logger,
		errLogger:   apperrors.WrapLogger(logger),
		concurrency: concurrency,
		maxCallLogs: maxCallLogs,
		now:         time.Now,
		originated:  NewOriginatedPoller(client, decoder, tracker, notifier, m, opts.MaxPages, logger),
		statuses:    NewStatusPoller(client, tracker, notifier, m, opts.MaxPages, logger),
		submitter:   NewSubmitter(client, tracker, notifier, m, logger),
	}
}

type pollFunc func(ctx context.Context, store Store, mb models.Mailbox) (PollResult, error)

// RunOriginatedCycle retrieves new mobile-originated messages from every
// enabled mailbox. pastDue marks a trigger that fired late.
func (e *Engine) RunOriginatedCycle(ctx context.Context, pastDue bool) (CycleReport, error) {
	return e.runCycle(ctx, models.OperationGetReturnMessages, pastDue, e.originated.PollMailbox)
}

// RunStatusCycle retrieves delivery statuses from every enabled mailbox
func (e *Engine) RunStatusCycle(ctx context.Context, pastDue bool) (CycleReport, error) {
	return e.runCycle(ctx, models.OperationGetForwardStatuses, pastDue, e.statuses.PollMailbox)
}

func (e *Engine) runCycle(ctx context.Context, operation string, pastDue bool, poll pollFunc) (report CycleReport, err error) {
	start := e.now()
	report = CycleReport{CycleID: tracing.NewCycleID(), Operation: operation}
	ctx = tracing.WithCycleID(ctx, report.CycleID)
	ctx, span := tracing.StartSpan(ctx, "sync."+operation,
		attribute.String("cycle_id", report.CycleID),
		attribute.Bool("past_due", pastDue),
	)
	defer span.End()

	entry := e.logger.WithFields(tracing.Fields(ctx)).WithField("operation", operation)
	if pastDue {
		entry.Warn("Cycle is running late")
	}

	defer func() {
		report.Duration = e.now().Sub(start)
		outcome := metrics.OutcomeOK
		switch {
		case err != nil:
			outcome = metrics.OutcomeFailed
			tracing.RecordError(ctx, err)
		case report.Failed > 0 || report.Skipped > 0:
			outcome = metrics.OutcomePartial
		}
		e.metrics.RecordCycle(operation, outcome, report.Duration)
	}()

	mailboxes, err := e.mailboxes(ctx)
	if err != nil {
		return report, err
	}
	report.Mailboxes = len(mailboxes)

	if e.concurrency <= 1 || len(mailboxes) <= 1 {
		err = e.pollSequential(ctx, mailboxes, operation, poll, &report)
	} else {
		err = e.pollParallel(ctx, mailboxes, operation, poll, &report)
	}
	if err != nil {
		entry.WithError(err).Error("Cycle aborted")
		return report, err
	}

	e.trimCallLogs(ctx, entry)

	entry.WithFields(logrus.Fields{
		"mailboxes": report.Mailboxes,
		"skipped":   report.Skipped,
		"failed":    report.Failed,
		"items":     report.Items,
		"created":   report.Created,
		"duration":  e.now().Sub(start).String(),
	}).Info("Cycle completed")
	return report, nil
}

// mailboxes lists the enabled mailboxes on a session that is released
// before any polling starts, so workers never wait on a connection the
// cycle itself holds.
func (e *Engine) mailboxes(ctx context.Context) ([]models.Mailbox, error) {
	session, err := e.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer e.release(session)

	mailboxes, err := session.Mailboxes(ctx)
	if err != nil {
		return nil, apperrors.NewDatabaseError("list mailboxes", err)
	}
	return mailboxes, nil
}

func (e *Engine) acquire(ctx context.Context) (*database.Session, error) {
	session, err := e.db.Acquire(ctx)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeDatabaseConnection, "failed to acquire storage session")
	}
	return session, nil
}

// pollSequential polls mailboxes one after another on a single session
func (e *Engine) pollSequential(ctx context.Context, mailboxes []models.Mailbox, operation string, poll pollFunc, report *CycleReport) error {
	session, err := e.acquire(ctx)
	if err != nil {
		return err
	}
	defer e.release(session)

	for _, mb := range mailboxes {
		if err := e.pollMailbox(ctx, session, mb, operation, poll, report); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) trimCallLogs(ctx context.Context, entry *logrus.Entry) {
	session, err := e.acquire(ctx)
	if err != nil {
		entry.WithError(err).Warn("Failed to trim call log")
		return
	}
	defer e.release(session)

	if trimmed, err := session.TrimCallLogs(ctx, e.maxCallLogs); err != nil {
		entry.WithError(err).Warn("Failed to trim call log")
	} else if trimmed > 0 {
		entry.WithField("trimmed", trimmed).Debug("Trimmed call log")
	}
}

// pollParallel runs distinct mailboxes concurrently, each on its own
// session. The first fatal error cancels the rest.
func (e *Engine) pollParallel(ctx context.Context, mailboxes []models.Mailbox, operation string, poll pollFunc, report *CycleReport) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)

	reports := make([]CycleReport, len(mailboxes))
	for i, mb := range mailboxes {
		g.Go(func() error {
			session, err := e.acquire(gctx)
			if err != nil {
				return err
			}
			defer e.release(session)
			return e.pollMailbox(gctx, session, mb, operation, poll, &reports[i])
		})
	}
	err := g.Wait()

	for _, r := range reports {
		report.Skipped += r.Skipped
		report.Failed += r.Failed
		report.Pages += r.Pages
		report.Items += r.Items
		report.Created += r.Created
	}
	return err
}

// pollMailbox polls one mailbox under its (mailbox, operation) lock. Only
// fatal errors are returned; everything else is logged and counted.
func (e *Engine) pollMailbox(ctx context.Context, store Store, mb models.Mailbox, operation string, poll pollFunc, report *CycleReport) error {
	entry := mailboxEntry(ctx, e.logger, mb, operation)

	release, ok, err := e.locker.TryLock(ctx, lock.Key(mb.AccessID, operation))
	if err != nil {
		e.errLogger.LogWarn(err, "Failed to acquire mailbox lock, skipping mailbox", tracing.Fields(ctx))
		report.Skipped++
		return nil
	}
	if !ok {
		entry.Warn("Mailbox is being polled elsewhere, skipping")
		report.Skipped++
		return nil
	}
	defer release()

	ctx, span := tracing.StartSpan(ctx, "sync.mailbox",
		attribute.String("access_id", privacy.MaskAccessID(mb.AccessID)),
		attribute.String("gateway", mb.GatewayName),
	)
	defer span.End()

	result, err := poll(ctx, store, mb)
	report.Pages += result.Pages
	report.Items += result.Items
	report.Created += result.Created
	if err == nil {
		return nil
	}

	tracing.RecordError(ctx, err)
	kind := apperrors.Classify(err)
	e.metrics.MailboxErrors.WithLabelValues(operation, kind.String()).Inc()
	if kind == apperrors.KindFatal {
		return fmt.Errorf("mailbox %s: %w", privacy.MaskAccessID(mb.AccessID), err)
	}

	report.Failed++
	e.errLogger.LogByKind(err, "Mailbox poll failed, continuing with next mailbox", logrus.Fields{
		"access_id": privacy.MaskAccessID(mb.AccessID),
		"operation": operation,
	})
	return nil
}

// Submit sends one command on demand and returns the assigned forward id
func (e *Engine) Submit(ctx context.Context, req SubmitRequest) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "sync.submit", attribute.String("command", req.Command))
	defer span.End()

	session, err := e.db.Acquire(ctx)
	if err != nil {
		return 0, apperrors.Wrap(err, apperrors.ErrCodeDatabaseConnection, "failed to acquire storage session")
	}
	defer e.release(session)

	id, err := e.submitter.Submit(ctx, session, req)
	if err != nil {
		tracing.RecordError(ctx, err)
		e.errLogger.LogByKind(err, "Command submission failed", SubmitLogFields(ctx, req))
		return 0, err
	}
	return id, nil
}

// ProvisionFromConfig writes the configured gateways and mailboxes to the
// store. Mailboxes absent from cfg are left as they are.
func (e *Engine) ProvisionFromConfig(ctx context.Context, cfg *models.Config) error {
	session, err := e.db.Acquire(ctx)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeDatabaseConnection, "failed to acquire storage session")
	}
	defer e.release(session)

	for _, gw := range cfg.Gateways {
		if err := session.ProvisionGateway(ctx, models.Gateway{Name: gw.Name, URL: gw.URL}); err != nil {
			return apperrors.NewDatabaseError("provision gateway", err)
		}
	}
	for _, mb := range cfg.Mailboxes {
		err := session.ProvisionMailbox(ctx, models.Mailbox{
			AccessID:    mb.AccessID,
			Password:    mb.Password,
			GatewayName: mb.Gateway,
			Description: mb.Description,
			Enabled:     mb.IsEnabled(),
		})
		if err != nil {
			return apperrors.NewDatabaseError("provision mailbox", err)
		}
	}

	e.logger.WithFields(logrus.Fields{
		"gateways":  len(cfg.Gateways),
		"mailboxes": len(cfg.Mailboxes),
	}).Info("Provisioned gateways and mailboxes")
	return nil
}

func (e *Engine) release(session *database.Session) {
	if err := session.Release(); err != nil {
		e.logger.WithError(err).Warn("Failed to release storage session")
	}
}
