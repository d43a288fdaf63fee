package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	apperrors "satsync/internal/errors"
	"satsync/internal/metrics"
	"satsync/internal/models"
	"satsync/internal/notify"
	"satsync/internal/outage"
	"satsync/internal/privacy"
	"satsync/pkg/idp/types"
)

// gatewayCaller holds what every component talking to a gateway shares
type gatewayCaller struct {
	client   types.Client
	outage   *outage.Tracker
	notifier notify.Notifier
	metrics  *metrics.Metrics
	logger   *logrus.Logger
	now      func() time.Time
}

func newGatewayCaller(client types.Client, tracker *outage.Tracker, notifier notify.Notifier, m *metrics.Metrics, logger *logrus.Logger) gatewayCaller {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if m == nil {
		m = metrics.New(false)
	}
	if logger == nil {
		logger = logrus.New()
	}
	if tracker == nil {
		tracker = outage.NewTracker(notifier, m.SetGatewayAlive, logger)
	}
	return gatewayCaller{
		client:   client,
		outage:   tracker,
		notifier: notifier,
		metrics:  m,
		logger:   logger,
		now:      time.Now,
	}
}

// resolveGateway loads the gateway a mailbox is bound to
func resolveGateway(ctx context.Context, store Store, mb models.Mailbox) (*models.Gateway, error) {
	gw, err := store.Gateway(ctx, mb.GatewayName)
	if err != nil {
		return nil, apperrors.NewDatabaseError("get gateway", err)
	}
	if gw == nil {
		return nil, apperrors.NewDataIntegrityError("gateway", mb.GatewayName, "mailbox references an unknown gateway").
			WithContext("access_id", privacy.MaskAccessID(mb.AccessID))
	}
	return gw, nil
}

func auth(mb models.Mailbox) types.Auth {
	return types.Auth{AccessID: mb.AccessID, Password: mb.Password}
}

func filterFor(c models.Cursor) types.Filter {
	if c.Kind == models.CursorByID {
		return types.Filter{StartID: c.StartID}
	}
	return types.Filter{StartUTC: c.StartUTC}
}

// callLog starts the call log row for a gateway call made at callTime
func callLog(mb models.Mailbox, gw *models.Gateway, operation string, cursor models.Cursor, callTime time.Time) models.APICallLog {
	return models.APICallLog{
		CallTime:   callTime,
		AccessID:   mb.AccessID,
		Operation:  operation,
		GatewayURL: gw.URL,
		CursorID:   cursor.StartID,
		CursorUTC:  cursor.StartUTC,
	}
}

func (g *gatewayCaller) appendCallLog(ctx context.Context, store Store, l models.APICallLog) error {
	if err := store.AppendCallLog(ctx, l); err != nil {
		return apperrors.NewDatabaseError("append call log", err)
	}
	return nil
}

// answered records that the gateway replied
func (g *gatewayCaller) answered(ctx context.Context, store Store, gw *models.Gateway) error {
	if _, err := g.outage.MarkAlive(ctx, store, gw.Name); err != nil {
		return apperrors.NewDatabaseError("mark gateway alive", err)
	}
	return nil
}

// failed handles an error returned by a gateway call. The failed attempt is
// written to the call log and transport failures mark the gateway down.
// The original error is returned unless storage itself fails.
func (g *gatewayCaller) failed(ctx context.Context, store Store, gw *models.Gateway, l models.APICallLog, err error) error {
	if ctx.Err() != nil {
		return err
	}

	l.Success = false
	l.ErrorDesc = err.Error()
	if appendErr := g.appendCallLog(ctx, store, l); appendErr != nil {
		return appendErr
	}

	if apperrors.IsTransport(err) {
		if _, markErr := g.outage.MarkDown(ctx, store, gw.Name, err); markErr != nil {
			return apperrors.NewDatabaseError("mark gateway down", markErr)
		}
	}
	return err
}

// rejected records a response carrying a non-zero error id
func (g *gatewayCaller) rejected(ctx context.Context, store Store, gw *models.Gateway, l models.APICallLog, errorID int) error {
	desc := g.client.ErrorName(ctx, gw.URL, errorID)
	l.Success = false
	l.ErrorID = errorID
	l.ErrorDesc = desc
	if err := g.appendCallLog(ctx, store, l); err != nil {
		return err
	}
	return apperrors.NewLogicalAPIError(l.Operation, errorID, desc).
		WithContext("gateway", gw.Name)
}

func parseGatewayTime(s string) time.Time {
	t, err := types.ParseTime(s)
	if err != nil {
		return time.Time{}
	}
	return t
}
