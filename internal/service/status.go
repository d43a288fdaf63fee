package service

import (
	"context"

	"github.com/sirupsen/logrus"

	"satsync/internal/constants"
	apperrors "satsync/internal/errors"
	"satsync/internal/metrics"
	"satsync/internal/models"
	"satsync/internal/notify"
	"satsync/internal/outage"
	"satsync/internal/tracing"
	"satsync/internal/watermark"
	"satsync/pkg/idp/types"
)

// StatusPoller retrieves delivery statuses of submitted commands and merges
// them into the stored terminated messages.
type StatusPoller struct {
	gatewayCaller
	maxPages int
}

func NewStatusPoller(client types.Client, tracker *outage.Tracker, notifier notify.Notifier, m *metrics.Metrics, maxPages int, logger *logrus.Logger) *StatusPoller {
	if maxPages <= 0 {
		maxPages = constants.DefaultMaxPages
	}
	return &StatusPoller{gatewayCaller: newGatewayCaller(client, tracker, notifier, m, logger), maxPages: maxPages}
}

// PollMailbox follows the same paging and call log rules as the originated
// poller. Statuses for unknown forward ids are logged and skipped.
func (p *StatusPoller) PollMailbox(ctx context.Context, store Store, mb models.Mailbox) (PollResult, error) {
	var result PollResult
	const operation = models.OperationGetForwardStatuses
	entry := mailboxEntry(ctx, p.logger, mb, operation)

	gw, err := resolveGateway(ctx, store, mb)
	if err != nil {
		return result, err
	}

	cursor, err := watermark.NewTracker(store, 0).Cursor(ctx, mb.AccessID, operation)
	if err != nil {
		return result, err
	}

	for result.Pages < p.maxPages {
		result.Pages++
		callTime := p.now().UTC()
		l := callLog(mb, gw, operation, cursor, callTime)

		resp, err := p.client.GetForwardStatuses(ctx, gw.URL, auth(mb), filterFor(cursor))
		if err != nil {
			return result, p.failed(ctx, store, gw, l, err)
		}
		if err := p.answered(ctx, store, gw); err != nil {
			return result, err
		}
		if resp.ErrorID != 0 {
			return result, p.rejected(ctx, store, gw, l, resp.ErrorID)
		}

		for _, st := range resp.Statuses {
			updated, err := p.merge(ctx, store, mb, gw, st)
			if err != nil {
				return result, err
			}
			result.Items++
			if updated {
				result.Created++
			}
		}

		mark := watermark.Advance(cursor, 0, resp.NextStartUTC, callTime)
		l.Success = true
		l.NextStartUTC = mark.NextStartUTC
		l.More = resp.More
		l.MessageCount = len(resp.Statuses)
		if err := p.appendCallLog(ctx, store, l); err != nil {
			return result, err
		}
		logPage(entry, result.Pages, len(resp.Statuses), resp.More)

		if !resp.More {
			return result, nil
		}
		next, ok := mark.Cursor()
		if !ok {
			return result, nil
		}
		cursor = next
	}

	entry.WithField("max_pages", p.maxPages).Warn("Page limit reached, remaining statuses are left for the next cycle")
	return result, nil
}

// merge applies one status and reports whether the stored state changed
func (p *StatusPoller) merge(ctx context.Context, store Store, mb models.Mailbox, gw *models.Gateway, st types.ForwardStatus) (bool, error) {
	update := models.StatusUpdate{
		MessageID:       st.ForwardMessageID.Int64(),
		State:           st.State,
		StateUTC:        parseGatewayTime(st.StateUTC),
		IsClosed:        st.IsClosed,
		ErrorID:         st.ErrorID,
		ReferenceNumber: st.ReferenceNumber.Int64(),
	}
	if st.ErrorID != 0 {
		update.ErrorDesc = p.client.ErrorName(ctx, gw.URL, st.ErrorID)
	}

	outcome, err := store.MergeTerminatedStatus(ctx, update)
	if err != nil {
		return false, apperrors.NewDatabaseError("merge terminated status", err)
	}
	p.metrics.StatusMerges.WithLabelValues(outcome.Result.String()).Inc()

	entry := p.logger.WithFields(tracing.Fields(ctx)).WithFields(logrus.Fields{
		"forward_id": update.MessageID,
		"state":      models.StateName(update.State),
	})

	switch outcome.Result {
	case models.MergeNotFound:
		entry.Warn("Status for unknown forward message, possibly submitted elsewhere")
		return false, nil
	case models.MergeUnchanged:
		return false, nil
	}

	entry.WithField("previous_state", models.StateName(outcome.PreviousState)).Info("Forward message state changed")

	var mobileID string
	if stored, err := store.TerminatedMessage(ctx, update.MessageID); err == nil && stored != nil {
		mobileID = stored.MobileID
	}

	e := notify.NewEvent(notify.EventCommandStateChanged)
	e.AccessID = mb.AccessID
	e.MobileID = mobileID
	e.MessageID = update.MessageID
	e.State = models.StateName(update.State)
	e.PreviousState = models.StateName(outcome.PreviousState)
	e.Detail = update.ErrorDesc
	p.notifier.Notify(ctx, e)

	if outcome.Closed {
		closed := notify.NewEvent(notify.EventCommandClosed)
		closed.AccessID = mb.AccessID
		closed.MobileID = mobileID
		closed.MessageID = update.MessageID
		closed.State = models.StateName(update.State)
		closed.Success = models.Ptr(models.IsStateSuccess(update.State))
		closed.Detail = update.ErrorDesc
		p.notifier.Notify(ctx, closed)
	}
	return true, nil
}
