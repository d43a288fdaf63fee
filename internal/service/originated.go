package service

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/sirupsen/logrus"

	"satsync/internal/codec"
	"satsync/internal/constants"
	apperrors "satsync/internal/errors"
	"satsync/internal/metrics"
	"satsync/internal/models"
	"satsync/internal/notify"
	"satsync/internal/outage"
	"satsync/internal/privacy"
	"satsync/internal/tracing"
	"satsync/internal/watermark"
	"satsync/pkg/idp/types"
)

// PollResult summarizes one mailbox poll
type PollResult struct {
	Pages   int
	Items   int
	Created int
}

// OriginatedPoller retrieves mobile-originated messages from mailboxes
type OriginatedPoller struct {
	gatewayCaller
	decoder  *codec.Decoder
	maxPages int
}

func NewOriginatedPoller(client types.Client, decoder *codec.Decoder, tracker *outage.Tracker, notifier notify.Notifier, m *metrics.Metrics, maxPages int, logger *logrus.Logger) *OriginatedPoller {
	if maxPages <= 0 {
		maxPages = constants.DefaultMaxPages
	}
	caller := newGatewayCaller(client, tracker, notifier, m, logger)
	if decoder == nil {
		decoder = codec.NewDecoder(caller.logger)
	}
	return &OriginatedPoller{gatewayCaller: caller, decoder: decoder, maxPages: maxPages}
}

// PollMailbox pages through the new messages of a mailbox starting at its
// watermark. Every page writes one call log row. A non-zero gateway error id
// ends the poll with a logical API error; transport failures mark the
// gateway down and are returned for the caller to skip the mailbox.
func (p *OriginatedPoller) PollMailbox(ctx context.Context, store Store, mb models.Mailbox) (PollResult, error) {
	var result PollResult
	const operation = models.OperationGetReturnMessages
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

		resp, err := p.client.GetReturnMessages(ctx, gw.URL, auth(mb), filterFor(cursor))
		if err != nil {
			return result, p.failed(ctx, store, gw, l, err)
		}
		if err := p.answered(ctx, store, gw); err != nil {
			return result, err
		}
		if resp.ErrorID != 0 {
			return result, p.rejected(ctx, store, gw, l, resp.ErrorID)
		}

		for _, m := range resp.Messages {
			created, err := p.ingest(ctx, store, mb, m)
			if err != nil {
				return result, err
			}
			result.Items++
			if created {
				result.Created++
			}
		}

		mark := watermark.Advance(cursor, resp.NextStartID.Int64(), resp.NextStartUTC, callTime)
		l.Success = true
		l.NextStartID = mark.NextStartID
		l.NextStartUTC = mark.NextStartUTC
		l.More = resp.More
		l.MessageCount = len(resp.Messages)
		if err := p.appendCallLog(ctx, store, l); err != nil {
			return result, err
		}
		logPage(entry, result.Pages, len(resp.Messages), resp.More)

		if !resp.More {
			return result, nil
		}
		next, ok := mark.Cursor()
		if !ok {
			return result, nil
		}
		cursor = next
	}

	entry.WithField("max_pages", p.maxPages).Warn("Page limit reached, remaining messages are left for the next cycle")
	return result, nil
}

// ingest stores one message and, when it was not seen before, updates the
// sending mobile and decodes the payload. It reports whether a row was created.
func (p *OriginatedPoller) ingest(ctx context.Context, store Store, mb models.Mailbox, m types.ReturnMessage) (bool, error) {
	msg := models.OriginatedMessage{
		MessageID:      m.ID.Int64(),
		AccessID:       mb.AccessID,
		MobileID:       m.MobileID,
		SIN:            m.SIN,
		MIN:            messageMIN(m),
		MessageUTC:     parseGatewayTime(m.MessageUTC),
		ReceiveUTC:     parseGatewayTime(m.ReceiveUTC),
		RegionName:     m.RegionName,
		OTAMessageSize: m.OTAMessageSize,
		RawPayload:     []byte(m.RawPayload),
	}
	if m.Payload != nil {
		if b, err := json.Marshal(m.Payload); err == nil {
			msg.PayloadJSON = string(b)
		}
	}

	created, err := store.InsertOriginatedIfAbsent(ctx, msg)
	if err != nil {
		return false, apperrors.NewDatabaseError("insert originated message", err)
	}
	if !created {
		return false, nil
	}
	p.metrics.MessagesStored.WithLabelValues(models.CategoryOriginated.String()).Inc()

	entry := p.logger.WithFields(tracing.Fields(ctx)).WithFields(logrus.Fields{
		"message_id": msg.MessageID,
		"mobile_id":  privacy.MaskMobileID(msg.MobileID),
		"sin":        msg.SIN,
		"min":        msg.MIN,
	})

	update := models.MobileUpdate{
		MobileID:            msg.MobileID,
		AccessID:            models.Ptr(mb.AccessID),
		LastMessageReceived: models.Ptr(msg.ReceiveUTC),
	}
	if msg.ReceiveUTC.IsZero() {
		update.LastMessageReceived = nil
	}
	if msg.RegionName != "" {
		update.LastSatelliteRegion = models.Ptr(msg.RegionName)
	}

	telemetry := p.decode(entry, msg, m.Payload)
	if telemetry != nil {
		update.Merge(telemetry.MobileUpdate(msg.MobileID))
	}

	if msg.MobileID != "" {
		if _, err := store.UpsertMobile(ctx, update); err != nil {
			return true, apperrors.NewDatabaseError("upsert mobile", err)
		}
	}

	switch {
	case telemetry != nil:
		e := notify.NewEvent(notify.EventTelemetry)
		e.AccessID = mb.AccessID
		e.MobileID = msg.MobileID
		e.MessageID = msg.MessageID
		e.Schema = telemetry.Schema()
		e.Fields = telemetry.Fields()
		if !msg.ReceiveUTC.IsZero() {
			e.Time = msg.ReceiveUTC
		}
		p.notifier.Notify(ctx, e)
	case codec.IsVendorLocked(msg.SIN, msg.MIN):
		entry.Warn("Terminal reports vendor lock")
		e := notify.NewEvent(notify.EventVendorLock)
		e.AccessID = mb.AccessID
		e.MobileID = msg.MobileID
		e.MessageID = msg.MessageID
		p.notifier.Notify(ctx, e)
	}
	return true, nil
}

// decode returns the telemetry carried by a core modem message, or nil.
// Messages without a schema are skipped; decoding never fails the poll.
func (p *OriginatedPoller) decode(entry *logrus.Entry, msg models.OriginatedMessage, payload *types.Payload) codec.Telemetry {
	if msg.SIN != codec.CoreModemSIN {
		if !codec.IsVendorLocked(msg.SIN, msg.MIN) {
			entry.Debug("No parser for service, message stored raw")
		}
		return nil
	}
	if payload == nil {
		entry.Debug("Core modem message without decoded payload")
		return nil
	}

	telemetry, err := p.decoder.Decode(*payload, codec.Meta{
		MobileID:   msg.MobileID,
		SIN:        msg.SIN,
		MIN:        msg.MIN,
		MessageUTC: msg.MessageUTC,
		ReceiveUTC: msg.ReceiveUTC,
	})
	if err != nil {
		if errors.Is(err, codec.ErrNoSchema) {
			entry.Debug("No parser for message, stored raw")
		} else {
			entry.WithError(err).Warn("Failed to decode message, stored raw")
		}
		return nil
	}
	return telemetry
}

// messageMIN prefers the decoded payload, then the raw payload header
func messageMIN(m types.ReturnMessage) int {
	if m.Payload != nil {
		return m.Payload.MIN
	}
	if _, min, ok := codec.SplitRawPayload(m.RawPayload); ok {
		return min
	}
	return m.MIN
}
