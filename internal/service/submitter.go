package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"satsync/internal/codec"
	apperrors "satsync/internal/errors"
	"satsync/internal/metrics"
	"satsync/internal/models"
	"satsync/internal/notify"
	"satsync/internal/outage"
	"satsync/internal/privacy"
	"satsync/internal/tracing"
	"satsync/internal/validation"
	"satsync/pkg/idp/types"
)

// ErrSubmissionRejected is returned when the gateway accepted the request
// but refused every message in it.
var ErrSubmissionRejected = apperrors.New(apperrors.ErrCodeGatewayRejected, "submission rejected by gateway")

// SubmitRequest asks for one command to be sent to a terminal. Exactly one
// of Command and RawPayload is set.
type SubmitRequest struct {
	MobileID      string `json:"mobile_id" validate:"required,mobileid"`
	Command       string `json:"command,omitempty" validate:"omitempty,command"`
	RawPayload    []byte `json:"raw_payload,omitempty"`
	UserMessageID int64  `json:"user_message_id,omitempty" validate:"gte=0"`
}

// Validate checks the request shape before anything is resolved
func (r SubmitRequest) Validate() error {
	if err := validation.Struct(r); err != nil {
		return err
	}
	if (r.Command == "") == (len(r.RawPayload) == 0) {
		return apperrors.NewValidationError("command", r.Command, "exactly one of command and raw_payload is required")
	}
	if len(r.RawPayload) > 0 {
		if _, _, ok := codec.SplitRawPayload(r.RawPayload); !ok {
			return apperrors.NewValidationError("raw_payload", "", "must start with the service and message ids")
		}
	}
	return nil
}

// Submitter sends commands to terminals through the gateway of their mailbox
type Submitter struct {
	gatewayCaller
}

func NewSubmitter(client types.Client, tracker *outage.Tracker, notifier notify.Notifier, m *metrics.Metrics, logger *logrus.Logger) *Submitter {
	return &Submitter{gatewayCaller: newGatewayCaller(client, tracker, notifier, m, logger)}
}

// Submit encodes and submits req and stores every accepted submission as a
// terminated message in the submitted state. It returns the forward id the
// gateway assigned.
func (s *Submitter) Submit(ctx context.Context, store Store, req SubmitRequest) (int64, error) {
	if err := req.Validate(); err != nil {
		return 0, err
	}

	mb, err := store.MailboxForMobile(ctx, req.MobileID)
	if err != nil {
		return 0, apperrors.NewDatabaseError("resolve mailbox", err)
	}
	if mb == nil {
		return 0, apperrors.NewDataIntegrityError("mobile", privacy.MaskMobileID(req.MobileID), "mobile has no known mailbox")
	}
	gw, err := resolveGateway(ctx, store, *mb)
	if err != nil {
		return 0, err
	}

	now := s.now().UTC()
	msg, sin, min, err := buildForwardMessage(req, now)
	if err != nil {
		return 0, err
	}

	entry := mailboxEntry(ctx, s.logger, *mb, models.OperationSubmitMessages).WithFields(logrus.Fields{
		"mobile_id": privacy.MaskMobileID(req.MobileID),
		"sin":       sin,
		"min":       min,
	})
	if req.Command != "" {
		entry = entry.WithField("command", req.Command)
	}

	l := callLog(*mb, gw, models.OperationSubmitMessages, models.Cursor{}, now)
	resp, err := s.client.SubmitForwardMessages(ctx, gw.URL, auth(*mb), []types.ForwardMessage{msg})
	if err != nil {
		s.metrics.Submissions.WithLabelValues(metrics.OutcomeFailed).Inc()
		return 0, s.failed(ctx, store, gw, l, err)
	}
	if err := s.answered(ctx, store, gw); err != nil {
		return 0, err
	}
	if resp.ErrorID != 0 {
		s.metrics.Submissions.WithLabelValues(metrics.OutcomeFailed).Inc()
		return 0, s.rejected(ctx, store, gw, l, resp.ErrorID)
	}

	l.Success = true
	l.MessageCount = len(resp.Submissions)
	if err := s.appendCallLog(ctx, store, l); err != nil {
		return 0, err
	}

	var payloadJSON string
	if msg.Payload != nil {
		if b, err := json.Marshal(msg.Payload); err == nil {
			payloadJSON = string(b)
		}
	}

	var forwardID int64
	var reason string
	for _, sub := range resp.Submissions {
		if sub.ErrorID != 0 {
			reason = s.client.ErrorName(ctx, gw.URL, sub.ErrorID)
			s.metrics.Submissions.WithLabelValues("rejected").Inc()
			entry.WithFields(logrus.Fields{
				"error_id":   sub.ErrorID,
				"error_name": reason,
			}).Warn("Gateway rejected submission")
			continue
		}

		id := sub.ForwardMessageID.Int64()
		destination := sub.DestinationID
		if destination == "" {
			destination = req.MobileID
		}
		mt := models.TerminatedMessage{
			MessageID:      id,
			AccessID:       mb.AccessID,
			MobileID:       destination,
			SIN:            sin,
			MIN:            min,
			UserMessageID:  sub.UserMessageID,
			SubmitUTC:      now,
			State:          models.StateSubmitted,
			IsClosed:       false,
			OTAMessageSize: sub.OTAMessageSize,
			RawPayload:     []byte(msg.RawPayload),
			PayloadJSON:    payloadJSON,
		}
		if t := parseGatewayTime(sub.StateUTC); !t.IsZero() {
			mt.StateUTC = &t
		}
		if mt.UserMessageID == 0 {
			mt.UserMessageID = req.UserMessageID
		}

		if _, err := store.InsertTerminatedIfAbsent(ctx, mt); err != nil {
			return 0, apperrors.NewDatabaseError("insert terminated message", err)
		}
		s.metrics.MessagesStored.WithLabelValues(models.CategoryTerminated.String()).Inc()
		s.metrics.Submissions.WithLabelValues(metrics.OutcomeOK).Inc()

		if sub.TerminalWakeupPeriod != nil {
			wakeup := codec.WakeupSeconds(*sub.TerminalWakeupPeriod, s.logger)
			if _, err := store.UpsertMobile(ctx, models.MobileUpdate{MobileID: destination, WakeupPeriodSec: &wakeup}); err != nil {
				return 0, apperrors.NewDatabaseError("update mobile wakeup period", err)
			}
		}

		entry.WithField("forward_id", id).Info("Command submitted")
		e := notify.NewEvent(notify.EventCommandSubmitted)
		e.AccessID = mb.AccessID
		e.MobileID = destination
		e.MessageID = id
		e.State = models.StateName(models.StateSubmitted)
		e.Schema = req.Command
		e.Time = now
		s.notifier.Notify(ctx, e)

		if forwardID == 0 {
			forwardID = id
		}
	}

	if forwardID == 0 {
		if reason == "" {
			reason = "no submission returned"
		}
		return 0, apperrors.Wrap(ErrSubmissionRejected, apperrors.ErrCodeGatewayRejected,
			fmt.Sprintf("submission rejected: %s", reason)).
			WithContext("gateway", gw.Name).
			WithUserMessage(fmt.Sprintf("Gateway rejected the command: %s", reason))
	}
	return forwardID, nil
}

// buildForwardMessage encodes req. The returned SIN and MIN identify the
// message for storage.
func buildForwardMessage(req SubmitRequest, now time.Time) (types.ForwardMessage, int, int, error) {
	msg := types.ForwardMessage{
		DestinationID: req.MobileID,
		UserMessageID: req.UserMessageID,
	}
	if req.Command != "" {
		payload, err := codec.Encode(req.Command, now)
		if err != nil {
			return msg, 0, 0, apperrors.NewValidationError("command", req.Command, err.Error())
		}
		msg.Payload = payload
		return msg, payload.SIN, payload.MIN, nil
	}
	sin, min, _ := codec.SplitRawPayload(req.RawPayload)
	msg.RawPayload = types.RawPayload(req.RawPayload)
	return msg, sin, min, nil
}

// SubmitLogFields describes a submit request for logs without exposing ids
func SubmitLogFields(ctx context.Context, req SubmitRequest) logrus.Fields {
	fields := tracing.Fields(ctx)
	fields["mobile_id"] = privacy.MaskMobileID(req.MobileID)
	if req.Command != "" {
		fields["command"] = req.Command
	} else {
		fields["raw_bytes"] = len(req.RawPayload)
	}
	return fields
}
