package service

import (
	"context"

	"github.com/sirupsen/logrus"

	"satsync/internal/models"
	"satsync/internal/privacy"
	"satsync/internal/tracing"
)

// mailboxEntry returns a log entry for work on a mailbox. Credentials and
// terminal ids are masked; the cycle id is carried over from ctx.
func mailboxEntry(ctx context.Context, logger *logrus.Logger, mb models.Mailbox, operation string) *logrus.Entry {
	return logger.WithFields(tracing.Fields(ctx)).WithFields(logrus.Fields{
		"access_id": privacy.MaskAccessID(mb.AccessID),
		"gateway":   mb.GatewayName,
		"operation": operation,
	})
}

// logPage logs the outcome of one listing page
func logPage(entry *logrus.Entry, page, count int, more bool) {
	if count > 0 {
		entry.WithFields(logrus.Fields{
			"page":  page,
			"count": count,
			"more":  more,
		}).Info("Retrieved gateway page")
	} else {
		entry.WithField("page", page).Debug("No new items on gateway")
	}
}
