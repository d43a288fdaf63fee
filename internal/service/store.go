package service

import (
	"context"
	"time"

	"satsync/internal/database"
	"satsync/internal/models"
)

// Store is the storage a cycle works against. *database.Session implements it.
type Store interface {
	AppendCallLog(ctx context.Context, l models.APICallLog) error
	LatestSuccessfulCallLog(ctx context.Context, accessID, operation string) (*models.APICallLog, error)
	TrimCallLogs(ctx context.Context, max int) (int64, error)

	ProvisionGateway(ctx context.Context, gw models.Gateway) error
	Gateway(ctx context.Context, name string) (*models.Gateway, error)
	SetGatewayAlive(ctx context.Context, name string, alive bool, at time.Time) (bool, error)

	ProvisionMailbox(ctx context.Context, mb models.Mailbox) error
	MailboxForMobile(ctx context.Context, mobileID string) (*models.Mailbox, error)
	Mailboxes(ctx context.Context) ([]models.Mailbox, error)

	InsertOriginatedIfAbsent(ctx context.Context, m models.OriginatedMessage) (bool, error)
	InsertTerminatedIfAbsent(ctx context.Context, m models.TerminatedMessage) (bool, error)
	MergeTerminatedStatus(ctx context.Context, u models.StatusUpdate) (database.MergeOutcome, error)
	TerminatedMessage(ctx context.Context, messageID int64) (*models.TerminatedMessage, error)
	OpenTerminatedIDs(ctx context.Context, accessID string) ([]int64, error)
	CountOpenTerminatedBefore(ctx context.Context, cutoff time.Time) (int, error)

	UpsertMobile(ctx context.Context, u models.MobileUpdate) (bool, error)
}

var _ Store = (*database.Session)(nil)
