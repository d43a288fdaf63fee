package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"satsync/internal/models"
)

// ProvisionMailbox creates or replaces a mailbox. The password is sealed
// when encryption is enabled.
func (s *Session) ProvisionMailbox(ctx context.Context, mb models.Mailbox) error {
	password, err := s.db.secrets.Seal(mb.Password)
	if err != nil {
		return fmt.Errorf("failed to encrypt mailbox password: %w", err)
	}
	_, err = s.exec(ctx, "provision mailbox", upsertMailboxQuery,
		mb.AccessID, password, mb.GatewayName, mb.Description, mb.Enabled)
	if err != nil {
		return fmt.Errorf("failed to provision mailbox: %w", err)
	}
	return nil
}

// Mailbox returns a mailbox by access id, or nil when it does not exist
func (s *Session) Mailbox(ctx context.Context, accessID string) (*models.Mailbox, error) {
	return s.scanMailbox(s.conn.QueryRowContext(ctx, selectMailboxQuery, accessID))
}

// MailboxForMobile resolves the mailbox owning a mobile, or nil when the
// mobile or its mailbox is unknown.
func (s *Session) MailboxForMobile(ctx context.Context, mobileID string) (*models.Mailbox, error) {
	return s.scanMailbox(s.conn.QueryRowContext(ctx, selectMailboxForMobileQuery, mobileID))
}

// Mailboxes lists the enabled mailboxes ordered by access id
func (s *Session) Mailboxes(ctx context.Context) ([]models.Mailbox, error) {
	rows, err := s.conn.QueryContext(ctx, selectEnabledMailboxesQuery, true)
	if err != nil {
		return nil, fmt.Errorf("failed to list mailboxes: %w", err)
	}
	defer rows.Close()

	var out []models.Mailbox
	for rows.Next() {
		mb, err := s.scanMailbox(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *mb)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate mailboxes: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (s *Session) scanMailbox(row rowScanner) (*models.Mailbox, error) {
	var mb models.Mailbox
	var password string
	if err := row.Scan(&mb.AccessID, &password, &mb.GatewayName, &mb.Description, &mb.Enabled); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan mailbox: %w", err)
	}
	decrypted, err := s.db.secrets.Open(password)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt mailbox password: %w", err)
	}
	mb.Password = decrypted
	return &mb, nil
}
