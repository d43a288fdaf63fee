package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"satsync/internal/models"
)

// ProvisionGateway creates a gateway or updates its URL. The alive flag of
// an existing gateway is left as observed.
func (s *Session) ProvisionGateway(ctx context.Context, gw models.Gateway) error {
	if _, err := s.exec(ctx, "provision gateway", upsertGatewayQuery, gw.Name, gw.URL, true); err != nil {
		return fmt.Errorf("failed to provision gateway: %w", err)
	}
	return nil
}

// Gateway returns the named gateway, or nil when it does not exist
func (s *Session) Gateway(ctx context.Context, name string) (*models.Gateway, error) {
	var gw models.Gateway
	var changedAt sql.NullTime
	err := s.conn.QueryRowContext(ctx, selectGatewayQuery, name).Scan(&gw.Name, &gw.URL, &gw.Alive, &changedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get gateway: %w", err)
	}
	gw.AliveChangedAt = timePtr(changedAt)
	return &gw, nil
}

// Gateways lists all gateways
func (s *Session) Gateways(ctx context.Context) ([]models.Gateway, error) {
	rows, err := s.conn.QueryContext(ctx, selectGatewaysQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to list gateways: %w", err)
	}
	defer rows.Close()

	var out []models.Gateway
	for rows.Next() {
		var gw models.Gateway
		var changedAt sql.NullTime
		if err := rows.Scan(&gw.Name, &gw.URL, &gw.Alive, &changedAt); err != nil {
			return nil, fmt.Errorf("failed to scan gateway: %w", err)
		}
		gw.AliveChangedAt = timePtr(changedAt)
		out = append(out, gw)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate gateways: %w", err)
	}
	return out, nil
}

// SetGatewayAlive records the alive flag and reports whether it changed.
// The write is a single conditional update, so concurrent observers agree
// on which of them saw the transition.
func (s *Session) SetGatewayAlive(ctx context.Context, name string, alive bool, at time.Time) (bool, error) {
	result, err := s.exec(ctx, "set gateway alive", updateGatewayAliveQuery, alive, at.UTC(), name, alive)
	if err != nil {
		return false, fmt.Errorf("failed to update gateway alive flag: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return affected > 0, nil
}
