package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"satsync/internal/models"
)

// mobileColumn binds one column of the mobiles table to its MobileUpdate
// field. value returns false when the update leaves the column alone.
type mobileColumn struct {
	name  string
	value func(u models.MobileUpdate) (interface{}, bool)
}

func optional[T any](get func(u models.MobileUpdate) *T) func(models.MobileUpdate) (interface{}, bool) {
	return func(u models.MobileUpdate) (interface{}, bool) {
		v := get(u)
		if v == nil {
			return nil, false
		}
		return *v, true
	}
}

var mobileColumns = []mobileColumn{
	{"access_id", optional(func(u models.MobileUpdate) *string { return u.AccessID })},
	{"last_message_received", optional(func(u models.MobileUpdate) *time.Time { return utcPtr(u.LastMessageReceived) })},
	{"last_satellite_region", optional(func(u models.MobileUpdate) *string { return u.LastSatelliteRegion })},
	{"wakeup_period_sec", optional(func(u models.MobileUpdate) *int { return u.WakeupPeriodSec })},
	{"last_registration", optional(func(u models.MobileUpdate) *time.Time { return utcPtr(u.LastRegistration) })},
	{"modem_hw_version", optional(func(u models.MobileUpdate) *string { return u.ModemHWVersion })},
	{"modem_sw_version", optional(func(u models.MobileUpdate) *string { return u.ModemSWVersion })},
	{"modem_product_id", optional(func(u models.MobileUpdate) *int { return u.ModemProductID })},
	{"location_latitude", optional(func(u models.MobileUpdate) *float64 { return u.Latitude })},
	{"location_longitude", optional(func(u models.MobileUpdate) *float64 { return u.Longitude })},
	{"location_altitude", optional(func(u models.MobileUpdate) *int { return u.Altitude })},
	{"location_speed", optional(func(u models.MobileUpdate) *int { return u.Speed })},
	{"location_heading", optional(func(u models.MobileUpdate) *int { return u.Heading })},
	{"location_time", optional(func(u models.MobileUpdate) *time.Time { return utcPtr(u.LocationTime) })},
	{"broadcast_ids", optional(func(u models.MobileUpdate) *string { return u.BroadcastIDs })},
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

// buildMobileUpsert renders a single statement that inserts the mobile or
// overlays the supplied columns, skipping the write when nothing differs.
func buildMobileUpsert(u models.MobileUpdate, now time.Time) (string, []interface{}) {
	cols := []string{"mobile_id"}
	args := []interface{}{u.MobileID}
	var supplied []string
	for _, c := range mobileColumns {
		if v, ok := c.value(u); ok {
			cols = append(cols, c.name)
			args = append(args, v)
			supplied = append(supplied, c.name)
		}
	}
	cols = append(cols, "updated_at")
	args = append(args, now)

	placeholders := make([]string, len(cols))
	for i := range cols {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO mobiles (%s) VALUES (%s) ON CONFLICT (mobile_id) ",
		strings.Join(cols, ", "), strings.Join(placeholders, ", "))

	if len(supplied) == 0 {
		b.WriteString("DO NOTHING")
		return b.String(), args
	}

	sets := make([]string, 0, len(supplied)+1)
	diffs := make([]string, 0, len(supplied))
	for _, name := range supplied {
		sets = append(sets, fmt.Sprintf("%s = excluded.%s", name, name))
		diffs = append(diffs, fmt.Sprintf("mobiles.%s IS DISTINCT FROM excluded.%s", name, name))
	}
	sets = append(sets, "updated_at = excluded.updated_at")
	fmt.Fprintf(&b, "DO UPDATE SET %s WHERE %s", strings.Join(sets, ", "), strings.Join(diffs, " OR "))
	return b.String(), args
}

// UpsertMobile creates the mobile or overlays the non-nil attributes of u.
// It reports whether a row was written.
func (s *Session) UpsertMobile(ctx context.Context, u models.MobileUpdate) (bool, error) {
	if u.MobileID == "" {
		return false, fmt.Errorf("mobile id is required")
	}
	query, args := buildMobileUpsert(u, s.now())
	result, err := s.exec(ctx, "upsert mobile", query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to upsert mobile: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return affected > 0, nil
}

// EnsureMobile creates an empty mobile row if none exists
func (s *Session) EnsureMobile(ctx context.Context, mobileID string) error {
	if _, err := s.exec(ctx, "ensure mobile", insertMobileIfAbsentQuery, mobileID, s.now()); err != nil {
		return fmt.Errorf("failed to ensure mobile: %w", err)
	}
	return nil
}

// Mobile returns a mobile by id, or nil when it does not exist
func (s *Session) Mobile(ctx context.Context, mobileID string) (*models.Mobile, error) {
	var (
		m                                         models.Mobile
		accessID, region, hw, sw, broadcast       sql.NullString
		lastReceived, lastReg, locTime            sql.NullTime
		wakeup, product, altitude, speed, heading sql.NullInt64
		latitude, longitude                       sql.NullFloat64
	)
	err := s.conn.QueryRowContext(ctx, selectMobileQuery, mobileID).Scan(
		&m.MobileID, &accessID, &lastReceived, &region,
		&wakeup, &lastReg, &hw, &sw,
		&product, &latitude, &longitude, &altitude,
		&speed, &heading, &locTime, &broadcast, &m.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get mobile: %w", err)
	}

	m.AccessID = accessID.String
	m.LastMessageReceived = timePtr(lastReceived)
	m.LastSatelliteRegion = region.String
	m.WakeupPeriodSec = intPtr(wakeup)
	m.LastRegistration = timePtr(lastReg)
	m.ModemHWVersion = hw.String
	m.ModemSWVersion = sw.String
	m.ModemProductID = intPtr(product)
	if latitude.Valid {
		m.Latitude = &latitude.Float64
	}
	if longitude.Valid {
		m.Longitude = &longitude.Float64
	}
	m.Altitude = intPtr(altitude)
	m.Speed = intPtr(speed)
	m.Heading = intPtr(heading)
	m.LocationTime = timePtr(locTime)
	m.BroadcastIDs = broadcast.String
	return &m, nil
}

func intPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}
