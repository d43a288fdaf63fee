package models

import "time"

// Mobile is the merged view of a remote terminal
type Mobile struct {
	MobileID            string
	AccessID            string
	LastMessageReceived *time.Time
	LastSatelliteRegion string
	WakeupPeriodSec     *int
	LastRegistration    *time.Time
	ModemHWVersion      string
	ModemSWVersion      string
	ModemProductID      *int
	Latitude            *float64
	Longitude           *float64
	Altitude            *int
	Speed               *int
	Heading             *int
	LocationTime        *time.Time
	BroadcastIDs        string
	UpdatedAt           time.Time
}

// MobileUpdate carries the attributes to overlay on a mobile. Nil fields are
// left untouched, so a partial update never clobbers unrelated metadata.
type MobileUpdate struct {
	MobileID            string
	AccessID            *string
	LastMessageReceived *time.Time
	LastSatelliteRegion *string
	WakeupPeriodSec     *int
	LastRegistration    *time.Time
	ModemHWVersion      *string
	ModemSWVersion      *string
	ModemProductID      *int
	Latitude            *float64
	Longitude           *float64
	Altitude            *int
	Speed               *int
	Heading             *int
	LocationTime        *time.Time
	BroadcastIDs        *string
}

// Merge overlays the non-nil fields of other onto u
func (u *MobileUpdate) Merge(other MobileUpdate) {
	if other.AccessID != nil {
		u.AccessID = other.AccessID
	}
	if other.LastMessageReceived != nil {
		u.LastMessageReceived = other.LastMessageReceived
	}
	if other.LastSatelliteRegion != nil {
		u.LastSatelliteRegion = other.LastSatelliteRegion
	}
	if other.WakeupPeriodSec != nil {
		u.WakeupPeriodSec = other.WakeupPeriodSec
	}
	if other.LastRegistration != nil {
		u.LastRegistration = other.LastRegistration
	}
	if other.ModemHWVersion != nil {
		u.ModemHWVersion = other.ModemHWVersion
	}
	if other.ModemSWVersion != nil {
		u.ModemSWVersion = other.ModemSWVersion
	}
	if other.ModemProductID != nil {
		u.ModemProductID = other.ModemProductID
	}
	if other.Latitude != nil {
		u.Latitude = other.Latitude
	}
	if other.Longitude != nil {
		u.Longitude = other.Longitude
	}
	if other.Altitude != nil {
		u.Altitude = other.Altitude
	}
	if other.Speed != nil {
		u.Speed = other.Speed
	}
	if other.Heading != nil {
		u.Heading = other.Heading
	}
	if other.LocationTime != nil {
		u.LocationTime = other.LocationTime
	}
	if other.BroadcastIDs != nil {
		u.BroadcastIDs = other.BroadcastIDs
	}
}

// Ptr returns a pointer to v
func Ptr[T any](v T) *T {
	return &v
}
