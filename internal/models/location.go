package models

import (
	"time"

	"livetrack.cityline.org/internal/geo"
)

// Direction is a bus's inferred direction of travel relative to its route's
// origin→destination orientation.
type Direction string

const (
	DirectionOutbound Direction = "outbound"
	DirectionInbound  Direction = "inbound"
	DirectionUnknown  Direction = "unknown"
)

// Fix is a single GPS position report from a driver session.
type Fix struct {
	BusID          string    `json:"busId" validate:"required"`
	Point          geo.Point `json:"point"`
	HeadingDegrees *float64  `json:"heading,omitempty" validate:"omitempty,gte=0,lt=360"`
	SpeedMps       *float64  `json:"speed,omitempty" validate:"omitempty,gte=0"`
	Timestamp      time.Time `json:"timestamp" validate:"required"`
}

// BusLocationRecord is the authoritative current state for one bus. It is
// mutated only by the location store on receipt of a valid fix or an
// explicit online/offline toggle.
type BusLocationRecord struct {
	BusID           string    `json:"busId"`
	Point           geo.Point `json:"point"`
	HeadingDegrees  *float64  `json:"heading,omitempty"`
	SpeedMps        *float64  `json:"speed,omitempty"`
	LastFixTime     time.Time `json:"lastFixTime"`
	Online          bool      `json:"online"`
	Direction       Direction `json:"direction"`
	RouteID         string    `json:"routeId"`
	DriverSessionID string    `json:"driverSessionId,omitempty"`
}

// LocationHistoryEntry is one immutable point in a bus's trail. Entries are
// append-only and non-decreasing in timestamp per bus.
type LocationHistoryEntry struct {
	BusID     string    `json:"busId"`
	Point     geo.Point `json:"point"`
	Timestamp time.Time `json:"timestamp"`
	Direction Direction `json:"direction"`
}

func NewBusLocationRecord(busID, routeID, driverSessionID string, fix Fix, direction Direction) BusLocationRecord {
	return BusLocationRecord{
		BusID:           busID,
		Point:           fix.Point,
		HeadingDegrees:  fix.HeadingDegrees,
		SpeedMps:        fix.SpeedMps,
		LastFixTime:     fix.Timestamp,
		Online:          true,
		Direction:       direction,
		RouteID:         routeID,
		DriverSessionID: driverSessionID,
	}
}
