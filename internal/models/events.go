package models

import (
	"time"

	"livetrack.cityline.org/internal/geo"
)

// EventType identifies a live-channel event.
type EventType string

const (
	EventLocationUpdated EventType = "location_updated"
	EventStatusChanged   EventType = "status_changed"
)

// Event is a single live-channel delivery. BusID and RouteID are the
// scope-matchable keys; the broadcaster routes on them, subscribers only
// read the payload fields relevant to the event type.
type Event struct {
	Type      EventType `json:"type"`
	BusID     string    `json:"busId"`
	RouteID   string    `json:"routeId,omitempty"`
	Point     geo.Point `json:"point,omitempty"`
	Direction Direction `json:"direction,omitempty"`
	Online    bool      `json:"online"`
	Timestamp time.Time `json:"timestamp"`
	// Stale marks a fix accepted out of chronological order relative to
	// already-recorded data for the bus. Not an error.
	Stale bool `json:"stale,omitempty"`
}

func NewLocationUpdatedEvent(rec BusLocationRecord, stale bool) Event {
	return Event{
		Type:      EventLocationUpdated,
		BusID:     rec.BusID,
		RouteID:   rec.RouteID,
		Point:     rec.Point,
		Direction: rec.Direction,
		Online:    rec.Online,
		Timestamp: rec.LastFixTime,
		Stale:     stale,
	}
}

func NewStatusChangedEvent(busID, routeID string, online bool, at time.Time) Event {
	return Event{
		Type:      EventStatusChanged,
		BusID:     busID,
		RouteID:   routeID,
		Online:    online,
		Timestamp: at,
	}
}
