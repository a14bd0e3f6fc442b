// Package routes is the boundary to the route collaborator: it supplies the
// path geometry and orientation metadata the tracking core needs, without
// pulling route CRUD into this service.
package routes

import (
	"context"
	"errors"

	"livetrack.cityline.org/internal/geo"
)

// ErrRouteNotFound indicates the collaborator knows nothing about a route.
var ErrRouteNotFound = errors.New("route not found")

// Waypoint is one vertex of a route polyline with its cumulative distance
// from the route origin.
type Waypoint struct {
	Point            geo.Point `json:"point"`
	CumulativeMeters float64   `json:"cumulativeMeters"`
}

// RoutePath is the ordered waypoint sequence from origin to destination.
// CumulativeMeters is monotonically non-decreasing.
type RoutePath struct {
	RouteID       string     `json:"routeId"`
	Bidirectional bool       `json:"bidirectional"`
	Waypoints     []Waypoint `json:"waypoints"`
}

// Points returns the bare polyline for projection.
func (p *RoutePath) Points() []geo.Point {
	pts := make([]geo.Point, len(p.Waypoints))
	for i, wp := range p.Waypoints {
		pts[i] = wp.Point
	}
	return pts
}

// Provider resolves route geometry. Implementations must be safe for
// concurrent use.
type Provider interface {
	RoutePath(ctx context.Context, routeID string) (*RoutePath, error)
	IsBidirectional(ctx context.Context, routeID string) (bool, error)
}

// NewRoutePath builds a RoutePath from raw points, computing cumulative
// distances.
func NewRoutePath(routeID string, bidirectional bool, points []geo.Point) *RoutePath {
	waypoints := make([]Waypoint, len(points))
	cumulative := 0.0
	for i, pt := range points {
		if i > 0 {
			cumulative += geo.Haversine(points[i-1], pt)
		}
		waypoints[i] = Waypoint{Point: pt, CumulativeMeters: cumulative}
	}
	return &RoutePath{
		RouteID:       routeID,
		Bidirectional: bidirectional,
		Waypoints:     waypoints,
	}
}
