package routes

import (
	"context"
	"fmt"
	"sync"

	"github.com/twpayne/go-polyline"

	"livetrack.cityline.org/internal/geo"
)

// StaticProvider serves route geometry from an in-memory table. It backs
// tests and single-city deployments where route shapes ship with the
// service.
type StaticProvider struct {
	mu    sync.RWMutex
	paths map[string]*RoutePath
}

func NewStaticProvider() *StaticProvider {
	return &StaticProvider{paths: make(map[string]*RoutePath)}
}

// AddRoute registers a route's polyline.
func (p *StaticProvider) AddRoute(routeID string, bidirectional bool, points []geo.Point) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paths[routeID] = NewRoutePath(routeID, bidirectional, points)
}

// AddEncodedRoute registers a route from a Google encoded polyline string.
func (p *StaticProvider) AddEncodedRoute(routeID string, bidirectional bool, encoded string) error {
	coords, _, err := polyline.DecodeCoords([]byte(encoded))
	if err != nil {
		return fmt.Errorf("decoding polyline for route %s: %w", routeID, err)
	}

	points := make([]geo.Point, len(coords))
	for i, c := range coords {
		points[i] = geo.Point{Lat: c[0], Lon: c[1]}
	}

	p.AddRoute(routeID, bidirectional, points)
	return nil
}

func (p *StaticProvider) RoutePath(ctx context.Context, routeID string) (*RoutePath, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	path, ok := p.paths[routeID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRouteNotFound, routeID)
	}
	return path, nil
}

func (p *StaticProvider) IsBidirectional(ctx context.Context, routeID string) (bool, error) {
	path, err := p.RoutePath(ctx, routeID)
	if err != nil {
		return false, err
	}
	return path.Bidirectional, nil
}
