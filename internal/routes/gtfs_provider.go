package routes

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/jamespfennell/gtfs"

	"livetrack.cityline.org/internal/geo"
)

// GTFSProvider derives route geometry from a static GTFS feed. Each route
// gets one representative path, taken from the longest shape among its
// trips; a route is bidirectional when its trips cover more than one GTFS
// direction id.
type GTFSProvider struct {
	paths map[string]*RoutePath
}

// NewGTFSProvider loads and parses a GTFS zip from a URL or local file path.
func NewGTFSProvider(source string) (*GTFSProvider, error) {
	b, err := rawFeedData(source)
	if err != nil {
		return nil, err
	}

	staticData, err := gtfs.ParseStatic(b, gtfs.ParseStaticOptions{})
	if err != nil {
		return nil, fmt.Errorf("error parsing GTFS data: %w", err)
	}

	return newGTFSProviderFromStatic(staticData), nil
}

func rawFeedData(source string) ([]byte, error) {
	if !strings.HasPrefix(source, "http://") && !strings.HasPrefix(source, "https://") {
		b, err := os.ReadFile(source)
		if err != nil {
			return nil, fmt.Errorf("error reading local GTFS file: %w", err)
		}
		return b, nil
	}

	resp, err := http.Get(source)
	if err != nil {
		return nil, fmt.Errorf("error downloading GTFS data: %w", err)
	}
	defer resp.Body.Close() // nolint

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading GTFS data: %w", err)
	}
	return b, nil
}

func newGTFSProviderFromStatic(staticData *gtfs.Static) *GTFSProvider {
	type routeShape struct {
		points     []geo.Point
		directions map[int]bool
	}

	shapes := make(map[string]*routeShape)

	for i := range staticData.Trips {
		trip := &staticData.Trips[i]
		if trip.Route == nil {
			continue
		}

		rs, ok := shapes[trip.Route.Id]
		if !ok {
			rs = &routeShape{directions: make(map[int]bool)}
			shapes[trip.Route.Id] = rs
		}
		rs.directions[int(trip.DirectionId)] = true

		if trip.Shape == nil || len(trip.Shape.Points) <= len(rs.points) {
			continue
		}

		points := make([]geo.Point, len(trip.Shape.Points))
		for j, pt := range trip.Shape.Points {
			points[j] = geo.Point{Lat: pt.Latitude, Lon: pt.Longitude}
		}
		rs.points = points
	}

	paths := make(map[string]*RoutePath, len(shapes))
	for routeID, rs := range shapes {
		if len(rs.points) < 2 {
			continue
		}
		paths[routeID] = NewRoutePath(routeID, len(rs.directions) > 1, rs.points)
	}

	return &GTFSProvider{paths: paths}
}

func (p *GTFSProvider) RoutePath(ctx context.Context, routeID string) (*RoutePath, error) {
	path, ok := p.paths[routeID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRouteNotFound, routeID)
	}
	return path, nil
}

func (p *GTFSProvider) IsBidirectional(ctx context.Context, routeID string) (bool, error) {
	path, err := p.RoutePath(ctx, routeID)
	if err != nil {
		return false, err
	}
	return path.Bidirectional, nil
}
