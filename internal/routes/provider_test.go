package routes

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"livetrack.cityline.org/internal/geo"
)

func TestNewRoutePathCumulativeDistancesAreMonotonic(t *testing.T) {
	points := []geo.Point{{Lat: 0, Lon: 0}, {Lat: 0, Lon: 1}, {Lat: 0, Lon: 2}, {Lat: 1, Lon: 2}}
	path := NewRoutePath("r1", true, points)

	require.Len(t, path.Waypoints, 4)
	assert.Zero(t, path.Waypoints[0].CumulativeMeters)
	for i := 1; i < len(path.Waypoints); i++ {
		assert.Greater(t, path.Waypoints[i].CumulativeMeters, path.Waypoints[i-1].CumulativeMeters)
	}
}

func TestStaticProviderLookup(t *testing.T) {
	p := NewStaticProvider()
	p.AddRoute("r1", true, []geo.Point{{Lat: 0, Lon: 0}, {Lat: 0, Lon: 1}})

	path, err := p.RoutePath(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, "r1", path.RouteID)
	assert.True(t, path.Bidirectional)

	_, err = p.RoutePath(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrRouteNotFound)
}

func TestStaticProviderEncodedPolyline(t *testing.T) {
	p := NewStaticProvider()

	// Encoded form of (38.5, -120.2), (40.7, -120.95), (43.252, -126.453).
	err := p.AddEncodedRoute("r2", false, "_p~iF~ps|U_ulLnnqC_mqNvxq`@")
	require.NoError(t, err)

	path, err := p.RoutePath(context.Background(), "r2")
	require.NoError(t, err)
	require.Len(t, path.Waypoints, 3)
	assert.InDelta(t, 38.5, path.Waypoints[0].Point.Lat, 0.001)
	assert.InDelta(t, -120.2, path.Waypoints[0].Point.Lon, 0.001)

	bidi, err := p.IsBidirectional(context.Background(), "r2")
	require.NoError(t, err)
	assert.False(t, bidi)
}

func TestStaticProviderRejectsBadPolyline(t *testing.T) {
	p := NewStaticProvider()
	err := p.AddEncodedRoute("r3", false, "not a polyline \xff")
	assert.Error(t, err)
}

// countingProvider counts backing lookups for cache tests.
type countingProvider struct {
	inner Provider
	calls atomic.Int64
}

func (c *countingProvider) RoutePath(ctx context.Context, routeID string) (*RoutePath, error) {
	c.calls.Add(1)
	return c.inner.RoutePath(ctx, routeID)
}

func (c *countingProvider) IsBidirectional(ctx context.Context, routeID string) (bool, error) {
	return c.inner.IsBidirectional(ctx, routeID)
}

func TestCachingProviderHitsBackingOnce(t *testing.T) {
	static := NewStaticProvider()
	static.AddRoute("r1", true, []geo.Point{{Lat: 0, Lon: 0}, {Lat: 0, Lon: 1}})
	counting := &countingProvider{inner: static}

	p := NewCachingProvider(counting, 16, time.Minute)

	for range 5 {
		path, err := p.RoutePath(context.Background(), "r1")
		require.NoError(t, err)
		assert.Equal(t, "r1", path.RouteID)
	}

	assert.Equal(t, int64(1), counting.calls.Load())
}

func TestCachingProviderDoesNotCacheErrors(t *testing.T) {
	counting := &countingProvider{inner: NewStaticProvider()}
	p := NewCachingProvider(counting, 16, time.Minute)

	_, err := p.RoutePath(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrRouteNotFound)
	_, err = p.RoutePath(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrRouteNotFound)

	assert.Equal(t, int64(2), counting.calls.Load())
}
