// Package geo provides the pure geographic math used by the tracking core:
// great-circle distances, bearings, and nearest-point projection onto a
// route polyline. All functions are deterministic and allocation-free.
package geo

import (
	"errors"
	"math"
)

// EarthRadiusMeters is the mean earth radius used for all spherical math.
const EarthRadiusMeters = 6371000.0

// ErrInvalidGeometry indicates a degenerate path (fewer than 2 waypoints).
var ErrInvalidGeometry = errors.New("path must contain at least 2 waypoints")

// Point is a WGS84 coordinate pair.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Projection describes the nearest point on a polyline to a query point.
type Projection struct {
	// SegmentIndex is the index of the polyline segment containing the
	// nearest point; ties go to the lowest index.
	SegmentIndex int
	// DistanceAlong is the distance in meters from the start of the path
	// to the projected point.
	DistanceAlong float64
	// LateralOffset is the distance in meters from the query point to the
	// projected point.
	LateralOffset float64
}

// Haversine returns the great-circle distance between two points in meters.
func Haversine(p1, p2 Point) float64 {
	phi1 := p1.Lat * math.Pi / 180
	phi2 := p2.Lat * math.Pi / 180
	deltaPhi := (p2.Lat - p1.Lat) * math.Pi / 180
	deltaLambda := (p2.Lon - p1.Lon) * math.Pi / 180

	a := math.Sin(deltaPhi/2)*math.Sin(deltaPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(deltaLambda/2)*math.Sin(deltaLambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusMeters * c
}

// Bearing returns the initial bearing in degrees [0, 360) from p1 to p2.
func Bearing(p1, p2 Point) float64 {
	phi1 := p1.Lat * math.Pi / 180
	phi2 := p2.Lat * math.Pi / 180
	deltaLon := (p2.Lon - p1.Lon) * math.Pi / 180

	y := math.Sin(deltaLon) * math.Cos(phi2)
	x := math.Cos(phi1)*math.Sin(phi2) - math.Sin(phi1)*math.Cos(phi2)*math.Cos(deltaLon)

	theta := math.Atan2(y, x)
	return math.Mod(theta*180/math.Pi+360, 360)
}

// ProjectOntoPath finds the nearest point on the polyline to p. The path
// must contain at least two waypoints, otherwise ErrInvalidGeometry is
// returned. Segment-local projection uses an equirectangular approximation,
// which is accurate to well under a meter at city scale.
func ProjectOntoPath(p Point, path []Point) (Projection, error) {
	if len(path) < 2 {
		return Projection{}, ErrInvalidGeometry
	}

	best := Projection{SegmentIndex: -1, LateralOffset: math.MaxFloat64}
	cumulative := 0.0

	for i := 0; i < len(path)-1; i++ {
		a, b := path[i], path[i+1]
		segLen := Haversine(a, b)

		t, offset := projectOntoSegment(p, a, b)
		if offset < best.LateralOffset {
			best = Projection{
				SegmentIndex:  i,
				DistanceAlong: cumulative + t*segLen,
				LateralOffset: offset,
			}
		}

		cumulative += segLen
	}

	return best, nil
}

// PathLength returns the total length of the polyline in meters.
func PathLength(path []Point) float64 {
	total := 0.0
	for i := 0; i < len(path)-1; i++ {
		total += Haversine(path[i], path[i+1])
	}
	return total
}

// projectOntoSegment projects p onto the segment a-b in a local planar
// frame. It returns the clamped parametric position t in [0, 1] and the
// distance from p to the projected point in meters.
func projectOntoSegment(p, a, b Point) (float64, float64) {
	// Local equirectangular frame centered on a; longitude scaled by the
	// cosine of the latitude so both axes are in comparable units.
	cosLat := math.Cos(a.Lat * math.Pi / 180)

	ax, ay := 0.0, 0.0
	bx := (b.Lon - a.Lon) * cosLat
	by := b.Lat - a.Lat
	px := (p.Lon - a.Lon) * cosLat
	py := p.Lat - a.Lat

	dx, dy := bx-ax, by-ay
	segSq := dx*dx + dy*dy

	var t float64
	if segSq > 0 {
		t = ((px-ax)*dx + (py-ay)*dy) / segSq
		t = math.Max(0, math.Min(1, t))
	}

	nearest := Point{
		Lat: a.Lat + t*(b.Lat-a.Lat),
		Lon: a.Lon + t*(b.Lon-a.Lon),
	}
	return t, Haversine(p, nearest)
}
