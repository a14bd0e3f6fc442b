// Package proximity answers "buses within radius R of point P" queries over
// the location store's current snapshot.
package proximity

import (
	"sort"

	"livetrack.cityline.org/internal/geo"
	"livetrack.cityline.org/internal/models"
	"livetrack.cityline.org/internal/tracker"
)

// Match pairs a record with its distance from the query center.
type Match struct {
	Record         models.BusLocationRecord `json:"record"`
	DistanceMeters float64                  `json:"distanceMeters"`
}

// Searcher is the stable contract for proximity queries. The linear-scan
// Index below is sufficient for a single-city fleet; a grid or R-tree
// implementation can replace it behind this interface if the fleet grows.
type Searcher interface {
	Nearby(center geo.Point, radiusMeters float64, filter tracker.Filter) []Match
}

// Index scans the store's current online records with a haversine check.
type Index struct {
	store *tracker.Store
}

func NewIndex(store *tracker.Store) *Index {
	return &Index{store: store}
}

// Nearby returns online buses within radiusMeters of center, sorted
// ascending by distance with ties broken by bus id for determinism. A zero
// radius returns all online buses matching the filter.
func (idx *Index) Nearby(center geo.Point, radiusMeters float64, filter tracker.Filter) []Match {
	filter.OnlineOnly = true
	records := idx.store.GetAll(filter)

	var matches []Match
	for _, rec := range records {
		d := geo.Haversine(rec.Point, center)
		if radiusMeters > 0 && d > radiusMeters {
			continue
		}
		matches = append(matches, Match{Record: rec, DistanceMeters: d})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].DistanceMeters != matches[j].DistanceMeters {
			return matches[i].DistanceMeters < matches[j].DistanceMeters
		}
		return matches[i].Record.BusID < matches[j].Record.BusID
	})

	return matches
}
