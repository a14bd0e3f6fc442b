// Package direction infers whether a bus is traveling toward its route's
// destination (outbound) or back toward its origin (inbound) by comparing
// successive projections of its fixes onto the route polyline.
package direction

import (
	"time"

	"livetrack.cityline.org/internal/geo"
	"livetrack.cityline.org/internal/models"
	"livetrack.cityline.org/internal/routes"
)

const (
	// DefaultNoiseThresholdMeters is the minimum along-route movement
	// treated as real travel rather than GPS jitter.
	DefaultNoiseThresholdMeters = 10.0

	// DefaultRecencyWindow bounds how old a prior fix may be and still
	// anchor the comparison.
	DefaultRecencyWindow = 2 * time.Minute
)

// Inferencer is a pure function of its inputs; callers persist the result.
type Inferencer struct {
	NoiseThresholdMeters float64
	RecencyWindow        time.Duration
}

func NewInferencer() *Inferencer {
	return &Inferencer{
		NoiseThresholdMeters: DefaultNoiseThresholdMeters,
		RecencyWindow:        DefaultRecencyWindow,
	}
}

// Infer determines the direction for newFix given the previous fix and the
// prior settled direction. Rules:
//   - non-bidirectional routes are always outbound
//   - without a usable prior fix (absent, or older than the recency
//     window), the direction stays unknown until two fixes exist
//   - along-route movement beyond the noise threshold flips the direction;
//     movement within the threshold retains the prior direction, so a
//     stationary bus never flickers
func (inf *Inferencer) Infer(newFix models.Fix, priorFix *models.Fix, priorDirection models.Direction, path *routes.RoutePath) models.Direction {
	if path == nil {
		return models.DirectionUnknown
	}
	if !path.Bidirectional {
		return models.DirectionOutbound
	}
	if priorFix == nil || newFix.Timestamp.Sub(priorFix.Timestamp) > inf.RecencyWindow {
		return models.DirectionUnknown
	}

	points := path.Points()

	newProj, err := geo.ProjectOntoPath(newFix.Point, points)
	if err != nil {
		return models.DirectionUnknown
	}
	priorProj, err := geo.ProjectOntoPath(priorFix.Point, points)
	if err != nil {
		return models.DirectionUnknown
	}

	delta := newProj.DistanceAlong - priorProj.DistanceAlong
	switch {
	case delta > inf.NoiseThresholdMeters:
		return models.DirectionOutbound
	case delta < -inf.NoiseThresholdMeters:
		return models.DirectionInbound
	default:
		return priorDirection
	}
}
