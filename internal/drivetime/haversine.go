package drivetime

import (
	"context"

	"github.com/fieldserve/backend/internal/geo"
)

const defaultAvgSpeedMPH = 30.0

// HaversineEstimator derives drive time from great-circle distance at an
// assumed average speed. Used whenever no routing service is configured.
type HaversineEstimator struct {
	AvgSpeedMPH float64
}

func (e HaversineEstimator) Estimate(ctx context.Context, fromLat, fromLon, toLat, toLon float64) (float64, error) {
	speed := e.AvgSpeedMPH
	if speed <= 0 {
		speed = defaultAvgSpeedMPH
	}
	miles := geo.HaversineMiles(fromLat, fromLon, toLat, toLon)
	return miles / speed * 60, nil
}
