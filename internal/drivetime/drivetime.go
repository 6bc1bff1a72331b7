package drivetime

import "context"

// Estimator supplies a travel-time estimate in minutes between two
// coordinates. Display-only enrichment; scoring never depends on it.
type Estimator interface {
	Estimate(ctx context.Context, fromLat, fromLon, toLat, toLon float64) (float64, error)
}
