package geocode

import (
	"context"
	"errors"
	"strings"

	"github.com/fieldserve/backend/internal/models"
)

var ErrNotFound = errors.New("geocode not found")

type Geocoder interface {
	Geocode(ctx context.Context, query string) (lat float64, lon float64, displayName string, confidence float64, err error)
}

func BuildGeocodeQuery(country string, city string, address string) string {
	country = strings.TrimSpace(country)
	city = strings.TrimSpace(city)
	address = strings.TrimSpace(address)
	parts := []string{}
	if country != "" {
		parts = append(parts, country)
	}
	if city != "" {
		parts = append(parts, city)
	}
	if address != "" {
		parts = append(parts, address)
	}
	return strings.Join(parts, ", ")
}

// ShouldGeocode reports whether a job still needs coordinates. Missing
// coordinates are an eligibility concern, never a hard error, so geocoding
// runs opportunistically.
func ShouldGeocode(job models.Job, force bool) bool {
	if force {
		return true
	}
	return job.Lat == nil || job.Lon == nil
}
