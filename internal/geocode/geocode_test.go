package geocode

import (
	"testing"

	"github.com/fieldserve/backend/internal/models"
)

func TestBuildGeocodeQuery(t *testing.T) {
	q := BuildGeocodeQuery("USA", "Dallas", "1500 Marilla St")
	if q != "USA, Dallas, 1500 Marilla St" {
		t.Fatalf("unexpected query: %s", q)
	}
}

func TestShouldGeocodeSkipWhenLatLonExists(t *testing.T) {
	lat := 32.7767
	lon := -96.7970
	job := models.Job{ID: "job-1", Lat: &lat, Lon: &lon}
	if ShouldGeocode(job, false) {
		t.Fatalf("expected geocode to be skipped when lat/lon exist")
	}
	if !ShouldGeocode(job, true) {
		t.Fatalf("expected geocode when force is true")
	}
	if !ShouldGeocode(models.Job{ID: "job-2"}, false) {
		t.Fatalf("expected geocode when coordinates missing")
	}
}
