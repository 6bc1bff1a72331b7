package geo

import (
	"math"
	"testing"
)

func TestHaversineMilesZeroDistance(t *testing.T) {
	d := HaversineMiles(32.7767, -96.7970, 32.7767, -96.7970)
	if d != 0 {
		t.Fatalf("expected 0 distance, got %f", d)
	}
}

func TestHaversineMilesDallasToFortWorth(t *testing.T) {
	// Dallas -> Fort Worth is roughly 31 miles great-circle.
	d := HaversineMiles(32.7767, -96.7970, 32.7555, -97.3308)
	if d < 29 || d > 33 {
		t.Fatalf("expected ~31 miles, got %f", d)
	}
}

func TestValidCoordinates(t *testing.T) {
	if !ValidCoordinates(32.7767, -96.7970) {
		t.Fatalf("expected valid coordinates")
	}
	if ValidCoordinates(91, 0) {
		t.Fatalf("latitude out of range should be invalid")
	}
	if ValidCoordinates(0, -181) {
		t.Fatalf("longitude out of range should be invalid")
	}
	if ValidCoordinates(math.NaN(), 0) {
		t.Fatalf("NaN latitude should be invalid")
	}
	if ValidCoordinates(0, math.Inf(1)) {
		t.Fatalf("infinite longitude should be invalid")
	}
}
