package geo

import (
	"math"
	"testing"
)

func TestDistanceKm_SamePoint(t *testing.T) {
	p := Point{Latitude: -12.0464, Longitude: -77.0428} // Lima
	if d := DistanceKm(p, p); d != 0 {
		t.Errorf("expected 0, got %f", d)
	}
}

func TestDistanceKm_KnownDistance(t *testing.T) {
	lima := Point{Latitude: -12.0464, Longitude: -77.0428}
	callao := Point{Latitude: -12.0566, Longitude: -77.1181}

	d := DistanceKm(lima, callao)
	// Roughly 8.3 km between the two centers.
	if math.Abs(d-8.3) > 0.5 {
		t.Errorf("expected ~8.3km, got %f", d)
	}
}

func TestDistanceKm_Symmetric(t *testing.T) {
	a := Point{Latitude: -12.1, Longitude: -77.0}
	b := Point{Latitude: -12.2, Longitude: -76.9}

	if DistanceKm(a, b) != DistanceKm(b, a) {
		t.Error("expected distance to be symmetric")
	}
}

func TestPointValid(t *testing.T) {
	if !(Point{Latitude: -12, Longitude: -77}).Valid() {
		t.Error("expected valid point")
	}
	if (Point{Latitude: 91, Longitude: 0}).Valid() {
		t.Error("expected invalid latitude to fail")
	}
	if (Point{Latitude: 0, Longitude: -181}).Valid() {
		t.Error("expected invalid longitude to fail")
	}
}
