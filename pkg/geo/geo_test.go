package geo

import (
	"math"
	"testing"
	"time"

	"github.com/arjun/haultrack/internal/model"
)

func TestHaversineKm_SamePoint(t *testing.T) {
	loc := model.Location{Lat: -23.5505, Lon: -46.6333}
	got := HaversineKm(loc, loc)
	if got != 0 {
		t.Errorf("HaversineKm(same point) = %v, want 0", got)
	}
}

func TestHaversineKm_EquatorDegree(t *testing.T) {
	// One degree of longitude at the equator is ~111.19 km.
	a := model.Location{Lat: 0, Lon: 0}
	b := model.Location{Lat: 0, Lon: 1}
	got := HaversineKm(a, b)
	want := 111.19
	if math.Abs(got-want) > want*0.005 {
		t.Errorf("HaversineKm(equator degree) = %.3f km, want %.2f ±0.5%%", got, want)
	}
}

func TestHaversineKm_NearAntipodal(t *testing.T) {
	a := model.Location{Lat: 0, Lon: 0}
	b := model.Location{Lat: 0, Lon: 179.9999999}
	got := HaversineKm(a, b)
	if math.IsNaN(got) || math.IsInf(got, 0) {
		t.Fatalf("HaversineKm(near antipodal) = %v, want finite", got)
	}
	// Half the circumference is ~20015 km.
	if got < 19000 || got > 20100 {
		t.Errorf("HaversineKm(near antipodal) = %.1f km, want ~20015", got)
	}
}

func TestIsValidCoordinates(t *testing.T) {
	tests := []struct {
		name     string
		lat, lon float64
		want     bool
	}{
		{"origin", 0, 0, true},
		{"north pole", 90, -180, true},
		{"south pole", -90, 180, true},
		{"lat just over", 90.0001, 0, false},
		{"lon just under", 0, -180.5, false},
		{"nan lat", math.NaN(), 0, false},
		{"inf lon", 0, math.Inf(1), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsValidCoordinates(tt.lat, tt.lon); got != tt.want {
				t.Errorf("IsValidCoordinates(%v, %v) = %v, want %v", tt.lat, tt.lon, got, tt.want)
			}
		})
	}
}

func sampleAt(lat, lon float64, at time.Time) model.GPSSample {
	return model.GPSSample{Latitude: lat, Longitude: lon, Timestamp: at}
}

func TestReconstructRoute_TotalIsPairwiseSum(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	samples := []model.GPSSample{
		sampleAt(0, 0, t0),
		sampleAt(0, 1, t0.Add(10*time.Minute)),
		sampleAt(0, 2, t0.Add(20*time.Minute)),
	}

	route := ReconstructRoute(samples)

	want := HaversineKm(samples[0].Loc(), samples[1].Loc()) +
		HaversineKm(samples[1].Loc(), samples[2].Loc())
	if math.Abs(route.TotalDistanceKm-want) > 1e-9 {
		t.Errorf("TotalDistanceKm = %v, want pairwise sum %v", route.TotalDistanceKm, want)
	}
	// ~111 km per equatorial degree, two segments.
	if route.TotalDistanceKm < 221 || route.TotalDistanceKm > 224 {
		t.Errorf("TotalDistanceKm = %.2f km, want ≈222", route.TotalDistanceKm)
	}
	if len(route.Polyline) != 3 {
		t.Errorf("Polyline length = %d, want 3", len(route.Polyline))
	}
}

func TestReconstructRoute_FewSamples(t *testing.T) {
	if got := ReconstructRoute(nil).TotalDistanceKm; got != 0 {
		t.Errorf("ReconstructRoute(nil) = %v, want 0", got)
	}
	one := []model.GPSSample{sampleAt(10, 10, time.Now())}
	if got := ReconstructRoute(one).TotalDistanceKm; got != 0 {
		t.Errorf("ReconstructRoute(one sample) = %v, want 0", got)
	}
}

func TestReconstructRoute_SkipsOutOfOrder(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	late := sampleAt(5, 5, t0.Add(-time.Hour))
	late.OutOfOrder = true
	samples := []model.GPSSample{
		sampleAt(0, 0, t0),
		late,
		sampleAt(0, 1, t0.Add(time.Minute)),
	}

	route := ReconstructRoute(samples)

	want := HaversineKm(model.Location{Lat: 0, Lon: 0}, model.Location{Lat: 0, Lon: 1})
	if math.Abs(route.TotalDistanceKm-want) > 1e-9 {
		t.Errorf("TotalDistanceKm = %v, want %v (flagged sample skipped)", route.TotalDistanceKm, want)
	}
}

func TestReconstructRoute_DropsBadCoordinates(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	samples := []model.GPSSample{
		sampleAt(0, 0, t0),
		sampleAt(91, 0, t0.Add(time.Minute)), // out of range
		sampleAt(0, 1, t0.Add(2*time.Minute)),
	}

	route := ReconstructRoute(samples)

	if math.IsNaN(route.TotalDistanceKm) {
		t.Fatal("TotalDistanceKm is NaN")
	}
	if len(route.Polyline) != 2 {
		t.Errorf("Polyline length = %d, want 2 (bad sample dropped)", len(route.Polyline))
	}
}

func TestMonotonicPath_UnflaggedRegression(t *testing.T) {
	// Even if a stale sample was never flagged, the filter drops it.
	t0 := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	samples := []model.GPSSample{
		sampleAt(0, 0, t0),
		sampleAt(3, 3, t0.Add(-time.Minute)),
		sampleAt(0, 1, t0.Add(time.Minute)),
	}
	path := MonotonicPath(samples)
	if len(path) != 2 {
		t.Errorf("MonotonicPath length = %d, want 2", len(path))
	}
}

func TestRouteDistanceKm(t *testing.T) {
	route := []model.Location{
		{Lat: 0, Lon: 0},
		{Lat: 0, Lon: 1},
		{Lat: 1, Lon: 1},
	}
	got := RouteDistanceKm(route)
	if got <= 0 {
		t.Errorf("RouteDistanceKm = %v, want positive", got)
	}
	if RouteDistanceKm(route[:1]) != 0 {
		t.Error("RouteDistanceKm(single point) != 0")
	}
}
