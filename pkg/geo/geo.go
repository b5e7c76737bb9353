// Package geo provides pure geospatial math for trip tracking.
//
// All distance calculations use the Haversine formula on WGS-84
// coordinates. Field telemetry is inherently noisy, so route functions
// degrade to zero-distance contributions on unusable input instead of
// failing; a single bad sample must never abort an in-progress trip.
package geo

import (
	"math"

	"github.com/arjun/haultrack/internal/model"
)

// ─── Constants ──────────────────────────────────────────────

// EarthRadiusKm is the mean radius of Earth in kilometers.
const EarthRadiusKm = 6371.0

// ─── Validation ─────────────────────────────────────────────

// IsValidCoordinates reports whether lat/lon form a usable WGS-84 point:
// finite and within [-90,90] × [-180,180]. Range and finiteness only,
// no plausibility checks beyond that.
func IsValidCoordinates(lat, lon float64) bool {
	if math.IsNaN(lat) || math.IsInf(lat, 0) || math.IsNaN(lon) || math.IsInf(lon, 0) {
		return false
	}
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

// ─── Distance ───────────────────────────────────────────────

// HaversineKm returns the great-circle distance between two points in
// kilometers. Returns exactly 0 for identical points and stays finite
// for near-antipodal points (the asin argument is clamped to [0,1]).
//
// Complexity: O(1)
func HaversineKm(a, b model.Location) float64 {
	dLat := degToRad(b.Lat - a.Lat)
	dLon := degToRad(b.Lon - a.Lon)

	sinLat := math.Sin(dLat / 2)
	sinLon := math.Sin(dLon / 2)

	h := sinLat*sinLat +
		math.Cos(degToRad(a.Lat))*math.Cos(degToRad(b.Lat))*sinLon*sinLon

	// Floating-point error can push h a hair above 1 near antipodes,
	// which would make Sqrt/Asin return NaN.
	if h > 1 {
		h = 1
	}
	if h < 0 {
		h = 0
	}

	return 2 * EarthRadiusKm * math.Asin(math.Sqrt(h))
}

// SegmentKm returns the distance between two samples, or 0 when either
// endpoint has unusable coordinates.
func SegmentKm(a, b model.GPSSample) float64 {
	if !IsValidCoordinates(a.Latitude, a.Longitude) || !IsValidCoordinates(b.Latitude, b.Longitude) {
		return 0
	}
	return HaversineKm(a.Loc(), b.Loc())
}

// ─── Route Reconstruction ───────────────────────────────────

// Route is an ordered polyline reconstructed from a GPS track.
type Route struct {
	Polyline        []model.Location
	TotalDistanceKm float64
}

// MonotonicPath returns the subsequence of samples whose timestamps are
// non-decreasing, dropping out-of-order and coordinate-invalid samples.
// This is the accept-and-flag policy: flagged samples stay in the store
// for audit but never contribute to distance.
//
// Complexity: O(S)
func MonotonicPath(samples []model.GPSSample) []model.GPSSample {
	path := make([]model.GPSSample, 0, len(samples))
	for _, s := range samples {
		if s.OutOfOrder || !IsValidCoordinates(s.Latitude, s.Longitude) {
			continue
		}
		if len(path) > 0 && s.Timestamp.Before(path[len(path)-1].Timestamp) {
			continue
		}
		path = append(path, s)
	}
	return path
}

// ReconstructRoute builds the ordered polyline for a track and sums the
// consecutive segment distances over the monotonic-timestamp subsequence.
// TotalDistanceKm is defined as 0 for fewer than 2 usable samples.
//
// Complexity: O(S)
func ReconstructRoute(samples []model.GPSSample) Route {
	path := MonotonicPath(samples)

	route := Route{Polyline: make([]model.Location, 0, len(path))}
	for i, s := range path {
		route.Polyline = append(route.Polyline, s.Loc())
		if i > 0 {
			route.TotalDistanceKm += SegmentKm(path[i-1], s)
		}
	}
	return route
}

// RouteDistanceKm returns the total distance of an ordered waypoint list
// in kilometers, 0 for fewer than 2 points.
//
// Complexity: O(S)
func RouteDistanceKm(route []model.Location) float64 {
	total := 0.0
	for i := 0; i < len(route)-1; i++ {
		total += HaversineKm(route[i], route[i+1])
	}
	return total
}

// ─── Helpers ────────────────────────────────────────────────

func degToRad(deg float64) float64 {
	return deg * (math.Pi / 180.0)
}
