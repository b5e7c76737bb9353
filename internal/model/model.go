// Package model contains domain models for the haul-truck trip tracking core.
// These structs map to the PostgreSQL schema defined in migrations/001_create_schema.up.sql.
package model

import "time"

// ─── Enums ──────────────────────────────────────────────────

type Role string

const (
	RoleDriver  Role = "driver"
	RoleManager Role = "manager"
	RoleAdmin   Role = "admin"
)

// Elevated reports whether the role may act on trips it does not own.
func (r Role) Elevated() bool {
	return r == RoleManager || r == RoleAdmin
}

type TripStatus string

const (
	TripPlanning   TripStatus = "planning"
	TripInProgress TripStatus = "in_progress"
	TripCompleted  TripStatus = "completed"
	TripCancelled  TripStatus = "cancelled"
)

// Terminal reports whether the status has no outgoing transitions.
func (s TripStatus) Terminal() bool {
	return s == TripCompleted || s == TripCancelled
}

type TripPriority string

const (
	PriorityLow      TripPriority = "low"
	PriorityNormal   TripPriority = "normal"
	PriorityHigh     TripPriority = "high"
	PriorityCritical TripPriority = "critical"
)

// IsValid checks if the priority is a known value.
func (p TripPriority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

type VehicleStatus string

const (
	VehicleActive   VehicleStatus = "active"
	VehicleInactive VehicleStatus = "inactive"
)

// ─── Location ───────────────────────────────────────────────

// Location represents a WGS-84 geographic point (EPSG:4326).
type Location struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// ─── Caller ─────────────────────────────────────────────────

// Caller is the authenticated identity attached to every request by the
// access-guard middleware. The controller enforces ownership with it.
type Caller struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

// ─── Domain Models ──────────────────────────────────────────

// Vehicle maps to the `vehicles` table. Master data lives outside the
// core; only existence and registry status are consulted here. The
// availability-for-trip bit is derived from trip status, never stored.
type Vehicle struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	Status    VehicleStatus `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
}

// Trip maps to the `trips` table. One vehicle/driver assignment from
// start to end.
//
// Invariants:
//   - EndTime is set iff Status == completed.
//   - DurationSec = EndTime − StartTime when both are set, never negative.
//   - At most one in_progress trip exists per vehicle at any instant.
type Trip struct {
	ID                 string            `json:"id"`
	VehicleID          string            `json:"vehicle_id"`
	DriverID           string            `json:"driver_id"`
	Status             TripStatus        `json:"status"`
	StartTime          time.Time         `json:"start_time"`
	EndTime            *time.Time        `json:"end_time,omitempty"`
	PlannedRoute       []Location        `json:"planned_route,omitempty"`
	ExpectedDistanceKm float64           `json:"expected_distance_km"`
	ActualDistanceKm   float64           `json:"actual_distance_km"`
	DurationSec        int64             `json:"duration_sec"`
	Priority           TripPriority      `json:"priority"`
	Notes              string            `json:"notes,omitempty"`
	FuelConsumedL      float64           `json:"fuel_consumed_l"`
	FuelEffKmPerL      *float64          `json:"fuel_efficiency_km_per_l,omitempty"`
	Metadata           map[string]string `json:"metadata,omitempty"`
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at"`
}

// GPSSample maps to the `gps_samples` table. Owned exclusively by its
// trip, written only while the trip is in_progress, immutable afterwards
// and retained for audit.
//
// OutOfOrder marks samples that arrived with a timestamp older than the
// trip's newest applied sample; they are kept but excluded from distance
// accumulation (accept-and-flag policy).
type GPSSample struct {
	ID         string    `json:"id"`
	TripID     string    `json:"trip_id"`
	VehicleID  string    `json:"vehicle_id"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	AltitudeM  *float64  `json:"altitude_m,omitempty"`
	SpeedKmh   *float64  `json:"speed_kmh,omitempty"`
	AccuracyM  *float64  `json:"accuracy_m,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	OutOfOrder bool      `json:"out_of_order,omitempty"`
}

// Loc returns the sample position as a Location.
func (s GPSSample) Loc() Location {
	return Location{Lat: s.Latitude, Lon: s.Longitude}
}

// ─── Derived Views ──────────────────────────────────────────

// CostAnalysis breaks down the monetary cost of a trip. All unit costs
// are injected configuration, never engine constants.
type CostAnalysis struct {
	FuelCost        float64 `json:"fuel_cost"`
	MaintenanceCost float64 `json:"maintenance_cost"`
	TotalCost       float64 `json:"total_cost"`
}

// EfficiencyReport is recomputed on demand from a trip and its GPS track.
// It is a derived view, never authoritative state.
type EfficiencyReport struct {
	TripID           string       `json:"trip_id"`
	AverageSpeedKmh  float64      `json:"average_speed_kmh"`
	MaxSpeedKmh      float64      `json:"max_speed_kmh"`
	IdleTimeSec      int64        `json:"idle_time_sec"`
	FuelConsumptionL float64      `json:"fuel_consumption_l"`
	CarbonEmissionKg float64      `json:"carbon_emission_kg"`
	CostAnalysis     CostAnalysis `json:"cost_analysis"`
	PerformanceScore float64      `json:"performance_score"`
}

// StatsFilter narrows the trip set before fleet aggregation.
type StatsFilter struct {
	VehicleID string     `json:"vehicle_id,omitempty"`
	DriverID  string     `json:"driver_id,omitempty"`
	From      *time.Time `json:"from,omitempty"`
	To        *time.Time `json:"to,omitempty"`
}

// StatsBucket is one aggregation group (per vehicle, driver or day).
type StatsBucket struct {
	Key             string  `json:"key"`
	Trips           int64   `json:"trips"`
	TotalDistanceKm float64 `json:"total_distance_km"`
	TotalFuelL      float64 `json:"total_fuel_l"`
}

// FleetStatistics is the aggregate view over a filtered trip set,
// computed in a single streaming pass.
type FleetStatistics struct {
	TotalTrips       int64         `json:"total_trips"`
	ActiveTrips      int64         `json:"active_trips"`
	CompletedTrips   int64         `json:"completed_trips"`
	CancelledTrips   int64         `json:"cancelled_trips"`
	AvgDurationSec   float64       `json:"avg_duration_sec"`
	TotalDistanceKm  float64       `json:"total_distance_km"`
	TotalFuelL       float64       `json:"total_fuel_l"`
	AvgFuelEffKmPerL float64       `json:"avg_fuel_efficiency_km_per_l"`
	ByVehicle        []StatsBucket `json:"by_vehicle"`
	ByDriver         []StatsBucket `json:"by_driver"`
	ByDay            []StatsBucket `json:"by_day"`
}

// TripDetail bundles a trip with its GPS history and on-demand report.
type TripDetail struct {
	Trip   *Trip             `json:"trip"`
	Track  []GPSSample       `json:"track"`
	Report *EfficiencyReport `json:"report"`
}
