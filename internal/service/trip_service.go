// Package service contains the trip lifecycle controller and the
// efficiency engine. The controller is the single mutation path for
// trips; transport-facing code stays a thin, stateless wrapper around it.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/arjun/haultrack/internal/model"
	"github.com/arjun/haultrack/internal/repository"
	"github.com/arjun/haultrack/pkg/geo"
)

// TripStore persists trips and enforces the vehicle-exclusivity
// invariant through atomic check-and-set operations.
type TripStore interface {
	GetVehicle(ctx context.Context, id string) (*model.Vehicle, error)
	CreateTripExclusive(ctx context.Context, trip *model.Trip) error
	CreateTrip(ctx context.Context, trip *model.Trip) error
	StartTrip(ctx context.Context, tripID string, at time.Time) (*model.Trip, error)
	GetTrip(ctx context.Context, id string) (*model.Trip, error)
	AddDistance(ctx context.Context, tripID string, km float64) error
	CompleteTrip(ctx context.Context, trip *model.Trip) error
	CancelTrip(ctx context.Context, tripID string) (*model.Trip, error)
	UpdateTrip(ctx context.Context, trip *model.Trip) error
}

// TrackStore is the append-only GPS sample log.
type TrackStore interface {
	AppendSample(ctx context.Context, s *model.GPSSample) error
	SamplesForTrip(ctx context.Context, tripID string) ([]model.GPSSample, error)
	LastApplied(ctx context.Context, tripID string) (*model.GPSSample, error)
}

// ─── Inputs ─────────────────────────────────────────────────

// CreateTripInput is the validated payload for trip creation.
type CreateTripInput struct {
	VehicleID          string             `json:"vehicle_id"`
	DriverID           string             `json:"driver_id"`
	Planned            bool               `json:"planned"`
	StartLocation      *model.Location    `json:"start_location,omitempty"`
	PlannedRoute       []model.Location   `json:"planned_route,omitempty"`
	ExpectedDistanceKm float64            `json:"expected_distance_km"`
	Priority           model.TripPriority `json:"priority"`
	Notes              string             `json:"notes"`
	Metadata           map[string]string  `json:"metadata,omitempty"`
}

// SampleInput is one telemetry reading.
type SampleInput struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	AltitudeM *float64  `json:"altitude_m,omitempty"`
	SpeedKmh  *float64  `json:"speed_kmh,omitempty"`
	AccuracyM *float64  `json:"accuracy_m,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// EndTripInput closes a trip.
type EndTripInput struct {
	EndLocation        *model.Location `json:"end_location,omitempty"`
	ReportedDistanceKm *float64        `json:"reported_distance_km,omitempty"`
	FuelConsumedL      float64         `json:"fuel_consumed_l"`
}

// UpdateTripInput is the restricted mutable field set. Nothing here can
// move the state machine.
type UpdateTripInput struct {
	Priority           *model.TripPriority `json:"priority,omitempty"`
	Notes              *string             `json:"notes,omitempty"`
	PlannedRoute       *[]model.Location   `json:"planned_route,omitempty"`
	ExpectedDistanceKm *float64            `json:"expected_distance_km,omitempty"`
	Metadata           map[string]string   `json:"metadata,omitempty"`
}

// EndTripResult pairs the completed trip with its efficiency report.
type EndTripResult struct {
	Trip   *model.Trip             `json:"trip"`
	Report *model.EfficiencyReport `json:"report"`
}

// ─── TripService ────────────────────────────────────────────

// TripService is the trip lifecycle controller.
//
// State machine: planning --start--> in_progress --end--> completed;
// {planning, in_progress} --cancel--> cancelled. No edge leaves a
// terminal state, and no operation here bypasses the machine.
type TripService struct {
	trips  TripStore
	track  TrackStore
	engine *EfficiencyEngine
}

// NewTripService creates the controller.
func NewTripService(trips TripStore, track TrackStore, engine *EfficiencyEngine) *TripService {
	return &TripService{trips: trips, track: track, engine: engine}
}

// Create creates a trip, by default directly in_progress with the
// vehicle atomically reserved (create ≡ start). With Planned set the
// trip is created in planning and holds no reservation.
func (s *TripService) Create(ctx context.Context, caller model.Caller, in CreateTripInput) (*model.Trip, error) {
	if in.VehicleID == "" {
		return nil, model.Validationf("vehicle_id is required")
	}
	if in.DriverID == "" {
		in.DriverID = caller.ID
	}
	if !caller.Role.Elevated() && in.DriverID != caller.ID {
		return nil, model.Forbiddenf("drivers may only create trips for themselves")
	}
	if in.Priority == "" {
		in.Priority = model.PriorityNormal
	}
	if !in.Priority.IsValid() {
		return nil, model.Validationf("unknown priority %q", in.Priority)
	}
	if in.StartLocation != nil && !geo.IsValidCoordinates(in.StartLocation.Lat, in.StartLocation.Lon) {
		return nil, model.Validationf("start location out of range")
	}
	for _, wp := range in.PlannedRoute {
		if !geo.IsValidCoordinates(wp.Lat, wp.Lon) {
			return nil, model.Validationf("planned route waypoint out of range")
		}
	}
	if in.ExpectedDistanceKm < 0 {
		return nil, model.Validationf("expected_distance_km must be >= 0")
	}

	vehicle, err := s.trips.GetVehicle(ctx, in.VehicleID)
	if err != nil {
		return nil, classify(err)
	}
	if vehicle.Status != model.VehicleActive {
		return nil, model.Conflictf("vehicle %s is not active", vehicle.ID)
	}

	trip := &model.Trip{
		ID:                 uuid.NewString(),
		VehicleID:          in.VehicleID,
		DriverID:           in.DriverID,
		Status:             model.TripInProgress,
		StartTime:          time.Now().UTC(),
		PlannedRoute:       in.PlannedRoute,
		ExpectedDistanceKm: in.ExpectedDistanceKm,
		Priority:           in.Priority,
		Notes:              in.Notes,
		Metadata:           in.Metadata,
	}

	if in.Planned {
		trip.Status = model.TripPlanning
		if err := s.trips.CreateTrip(ctx, trip); err != nil {
			return nil, classify(err)
		}
		log.Infof("[trip] created planning trip %s (vehicle %s, driver %s)",
			trip.ID, trip.VehicleID, trip.DriverID)
		return trip, nil
	}

	if err := s.trips.CreateTripExclusive(ctx, trip); err != nil {
		return nil, classify(err)
	}
	log.Infof("[trip] started trip %s (vehicle %s, driver %s)",
		trip.ID, trip.VehicleID, trip.DriverID)

	if in.StartLocation != nil {
		sample := &model.GPSSample{
			ID:        uuid.NewString(),
			TripID:    trip.ID,
			VehicleID: trip.VehicleID,
			Latitude:  in.StartLocation.Lat,
			Longitude: in.StartLocation.Lon,
			Timestamp: trip.StartTime,
		}
		if err := s.track.AppendSample(ctx, sample); err != nil {
			return nil, fmt.Errorf("append initial sample: %w", err)
		}
	}
	return trip, nil
}

// Start moves a planning trip to in_progress, reserving the vehicle
// with the same atomic check-and-set as a direct in-progress create.
func (s *TripService) Start(ctx context.Context, caller model.Caller, tripID string) (*model.Trip, error) {
	trip, err := s.lookupTrip(ctx, tripID)
	if err != nil {
		return nil, err
	}
	if err := authorize(caller, trip); err != nil {
		return nil, err
	}

	started, err := s.trips.StartTrip(ctx, tripID, time.Now().UTC())
	if err != nil {
		return nil, classify(err)
	}
	log.Infof("[trip] trip %s now in progress (vehicle %s)", started.ID, started.VehicleID)
	return started, nil
}

// RecordLocation appends one GPS sample to an in-progress trip.
//
// Out-of-order samples are accepted and flagged: they are kept for
// audit but never advance the running distance, which accumulates only
// over the monotonic-timestamp subsequence.
func (s *TripService) RecordLocation(ctx context.Context, caller model.Caller, tripID string, in SampleInput) (*model.GPSSample, error) {
	trip, err := s.lookupTrip(ctx, tripID)
	if err != nil {
		return nil, err
	}
	if err := authorize(caller, trip); err != nil {
		return nil, err
	}
	if trip.Status != model.TripInProgress {
		return nil, model.Conflictf("trip %s is %s, not accepting telemetry", trip.ID, trip.Status)
	}
	if !geo.IsValidCoordinates(in.Latitude, in.Longitude) {
		return nil, model.Validationf("coordinates out of range: (%v, %v)", in.Latitude, in.Longitude)
	}
	if in.SpeedKmh != nil && *in.SpeedKmh < 0 {
		return nil, model.Validationf("speed_kmh must be >= 0")
	}

	ts := in.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	last, err := s.track.LastApplied(ctx, tripID)
	if err != nil {
		return nil, err
	}

	sample := &model.GPSSample{
		ID:        uuid.NewString(),
		TripID:    trip.ID,
		VehicleID: trip.VehicleID,
		Latitude:  in.Latitude,
		Longitude: in.Longitude,
		AltitudeM: in.AltitudeM,
		SpeedKmh:  in.SpeedKmh,
		AccuracyM: in.AccuracyM,
		Timestamp: ts,
	}
	if last != nil && ts.Before(last.Timestamp) {
		sample.OutOfOrder = true
	}

	if err := s.track.AppendSample(ctx, sample); err != nil {
		return nil, err
	}

	if !sample.OutOfOrder && last != nil {
		if seg := geo.SegmentKm(*last, *sample); seg > 0 {
			if err := s.trips.AddDistance(ctx, tripID, seg); err != nil {
				return nil, classify(err)
			}
		}
	}
	return sample, nil
}

// End completes an in-progress trip and returns it with its report.
//
// Actual distance is the caller-reported override when given, otherwise
// the reconstructed route total (0 for fewer than 2 usable samples).
// The conditional completion in the store guarantees a second end is a
// conflict and never mutates the first result.
func (s *TripService) End(ctx context.Context, caller model.Caller, tripID string, in EndTripInput) (*EndTripResult, error) {
	trip, err := s.lookupTrip(ctx, tripID)
	if err != nil {
		return nil, err
	}
	if err := authorize(caller, trip); err != nil {
		return nil, err
	}
	if trip.Status != model.TripInProgress {
		return nil, model.Conflictf("trip %s is %s, cannot end", trip.ID, trip.Status)
	}
	if in.ReportedDistanceKm != nil && *in.ReportedDistanceKm < 0 {
		return nil, model.Validationf("reported_distance_km must be >= 0")
	}
	if in.FuelConsumedL < 0 {
		return nil, model.Validationf("fuel_consumed_l must be >= 0")
	}

	now := time.Now().UTC()

	if in.EndLocation != nil {
		if !geo.IsValidCoordinates(in.EndLocation.Lat, in.EndLocation.Lon) {
			return nil, model.Validationf("end location out of range")
		}
		final := &model.GPSSample{
			ID:        uuid.NewString(),
			TripID:    trip.ID,
			VehicleID: trip.VehicleID,
			Latitude:  in.EndLocation.Lat,
			Longitude: in.EndLocation.Lon,
			Timestamp: now,
		}
		if err := s.track.AppendSample(ctx, final); err != nil {
			return nil, err
		}
	}

	samples, err := s.track.SamplesForTrip(ctx, tripID)
	if err != nil {
		return nil, err
	}

	if in.ReportedDistanceKm != nil {
		trip.ActualDistanceKm = *in.ReportedDistanceKm
	} else {
		trip.ActualDistanceKm = geo.ReconstructRoute(samples).TotalDistanceKm
	}

	durationSec := int64(now.Sub(trip.StartTime).Seconds())
	if durationSec < 0 {
		durationSec = 0
	}

	trip.Status = model.TripCompleted
	trip.EndTime = &now
	trip.DurationSec = durationSec
	trip.FuelConsumedL = in.FuelConsumedL
	trip.FuelEffKmPerL = nil
	if in.FuelConsumedL > 0 {
		eff := trip.ActualDistanceKm / in.FuelConsumedL
		trip.FuelEffKmPerL = &eff
	}

	if err := s.trips.CompleteTrip(ctx, trip); err != nil {
		return nil, classify(err)
	}
	log.Infof("[trip] completed trip %s: %.2f km in %ds (vehicle %s released)",
		trip.ID, trip.ActualDistanceKm, trip.DurationSec, trip.VehicleID)

	return &EndTripResult{
		Trip:   trip,
		Report: s.engine.Report(trip, samples),
	}, nil
}

// Cancel aborts a planning or in_progress trip. The vehicle is released
// synchronously before this returns.
func (s *TripService) Cancel(ctx context.Context, caller model.Caller, tripID string) (*model.Trip, error) {
	trip, err := s.lookupTrip(ctx, tripID)
	if err != nil {
		return nil, err
	}
	if err := authorize(caller, trip); err != nil {
		return nil, err
	}

	cancelled, err := s.trips.CancelTrip(ctx, tripID)
	if err != nil {
		return nil, classify(err)
	}
	log.Infof("[trip] cancelled trip %s (vehicle %s released)", cancelled.ID, cancelled.VehicleID)
	return cancelled, nil
}

// Update writes the restricted mutable field set on a non-terminal trip.
func (s *TripService) Update(ctx context.Context, caller model.Caller, tripID string, in UpdateTripInput) (*model.Trip, error) {
	trip, err := s.lookupTrip(ctx, tripID)
	if err != nil {
		return nil, err
	}
	if err := authorize(caller, trip); err != nil {
		return nil, err
	}

	if in.Priority != nil {
		if !in.Priority.IsValid() {
			return nil, model.Validationf("unknown priority %q", *in.Priority)
		}
		trip.Priority = *in.Priority
	}
	if in.Notes != nil {
		trip.Notes = *in.Notes
	}
	if in.PlannedRoute != nil {
		for _, wp := range *in.PlannedRoute {
			if !geo.IsValidCoordinates(wp.Lat, wp.Lon) {
				return nil, model.Validationf("planned route waypoint out of range")
			}
		}
		trip.PlannedRoute = *in.PlannedRoute
	}
	if in.ExpectedDistanceKm != nil {
		if *in.ExpectedDistanceKm < 0 {
			return nil, model.Validationf("expected_distance_km must be >= 0")
		}
		trip.ExpectedDistanceKm = *in.ExpectedDistanceKm
	}
	if in.Metadata != nil {
		trip.Metadata = in.Metadata
	}

	if err := s.trips.UpdateTrip(ctx, trip); err != nil {
		return nil, classify(err)
	}
	return s.trips.GetTrip(ctx, tripID)
}

// Detail returns a trip with its full GPS history and an on-demand
// efficiency report.
func (s *TripService) Detail(ctx context.Context, caller model.Caller, tripID string) (*model.TripDetail, error) {
	trip, err := s.lookupTrip(ctx, tripID)
	if err != nil {
		return nil, err
	}
	if err := authorize(caller, trip); err != nil {
		return nil, err
	}

	samples, err := s.track.SamplesForTrip(ctx, tripID)
	if err != nil {
		return nil, err
	}

	return &model.TripDetail{
		Trip:   trip,
		Track:  samples,
		Report: s.engine.Report(trip, samples),
	}, nil
}

// ─── Policy & classification ────────────────────────────────

// lookupTrip validates the id shape before querying. trips.id is a
// UUID column; a malformed id can never name a trip, so it maps to
// not-found here instead of a bind error surfacing as internal.
func (s *TripService) lookupTrip(ctx context.Context, tripID string) (*model.Trip, error) {
	if _, err := uuid.Parse(tripID); err != nil {
		return nil, model.NotFoundf("trip not found")
	}
	trip, err := s.trips.GetTrip(ctx, tripID)
	if err != nil {
		return nil, classify(err)
	}
	return trip, nil
}

// authorize enforces the ownership policy: the owning driver may act on
// their own trip, elevated roles on any. The trip is known to exist at
// this point, so a mismatch is forbidden, not not-found.
func authorize(caller model.Caller, trip *model.Trip) error {
	if caller.Role.Elevated() {
		return nil
	}
	if caller.Role == model.RoleDriver && caller.ID == trip.DriverID {
		return nil
	}
	return model.Forbiddenf("caller may not act on trip %s", trip.ID)
}

// classify maps store signals onto the caller-facing error taxonomy.
func classify(err error) error {
	switch {
	case errors.Is(err, repository.ErrVehicleNotFound):
		return model.NotFoundf("vehicle not found")
	case errors.Is(err, repository.ErrTripNotFound):
		return model.NotFoundf("trip not found")
	case errors.Is(err, repository.ErrVehicleBusy):
		return model.Conflictf("vehicle already has an in-progress trip")
	case errors.Is(err, repository.ErrTripNotPlanning):
		return model.Conflictf("trip is not in planning")
	case errors.Is(err, repository.ErrTripNotActive):
		return model.Conflictf("trip is not in progress")
	case errors.Is(err, repository.ErrTripTerminal):
		return model.Conflictf("trip is already completed or cancelled")
	}
	return err
}
