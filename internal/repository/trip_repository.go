// Package repository provides database access for the trip tracking core.
//
// TripRepository owns the vehicle-availability invariant: at most one
// in_progress trip per vehicle, enforced with pessimistic locking
// (SELECT ... FOR UPDATE) against the persisted trip status, never an
// in-process lock, so it holds across workers and processes.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arjun/haultrack/internal/model"
)

// Distinguishable signals the service layer maps onto the error taxonomy.
var (
	ErrVehicleNotFound = errors.New("vehicle not found")
	ErrVehicleBusy     = errors.New("vehicle already has an in-progress trip")
	ErrTripNotFound    = errors.New("trip not found")
	ErrTripNotActive   = errors.New("trip is not in progress")
	ErrTripNotPlanning = errors.New("trip is not in planning")
	ErrTripTerminal    = errors.New("trip is in a terminal state")
)

// DefaultTxTimeout bounds a reservation transaction, including lock wait.
const DefaultTxTimeout = 5 * time.Second

// TripRepository handles trip persistence and vehicle reservation.
type TripRepository struct {
	pool *pgxpool.Pool
}

// NewTripRepository creates a new repository backed by the given PG pool.
func NewTripRepository(pool *pgxpool.Pool) *TripRepository {
	return &TripRepository{pool: pool}
}

const tripColumns = `
	id, vehicle_id, driver_id, status, start_time, end_time,
	planned_route, expected_distance_km, actual_distance_km, duration_sec,
	priority, notes, fuel_consumed_l, fuel_eff_km_per_l, metadata,
	created_at, updated_at`

// ─── Vehicle registry ───────────────────────────────────────

// GetVehicle fetches vehicle master data. The core consults only
// existence and registry status here.
func (r *TripRepository) GetVehicle(ctx context.Context, id string) (*model.Vehicle, error) {
	v := &model.Vehicle{}
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, status, created_at
		FROM vehicles
		WHERE id = $1
	`, id).Scan(&v.ID, &v.Name, &v.Status, &v.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrVehicleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get vehicle %s: %w", id, err)
	}
	return v, nil
}

// ─── Reservation (the availability coordinator) ─────────────

// CreateTripExclusive atomically reserves the vehicle and inserts the
// trip as in_progress.
//
// Concurrency strategy: PESSIMISTIC LOCKING
//
//	T1: BEGIN → SELECT vehicle FOR UPDATE → (vehicle row LOCKED)
//	T2: BEGIN → SELECT vehicle FOR UPDATE → (BLOCKS on T1's lock)
//	T1: no in_progress trip → INSERT → COMMIT → (lock released)
//	T2: (unblocked) → re-counts → finds T1's trip → ErrVehicleBusy
//
// The in-progress count reads the authoritative trip status inside the
// same transaction, so concurrent starts for one vehicle serialize and
// exactly one wins.
func (r *TripRepository) CreateTripExclusive(ctx context.Context, trip *model.Trip) error {
	ctx, cancel := context.WithTimeout(ctx, DefaultTxTimeout)
	defer cancel()

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("reserve: begin tx: %w", err)
	}
	// Defer rollback, a no-op if tx was already committed.
	defer tx.Rollback(ctx)

	if err := lockVehicleFree(ctx, tx, trip.VehicleID, ""); err != nil {
		return err
	}

	if err := insertTrip(ctx, tx, trip); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("reserve: commit: %w", err)
	}
	return nil
}

// CreateTrip inserts a planning trip. No reservation: the availability
// invariant only constrains in_progress trips.
func (r *TripRepository) CreateTrip(ctx context.Context, trip *model.Trip) error {
	if err := insertTrip(ctx, r.pool, trip); err != nil {
		return err
	}
	return nil
}

// StartTrip transitions a planning trip to in_progress under the same
// vehicle reservation as CreateTripExclusive.
func (r *TripRepository) StartTrip(ctx context.Context, tripID string, at time.Time) (*model.Trip, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultTxTimeout)
	defer cancel()

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("start: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	// Lock the trip row first so concurrent starts of the same trip
	// serialize too.
	var status model.TripStatus
	var vehicleID string
	err = tx.QueryRow(ctx, `
		SELECT status, vehicle_id FROM trips WHERE id = $1 FOR UPDATE
	`, tripID).Scan(&status, &vehicleID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrTripNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("start: lock trip %s: %w", tripID, err)
	}
	if status != model.TripPlanning {
		return nil, ErrTripNotPlanning
	}

	if err := lockVehicleFree(ctx, tx, vehicleID, tripID); err != nil {
		return nil, err
	}

	row := tx.QueryRow(ctx, `
		UPDATE trips
		SET status = 'in_progress', start_time = $2, updated_at = now()
		WHERE id = $1
		RETURNING `+tripColumns, tripID, at)
	trip, err := scanTrip(row)
	if err != nil {
		return nil, fmt.Errorf("start: update trip %s: %w", tripID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("start: commit: %w", err)
	}
	return trip, nil
}

// lockVehicleFree locks the vehicle row and verifies it has no
// in_progress trip (other than excludeTripID). Returns ErrVehicleBusy
// on a reservation conflict so the caller can surface it as such
// instead of silently overwriting state.
func lockVehicleFree(ctx context.Context, tx pgx.Tx, vehicleID, excludeTripID string) error {
	var vehicleStatus model.VehicleStatus
	err := tx.QueryRow(ctx, `
		SELECT status FROM vehicles WHERE id = $1 FOR UPDATE
	`, vehicleID).Scan(&vehicleStatus)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrVehicleNotFound
	}
	if err != nil {
		return fmt.Errorf("reserve: lock vehicle %s: %w", vehicleID, err)
	}

	var active int
	query, args := activeTripCountQuery(vehicleID, excludeTripID)
	err = tx.QueryRow(ctx, query, args...).Scan(&active)
	if err != nil {
		return fmt.Errorf("reserve: count active trips for %s: %w", vehicleID, err)
	}
	if active > 0 {
		return ErrVehicleBusy
	}
	return nil
}

// activeTripCountQuery builds the in-progress count for a vehicle. The
// exclusion is appended only when excludeTripID is set: trips.id is a
// UUID column, so an empty string must never reach the bind phase.
func activeTripCountQuery(vehicleID, excludeTripID string) (string, []any) {
	query := `
		SELECT COUNT(*)::int
		FROM trips
		WHERE vehicle_id = $1
		  AND status = 'in_progress'`
	args := []any{vehicleID}
	if excludeTripID != "" {
		args = append(args, excludeTripID)
		query += `
		  AND id != $2`
	}
	return query, args
}

// ─── Reads ──────────────────────────────────────────────────

// querier lets insert/select helpers run on a pool or inside a tx.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// GetTrip fetches a single trip by ID.
func (r *TripRepository) GetTrip(ctx context.Context, id string) (*model.Trip, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+tripColumns+` FROM trips WHERE id = $1`, id)
	trip, err := scanTrip(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrTripNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get trip %s: %w", id, err)
	}
	return trip, nil
}

// ─── Mutations ──────────────────────────────────────────────

// AddDistance accumulates running distance from in-order GPS segments.
func (r *TripRepository) AddDistance(ctx context.Context, tripID string, km float64) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE trips
		SET actual_distance_km = actual_distance_km + $2, updated_at = now()
		WHERE id = $1 AND status = 'in_progress'
	`, tripID, km)
	if err != nil {
		return fmt.Errorf("add distance to trip %s: %w", tripID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTripNotActive
	}
	return nil
}

// CompleteTrip flips an in_progress trip to completed with its final
// figures. The conditional WHERE is the check-and-set: a trip that
// already left in_progress is not touched, so a second end never
// mutates the first result. The status flip releases the vehicle.
func (r *TripRepository) CompleteTrip(ctx context.Context, trip *model.Trip) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE trips
		SET status = 'completed',
		    end_time = $2,
		    duration_sec = $3,
		    actual_distance_km = $4,
		    fuel_consumed_l = $5,
		    fuel_eff_km_per_l = $6,
		    updated_at = now()
		WHERE id = $1 AND status = 'in_progress'
	`, trip.ID, trip.EndTime, trip.DurationSec, trip.ActualDistanceKm,
		trip.FuelConsumedL, trip.FuelEffKmPerL)
	if err != nil {
		return fmt.Errorf("complete trip %s: %w", trip.ID, err)
	}
	if tag.RowsAffected() == 0 {
		if _, gerr := r.GetTrip(ctx, trip.ID); gerr != nil {
			return gerr
		}
		return ErrTripNotActive
	}
	return nil
}

// CancelTrip cancels a planning or in_progress trip. The conditional
// status flip releases the vehicle synchronously before this returns.
func (r *TripRepository) CancelTrip(ctx context.Context, tripID string) (*model.Trip, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE trips
		SET status = 'cancelled', updated_at = now()
		WHERE id = $1 AND status IN ('planning', 'in_progress')
		RETURNING `+tripColumns, tripID)
	trip, err := scanTrip(row)
	if errors.Is(err, pgx.ErrNoRows) {
		if _, gerr := r.GetTrip(ctx, tripID); gerr != nil {
			return nil, gerr
		}
		return nil, ErrTripTerminal
	}
	if err != nil {
		return nil, fmt.Errorf("cancel trip %s: %w", tripID, err)
	}
	return trip, nil
}

// UpdateTrip writes the restricted mutable field set. Status, timing and
// telemetry-derived figures are never written here; the state machine
// cannot be bypassed through update.
func (r *TripRepository) UpdateTrip(ctx context.Context, trip *model.Trip) error {
	routeJSON, err := json.Marshal(trip.PlannedRoute)
	if err != nil {
		return fmt.Errorf("update trip %s: marshal route: %w", trip.ID, err)
	}
	metaJSON, err := json.Marshal(trip.Metadata)
	if err != nil {
		return fmt.Errorf("update trip %s: marshal metadata: %w", trip.ID, err)
	}

	tag, err := r.pool.Exec(ctx, `
		UPDATE trips
		SET priority = $2,
		    notes = $3,
		    planned_route = $4,
		    expected_distance_km = $5,
		    metadata = $6,
		    updated_at = now()
		WHERE id = $1 AND status IN ('planning', 'in_progress')
	`, trip.ID, trip.Priority, trip.Notes, routeJSON, trip.ExpectedDistanceKm, metaJSON)
	if err != nil {
		return fmt.Errorf("update trip %s: %w", trip.ID, err)
	}
	if tag.RowsAffected() == 0 {
		if _, gerr := r.GetTrip(ctx, trip.ID); gerr != nil {
			return gerr
		}
		return ErrTripTerminal
	}
	return nil
}

// ─── Helpers ────────────────────────────────────────────────

func insertTrip(ctx context.Context, q querier, trip *model.Trip) error {
	routeJSON, err := json.Marshal(trip.PlannedRoute)
	if err != nil {
		return fmt.Errorf("insert trip: marshal route: %w", err)
	}
	metaJSON, err := json.Marshal(trip.Metadata)
	if err != nil {
		return fmt.Errorf("insert trip: marshal metadata: %w", err)
	}

	err = q.QueryRow(ctx, `
		INSERT INTO trips (
			id, vehicle_id, driver_id, status, start_time,
			planned_route, expected_distance_km, actual_distance_km,
			duration_sec, priority, notes, fuel_consumed_l, metadata
		) VALUES ($1, $2, $3, $4, $5, $6, $7, 0, 0, $8, $9, 0, $10)
		RETURNING created_at, updated_at
	`, trip.ID, trip.VehicleID, trip.DriverID, trip.Status, trip.StartTime,
		routeJSON, trip.ExpectedDistanceKm, trip.Priority, trip.Notes, metaJSON,
	).Scan(&trip.CreatedAt, &trip.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert trip: %w", err)
	}
	return nil
}

func scanTrip(row pgx.Row) (*model.Trip, error) {
	trip := &model.Trip{}
	var routeJSON, metaJSON []byte

	err := row.Scan(
		&trip.ID, &trip.VehicleID, &trip.DriverID, &trip.Status,
		&trip.StartTime, &trip.EndTime,
		&routeJSON, &trip.ExpectedDistanceKm, &trip.ActualDistanceKm,
		&trip.DurationSec, &trip.Priority, &trip.Notes,
		&trip.FuelConsumedL, &trip.FuelEffKmPerL, &metaJSON,
		&trip.CreatedAt, &trip.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(routeJSON) > 0 {
		if err := json.Unmarshal(routeJSON, &trip.PlannedRoute); err != nil {
			return nil, fmt.Errorf("scan trip %s: route: %w", trip.ID, err)
		}
	}
	if len(metaJSON) > 0 {
		if err := json.Unmarshal(metaJSON, &trip.Metadata); err != nil {
			return nil, fmt.Errorf("scan trip %s: metadata: %w", trip.ID, err)
		}
	}
	return trip, nil
}
