package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arjun/haultrack/internal/model"
)

// TrackRepository is the append-only per-trip log of GPS samples.
// Samples are never updated or deleted; completed trips keep their full
// track for audit.
type TrackRepository struct {
	pool *pgxpool.Pool
}

// NewTrackRepository creates a new repository backed by the given PG pool.
func NewTrackRepository(pool *pgxpool.Pool) *TrackRepository {
	return &TrackRepository{pool: pool}
}

const sampleColumns = `
	id, trip_id, vehicle_id, latitude, longitude,
	altitude_m, speed_kmh, accuracy_m, ts, out_of_order`

// AppendSample appends one sample to a trip's track.
func (r *TrackRepository) AppendSample(ctx context.Context, s *model.GPSSample) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO gps_samples (
			id, trip_id, vehicle_id, latitude, longitude,
			altitude_m, speed_kmh, accuracy_m, ts, out_of_order
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, s.ID, s.TripID, s.VehicleID, s.Latitude, s.Longitude,
		s.AltitudeM, s.SpeedKmh, s.AccuracyM, s.Timestamp, s.OutOfOrder)
	if err != nil {
		return fmt.Errorf("append sample to trip %s: %w", s.TripID, err)
	}
	return nil
}

// SamplesForTrip returns a trip's full track ordered by timestamp
// (arrival order breaks ties, so replays are deterministic).
func (r *TrackRepository) SamplesForTrip(ctx context.Context, tripID string) ([]model.GPSSample, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+sampleColumns+`
		FROM gps_samples
		WHERE trip_id = $1
		ORDER BY ts ASC, seq ASC
	`, tripID)
	if err != nil {
		return nil, fmt.Errorf("samples for trip %s: %w", tripID, err)
	}
	defer rows.Close()

	var samples []model.GPSSample
	for rows.Next() {
		var s model.GPSSample
		if err := rows.Scan(
			&s.ID, &s.TripID, &s.VehicleID, &s.Latitude, &s.Longitude,
			&s.AltitudeM, &s.SpeedKmh, &s.AccuracyM, &s.Timestamp, &s.OutOfOrder,
		); err != nil {
			return nil, fmt.Errorf("scan sample: %w", err)
		}
		samples = append(samples, s)
	}
	return samples, rows.Err()
}

// LastApplied returns the newest in-order sample of a trip, or nil when
// the track is empty. Out-of-order samples never become the cursor the
// running distance accumulates from.
func (r *TrackRepository) LastApplied(ctx context.Context, tripID string) (*model.GPSSample, error) {
	s := &model.GPSSample{}
	err := r.pool.QueryRow(ctx, `
		SELECT `+sampleColumns+`
		FROM gps_samples
		WHERE trip_id = $1 AND out_of_order = false
		ORDER BY ts DESC, seq DESC
		LIMIT 1
	`, tripID).Scan(
		&s.ID, &s.TripID, &s.VehicleID, &s.Latitude, &s.Longitude,
		&s.AltitudeM, &s.SpeedKmh, &s.AccuracyM, &s.Timestamp, &s.OutOfOrder,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("last sample for trip %s: %w", tripID, err)
	}
	return s, nil
}
