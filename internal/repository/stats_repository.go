package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/arjun/haultrack/internal/model"
)

// StatsRepository streams filtered trip rows for fleet aggregation and
// caches computed statistics in Redis.
type StatsRepository struct {
	pool  *pgxpool.Pool
	redis *redis.Client
}

// NewStatsRepository creates a new stats repository.
func NewStatsRepository(pool *pgxpool.Pool, redis *redis.Client) *StatsRepository {
	return &StatsRepository{pool: pool, redis: redis}
}

// StatRow is the per-trip projection the engine aggregates over.
type StatRow struct {
	VehicleID   string
	DriverID    string
	Status      model.TripStatus
	StartTime   time.Time
	DurationSec int64
	DistanceKm  float64
	FuelL       float64
	FuelEff     *float64
}

// ForEachTrip streams the filtered trip set row by row: a single query
// and a single pass, cost linear in the result size. The engine folds
// each row into its aggregates without materializing the full set.
func (r *StatsRepository) ForEachTrip(
	ctx context.Context,
	f model.StatsFilter,
	fn func(StatRow) error,
) error {
	query := `
		SELECT vehicle_id, driver_id, status, start_time,
		       duration_sec, actual_distance_km, fuel_consumed_l, fuel_eff_km_per_l
		FROM trips
		WHERE 1=1`
	args := []any{}

	if f.VehicleID != "" {
		args = append(args, f.VehicleID)
		query += ` AND vehicle_id = $` + strconv.Itoa(len(args))
	}
	if f.DriverID != "" {
		args = append(args, f.DriverID)
		query += ` AND driver_id = $` + strconv.Itoa(len(args))
	}
	if f.From != nil {
		args = append(args, *f.From)
		query += ` AND start_time >= $` + strconv.Itoa(len(args))
	}
	if f.To != nil {
		args = append(args, *f.To)
		query += ` AND start_time < $` + strconv.Itoa(len(args))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("stats query: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var row StatRow
		if err := rows.Scan(
			&row.VehicleID, &row.DriverID, &row.Status, &row.StartTime,
			&row.DurationSec, &row.DistanceKm, &row.FuelL, &row.FuelEff,
		); err != nil {
			return fmt.Errorf("scan stats row: %w", err)
		}
		if err := fn(row); err != nil {
			return err
		}
	}
	return rows.Err()
}

// ─── Redis-backed cache ─────────────────────────────────────

const statsKeyPrefix = "fleetstats:"

// cacheKey derives a stable key from the filter.
func cacheKey(f model.StatsFilter) string {
	from, to := int64(0), int64(0)
	if f.From != nil {
		from = f.From.Unix()
	}
	if f.To != nil {
		to = f.To.Unix()
	}
	return fmt.Sprintf("%s%s:%s:%d:%d", statsKeyPrefix, f.VehicleID, f.DriverID, from, to)
}

// GetCachedStats returns the cached statistics for a filter, or nil on
// miss. Cache errors count as misses; statistics must still be served
// when Redis is down.
func (r *StatsRepository) GetCachedStats(ctx context.Context, f model.StatsFilter) *model.FleetStatistics {
	raw, err := r.redis.Get(ctx, cacheKey(f)).Bytes()
	if err != nil {
		return nil
	}
	stats := &model.FleetStatistics{}
	if err := json.Unmarshal(raw, stats); err != nil {
		return nil
	}
	return stats
}

// CacheStats stores computed statistics with the given TTL. Best effort.
func (r *StatsRepository) CacheStats(ctx context.Context, f model.StatsFilter, stats *model.FleetStatistics, ttl time.Duration) error {
	raw, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("cache stats: marshal: %w", err)
	}
	return r.redis.Set(ctx, cacheKey(f), raw, ttl).Err()
}
