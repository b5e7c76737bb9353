package service

import (
	"context"
	"sort"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/arjun/haultrack/config"
	"github.com/arjun/haultrack/internal/model"
	"github.com/arjun/haultrack/internal/repository"
	"github.com/arjun/haultrack/pkg/geo"
)

// StatsStore streams filtered trip rows and caches computed aggregates.
type StatsStore interface {
	ForEachTrip(ctx context.Context, f model.StatsFilter, fn func(repository.StatRow) error) error
	GetCachedStats(ctx context.Context, f model.StatsFilter) *model.FleetStatistics
	CacheStats(ctx context.Context, f model.StatsFilter, stats *model.FleetStatistics, ttl time.Duration) error
}

// ─── EfficiencyEngine ───────────────────────────────────────

// EfficiencyEngine derives per-trip and fleet-wide metrics from trips
// and their GPS tracks. Every factor it multiplies by (idle threshold,
// emission factor, unit costs) is injected configuration, so the math
// stays policy-agnostic. Reports are views, never authoritative state.
type EfficiencyEngine struct {
	cfg   config.EngineConfig
	stats StatsStore
}

// NewEfficiencyEngine creates an engine with the given factors.
func NewEfficiencyEngine(cfg config.EngineConfig, stats StatsStore) *EfficiencyEngine {
	return &EfficiencyEngine{cfg: cfg, stats: stats}
}

// Report computes the efficiency view for one trip.
//
// averageSpeed = distance / (duration/3600) when duration > 0, else 0.
// idleTime sums inter-sample intervals whose leading sample reports a
// speed below the configured idle threshold, over the monotonic track.
func (e *EfficiencyEngine) Report(trip *model.Trip, samples []model.GPSSample) *model.EfficiencyReport {
	report := &model.EfficiencyReport{
		TripID:           trip.ID,
		FuelConsumptionL: trip.FuelConsumedL,
	}

	durationSec := trip.DurationSec
	if durationSec == 0 && trip.Status == model.TripInProgress {
		// Live view of a running trip.
		durationSec = int64(time.Since(trip.StartTime).Seconds())
	}

	if durationSec > 0 {
		report.AverageSpeedKmh = trip.ActualDistanceKm / (float64(durationSec) / 3600.0)
	}

	path := geo.MonotonicPath(samples)
	for i, s := range path {
		if s.SpeedKmh != nil && *s.SpeedKmh > report.MaxSpeedKmh {
			report.MaxSpeedKmh = *s.SpeedKmh
		}
		if i == 0 {
			continue
		}
		prev := path[i-1]
		if prev.SpeedKmh != nil && *prev.SpeedKmh < e.cfg.IdleSpeedKmh {
			report.IdleTimeSec += int64(s.Timestamp.Sub(prev.Timestamp).Seconds())
		}
	}

	report.CarbonEmissionKg = trip.FuelConsumedL * e.cfg.EmissionKgPerL
	report.CostAnalysis = model.CostAnalysis{
		FuelCost:        trip.FuelConsumedL * e.cfg.FuelCostPerL,
		MaintenanceCost: trip.ActualDistanceKm * e.cfg.MaintenanceCostPerKm,
	}
	report.CostAnalysis.TotalCost = report.CostAnalysis.FuelCost + report.CostAnalysis.MaintenanceCost

	report.PerformanceScore = performanceScore(trip, durationSec, report.IdleTimeSec)
	return report
}

// performanceScore starts at 100 and deducts up to 50 points for the
// idle share of the trip and up to 50 for distance overrun against the
// planned expectation. Clamped to [0, 100].
func performanceScore(trip *model.Trip, durationSec, idleSec int64) float64 {
	score := 100.0

	if durationSec > 0 && idleSec > 0 {
		idleShare := float64(idleSec) / float64(durationSec)
		if idleShare > 1 {
			idleShare = 1
		}
		score -= 50 * idleShare
	}

	if trip.ExpectedDistanceKm > 0 && trip.ActualDistanceKm > trip.ExpectedDistanceKm {
		overrun := (trip.ActualDistanceKm - trip.ExpectedDistanceKm) / trip.ExpectedDistanceKm
		if overrun > 1 {
			overrun = 1
		}
		score -= 50 * overrun
	}

	if score < 0 {
		score = 0
	}
	return score
}

// ─── Fleet statistics ───────────────────────────────────────

// Statistics aggregates the filtered trip set in a single streaming
// pass: one query, one fold, cost linear in the result size and never
// N+1 per trip. Results are cached with a short TTL.
func (e *EfficiencyEngine) Statistics(ctx context.Context, caller model.Caller, f model.StatsFilter) (*model.FleetStatistics, error) {
	if !caller.Role.Elevated() {
		return nil, model.Forbiddenf("fleet statistics require manager or admin role")
	}

	if cached := e.stats.GetCachedStats(ctx, f); cached != nil {
		return cached, nil
	}

	stats := &model.FleetStatistics{}
	var (
		durSumSec    int64
		durCount     int64
		fuelEffSum   float64
		fuelEffCount int64
		byVehicle    = map[string]*model.StatsBucket{}
		byDriver     = map[string]*model.StatsBucket{}
		byDay        = map[string]*model.StatsBucket{}
	)

	err := e.stats.ForEachTrip(ctx, f, func(row repository.StatRow) error {
		stats.TotalTrips++
		switch row.Status {
		case model.TripInProgress:
			stats.ActiveTrips++
		case model.TripCompleted:
			stats.CompletedTrips++
			durSumSec += row.DurationSec
			durCount++
		case model.TripCancelled:
			stats.CancelledTrips++
		}

		stats.TotalDistanceKm += row.DistanceKm
		stats.TotalFuelL += row.FuelL
		if row.FuelEff != nil {
			fuelEffSum += *row.FuelEff
			fuelEffCount++
		}

		fold(byVehicle, row.VehicleID, row)
		fold(byDriver, row.DriverID, row)
		fold(byDay, row.StartTime.Format("2006-01-02"), row)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if durCount > 0 {
		stats.AvgDurationSec = float64(durSumSec) / float64(durCount)
	}
	if fuelEffCount > 0 {
		stats.AvgFuelEffKmPerL = fuelEffSum / float64(fuelEffCount)
	}
	stats.ByVehicle = sortedBuckets(byVehicle)
	stats.ByDriver = sortedBuckets(byDriver)
	stats.ByDay = sortedBuckets(byDay)

	if err := e.stats.CacheStats(ctx, f, stats, e.cfg.StatsCacheTTL); err != nil {
		// Serving fresh numbers matters more than caching them.
		log.Warnf("[stats] cache write failed: %v", err)
	}
	return stats, nil
}

func fold(buckets map[string]*model.StatsBucket, key string, row repository.StatRow) {
	b, ok := buckets[key]
	if !ok {
		b = &model.StatsBucket{Key: key}
		buckets[key] = b
	}
	b.Trips++
	b.TotalDistanceKm += row.DistanceKm
	b.TotalFuelL += row.FuelL
}

func sortedBuckets(buckets map[string]*model.StatsBucket) []model.StatsBucket {
	out := make([]model.StatsBucket, 0, len(buckets))
	for _, b := range buckets {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
