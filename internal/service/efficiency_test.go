package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arjun/haultrack/internal/model"
	"github.com/arjun/haultrack/internal/repository"
)

// fakeStatsStore serves canned rows and records cache traffic.
type fakeStatsStore struct {
	rows       []repository.StatRow
	cached     *model.FleetStatistics
	cacheCalls int
}

func (s *fakeStatsStore) ForEachTrip(ctx context.Context, f model.StatsFilter, fn func(repository.StatRow) error) error {
	for _, row := range s.rows {
		if err := fn(row); err != nil {
			return err
		}
	}
	return nil
}

func (s *fakeStatsStore) GetCachedStats(ctx context.Context, f model.StatsFilter) *model.FleetStatistics {
	return s.cached
}

func (s *fakeStatsStore) CacheStats(ctx context.Context, f model.StatsFilter, stats *model.FleetStatistics, ttl time.Duration) error {
	s.cacheCalls++
	s.cached = stats
	return nil
}

// ─── Per-trip report ────────────────────────────────────────

func TestReportDerivesSpeedAndEmissions(t *testing.T) {
	engine := NewEfficiencyEngine(testEngineConfig(), nil)

	trip := &model.Trip{
		ID:                 "t-1",
		Status:             model.TripCompleted,
		ActualDistanceKm:   120,
		ExpectedDistanceKm: 120,
		DurationSec:        2 * 3600,
		FuelConsumedL:      20,
	}

	report := engine.Report(trip, nil)
	assert.InDelta(t, 60.0, report.AverageSpeedKmh, 1e-9)
	assert.InDelta(t, 20*2.68, report.CarbonEmissionKg, 1e-9)
	assert.InDelta(t, 20*1.45, report.CostAnalysis.FuelCost, 1e-9)
	assert.InDelta(t, 120*0.32, report.CostAnalysis.MaintenanceCost, 1e-9)
	assert.InDelta(t, report.CostAnalysis.FuelCost+report.CostAnalysis.MaintenanceCost,
		report.CostAnalysis.TotalCost, 1e-9)
	assert.InDelta(t, 100.0, report.PerformanceScore, 1e-9)
}

func TestReportIdleAndMaxSpeedOverMonotonicTrack(t *testing.T) {
	engine := NewEfficiencyEngine(testEngineConfig(), nil)
	base := time.Now().UTC()

	sample := func(minOffset int, speed float64, outOfOrder bool) model.GPSSample {
		return model.GPSSample{
			TripID:     "t-1",
			Latitude:   0,
			Longitude:  float64(minOffset) * 0.001,
			SpeedKmh:   &speed,
			Timestamp:  base.Add(time.Duration(minOffset) * time.Minute),
			OutOfOrder: outOfOrder,
		}
	}

	samples := []model.GPSSample{
		sample(0, 0, false),   // idle for the next minute
		sample(1, 35, false),  // moving
		sample(2, 1.5, false), // idle again
		sample(3, 80, true),   // flagged, must not count toward max speed
		sample(4, 20, false),
	}

	trip := &model.Trip{ID: "t-1", Status: model.TripCompleted, DurationSec: 4 * 60, ActualDistanceKm: 2}
	report := engine.Report(trip, samples)

	// Idle intervals: 0→1 min (speed 0) and 2→4 min (speed 1.5, flagged
	// sample skipped so the interval spans two minutes).
	assert.Equal(t, int64(3*60), report.IdleTimeSec)
	assert.InDelta(t, 35.0, report.MaxSpeedKmh, 1e-9)
}

func TestReportScoresIdleAndOverrun(t *testing.T) {
	engine := NewEfficiencyEngine(testEngineConfig(), nil)

	// 50% overrun against the plan costs 25 points.
	trip := &model.Trip{
		ID:                 "t-1",
		Status:             model.TripCompleted,
		ActualDistanceKm:   150,
		ExpectedDistanceKm: 100,
		DurationSec:        3600,
	}
	report := engine.Report(trip, nil)
	assert.InDelta(t, 75.0, report.PerformanceScore, 1e-9)

	// Off-plan trips are never penalized for overrun.
	trip.ExpectedDistanceKm = 0
	report = engine.Report(trip, nil)
	assert.InDelta(t, 100.0, report.PerformanceScore, 1e-9)
}

func TestReportZeroDurationHasZeroAverageSpeed(t *testing.T) {
	engine := NewEfficiencyEngine(testEngineConfig(), nil)
	trip := &model.Trip{ID: "t-1", Status: model.TripCompleted, ActualDistanceKm: 5}
	report := engine.Report(trip, nil)
	assert.Zero(t, report.AverageSpeedKmh)
}

// ─── Fleet statistics ───────────────────────────────────────

func statRow(vehicle, driver string, status model.TripStatus, start time.Time, durSec int64, km, fuel float64, eff *float64) repository.StatRow {
	return repository.StatRow{
		VehicleID:   vehicle,
		DriverID:    driver,
		Status:      status,
		StartTime:   start,
		DurationSec: durSec,
		DistanceKm:  km,
		FuelL:       fuel,
		FuelEff:     eff,
	}
}

func TestStatisticsSinglePassAggregation(t *testing.T) {
	day1 := time.Date(2026, 8, 20, 6, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 8, 21, 6, 0, 0, 0, time.UTC)

	store := &fakeStatsStore{rows: []repository.StatRow{
		statRow("DT-1", "d-1", model.TripCompleted, day1, 3600, 100, 10, ptr(10.0)),
		statRow("DT-1", "d-2", model.TripCompleted, day1, 1800, 50, 5, ptr(10.0)),
		statRow("DT-2", "d-1", model.TripInProgress, day2, 0, 30, 0, nil),
		statRow("DT-2", "d-2", model.TripCancelled, day2, 0, 0, 0, nil),
	}}
	engine := NewEfficiencyEngine(testEngineConfig(), store)

	stats, err := engine.Statistics(context.Background(), manager, model.StatsFilter{})
	require.NoError(t, err)

	assert.Equal(t, int64(4), stats.TotalTrips)
	assert.Equal(t, int64(1), stats.ActiveTrips)
	assert.Equal(t, int64(2), stats.CompletedTrips)
	assert.Equal(t, int64(1), stats.CancelledTrips)
	assert.InDelta(t, 180.0, stats.TotalDistanceKm, 1e-9)
	assert.InDelta(t, 15.0, stats.TotalFuelL, 1e-9)
	assert.InDelta(t, 2700.0, stats.AvgDurationSec, 1e-9)
	assert.InDelta(t, 10.0, stats.AvgFuelEffKmPerL, 1e-9)

	require.Len(t, stats.ByVehicle, 2)
	assert.Equal(t, "DT-1", stats.ByVehicle[0].Key)
	assert.Equal(t, int64(2), stats.ByVehicle[0].Trips)
	assert.InDelta(t, 150.0, stats.ByVehicle[0].TotalDistanceKm, 1e-9)

	require.Len(t, stats.ByDriver, 2)
	assert.Equal(t, "d-1", stats.ByDriver[0].Key)

	require.Len(t, stats.ByDay, 2)
	assert.Equal(t, "2026-08-20", stats.ByDay[0].Key)

	// The computed aggregate was written to the cache.
	assert.Equal(t, 1, store.cacheCalls)
}

func TestStatisticsServedFromCache(t *testing.T) {
	cached := &model.FleetStatistics{TotalTrips: 7}
	store := &fakeStatsStore{cached: cached}
	engine := NewEfficiencyEngine(testEngineConfig(), store)

	stats, err := engine.Statistics(context.Background(), manager, model.StatsFilter{})
	require.NoError(t, err)
	assert.Same(t, cached, stats)
	assert.Zero(t, store.cacheCalls)
}

func TestStatisticsRequireElevatedRole(t *testing.T) {
	engine := NewEfficiencyEngine(testEngineConfig(), &fakeStatsStore{})

	_, err := engine.Statistics(context.Background(), driver, model.StatsFilter{})
	require.Error(t, err)
	assert.Equal(t, model.KindForbidden, model.KindOf(err))
}
