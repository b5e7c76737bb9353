package handler

import (
	"net/http"
	"time"

	"github.com/arjun/haultrack/internal/middleware"
	"github.com/arjun/haultrack/internal/model"
	"github.com/arjun/haultrack/internal/service"
)

// StatsHandler serves fleet-wide aggregate reports.
type StatsHandler struct {
	engine *service.EfficiencyEngine
}

func NewStatsHandler(engine *service.EfficiencyEngine) *StatsHandler {
	return &StatsHandler{engine: engine}
}

// FleetStatistics handles GET /api/v1/fleet/statistics
//
// Optional query parameters: vehicle_id, driver_id, from, to
// (from/to are RFC 3339 timestamps).
func (h *StatsHandler) FleetStatistics(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.CallerFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": string(model.KindUnauthenticated)})
		return
	}

	filter, err := parseStatsFilter(r)
	if err != nil {
		writeError(w, err)
		return
	}

	stats, err := h.engine.Statistics(r.Context(), caller, filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func parseStatsFilter(r *http.Request) (model.StatsFilter, error) {
	q := r.URL.Query()
	f := model.StatsFilter{
		VehicleID: q.Get("vehicle_id"),
		DriverID:  q.Get("driver_id"),
	}

	if raw := q.Get("from"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return f, model.Validationf("invalid 'from' timestamp, expected RFC 3339")
		}
		f.From = &ts
	}
	if raw := q.Get("to"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return f, model.Validationf("invalid 'to' timestamp, expected RFC 3339")
		}
		f.To = &ts
	}
	if f.From != nil && f.To != nil && f.To.Before(*f.From) {
		return f, model.Validationf("'to' must not precede 'from'")
	}
	return f, nil
}
