package handler

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/arjun/haultrack/internal/middleware"
	"github.com/arjun/haultrack/internal/model"
	"github.com/arjun/haultrack/internal/service"
)

// TripHandler handles trip lifecycle HTTP requests.
type TripHandler struct {
	trips *service.TripService
}

// NewTripHandler creates a new handler wired to the lifecycle controller.
func NewTripHandler(trips *service.TripService) *TripHandler {
	return &TripHandler{trips: trips}
}

// CreateTrip handles POST /api/v1/trips
//
//	Request body:
//	{
//	  "vehicle_id": "DT-104",
//	  "driver_id": "d-17",
//	  "planned": false,
//	  "start_location": {"lat": -21.13, "lon": -42.37},
//	  "expected_distance_km": 48.5,
//	  "priority": "high",
//	  "notes": "north pit to crusher"
//	}
func (h *TripHandler) CreateTrip(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.CallerFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": string(model.KindUnauthenticated)})
		return
	}

	var body service.CreateTripInput
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, model.Validationf("invalid JSON body"))
		return
	}

	trip, err := h.trips.Create(r.Context(), caller, body)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, trip)
}

// StartTrip handles POST /api/v1/trips/{id}/start
func (h *TripHandler) StartTrip(w http.ResponseWriter, r *http.Request) {
	h.withCaller(w, r, func(caller model.Caller, tripID string) (interface{}, error) {
		return h.trips.Start(r.Context(), caller, tripID)
	})
}

// RecordLocation handles POST /api/v1/trips/{id}/locations
func (h *TripHandler) RecordLocation(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.CallerFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": string(model.KindUnauthenticated)})
		return
	}

	var body service.SampleInput
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, model.Validationf("invalid JSON body"))
		return
	}

	sample, err := h.trips.RecordLocation(r.Context(), caller, mux.Vars(r)["id"], body)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sample)
}

// EndTrip handles POST /api/v1/trips/{id}/end
func (h *TripHandler) EndTrip(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.CallerFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": string(model.KindUnauthenticated)})
		return
	}

	var body service.EndTripInput
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, model.Validationf("invalid JSON body"))
		return
	}

	result, err := h.trips.End(r.Context(), caller, mux.Vars(r)["id"], body)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// CancelTrip handles POST /api/v1/trips/{id}/cancel
func (h *TripHandler) CancelTrip(w http.ResponseWriter, r *http.Request) {
	h.withCaller(w, r, func(caller model.Caller, tripID string) (interface{}, error) {
		return h.trips.Cancel(r.Context(), caller, tripID)
	})
}

// UpdateTrip handles PATCH /api/v1/trips/{id}
func (h *TripHandler) UpdateTrip(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.CallerFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": string(model.KindUnauthenticated)})
		return
	}

	var body service.UpdateTripInput
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, model.Validationf("invalid JSON body"))
		return
	}

	trip, err := h.trips.Update(r.Context(), caller, mux.Vars(r)["id"], body)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, trip)
}

// GetTrip handles GET /api/v1/trips/{id}
//
// Returns the trip, its full GPS history and an on-demand report.
func (h *TripHandler) GetTrip(w http.ResponseWriter, r *http.Request) {
	h.withCaller(w, r, func(caller model.Caller, tripID string) (interface{}, error) {
		return h.trips.Detail(r.Context(), caller, tripID)
	})
}

// withCaller factors the caller lookup + id extraction shared by the
// body-less operations.
func (h *TripHandler) withCaller(
	w http.ResponseWriter,
	r *http.Request,
	fn func(caller model.Caller, tripID string) (interface{}, error),
) {
	caller, ok := middleware.CallerFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": string(model.KindUnauthenticated)})
		return
	}

	result, err := fn(caller, mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
