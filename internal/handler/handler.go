// Package handler contains HTTP request handlers for the trip tracking
// API. Handlers are thin, stateless wrappers: decode, call the
// controller, map the error kind onto a status code.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/arjun/haultrack/internal/model"
)

// writeJSON is a helper that writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError maps the stable error kind onto an HTTP status. Internal
// errors are logged but never leak details to the caller.
func writeError(w http.ResponseWriter, err error) {
	kind := model.KindOf(err)

	status := http.StatusInternalServerError
	body := map[string]string{"error": string(kind)}

	switch kind {
	case model.KindValidation:
		status = http.StatusUnprocessableEntity
	case model.KindNotFound:
		status = http.StatusNotFound
	case model.KindConflict:
		status = http.StatusConflict
	case model.KindForbidden:
		status = http.StatusForbidden
	case model.KindUnauthenticated:
		status = http.StatusUnauthorized
	}

	if kind == model.KindInternal {
		log.Errorf("[handler] internal error: %v", err)
		body["message"] = "internal error"
	} else {
		var e *model.Error
		if errors.As(err, &e) {
			body["message"] = e.Message
		}
	}

	writeJSON(w, status, body)
}
