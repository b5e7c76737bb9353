package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arjun/haultrack/internal/model"
	"github.com/arjun/haultrack/pkg/auth"
)

func TestAuthenticateRejectsWithJSON(t *testing.T) {
	authSvc := auth.NewService("test-secret", time.Hour)
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run without a valid token")
	})
	handler := Authenticate(authSvc)(next)

	for _, header := range []string{"", "Bearer garbage"} {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/trips/x", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

		var body map[string]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), "header=%q", header)
		assert.Equal(t, string(model.KindUnauthenticated), body["error"])
	}
}

func TestAuthenticateAttachesCaller(t *testing.T) {
	authSvc := auth.NewService("test-secret", time.Hour)
	token, err := authSvc.GenerateToken(model.Caller{ID: "d-1", Role: model.RoleDriver})
	require.NoError(t, err)

	var got model.Caller
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, ok := CallerFromContext(r.Context())
		require.True(t, ok)
		got = caller
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/trips/x", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	Authenticate(authSvc)(next).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "d-1", got.ID)
	assert.Equal(t, model.RoleDriver, got.Role)
}

func TestRecovererWritesJSONError(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})
	rec := httptest.NewRecorder()
	Recoverer(next).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, string(model.KindInternal), body["error"])
}
