package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_PassesRequestThrough(t *testing.T) {
	nextCalled := false
	handler := Metrics()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		nextCalled = true
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"success":true}`))
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/cart/items", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	assert.True(t, nextCalled)
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, `{"success":true}`, w.Body.String())
}

func TestMetrics_DefaultsToOKWhenHeaderNotWritten(t *testing.T) {
	handler := Metrics()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestMetrics_UsesRoutePatternInsideChi(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Metrics())
	r.Delete("/api/cart/items/{id}", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodDelete, "/api/cart/items/line_8c1f", nil)
	w := httptest.NewRecorder()

	r.ServeHTTP(w, req)

	// The metric label uses the pattern, which only works when the route
	// context resolves. The observable behavior here is that the request
	// completes without panicking and with the right status.
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestResponseWriter_CapturesStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := &responseWriter{ResponseWriter: rec, statusCode: http.StatusOK}

	rw.WriteHeader(http.StatusNotFound)

	assert.Equal(t, http.StatusNotFound, rw.statusCode)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
