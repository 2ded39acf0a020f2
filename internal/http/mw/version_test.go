package mw

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/guitaripod/pixie/internal/version"
)

func TestAPIVersionHeader(t *testing.T) {
	wrapped := APIVersion()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	wrapped.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/images", nil))

	if got := rec.Header().Get("X-API-Version"); got != version.Get().Short() {
		t.Errorf("X-API-Version = %q, want %q", got, version.Get().Short())
	}
}

func TestAPIVersionHeaderOnErrorResponses(t *testing.T) {
	for _, status := range []int{http.StatusBadRequest, http.StatusNotFound, http.StatusInternalServerError} {
		wrapped := APIVersion()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		}))

		rec := httptest.NewRecorder()
		wrapped.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/images/generations", nil))

		if rec.Header().Get("X-API-Version") == "" {
			t.Errorf("missing X-API-Version header on status %d", status)
		}
	}
}
