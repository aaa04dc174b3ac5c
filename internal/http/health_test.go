package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHealthzAlwaysOK(t *testing.T) {
	h := NewHealthHandler(func() error { return errors.New("store down") })

	w := httptest.NewRecorder()
	h.Healthz(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if w.Code != http.StatusOK {
		t.Errorf("Expected 200 regardless of readiness, got %d", w.Code)
	}
}

func TestReadyzNoChecks(t *testing.T) {
	h := NewHealthHandler()

	w := httptest.NewRecorder()
	h.Readyz(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if w.Code != http.StatusOK {
		t.Errorf("Expected 200 with no checks, got %d", w.Code)
	}
}

func TestReadyzFailingCheck(t *testing.T) {
	h := NewHealthHandler(
		func() error { return nil },
		func() error { return errors.New("data directory unavailable") },
	)

	w := httptest.NewRecorder()
	h.Readyz(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("Expected 503 with failing check, got %d", w.Code)
	}

	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode body: %v", err)
	}
	if body["status"] != "not ready" {
		t.Errorf("Expected status 'not ready', got %q", body["status"])
	}
	if body["reason"] != "data directory unavailable" {
		t.Errorf("Expected failing check reason, got %q", body["reason"])
	}
}

func TestReadyzPassingChecks(t *testing.T) {
	calls := 0
	h := NewHealthHandler(
		func() error { calls++; return nil },
		func() error { calls++; return nil },
	)

	w := httptest.NewRecorder()
	h.Readyz(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if w.Code != http.StatusOK {
		t.Errorf("Expected 200 with passing checks, got %d", w.Code)
	}
	if calls != 2 {
		t.Errorf("Expected both checks to run, got %d", calls)
	}
}
