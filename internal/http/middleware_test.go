package http

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCORSMiddleware_AllowedOrigin(t *testing.T) {
	config := &CORSConfig{
		AllowedOrigins: []string{"https://example.com", "https://app.example.com"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:         86400,
	}

	handler := CORSMiddleware(config)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name         string
		origin       string
		expectOrigin string
	}{
		{
			name:         "allowed origin",
			origin:       "https://example.com",
			expectOrigin: "https://example.com",
		},
		{
			name:         "allowed subdomain origin",
			origin:       "https://app.example.com",
			expectOrigin: "https://app.example.com",
		},
		{
			name:         "disallowed origin",
			origin:       "https://evil.com",
			expectOrigin: "",
		},
		{
			name:         "no origin header",
			origin:       "",
			expectOrigin: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			w := httptest.NewRecorder()

			handler.ServeHTTP(w, req)

			if origin := w.Header().Get("Access-Control-Allow-Origin"); origin != tt.expectOrigin {
				t.Errorf("Expected Access-Control-Allow-Origin %q, got %q", tt.expectOrigin, origin)
			}
		})
	}
}

func TestCORSMiddleware_Preflight(t *testing.T) {
	config := &CORSConfig{
		AllowedOrigins: []string{"https://example.com"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:         3600,
	}

	handlerCalled := false
	handler := CORSMiddleware(config)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodOptions, "/test", nil)
	req.Header.Set("Origin", "https://example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	// Preflight should return 204 No Content
	if w.Code != http.StatusNoContent {
		t.Errorf("Expected status 204, got %d", w.Code)
	}

	// Handler should NOT be called for preflight
	if handlerCalled {
		t.Error("Handler should not be called for preflight requests")
	}

	if w.Header().Get("Access-Control-Allow-Origin") != "https://example.com" {
		t.Errorf("Expected Access-Control-Allow-Origin https://example.com, got %q", w.Header().Get("Access-Control-Allow-Origin"))
	}
	if w.Header().Get("Access-Control-Allow-Methods") != "GET, POST, OPTIONS" {
		t.Errorf("Expected Access-Control-Allow-Methods, got %q", w.Header().Get("Access-Control-Allow-Methods"))
	}
	if w.Header().Get("Access-Control-Allow-Headers") != "Authorization, Content-Type" {
		t.Errorf("Expected Access-Control-Allow-Headers, got %q", w.Header().Get("Access-Control-Allow-Headers"))
	}
	if maxAge := w.Header().Get("Access-Control-Max-Age"); maxAge != "3600" {
		t.Errorf("Expected Access-Control-Max-Age '3600', got %q", maxAge)
	}
}

func TestCORSMiddleware_WildcardOrigin(t *testing.T) {
	config := &CORSConfig{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET"},
		AllowedHeaders: []string{},
	}

	handler := CORSMiddleware(config)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("Origin", "https://any-domain.com")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	// Wildcard should allow any origin
	if w.Header().Get("Access-Control-Allow-Origin") != "https://any-domain.com" {
		t.Errorf("Expected wildcard to allow any origin, got %q", w.Header().Get("Access-Control-Allow-Origin"))
	}
}

func TestCORSMiddleware_DefaultConfig(t *testing.T) {
	// Test with nil config (should use defaults)
	handler := CORSMiddleware(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("Origin", "https://example.com")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	// Default config has empty AllowedOrigins, so no origin should be allowed
	if w.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Error("Default config should not allow any origins")
	}
}

func TestSecurityHeadersMiddleware(t *testing.T) {
	handler := SecurityHeadersMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	expectedHeaders := map[string]string{
		"Content-Security-Policy": "default-src 'none'; frame-ancestors 'none'",
		"X-Frame-Options":         "DENY",
		"X-Content-Type-Options":  "nosniff",
		"Referrer-Policy":         "no-referrer",
	}

	for header, expectedValue := range expectedHeaders {
		if actual := w.Header().Get(header); actual != expectedValue {
			t.Errorf("Expected %s: %q, got %q", header, expectedValue, actual)
		}
	}

	// HSTS should NOT be set for non-TLS requests
	if hsts := w.Header().Get("Strict-Transport-Security"); hsts != "" {
		t.Errorf("HSTS should not be set for non-TLS requests, got %q", hsts)
	}
}

func TestTokenRateLimiter(t *testing.T) {
	handler := TokenRateLimiter(2)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/token", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("Request %d should pass, got %d", i+1, w.Code)
		}
	}

	req := httptest.NewRequest(http.MethodPost, "/token", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("Expected 429 after limit, got %d", w.Code)
	}

	// A different client is not affected
	req = httptest.NewRequest(http.MethodPost, "/token", nil)
	req.RemoteAddr = "10.0.0.2:1234"
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("Other clients should not be limited, got %d", w.Code)
	}
}

func TestTokenRateLimiterDisabled(t *testing.T) {
	handler := TokenRateLimiter(0)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 10; i++ {
		req := httptest.NewRequest(http.MethodPost, "/token", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("Limiter should be disabled, got %d", w.Code)
		}
	}
}
