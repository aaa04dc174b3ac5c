package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/grantd/grantd/internal/auth"
	"github.com/grantd/grantd/internal/crypto"
	"github.com/grantd/grantd/internal/domain"
	"github.com/grantd/grantd/internal/oauth"
	"github.com/grantd/grantd/internal/registry"
	"github.com/grantd/grantd/internal/store/file"
)

// testEnv holds all the components needed for integration tests
type testEnv struct {
	server *httptest.Server
	store  *file.Store
	signer *crypto.Signer
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st, err := file.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))

	// Seed catalog
	for _, s := range []*domain.Scope{
		{Name: "openid", Kind: domain.ScopeKindIdentity},
		{Name: "offline_access", Kind: domain.ScopeKindIdentity},
		{Name: "api", Kind: domain.ScopeKindResource},
	} {
		if err := st.Scopes().Create(ctx, s); err != nil {
			t.Fatalf("Failed to create scope: %v", err)
		}
	}

	client := &domain.Client{
		ID:         "test-client",
		Name:       "Test Client",
		SecretHash: auth.HashClientSecret("test-client-secret"),
		GrantTypes: []string{
			domain.GrantPassword,
			domain.GrantClientCredentials,
			domain.GrantRefreshToken,
		},
		Scopes: []string{"openid", "offline_access", "api"},
	}
	if err := st.Clients().Create(ctx, client); err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	passwordHash, _ := auth.HashPassword("password123")
	subject := &domain.Subject{
		ID:           "test-subject",
		Username:     "test@example.com",
		Email:        "test@example.com",
		PasswordHash: passwordHash,
		Active:       true,
	}
	if err := st.Subjects().Create(ctx, subject); err != nil {
		t.Fatalf("Failed to create subject: %v", err)
	}

	// Wire the engine
	clients, err := registry.NewClientRegistry(ctx, st.Clients())
	if err != nil {
		t.Fatalf("Failed to build client registry: %v", err)
	}
	scopes, err := registry.NewScopeRegistry(ctx, st.Scopes())
	if err != nil {
		t.Fatalf("Failed to build scope registry: %v", err)
	}

	signer, err := crypto.NewSigner(ctx, crypto.NewRepositoryKeySource(st.SigningKeys()), "http://localhost:8080")
	if err != nil {
		t.Fatalf("Failed to build signer: %v", err)
	}

	validator := auth.NewValidator(
		auth.NewSubjectCredentials(st.Subjects(), logger),
		auth.WithLogger(logger),
	)

	processor := oauth.NewProcessor(
		clients, scopes, validator, signer,
		st.Tokens(), st.AuthCodes(),
		15*time.Minute, 7*24*time.Hour,
		oauth.WithLogger(logger),
	)
	revocation := oauth.NewRevocationService(clients, validator, signer, st.Tokens(),
		oauth.WithRevocationLogger(logger))

	// Routes as the server wires them
	tokenHandler := NewTokenHandler(processor, revocation, logger)
	jwksHandler := NewJWKSHandler(signer, logger)
	discovery := NewDiscoveryHandler("http://localhost:8080", []string{"openid", "offline_access", "api"})
	health := NewHealthHandler()

	r := chi.NewRouter()
	r.Use(SecurityHeadersMiddleware)
	r.Post("/token", tokenHandler.Token)
	r.Post("/introspect", tokenHandler.Introspect)
	r.Post("/revoke", tokenHandler.Revoke)
	r.Get("/jwks", jwksHandler.JWKS)
	r.Get("/.well-known/openid-configuration", discovery.OpenIDConfiguration)
	r.Get("/healthz", health.Healthz)
	r.Get("/readyz", health.Readyz)

	server := httptest.NewServer(r)
	t.Cleanup(server.Close)

	return &testEnv{server: server, store: st, signer: signer}
}

func (env *testEnv) postForm(t *testing.T, path string, form url.Values) (*http.Response, map[string]any) {
	t.Helper()

	resp, err := http.Post(env.server.URL+path, "application/x-www-form-urlencoded",
		strings.NewReader(form.Encode()))
	if err != nil {
		t.Fatalf("POST %s failed: %v", path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })

	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil && resp.ContentLength != 0 {
		body = nil
	}
	return resp, body
}

func TestTokenEndpointPasswordGrant(t *testing.T) {
	env := setupTestEnv(t)

	resp, body := env.postForm(t, "/token", url.Values{
		"grant_type":    {"password"},
		"client_id":     {"test-client"},
		"client_secret": {"test-client-secret"},
		"username":      {"test@example.com"},
		"password":      {"password123"},
		"scope":         {"openid api offline_access"},
	})

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %v", resp.StatusCode, body)
	}
	if resp.Header.Get("Cache-Control") != "no-store" {
		t.Error("Token responses must carry Cache-Control: no-store")
	}
	if body["access_token"] == "" || body["access_token"] == nil {
		t.Error("Expected access_token in response")
	}
	if body["token_type"] != "Bearer" {
		t.Errorf("Expected Bearer, got %v", body["token_type"])
	}
	if body["refresh_token"] == nil {
		t.Error("Expected refresh_token in response")
	}
	if body["id_token"] == nil {
		t.Error("Expected id_token in response")
	}
}

func TestTokenEndpointInvalidCredentials(t *testing.T) {
	env := setupTestEnv(t)

	resp, body := env.postForm(t, "/token", url.Values{
		"grant_type":    {"password"},
		"client_id":     {"test-client"},
		"client_secret": {"test-client-secret"},
		"username":      {"test@example.com"},
		"password":      {"wrong-password"},
		"scope":         {"openid"},
	})

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", resp.StatusCode)
	}
	if body["error"] != "invalid_grant" {
		t.Errorf("Expected invalid_grant, got %v", body["error"])
	}
}

func TestTokenEndpointInvalidClient(t *testing.T) {
	env := setupTestEnv(t)

	resp, body := env.postForm(t, "/token", url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {"test-client"},
		"client_secret": {"wrong-secret"},
		"scope":         {"api"},
	})

	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("Expected 401, got %d", resp.StatusCode)
	}
	if body["error"] != "invalid_client" {
		t.Errorf("Expected invalid_client, got %v", body["error"])
	}
}

func TestTokenEndpointUnsupportedGrantType(t *testing.T) {
	env := setupTestEnv(t)

	resp, body := env.postForm(t, "/token", url.Values{
		"grant_type":    {"urn:ietf:params:oauth:grant-type:device_code"},
		"client_id":     {"test-client"},
		"client_secret": {"test-client-secret"},
	})

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", resp.StatusCode)
	}
	if body["error"] != "unsupported_grant_type" {
		t.Errorf("Expected unsupported_grant_type, got %v", body["error"])
	}
}

func TestTokenEndpointMissingGrantType(t *testing.T) {
	env := setupTestEnv(t)

	resp, body := env.postForm(t, "/token", url.Values{
		"client_id": {"test-client"},
	})

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", resp.StatusCode)
	}
	if body["error"] != "invalid_request" {
		t.Errorf("Expected invalid_request, got %v", body["error"])
	}
}

func TestIntrospectionEndpoint(t *testing.T) {
	env := setupTestEnv(t)

	_, grant := env.postForm(t, "/token", url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {"test-client"},
		"client_secret": {"test-client-secret"},
		"scope":         {"api"},
	})
	accessToken, _ := grant["access_token"].(string)
	if accessToken == "" {
		t.Fatal("Failed to obtain access token")
	}

	resp, body := env.postForm(t, "/introspect", url.Values{
		"token":         {accessToken},
		"client_id":     {"test-client"},
		"client_secret": {"test-client-secret"},
	})

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	if body["active"] != true {
		t.Errorf("Expected active token, got %v", body)
	}
	if body["client_id"] != "test-client" {
		t.Errorf("Expected client_id test-client, got %v", body["client_id"])
	}
}

func TestRevocationEndpoint(t *testing.T) {
	env := setupTestEnv(t)

	_, grant := env.postForm(t, "/token", url.Values{
		"grant_type":    {"password"},
		"client_id":     {"test-client"},
		"client_secret": {"test-client-secret"},
		"username":      {"test@example.com"},
		"password":      {"password123"},
		"scope":         {"openid offline_access"},
	})
	refreshToken, _ := grant["refresh_token"].(string)
	if refreshToken == "" {
		t.Fatal("Failed to obtain refresh token")
	}

	resp, _ := env.postForm(t, "/revoke", url.Values{
		"token":           {refreshToken},
		"token_type_hint": {"refresh_token"},
		"client_id":       {"test-client"},
		"client_secret":   {"test-client-secret"},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}

	// The revoked refresh token no longer refreshes
	resp, body := env.postForm(t, "/token", url.Values{
		"grant_type":    {"refresh_token"},
		"client_id":     {"test-client"},
		"client_secret": {"test-client-secret"},
		"refresh_token": {refreshToken},
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("Expected 400 after revocation, got %d", resp.StatusCode)
	}
	if body["error"] != "invalid_grant" {
		t.Errorf("Expected invalid_grant, got %v", body["error"])
	}

	// And introspects as inactive
	_, body = env.postForm(t, "/introspect", url.Values{
		"token":         {refreshToken},
		"client_id":     {"test-client"},
		"client_secret": {"test-client-secret"},
	})
	if body["active"] != false {
		t.Errorf("Expected inactive after revocation, got %v", body)
	}
}

func TestJWKSEndpoint(t *testing.T) {
	env := setupTestEnv(t)

	resp, err := http.Get(env.server.URL + "/jwks")
	if err != nil {
		t.Fatalf("GET /jwks failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}

	var jwks struct {
		Keys []map[string]any `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&jwks); err != nil {
		t.Fatalf("Failed to decode JWKS: %v", err)
	}
	if len(jwks.Keys) != 1 {
		t.Fatalf("Expected 1 key, got %d", len(jwks.Keys))
	}
	key := jwks.Keys[0]
	if key["kty"] != "RSA" || key["use"] != "sig" || key["alg"] != "RS256" {
		t.Errorf("Unexpected key parameters: %v", key)
	}
	if key["kid"] != env.signer.ActiveKid() {
		t.Errorf("JWKS kid should match the active key")
	}
}

func TestDiscoveryEndpoint(t *testing.T) {
	env := setupTestEnv(t)

	resp, err := http.Get(env.server.URL + "/.well-known/openid-configuration")
	if err != nil {
		t.Fatalf("GET discovery failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}

	var doc map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		t.Fatalf("Failed to decode discovery document: %v", err)
	}
	if doc["issuer"] != "http://localhost:8080" {
		t.Errorf("Unexpected issuer: %v", doc["issuer"])
	}
	if doc["token_endpoint"] != "http://localhost:8080/token" {
		t.Errorf("Unexpected token endpoint: %v", doc["token_endpoint"])
	}
	if doc["jwks_uri"] != "http://localhost:8080/.well-known/jwks.json" {
		t.Errorf("Unexpected jwks_uri: %v", doc["jwks_uri"])
	}
}

func TestHealthEndpoints(t *testing.T) {
	env := setupTestEnv(t)

	for _, path := range []string{"/healthz", "/readyz"} {
		resp, err := http.Get(env.server.URL + path)
		if err != nil {
			t.Fatalf("GET %s failed: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("Expected 200 from %s, got %d", path, resp.StatusCode)
		}
	}
}

func TestSecurityHeaders(t *testing.T) {
	env := setupTestEnv(t)

	resp, err := http.Get(env.server.URL + "/jwks")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	resp.Body.Close()

	if resp.Header.Get("X-Content-Type-Options") != "nosniff" {
		t.Error("Expected X-Content-Type-Options: nosniff")
	}
	if resp.Header.Get("X-Frame-Options") != "DENY" {
		t.Error("Expected X-Frame-Options: DENY")
	}
}
