package crypto

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

// In-memory key source for signer tests.
type memoryKeySource struct {
	keys   map[string]*KeyPair
	active string
}

func newMemoryKeySource() *memoryKeySource {
	return &memoryKeySource{keys: make(map[string]*KeyPair)}
}

func (m *memoryKeySource) AcquireActive(ctx context.Context) (*KeyPair, error) {
	if m.active == "" {
		kp, err := GenerateKeyPair(2048)
		if err != nil {
			return nil, err
		}
		m.keys[kp.Kid] = kp
		m.active = kp.Kid
	}
	return m.keys[m.active], nil
}

func (m *memoryKeySource) AcquireAll(ctx context.Context) ([]*KeyPair, error) {
	var pairs []*KeyPair
	for _, kp := range m.keys {
		if !kp.IsExpired() {
			pairs = append(pairs, kp)
		}
	}
	return pairs, nil
}

func (m *memoryKeySource) Store(ctx context.Context, kp *KeyPair, active bool) error {
	m.keys[kp.Kid] = kp
	if active {
		m.active = kp.Kid
	}
	return nil
}

func setupSigner(t *testing.T) (*Signer, *memoryKeySource) {
	t.Helper()

	source := newMemoryKeySource()
	signer, err := NewSigner(context.Background(), source, "https://auth.example.com")
	if err != nil {
		t.Fatalf("NewSigner failed: %v", err)
	}
	return signer, source
}

func TestSignAndVerify(t *testing.T) {
	signer, _ := setupSigner(t)

	claims := &Claims{
		Scope:    "openid api",
		ClientID: "test-client",
	}
	claims.Subject = "subject-1"

	token, expiresAt, err := signer.Sign(claims, 15*time.Minute)
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}
	if token == "" {
		t.Fatal("Expected a signed token")
	}
	if time.Until(expiresAt) > 15*time.Minute || time.Until(expiresAt) < 14*time.Minute {
		t.Errorf("Unexpected expiry: %v", expiresAt)
	}

	parsed, err := signer.Verify(token)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if parsed.Subject != "subject-1" {
		t.Errorf("Expected subject-1, got %s", parsed.Subject)
	}
	if parsed.Scope != "openid api" {
		t.Errorf("Expected scope to round-trip, got %q", parsed.Scope)
	}
	if parsed.Issuer != "https://auth.example.com" {
		t.Errorf("Expected issuer claim, got %s", parsed.Issuer)
	}
	// Audience defaults to the client ID
	if len(parsed.Audience) != 1 || parsed.Audience[0] != "test-client" {
		t.Errorf("Expected audience [test-client], got %v", parsed.Audience)
	}
}

func TestVerifyTamperedToken(t *testing.T) {
	signer, _ := setupSigner(t)

	token, _, err := signer.Sign(&Claims{ClientID: "test-client"}, 15*time.Minute)
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}

	// Flip a character in the payload segment
	parts := strings.Split(token, ".")
	payload := []byte(parts[1])
	if payload[10] == 'A' {
		payload[10] = 'B'
	} else {
		payload[10] = 'A'
	}
	tampered := parts[0] + "." + string(payload) + "." + parts[2]

	_, err = signer.Verify(tampered)
	if !errors.Is(err, ErrBadSignature) {
		t.Errorf("Expected ErrBadSignature, got %v", err)
	}
}

func TestVerifyExpiredToken(t *testing.T) {
	signer, _ := setupSigner(t)

	token, _, err := signer.Sign(&Claims{ClientID: "test-client"}, -time.Minute)
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}

	_, err = signer.Verify(token)
	if !errors.Is(err, ErrTokenExpired) {
		t.Errorf("Expected ErrTokenExpired, got %v", err)
	}
}

func TestVerifyForeignToken(t *testing.T) {
	signer, _ := setupSigner(t)
	other, _ := setupSigner(t)

	token, _, err := other.Sign(&Claims{ClientID: "test-client"}, 15*time.Minute)
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}

	// The kid is not in this signer's keyring
	_, err = signer.Verify(token)
	if !errors.Is(err, ErrUnknownKey) {
		t.Errorf("Expected ErrUnknownKey, got %v", err)
	}
}

func TestRotateKeepsOldTokensVerifiable(t *testing.T) {
	signer, _ := setupSigner(t)
	ctx := context.Background()

	oldKid := signer.ActiveKid()
	oldToken, _, err := signer.Sign(&Claims{ClientID: "test-client"}, 15*time.Minute)
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}

	newKid, err := signer.Rotate(ctx, time.Hour)
	if err != nil {
		t.Fatalf("Rotate failed: %v", err)
	}
	if newKid == oldKid {
		t.Error("Rotation should produce a new kid")
	}
	if signer.ActiveKid() != newKid {
		t.Errorf("Active kid should be %s, got %s", newKid, signer.ActiveKid())
	}

	// Token signed before rotation still verifies
	if _, err := signer.Verify(oldToken); err != nil {
		t.Errorf("Pre-rotation token should still verify: %v", err)
	}

	// New tokens are signed with the new key
	newToken, _, err := signer.Sign(&Claims{ClientID: "test-client"}, 15*time.Minute)
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}
	if _, err := signer.Verify(newToken); err != nil {
		t.Errorf("Post-rotation token should verify: %v", err)
	}
}

func TestEvictExpiredDropsRetiredKey(t *testing.T) {
	signer, _ := setupSigner(t)
	ctx := context.Background()

	oldToken, _, err := signer.Sign(&Claims{ClientID: "test-client"}, 15*time.Minute)
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}

	// Retire the old key with a window that is already over
	if _, err := signer.Rotate(ctx, -time.Minute); err != nil {
		t.Fatalf("Rotate failed: %v", err)
	}
	signer.EvictExpired()

	_, err = signer.Verify(oldToken)
	if !errors.Is(err, ErrUnknownKey) {
		t.Errorf("Expected ErrUnknownKey after eviction, got %v", err)
	}
}

func TestJWKS(t *testing.T) {
	signer, _ := setupSigner(t)
	ctx := context.Background()

	jwks := signer.JWKS()
	if len(jwks.Keys) != 1 {
		t.Fatalf("Expected 1 key, got %d", len(jwks.Keys))
	}
	if jwks.Keys[0].Kid != signer.ActiveKid() {
		t.Errorf("JWKS kid mismatch")
	}

	// After rotation both keys are published
	if _, err := signer.Rotate(ctx, time.Hour); err != nil {
		t.Fatalf("Rotate failed: %v", err)
	}
	jwks = signer.JWKS()
	if len(jwks.Keys) != 2 {
		t.Errorf("Expected 2 keys after rotation, got %d", len(jwks.Keys))
	}
}

func TestSignerWithAudienceOption(t *testing.T) {
	source := newMemoryKeySource()
	signer, err := NewSigner(context.Background(), source, "https://auth.example.com",
		WithAudience("https://api.example.com"))
	if err != nil {
		t.Fatalf("NewSigner failed: %v", err)
	}

	// No client ID: the configured audience applies
	token, _, err := signer.Sign(&Claims{}, 15*time.Minute)
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}
	claims, err := signer.Verify(token)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if len(claims.Audience) != 1 || claims.Audience[0] != "https://api.example.com" {
		t.Errorf("Expected configured audience, got %v", claims.Audience)
	}
}
