package crypto

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/grantd/grantd/internal/metrics"
)

// Verification failure classes.
var (
	ErrTokenExpired = errors.New("token expired")
	ErrBadSignature = errors.New("bad signature")
	ErrUnknownKey   = errors.New("unknown signing key")
)

// Claims represents the JWT claims for access and ID tokens.
type Claims struct {
	// OIDC claims
	Email         string `json:"email,omitempty"`
	EmailVerified bool   `json:"email_verified,omitempty"`
	Name          string `json:"name,omitempty"`

	// OAuth claims
	Scope    string `json:"scope,omitempty"`
	ClientID string `json:"client_id,omitempty"`

	// Custom claims
	Extra map[string]any `json:"extra,omitempty"`

	jwt.RegisteredClaims
}

// Signer signs and verifies JWTs. Signing always uses the single active key;
// verification accepts any retained key still inside its rotation window.
// The keyring is swapped atomically so rotation never blocks in-flight
// operations.
type Signer struct {
	source   KeySource
	issuer   string
	audience string

	mu       sync.RWMutex
	active   *KeyPair
	retained map[string]*KeyPair // By kid, includes the active key
}

// SignerOption configures the Signer.
type SignerOption func(*Signer)

// WithAudience sets the default token audience.
func WithAudience(audience string) SignerOption {
	return func(s *Signer) {
		s.audience = audience
	}
}

// NewSigner creates a Signer, acquiring the active key and the retained key
// set from the source.
func NewSigner(ctx context.Context, source KeySource, issuer string, opts ...SignerOption) (*Signer, error) {
	s := &Signer{
		source:   source,
		issuer:   issuer,
		retained: make(map[string]*KeyPair),
	}

	for _, opt := range opts {
		opt(s)
	}

	active, err := source.AcquireActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire active key: %w", err)
	}
	s.active = active
	s.retained[active.Kid] = active

	all, err := source.AcquireAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire retained keys: %w", err)
	}
	for _, kp := range all {
		s.retained[kp.Kid] = kp
	}

	return s, nil
}

// ActiveKid returns the key ID currently used for signing.
func (s *Signer) ActiveKid() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active.Kid
}

// Sign signs the claims with the active key for the given lifetime.
func (s *Signer) Sign(claims *Claims, lifetime time.Duration) (string, time.Time, error) {
	s.mu.RLock()
	key := s.active
	s.mu.RUnlock()

	now := time.Now().UTC()
	expiresAt := now.Add(lifetime)

	if claims == nil {
		claims = &Claims{}
	}

	audience := s.audience
	if claims.ClientID != "" {
		audience = claims.ClientID
	}

	claims.RegisteredClaims = jwt.RegisteredClaims{
		Issuer:    s.issuer,
		Subject:   claims.Subject,
		Audience:  jwt.ClaimStrings{audience},
		ExpiresAt: jwt.NewNumericDate(expiresAt),
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now.Add(-5 * time.Minute)), // Clock skew tolerance
		ID:        uuid.New().String(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = key.Kid

	signed, err := token.SignedString(key.PrivateKey)
	if err != nil {
		metrics.RecordSigningFailure()
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}

	return signed, expiresAt, nil
}

// Verify parses and validates a JWT against the retained key set.
// Failures are classified as ErrTokenExpired, ErrBadSignature, or
// ErrUnknownKey.
func (s *Signer) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}

	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}

		kid, ok := token.Header["kid"].(string)
		if !ok {
			return nil, ErrUnknownKey
		}

		s.mu.RLock()
		key, found := s.retained[kid]
		s.mu.RUnlock()

		if !found || key.IsExpired() {
			return nil, ErrUnknownKey
		}
		return key.PublicKey, nil
	})

	if err != nil {
		switch {
		case errors.Is(err, ErrUnknownKey):
			return nil, ErrUnknownKey
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrTokenExpired
		default:
			return nil, ErrBadSignature
		}
	}

	return claims, nil
}

// Rotate generates a new active key. The previous key is retained
// verification-only for the given window, so outstanding tokens keep
// verifying until they expire.
func (s *Signer) Rotate(ctx context.Context, retain time.Duration) (string, error) {
	newKey, err := GenerateKeyPair(DefaultKeySize)
	if err != nil {
		return "", fmt.Errorf("failed to generate key: %w", err)
	}

	s.mu.RLock()
	old := s.active
	s.mu.RUnlock()

	retired := *old
	retired.Active = false
	retired.ExpiresAt = time.Now().Add(retain)

	if err := s.source.Store(ctx, &retired, false); err != nil {
		return "", fmt.Errorf("failed to retire old key: %w", err)
	}
	if err := s.source.Store(ctx, newKey, true); err != nil {
		return "", fmt.Errorf("failed to store new key: %w", err)
	}

	next := make(map[string]*KeyPair, len(s.retained)+1)
	s.mu.Lock()
	for kid, kp := range s.retained {
		if kp.IsExpired() {
			continue // Evict keys past their retention window
		}
		next[kid] = kp
	}
	next[retired.Kid] = &retired
	next[newKey.Kid] = newKey
	s.active = newKey
	s.retained = next
	s.mu.Unlock()

	metrics.RecordKeyRotation()
	return newKey.Kid, nil
}

// EvictExpired drops retained keys past their retention window. Tokens
// signed with an evicted key no longer verify.
func (s *Signer) EvictExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for kid, kp := range s.retained {
		if kp.IsExpired() && kid != s.active.Kid {
			delete(s.retained, kid)
		}
	}
}

// JWKS returns the public keys of all retained keys.
func (s *Signer) JWKS() *JWKS {
	s.mu.RLock()
	defer s.mu.RUnlock()

	jwks := &JWKS{Keys: make([]JWK, 0, len(s.retained))}
	for _, kp := range s.retained {
		if kp.IsExpired() {
			continue
		}
		jwks.Keys = append(jwks.Keys, kp.ToJWK())
	}
	return jwks
}
