// Package domain defines the core types for the authorization server.
package domain

import (
	"time"
)

// Grant type names as they appear on the wire (RFC 6749).
const (
	GrantPassword          = "password"
	GrantClientCredentials = "client_credentials"
	GrantAuthorizationCode = "authorization_code"
	GrantRefreshToken      = "refresh_token"
)

// Scope names with special issuance semantics.
const (
	ScopeOpenID        = "openid"
	ScopeOfflineAccess = "offline_access"
)

// Subject represents a resource owner known to the credential store.
type Subject struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"password_hash,omitempty"`
	DisplayName  string    `json:"display_name,omitempty"`
	Email        string    `json:"email,omitempty"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Client represents a registered OAuth 2.0 / OIDC client application.
type Client struct {
	ID              string        `json:"id"`
	SecretHash      string        `json:"secret_hash,omitempty"` // Empty for public clients
	Name            string        `json:"name"`
	RedirectURIs    []string      `json:"redirect_uris"`
	GrantTypes      []string      `json:"grant_types"`
	Scopes          []string      `json:"scopes"` // Allowed scopes
	Public          bool          `json:"public"` // True for public clients (PKCE required)
	AccessTokenTTL  time.Duration `json:"access_token_ttl,omitempty"`  // 0 = server default
	RefreshTokenTTL time.Duration `json:"refresh_token_ttl,omitempty"` // 0 = server default
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// AllowsGrantType reports whether the client may use the given grant type.
func (c *Client) AllowsGrantType(grantType string) bool {
	for _, g := range c.GrantTypes {
		if g == grantType {
			return true
		}
	}
	return false
}

// AllowsScope reports whether the scope is in the client's allowed set.
func (c *Client) AllowsScope(scope string) bool {
	for _, s := range c.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// AllowsRedirectURI reports whether the URI is registered for the client.
func (c *Client) AllowsRedirectURI(uri string) bool {
	for _, u := range c.RedirectURIs {
		if u == uri {
			return true
		}
	}
	return false
}

// ScopeKind distinguishes identity scopes (claims about the subject) from
// resource scopes (API permissions).
type ScopeKind string

const (
	ScopeKindIdentity ScopeKind = "identity"
	ScopeKindResource ScopeKind = "resource"
)

// Scope represents a named permission unit clients can request.
type Scope struct {
	Name        string    `json:"name"`
	Kind        ScopeKind `json:"kind"`
	Claims      []string  `json:"claims,omitempty"` // Claims carried by identity scopes
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// AuthCode represents an OAuth 2.0 authorization code.
// A code is single-use: Used is flipped atomically on first redemption.
type AuthCode struct {
	Code                string    `json:"code"`
	ClientID            string    `json:"client_id"`
	SubjectID           string    `json:"subject_id"`
	RedirectURI         string    `json:"redirect_uri"`
	Scope               string    `json:"scope"`
	CodeChallenge       string    `json:"code_challenge,omitempty"`
	CodeChallengeMethod string    `json:"code_challenge_method,omitempty"` // plain or S256
	Nonce               string    `json:"nonce,omitempty"`
	CreatedAt           time.Time `json:"created_at"`
	ExpiresAt           time.Time `json:"expires_at"`
	Used                bool      `json:"used"`
}

// IsExpired checks if the authorization code has expired.
func (a *AuthCode) IsExpired() bool {
	return time.Now().After(a.ExpiresAt)
}

// TokenKind identifies what a persisted token record refers to.
type TokenKind string

const (
	TokenKindAccess  TokenKind = "access"  // Handle is a hash of the signed JWT
	TokenKindRefresh TokenKind = "refresh" // Handle is an opaque random value
)

// TokenRecord is the persisted record of an issued token.
// Records are never deleted during their validity window; revocation flips
// the flags and the record remains for audit until the scrubber reaps it.
type TokenRecord struct {
	Handle    string    `json:"handle"`
	Kind      TokenKind `json:"kind"`
	SubjectID string    `json:"subject_id"`
	ClientID  string    `json:"client_id"`
	Scope     string    `json:"scope"`
	FamilyID  string    `json:"family_id,omitempty"` // Refresh rotation chain
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Revoked   bool      `json:"revoked"`
	Consumed  bool      `json:"consumed"` // Refresh handle already rotated
}

// IsExpired checks if the token has expired.
func (t *TokenRecord) IsExpired() bool {
	return time.Now().After(t.ExpiresAt)
}

// IsValid checks if the token is usable (not expired, revoked, or consumed).
func (t *TokenRecord) IsValid() bool {
	return !t.IsExpired() && !t.Revoked && !t.Consumed
}

// SigningKey represents a persisted asymmetric key used for signing JWTs.
type SigningKey struct {
	ID         string    `json:"id"`          // Key ID (kid)
	Algorithm  string    `json:"algorithm"`   // e.g. RS256
	PrivateKey []byte    `json:"private_key"` // PEM
	PublicKey  []byte    `json:"public_key"`  // PEM
	Active     bool      `json:"active"`      // Currently used for signing
	CreatedAt  time.Time `json:"created_at"`
	ExpiresAt  time.Time `json:"expires_at"` // After this, key no longer verifies
}

// IsExpired checks if the signing key has passed its retention window.
func (k *SigningKey) IsExpired() bool {
	if k.ExpiresAt.IsZero() {
		return false
	}
	return time.Now().After(k.ExpiresAt)
}
