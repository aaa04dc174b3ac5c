// Package oauth implements the OAuth 2.0 token issuance and validation
// engine: grant processing, token minting, introspection, and revocation.
package oauth

import (
	"encoding/base64"
	"errors"
	"net/http"
	"strings"

	liberrors "github.com/grantd/grantd/internal/errors"
)

// OAuth 2.0 error codes (RFC 6749 §5.2).
const (
	ErrCodeInvalidRequest       = "invalid_request"
	ErrCodeInvalidClient        = "invalid_client"
	ErrCodeInvalidGrant         = "invalid_grant"
	ErrCodeUnauthorizedClient   = "unauthorized_client"
	ErrCodeUnsupportedGrantType = "unsupported_grant_type"
	ErrCodeInvalidScope         = "invalid_scope"
	ErrCodeServerError          = "server_error"
	ErrCodeUnavailable          = "temporarily_unavailable"
)

// TokenRequest represents a parsed token request.
type TokenRequest struct {
	GrantType    string
	ClientID     string
	ClientSecret string
	Username     string
	Password     string
	Code         string
	RedirectURI  string
	CodeVerifier string
	RefreshToken string
	Scope        string
}

// RevocationRequest represents a token revocation request (RFC 7009).
type RevocationRequest struct {
	Token         string
	TokenTypeHint string // "access_token" or "refresh_token"
	ClientID      string
	ClientSecret  string
}

// IntrospectionRequest represents a token introspection request (RFC 7662).
type IntrospectionRequest struct {
	Token         string
	TokenTypeHint string
	ClientID      string
	ClientSecret  string
}

// TokenResponse represents the token endpoint response.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	IDToken      string `json:"id_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

// IntrospectionResponse represents the introspection response.
type IntrospectionResponse struct {
	Active    bool   `json:"active"`
	Scope     string `json:"scope,omitempty"`
	ClientID  string `json:"client_id,omitempty"`
	Username  string `json:"username,omitempty"`
	TokenType string `json:"token_type,omitempty"`
	Exp       int64  `json:"exp,omitempty"`
	Iat       int64  `json:"iat,omitempty"`
	Sub       string `json:"sub,omitempty"`
	Aud       string `json:"aud,omitempty"`
	Iss       string `json:"iss,omitempty"`
}

// basicClientCredentials extracts client credentials from an HTTP Basic
// Authorization header, when present.
func basicClientCredentials(r *http.Request, clientID, clientSecret *string) {
	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Basic ") {
		return
	}
	decoded, err := base64.StdEncoding.DecodeString(auth[6:])
	if err != nil {
		return
	}
	parts := strings.SplitN(string(decoded), ":", 2)
	if len(parts) == 2 {
		*clientID = parts[0]
		*clientSecret = parts[1]
	}
}

// ParseTokenRequest parses a token request from the HTTP request.
func ParseTokenRequest(r *http.Request) (*TokenRequest, error) {
	if err := r.ParseForm(); err != nil {
		return nil, liberrors.InvalidInput("invalid form data")
	}

	req := &TokenRequest{
		GrantType:    r.FormValue("grant_type"),
		ClientID:     r.FormValue("client_id"),
		ClientSecret: r.FormValue("client_secret"),
		Username:     r.FormValue("username"),
		Password:     r.FormValue("password"),
		Code:         r.FormValue("code"),
		RedirectURI:  r.FormValue("redirect_uri"),
		CodeVerifier: r.FormValue("code_verifier"),
		RefreshToken: r.FormValue("refresh_token"),
		Scope:        r.FormValue("scope"),
	}

	basicClientCredentials(r, &req.ClientID, &req.ClientSecret)

	if req.GrantType == "" {
		return nil, liberrors.InvalidInput("grant_type is required")
	}
	if req.ClientID == "" {
		return nil, liberrors.InvalidInput("client_id is required")
	}

	return req, nil
}

// ParseRevocationRequest parses a token revocation request.
func ParseRevocationRequest(r *http.Request) (*RevocationRequest, error) {
	if err := r.ParseForm(); err != nil {
		return nil, liberrors.InvalidInput("invalid form data")
	}

	req := &RevocationRequest{
		Token:         r.FormValue("token"),
		TokenTypeHint: r.FormValue("token_type_hint"),
		ClientID:      r.FormValue("client_id"),
		ClientSecret:  r.FormValue("client_secret"),
	}

	basicClientCredentials(r, &req.ClientID, &req.ClientSecret)

	if req.Token == "" {
		return nil, liberrors.InvalidInput("token is required")
	}

	return req, nil
}

// ParseIntrospectionRequest parses a token introspection request.
func ParseIntrospectionRequest(r *http.Request) (*IntrospectionRequest, error) {
	if err := r.ParseForm(); err != nil {
		return nil, liberrors.InvalidInput("invalid form data")
	}

	req := &IntrospectionRequest{
		Token:         r.FormValue("token"),
		TokenTypeHint: r.FormValue("token_type_hint"),
		ClientID:      r.FormValue("client_id"),
		ClientSecret:  r.FormValue("client_secret"),
	}

	basicClientCredentials(r, &req.ClientID, &req.ClientSecret)

	if req.Token == "" {
		return nil, liberrors.InvalidInput("token is required")
	}

	return req, nil
}

// MapError translates an internal error into an OAuth 2.0 error code and
// HTTP status. Detail never leaks for server-side failures.
func MapError(err error) (code string, status int) {
	switch {
	case liberrors.IsCode(err, liberrors.CodeUnauthorized):
		return ErrCodeInvalidClient, http.StatusUnauthorized
	case liberrors.IsCode(err, liberrors.CodeUnauthorizedClient):
		return ErrCodeUnauthorizedClient, http.StatusBadRequest
	case liberrors.IsCode(err, liberrors.CodeUnsupportedGrant):
		return ErrCodeUnsupportedGrantType, http.StatusBadRequest
	case liberrors.IsCode(err, liberrors.CodeInvalidGrant),
		liberrors.IsCode(err, liberrors.CodeNotFound),
		liberrors.IsCode(err, liberrors.CodeRateLimited):
		return ErrCodeInvalidGrant, http.StatusBadRequest
	case liberrors.IsCode(err, liberrors.CodeInvalidScope),
		liberrors.IsCode(err, liberrors.CodeUnknownScope):
		return ErrCodeInvalidScope, http.StatusBadRequest
	case liberrors.IsCode(err, liberrors.CodeInvalidInput):
		return ErrCodeInvalidRequest, http.StatusBadRequest
	case liberrors.IsCode(err, liberrors.CodeStoreUnavailable):
		return ErrCodeUnavailable, http.StatusServiceUnavailable
	case liberrors.IsCode(err, liberrors.CodeSigningUnavailable):
		return ErrCodeServerError, http.StatusInternalServerError
	default:
		return ErrCodeServerError, http.StatusInternalServerError
	}
}

// ErrorDescription returns a safe human-readable description for a mapped
// error. Server-side failures get a generic description.
func ErrorDescription(err error) string {
	code, _ := MapError(err)
	switch code {
	case ErrCodeServerError:
		return "internal error"
	case ErrCodeUnavailable:
		return "service temporarily unavailable"
	case ErrCodeInvalidGrant:
		// Identical body for every credential mismatch
		return "invalid credentials or grant"
	}
	var e *liberrors.Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "request failed"
}
