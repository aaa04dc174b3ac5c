package oauth

import (
	"context"
	"log/slog"

	"github.com/grantd/grantd/internal/auth"
	"github.com/grantd/grantd/internal/crypto"
	"github.com/grantd/grantd/internal/domain"
	liberrors "github.com/grantd/grantd/internal/errors"
	"github.com/grantd/grantd/internal/metrics"
	"github.com/grantd/grantd/internal/registry"
	"github.com/grantd/grantd/internal/store"
)

// RevocationService answers introspection queries and revokes tokens.
type RevocationService struct {
	clients   *registry.ClientRegistry
	validator *auth.Validator
	signer    *crypto.Signer
	tokens    store.TokenRepository
	logger    *slog.Logger
}

// RevocationOption configures the RevocationService.
type RevocationOption func(*RevocationService)

// WithRevocationLogger sets the logger for the service.
func WithRevocationLogger(logger *slog.Logger) RevocationOption {
	return func(s *RevocationService) {
		s.logger = logger
	}
}

// NewRevocationService creates a RevocationService.
func NewRevocationService(
	clients *registry.ClientRegistry,
	validator *auth.Validator,
	signer *crypto.Signer,
	tokens store.TokenRepository,
	opts ...RevocationOption,
) *RevocationService {
	s := &RevocationService{
		clients:   clients,
		validator: validator,
		signer:    signer,
		tokens:    tokens,
		logger:    slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// authenticateClient validates the requesting client's credentials.
func (s *RevocationService) authenticateClient(clientID, clientSecret string) (*domain.Client, error) {
	if clientID == "" {
		return nil, liberrors.Unauthorized("client authentication required")
	}

	client, err := s.clients.Lookup(clientID)
	if err != nil {
		return nil, liberrors.Unauthorized("invalid client credentials")
	}
	if !client.Public {
		if !s.validator.ValidateClientSecret(client, clientSecret) {
			return nil, liberrors.Unauthorized("invalid client credentials")
		}
	}
	return client, nil
}

// Introspect reports whether a token is active (RFC 7662). JWT access
// tokens are verified against the signer and cross-checked against the
// store's revocation state; opaque refresh handles are checked in the store.
func (s *RevocationService) Introspect(ctx context.Context, req *IntrospectionRequest) (*IntrospectionResponse, error) {
	if _, err := s.authenticateClient(req.ClientID, req.ClientSecret); err != nil {
		return nil, err
	}

	resp := s.introspect(ctx, req)
	metrics.RecordTokenIntrospection(resp.Active)
	return resp, nil
}

func (s *RevocationService) introspect(ctx context.Context, req *IntrospectionRequest) *IntrospectionResponse {
	// Try as an access token (JWT) first
	if req.TokenTypeHint == "" || req.TokenTypeHint == "access_token" {
		if claims, err := s.signer.Verify(req.Token); err == nil {
			// A revocation record trumps a valid signature
			if rec, err := s.tokens.Get(ctx, AccessTokenHandle(req.Token)); err == nil && rec.Revoked {
				return &IntrospectionResponse{Active: false}
			}

			return &IntrospectionResponse{
				Active:    true,
				Scope:     claims.Scope,
				ClientID:  claims.ClientID,
				Sub:       claims.Subject,
				Iss:       claims.Issuer,
				Aud:       claims.ClientID,
				Exp:       claims.ExpiresAt.Unix(),
				Iat:       claims.IssuedAt.Unix(),
				TokenType: "Bearer",
			}
		}
	}

	// Try as an opaque refresh handle
	if req.TokenTypeHint == "" || req.TokenTypeHint == "refresh_token" {
		if rec, err := s.tokens.Get(ctx, req.Token); err == nil && rec.IsValid() {
			var username string
			if subject, err := s.validator.LookupSubject(ctx, rec.SubjectID); err == nil {
				username = subject.Username
			}

			return &IntrospectionResponse{
				Active:    true,
				Scope:     rec.Scope,
				ClientID:  rec.ClientID,
				Username:  username,
				Sub:       rec.SubjectID,
				Exp:       rec.ExpiresAt.Unix(),
				TokenType: "refresh_token",
			}
		}
	}

	// Invalid, expired, revoked, or unknown
	return &IntrospectionResponse{Active: false}
}

// Revoke revokes a token (RFC 7009). The requesting client must own the
// token; revoking an unknown or already-revoked token succeeds so the
// operation is idempotent and does not leak token existence.
func (s *RevocationService) Revoke(ctx context.Context, req *RevocationRequest) error {
	client, err := s.authenticateClient(req.ClientID, req.ClientSecret)
	if err != nil {
		return err
	}

	record := s.findRecord(ctx, req)
	if record == nil {
		return nil // Unknown tokens are not an error
	}

	if record.ClientID != client.ID {
		return liberrors.Forbidden("token belongs to another client")
	}

	if err := s.tokens.Revoke(ctx, record.Handle); err != nil {
		return err
	}

	// Revoking a refresh token invalidates its whole rotation chain
	if record.Kind == domain.TokenKindRefresh && record.FamilyID != "" {
		if err := s.tokens.RevokeFamily(ctx, record.FamilyID); err != nil {
			return err
		}
	}

	metrics.RecordTokenRevocation()
	s.logger.Info("token revoked", "client_id", client.ID, "kind", record.Kind)
	return nil
}

// findRecord resolves the request's token to a store record, trying the
// opaque handle first and the JWT hash second.
func (s *RevocationService) findRecord(ctx context.Context, req *RevocationRequest) *domain.TokenRecord {
	if req.TokenTypeHint == "" || req.TokenTypeHint == "refresh_token" {
		if rec, err := s.tokens.Get(ctx, req.Token); err == nil {
			return rec
		}
	}
	if req.TokenTypeHint == "" || req.TokenTypeHint == "access_token" {
		if rec, err := s.tokens.Get(ctx, AccessTokenHandle(req.Token)); err == nil {
			return rec
		}
	}
	return nil
}
