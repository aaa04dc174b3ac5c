package oauth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"

	"github.com/grantd/grantd/internal/auth"
	"github.com/grantd/grantd/internal/crypto"
	"github.com/grantd/grantd/internal/domain"
	liberrors "github.com/grantd/grantd/internal/errors"
	"github.com/grantd/grantd/internal/metrics"
	"github.com/grantd/grantd/internal/registry"
	"github.com/grantd/grantd/internal/store"
)

const (
	// storeRetries bounds internal retries of transient store failures.
	storeRetries = 2
	// storeRetryInterval is the initial backoff between store retries.
	storeRetryInterval = 50 * time.Millisecond
)

// Processor dispatches token requests to the grant-type handlers and mints
// token sets. Every issued token is durably recorded before the response is
// returned.
type Processor struct {
	clients   *registry.ClientRegistry
	scopes    *registry.ScopeRegistry
	validator *auth.Validator
	signer    *crypto.Signer
	tokens    store.TokenRepository
	authCodes store.AuthCodeRepository

	accessTTL  time.Duration
	refreshTTL time.Duration
	logger     *slog.Logger
}

// ProcessorOption configures the Processor.
type ProcessorOption func(*Processor)

// WithLogger sets the logger for the processor.
func WithLogger(logger *slog.Logger) ProcessorOption {
	return func(p *Processor) {
		p.logger = logger
	}
}

// NewProcessor creates a grant processor.
func NewProcessor(
	clients *registry.ClientRegistry,
	scopes *registry.ScopeRegistry,
	validator *auth.Validator,
	signer *crypto.Signer,
	tokens store.TokenRepository,
	authCodes store.AuthCodeRepository,
	accessTTL, refreshTTL time.Duration,
	opts ...ProcessorOption,
) *Processor {
	p := &Processor{
		clients:    clients,
		scopes:     scopes,
		validator:  validator,
		signer:     signer,
		tokens:     tokens,
		authCodes:  authCodes,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		logger:     slog.Default(),
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Process validates the client, resolves scopes, validates credentials, and
// issues tokens, per grant type.
func (p *Processor) Process(ctx context.Context, req *TokenRequest) (*TokenResponse, error) {
	// A grant type the server does not implement is unsupported_grant_type,
	// distinct from a registered type the client may not use.
	switch req.GrantType {
	case domain.GrantPassword, domain.GrantClientCredentials,
		domain.GrantAuthorizationCode, domain.GrantRefreshToken:
	default:
		return nil, liberrors.New(liberrors.CodeUnsupportedGrant, "unsupported grant type: "+req.GrantType)
	}

	client, err := p.validateClient(req)
	if err != nil {
		return nil, err
	}

	var resp *TokenResponse
	switch req.GrantType {
	case domain.GrantPassword:
		resp, err = p.handlePassword(ctx, req, client)
	case domain.GrantClientCredentials:
		resp, err = p.handleClientCredentials(ctx, req, client)
	case domain.GrantAuthorizationCode:
		resp, err = p.handleAuthorizationCode(ctx, req, client)
	case domain.GrantRefreshToken:
		resp, err = p.handleRefreshToken(ctx, req, client)
	}

	if err != nil {
		metrics.RecordGrant(req.GrantType, "failure")
		return nil, err
	}
	metrics.RecordGrant(req.GrantType, "success")
	return resp, nil
}

// validateClient covers the ReceivedRequest -> ClientValidated transition:
// the client must exist, be allowed the grant type, and authenticate when
// confidential.
func (p *Processor) validateClient(req *TokenRequest) (*domain.Client, error) {
	client, err := p.clients.Lookup(req.ClientID)
	if err != nil {
		return nil, liberrors.Unauthorized("invalid client credentials")
	}

	if !p.clients.ValidateGrantType(client.ID, req.GrantType) {
		return nil, liberrors.New(liberrors.CodeUnauthorizedClient, "grant type not allowed for client")
	}

	if !client.Public {
		if !p.validator.ValidateClientSecret(client, req.ClientSecret) {
			return nil, liberrors.Unauthorized("invalid client credentials")
		}
	}

	return client, nil
}

func (p *Processor) handlePassword(ctx context.Context, req *TokenRequest, client *domain.Client) (*TokenResponse, error) {
	if req.Username == "" || req.Password == "" {
		return nil, liberrors.InvalidInput("username and password are required")
	}

	granted, err := p.scopes.Resolve(registry.SplitScopes(req.Scope), client, false)
	if err != nil {
		return nil, err
	}

	subject, err := p.validator.ValidatePassword(ctx, req.Username, req.Password)
	if err != nil {
		return nil, err
	}

	return p.issueTokens(ctx, req.GrantType, subject, client, granted, "", "")
}

func (p *Processor) handleClientCredentials(ctx context.Context, req *TokenRequest, client *domain.Client) (*TokenResponse, error) {
	// Client-credentials clients are confidential by definition
	if client.Public {
		return nil, liberrors.Unauthorized("invalid client credentials")
	}

	// Strict policy: any scope outside the allowed set is an error
	granted, err := p.scopes.Resolve(registry.SplitScopes(req.Scope), client, true)
	if err != nil {
		return nil, err
	}

	// The client is its own subject; no refresh token is issued
	return p.issueTokens(ctx, req.GrantType, nil, client, granted, "", "")
}

func (p *Processor) handleAuthorizationCode(ctx context.Context, req *TokenRequest, client *domain.Client) (*TokenResponse, error) {
	if req.Code == "" {
		return nil, liberrors.InvalidInput("code is required")
	}
	if req.RedirectURI == "" {
		return nil, liberrors.InvalidInput("redirect_uri is required")
	}

	// Consume is atomic: concurrent redemption of the same code yields
	// exactly one success. The code burns on first touch even when later
	// checks fail.
	authCode, err := p.consumeAuthCode(ctx, req.Code)
	if err != nil {
		if liberrors.IsCode(err, liberrors.CodeNotFound) {
			return nil, liberrors.InvalidGrant()
		}
		return nil, err
	}

	if authCode.ClientID != req.ClientID {
		return nil, liberrors.InvalidGrant()
	}
	// The presented URI must be registered for the client and match the one
	// the code was bound to.
	if !p.clients.ValidateRedirectURI(client.ID, req.RedirectURI) {
		return nil, liberrors.InvalidGrant()
	}
	if authCode.RedirectURI != req.RedirectURI {
		return nil, liberrors.InvalidGrant()
	}
	if !ValidateCodeVerifier(req.CodeVerifier, authCode.CodeChallenge, authCode.CodeChallengeMethod) {
		return nil, liberrors.InvalidGrant()
	}

	granted, err := p.scopes.Resolve(registry.SplitScopes(authCode.Scope), client, false)
	if err != nil {
		return nil, err
	}

	subject, err := p.validator.LookupSubject(ctx, authCode.SubjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to get subject: %w", err)
	}

	return p.issueTokens(ctx, req.GrantType, subject, client, granted, authCode.Nonce, "")
}

func (p *Processor) handleRefreshToken(ctx context.Context, req *TokenRequest, client *domain.Client) (*TokenResponse, error) {
	if req.RefreshToken == "" {
		return nil, liberrors.InvalidInput("refresh_token is required")
	}

	// Consume atomically marks the handle rotated; a concurrent second use
	// fails. A handle that was already consumed signals theft: the whole
	// family is revoked.
	record, err := p.tokens.Consume(ctx, req.RefreshToken)
	if err != nil {
		if record != nil && record.Consumed {
			p.revokeFamilyOnReuse(ctx, record)
		}
		if liberrors.IsCode(err, liberrors.CodeNotFound) {
			return nil, liberrors.InvalidGrant()
		}
		return nil, err
	}

	if record.Kind != domain.TokenKindRefresh || record.ClientID != req.ClientID {
		return nil, liberrors.InvalidGrant()
	}

	subject, err := p.validator.LookupSubject(ctx, record.SubjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to get subject: %w", err)
	}

	// The new grant may narrow the original scope but never widen it
	scope := record.Scope
	if req.Scope != "" {
		requested := registry.SplitScopes(req.Scope)
		original := make(map[string]bool)
		for _, s := range registry.SplitScopes(record.Scope) {
			original[s] = true
		}
		for _, s := range requested {
			if !original[s] {
				return nil, liberrors.New(liberrors.CodeInvalidScope, "scope exceeds original grant")
			}
		}
		scope = req.Scope
	}

	granted, err := p.scopes.Resolve(registry.SplitScopes(scope), client, false)
	if err != nil {
		return nil, err
	}

	return p.issueTokens(ctx, req.GrantType, subject, client, granted, "", record.FamilyID)
}

// revokeFamilyOnReuse implements the stolen-token defense: presenting an
// already-rotated refresh token invalidates every descendant of the grant.
func (p *Processor) revokeFamilyOnReuse(ctx context.Context, record *domain.TokenRecord) {
	p.logger.Warn("refresh token reuse detected, revoking token family",
		"client_id", record.ClientID,
		"family_id", record.FamilyID,
	)
	metrics.RecordFamilyRevocation()

	if err := p.tokens.RevokeFamily(ctx, record.FamilyID); err != nil {
		p.logger.Error("failed to revoke token family", "family_id", record.FamilyID, "error", err)
	}
}

// issueTokens covers the CredentialsValidated -> TokensIssued transition.
// Subject is nil for the client-credentials grant. Records are written
// before the response is returned so no token exists that the store does
// not know about.
func (p *Processor) issueTokens(
	ctx context.Context,
	grantType string,
	subject *domain.Subject,
	client *domain.Client,
	grantedScopes []string,
	nonce string,
	familyID string,
) (*TokenResponse, error) {
	scope := registry.JoinScopes(grantedScopes)
	accessTTL := p.accessTTL
	if client.AccessTokenTTL > 0 {
		accessTTL = client.AccessTokenTTL
	}

	subjectID := client.ID
	if subject != nil {
		subjectID = subject.ID
	}

	accessClaims := &crypto.Claims{
		Scope:    scope,
		ClientID: client.ID,
	}
	accessClaims.Subject = subjectID

	accessToken, accessExpiry, err := p.signer.Sign(accessClaims, accessTTL)
	if err != nil {
		p.logger.Error("token signing failed", "client_id", client.ID, "error", err)
		return nil, liberrors.SigningUnavailable(err)
	}

	// Record the access token before responding
	accessRecord := &domain.TokenRecord{
		Handle:    AccessTokenHandle(accessToken),
		Kind:      domain.TokenKindAccess,
		SubjectID: subjectID,
		ClientID:  client.ID,
		Scope:     scope,
		IssuedAt:  time.Now(),
		ExpiresAt: accessExpiry,
	}
	if err := p.recordToken(ctx, accessRecord); err != nil {
		return nil, err
	}
	metrics.RecordTokenIssued("access", grantType)

	response := &TokenResponse{
		AccessToken: accessToken,
		TokenType:   "Bearer",
		ExpiresIn:   int(accessTTL.Seconds()),
		Scope:       scope,
	}

	// Identity token only when the openid scope was granted to a subject
	if subject != nil && hasScope(grantedScopes, domain.ScopeOpenID) {
		idClaims := &crypto.Claims{
			Email:         subject.Email,
			EmailVerified: subject.Email != "",
			Name:          subject.DisplayName,
			ClientID:      client.ID,
		}
		idClaims.Subject = subject.ID
		if nonce != "" {
			idClaims.Extra = map[string]any{"nonce": nonce}
		}

		idToken, _, err := p.signer.Sign(idClaims, accessTTL)
		if err != nil {
			p.logger.Error("token signing failed", "client_id", client.ID, "error", err)
			return nil, liberrors.SigningUnavailable(err)
		}
		response.IDToken = idToken
		metrics.RecordTokenIssued("id", grantType)
	}

	// Refresh token only for clients authorized for offline access, and
	// never for the client-credentials grant
	if subject != nil &&
		client.AllowsGrantType(domain.GrantRefreshToken) &&
		hasScope(grantedScopes, domain.ScopeOfflineAccess) {

		refreshTTL := p.refreshTTL
		if client.RefreshTokenTTL > 0 {
			refreshTTL = client.RefreshTokenTTL
		}
		if familyID == "" {
			familyID = uuid.New().String()
		}

		handle, err := newRefreshHandle()
		if err != nil {
			return nil, liberrors.Internal("failed to generate refresh handle", err)
		}

		refreshRecord := &domain.TokenRecord{
			Handle:    handle,
			Kind:      domain.TokenKindRefresh,
			SubjectID: subject.ID,
			ClientID:  client.ID,
			Scope:     scope,
			FamilyID:  familyID,
			IssuedAt:  time.Now(),
			ExpiresAt: time.Now().Add(refreshTTL),
		}
		if err := p.recordToken(ctx, refreshRecord); err != nil {
			return nil, err
		}

		response.RefreshToken = handle
		metrics.RecordTokenIssued("refresh", grantType)
	}

	return response, nil
}

// recordToken persists a record, retrying transient store failures with
// bounded backoff before failing the request.
func (p *Processor) recordToken(ctx context.Context, record *domain.TokenRecord) error {
	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = storeRetryInterval

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := p.tokens.Create(ctx, record)
		if err != nil && !liberrors.IsRetryable(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(expBackoff),
		backoff.WithMaxTries(storeRetries+1),
	)
	if err != nil {
		p.logger.Error("failed to record token", "kind", record.Kind, "error", err)
		return err
	}
	return nil
}

// consumeAuthCode redeems a code with the same bounded retry policy as
// token writes.
func (p *Processor) consumeAuthCode(ctx context.Context, code string) (*domain.AuthCode, error) {
	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = storeRetryInterval

	return backoff.Retry(ctx, func() (*domain.AuthCode, error) {
		authCode, err := p.authCodes.Consume(ctx, code)
		if err != nil && !liberrors.IsRetryable(err) {
			return nil, backoff.Permanent(err)
		}
		return authCode, err
	},
		backoff.WithBackOff(expBackoff),
		backoff.WithMaxTries(storeRetries+1),
	)
}

func hasScope(scopes []string, name string) bool {
	for _, s := range scopes {
		if s == name {
			return true
		}
	}
	return false
}

// AccessTokenHandle derives the opaque store handle of a signed access
// token. The raw JWT never hits the store.
func AccessTokenHandle(token string) string {
	sum := sha256.Sum256([]byte(token))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// newRefreshHandle generates an unguessable refresh token handle.
func newRefreshHandle() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
