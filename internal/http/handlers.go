package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	liberrors "github.com/grantd/grantd/internal/errors"
	"github.com/grantd/grantd/internal/oauth"
)

// TokenHandler exposes the grant processor and revocation service over HTTP.
type TokenHandler struct {
	processor  *oauth.Processor
	revocation *oauth.RevocationService
	logger     *slog.Logger
}

// NewTokenHandler creates a TokenHandler.
func NewTokenHandler(processor *oauth.Processor, revocation *oauth.RevocationService, logger *slog.Logger) *TokenHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &TokenHandler{
		processor:  processor,
		revocation: revocation,
		logger:     logger,
	}
}

// Token handles POST /token - the OAuth 2.0 token endpoint.
func (h *TokenHandler) Token(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, err := oauth.ParseTokenRequest(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	resp, err := h.processor.Process(ctx, req)
	if err != nil {
		h.logger.Info("token request failed",
			"grant_type", req.GrantType,
			"client_id", req.ClientID,
			"error", err,
		)
		h.writeError(w, err)
		return
	}

	h.logger.Info("tokens issued", "grant_type", req.GrantType, "client_id", req.ClientID)

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
	json.NewEncoder(w).Encode(resp)
}

// Introspect handles POST /introspect - token introspection (RFC 7662).
func (h *TokenHandler) Introspect(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, err := oauth.ParseIntrospectionRequest(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	resp, err := h.revocation.Introspect(ctx, req)
	if err != nil {
		h.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// Revoke handles POST /revoke - token revocation (RFC 7009). Revoking an
// already-revoked or unknown token returns 200.
func (h *TokenHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, err := oauth.ParseRevocationRequest(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	if err := h.revocation.Revoke(ctx, req); err != nil {
		if liberrors.IsCode(err, liberrors.CodeForbidden) {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		h.writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
}

func (h *TokenHandler) writeError(w http.ResponseWriter, err error) {
	code, status := oauth.MapError(err)

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"error":             code,
		"error_description": oauth.ErrorDescription(err),
	})
}
