package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/grantd/grantd/internal/crypto"
)

// JWKSHandler serves the public verification keys.
type JWKSHandler struct {
	signer *crypto.Signer
	logger *slog.Logger
}

// NewJWKSHandler creates a new JWKSHandler.
func NewJWKSHandler(signer *crypto.Signer, logger *slog.Logger) *JWKSHandler {
	return &JWKSHandler{
		signer: signer,
		logger: logger,
	}
}

// JWKS handles the /.well-known/jwks.json endpoint.
func (h *JWKSHandler) JWKS(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	jwks := h.signer.JWKS()

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	if err := json.NewEncoder(w).Encode(jwks); err != nil {
		h.logger.Error("failed to encode JWKS", "error", err)
	}
}
