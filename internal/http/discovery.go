package http

import (
	"encoding/json"
	"net/http"
	"strings"
)

// OIDCDiscovery represents the OIDC discovery document.
type OIDCDiscovery struct {
	Issuer                            string   `json:"issuer"`
	TokenEndpoint                     string   `json:"token_endpoint"`
	IntrospectionEndpoint             string   `json:"introspection_endpoint"`
	RevocationEndpoint                string   `json:"revocation_endpoint"`
	JwksURI                           string   `json:"jwks_uri"`
	ScopesSupported                   []string `json:"scopes_supported"`
	ResponseTypesSupported            []string `json:"response_types_supported"`
	GrantTypesSupported               []string `json:"grant_types_supported"`
	SubjectTypesSupported             []string `json:"subject_types_supported"`
	IDTokenSigningAlgValuesSupported  []string `json:"id_token_signing_alg_values_supported"`
	TokenEndpointAuthMethodsSupported []string `json:"token_endpoint_auth_methods_supported"`
	ClaimsSupported                   []string `json:"claims_supported,omitempty"`
	CodeChallengeMethodsSupported     []string `json:"code_challenge_methods_supported,omitempty"`
}

// DiscoveryHandler handles the OIDC discovery endpoint.
type DiscoveryHandler struct {
	issuerURL string
	scopes    []string
}

// NewDiscoveryHandler creates a new DiscoveryHandler. The advertised scope
// list comes from the scope catalog at startup.
func NewDiscoveryHandler(issuerURL string, scopes []string) *DiscoveryHandler {
	return &DiscoveryHandler{
		issuerURL: strings.TrimSuffix(issuerURL, "/"),
		scopes:    scopes,
	}
}

// OpenIDConfiguration handles the /.well-known/openid-configuration endpoint.
func (h *DiscoveryHandler) OpenIDConfiguration(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	discovery := OIDCDiscovery{
		Issuer:                h.issuerURL,
		TokenEndpoint:         h.issuerURL + "/token",
		IntrospectionEndpoint: h.issuerURL + "/introspect",
		RevocationEndpoint:    h.issuerURL + "/revoke",
		JwksURI:               h.issuerURL + "/.well-known/jwks.json",

		ScopesSupported: h.scopes,

		ResponseTypesSupported: []string{
			"code",
		},

		GrantTypesSupported: []string{
			"password",
			"client_credentials",
			"authorization_code",
			"refresh_token",
		},

		SubjectTypesSupported: []string{
			"public",
		},

		IDTokenSigningAlgValuesSupported: []string{
			"RS256",
		},

		TokenEndpointAuthMethodsSupported: []string{
			"client_secret_basic",
			"client_secret_post",
			"none", // For public clients with PKCE
		},

		ClaimsSupported: []string{
			"iss",
			"sub",
			"aud",
			"exp",
			"iat",
			"scope",
			"client_id",
			"email",
			"email_verified",
			"name",
		},

		CodeChallengeMethodsSupported: []string{
			"S256",
		},
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	if err := json.NewEncoder(w).Encode(discovery); err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}
