package oauth

import (
	"crypto/sha256"
	"encoding/base64"
)

// ValidateCodeVerifier validates a PKCE code verifier against the stored
// challenge (RFC 7636).
func ValidateCodeVerifier(codeVerifier, codeChallenge, codeChallengeMethod string) bool {
	if codeChallenge == "" {
		// No PKCE was used
		return codeVerifier == ""
	}

	if codeVerifier == "" {
		return false
	}

	switch codeChallengeMethod {
	case "plain":
		return codeVerifier == codeChallenge
	case "S256":
		hash := sha256.Sum256([]byte(codeVerifier))
		computed := base64.RawURLEncoding.EncodeToString(hash[:])
		return computed == codeChallenge
	default:
		return false
	}
}
