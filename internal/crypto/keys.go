// Package crypto provides JWT signing, verification, and key management.
package crypto

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/grantd/grantd/internal/domain"
)

const (
	// DefaultKeySize is the default RSA key size in bits.
	DefaultKeySize = 2048
	// Algorithm is the JWT signing algorithm.
	Algorithm = "RS256"
	// KeyType is the JWK key type.
	KeyType = "RSA"
	// KeyUse is the JWK key use.
	KeyUse = "sig"
)

// KeyPair represents an RSA key pair for JWT signing.
type KeyPair struct {
	Kid        string
	Alg        string
	PrivateKey *rsa.PrivateKey
	PublicKey  *rsa.PublicKey
	CreatedAt  time.Time
	ExpiresAt  time.Time
	Active     bool
}

// GenerateKeyPair generates a new RSA key pair.
func GenerateKeyPair(keySize int) (*KeyPair, error) {
	if keySize == 0 {
		keySize = DefaultKeySize
	}

	privateKey, err := rsa.GenerateKey(rand.Reader, keySize)
	if err != nil {
		return nil, fmt.Errorf("failed to generate RSA key: %w", err)
	}

	return &KeyPair{
		Kid:        uuid.New().String(),
		Alg:        Algorithm,
		PrivateKey: privateKey,
		PublicKey:  &privateKey.PublicKey,
		CreatedAt:  time.Now(),
		Active:     true,
	}, nil
}

// IsExpired checks if the key has passed its retention window.
func (kp *KeyPair) IsExpired() bool {
	if kp.ExpiresAt.IsZero() {
		return false
	}
	return time.Now().After(kp.ExpiresAt)
}

// ToRecord serializes the pair to its persisted form.
func (kp *KeyPair) ToRecord() (*domain.SigningKey, error) {
	privateKeyBytes := x509.MarshalPKCS1PrivateKey(kp.PrivateKey)
	privatePEM := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: privateKeyBytes,
	})

	publicKeyBytes, err := x509.MarshalPKIXPublicKey(kp.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal public key: %w", err)
	}
	publicPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PUBLIC KEY",
		Bytes: publicKeyBytes,
	})

	return &domain.SigningKey{
		ID:         kp.Kid,
		Algorithm:  kp.Alg,
		PrivateKey: privatePEM,
		PublicKey:  publicPEM,
		Active:     kp.Active,
		CreatedAt:  kp.CreatedAt,
		ExpiresAt:  kp.ExpiresAt,
	}, nil
}

// FromRecord restores a key pair from its persisted form.
func FromRecord(rec *domain.SigningKey) (*KeyPair, error) {
	block, _ := pem.Decode(rec.PrivateKey)
	if block == nil {
		return nil, fmt.Errorf("failed to decode private key PEM")
	}
	privateKey, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	block, _ = pem.Decode(rec.PublicKey)
	if block == nil {
		return nil, fmt.Errorf("failed to decode public key PEM")
	}
	publicKey, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}
	rsaPublicKey, ok := publicKey.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("not an RSA public key")
	}

	return &KeyPair{
		Kid:        rec.ID,
		Alg:        rec.Algorithm,
		PrivateKey: privateKey,
		PublicKey:  rsaPublicKey,
		CreatedAt:  rec.CreatedAt,
		ExpiresAt:  rec.ExpiresAt,
		Active:     rec.Active,
	}, nil
}
