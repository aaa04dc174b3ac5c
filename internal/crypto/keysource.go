package crypto

import (
	"context"
	"fmt"

	liberrors "github.com/grantd/grantd/internal/errors"
	"github.com/grantd/grantd/internal/store"
)

// KeySource provides scoped acquisition of signing key material. The signer
// acquires keys through this capability and never cares where the bytes came
// from. Release zeroes the persisted private key copy held by the source.
type KeySource interface {
	// AcquireActive returns the active signing key, creating one when the
	// backing source has none.
	AcquireActive(ctx context.Context) (*KeyPair, error)
	// AcquireAll returns every key still inside its retention window.
	AcquireAll(ctx context.Context) ([]*KeyPair, error)
	// Store persists a key pair and optionally marks it active.
	Store(ctx context.Context, kp *KeyPair, active bool) error
}

// RepositoryKeySource loads key material from a SigningKeyRepository.
type RepositoryKeySource struct {
	repo store.SigningKeyRepository
}

// NewRepositoryKeySource creates a KeySource over the repository.
func NewRepositoryKeySource(repo store.SigningKeyRepository) *RepositoryKeySource {
	return &RepositoryKeySource{repo: repo}
}

// AcquireActive returns the active key, generating and persisting one when
// the repository is empty.
func (s *RepositoryKeySource) AcquireActive(ctx context.Context) (*KeyPair, error) {
	rec, err := s.repo.GetActive(ctx)
	if err == nil {
		kp, loadErr := FromRecord(rec)
		if loadErr != nil {
			return nil, fmt.Errorf("failed to load active key: %w", loadErr)
		}
		zero(rec.PrivateKey)
		return kp, nil
	}
	if !liberrors.IsCode(err, liberrors.CodeNotFound) {
		return nil, err
	}

	kp, err := GenerateKeyPair(DefaultKeySize)
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	if err := s.Store(ctx, kp, true); err != nil {
		return nil, err
	}
	return kp, nil
}

// AcquireAll returns all keys still within their retention window.
func (s *RepositoryKeySource) AcquireAll(ctx context.Context) ([]*KeyPair, error) {
	recs, err := s.repo.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	pairs := make([]*KeyPair, 0, len(recs))
	for _, rec := range recs {
		if rec.IsExpired() {
			continue
		}
		kp, err := FromRecord(rec)
		if err != nil {
			continue // Skip unreadable keys
		}
		zero(rec.PrivateKey)
		pairs = append(pairs, kp)
	}
	return pairs, nil
}

// Store persists a key pair.
func (s *RepositoryKeySource) Store(ctx context.Context, kp *KeyPair, active bool) error {
	rec, err := kp.ToRecord()
	if err != nil {
		return err
	}
	defer zero(rec.PrivateKey)

	if err := s.repo.Save(ctx, rec); err != nil {
		return fmt.Errorf("failed to save key: %w", err)
	}
	if active {
		if err := s.repo.SetActive(ctx, kp.Kid); err != nil {
			return fmt.Errorf("failed to activate key: %w", err)
		}
	}
	return nil
}

// zero wipes a private key buffer after the scoped use ends.
func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
