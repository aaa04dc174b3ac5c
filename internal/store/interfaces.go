// Package store defines repository interfaces for persistence.
package store

import (
	"context"
	"time"

	"github.com/grantd/grantd/internal/domain"
)

// SubjectRepository defines operations for resource-owner persistence.
type SubjectRepository interface {
	Create(ctx context.Context, subject *domain.Subject) error
	GetByID(ctx context.Context, id string) (*domain.Subject, error)
	GetByUsername(ctx context.Context, username string) (*domain.Subject, error)
	Update(ctx context.Context, subject *domain.Subject) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]*domain.Subject, error)
}

// ClientRepository defines operations for OAuth client persistence.
type ClientRepository interface {
	Create(ctx context.Context, client *domain.Client) error
	GetByID(ctx context.Context, id string) (*domain.Client, error)
	Update(ctx context.Context, client *domain.Client) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]*domain.Client, error)
}

// ScopeRepository defines operations for scope catalog persistence.
type ScopeRepository interface {
	Create(ctx context.Context, scope *domain.Scope) error
	GetByName(ctx context.Context, name string) (*domain.Scope, error)
	Delete(ctx context.Context, name string) error
	List(ctx context.Context) ([]*domain.Scope, error)
}

// AuthCodeRepository defines operations for authorization code persistence.
type AuthCodeRepository interface {
	Create(ctx context.Context, code *domain.AuthCode) error
	GetByCode(ctx context.Context, code string) (*domain.AuthCode, error)
	// Consume atomically marks an unused code as used and returns it.
	// A second Consume of the same code fails with CodeInvalidGrant,
	// so concurrent redemption yields exactly one success.
	Consume(ctx context.Context, code string) (*domain.AuthCode, error)
	Delete(ctx context.Context, code string) error
	DeleteExpired(ctx context.Context) error
}

// TokenRepository defines operations for token record persistence.
type TokenRepository interface {
	Create(ctx context.Context, record *domain.TokenRecord) error
	Get(ctx context.Context, handle string) (*domain.TokenRecord, error)
	// Consume atomically marks a live refresh handle consumed and returns the
	// record as it was before consumption. Consuming an already-consumed or
	// revoked handle fails with CodeInvalidGrant; the record is still
	// returned when it exists so the caller can detect reuse and act on the
	// token family.
	Consume(ctx context.Context, handle string) (*domain.TokenRecord, error)
	// Revoke marks a record revoked. Revoking an already-revoked or unknown
	// handle is not an error.
	Revoke(ctx context.Context, handle string) error
	RevokeFamily(ctx context.Context, familyID string) error
	RevokeBySubjectID(ctx context.Context, subjectID string) error
	RevokeByClientID(ctx context.Context, clientID string) error
	// DeleteExpired removes records expired past the retention grace period.
	DeleteExpired(ctx context.Context, grace time.Duration) error
}

// SigningKeyRepository defines operations for signing key persistence.
type SigningKeyRepository interface {
	Save(ctx context.Context, key *domain.SigningKey) error
	GetByID(ctx context.Context, id string) (*domain.SigningKey, error)
	GetActive(ctx context.Context) (*domain.SigningKey, error)
	GetAll(ctx context.Context) ([]*domain.SigningKey, error)
	SetActive(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
}

// Store aggregates all repositories.
type Store interface {
	Subjects() SubjectRepository
	Clients() ClientRepository
	Scopes() ScopeRepository
	AuthCodes() AuthCodeRepository
	Tokens() TokenRepository
	SigningKeys() SigningKeyRepository
	Close() error
}
