package auth

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/grantd/grantd/internal/domain"
	liberrors "github.com/grantd/grantd/internal/errors"
	"github.com/grantd/grantd/internal/metrics"
	"github.com/grantd/grantd/internal/store"
)

// CredentialStore abstracts the external identity store. The validator never
// depends on a concrete user backend.
type CredentialStore interface {
	// ValidateCredentials checks a username/password pair and returns the
	// subject on success. Mismatches and unknown usernames both fail with
	// invalid_grant.
	ValidateCredentials(ctx context.Context, username, password string) (*domain.Subject, error)
	// LookupSubject returns a subject by its identifier.
	LookupSubject(ctx context.Context, id string) (*domain.Subject, error)
}

// SubjectCredentials implements CredentialStore over a SubjectRepository
// with argon2id password hashes.
type SubjectCredentials struct {
	subjects store.SubjectRepository
	logger   *slog.Logger
}

// NewSubjectCredentials creates a CredentialStore backed by the repository.
func NewSubjectCredentials(subjects store.SubjectRepository, logger *slog.Logger) *SubjectCredentials {
	if logger == nil {
		logger = slog.Default()
	}
	return &SubjectCredentials{subjects: subjects, logger: logger}
}

// ValidateCredentials verifies a password against the stored hash. The error
// is identical for unknown usernames, disabled accounts, and wrong passwords
// so callers cannot enumerate accounts.
func (c *SubjectCredentials) ValidateCredentials(ctx context.Context, username, password string) (*domain.Subject, error) {
	subject, err := c.subjects.GetByUsername(ctx, username)
	if err != nil {
		if liberrors.IsCode(err, liberrors.CodeNotFound) {
			return nil, liberrors.InvalidGrant()
		}
		return nil, fmt.Errorf("failed to get subject: %w", err)
	}

	if !subject.Active {
		return nil, liberrors.InvalidGrant()
	}

	valid, err := VerifyPassword(password, subject.PasswordHash)
	if err != nil {
		c.logger.Error("password verification error", "error", err)
		return nil, liberrors.InvalidGrant()
	}
	if !valid {
		return nil, liberrors.InvalidGrant()
	}

	return subject, nil
}

// LookupSubject returns a subject by ID.
func (c *SubjectCredentials) LookupSubject(ctx context.Context, id string) (*domain.Subject, error) {
	return c.subjects.GetByID(ctx, id)
}

// Validator validates resource-owner passwords and client secrets.
type Validator struct {
	credentials CredentialStore
	lockout     LockoutPolicy
	logger      *slog.Logger
}

// ValidatorOption configures the Validator.
type ValidatorOption func(*Validator)

// WithLogger sets the logger for the validator.
func WithLogger(logger *slog.Logger) ValidatorOption {
	return func(v *Validator) {
		v.logger = logger
	}
}

// WithLockoutPolicy sets the lockout policy hook.
func WithLockoutPolicy(policy LockoutPolicy) ValidatorOption {
	return func(v *Validator) {
		v.lockout = policy
	}
}

// NewValidator creates a credential validator.
func NewValidator(credentials CredentialStore, opts ...ValidatorOption) *Validator {
	v := &Validator{
		credentials: credentials,
		logger:      slog.Default(),
	}

	for _, opt := range opts {
		opt(v)
	}

	return v
}

// ValidatePassword checks resource-owner credentials, honoring the lockout
// policy when one is configured.
func (v *Validator) ValidatePassword(ctx context.Context, username, password string) (*domain.Subject, error) {
	if v.lockout != nil && v.lockout.IsLocked(username) {
		return nil, liberrors.New(liberrors.CodeRateLimited, "too many failed attempts")
	}

	subject, err := v.credentials.ValidateCredentials(ctx, username, password)
	if err != nil {
		if v.lockout != nil && liberrors.IsCode(err, liberrors.CodeInvalidGrant) {
			if v.lockout.RecordFailure(username) {
				metrics.RecordLockout()
				v.logger.Warn("principal locked after repeated failures", "username", username)
			}
		}
		return nil, err
	}

	if v.lockout != nil {
		v.lockout.RecordSuccess(username)
	}

	return subject, nil
}

// ValidateClientSecret checks a client secret against the registered digest.
// Public clients carry no secret and always fail this check.
func (v *Validator) ValidateClientSecret(client *domain.Client, secret string) bool {
	if client == nil || client.Public {
		return false
	}
	return VerifyClientSecret(secret, client.SecretHash)
}

// LookupSubject resolves a subject through the credential store.
func (v *Validator) LookupSubject(ctx context.Context, id string) (*domain.Subject, error) {
	return v.credentials.LookupSubject(ctx, id)
}
