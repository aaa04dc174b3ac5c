// Package file implements file-based storage using JSON files.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/grantd/grantd/internal/domain"
	liberrors "github.com/grantd/grantd/internal/errors"
	"github.com/grantd/grantd/internal/store"
)

// Store implements store.Store using JSON files for persistence.
// A single lock serializes mutations so the conditional updates in
// Consume are atomic with respect to concurrent readers.
type Store struct {
	dataDir string
	mu      sync.RWMutex

	subjects    *subjectRepository
	clients     *clientRepository
	scopes      *scopeRepository
	authCodes   *authCodeRepository
	tokens      *tokenRepository
	signingKeys *signingKeyRepository
}

// Option configures the Store.
type Option func(*Store)

// NewStore creates a new file-based store.
func NewStore(dataDir string, opts ...Option) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	s := &Store{
		dataDir: dataDir,
	}

	for _, opt := range opts {
		opt(s)
	}

	s.subjects = &subjectRepository{store: s}
	s.clients = &clientRepository{store: s}
	s.scopes = &scopeRepository{store: s}
	s.authCodes = &authCodeRepository{store: s}
	s.tokens = &tokenRepository{store: s}
	s.signingKeys = &signingKeyRepository{store: s}

	return s, nil
}

func (s *Store) Subjects() store.SubjectRepository        { return s.subjects }
func (s *Store) Clients() store.ClientRepository          { return s.clients }
func (s *Store) Scopes() store.ScopeRepository            { return s.scopes }
func (s *Store) AuthCodes() store.AuthCodeRepository      { return s.authCodes }
func (s *Store) Tokens() store.TokenRepository            { return s.tokens }
func (s *Store) SigningKeys() store.SigningKeyRepository  { return s.signingKeys }
func (s *Store) Close() error                             { return nil }

// Ping reports whether the backing data directory is still usable.
func (s *Store) Ping() error {
	info, err := os.Stat(s.dataDir)
	if err != nil {
		return fmt.Errorf("data directory unavailable: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("data directory is not a directory: %s", s.dataDir)
	}
	return nil
}

// File helpers. The locked variants are used inside read-modify-write
// sections that already hold the store lock.

func (s *Store) filePath(name string) string {
	return filepath.Join(s.dataDir, name+".json")
}

func (s *Store) readFileLocked(name string, v any) error {
	data, err := os.ReadFile(s.filePath(name))
	if os.IsNotExist(err) {
		return nil // Empty collection
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func (s *Store) writeFileLocked(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.filePath(name), data, 0600)
}

func (s *Store) readFile(name string, v any) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.readFileLocked(name, v)
}

// Subject repository

type subjectRepository struct {
	store *Store
}

type subjectsData struct {
	Subjects []*domain.Subject `json:"subjects"`
}

func (r *subjectRepository) load() (*subjectsData, error) {
	var data subjectsData
	if err := r.store.readFile("subjects", &data); err != nil {
		return nil, liberrors.StoreUnavailable(err)
	}
	if data.Subjects == nil {
		data.Subjects = []*domain.Subject{}
	}
	return &data, nil
}

func (r *subjectRepository) loadLocked() (*subjectsData, error) {
	var data subjectsData
	if err := r.store.readFileLocked("subjects", &data); err != nil {
		return nil, liberrors.StoreUnavailable(err)
	}
	if data.Subjects == nil {
		data.Subjects = []*domain.Subject{}
	}
	return &data, nil
}

func (r *subjectRepository) saveLocked(data *subjectsData) error {
	if err := r.store.writeFileLocked("subjects", data); err != nil {
		return liberrors.StoreUnavailable(err)
	}
	return nil
}

func (r *subjectRepository) Create(ctx context.Context, subject *domain.Subject) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	data, err := r.loadLocked()
	if err != nil {
		return err
	}

	for _, s := range data.Subjects {
		if s.ID == subject.ID {
			return liberrors.AlreadyExists("subject", subject.ID)
		}
		if s.Username == subject.Username {
			return liberrors.AlreadyExists("subject with username", subject.Username)
		}
	}

	now := time.Now()
	subject.CreatedAt = now
	subject.UpdatedAt = now
	data.Subjects = append(data.Subjects, subject)

	return r.saveLocked(data)
}

func (r *subjectRepository) GetByID(ctx context.Context, id string) (*domain.Subject, error) {
	data, err := r.load()
	if err != nil {
		return nil, err
	}

	for _, s := range data.Subjects {
		if s.ID == id {
			return s, nil
		}
	}
	return nil, liberrors.NotFound("subject", id)
}

func (r *subjectRepository) GetByUsername(ctx context.Context, username string) (*domain.Subject, error) {
	data, err := r.load()
	if err != nil {
		return nil, err
	}

	for _, s := range data.Subjects {
		if s.Username == username {
			return s, nil
		}
	}
	return nil, liberrors.NotFound("subject with username", username)
}

func (r *subjectRepository) Update(ctx context.Context, subject *domain.Subject) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	data, err := r.loadLocked()
	if err != nil {
		return err
	}

	for i, s := range data.Subjects {
		if s.ID == subject.ID {
			subject.UpdatedAt = time.Now()
			data.Subjects[i] = subject
			return r.saveLocked(data)
		}
	}
	return liberrors.NotFound("subject", subject.ID)
}

func (r *subjectRepository) Delete(ctx context.Context, id string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	data, err := r.loadLocked()
	if err != nil {
		return err
	}

	for i, s := range data.Subjects {
		if s.ID == id {
			data.Subjects = append(data.Subjects[:i], data.Subjects[i+1:]...)
			return r.saveLocked(data)
		}
	}
	return liberrors.NotFound("subject", id)
}

func (r *subjectRepository) List(ctx context.Context) ([]*domain.Subject, error) {
	data, err := r.load()
	if err != nil {
		return nil, err
	}
	return data.Subjects, nil
}

// Client repository

type clientRepository struct {
	store *Store
}

type clientsData struct {
	Clients []*domain.Client `json:"clients"`
}

func (r *clientRepository) load() (*clientsData, error) {
	var data clientsData
	if err := r.store.readFile("clients", &data); err != nil {
		return nil, liberrors.StoreUnavailable(err)
	}
	if data.Clients == nil {
		data.Clients = []*domain.Client{}
	}
	return &data, nil
}

func (r *clientRepository) loadLocked() (*clientsData, error) {
	var data clientsData
	if err := r.store.readFileLocked("clients", &data); err != nil {
		return nil, liberrors.StoreUnavailable(err)
	}
	if data.Clients == nil {
		data.Clients = []*domain.Client{}
	}
	return &data, nil
}

func (r *clientRepository) saveLocked(data *clientsData) error {
	if err := r.store.writeFileLocked("clients", data); err != nil {
		return liberrors.StoreUnavailable(err)
	}
	return nil
}

func (r *clientRepository) Create(ctx context.Context, client *domain.Client) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	data, err := r.loadLocked()
	if err != nil {
		return err
	}

	for _, c := range data.Clients {
		if c.ID == client.ID {
			return liberrors.AlreadyExists("client", client.ID)
		}
	}

	now := time.Now()
	client.CreatedAt = now
	client.UpdatedAt = now
	data.Clients = append(data.Clients, client)

	return r.saveLocked(data)
}

func (r *clientRepository) GetByID(ctx context.Context, id string) (*domain.Client, error) {
	data, err := r.load()
	if err != nil {
		return nil, err
	}

	for _, c := range data.Clients {
		if c.ID == id {
			return c, nil
		}
	}
	return nil, liberrors.NotFound("client", id)
}

func (r *clientRepository) Update(ctx context.Context, client *domain.Client) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	data, err := r.loadLocked()
	if err != nil {
		return err
	}

	for i, c := range data.Clients {
		if c.ID == client.ID {
			client.UpdatedAt = time.Now()
			data.Clients[i] = client
			return r.saveLocked(data)
		}
	}
	return liberrors.NotFound("client", client.ID)
}

func (r *clientRepository) Delete(ctx context.Context, id string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	data, err := r.loadLocked()
	if err != nil {
		return err
	}

	for i, c := range data.Clients {
		if c.ID == id {
			data.Clients = append(data.Clients[:i], data.Clients[i+1:]...)
			return r.saveLocked(data)
		}
	}
	return liberrors.NotFound("client", id)
}

func (r *clientRepository) List(ctx context.Context) ([]*domain.Client, error) {
	data, err := r.load()
	if err != nil {
		return nil, err
	}
	return data.Clients, nil
}

// Scope repository

type scopeRepository struct {
	store *Store
}

type scopesData struct {
	Scopes []*domain.Scope `json:"scopes"`
}

func (r *scopeRepository) load() (*scopesData, error) {
	var data scopesData
	if err := r.store.readFile("scopes", &data); err != nil {
		return nil, liberrors.StoreUnavailable(err)
	}
	if data.Scopes == nil {
		data.Scopes = []*domain.Scope{}
	}
	return &data, nil
}

func (r *scopeRepository) loadLocked() (*scopesData, error) {
	var data scopesData
	if err := r.store.readFileLocked("scopes", &data); err != nil {
		return nil, liberrors.StoreUnavailable(err)
	}
	if data.Scopes == nil {
		data.Scopes = []*domain.Scope{}
	}
	return &data, nil
}

func (r *scopeRepository) saveLocked(data *scopesData) error {
	if err := r.store.writeFileLocked("scopes", data); err != nil {
		return liberrors.StoreUnavailable(err)
	}
	return nil
}

func (r *scopeRepository) Create(ctx context.Context, scope *domain.Scope) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	data, err := r.loadLocked()
	if err != nil {
		return err
	}

	for _, s := range data.Scopes {
		if s.Name == scope.Name {
			return liberrors.AlreadyExists("scope", scope.Name)
		}
	}

	scope.CreatedAt = time.Now()
	data.Scopes = append(data.Scopes, scope)

	return r.saveLocked(data)
}

func (r *scopeRepository) GetByName(ctx context.Context, name string) (*domain.Scope, error) {
	data, err := r.load()
	if err != nil {
		return nil, err
	}

	for _, s := range data.Scopes {
		if s.Name == name {
			return s, nil
		}
	}
	return nil, liberrors.NotFound("scope", name)
}

func (r *scopeRepository) Delete(ctx context.Context, name string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	data, err := r.loadLocked()
	if err != nil {
		return err
	}

	for i, s := range data.Scopes {
		if s.Name == name {
			data.Scopes = append(data.Scopes[:i], data.Scopes[i+1:]...)
			return r.saveLocked(data)
		}
	}
	return liberrors.NotFound("scope", name)
}

func (r *scopeRepository) List(ctx context.Context) ([]*domain.Scope, error) {
	data, err := r.load()
	if err != nil {
		return nil, err
	}
	return data.Scopes, nil
}

// AuthCode repository

type authCodeRepository struct {
	store *Store
}

type authCodesData struct {
	AuthCodes []*domain.AuthCode `json:"auth_codes"`
}

func (r *authCodeRepository) load() (*authCodesData, error) {
	var data authCodesData
	if err := r.store.readFile("auth_codes", &data); err != nil {
		return nil, liberrors.StoreUnavailable(err)
	}
	if data.AuthCodes == nil {
		data.AuthCodes = []*domain.AuthCode{}
	}
	return &data, nil
}

func (r *authCodeRepository) loadLocked() (*authCodesData, error) {
	var data authCodesData
	if err := r.store.readFileLocked("auth_codes", &data); err != nil {
		return nil, liberrors.StoreUnavailable(err)
	}
	if data.AuthCodes == nil {
		data.AuthCodes = []*domain.AuthCode{}
	}
	return &data, nil
}

func (r *authCodeRepository) saveLocked(data *authCodesData) error {
	if err := r.store.writeFileLocked("auth_codes", data); err != nil {
		return liberrors.StoreUnavailable(err)
	}
	return nil
}

func (r *authCodeRepository) Create(ctx context.Context, code *domain.AuthCode) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	data, err := r.loadLocked()
	if err != nil {
		return err
	}

	for _, c := range data.AuthCodes {
		if c.Code == code.Code {
			return liberrors.AlreadyExists("auth code", code.Code)
		}
	}

	code.CreatedAt = time.Now()
	data.AuthCodes = append(data.AuthCodes, code)

	return r.saveLocked(data)
}

func (r *authCodeRepository) GetByCode(ctx context.Context, code string) (*domain.AuthCode, error) {
	data, err := r.load()
	if err != nil {
		return nil, err
	}

	for _, c := range data.AuthCodes {
		if c.Code == code {
			return c, nil
		}
	}
	return nil, liberrors.NotFound("auth code", code)
}

// Consume performs the check-unused-then-mark-used update under the store
// lock. Exactly one of two concurrent redemptions of the same code succeeds.
func (r *authCodeRepository) Consume(ctx context.Context, code string) (*domain.AuthCode, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	data, err := r.loadLocked()
	if err != nil {
		return nil, err
	}

	for _, c := range data.AuthCodes {
		if c.Code != code {
			continue
		}
		if c.Used || c.IsExpired() {
			return nil, liberrors.InvalidGrant()
		}
		c.Used = true
		if err := r.saveLocked(data); err != nil {
			return nil, err
		}
		return c, nil
	}
	return nil, liberrors.NotFound("auth code", code)
}

func (r *authCodeRepository) Delete(ctx context.Context, code string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	data, err := r.loadLocked()
	if err != nil {
		return err
	}

	for i, c := range data.AuthCodes {
		if c.Code == code {
			data.AuthCodes = append(data.AuthCodes[:i], data.AuthCodes[i+1:]...)
			return r.saveLocked(data)
		}
	}
	return liberrors.NotFound("auth code", code)
}

func (r *authCodeRepository) DeleteExpired(ctx context.Context) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	data, err := r.loadLocked()
	if err != nil {
		return err
	}

	now := time.Now()
	filtered := make([]*domain.AuthCode, 0, len(data.AuthCodes))
	for _, c := range data.AuthCodes {
		if c.ExpiresAt.After(now) {
			filtered = append(filtered, c)
		}
	}
	data.AuthCodes = filtered

	return r.saveLocked(data)
}

// Token repository

type tokenRepository struct {
	store *Store
}

type tokensData struct {
	Tokens []*domain.TokenRecord `json:"tokens"`
}

func (r *tokenRepository) load() (*tokensData, error) {
	var data tokensData
	if err := r.store.readFile("tokens", &data); err != nil {
		return nil, liberrors.StoreUnavailable(err)
	}
	if data.Tokens == nil {
		data.Tokens = []*domain.TokenRecord{}
	}
	return &data, nil
}

func (r *tokenRepository) loadLocked() (*tokensData, error) {
	var data tokensData
	if err := r.store.readFileLocked("tokens", &data); err != nil {
		return nil, liberrors.StoreUnavailable(err)
	}
	if data.Tokens == nil {
		data.Tokens = []*domain.TokenRecord{}
	}
	return &data, nil
}

func (r *tokenRepository) saveLocked(data *tokensData) error {
	if err := r.store.writeFileLocked("tokens", data); err != nil {
		return liberrors.StoreUnavailable(err)
	}
	return nil
}

func (r *tokenRepository) Create(ctx context.Context, record *domain.TokenRecord) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	data, err := r.loadLocked()
	if err != nil {
		return err
	}

	for _, t := range data.Tokens {
		if t.Handle == record.Handle {
			return liberrors.AlreadyExists("token", record.Handle)
		}
	}

	if record.IssuedAt.IsZero() {
		record.IssuedAt = time.Now()
	}
	data.Tokens = append(data.Tokens, record)

	return r.saveLocked(data)
}

func (r *tokenRepository) Get(ctx context.Context, handle string) (*domain.TokenRecord, error) {
	data, err := r.load()
	if err != nil {
		return nil, err
	}

	for _, t := range data.Tokens {
		if t.Handle == handle {
			return t, nil
		}
	}
	return nil, liberrors.NotFound("token", handle)
}

// Consume performs the rotation-guard update under the store lock. A handle
// that is already consumed or revoked fails with invalid_grant but the
// record is returned so the caller can revoke the family on reuse.
func (r *tokenRepository) Consume(ctx context.Context, handle string) (*domain.TokenRecord, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	data, err := r.loadLocked()
	if err != nil {
		return nil, err
	}

	for _, t := range data.Tokens {
		if t.Handle != handle {
			continue
		}
		if t.Consumed || t.Revoked || t.IsExpired() {
			return t, liberrors.InvalidGrant()
		}
		t.Consumed = true
		if err := r.saveLocked(data); err != nil {
			return nil, err
		}
		return t, nil
	}
	return nil, liberrors.NotFound("token", handle)
}

func (r *tokenRepository) Revoke(ctx context.Context, handle string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	data, err := r.loadLocked()
	if err != nil {
		return err
	}

	for _, t := range data.Tokens {
		if t.Handle == handle {
			if t.Revoked {
				return nil // Idempotent
			}
			t.Revoked = true
			return r.saveLocked(data)
		}
	}
	return nil // Unknown handles are not an error
}

func (r *tokenRepository) RevokeFamily(ctx context.Context, familyID string) error {
	if familyID == "" {
		return nil
	}

	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	data, err := r.loadLocked()
	if err != nil {
		return err
	}

	changed := false
	for _, t := range data.Tokens {
		if t.FamilyID == familyID && !t.Revoked {
			t.Revoked = true
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return r.saveLocked(data)
}

func (r *tokenRepository) RevokeBySubjectID(ctx context.Context, subjectID string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	data, err := r.loadLocked()
	if err != nil {
		return err
	}

	for _, t := range data.Tokens {
		if t.SubjectID == subjectID {
			t.Revoked = true
		}
	}
	return r.saveLocked(data)
}

func (r *tokenRepository) RevokeByClientID(ctx context.Context, clientID string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	data, err := r.loadLocked()
	if err != nil {
		return err
	}

	for _, t := range data.Tokens {
		if t.ClientID == clientID {
			t.Revoked = true
		}
	}
	return r.saveLocked(data)
}

// DeleteExpired removes records whose expiry is past the grace period.
// Records inside the window are kept for audit even when revoked.
func (r *tokenRepository) DeleteExpired(ctx context.Context, grace time.Duration) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	data, err := r.loadLocked()
	if err != nil {
		return err
	}

	cutoff := time.Now().Add(-grace)
	filtered := make([]*domain.TokenRecord, 0, len(data.Tokens))
	for _, t := range data.Tokens {
		if t.ExpiresAt.After(cutoff) {
			filtered = append(filtered, t)
		}
	}
	data.Tokens = filtered

	return r.saveLocked(data)
}
