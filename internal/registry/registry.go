// Package registry provides cached, read-mostly lookups of the client and
// scope catalogs. Snapshots are refreshed from the backing store on a bounded
// interval; request-path readers never touch the store and never block on a
// refresh.
package registry

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/grantd/grantd/internal/domain"
	liberrors "github.com/grantd/grantd/internal/errors"
	"github.com/grantd/grantd/internal/store"
)

// DefaultRefreshInterval bounds catalog staleness.
const DefaultRefreshInterval = 30 * time.Second

// ClientRegistry serves client lookups from a periodically refreshed snapshot.
type ClientRegistry struct {
	repo     store.ClientRepository
	interval time.Duration
	logger   *slog.Logger

	mu       sync.RWMutex
	snapshot map[string]*domain.Client
}

// ClientOption configures the ClientRegistry.
type ClientOption func(*ClientRegistry)

// WithClientRefreshInterval overrides the snapshot refresh interval.
func WithClientRefreshInterval(d time.Duration) ClientOption {
	return func(r *ClientRegistry) {
		r.interval = d
	}
}

// WithClientLogger sets the logger for the registry.
func WithClientLogger(logger *slog.Logger) ClientOption {
	return func(r *ClientRegistry) {
		r.logger = logger
	}
}

// NewClientRegistry creates a ClientRegistry and loads the initial snapshot.
func NewClientRegistry(ctx context.Context, repo store.ClientRepository, opts ...ClientOption) (*ClientRegistry, error) {
	r := &ClientRegistry{
		repo:     repo,
		interval: DefaultRefreshInterval,
		logger:   slog.Default(),
		snapshot: make(map[string]*domain.Client),
	}

	for _, opt := range opts {
		opt(r)
	}

	if err := r.refresh(ctx); err != nil {
		return nil, err
	}

	return r, nil
}

// Start refreshes the snapshot on the configured interval until the context
// is cancelled.
func (r *ClientRegistry) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := r.refresh(ctx); err != nil {
					// Keep serving the stale snapshot
					r.logger.Warn("client catalog refresh failed", "error", err)
				}
			}
		}
	}()
}

func (r *ClientRegistry) refresh(ctx context.Context) error {
	clients, err := r.repo.List(ctx)
	if err != nil {
		return err
	}

	next := make(map[string]*domain.Client, len(clients))
	for _, c := range clients {
		next[c.ID] = c
	}

	r.mu.Lock()
	r.snapshot = next
	r.mu.Unlock()
	return nil
}

// Lookup returns the client with the given ID from the current snapshot.
func (r *ClientRegistry) Lookup(clientID string) (*domain.Client, error) {
	r.mu.RLock()
	c, ok := r.snapshot[clientID]
	r.mu.RUnlock()

	if !ok {
		return nil, liberrors.NotFound("client", clientID)
	}
	return c, nil
}

// ValidateGrantType reports whether the client may use the grant type.
func (r *ClientRegistry) ValidateGrantType(clientID, grantType string) bool {
	c, err := r.Lookup(clientID)
	if err != nil {
		return false
	}
	return c.AllowsGrantType(grantType)
}

// ValidateRedirectURI reports whether the URI is registered for the client.
func (r *ClientRegistry) ValidateRedirectURI(clientID, uri string) bool {
	c, err := r.Lookup(clientID)
	if err != nil {
		return false
	}
	return c.AllowsRedirectURI(uri)
}

// ScopeRegistry serves scope lookups and resolution from a periodically
// refreshed snapshot.
type ScopeRegistry struct {
	repo     store.ScopeRepository
	interval time.Duration
	logger   *slog.Logger

	mu       sync.RWMutex
	snapshot map[string]*domain.Scope
}

// ScopeOption configures the ScopeRegistry.
type ScopeOption func(*ScopeRegistry)

// WithScopeRefreshInterval overrides the snapshot refresh interval.
func WithScopeRefreshInterval(d time.Duration) ScopeOption {
	return func(r *ScopeRegistry) {
		r.interval = d
	}
}

// WithScopeLogger sets the logger for the registry.
func WithScopeLogger(logger *slog.Logger) ScopeOption {
	return func(r *ScopeRegistry) {
		r.logger = logger
	}
}

// NewScopeRegistry creates a ScopeRegistry and loads the initial snapshot.
func NewScopeRegistry(ctx context.Context, repo store.ScopeRepository, opts ...ScopeOption) (*ScopeRegistry, error) {
	r := &ScopeRegistry{
		repo:     repo,
		interval: DefaultRefreshInterval,
		logger:   slog.Default(),
		snapshot: make(map[string]*domain.Scope),
	}

	for _, opt := range opts {
		opt(r)
	}

	if err := r.refresh(ctx); err != nil {
		return nil, err
	}

	return r, nil
}

// Start refreshes the snapshot on the configured interval until the context
// is cancelled.
func (r *ScopeRegistry) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := r.refresh(ctx); err != nil {
					r.logger.Warn("scope catalog refresh failed", "error", err)
				}
			}
		}
	}()
}

func (r *ScopeRegistry) refresh(ctx context.Context) error {
	scopes, err := r.repo.List(ctx)
	if err != nil {
		return err
	}

	next := make(map[string]*domain.Scope, len(scopes))
	for _, s := range scopes {
		next[s.Name] = s
	}

	r.mu.Lock()
	r.snapshot = next
	r.mu.Unlock()
	return nil
}

// Lookup returns the scope with the given name from the current snapshot.
func (r *ScopeRegistry) Lookup(name string) (*domain.Scope, error) {
	r.mu.RLock()
	s, ok := r.snapshot[name]
	r.mu.RUnlock()

	if !ok {
		return nil, liberrors.NotFound("scope", name)
	}
	return s, nil
}

// Resolve filters the requested scopes against the catalog and the client's
// allowed set.
//
// A scope name the catalog does not know fails with unknown_scope under both
// policies. A known scope outside the client's allowed set is dropped when
// strict is false (password and authorization-code flows) and rejected with
// invalid_scope when strict is true (client-credentials flow). An empty
// result fails with invalid_scope.
func (r *ScopeRegistry) Resolve(requested []string, client *domain.Client, strict bool) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	granted := make([]string, 0, len(requested))
	for _, name := range requested {
		if name == "" {
			continue
		}
		if _, ok := r.snapshot[name]; !ok {
			return nil, liberrors.New(liberrors.CodeUnknownScope, "unknown scope: "+name)
		}
		if !client.AllowsScope(name) {
			if strict {
				return nil, liberrors.New(liberrors.CodeInvalidScope, "scope not allowed: "+name)
			}
			continue // Lenient policy drops disallowed scopes
		}
		granted = append(granted, name)
	}

	if len(granted) == 0 {
		return nil, liberrors.New(liberrors.CodeInvalidScope, "no grantable scopes in request")
	}
	return granted, nil
}

// SplitScopes splits a space-delimited scope parameter into names.
func SplitScopes(scope string) []string {
	return strings.Fields(scope)
}

// JoinScopes joins scope names into the wire format.
func JoinScopes(scopes []string) string {
	return strings.Join(scopes, " ")
}
