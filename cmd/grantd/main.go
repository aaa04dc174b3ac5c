// Package main is the entry point for the grantd authorization server.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"

	"github.com/grantd/grantd/internal/auth"
	"github.com/grantd/grantd/internal/config"
	"github.com/grantd/grantd/internal/crypto"
	"github.com/grantd/grantd/internal/domain"
	grantdhttp "github.com/grantd/grantd/internal/http"
	"github.com/grantd/grantd/internal/oauth"
	"github.com/grantd/grantd/internal/registry"
	"github.com/grantd/grantd/internal/store/file"
)

func main() {
	// Load .env if present (development convenience)
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Setup logger
	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: parseLogLevel(cfg.LogLevel),
		})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: parseLogLevel(cfg.LogLevel),
		})
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize file store
	st, err := file.NewStore(cfg.DataDir)
	if err != nil {
		logger.Error("failed to initialize store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	logger.Info("initialized file store", "data_dir", cfg.DataDir)

	// Seed bootstrap catalog entries
	if err := bootstrap(ctx, cfg, st, logger); err != nil {
		logger.Error("failed to bootstrap catalog", "error", err)
		os.Exit(1)
	}

	// Catalog registries with background refresh
	clients, err := registry.NewClientRegistry(ctx, st.Clients(),
		registry.WithClientRefreshInterval(cfg.RegistryRefreshInterval),
		registry.WithClientLogger(logger),
	)
	if err != nil {
		logger.Error("failed to load client registry", "error", err)
		os.Exit(1)
	}
	clients.Start(ctx)

	scopes, err := registry.NewScopeRegistry(ctx, st.Scopes(),
		registry.WithScopeRefreshInterval(cfg.RegistryRefreshInterval),
		registry.WithScopeLogger(logger),
	)
	if err != nil {
		logger.Error("failed to load scope registry", "error", err)
		os.Exit(1)
	}
	scopes.Start(ctx)

	// Signing keys (generated and persisted on first start)
	keySource := crypto.NewRepositoryKeySource(st.SigningKeys())
	signer, err := crypto.NewSigner(ctx, keySource, cfg.IssuerURL)
	if err != nil {
		logger.Error("failed to initialize signer", "error", err)
		os.Exit(1)
	}

	logger.Info("signer ready", "kid", signer.ActiveKid())

	// Credential validation with lockout
	lockout := auth.NewLockoutService(cfg.LockoutMaxAttempts, cfg.LockoutDuration)
	validator := auth.NewValidator(
		auth.NewSubjectCredentials(st.Subjects(), logger),
		auth.WithLogger(logger),
		auth.WithLockoutPolicy(lockout),
	)

	// Grant processing and revocation
	processor := oauth.NewProcessor(
		clients, scopes, validator, signer,
		st.Tokens(), st.AuthCodes(),
		cfg.AccessTokenTTL, cfg.RefreshTokenTTL,
		oauth.WithLogger(logger),
	)
	revocation := oauth.NewRevocationService(
		clients, validator, signer, st.Tokens(),
		oauth.WithRevocationLogger(logger),
	)

	// HTTP server and routes. Readiness tracks the data directory.
	server := grantdhttp.NewServer(cfg.Addr(),
		grantdhttp.WithLogger(logger),
		grantdhttp.WithReadyChecks(st.Ping),
	)
	router := server.Router()

	tokenHandler := grantdhttp.NewTokenHandler(processor, revocation, logger)
	jwksHandler := grantdhttp.NewJWKSHandler(signer, logger)
	discovery := grantdhttp.NewDiscoveryHandler(cfg.IssuerURL, scopeNames(cfg))

	router.Group(func(r chi.Router) {
		if origins := cfg.AllowedOrigins(); len(origins) > 0 {
			corsCfg := grantdhttp.DefaultCORSConfig()
			corsCfg.AllowedOrigins = origins
			r.Use(grantdhttp.CORSMiddleware(corsCfg))
		}
		r.Use(grantdhttp.SecurityHeadersMiddleware)

		r.Group(func(r chi.Router) {
			r.Use(grantdhttp.TokenRateLimiter(cfg.TokenRateLimit))
			r.Post("/token", tokenHandler.Token)
		})
		r.Post("/introspect", tokenHandler.Introspect)
		r.Post("/revoke", tokenHandler.Revoke)
		r.Get("/jwks", jwksHandler.JWKS)
		r.Get("/.well-known/jwks.json", jwksHandler.JWKS)
		r.Get("/.well-known/openid-configuration", discovery.OpenIDConfiguration)
	})

	// Background scrubber for expired records
	go scrub(ctx, cfg, st, signer, logger)

	// Start server in goroutine
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	logger.Info("server started", "addr", cfg.Addr(), "issuer", cfg.IssuerURL)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	cancel()

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

// bootstrap creates configured scopes, clients, and subjects if they do not
// exist yet. Existing entries are left untouched.
func bootstrap(ctx context.Context, cfg *config.Config, st *file.Store, logger *slog.Logger) error {
	for _, s := range cfg.ParseBootstrapScopes() {
		scope := &domain.Scope{
			Name: s.Name,
			Kind: domain.ScopeKind(s.Kind),
		}
		if err := st.Scopes().Create(ctx, scope); err != nil {
			logger.Debug("bootstrap scope skipped", "name", s.Name, "error", err)
		}
	}

	for _, c := range cfg.ParseBootstrapClients() {
		client := &domain.Client{
			ID:         c.ID,
			Name:       c.ID,
			GrantTypes: c.GrantTypes,
			Scopes:     c.Scopes,
			Public:     c.Public,
		}
		if !c.Public {
			client.SecretHash = auth.HashClientSecret(c.Secret)
		}
		if err := st.Clients().Create(ctx, client); err != nil {
			logger.Debug("bootstrap client skipped", "client_id", c.ID, "error", err)
		} else {
			logger.Info("bootstrapped client", "client_id", c.ID, "public", c.Public)
		}
	}

	for _, s := range cfg.ParseBootstrapSubjects() {
		hash, err := auth.HashPassword(s.Password)
		if err != nil {
			return err
		}
		subject := &domain.Subject{
			ID:           s.Username,
			Username:     s.Username,
			PasswordHash: hash,
			DisplayName:  s.Name,
			Active:       true,
		}
		if err := st.Subjects().Create(ctx, subject); err != nil {
			logger.Debug("bootstrap subject skipped", "username", s.Username, "error", err)
		} else {
			logger.Info("bootstrapped subject", "username", s.Username)
		}
	}

	return nil
}

// scrub periodically removes expired auth codes and token records past
// their retention grace, and evicts expired verification keys.
func scrub(ctx context.Context, cfg *config.Config, st *file.Store, signer *crypto.Signer, logger *slog.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := st.AuthCodes().DeleteExpired(ctx); err != nil {
				logger.Warn("failed to scrub auth codes", "error", err)
			}
			if err := st.Tokens().DeleteExpired(ctx, cfg.TokenRetentionGrace); err != nil {
				logger.Warn("failed to scrub token records", "error", err)
			}
			signer.EvictExpired()
		}
	}
}

func scopeNames(cfg *config.Config) []string {
	var names []string
	for _, s := range cfg.ParseBootstrapScopes() {
		names = append(names, s.Name)
	}
	return names
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
