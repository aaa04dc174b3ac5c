// Package config handles application configuration via environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for the authorization server.
type Config struct {
	// Server settings
	Host string `env:"GRANTD_HOST" env-default:"0.0.0.0"`
	Port int    `env:"GRANTD_PORT" env-default:"8080"`

	// Issuer URL (required for OIDC)
	IssuerURL string `env:"GRANTD_ISSUER_URL" env-default:"http://localhost:8080"`

	// Storage settings
	DataDir string `env:"GRANTD_DATA_DIR" env-default:"./data"`

	// Token settings
	AccessTokenTTL  time.Duration `env:"GRANTD_ACCESS_TOKEN_TTL" env-default:"15m"`
	RefreshTokenTTL time.Duration `env:"GRANTD_REFRESH_TOKEN_TTL" env-default:"168h"` // 7 days
	AuthCodeTTL     time.Duration `env:"GRANTD_AUTH_CODE_TTL" env-default:"10m"`
	// Expired records are kept this long for audit before the scrubber
	// deletes them.
	TokenRetentionGrace time.Duration `env:"GRANTD_TOKEN_RETENTION_GRACE" env-default:"24h"`

	// Key rotation: how long a rotated-out key keeps verifying
	KeyRetention time.Duration `env:"GRANTD_KEY_RETENTION" env-default:"720h"` // 30 days

	// Catalog cache refresh interval
	RegistryRefreshInterval time.Duration `env:"GRANTD_REGISTRY_REFRESH_INTERVAL" env-default:"30s"`

	// Rate limiting on the token endpoint (requests per minute per IP)
	TokenRateLimit int `env:"GRANTD_TOKEN_RATE_LIMIT" env-default:"60"`

	// Lockout policy for password grants
	LockoutMaxAttempts int           `env:"GRANTD_LOCKOUT_MAX_ATTEMPTS" env-default:"5"`
	LockoutDuration    time.Duration `env:"GRANTD_LOCKOUT_DURATION" env-default:"15m"`

	// CORS: comma-separated allowed origins
	CORSAllowedOrigins string `env:"GRANTD_CORS_ALLOWED_ORIGINS" env-default:""`

	// Logging
	LogLevel  string `env:"GRANTD_LOG_LEVEL" env-default:"info"`
	LogFormat string `env:"GRANTD_LOG_FORMAT" env-default:"json"` // json or text

	// Bootstrap data (created on startup if not exists)
	// Format: "username:password:name,username2:password2:name2"
	BootstrapSubjects string `env:"GRANTD_BOOTSTRAP_SUBJECTS"`
	// Format: "client_id|client_secret|grant1 grant2|scope1 scope2"
	// Empty secret for public clients. Multiple clients separated by comma.
	BootstrapClients string `env:"GRANTD_BOOTSTRAP_CLIENTS"`
	// Format: "name:kind,name2:kind2" where kind is identity or resource
	BootstrapScopes string `env:"GRANTD_BOOTSTRAP_SCOPES" env-default:"openid:identity,profile:identity,email:identity,offline_access:identity,api:resource"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// Addr returns the server address in host:port format.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// AllowedOrigins parses the CORS origin list.
func (c *Config) AllowedOrigins() []string {
	if c.CORSAllowedOrigins == "" {
		return nil
	}
	var origins []string
	for _, o := range strings.Split(c.CORSAllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

// BootstrapSubject represents a subject to be created on startup.
type BootstrapSubject struct {
	Username string
	Password string
	Name     string
}

// BootstrapClient represents a client to be created on startup.
type BootstrapClient struct {
	ID         string
	Secret     string
	GrantTypes []string
	Scopes     []string
	Public     bool
}

// BootstrapScope represents a scope to be created on startup.
type BootstrapScope struct {
	Name string
	Kind string
}

// ParseBootstrapSubjects parses the GRANTD_BOOTSTRAP_SUBJECTS variable.
// Format: "username:password:name,username2:password2:name2"
func (c *Config) ParseBootstrapSubjects() []BootstrapSubject {
	if c.BootstrapSubjects == "" {
		return nil
	}

	var subjects []BootstrapSubject
	for _, entry := range strings.Split(c.BootstrapSubjects, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, ":", 3)
		if len(parts) < 2 {
			continue
		}

		subject := BootstrapSubject{
			Username: strings.TrimSpace(parts[0]),
			Password: strings.TrimSpace(parts[1]),
		}
		if len(parts) >= 3 {
			subject.Name = strings.TrimSpace(parts[2])
		}
		subjects = append(subjects, subject)
	}
	return subjects
}

// ParseBootstrapClients parses the GRANTD_BOOTSTRAP_CLIENTS variable.
// Format: "client_id|client_secret|grant1 grant2|scope1 scope2"
// (| as delimiter to avoid conflicts with scope and grant names)
func (c *Config) ParseBootstrapClients() []BootstrapClient {
	if c.BootstrapClients == "" {
		return nil
	}

	var clients []BootstrapClient
	for _, entry := range strings.Split(c.BootstrapClients, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, "|", 4)
		if len(parts) < 4 {
			continue
		}

		secret := strings.TrimSpace(parts[1])
		client := BootstrapClient{
			ID:         strings.TrimSpace(parts[0]),
			Secret:     secret,
			GrantTypes: strings.Fields(parts[2]),
			Scopes:     strings.Fields(parts[3]),
			Public:     secret == "",
		}
		clients = append(clients, client)
	}
	return clients
}

// ParseBootstrapScopes parses the GRANTD_BOOTSTRAP_SCOPES variable.
// Format: "name:kind,name2:kind2"
func (c *Config) ParseBootstrapScopes() []BootstrapScope {
	if c.BootstrapScopes == "" {
		return nil
	}

	var scopes []BootstrapScope
	for _, entry := range strings.Split(c.BootstrapScopes, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, ":", 2)
		scope := BootstrapScope{
			Name: strings.TrimSpace(parts[0]),
			Kind: "resource",
		}
		if len(parts) == 2 {
			scope.Kind = strings.TrimSpace(parts[1])
		}
		scopes = append(scopes, scope)
	}
	return scopes
}
