// Package main provides a utility to seed test data for development.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/grantd/grantd/internal/auth"
	"github.com/grantd/grantd/internal/domain"
	"github.com/grantd/grantd/internal/store/file"
)

func main() {
	dataDir := flag.String("data-dir", "./data", "Data directory")
	flag.Parse()

	// Initialize store
	st, err := file.NewStore(*dataDir)
	if err != nil {
		log.Fatalf("Failed to initialize store: %v", err)
	}
	defer st.Close()

	ctx := context.Background()

	// Create standard scopes
	scopes := []*domain.Scope{
		{Name: "openid", Kind: domain.ScopeKindIdentity, Claims: []string{"sub"}},
		{Name: "profile", Kind: domain.ScopeKindIdentity, Claims: []string{"name"}},
		{Name: "email", Kind: domain.ScopeKindIdentity, Claims: []string{"email", "email_verified"}},
		{Name: "offline_access", Kind: domain.ScopeKindIdentity},
		{Name: "api", Kind: domain.ScopeKindResource, Description: "General API access"},
		{Name: "api.read", Kind: domain.ScopeKindResource, Description: "Read-only API access"},
	}

	for _, scope := range scopes {
		if err := st.Scopes().Create(ctx, scope); err != nil {
			fmt.Printf("Scope %s may already exist: %v\n", scope.Name, err)
		} else {
			fmt.Printf("Created scope: %s\n", scope.Name)
		}
	}

	// Create confidential test client
	client := &domain.Client{
		ID:           "test-client",
		SecretHash:   auth.HashClientSecret("test-secret"),
		Name:         "Test Application",
		RedirectURIs: []string{"http://localhost:3000/callback", "http://localhost:8081/callback"},
		GrantTypes: []string{
			domain.GrantPassword,
			domain.GrantClientCredentials,
			domain.GrantAuthorizationCode,
			domain.GrantRefreshToken,
		},
		Scopes: []string{"openid", "profile", "email", "offline_access", "api", "api.read"},
		Public: false,
	}

	if err := st.Clients().Create(ctx, client); err != nil {
		fmt.Printf("Client may already exist: %v\n", err)
	} else {
		fmt.Printf("Created client: %s (secret: test-secret)\n", client.ID)
	}

	// Create public test client (PKCE required)
	publicClient := &domain.Client{
		ID:           "test-public-client",
		Name:         "Test Public Application",
		RedirectURIs: []string{"http://localhost:3000/callback", "http://localhost:8081/callback"},
		GrantTypes: []string{
			domain.GrantAuthorizationCode,
			domain.GrantRefreshToken,
		},
		Scopes: []string{"openid", "profile", "email", "offline_access", "api.read"},
		Public: true,
	}

	if err := st.Clients().Create(ctx, publicClient); err != nil {
		fmt.Printf("Public client may already exist: %v\n", err)
	} else {
		fmt.Printf("Created public client: %s\n", publicClient.ID)
	}

	// Create test subject
	password := "password123"
	hash, err := auth.HashPassword(password)
	if err != nil {
		log.Fatalf("Failed to hash password: %v", err)
	}

	subject := &domain.Subject{
		ID:           uuid.New().String(),
		Username:     "test@example.com",
		Email:        "test@example.com",
		PasswordHash: hash,
		DisplayName:  "Test User",
		Active:       true,
	}

	if err := st.Subjects().Create(ctx, subject); err != nil {
		fmt.Printf("Subject may already exist: %v\n", err)
	} else {
		fmt.Printf("Created subject: %s (password: %s)\n", subject.Username, password)
	}

	fmt.Println("\nSeed complete. Try:")
	fmt.Println(`  curl -s http://localhost:8080/token \`)
	fmt.Println(`    -d grant_type=password -d client_id=test-client -d client_secret=test-secret \`)
	fmt.Println(`    -d username=test@example.com -d password=password123 -d scope="openid api"`)
}
