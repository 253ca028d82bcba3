// Copyright 2026 The OpenTrusty Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command otadmin is the operator CLI for the authorization core: schema
// migration and client registration, kept off the HTTP surface (§6 scopes
// the transport to a thin /token handler only).
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/oauth2core/authserver/internal/audit"
	"github.com/oauth2core/authserver/internal/clock"
	"github.com/oauth2core/authserver/internal/config"
	"github.com/oauth2core/authserver/internal/credential"
	"github.com/oauth2core/authserver/internal/id"
	"github.com/oauth2core/authserver/internal/registrar"
	"github.com/oauth2core/authserver/internal/store/postgres"
)

func main() {
	root := commandRoot()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func commandRoot() *cobra.Command {
	root := &cobra.Command{
		Use:   "otadmin",
		Short: "Operator CLI for the OAuth2 authorization core",
	}
	root.AddCommand(migrateCommand())
	root.AddCommand(registerClientCommand())
	return root
}

func migrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the initial database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}

			ctx := context.Background()
			db, err := openDB(ctx, cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			fmt.Println("applying initial schema...")
			if err := db.Migrate(ctx, postgres.InitialSchema); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			fmt.Println("migration successful.")
			return nil
		},
	}
}

func registerClientCommand() *cobra.Command {
	var (
		userID         string
		identifier     string
		confidential   bool
		redirectURIs   string
		grantTypes     string
		responseTypes  string
		scopes         string
		requirePKCE    bool
		accessTokenTTL int
		authCodeTTL    int
	)

	cmd := &cobra.Command{
		Use:   "register-client",
		Short: "Register a new OAuth2 client",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}

			ctx := context.Background()
			db, err := openDB(ctx, cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			generator, err := credential.NewSecretGenerator(credential.MinSecretBytes)
			if err != nil {
				return fmt.Errorf("build secret generator: %w", err)
			}
			hasher := credential.NewDefaultSecretHasher()
			clk := clock.System{}
			auditLogger := audit.NewRepositoryLogger(postgres.NewAuditLogRepository(), db.Pool(), clk, audit.NewSlogLogger())

			reg := registrar.New(db, db.Pool(),
				postgres.NewClientRepository(),
				postgres.NewClientConfigRepository(),
				generator, hasher, clk, slog.Default(),
				registrar.WithAuditLogger(auditLogger),
			)

			req := registrar.RegistrationRequest{
				UserID:               userID,
				ClientIdentifier:     identifier,
				IsConfidential:       confidential,
				RedirectURIs:         splitCSV(redirectURIs),
				GrantTypes:           splitCSV(grantTypes),
				ResponseTypes:        splitCSV(responseTypes),
				Scopes:               splitCSV(scopes),
				RequirePKCE:          requirePKCE,
				AccessTokenTTL:       accessTokenTTL,
				AuthorizationCodeTTL: authCodeTTL,
			}

			rayID := id.NewUUIDv7()
			result := reg.RegisterClient(ctx, req, rayID)
			if !result.Status {
				return fmt.Errorf("registration failed: %s", result.ErrorCode)
			}

			fmt.Printf("client registered: %s\n", result.ClientMessage.ClientIdentifier)
			fmt.Printf("client_id: %s\n", result.ClientMessage.ID)
			if result.ClientMessage.PlaintextSecret != "" {
				fmt.Printf("client_secret (shown once): %s\n", result.ClientMessage.PlaintextSecret)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user-id", "", "owning user id")
	cmd.Flags().StringVar(&identifier, "client-identifier", "", "human-readable client identifier")
	cmd.Flags().BoolVar(&confidential, "confidential", true, "register as a confidential client")
	cmd.Flags().StringVar(&redirectURIs, "redirect-uris", "", "comma-separated redirect URIs")
	cmd.Flags().StringVar(&grantTypes, "grant-types", "refresh_token", "comma-separated grant types")
	cmd.Flags().StringVar(&responseTypes, "response-types", "code", "comma-separated response types")
	cmd.Flags().StringVar(&scopes, "scopes", "", "comma-separated scopes")
	cmd.Flags().BoolVar(&requirePKCE, "require-pkce", true, "require PKCE for authorization_code")
	cmd.Flags().IntVar(&accessTokenTTL, "access-token-ttl", 3600, "access token TTL in seconds")
	cmd.Flags().IntVar(&authCodeTTL, "auth-code-ttl", 600, "authorization code TTL in seconds")

	return cmd
}

func openDB(ctx context.Context, cfg *config.Config) (*postgres.DB, error) {
	db, err := postgres.New(ctx, postgres.Config{
		Host:         cfg.Database.Host,
		Port:         cfg.Database.Port,
		User:         cfg.Database.User,
		Password:     cfg.Database.Password,
		Database:     cfg.Database.Database,
		SSLMode:      cfg.Database.SSLMode,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	return db, nil
}

func splitCSV(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
