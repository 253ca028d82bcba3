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

//go:build integration
// +build integration

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/oauth2core/authserver/internal/oauth2"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	ctx := context.Background()
	cfg := Config{
		Host:         "localhost",
		Port:         "5432",
		User:         "oauth2core",
		Password:     "oauth2core_dev_password",
		Database:     "oauth2core",
		SSLMode:      "disable",
		MaxOpenConns: 5,
		MaxIdleConns: 5,
	}

	db, err := New(ctx, cfg)
	if err != nil {
		t.Skipf("skipping integration test: failed to connect to database: %v", err)
	}
	if err := db.Migrate(ctx, InitialSchema); err != nil {
		t.Fatalf("failed to apply schema: %v", err)
	}
	return db
}

// TestClientRepository_InsertAndFetch exercises I1 end to end: a client
// and its 1:1 configuration, written through the pool, read back intact.
func TestClientRepository_InsertAndFetch(t *testing.T) {
	db := testDB(t)
	defer db.Close()

	ctx := context.Background()
	clients := NewClientRepository()
	configs := NewClientConfigRepository()

	now := time.Now().UTC().Truncate(time.Second)
	client := &oauth2.Client{
		ID:               "client-it-1",
		ClientIdentifier: "web-app-it-1",
		IsConfidential:   true,
		ClientSecretHash: "$argon2id$v=19$m=65536,t=3,p=1$c2FsdA$aGFzaA",
		RedirectURIs:     []string{"https://a/cb"},
		GrantTypes:       []string{"refresh_token"},
		Scopes:           []string{"read", "write"},
		IsEnabled:        true,
		Audit:            oauth2.Audit{CreatedAt: now, CreatedBy: "user_123", UpdatedAt: now, UpdatedBy: "user_123"},
	}
	defer db.Pool().Exec(ctx, "DELETE FROM oauth_clients WHERE id = $1", client.ID)

	insertResult := clients.Insert(ctx, db.Pool(), client, "ray-1")
	if !insertResult.Status {
		t.Fatalf("insert client failed: %s", insertResult.ErrorCode)
	}

	cfg := &oauth2.ClientConfig{
		ClientID:             client.ID,
		ResponseTypes:        []string{"code"},
		AccessTokenTTL:       3600,
		AuthorizationCodeTTL: 600,
		Audit:                client.Audit,
	}
	cfgResult := configs.Insert(ctx, db.Pool(), cfg, "ray-1")
	if !cfgResult.Status {
		t.Fatalf("insert client config failed: %s", cfgResult.ErrorCode)
	}

	fetched := clients.GetByClientIdentifier(ctx, db.Pool(), client.ClientIdentifier, "ray-2")
	if !fetched.Status {
		t.Fatalf("fetch client failed: %s", fetched.ErrorCode)
	}
	if fetched.ClientMessage.ID != client.ID {
		t.Fatalf("expected client id %s, got %s", client.ID, fetched.ClientMessage.ID)
	}
}

// TestRefreshTokenRepository_RevokeIfActive exercises the conditional
// update the concurrency model relies on for single-winner rotation.
func TestRefreshTokenRepository_RevokeIfActive(t *testing.T) {
	db := testDB(t)
	defer db.Close()

	ctx := context.Background()
	clients := NewClientRepository()
	refreshTokens := NewRefreshTokenRepository()

	now := time.Now().UTC().Truncate(time.Second)
	client := &oauth2.Client{
		ID: "client-it-2", ClientIdentifier: "web-app-it-2", IsEnabled: true,
		GrantTypes: []string{"refresh_token"},
		Audit:      oauth2.Audit{CreatedAt: now, CreatedBy: "u", UpdatedAt: now, UpdatedBy: "u"},
	}
	defer db.Pool().Exec(ctx, "DELETE FROM oauth_clients WHERE id = $1", client.ID)
	if res := clients.Insert(ctx, db.Pool(), client, "ray"); !res.Status {
		t.Fatalf("insert client: %s", res.ErrorCode)
	}

	rt := &oauth2.RefreshToken{
		ID: "rt-it-1", Token: "rt-token-it-1", ClientID: client.ID,
		Audit: oauth2.Audit{CreatedAt: now, CreatedBy: "u", UpdatedAt: now, UpdatedBy: "u"},
	}
	if res := refreshTokens.Insert(ctx, db.Pool(), rt, "ray"); !res.Status {
		t.Fatalf("insert refresh token: %s", res.ErrorCode)
	}

	first := refreshTokens.RevokeIfActive(ctx, db.Pool(), rt.ID, now, "ray")
	if !first.Status || !first.ClientMessage {
		t.Fatalf("expected first revoke to win the race")
	}

	second := refreshTokens.RevokeIfActive(ctx, db.Pool(), rt.ID, now, "ray")
	if !second.Status || second.ClientMessage {
		t.Fatalf("expected second revoke to lose the race")
	}
}
