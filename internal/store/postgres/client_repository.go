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

package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/oauth2core/authserver/internal/oauth2"
	"github.com/oauth2core/authserver/internal/resultenv"
	"github.com/oauth2core/authserver/internal/store"
)

// ClientRepository implements oauth2.ClientRepository against Postgres.
type ClientRepository struct{}

// NewClientRepository creates a new client repository.
func NewClientRepository() *ClientRepository {
	return &ClientRepository{}
}

func (r *ClientRepository) Insert(ctx context.Context, q store.Querier, client *oauth2.Client, rayID string) resultenv.Envelope[*oauth2.Client] {
	_, err := q.Exec(ctx, `
		INSERT INTO oauth_clients (
			id, client_identifier, client_secret_hash, is_confidential,
			redirect_uris, grant_types, scopes, is_enabled,
			created_at, created_by, updated_at, updated_by
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		client.ID, client.ClientIdentifier, client.ClientSecretHash, client.IsConfidential,
		oauth2.CanonicalScope(client.RedirectURIs), oauth2.CanonicalScope(client.GrantTypes), oauth2.CanonicalScope(client.Scopes), client.IsEnabled,
		client.CreatedAt, client.CreatedBy, client.UpdatedAt, client.UpdatedBy,
	)
	if err != nil {
		return resultenv.Fail[*oauth2.Client](rayID, resultenv.ErrCodeInsertFailed, nil)
	}
	return resultenv.Ok(rayID, client)
}

func (r *ClientRepository) GetByID(ctx context.Context, q store.Querier, id, rayID string) resultenv.Envelope[*oauth2.Client] {
	return r.scanOne(ctx, q, rayID, `
		SELECT id, client_identifier, client_secret_hash, is_confidential,
			redirect_uris, grant_types, scopes, is_enabled,
			created_at, created_by, updated_at, updated_by
		FROM oauth_clients WHERE id = $1
	`, id)
}

func (r *ClientRepository) GetByClientIdentifier(ctx context.Context, q store.Querier, identifier, rayID string) resultenv.Envelope[*oauth2.Client] {
	return r.scanOne(ctx, q, rayID, `
		SELECT id, client_identifier, client_secret_hash, is_confidential,
			redirect_uris, grant_types, scopes, is_enabled,
			created_at, created_by, updated_at, updated_by
		FROM oauth_clients WHERE client_identifier = $1
	`, identifier)
}

func (r *ClientRepository) scanOne(ctx context.Context, q store.Querier, rayID, sql, arg string) resultenv.Envelope[*oauth2.Client] {
	var c oauth2.Client
	var redirectURIs, grantTypes, scopes string

	err := q.QueryRow(ctx, sql, arg).Scan(
		&c.ID, &c.ClientIdentifier, &c.ClientSecretHash, &c.IsConfidential,
		&redirectURIs, &grantTypes, &scopes, &c.IsEnabled,
		&c.CreatedAt, &c.CreatedBy, &c.UpdatedAt, &c.UpdatedBy,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return resultenv.Fail[*oauth2.Client](rayID, resultenv.ErrCodeNotFound, nil)
		}
		return resultenv.Fail[*oauth2.Client](rayID, resultenv.ErrCodeFetchFailed, nil)
	}

	c.RedirectURIs = oauth2.SplitScope(redirectURIs)
	c.GrantTypes = oauth2.SplitScope(grantTypes)
	c.Scopes = oauth2.SplitScope(scopes)

	return resultenv.Ok(rayID, &c)
}

func (r *ClientRepository) Update(ctx context.Context, q store.Querier, client *oauth2.Client, rayID string) resultenv.Envelope[*oauth2.Client] {
	tag, err := q.Exec(ctx, `
		UPDATE oauth_clients SET
			client_secret_hash = $2, is_confidential = $3,
			redirect_uris = $4, grant_types = $5, scopes = $6, is_enabled = $7,
			updated_at = $8, updated_by = $9
		WHERE id = $1
	`,
		client.ID, client.ClientSecretHash, client.IsConfidential,
		oauth2.CanonicalScope(client.RedirectURIs), oauth2.CanonicalScope(client.GrantTypes), oauth2.CanonicalScope(client.Scopes), client.IsEnabled,
		client.UpdatedAt, client.UpdatedBy,
	)
	if err != nil {
		return resultenv.Fail[*oauth2.Client](rayID, resultenv.ErrCodeUpdateFailed, nil)
	}
	if tag.RowsAffected() == 0 {
		return resultenv.Fail[*oauth2.Client](rayID, resultenv.ErrCodeNotFound, nil)
	}
	return resultenv.Ok(rayID, client)
}

func (r *ClientRepository) DeleteByID(ctx context.Context, q store.Querier, id, rayID string) resultenv.Envelope[struct{}] {
	tag, err := q.Exec(ctx, `DELETE FROM oauth_clients WHERE id = $1`, id)
	if err != nil {
		return resultenv.Fail[struct{}](rayID, resultenv.ErrCodeDeleteFailed, struct{}{})
	}
	if tag.RowsAffected() == 0 {
		return resultenv.Fail[struct{}](rayID, resultenv.ErrCodeNotFound, struct{}{})
	}
	return resultenv.Ok(rayID, struct{}{})
}
