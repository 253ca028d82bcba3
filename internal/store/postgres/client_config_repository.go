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
	"database/sql"

	"github.com/jackc/pgx/v5"

	"github.com/oauth2core/authserver/internal/oauth2"
	"github.com/oauth2core/authserver/internal/resultenv"
	"github.com/oauth2core/authserver/internal/store"
)

// ClientConfigRepository implements oauth2.ClientConfigRepository.
type ClientConfigRepository struct{}

func NewClientConfigRepository() *ClientConfigRepository {
	return &ClientConfigRepository{}
}

func (r *ClientConfigRepository) Insert(ctx context.Context, q store.Querier, cfg *oauth2.ClientConfig, rayID string) resultenv.Envelope[*oauth2.ClientConfig] {
	_, err := q.Exec(ctx, `
		INSERT INTO oauth_client_configs (
			client_id, response_types, require_pkce, pkce_methods,
			access_token_ttl, refresh_token_ttl, authorization_code_ttl,
			max_active_access_tokens, max_active_refresh_tokens,
			device_code_ttl, device_poll_interval, metadata,
			created_at, created_by, updated_at, updated_by
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`,
		cfg.ClientID, oauth2.CanonicalScope(cfg.ResponseTypes), cfg.RequirePKCE, oauth2.CanonicalScope(cfg.PKCEMethods),
		cfg.AccessTokenTTL, nullableInt(cfg.RefreshTokenTTL), cfg.AuthorizationCodeTTL,
		nullableInt(cfg.MaxActiveAccessTokens), nullableInt(cfg.MaxActiveRefreshTokens),
		nullableInt(cfg.DeviceCodeTTL), nullableInt(cfg.DevicePollInterval), nullableString(cfg.Metadata),
		cfg.CreatedAt, cfg.CreatedBy, cfg.UpdatedAt, cfg.UpdatedBy,
	)
	if err != nil {
		return resultenv.Fail[*oauth2.ClientConfig](rayID, resultenv.ErrCodeInsertFailed, nil)
	}
	return resultenv.Ok(rayID, cfg)
}

func (r *ClientConfigRepository) GetByClientID(ctx context.Context, q store.Querier, clientID, rayID string) resultenv.Envelope[*oauth2.ClientConfig] {
	var cfg oauth2.ClientConfig
	var responseTypes, pkceMethods string
	var refreshTTL, maxAccess, maxRefresh, deviceTTL, devicePoll sql.NullInt64
	var metadata sql.NullString

	err := q.QueryRow(ctx, `
		SELECT client_id, response_types, require_pkce, pkce_methods,
			access_token_ttl, refresh_token_ttl, authorization_code_ttl,
			max_active_access_tokens, max_active_refresh_tokens,
			device_code_ttl, device_poll_interval, metadata,
			created_at, created_by, updated_at, updated_by
		FROM oauth_client_configs WHERE client_id = $1
	`, clientID).Scan(
		&cfg.ClientID, &responseTypes, &cfg.RequirePKCE, &pkceMethods,
		&cfg.AccessTokenTTL, &refreshTTL, &cfg.AuthorizationCodeTTL,
		&maxAccess, &maxRefresh, &deviceTTL, &devicePoll, &metadata,
		&cfg.CreatedAt, &cfg.CreatedBy, &cfg.UpdatedAt, &cfg.UpdatedBy,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return resultenv.Fail[*oauth2.ClientConfig](rayID, resultenv.ErrCodeNotFound, nil)
		}
		return resultenv.Fail[*oauth2.ClientConfig](rayID, resultenv.ErrCodeFetchFailed, nil)
	}

	cfg.ResponseTypes = oauth2.SplitScope(responseTypes)
	cfg.PKCEMethods = oauth2.SplitScope(pkceMethods)
	cfg.RefreshTokenTTL = intPtr(refreshTTL)
	cfg.MaxActiveAccessTokens = intPtr(maxAccess)
	cfg.MaxActiveRefreshTokens = intPtr(maxRefresh)
	cfg.DeviceCodeTTL = intPtr(deviceTTL)
	cfg.DevicePollInterval = intPtr(devicePoll)
	if metadata.Valid {
		cfg.Metadata = &metadata.String
	}

	return resultenv.Ok(rayID, &cfg)
}

func (r *ClientConfigRepository) Update(ctx context.Context, q store.Querier, cfg *oauth2.ClientConfig, rayID string) resultenv.Envelope[*oauth2.ClientConfig] {
	tag, err := q.Exec(ctx, `
		UPDATE oauth_client_configs SET
			response_types = $2, require_pkce = $3, pkce_methods = $4,
			access_token_ttl = $5, refresh_token_ttl = $6, authorization_code_ttl = $7,
			max_active_access_tokens = $8, max_active_refresh_tokens = $9,
			device_code_ttl = $10, device_poll_interval = $11, metadata = $12,
			updated_at = $13, updated_by = $14
		WHERE client_id = $1
	`,
		cfg.ClientID, oauth2.CanonicalScope(cfg.ResponseTypes), cfg.RequirePKCE, oauth2.CanonicalScope(cfg.PKCEMethods),
		cfg.AccessTokenTTL, nullableInt(cfg.RefreshTokenTTL), cfg.AuthorizationCodeTTL,
		nullableInt(cfg.MaxActiveAccessTokens), nullableInt(cfg.MaxActiveRefreshTokens),
		nullableInt(cfg.DeviceCodeTTL), nullableInt(cfg.DevicePollInterval), nullableString(cfg.Metadata),
		cfg.UpdatedAt, cfg.UpdatedBy,
	)
	if err != nil {
		return resultenv.Fail[*oauth2.ClientConfig](rayID, resultenv.ErrCodeUpdateFailed, nil)
	}
	if tag.RowsAffected() == 0 {
		return resultenv.Fail[*oauth2.ClientConfig](rayID, resultenv.ErrCodeNotFound, nil)
	}
	return resultenv.Ok(rayID, cfg)
}

func (r *ClientConfigRepository) DeleteByClientID(ctx context.Context, q store.Querier, clientID, rayID string) resultenv.Envelope[struct{}] {
	tag, err := q.Exec(ctx, `DELETE FROM oauth_client_configs WHERE client_id = $1`, clientID)
	if err != nil {
		return resultenv.Fail[struct{}](rayID, resultenv.ErrCodeDeleteFailed, struct{}{})
	}
	if tag.RowsAffected() == 0 {
		return resultenv.Fail[struct{}](rayID, resultenv.ErrCodeNotFound, struct{}{})
	}
	return resultenv.Ok(rayID, struct{}{})
}

func nullableInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	i := int(v.Int64)
	return &i
}

func nullableString(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}
