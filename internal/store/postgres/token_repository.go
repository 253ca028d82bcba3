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
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/oauth2core/authserver/internal/oauth2"
	"github.com/oauth2core/authserver/internal/resultenv"
	"github.com/oauth2core/authserver/internal/store"
)

// RefreshTokenRepository implements oauth2.RefreshTokenRepository.
type RefreshTokenRepository struct{}

func NewRefreshTokenRepository() *RefreshTokenRepository {
	return &RefreshTokenRepository{}
}

func (r *RefreshTokenRepository) Insert(ctx context.Context, q store.Querier, rt *oauth2.RefreshToken, rayID string) resultenv.Envelope[*oauth2.RefreshToken] {
	_, err := q.Exec(ctx, `
		INSERT INTO oauth_refresh_tokens (
			id, token, client_id, user_id, scopes, revoked_at,
			created_at, created_by, updated_at, updated_by
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		rt.ID, rt.Token, rt.ClientID, rt.UserID, oauth2.CanonicalScope(rt.Scopes), nullableTime(rt.RevokedAt),
		rt.CreatedAt, rt.CreatedBy, rt.UpdatedAt, rt.UpdatedBy,
	)
	if err != nil {
		return resultenv.Fail[*oauth2.RefreshToken](rayID, resultenv.ErrCodeInsertFailed, nil)
	}
	return resultenv.Ok(rayID, rt)
}

func (r *RefreshTokenRepository) GetByID(ctx context.Context, q store.Querier, id, rayID string) resultenv.Envelope[*oauth2.RefreshToken] {
	return r.scanOne(ctx, q, rayID, `
		SELECT id, token, client_id, user_id, scopes, revoked_at,
			created_at, created_by, updated_at, updated_by
		FROM oauth_refresh_tokens WHERE id = $1
	`, id)
}

func (r *RefreshTokenRepository) GetByToken(ctx context.Context, q store.Querier, token, rayID string) resultenv.Envelope[*oauth2.RefreshToken] {
	return r.scanOne(ctx, q, rayID, `
		SELECT id, token, client_id, user_id, scopes, revoked_at,
			created_at, created_by, updated_at, updated_by
		FROM oauth_refresh_tokens WHERE token = $1
	`, token)
}

func (r *RefreshTokenRepository) scanOne(ctx context.Context, q store.Querier, rayID, sql, arg string) resultenv.Envelope[*oauth2.RefreshToken] {
	var rt oauth2.RefreshToken
	var scopes string
	var revokedAt nullTime

	err := q.QueryRow(ctx, sql, arg).Scan(
		&rt.ID, &rt.Token, &rt.ClientID, &rt.UserID, &scopes, &revokedAt,
		&rt.CreatedAt, &rt.CreatedBy, &rt.UpdatedAt, &rt.UpdatedBy,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return resultenv.Fail[*oauth2.RefreshToken](rayID, resultenv.ErrCodeNotFound, nil)
		}
		return resultenv.Fail[*oauth2.RefreshToken](rayID, resultenv.ErrCodeFetchFailed, nil)
	}

	rt.Scopes = oauth2.SplitScope(scopes)
	rt.RevokedAt = revokedAt.ptr()

	return resultenv.Ok(rayID, &rt)
}

func (r *RefreshTokenRepository) Update(ctx context.Context, q store.Querier, rt *oauth2.RefreshToken, rayID string) resultenv.Envelope[*oauth2.RefreshToken] {
	tag, err := q.Exec(ctx, `
		UPDATE oauth_refresh_tokens SET
			scopes = $2, revoked_at = $3, updated_at = $4, updated_by = $5
		WHERE id = $1
	`, rt.ID, oauth2.CanonicalScope(rt.Scopes), nullableTime(rt.RevokedAt), rt.UpdatedAt, rt.UpdatedBy)
	if err != nil {
		return resultenv.Fail[*oauth2.RefreshToken](rayID, resultenv.ErrCodeUpdateFailed, nil)
	}
	if tag.RowsAffected() == 0 {
		return resultenv.Fail[*oauth2.RefreshToken](rayID, resultenv.ErrCodeNotFound, nil)
	}
	return resultenv.Ok(rayID, rt)
}

func (r *RefreshTokenRepository) DeleteByID(ctx context.Context, q store.Querier, id, rayID string) resultenv.Envelope[struct{}] {
	tag, err := q.Exec(ctx, `DELETE FROM oauth_refresh_tokens WHERE id = $1`, id)
	if err != nil {
		return resultenv.Fail[struct{}](rayID, resultenv.ErrCodeDeleteFailed, struct{}{})
	}
	if tag.RowsAffected() == 0 {
		return resultenv.Fail[struct{}](rayID, resultenv.ErrCodeNotFound, struct{}{})
	}
	return resultenv.Ok(rayID, struct{}{})
}

// RevokeIfActive is the conditional-update primitive the concurrency
// model (§5) relies on: it transitions revoked_at from NULL to revokedAt
// and reports whether it actually changed a row. A caller that observes
// ok=false lost a race against a concurrent rotation or revocation of the
// same token and must abort with INVALID_GRANT rather than proceed.
func (r *RefreshTokenRepository) RevokeIfActive(ctx context.Context, q store.Querier, id string, revokedAt time.Time, rayID string) resultenv.Envelope[bool] {
	tag, err := q.Exec(ctx, `
		UPDATE oauth_refresh_tokens SET revoked_at = $2, updated_at = $2
		WHERE id = $1 AND revoked_at IS NULL
	`, id, revokedAt)
	if err != nil {
		return resultenv.Fail[bool](rayID, resultenv.ErrCodeUpdateFailed, false)
	}
	return resultenv.Ok(rayID, tag.RowsAffected() == 1)
}

func (r *RefreshTokenRepository) ListActiveByClientAndUser(ctx context.Context, q store.Querier, clientID, userID, rayID string) resultenv.Envelope[[]*oauth2.RefreshToken] {
	rows, err := q.Query(ctx, `
		SELECT id, token, client_id, user_id, scopes, revoked_at,
			created_at, created_by, updated_at, updated_by
		FROM oauth_refresh_tokens
		WHERE client_id = $1 AND user_id = $2 AND revoked_at IS NULL
	`, clientID, userID)
	if err != nil {
		return resultenv.Fail[[]*oauth2.RefreshToken](rayID, resultenv.ErrCodeFetchFailed, nil)
	}
	defer rows.Close()

	var tokens []*oauth2.RefreshToken
	for rows.Next() {
		var rt oauth2.RefreshToken
		var scopes string
		var revokedAt nullTime
		if err := rows.Scan(&rt.ID, &rt.Token, &rt.ClientID, &rt.UserID, &scopes, &revokedAt,
			&rt.CreatedAt, &rt.CreatedBy, &rt.UpdatedAt, &rt.UpdatedBy); err != nil {
			return resultenv.Fail[[]*oauth2.RefreshToken](rayID, resultenv.ErrCodeFetchFailed, nil)
		}
		rt.Scopes = oauth2.SplitScope(scopes)
		rt.RevokedAt = revokedAt.ptr()
		tokens = append(tokens, &rt)
	}
	if err := rows.Err(); err != nil {
		return resultenv.Fail[[]*oauth2.RefreshToken](rayID, resultenv.ErrCodeFetchFailed, nil)
	}

	return resultenv.Ok(rayID, tokens)
}

// AccessTokenRepository implements oauth2.AccessTokenRepository.
type AccessTokenRepository struct{}

func NewAccessTokenRepository() *AccessTokenRepository {
	return &AccessTokenRepository{}
}

func (r *AccessTokenRepository) Insert(ctx context.Context, q store.Querier, at *oauth2.AccessToken, rayID string) resultenv.Envelope[*oauth2.AccessToken] {
	_, err := q.Exec(ctx, `
		INSERT INTO oauth_access_tokens (
			id, token, client_id, user_id, refresh_token_id, scopes,
			expires_at, revoked_at, created_at, created_by, updated_at, updated_by
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		at.ID, at.Token, at.ClientID, at.UserID, nullableString(refreshTokenIDPtr(at.RefreshTokenID)), oauth2.CanonicalScope(at.Scopes),
		at.ExpiresAt, nullableTime(at.RevokedAt), at.CreatedAt, at.CreatedBy, at.UpdatedAt, at.UpdatedBy,
	)
	if err != nil {
		return resultenv.Fail[*oauth2.AccessToken](rayID, resultenv.ErrCodeInsertFailed, nil)
	}
	return resultenv.Ok(rayID, at)
}

func refreshTokenIDPtr(id string) *string {
	if id == "" {
		return nil
	}
	return &id
}

func (r *AccessTokenRepository) GetByID(ctx context.Context, q store.Querier, id, rayID string) resultenv.Envelope[*oauth2.AccessToken] {
	return r.scanOne(ctx, q, rayID, `
		SELECT id, token, client_id, user_id, refresh_token_id, scopes,
			expires_at, revoked_at, created_at, created_by, updated_at, updated_by
		FROM oauth_access_tokens WHERE id = $1
	`, id)
}

func (r *AccessTokenRepository) GetByToken(ctx context.Context, q store.Querier, token, rayID string) resultenv.Envelope[*oauth2.AccessToken] {
	return r.scanOne(ctx, q, rayID, `
		SELECT id, token, client_id, user_id, refresh_token_id, scopes,
			expires_at, revoked_at, created_at, created_by, updated_at, updated_by
		FROM oauth_access_tokens WHERE token = $1
	`, token)
}

func (r *AccessTokenRepository) scanOne(ctx context.Context, q store.Querier, rayID, sql, arg string) resultenv.Envelope[*oauth2.AccessToken] {
	var at oauth2.AccessToken
	var scopes string
	var refreshTokenID sql.NullString
	var revokedAt nullTime

	err := q.QueryRow(ctx, sql, arg).Scan(
		&at.ID, &at.Token, &at.ClientID, &at.UserID, &refreshTokenID, &scopes,
		&at.ExpiresAt, &revokedAt, &at.CreatedAt, &at.CreatedBy, &at.UpdatedAt, &at.UpdatedBy,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return resultenv.Fail[*oauth2.AccessToken](rayID, resultenv.ErrCodeNotFound, nil)
		}
		return resultenv.Fail[*oauth2.AccessToken](rayID, resultenv.ErrCodeFetchFailed, nil)
	}

	at.Scopes = oauth2.SplitScope(scopes)
	if refreshTokenID.Valid {
		at.RefreshTokenID = refreshTokenID.String
	}
	at.RevokedAt = revokedAt.ptr()

	return resultenv.Ok(rayID, &at)
}

func (r *AccessTokenRepository) Revoke(ctx context.Context, q store.Querier, id string, revokedAt time.Time, rayID string) resultenv.Envelope[struct{}] {
	tag, err := q.Exec(ctx, `
		UPDATE oauth_access_tokens SET revoked_at = $2, updated_at = $2
		WHERE id = $1 AND revoked_at IS NULL
	`, id, revokedAt)
	if err != nil {
		return resultenv.Fail[struct{}](rayID, resultenv.ErrCodeUpdateFailed, struct{}{})
	}
	if tag.RowsAffected() == 0 {
		return resultenv.Fail[struct{}](rayID, resultenv.ErrCodeNotFound, struct{}{})
	}
	return resultenv.Ok(rayID, struct{}{})
}

// CountActiveByRefreshToken implements the §9 redesign: quota scoping by
// the originating refresh token, now that the schema links the two.
func (r *AccessTokenRepository) CountActiveByRefreshToken(ctx context.Context, q store.Querier, refreshTokenID, rayID string) resultenv.Envelope[int] {
	var count int
	err := q.QueryRow(ctx, `
		SELECT count(*) FROM oauth_access_tokens
		WHERE refresh_token_id = $1 AND revoked_at IS NULL
	`, refreshTokenID).Scan(&count)
	if err != nil {
		return resultenv.Fail[int](rayID, resultenv.ErrCodeFetchFailed, 0)
	}
	return resultenv.Ok(rayID, count)
}

func (r *AccessTokenRepository) GetOldestActiveByRefreshToken(ctx context.Context, q store.Querier, refreshTokenID, rayID string) resultenv.Envelope[*oauth2.AccessToken] {
	var at oauth2.AccessToken
	var scopes string
	var refreshID sql.NullString
	var revokedAt nullTime

	err := q.QueryRow(ctx, `
		SELECT id, token, client_id, user_id, refresh_token_id, scopes,
			expires_at, revoked_at, created_at, created_by, updated_at, updated_by
		FROM oauth_access_tokens
		WHERE refresh_token_id = $1 AND revoked_at IS NULL
		ORDER BY created_at ASC, id ASC
		LIMIT 1
	`, refreshTokenID).Scan(
		&at.ID, &at.Token, &at.ClientID, &at.UserID, &refreshID, &scopes,
		&at.ExpiresAt, &revokedAt, &at.CreatedAt, &at.CreatedBy, &at.UpdatedAt, &at.UpdatedBy,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return resultenv.Fail[*oauth2.AccessToken](rayID, resultenv.ErrCodeNotFound, nil)
		}
		return resultenv.Fail[*oauth2.AccessToken](rayID, resultenv.ErrCodeFetchFailed, nil)
	}

	at.Scopes = oauth2.SplitScope(scopes)
	if refreshID.Valid {
		at.RefreshTokenID = refreshID.String
	}
	at.RevokedAt = revokedAt.ptr()

	return resultenv.Ok(rayID, &at)
}

// nullTime adapts a nullable timestamptz column to *time.Time without
// pulling in database/sql's NullTime for every call site.
type nullTime struct {
	t     time.Time
	valid bool
}

func (n *nullTime) Scan(src any) error {
	if src == nil {
		n.valid = false
		return nil
	}
	t, ok := src.(time.Time)
	if !ok {
		return sql.ErrNoRows
	}
	n.t, n.valid = t, true
	return nil
}

func (n nullTime) ptr() *time.Time {
	if !n.valid {
		return nil
	}
	t := n.t
	return &t
}

func nullableTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
