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

package oauth2

import (
	"context"
	"time"

	"github.com/oauth2core/authserver/internal/resultenv"
	"github.com/oauth2core/authserver/internal/store"
)

// ClientRepository persists Client Identity rows.
type ClientRepository interface {
	Insert(ctx context.Context, q store.Querier, client *Client, rayID string) resultenv.Envelope[*Client]
	GetByID(ctx context.Context, q store.Querier, id, rayID string) resultenv.Envelope[*Client]
	GetByClientIdentifier(ctx context.Context, q store.Querier, identifier, rayID string) resultenv.Envelope[*Client]
	Update(ctx context.Context, q store.Querier, client *Client, rayID string) resultenv.Envelope[*Client]
	DeleteByID(ctx context.Context, q store.Querier, id, rayID string) resultenv.Envelope[struct{}]
}

// ClientConfigRepository persists the 1:1 Client Configuration row.
type ClientConfigRepository interface {
	Insert(ctx context.Context, q store.Querier, config *ClientConfig, rayID string) resultenv.Envelope[*ClientConfig]
	GetByClientID(ctx context.Context, q store.Querier, clientID, rayID string) resultenv.Envelope[*ClientConfig]
	Update(ctx context.Context, q store.Querier, config *ClientConfig, rayID string) resultenv.Envelope[*ClientConfig]
	DeleteByClientID(ctx context.Context, q store.Querier, clientID, rayID string) resultenv.Envelope[struct{}]
}

// RefreshTokenRepository persists Refresh Token rows and exposes the
// conditional-update primitive the concurrency model relies on for
// single-winner rotation.
type RefreshTokenRepository interface {
	Insert(ctx context.Context, q store.Querier, token *RefreshToken, rayID string) resultenv.Envelope[*RefreshToken]
	GetByID(ctx context.Context, q store.Querier, id, rayID string) resultenv.Envelope[*RefreshToken]
	GetByToken(ctx context.Context, q store.Querier, token, rayID string) resultenv.Envelope[*RefreshToken]
	Update(ctx context.Context, q store.Querier, token *RefreshToken, rayID string) resultenv.Envelope[*RefreshToken]
	DeleteByID(ctx context.Context, q store.Querier, id, rayID string) resultenv.Envelope[struct{}]

	// RevokeIfActive transitions revoked_at from NULL to revokedAt and
	// reports whether the update affected a row. ok=false means another
	// request already revoked (or rotated) this token first — the
	// caller lost the race and fails the whole request with
	// INVALID_GRANT per §5.
	RevokeIfActive(ctx context.Context, q store.Querier, id string, revokedAt time.Time, rayID string) resultenv.Envelope[bool]

	// ListActiveByClientAndUser supports family revocation on reuse
	// detection: every non-revoked refresh token issued to this
	// (client_id, user_id) pair.
	ListActiveByClientAndUser(ctx context.Context, q store.Querier, clientID, userID, rayID string) resultenv.Envelope[[]*RefreshToken]
}

// AccessTokenRepository persists Access Token rows and exposes the quota
// primitives used by §4.3 step 5.
type AccessTokenRepository interface {
	Insert(ctx context.Context, q store.Querier, token *AccessToken, rayID string) resultenv.Envelope[*AccessToken]
	GetByID(ctx context.Context, q store.Querier, id, rayID string) resultenv.Envelope[*AccessToken]
	GetByToken(ctx context.Context, q store.Querier, token, rayID string) resultenv.Envelope[*AccessToken]
	Revoke(ctx context.Context, q store.Querier, id string, revokedAt time.Time, rayID string) resultenv.Envelope[struct{}]

	// CountActiveByRefreshToken and GetOldestActiveByRefreshToken are
	// scoped to the originating refresh token when that linkage exists
	// in the schema; per §9, an implementation without the linkage
	// returns 0 / not-found and the quota rule becomes a no-op.
	CountActiveByRefreshToken(ctx context.Context, q store.Querier, refreshTokenID, rayID string) resultenv.Envelope[int]
	GetOldestActiveByRefreshToken(ctx context.Context, q store.Querier, refreshTokenID, rayID string) resultenv.Envelope[*AccessToken]
}

// AuditLogRepository persists append-only audit rows. It intentionally
// has no Update or DeleteByID method: I4 forbids both at the type level,
// not just by convention.
type AuditLogRepository interface {
	Insert(ctx context.Context, q store.Querier, entry *AuditLogEntry, rayID string) resultenv.Envelope[*AuditLogEntry]
}
