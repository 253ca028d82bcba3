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

package oauth2grant

import (
	"context"
	"time"

	"github.com/oauth2core/authserver/internal/oauth2"
	"github.com/oauth2core/authserver/internal/resultenv"
	"github.com/oauth2core/authserver/internal/store"
)

// The mocks below follow the teacher's in-memory-repository test style: a
// struct wrapping a map, every method returning a resultenv.Envelope. They
// do not implement real transactional rollback — mockTransactor applies
// mutations as they happen, so these tests do not exercise atomicity.

type mockClientRepo struct {
	byID         map[string]*oauth2.Client
	byIdentifier map[string]string // identifier -> id
}

func newMockClientRepo() *mockClientRepo {
	return &mockClientRepo{byID: map[string]*oauth2.Client{}, byIdentifier: map[string]string{}}
}

func (m *mockClientRepo) Insert(_ context.Context, _ store.Querier, c *oauth2.Client, rayID string) resultenv.Envelope[*oauth2.Client] {
	if _, exists := m.byIdentifier[c.ClientIdentifier]; exists {
		return resultenv.Fail[*oauth2.Client](rayID, resultenv.ErrCodeInsertFailed, nil)
	}
	m.byID[c.ID] = c
	m.byIdentifier[c.ClientIdentifier] = c.ID
	return resultenv.Ok(rayID, c)
}

func (m *mockClientRepo) GetByID(_ context.Context, _ store.Querier, id, rayID string) resultenv.Envelope[*oauth2.Client] {
	c, ok := m.byID[id]
	if !ok {
		return resultenv.Fail[*oauth2.Client](rayID, resultenv.ErrCodeNotFound, nil)
	}
	return resultenv.Ok(rayID, c)
}

func (m *mockClientRepo) GetByClientIdentifier(_ context.Context, _ store.Querier, identifier, rayID string) resultenv.Envelope[*oauth2.Client] {
	clientID, ok := m.byIdentifier[identifier]
	if !ok {
		return resultenv.Fail[*oauth2.Client](rayID, resultenv.ErrCodeNotFound, nil)
	}
	return resultenv.Ok(rayID, m.byID[clientID])
}

func (m *mockClientRepo) Update(_ context.Context, _ store.Querier, c *oauth2.Client, rayID string) resultenv.Envelope[*oauth2.Client] {
	if _, ok := m.byID[c.ID]; !ok {
		return resultenv.Fail[*oauth2.Client](rayID, resultenv.ErrCodeNotFound, nil)
	}
	m.byID[c.ID] = c
	return resultenv.Ok(rayID, c)
}

func (m *mockClientRepo) DeleteByID(_ context.Context, _ store.Querier, id, rayID string) resultenv.Envelope[struct{}] {
	if c, ok := m.byID[id]; ok {
		delete(m.byIdentifier, c.ClientIdentifier)
		delete(m.byID, id)
		return resultenv.Ok(rayID, struct{}{})
	}
	return resultenv.Fail[struct{}](rayID, resultenv.ErrCodeNotFound, struct{}{})
}

type mockConfigRepo struct {
	byClientID map[string]*oauth2.ClientConfig
}

func newMockConfigRepo() *mockConfigRepo {
	return &mockConfigRepo{byClientID: map[string]*oauth2.ClientConfig{}}
}

func (m *mockConfigRepo) Insert(_ context.Context, _ store.Querier, cfg *oauth2.ClientConfig, rayID string) resultenv.Envelope[*oauth2.ClientConfig] {
	m.byClientID[cfg.ClientID] = cfg
	return resultenv.Ok(rayID, cfg)
}

func (m *mockConfigRepo) GetByClientID(_ context.Context, _ store.Querier, clientID, rayID string) resultenv.Envelope[*oauth2.ClientConfig] {
	cfg, ok := m.byClientID[clientID]
	if !ok {
		return resultenv.Fail[*oauth2.ClientConfig](rayID, resultenv.ErrCodeNotFound, nil)
	}
	return resultenv.Ok(rayID, cfg)
}

func (m *mockConfigRepo) Update(_ context.Context, _ store.Querier, cfg *oauth2.ClientConfig, rayID string) resultenv.Envelope[*oauth2.ClientConfig] {
	m.byClientID[cfg.ClientID] = cfg
	return resultenv.Ok(rayID, cfg)
}

func (m *mockConfigRepo) DeleteByClientID(_ context.Context, _ store.Querier, clientID, rayID string) resultenv.Envelope[struct{}] {
	delete(m.byClientID, clientID)
	return resultenv.Ok(rayID, struct{}{})
}

type mockRefreshTokenRepo struct {
	byID    map[string]*oauth2.RefreshToken
	byToken map[string]string // token -> id
}

func newMockRefreshTokenRepo() *mockRefreshTokenRepo {
	return &mockRefreshTokenRepo{byID: map[string]*oauth2.RefreshToken{}, byToken: map[string]string{}}
}

func (m *mockRefreshTokenRepo) Insert(_ context.Context, _ store.Querier, rt *oauth2.RefreshToken, rayID string) resultenv.Envelope[*oauth2.RefreshToken] {
	m.byID[rt.ID] = rt
	m.byToken[rt.Token] = rt.ID
	return resultenv.Ok(rayID, rt)
}

func (m *mockRefreshTokenRepo) GetByID(_ context.Context, _ store.Querier, id, rayID string) resultenv.Envelope[*oauth2.RefreshToken] {
	rt, ok := m.byID[id]
	if !ok {
		return resultenv.Fail[*oauth2.RefreshToken](rayID, resultenv.ErrCodeNotFound, nil)
	}
	return resultenv.Ok(rayID, rt)
}

func (m *mockRefreshTokenRepo) GetByToken(_ context.Context, _ store.Querier, token, rayID string) resultenv.Envelope[*oauth2.RefreshToken] {
	id, ok := m.byToken[token]
	if !ok {
		return resultenv.Fail[*oauth2.RefreshToken](rayID, resultenv.ErrCodeNotFound, nil)
	}
	return resultenv.Ok(rayID, m.byID[id])
}

func (m *mockRefreshTokenRepo) Update(_ context.Context, _ store.Querier, rt *oauth2.RefreshToken, rayID string) resultenv.Envelope[*oauth2.RefreshToken] {
	if _, ok := m.byID[rt.ID]; !ok {
		return resultenv.Fail[*oauth2.RefreshToken](rayID, resultenv.ErrCodeNotFound, nil)
	}
	m.byID[rt.ID] = rt
	return resultenv.Ok(rayID, rt)
}

func (m *mockRefreshTokenRepo) DeleteByID(_ context.Context, _ store.Querier, id, rayID string) resultenv.Envelope[struct{}] {
	delete(m.byID, id)
	return resultenv.Ok(rayID, struct{}{})
}

func (m *mockRefreshTokenRepo) RevokeIfActive(_ context.Context, _ store.Querier, id string, revokedAt time.Time, rayID string) resultenv.Envelope[bool] {
	rt, ok := m.byID[id]
	if !ok {
		return resultenv.Fail[bool](rayID, resultenv.ErrCodeNotFound, false)
	}
	if rt.RevokedAt != nil {
		return resultenv.Ok(rayID, false)
	}
	t := revokedAt
	rt.RevokedAt = &t
	return resultenv.Ok(rayID, true)
}

func (m *mockRefreshTokenRepo) ListActiveByClientAndUser(_ context.Context, _ store.Querier, clientID, userID, rayID string) resultenv.Envelope[[]*oauth2.RefreshToken] {
	var out []*oauth2.RefreshToken
	for _, rt := range m.byID {
		if rt.ClientID == clientID && rt.UserID == userID && rt.Active() {
			out = append(out, rt)
		}
	}
	return resultenv.Ok(rayID, out)
}

type mockAccessTokenRepo struct {
	byID map[string]*oauth2.AccessToken
}

func newMockAccessTokenRepo() *mockAccessTokenRepo {
	return &mockAccessTokenRepo{byID: map[string]*oauth2.AccessToken{}}
}

func (m *mockAccessTokenRepo) Insert(_ context.Context, _ store.Querier, at *oauth2.AccessToken, rayID string) resultenv.Envelope[*oauth2.AccessToken] {
	m.byID[at.ID] = at
	return resultenv.Ok(rayID, at)
}

func (m *mockAccessTokenRepo) GetByID(_ context.Context, _ store.Querier, id, rayID string) resultenv.Envelope[*oauth2.AccessToken] {
	at, ok := m.byID[id]
	if !ok {
		return resultenv.Fail[*oauth2.AccessToken](rayID, resultenv.ErrCodeNotFound, nil)
	}
	return resultenv.Ok(rayID, at)
}

func (m *mockAccessTokenRepo) GetByToken(_ context.Context, _ store.Querier, token, rayID string) resultenv.Envelope[*oauth2.AccessToken] {
	for _, at := range m.byID {
		if at.Token == token {
			return resultenv.Ok(rayID, at)
		}
	}
	return resultenv.Fail[*oauth2.AccessToken](rayID, resultenv.ErrCodeNotFound, nil)
}

func (m *mockAccessTokenRepo) Revoke(_ context.Context, _ store.Querier, id string, revokedAt time.Time, rayID string) resultenv.Envelope[struct{}] {
	at, ok := m.byID[id]
	if !ok {
		return resultenv.Fail[struct{}](rayID, resultenv.ErrCodeNotFound, struct{}{})
	}
	t := revokedAt
	at.RevokedAt = &t
	return resultenv.Ok(rayID, struct{}{})
}

func (m *mockAccessTokenRepo) CountActiveByRefreshToken(_ context.Context, _ store.Querier, refreshTokenID, rayID string) resultenv.Envelope[int] {
	count := 0
	for _, at := range m.byID {
		if at.RefreshTokenID == refreshTokenID && at.RevokedAt == nil {
			count++
		}
	}
	return resultenv.Ok(rayID, count)
}

func (m *mockAccessTokenRepo) GetOldestActiveByRefreshToken(_ context.Context, _ store.Querier, refreshTokenID, rayID string) resultenv.Envelope[*oauth2.AccessToken] {
	var oldest *oauth2.AccessToken
	for _, at := range m.byID {
		if at.RefreshTokenID != refreshTokenID || at.RevokedAt != nil {
			continue
		}
		if oldest == nil || at.CreatedAt.Before(oldest.CreatedAt) || (at.CreatedAt.Equal(oldest.CreatedAt) && at.ID < oldest.ID) {
			oldest = at
		}
	}
	return resultenv.Ok(rayID, oldest)
}

type mockAuditLogRepo struct {
	entries []*oauth2.AuditLogEntry
}

func newMockAuditLogRepo() *mockAuditLogRepo {
	return &mockAuditLogRepo{}
}

func (m *mockAuditLogRepo) Insert(_ context.Context, _ store.Querier, entry *oauth2.AuditLogEntry, rayID string) resultenv.Envelope[*oauth2.AuditLogEntry] {
	m.entries = append(m.entries, entry)
	return resultenv.Ok(rayID, entry)
}

// mockTransactor runs fn directly against a nil Querier; the mock
// repositories above ignore the Querier argument entirely.
type mockTransactor struct{}

func (mockTransactor) WithTx(ctx context.Context, fn func(store.Querier) error) error {
	return fn(nil)
}
