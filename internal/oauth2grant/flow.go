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
	"encoding/json"
	"fmt"
	"time"

	"github.com/oauth2core/authserver/internal/audit"
	"github.com/oauth2core/authserver/internal/clock"
	"github.com/oauth2core/authserver/internal/credential"
	"github.com/oauth2core/authserver/internal/flow"
	"github.com/oauth2core/authserver/internal/id"
	"github.com/oauth2core/authserver/internal/oauth2"
	"github.com/oauth2core/authserver/internal/resultenv"
	"github.com/oauth2core/authserver/internal/store"
)

// RefreshTokenFlow implements flow.Flow[*TokenResponse] for RFC 6749 §6:
// exchanging a refresh token for a new access token, optionally rotating
// the refresh token itself.
type RefreshTokenFlow struct {
	chain *flow.Chain

	pool          store.Querier
	tx            store.Transactor
	clients       oauth2.ClientRepository
	configs       oauth2.ClientConfigRepository
	refreshTokens oauth2.RefreshTokenRepository
	accessTokens  oauth2.AccessTokenRepository
	auditLog      oauth2.AuditLogRepository

	generator *credential.SecretGenerator
	clk       clock.Clock

	rotateRefreshTokens bool
}

// Deps bundles RefreshTokenFlow's collaborators.
type Deps struct {
	Pool          store.Querier
	Tx            store.Transactor
	Clients       oauth2.ClientRepository
	Configs       oauth2.ClientConfigRepository
	RefreshTokens oauth2.RefreshTokenRepository
	AccessTokens  oauth2.AccessTokenRepository
	AuditLog      oauth2.AuditLogRepository
	AuditLogger   audit.Logger
	Generator     *credential.SecretGenerator
	Hasher        *credential.SecretHasher
	Clock         clock.Clock

	// RotateRefreshTokens is §6's one policy toggle; config.Load defaults
	// it to true.
	RotateRefreshTokens bool
	// FamilyRevocationEnabled gates RFC 6819 §5.2.2.3 cascade revocation
	// on reuse detection; config.Load defaults it to true (§9 "Open
	// question" — adopted).
	FamilyRevocationEnabled bool
}

// NewRefreshTokenFlow builds a RefreshTokenFlow wired to deps, assembling
// the five §4.3 preconditions in order.
func NewRefreshTokenFlow(deps Deps) *RefreshTokenFlow {
	f := &RefreshTokenFlow{
		pool:                deps.Pool,
		tx:                  deps.Tx,
		clients:             deps.Clients,
		configs:             deps.Configs,
		refreshTokens:       deps.RefreshTokens,
		accessTokens:        deps.AccessTokens,
		auditLog:            deps.AuditLog,
		generator:           deps.Generator,
		clk:                 deps.Clock,
		rotateRefreshTokens: deps.RotateRefreshTokens,
	}

	f.chain = flow.NewChain(
		presenceCondition{},
		clientAuthenticationCondition{q: deps.Pool, clients: deps.Clients, configs: deps.Configs, hasher: deps.Hasher, auditLogger: deps.AuditLogger},
		refreshTokenValidationCondition{q: deps.Pool, refreshTokens: deps.RefreshTokens, clk: deps.Clock, familyRevocationEnabled: deps.FamilyRevocationEnabled, auditLogger: deps.AuditLogger},
		scopeCondition{},
		accessTokenQuotaCondition{q: deps.Pool, accessTokens: deps.AccessTokens, clk: deps.Clock},
	)
	return f
}

// Name identifies the flow for the Template's logging.
func (f *RefreshTokenFlow) Name() string { return "refresh_token" }

// Preconditions runs the five-condition chain.
func (f *RefreshTokenFlow) Preconditions(ctx context.Context, fc flow.Context, rayID string) resultenv.Envelope[struct{}] {
	return f.chain.Execute(ctx, fc, rayID)
}

// Run is side-effect-free: it constructs the new credentials from state
// the preconditions already resolved and stashed into fc. No repository
// calls happen here.
func (f *RefreshTokenFlow) Run(_ context.Context, fc flow.Context, rayID string) resultenv.Envelope[*TokenResponse] {
	cl := getClient(fc)
	cfg := getClientConfig(fc)
	rt := getRefreshToken(fc)
	scope := getEffectiveScope(fc)

	owner := rt.UserID
	if owner == "" {
		owner = cl.ID
	}

	accessTokenValue, err := f.generator.Generate(owner)
	if err != nil {
		return resultenv.Fail[*TokenResponse](rayID, oauth2.ErrServerError, nil)
	}

	res := runResult{
		newAccessTokenID:  id.NewUUIDv7(),
		originalRefreshID: rt.ID,
		effectiveScope:    scope,
	}
	res.response = TokenResponse{
		AccessToken: accessTokenValue,
		TokenType:   "Bearer",
		ExpiresIn:   cfg.AccessTokenTTL,
		Scope:       oauth2.CanonicalScope(scope),
	}

	if f.rotateRefreshTokens {
		refreshTokenValue, err := f.generator.Generate(owner)
		if err != nil {
			return resultenv.Fail[*TokenResponse](rayID, oauth2.ErrServerError, nil)
		}
		res.isRotated = true
		res.newRefreshTokenID = id.NewUUIDv7()
		res.response.RefreshToken = refreshTokenValue
	} else {
		res.response.RefreshToken = rt.Token
	}

	fc[keyRunResult] = res
	return resultenv.Ok(rayID, &res.response)
}

// Postconditions persists Run's output inside a single transaction: new
// access token, rotated (or touched) refresh token, audit entry. Any
// failure rolls back; losing the rotation race to a concurrent request
// surfaces INVALID_GRANT, every other failure SERVER_ERROR, per §4.3's
// atomicity clause and §5's conditional-update rotation contract.
func (f *RefreshTokenFlow) Postconditions(ctx context.Context, fc flow.Context, result resultenv.Envelope[*TokenResponse], rayID string) resultenv.Envelope[struct{}] {
	cl := getClient(fc)
	rt := getRefreshToken(fc)
	res := fc[keyRunResult].(runResult)
	now := f.clk.Now()
	lostRace := false

	err := f.tx.WithTx(ctx, func(q store.Querier) error {
		accessToken := &oauth2.AccessToken{
			ID:             res.newAccessTokenID,
			Token:          result.ClientMessage.AccessToken,
			ClientID:       cl.ID,
			UserID:         rt.UserID,
			RefreshTokenID: res.originalRefreshID,
			Scopes:         res.effectiveScope,
			ExpiresAt:      now.Add(secondsToDuration(result.ClientMessage.ExpiresIn)),
			Audit:          oauth2.Audit{CreatedAt: now, CreatedBy: rt.UserID, UpdatedAt: now, UpdatedBy: rt.UserID},
		}
		if insertResult := f.accessTokens.Insert(ctx, q, accessToken, rayID); !insertResult.Status {
			return fmt.Errorf("insert access token: %s", insertResult.ErrorCode)
		}

		if res.isRotated {
			revokeResult := f.refreshTokens.RevokeIfActive(ctx, q, rt.ID, now, rayID)
			if !revokeResult.Status {
				return fmt.Errorf("revoke refresh token: %s", revokeResult.ErrorCode)
			}
			if !revokeResult.ClientMessage {
				// Lost the race: another request already rotated this
				// token. The loser fails the whole request as INVALID_GRANT.
				lostRace = true
				return fmt.Errorf("refresh token %s already revoked", rt.ID)
			}

			replacement := &oauth2.RefreshToken{
				ID:       res.newRefreshTokenID,
				Token:    result.ClientMessage.RefreshToken,
				ClientID: rt.ClientID,
				UserID:   rt.UserID,
				Scopes:   res.effectiveScope,
				Audit:    oauth2.Audit{CreatedAt: now, CreatedBy: rt.UserID, UpdatedAt: now, UpdatedBy: rt.UserID},
			}
			if insertResult := f.refreshTokens.Insert(ctx, q, replacement, rayID); !insertResult.Status {
				return fmt.Errorf("insert replacement refresh token: %s", insertResult.ErrorCode)
			}
		} else {
			rt.UpdatedAt = now
			if updateResult := f.refreshTokens.Update(ctx, q, rt, rayID); !updateResult.Status {
				return fmt.Errorf("touch refresh token: %s", updateResult.ErrorCode)
			}
		}

		metadata, _ := json.Marshal(map[string]string{"access_token_id": res.newAccessTokenID})
		entry := &oauth2.AuditLogEntry{
			ID:        id.NewUUIDv7(),
			EventType: oauth2.EventTokenIssued,
			Subject:   rt.UserID,
			ClientID:  cl.ID,
			UserID:    rt.UserID,
			Metadata:  string(metadata),
			CreatedAt: now,
		}
		if auditResult := f.auditLog.Insert(ctx, q, entry, rayID); !auditResult.Status {
			return fmt.Errorf("insert audit entry: %s", auditResult.ErrorCode)
		}
		return nil
	})
	if err != nil {
		if lostRace {
			return resultenv.Fail[struct{}](rayID, oauth2.ErrInvalidGrant, struct{}{})
		}
		return resultenv.Fail[struct{}](rayID, oauth2.ErrServerError, struct{}{})
	}
	return resultenv.Ok(rayID, struct{}{})
}

func secondsToDuration(seconds int) time.Duration {
	return time.Duration(seconds) * time.Second
}
