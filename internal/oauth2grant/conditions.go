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

	"github.com/oauth2core/authserver/internal/audit"
	"github.com/oauth2core/authserver/internal/clock"
	"github.com/oauth2core/authserver/internal/credential"
	"github.com/oauth2core/authserver/internal/flow"
	"github.com/oauth2core/authserver/internal/oauth2"
	"github.com/oauth2core/authserver/internal/resultenv"
	"github.com/oauth2core/authserver/internal/store"
)

// presenceCondition implements §4.3 precondition 1: refresh_token must be
// a non-empty string.
type presenceCondition struct{}

func (presenceCondition) Name() string { return "presence" }

func (presenceCondition) Validate(_ context.Context, fc flow.Context, rayID string) resultenv.Envelope[struct{}] {
	req := getRequest(fc)
	if req.RefreshToken == "" {
		return resultenv.Fail[struct{}](rayID, oauth2.ErrInvalidRequest, struct{}{})
	}
	return resultenv.Ok(rayID, struct{}{})
}

// clientAuthenticationCondition implements §4.3 precondition 2: resolve
// the client, verify its secret when confidential, load its config.
type clientAuthenticationCondition struct {
	q           store.Querier
	clients     oauth2.ClientRepository
	configs     oauth2.ClientConfigRepository
	hasher      *credential.SecretHasher
	auditLogger audit.Logger
}

func (clientAuthenticationCondition) Name() string { return "client_authentication" }

func (c clientAuthenticationCondition) Validate(ctx context.Context, fc flow.Context, rayID string) resultenv.Envelope[struct{}] {
	req := getRequest(fc)

	clientResult := c.clients.GetByClientIdentifier(ctx, c.q, req.ClientID, rayID)
	if !clientResult.Status {
		c.logAuthFailed(ctx, req.ClientID, "unknown client_id")
		return resultenv.Fail[struct{}](rayID, oauth2.ErrInvalidClient, struct{}{})
	}
	cl := clientResult.ClientMessage

	if cl.IsConfidential {
		if req.ClientSecret == "" || cl.ClientSecretHash == "" {
			c.logAuthFailed(ctx, req.ClientID, "missing client_secret")
			return resultenv.Fail[struct{}](rayID, oauth2.ErrInvalidClient, struct{}{})
		}
		ok, err := c.hasher.Verify(req.ClientSecret, cl.ClientSecretHash, userIDOf(cl), cl.ID)
		if err != nil {
			return resultenv.Fail[struct{}](rayID, oauth2.ErrServerError, struct{}{})
		}
		if !ok {
			c.logAuthFailed(ctx, req.ClientID, "secret verification failed")
			return resultenv.Fail[struct{}](rayID, oauth2.ErrInvalidClient, struct{}{})
		}
	}

	configResult := c.configs.GetByClientID(ctx, c.q, cl.ID, rayID)
	if !configResult.Status {
		// I1 guarantees every client has a config row; its absence is an
		// infrastructure-level inconsistency, not a bad request.
		return resultenv.Fail[struct{}](rayID, oauth2.ErrServerError, struct{}{})
	}

	setClient(fc, cl)
	setClientConfig(fc, configResult.ClientMessage)
	return resultenv.Ok(rayID, struct{}{})
}

// logAuthFailed emits client.auth_failed (§7: "audit failed auth"). A nil
// auditLogger (tests, or a deployment that opted out) is a no-op.
func (c clientAuthenticationCondition) logAuthFailed(ctx context.Context, clientID, reason string) {
	if c.auditLogger == nil {
		return
	}
	c.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeClientAuthFailed,
		ActorID:  clientID,
		ClientID: clientID,
		Resource: audit.ResourceClient,
		Metadata: map[string]any{"reason": reason},
	})
}

// userIDOf recovers the owning user id the secret hash was contextualized
// with. Client rows don't carry a UserID column in the present schema
// (oauth_clients in 001_initial_schema.up.sql); CreatedBy is the owner reference the
// Registrar writes when it hashes the secret, so it doubles as the
// hasher's context binding.
func userIDOf(c *oauth2.Client) string { return c.CreatedBy }

// refreshTokenValidationCondition implements §4.3 precondition 3.
// FamilyRevocationEnabled gates the RFC 6819 §5.2.2.3 reuse-detection
// cascade: on a replayed (already-revoked) token, revoke every other
// active refresh token sharing the same (client_id, user_id) pair before
// failing.
type refreshTokenValidationCondition struct {
	q                       store.Querier
	refreshTokens           oauth2.RefreshTokenRepository
	clk                     clock.Clock
	familyRevocationEnabled bool
	auditLogger             audit.Logger
}

func (refreshTokenValidationCondition) Name() string { return "refresh_token_validation" }

func (c refreshTokenValidationCondition) Validate(ctx context.Context, fc flow.Context, rayID string) resultenv.Envelope[struct{}] {
	req := getRequest(fc)
	cl := getClient(fc)

	tokenResult := c.refreshTokens.GetByToken(ctx, c.q, req.RefreshToken, rayID)
	if !tokenResult.Status {
		return resultenv.Fail[struct{}](rayID, oauth2.ErrInvalidGrant, struct{}{})
	}
	rt := tokenResult.ClientMessage

	if !rt.Active() {
		if c.familyRevocationEnabled {
			c.revokeFamily(ctx, rt, rayID)
		}
		return resultenv.Fail[struct{}](rayID, oauth2.ErrInvalidGrant, struct{}{})
	}
	if rt.ClientID != cl.ID {
		return resultenv.Fail[struct{}](rayID, oauth2.ErrInvalidGrant, struct{}{})
	}

	setRefreshToken(fc, rt)
	return resultenv.Ok(rayID, struct{}{})
}

// revokeFamily revokes every other active refresh token issued to the
// same (client_id, user_id) pair as rt and records the reuse, per RFC
// 6819 §5.2.2.3. Best-effort: a revocation failure here doesn't change
// the INVALID_GRANT outcome the caller already sees.
func (c refreshTokenValidationCondition) revokeFamily(ctx context.Context, rt *oauth2.RefreshToken, rayID string) {
	if c.auditLogger != nil {
		c.auditLogger.Log(ctx, audit.Event{
			Type:     audit.TypeRefreshTokenReused,
			ActorID:  rt.UserID,
			ClientID: rt.ClientID,
			Resource: audit.ResourceToken,
			Metadata: map[string]any{"refresh_token_id": rt.ID},
		})
	}

	siblings := c.refreshTokens.ListActiveByClientAndUser(ctx, c.q, rt.ClientID, rt.UserID, rayID)
	if !siblings.Status {
		return
	}
	now := c.clk.Now()
	for _, sibling := range siblings.ClientMessage {
		c.refreshTokens.RevokeIfActive(ctx, c.q, sibling.ID, now, rayID)
	}
}

// scopeCondition implements §4.3 precondition 4: requested scope must be
// a subset of the refresh token's granted scope.
type scopeCondition struct{}

func (scopeCondition) Name() string { return "scope" }

func (scopeCondition) Validate(_ context.Context, fc flow.Context, rayID string) resultenv.Envelope[struct{}] {
	req := getRequest(fc)
	rt := getRefreshToken(fc)

	requested := rt.Scopes
	if req.Scope != "" {
		requested = oauth2.SplitScope(req.Scope)
	}
	if !oauth2.ScopeSubset(requested, rt.Scopes) {
		return resultenv.Fail[struct{}](rayID, oauth2.ErrInvalidScope, struct{}{})
	}

	setEffectiveScope(fc, requested)
	return resultenv.Ok(rayID, struct{}{})
}

// accessTokenQuotaCondition implements §4.3 precondition 5: FIFO eviction
// of active access tokens once a client-configured ceiling is reached.
// This is the one precondition that performs a durable write; it runs
// strictly last, after every other precondition has already accepted the
// request, and outside the Postconditions transaction per §5's explicit
// "preconditions do not participate in the transaction" rule.
type accessTokenQuotaCondition struct {
	q            store.Querier
	accessTokens oauth2.AccessTokenRepository
	clk          clock.Clock
}

func (accessTokenQuotaCondition) Name() string { return "access_token_quota" }

func (c accessTokenQuotaCondition) Validate(ctx context.Context, fc flow.Context, rayID string) resultenv.Envelope[struct{}] {
	cfg := getClientConfig(fc)
	if cfg.MaxActiveAccessTokens == nil {
		return resultenv.Ok(rayID, struct{}{})
	}
	rt := getRefreshToken(fc)
	limit := *cfg.MaxActiveAccessTokens

	for {
		countResult := c.accessTokens.CountActiveByRefreshToken(ctx, c.q, rt.ID, rayID)
		if !countResult.Status {
			return resultenv.Fail[struct{}](rayID, oauth2.ErrServerError, struct{}{})
		}
		if countResult.ClientMessage < limit {
			return resultenv.Ok(rayID, struct{}{})
		}

		oldestResult := c.accessTokens.GetOldestActiveByRefreshToken(ctx, c.q, rt.ID, rayID)
		if !oldestResult.Status || oldestResult.ClientMessage == nil {
			// Degrade-to-no-op: schema doesn't link tokens to the
			// originating refresh token, or nothing to evict. Either way
			// the quota rule can't be enforced further.
			return resultenv.Ok(rayID, struct{}{})
		}

		revokeResult := c.accessTokens.Revoke(ctx, c.q, oldestResult.ClientMessage.ID, c.clk.Now(), rayID)
		if !revokeResult.Status {
			return resultenv.Fail[struct{}](rayID, oauth2.ErrServerError, struct{}{})
		}
	}
}
