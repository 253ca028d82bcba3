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

// Package registrar implements the Client Registrar (§4.4): validation,
// uniqueness, secret generation/hashing, and the durable dual-insert of a
// client's identity and configuration rows.
package registrar

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/oauth2core/authserver/internal/audit"
	"github.com/oauth2core/authserver/internal/clock"
	"github.com/oauth2core/authserver/internal/credential"
	"github.com/oauth2core/authserver/internal/id"
	"github.com/oauth2core/authserver/internal/oauth2"
	"github.com/oauth2core/authserver/internal/resultenv"
	"github.com/oauth2core/authserver/internal/store"
)

// KnownGrantTypes and KnownResponseTypes are the enumerated whitelists
// §9's "Open: response type / grant type closure" asks for.
// validateRequest rejects any grant_type/response_type outside these
// sets with INVALID_REQUEST. The engine only wires refresh_token end to
// end; the rest are registered as recognized extension points for
// grants not yet implemented.
var (
	KnownGrantTypes = map[string]struct{}{
		"authorization_code": {},
		"refresh_token":      {},
		"client_credentials": {},
		"urn:ietf:params:oauth:grant-type:device_code": {},
	}
	KnownResponseTypes = map[string]struct{}{
		"code":  {},
		"token": {},
	}
)

// RegistrationRequest is the Registrar's input: everything needed to
// create both the client identity row and its 1:1 configuration row.
type RegistrationRequest struct {
	UserID           string
	ClientIdentifier string
	IsConfidential   bool
	RedirectURIs     []string
	GrantTypes       []string
	ResponseTypes    []string
	Scopes           []string
	RequirePKCE      bool
	PKCEMethods      []string

	AccessTokenTTL         int
	RefreshTokenTTL        *int
	AuthorizationCodeTTL   int
	MaxActiveAccessTokens  *int
	MaxActiveRefreshTokens *int
	DeviceCodeTTL          *int
	DevicePollInterval     *int
	Metadata               *string
}

// RegisteredClient is the Registrar's output: the stored client fields
// plus the plaintext secret, present exactly once and never persisted.
type RegisteredClient struct {
	oauth2.Client
	PlaintextSecret string // empty for public clients
}

// Registrar runs client registration against a transactional store.
type Registrar struct {
	tx        store.Transactor
	pool      store.Querier
	clients   oauth2.ClientRepository
	configs   oauth2.ClientConfigRepository
	generator *credential.SecretGenerator
	hasher    *credential.SecretHasher
	clk       clock.Clock
	logger    *slog.Logger

	useCompensatingSaga bool

	tracer          trace.Tracer
	registeredCount metric.Int64Counter
	audit           audit.Logger
}

// Option configures a Registrar at construction time.
type Option func(*Registrar)

// WithCompensatingSaga switches RegisterClient to the non-transactional
// two-step insert-then-compensate path SPEC_FULL documents as the
// rejected alternative (§9): insert identity, insert config, and on
// config-insert failure delete the identity row to compensate. Kept for
// store.Transactor implementations that can't offer a real transaction.
func WithCompensatingSaga() Option {
	return func(r *Registrar) { r.useCompensatingSaga = true }
}

// WithTracer attaches an OTel tracer; RegisterClient then wraps each call
// in a "registrar.register_client" span.
func WithTracer(tracer trace.Tracer) Option {
	return func(r *Registrar) { r.tracer = tracer }
}

// WithRegisteredClientsCounter attaches the
// oauth2_clients_registered_total counter, incremented once per
// successful registration.
func WithRegisteredClientsCounter(counter metric.Int64Counter) Option {
	return func(r *Registrar) { r.registeredCount = counter }
}

// WithAuditLogger attaches the audit sink RegisterClient emits
// client.registered events through on success.
func WithAuditLogger(logger audit.Logger) Option {
	return func(r *Registrar) { r.audit = logger }
}

// New builds a Registrar. pool is used for the read paths and for the
// compensating-saga path; tx is used for the default transactional path.
func New(tx store.Transactor, pool store.Querier, clients oauth2.ClientRepository, configs oauth2.ClientConfigRepository, generator *credential.SecretGenerator, hasher *credential.SecretHasher, clk clock.Clock, logger *slog.Logger, opts ...Option) *Registrar {
	r := &Registrar{tx: tx, pool: pool, clients: clients, configs: configs, generator: generator, hasher: hasher, clk: clk, logger: logger}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RegisterClient implements §4.4's five steps. The default path wraps
// both inserts in one transaction (§9's strictly-preferred redesign); see
// WithCompensatingSaga for the alternative.
func (r *Registrar) RegisterClient(ctx context.Context, req RegistrationRequest, rayID string) resultenv.Envelope[*RegisteredClient] {
	if r.tracer != nil {
		var span trace.Span
		ctx, span = r.tracer.Start(ctx, "registrar.register_client")
		defer span.End()
	}

	if fail := r.validateRequest(req, rayID); !fail.Status {
		return resultenv.Fail[*RegisteredClient](rayID, fail.ErrorCode, nil)
	}

	if dup := r.checkDuplicateIdentifier(ctx, req.ClientIdentifier, rayID); !dup.Status {
		return resultenv.Fail[*RegisteredClient](rayID, dup.ErrorCode, nil)
	}

	clientID := id.NewUUIDv7()
	now := r.clk.Now()

	var plaintextSecret, hashedSecret string
	if req.IsConfidential {
		secret, err := r.generator.Generate(req.UserID)
		if err != nil {
			r.logger.Error("registrar.secret_generation_failed", slog.String("ray_id", rayID), slog.String("error", err.Error()))
			return resultenv.Fail[*RegisteredClient](rayID, oauth2.ErrServerError, nil)
		}
		hash, err := r.hasher.Hash(secret, req.UserID, clientID)
		if err != nil {
			r.logger.Error("registrar.secret_hash_failed", slog.String("ray_id", rayID), slog.String("error", err.Error()))
			return resultenv.Fail[*RegisteredClient](rayID, oauth2.ErrServerError, nil)
		}
		plaintextSecret, hashedSecret = secret, hash
	}

	client := &oauth2.Client{
		ID:               clientID,
		ClientIdentifier: req.ClientIdentifier,
		ClientSecretHash: hashedSecret,
		IsConfidential:   req.IsConfidential,
		RedirectURIs:     req.RedirectURIs,
		GrantTypes:       req.GrantTypes,
		Scopes:           req.Scopes,
		IsEnabled:        true,
		Audit:            oauth2.Audit{CreatedAt: now, CreatedBy: req.UserID, UpdatedAt: now, UpdatedBy: req.UserID},
	}
	config := &oauth2.ClientConfig{
		ClientID:               clientID,
		ResponseTypes:          req.ResponseTypes,
		RequirePKCE:            req.RequirePKCE,
		PKCEMethods:            req.PKCEMethods,
		AccessTokenTTL:         req.AccessTokenTTL,
		RefreshTokenTTL:        req.RefreshTokenTTL,
		AuthorizationCodeTTL:   req.AuthorizationCodeTTL,
		MaxActiveAccessTokens:  req.MaxActiveAccessTokens,
		MaxActiveRefreshTokens: req.MaxActiveRefreshTokens,
		DeviceCodeTTL:          req.DeviceCodeTTL,
		DevicePollInterval:     req.DevicePollInterval,
		Metadata:               req.Metadata,
		Audit:                  client.Audit,
	}

	var persistErr error
	if r.useCompensatingSaga {
		persistErr = r.persistCompensating(ctx, client, config, rayID)
	} else {
		persistErr = r.persistTransactional(ctx, client, config)
	}
	if persistErr != nil {
		return resultenv.Fail[*RegisteredClient](rayID, oauth2.ErrServerError, nil)
	}

	if r.registeredCount != nil {
		r.registeredCount.Add(ctx, 1)
	}
	if r.audit != nil {
		r.audit.Log(ctx, audit.Event{
			Type:     audit.TypeClientRegistered,
			ActorID:  req.UserID,
			ClientID: clientID,
			Resource: audit.ResourceClient,
			Metadata: map[string]any{"client_identifier": req.ClientIdentifier},
		})
	}

	return resultenv.Ok(rayID, &RegisteredClient{Client: *client, PlaintextSecret: plaintextSecret})
}

// persistTransactional is the default, strictly-preferred path: both
// inserts in one transaction (§9 redesign (a)).
func (r *Registrar) persistTransactional(ctx context.Context, client *oauth2.Client, config *oauth2.ClientConfig) error {
	return r.tx.WithTx(ctx, func(q store.Querier) error {
		if res := r.clients.Insert(ctx, q, client, ""); !res.Status {
			return fmt.Errorf("insert client: %s", res.ErrorCode)
		}
		if res := r.configs.Insert(ctx, q, config, ""); !res.Status {
			return fmt.Errorf("insert client config: %s", res.ErrorCode)
		}
		return nil
	})
}

// persistCompensating is the documented fallback (§9, rejected as the
// default): insert identity, insert config, and on config failure delete
// the identity row to compensate. A process crash between the two
// inserts can leak an orphan identity row — exactly the risk the
// transactional path exists to close.
func (r *Registrar) persistCompensating(ctx context.Context, client *oauth2.Client, config *oauth2.ClientConfig, rayID string) error {
	if res := r.clients.Insert(ctx, r.pool, client, rayID); !res.Status {
		return fmt.Errorf("insert client: %s", res.ErrorCode)
	}
	if res := r.configs.Insert(ctx, r.pool, config, rayID); !res.Status {
		if del := r.clients.DeleteByID(ctx, r.pool, client.ID, rayID); !del.Status {
			r.logger.Error("registrar.compensation_failed",
				slog.String("ray_id", rayID),
				slog.String("client_id", client.ID),
				slog.String("error_code", del.ErrorCode),
			)
		}
		return fmt.Errorf("insert client config: %s", res.ErrorCode)
	}
	return nil
}

// GetClientByID and GetClientByIdentifier are the Registrar's read paths;
// neither ever exposes secret material beyond the stored hash.
func (r *Registrar) GetClientByID(ctx context.Context, clientID, rayID string) resultenv.Envelope[*oauth2.Client] {
	return r.clients.GetByID(ctx, r.pool, clientID, rayID)
}

func (r *Registrar) GetClientByIdentifier(ctx context.Context, identifier, rayID string) resultenv.Envelope[*oauth2.Client] {
	return r.clients.GetByClientIdentifier(ctx, r.pool, identifier, rayID)
}

func (r *Registrar) validateRequest(req RegistrationRequest, rayID string) resultenv.Envelope[struct{}] {
	switch {
	case strings.TrimSpace(req.UserID) == "":
	case strings.TrimSpace(req.ClientIdentifier) == "":
	case len(req.RedirectURIs) == 0:
	case len(req.GrantTypes) == 0:
	case req.AccessTokenTTL <= 0:
	case req.AuthorizationCodeTTL <= 0:
	case !allKnown(req.GrantTypes, KnownGrantTypes):
	case !allKnown(req.ResponseTypes, KnownResponseTypes):
	default:
		return resultenv.Ok(rayID, struct{}{})
	}
	return resultenv.Fail[struct{}](rayID, oauth2.ErrInvalidRequest, struct{}{})
}

// allKnown reports whether every value is a member of known. An empty
// values slice is vacuously true; ResponseTypes is optional for grants
// that never redirect (e.g. a pure refresh_token client).
func allKnown(values []string, known map[string]struct{}) bool {
	for _, v := range values {
		if _, ok := known[v]; !ok {
			return false
		}
	}
	return true
}

// checkDuplicateIdentifier distinguishes "repository returned NOT_FOUND"
// (identifier available) from any other repository failure (propagate),
// per the Python reference's _check_duplicate_identifier.
func (r *Registrar) checkDuplicateIdentifier(ctx context.Context, identifier, rayID string) resultenv.Envelope[struct{}] {
	existing := r.clients.GetByClientIdentifier(ctx, r.pool, identifier, rayID)
	if existing.Status {
		return resultenv.Fail[struct{}](rayID, oauth2.ErrDuplicateClientIdentifier, struct{}{})
	}
	if existing.ErrorCode == resultenv.ErrCodeNotFound {
		return resultenv.Ok(rayID, struct{}{})
	}
	return resultenv.Fail[struct{}](rayID, existing.ErrorCode, struct{}{})
}
