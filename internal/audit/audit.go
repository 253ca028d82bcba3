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

package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/oauth2core/authserver/internal/clock"
	"github.com/oauth2core/authserver/internal/id"
	"github.com/oauth2core/authserver/internal/oauth2"
	"github.com/oauth2core/authserver/internal/store"
)

// Event types. Mirrors the oauth2.Event* vocabulary the flow engine and
// registrar emit, plus the client lifecycle events the Event Type
// Catalogue calls out.
const (
	TypeTokenIssued        = oauth2.EventTokenIssued
	TypeClientRegistered   = oauth2.EventClientRegistered
	TypeClientAuthFailed   = oauth2.EventAuthFailed
	TypeRefreshTokenReused = oauth2.EventRefreshTokenReused
	TypeTokenRevoked       = "token.revoked"
	TypeSecretRotated      = "client.secret_rotated"
)

// Standard audit attribute keys
const (
	AttrAuditType = "audit_type"
	AttrActorID   = "actor_id"
	AttrResource  = "resource"
	AttrTimestamp = "timestamp"
	AttrComponent = "component"
	AttrMetadata  = "metadata"
)

// Common Resource Types
const (
	ResourceClient = "client"
	ResourceToken  = "token"
)

// Event represents an auditable action against the authorization core.
// ActorID is the subject performing the action (a user id for end-user
// grants, a client id for client-initiated actions).
type Event struct {
	Type      string
	ActorID   string
	ClientID  string
	Resource  string
	Metadata  map[string]any
	Timestamp time.Time
}

// Logger defines the interface for audit logging
type Logger interface {
	Log(ctx context.Context, event Event)
}

// SlogLogger implements Logger using slog: a structured, human-operable
// audit trail alongside the durable RepositoryLogger.
type SlogLogger struct{}

// NewSlogLogger creates a new audit logger
func NewSlogLogger() *SlogLogger {
	return &SlogLogger{}
}

// Log records an audit event
func (l *SlogLogger) Log(ctx context.Context, event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	attrs := []any{
		slog.String(AttrAuditType, event.Type),
		slog.String(AttrActorID, event.ActorID),
		slog.String(AttrResource, event.Resource),
		slog.Time(AttrTimestamp, event.Timestamp),
	}

	if len(event.Metadata) > 0 {
		group := []any{}
		for k, v := range event.Metadata {
			if isSecret(k) {
				v = "[REDACTED]"
			}
			group = append(group, slog.Any(k, v))
		}
		attrs = append(attrs, slog.Group(AttrMetadata, group...))
	}

	slog.InfoContext(ctx, "AUDIT_EVENT", append(attrs, slog.String(AttrComponent, "audit"))...)
}

// isSecret checks if a key likely contains a secret.
// It uses case-insensitive substring matching against a set of common sensitive keywords.
func isSecret(key string) bool {
	k := strings.ToLower(key)
	secrets := []string{
		"password", "secret", "token", "key", "authorization",
		"hash", "credential", "private", "api_key",
	}
	for _, s := range secrets {
		if strings.Contains(k, s) {
			return true
		}
	}
	return false
}

// RepositoryLogger persists every Event as a durable oauth2.AuditLogEntry
// row (I4: append-only). It is the durable counterpart to SlogLogger, not
// a replacement — the flow engine's Postconditions already write
// oauth2.AuditLogEntry rows directly inside the same transaction as the
// token mutation; RepositoryLogger exists for call sites outside that
// transaction boundary (e.g. the registrar, which commits its own
// transaction before an audit entry can be appended).
type RepositoryLogger struct {
	repo  oauth2.AuditLogRepository
	pool  store.Querier
	clk   clock.Clock
	inner Logger
}

// NewRepositoryLogger builds a RepositoryLogger. inner receives every
// event too (typically a SlogLogger), so a repository failure never
// silences the structured log line.
func NewRepositoryLogger(repo oauth2.AuditLogRepository, pool store.Querier, clk clock.Clock, inner Logger) *RepositoryLogger {
	return &RepositoryLogger{repo: repo, pool: pool, clk: clk, inner: inner}
}

// Log appends event as an AuditLogEntry row. A repository failure is
// logged at error level and otherwise swallowed: audit logging must never
// fail the operation it is recording.
func (l *RepositoryLogger) Log(ctx context.Context, event Event) {
	if l.inner != nil {
		l.inner.Log(ctx, event)
	}

	metadataJSON, err := json.Marshal(event.Metadata)
	if err != nil {
		metadataJSON = []byte("{}")
	}

	entry := &oauth2.AuditLogEntry{
		ID:        id.NewUUIDv7(),
		EventType: event.Type,
		Subject:   event.ActorID,
		ClientID:  event.ClientID,
		Metadata:  string(metadataJSON),
		CreatedAt: l.clk.Now(),
	}

	if res := l.repo.Insert(ctx, l.pool, entry, ""); !res.Status {
		slog.ErrorContext(ctx, "audit.repository_persist_failed",
			slog.String("event_type", event.Type),
			slog.String("error_code", res.ErrorCode),
		)
	}
}
