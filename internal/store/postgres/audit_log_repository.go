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

	"github.com/oauth2core/authserver/internal/oauth2"
	"github.com/oauth2core/authserver/internal/resultenv"
	"github.com/oauth2core/authserver/internal/store"
)

// AuditLogRepository implements oauth2.AuditLogRepository. It deliberately
// has no Update or DeleteByID method — I4 forbids both.
type AuditLogRepository struct{}

func NewAuditLogRepository() *AuditLogRepository {
	return &AuditLogRepository{}
}

func (r *AuditLogRepository) Insert(ctx context.Context, q store.Querier, entry *oauth2.AuditLogEntry, rayID string) resultenv.Envelope[*oauth2.AuditLogEntry] {
	_, err := q.Exec(ctx, `
		INSERT INTO oauth_audit_log (id, event_type, subject, client_id, user_id, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, entry.ID, entry.EventType, entry.Subject, entry.ClientID, entry.UserID, entry.Metadata, entry.CreatedAt)
	if err != nil {
		return resultenv.Fail[*oauth2.AuditLogEntry](rayID, resultenv.ErrCodeInsertFailed, nil)
	}
	return resultenv.Ok(rayID, entry)
}
