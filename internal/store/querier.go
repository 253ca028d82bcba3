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

// Package store defines the narrow, transaction-agnostic surface that
// repositories execute SQL against, so a repository method can run either
// against a pooled connection or inside an open transaction without
// knowing which.
package store

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is the common surface of *pgxpool.Pool and pgx.Tx. Repository
// methods take a Querier instead of holding a pool directly, so the same
// method can be composed into a caller-managed transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Transactor opens a transaction, runs fn with a Querier bound to it, and
// commits on success or rolls back on any error returned by fn (including
// a panic recovered by the caller's own defer, if any).
type Transactor interface {
	WithTx(ctx context.Context, fn func(Querier) error) error
}
