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

package flow

import (
	"context"
	"log/slog"

	"github.com/oauth2core/authserver/internal/resultenv"
)

// Flow is a grant-specific authorization flow. Implementations supply
// the three hook points; Template.Execute stitches them into the fixed
// lifecycle. T is the flow's result payload (e.g. a token response).
type Flow[T any] interface {
	// Name identifies the flow for logging, e.g. "refresh_token".
	Name() string
	// Preconditions runs this flow's Chain and returns the first
	// failure, or success once every condition has passed.
	Preconditions(ctx context.Context, flowCtx Context, rayID string) resultenv.Envelope[struct{}]
	// Run executes the flow's core logic. Callers may assume
	// Preconditions already passed.
	Run(ctx context.Context, flowCtx Context, rayID string) resultenv.Envelope[T]
	// Postconditions persists state produced by Run (token rotation,
	// audit logging) and reports the first failure.
	Postconditions(ctx context.Context, flowCtx Context, result resultenv.Envelope[T], rayID string) resultenv.Envelope[struct{}]
}

// Template runs a Flow through its fixed lifecycle:
// log_start -> preconditions -> run -> postconditions -> log_success.
// This sequence is not overridable by individual flows.
type Template[T any] struct {
	logger *slog.Logger
}

// NewTemplate builds a Template that logs through logger.
func NewTemplate[T any](logger *slog.Logger) *Template[T] {
	return &Template[T]{logger: logger}
}

// Execute runs f's lifecycle and returns its result envelope. A failure
// at any stage short-circuits the remaining stages; log_success only
// fires once every stage has succeeded.
func (t *Template[T]) Execute(ctx context.Context, f Flow[T], flowCtx Context, rayID string) resultenv.Envelope[T] {
	t.logStart(f, rayID)

	var zero T
	if pre := f.Preconditions(ctx, flowCtx, rayID); !pre.Status {
		t.logFailure(f, rayID, "preconditions", pre.ErrorCode)
		return resultenv.Fail[T](rayID, pre.ErrorCode, zero)
	}

	result := f.Run(ctx, flowCtx, rayID)
	if !result.Status {
		t.logFailure(f, rayID, "run", result.ErrorCode)
		return result
	}

	if post := f.Postconditions(ctx, flowCtx, result, rayID); !post.Status {
		t.logFailure(f, rayID, "postconditions", post.ErrorCode)
		return resultenv.Fail[T](rayID, post.ErrorCode, zero)
	}

	t.logSuccess(f, rayID)
	return result
}

func (t *Template[T]) logStart(f Flow[T], rayID string) {
	t.logger.Info("oauth.flow.start", slog.String("flow", f.Name()), slog.String("ray_id", rayID))
}

func (t *Template[T]) logSuccess(f Flow[T], rayID string) {
	t.logger.Info("oauth.flow.success", slog.String("flow", f.Name()), slog.String("ray_id", rayID))
}

func (t *Template[T]) logFailure(f Flow[T], rayID, stage, errorCode string) {
	t.logger.Error("oauth.flow.failure",
		slog.String("flow", f.Name()),
		slog.String("ray_id", rayID),
		slog.String("stage", stage),
		slog.String("error_code", errorCode),
	)
}
