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

// Package flow implements the condition chain and flow template that
// every OAuth2 grant handler is built on: an ordered list of pure,
// short-circuiting predicates followed by a non-overridable
// start/preconditions/run/postconditions/success lifecycle.
package flow

import (
	"context"

	"github.com/oauth2core/authserver/internal/resultenv"
)

// Context carries the mutable state a Chain's Conditions read from and
// write to. It is a plain map rather than a struct so grant-specific
// flows can stash arbitrary keys without the flow engine knowing about
// them; Conditions agree on key names out of band.
type Context map[string]any

// Condition validates one fact about a Context. It may consult
// repositories and stash derived values into Context for later
// conditions, but never raises for a business failure — a business
// failure is a Fail envelope, not a panic.
type Condition interface {
	// Name identifies the condition for logging.
	Name() string
	// Validate inspects ctx and returns Ok to continue the chain or Fail
	// to short-circuit it.
	Validate(ctx context.Context, flowCtx Context, rayID string) resultenv.Envelope[struct{}]
}

// Chain runs a sequence of Conditions in order, stopping at the first
// failure.
type Chain struct {
	conditions []Condition
}

// NewChain builds a Chain from conditions, preserving order.
func NewChain(conditions ...Condition) *Chain {
	return &Chain{conditions: conditions}
}

// Execute runs every condition in order. It returns the first failing
// envelope, or a successful envelope once all conditions pass.
func (c *Chain) Execute(ctx context.Context, flowCtx Context, rayID string) resultenv.Envelope[struct{}] {
	for _, cond := range c.conditions {
		result := cond.Validate(ctx, flowCtx, rayID)
		if !result.Status {
			return result
		}
	}
	return resultenv.Ok(rayID, struct{}{})
}
