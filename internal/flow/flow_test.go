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
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oauth2core/authserver/internal/resultenv"
)

type fixedCondition struct {
	name string
	ok   bool
	code string
}

func (f fixedCondition) Name() string { return f.name }

func (f fixedCondition) Validate(_ context.Context, _ Context, rayID string) resultenv.Envelope[struct{}] {
	if !f.ok {
		return resultenv.Fail[struct{}](rayID, f.code, struct{}{})
	}
	return resultenv.Ok(rayID, struct{}{})
}

func TestChain_StopsAtFirstFailure(t *testing.T) {
	calls := []string{}
	track := func(name string, ok bool) Condition {
		return trackingCondition{fixedCondition{name: name, ok: ok, code: "FAILED_" + name}, &calls}
	}

	chain := NewChain(track("a", true), track("b", false), track("c", true))
	result := chain.Execute(context.Background(), Context{}, "ray-1")

	require.False(t, result.Status)
	assert.Equal(t, "FAILED_b", result.ErrorCode)
	assert.Equal(t, []string{"a", "b"}, calls, "condition c must not run after b fails")
}

func TestChain_AllPass(t *testing.T) {
	chain := NewChain(
		fixedCondition{name: "a", ok: true},
		fixedCondition{name: "b", ok: true},
	)
	result := chain.Execute(context.Background(), Context{}, "ray-1")
	require.True(t, result.Status)
}

type trackingCondition struct {
	fixedCondition
	calls *[]string
}

func (t trackingCondition) Validate(ctx context.Context, flowCtx Context, rayID string) resultenv.Envelope[struct{}] {
	*t.calls = append(*t.calls, t.name)
	return t.fixedCondition.Validate(ctx, flowCtx, rayID)
}

type stubFlow struct {
	name           string
	pre            resultenv.Envelope[struct{}]
	runResult      resultenv.Envelope[string]
	post           resultenv.Envelope[struct{}]
	preconditions  int
	runs           int
	postconditions int
}

func (s *stubFlow) Name() string { return s.name }

func (s *stubFlow) Preconditions(context.Context, Context, string) resultenv.Envelope[struct{}] {
	s.preconditions++
	return s.pre
}

func (s *stubFlow) Run(context.Context, Context, string) resultenv.Envelope[string] {
	s.runs++
	return s.runResult
}

func (s *stubFlow) Postconditions(context.Context, Context, resultenv.Envelope[string], string) resultenv.Envelope[struct{}] {
	s.postconditions++
	return s.post
}

func discardTemplate() *Template[string] {
	return NewTemplate[string](slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestTemplate_FailsFastOnPreconditions(t *testing.T) {
	f := &stubFlow{
		name:      "test_flow",
		pre:       resultenv.Fail[struct{}]("ray", "BAD_REQUEST", struct{}{}),
		runResult: resultenv.Ok("ray", "should not be reached"),
		post:      resultenv.Ok("ray", struct{}{}),
	}

	result := discardTemplate().Execute(context.Background(), f, Context{}, "ray-1")

	require.False(t, result.Status)
	assert.Equal(t, "BAD_REQUEST", result.ErrorCode)
	assert.Equal(t, 0, f.runs, "Run must not execute when Preconditions fails")
	assert.Equal(t, 0, f.postconditions)
}

func TestTemplate_FailsFastOnPostconditions(t *testing.T) {
	f := &stubFlow{
		name:      "test_flow",
		pre:       resultenv.Ok("ray", struct{}{}),
		runResult: resultenv.Ok("ray", "payload"),
		post:      resultenv.Fail[struct{}]("ray", "SERVER_ERROR", struct{}{}),
	}

	result := discardTemplate().Execute(context.Background(), f, Context{}, "ray-1")

	require.False(t, result.Status)
	assert.Equal(t, "SERVER_ERROR", result.ErrorCode)
	assert.Equal(t, 1, f.runs)
	assert.Equal(t, 1, f.postconditions)
}

func TestTemplate_Success(t *testing.T) {
	f := &stubFlow{
		name:      "test_flow",
		pre:       resultenv.Ok("ray", struct{}{}),
		runResult: resultenv.Ok("ray", "payload"),
		post:      resultenv.Ok("ray", struct{}{}),
	}

	result := discardTemplate().Execute(context.Background(), f, Context{}, "ray-1")

	require.True(t, result.Status)
	assert.Equal(t, "payload", result.ClientMessage)
	assert.Equal(t, 1, f.preconditions)
	assert.Equal(t, 1, f.runs)
	assert.Equal(t, 1, f.postconditions)
}
