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
	"log/slog"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/oauth2core/authserver/internal/flow"
	"github.com/oauth2core/authserver/internal/oauth2"
	"github.com/oauth2core/authserver/internal/resultenv"
)

// Service is the entrypoint the transport layer calls. It owns the
// registered grants and runs each through the shared flow.Template.
type Service struct {
	refreshTokenFlow *RefreshTokenFlow
	template         *flow.Template[*TokenResponse]

	tracer      trace.Tracer
	issuedCount metric.Int64Counter
}

// Option configures a Service at construction time.
type Option func(*Service)

// WithTracer attaches an OTel tracer; Grant then wraps each call in an
// "oauth2grant.refresh_token" span.
func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) { s.tracer = tracer }
}

// WithTokensIssuedCounter attaches the oauth2_tokens_issued_total counter,
// incremented once per successful grant.
func WithTokensIssuedCounter(counter metric.Int64Counter) Option {
	return func(s *Service) { s.issuedCount = counter }
}

// NewService builds a Service wired to refreshTokenFlow, logging through
// logger.
func NewService(refreshTokenFlow *RefreshTokenFlow, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		refreshTokenFlow: refreshTokenFlow,
		template:         flow.NewTemplate[*TokenResponse](logger),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Grant dispatches req to the matching flow and runs it through the
// Template. Only "refresh_token" is wired; any other grant_type fails
// with UNSUPPORTED_GRANT_TYPE per §4.3's extension contract.
func (s *Service) Grant(ctx context.Context, req *TokenRequest, rayID string) resultenv.Envelope[*TokenResponse] {
	if req.GrantType != "refresh_token" {
		return resultenv.Fail[*TokenResponse](rayID, oauth2.ErrUnsupportedGrantType, nil)
	}

	if s.tracer != nil {
		var span trace.Span
		ctx, span = s.tracer.Start(ctx, "oauth2grant.refresh_token")
		defer span.End()
	}

	fc := flow.Context{}
	setRequest(fc, req)

	result := s.template.Execute(ctx, s.refreshTokenFlow, fc, rayID)
	if result.Status && s.issuedCount != nil {
		s.issuedCount.Add(ctx, 1)
	}
	return result
}
