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

// Package oauth2grant implements the refresh-token grant: the one
// concrete Flow wired end to end, built on the condition chain and flow
// template in internal/flow.
package oauth2grant

import (
	"github.com/oauth2core/authserver/internal/flow"
	"github.com/oauth2core/authserver/internal/oauth2"
)

// Context keys conditions use to stash derived values for later
// conditions and for Run/Postconditions, in place of the Python
// reference's duck-typed context["client_obj"] entries.
const (
	keyRequest          = "request"
	keyClient           = "client"
	keyClientConfig     = "client_config"
	keyRefreshToken      = "refresh_token_obj"
	keyEffectiveScope = "effective_scope"
	keyRunResult      = "run_result"
)

// TokenRequest is the inbound grant request, already parsed off the
// wire (form-encoded body) and off HTTP Basic, by the transport layer.
type TokenRequest struct {
	GrantType    string
	RefreshToken string
	Scope        string // space-separated, optional
	ClientID     string // client_identifier, not the internal row id
	ClientSecret string
}

// TokenResponse is the RFC 6749 §5.1 success body.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	Scope        string `json:"scope"`
}

// runResult is Run's side-effect-free output: the new credentials plus
// the bookkeeping Postconditions needs to persist them.
type runResult struct {
	response           TokenResponse
	newAccessTokenID   string
	isRotated          bool
	newRefreshTokenID  string // only set when isRotated
	originalRefreshID  string
	effectiveScope     []string
}

func setRequest(fc flow.Context, req *TokenRequest) { fc[keyRequest] = req }
func getRequest(fc flow.Context) *TokenRequest       { return fc[keyRequest].(*TokenRequest) }

func setClient(fc flow.Context, c *oauth2.Client) { fc[keyClient] = c }
func getClient(fc flow.Context) *oauth2.Client     { return fc[keyClient].(*oauth2.Client) }

func setClientConfig(fc flow.Context, cfg *oauth2.ClientConfig) { fc[keyClientConfig] = cfg }
func getClientConfig(fc flow.Context) *oauth2.ClientConfig       { return fc[keyClientConfig].(*oauth2.ClientConfig) }

func setRefreshToken(fc flow.Context, rt *oauth2.RefreshToken) { fc[keyRefreshToken] = rt }
func getRefreshToken(fc flow.Context) *oauth2.RefreshToken      { return fc[keyRefreshToken].(*oauth2.RefreshToken) }

func setEffectiveScope(fc flow.Context, scope []string) { fc[keyEffectiveScope] = scope }
func getEffectiveScope(fc flow.Context) []string         { return fc[keyEffectiveScope].([]string) }
