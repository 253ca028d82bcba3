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

// Package http exposes the authorization core's external interface: the
// RFC 6749 §6 token endpoint over HTTP/JSON.
package http

import (
	"encoding/json"
	"net/http"

	"github.com/oauth2core/authserver/internal/oauth2grant"
)

// Handler wires the HTTP transport to the grant engine. Client
// registration is an operator (cmd/otadmin) concern, not an HTTP one, so
// the Registrar never appears here; audit emission lives with the
// components that actually observe the event (the grant engine's
// conditions, the Registrar), not the transport in front of them.
type Handler struct {
	grantService *oauth2grant.Service
}

// NewHandler builds a Handler.
func NewHandler(grantService *oauth2grant.Service) *Handler {
	return &Handler{grantService: grantService}
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type errorBody struct {
	Error string `json:"error"`
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, errorBody{Error: message})
}

// httpStatusForErrorCode maps the protocol error vocabulary (§6) to the
// HTTP status the token endpoint must answer with.
func httpStatusForErrorCode(code string) int {
	switch code {
	case "invalid_client":
		return http.StatusUnauthorized
	case "server_error":
		return http.StatusInternalServerError
	case "invalid_request", "invalid_grant", "unsupported_grant_type", "invalid_scope":
		return http.StatusBadRequest
	default:
		return http.StatusBadRequest
	}
}
