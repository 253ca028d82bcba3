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

package http

import (
	"log/slog"
	"net/http"

	"github.com/oauth2core/authserver/internal/id"
	"github.com/oauth2core/authserver/internal/oauth2"
	"github.com/oauth2core/authserver/internal/oauth2grant"
)

// Token implements the §6 token endpoint. Only grant_type=refresh_token
// is wired end to end; any other grant_type fails unsupported_grant_type,
// the extension contract §4.3 documents for the unimplemented grants.
func (h *Handler) Token(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.respondOAuthError(w, oauth2.NewError(oauth2.ErrInvalidRequest, "malformed request body"))
		return
	}

	clientID := r.Form.Get("client_id")
	clientSecret := r.Form.Get("client_secret")

	// HTTP Basic auth takes precedence over body-form credentials (§6).
	if username, password, ok := r.BasicAuth(); ok {
		clientID = username
		clientSecret = password
	}

	req := &oauth2grant.TokenRequest{
		GrantType:    r.Form.Get("grant_type"),
		RefreshToken: r.Form.Get("refresh_token"),
		Scope:        r.Form.Get("scope"),
		ClientID:     clientID,
		ClientSecret: clientSecret,
	}

	rayID := GetRayID(r.Context())
	if rayID == "" {
		rayID = id.NewUUIDv7()
	}

	result := h.grantService.Grant(r.Context(), req, rayID)
	if !result.Status {
		slog.WarnContext(r.Context(), "token request failed",
			slog.String("ray_id", rayID),
			slog.String("error_code", result.ErrorCode),
			slog.String("grant_type", req.GrantType),
		)
		h.respondOAuthError(w, oauth2.NewError(result.ErrorCode, ""))
		return
	}

	// RFC 6749 Section 5.1: the response must not be cached.
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
	respondJSON(w, http.StatusOK, result.ClientMessage)
}

func (h *Handler) respondOAuthError(w http.ResponseWriter, err *oauth2.Error) {
	respondJSON(w, httpStatusForErrorCode(err.Code), err)
}
