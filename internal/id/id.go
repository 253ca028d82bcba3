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

// Package id generates the identifiers used for every persisted row in
// the authorization core.
package id

import "github.com/google/uuid"

// NewUUIDv7 returns a lexicographically sortable unique identifier. UUIDv7
// embeds a millisecond timestamp in its high bits, so ORDER BY id and
// ORDER BY created_at agree — load-bearing for the FIFO quota tie-break
// in the refresh-token flow's quota condition.
func NewUUIDv7() string {
	u, err := uuid.NewV7()
	if err != nil {
		u = uuid.New()
	}
	return u.String()
}
