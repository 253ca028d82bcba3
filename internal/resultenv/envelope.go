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

// Package resultenv carries the uniform success/failure envelope used at
// every repository and condition boundary in the authorization core, so
// infrastructure failures and business failures travel as values instead
// of as exceptions until they reach the flow template.
package resultenv

// Well-known error codes at the repository boundary. Higher layers
// translate these into protocol-level error codes.
const (
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeInsertFailed  = "INSERT_FAILED"
	ErrCodeFetchFailed   = "FETCH_FAILED"
	ErrCodeUpdateFailed  = "UPDATE_FAILED"
	ErrCodeDeleteFailed  = "DELETE_FAILED"
)

// Envelope is the Result value threaded through repositories and
// conditions: a status flag, the payload (or client-facing message on
// failure), the ray id the call was made under, and an optional error
// code vocabulary entry.
type Envelope[T any] struct {
	Status        bool
	ClientMessage T
	RayID         string
	ErrorCode     string
}

// Ok builds a successful envelope carrying msg.
func Ok[T any](rayID string, msg T) Envelope[T] {
	return Envelope[T]{Status: true, ClientMessage: msg, RayID: rayID}
}

// Fail builds a failed envelope. msg is typically the zero value of T;
// callers needing a message surface it through ErrorCode and an
// accompanying log line, mirroring the repository layer's narrow error
// vocabulary.
func Fail[T any](rayID, errorCode string, msg T) Envelope[T] {
	return Envelope[T]{Status: false, ClientMessage: msg, RayID: rayID, ErrorCode: errorCode}
}
