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

package credential

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/argon2"
)

// Argon2id defaults per the hasher's memory-hard KDF contract.
const (
	DefaultTimeCost    = 3
	DefaultMemoryCost  = 64 * 1024 // KiB, i.e. 64 MiB
	DefaultParallelism = 1
	DefaultSaltLength  = 16
	DefaultHashLength  = 32
)

// SecretHasher hashes and verifies client secrets with Argon2id, binding
// every hash to the (user_id, client_id) pair it was issued for so a
// stolen hash cannot be transplanted onto another client.
type SecretHasher struct {
	time        uint32
	memory      uint32
	parallelism uint8
	saltLength  uint32
	hashLength  uint32
}

// NewSecretHasher builds a hasher with the given Argon2id parameters.
func NewSecretHasher(time, memory uint32, parallelism uint8, saltLength, hashLength uint32) *SecretHasher {
	return &SecretHasher{
		time:        time,
		memory:      memory,
		parallelism: parallelism,
		saltLength:  saltLength,
		hashLength:  hashLength,
	}
}

// NewDefaultSecretHasher builds a hasher using the spec's Argon2id
// defaults (time_cost=3, memory_cost=64 MiB, parallelism=1, hash_len=32,
// salt_len=16).
func NewDefaultSecretHasher() *SecretHasher {
	return NewSecretHasher(DefaultTimeCost, DefaultMemoryCost, DefaultParallelism, DefaultSaltLength, DefaultHashLength)
}

// contextualize binds a raw secret to the owner/client pair it belongs to,
// so a hash lifted from one client's row fails verification against any
// other client.
func contextualize(secret, userID, clientID string) string {
	binding := sha256.Sum256([]byte(userID + ":" + clientID))
	return secret + ":" + hex.EncodeToString(binding[:])
}

// Hash produces an encoded Argon2id hash of secret, contextualized to
// (userID, clientID).
func (h *SecretHasher) Hash(secret, userID, clientID string) (string, error) {
	salt := make([]byte, h.saltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("credential: failed to generate salt: %w", err)
	}

	bound := contextualize(secret, userID, clientID)
	digest := argon2.IDKey([]byte(bound), salt, h.time, h.memory, h.parallelism, h.hashLength)

	encoded := fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.memory,
		h.time,
		h.parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(digest),
	)
	return encoded, nil
}

// Verify reports whether secret, contextualized to (userID, clientID),
// matches encodedHash. A malformed hash or a mismatch both yield false,
// nil; only an infrastructure-level problem (none currently possible in
// this pure-computation path) would return a non-nil error.
func (h *SecretHasher) Verify(secret, encodedHash, userID, clientID string) (bool, error) {
	sections := splitHashSections(encodedHash)
	if len(sections) != 5 || sections[0] != "argon2id" {
		return false, nil
	}

	var version int
	if _, err := fmt.Sscanf(sections[1], "v=%d", &version); err != nil {
		return false, nil
	}

	var memory, time uint32
	var parallelism uint8
	if _, err := fmt.Sscanf(sections[2], "m=%d,t=%d,p=%d", &memory, &time, &parallelism); err != nil {
		return false, nil
	}

	salt, err := base64.RawStdEncoding.DecodeString(sections[3])
	if err != nil {
		return false, nil
	}
	expected, err := base64.RawStdEncoding.DecodeString(sections[4])
	if err != nil {
		return false, nil
	}

	bound := contextualize(secret, userID, clientID)
	actual := argon2.IDKey([]byte(bound), salt, time, memory, parallelism, uint32(len(expected)))

	if len(actual) != len(expected) {
		return false, nil
	}
	var diff byte
	for i := range actual {
		diff |= actual[i] ^ expected[i]
	}
	return diff == 0, nil
}

func splitHashSections(encoded string) []string {
	var sections []string
	start := 0
	for i := 0; i < len(encoded); i++ {
		if encoded[i] == '$' {
			if i > start {
				sections = append(sections, encoded[start:i])
			}
			start = i + 1
		}
	}
	if start < len(encoded) {
		sections = append(sections, encoded[start:])
	}
	return sections
}
