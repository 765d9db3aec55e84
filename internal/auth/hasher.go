// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 identityd Contributors

package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/samber/oops"
	"golang.org/x/crypto/bcrypt"
)

// bcrypt cost factors. Passwords are long-lived, refresh tokens rotate on
// every login and refresh.
const (
	PasswordCost     = 12
	RefreshTokenCost = 10
)

// bcryptMaxInput is the number of input bytes bcrypt consumes.
const bcryptMaxInput = 72

// ErrEmptySecret is returned when attempting to hash an empty secret.
var ErrEmptySecret = oops.Code("AUTH_EMPTY_SECRET").Errorf("secret cannot be empty")

// SecretHasher provides one-way hashing and verification of secrets.
type SecretHasher interface {
	// Hash produces a salted hash of secret at the given cost. It always
	// hashes; callers that must not double-hash check IsHash first.
	Hash(secret string, cost int) (string, error)

	// Verify reports whether secret matches hash. Empty or malformed input
	// yields false.
	Verify(secret, hash string) bool

	// IsHash reports whether value already looks like a hash produced by Hash.
	IsHash(value string) bool
}

// BcryptHasher implements SecretHasher using bcrypt.
type BcryptHasher struct{}

// NewBcryptHasher creates a new BcryptHasher.
func NewBcryptHasher() *BcryptHasher {
	return &BcryptHasher{}
}

// Hash produces a bcrypt hash of secret.
func (h *BcryptHasher) Hash(secret string, cost int) (string, error) {
	if secret == "" {
		return "", ErrEmptySecret
	}

	hashed, err := bcrypt.GenerateFromPassword(bcryptInput(secret), cost)
	if err != nil {
		if errors.Is(err, bcrypt.InvalidCostError(cost)) {
			return "", oops.Code("AUTH_INVALID_COST").With("cost", cost).Wrap(err)
		}
		return "", oops.Code("AUTH_HASH_FAILED").Wrap(err)
	}
	return string(hashed), nil
}

// Verify checks if secret matches hash.
func (h *BcryptHasher) Verify(secret, hash string) bool {
	if secret == "" || hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), bcryptInput(secret)) == nil
}

// IsHash returns true for strings carrying a bcrypt version marker and a
// parseable cost. x/crypto emits $2a$; $2b$ and $2y$ come from other bcrypt
// implementations and are accepted so imported hashes are not re-hashed.
func (h *BcryptHasher) IsHash(value string) bool {
	if !strings.HasPrefix(value, "$2a$") &&
		!strings.HasPrefix(value, "$2b$") &&
		!strings.HasPrefix(value, "$2y$") {
		return false
	}
	_, err := bcrypt.Cost([]byte(value))
	return err == nil
}

// bcryptInput returns the bytes fed to bcrypt. Secrets longer than bcrypt's
// input limit are reduced to their SHA-256 hex digest so the whole secret
// contributes to the hash.
func bcryptInput(secret string) []byte {
	if len(secret) <= bcryptMaxInput {
		return []byte(secret)
	}
	sum := sha256.Sum256([]byte(secret))
	return []byte(hex.EncodeToString(sum[:]))
}
