// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 identityd Contributors

package auth_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/identityd/identityd/internal/auth"
	"github.com/identityd/identityd/pkg/errutil"
)

func TestBcryptHasher_Hash(t *testing.T) {
	hasher := auth.NewBcryptHasher()

	t.Run("uses the requested cost", func(t *testing.T) {
		hash, err := hasher.Hash("password123", bcrypt.MinCost)
		require.NoError(t, err)
		cost, err := bcrypt.Cost([]byte(hash))
		require.NoError(t, err)
		assert.Equal(t, bcrypt.MinCost, cost)
	})

	t.Run("same secret produces different hashes (salt)", func(t *testing.T) {
		hash1, err := hasher.Hash("samepassword", bcrypt.MinCost)
		require.NoError(t, err)
		hash2, err := hasher.Hash("samepassword", bcrypt.MinCost)
		require.NoError(t, err)
		assert.NotEqual(t, hash1, hash2)
	})

	t.Run("rejects empty secret", func(t *testing.T) {
		_, err := hasher.Hash("", bcrypt.MinCost)
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "AUTH_EMPTY_SECRET")
	})

	t.Run("rejects out of range cost", func(t *testing.T) {
		_, err := hasher.Hash("password123", bcrypt.MaxCost+1)
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "AUTH_INVALID_COST")
	})
}

func TestBcryptHasher_Verify(t *testing.T) {
	hasher := auth.NewBcryptHasher()
	hash, err := hasher.Hash("correctpassword", bcrypt.MinCost)
	require.NoError(t, err)

	tests := []struct {
		name   string
		secret string
		hash   string
		want   bool
	}{
		{"correct secret", "correctpassword", hash, true},
		{"wrong secret", "wrongpassword", hash, false},
		{"empty secret", "", hash, false},
		{"empty hash", "correctpassword", "", false},
		{"malformed hash", "correctpassword", "not-a-hash", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, hasher.Verify(tt.secret, tt.hash))
		})
	}
}

// Signed tokens share long identical headers, so two different tokens can
// agree on their first 72 bytes. Both must still be told apart.
func TestBcryptHasher_LongSecrets(t *testing.T) {
	hasher := auth.NewBcryptHasher()
	prefix := strings.Repeat("x", 80)
	first := prefix + "first-signature"
	second := prefix + "second-signature"

	hash, err := hasher.Hash(first, bcrypt.MinCost)
	require.NoError(t, err)

	assert.True(t, hasher.Verify(first, hash))
	assert.False(t, hasher.Verify(second, hash))
	assert.False(t, hasher.Verify(prefix, hash))
}

func TestBcryptHasher_IsHash(t *testing.T) {
	hasher := auth.NewBcryptHasher()
	hash, err := hasher.Hash("password123", bcrypt.MinCost)
	require.NoError(t, err)

	tests := []struct {
		name  string
		value string
		want  bool
	}{
		{"generated hash", hash, true},
		{"2b variant", "$2b$" + hash[4:], true},
		{"2y variant", "$2y$" + hash[4:], true},
		{"plaintext", "Password1!", false},
		{"empty", "", false},
		{"prefix only", "$2a$", false},
		{"other scheme", "$argon2id$v=19$m=65536,t=1,p=4$salt$hash", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, hasher.IsHash(tt.value))
		})
	}
}
