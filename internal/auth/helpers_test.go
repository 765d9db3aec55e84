// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 identityd Contributors

package auth_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/identityd/identityd/internal/auth"
)

// fastHasher is a real bcrypt hasher pinned to the minimum cost.
type fastHasher struct {
	*auth.BcryptHasher
}

func newFastHasher() fastHasher {
	return fastHasher{BcryptHasher: auth.NewBcryptHasher()}
}

func (h fastHasher) Hash(secret string, _ int) (string, error) {
	return h.BcryptHasher.Hash(secret, bcrypt.MinCost)
}

func newTokenIssuer(t *testing.T) *auth.TokenIssuer {
	t.Helper()
	issuer, err := auth.NewTokenIssuer(auth.TokenConfig{
		AccessSecret:  "access-secret-for-tests",
		RefreshSecret: "refresh-secret-for-tests",
	})
	require.NoError(t, err)
	return issuer
}

func strPtr(s string) *string { return &s }
