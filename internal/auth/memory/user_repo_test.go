// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 identityd Contributors

package memory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/identityd/identityd/internal/auth"
	"github.com/identityd/identityd/internal/auth/authtest"
	"github.com/identityd/identityd/internal/auth/memory"
)

func TestUserRepository(t *testing.T) {
	authtest.RunUserRepository(t, func(_ *testing.T) auth.UserRepository {
		return memory.NewUserRepository()
	})
}

func TestUserRepository_Ping(t *testing.T) {
	assert.NoError(t, memory.NewUserRepository().Ping(context.Background()))
}
