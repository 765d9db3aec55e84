// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 identityd Contributors

// Package authtest holds behavior checks shared by every auth.UserRepository
// implementation.
package authtest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/identityd/identityd/internal/auth"
)

// NewUser builds a user with a unique email and a pre-hashed password.
func NewUser(t *testing.T, username *string) *auth.User {
	t.Helper()
	id := ulid.Make()
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &auth.User{
		ID:           id,
		Email:        "user-" + id.String() + "@example.com",
		Username:     username,
		PasswordHash: "$2a$04$abcdefghijklmnopqrstuuMm5u1c2yP4c1sG0cD9rJ4lVq0Zp0nS.",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Ptr returns a pointer to s.
func Ptr(s string) *string { return &s }

// RunUserRepository exercises the auth.UserRepository contract. newRepo is
// called once per subtest.
func RunUserRepository(t *testing.T, newRepo func(t *testing.T) auth.UserRepository) {
	ctx := context.Background()

	t.Run("create then read back", func(t *testing.T) {
		repo := newRepo(t)
		user := NewUser(t, Ptr("reader-"+ulid.Make().String()[20:]))
		require.NoError(t, repo.Create(ctx, user))

		byID, err := repo.GetByID(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, user.ID, byID.ID)
		assert.Equal(t, user.Email, byID.Email)
		require.NotNil(t, byID.Username)
		assert.Equal(t, *user.Username, *byID.Username)
		assert.Equal(t, user.PasswordHash, byID.PasswordHash)
		assert.Empty(t, byID.RefreshTokenHash)
		assert.WithinDuration(t, user.CreatedAt, byID.CreatedAt, time.Second)

		byEmail, err := repo.GetByEmail(ctx, user.Email)
		require.NoError(t, err)
		assert.Equal(t, user.ID, byEmail.ID)
	})

	t.Run("username is optional", func(t *testing.T) {
		repo := newRepo(t)
		user := NewUser(t, nil)
		require.NoError(t, repo.Create(ctx, user))

		got, err := repo.GetByID(ctx, user.ID)
		require.NoError(t, err)
		assert.Nil(t, got.Username)
	})

	t.Run("duplicate email is rejected", func(t *testing.T) {
		repo := newRepo(t)
		first := NewUser(t, nil)
		require.NoError(t, repo.Create(ctx, first))

		second := NewUser(t, nil)
		second.Email = first.Email
		err := repo.Create(ctx, second)
		require.Error(t, err)
		assert.True(t, errors.Is(err, auth.ErrEmailTaken), "got %v", err)
	})

	t.Run("duplicate username is rejected", func(t *testing.T) {
		repo := newRepo(t)
		name := "dup-" + ulid.Make().String()[20:]
		require.NoError(t, repo.Create(ctx, NewUser(t, Ptr(name))))

		err := repo.Create(ctx, NewUser(t, Ptr(name)))
		require.Error(t, err)
		assert.True(t, errors.Is(err, auth.ErrUsernameTaken), "got %v", err)
	})

	t.Run("several users without username", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Create(ctx, NewUser(t, nil)))
		require.NoError(t, repo.Create(ctx, NewUser(t, nil)))
	})

	t.Run("missing user is not found", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.GetByID(ctx, ulid.Make())
		assert.True(t, errors.Is(err, auth.ErrNotFound), "got %v", err)

		_, err = repo.GetByEmail(ctx, "nobody@example.com")
		assert.True(t, errors.Is(err, auth.ErrNotFound), "got %v", err)

		err = repo.SetRefreshTokenHash(ctx, ulid.Make(), "hash", time.Now())
		assert.True(t, errors.Is(err, auth.ErrNotFound), "got %v", err)
	})

	t.Run("set and clear refresh token hash", func(t *testing.T) {
		repo := newRepo(t)
		user := NewUser(t, nil)
		require.NoError(t, repo.Create(ctx, user))

		require.NoError(t, repo.SetRefreshTokenHash(ctx, user.ID, "hash-1", time.Now()))
		got, err := repo.GetByID(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, "hash-1", got.RefreshTokenHash)

		require.NoError(t, repo.SetRefreshTokenHash(ctx, user.ID, "", time.Now()))
		got, err = repo.GetByID(ctx, user.ID)
		require.NoError(t, err)
		assert.Empty(t, got.RefreshTokenHash)
	})

	t.Run("rotate requires the current hash", func(t *testing.T) {
		repo := newRepo(t)
		user := NewUser(t, nil)
		require.NoError(t, repo.Create(ctx, user))
		require.NoError(t, repo.SetRefreshTokenHash(ctx, user.ID, "hash-1", time.Now()))

		require.NoError(t, repo.RotateRefreshTokenHash(ctx, user.ID, "hash-1", "hash-2", time.Now()))

		err := repo.RotateRefreshTokenHash(ctx, user.ID, "hash-1", "hash-3", time.Now())
		assert.True(t, errors.Is(err, auth.ErrRefreshTokenStale), "got %v", err)

		got, err := repo.GetByID(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, "hash-2", got.RefreshTokenHash)
	})

	t.Run("rotate with no session is stale", func(t *testing.T) {
		repo := newRepo(t)
		user := NewUser(t, nil)
		require.NoError(t, repo.Create(ctx, user))

		err := repo.RotateRefreshTokenHash(ctx, user.ID, "", "hash-1", time.Now())
		assert.Error(t, err)
	})

	t.Run("concurrent rotations have one winner", func(t *testing.T) {
		repo := newRepo(t)
		user := NewUser(t, nil)
		require.NoError(t, repo.Create(ctx, user))
		require.NoError(t, repo.SetRefreshTokenHash(ctx, user.ID, "start", time.Now()))

		const workers = 8
		var (
			wg   sync.WaitGroup
			mu   sync.Mutex
			wins int
		)
		for i := range workers {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				next := "next-" + string(rune('a'+i))
				if err := repo.RotateRefreshTokenHash(ctx, user.ID, "start", next, time.Now()); err == nil {
					mu.Lock()
					wins++
					mu.Unlock()
				}
			}(i)
		}
		wg.Wait()
		assert.Equal(t, 1, wins)
	})

	t.Run("returned users are copies", func(t *testing.T) {
		repo := newRepo(t)
		user := NewUser(t, nil)
		require.NoError(t, repo.Create(ctx, user))

		got, err := repo.GetByID(ctx, user.ID)
		require.NoError(t, err)
		got.RefreshTokenHash = "mutated"

		again, err := repo.GetByID(ctx, user.ID)
		require.NoError(t, err)
		assert.Empty(t, again.RefreshTokenHash)
	})
}
