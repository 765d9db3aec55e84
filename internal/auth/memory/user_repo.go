// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 identityd Contributors

// Package memory provides an in-process auth.UserRepository for development
// and tests. Data does not survive a restart.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/identityd/identityd/internal/auth"
)

// UserRepository implements auth.UserRepository with maps guarded by a mutex.
type UserRepository struct {
	mu      sync.RWMutex
	byID    map[ulid.ULID]*auth.User
	byEmail map[string]ulid.ULID
}

// NewUserRepository creates an empty UserRepository.
func NewUserRepository() *UserRepository {
	return &UserRepository{
		byID:    make(map[ulid.ULID]*auth.User),
		byEmail: make(map[string]ulid.ULID),
	}
}

// Create stores a copy of user.
func (r *UserRepository) Create(_ context.Context, user *auth.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byEmail[user.Email]; ok {
		return oops.Code("USER_CREATE_FAILED").With("reason", "duplicate email").Wrap(auth.ErrEmailTaken)
	}
	if user.Username != nil {
		for _, u := range r.byID {
			if u.Username != nil && *u.Username == *user.Username {
				return oops.Code("USER_CREATE_FAILED").With("reason", "duplicate username").Wrap(auth.ErrUsernameTaken)
			}
		}
	}

	r.byID[user.ID] = clone(user)
	r.byEmail[user.Email] = user.ID
	return nil
}

// GetByID retrieves a copy of the user with the given ID.
func (r *UserRepository) GetByID(_ context.Context, id ulid.ULID) (*auth.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.byID[id]
	if !ok {
		return nil, oops.Code("USER_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	return clone(u), nil
}

// GetByEmail retrieves a copy of the user with the given email.
func (r *UserRepository) GetByEmail(_ context.Context, email string) (*auth.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[email]
	if !ok {
		return nil, oops.Code("USER_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	return clone(r.byID[id]), nil
}

// SetRefreshTokenHash overwrites the stored refresh token hash.
func (r *UserRepository) SetRefreshTokenHash(_ context.Context, id ulid.ULID, hash string, updatedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.byID[id]
	if !ok {
		return oops.Code("USER_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	u.RefreshTokenHash = hash
	u.UpdatedAt = updatedAt
	return nil
}

// RotateRefreshTokenHash swaps current for next under the write lock.
func (r *UserRepository) RotateRefreshTokenHash(_ context.Context, id ulid.ULID, current, next string, updatedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.byID[id]
	if !ok {
		return oops.Code("USER_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	if current == "" || u.RefreshTokenHash != current {
		return oops.Code("USER_REFRESH_STALE").With("id", id.String()).Wrap(auth.ErrRefreshTokenStale)
	}
	u.RefreshTokenHash = next
	u.UpdatedAt = updatedAt
	return nil
}

// Ping always succeeds; it lets the repository act as a readiness probe.
func (r *UserRepository) Ping(_ context.Context) error {
	return nil
}

func clone(u *auth.User) *auth.User {
	c := *u
	if u.Username != nil {
		name := *u.Username
		c.Username = &name
	}
	return &c
}

var _ auth.UserRepository = (*UserRepository)(nil)
