// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 identityd Contributors

// Package mocks provides testify mocks for the auth package interfaces.
package mocks

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/mock"

	"github.com/identityd/identityd/internal/auth"
)

// MockUserRepository is a mock of auth.UserRepository.
type MockUserRepository struct {
	mock.Mock
}

var _ auth.UserRepository = (*MockUserRepository)(nil)

// NewMockUserRepository creates a MockUserRepository whose expectations are
// asserted when the test ends.
func NewMockUserRepository(t interface {
	mock.TestingT
	Cleanup(func())
},
) *MockUserRepository {
	m := &MockUserRepository{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// Create provides a mock function.
func (m *MockUserRepository) Create(ctx context.Context, user *auth.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

// GetByID provides a mock function.
func (m *MockUserRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.User, error) {
	args := m.Called(ctx, id)
	user, _ := args.Get(0).(*auth.User)
	return user, args.Error(1)
}

// GetByEmail provides a mock function.
func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*auth.User, error) {
	args := m.Called(ctx, email)
	user, _ := args.Get(0).(*auth.User)
	return user, args.Error(1)
}

// SetRefreshTokenHash provides a mock function.
func (m *MockUserRepository) SetRefreshTokenHash(ctx context.Context, id ulid.ULID, hash string, updatedAt time.Time) error {
	args := m.Called(ctx, id, hash, updatedAt)
	return args.Error(0)
}

// RotateRefreshTokenHash provides a mock function.
func (m *MockUserRepository) RotateRefreshTokenHash(ctx context.Context, id ulid.ULID, current, next string, updatedAt time.Time) error {
	args := m.Called(ctx, id, current, next, updatedAt)
	return args.Error(0)
}
