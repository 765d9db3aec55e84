// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 identityd Contributors

package mocks

import (
	"github.com/stretchr/testify/mock"

	"github.com/identityd/identityd/internal/auth"
)

// MockSecretHasher is a mock of auth.SecretHasher.
type MockSecretHasher struct {
	mock.Mock
}

var _ auth.SecretHasher = (*MockSecretHasher)(nil)

// NewMockSecretHasher creates a MockSecretHasher whose expectations are
// asserted when the test ends.
func NewMockSecretHasher(t interface {
	mock.TestingT
	Cleanup(func())
},
) *MockSecretHasher {
	m := &MockSecretHasher{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// Hash provides a mock function.
func (m *MockSecretHasher) Hash(secret string, cost int) (string, error) {
	args := m.Called(secret, cost)
	return args.String(0), args.Error(1)
}

// Verify provides a mock function.
func (m *MockSecretHasher) Verify(secret, hash string) bool {
	args := m.Called(secret, hash)
	return args.Bool(0)
}

// IsHash provides a mock function.
func (m *MockSecretHasher) IsHash(value string) bool {
	args := m.Called(value)
	return args.Bool(0)
}
