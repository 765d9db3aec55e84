// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 identityd Contributors

package auth_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/identityd/identityd/internal/auth"
	"github.com/identityd/identityd/pkg/errutil"
)

func TestValidateEmail(t *testing.T) {
	tests := []struct {
		email string
		valid bool
	}{
		{"user@example.com", true},
		{"first.last+tag@sub.example.org", true},
		{"", false},
		{"not-an-email", false},
		{"user@localhost", false},
		{"Display Name <user@example.com>", false},
		{strings.Repeat("a", 250) + "@example.com", false},
	}
	for _, tt := range tests {
		t.Run(tt.email, func(t *testing.T) {
			assert.Equal(t, tt.valid, auth.ValidateEmail(tt.email) == "")
		})
	}
}

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		name     string
		password string
		valid    bool
	}{
		{"meets every rule", "Password1!", true},
		{"each special counts", "Abcdef1&", true},
		{"too short", "Pa1!", false},
		{"too long", "Aa1!" + strings.Repeat("x", 97), false},
		{"no uppercase", "password1!", false},
		{"no lowercase", "PASSWORD1!", false},
		{"no digit", "Password!!", false},
		{"no special", "Password12", false},
		{"unlisted special", "Password1#", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.valid, auth.ValidatePassword(tt.password) == "")
		})
	}
}

func TestValidatePassword_RejectsBcryptHash(t *testing.T) {
	hashed, err := bcrypt.GenerateFromPassword([]byte("whatever"), bcrypt.MinCost)
	require.NoError(t, err)
	require.True(t, auth.NewBcryptHasher().IsHash(string(hashed)))

	assert.Equal(t, "password must not be a password hash", auth.ValidatePassword(string(hashed)))

	err = auth.ValidateRegistration(auth.RegisterInput{Email: "a@example.com", Password: string(hashed)})
	errutil.AssertErrorCode(t, err, auth.CodeValidationFailed)
	assert.Equal(t, "password must not be a password hash", auth.FieldErrorsOf(err)["password"])
}

func TestValidateUsername(t *testing.T) {
	tests := []struct {
		username string
		valid    bool
	}{
		{"alice", true},
		{"a_b-c9", true},
		{"abc", true},
		{"ab", false},
		{"a", false},
		{"", false},
		{strings.Repeat("a", 31), false},
		{"has space", false},
		{"dot.name", false},
	}
	for _, tt := range tests {
		t.Run(tt.username, func(t *testing.T) {
			assert.Equal(t, tt.valid, auth.ValidateUsername(tt.username) == "")
		})
	}
}

func TestValidateRegistration(t *testing.T) {
	t.Run("valid input", func(t *testing.T) {
		err := auth.ValidateRegistration(auth.RegisterInput{
			Email:    "a@example.com",
			Password: "Password1!",
			Username: strPtr("alice"),
		})
		assert.NoError(t, err)
	})

	t.Run("username is optional", func(t *testing.T) {
		err := auth.ValidateRegistration(auth.RegisterInput{
			Email:    "a@example.com",
			Password: "Password1!",
		})
		assert.NoError(t, err)
	})

	t.Run("reports every failing field", func(t *testing.T) {
		err := auth.ValidateRegistration(auth.RegisterInput{
			Email:    "bad",
			Password: "short",
			Username: strPtr("no spaces"),
		})
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, auth.CodeValidationFailed)

		oopsErr, ok := oops.AsOops(err)
		require.True(t, ok)
		fields, ok := oopsErr.Context()["fields"].(auth.FieldErrors)
		require.True(t, ok, "fields should be auth.FieldErrors")
		assert.Equal(t, fields, auth.FieldErrorsOf(err))
		assert.Len(t, fields, 3)
		assert.Contains(t, fields, "email")
		assert.Contains(t, fields, "password")
		assert.Contains(t, fields, "username")
	})
}

func TestFieldErrorsOf_NonValidationError(t *testing.T) {
	assert.Nil(t, auth.FieldErrorsOf(errors.New("plain")))
	assert.Nil(t, auth.FieldErrorsOf(oops.Code(auth.CodeInternal).Errorf("boom")))
}
