// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 identityd Contributors

package auth

import "errors"

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrEmailTaken is returned by a UserRepository when the email is already stored.
var ErrEmailTaken = errors.New("email already registered")

// ErrUsernameTaken is returned by a UserRepository when the username is already stored.
var ErrUsernameTaken = errors.New("username already taken")

// ErrRefreshTokenStale is returned by RotateRefreshTokenHash when the stored
// hash no longer matches the one the caller validated against.
var ErrRefreshTokenStale = errors.New("refresh token hash changed")

// Error codes returned by this package. The transport layer maps them to
// HTTP status codes.
const (
	CodeEmailTaken         = "AUTH_EMAIL_TAKEN"
	CodeUsernameTaken      = "AUTH_USERNAME_TAKEN"
	CodeInvalidCredentials = "AUTH_INVALID_CREDENTIALS"
	CodeInvalidToken       = "AUTH_INVALID_TOKEN"
	CodeUnauthenticated    = "AUTH_UNAUTHENTICATED"
	CodeValidationFailed   = "AUTH_VALIDATION_FAILED"
	CodeInternal           = "AUTH_INTERNAL"
)

// Client-facing messages. Credential and token failures share one message
// each so callers cannot tell an unknown account from a wrong secret.
const (
	MsgEmailTaken         = "email is already registered"
	MsgUsernameTaken      = "username is already taken"
	MsgInvalidCredentials = "invalid credentials"
	MsgInvalidToken       = "invalid token"
)
