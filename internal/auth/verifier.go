// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 identityd Contributors

package auth

import "context"

// Principal is the authenticated identity behind a valid access token.
type Principal struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// CredentialVerifier checks an email/password pair ahead of session
// establishment.
type CredentialVerifier interface {
	// ValidateUser returns the matching user, or nil when the credentials are
	// wrong. An error means the check itself could not run.
	ValidateUser(ctx context.Context, email, password string) (*User, error)
}

// TokenVerifier checks bearer and refresh tokens.
type TokenVerifier interface {
	// VerifyAccessToken returns the principal for a valid access token whose
	// subject still exists.
	VerifyAccessToken(ctx context.Context, token string) (*Principal, error)

	// VerifyRefreshToken checks the signature and expiry of a refresh token.
	// Whether it is the current token for its subject is decided by
	// RefreshTokens.
	VerifyRefreshToken(ctx context.Context, token string) (*TokenClaims, error)
}

var (
	_ CredentialVerifier = (*Service)(nil)
	_ TokenVerifier      = (*Service)(nil)
)
