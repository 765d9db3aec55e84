// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 identityd Contributors

// Package auth implements the credential and token lifecycle for identityd.
//
// # Domain Types
//
// User records should be created with NewUser, which assigns an id and
// timestamps. The password stays plaintext until HashPasswordBeforeCreate
// runs; repositories only ever receive hashed records.
//
// A *User loaded from a UserRepository is owned by the request that loaded it.
// Mutation methods (SetRefreshToken, RemoveRefreshToken, Update*) change the
// record in place and bump UpdatedAt; the caller persists the result.
//
// # Tokens
//
// TokenIssuer mints HS256 access and refresh tokens with separate secrets.
// Only the bcrypt hash of the current refresh token is stored, so each
// successful login or refresh invalidates the previous refresh token.
//
// # Services
//
// Service orchestrates register, login, refresh and logout. It also
// implements CredentialVerifier and TokenVerifier for the transport guards.
//
// Errors carry oops codes (Code* constants) that callers map to responses.
package auth
