// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 identityd Contributors

package auth

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// User represents a registered account.
type User struct {
	ID               ulid.ULID
	Email            string
	Username         *string
	PasswordHash     string
	RefreshTokenHash string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// PublicUser is the part of a User that may leave the service.
type PublicUser struct {
	ID       string  `json:"id"`
	Email    string  `json:"email"`
	Username *string `json:"username,omitempty"`
}

// NewUser creates a User with a fresh ID. The password is held as given
// until HashPasswordBeforeCreate is called.
func NewUser(email, password string, username *string) (*User, error) {
	if email == "" {
		return nil, oops.Code("AUTH_INVALID_USER").Errorf("email cannot be empty")
	}
	if password == "" {
		return nil, oops.Code("AUTH_INVALID_USER").Errorf("password cannot be empty")
	}
	now := time.Now()
	return &User{
		ID:           ulid.Make(),
		Email:        email,
		Username:     username,
		PasswordHash: password,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// HashPasswordBeforeCreate replaces the plaintext password with its hash.
// Calling it on an already hashed password is a no-op.
func (u *User) HashPasswordBeforeCreate(h SecretHasher) error {
	if h.IsHash(u.PasswordHash) {
		return nil
	}
	hashed, err := h.Hash(u.PasswordHash, PasswordCost)
	if err != nil {
		return oops.Code("AUTH_HASH_FAILED").With("operation", "hash password").Wrap(err)
	}
	u.PasswordHash = hashed
	return nil
}

// ValidatePassword reports whether plain matches the stored password hash.
func (u *User) ValidatePassword(h SecretHasher, plain string) bool {
	return h.Verify(plain, u.PasswordHash)
}

// SetRefreshToken stores the hash of plain as the only valid refresh token.
func (u *User) SetRefreshToken(h SecretHasher, plain string) error {
	hashed, err := h.Hash(plain, RefreshTokenCost)
	if err != nil {
		return oops.Code("AUTH_HASH_FAILED").With("operation", "hash refresh token").Wrap(err)
	}
	u.RefreshTokenHash = hashed
	u.UpdatedAt = time.Now()
	return nil
}

// ValidateRefreshToken reports whether plain matches the stored refresh
// token hash. Always false when no session is active.
func (u *User) ValidateRefreshToken(h SecretHasher, plain string) bool {
	if u.RefreshTokenHash == "" {
		return false
	}
	return h.Verify(plain, u.RefreshTokenHash)
}

// RemoveRefreshToken ends the active session.
func (u *User) RemoveRefreshToken() {
	u.RefreshTokenHash = ""
	u.UpdatedAt = time.Now()
}

// UpdateEmail changes the email address.
func (u *User) UpdateEmail(email string) {
	u.Email = email
	u.UpdatedAt = time.Now()
}

// UpdateUsername changes or clears the username.
func (u *User) UpdateUsername(username *string) {
	u.Username = username
	u.UpdatedAt = time.Now()
}

// UpdatePassword hashes plain and stores it. Unlike HashPasswordBeforeCreate
// it always hashes, even if plain looks like a hash.
func (u *User) UpdatePassword(h SecretHasher, plain string) error {
	if plain == "" {
		return ErrEmptySecret
	}
	hashed, err := h.Hash(plain, PasswordCost)
	if err != nil {
		return oops.Code("AUTH_HASH_FAILED").With("operation", "update password").Wrap(err)
	}
	u.PasswordHash = hashed
	u.UpdatedAt = time.Now()
	return nil
}

// HasSession reports whether a refresh token is currently active.
func (u *User) HasSession() bool {
	return u.RefreshTokenHash != ""
}

// Public returns the fields safe to expose to clients.
func (u *User) Public() PublicUser {
	return PublicUser{
		ID:       u.ID.String(),
		Email:    u.Email,
		Username: u.Username,
	}
}

// UserRepository manages user persistence.
type UserRepository interface {
	// Create stores a new user. Returns ErrEmailTaken or ErrUsernameTaken
	// when a unique constraint rejects the record.
	Create(ctx context.Context, user *User) error

	// GetByID retrieves a user by ID.
	// Returns ErrNotFound if no user has the given ID.
	GetByID(ctx context.Context, id ulid.ULID) (*User, error)

	// GetByEmail retrieves a user by exact email.
	// Returns ErrNotFound if no user has the given email.
	GetByEmail(ctx context.Context, email string) (*User, error)

	// SetRefreshTokenHash overwrites the stored refresh token hash. An empty
	// hash ends the session. Returns ErrNotFound if no user has the given ID.
	SetRefreshTokenHash(ctx context.Context, id ulid.ULID, hash string, updatedAt time.Time) error

	// RotateRefreshTokenHash replaces current with next only if the stored
	// hash still equals current. Returns ErrRefreshTokenStale otherwise.
	RotateRefreshTokenHash(ctx context.Context, id ulid.ULID, current, next string, updatedAt time.Time) error
}
