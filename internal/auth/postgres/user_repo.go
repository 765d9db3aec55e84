// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 identityd Contributors

// Package postgres implements auth repositories on PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/identityd/identityd/internal/auth"
)

// Unique constraint names from the users migration.
const (
	emailConstraint    = "users_email_key"
	usernameConstraint = "users_username_key"
)

// poolIface is the subset of *pgxpool.Pool the repository uses. It is
// satisfied by pgxmock in unit tests.
type poolIface interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

// UserRepository implements auth.UserRepository using PostgreSQL.
type UserRepository struct {
	pool poolIface
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(pool poolIface) *UserRepository {
	return &UserRepository{pool: pool}
}

// Create stores a new user.
func (r *UserRepository) Create(ctx context.Context, user *auth.User) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO users (
			id, email, username, password_hash, refresh_token_hash,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7)
	`,
		user.ID.String(),
		user.Email,
		user.Username,
		user.PasswordHash,
		user.RefreshTokenHash,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			if pgErr.ConstraintName == usernameConstraint {
				return oops.Code("USER_CREATE_FAILED").
					With("constraint", pgErr.ConstraintName).
					Wrap(auth.ErrUsernameTaken)
			}
			return oops.Code("USER_CREATE_FAILED").
				With("constraint", pgErr.ConstraintName).
				Wrap(auth.ErrEmailTaken)
		}
		return oops.Code("USER_CREATE_FAILED").
			With("operation", "insert user").
			With("id", user.ID.String()).
			Wrap(err)
	}
	return nil
}

// GetByID retrieves a user by ID.
func (r *UserRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.User, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, email, username, password_hash,
		       COALESCE(refresh_token_hash, ''), created_at, updated_at
		FROM users
		WHERE id = $1
	`, id.String())

	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_GET_BY_ID_FAILED").
			With("operation", "get user by id").
			With("id", id.String()).
			Wrap(err)
	}
	return user, nil
}

// GetByEmail retrieves a user by exact email.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*auth.User, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, email, username, password_hash,
		       COALESCE(refresh_token_hash, ''), created_at, updated_at
		FROM users
		WHERE email = $1
	`, email)

	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_GET_BY_EMAIL_FAILED").
			With("operation", "get user by email").
			Wrap(err)
	}
	return user, nil
}

// SetRefreshTokenHash overwrites the stored refresh token hash. An empty hash
// is stored as NULL.
func (r *UserRepository) SetRefreshTokenHash(ctx context.Context, id ulid.ULID, hash string, updatedAt time.Time) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE users SET refresh_token_hash = NULLIF($2, ''), updated_at = $3
		WHERE id = $1
	`, id.String(), hash, updatedAt)
	if err != nil {
		return oops.Code("USER_SET_REFRESH_FAILED").
			With("operation", "set refresh token hash").
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("USER_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// RotateRefreshTokenHash swaps current for next in a single conditional
// UPDATE. Zero affected rows means another request rotated first, or the
// user is gone.
func (r *UserRepository) RotateRefreshTokenHash(ctx context.Context, id ulid.ULID, current, next string, updatedAt time.Time) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE users SET refresh_token_hash = NULLIF($3, ''), updated_at = $4
		WHERE id = $1 AND refresh_token_hash = $2
	`, id.String(), current, next, updatedAt)
	if err != nil {
		return oops.Code("USER_ROTATE_REFRESH_FAILED").
			With("operation", "rotate refresh token hash").
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("USER_REFRESH_STALE").
			With("id", id.String()).
			Wrap(auth.ErrRefreshTokenStale)
	}
	return nil
}

// Ping checks database connectivity.
func (r *UserRepository) Ping(ctx context.Context) error {
	if err := r.pool.Ping(ctx); err != nil {
		return oops.Code("USER_STORE_UNAVAILABLE").Wrap(err)
	}
	return nil
}

// scanUser scans a single row into a User.
// Callers are responsible for handling pgx.ErrNoRows.
func scanUser(row pgx.Row) (*auth.User, error) {
	var (
		idStr            string
		email            string
		username         *string
		passwordHash     string
		refreshTokenHash string
		createdAt        time.Time
		updatedAt        time.Time
	)

	err := row.Scan(
		&idStr,
		&email,
		&username,
		&passwordHash,
		&refreshTokenHash,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err //nolint:wrapcheck // Callers wrap with context-specific info
		}
		return nil, oops.Code("USER_SCAN_FAILED").
			With("operation", "scan user").
			Wrap(err)
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("USER_INVALID_ID").
			With("operation", "parse user id").
			With("id", idStr).
			Wrap(err)
	}

	return &auth.User{
		ID:               id,
		Email:            email,
		Username:         username,
		PasswordHash:     passwordHash,
		RefreshTokenHash: refreshTokenHash,
		CreatedAt:        createdAt,
		UpdatedAt:        updatedAt,
	}, nil
}

// Compile-time interface check.
var _ auth.UserRepository = (*UserRepository)(nil)
