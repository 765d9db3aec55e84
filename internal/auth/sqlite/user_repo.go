// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 identityd Contributors

// Package sqlite implements auth repositories on an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/identityd/identityd/internal/auth"
)

const selectUser = `
	SELECT id, email, username, password_hash,
	       COALESCE(refresh_token_hash, ''), created_at, updated_at
	FROM users
`

// UserRepository implements auth.UserRepository on database/sql.
type UserRepository struct {
	db *sql.DB
}

// NewUserRepository creates a new UserRepository. The users table must
// already exist; see store.NewSQLiteMigrator.
func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create stores a new user.
func (r *UserRepository) Create(ctx context.Context, user *auth.User) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (
			id, email, username, password_hash, refresh_token_hash,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, NULLIF(?, ''), ?, ?)
	`,
		user.ID.String(),
		user.Email,
		user.Username,
		user.PasswordHash,
		user.RefreshTokenHash,
		user.CreatedAt.UTC(),
		user.UpdatedAt.UTC(),
	)
	if err != nil {
		if column, ok := uniqueViolation(err); ok {
			if column == "users.username" {
				return oops.Code("USER_CREATE_FAILED").With("column", column).Wrap(auth.ErrUsernameTaken)
			}
			return oops.Code("USER_CREATE_FAILED").With("column", column).Wrap(auth.ErrEmailTaken)
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
	user, err := scanUser(r.db.QueryRowContext(ctx, selectUser+`WHERE id = ?`, id.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrNotFound)
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
	user, err := scanUser(r.db.QueryRowContext(ctx, selectUser+`WHERE email = ?`, email))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_GET_BY_EMAIL_FAILED").
			With("operation", "get user by email").
			Wrap(err)
	}
	return user, nil
}

// SetRefreshTokenHash overwrites the stored refresh token hash.
func (r *UserRepository) SetRefreshTokenHash(ctx context.Context, id ulid.ULID, hash string, updatedAt time.Time) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE users SET refresh_token_hash = NULLIF(?, ''), updated_at = ?
		WHERE id = ?
	`, hash, updatedAt.UTC(), id.String())
	if err != nil {
		return oops.Code("USER_SET_REFRESH_FAILED").
			With("operation", "set refresh token hash").
			With("id", id.String()).
			Wrap(err)
	}
	if n, err := result.RowsAffected(); err != nil || n == 0 {
		return oops.Code("USER_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	return nil
}

// RotateRefreshTokenHash swaps current for next in a single conditional
// UPDATE.
func (r *UserRepository) RotateRefreshTokenHash(ctx context.Context, id ulid.ULID, current, next string, updatedAt time.Time) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE users SET refresh_token_hash = NULLIF(?, ''), updated_at = ?
		WHERE id = ? AND refresh_token_hash = ?
	`, next, updatedAt.UTC(), id.String(), current)
	if err != nil {
		return oops.Code("USER_ROTATE_REFRESH_FAILED").
			With("operation", "rotate refresh token hash").
			With("id", id.String()).
			Wrap(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return oops.Code("USER_ROTATE_REFRESH_FAILED").With("operation", "rows affected").Wrap(err)
	}
	if n == 0 {
		return oops.Code("USER_REFRESH_STALE").With("id", id.String()).Wrap(auth.ErrRefreshTokenStale)
	}
	return nil
}

// Ping checks that the database handle is usable.
func (r *UserRepository) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return oops.Code("USER_STORE_UNAVAILABLE").Wrap(err)
	}
	return nil
}

// uniqueViolation reports the table.column named by a UNIQUE failure.
func uniqueViolation(err error) (string, bool) {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) || sqliteErr.Code() != sqlite3.SQLITE_CONSTRAINT_UNIQUE {
		return "", false
	}
	msg := sqliteErr.Error()
	for _, column := range []string{"users.username", "users.email"} {
		if strings.Contains(msg, column) {
			return column, true
		}
	}
	return "", true
}

func scanUser(row *sql.Row) (*auth.User, error) {
	var (
		idStr string
		user  auth.User
	)
	err := row.Scan(
		&idStr,
		&user.Email,
		&user.Username,
		&user.PasswordHash,
		&user.RefreshTokenHash,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err //nolint:wrapcheck // callers wrap with context-specific info
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("USER_INVALID_ID").With("id", idStr).Wrap(err)
	}
	user.ID = id
	return &user, nil
}

var _ auth.UserRepository = (*UserRepository)(nil)
