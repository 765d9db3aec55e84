// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 identityd Contributors

// Package bolt implements auth repositories on an embedded bbolt file.
//
// Users are stored as JSON under their ULID. Two index buckets map email and
// username to the owning ULID. bbolt serializes write transactions, so the
// uniqueness checks and the refresh token compare-and-swap run atomically.
package bolt

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	bbolt "go.etcd.io/bbolt"
	bolterrors "go.etcd.io/bbolt/errors"

	"github.com/identityd/identityd/internal/auth"
)

var (
	bucketUsers     = []byte("users")
	bucketEmails    = []byte("users_by_email")
	bucketUsernames = []byte("users_by_username")
)

// openTimeout bounds the wait for the file lock held by another process.
const openTimeout = 5 * time.Second

// record is the stored form of auth.User.
type record struct {
	ID               string    `json:"id"`
	Email            string    `json:"email"`
	Username         *string   `json:"username,omitempty"`
	PasswordHash     string    `json:"password_hash"`
	RefreshTokenHash string    `json:"refresh_token_hash,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// UserRepository implements auth.UserRepository on bbolt.
type UserRepository struct {
	db *bbolt.DB
}

// Open opens or creates the database at path and its buckets.
func Open(path string) (*UserRepository, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: openTimeout})
	if errors.Is(err, bolterrors.ErrTimeout) {
		return nil, oops.Code("BOLT_LOCKED").With("path", path).Wrap(err)
	}
	if err != nil {
		return nil, oops.Code("BOLT_OPEN_FAILED").With("path", path).Wrap(err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketUsers, bucketEmails, bucketUsernames} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, oops.Code("BOLT_OPEN_FAILED").With("path", path).With("operation", "create buckets").Wrap(err)
	}
	return &UserRepository{db: db}, nil
}

// Close releases the file lock.
func (r *UserRepository) Close() error {
	return r.db.Close()
}

// Ping opens a read transaction.
func (r *UserRepository) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.db.View(func(tx *bbolt.Tx) error {
		if tx.Bucket(bucketUsers) == nil {
			return oops.Code("BOLT_BUCKET_MISSING").Errorf("users bucket not found")
		}
		return nil
	})
}

// Create stores a new user.
func (r *UserRepository) Create(ctx context.Context, user *auth.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(toRecord(user))
	if err != nil {
		return oops.Code("USER_CREATE_FAILED").With("operation", "encode").Wrap(err)
	}

	id := user.ID.Bytes()
	return r.db.Update(func(tx *bbolt.Tx) error {
		emails := tx.Bucket(bucketEmails)
		if emails.Get([]byte(user.Email)) != nil {
			return oops.Code("USER_CREATE_FAILED").With("reason", "duplicate email").Wrap(auth.ErrEmailTaken)
		}
		usernames := tx.Bucket(bucketUsernames)
		if user.Username != nil && usernames.Get([]byte(*user.Username)) != nil {
			return oops.Code("USER_CREATE_FAILED").With("reason", "duplicate username").Wrap(auth.ErrUsernameTaken)
		}

		if err := tx.Bucket(bucketUsers).Put(id, data); err != nil {
			return oops.Code("USER_CREATE_FAILED").Wrap(err)
		}
		if err := emails.Put([]byte(user.Email), id); err != nil {
			return oops.Code("USER_CREATE_FAILED").Wrap(err)
		}
		if user.Username != nil {
			if err := usernames.Put([]byte(*user.Username), id); err != nil {
				return oops.Code("USER_CREATE_FAILED").Wrap(err)
			}
		}
		return nil
	})
}

// GetByID retrieves a user by ID.
func (r *UserRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var user *auth.User
	err := r.db.View(func(tx *bbolt.Tx) error {
		var err error
		user, err = load(tx, id.Bytes())
		return err
	})
	if err != nil {
		return nil, oops.With("id", id.String()).Wrap(err)
	}
	return user, nil
}

// GetByEmail retrieves a user by exact email.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*auth.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var user *auth.User
	err := r.db.View(func(tx *bbolt.Tx) error {
		id := tx.Bucket(bucketEmails).Get([]byte(email))
		if id == nil {
			return oops.Code("USER_NOT_FOUND").Wrap(auth.ErrNotFound)
		}
		var err error
		user, err = load(tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// SetRefreshTokenHash overwrites the stored refresh token hash.
func (r *UserRepository) SetRefreshTokenHash(ctx context.Context, id ulid.ULID, hash string, updatedAt time.Time) error {
	return r.update(ctx, id, func(rec *record) error {
		rec.RefreshTokenHash = hash
		rec.UpdatedAt = updatedAt.UTC()
		return nil
	})
}

// RotateRefreshTokenHash swaps current for next inside one write transaction.
func (r *UserRepository) RotateRefreshTokenHash(ctx context.Context, id ulid.ULID, current, next string, updatedAt time.Time) error {
	return r.update(ctx, id, func(rec *record) error {
		if current == "" || rec.RefreshTokenHash != current {
			return oops.Code("USER_REFRESH_STALE").With("id", id.String()).Wrap(auth.ErrRefreshTokenStale)
		}
		rec.RefreshTokenHash = next
		rec.UpdatedAt = updatedAt.UTC()
		return nil
	})
}

func (r *UserRepository) update(ctx context.Context, id ulid.ULID, fn func(rec *record) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key := id.Bytes()
	return r.db.Update(func(tx *bbolt.Tx) error {
		users := tx.Bucket(bucketUsers)
		data := users.Get(key)
		if data == nil {
			return oops.Code("USER_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrNotFound)
		}

		var rec record
		if err := json.Unmarshal(data, &rec); err != nil {
			return oops.Code("USER_DECODE_FAILED").With("id", id.String()).Wrap(err)
		}
		if err := fn(&rec); err != nil {
			return err
		}

		out, err := json.Marshal(&rec)
		if err != nil {
			return oops.Code("USER_UPDATE_FAILED").With("id", id.String()).Wrap(err)
		}
		return users.Put(key, out)
	})
}

// load decodes the user stored under key. The returned value does not alias
// bbolt's memory-mapped page.
func load(tx *bbolt.Tx, key []byte) (*auth.User, error) {
	data := tx.Bucket(bucketUsers).Get(key)
	if data == nil {
		return nil, oops.Code("USER_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, oops.Code("USER_DECODE_FAILED").Wrap(err)
	}
	return rec.toUser()
}

func toRecord(u *auth.User) *record {
	return &record{
		ID:               u.ID.String(),
		Email:            u.Email,
		Username:         u.Username,
		PasswordHash:     u.PasswordHash,
		RefreshTokenHash: u.RefreshTokenHash,
		CreatedAt:        u.CreatedAt.UTC(),
		UpdatedAt:        u.UpdatedAt.UTC(),
	}
}

func (rec *record) toUser() (*auth.User, error) {
	id, err := ulid.Parse(rec.ID)
	if err != nil {
		return nil, oops.Code("USER_DECODE_FAILED").With("id", rec.ID).Wrap(err)
	}
	return &auth.User{
		ID:               id,
		Email:            rec.Email,
		Username:         rec.Username,
		PasswordHash:     rec.PasswordHash,
		RefreshTokenHash: rec.RefreshTokenHash,
		CreatedAt:        rec.CreatedAt,
		UpdatedAt:        rec.UpdatedAt,
	}, nil
}

var _ auth.UserRepository = (*UserRepository)(nil)
