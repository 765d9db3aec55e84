// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 identityd Contributors

package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Token lifetimes.
const (
	DefaultAccessTokenTTL  = 15 * time.Minute
	DefaultRefreshTokenTTL = 7 * 24 * time.Hour
)

// TokenClaims are the claims carried by both access and refresh tokens.
type TokenClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// TokenPair is a freshly minted access/refresh token pair.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// TokenConfig configures a TokenIssuer.
type TokenConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	// Issuer is written to the iss claim when set.
	Issuer string
}

// TokenIssuer mints and parses signed tokens. Access and refresh tokens are
// signed with different secrets.
type TokenIssuer struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	issuer        string
	now           func() time.Time
}

// NewTokenIssuer validates cfg and creates a TokenIssuer. Zero TTLs take the
// package defaults.
func NewTokenIssuer(cfg TokenConfig) (*TokenIssuer, error) {
	if cfg.AccessSecret == "" {
		return nil, oops.Code("AUTH_TOKEN_CONFIG").Errorf("access token secret is required")
	}
	if cfg.RefreshSecret == "" {
		return nil, oops.Code("AUTH_TOKEN_CONFIG").Errorf("refresh token secret is required")
	}
	if cfg.AccessSecret == cfg.RefreshSecret {
		return nil, oops.Code("AUTH_TOKEN_CONFIG").Errorf("access and refresh token secrets must differ")
	}
	if cfg.AccessTTL < 0 || cfg.RefreshTTL < 0 {
		return nil, oops.Code("AUTH_TOKEN_CONFIG").Errorf("token lifetimes must not be negative")
	}

	ti := &TokenIssuer{
		accessSecret:  []byte(cfg.AccessSecret),
		refreshSecret: []byte(cfg.RefreshSecret),
		accessTTL:     cfg.AccessTTL,
		refreshTTL:    cfg.RefreshTTL,
		issuer:        cfg.Issuer,
		now:           time.Now,
	}
	if ti.accessTTL == 0 {
		ti.accessTTL = DefaultAccessTokenTTL
	}
	if ti.refreshTTL == 0 {
		ti.refreshTTL = DefaultRefreshTokenTTL
	}
	return ti, nil
}

// WithClock returns a copy of ti that reads the current time from now.
func (ti *TokenIssuer) WithClock(now func() time.Time) *TokenIssuer {
	c := *ti
	c.now = now
	return &c
}

// AccessTTL returns the access token lifetime.
func (ti *TokenIssuer) AccessTTL() time.Duration { return ti.accessTTL }

// RefreshTTL returns the refresh token lifetime.
func (ti *TokenIssuer) RefreshTTL() time.Duration { return ti.refreshTTL }

// IssuePair mints an access and a refresh token for the given subject.
func (ti *TokenIssuer) IssuePair(userID, email string) (TokenPair, error) {
	access, err := ti.sign(userID, email, ti.accessSecret, ti.accessTTL)
	if err != nil {
		return TokenPair{}, oops.Code("AUTH_TOKEN_SIGN_FAILED").With("token", "access").Wrap(err)
	}
	refresh, err := ti.sign(userID, email, ti.refreshSecret, ti.refreshTTL)
	if err != nil {
		return TokenPair{}, oops.Code("AUTH_TOKEN_SIGN_FAILED").With("token", "refresh").Wrap(err)
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// ParseAccessToken verifies an access token and returns its claims.
func (ti *TokenIssuer) ParseAccessToken(token string) (*TokenClaims, error) {
	return ti.parse(token, ti.accessSecret)
}

// ParseRefreshToken verifies a refresh token and returns its claims.
func (ti *TokenIssuer) ParseRefreshToken(token string) (*TokenClaims, error) {
	return ti.parse(token, ti.refreshSecret)
}

func (ti *TokenIssuer) sign(userID, email string, secret []byte, ttl time.Duration) (string, error) {
	now := ti.now()
	claims := TokenClaims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        ulid.Make().String(),
			Subject:   userID,
			Issuer:    ti.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

func (ti *TokenIssuer) parse(token string, secret []byte) (*TokenClaims, error) {
	if token == "" {
		return nil, oops.Code(CodeInvalidToken).New(MsgInvalidToken)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(ti.now),
	}
	if ti.issuer != "" {
		opts = append(opts, jwt.WithIssuer(ti.issuer))
	}

	claims := &TokenClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(_ *jwt.Token) (any, error) {
		return secret, nil
	}, opts...)
	if err != nil || !parsed.Valid {
		return nil, oops.Code(CodeInvalidToken).
			With("reason", tokenFailureReason(err)).
			New(MsgInvalidToken)
	}
	if claims.Subject == "" {
		return nil, oops.Code(CodeInvalidToken).With("reason", "missing subject").New(MsgInvalidToken)
	}
	return claims, nil
}

// tokenFailureReason gives a short log-friendly reason for a parse failure.
func tokenFailureReason(err error) string {
	switch {
	case err == nil:
		return "invalid"
	case errors.Is(err, jwt.ErrTokenExpired):
		return "expired"
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return "bad signature"
	case errors.Is(err, jwt.ErrTokenMalformed):
		return "malformed"
	default:
		return "invalid"
	}
}
