// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 identityd Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/identityd/identityd/internal/auth"

// Operation names reported to an OperationRecorder.
const (
	OpRegister = "register"
	OpLogin    = "login"
	OpRefresh  = "refresh"
	OpLogout   = "logout"
)

// Operation outcomes reported to an OperationRecorder.
const (
	OutcomeSuccess  = "success"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

// OperationRecorder receives one call per completed service operation.
type OperationRecorder interface {
	RecordAuthOperation(operation, outcome string)
}

// AuthResult is returned by every operation that establishes a session.
type AuthResult struct {
	AccessToken  string
	RefreshToken string
	User         PublicUser
}

// dummyPasswordHash is verified against when the email is unknown so that
// unknown accounts cost the same bcrypt work as wrong passwords.
//
//nolint:gosec // G101: not a credential, matches no password.
const dummyPasswordHash = "$2a$12$tOcDDf2U.3uOShIVMqxGzU8857BNMcQnTpjl34aS6FoauoYtUaWzK"

// Service provides registration, login, token refresh and logout.
type Service struct {
	users    UserRepository
	hasher   SecretHasher
	tokens   *TokenIssuer
	logger   *slog.Logger
	recorder OperationRecorder
	tracer   trace.Tracer
}

// Option configures optional Service collaborators.
type Option func(*Service)

// WithRecorder reports operation outcomes to r.
func WithRecorder(r OperationRecorder) Option {
	return func(s *Service) {
		s.recorder = r
	}
}

// NewService creates a new Service that logs to slog.Default.
func NewService(users UserRepository, hasher SecretHasher, tokens *TokenIssuer, opts ...Option) (*Service, error) {
	return NewServiceWithLogger(users, hasher, tokens, slog.Default(), opts...)
}

// NewServiceWithLogger creates a new Service with an explicit logger.
func NewServiceWithLogger(
	users UserRepository,
	hasher SecretHasher,
	tokens *TokenIssuer,
	logger *slog.Logger,
	opts ...Option,
) (*Service, error) {
	if users == nil {
		return nil, oops.Code("AUTH_SERVICE_CONFIG").Errorf("users repository is required")
	}
	if hasher == nil {
		return nil, oops.Code("AUTH_SERVICE_CONFIG").Errorf("secret hasher is required")
	}
	if tokens == nil {
		return nil, oops.Code("AUTH_SERVICE_CONFIG").Errorf("token issuer is required")
	}
	if logger == nil {
		return nil, oops.Code("AUTH_SERVICE_CONFIG").Errorf("logger is required")
	}

	s := &Service{
		users:  users,
		hasher: hasher,
		tokens: tokens,
		logger: logger,
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Register creates an account and opens its first session.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	ctx, span := s.tracer.Start(ctx, "auth.Register")
	defer span.End()

	if err := ValidateRegistration(in); err != nil {
		s.record(OpRegister, OutcomeRejected)
		return nil, err
	}

	_, err := s.users.GetByEmail(ctx, in.Email)
	switch {
	case err == nil:
		s.record(OpRegister, OutcomeRejected)
		return nil, oops.Code(CodeEmailTaken).New(MsgEmailTaken)
	case !errors.Is(err, ErrNotFound):
		return nil, s.fail(span, OpRegister, "get user by email", err)
	}

	user, err := NewUser(in.Email, in.Password, in.Username)
	if err != nil {
		return nil, s.fail(span, OpRegister, "new user", err)
	}
	if err := user.HashPasswordBeforeCreate(s.hasher); err != nil {
		return nil, s.fail(span, OpRegister, "hash password", err)
	}

	if err := s.users.Create(ctx, user); err != nil {
		switch {
		case errors.Is(err, ErrEmailTaken):
			s.record(OpRegister, OutcomeRejected)
			return nil, oops.Code(CodeEmailTaken).New(MsgEmailTaken)
		case errors.Is(err, ErrUsernameTaken):
			s.record(OpRegister, OutcomeRejected)
			return nil, oops.Code(CodeUsernameTaken).New(MsgUsernameTaken)
		default:
			return nil, s.fail(span, OpRegister, "create user", err)
		}
	}
	span.SetAttributes(attribute.String("user.id", user.ID.String()))

	result, err := s.openSession(ctx, user)
	if err != nil {
		return nil, s.fail(span, OpRegister, "open session", err)
	}
	s.logger.InfoContext(ctx, "user registered", "user_id", user.ID.String())
	s.record(OpRegister, OutcomeSuccess)
	return result, nil
}

// Login checks credentials and opens a new session, invalidating any
// previous refresh token. Unknown emails and wrong passwords produce the
// same error.
func (s *Service) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	ctx, span := s.tracer.Start(ctx, "auth.Login")
	defer span.End()

	user, err := s.ValidateUser(ctx, email, password)
	if err != nil {
		return nil, s.fail(span, OpLogin, "validate user", err)
	}
	if user == nil {
		s.logger.InfoContext(ctx, "login rejected", "operation", OpLogin)
		s.record(OpLogin, OutcomeRejected)
		return nil, oops.Code(CodeInvalidCredentials).New(MsgInvalidCredentials)
	}

	result, err := s.openSession(ctx, user)
	if err != nil {
		return nil, s.fail(span, OpLogin, "open session", err)
	}
	s.record(OpLogin, OutcomeSuccess)
	return result, nil
}

// LoginWithValidatedUser opens a session for a user whose credentials were
// already checked by a CredentialVerifier.
func (s *Service) LoginWithValidatedUser(ctx context.Context, user *User) (*AuthResult, error) {
	ctx, span := s.tracer.Start(ctx, "auth.LoginWithValidatedUser")
	defer span.End()

	if user == nil {
		s.record(OpLogin, OutcomeRejected)
		return nil, oops.Code(CodeInvalidCredentials).New(MsgInvalidCredentials)
	}

	result, err := s.openSession(ctx, user)
	if err != nil {
		return nil, s.fail(span, OpLogin, "open session", err)
	}
	s.record(OpLogin, OutcomeSuccess)
	return result, nil
}

// RefreshTokens exchanges the current refresh token for a new pair. The
// presented token is single use: once rotated it never verifies again.
func (s *Service) RefreshTokens(ctx context.Context, userID, presented string) (*AuthResult, error) {
	ctx, span := s.tracer.Start(ctx, "auth.RefreshTokens")
	defer span.End()

	id, err := ulid.Parse(userID)
	if err != nil {
		return nil, s.rejectRefresh(ctx, userID, "malformed subject")
	}

	user, err := s.users.GetByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, s.rejectRefresh(ctx, userID, "unknown user")
	}
	if err != nil {
		return nil, s.fail(span, OpRefresh, "get user by id", err)
	}

	if !user.HasSession() {
		return nil, s.rejectRefresh(ctx, userID, "no active session")
	}
	if !user.ValidateRefreshToken(s.hasher, presented) {
		return nil, s.rejectRefresh(ctx, userID, "token does not match current session")
	}

	current := user.RefreshTokenHash
	pair, err := s.tokens.IssuePair(user.ID.String(), user.Email)
	if err != nil {
		return nil, s.fail(span, OpRefresh, "issue tokens", err)
	}
	if err := user.SetRefreshToken(s.hasher, pair.RefreshToken); err != nil {
		return nil, s.fail(span, OpRefresh, "set refresh token", err)
	}

	err = s.users.RotateRefreshTokenHash(ctx, user.ID, current, user.RefreshTokenHash, user.UpdatedAt)
	switch {
	case errors.Is(err, ErrRefreshTokenStale), errors.Is(err, ErrNotFound):
		return nil, s.rejectRefresh(ctx, userID, "session changed during rotation")
	case err != nil:
		return nil, s.fail(span, OpRefresh, "rotate refresh token", err)
	}

	s.record(OpRefresh, OutcomeSuccess)
	return newAuthResult(user, pair), nil
}

// Logout ends the user's session. Unknown users and users without a
// session are not an error.
func (s *Service) Logout(ctx context.Context, userID string) error {
	ctx, span := s.tracer.Start(ctx, "auth.Logout")
	defer span.End()

	id, err := ulid.Parse(userID)
	if err != nil {
		s.record(OpLogout, OutcomeSuccess)
		return nil
	}

	user, err := s.users.GetByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		s.record(OpLogout, OutcomeSuccess)
		return nil
	}
	if err != nil {
		return s.fail(span, OpLogout, "get user by id", err)
	}

	user.RemoveRefreshToken()
	err = s.users.SetRefreshTokenHash(ctx, user.ID, user.RefreshTokenHash, user.UpdatedAt)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return s.fail(span, OpLogout, "clear refresh token", err)
	}

	s.record(OpLogout, OutcomeSuccess)
	return nil
}

// ValidateUser returns the user matching email and password, or nil if
// either is wrong. An error is returned only when the lookup itself fails.
func (s *Service) ValidateUser(ctx context.Context, email, password string) (*User, error) {
	if email == "" || password == "" {
		return nil, nil
	}

	user, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		s.hasher.Verify(password, dummyPasswordHash)
		return nil, nil
	}
	if err != nil {
		return nil, oops.Code(CodeInternal).
			With("operation", "get user by email").
			Wrap(err)
	}

	if !user.ValidatePassword(s.hasher, password) {
		return nil, nil
	}
	return user, nil
}

// GetUserByID returns the user with the given ID, or nil if there is none.
func (s *Service) GetUserByID(ctx context.Context, userID string) (*User, error) {
	id, err := ulid.Parse(userID)
	if err != nil {
		return nil, nil
	}

	user, err := s.users.GetByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, oops.Code(CodeInternal).
			With("operation", "get user by id").
			Wrap(err)
	}
	return user, nil
}

// VerifyAccessToken implements TokenVerifier.
func (s *Service) VerifyAccessToken(ctx context.Context, token string) (*Principal, error) {
	claims, err := s.tokens.ParseAccessToken(token)
	if err != nil {
		return nil, err
	}

	user, err := s.GetUserByID(ctx, claims.Subject)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, oops.Code(CodeInvalidToken).
			With("reason", "subject not found").
			New(MsgInvalidToken)
	}
	return &Principal{ID: user.ID.String(), Email: user.Email}, nil
}

// VerifyRefreshToken implements TokenVerifier.
func (s *Service) VerifyRefreshToken(_ context.Context, token string) (*TokenClaims, error) {
	return s.tokens.ParseRefreshToken(token)
}

// openSession issues a token pair and overwrites the stored refresh hash.
func (s *Service) openSession(ctx context.Context, user *User) (*AuthResult, error) {
	pair, err := s.tokens.IssuePair(user.ID.String(), user.Email)
	if err != nil {
		return nil, err
	}
	if err := user.SetRefreshToken(s.hasher, pair.RefreshToken); err != nil {
		return nil, err
	}
	if err := s.users.SetRefreshTokenHash(ctx, user.ID, user.RefreshTokenHash, user.UpdatedAt); err != nil {
		return nil, err
	}
	return newAuthResult(user, pair), nil
}

func (s *Service) rejectRefresh(ctx context.Context, userID, reason string) error {
	s.logger.WarnContext(ctx, "refresh rejected",
		"operation", OpRefresh,
		"user_id", userID,
		"reason", reason)
	s.record(OpRefresh, OutcomeRejected)
	return oops.Code(CodeInvalidToken).
		With("reason", reason).
		New(MsgInvalidToken)
}

// fail records an unexpected failure and wraps it as an internal error.
func (s *Service) fail(span trace.Span, op, step string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, step)
	s.record(op, OutcomeError)
	return oops.Code(CodeInternal).
		With("operation", op).
		With("step", step).
		Wrap(err)
}

func (s *Service) record(op, outcome string) {
	if s.recorder != nil {
		s.recorder.RecordAuthOperation(op, outcome)
	}
}

func newAuthResult(user *User, pair TokenPair) *AuthResult {
	return &AuthResult{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		User:         user.Public(),
	}
}
