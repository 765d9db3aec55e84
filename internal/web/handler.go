// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 identityd Contributors

package web

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/samber/oops"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/identityd/identityd/internal/auth"
)

// AuthService is the part of auth.Service the routes drive.
type AuthService interface {
	Register(ctx context.Context, in auth.RegisterInput) (*auth.AuthResult, error)
	LoginWithValidatedUser(ctx context.Context, user *auth.User) (*auth.AuthResult, error)
	RefreshTokens(ctx context.Context, userID, presented string) (*auth.AuthResult, error)
	Logout(ctx context.Context, userID string) error
}

// Config holds the collaborators of a Handler.
type Config struct {
	Service     AuthService
	Credentials auth.CredentialVerifier
	Tokens      auth.TokenVerifier
	Cookie      CookieConfig
	// Observer, when set, receives one observation per request.
	Observer RequestObserver
	Logger   *slog.Logger
}

// Handler serves the /auth routes.
type Handler struct {
	service     AuthService
	credentials auth.CredentialVerifier
	tokens      auth.TokenVerifier
	cookie      CookieConfig
	observer    RequestObserver
	logger      *slog.Logger
	mux         *http.ServeMux
	chain       http.Handler
}

// authResponse is returned by every route that opens a session. The refresh
// token travels only in the cookie.
type authResponse struct {
	AccessToken string          `json:"accessToken"`
	User        auth.PublicUser `json:"user"`
}

type messageResponse struct {
	Message string `json:"message"`
}

// NewHandler builds the route table.
func NewHandler(cfg Config) (*Handler, error) {
	if cfg.Service == nil {
		return nil, oops.Code("WEB_CONFIG").Errorf("auth service is required")
	}
	if cfg.Credentials == nil {
		return nil, oops.Code("WEB_CONFIG").Errorf("credential verifier is required")
	}
	if cfg.Tokens == nil {
		return nil, oops.Code("WEB_CONFIG").Errorf("token verifier is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	h := &Handler{
		service:     cfg.Service,
		credentials: cfg.Credentials,
		tokens:      cfg.Tokens,
		cookie:      cfg.Cookie,
		observer:    cfg.Observer,
		logger:      logger,
		mux:         http.NewServeMux(),
	}

	h.mux.HandleFunc("POST /auth/register", h.register)
	h.mux.HandleFunc("POST /auth/login", h.requireCredentials(h.login))
	h.mux.HandleFunc("POST /auth/refresh", h.requireRefreshToken(h.refresh))
	h.mux.HandleFunc("POST /auth/logout", h.requireAccessToken(h.logout))
	h.mux.HandleFunc("GET /auth/me", h.requireAccessToken(h.me))

	h.chain = otelhttp.NewHandler(
		withRequestID(h.observe(withRecovery(logger, h.mux))),
		"identityd.http",
	)
	return h, nil
}

// ServeHTTP runs the middleware chain and the routes.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.chain.ServeHTTP(w, r)
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req registerRequest
	if err := decodeBody(w, r, registerSchema, &req); err != nil {
		h.writeError(ctx, w, err)
		return
	}

	result, err := h.service.Register(ctx, auth.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		Username: req.Username,
	})
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}

	h.cookie.set(w, result.RefreshToken)
	h.writeJSON(ctx, w, http.StatusCreated, authResponse{AccessToken: result.AccessToken, User: result.User})
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	result, err := h.service.LoginWithValidatedUser(ctx, validatedUserFrom(ctx))
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}

	h.cookie.set(w, result.RefreshToken)
	h.writeJSON(ctx, w, http.StatusOK, authResponse{AccessToken: result.AccessToken, User: result.User})
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	grant, ok := refreshGrantFrom(ctx)
	if !ok {
		h.writeError(ctx, w, oops.Code(auth.CodeUnauthenticated).New("refresh token missing"))
		return
	}

	result, err := h.service.RefreshTokens(ctx, grant.subject, grant.token)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}

	h.cookie.set(w, result.RefreshToken)
	h.writeJSON(ctx, w, http.StatusOK, authResponse{AccessToken: result.AccessToken, User: result.User})
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	principal, ok := PrincipalFrom(ctx)
	if !ok {
		h.writeError(ctx, w, oops.Code(auth.CodeUnauthenticated).New("no principal"))
		return
	}

	if err := h.service.Logout(ctx, principal.ID); err != nil {
		h.writeError(ctx, w, err)
		return
	}

	h.cookie.clear(w)
	h.writeJSON(ctx, w, http.StatusOK, messageResponse{Message: "logged out"})
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	principal, ok := PrincipalFrom(ctx)
	if !ok {
		h.writeError(ctx, w, oops.Code(auth.CodeUnauthenticated).New("no principal"))
		return
	}
	h.writeJSON(ctx, w, http.StatusOK, principal)
}

func (h *Handler) writeJSON(ctx context.Context, w http.ResponseWriter, status int, data any) {
	writeJSON(ctx, h.logger, w, status, data)
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, err error) {
	writeError(ctx, h.logger, w, err)
}
