// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 identityd Contributors

package web

import (
	"context"
	"net/http"
	"strings"

	"github.com/samber/oops"

	"github.com/identityd/identityd/internal/auth"
)

type (
	principalKey     struct{}
	validatedUserKey struct{}
	refreshKey       struct{}
)

// refreshGrant is a refresh token whose signature and expiry have been
// checked, along with the subject it names.
type refreshGrant struct {
	subject string
	token   string
}

// PrincipalFrom returns the principal stored by the access token guard.
func PrincipalFrom(ctx context.Context) (*auth.Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(*auth.Principal)
	return p, ok && p != nil
}

func validatedUserFrom(ctx context.Context) *auth.User {
	u, _ := ctx.Value(validatedUserKey{}).(*auth.User)
	return u
}

func refreshGrantFrom(ctx context.Context) (refreshGrant, bool) {
	g, ok := ctx.Value(refreshKey{}).(refreshGrant)
	return g, ok
}

// requireCredentials checks the email and password in the body before the
// login handler runs. Any failure, including a missing field, is a 401.
func (h *Handler) requireCredentials(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		invalid := oops.Code(auth.CodeInvalidCredentials).New(auth.MsgInvalidCredentials)

		var req loginRequest
		if err := decodeBody(w, r, loginSchema, &req); err != nil {
			h.logger.DebugContext(ctx, "login body rejected", "error", err)
			h.writeError(ctx, w, invalid)
			return
		}

		user, err := h.credentials.ValidateUser(ctx, req.Email, req.Password)
		if err != nil {
			h.writeError(ctx, w, err)
			return
		}
		if user == nil {
			h.logger.InfoContext(ctx, "login rejected", "operation", auth.OpLogin)
			h.writeError(ctx, w, invalid)
			return
		}

		next(w, r.WithContext(context.WithValue(ctx, validatedUserKey{}, user)))
	}
}

// requireRefreshToken checks the refresh cookie's signature and expiry.
// Whether it is the subject's current token is decided by the service.
func (h *Handler) requireRefreshToken(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		cookie, err := r.Cookie(RefreshCookieName)
		if err != nil || cookie.Value == "" {
			h.writeError(ctx, w, oops.Code(auth.CodeUnauthenticated).New("refresh token missing"))
			return
		}

		claims, err := h.tokens.VerifyRefreshToken(ctx, cookie.Value)
		if err != nil {
			h.logger.InfoContext(ctx, "refresh token rejected",
				"operation", auth.OpRefresh,
				"reason", oopsReason(err))
			h.writeError(ctx, w, err)
			return
		}

		grant := refreshGrant{subject: claims.Subject, token: cookie.Value}
		next(w, r.WithContext(context.WithValue(ctx, refreshKey{}, grant)))
	}
}

// requireAccessToken resolves the bearer token to a principal.
func (h *Handler) requireAccessToken(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		token, ok := bearerToken(r)
		if !ok {
			h.writeError(ctx, w, oops.Code(auth.CodeUnauthenticated).New("bearer token missing"))
			return
		}

		principal, err := h.tokens.VerifyAccessToken(ctx, token)
		if err != nil {
			h.writeError(ctx, w, err)
			return
		}

		next(w, r.WithContext(context.WithValue(ctx, principalKey{}, principal)))
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func oopsReason(err error) any {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return nil
	}
	return oopsErr.Context()["reason"]
}
