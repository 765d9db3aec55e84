// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 identityd Contributors

package web

import (
	"net/http"
	"time"
)

// RefreshCookieName is the cookie that carries the refresh token.
const RefreshCookieName = "refreshToken"

// CookieConfig controls the refresh token cookie.
type CookieConfig struct {
	// Secure restricts the cookie to HTTPS. Enable it in production.
	Secure bool
	// MaxAge should match the refresh token lifetime.
	MaxAge time.Duration
}

func (c CookieConfig) set(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(c.MaxAge / time.Second),
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteStrictMode,
	})
}

// clear tells the client to drop the cookie.
func (c CookieConfig) clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteStrictMode,
	})
}
