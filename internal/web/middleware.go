// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 identityd Contributors

package web

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/identityd/identityd/internal/logging"
)

// RequestIDHeader carries the request ID in both directions.
const RequestIDHeader = "X-Request-ID"

// maxRequestIDLength bounds a client-supplied request ID.
const maxRequestIDLength = 128

// unmatchedRoute labels requests that no route matched.
const unmatchedRoute = "unmatched"

// RequestObserver records served requests.
type RequestObserver interface {
	ObserveHTTPRequest(route, method string, status int, elapsed time.Duration)
}

// withRequestID reuses the caller's X-Request-ID or assigns a new one, and
// stores it in the request context for logging.
func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" || len(id) > maxRequestIDLength {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(logging.WithRequestID(r.Context(), id)))
	})
}

// withRecovery turns a panic into a 500.
func withRecovery(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				if v == http.ErrAbortHandler {
					panic(v)
				}
				logger.ErrorContext(r.Context(), "handler panic",
					"panic", fmt.Sprint(v),
					"method", r.Method,
					"path", r.URL.Path)
				writeError(r.Context(), logger, w, fmt.Errorf("panic: %v", v))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the status written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	if s.status == 0 {
		s.status = status
	}
	s.ResponseWriter.WriteHeader(status)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	return s.ResponseWriter.Write(b) //nolint:wrapcheck // pass-through writer
}

func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

// observe logs each request and reports it to the observer. It must wrap the
// ServeMux's request directly so that the matched pattern is visible.
func (h *Handler) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}

		next.ServeHTTP(rec, r)

		elapsed := time.Since(start)
		status := rec.status
		if status == 0 {
			status = http.StatusOK
		}
		route := r.Pattern
		if route == "" {
			route = unmatchedRoute
		}

		h.logger.InfoContext(r.Context(), "http request",
			"method", r.Method,
			"route", route,
			"path", r.URL.Path,
			"status", status,
			"duration_ms", elapsed.Milliseconds())
		if h.observer != nil {
			h.observer.ObserveHTTPRequest(route, r.Method, status, elapsed)
		}
	})
}
