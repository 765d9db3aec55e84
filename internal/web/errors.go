// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 identityd Contributors

package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/identityd/identityd/internal/auth"
	"github.com/identityd/identityd/pkg/errutil"
)

// Error codes raised by the transport itself.
const (
	CodeRequestInvalid  = "REQUEST_INVALID"
	CodeRequestTooLarge = "REQUEST_TOO_LARGE"
)

const msgInternal = "internal server error"

// publicError is what a client learns about a failure.
type publicError struct {
	status  int
	message string
}

// errorTable maps error codes to responses. Codes not listed are reported
// as internal errors.
var errorTable = map[string]publicError{
	auth.CodeEmailTaken:         {http.StatusConflict, auth.MsgEmailTaken},
	auth.CodeUsernameTaken:      {http.StatusConflict, auth.MsgUsernameTaken},
	auth.CodeInvalidCredentials: {http.StatusUnauthorized, auth.MsgInvalidCredentials},
	auth.CodeInvalidToken:       {http.StatusUnauthorized, auth.MsgInvalidToken},
	auth.CodeUnauthenticated:    {http.StatusUnauthorized, "authentication required"},
	auth.CodeValidationFailed:   {http.StatusBadRequest, "request validation failed"},
	CodeRequestInvalid:          {http.StatusBadRequest, "request body is invalid"},
	CodeRequestTooLarge:         {http.StatusRequestEntityTooLarge, "request body is too large"},
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string           `json:"code"`
	Message string           `json:"message"`
	Fields  auth.FieldErrors `json:"fields,omitempty"`
}

func writeJSON(ctx context.Context, logger *slog.Logger, w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.DebugContext(ctx, "write response failed", "error", err)
	}
}

// writeError translates err into a status and an error envelope. Internal
// failures are logged and replaced by a generic message.
func writeError(ctx context.Context, logger *slog.Logger, w http.ResponseWriter, err error) {
	code := errutil.Code(err)
	pub, known := errorTable[code]
	if !known {
		errutil.LogErrorContext(ctx, logger, "request failed", err)
		writeJSON(ctx, logger, w, http.StatusInternalServerError, errorBody{
			Error: errorDetail{Code: auth.CodeInternal, Message: msgInternal},
		})
		return
	}

	detail := errorDetail{Code: code, Message: pub.message}
	if code == auth.CodeValidationFailed {
		detail.Fields = auth.FieldErrorsOf(err)
	}
	writeJSON(ctx, logger, w, pub.status, errorBody{Error: detail})
}

