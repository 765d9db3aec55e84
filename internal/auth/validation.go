// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 identityd Contributors

package auth

import (
	"net/mail"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/samber/oops"
)

// Registration input constraints.
const (
	MaxEmailLength    = 255
	MinPasswordLength = 8
	MaxPasswordLength = 100
	MinUsernameLength = 3
	MaxUsernameLength = 30
)

// passwordSpecials are the characters that satisfy the special-character rule.
const passwordSpecials = "@$!%*?&"

var usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// RegisterInput is the data needed to create an account.
type RegisterInput struct {
	Email    string
	Password string
	Username *string
}

// FieldErrors maps an input field name to a client-facing message.
type FieldErrors map[string]string

// ValidateRegistration checks every field of in and reports all failures
// at once under the "fields" context key.
func ValidateRegistration(in RegisterInput) error {
	fields := FieldErrors{}
	if msg := ValidateEmail(in.Email); msg != "" {
		fields["email"] = msg
	}
	if msg := ValidatePassword(in.Password); msg != "" {
		fields["password"] = msg
	}
	if in.Username != nil {
		if msg := ValidateUsername(*in.Username); msg != "" {
			fields["username"] = msg
		}
	}
	if len(fields) == 0 {
		return nil
	}
	return oops.Code(CodeValidationFailed).
		With("fields", fields).
		Errorf("registration input is invalid")
}

// FieldErrorsOf returns the per-field messages carried by a validation
// error, or nil.
func FieldErrorsOf(err error) FieldErrors {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return nil
	}
	fields, _ := oopsErr.Context()["fields"].(FieldErrors)
	return fields
}

// ValidateEmail returns a message describing why email is unacceptable, or
// "" if it is valid.
func ValidateEmail(email string) string {
	if email == "" {
		return "email is required"
	}
	if len(email) > MaxEmailLength {
		return "email must be at most 255 characters"
	}
	// ParseAddress accepts display names and dotless domains; neither is an
	// address we can mail.
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "email must be a valid address"
	}
	domain := email[strings.LastIndex(email, "@")+1:]
	if !strings.Contains(domain, ".") {
		return "email must be a valid address"
	}
	return ""
}

// ValidatePassword returns a message describing why password is
// unacceptable, or "" if it is valid.
func ValidatePassword(password string) string {
	n := utf8.RuneCountInString(password)
	if n < MinPasswordLength {
		return "password must be at least 8 characters"
	}
	if n > MaxPasswordLength {
		return "password must be at most 100 characters"
	}
	// A hash-shaped password would be stored as its own hash on create.
	if NewBcryptHasher().IsHash(password) {
		return "password must not be a password hash"
	}

	var lower, upper, digit, special bool
	for _, r := range password {
		switch {
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		case strings.ContainsRune(passwordSpecials, r):
			special = true
		}
	}
	if !lower || !upper || !digit || !special {
		return "password must contain uppercase and lowercase letters, a number and one of @$!%*?&"
	}
	return ""
}

// ValidateUsername returns a message describing why username is
// unacceptable, or "" if it is valid.
func ValidateUsername(username string) string {
	n := utf8.RuneCountInString(username)
	if n < MinUsernameLength || n > MaxUsernameLength {
		return "username must be between 3 and 30 characters"
	}
	if !usernameRegex.MatchString(username) {
		return "username may only contain letters, numbers, underscores and hyphens"
	}
	return ""
}
