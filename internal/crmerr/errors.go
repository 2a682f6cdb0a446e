// Package crmerr defines the error taxonomy shared by conversation flows:
// validation failures recovered in place, authentication failures that
// rewind a sub-flow, and gateway failures surfaced to the user.
package crmerr

import (
	"errors"
	"fmt"
)

// AuthKind classifies authentication failures.
type AuthKind string

const (
	// AuthBadCredentials marks an invalid email/password sign-in attempt.
	AuthBadCredentials AuthKind = "bad_credentials"
	// AuthDuplicateEmail marks a registration attempt with an email already on file.
	AuthDuplicateEmail AuthKind = "duplicate_email"
	// AuthInvalidToken marks an invalid or expired recovery token.
	AuthInvalidToken AuthKind = "invalid_token"
)

// ValidationError reports malformed user input. It is always recovered
// locally by re-prompting the same step.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// Code returns a stable identifier for log derivation.
func (e *ValidationError) Code() string { return "VALIDATION" }

// NewValidation builds a ValidationError with a formatted message.
func NewValidation(format string, args ...any) *ValidationError {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// AuthError reports a failure from the authentication service.
type AuthError struct {
	Kind AuthKind
	Msg  string
	Err  error
}

func (e *AuthError) Error() string {
	if e.Msg != "" {
		return e.Msg
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Kind)
}

func (e *AuthError) Unwrap() error { return e.Err }

// Code returns a stable identifier for log derivation.
func (e *AuthError) Code() string { return "AUTH_" + string(e.Kind) }

// GatewayError reports a failed remote data store call, either a transport
// failure or a result-level error field returned by the store.
type GatewayError struct {
	Op    string
	Table string
	Msg   string
	Err   error
}

func (e *GatewayError) Error() string {
	base := fmt.Sprintf("gateway %s %s", e.Op, e.Table)
	if e.Msg != "" {
		return base + ": " + e.Msg
	}
	if e.Err != nil {
		return base + ": " + e.Err.Error()
	}
	return base
}

func (e *GatewayError) Unwrap() error { return e.Err }

// Code returns a stable identifier for log derivation.
func (e *GatewayError) Code() string { return "GATEWAY" }

// IsDuplicateEmail reports whether err is an AuthError for an email already registered.
func IsDuplicateEmail(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae) && ae.Kind == AuthDuplicateEmail
}

// IsAuthKind reports whether err is an AuthError of the given kind.
func IsAuthKind(err error, kind AuthKind) bool {
	var ae *AuthError
	return errors.As(err, &ae) && ae.Kind == kind
}
