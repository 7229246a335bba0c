// Package apperr defines the error kinds surfaced by the licensing API and
// their mapping to HTTP status codes.
package apperr

import (
	"errors"
	"net/http"
)

// Kind classifies an error for the response envelope
type Kind string

const (
	KindUnauthenticated     Kind = "Unauthenticated"
	KindInvalidSession      Kind = "InvalidSession"
	KindSessionExpired      Kind = "SessionExpired"
	KindInvalidCredentials  Kind = "InvalidCredentials"
	KindValidation          Kind = "ValidationError"
	KindNotFound            Kind = "NotFound"
	KindUnknownAction       Kind = "UnknownAction"
	KindLicenseInactive     Kind = "LicenseInactive"
	KindLicenseExpired      Kind = "LicenseExpired"
	KindDeviceLimitExceeded Kind = "DeviceLimitExceeded"
	KindStore               Kind = "StoreError"
)

// Error is an error with a kind and a user-facing message
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Message == "" {
		return e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error of the same kind, so errors.Is(err, apperr.New(kind, "")) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Message == "" || t.Message == e.Message)
}

// New creates an error of the given kind
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates an error of the given kind around a cause
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Store wraps an underlying data-store failure, keeping its message
func Store(err error) *Error {
	return &Error{Kind: KindStore, Message: err.Error(), Err: err}
}

func Validation(message string) *Error { return New(KindValidation, message) }

func NotFound(message string) *Error { return New(KindNotFound, message) }

// KindOf returns the kind of err; errors without a kind are store errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindStore
}

// Message returns the user-facing message of err
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Error()
	}
	return err.Error()
}

// StatusCode maps a kind to an HTTP status
func StatusCode(kind Kind) int {
	switch kind {
	case KindUnauthenticated, KindInvalidSession, KindSessionExpired, KindInvalidCredentials:
		return http.StatusUnauthorized
	case KindValidation, KindUnknownAction:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindLicenseInactive, KindLicenseExpired, KindDeviceLimitExceeded:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
