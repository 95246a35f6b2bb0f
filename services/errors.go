package services

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Shared errors used across services and in HTTP mapping.
var (
	ErrNotFound = errors.New("requested resource not found")

	ErrValidationFailed = errors.New("validation failed")

	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrForbiddenOperation   = errors.New("operation not allowed for the current user")
	ErrNotInGuild           = errors.New("user is not a member of the club server")
	ErrOAuthStateMismatch   = errors.New("oauth state mismatch")

	ErrMemberNotFound       = errors.New("member not found")
	ErrNotLinked            = errors.New("member has no linked concept2 account")
	ErrCredentialUnreadable = errors.New("stored concept2 credential cannot be read")
	ErrTokenRefresh         = errors.New("token refresh failed")
	ErrSystemic             = errors.New("leaderboard dependencies unavailable")
	ErrUploaderUnavailable  = errors.New("file storage is not configured")
	ErrSummaryDisabled      = errors.New("weekly summary webhook is not configured")
)

// ValidationError reports a malformed request parameter.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidationFailed }

func newValidationError(field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// TokenRefreshError means the provider refused or never answered a refresh
// grant. The stored credential is left untouched.
type TokenRefreshError struct {
	MemberID uuid.UUID
	Err      error
}

func (e *TokenRefreshError) Error() string {
	return fmt.Sprintf("refresh token for member %s: %v", e.MemberID, e.Err)
}

func (e *TokenRefreshError) Unwrap() []error { return []error{ErrTokenRefresh, e.Err} }

// SystemicError is a failure of the member directory or token store. It
// aborts the whole aggregation rather than skipping one member.
type SystemicError struct {
	Op  string
	Err error
}

func (e *SystemicError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *SystemicError) Unwrap() []error { return []error{ErrSystemic, e.Err} }
