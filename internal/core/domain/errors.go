package domain

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Code is a stable failure identifier. Codes appear in responses and logs.
type Code string

const (
	CodeBadInput       Code = "BAD_INPUT"
	CodeBadTarget      Code = "BAD_TARGET"
	CodeInvalidAwardID Code = "INVALID_AWARD_ID"

	CodeNoToken      Code = "NO_TOKEN"
	CodeInvalidToken Code = "INVALID_TOKEN"
	CodeTokenExpired Code = "TOKEN_EXPIRED"
	CodeTokenRevoked Code = "TOKEN_REVOKED"

	CodeTokenReuseDetected Code = "TOKEN_REUSE_DETECTED"
	CodeTokenFamilyRevoked Code = "TOKEN_FAMILY_REVOKED"

	CodeForbidden              Code = "FORBIDDEN"
	CodeSelfModificationDenied Code = "SELF_MODIFICATION_DENIED"

	CodeNotFound Code = "NOT_FOUND"

	CodeAlreadyVoted   Code = "ALREADY_VOTED"
	CodeDuplicateEntry Code = "DUPLICATE_ENTRY"

	CodeBiometricRequired      Code = "BIOMETRIC_REQUIRED"
	CodeBiometricSetupRequired Code = "BIOMETRIC_SETUP_REQUIRED"

	CodeRateLimited Code = "RATE_LIMITED"

	CodeWindowClosed Code = "WINDOW_CLOSED"

	CodeStoreUnavailable   Code = "STORE_UNAVAILABLE"
	CodeCacheUnavailable   Code = "CACHE_UNAVAILABLE"
	CodeServiceUnavailable Code = "SERVICE_UNAVAILABLE"

	CodeInternal Code = "INTERNAL_ERROR"
)

// HTTPStatus returns the status code a failure with this code is served with.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeBadInput, CodeBadTarget, CodeInvalidAwardID, CodeWindowClosed:
		return http.StatusBadRequest
	case CodeNoToken, CodeInvalidToken, CodeTokenExpired, CodeTokenRevoked,
		CodeTokenReuseDetected, CodeTokenFamilyRevoked:
		return http.StatusUnauthorized
	case CodeForbidden, CodeSelfModificationDenied:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeAlreadyVoted, CodeDuplicateEntry:
		return http.StatusConflict
	case CodeBiometricRequired, CodeBiometricSetupRequired:
		return http.StatusPreconditionRequired
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeStoreUnavailable, CodeCacheUnavailable, CodeServiceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Retryable reports whether a caller may repeat the request unchanged.
func (c Code) Retryable() bool {
	switch c {
	case CodeBiometricRequired, CodeBiometricSetupRequired, CodeRateLimited,
		CodeStoreUnavailable, CodeCacheUnavailable, CodeServiceUnavailable, CodeInternal:
		return true
	default:
		return false
	}
}

// Security reports whether the code signals a credential attack. Such
// failures clear the caller's session cookies.
func (c Code) Security() bool {
	return c == CodeTokenReuseDetected || c == CodeTokenFamilyRevoked
}

// Error is the single failure type surfaced by the core.
type Error struct {
	Code       Code
	Message    string
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error carrying the same code, so sentinels below can be
// compared with errors.Is regardless of message or cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewError builds a failure with the given code and message.
func NewError(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WrapError builds a failure that keeps cause in its chain.
func WrapError(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Err: cause}
}

// Unavailable builds a dependency failure with a retry hint.
func Unavailable(code Code, message string, retryAfter time.Duration, cause error) *Error {
	return &Error{Code: code, Message: message, RetryAfter: retryAfter, Err: cause}
}

// CodeOf extracts the failure code of err, INTERNAL_ERROR when err does not
// carry one.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

var (
	ErrBadInput               = NewError(CodeBadInput, "invalid input")
	ErrBadTarget              = NewError(CodeBadTarget, "nominee is not an eligible target in this contest")
	ErrInvalidAwardID         = NewError(CodeInvalidAwardID, "invalid award id")
	ErrNoToken                = NewError(CodeNoToken, "missing credential")
	ErrInvalidToken           = NewError(CodeInvalidToken, "invalid credential")
	ErrTokenExpired           = NewError(CodeTokenExpired, "credential expired")
	ErrTokenRevoked           = NewError(CodeTokenRevoked, "credential revoked")
	ErrTokenReuseDetected     = NewError(CodeTokenReuseDetected, "refresh credential reuse detected")
	ErrTokenFamilyRevoked     = NewError(CodeTokenFamilyRevoked, "credential family revoked")
	ErrForbidden              = NewError(CodeForbidden, "operation not permitted for this role")
	ErrSelfModification       = NewError(CodeSelfModificationDenied, "operators cannot modify their own role")
	ErrNotFound               = NewError(CodeNotFound, "not found")
	ErrAlreadyVoted           = NewError(CodeAlreadyVoted, "voter has already voted in this contest")
	ErrDuplicateEntry         = NewError(CodeDuplicateEntry, "duplicate entry")
	ErrBiometricRequired      = NewError(CodeBiometricRequired, "biometric verification required")
	ErrBiometricSetupRequired = NewError(CodeBiometricSetupRequired, "register a platform authenticator before voting")
	ErrRateLimited            = NewError(CodeRateLimited, "too many requests")
	ErrWindowClosed           = NewError(CodeWindowClosed, "voting is not open for this contest")
	ErrStoreUnavailable       = NewError(CodeStoreUnavailable, "durable store unavailable")
	ErrCacheUnavailable       = NewError(CodeCacheUnavailable, "counter cache unavailable")
	ErrServiceUnavailable     = NewError(CodeServiceUnavailable, "service unavailable")
	ErrInternal               = NewError(CodeInternal, "internal server error")
)

// ErrAuthenticatorCancelled is returned by authenticator verifiers when the
// user dismissed the platform prompt. It is not a dependency failure.
var ErrAuthenticatorCancelled = errors.New("authenticator prompt cancelled by user")

// RetryAfterOf returns the retry hint carried by err, zero when none.
func RetryAfterOf(err error) time.Duration {
	var e *Error
	if errors.As(err, &e) {
		return e.RetryAfter
	}
	return 0
}
