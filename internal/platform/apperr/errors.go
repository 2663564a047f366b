// Package apperr defines the typed failures returned by every core operation.
// Each failure carries a Code for programmatic handling and a human-readable
// message for the presentation layer.
package apperr

import (
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Code classifies a failure.
type Code string

const (
	CodeNotFound               Code = "NOT_FOUND"
	CodeConflict               Code = "CONFLICT"
	CodeInvariantViolation     Code = "INVARIANT_VIOLATION"
	CodePermissionDenied       Code = "PERMISSION_DENIED"
	CodeNoOrganizationSelected Code = "NO_ORGANIZATION_SELECTED"
	CodeInvitationExpired      Code = "INVITATION_EXPIRED"
	CodeInvitationMismatch     Code = "INVITATION_MISMATCH"
	CodeAlreadyMember          Code = "ALREADY_MEMBER"
	CodeInvalidCredentials     Code = "INVALID_CREDENTIALS"
	CodeInvalidToken           Code = "INVALID_TOKEN"
	CodeTokenExpired           Code = "TOKEN_EXPIRED"
	CodeStoreUnavailable       Code = "STORE_UNAVAILABLE"
	CodeInvalidArgument        Code = "INVALID_ARGUMENT"
	CodeUnauthenticated        Code = "UNAUTHENTICATED"
	CodeInternal               Code = "INTERNAL"
)

// Sentinels for errors.Is. Any *Error matches the sentinel with the same code.
var (
	ErrNotFound               = &Error{Code: CodeNotFound}
	ErrConflict               = &Error{Code: CodeConflict}
	ErrInvariantViolation     = &Error{Code: CodeInvariantViolation}
	ErrPermissionDenied       = &Error{Code: CodePermissionDenied}
	ErrNoOrganizationSelected = &Error{Code: CodeNoOrganizationSelected}
	ErrInvitationExpired      = &Error{Code: CodeInvitationExpired}
	ErrInvitationMismatch     = &Error{Code: CodeInvitationMismatch}
	ErrAlreadyMember          = &Error{Code: CodeAlreadyMember}
	ErrInvalidCredentials     = &Error{Code: CodeInvalidCredentials}
	ErrInvalidToken           = &Error{Code: CodeInvalidToken}
	ErrTokenExpired           = &Error{Code: CodeTokenExpired}
	ErrStoreUnavailable       = &Error{Code: CodeStoreUnavailable}
	ErrInvalidArgument        = &Error{Code: CodeInvalidArgument}
	ErrUnauthenticated        = &Error{Code: CodeUnauthenticated}
	ErrInternal               = &Error{Code: CodeInternal}
)

// Error is a classified failure. Cause is optional and never shown to end users.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

// New returns an *Error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf is New with fmt.Sprintf formatting.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap returns an *Error with the given code and message that unwraps to cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Code)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Retryable reports whether the caller may retry the operation with backoff.
func (e *Error) Retryable() bool {
	return e.Code == CodeStoreUnavailable
}

// GRPCStatus lets status.FromError and the grpc server translate the failure.
func (e *Error) GRPCStatus() *status.Status {
	msg := e.Message
	if msg == "" {
		msg = string(e.Code)
	}
	return status.New(e.GRPCCode(), msg)
}

// GRPCCode maps the failure class to a gRPC status code.
func (e *Error) GRPCCode() codes.Code {
	switch e.Code {
	case CodeNotFound:
		return codes.NotFound
	case CodeConflict, CodeAlreadyMember:
		return codes.AlreadyExists
	case CodeInvariantViolation, CodeNoOrganizationSelected, CodeInvitationExpired, CodeTokenExpired:
		return codes.FailedPrecondition
	case CodePermissionDenied, CodeInvitationMismatch:
		return codes.PermissionDenied
	case CodeInvalidCredentials, CodeUnauthenticated:
		return codes.Unauthenticated
	case CodeInvalidToken, CodeInvalidArgument:
		return codes.InvalidArgument
	case CodeStoreUnavailable:
		return codes.Unavailable
	default:
		return codes.Internal
	}
}

// CodeOf returns the code of the first *Error in err's chain, CodeInternal for
// any other non-nil error, and "" for nil.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// IsRetryable reports whether err is eligible for caller-side retry.
func IsRetryable(err error) bool {
	return CodeOf(err) == CodeStoreUnavailable
}
