package apperr

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestError_IsMatchesByCode(t *testing.T) {
	err := New(CodeInvariantViolation, "cannot remove the last admin")
	if !errors.Is(err, ErrInvariantViolation) {
		t.Fatal("errors.Is should match sentinel with same code")
	}
	if errors.Is(err, ErrNotFound) {
		t.Fatal("errors.Is should not match a different code")
	}
	wrapped := fmt.Errorf("remove member: %w", err)
	if !errors.Is(wrapped, ErrInvariantViolation) {
		t.Fatal("errors.Is should see through fmt wrapping")
	}
}

func TestError_UnwrapCause(t *testing.T) {
	err := Wrap(CodeStoreUnavailable, "store timeout", context.DeadlineExceeded)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatal("cause should be reachable through Unwrap")
	}
	if !err.Retryable() || !IsRetryable(err) {
		t.Fatal("store unavailable must be retryable")
	}
}

func TestCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Code
	}{
		{"nil", nil, ""},
		{"typed", New(CodeAlreadyMember, "x"), CodeAlreadyMember},
		{"wrapped", fmt.Errorf("ctx: %w", New(CodeTokenExpired, "x")), CodeTokenExpired},
		{"plain", errors.New("boom"), CodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CodeOf(tt.err); got != tt.want {
				t.Errorf("CodeOf = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIsRetryable_OnlyStoreUnavailable(t *testing.T) {
	for _, c := range []Code{CodeNotFound, CodeConflict, CodeInvariantViolation, CodePermissionDenied, CodeInternal} {
		if IsRetryable(New(c, "x")) {
			t.Errorf("%s must not be retryable", c)
		}
	}
}

func TestError_GRPCStatus(t *testing.T) {
	tests := []struct {
		code Code
		want codes.Code
	}{
		{CodeNotFound, codes.NotFound},
		{CodeConflict, codes.AlreadyExists},
		{CodeAlreadyMember, codes.AlreadyExists},
		{CodeInvariantViolation, codes.FailedPrecondition},
		{CodeNoOrganizationSelected, codes.FailedPrecondition},
		{CodePermissionDenied, codes.PermissionDenied},
		{CodeInvalidCredentials, codes.Unauthenticated},
		{CodeInvalidToken, codes.InvalidArgument},
		{CodeStoreUnavailable, codes.Unavailable},
		{CodeInternal, codes.Internal},
	}
	for _, tt := range tests {
		st, ok := status.FromError(New(tt.code, "detail"))
		if !ok {
			t.Fatalf("%s: status.FromError not ok", tt.code)
		}
		if st.Code() != tt.want {
			t.Errorf("%s: grpc code = %v, want %v", tt.code, st.Code(), tt.want)
		}
		if st.Message() != "detail" {
			t.Errorf("%s: message = %q", tt.code, st.Message())
		}
	}
}

func TestError_ErrorString(t *testing.T) {
	if got := New(CodeNotFound, "membership not found").Error(); got != "NOT_FOUND: membership not found" {
		t.Errorf("Error() = %q", got)
	}
	if got := ErrNotFound.Error(); got != "NOT_FOUND: NOT_FOUND" {
		t.Errorf("sentinel Error() = %q", got)
	}
}
