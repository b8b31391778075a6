package nfc

import (
	"errors"
	"fmt"
	"testing"
)

func TestNFCError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *NFCError
		expected string
	}{
		{
			name: "with op and message",
			err: &NFCError{
				Code:    ErrCodeNotSupported,
				Op:      "RequestTechnology",
				Message: "operation not supported",
			},
			expected: "RequestTechnology: operation not supported",
		},
		{
			name: "with op, message, and cause",
			err: &NFCError{
				Code:    ErrCodeReadFailed,
				Op:      "ReadData",
				Message: "read failed",
				Cause:   errors.New("connection lost"),
			},
			expected: "ReadData: read failed: connection lost",
		},
		{
			name:     "write exhausted",
			err:      NewWriteExhaustedError(3, errors.New("tag lost")),
			expected: "failed to write NDEF message after 3 attempts: tag lost",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("NFCError.Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestNFCError_Unwrap(t *testing.T) {
	cause := errors.New("underlying error")
	err := NewWriteExhaustedError(3, cause)

	if unwrapped := err.Unwrap(); unwrapped != cause {
		t.Errorf("NFCError.Unwrap() = %v, want %v", unwrapped, cause)
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is should reach the last attempt's cause")
	}
}

func TestNFCError_IsSentinels(t *testing.T) {
	tests := []struct {
		err      error
		sentinel error
	}{
		{NewNoTagPresentError("GetTag", nil), ErrNoTagPresent},
		{NewTagNotWritableError("Write", "04A1B2C3"), ErrTagNotWritable},
		{NewEncodeError("EncodePayload", nil), ErrEncodeFailure},
		{NewWriteExhaustedError(3, nil), ErrWriteExhausted},
		{NewCleanupError("CancelTechnologyRequest", nil), ErrCleanupFailure},
		{NewBusyError("Write"), ErrBusy},
		{NewAcquireTimeoutError("RequestTechnology", nil), ErrAcquireTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.sentinel.Error(), func(t *testing.T) {
			wrapped := fmt.Errorf("outer: %w", tt.err)
			if !errors.Is(wrapped, tt.sentinel) {
				t.Errorf("errors.Is(%v, %v) = false", wrapped, tt.sentinel)
			}
			if errors.Is(wrapped, ErrCleanupFailure) && tt.sentinel != ErrCleanupFailure {
				t.Errorf("%v should not match CleanupFailure", wrapped)
			}
		})
	}
}

func TestIsTagRemovedError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil", nil, false},
		{"tag removed", NewTagRemovedError("ReadData", nil), true},
		{"no tag present", NewNoTagPresentError("GetTag", nil), true},
		{"driver string", errors.New("Target was removed"), true},
		{"other", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTagRemovedError(tt.err); got != tt.expected {
				t.Errorf("IsTagRemovedError(%v) = %v, want %v", tt.err, got, tt.expected)
			}
		})
	}
}

func TestGetErrorCode(t *testing.T) {
	if code := GetErrorCode(fmt.Errorf("wrapped: %w", NewBusyError("Scan"))); code != ErrCodeBusy {
		t.Errorf("GetErrorCode = %v, want %v", code, ErrCodeBusy)
	}
	if code := GetErrorCode(errors.New("plain")); code != 0 {
		t.Errorf("GetErrorCode = %v, want 0", code)
	}
	if ErrCodeWriteExhausted.String() != "WriteExhausted" {
		t.Errorf("String() = %q", ErrCodeWriteExhausted.String())
	}
}
