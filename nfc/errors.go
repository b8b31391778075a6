package nfc

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode represents a specific type of NFC error for programmatic handling.
type ErrorCode int

const (
	// Tag operation errors (100-199)
	ErrCodeNotSupported ErrorCode = iota + 100
	ErrCodeTagRemoved
	ErrCodeReadFailed
	ErrCodeWriteFailed
	ErrCodeReadOnly
	ErrCodeInvalidData
	ErrCodeNoTagPresent
)

const (
	// Session errors (200-299)
	ErrCodeTagNotWritable ErrorCode = iota + 200
	ErrCodeEncodeFailure
	ErrCodeWriteExhausted
	ErrCodeCleanupFailure
	ErrCodeBusy
	ErrCodeAcquireTimeout
)

var codeNames = map[ErrorCode]string{
	ErrCodeNotSupported:   "NotSupported",
	ErrCodeTagRemoved:     "TagRemoved",
	ErrCodeReadFailed:     "ReadFailed",
	ErrCodeWriteFailed:    "WriteFailed",
	ErrCodeReadOnly:       "ReadOnly",
	ErrCodeInvalidData:    "InvalidData",
	ErrCodeNoTagPresent:   "NoTagPresent",
	ErrCodeTagNotWritable: "TagNotWritable",
	ErrCodeEncodeFailure:  "EncodeFailure",
	ErrCodeWriteExhausted: "WriteExhausted",
	ErrCodeCleanupFailure: "CleanupFailure",
	ErrCodeBusy:           "Busy",
	ErrCodeAcquireTimeout: "AcquireTimeout",
}

func (c ErrorCode) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("ErrorCode(%d)", int(c))
}

// Sentinels usable with errors.Is; matching is by code only.
var (
	ErrNoTagPresent   = &NFCError{Code: ErrCodeNoTagPresent, Message: "no tag present"}
	ErrTagNotWritable = &NFCError{Code: ErrCodeTagNotWritable, Message: "tag is not writable"}
	ErrEncodeFailure  = &NFCError{Code: ErrCodeEncodeFailure, Message: "failed to create NDEF message"}
	ErrWriteExhausted = &NFCError{Code: ErrCodeWriteExhausted, Message: "write attempts exhausted"}
	ErrCleanupFailure = &NFCError{Code: ErrCodeCleanupFailure, Message: "failed to release technology"}
	ErrBusy           = &NFCError{Code: ErrCodeBusy, Message: "NFC operation already in progress"}
	ErrAcquireTimeout = &NFCError{Code: ErrCodeAcquireTimeout, Message: "timed out waiting for a tag"}
)

// NFCError provides structured error information for programmatic handling.
type NFCError struct {
	Code    ErrorCode
	Op      string // Operation that failed (e.g., "GetTag", "WriteNdefMessage")
	TagUID  string // Optional: UID of tag involved
	Message string // Human-readable message
	Cause   error  // Underlying error
}

func (e *NFCError) Error() string {
	var sb strings.Builder
	if e.Op != "" {
		sb.WriteString(e.Op)
		sb.WriteString(": ")
	}
	sb.WriteString(e.Message)
	if e.Cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Cause.Error())
	}
	return sb.String()
}

func (e *NFCError) Unwrap() error {
	return e.Cause
}

func (e *NFCError) Is(target error) bool {
	if t, ok := target.(*NFCError); ok {
		return e.Code == t.Code
	}
	return false
}

// NewNotSupportedError creates an error for unsupported operations.
func NewNotSupportedError(op string) *NFCError {
	return &NFCError{
		Code:    ErrCodeNotSupported,
		Op:      op,
		Message: "operation not supported",
	}
}

// NewTagRemovedError creates an error for when a tag is removed mid-operation.
func NewTagRemovedError(op string, cause error) *NFCError {
	return &NFCError{
		Code:    ErrCodeTagRemoved,
		Op:      op,
		Message: "tag removed during operation",
		Cause:   cause,
	}
}

// NewReadError creates an error for read failures.
func NewReadError(op string, cause error) *NFCError {
	return &NFCError{
		Code:    ErrCodeReadFailed,
		Op:      op,
		Message: "read failed",
		Cause:   cause,
	}
}

// NewWriteError creates an error for write failures.
func NewWriteError(op string, cause error) *NFCError {
	return &NFCError{
		Code:    ErrCodeWriteFailed,
		Op:      op,
		Message: "write failed",
		Cause:   cause,
	}
}

// NewNoTagPresentError is returned when the tag vanished between acquisition
// and inspection, or was never presented.
func NewNoTagPresentError(op string, cause error) *NFCError {
	return &NFCError{
		Code:    ErrCodeNoTagPresent,
		Op:      op,
		Message: "no tag present",
		Cause:   cause,
	}
}

// NewTagNotWritableError reports a tag whose NDEF area is locked.
func NewTagNotWritableError(op, tagUID string) *NFCError {
	return &NFCError{
		Code:    ErrCodeTagNotWritable,
		Op:      op,
		TagUID:  tagUID,
		Message: "tag is not writable",
	}
}

// NewEncodeError creates an error for NDEF construction failures.
func NewEncodeError(op string, cause error) *NFCError {
	return &NFCError{
		Code:    ErrCodeEncodeFailure,
		Op:      op,
		Message: "failed to create NDEF message",
		Cause:   cause,
	}
}

// NewWriteExhaustedError wraps the last attempt's error once the retry budget
// is spent. It carries no Op so the message reads as the user sees it.
func NewWriteExhaustedError(attempts int, cause error) *NFCError {
	return &NFCError{
		Code:    ErrCodeWriteExhausted,
		Message: "failed to write NDEF message after " + attemptCount(attempts),
		Cause:   cause,
	}
}

// NewCleanupError creates an error for a failed technology release.
func NewCleanupError(op string, cause error) *NFCError {
	return &NFCError{
		Code:    ErrCodeCleanupFailure,
		Op:      op,
		Message: "failed to release technology",
		Cause:   cause,
	}
}

// NewBusyError is returned when another operation holds the technology.
func NewBusyError(op string) *NFCError {
	return &NFCError{
		Code:    ErrCodeBusy,
		Op:      op,
		Message: "NFC operation already in progress",
	}
}

// NewAcquireTimeoutError is returned when no tag was presented in time.
func NewAcquireTimeoutError(op string, cause error) *NFCError {
	return &NFCError{
		Code:    ErrCodeAcquireTimeout,
		Op:      op,
		Message: "timed out waiting for a tag",
		Cause:   cause,
	}
}

// IsNotSupportedError checks if an error indicates an unsupported operation.
func IsNotSupportedError(err error) bool {
	if err == nil {
		return false
	}
	var nfcErr *NFCError
	if errors.As(err, &nfcErr) {
		return nfcErr.Code == ErrCodeNotSupported
	}
	// Fallback to string matching for driver errors
	errStr := err.Error()
	return strings.Contains(errStr, "not supported") ||
		strings.Contains(errStr, "operation not supported")
}

// IsTagRemovedError checks if an error indicates the tag was removed.
func IsTagRemovedError(err error) bool {
	if err == nil {
		return false
	}
	var nfcErr *NFCError
	if errors.As(err, &nfcErr) {
		return nfcErr.Code == ErrCodeTagRemoved || nfcErr.Code == ErrCodeNoTagPresent
	}
	// Fallback to string matching
	errStr := err.Error()
	return strings.Contains(errStr, "tag removed") ||
		strings.Contains(errStr, "tag lost") ||
		strings.Contains(errStr, "Target was removed")
}

// IsBusyError checks if an error indicates a concurrent operation.
func IsBusyError(err error) bool {
	return GetErrorCode(err) == ErrCodeBusy
}

// IsTagNotWritableError checks if an error indicates a locked tag.
func IsTagNotWritableError(err error) bool {
	return GetErrorCode(err) == ErrCodeTagNotWritable
}

// GetErrorCode extracts the ErrorCode from an error if it's an NFCError.
// Returns 0 if the error is not an NFCError.
func GetErrorCode(err error) ErrorCode {
	var nfcErr *NFCError
	if errors.As(err, &nfcErr) {
		return nfcErr.Code
	}
	return 0
}

// WrapError wraps an existing error with NFC context.
func WrapError(code ErrorCode, op, message string, cause error) *NFCError {
	return &NFCError{
		Code:    code,
		Op:      op,
		Message: message,
		Cause:   cause,
	}
}

// Errorf creates an NFCError with a formatted message.
func Errorf(code ErrorCode, op, format string, args ...interface{}) *NFCError {
	return &NFCError{
		Code:    code,
		Op:      op,
		Message: fmt.Sprintf(format, args...),
	}
}
