package plan

import (
	"errors"
	"fmt"
)

// Generator error codes. The set is closed: every generation failure carries
// exactly one of these.
const (
	CodeAssignmentTooLong   = "ASSIGNMENT_TOO_LONG"
	CodeAICallFailed        = "AI_CALL_FAILED"
	CodeAITimeout           = "AI_TIMEOUT"
	CodeAIOutputInvalid     = "AI_OUTPUT_INVALID"
	CodeBundleCountMismatch = "BUNDLE_COUNT_MISMATCH"
	// CodeGenerateOrPersistFailed is the catch-all for failures outside the
	// generator itself (persistence, audit, stale-pending sweep).
	CodeGenerateOrPersistFailed = "GENERATE_OR_PERSIST_FAILED"
)

// Error is a typed generation failure carrying a machine-readable code.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Code + ": " + e.Message
}

// Errf builds an Error with a formatted message.
func Errf(code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// CodeOf extracts the error code from err. Untyped failures return "" so
// callers can apply their own catch-all code.
func CodeOf(err error) string {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}

// MessageOf extracts the human-readable message from err.
func MessageOf(err error) string {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Message
	}
	return err.Error()
}
