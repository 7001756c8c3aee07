package core

import (
	"fmt"
)

// ExecutionError represents a structured error with category and details
type ExecutionError struct {
	Category ErrorCategory
	Code     string                 // Machine-readable code: element_not_found, case_timeout, etc.
	Message  string                 // Human-readable message
	Details  map[string]interface{} // Additional context
	Cause    error                  // Underlying error
}

// Error implements the error interface
func (e *ExecutionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *ExecutionError) Unwrap() error {
	return e.Cause
}

// Is lets errors.Is match a derived error against its sentinel.
func (e *ExecutionError) Is(target error) bool {
	t, ok := target.(*ExecutionError)
	if !ok {
		return false
	}
	return e.Category == t.Category && e.Code == t.Code
}

// WithCause returns a copy of the error with the given cause
func (e *ExecutionError) WithCause(cause error) *ExecutionError {
	return &ExecutionError{
		Category: e.Category,
		Code:     e.Code,
		Message:  e.Message,
		Details:  e.Details,
		Cause:    cause,
	}
}

// WithMessage returns a copy of the error with a custom message
func (e *ExecutionError) WithMessage(msg string) *ExecutionError {
	return &ExecutionError{
		Category: e.Category,
		Code:     e.Code,
		Message:  msg,
		Details:  e.Details,
		Cause:    e.Cause,
	}
}

// WithDetails returns a copy of the error with additional details
func (e *ExecutionError) WithDetails(details map[string]interface{}) *ExecutionError {
	merged := make(map[string]interface{})
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	return &ExecutionError{
		Category: e.Category,
		Code:     e.Code,
		Message:  e.Message,
		Details:  merged,
		Cause:    e.Cause,
	}
}

// Predefined errors covering every failure class the engine reports
var (
	// Assertion errors
	ErrElementNotFound = &ExecutionError{
		Category: ErrCategoryAssertion,
		Code:     "element_not_found",
		Message:  "element not found",
	}
	ErrElementStillPresent = &ExecutionError{
		Category: ErrCategoryAssertion,
		Code:     "element_still_present",
		Message:  "element expected to be absent is still visible",
	}
	ErrTextMismatch = &ExecutionError{
		Category: ErrCategoryAssertion,
		Code:     "text_mismatch",
		Message:  "element text does not contain expected value",
	}
	ErrScreenMismatch = &ExecutionError{
		Category: ErrCategoryAssertion,
		Code:     "screen_mismatch",
		Message:  "screen does not match expectation",
	}

	// Timeout errors
	ErrCaseTimeout = &ExecutionError{
		Category: ErrCategoryTimeout,
		Code:     "case_timeout",
		Message:  "test case exceeded its time budget",
	}
	ErrWaitTimeout = &ExecutionError{
		Category: ErrCategoryTimeout,
		Code:     "wait_timeout",
		Message:  "wait condition timed out",
	}

	// Connection errors
	ErrDeviceUnavailable = &ExecutionError{
		Category: ErrCategoryConnection,
		Code:     "device_unavailable",
		Message:  "device is not connected or not responding",
	}

	// Oracle errors
	ErrOracleFailure = &ExecutionError{
		Category: ErrCategoryOracle,
		Code:     "oracle_failure",
		Message:  "screen-match oracle could not produce a verdict",
	}

	// Spec errors
	ErrMalformedSpec = &ExecutionError{
		Category: ErrCategorySpec,
		Code:     "malformed_spec",
		Message:  "test description is structurally invalid",
	}

	// Capture errors
	ErrCaptureCorruption = &ExecutionError{
		Category: ErrCategoryCapture,
		Code:     "capture_corruption",
		Message:  "recording artifact is incomplete or unreadable",
	}
)

// NewExecutionError creates a new ExecutionError with the given parameters
func NewExecutionError(category ErrorCategory, code, message string) *ExecutionError {
	return &ExecutionError{
		Category: category,
		Code:     code,
		Message:  message,
	}
}
