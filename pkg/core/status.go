package core

// StepStatus represents the execution status of a step or test case
type StepStatus int

const (
	StatusPending StepStatus = iota // Not yet started
	StatusRunning                   // Currently executing
	StatusPassed                    // Completed successfully
	StatusFailed                    // Action or verification failed
	StatusSkipped                   // Branch not taken, case aborted, or setup failed
)

// String returns the string representation of StepStatus
func (s StepStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusRunning:
		return "running"
	case StatusPassed:
		return "passed"
	case StatusFailed:
		return "failed"
	case StatusSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// IsTerminal returns true if the status is a final state
func (s StepStatus) IsTerminal() bool {
	switch s {
	case StatusPassed, StatusFailed, StatusSkipped:
		return true
	default:
		return false
	}
}

// IsSuccess returns true if the status indicates success
func (s StepStatus) IsSuccess() bool {
	return s == StatusPassed
}

// ErrorCategory classifies the type of error for reporting
type ErrorCategory int

const (
	ErrCategoryNone       ErrorCategory = iota // No error
	ErrCategoryAssertion                       // Element not found, text mismatch, screen mismatch
	ErrCategoryTimeout                         // Case budget or wait condition exceeded
	ErrCategoryConnection                      // Device unreachable or lost
	ErrCategoryOracle                          // Screen-match oracle could not answer
	ErrCategorySpec                            // Test description structurally invalid
	ErrCategoryCapture                         // Recording artifact corrupt or missing
)

// String returns the string representation of ErrorCategory
func (c ErrorCategory) String() string {
	switch c {
	case ErrCategoryNone:
		return "none"
	case ErrCategoryAssertion:
		return "assertion"
	case ErrCategoryTimeout:
		return "timeout"
	case ErrCategoryConnection:
		return "connection"
	case ErrCategoryOracle:
		return "oracle"
	case ErrCategorySpec:
		return "spec"
	case ErrCategoryCapture:
		return "capture"
	default:
		return "unknown"
	}
}
