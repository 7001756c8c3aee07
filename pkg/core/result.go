package core

import (
	"time"
)

// StepRecord captures the outcome of executing a single step.
type StepRecord struct {
	// Number is the dotted position of the step, e.g. "3" or "3.1.2" for
	// steps inside a taken conditional branch or retry/repeat block.
	Number  string `json:"number"`
	Command string `json:"command"` // Step kind: tap, verifyScreen, if, ...
	Detail  string `json:"detail,omitempty"`

	Status   StepStatus    `json:"status"`
	Category ErrorCategory `json:"errorCategory,omitempty"`

	StartTime time.Time     `json:"startTime"`
	Duration  time.Duration `json:"duration"`

	Message string   `json:"message,omitempty"` // Human-readable explanation
	Element *Element `json:"element,omitempty"` // Element interacted with
	Error   string   `json:"error,omitempty"`   // Technical error message

	// Attempt tracking for retry blocks (1-based).
	Attempt int `json:"attempt,omitempty"`
}

// CaseResult captures the outcome of one test case.
type CaseResult struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`

	Status StepStatus `json:"status"`

	StartTime time.Time     `json:"startTime"`
	Duration  time.Duration `json:"duration"`

	Steps []StepRecord `json:"steps"`

	// Error info if the case failed.
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// RunResult captures one full execution of a test description: setup,
// every case, teardown. A run that reaches teardown always reports
// Completed regardless of case outcomes.
type RunResult struct {
	RunID  string `json:"runId"`
	Target string `json:"target"`
	Device string `json:"device,omitempty"`

	Completed bool `json:"completed"`

	StartTime time.Time     `json:"startTime"`
	Duration  time.Duration `json:"duration"`

	Setup    []StepRecord `json:"setup,omitempty"`
	Cases    []CaseResult `json:"cases"`
	Teardown []StepRecord `json:"teardown,omitempty"`

	// Summary (computed)
	TotalCases  int `json:"totalCases"`
	PassedCases int `json:"passedCases"`
	FailedCases int `json:"failedCases"`
	SkippedCases int `json:"skippedCases"`
}

// ComputeSummary calculates case counts from the Cases slice
func (r *RunResult) ComputeSummary() {
	r.TotalCases = len(r.Cases)
	r.PassedCases = 0
	r.FailedCases = 0
	r.SkippedCases = 0

	for _, c := range r.Cases {
		switch c.Status {
		case StatusPassed:
			r.PassedCases++
		case StatusFailed:
			r.FailedCases++
		case StatusSkipped:
			r.SkippedCases++
		}
	}
}

// Success returns true if every case passed.
func (r *RunResult) Success() bool {
	for _, c := range r.Cases {
		if !c.Status.IsSuccess() {
			return false
		}
	}
	return len(r.Cases) > 0
}
