// Package spec defines the YAML test description: the step union, the
// parser, and the serializer. The step vocabulary is closed; anything a
// test can do is one of the kinds below.
package spec

import (
	"fmt"
	"strings"
)

// Kind identifies a step type.
type Kind string

// Step kinds.
const (
	KindTap            Kind = "tap"
	KindDoubleTap      Kind = "doubleTap"
	KindLongPress      Kind = "longPress"
	KindSwipe          Kind = "swipe"
	KindType           Kind = "type"
	KindWait           Kind = "wait"
	KindWaitFor        Kind = "waitFor"
	KindPress          Kind = "press"
	KindLaunchApp      Kind = "launchApp"
	KindTerminateApp   Kind = "terminateApp"
	KindScreenshot     Kind = "screenshot"
	KindSetOrientation Kind = "setOrientation"
	KindOpenURL        Kind = "openUrl"
	KindVerifyScreen   Kind = "verifyScreen"
	KindVerifyElement  Kind = "verifyElement"
	KindVerifyAbsent   Kind = "verifyAbsent"
	KindIf             Kind = "if"
	KindRetry          Kind = "retry"
	KindRepeat         Kind = "repeat"
)

// Step is a single instruction of a test case.
type Step interface {
	Kind() Kind
	// Describe returns a short human-readable summary for reports.
	Describe() string
	// Note returns the free-form annotation attached by the synthesizer
	// (e.g. which raw touches a type step replaced).
	Note() string
}

// BaseStep provides the common fields; embedded by all step structs.
type BaseStep struct {
	StepKind Kind   `yaml:"-"`
	StepNote string `yaml:"note,omitempty"`
}

// Kind returns the step kind.
func (b *BaseStep) Kind() Kind { return b.StepKind }

// Note returns the synthesizer annotation, if any.
func (b *BaseStep) Note() string { return b.StepNote }

// TapStep taps a target once. Shared by tap and doubleTap.
type TapStep struct {
	BaseStep `yaml:",inline"`
	Target   Target `yaml:"-"`
}

func (s *TapStep) Describe() string {
	return fmt.Sprintf("%s %s", s.StepKind, s.Target)
}

// LongPressStep holds a target for a duration.
type LongPressStep struct {
	BaseStep   `yaml:",inline"`
	Target     Target `yaml:"-"`
	DurationMs int    `yaml:"duration"`
}

func (s *LongPressStep) Describe() string {
	return fmt.Sprintf("longPress %s for %dms", s.Target, s.DurationMs)
}

// SwipeStep swipes in a direction.
type SwipeStep struct {
	BaseStep  `yaml:",inline"`
	Direction string `yaml:"direction"`
	// Distance in pixels; 0 means half the screen's larger dimension.
	Distance int `yaml:"distance,omitempty"`
}

func (s *SwipeStep) Describe() string {
	return "swipe " + s.Direction
}

// TypeStep types text into the focused field.
type TypeStep struct {
	BaseStep `yaml:",inline"`
	Text     string `yaml:"text"`
	Submit   bool   `yaml:"submit,omitempty"`
}

func (s *TypeStep) Describe() string {
	if s.Submit {
		return fmt.Sprintf("type %q and submit", s.Text)
	}
	return fmt.Sprintf("type %q", s.Text)
}

// WaitStep pauses unconditionally.
type WaitStep struct {
	BaseStep   `yaml:",inline"`
	DurationMs int `yaml:"-"`
}

func (s *WaitStep) Describe() string {
	return fmt.Sprintf("wait %dms", s.DurationMs)
}

// WaitForStep polls until an element appears or the budget runs out.
type WaitForStep struct {
	BaseStep  `yaml:",inline"`
	Element   string `yaml:"element"`
	TimeoutMs int    `yaml:"timeout,omitempty"`
}

func (s *WaitForStep) Describe() string {
	return fmt.Sprintf("waitFor %q", s.Element)
}

// PressStep presses a named device button.
type PressStep struct {
	BaseStep `yaml:",inline"`
	Button   string `yaml:"-"`
}

func (s *PressStep) Describe() string {
	return "press " + s.Button
}

// LaunchAppStep launches an app; empty AppID means the spec's target.
type LaunchAppStep struct {
	BaseStep `yaml:",inline"`
	AppID    string `yaml:"-"`
}

func (s *LaunchAppStep) Describe() string {
	if s.AppID == "" {
		return "launchApp"
	}
	return "launchApp " + s.AppID
}

// TerminateAppStep stops an app; empty AppID means the spec's target.
type TerminateAppStep struct {
	BaseStep `yaml:",inline"`
	AppID    string `yaml:"-"`
}

func (s *TerminateAppStep) Describe() string {
	if s.AppID == "" {
		return "terminateApp"
	}
	return "terminateApp " + s.AppID
}

// ScreenshotStep saves the current screen.
type ScreenshotStep struct {
	BaseStep `yaml:",inline"`
	Path     string `yaml:"-"`
}

func (s *ScreenshotStep) Describe() string {
	return "screenshot " + s.Path
}

// SetOrientationStep rotates the screen ("portrait" or "landscape").
type SetOrientationStep struct {
	BaseStep    `yaml:",inline"`
	Orientation string `yaml:"-"`
}

func (s *SetOrientationStep) Describe() string {
	return "setOrientation " + s.Orientation
}

// OpenURLStep opens a URL on the device.
type OpenURLStep struct {
	BaseStep `yaml:",inline"`
	URL      string `yaml:"-"`
}

func (s *OpenURLStep) Describe() string {
	return "openUrl " + s.URL
}

// VerifyScreenStep asks the oracle whether the screen matches an
// expectation expressed in natural language.
type VerifyScreenStep struct {
	BaseStep    `yaml:",inline"`
	Expectation string `yaml:"-"`
}

func (s *VerifyScreenStep) Describe() string {
	return fmt.Sprintf("verifyScreen %q", s.Expectation)
}

// VerifyElementStep asserts an element is present and, when Contains is
// set, that its text contains the given substring.
type VerifyElementStep struct {
	BaseStep `yaml:",inline"`
	Element  string `yaml:"element"`
	Contains string `yaml:"contains,omitempty"`
}

func (s *VerifyElementStep) Describe() string {
	if s.Contains != "" {
		return fmt.Sprintf("verifyElement %q contains %q", s.Element, s.Contains)
	}
	return fmt.Sprintf("verifyElement %q", s.Element)
}

// VerifyAbsentStep asserts no visible element matches the text.
type VerifyAbsentStep struct {
	BaseStep `yaml:",inline"`
	Element  string `yaml:"-"`
}

func (s *VerifyAbsentStep) Describe() string {
	return fmt.Sprintf("verifyAbsent %q", s.Element)
}

// CondOperator names a conditional check.
type CondOperator string

// Conditional operators.
const (
	CondPresent       CondOperator = "present"
	CondAbsent        CondOperator = "absent"
	CondAllPresent    CondOperator = "allPresent"
	CondAnyPresent    CondOperator = "anyPresent"
	CondScreenMatches CondOperator = "screenMatches"
)

// IfStep branches on a single instantaneous check. The then branch is
// mandatory (may be empty); the else branch is optional.
type IfStep struct {
	BaseStep `yaml:",inline"`
	Operator CondOperator `yaml:"-"`
	// Targets holds element texts for the element operators, or the
	// single expectation string for screenMatches.
	Targets []string `yaml:"-"`
	Then    []Step   `yaml:"-"`
	Else    []Step   `yaml:"-"`
	// HasElse distinguishes an empty else branch from an absent one.
	HasElse bool `yaml:"-"`
}

func (s *IfStep) Describe() string {
	return fmt.Sprintf("if %s %s", s.Operator, strings.Join(s.Targets, ", "))
}

// RetryStep re-runs its block until it passes or attempts run out.
type RetryStep struct {
	BaseStep `yaml:",inline"`
	Attempts int    `yaml:"attempts"`
	DelayMs  int    `yaml:"delay,omitempty"`
	Steps    []Step `yaml:"-"`
}

func (s *RetryStep) Describe() string {
	return fmt.Sprintf("retry up to %d times", s.Attempts)
}

// RepeatStep runs its block a fixed number of times.
type RepeatStep struct {
	BaseStep `yaml:",inline"`
	Times    int    `yaml:"times"`
	Steps    []Step `yaml:"-"`
}

func (s *RepeatStep) Describe() string {
	return fmt.Sprintf("repeat %d times", s.Times)
}

// TestCase is a named sequence of steps with its own time budget.
type TestCase struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
	TimeoutMs   int    `yaml:"timeout,omitempty"`
	Steps       []Step `yaml:"-"`
}

// TestSpec is a complete test description: the target app, shared
// setup/teardown, and the cases.
type TestSpec struct {
	Target   string     `yaml:"target"`
	Setup    []Step     `yaml:"-"`
	Teardown []Step     `yaml:"-"`
	Cases    []TestCase `yaml:"-"`

	// SourcePath records where the spec was parsed from, for messages.
	SourcePath string `yaml:"-"`
}
