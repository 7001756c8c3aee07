package interpreter

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/devicelab-dev/touchstone/pkg/core"
	"github.com/devicelab-dev/touchstone/pkg/logger"
	"github.com/devicelab-dev/touchstone/pkg/spec"
)

// executeStep runs one step, records its outcome, and returns the error
// that should stop the enclosing list.
func (r *caseRun) executeStep(step spec.Step, path spec.Path) error {
	switch s := step.(type) {
	case *spec.IfStep:
		return r.executeIf(s, path)
	case *spec.RetryStep:
		return r.executeRetry(s, path)
	case *spec.RepeatStep:
		return r.executeRepeat(s, path)
	}

	start := time.Now()
	rec := core.StepRecord{
		Number:    path.String(),
		Command:   string(step.Kind()),
		Detail:    step.Describe(),
		StartTime: start,
		Attempt:   r.attempt,
	}

	el, err := r.dispatch(step)
	rec.Duration = time.Since(start)
	rec.Element = el

	if err != nil {
		rec.Status = core.StatusFailed
		rec.Error = err.Error()
		if execErr, ok := asExecutionError(err); ok {
			rec.Category = execErr.Category
			rec.Message = execErr.Message
		}
		r.records = append(r.records, rec)
		return err
	}

	rec.Status = core.StatusPassed
	r.records = append(r.records, rec)
	return nil
}

func asExecutionError(err error) (*core.ExecutionError, bool) {
	var execErr *core.ExecutionError
	ok := errors.As(err, &execErr)
	return execErr, ok
}

// executeIf evaluates the condition once and descends into the taken
// branch. The conditional itself always passes; only branch steps fail.
// Branch steps are numbered under the conditional's path, and the next
// sibling continues the sequence unaffected.
func (r *caseRun) executeIf(s *spec.IfStep, path spec.Path) error {
	start := time.Now()
	taken := r.evalCondition(s)

	rec := core.StepRecord{
		Number:    path.String(),
		Command:   string(spec.KindIf),
		Detail:    s.Describe(),
		Status:    core.StatusPassed,
		StartTime: start,
		Duration:  time.Since(start),
		Attempt:   r.attempt,
	}
	if taken {
		rec.Message = "condition true, then branch"
	} else if s.HasElse {
		rec.Message = "condition false, else branch"
	} else {
		rec.Message = "condition false, branch skipped"
	}
	r.records = append(r.records, rec)

	branch := s.Then
	if !taken {
		branch = nil
		if s.HasElse {
			branch = s.Else
		}
	}
	return r.runSteps(branch, path)
}

// evalCondition is a single instantaneous check: no retry, no polling.
// A failing device or oracle call degrades to false so the case can
// continue down the other branch.
func (r *caseRun) evalCondition(s *spec.IfStep) bool {
	if s.Operator == spec.CondScreenMatches {
		return r.evalScreenMatches(s.Targets[0])
	}

	elements, err := r.in.device.ListElements()
	if err != nil {
		logger.Warn("interpreter: condition %s degraded to false, element listing failed: %v", s.Operator, err)
		return false
	}

	present := func(text string) bool {
		return matchElement(elements, r.in.scope.Expand(text)) != nil
	}

	switch s.Operator {
	case spec.CondPresent:
		return present(s.Targets[0])
	case spec.CondAbsent:
		return !present(s.Targets[0])
	case spec.CondAllPresent:
		for _, t := range s.Targets {
			if !present(t) {
				return false
			}
		}
		return true
	case spec.CondAnyPresent:
		for _, t := range s.Targets {
			if present(t) {
				return true
			}
		}
		return false
	}
	return false
}

func (r *caseRun) evalScreenMatches(expectation string) bool {
	expectation = r.in.scope.Expand(expectation)

	shot, err := r.in.device.Screenshot()
	if err != nil {
		logger.Warn("interpreter: screenMatches degraded to false, screenshot failed: %v", err)
		return false
	}
	if r.in.oracle == nil {
		logger.Warn("interpreter: screenMatches degraded to false, no oracle configured")
		return false
	}
	ok, err := r.in.oracle.Matches(shot, expectation)
	if err != nil {
		logger.Warn("interpreter: screenMatches degraded to false, oracle failed: %v", err)
		return false
	}
	return ok
}

// executeRetry re-runs the block from the top until it passes or the
// attempts run out. Every attempt's step records are kept, distinguished
// by their attempt number.
func (r *caseRun) executeRetry(s *spec.RetryStep, path spec.Path) error {
	attempts := s.Attempts
	if attempts < 1 {
		attempts = 1
	}

	start := time.Now()
	mark := len(r.records)
	rec := core.StepRecord{
		Number:    path.String(),
		Command:   string(spec.KindRetry),
		Detail:    s.Describe(),
		StartTime: start,
		Attempt:   r.attempt,
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := r.ctxDone(); err != nil {
			lastErr = err
			break
		}

		prev := r.attempt
		r.attempt = attempt
		err := r.runSteps(s.Steps, path)
		r.attempt = prev

		if err == nil {
			rec.Status = core.StatusPassed
			rec.Duration = time.Since(start)
			rec.Message = fmt.Sprintf("passed on attempt %d", attempt)
			r.insertRecord(mark, rec)
			return nil
		}
		lastErr = err

		if errors.Is(err, core.ErrCaseTimeout) {
			break
		}
		if attempt < attempts {
			if serr := r.sleepMs(s.DelayMs); serr != nil {
				lastErr = serr
				break
			}
		}
	}

	rec.Status = core.StatusFailed
	rec.Duration = time.Since(start)
	rec.Message = fmt.Sprintf("failed after %d attempt(s)", attempts)
	if lastErr != nil {
		rec.Error = lastErr.Error()
		if execErr, ok := asExecutionError(lastErr); ok {
			rec.Category = execErr.Category
		}
	}
	r.insertRecord(mark, rec)
	return lastErr
}

// executeRepeat runs the block a fixed number of times; a failure inside
// aborts the repeat and propagates.
func (r *caseRun) executeRepeat(s *spec.RepeatStep, path spec.Path) error {
	start := time.Now()
	mark := len(r.records)
	rec := core.StepRecord{
		Number:    path.String(),
		Command:   string(spec.KindRepeat),
		Detail:    s.Describe(),
		StartTime: start,
		Attempt:   r.attempt,
	}

	for i := 0; i < s.Times; i++ {
		if err := r.ctxDone(); err != nil {
			rec.Status = core.StatusFailed
			rec.Duration = time.Since(start)
			rec.Error = err.Error()
			r.insertRecord(mark, rec)
			return err
		}
		if err := r.runSteps(s.Steps, path); err != nil {
			rec.Status = core.StatusFailed
			rec.Duration = time.Since(start)
			rec.Message = fmt.Sprintf("failed in iteration %d of %d", i+1, s.Times)
			rec.Error = err.Error()
			if execErr, ok := asExecutionError(err); ok {
				rec.Category = execErr.Category
			}
			r.insertRecord(mark, rec)
			return err
		}
	}

	rec.Status = core.StatusPassed
	rec.Duration = time.Since(start)
	rec.Message = fmt.Sprintf("completed %d iteration(s)", s.Times)
	r.insertRecord(mark, rec)
	return nil
}

// insertRecord places a block step's record before its nested records so
// the flat list reads in document order.
func (r *caseRun) insertRecord(at int, rec core.StepRecord) {
	r.records = append(r.records, core.StepRecord{})
	copy(r.records[at+1:], r.records[at:])
	r.records[at] = rec
}

// dispatch executes a leaf step against the device.
func (r *caseRun) dispatch(step spec.Step) (*core.Element, error) {
	d := r.in.device

	switch s := step.(type) {
	case *spec.TapStep:
		x, y, el, err := r.resolveTarget(s.Target)
		if err != nil {
			return nil, err
		}
		if s.Kind() == spec.KindDoubleTap {
			return el, d.DoubleTap(x, y)
		}
		return el, d.Tap(x, y)

	case *spec.LongPressStep:
		x, y, el, err := r.resolveTarget(s.Target)
		if err != nil {
			return nil, err
		}
		dur := s.DurationMs
		if dur <= 0 {
			dur = 500
		}
		return el, d.LongPress(x, y, time.Duration(dur)*time.Millisecond)

	case *spec.SwipeStep:
		dist := s.Distance
		if dist <= 0 {
			dist = max(r.in.screenW, r.in.screenH) / 2
		}
		return nil, d.Swipe(s.Direction, dist)

	case *spec.TypeStep:
		return nil, d.TypeText(r.in.scope.Expand(s.Text), s.Submit)

	case *spec.WaitStep:
		return nil, r.sleepMs(s.DurationMs)

	case *spec.WaitForStep:
		return r.waitFor(s)

	case *spec.PressStep:
		return nil, d.PressButton(s.Button)

	case *spec.LaunchAppStep:
		return nil, d.LaunchApp(r.appID(s.AppID))

	case *spec.TerminateAppStep:
		return nil, d.TerminateApp(r.appID(s.AppID))

	case *spec.ScreenshotStep:
		return nil, r.saveScreenshot(s.Path)

	case *spec.SetOrientationStep:
		return nil, d.SetOrientation(s.Orientation)

	case *spec.OpenURLStep:
		return nil, d.OpenURL(r.in.scope.Expand(s.URL))

	case *spec.VerifyScreenStep:
		return nil, r.verifyScreen(s.Expectation)

	case *spec.VerifyElementStep:
		return r.verifyElement(s)

	case *spec.VerifyAbsentStep:
		return nil, r.verifyAbsent(s.Element)
	}

	return nil, core.NewExecutionError(core.ErrCategorySpec, "unknown_step",
		fmt.Sprintf("no handler for step kind %q", step.Kind()))
}

// resolveTarget turns a step target into screen coordinates, resolving
// element text through the retrying lookup.
func (r *caseRun) resolveTarget(t spec.Target) (int, int, *core.Element, error) {
	if t.Element != "" {
		el, err := r.resolveElement(r.in.scope.Expand(t.Element))
		if err != nil {
			return 0, 0, nil, err
		}
		x, y := el.Center()
		return x, y, el, nil
	}
	if t.Point != nil {
		x, y := t.Point.Resolve(r.in.screenW, r.in.screenH)
		return x, y, nil, nil
	}
	return 0, 0, nil, core.ErrMalformedSpec.WithMessage("step has no target")
}

// waitFor polls for the element until it appears or the budget runs out.
// This is the one polling primitive; conditionals stay single-shot.
func (r *caseRun) waitFor(s *spec.WaitForStep) (*core.Element, error) {
	timeoutMs := s.TimeoutMs
	if timeoutMs <= 0 {
		timeoutMs = r.in.cfg.WaitForTimeoutMs
	}
	text := r.in.scope.Expand(s.Element)
	deadline := time.Now().Add(time.Duration(timeoutMs) * time.Millisecond)

	for {
		el, err := r.findElement(text)
		if err != nil {
			logger.Warn("interpreter: waitFor %q listing failed: %v", text, err)
		} else if el != nil {
			return el, nil
		}

		if !time.Now().Before(deadline) {
			return nil, core.ErrWaitTimeout.WithMessage(
				fmt.Sprintf("element %q did not appear within %dms", text, timeoutMs))
		}
		if err := r.sleepMs(r.in.cfg.PollIntervalMs); err != nil {
			return nil, err
		}
	}
}

func (r *caseRun) appID(id string) string {
	if id == "" {
		return r.target
	}
	return r.in.scope.Expand(id)
}

func (r *caseRun) saveScreenshot(path string) error {
	shot, err := r.in.device.Screenshot()
	if err != nil {
		return err
	}

	path = r.in.scope.Expand(path)
	if !filepath.IsAbs(path) && r.in.OutputDir != "" {
		path = filepath.Join(r.in.OutputDir, path)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, shot, 0644)
}

// verifyScreen asks the oracle. An oracle that errors (or is missing)
// fails the verification without aborting the run.
func (r *caseRun) verifyScreen(expectation string) error {
	expectation = r.in.scope.Expand(expectation)

	shot, err := r.in.device.Screenshot()
	if err != nil {
		return core.ErrOracleFailure.WithMessage("screenshot capture failed").WithCause(err)
	}
	if r.in.oracle == nil {
		return core.ErrOracleFailure.WithMessage("no screen-match oracle configured")
	}

	ok, err := r.in.oracle.Matches(shot, expectation)
	if err != nil {
		return core.ErrOracleFailure.WithCause(err)
	}
	if !ok {
		return core.ErrScreenMismatch.WithDetails(map[string]interface{}{
			"expectation": expectation,
		})
	}
	return nil
}

func (r *caseRun) verifyElement(s *spec.VerifyElementStep) (*core.Element, error) {
	el, err := r.resolveElement(r.in.scope.Expand(s.Element))
	if err != nil {
		return nil, err
	}

	if s.Contains != "" {
		want := r.in.scope.Expand(s.Contains)
		if !strings.Contains(strings.ToLower(el.Text), strings.ToLower(want)) {
			return el, core.ErrTextMismatch.WithDetails(map[string]interface{}{
				"element":  s.Element,
				"expected": want,
				"actual":   el.Text,
			})
		}
	}
	return el, nil
}

// verifyAbsent is a single check; waiting for an element to disappear is
// the spec author's job via wait/waitFor before it.
func (r *caseRun) verifyAbsent(text string) error {
	text = r.in.scope.Expand(text)

	el, err := r.findElement(text)
	if err != nil {
		return core.NewExecutionError(core.ErrCategoryConnection, "element_listing_failed",
			"could not list elements to verify absence").WithCause(err)
	}
	if el != nil {
		return core.ErrElementStillPresent.WithDetails(map[string]interface{}{
			"element": text,
			"matched": el.Text,
		})
	}
	return nil
}
