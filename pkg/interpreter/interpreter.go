// Package interpreter executes a parsed test description against a device:
// setup, every case depth-first with dotted step numbering, teardown. The
// device and the screen-match oracle are injected interfaces; the
// interpreter itself holds no device-protocol knowledge.
package interpreter

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/devicelab-dev/touchstone/pkg/config"
	"github.com/devicelab-dev/touchstone/pkg/core"
	"github.com/devicelab-dev/touchstone/pkg/logger"
	"github.com/devicelab-dev/touchstone/pkg/spec"
)

// Interpreter runs test descriptions. One case at a time, strictly
// sequential; the device is a single-writer resource.
type Interpreter struct {
	device core.Device
	oracle core.Oracle
	cfg    config.ReplayConfig
	scope  *Scope

	// OutputDir anchors relative screenshot paths. Empty means the
	// working directory.
	OutputDir string

	// DeviceName is recorded in the run result for reports.
	DeviceName string

	screenW int
	screenH int
}

// New creates an interpreter. The oracle may be nil; verifyScreen and
// screenMatches then degrade as if the oracle had failed.
func New(device core.Device, oracle core.Oracle, cfg config.ReplayConfig) *Interpreter {
	return &Interpreter{
		device: device,
		oracle: oracle,
		cfg:    cfg,
		scope:  NewScope(),
	}
}

// SetEnv defines variables for ${VAR} interpolation in step parameters.
func (in *Interpreter) SetEnv(vars map[string]string) {
	in.scope.SetAll(vars)
}

// Run executes the full description: setup, cases, teardown. Teardown
// always runs once setup has been attempted, and a run that reaches the
// end of teardown is Completed regardless of case outcomes. The only
// fatal error is an unavailable device, detected before any step runs.
func (in *Interpreter) Run(ctx context.Context, ts *spec.TestSpec) (*core.RunResult, error) {
	if in.device == nil {
		return nil, core.ErrDeviceUnavailable.WithMessage("no device configured")
	}
	w, h, err := in.device.ScreenSize()
	if err != nil {
		return nil, core.ErrDeviceUnavailable.WithCause(err)
	}
	in.screenW, in.screenH = w, h

	result := &core.RunResult{
		RunID:     uuid.NewString(),
		Target:    ts.Target,
		Device:    in.DeviceName,
		StartTime: time.Now(),
	}
	logger.Info("interpreter: run %s started, target %s, %d case(s)", result.RunID, ts.Target, len(ts.Cases))

	setupOK := true
	if len(ts.Setup) > 0 {
		records, err := in.runBlock(ctx, ts, ts.Setup)
		result.Setup = records
		if err != nil {
			setupOK = false
			logger.Error("interpreter: setup failed, skipping all cases: %v", err)
		}
	}

	for _, tc := range ts.Cases {
		if !setupOK || ctx.Err() != nil {
			result.Cases = append(result.Cases, core.CaseResult{
				Name:      tc.Name,
				Status:    core.StatusSkipped,
				StartTime: time.Now(),
				Message:   skipReason(setupOK),
			})
			continue
		}
		result.Cases = append(result.Cases, in.runCase(ctx, ts, tc))
	}

	if len(ts.Teardown) > 0 {
		records, err := in.runBlock(ctx, ts, ts.Teardown)
		result.Teardown = records
		if err != nil {
			logger.Warn("interpreter: teardown failed: %v", err)
		}
	}

	result.Completed = true
	result.Duration = time.Since(result.StartTime)
	result.ComputeSummary()
	logger.Info("interpreter: run %s completed: %d passed, %d failed, %d skipped",
		result.RunID, result.PassedCases, result.FailedCases, result.SkippedCases)

	return result, nil
}

func skipReason(setupOK bool) string {
	if !setupOK {
		return "setup failed"
	}
	return "run cancelled"
}

// runBlock executes setup or teardown steps. These share the run's
// context; the per-case timeout does not apply to them.
func (in *Interpreter) runBlock(ctx context.Context, ts *spec.TestSpec, steps []spec.Step) ([]core.StepRecord, error) {
	r := &caseRun{in: in, ctx: ctx, target: ts.Target}
	err := r.runSteps(steps, spec.Path{})
	return r.records, err
}

// runCase executes one case under its time budget. Timeout expiry is
// treated exactly like a step failure: the case fails, later cases and
// teardown still run.
func (in *Interpreter) runCase(ctx context.Context, ts *spec.TestSpec, tc spec.TestCase) core.CaseResult {
	timeoutMs := tc.TimeoutMs
	if timeoutMs <= 0 {
		timeoutMs = in.cfg.CaseTimeoutMs
	}
	caseCtx, cancel := context.WithTimeout(ctx, time.Duration(timeoutMs)*time.Millisecond)
	defer cancel()

	cr := core.CaseResult{
		Name:        tc.Name,
		Description: tc.Description,
		StartTime:   time.Now(),
	}
	logger.Info("interpreter: case %q started", tc.Name)

	r := &caseRun{in: in, ctx: caseCtx, target: ts.Target}
	err := r.runSteps(tc.Steps, spec.Path{})

	cr.Steps = r.records
	cr.Duration = time.Since(cr.StartTime)
	if err != nil {
		cr.Status = core.StatusFailed
		cr.Error = err.Error()
		var execErr *core.ExecutionError
		if errors.As(err, &execErr) {
			cr.Message = execErr.Message
		}
		logger.Error("interpreter: case %q failed: %v", tc.Name, err)
	} else {
		cr.Status = core.StatusPassed
		logger.Info("interpreter: case %q passed", tc.Name)
	}
	return cr
}

// caseRun carries the per-case execution state: the bounded context and
// the flat record list (nested steps appear with dotted numbers).
type caseRun struct {
	in      *Interpreter
	ctx     context.Context
	target  string
	records []core.StepRecord

	// attempt is non-zero inside a retry block (1-based).
	attempt int
}

// runSteps executes a step list under the given base path. The first
// failure stops the list; the remaining steps are recorded as skipped.
func (r *caseRun) runSteps(steps []spec.Step, base spec.Path) error {
	for i, step := range steps {
		path := base.Child(i + 1)

		if err := r.ctxDone(); err != nil {
			r.recordSkipped(steps[i:], base, i)
			return err
		}

		if err := r.executeStep(step, path); err != nil {
			r.recordSkipped(steps[i+1:], base, i+1)
			return err
		}
	}
	return nil
}

// recordSkipped marks the steps from offset onward as skipped.
func (r *caseRun) recordSkipped(steps []spec.Step, base spec.Path, offset int) {
	for j, step := range steps {
		r.records = append(r.records, core.StepRecord{
			Number:    base.Child(offset + j + 1).String(),
			Command:   string(step.Kind()),
			Detail:    step.Describe(),
			Status:    core.StatusSkipped,
			StartTime: time.Now(),
		})
	}
}

// ctxDone maps context expiry onto the error taxonomy.
func (r *caseRun) ctxDone() error {
	switch {
	case r.ctx.Err() == nil:
		return nil
	case errors.Is(r.ctx.Err(), context.DeadlineExceeded):
		return core.ErrCaseTimeout
	default:
		return core.ErrCaseTimeout.WithMessage("run cancelled").WithCause(r.ctx.Err())
	}
}

// sleepMs pauses, honoring the case budget.
func (r *caseRun) sleepMs(ms int) error {
	if ms <= 0 {
		return nil
	}
	t := time.NewTimer(time.Duration(ms) * time.Millisecond)
	defer t.Stop()

	select {
	case <-r.ctx.Done():
		return r.ctxDone()
	case <-t.C:
		return nil
	}
}
