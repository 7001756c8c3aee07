package interpreter

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/devicelab-dev/touchstone/pkg/config"
	"github.com/devicelab-dev/touchstone/pkg/core"
	"github.com/devicelab-dev/touchstone/pkg/spec"
)

// mockDevice records every call; listFunc lets tests vary the visible
// elements per listing.
type mockDevice struct {
	elements []core.Element
	listFunc func(call int) ([]core.Element, error)

	listCalls  int
	taps       [][2]int
	swipes     []string
	typed      []string
	pressed    []string
	launched   []string
	terminated []string

	shot    []byte
	shotErr error
	sizeErr error
}

func (m *mockDevice) ScreenSize() (int, int, error) {
	if m.sizeErr != nil {
		return 0, 0, m.sizeErr
	}
	return 1080, 2400, nil
}

func (m *mockDevice) ListElements() ([]core.Element, error) {
	m.listCalls++
	if m.listFunc != nil {
		return m.listFunc(m.listCalls)
	}
	return m.elements, nil
}

func (m *mockDevice) Tap(x, y int) error {
	m.taps = append(m.taps, [2]int{x, y})
	return nil
}

func (m *mockDevice) DoubleTap(x, y int) error {
	m.taps = append(m.taps, [2]int{x, y})
	return nil
}

func (m *mockDevice) LongPress(x, y int, _ time.Duration) error {
	m.taps = append(m.taps, [2]int{x, y})
	return nil
}

func (m *mockDevice) Swipe(direction string, _ int) error {
	m.swipes = append(m.swipes, direction)
	return nil
}

func (m *mockDevice) TypeText(text string, _ bool) error {
	m.typed = append(m.typed, text)
	return nil
}

func (m *mockDevice) PressButton(name string) error {
	m.pressed = append(m.pressed, name)
	return nil
}

func (m *mockDevice) Screenshot() ([]byte, error) {
	if m.shotErr != nil {
		return nil, m.shotErr
	}
	if m.shot != nil {
		return m.shot, nil
	}
	return []byte("png"), nil
}

func (m *mockDevice) LaunchApp(appID string) error {
	m.launched = append(m.launched, appID)
	return nil
}

func (m *mockDevice) TerminateApp(appID string) error {
	m.terminated = append(m.terminated, appID)
	return nil
}

func (m *mockDevice) SetOrientation(string) error { return nil }
func (m *mockDevice) OpenURL(string) error        { return nil }

type stubOracle struct {
	ok    bool
	err   error
	calls int
}

func (o *stubOracle) Matches([]byte, string) (bool, error) {
	o.calls++
	return o.ok, o.err
}

func testConfig() config.ReplayConfig {
	cfg := config.Default().Replay
	cfg.ResolveDelayMs = 1
	cfg.PollIntervalMs = 1
	return cfg
}

func mustParse(t *testing.T, doc string) *spec.TestSpec {
	t.Helper()
	ts, err := spec.Parse([]byte(doc), "test.yaml")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return ts
}

func element(text string, x, y int) core.Element {
	return core.Element{Text: text, X: x, Y: y, Width: 100, Height: 40}
}

func TestRun_DeviceUnavailable(t *testing.T) {
	dev := &mockDevice{sizeErr: errors.New("no devices/emulators found")}
	in := New(dev, nil, testConfig())

	_, err := in.Run(context.Background(), &spec.TestSpec{Target: "com.example.app"})
	if !errors.Is(err, core.ErrDeviceUnavailable) {
		t.Fatalf("expected device unavailable, got %v", err)
	}
}

func TestRun_FullPass(t *testing.T) {
	dev := &mockDevice{elements: []core.Element{element("Login", 100, 200)}}
	in := New(dev, nil, testConfig())

	ts := mustParse(t, `
target: com.example.app
setup:
  - launchApp
teardown:
  - terminateApp
cases:
  - name: login
    steps:
      - tap: "Login"
      - type: "hello"
      - press: back
`)

	result, err := in.Run(context.Background(), ts)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if !result.Completed || !result.Success() {
		t.Errorf("result = completed %v, success %v", result.Completed, result.Success())
	}
	if result.PassedCases != 1 {
		t.Errorf("passed cases = %d", result.PassedCases)
	}
	if len(dev.launched) != 1 || dev.launched[0] != "com.example.app" {
		t.Errorf("launched = %v, want target app", dev.launched)
	}
	if len(dev.terminated) != 1 {
		t.Errorf("terminated = %v", dev.terminated)
	}
	// Tap lands on the element's center
	if len(dev.taps) != 1 || dev.taps[0] != [2]int{150, 220} {
		t.Errorf("taps = %v", dev.taps)
	}

	steps := result.Cases[0].Steps
	if len(steps) != 3 {
		t.Fatalf("got %d step records", len(steps))
	}
	for i, rec := range steps {
		if rec.Number != fmt.Sprintf("%d", i+1) {
			t.Errorf("step %d number = %q", i, rec.Number)
		}
		if rec.Status != core.StatusPassed {
			t.Errorf("step %s status = %s", rec.Number, rec.Status)
		}
	}
}

func TestRun_ElseBranchNumbering(t *testing.T) {
	// No "Login" visible: the conditional takes the else branch. Branch
	// steps get decimal suffixes and the following top-level steps keep
	// the integer sequence.
	dev := &mockDevice{}
	in := New(dev, nil, testConfig())

	ts := mustParse(t, `
target: com.example.app
cases:
  - name: numbering
    steps:
      - wait: 1
      - wait: 1
      - if:
          present: "Login"
          then:
            - wait: 1
          else:
            - wait: 1
            - wait: 1
      - wait: 1
      - wait: 1
`)

	result, err := in.Run(context.Background(), ts)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	var numbers []string
	for _, rec := range result.Cases[0].Steps {
		numbers = append(numbers, rec.Number)
	}
	want := "1 2 3 3.1 3.2 4 5"
	if got := strings.Join(numbers, " "); got != want {
		t.Errorf("numbering = %q, want %q", got, want)
	}
	if result.Cases[0].Status != core.StatusPassed {
		t.Errorf("case status = %s", result.Cases[0].Status)
	}
}

func TestRun_ConditionalFalseWithoutElse(t *testing.T) {
	dev := &mockDevice{}
	in := New(dev, nil, testConfig())

	ts := mustParse(t, `
target: com.example.app
cases:
  - name: skip-branch
    steps:
      - if:
          present: "Login"
          then:
            - tap: "Login"
      - press: back
`)

	result, err := in.Run(context.Background(), ts)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Cases[0].Status != core.StatusPassed {
		t.Fatalf("case failed: %s", result.Cases[0].Error)
	}
	if len(dev.taps) != 0 {
		t.Errorf("then branch executed: %v", dev.taps)
	}
	if len(dev.pressed) != 1 {
		t.Errorf("case did not continue past the conditional")
	}
}

func TestRun_ConditionAPIFailureIsFalse(t *testing.T) {
	dev := &mockDevice{listFunc: func(int) ([]core.Element, error) {
		return nil, errors.New("uiautomator crashed")
	}}
	in := New(dev, nil, testConfig())

	ts := mustParse(t, `
target: com.example.app
cases:
  - name: degraded
    steps:
      - if:
          present: "Login"
          then:
            - type: "then"
          else:
            - type: "else"
`)

	result, err := in.Run(context.Background(), ts)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Cases[0].Status != core.StatusPassed {
		t.Fatalf("listing failure must not fail the case: %s", result.Cases[0].Error)
	}
	if len(dev.typed) != 1 || dev.typed[0] != "else" {
		t.Errorf("typed = %v, want else branch", dev.typed)
	}
}

func TestRun_ElementNotFoundDiagnostic(t *testing.T) {
	dev := &mockDevice{elements: []core.Element{
		element("Password", 100, 300),
		element("Username", 100, 200),
	}}
	in := New(dev, nil, testConfig())

	ts := mustParse(t, `
target: com.example.app
teardown:
  - terminateApp
cases:
  - name: lookup
    steps:
      - tap: "Pasword"
      - press: back
`)

	result, err := in.Run(context.Background(), ts)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if dev.listCalls != 3 {
		t.Errorf("list calls = %d, want 3 lookup attempts", dev.listCalls)
	}

	cr := result.Cases[0]
	if cr.Status != core.StatusFailed {
		t.Fatalf("case status = %s", cr.Status)
	}
	if !strings.Contains(cr.Message, "Password") {
		t.Errorf("message %q lacks the fuzzy hint", cr.Message)
	}
	if cr.Steps[0].Category != core.ErrCategoryAssertion {
		t.Errorf("category = %s", cr.Steps[0].Category)
	}
	if cr.Steps[1].Status != core.StatusSkipped {
		t.Errorf("remaining step not skipped: %+v", cr.Steps[1])
	}

	// Teardown still ran, the run still completed.
	if len(dev.terminated) != 1 {
		t.Errorf("teardown skipped after failure")
	}
	if !result.Completed {
		t.Errorf("run not completed")
	}
	if result.FailedCases != 1 {
		t.Errorf("failed cases = %d", result.FailedCases)
	}
}

func TestRun_WaitForPollsUntilVisible(t *testing.T) {
	dev := &mockDevice{listFunc: func(call int) ([]core.Element, error) {
		if call < 3 {
			return nil, nil
		}
		return []core.Element{element("Inbox", 10, 10)}, nil
	}}
	in := New(dev, nil, testConfig())

	ts := mustParse(t, `
target: com.example.app
cases:
  - name: wait
    steps:
      - waitFor: "Inbox"
`)

	result, err := in.Run(context.Background(), ts)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Cases[0].Status != core.StatusPassed {
		t.Fatalf("case failed: %s", result.Cases[0].Error)
	}
	if dev.listCalls != 3 {
		t.Errorf("list calls = %d, want 3 polls", dev.listCalls)
	}
}

func TestRun_WaitForTimesOut(t *testing.T) {
	dev := &mockDevice{}
	in := New(dev, nil, testConfig())

	ts := mustParse(t, `
target: com.example.app
cases:
  - name: wait
    steps:
      - waitFor: {element: "Inbox", timeout: 20}
`)

	result, err := in.Run(context.Background(), ts)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	cr := result.Cases[0]
	if cr.Status != core.StatusFailed {
		t.Fatalf("case status = %s", cr.Status)
	}
	if cr.Steps[0].Category != core.ErrCategoryTimeout {
		t.Errorf("category = %s", cr.Steps[0].Category)
	}
}

func TestRun_CaseTimeoutIsStepFailure(t *testing.T) {
	dev := &mockDevice{}
	in := New(dev, nil, testConfig())

	ts := mustParse(t, `
target: com.example.app
teardown:
  - terminateApp
cases:
  - name: slow
    timeout: 30
    steps:
      - wait: 5000
      - press: back
  - name: after
    steps:
      - press: back
`)

	start := time.Now()
	result, err := in.Run(context.Background(), ts)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Errorf("timeout did not cut the wait short")
	}

	slow := result.Cases[0]
	if slow.Status != core.StatusFailed {
		t.Fatalf("case status = %s", slow.Status)
	}
	if slow.Steps[0].Category != core.ErrCategoryTimeout {
		t.Errorf("step record = %+v", slow.Steps[0])
	}

	// The next case and teardown still run.
	if result.Cases[1].Status != core.StatusPassed {
		t.Errorf("later case = %s", result.Cases[1].Status)
	}
	if len(dev.terminated) != 1 {
		t.Errorf("teardown skipped")
	}
	if !result.Completed {
		t.Errorf("run not completed")
	}
}

func TestRun_SetupFailureSkipsCases(t *testing.T) {
	dev := &mockDevice{}
	cfg := testConfig()
	cfg.ResolveAttempts = 1
	in := New(dev, nil, cfg)

	ts := mustParse(t, `
target: com.example.app
setup:
  - tap: "Missing"
teardown:
  - terminateApp
cases:
  - name: never-runs
    steps:
      - press: back
`)

	result, err := in.Run(context.Background(), ts)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Cases[0].Status != core.StatusSkipped {
		t.Errorf("case = %s, want skipped", result.Cases[0].Status)
	}
	if len(dev.pressed) != 0 {
		t.Errorf("case steps ran despite setup failure")
	}
	if len(dev.terminated) != 1 {
		t.Errorf("teardown skipped")
	}
	if result.Success() {
		t.Errorf("run with no passed case must not be a success")
	}
}

func TestRun_RetryRecovers(t *testing.T) {
	dev := &mockDevice{listFunc: func(call int) ([]core.Element, error) {
		if call < 2 {
			return nil, nil
		}
		return []core.Element{element("Flaky", 10, 10)}, nil
	}}
	cfg := testConfig()
	cfg.ResolveAttempts = 1
	in := New(dev, nil, cfg)

	ts := mustParse(t, `
target: com.example.app
cases:
  - name: retry
    steps:
      - retry:
          attempts: 3
          delay: 1
          steps:
            - tap: "Flaky"
`)

	result, err := in.Run(context.Background(), ts)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	cr := result.Cases[0]
	if cr.Status != core.StatusPassed {
		t.Fatalf("case failed: %s", cr.Error)
	}

	// Block record first, then one failed attempt and one passed.
	if cr.Steps[0].Command != "retry" || cr.Steps[0].Status != core.StatusPassed {
		t.Errorf("retry record = %+v", cr.Steps[0])
	}
	var attempts []int
	for _, rec := range cr.Steps[1:] {
		if rec.Number == "1.1" {
			attempts = append(attempts, rec.Attempt)
		}
	}
	if len(attempts) != 2 || attempts[0] != 1 || attempts[1] != 2 {
		t.Errorf("attempts = %v, want [1 2]", attempts)
	}
}

func TestRun_RetryExhausted(t *testing.T) {
	dev := &mockDevice{}
	cfg := testConfig()
	cfg.ResolveAttempts = 1
	in := New(dev, nil, cfg)

	ts := mustParse(t, `
target: com.example.app
cases:
  - name: retry
    steps:
      - retry:
          attempts: 2
          delay: 1
          steps:
            - tap: "Never"
`)

	result, err := in.Run(context.Background(), ts)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	cr := result.Cases[0]
	if cr.Status != core.StatusFailed {
		t.Fatalf("case status = %s", cr.Status)
	}
	if cr.Steps[0].Command != "retry" || cr.Steps[0].Status != core.StatusFailed {
		t.Errorf("retry record = %+v", cr.Steps[0])
	}
}

func TestRun_RepeatRunsBlockTimes(t *testing.T) {
	dev := &mockDevice{}
	in := New(dev, nil, testConfig())

	ts := mustParse(t, `
target: com.example.app
cases:
  - name: repeat
    steps:
      - repeat:
          times: 3
          steps:
            - press: back
`)

	result, err := in.Run(context.Background(), ts)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Cases[0].Status != core.StatusPassed {
		t.Fatalf("case failed: %s", result.Cases[0].Error)
	}
	if len(dev.pressed) != 3 {
		t.Errorf("pressed %d times, want 3", len(dev.pressed))
	}
}

func TestRun_VerifyScreen(t *testing.T) {
	tests := []struct {
		name       string
		oracle     *stubOracle
		wantStatus core.StepStatus
		wantCat    core.ErrorCategory
	}{
		{"match", &stubOracle{ok: true}, core.StatusPassed, core.ErrCategoryNone},
		{"mismatch", &stubOracle{ok: false}, core.StatusFailed, core.ErrCategoryAssertion},
		{"oracle error", &stubOracle{err: errors.New("model unreachable")}, core.StatusFailed, core.ErrCategoryOracle},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := &mockDevice{}
			in := New(dev, tt.oracle, testConfig())

			ts := mustParse(t, `
target: com.example.app
cases:
  - name: verify
    steps:
      - verifyScreen: "the inbox is visible"
`)
			result, err := in.Run(context.Background(), ts)
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			rec := result.Cases[0].Steps[0]
			if rec.Status != tt.wantStatus || rec.Category != tt.wantCat {
				t.Errorf("record = %s/%s, want %s/%s", rec.Status, rec.Category, tt.wantStatus, tt.wantCat)
			}
			if tt.oracle.calls != 1 {
				t.Errorf("oracle calls = %d", tt.oracle.calls)
			}
			// Oracle trouble is never fatal to the run.
			if !result.Completed {
				t.Errorf("run not completed")
			}
		})
	}
}

func TestRun_VerifyElementContains(t *testing.T) {
	dev := &mockDevice{elements: []core.Element{element("Inbox (2 unread)", 10, 10)}}
	in := New(dev, nil, testConfig())

	ts := mustParse(t, `
target: com.example.app
cases:
  - name: verify
    steps:
      - verifyElement: {element: "Inbox", contains: "3 unread"}
`)

	result, err := in.Run(context.Background(), ts)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	rec := result.Cases[0].Steps[0]
	if rec.Status != core.StatusFailed || rec.Category != core.ErrCategoryAssertion {
		t.Errorf("record = %+v", rec)
	}
}

func TestRun_VerifyAbsent(t *testing.T) {
	dev := &mockDevice{elements: []core.Element{element("Loading", 10, 10)}}
	in := New(dev, nil, testConfig())

	ts := mustParse(t, `
target: com.example.app
cases:
  - name: verify
    steps:
      - verifyAbsent: "Loading"
`)

	result, err := in.Run(context.Background(), ts)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	rec := result.Cases[0].Steps[0]
	if rec.Status != core.StatusFailed {
		t.Errorf("still-present element must fail the step: %+v", rec)
	}
	if dev.listCalls != 1 {
		t.Errorf("verifyAbsent must be a single check, got %d listings", dev.listCalls)
	}
}

func TestRun_InterpolatesStepParameters(t *testing.T) {
	dev := &mockDevice{elements: []core.Element{element("Sign in as alice", 10, 10)}}
	in := New(dev, nil, testConfig())
	in.SetEnv(map[string]string{"USER": "alice"})

	ts := mustParse(t, `
target: com.example.app
cases:
  - name: vars
    steps:
      - tap: "Sign in as $USER"
      - type: "${USER.toUpperCase()}"
`)

	result, err := in.Run(context.Background(), ts)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Cases[0].Status != core.StatusPassed {
		t.Fatalf("case failed: %s", result.Cases[0].Error)
	}
	if len(dev.typed) != 1 || dev.typed[0] != "ALICE" {
		t.Errorf("typed = %v", dev.typed)
	}
}
