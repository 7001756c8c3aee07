package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/devicelab-dev/touchstone/pkg/core"
	"github.com/devicelab-dev/touchstone/pkg/synth"
)

func sampleResult() *core.RunResult {
	r := &core.RunResult{
		RunID:     "abc123",
		Target:    "com.example.app",
		Completed: true,
		StartTime: time.Now(),
		Duration:  3 * time.Second,
		Cases: []core.CaseResult{
			{
				Name:     "login",
				Status:   core.StatusPassed,
				Duration: time.Second,
				Steps: []core.StepRecord{
					{Number: "1", Command: "tap", Status: core.StatusPassed},
				},
			},
			{
				Name:     "checkout",
				Status:   core.StatusFailed,
				Duration: 2 * time.Second,
				Error:    `element "Pay" not found`,
				Steps: []core.StepRecord{
					{Number: "1", Command: "tap", Status: core.StatusFailed,
						Message: `element "Pay" not found, did you mean "Play"?`},
					{Number: "2", Command: "press", Status: core.StatusSkipped},
				},
			},
		},
	}
	r.ComputeSummary()
	return r
}

func TestWrite_RoundTrip(t *testing.T) {
	dir := t.TempDir()

	path, err := Write(dir, sampleResult())
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if filepath.Base(path) != "run-abc123.json" {
		t.Errorf("path = %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	var got core.RunResult
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.RunID != "abc123" || got.TotalCases != 2 || got.FailedCases != 1 {
		t.Errorf("got = %+v", got)
	}
	if got.Cases[1].Steps[0].Message == "" {
		t.Errorf("failure message lost in round trip")
	}
}

func TestSummarize(t *testing.T) {
	var b strings.Builder
	Summarize(&b, sampleResult())
	out := b.String()

	for _, want := range []string{
		"PASS login",
		"FAIL checkout",
		`did you mean "Play"?`,
		"2 case(s): 1 passed, 1 failed, 0 skipped",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
}

func TestManifest_RoundTrip(t *testing.T) {
	dir := t.TempDir()

	m := &Manifest{
		SessionID:     "sess-1",
		Target:        "com.example.app",
		GeneratedSpec: "test.yaml",
		GestureLog:    "gestures.jsonl",
		TypingSequences: []synth.TypingSequence{
			{StartIndex: 1, EndIndex: 3, TouchCount: 3},
		},
		Warnings: []string{"video never finalized, frames skipped"},
	}

	if _, err := WriteManifest(dir, m); err != nil {
		t.Fatalf("WriteManifest: %v", err)
	}

	got, err := LoadManifest(dir)
	if err != nil {
		t.Fatalf("LoadManifest: %v", err)
	}
	if got.SessionID != "sess-1" || len(got.TypingSequences) != 1 || len(got.Warnings) != 1 {
		t.Errorf("got = %+v", got)
	}
	if got.CreatedAt.IsZero() {
		t.Errorf("CreatedAt not stamped")
	}
}
