// Package report persists run results and synthesis artifacts as JSON and
// renders the console summary.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/devicelab-dev/touchstone/pkg/core"
)

// Write stores a run result as run-<id>.json in the output directory and
// returns the written path.
func Write(outputDir string, result *core.RunResult) (string, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", err
	}

	path := filepath.Join(outputDir, "run-"+result.RunID+".json")
	if err := atomicWriteJSON(path, result); err != nil {
		return "", fmt.Errorf("write run report: %w", err)
	}
	return path, nil
}

// atomicWriteJSON writes JSON via a temp file and rename so a crashed
// writer never leaves a truncated report behind.
func atomicWriteJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Summarize prints a human-readable run summary.
func Summarize(w io.Writer, result *core.RunResult) {
	fmt.Fprintf(w, "Run %s (%s)\n", result.RunID, result.Target)

	for _, c := range result.Cases {
		fmt.Fprintf(w, "  %s %s (%s)\n", statusMark(c.Status), c.Name, c.Duration.Round(time.Millisecond))
		if c.Status != core.StatusFailed {
			continue
		}
		for _, step := range c.Steps {
			if step.Status == core.StatusFailed {
				fmt.Fprintf(w, "      step %s %s: %s\n", step.Number, step.Command, failureLine(step))
			}
		}
	}

	fmt.Fprintf(w, "\n%d case(s): %d passed, %d failed, %d skipped in %s\n",
		result.TotalCases, result.PassedCases, result.FailedCases, result.SkippedCases,
		result.Duration.Round(time.Millisecond))
}

func statusMark(s core.StepStatus) string {
	switch s {
	case core.StatusPassed:
		return "PASS"
	case core.StatusFailed:
		return "FAIL"
	case core.StatusSkipped:
		return "SKIP"
	default:
		return "----"
	}
}

func failureLine(step core.StepRecord) string {
	if step.Message != "" {
		return step.Message
	}
	return step.Error
}
