package cli

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/devicelab-dev/touchstone/pkg/logger"
)

// execOracle judges verifyScreen expectations by shelling out: the
// configured command is run with the screenshot path and the expectation
// appended as its last two arguments. Exit 0 means the screen matches,
// exit 1 means it does not, anything else is an oracle failure.
type execOracle struct {
	name string
	args []string
}

func newExecOracle(command string) (*execOracle, error) {
	parts := strings.Fields(command)
	if len(parts) == 0 {
		return nil, fmt.Errorf("empty oracle command")
	}
	return &execOracle{name: parts[0], args: parts[1:]}, nil
}

func (o *execOracle) Matches(screenshot []byte, expectation string) (bool, error) {
	tmp, err := os.MkdirTemp("", "touchstone-oracle-")
	if err != nil {
		return false, err
	}
	defer os.RemoveAll(tmp)

	shotPath := filepath.Join(tmp, "screen.png")
	if err := os.WriteFile(shotPath, screenshot, 0o600); err != nil {
		return false, err
	}

	args := append(append([]string{}, o.args...), shotPath, expectation)
	cmd := exec.Command(o.name, args...)
	cmd.Stderr = logger.GetWriter()

	err = cmd.Run()
	if err == nil {
		return true, nil
	}
	if exitErr, ok := err.(*exec.ExitError); ok && exitErr.ExitCode() == 1 {
		return false, nil
	}
	return false, fmt.Errorf("oracle command failed: %w", err)
}
