package cli

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/touchstone/pkg/spec"
)

var validateCommand = &cli.Command{
	Name:      "validate",
	Usage:     "Parse test descriptions without running them",
	ArgsUsage: "<test-file>...",
	Description: `Parse one or more test descriptions and report syntax errors with
file and line. No device is needed.

Examples:
  touchstone validate test.yaml
  touchstone validate flows/*.yaml`,
	Action: runValidate,
}

func runValidate(c *cli.Context) error {
	if c.NArg() == 0 {
		return fmt.Errorf("no test files given")
	}

	invalid := 0
	for _, path := range c.Args().Slice() {
		ts, err := spec.ParseFile(path)
		if err != nil {
			invalid++
			fmt.Printf("FAIL %s\n     %v\n", path, err)
			continue
		}
		fmt.Printf("OK   %s (%d case(s))\n", path, len(ts.Cases))
	}

	if invalid > 0 {
		return cli.Exit(fmt.Sprintf("%d file(s) failed validation", invalid), 1)
	}
	return nil
}
