package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/touchstone/pkg/config"
	"github.com/devicelab-dev/touchstone/pkg/core"
	"github.com/devicelab-dev/touchstone/pkg/interpreter"
	"github.com/devicelab-dev/touchstone/pkg/logger"
	"github.com/devicelab-dev/touchstone/pkg/report"
	"github.com/devicelab-dev/touchstone/pkg/spec"
)

var testCommand = &cli.Command{
	Name:      "test",
	Usage:     "Run test descriptions on a device",
	ArgsUsage: "<test-file>...",
	Description: `Run one or more YAML test descriptions on a connected device.

Each run writes run-<id>.json into the output directory and prints a
summary. The exit code is non-zero when any case failed.

verifyScreen steps need a screen-match oracle: an external command that
gets the screenshot path and the expectation as its last two arguments
and exits 0 on a match. Without --oracle those steps fail as degraded.

Examples:
  touchstone test test.yaml
  touchstone test login.yaml checkout.yaml -e USER=alice -e PASS=secret
  touchstone --device mock test test.yaml
  touchstone test test.yaml --oracle "python3 judge.py"`,
	Flags: []cli.Flag{
		&cli.StringSliceFlag{
			Name:    "env",
			Aliases: []string{"e"},
			Usage:   "Variables for ${VAR} interpolation (KEY=VALUE)",
		},
		&cli.StringFlag{
			Name:  "output",
			Usage: "Output directory for run reports (default: <home>/reports)",
		},
		&cli.StringFlag{
			Name:    "oracle",
			Usage:   "Screen-match oracle command for verifyScreen steps",
			EnvVars: []string{"TOUCHSTONE_ORACLE"},
		},
	},
	Action: runTest,
}

func runTest(c *cli.Context) error {
	if c.NArg() == 0 {
		return fmt.Errorf("no test files given")
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	env, err := parseEnvFlags(c.StringSlice("env"))
	if err != nil {
		return err
	}
	for k, v := range cfg.Env {
		if _, ok := env[k]; !ok {
			env[k] = v
		}
	}

	outputDir := c.String("output")
	if outputDir == "" {
		outputDir = config.GetReportsDir()
	}
	initLogging(outputDir, c)
	defer logger.Close()

	dev, deviceName, err := openDevice(c, cfg)
	if err != nil {
		return err
	}

	var oracle core.Oracle
	if command := c.String("oracle"); command != "" {
		if oracle, err = newExecOracle(command); err != nil {
			return err
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	failed := 0
	for _, path := range c.Args().Slice() {
		ts, err := spec.ParseFile(path)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}

		in := interpreter.New(dev, oracle, cfg.Replay)
		in.OutputDir = outputDir
		in.DeviceName = deviceName
		in.SetEnv(env)

		result, err := in.Run(ctx, ts)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}

		if _, err := report.Write(outputDir, result); err != nil {
			logger.Warn("cli: report write failed: %v", err)
			fmt.Fprintf(os.Stderr, "Warning: report write failed: %v\n", err)
		}
		report.Summarize(os.Stdout, result)
		fmt.Println()

		if !result.Success() {
			failed++
		}
		if ctx.Err() != nil {
			break
		}
	}

	if failed > 0 {
		return cli.Exit(fmt.Sprintf("%d run(s) had failures", failed), 1)
	}
	return nil
}
