// Package cli provides the command-line interface for touchstone.
package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/touchstone/pkg/config"
	"github.com/devicelab-dev/touchstone/pkg/core"
	"github.com/devicelab-dev/touchstone/pkg/device"
	"github.com/devicelab-dev/touchstone/pkg/logger"
)

// Version is set at build time.
var Version = "dev"

// GlobalFlags are available to all commands.
var GlobalFlags = []cli.Flag{
	&cli.StringFlag{
		Name:    "device",
		Aliases: []string{"d"},
		Usage:   "Device serial to use (\"mock\" for an in-memory device)",
		EnvVars: []string{"TOUCHSTONE_DEVICE"},
	},
	&cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to touchstone.yaml (default: look in working directory)",
		EnvVars: []string{"TOUCHSTONE_CONFIG"},
	},
	&cli.BoolFlag{
		Name:    "verbose",
		Usage:   "Echo warnings and errors to stderr",
		EnvVars: []string{"TOUCHSTONE_VERBOSE"},
	},
}

// Execute runs the CLI.
func Execute() {
	app := &cli.App{
		Name:    "touchstone",
		Usage:   "Record touch sessions and turn them into runnable UI tests",
		Version: Version,
		Description: `Touchstone records real touch interaction on an Android device,
synthesizes a declarative test description from the recording, and
replays test descriptions against a device.

Examples:
  touchstone record --app com.example.app
  touchstone analyze sessions/<id>
  touchstone generate sessions/<id>
  touchstone test test.yaml -e USER=alice
  touchstone validate flows/*.yaml`,
		Flags: GlobalFlags,
		Commands: []*cli.Command{
			recordCommand,
			analyzeCommand,
			generateCommand,
			testCommand,
			validateCommand,
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig resolves configuration: an explicit --config path wins,
// otherwise the working directory is searched for touchstone.yaml.
func loadConfig(c *cli.Context) (*config.Config, error) {
	if path := c.String("config"); path != "" {
		cfg, err := config.Load(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load config %s: %w", path, err)
		}
		return cfg, nil
	}
	return config.LoadFromDir(".")
}

// openDevice connects to the device named by the --device flag or the
// config file. The reserved serial "mock" returns an in-memory device
// for dry runs.
func openDevice(c *cli.Context, cfg *config.Config) (core.Device, string, error) {
	serial := c.String("device")
	if serial == "" {
		serial = cfg.Device
	}
	if serial == "mock" {
		return device.NewMock(), "mock", nil
	}

	dev, err := device.New(serial)
	if err != nil {
		return nil, "", err
	}
	return dev, dev.Serial(), nil
}

// initLogging points the global logger at a file inside dir.
func initLogging(dir string, c *cli.Context) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to create %s: %v\n", dir, err)
		return
	}
	logPath := filepath.Join(dir, "touchstone.log")
	if err := logger.Init(logPath, c.Bool("verbose")); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to initialize logger: %v\n", err)
	}
}

// parseEnvFlags turns repeated -e KEY=VALUE flags into a map.
func parseEnvFlags(pairs []string) (map[string]string, error) {
	env := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid env variable %q, expected KEY=VALUE", pair)
		}
		env[key] = value
	}
	return env, nil
}
