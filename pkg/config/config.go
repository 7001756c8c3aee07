// Package config holds the tunable heuristics for gesture classification,
// typing detection, checkpoint scoring, frame extraction, and replay.
// Every threshold has a default matching the values the pipeline was
// calibrated with; a YAML file overrides individual fields.
package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration (touchstone.yaml).
type Config struct {
	Gesture    GestureConfig    `yaml:"gesture"`
	Typing     TypingConfig     `yaml:"typing"`
	Checkpoint CheckpointConfig `yaml:"checkpoint"`
	Frames     FrameConfig      `yaml:"frames"`
	Replay     ReplayConfig     `yaml:"replay"`

	// Env variables made available to ${VAR} interpolation in specs.
	Env map[string]string `yaml:"env"`

	// Device is the default device serial.
	Device string `yaml:"device"`
}

// GestureConfig controls how raw touch traces become gestures.
type GestureConfig struct {
	// TapMaxDisplacement is the displacement (px) below which a touch
	// counts as stationary.
	TapMaxDisplacement float64 `yaml:"tapMaxDisplacement"`
	// SwipeMinDisplacement is the displacement (px) at which a touch
	// becomes a swipe regardless of duration.
	SwipeMinDisplacement float64 `yaml:"swipeMinDisplacement"`
	// LongPressMs is the hold duration at which a stationary touch
	// becomes a long-press.
	LongPressMs int `yaml:"longPressMs"`
	// QuickTapMs biases ambiguous displacements toward tap when the
	// touch was short.
	QuickTapMs int `yaml:"quickTapMs"`
}

// TypingConfig controls keyboard-burst detection.
type TypingConfig struct {
	// KeyboardRegion is the fraction of screen height below which taps
	// are considered keyboard taps (0.6 means the bottom 40%).
	KeyboardRegion float64 `yaml:"keyboardRegion"`
	// MaxGapMs is the largest pause between two taps of one burst.
	MaxGapMs int `yaml:"maxGapMs"`
	// MinTaps is the minimum burst length.
	MinTaps int `yaml:"minTaps"`
	// MinSpreadX is the minimum standard deviation of tap x positions
	// (px); a burst on one spot is repeated tapping, not typing.
	MinSpreadX float64 `yaml:"minSpreadX"`
}

// CheckpointConfig controls verification-point scoring.
type CheckpointConfig struct {
	// Weights of the three scoring signals.
	HashWeight       float64 `yaml:"hashWeight"`
	DwellWeight      float64 `yaml:"dwellWeight"`
	NavigationWeight float64 `yaml:"navigationWeight"`

	// DwellMs is the pause after a gesture that signals the user was
	// inspecting the result.
	DwellMs int `yaml:"dwellMs"`

	// MaxCheckpoints caps how many verification points one recording
	// yields. MinSpacing keeps selected checkpoints at least this many
	// gestures apart.
	MaxCheckpoints int `yaml:"maxCheckpoints"`
	MinSpacing     int `yaml:"minSpacing"`
}

// FrameConfig controls video frame extraction.
type FrameConfig struct {
	// BeforeMs and AfterMs position the context frames relative to
	// touch start and finger lift. ActionLeadMs positions the action
	// frame just before touch start.
	BeforeMs     int `yaml:"beforeMs"`
	ActionLeadMs int `yaml:"actionLeadMs"`
	AfterMs      int `yaml:"afterMs"`

	// SafetyMarginMs keeps extracted frames clear of the neighbouring
	// gestures' windows.
	SafetyMarginMs int `yaml:"safetyMarginMs"`

	// Workers bounds the parallel ffmpeg invocations.
	Workers int `yaml:"workers"`
}

// ReplayConfig controls the interpreter.
type ReplayConfig struct {
	// ResolveAttempts and ResolveDelayMs govern element lookup retries.
	ResolveAttempts int `yaml:"resolveAttempts"`
	ResolveDelayMs  int `yaml:"resolveDelayMs"`

	// WaitForTimeoutMs is the default waitFor budget.
	WaitForTimeoutMs int `yaml:"waitForTimeoutMs"`
	// PollIntervalMs is the waitFor polling interval.
	PollIntervalMs int `yaml:"pollIntervalMs"`

	// CaseTimeoutMs applies to cases that do not set their own budget.
	CaseTimeoutMs int `yaml:"caseTimeoutMs"`
}

// Default returns the calibrated defaults.
func Default() *Config {
	return &Config{
		Gesture: GestureConfig{
			TapMaxDisplacement:   20,
			SwipeMinDisplacement: 100,
			LongPressMs:          500,
			QuickTapMs:           200,
		},
		Typing: TypingConfig{
			KeyboardRegion: 0.6,
			MaxGapMs:       1000,
			MinTaps:        3,
			MinSpreadX:     50,
		},
		Checkpoint: CheckpointConfig{
			HashWeight:       50,
			DwellWeight:      20,
			NavigationWeight: 15,
			DwellMs:          2000,
			MaxCheckpoints:   8,
			MinSpacing:       3,
		},
		Frames: FrameConfig{
			BeforeMs:       500,
			ActionLeadMs:   300,
			AfterMs:        500,
			SafetyMarginMs: 50,
			Workers:        4,
		},
		Replay: ReplayConfig{
			ResolveAttempts:  3,
			ResolveDelayMs:   500,
			WaitForTimeoutMs: 10000,
			PollIntervalMs:   500,
			CaseTimeoutMs:    120000,
		},
	}
}

// Load loads configuration from a file, overriding defaults field by field.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) //#nosec G304 -- user-provided config file
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromDir looks for touchstone.yaml or touchstone.yml in the directory.
func LoadFromDir(dir string) (*Config, error) {
	configPath := filepath.Join(dir, "touchstone.yaml")
	if _, err := os.Stat(configPath); err == nil {
		return Load(configPath)
	}

	configPath = filepath.Join(dir, "touchstone.yml")
	if _, err := os.Stat(configPath); err == nil {
		return Load(configPath)
	}

	// No config file found, run with defaults
	return Default(), nil
}
