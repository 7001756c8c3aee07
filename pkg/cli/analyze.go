package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	_ "image/jpeg"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/touchstone/pkg/config"
	"github.com/devicelab-dev/touchstone/pkg/logger"
	"github.com/devicelab-dev/touchstone/pkg/record"
	"github.com/devicelab-dev/touchstone/pkg/synth"
)

var analyzeCommand = &cli.Command{
	Name:      "analyze",
	Usage:     "Detect typing bursts and checkpoints in a recorded session",
	ArgsUsage: "<session-dir>",
	Description: `Analyze a recorded session: detect keyboard typing bursts, extract
context frames from the screen recording, and score gestures for
verification checkpoints. Results land in <session-dir>/analysis.json
and feed the generate command.

A corrupt or unfinalized video degrades the analysis (no frames, no
screen-change signal) but never fails it.`,
	Action: runAnalyze,
}

// analysis is the intermediate artifact between analyze and generate.
type analysis struct {
	SessionID       string                 `json:"sessionId"`
	TypingSequences []synth.TypingSequence `json:"typingSequences,omitempty"`
	Checkpoints     []synth.Checkpoint     `json:"checkpoints,omitempty"`
	Frames          []synth.FrameSet       `json:"frames,omitempty"`
	Warnings        []string               `json:"warnings,omitempty"`
}

func analysisPath(dir string) string {
	return filepath.Join(dir, "analysis.json")
}

func loadAnalysis(dir string) (*analysis, error) {
	data, err := os.ReadFile(analysisPath(dir))
	if err != nil {
		return nil, err
	}
	var a analysis
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

func saveAnalysis(dir string, a *analysis) error {
	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(analysisPath(dir), data, 0o644)
}

func runAnalyze(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("expected exactly one session directory")
	}
	dir := c.Args().First()

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	initLogging(dir, c)
	defer logger.Close()

	meta, err := record.LoadMeta(dir)
	if err != nil {
		return err
	}
	events, err := record.LoadGestures(record.GesturesPath(dir))
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return fmt.Errorf("session %s has no gestures", meta.ID)
	}

	a := &analysis{SessionID: meta.ID}
	a.TypingSequences = synth.DetectTypingSequences(events, meta.ScreenHeight, cfg.Typing)

	a.Frames, a.Warnings = extractFrames(c.Context, dir, meta, events, cfg.Frames)
	a.Checkpoints = synth.DetectCheckpoints(events, frameShots(a.Frames), meta.ScreenWidth, meta.ScreenHeight, cfg.Checkpoint)

	if err := saveAnalysis(dir, a); err != nil {
		return err
	}

	fmt.Printf("Session %s: %d gesture(s), %d typing burst(s), %d checkpoint(s)\n",
		meta.ID, len(events), len(a.TypingSequences), len(a.Checkpoints))
	for _, w := range a.Warnings {
		fmt.Fprintf(os.Stderr, "Warning: %s\n", w)
	}
	return nil
}

// extractFrames pulls context frames from the session video. A missing
// or corrupt video is a warning, not a failure; checkpoint detection
// then runs on timing and position alone.
func extractFrames(ctx context.Context, dir string, meta *record.Meta, events []record.GestureEvent, cfg config.FrameConfig) ([]synth.FrameSet, []string) {
	if meta.Video.Path == "" {
		return nil, nil
	}
	if !meta.Video.Finalized {
		return nil, []string{"video never finalized, frames skipped"}
	}

	videoPath := filepath.Join(dir, meta.Video.Path)
	ex := synth.NewExtractor(videoPath, meta.Video.StartOffset, filepath.Join(dir, "frames"), cfg)
	sets, err := ex.ExtractAll(ctx, events)
	if err != nil {
		logger.Warn("cli: frame extraction failed: %v", err)
		return nil, []string{fmt.Sprintf("frame extraction failed: %v", err)}
	}
	return sets, nil
}

// frameShots adapts the extracted after-frames into the screenshot
// source the checkpoint detector hashes.
func frameShots(frames []synth.FrameSet) synth.ScreenshotSource {
	if len(frames) == 0 {
		return nil
	}
	byIndex := make(map[int]string, len(frames))
	for _, f := range frames {
		if f.After != "" {
			byIndex[f.GestureIndex] = f.After
		}
	}
	return func(gestureIndex int) image.Image {
		path, ok := byIndex[gestureIndex]
		if !ok {
			return nil
		}
		f, err := os.Open(path)
		if err != nil {
			return nil
		}
		defer f.Close()
		img, _, err := image.Decode(f)
		if err != nil {
			logger.Warn("cli: frame %s is unreadable: %v", path, err)
			return nil
		}
		return img
	}
}
