package synth

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/devicelab-dev/touchstone/pkg/config"
	"github.com/devicelab-dev/touchstone/pkg/core"
	"github.com/devicelab-dev/touchstone/pkg/logger"
	"github.com/devicelab-dev/touchstone/pkg/record"
)

// FrameSet holds the extracted frames for one gesture: context before
// the touch, the moment just before the finger landed, and the settled
// result after the lift. Empty paths mean that frame was skipped.
type FrameSet struct {
	GestureIndex int    `json:"gestureIndex"`
	Before       string `json:"before,omitempty"`
	Action       string `json:"action,omitempty"`
	After        string `json:"after,omitempty"`
}

// Extractor pulls still frames out of a session's screen recording.
type Extractor struct {
	videoPath  string
	videoStart float64 // video start on the gesture clock
	outDir     string
	cfg        config.FrameConfig

	// runCommand is swapped out in tests.
	runCommand func(ctx context.Context, name string, args ...string) ([]byte, error)
}

// NewExtractor creates an extractor for a session video. videoStart is
// the video's start time on the gesture clock.
func NewExtractor(videoPath string, videoStart float64, outDir string, cfg config.FrameConfig) *Extractor {
	return &Extractor{
		videoPath:  videoPath,
		videoStart: videoStart,
		outDir:     outDir,
		cfg:        cfg,
		runCommand: runCommand,
	}
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return out, fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(out)))
	}
	return out, nil
}

// Probe returns the video duration. A video that never finalized (the
// recorder was killed before the moov atom was written) fails here.
func (e *Extractor) Probe(ctx context.Context) (float64, error) {
	out, err := e.runCommand(ctx, "ffprobe",
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		e.videoPath)
	if err != nil {
		return 0, core.ErrCaptureCorruption.
			WithMessage("video is unreadable or was never finalized").
			WithCause(err)
	}

	d, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil || d <= 0 {
		return 0, core.ErrCaptureCorruption.
			WithMessage("video reports no duration")
	}
	return d, nil
}

// ExtractAll extracts the frame sets for every gesture, bounded by the
// configured worker count. Individual frame failures are logged and
// leave a gap; only a corrupt video aborts the whole extraction.
func (e *Extractor) ExtractAll(ctx context.Context, events []record.GestureEvent) ([]FrameSet, error) {
	duration, err := e.Probe(ctx)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(e.outDir, 0755); err != nil {
		return nil, err
	}

	sets := make([]FrameSet, len(events))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Workers)

	for i := range events {
		i := i
		sets[i].GestureIndex = events[i].Index
		g.Go(func() error {
			e.extractGesture(ctx, events, i, duration, &sets[i])
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return sets, nil
}

// extractGesture computes the three frame times for one gesture and
// pulls them. The gesture timestamp is the finger lift, so the touch
// start is timestamp minus duration. Before/after times are clamped
// into the gap between the neighbouring gestures with a safety margin,
// so one step's frames never show another step's action.
func (e *Extractor) extractGesture(ctx context.Context, events []record.GestureEvent, i int, duration float64, set *FrameSet) {
	ev := events[i]
	margin := float64(e.cfg.SafetyMarginMs) / 1000

	touchStart := ev.Timestamp - float64(ev.DurationMs)/1000

	before := touchStart - float64(e.cfg.BeforeMs)/1000
	action := touchStart - float64(e.cfg.ActionLeadMs)/1000
	after := ev.Timestamp + float64(e.cfg.AfterMs)/1000

	if i > 0 {
		floor := events[i-1].Timestamp + margin
		if before < floor {
			before = floor
		}
		if action < floor {
			action = floor
		}
	}
	if i+1 < len(events) {
		nextStart := events[i+1].Timestamp - float64(events[i+1].DurationMs)/1000
		if ceil := nextStart - margin; after > ceil {
			after = ceil
		}
	}

	set.Before = e.extractFrame(ctx, before, duration, ev.Index, "before")
	set.Action = e.extractFrame(ctx, action, duration, ev.Index, "action")
	set.After = e.extractFrame(ctx, after, duration, ev.Index, "after")
}

// extractFrame pulls a single frame at a gesture-clock time. Returns
// the written path, or "" when the time falls outside the video or
// ffmpeg fails.
func (e *Extractor) extractFrame(ctx context.Context, t, duration float64, index int, label string) string {
	videoTime := t - e.videoStart
	if videoTime < 0 {
		videoTime = 0
	}
	if videoTime >= duration {
		videoTime = duration - 0.001
	}
	if videoTime < 0 {
		return ""
	}

	out := filepath.Join(e.outDir, fmt.Sprintf("gesture_%03d_%s.jpg", index, label))
	_, err := e.runCommand(ctx, "ffmpeg",
		"-y",
		"-ss", fmt.Sprintf("%.3f", videoTime),
		"-i", e.videoPath,
		"-frames:v", "1",
		"-q:v", "2",
		out)
	if err != nil {
		logger.Warn("synth: frame extraction failed for gesture %d (%s): %v", index, label, err)
		return ""
	}
	return out
}
