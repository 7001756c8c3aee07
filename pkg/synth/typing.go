// Package synth turns a recording session into a test description:
// typing-burst detection, verification-point scoring, video frame
// correlation, and the final step synthesis.
package synth

import (
	"math"

	"github.com/devicelab-dev/touchstone/pkg/config"
	"github.com/devicelab-dev/touchstone/pkg/logger"
	"github.com/devicelab-dev/touchstone/pkg/record"
)

// TypingSequence is a run of consecutive keyboard-region taps that the
// synthesizer will replace with a single type step. Indices are gesture
// indices, inclusive on both ends.
type TypingSequence struct {
	StartIndex int `json:"startIndex"`
	EndIndex   int `json:"endIndex"`
	TouchCount int `json:"touchCount"`
	DurationMs int `json:"durationMs"`

	// Text and Submit are filled in later, from outside the gesture
	// data (the recorder cannot know what was typed).
	Text   string `json:"text,omitempty"`
	Submit bool   `json:"submit,omitempty"`
}

// DetectTypingSequences finds keyboard bursts in a gesture log. A burst
// is a run of taps in the keyboard region with no other gesture in
// between, short gaps, enough taps, and enough horizontal spread to
// rule out repeated tapping on one key or button.
func DetectTypingSequences(events []record.GestureEvent, screenHeight int, cfg config.TypingConfig) []TypingSequence {
	var sequences []TypingSequence
	var run []record.GestureEvent

	keyboardY := cfg.KeyboardRegion * float64(screenHeight)

	flush := func() {
		if seq, ok := closeRun(run, cfg); ok {
			sequences = append(sequences, seq)
		}
		run = run[:0]
	}

	for _, ev := range events {
		isKeyboardTap := ev.Kind == record.GestureTap && float64(ev.Y) >= keyboardY

		if !isKeyboardTap {
			// Any other gesture splits typing runs.
			flush()
			continue
		}

		if len(run) > 0 {
			gapMs := (ev.Timestamp - run[len(run)-1].Timestamp) * 1000
			if gapMs > float64(cfg.MaxGapMs) {
				flush()
			}
		}
		run = append(run, ev)
	}
	flush()

	return sequences
}

func closeRun(run []record.GestureEvent, cfg config.TypingConfig) (TypingSequence, bool) {
	if len(run) < cfg.MinTaps {
		return TypingSequence{}, false
	}

	if spread := stddevX(run); spread < cfg.MinSpreadX {
		logger.Debug("synth: tap burst at gestures %d-%d rejected, x spread %.0fpx below %.0f",
			run[0].Index, run[len(run)-1].Index, spread, cfg.MinSpreadX)
		return TypingSequence{}, false
	}

	first, last := run[0], run[len(run)-1]
	return TypingSequence{
		StartIndex: first.Index,
		EndIndex:   last.Index,
		TouchCount: len(run),
		DurationMs: int((last.Timestamp - first.Timestamp) * 1000),
	}, true
}

func stddevX(run []record.GestureEvent) float64 {
	mean := 0.0
	for _, ev := range run {
		mean += float64(ev.X)
	}
	mean /= float64(len(run))

	variance := 0.0
	for _, ev := range run {
		d := float64(ev.X) - mean
		variance += d * d
	}
	return math.Sqrt(variance / float64(len(run)))
}
