package synth

import (
	"fmt"
	"image"
	"sort"

	"github.com/corona10/goimagehash"

	"github.com/devicelab-dev/touchstone/pkg/config"
	"github.com/devicelab-dev/touchstone/pkg/logger"
	"github.com/devicelab-dev/touchstone/pkg/record"
)

// Checkpoint marks a gesture whose aftermath deserves a verification
// step in the synthesized test.
type Checkpoint struct {
	GestureIndex int      `json:"gestureIndex"`
	Timestamp    float64  `json:"timestamp"`
	Score        float64  `json:"score"`
	Reasons      []string `json:"reasons"`

	// Description is the natural-language expectation, filled in from
	// outside (the scorer only knows pixels and timings).
	Description string `json:"description,omitempty"`
}

// ScreenshotSource returns the screenshot captured after a gesture, or
// nil when none is available. Gestures without a screenshot are excluded
// from checkpoint consideration.
type ScreenshotSource func(gestureIndex int) image.Image

const hashBits = 64

// DetectCheckpoints scores every gesture on three signals: how much the
// screen changed afterwards (perceptual hash distance to the previous
// gesture's screen), whether the user paused to inspect the result, and
// whether the tap looks like navigation. It returns at most
// cfg.MaxCheckpoints picks, sorted by descending score with ties broken
// by ascending gesture index, and keeps picks cfg.MinSpacing gestures
// apart.
func DetectCheckpoints(events []record.GestureEvent, shots ScreenshotSource, screenW, screenH int, cfg config.CheckpointConfig) []Checkpoint {
	hashes := make(map[int]*goimagehash.ImageHash)
	if shots != nil {
		for _, ev := range events {
			img := shots(ev.Index)
			if img == nil {
				continue
			}
			h, err := goimagehash.AverageHash(img)
			if err != nil {
				logger.Warn("synth: hashing screenshot for gesture %d failed: %v", ev.Index, err)
				continue
			}
			hashes[ev.Index] = h
		}
	}

	var candidates []Checkpoint
	var prevHash *goimagehash.ImageHash

	for i, ev := range events {
		cp := Checkpoint{GestureIndex: ev.Index, Timestamp: ev.Timestamp}

		h, hasShot := hashes[ev.Index]
		if hasShot {
			if prevHash != nil {
				dist, err := prevHash.Distance(h)
				if err == nil && dist > 0 {
					norm := float64(dist) / hashBits
					cp.Score += cfg.HashWeight * norm
					cp.Reasons = append(cp.Reasons, fmt.Sprintf("screen changed (hamming %d/%d)", dist, hashBits))
				}
			}
			prevHash = h
		}

		if i+1 < len(events) {
			gapMs := (events[i+1].Timestamp - ev.Timestamp) * 1000
			if gapMs >= float64(cfg.DwellMs) {
				cp.Score += cfg.DwellWeight
				cp.Reasons = append(cp.Reasons, fmt.Sprintf("user paused %.1fs afterwards", gapMs/1000))
			}
		}

		if ev.Kind == record.GestureTap && isNavigationTap(ev, screenW, screenH) {
			cp.Score += cfg.NavigationWeight
			cp.Reasons = append(cp.Reasons, "navigation tap")
		}

		// A gesture with no screenshot can still qualify on timing and
		// position, but only when screenshots were never captured at
		// all; with a partial shot set the blind gestures drop out.
		if len(hashes) > 0 && !hasShot {
			continue
		}

		if cp.Score > 0 {
			candidates = append(candidates, cp)
		}
	}

	sort.SliceStable(candidates, func(a, b int) bool {
		if candidates[a].Score != candidates[b].Score {
			return candidates[a].Score > candidates[b].Score
		}
		return candidates[a].GestureIndex < candidates[b].GestureIndex
	})

	var picked []Checkpoint
	for _, cp := range candidates {
		if len(picked) >= cfg.MaxCheckpoints {
			break
		}
		if tooClose(picked, cp.GestureIndex, cfg.MinSpacing) {
			continue
		}
		picked = append(picked, cp)
	}
	return picked
}

// isNavigationTap flags taps in the top-left corner (back button) or
// the bottom bar.
func isNavigationTap(ev record.GestureEvent, screenW, screenH int) bool {
	x := float64(ev.X) / float64(screenW)
	y := float64(ev.Y) / float64(screenH)
	if x < 0.15 && y < 0.10 {
		return true
	}
	return y > 0.85
}

func tooClose(picked []Checkpoint, index, minSpacing int) bool {
	for _, p := range picked {
		d := index - p.GestureIndex
		if d < 0 {
			d = -d
		}
		if d < minSpacing {
			return true
		}
	}
	return false
}
