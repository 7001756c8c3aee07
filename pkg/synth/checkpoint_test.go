package synth

import (
	"image"
	"image/color"
	"strings"
	"testing"

	"github.com/devicelab-dev/touchstone/pkg/config"
	"github.com/devicelab-dev/touchstone/pkg/record"
)

// gesture builds a mid-screen tap; dwell and navigation are driven by
// the timestamps and positions the tests pass in.
func gesture(index int, ts float64, x, y int) record.GestureEvent {
	return record.GestureEvent{
		Index: index, Timestamp: ts, Kind: record.GestureTap,
		X: x, Y: y, DurationMs: 80,
	}
}

func TestDetectCheckpoints_DwellAndNavigation(t *testing.T) {
	cfg := config.Default().Checkpoint
	cfg.MinSpacing = 1
	// 1080x2400 screen. Gesture 0: followed by a 3s pause (dwell).
	// Gesture 2: bottom-bar tap (navigation). Others score nothing.
	events := []record.GestureEvent{
		gesture(0, 1.0, 540, 1200),
		gesture(1, 4.0, 540, 1200),
		gesture(2, 4.5, 540, 2300),
		gesture(3, 5.0, 540, 1200),
	}

	cps := DetectCheckpoints(events, nil, 1080, 2400, cfg)
	if len(cps) != 2 {
		t.Fatalf("expected 2 checkpoints, got %d: %+v", len(cps), cps)
	}

	// Dwell (20) outranks navigation (15)
	if cps[0].GestureIndex != 0 || cps[0].Score != cfg.DwellWeight {
		t.Errorf("top pick = %+v, want dwell on gesture 0", cps[0])
	}
	if cps[1].GestureIndex != 2 || cps[1].Score != cfg.NavigationWeight {
		t.Errorf("second pick = %+v, want navigation on gesture 2", cps[1])
	}
}

func TestDetectCheckpoints_BackButtonIsNavigation(t *testing.T) {
	events := []record.GestureEvent{
		gesture(0, 1.0, 50, 100), // top-left corner
		gesture(1, 1.5, 540, 1200),
	}

	cps := DetectCheckpoints(events, nil, 1080, 2400, config.Default().Checkpoint)
	if len(cps) != 1 || cps[0].GestureIndex != 0 {
		t.Fatalf("expected the corner tap as sole checkpoint, got %+v", cps)
	}
	if !strings.Contains(strings.Join(cps[0].Reasons, ";"), "navigation") {
		t.Errorf("reasons = %v", cps[0].Reasons)
	}
}

func TestDetectCheckpoints_CapAndSpacing(t *testing.T) {
	cfg := config.Default().Checkpoint
	cfg.MaxCheckpoints = 3
	cfg.MinSpacing = 3

	// Every gesture earns a dwell score; equal scores tie-break by
	// ascending index, and spacing keeps picks 3 gestures apart.
	var events []record.GestureEvent
	for i := 0; i < 10; i++ {
		events = append(events, gesture(i, float64(i)*3.0, 540, 1200))
	}

	cps := DetectCheckpoints(events, nil, 1080, 2400, cfg)
	if len(cps) != 3 {
		t.Fatalf("expected cap of 3, got %d", len(cps))
	}
	if cps[0].GestureIndex != 0 || cps[1].GestureIndex != 3 || cps[2].GestureIndex != 6 {
		t.Errorf("picks = %d,%d,%d, want 0,3,6",
			cps[0].GestureIndex, cps[1].GestureIndex, cps[2].GestureIndex)
	}
}

func TestDetectCheckpoints_SortedByScoreDesc(t *testing.T) {
	cfg := config.Default().Checkpoint
	cfg.MinSpacing = 1

	// Gesture 5 scores dwell+navigation, gesture 0 only dwell.
	events := []record.GestureEvent{
		gesture(0, 1.0, 540, 1200),
		gesture(1, 4.0, 540, 1200),
		gesture(2, 4.2, 540, 1200),
		gesture(3, 4.4, 540, 1200),
		gesture(4, 4.6, 540, 1200),
		gesture(5, 4.8, 540, 2300),
		gesture(6, 8.0, 540, 1200),
	}

	cps := DetectCheckpoints(events, nil, 1080, 2400, cfg)
	for i := 1; i < len(cps); i++ {
		if cps[i].Score > cps[i-1].Score {
			t.Fatalf("not sorted by descending score: %+v", cps)
		}
		if cps[i].Score == cps[i-1].Score && cps[i].GestureIndex < cps[i-1].GestureIndex {
			t.Fatalf("tie not broken by ascending index: %+v", cps)
		}
	}
	if cps[0].GestureIndex != 5 {
		t.Errorf("top pick = %+v, want the dwell+navigation gesture", cps[0])
	}
}

// halfImage paints one half white: vertical=true splits left/right,
// false splits top/bottom. Two different splits hash far apart.
func halfImage(vertical bool) image.Image {
	img := image.NewGray(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			white := x < 32
			if !vertical {
				white = y < 32
			}
			if white {
				img.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}
	return img
}

func TestDetectCheckpoints_HashSignal(t *testing.T) {
	cfg := config.Default().Checkpoint
	cfg.MinSpacing = 1

	imgA := halfImage(true)
	imgB := halfImage(false)

	shots := map[int]image.Image{0: imgA, 1: imgA, 2: imgB}
	source := func(i int) image.Image { return shots[i] }

	events := []record.GestureEvent{
		gesture(0, 1.0, 540, 1200),
		gesture(1, 1.5, 540, 1200),
		gesture(2, 2.0, 540, 1200),
	}

	cps := DetectCheckpoints(events, source, 1080, 2400, cfg)
	if len(cps) != 1 {
		t.Fatalf("expected only the screen-change gesture, got %+v", cps)
	}
	if cps[0].GestureIndex != 2 || cps[0].Score <= 0 {
		t.Errorf("pick = %+v", cps[0])
	}
	if !strings.Contains(strings.Join(cps[0].Reasons, ";"), "screen changed") {
		t.Errorf("reasons = %v", cps[0].Reasons)
	}
}

func TestDetectCheckpoints_MissingShotExcluded(t *testing.T) {
	cfg := config.Default().Checkpoint
	cfg.MinSpacing = 1

	img := halfImage(true)
	// Gesture 1 has no screenshot; its 3s dwell must not qualify it.
	shots := map[int]image.Image{0: img, 2: img}
	source := func(i int) image.Image { return shots[i] }

	events := []record.GestureEvent{
		gesture(0, 1.0, 540, 1200),
		gesture(1, 1.5, 540, 1200),
		gesture(2, 4.5, 540, 1200),
	}

	cps := DetectCheckpoints(events, source, 1080, 2400, cfg)
	for _, cp := range cps {
		if cp.GestureIndex == 1 {
			t.Errorf("gesture without screenshot selected: %+v", cp)
		}
	}
}
