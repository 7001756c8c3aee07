package record

import (
	"testing"

	"github.com/devicelab-dev/touchstone/pkg/config"
)

func feedTouch(c *Classifier, t0 float64, samples ...TouchSample) *GestureEvent {
	var ev *GestureEvent
	for _, s := range samples {
		s.Time += t0
		if got := c.Feed(s); got != nil {
			ev = got
		}
	}
	return ev
}

func TestClassifier_Tap(t *testing.T) {
	c := NewClassifier(config.Default().Gesture)

	ev := feedTouch(c, 10.0,
		TouchSample{Time: 0, X: 500, Y: 800, Phase: PhaseDown},
		TouchSample{Time: 0.08, X: 503, Y: 801, Phase: PhaseMove},
		TouchSample{Time: 0.12, X: 503, Y: 801, Phase: PhaseUp},
	)

	if ev == nil {
		t.Fatal("expected a gesture on finger lift")
	}
	if ev.Kind != GestureTap {
		t.Errorf("kind = %s, want tap", ev.Kind)
	}
	if ev.X != 500 || ev.Y != 800 {
		t.Errorf("position = (%d,%d), want touch-down position", ev.X, ev.Y)
	}
	if ev.DurationMs != 120 {
		t.Errorf("duration = %dms, want 120", ev.DurationMs)
	}
	if ev.Timestamp != 10.12 {
		t.Errorf("timestamp = %v, want finger-lift time", ev.Timestamp)
	}
}

func TestClassifier_LongPress(t *testing.T) {
	c := NewClassifier(config.Default().Gesture)

	ev := feedTouch(c, 0,
		TouchSample{Time: 0, X: 500, Y: 800, Phase: PhaseDown},
		TouchSample{Time: 0.7, X: 505, Y: 802, Phase: PhaseUp},
	)

	if ev.Kind != GestureLongPress {
		t.Errorf("kind = %s, want longPress (700ms hold)", ev.Kind)
	}
}

func TestClassifier_Swipe(t *testing.T) {
	c := NewClassifier(config.Default().Gesture)

	ev := feedTouch(c, 0,
		TouchSample{Time: 0, X: 540, Y: 1800, Phase: PhaseDown},
		TouchSample{Time: 0.1, X: 540, Y: 1400, Phase: PhaseMove},
		TouchSample{Time: 0.2, X: 540, Y: 1000, Phase: PhaseUp},
	)

	if ev.Kind != GestureSwipe {
		t.Fatalf("kind = %s, want swipe", ev.Kind)
	}
	if ev.Direction != "up" {
		t.Errorf("direction = %s, want up", ev.Direction)
	}
	if ev.Distance != 800 {
		t.Errorf("distance = %v, want 800", ev.Distance)
	}
	if ev.EndX != 540 || ev.EndY != 1000 {
		t.Errorf("end = (%d,%d)", ev.EndX, ev.EndY)
	}
}

func TestClassifier_SwipeBeatsDuration(t *testing.T) {
	c := NewClassifier(config.Default().Gesture)

	// Long slow drag: displacement past the swipe threshold wins even
	// though the hold exceeded the long-press threshold.
	ev := feedTouch(c, 0,
		TouchSample{Time: 0, X: 100, Y: 1000, Phase: PhaseDown},
		TouchSample{Time: 0.8, X: 400, Y: 1000, Phase: PhaseMove},
		TouchSample{Time: 0.9, X: 400, Y: 1000, Phase: PhaseUp},
	)

	if ev.Kind != GestureSwipe || ev.Direction != "right" {
		t.Errorf("got %s/%s, want swipe/right", ev.Kind, ev.Direction)
	}
}

func TestClassifier_AmbiguousDefaultsToTap(t *testing.T) {
	c := NewClassifier(config.Default().Gesture)

	// 50px displacement sits between the tap (20) and swipe (100)
	// thresholds; short touches default to tap and are counted.
	ev := feedTouch(c, 0,
		TouchSample{Time: 0, X: 500, Y: 800, Phase: PhaseDown},
		TouchSample{Time: 0.05, X: 550, Y: 800, Phase: PhaseMove},
		TouchSample{Time: 0.1, X: 550, Y: 800, Phase: PhaseUp},
	)

	if ev.Kind != GestureTap {
		t.Errorf("kind = %s, want tap", ev.Kind)
	}
	if c.Ambiguous != 1 {
		t.Errorf("ambiguous count = %d, want 1", c.Ambiguous)
	}
}

func TestClassifier_UpWithoutDownDropped(t *testing.T) {
	c := NewClassifier(config.Default().Gesture)

	if ev := c.Feed(TouchSample{Time: 1, X: 10, Y: 10, Phase: PhaseUp}); ev != nil {
		t.Errorf("orphan UP must not produce a gesture, got %+v", ev)
	}
}

func TestClassifier_IndicesIncrement(t *testing.T) {
	c := NewClassifier(config.Default().Gesture)

	for i := 0; i < 3; i++ {
		ev := feedTouch(c, float64(i),
			TouchSample{Time: 0, X: 100, Y: 100, Phase: PhaseDown},
			TouchSample{Time: 0.1, X: 100, Y: 100, Phase: PhaseUp},
		)
		if ev.Index != i {
			t.Errorf("gesture %d has index %d", i, ev.Index)
		}
	}
}
