package record

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/devicelab-dev/touchstone/pkg/config"
	"github.com/devicelab-dev/touchstone/pkg/core"
)

func TestSession_AppendAndLoad(t *testing.T) {
	s, err := NewSession(t.TempDir(), "emulator-5554", "com.example.app", 1080, 2400)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}

	events := []*GestureEvent{
		{Index: 0, Timestamp: 1.5, Kind: GestureTap, X: 100, Y: 200, DurationMs: 80},
		{Index: 1, Timestamp: 3.2, Kind: GestureSwipe, X: 540, Y: 1800, EndX: 540, EndY: 900, Direction: "up", Distance: 900, DurationMs: 250},
	}
	for _, ev := range events {
		if err := s.Append(ev); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	loaded, err := LoadGestures(GesturesPath(s.Dir))
	if err != nil {
		t.Fatalf("LoadGestures: %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("loaded %d events, want 2", len(loaded))
	}
	if loaded[1].Direction != "up" || loaded[1].Distance != 900 {
		t.Errorf("swipe fields lost: %+v", loaded[1])
	}

	meta, err := LoadMeta(s.Dir)
	if err != nil {
		t.Fatalf("LoadMeta: %v", err)
	}
	if meta.Device != "emulator-5554" || meta.ScreenWidth != 1080 {
		t.Errorf("manifest fields = %+v", meta)
	}
	if meta.Video.Finalized {
		t.Errorf("new session must not have a finalized video")
	}
}

func TestSession_SetVideo(t *testing.T) {
	s, err := NewSession(t.TempDir(), "", "com.example.app", 1080, 2400)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	defer s.Close()

	if err := s.SetVideo(VideoMeta{Path: "video.mp4", StartOffset: 99.5, Finalized: true}); err != nil {
		t.Fatalf("SetVideo: %v", err)
	}

	meta, err := LoadMeta(s.Dir)
	if err != nil {
		t.Fatalf("LoadMeta: %v", err)
	}
	if !meta.Video.Finalized || meta.Video.StartOffset != 99.5 {
		t.Errorf("video meta = %+v", meta.Video)
	}
}

func TestLoadGestures_OutOfOrderIsCorrupt(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gestures.jsonl")
	content := `{"index":0,"timestamp":5.0,"gesture":"tap","x":1,"y":1,"durationMs":50}
{"index":1,"timestamp":2.0,"gesture":"tap","x":1,"y":1,"durationMs":50}
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := LoadGestures(path)
	if !errors.Is(err, core.ErrCaptureCorruption) {
		t.Errorf("expected capture corruption, got %v", err)
	}
}

func TestLoadGestures_MissingFile(t *testing.T) {
	_, err := LoadGestures(filepath.Join(t.TempDir(), "gestures.jsonl"))
	if !errors.Is(err, core.ErrCaptureCorruption) {
		t.Errorf("expected capture corruption, got %v", err)
	}
}

func TestMonitor_EndToEnd(t *testing.T) {
	// Two touches: a tap and an upward swipe.
	trace := `[   1.000000] /dev/input/event2: EV_KEY BTN_TOUCH DOWN
[   1.000000] /dev/input/event2: EV_ABS ABS_MT_POSITION_X 000001f4
[   1.000000] /dev/input/event2: EV_ABS ABS_MT_POSITION_Y 00000320
[   1.100000] /dev/input/event2: EV_KEY BTN_TOUCH UP
[   2.000000] /dev/input/event2: EV_KEY BTN_TOUCH DOWN
[   2.000000] /dev/input/event2: EV_ABS ABS_MT_POSITION_X 0000021c
[   2.000000] /dev/input/event2: EV_ABS ABS_MT_POSITION_Y 00000708
[   2.150000] /dev/input/event2: EV_ABS ABS_MT_POSITION_Y 00000320
[   2.300000] /dev/input/event2: EV_KEY BTN_TOUCH UP
`
	var got []*GestureEvent
	count, err := Monitor(strings.NewReader(trace), Calibration{}, config.Default().Gesture, func(ev *GestureEvent) error {
		got = append(got, ev)
		return nil
	})
	if err != nil {
		t.Fatalf("Monitor: %v", err)
	}
	if count != 2 || len(got) != 2 {
		t.Fatalf("recorded %d gestures, want 2", count)
	}
	if got[0].Kind != GestureTap {
		t.Errorf("first gesture = %s, want tap", got[0].Kind)
	}
	if got[1].Kind != GestureSwipe || got[1].Direction != "up" {
		t.Errorf("second gesture = %s/%s, want swipe/up", got[1].Kind, got[1].Direction)
	}
}
