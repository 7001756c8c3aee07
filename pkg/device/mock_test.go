package device

import (
	"errors"
	"testing"
	"time"

	"github.com/devicelab-dev/touchstone/pkg/core"
)

func TestMock_RecordsCalls(t *testing.T) {
	m := NewMock()
	m.Elements = []core.Element{{Text: "Login", X: 10, Y: 20, Width: 100, Height: 40}}

	if w, h, err := m.ScreenSize(); err != nil || w != 1080 || h != 2400 {
		t.Fatalf("ScreenSize = %d,%d,%v", w, h, err)
	}
	if err := m.Tap(540, 1200); err != nil {
		t.Fatal(err)
	}
	if err := m.LongPress(10, 20, 800*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	els, err := m.ListElements()
	if err != nil || len(els) != 1 {
		t.Fatalf("ListElements = %v, %v", els, err)
	}

	calls := m.CallLog()
	want := []string{"screenSize", "tap 540 1200", "longPress 10 20 800ms", "listElements"}
	if len(calls) != len(want) {
		t.Fatalf("calls = %v", calls)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Errorf("call %d = %q, want %q", i, calls[i], want[i])
		}
	}
}

func TestMock_ErrFailsEverything(t *testing.T) {
	m := NewMock()
	m.Err = errors.New("device gone")

	if _, _, err := m.ScreenSize(); err == nil {
		t.Error("ScreenSize should fail")
	}
	if err := m.Tap(1, 2); err == nil {
		t.Error("Tap should fail")
	}
	if _, err := m.Screenshot(); err == nil {
		t.Error("Screenshot should fail")
	}
}
