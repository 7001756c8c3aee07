package device

import (
	"fmt"
	"sync"
	"time"

	"github.com/devicelab-dev/touchstone/pkg/core"
)

// Mock is an in-memory core.Device for tests and dry runs. Every call is
// appended to Calls; Err, when set, fails all interactions.
type Mock struct {
	mu sync.Mutex

	Width    int
	Height   int
	Elements []core.Element
	PNG      []byte
	Err      error

	Calls []string
}

// NewMock creates a mock with a phone-sized screen.
func NewMock() *Mock {
	return &Mock{Width: 1080, Height: 2400, PNG: []byte("png")}
}

func (m *Mock) record(format string, v ...interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, fmt.Sprintf(format, v...))
	return m.Err
}

// CallLog returns a copy of the recorded calls.
func (m *Mock) CallLog() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.Calls...)
}

func (m *Mock) ScreenSize() (int, int, error) {
	if err := m.record("screenSize"); err != nil {
		return 0, 0, err
	}
	return m.Width, m.Height, nil
}

func (m *Mock) ListElements() ([]core.Element, error) {
	if err := m.record("listElements"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]core.Element(nil), m.Elements...), nil
}

func (m *Mock) Tap(x, y int) error       { return m.record("tap %d %d", x, y) }
func (m *Mock) DoubleTap(x, y int) error { return m.record("doubleTap %d %d", x, y) }

func (m *Mock) LongPress(x, y int, d time.Duration) error {
	return m.record("longPress %d %d %dms", x, y, d.Milliseconds())
}

func (m *Mock) Swipe(direction string, distance int) error {
	return m.record("swipe %s %d", direction, distance)
}

func (m *Mock) TypeText(text string, submit bool) error {
	return m.record("type %q submit=%v", text, submit)
}

func (m *Mock) PressButton(name string) error { return m.record("press %s", name) }

func (m *Mock) Screenshot() ([]byte, error) {
	if err := m.record("screenshot"); err != nil {
		return nil, err
	}
	return m.PNG, nil
}

func (m *Mock) LaunchApp(appID string) error    { return m.record("launchApp %s", appID) }
func (m *Mock) TerminateApp(appID string) error { return m.record("terminateApp %s", appID) }

func (m *Mock) SetOrientation(o string) error { return m.record("setOrientation %s", o) }
func (m *Mock) OpenURL(url string) error      { return m.record("openUrl %s", url) }
