// Package core defines the capability interfaces shared by the recorder,
// the synthesizer, and the interpreter, plus the common result and error
// types that flow between them.
package core

import (
	"math"
	"time"
)

// Element is one entry of the visible-element list reported by a device.
// Coordinates are absolute screen pixels of the element's bounding box.
type Element struct {
	Text   string `json:"text"`
	X      int    `json:"x"`
	Y      int    `json:"y"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// Center returns the midpoint of the element's bounding box.
func (e Element) Center() (int, int) {
	return e.X + e.Width/2, e.Y + e.Height/2
}

// Contains reports whether the point lies inside the bounding box.
func (e Element) Contains(x, y int) bool {
	return x >= e.X && x < e.X+e.Width && y >= e.Y && y < e.Y+e.Height
}

// DistanceTo returns the distance from the element's center to the point.
func (e Element) DistanceTo(x, y int) float64 {
	cx, cy := e.Center()
	return math.Hypot(float64(cx-x), float64(cy-y))
}

// Device is the facade over a connected mobile device. All automation goes
// through this interface; implementations live in pkg/device.
type Device interface {
	// ScreenSize returns the screen dimensions in pixels. A failure here is
	// the canonical signal that the device is unavailable.
	ScreenSize() (width, height int, err error)

	// ListElements returns the currently visible UI elements that carry text.
	ListElements() ([]Element, error)

	Tap(x, y int) error
	DoubleTap(x, y int) error
	LongPress(x, y int, duration time.Duration) error

	// Swipe performs a directional swipe ("up", "down", "left", "right")
	// across the given distance in pixels from the screen center.
	Swipe(direction string, distance int) error

	// TypeText types into the focused field. When submit is true the input
	// is committed with an enter key press afterwards.
	TypeText(text string, submit bool) error

	// PressButton presses a named hardware or navigation button
	// ("back", "home", "enter", ...).
	PressButton(name string) error

	// Screenshot captures the current screen as PNG bytes.
	Screenshot() ([]byte, error)

	LaunchApp(appID string) error
	TerminateApp(appID string) error

	SetOrientation(orientation string) error
	OpenURL(url string) error
}

// Oracle judges whether a screenshot satisfies a natural-language
// expectation. The engine treats it as a black box: implementations may
// call out to a vision model, a golden-image diff, or a human.
type Oracle interface {
	Matches(screenshot []byte, expectation string) (bool, error)
}
