package record

import (
	"math"

	"github.com/devicelab-dev/touchstone/pkg/config"
	"github.com/devicelab-dev/touchstone/pkg/logger"
)

// GestureKind is the classified shape of one touch.
type GestureKind string

const (
	GestureTap       GestureKind = "tap"
	GestureLongPress GestureKind = "longPress"
	GestureSwipe     GestureKind = "swipe"
)

// GestureEvent is one classified gesture, as written to the gesture log.
// Timestamp is the finger-lift time on the recording clock; X/Y is the
// touch-down position.
type GestureEvent struct {
	Index      int         `json:"index"`
	Timestamp  float64     `json:"timestamp"`
	Kind       GestureKind `json:"gesture"`
	X          int         `json:"x"`
	Y          int         `json:"y"`
	EndX       int         `json:"endX,omitempty"`
	EndY       int         `json:"endY,omitempty"`
	Direction  string      `json:"direction,omitempty"`
	Distance   float64     `json:"distance,omitempty"`
	DurationMs int         `json:"durationMs"`
}

// Classifier folds touch samples into gestures. Feed one sample at a
// time; a gesture is returned on the sample that completes it.
type Classifier struct {
	cfg  config.GestureConfig
	next int

	active   bool
	downTime float64
	downX    int
	downY    int
	lastX    int
	lastY    int
	maxDisp  float64

	// Ambiguous counts touches whose displacement fell between the tap
	// and swipe thresholds.
	Ambiguous int
}

// NewClassifier creates a classifier with the given thresholds.
func NewClassifier(cfg config.GestureConfig) *Classifier {
	return &Classifier{cfg: cfg}
}

// Feed advances the classifier by one sample.
func (c *Classifier) Feed(s TouchSample) *GestureEvent {
	switch s.Phase {
	case PhaseDown:
		if c.active {
			logger.Warn("record: touch down while previous touch still active, restarting")
		}
		c.active = true
		c.downTime = s.Time
		c.downX, c.downY = s.X, s.Y
		c.lastX, c.lastY = s.X, s.Y
		c.maxDisp = 0
		return nil

	case PhaseMove:
		if !c.active {
			return nil
		}
		c.lastX, c.lastY = s.X, s.Y
		d := math.Hypot(float64(s.X-c.downX), float64(s.Y-c.downY))
		if d > c.maxDisp {
			c.maxDisp = d
		}
		return nil

	case PhaseUp:
		if !c.active {
			return nil
		}
		c.lastX, c.lastY = s.X, s.Y
		ev := c.classify(s.Time)
		c.active = false
		return ev
	}
	return nil
}

func (c *Classifier) classify(upTime float64) *GestureEvent {
	durationMs := int((upTime - c.downTime) * 1000)
	dx := float64(c.lastX - c.downX)
	dy := float64(c.lastY - c.downY)
	net := math.Hypot(dx, dy)

	ev := &GestureEvent{
		Index:      c.next,
		Timestamp:  upTime,
		X:          c.downX,
		Y:          c.downY,
		DurationMs: durationMs,
	}
	c.next++

	switch {
	case c.maxDisp >= c.cfg.SwipeMinDisplacement:
		ev.Kind = GestureSwipe
		ev.EndX, ev.EndY = c.lastX, c.lastY
		ev.Direction = swipeDirection(dx, dy)
		ev.Distance = net

	case durationMs >= c.cfg.LongPressMs:
		ev.Kind = GestureLongPress

	default:
		ev.Kind = GestureTap
	}

	if c.maxDisp > c.cfg.TapMaxDisplacement && c.maxDisp < c.cfg.SwipeMinDisplacement {
		c.Ambiguous++
		logger.Debug("record: ambiguous touch %d (disp=%.0fpx dur=%dms), classified as %s",
			ev.Index, c.maxDisp, durationMs, ev.Kind)
	}

	return ev
}

func swipeDirection(dx, dy float64) string {
	if math.Abs(dx) > math.Abs(dy) {
		if dx > 0 {
			return "right"
		}
		return "left"
	}
	if dy > 0 {
		return "down"
	}
	return "up"
}
