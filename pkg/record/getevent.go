// Package record turns a device's raw touch stream into an append-only
// gesture log. Parsing and classification are separate stages so the
// classifier can be driven live during a recording or replayed from a
// captured trace.
package record

import (
	"bufio"
	"io"
	"regexp"
	"strconv"

	"github.com/devicelab-dev/touchstone/pkg/core"
	"github.com/devicelab-dev/touchstone/pkg/logger"
)

// Phase is the finger state carried by one touch sample.
type Phase int

const (
	PhaseDown Phase = iota
	PhaseMove
	PhaseUp
)

func (p Phase) String() string {
	switch p {
	case PhaseDown:
		return "down"
	case PhaseMove:
		return "move"
	case PhaseUp:
		return "up"
	default:
		return "unknown"
	}
}

// TouchSample is one decoded touch event in screen coordinates.
// Time is seconds on the device's event clock.
type TouchSample struct {
	Time  float64
	X     int
	Y     int
	Phase Phase
}

// Calibration scales digitizer coordinates to screen pixels. Raw maxima
// come from the device's input range report; zero maxima mean the
// digitizer already reports screen pixels.
type Calibration struct {
	RawMaxX      int
	RawMaxY      int
	ScreenWidth  int
	ScreenHeight int
}

func (c Calibration) toScreen(x, y int) (int, int) {
	if c.RawMaxX > 0 && c.ScreenWidth > 0 {
		x = x * c.ScreenWidth / c.RawMaxX
	}
	if c.RawMaxY > 0 && c.ScreenHeight > 0 {
		y = y * c.ScreenHeight / c.RawMaxY
	}
	return x, y
}

// eventLine matches `getevent -lt` output:
//
//	[   12345.678901] /dev/input/event2: EV_ABS ABS_MT_POSITION_X 0000021c
var eventLine = regexp.MustCompile(`^\[\s*(\d+\.\d+)\]\s+\S+:\s+(\S+)\s+(\S+)\s+(\S+)$`)

// SampleHandler receives decoded samples in stream order.
type SampleHandler func(TouchSample)

// ParseEvents decodes a `getevent -lt` stream. Malformed lines are
// dropped with a log entry; a read failure means the capture itself is
// corrupt.
func ParseEvents(r io.Reader, calib Calibration, handle SampleHandler) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	var (
		curX, curY   = -1, -1
		down         bool
		dropped      int
		lastTime     float64
		pendingDown  bool
	)

	emit := func(phase Phase) {
		if curX < 0 || curY < 0 {
			return
		}
		x, y := calib.toScreen(curX, curY)
		handle(TouchSample{Time: lastTime, X: x, Y: y, Phase: phase})
	}

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}

		m := eventLine.FindStringSubmatch(line)
		if m == nil {
			dropped++
			logger.Debug("record: dropped malformed getevent line: %s", line)
			continue
		}

		ts, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			dropped++
			continue
		}
		lastTime = ts

		evType, evCode, evValue := m[2], m[3], m[4]

		switch evType {
		case "EV_ABS":
			v, err := strconv.ParseInt(evValue, 16, 64)
			if err != nil {
				dropped++
				logger.Debug("record: bad hex value in line: %s", line)
				continue
			}
			switch evCode {
			case "ABS_MT_POSITION_X":
				curX = int(v)
			case "ABS_MT_POSITION_Y":
				curY = int(v)
			}
			if pendingDown && curX >= 0 && curY >= 0 {
				pendingDown = false
				emit(PhaseDown)
			} else if down && curX >= 0 && curY >= 0 {
				emit(PhaseMove)
			}

		case "EV_KEY":
			if evCode != "BTN_TOUCH" {
				continue
			}
			switch evValue {
			case "DOWN":
				down = true
				if curX >= 0 && curY >= 0 {
					emit(PhaseDown)
				} else {
					// Coordinates arrive after BTN_TOUCH on some kernels.
					pendingDown = true
				}
			case "UP":
				if !down && !pendingDown {
					dropped++
					logger.Warn("record: BTN_TOUCH UP without DOWN, dropping")
					continue
				}
				down = false
				pendingDown = false
				emit(PhaseUp)
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return core.ErrCaptureCorruption.
			WithMessage("touch stream ended mid-read").
			WithCause(err)
	}
	if dropped > 0 {
		logger.Warn("record: dropped %d malformed touch samples", dropped)
	}
	return nil
}
