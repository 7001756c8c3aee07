package record

import (
	"io"

	"github.com/devicelab-dev/touchstone/pkg/config"
	"github.com/devicelab-dev/touchstone/pkg/logger"
)

// Monitor drives a live recording: it decodes the touch stream, folds
// samples into gestures, and hands each finished gesture to the sink.
// It returns the number of gestures recorded.
func Monitor(r io.Reader, calib Calibration, cfg config.GestureConfig, sink func(*GestureEvent) error) (int, error) {
	cls := NewClassifier(cfg)
	count := 0
	var sinkErr error

	err := ParseEvents(r, calib, func(s TouchSample) {
		if sinkErr != nil {
			return
		}
		if ev := cls.Feed(s); ev != nil {
			if err := sink(ev); err != nil {
				sinkErr = err
				return
			}
			count++
		}
	})

	if sinkErr != nil {
		return count, sinkErr
	}
	if cls.Ambiguous > 0 {
		logger.Info("record: %d ambiguous touches classified by duration bias", cls.Ambiguous)
	}
	return count, err
}
