package synth

import (
	"fmt"
	"math"

	"github.com/devicelab-dev/touchstone/pkg/logger"
	"github.com/devicelab-dev/touchstone/pkg/record"
	"github.com/devicelab-dev/touchstone/pkg/spec"
)

// Prompter supplies the judgments synthesis cannot derive from
// coordinates: what a typing burst actually typed, and how to describe
// a checkpoint's expected screen. Implementations range from an
// interactive terminal prompt to a vision model.
type Prompter interface {
	// TextForSequence returns the text a typing burst entered and
	// whether it ended with a submit. Empty text keeps the raw taps.
	TextForSequence(seq TypingSequence) (text string, submit bool, err error)

	// DescribeCheckpoint returns the natural-language expectation for a
	// checkpoint's screen. Empty drops the checkpoint.
	DescribeCheckpoint(cp Checkpoint) (string, error)
}

// Options configures synthesis.
type Options struct {
	Target      string
	CaseName    string
	Description string

	ScreenWidth  int
	ScreenHeight int

	// ElementAt returns the visible element text under a gesture when a
	// UI dump was captured for it; empty falls back to coordinates.
	ElementAt func(gestureIndex int) string
}

// Synthesize builds a runnable test description from a classified
// gesture log. Typing sequences collapse into type steps, checkpoints
// become verifyScreen steps placed in gesture order, and everything
// else becomes the gesture's direct step equivalent.
func Synthesize(events []record.GestureEvent, seqs []TypingSequence, cps []Checkpoint, p Prompter, opts Options) (*spec.TestSpec, error) {
	seqByStart := make(map[int]TypingSequence, len(seqs))
	for _, seq := range seqs {
		seqByStart[seq.StartIndex] = seq
	}
	cpByIndex := make(map[int]Checkpoint, len(cps))
	for _, cp := range cps {
		cpByIndex[cp.GestureIndex] = cp
	}

	var steps []spec.Step

	appendCheckpoint := func(index int) error {
		cp, ok := cpByIndex[index]
		if !ok {
			return nil
		}
		desc := cp.Description
		if desc == "" && p != nil {
			var err error
			if desc, err = p.DescribeCheckpoint(cp); err != nil {
				return err
			}
		}
		if desc == "" {
			logger.Debug("synth: checkpoint at gesture %d dropped, no description", index)
			return nil
		}
		steps = append(steps, &spec.VerifyScreenStep{
			BaseStep:    spec.BaseStep{StepKind: spec.KindVerifyScreen},
			Expectation: desc,
		})
		return nil
	}

	for i := 0; i < len(events); i++ {
		ev := events[i]

		if seq, ok := seqByStart[ev.Index]; ok {
			step, consumed, err := typingStep(seq, p)
			if err != nil {
				return nil, err
			}
			if consumed {
				steps = append(steps, step)
				// Jump past the burst; its last gesture can still host
				// a checkpoint.
				for i+1 < len(events) && events[i+1].Index <= seq.EndIndex {
					i++
				}
				if err := appendCheckpoint(events[i].Index); err != nil {
					return nil, err
				}
				continue
			}
		}

		steps = append(steps, gestureStep(ev, opts))
		if err := appendCheckpoint(ev.Index); err != nil {
			return nil, err
		}
	}

	ts := &spec.TestSpec{
		Target: opts.Target,
		Setup: []spec.Step{
			&spec.TerminateAppStep{BaseStep: spec.BaseStep{StepKind: spec.KindTerminateApp}},
			&spec.LaunchAppStep{BaseStep: spec.BaseStep{StepKind: spec.KindLaunchApp}},
			&spec.WaitStep{BaseStep: spec.BaseStep{StepKind: spec.KindWait}, DurationMs: 3000},
		},
		Teardown: []spec.Step{
			&spec.TerminateAppStep{BaseStep: spec.BaseStep{StepKind: spec.KindTerminateApp}},
		},
		Cases: []spec.TestCase{{
			Name:        opts.CaseName,
			Description: opts.Description,
			Steps:       steps,
		}},
	}
	return ts, nil
}

// typingStep resolves a typing burst into a type step. When no text can
// be supplied the burst stays as raw taps.
func typingStep(seq TypingSequence, p Prompter) (spec.Step, bool, error) {
	text, submit := seq.Text, seq.Submit
	if text == "" && p != nil {
		var err error
		if text, submit, err = p.TextForSequence(seq); err != nil {
			return nil, false, err
		}
	}
	if text == "" {
		logger.Warn("synth: typing burst at gestures %d-%d kept as raw taps, no text supplied",
			seq.StartIndex, seq.EndIndex)
		return nil, false, nil
	}

	return &spec.TypeStep{
		BaseStep: spec.BaseStep{
			StepKind: spec.KindType,
			StepNote: fmt.Sprintf("Replaced touches %d-%d (%d keyboard taps)",
				seq.StartIndex, seq.EndIndex, seq.TouchCount),
		},
		Text:   text,
		Submit: submit,
	}, true, nil
}

func gestureStep(ev record.GestureEvent, opts Options) spec.Step {
	switch ev.Kind {
	case record.GestureSwipe:
		return &spec.SwipeStep{
			BaseStep:  spec.BaseStep{StepKind: spec.KindSwipe},
			Direction: ev.Direction,
		}

	case record.GestureLongPress:
		return &spec.LongPressStep{
			BaseStep:   spec.BaseStep{StepKind: spec.KindLongPress},
			Target:     gestureTarget(ev, opts),
			DurationMs: ev.DurationMs,
		}

	default:
		return &spec.TapStep{
			BaseStep: spec.BaseStep{StepKind: spec.KindTap},
			Target:   gestureTarget(ev, opts),
		}
	}
}

// gestureTarget prefers the element text under the touch when a UI dump
// captured one; otherwise percent coordinates, rounded to one decimal so
// serialization round-trips exactly.
func gestureTarget(ev record.GestureEvent, opts Options) spec.Target {
	if opts.ElementAt != nil {
		if text := opts.ElementAt(ev.Index); text != "" {
			return spec.Target{Element: text}
		}
	}
	return spec.Target{Point: &spec.Point{
		X:       roundPct(ev.X, opts.ScreenWidth),
		Y:       roundPct(ev.Y, opts.ScreenHeight),
		Percent: true,
	}}
}

func roundPct(v, total int) float64 {
	if total <= 0 {
		return 0
	}
	return math.Round(float64(v)/float64(total)*1000) / 10
}
