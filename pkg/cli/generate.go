package cli

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/touchstone/pkg/logger"
	"github.com/devicelab-dev/touchstone/pkg/record"
	"github.com/devicelab-dev/touchstone/pkg/report"
	"github.com/devicelab-dev/touchstone/pkg/spec"
	"github.com/devicelab-dev/touchstone/pkg/synth"
)

var generateCommand = &cli.Command{
	Name:      "generate",
	Usage:     "Synthesize a runnable test description from a recorded session",
	ArgsUsage: "<session-dir>",
	Description: `Turn an analyzed session into a runnable YAML test description.

Typing bursts and checkpoint expectations need judgments the recording
does not carry, so generate prompts for them on the terminal. With
--no-prompt, typing bursts stay as raw taps and undescribed checkpoints
are dropped.

Examples:
  touchstone generate sessions/<id>
  touchstone generate sessions/<id> --name login-flow --out login.yaml`,
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "app",
			Usage: "Target app package (overrides the session manifest)",
		},
		&cli.StringFlag{
			Name:  "name",
			Usage: "Test case name",
			Value: "recorded-flow",
		},
		&cli.StringFlag{
			Name:  "out",
			Usage: "Output file (default: <session-dir>/test.yaml)",
		},
		&cli.BoolFlag{
			Name:  "no-prompt",
			Usage: "Skip terminal prompts for typing text and checkpoint descriptions",
		},
	},
	Action: runGenerate,
}

func runGenerate(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("expected exactly one session directory")
	}
	dir := c.Args().First()

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	initLogging(dir, c)
	defer logger.Close()

	meta, err := record.LoadMeta(dir)
	if err != nil {
		return err
	}
	events, err := record.LoadGestures(record.GesturesPath(dir))
	if err != nil {
		return err
	}

	a, err := loadAnalysis(dir)
	if os.IsNotExist(err) {
		// Analysis was never run; detect inline without frames.
		logger.Info("cli: no analysis.json in %s, detecting inline", dir)
		a = &analysis{
			SessionID:       meta.ID,
			TypingSequences: synth.DetectTypingSequences(events, meta.ScreenHeight, cfg.Typing),
		}
		a.Checkpoints = synth.DetectCheckpoints(events, nil, meta.ScreenWidth, meta.ScreenHeight, cfg.Checkpoint)
	} else if err != nil {
		return err
	}

	target := c.String("app")
	if target == "" {
		target = meta.Target
	}
	if target == "" {
		return fmt.Errorf("session has no target app; pass --app")
	}

	var prompter synth.Prompter
	if !c.Bool("no-prompt") {
		prompter = &terminalPrompter{in: bufio.NewScanner(os.Stdin), out: os.Stdout, frames: a.Frames}
	}

	ts, err := synth.Synthesize(events, a.TypingSequences, a.Checkpoints, prompter, synth.Options{
		Target:       target,
		CaseName:     c.String("name"),
		Description:  "Auto-generated from touch recording",
		ScreenWidth:  meta.ScreenWidth,
		ScreenHeight: meta.ScreenHeight,
	})
	if err != nil {
		return err
	}

	data, err := spec.Serialize(ts)
	if err != nil {
		return err
	}

	out := c.String("out")
	if out == "" {
		out = filepath.Join(dir, "test.yaml")
	}
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return err
	}

	manifest := &report.Manifest{
		SessionID:       meta.ID,
		Target:          target,
		GeneratedSpec:   filepath.Base(out),
		GestureLog:      "gestures.jsonl",
		Video:           meta.Video.Path,
		TypingSequences: a.TypingSequences,
		Checkpoints:     a.Checkpoints,
		Frames:          a.Frames,
		Warnings:        a.Warnings,
	}
	if _, err := report.WriteManifest(dir, manifest); err != nil {
		logger.Warn("cli: manifest write failed: %v", err)
	}

	fmt.Printf("Wrote %s (%d step(s) in case %q)\n", out, len(ts.Cases[0].Steps), c.String("name"))
	return nil
}

// terminalPrompter asks the user for the judgments synthesis cannot
// derive from coordinates. Empty answers mean "skip".
type terminalPrompter struct {
	in     *bufio.Scanner
	out    *os.File
	frames []synth.FrameSet
}

func (p *terminalPrompter) TextForSequence(seq synth.TypingSequence) (string, bool, error) {
	fmt.Fprintf(p.out, "\nTyping burst: gestures %d-%d, %d keyboard taps.\n",
		seq.StartIndex, seq.EndIndex, seq.TouchCount)
	if frame := p.frameFor(seq.EndIndex); frame != "" {
		fmt.Fprintf(p.out, "  result frame: %s\n", frame)
	}

	text, err := p.ask("What was typed? (empty keeps the raw taps): ")
	if err != nil || text == "" {
		return "", false, err
	}
	answer, err := p.ask("Submitted with enter? [y/N]: ")
	if err != nil {
		return "", false, err
	}
	submit := strings.EqualFold(answer, "y") || strings.EqualFold(answer, "yes")
	return text, submit, nil
}

func (p *terminalPrompter) DescribeCheckpoint(cp synth.Checkpoint) (string, error) {
	fmt.Fprintf(p.out, "\nCheckpoint after gesture %d (score %.0f: %s).\n",
		cp.GestureIndex, cp.Score, strings.Join(cp.Reasons, ", "))
	if frame := p.frameFor(cp.GestureIndex); frame != "" {
		fmt.Fprintf(p.out, "  result frame: %s\n", frame)
	}
	return p.ask("Describe the expected screen (empty drops the checkpoint): ")
}

func (p *terminalPrompter) ask(prompt string) (string, error) {
	fmt.Fprint(p.out, prompt)
	if !p.in.Scan() {
		if err := p.in.Err(); err != nil {
			return "", err
		}
		return "", nil
	}
	return strings.TrimSpace(p.in.Text()), nil
}

func (p *terminalPrompter) frameFor(gestureIndex int) string {
	for _, f := range p.frames {
		if f.GestureIndex == gestureIndex {
			return f.After
		}
	}
	return ""
}
