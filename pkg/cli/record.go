package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/touchstone/pkg/config"
	"github.com/devicelab-dev/touchstone/pkg/device"
	"github.com/devicelab-dev/touchstone/pkg/logger"
	"github.com/devicelab-dev/touchstone/pkg/record"
)

var recordCommand = &cli.Command{
	Name:  "record",
	Usage: "Record touch interaction and screen video on a device",
	Description: `Record raw touch events and an on-device screen recording into a
session directory. Stop with Ctrl+C.

The session directory holds the gesture log (gestures.jsonl), the
session manifest (session.json) and the pulled video (video.mp4).

Examples:
  touchstone record --app com.example.app
  touchstone record --app com.example.app --output ./sessions --no-video`,
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "app",
			Usage: "Target app package (recorded in the session manifest)",
		},
		&cli.StringFlag{
			Name:  "output",
			Usage: "Base directory for session folders (default: <home>/sessions)",
		},
		&cli.BoolFlag{
			Name:  "no-video",
			Usage: "Skip the screen recording, capture touches only",
		},
	},
	Action: runRecord,
}

func runRecord(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	serial := c.String("device")
	if serial == "" {
		serial = cfg.Device
	}
	if serial == "mock" {
		return fmt.Errorf("record needs a real device, the mock has no touch stream")
	}

	baseDir := c.String("output")
	if baseDir == "" {
		baseDir = config.GetSessionsDir()
	}
	initLogging(baseDir, c)
	defer logger.Close()

	dev, err := device.New(serial)
	if err != nil {
		return err
	}

	width, height, err := dev.ScreenSize()
	if err != nil {
		return err
	}
	calib, err := dev.TouchCalibration()
	if err != nil {
		return err
	}

	sess, err := record.NewSession(baseDir, dev.Serial(), c.String("app"), width, height)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var rec *device.Screenrecord
	if !c.Bool("no-video") {
		remote := "/sdcard/touchstone-" + sess.Meta.ID + ".mp4"
		rec, err = dev.StartScreenrecord(ctx, remote)
		if err != nil {
			logger.Warn("cli: screen recording unavailable, touches only: %v", err)
			fmt.Fprintf(os.Stderr, "Warning: screen recording unavailable: %v\n", err)
			rec = nil
		}
	}

	stream, err := dev.StreamTouches(ctx)
	if err != nil {
		sess.Close()
		return err
	}
	// Unblock the monitor when the user hits Ctrl+C.
	go func() {
		<-ctx.Done()
		stream.Close()
	}()

	fmt.Printf("Recording on %s (%dx%d), session %s\n", dev.Serial(), width, height, sess.Meta.ID)
	fmt.Println("Interact with the device, then press Ctrl+C to stop.")

	// The gesture log and the video run on different clocks; the first
	// gesture anchors the video start onto the gesture clock.
	var videoStart float64
	anchored := false

	count, err := record.Monitor(stream, calib, cfg.Gesture, func(ev *record.GestureEvent) error {
		if rec != nil && !anchored {
			anchored = true
			videoStart = ev.Timestamp - time.Since(rec.StartedAt).Seconds()
		}
		fmt.Printf("  #%d %s at %d,%d\n", ev.Index, ev.Kind, ev.X, ev.Y)
		return sess.Append(ev)
	})
	if err != nil && ctx.Err() == nil {
		logger.Warn("cli: touch stream ended abnormally: %v", err)
	}

	if rec != nil {
		video := record.VideoMeta{Path: "video.mp4", StartOffset: videoStart}
		if err := rec.Stop(); err != nil {
			logger.Warn("cli: screenrecord stop failed: %v", err)
		}
		if err := rec.Pull(filepath.Join(sess.Dir, "video.mp4")); err != nil {
			logger.Warn("cli: video pull failed: %v", err)
			fmt.Fprintf(os.Stderr, "Warning: video pull failed: %v\n", err)
		} else {
			video.Finalized = true
		}
		if err := sess.SetVideo(video); err != nil {
			logger.Warn("cli: session manifest update failed: %v", err)
		}
	}

	if err := sess.Close(); err != nil {
		return err
	}

	fmt.Printf("\nRecorded %d gesture(s) to %s\n", count, sess.Dir)
	return nil
}
