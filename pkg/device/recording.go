package device

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"regexp"
	"strconv"
	"syscall"
	"time"

	"github.com/devicelab-dev/touchstone/pkg/logger"
	"github.com/devicelab-dev/touchstone/pkg/record"
)

var absMaxRe = regexp.MustCompile(`(ABS_MT_POSITION_[XY]).*?max (\d+)`)

// TouchCalibration reads the digitizer ranges so raw getevent coordinates
// can be scaled to screen pixels. Devices whose digitizer already reports
// screen pixels get an identity calibration.
func (d *AndroidDevice) TouchCalibration() (record.Calibration, error) {
	w, h, err := d.ScreenSize()
	if err != nil {
		return record.Calibration{}, err
	}

	calib := record.Calibration{
		RawMaxX:      w,
		RawMaxY:      h,
		ScreenWidth:  w,
		ScreenHeight: h,
	}

	out, err := d.shell("getevent -lp")
	if err != nil {
		logger.Warn("device: getevent -lp failed, assuming pixel-mapped digitizer: %v", err)
		return calib, nil
	}

	for _, m := range absMaxRe.FindAllStringSubmatch(out, -1) {
		max, _ := strconv.Atoi(m[2])
		if max <= 0 {
			continue
		}
		switch m[1] {
		case "ABS_MT_POSITION_X":
			calib.RawMaxX = max
		case "ABS_MT_POSITION_Y":
			calib.RawMaxY = max
		}
	}
	return calib, nil
}

// TouchStream is a live `getevent -lt` feed. Close kills the adb process.
type TouchStream struct {
	io.Reader
	cmd *exec.Cmd
}

// Close terminates the stream.
func (s *TouchStream) Close() error {
	if s.cmd.Process != nil {
		s.cmd.Process.Kill()
	}
	s.cmd.Wait()
	return nil
}

// StreamTouches starts a raw touch event stream. The stream runs until
// Close or context cancellation.
func (d *AndroidDevice) StreamTouches(ctx context.Context) (*TouchStream, error) {
	args := []string{"shell", "getevent", "-lt"}
	if d.serial != "" {
		args = append([]string{"-s", d.serial}, args...)
	}

	cmd := exec.CommandContext(ctx, d.adbPath, args...)
	cmd.Stderr = logger.GetWriter()
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return &TouchStream{Reader: stdout, cmd: cmd}, nil
}

// Screenrecord is a running on-device screen recording.
type Screenrecord struct {
	device     *AndroidDevice
	cmd        *exec.Cmd
	remotePath string

	// StartedAt anchors the video clock to the gesture clock: it is
	// taken on the host just before screenrecord begins.
	StartedAt time.Time
}

// StartScreenrecord begins recording the screen to a file on the device.
func (d *AndroidDevice) StartScreenrecord(ctx context.Context, remotePath string) (*Screenrecord, error) {
	args := []string{"shell", "screenrecord", remotePath}
	if d.serial != "" {
		args = append([]string{"-s", d.serial}, args...)
	}

	cmd := exec.CommandContext(ctx, d.adbPath, args...)
	cmd.Stderr = logger.GetWriter()

	started := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	logger.Info("device: screenrecord started to %s", remotePath)

	return &Screenrecord{
		device:     d,
		cmd:        cmd,
		remotePath: remotePath,
		StartedAt:  started,
	}, nil
}

// Stop ends the recording gracefully so the MP4 gets finalized, then
// waits for screenrecord to flush.
func (r *Screenrecord) Stop() error {
	if r.cmd.Process == nil {
		return fmt.Errorf("screenrecord not started")
	}
	if err := r.cmd.Process.Signal(syscall.SIGINT); err != nil {
		r.cmd.Process.Kill()
	}
	r.cmd.Wait()

	// screenrecord needs a moment after SIGINT to write the moov atom.
	time.Sleep(time.Second)
	return nil
}

// Pull copies the finished recording to the host and removes the remote
// file.
func (r *Screenrecord) Pull(localPath string) error {
	if _, err := r.device.adb("pull", r.remotePath, localPath); err != nil {
		return err
	}
	if _, err := r.device.shell("rm -f " + r.remotePath); err != nil {
		logger.Warn("device: could not remove %s: %v", r.remotePath, err)
	}
	return nil
}
