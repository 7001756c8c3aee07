// Package device provides the Android implementation of the core.Device
// facade via ADB, plus an in-memory mock. Everything here is a thin exec
// adapter; the engine never talks device protocol directly.
package device

import (
	"bytes"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/devicelab-dev/touchstone/pkg/core"
	"github.com/devicelab-dev/touchstone/pkg/logger"
)

// keycodes maps facade button names onto Android key codes.
var keycodes = map[string]int{
	"back":       4,
	"home":       3,
	"menu":       82,
	"enter":      66,
	"tab":        61,
	"escape":     111,
	"delete":     67,
	"volumeUp":   24,
	"volumeDown": 25,
	"power":      26,
}

var screenSizeRe = regexp.MustCompile(`(Override|Physical) size:\s*(\d+)x(\d+)`)

// AndroidDevice drives a device through adb. Implements core.Device.
type AndroidDevice struct {
	serial  string
	adbPath string

	// cached screen size; wm size is stable for a session
	width  int
	height int
}

// New connects to a device. An empty serial auto-detects the first
// connected device.
func New(serial string) (*AndroidDevice, error) {
	adbPath, err := findADB()
	if err != nil {
		return nil, core.ErrDeviceUnavailable.WithCause(err)
	}

	if serial == "" {
		serial, err = detectDeviceSerial(adbPath)
		if err != nil {
			return nil, core.ErrDeviceUnavailable.WithCause(err)
		}
	}

	d := &AndroidDevice{serial: serial, adbPath: adbPath}
	if err := d.waitForDevice(5 * time.Second); err != nil {
		return nil, core.ErrDeviceUnavailable.WithCause(err)
	}
	return d, nil
}

// findADB locates the adb binary on PATH.
func findADB() (string, error) {
	if path, err := exec.LookPath("adb"); err == nil {
		return path, nil
	}
	return "", fmt.Errorf("adb not found in PATH; ensure Android SDK platform-tools are installed")
}

// detectDeviceSerial finds the first connected device serial.
func detectDeviceSerial(adbPath string) (string, error) {
	out, err := exec.Command(adbPath, "devices").Output()
	if err != nil {
		return "", err
	}

	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "List of") {
			continue
		}
		parts := strings.Fields(line)
		if len(parts) >= 2 && parts[1] == "device" {
			return parts[0], nil
		}
	}
	return "", fmt.Errorf("no connected devices found")
}

// Serial returns the device serial.
func (d *AndroidDevice) Serial() string { return d.serial }

// adb runs an adb command and returns stdout as a string.
func (d *AndroidDevice) adb(args ...string) (string, error) {
	out, err := d.adbRaw(args...)
	return string(out), err
}

// adbRaw runs an adb command and returns stdout bytes unmodified
// (screenshots come through here).
func (d *AndroidDevice) adbRaw(args ...string) ([]byte, error) {
	cmdArgs := make([]string, 0, len(args)+2)
	if d.serial != "" {
		cmdArgs = append(cmdArgs, "-s", d.serial)
	}
	cmdArgs = append(cmdArgs, args...)

	cmd := exec.Command(d.adbPath, cmdArgs...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		errMsg := strings.TrimSpace(stderr.String())
		if errMsg == "" {
			errMsg = strings.TrimSpace(stdout.String())
		}
		return nil, fmt.Errorf("adb %s: %w: %s", strings.Join(args, " "), err, errMsg)
	}
	return stdout.Bytes(), nil
}

// shell runs a command in the device shell.
func (d *AndroidDevice) shell(cmd string) (string, error) {
	return d.adb("shell", cmd)
}

func (d *AndroidDevice) waitForDevice(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		out, err := d.adb("get-state")
		if err == nil && strings.TrimSpace(out) == "device" {
			return nil
		}
		time.Sleep(500 * time.Millisecond)
	}
	return fmt.Errorf("timeout waiting for device %s", d.serial)
}

// ScreenSize reads `wm size`, preferring the override line when a
// resolution override is active.
func (d *AndroidDevice) ScreenSize() (int, int, error) {
	if d.width > 0 {
		return d.width, d.height, nil
	}

	out, err := d.shell("wm size")
	if err != nil {
		return 0, 0, err
	}
	w, h, err := parseScreenSize(out)
	if err != nil {
		return 0, 0, err
	}
	d.width, d.height = w, h
	return w, h, nil
}

func parseScreenSize(out string) (int, int, error) {
	var w, h int
	for _, m := range screenSizeRe.FindAllStringSubmatch(out, -1) {
		w, _ = strconv.Atoi(m[2])
		h, _ = strconv.Atoi(m[3])
		if m[1] == "Override" {
			return w, h, nil
		}
	}
	if w == 0 || h == 0 {
		return 0, 0, fmt.Errorf("could not parse screen size from %q", strings.TrimSpace(out))
	}
	return w, h, nil
}

func (d *AndroidDevice) Tap(x, y int) error {
	_, err := d.shell(fmt.Sprintf("input tap %d %d", x, y))
	return err
}

func (d *AndroidDevice) DoubleTap(x, y int) error {
	if err := d.Tap(x, y); err != nil {
		return err
	}
	time.Sleep(100 * time.Millisecond)
	return d.Tap(x, y)
}

// LongPress is a zero-distance swipe held for the duration.
func (d *AndroidDevice) LongPress(x, y int, duration time.Duration) error {
	_, err := d.shell(fmt.Sprintf("input swipe %d %d %d %d %d", x, y, x, y, duration.Milliseconds()))
	return err
}

// Swipe swipes from the screen center across the given distance.
func (d *AndroidDevice) Swipe(direction string, distance int) error {
	w, h, err := d.ScreenSize()
	if err != nil {
		return err
	}
	cx, cy := w/2, h/2
	half := distance / 2

	var x1, y1, x2, y2 int
	switch direction {
	case "up":
		x1, y1, x2, y2 = cx, cy+half, cx, cy-half
	case "down":
		x1, y1, x2, y2 = cx, cy-half, cx, cy+half
	case "left":
		x1, y1, x2, y2 = cx+half, cy, cx-half, cy
	case "right":
		x1, y1, x2, y2 = cx-half, cy, cx+half, cy
	default:
		return fmt.Errorf("unknown swipe direction %q", direction)
	}

	y1 = clamp(y1, 0, h-1)
	y2 = clamp(y2, 0, h-1)
	x1 = clamp(x1, 0, w-1)
	x2 = clamp(x2, 0, w-1)

	_, err = d.shell(fmt.Sprintf("input swipe %d %d %d %d 300", x1, y1, x2, y2))
	return err
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// TypeText types into the focused field. `input text` cannot carry
// spaces or shell metacharacters, so they are escaped first.
func (d *AndroidDevice) TypeText(text string, submit bool) error {
	if _, err := d.shell("input text " + escapeInputText(text)); err != nil {
		return err
	}
	if submit {
		return d.PressButton("enter")
	}
	return nil
}

// escapeInputText prepares text for `input text`: spaces become %s and
// shell-significant characters are backslash-escaped.
func escapeInputText(text string) string {
	var b strings.Builder
	for _, r := range text {
		switch r {
		case ' ':
			b.WriteString("%s")
		case '\'', '"', '`', '\\', '$', '&', '|', ';', '(', ')', '<', '>', '*', '?', '#', '~':
			b.WriteRune('\\')
			b.WriteRune(r)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func (d *AndroidDevice) PressButton(name string) error {
	code, ok := keycodes[name]
	if !ok {
		return fmt.Errorf("unknown button %q", name)
	}
	_, err := d.shell(fmt.Sprintf("input keyevent %d", code))
	return err
}

// Screenshot captures the screen as PNG via exec-out, avoiding the
// CRLF mangling of `adb shell`.
func (d *AndroidDevice) Screenshot() ([]byte, error) {
	return d.adbRaw("exec-out", "screencap", "-p")
}

func (d *AndroidDevice) LaunchApp(appID string) error {
	out, err := d.shell("monkey -p " + appID + " -c android.intent.category.LAUNCHER 1")
	if err != nil {
		return err
	}
	if strings.Contains(out, "No activities found") {
		return fmt.Errorf("app %s has no launcher activity", appID)
	}
	return nil
}

func (d *AndroidDevice) TerminateApp(appID string) error {
	_, err := d.shell("am force-stop " + appID)
	return err
}

// SetOrientation disables auto-rotation and pins the rotation.
func (d *AndroidDevice) SetOrientation(orientation string) error {
	var rotation int
	switch orientation {
	case "portrait":
		rotation = 0
	case "landscape":
		rotation = 1
	default:
		return fmt.Errorf("unknown orientation %q", orientation)
	}

	if _, err := d.shell("settings put system accelerometer_rotation 0"); err != nil {
		logger.Warn("device: could not disable auto-rotation: %v", err)
	}
	_, err := d.shell(fmt.Sprintf("settings put system user_rotation %d", rotation))
	return err
}

func (d *AndroidDevice) OpenURL(url string) error {
	_, err := d.shell("am start -a android.intent.action.VIEW -d '" + url + "'")
	return err
}
