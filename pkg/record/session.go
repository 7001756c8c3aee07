package record

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/devicelab-dev/touchstone/pkg/core"
)

// VideoMeta describes the screen recording half of a session. The
// gesture log and the video are independent capture streams; StartOffset
// is the video's start on the gesture clock, the anchor that lets the
// synthesizer line them up.
type VideoMeta struct {
	Path        string  `json:"path,omitempty"`
	StartOffset float64 `json:"startOffset,omitempty"`
	Finalized   bool    `json:"finalized"`
}

// Meta is the session manifest (session.json).
type Meta struct {
	ID           string    `json:"id"`
	Device       string    `json:"device,omitempty"`
	Target       string    `json:"target,omitempty"`
	ScreenWidth  int       `json:"screenWidth"`
	ScreenHeight int       `json:"screenHeight"`
	StartedAt    time.Time `json:"startedAt"`
	Video        VideoMeta `json:"video"`
}

// Session is an in-progress recording: a directory holding the gesture
// log, the manifest, and optionally a screen recording.
type Session struct {
	Meta Meta
	Dir  string

	file *os.File
	w    *bufio.Writer
}

// NewSession creates the session directory and opens the gesture log.
func NewSession(baseDir, device, target string, screenW, screenH int) (*Session, error) {
	id := uuid.NewString()
	dir := filepath.Join(baseDir, id)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create session dir: %w", err)
	}

	f, err := os.OpenFile(filepath.Join(dir, "gestures.jsonl"), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create gesture log: %w", err)
	}

	s := &Session{
		Meta: Meta{
			ID:           id,
			Device:       device,
			Target:       target,
			ScreenWidth:  screenW,
			ScreenHeight: screenH,
			StartedAt:    time.Now(),
		},
		Dir:  dir,
		file: f,
		w:    bufio.NewWriter(f),
	}

	if err := s.writeMeta(); err != nil {
		f.Close()
		return nil, err
	}
	return s, nil
}

// Append writes one gesture and flushes immediately, so a killed
// recording loses nothing already classified.
func (s *Session) Append(ev *GestureEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if _, err := s.w.Write(append(data, '\n')); err != nil {
		return err
	}
	if err := s.w.Flush(); err != nil {
		return err
	}
	return s.file.Sync()
}

// SetVideo records the video stream's metadata and rewrites the manifest.
func (s *Session) SetVideo(v VideoMeta) error {
	s.Meta.Video = v
	return s.writeMeta()
}

// Close flushes and closes the gesture log.
func (s *Session) Close() error {
	if err := s.w.Flush(); err != nil {
		s.file.Close()
		return err
	}
	return s.file.Close()
}

func (s *Session) writeMeta() error {
	data, err := json.MarshalIndent(s.Meta, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(s.Dir, "session.json"), append(data, '\n'), 0644)
}

// GesturesPath returns the gesture log path inside a session directory.
func GesturesPath(dir string) string {
	return filepath.Join(dir, "gestures.jsonl")
}

// LoadMeta reads a session manifest.
func LoadMeta(dir string) (*Meta, error) {
	data, err := os.ReadFile(filepath.Join(dir, "session.json")) //#nosec G304 -- session dir is user-provided
	if err != nil {
		return nil, core.ErrCaptureCorruption.
			WithMessage("session manifest missing or unreadable").
			WithCause(err)
	}
	var m Meta
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, core.ErrCaptureCorruption.
			WithMessage("session manifest is not valid JSON").
			WithCause(err)
	}
	return &m, nil
}

// LoadGestures reads a gesture log. Lines that fail to decode are
// skipped; an ordering violation means the log is corrupt.
func LoadGestures(path string) ([]GestureEvent, error) {
	f, err := os.Open(path) //#nosec G304 -- session dir is user-provided
	if err != nil {
		return nil, core.ErrCaptureCorruption.
			WithMessage("gesture log missing or unreadable").
			WithCause(err)
	}
	defer f.Close()

	var events []GestureEvent
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var ev GestureEvent
		if err := json.Unmarshal(line, &ev); err != nil {
			continue
		}
		if n := len(events); n > 0 && ev.Timestamp < events[n-1].Timestamp {
			return nil, core.ErrCaptureCorruption.
				WithMessage(fmt.Sprintf("gesture log out of order at index %d", ev.Index))
		}
		events = append(events, ev)
	}
	if err := scanner.Err(); err != nil {
		return nil, core.ErrCaptureCorruption.
			WithMessage("gesture log ended mid-read").
			WithCause(err)
	}
	return events, nil
}
