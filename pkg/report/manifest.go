package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/devicelab-dev/touchstone/pkg/synth"
)

// Manifest ties a synthesized test back to the recording it came from.
// Everything is addressed by gesture index so a reviewer can trace each
// generated step to the touches and frames behind it.
type Manifest struct {
	SessionID string `json:"sessionId"`
	Target    string `json:"target"`

	GeneratedSpec string `json:"generatedSpec"`
	GestureLog    string `json:"gestureLog"`
	Video         string `json:"video,omitempty"`

	TypingSequences []synth.TypingSequence `json:"typingSequences,omitempty"`
	Checkpoints     []synth.Checkpoint     `json:"checkpoints,omitempty"`
	Frames          []synth.FrameSet       `json:"frames,omitempty"`

	// Warnings records synthesis degradations (corrupt video, dropped
	// checkpoints) so a reviewer knows which stage survived.
	Warnings []string `json:"warnings,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}

// WriteManifest stores the manifest next to the session artifacts.
func WriteManifest(dir string, m *Manifest) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}

	path := filepath.Join(dir, "manifest.json")
	if err := atomicWriteJSON(path, m); err != nil {
		return "", err
	}
	return path, nil
}

// LoadManifest reads a previously written manifest.
func LoadManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, "manifest.json"))
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}
