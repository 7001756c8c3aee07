package config

import (
	"path/filepath"
	"testing"
)

func TestGetHome_EnvVar(t *testing.T) {
	ResetHome()
	t.Setenv("TOUCHSTONE_HOME", "/custom/path")

	got := GetHome()
	if got != "/custom/path" {
		t.Errorf("GetHome() = %q, want %q", got, "/custom/path")
	}
}

func TestGetHome_Cached(t *testing.T) {
	ResetHome()
	t.Setenv("TOUCHSTONE_HOME", "/first")

	first := GetHome()

	// Change env — should NOT affect cached value
	t.Setenv("TOUCHSTONE_HOME", "/second")
	second := GetHome()

	if first != second {
		t.Errorf("GetHome() not cached: first=%q, second=%q", first, second)
	}
}

func TestGetHome_FallbackNonEmpty(t *testing.T) {
	ResetHome()
	t.Setenv("TOUCHSTONE_HOME", "")

	if got := GetHome(); got == "" {
		t.Error("GetHome() returned empty string")
	}
}

func TestSubDirs(t *testing.T) {
	ResetHome()
	t.Setenv("TOUCHSTONE_HOME", "/ts")

	if got := GetSessionsDir(); got != filepath.Join("/ts", "sessions") {
		t.Errorf("GetSessionsDir() = %q", got)
	}
	if got := GetReportsDir(); got != filepath.Join("/ts", "reports") {
		t.Errorf("GetReportsDir() = %q", got)
	}
}
