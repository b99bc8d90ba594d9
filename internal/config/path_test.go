package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultDataDirOverrides(t *testing.T) {
	tests := []struct {
		name     string
		home     string
		xdg      string
		expected string
	}{
		{name: "MAMIRC_HOME wins", home: "/srv/mamirc", xdg: "/custom/data", expected: "/srv/mamirc"},
		{name: "XDG_DATA_HOME", xdg: "/custom/data", expected: "/custom/data/mamirc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("MAMIRC_HOME", tt.home)
			t.Setenv("XDG_DATA_HOME", tt.xdg)
			if got := DefaultDataDir(); got != tt.expected {
				t.Errorf("expected %s, got %s", tt.expected, got)
			}
		})
	}
}

func TestDefaultDataDirNoHome(t *testing.T) {
	t.Setenv("MAMIRC_HOME", "")
	t.Setenv("XDG_DATA_HOME", "")
	t.Setenv("HOME", "")
	if got := DefaultDataDir(); got != "./data" && !filepath.IsAbs(got) {
		t.Errorf("unexpected fallback %s", got)
	}
}

func TestIsDir(t *testing.T) {
	if !isDir(".") {
		t.Errorf("expected . to be a directory")
	}
	if isDir("/non/existent/path/that/does/not/exist") {
		t.Errorf("expected missing path to be rejected")
	}
	if isDir(os.Args[0]) {
		t.Errorf("expected executable file to be rejected")
	}
}
