package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// DefaultDataDir returns where archives and Processor state live when the
// configuration does not say. MAMIRC_HOME wins, then the platform's per-user
// data directory; ./data is the last resort.
func DefaultDataDir() string {
	if v := os.Getenv("MAMIRC_HOME"); v != "" {
		return v
	}
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "mamirc")
	}
	homeDir, err := os.UserHomeDir()
	if err != nil || homeDir == "" {
		return "./data"
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(homeDir, "Library", "Application Support", "MamIRC")
	case "windows":
		if local := os.Getenv("LOCALAPPDATA"); local != "" {
			return filepath.Join(local, "MamIRC")
		}
		return filepath.Join(homeDir, "AppData", "Local", "MamIRC")
	}
	if isDir(filepath.Join(homeDir, ".local", "share")) {
		return filepath.Join(homeDir, ".local", "share", "mamirc")
	}
	return filepath.Join(homeDir, ".mamirc")
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}
