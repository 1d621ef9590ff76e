// Package paths resolves the cveta2 configuration directory, which holds
// config.yaml, ignore.yaml and the projects cache database.
package paths

import (
	"os"
	"path/filepath"
	"runtime"
)

// EnvConfigDir overrides the configuration directory location.
const EnvConfigDir = "CVETA2_CONFIG_DIR"

// File names inside the configuration directory.
const (
	ConfigFileName   = "config.yaml"
	IgnoreFileName   = "ignore.yaml"
	ProjectsCacheDB  = "projects.db"
)

// platformDir holds platform-detection functions that can be overridden in tests.
var platformDir = struct {
	homeDir       func() (string, error)
	userConfigDir func() (string, error)
}{
	homeDir:       os.UserHomeDir,
	userConfigDir: os.UserConfigDir,
}

// DefaultConfigDir returns the platform-specific default configuration
// directory.
//
// Linux:   $XDG_CONFIG_HOME/cveta2 (fallback ~/.config/cveta2)
// macOS:   ~/Library/Application Support/cveta2
// Windows: %APPDATA%/cveta2
func DefaultConfigDir() (string, error) {
	switch runtime.GOOS {
	case "linux":
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			return filepath.Join(xdg, "cveta2"), nil
		}
		home, err := platformDir.homeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, ".config", "cveta2"), nil
	default:
		dir, err := platformDir.userConfigDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(dir, "cveta2"), nil
	}
}

// ResolveConfigDir returns the configuration directory following the
// precedence chain: flag > CVETA2_CONFIG_DIR env > DefaultConfigDir().
func ResolveConfigDir(flag string) (string, error) {
	if flag != "" {
		return filepath.Abs(flag)
	}
	if env := os.Getenv(EnvConfigDir); env != "" {
		return filepath.Abs(env)
	}
	return DefaultConfigDir()
}

// ConfigFile returns the config.yaml path inside dir.
func ConfigFile(dir string) string { return filepath.Join(dir, ConfigFileName) }

// IgnoreFile returns the ignore.yaml path inside dir.
func IgnoreFile(dir string) string { return filepath.Join(dir, IgnoreFileName) }

// ProjectsCacheFile returns the projects cache database path inside dir.
func ProjectsCacheFile(dir string) string { return filepath.Join(dir, ProjectsCacheDB) }
