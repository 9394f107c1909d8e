package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// ResolveStoragePaths fills empty scope paths with per-user defaults:
// settings live under the user config directory, session credentials under
// a per-user temp directory so they do not survive a reboot.
func ResolveStoragePaths(cfg *Config) error {
	if cfg.Storage.Persistent.Path == "" && cfg.Storage.Persistent.Backend != BackendRedis {
		dir, err := UserConfigDir()
		if err != nil {
			return err
		}
		name := "settings.json"
		if cfg.Storage.Persistent.Backend == BackendSQLite {
			name = "settings.db"
		}
		cfg.Storage.Persistent.Path = filepath.Join(dir, name)
	}
	if cfg.Storage.Session.Path == "" {
		dir := filepath.Join(os.TempDir(), fmt.Sprintf("bsqa-%d", os.Getuid()))
		switch cfg.Storage.Session.Backend {
		case BackendFile:
			cfg.Storage.Session.Path = filepath.Join(dir, "session.json")
		case BackendSQLite:
			cfg.Storage.Session.Path = filepath.Join(dir, "session.db")
		}
	}
	return nil
}

// UserConfigFile is where `bsqa init --global` writes the default config.
func UserConfigFile() (string, error) {
	dir, err := UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// EnsureConfigFile writes DefaultConfigYAML to path unless a file already
// exists there. It reports whether a file was created.
func EnsureConfigFile(path string, force bool) (bool, error) {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return false, nil
		} else if !os.IsNotExist(err) {
			return false, fmt.Errorf("checking config: %w", err)
		}
	}
	if err := AtomicWrite(path, []byte(DefaultConfigYAML)); err != nil {
		return false, fmt.Errorf("creating config: %w", err)
	}
	return true, nil
}
