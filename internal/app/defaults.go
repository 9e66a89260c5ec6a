package app

import (
	"fmt"
	"os"
	"path/filepath"
)

// GetDefaults returns application default paths, checking environment variables first.
// Environment variables:
//   - FHIRSYNC_CONFIG_PATH: config file location (default: ~/.config/fhirsync.toml)
//   - FHIRSYNC_HOME: base directory for local data (default: ~/.local/share/fhirsync)
func GetDefaults() (map[string]string, error) {
	configPath, err := configPath()
	if err != nil {
		return nil, err
	}

	baseDir, err := baseDir()
	if err != nil {
		return nil, err
	}

	return map[string]string{
		"config_path": configPath,
		"base_dir":    baseDir,
		"log_dir":     filepath.Join(baseDir, "log"),
		"data_dir":    filepath.Join(baseDir, "db"),
	}, nil
}

func configPath() (string, error) {
	if path := os.Getenv("FHIRSYNC_CONFIG_PATH"); path != "" {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".config", "fhirsync.toml"), nil
}

// baseDir follows the XDG data layout unless FHIRSYNC_HOME is set.
func baseDir() (string, error) {
	if path := os.Getenv("FHIRSYNC_HOME"); path != "" {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", "fhirsync"), nil
}
