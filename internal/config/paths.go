package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// AppPaths are the XDG locations for persisted data.
type AppPaths struct {
	Data   string
	Config string
	Cache  string
	State  string
}

// Paths returns the standard locations, honoring the XDG variables.
func Paths() *AppPaths {
	return &AppPaths{
		Data:   filepath.Join(envOr("XDG_DATA_HOME", defaultDataHome()), "cadenza"),
		Config: filepath.Join(envOr("XDG_CONFIG_HOME", defaultConfigHome()), "cadenza"),
		Cache:  filepath.Join(envOr("XDG_CACHE_HOME", defaultCacheHome()), "cadenza"),
		State:  filepath.Join(envOr("XDG_STATE_HOME", defaultStateHome()), "cadenza"),
	}
}

// Ensure creates all required directories.
func (p *AppPaths) Ensure() error {
	for _, dir := range []string{p.Data, p.Config, p.Cache, p.State} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return nil
}

// StoragePath is the root of the JSON storage tree.
func (p *AppPaths) StoragePath() string {
	return filepath.Join(p.Data, "storage")
}

// GlobalConfigPath is the global config file.
func GlobalConfigPath() string {
	return filepath.Join(Paths().Config, "cadenza.json")
}

// ProjectConfigPath is the per-project config file.
func ProjectConfigPath(directory string) string {
	return filepath.Join(directory, "cadenza.json")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func defaultDataHome() string {
	if runtime.GOOS == "windows" {
		return os.Getenv("APPDATA")
	}
	return filepath.Join(os.Getenv("HOME"), ".local", "share")
}

func defaultConfigHome() string {
	if runtime.GOOS == "windows" {
		return os.Getenv("APPDATA")
	}
	return filepath.Join(os.Getenv("HOME"), ".config")
}

func defaultCacheHome() string {
	if runtime.GOOS == "windows" {
		return filepath.Join(os.Getenv("APPDATA"), "cache")
	}
	return filepath.Join(os.Getenv("HOME"), ".cache")
}

func defaultStateHome() string {
	if runtime.GOOS == "windows" {
		return os.Getenv("APPDATA")
	}
	return filepath.Join(os.Getenv("HOME"), ".local", "state")
}
