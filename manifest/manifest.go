// Package manifest handles tapevm.toml configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// FileName is the configuration file looked up next to programs.
const FileName = "tapevm.toml"

// Manifest represents a tapevm.toml configuration.
type Manifest struct {
	Run   RunConfig   `toml:"run"`
	Log   LogConfig   `toml:"log"`
	Cache CacheConfig `toml:"cache"`

	// Dir is the directory containing the tapevm.toml file (set at load time).
	Dir string `toml:"-"`
}

// RunConfig configures program execution.
type RunConfig struct {
	MaxSteps uint64 `toml:"max-steps"`
	Input    string `toml:"input"`
	Trace    bool   `toml:"trace"`
}

// LogConfig configures commonlog.
type LogConfig struct {
	Verbosity int    `toml:"verbosity"`
	File      string `toml:"file"`
}

// CacheConfig configures the compiled-program cache.
type CacheConfig struct {
	Enabled *bool  `toml:"enabled"`
	Path    string `toml:"path"`
}

// Default returns the configuration used when no tapevm.toml exists.
func Default() *Manifest {
	m := &Manifest{}
	m.applyDefaults()
	return m
}

// Load parses a tapevm.toml file at path.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", path, err)
	}

	m.applyDefaults()
	m.Run.Input = m.resolve(m.Run.Input)
	m.Log.File = m.resolve(m.Log.File)
	m.Cache.Path = m.resolve(m.Cache.Path)

	return &m, nil
}

// FindAndLoad walks up from startDir to find a tapevm.toml file,
// then loads and returns it. Returns Default() if no file is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return Default(), nil
		}
		dir = parent
	}
}

// CacheEnabled reports whether the compiled-program cache is on.
func (m *Manifest) CacheEnabled() bool {
	return m.Cache.Enabled == nil || *m.Cache.Enabled
}

// CachePath returns the cache database path, defaulting to
// ~/.tapevm/cache.db.
func (m *Manifest) CachePath() (string, error) {
	if m.Cache.Path != "" {
		return m.Cache.Path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home dir: %w", err)
	}
	return filepath.Join(home, ".tapevm", "cache.db"), nil
}

func (m *Manifest) applyDefaults() {
	if m.Log.Verbosity < 0 {
		m.Log.Verbosity = 0
	}
}

// resolve makes a configured path relative to the manifest directory and
// expands a leading "~/".
func (m *Manifest) resolve(p string) string {
	if p == "" {
		return ""
	}
	if strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, p[2:])
		}
	}
	if filepath.IsAbs(p) || m.Dir == "" {
		return p
	}
	return filepath.Join(m.Dir, p)
}
