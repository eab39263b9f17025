package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

//go:embed default-config.yaml
var defaultConfig []byte

// ErrExists is returned by Init when a configuration file is already present.
var ErrExists = errors.New("configuration file already exists")

// ErrNotFound is returned by Load when there is no configuration file.
var ErrNotFound = errors.New("configuration file not found")

// Loader reads the configuration file at Path.
type Loader struct {
	Path string
}

// NewLoader returns a Loader for the file at path.
func NewLoader(path string) *Loader {
	return &Loader{Path: path}
}

// EnsureDefault writes the default configuration if no file exists yet and
// reports whether it did.
func (l *Loader) EnsureDefault() (bool, error) {
	if _, err := os.Stat(l.Path); err == nil {
		return false, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("checking %s: %w", l.Path, err)
	}
	if err := l.write(); err != nil {
		return false, err
	}
	return true, nil
}

// Init writes the default configuration, refusing to overwrite.
func (l *Loader) Init() error {
	created, err := l.EnsureDefault()
	if err != nil {
		return err
	}
	if !created {
		return fmt.Errorf("%w at %s", ErrExists, l.Path)
	}
	return nil
}

// Load reads and validates the configuration file.
func (l *Loader) Load() (*Config, error) {
	source, err := os.ReadFile(l.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w at %s", ErrNotFound, l.Path)
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", l.Path, err)
	}
	return Parse(source)
}

func (l *Loader) write() error {
	if err := os.MkdirAll(filepath.Dir(l.Path), 0755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	if err := os.WriteFile(l.Path, defaultConfig, 0644); err != nil {
		return fmt.Errorf("writing default config: %w", err)
	}
	return nil
}
