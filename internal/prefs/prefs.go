// Package prefs handles user preferences persistence.
// Preferences are stored in ~/.config/torchledger/prefs.toml.
package prefs

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"

	"TorchLedger/internal/pricing"
)

// Prefs holds user preferences that the overlay changes at runtime.
type Prefs struct {
	Tax     bool     `toml:"tax"`
	Opacity float64  `toml:"opacity"`
	User    string   `toml:"user"`
	Filter  string   `toml:"filter"`
	Exclude []string `toml:"exclude"`
}

const (
	defaultPrefsPath = "~/.config/torchledger/prefs.toml"
	defaultOpacity   = 1.0
	minOpacity       = 0.1
)

// Default returns the preferences used when nothing is stored.
func Default() Prefs {
	return Prefs{Opacity: defaultOpacity, Filter: string(pricing.FilterAll)}
}

// DefaultPath returns the default preferences file path.
func DefaultPath() string {
	return defaultPrefsPath
}

// Load reads preferences from the given path, falling back to defaults if missing.
func Load(path string) (Prefs, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return Default(), nil
	}

	prefs := Default()

	file, err := os.Open(resolved)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return prefs, nil
		}
		return prefs, nil // Graceful degradation
	}
	defer func() { _ = file.Close() }()

	bytes, err := io.ReadAll(file)
	if err != nil {
		return prefs, nil // Graceful degradation
	}

	if err := toml.Unmarshal(bytes, &prefs); err != nil {
		return Default(), nil // Graceful degradation
	}

	return prefs.Normalize(), nil
}

// Normalize clamps opacity to [0.1, 1] and resets an unknown filter.
func (p Prefs) Normalize() Prefs {
	switch {
	case p.Opacity == 0:
		p.Opacity = defaultOpacity
	case p.Opacity < minOpacity:
		p.Opacity = minOpacity
	case p.Opacity > 1:
		p.Opacity = 1
	}
	p.Filter = strings.TrimSpace(p.Filter)
	known := false
	for _, f := range pricing.Filters {
		if string(f) == p.Filter {
			known = true
			break
		}
	}
	if !known {
		p.Filter = string(pricing.FilterAll)
	}
	return p
}

// Save writes preferences to the given path, creating directories as needed.
func Save(path string, p Prefs) error {
	resolved, err := resolvePath(path)
	if err != nil {
		return fmt.Errorf("resolve path: %w", err)
	}

	dir := filepath.Dir(resolved)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create prefs dir: %w", err)
	}

	bytes, err := toml.Marshal(p.Normalize())
	if err != nil {
		return fmt.Errorf("marshal prefs: %w", err)
	}

	if err := os.WriteFile(resolved, bytes, 0o644); err != nil {
		return fmt.Errorf("write prefs: %w", err)
	}

	return nil
}

func resolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return expandPath(defaultPrefsPath)
	}
	return expandPath(path)
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("path is empty")
	}
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}
