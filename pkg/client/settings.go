package client

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/trondhumbor/ChitChat/pkg/protocol"
)

// Settings stores client preferences persisted as YAML.
type Settings struct {
	Server     string           `yaml:"server"`              // host:port for TCP
	WebSocket  string           `yaml:"websocket,omitempty"` // ws:// URL; takes precedence over Server
	Framing    protocol.Framing `yaml:"framing,omitempty"`
	Username   string           `yaml:"username,omitempty"` // sent as a login right after connecting
	HideOwn    bool             `yaml:"hide_own,omitempty"`
	Timestamps bool             `yaml:"timestamps,omitempty"`
	Color      string           `yaml:"color,omitempty"` // auto, always or never
}

// DefaultSettings returns default settings.
func DefaultSettings() *Settings {
	return &Settings{
		Server:  "localhost:9998",
		Framing: protocol.FramingLength,
		Color:   "auto",
	}
}

// LoadSettings loads settings from a YAML file over the defaults.
// A missing file is not an error.
func LoadSettings(path string) (*Settings, error) {
	s := DefaultSettings()
	if path == "" {
		return s, nil
	}
	data, err := os.ReadFile(path) //nolint:gosec // path from user-provided CLI flag
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return s, nil
		}
		return nil, fmt.Errorf("client: read settings: %w", err)
	}
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("client: parse settings: %w", err)
	}
	return s, nil
}

// Save writes settings to YAML.
func (s *Settings) Save(path string) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// UseColor resolves the color setting against whether output is a terminal.
func (s *Settings) UseColor(tty bool) (bool, error) {
	switch s.Color {
	case "", "auto":
		return tty, nil
	case "always":
		return true, nil
	case "never":
		return false, nil
	}
	return false, fmt.Errorf("client: unknown color mode %q (valid: auto, always, never)", s.Color)
}
