package server

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/trondhumbor/ChitChat/pkg/logging"
	"github.com/trondhumbor/ChitChat/pkg/protocol"
)

// Config holds server configuration.
type Config struct {
	ListenAddr         string           // TCP bind address for the chat protocol
	HTTPAddr           string           // HTTP bind address for /metrics, /healthz and /ws (empty = disabled)
	Framing            protocol.Framing // stream framing on the TCP listener
	SendTimeout        time.Duration    // per-write deadline in a session's writer
	OutboxSize         int              // queued responses per session before it counts as failed
	MaxFrameSize       int              // largest accepted or emitted frame payload
	ArchivePath        string           // SQLite message archive (empty = disabled)
	MetricsLogInterval time.Duration    // periodic metrics summary (0 = disabled)
	ShutdownTimeout    time.Duration    // how long Shutdown waits for sessions to exit
	LogLevel           string
	LogFormat          string
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		ListenAddr:         ":9998",
		HTTPAddr:           ":9999",
		Framing:            protocol.FramingLength,
		SendTimeout:        5 * time.Second,
		OutboxSize:         64,
		MaxFrameSize:       protocol.MaxFrameSize,
		ArchivePath:        "",
		MetricsLogInterval: 60 * time.Second,
		ShutdownTimeout:    5 * time.Second,
		LogLevel:           "info",
		LogFormat:          "text",
	}
}

// fileConfig is the on-disk shape shared by the YAML and TOML loaders.
// Pointers distinguish "absent" from zero so a file only overrides what it sets.
type fileConfig struct {
	ListenAddr         *string `yaml:"listen_addr" toml:"listen_addr"`
	HTTPAddr           *string `yaml:"http_addr" toml:"http_addr"`
	Framing            *string `yaml:"framing" toml:"framing"`
	SendTimeout        *string `yaml:"send_timeout" toml:"send_timeout"`
	OutboxSize         *int    `yaml:"outbox_size" toml:"outbox_size"`
	MaxFrameSize       *int    `yaml:"max_frame_size" toml:"max_frame_size"`
	ArchivePath        *string `yaml:"archive_path" toml:"archive_path"`
	MetricsLogInterval *string `yaml:"metrics_log_interval" toml:"metrics_log_interval"`
	ShutdownTimeout    *string `yaml:"shutdown_timeout" toml:"shutdown_timeout"`
	LogLevel           *string `yaml:"log_level" toml:"log_level"`
	LogFormat          *string `yaml:"log_format" toml:"log_format"`
}

// LoadConfig reads a YAML (.yaml/.yml) or TOML (.toml) file over the
// defaults, then applies CHITCHAT_* environment overrides. An empty path
// skips the file.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path) //nolint:gosec // path from user-provided CLI flag
		if err != nil {
			return Config{}, fmt.Errorf("server: read config: %w", err)
		}
		var fc fileConfig
		switch ext := strings.ToLower(filepath.Ext(path)); ext {
		case ".yaml", ".yml":
			if err := yaml.Unmarshal(data, &fc); err != nil {
				return Config{}, fmt.Errorf("server: parse config: %w", err)
			}
		case ".toml":
			if _, err := toml.Decode(string(data), &fc); err != nil {
				return Config{}, fmt.Errorf("server: parse config: %w", err)
			}
		default:
			return Config{}, fmt.Errorf("server: config %q: unsupported extension %q", path, ext)
		}
		if err := fc.apply(&cfg); err != nil {
			return Config{}, fmt.Errorf("server: config %q: %w", path, err)
		}
	}
	if err := applyEnvOverrides(&cfg, os.LookupEnv); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (fc fileConfig) apply(cfg *Config) error {
	setString := func(dst *string, v *string) {
		if v != nil {
			*dst = *v
		}
	}
	setString(&cfg.ListenAddr, fc.ListenAddr)
	setString(&cfg.HTTPAddr, fc.HTTPAddr)
	setString(&cfg.ArchivePath, fc.ArchivePath)
	setString(&cfg.LogLevel, fc.LogLevel)
	setString(&cfg.LogFormat, fc.LogFormat)
	if fc.Framing != nil {
		cfg.Framing = protocol.Framing(*fc.Framing)
	}
	if fc.OutboxSize != nil {
		cfg.OutboxSize = *fc.OutboxSize
	}
	if fc.MaxFrameSize != nil {
		cfg.MaxFrameSize = *fc.MaxFrameSize
	}

	durations := []struct {
		name string
		src  *string
		dst  *time.Duration
	}{
		{"send_timeout", fc.SendTimeout, &cfg.SendTimeout},
		{"metrics_log_interval", fc.MetricsLogInterval, &cfg.MetricsLogInterval},
		{"shutdown_timeout", fc.ShutdownTimeout, &cfg.ShutdownTimeout},
	}
	for _, d := range durations {
		if d.src == nil {
			continue
		}
		v, err := time.ParseDuration(*d.src)
		if err != nil {
			return fmt.Errorf("%s: %w", d.name, err)
		}
		*d.dst = v
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides to the config.
// Variables follow the pattern CHITCHAT_KEY, e.g. CHITCHAT_LISTEN_ADDR=:7000.
func applyEnvOverrides(cfg *Config, lookup func(string) (string, bool)) error {
	if val, ok := lookup("CHITCHAT_LISTEN_ADDR"); ok {
		cfg.ListenAddr = val
	}
	if val, ok := lookup("CHITCHAT_HTTP_ADDR"); ok {
		cfg.HTTPAddr = val
	}
	if val, ok := lookup("CHITCHAT_FRAMING"); ok && val != "" {
		cfg.Framing = protocol.Framing(val)
	}
	if val, ok := lookup("CHITCHAT_ARCHIVE_PATH"); ok {
		cfg.ArchivePath = val
	}
	if val, ok := lookup("CHITCHAT_LOG_LEVEL"); ok && val != "" {
		cfg.LogLevel = val
	}
	if val, ok := lookup("CHITCHAT_LOG_FORMAT"); ok && val != "" {
		cfg.LogFormat = val
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"CHITCHAT_OUTBOX_SIZE", &cfg.OutboxSize},
		{"CHITCHAT_MAX_FRAME_SIZE", &cfg.MaxFrameSize},
	}
	for _, i := range ints {
		val, ok := lookup(i.key)
		if !ok || val == "" {
			continue
		}
		n, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("server: env %s: %w", i.key, err)
		}
		*i.dst = n
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"CHITCHAT_SEND_TIMEOUT", &cfg.SendTimeout},
		{"CHITCHAT_METRICS_LOG_INTERVAL", &cfg.MetricsLogInterval},
		{"CHITCHAT_SHUTDOWN_TIMEOUT", &cfg.ShutdownTimeout},
	}
	for _, d := range durations {
		val, ok := lookup(d.key)
		if !ok || val == "" {
			continue
		}
		v, err := time.ParseDuration(val)
		if err != nil {
			return fmt.Errorf("server: env %s: %w", d.key, err)
		}
		*d.dst = v
	}
	return nil
}

// maxRequestFrameSize keeps every message response under
// protocol.MaxResponseSize.
const maxRequestFrameSize = protocol.MaxResponseSize / 8

// Validate rejects configurations the server cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.ListenAddr == "" {
		errs = append(errs, errors.New("listen address must not be empty"))
	}
	if _, err := protocol.ParseFraming(string(c.Framing)); err != nil {
		errs = append(errs, err)
	}
	if c.SendTimeout <= 0 {
		errs = append(errs, fmt.Errorf("send timeout must be positive, got %s", c.SendTimeout))
	}
	if c.OutboxSize <= 0 {
		errs = append(errs, fmt.Errorf("outbox size must be positive, got %d", c.OutboxSize))
	}
	if c.MaxFrameSize <= 0 {
		errs = append(errs, fmt.Errorf("max frame size must be positive, got %d", c.MaxFrameSize))
	}
	// A message response escapes its content, growing it up to sixfold.
	if c.MaxFrameSize > maxRequestFrameSize {
		errs = append(errs, fmt.Errorf("max frame size must be at most %d, got %d", maxRequestFrameSize, c.MaxFrameSize))
	}
	if c.MetricsLogInterval < 0 {
		errs = append(errs, fmt.Errorf("metrics log interval must not be negative, got %s", c.MetricsLogInterval))
	}
	if c.ShutdownTimeout <= 0 {
		errs = append(errs, fmt.Errorf("shutdown timeout must be positive, got %s", c.ShutdownTimeout))
	}
	if err := logging.Validate(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if err := logging.ValidateFormat(c.LogFormat); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("server: invalid config: %w", errors.Join(errs...))
	}
	return nil
}
