// Package config loads sq100 settings from a YAML file, a .env file and the
// environment, in increasing order of precedence.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// DefaultPath is used when no -config flag is given.
const DefaultPath = "sq100.yaml"

// Config holds all sq100 configuration.
type Config struct {
	mu sync.RWMutex

	Serial  SerialConfig  `yaml:"serial" json:"serial"`
	Device  DeviceConfig  `yaml:"device" json:"device"`
	Export  ExportConfig  `yaml:"export" json:"export"`
	Archive ArchiveConfig `yaml:"archive" json:"archive"`
	Logging LoggingConfig `yaml:"logging" json:"logging"`
	Server  ServerConfig  `yaml:"server" json:"server"`

	fs   afero.Fs
	path string // file path for save/load
}

type SerialConfig struct {
	Port         string `yaml:"port" json:"port"` // e.g. /dev/ttyUSB0
	BaudRate     int    `yaml:"baud_rate" json:"baudRate" validate:"min=1200,max=921600"`
	TimeoutMs    int    `yaml:"timeout_ms" json:"timeoutMs" validate:"min=1"`
	Attempts     int    `yaml:"attempts" json:"attempts" validate:"min=1,max=10"`
	RetryDelayMs int    `yaml:"retry_delay_ms" json:"retryDelayMs" validate:"min=0"`
}

type DeviceConfig struct {
	Firmware string `yaml:"firmware" json:"firmware" validate:"oneof=auto gh625 gh615"`
	Timezone string `yaml:"timezone" json:"timezone" validate:"timezone"` // IANA name the device clock runs in
	Demo     bool   `yaml:"demo" json:"demo"`                             // use the built-in simulator
}

type ExportConfig struct {
	Dir    string `yaml:"dir" json:"dir" validate:"required"`
	Format string `yaml:"format" json:"format" validate:"oneof=gpx csv"`
	Merge  bool   `yaml:"merge" json:"merge"` // one file for all tracks
}

type ArchiveConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path" json:"path" validate:"required_if=Enabled true"`
}

type LoggingConfig struct {
	Level string `yaml:"level" json:"level" validate:"oneof=trace debug info warn error"`
	File  string `yaml:"file" json:"file"` // rotated; empty for console only
}

type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr" json:"listenAddr" validate:"required"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Serial: SerialConfig{
			BaudRate:     115200,
			TimeoutMs:    2000,
			Attempts:     3,
			RetryDelayMs: 500,
		},
		Device: DeviceConfig{
			Firmware: "auto",
			Timezone: "Local",
		},
		Export: ExportConfig{
			Dir:    ".",
			Format: "gpx",
		},
		Archive: ArchiveConfig{
			Path: "sq100.db",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Server: ServerConfig{
			ListenAddr: ":8080",
		},
		fs:   afero.NewOsFs(),
		path: DefaultPath,
	}
}

// LoadConfig reads config from a YAML file on fs, then applies .env and
// environment variable overrides. A missing file falls back to defaults; a
// malformed one is an error.
func LoadConfig(fs afero.Fs, path string, log zerolog.Logger) (*Config, error) {
	cfg := DefaultConfig()
	cfg.fs = fs
	if path != "" {
		cfg.path = path
	}

	data, err := afero.ReadFile(fs, path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		log.Debug().Str("path", path).Msg("no config file, using defaults")
	case err != nil:
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
		log.Debug().Str("path", path).Msg("config loaded")
	}

	// .env next to the config, then in the working directory
	for _, ep := range []string{filepath.Join(filepath.Dir(path), ".env"), ".env"} {
		if loadEnvFile(fs, ep) {
			log.Debug().Str("path", ep).Msg("loaded .env")
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// loadEnvFile reads a simple KEY=VALUE .env file into the process
// environment. Variables already set take precedence.
func loadEnvFile(fs afero.Fs, path string) bool {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return false
	}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, val, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		val = strings.Trim(strings.TrimSpace(val), `"'`)
		if _, set := os.LookupEnv(key); !set {
			os.Setenv(key, val)
		}
	}
	return true
}

// applyEnvOverrides reads SQ100_* environment variables over the file values.
func (c *Config) applyEnvOverrides() {
	str := func(name string, dst *string) {
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}
	num := func(name string, dst *int) {
		if v := os.Getenv(name); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	flag := func(name string, dst *bool) {
		if v := os.Getenv(name); v != "" {
			*dst = v == "1" || v == "true" || v == "yes"
		}
	}

	str("SQ100_PORT", &c.Serial.Port)
	num("SQ100_BAUD", &c.Serial.BaudRate)
	num("SQ100_TIMEOUT_MS", &c.Serial.TimeoutMs)
	str("SQ100_FIRMWARE", &c.Device.Firmware)
	str("SQ100_TZ", &c.Device.Timezone)
	flag("SQ100_DEMO", &c.Device.Demo)
	str("SQ100_EXPORT_DIR", &c.Export.Dir)
	str("SQ100_EXPORT_FORMAT", &c.Export.Format)
	flag("SQ100_ARCHIVE", &c.Archive.Enabled)
	str("SQ100_ARCHIVE_PATH", &c.Archive.Path)
	str("SQ100_LOG_LEVEL", &c.Logging.Level)
	str("SQ100_LOG_FILE", &c.Logging.File)
	str("SQ100_LISTEN_ADDR", &c.Server.ListenAddr)
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("timezone", func(fl validator.FieldLevel) bool {
		_, err := time.LoadLocation(fl.Field().String())
		return err == nil
	})
	return v
}

// Validate checks every field and reports all problems at once.
func (c *Config) Validate() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("config: %w", err)
		}
		msgs := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			msg := fmt.Sprintf("%s: failed %q", strings.TrimPrefix(fe.Namespace(), "Config."), fe.Tag())
			if fe.Param() != "" {
				msg += " (" + fe.Param() + ")"
			}
			msgs = append(msgs, msg)
		}
		return fmt.Errorf("config: invalid: %s", strings.Join(msgs, "; "))
	}
	return nil
}

// RequireDevice checks the settings needed to reach a real device.
func (c *Config) RequireDevice() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.Device.Demo && c.Serial.Port == "" {
		return errors.New("config: serial.port is required (or enable device.demo)")
	}
	return nil
}

// Location resolves the device time zone.
func (c *Config) Location() (*time.Location, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	loc, err := time.LoadLocation(c.Device.Timezone)
	if err != nil {
		return nil, fmt.Errorf("config: timezone %q: %w", c.Device.Timezone, err)
	}
	return loc, nil
}

// Snapshot returns a copy of the settings safe to read without locking.
func (c *Config) Snapshot() Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Config{
		Serial:  c.Serial,
		Device:  c.Device,
		Export:  c.Export,
		Archive: c.Archive,
		Logging: c.Logging,
		Server:  c.Server,
	}
}

// Save writes the config to its YAML file.
func (c *Config) Save() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return afero.WriteFile(c.fs, c.path, data, 0o644)
}

// ToJSON serializes config for the API.
func (c *Config) ToJSON() ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return json.Marshal(c)
}

// UpdateFromJSON applies a partial JSON config update by deep-merging
// incoming fields into the existing config. Fields absent from data keep
// their values. The merged result must validate.
func (c *Config) UpdateFromJSON(data []byte) error {
	c.mu.Lock()

	currentBytes, err := json.Marshal(c)
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("config: marshal current: %w", err)
	}
	var base map[string]any
	if err := json.Unmarshal(currentBytes, &base); err != nil {
		c.mu.Unlock()
		return fmt.Errorf("config: unmarshal current: %w", err)
	}

	var patch map[string]any
	if err := json.Unmarshal(data, &patch); err != nil {
		c.mu.Unlock()
		return fmt.Errorf("config: unmarshal patch: %w", err)
	}
	deepMerge(base, patch)

	merged, err := json.Marshal(base)
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("config: marshal merged: %w", err)
	}
	prev := Config{Serial: c.Serial, Device: c.Device, Export: c.Export,
		Archive: c.Archive, Logging: c.Logging, Server: c.Server}
	if err := json.Unmarshal(merged, c); err != nil {
		c.restore(&prev)
		c.mu.Unlock()
		return fmt.Errorf("config: apply: %w", err)
	}
	c.mu.Unlock()

	if err := c.Validate(); err != nil {
		c.mu.Lock()
		c.restore(&prev)
		c.mu.Unlock()
		return err
	}
	return nil
}

func (c *Config) restore(prev *Config) {
	c.Serial, c.Device, c.Export = prev.Serial, prev.Device, prev.Export
	c.Archive, c.Logging, c.Server = prev.Archive, prev.Logging, prev.Server
}

// deepMerge recursively merges src into dst. Nested maps are merged; all
// other values in src overwrite dst.
func deepMerge(dst, src map[string]any) {
	for key, srcVal := range src {
		if srcMap, ok := srcVal.(map[string]any); ok {
			if dstMap, ok := dst[key].(map[string]any); ok {
				deepMerge(dstMap, srcMap)
				continue
			}
		}
		dst[key] = srcVal
	}
}
