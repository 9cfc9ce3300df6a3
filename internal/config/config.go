// Package config loads ~/.pulse/config.yaml and applies PULSE_* environment
// overrides on top of it.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Dir is the per-user directory holding config, database and log.
const Dir = ".pulse"

// DwellConfig sets the minimum reading time on a question's first visit.
type DwellConfig struct {
	Units *int          `yaml:"units,omitempty"`
	Unit  time.Duration `yaml:"unit,omitempty"`
}

// SentimentConfig controls the rotating sentiment forms.
type SentimentConfig struct {
	Forms int `yaml:"forms,omitempty"`
}

// LogConfig controls the file logger.
type LogConfig struct {
	Level  string `yaml:"level,omitempty"`
	Format string `yaml:"format,omitempty"`
	File   string `yaml:"file,omitempty"`
}

// Config is the merged runtime configuration.
type Config struct {
	APIURL         string          `yaml:"api_url"`
	Token          string          `yaml:"token,omitempty"`
	EmployeeID     string          `yaml:"employee_id,omitempty"`
	DB             string          `yaml:"db,omitempty"`
	RequestTimeout time.Duration   `yaml:"request_timeout,omitempty"`
	AdvisoryTTL    time.Duration   `yaml:"advisory_ttl,omitempty"`
	Dwell          DwellConfig     `yaml:"dwell,omitempty"`
	Sentiment      SentimentConfig `yaml:"sentiment,omitempty"`
	Log            LogConfig       `yaml:"log,omitempty"`

	// Path is the file the config was read from, if any.
	Path string `yaml:"-"`
}

// Home returns ~/.pulse.
func Home() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, Dir)
}

// DefaultPath returns ~/.pulse/config.yaml.
func DefaultPath() string {
	return filepath.Join(Home(), "config.yaml")
}

// Default returns the built-in settings.
func Default() Config {
	units := 3
	return Config{
		DB:             filepath.Join(Home(), "pulse.db"),
		RequestTimeout: 15 * time.Second,
		AdvisoryTTL:    3 * time.Second,
		Dwell:          DwellConfig{Units: &units, Unit: time.Second},
		Sentiment:      SentimentConfig{Forms: 4},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
			File:   filepath.Join(Home(), "pulse.log"),
		},
	}
}

// Load reads path (a missing file is fine), fills unset fields from the
// defaults and applies environment overrides. An empty path means
// DefaultPath.
func Load(path string) (*Config, error) {
	return load(path, os.Getenv)
}

func load(path string, getenv func(string) string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	default:
		var file Config
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
		cfg.merge(file)
		cfg.Path = path
	}

	if err := cfg.applyEnv(getenv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) merge(o Config) {
	if o.APIURL != "" {
		c.APIURL = o.APIURL
	}
	if o.Token != "" {
		c.Token = o.Token
	}
	if o.EmployeeID != "" {
		c.EmployeeID = o.EmployeeID
	}
	if o.DB != "" {
		c.DB = expandHome(o.DB)
	}
	if o.RequestTimeout != 0 {
		c.RequestTimeout = o.RequestTimeout
	}
	if o.AdvisoryTTL != 0 {
		c.AdvisoryTTL = o.AdvisoryTTL
	}
	if o.Dwell.Units != nil {
		c.Dwell.Units = o.Dwell.Units
	}
	if o.Dwell.Unit != 0 {
		c.Dwell.Unit = o.Dwell.Unit
	}
	if o.Sentiment.Forms != 0 {
		c.Sentiment.Forms = o.Sentiment.Forms
	}
	if o.Log.Level != "" {
		c.Log.Level = o.Log.Level
	}
	if o.Log.Format != "" {
		c.Log.Format = o.Log.Format
	}
	if o.Log.File != "" {
		c.Log.File = expandHome(o.Log.File)
	}
}

func (c *Config) applyEnv(getenv func(string) string) error {
	if v := getenv("PULSE_API_URL"); v != "" {
		c.APIURL = v
	}
	if v := getenv("PULSE_TOKEN"); v != "" {
		c.Token = v
	}
	if v := getenv("PULSE_EMPLOYEE_ID"); v != "" {
		c.EmployeeID = v
	}
	if v := getenv("PULSE_DB"); v != "" {
		c.DB = expandHome(v)
	}
	if v := getenv("PULSE_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := getenv("PULSE_DWELL_UNITS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: PULSE_DWELL_UNITS: %w", err)
		}
		c.Dwell.Units = &n
	}
	return nil
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	if c.Dwell.Units != nil && *c.Dwell.Units < 0 {
		return fmt.Errorf("config: dwell.units must not be negative")
	}
	if c.Dwell.Unit <= 0 {
		return fmt.Errorf("config: dwell.unit must be positive")
	}
	if c.Sentiment.Forms <= 0 {
		return fmt.Errorf("config: sentiment.forms must be positive")
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("config: log.format must be text or json, got %q", c.Log.Format)
	}
	return nil
}

// RequireRemote checks the settings needed to reach the backend.
func (c *Config) RequireRemote() error {
	if c.APIURL == "" {
		return fmt.Errorf("config: api_url is not set (config file or PULSE_API_URL)")
	}
	return nil
}

// Marshal renders the config as YAML with the token redacted.
func (c Config) Marshal() ([]byte, error) {
	if c.Token != "" {
		c.Token = "********"
	}
	return yaml.Marshal(c)
}

func expandHome(p string) string {
	if rest, ok := strings.CutPrefix(p, "~/"); ok {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, rest)
	}
	return p
}
