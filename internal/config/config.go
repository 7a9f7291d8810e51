// CLAUDE:SUMMARY Defines shotcheck config structs and parses the optional YAML configuration file with defaults.
// Package config handles shotcheck configuration from a YAML file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPath names the environment variable holding the config file path.
const EnvPath = "SHOTCHECK_CONFIG"

// DefaultPath is used when EnvPath is unset.
const DefaultPath = "shotcheck.yaml"

// Config is the top-level shotcheck configuration.
type Config struct {
	ExamplesDir  string   `yaml:"examples_dir"`
	ExcludeDirs  []string `yaml:"exclude_dirs"`
	Extension    string   `yaml:"extension"`
	ExcludeFiles []string `yaml:"exclude_files"`
	Denylist     []string `yaml:"denylist"`

	BaseURL   string `yaml:"base_url"`
	ImagesDir string `yaml:"images_dir"`
	DiffsDir  string `yaml:"diffs_dir"`

	Threshold      float64       `yaml:"threshold"`
	DiffWorkers    int           `yaml:"diff_workers"`
	CaptureTimeout time.Duration `yaml:"capture_timeout"`
	Settle         time.Duration `yaml:"settle"`

	FailOnRegression bool   `yaml:"fail_on_regression"`
	LogLevel         string `yaml:"log_level"` // debug | info | warn | error

	Browser BrowserConfig `yaml:"browser"`
	Serve   ServeConfig   `yaml:"serve"`
	History HistoryConfig `yaml:"history"`
}

// BrowserConfig controls Chrome.
type BrowserConfig struct {
	Remote   string `yaml:"remote"`   // DevTools WebSocket URL; empty launches locally
	Bin      string `yaml:"bin"`      // Chrome binary; empty lets the launcher find or fetch one
	Headless *bool  `yaml:"headless"` // default true
	Stealth  bool   `yaml:"stealth"`
}

// IsHeadless resolves the headless default.
func (b BrowserConfig) IsHeadless() bool {
	return b.Headless == nil || *b.Headless
}

// ServeConfig enables the built-in page server for the corpus.
type ServeConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// HistoryConfig enables the SQLite run log.
type HistoryConfig struct {
	Path string `yaml:"path"` // empty disables
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

// Path returns the config path from the environment or DefaultPath.
func Path() string {
	if p := os.Getenv(EnvPath); p != "" {
		return p
	}
	return DefaultPath
}

// Load reads path. A missing file yields defaults unless required is set.
func Load(path string, required bool) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) && !required {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFromEnv loads the file named by SHOTCHECK_CONFIG, which must then
// exist, or the optional DefaultPath.
func LoadFromEnv() (*Config, error) {
	_, explicit := os.LookupEnv(EnvPath)
	return Load(Path(), explicit)
}

func (c *Config) applyDefaults() {
	if c.ExamplesDir == "" {
		c.ExamplesDir = "../examples"
	}
	if c.ExcludeDirs == nil {
		c.ExcludeDirs = []string{"elm-stuff"}
	}
	if c.Extension == "" {
		c.Extension = ".elm"
	}
	if c.ExcludeFiles == nil {
		c.ExcludeFiles = []string{"Data.elm"}
	}
	if c.BaseURL == "" {
		c.BaseURL = "http://localhost:8000/"
	}
	if c.ImagesDir == "" {
		c.ImagesDir = "images"
	}
	if c.DiffsDir == "" {
		c.DiffsDir = "diffs"
	}
	if c.Threshold == 0 {
		c.Threshold = 0.1
	}
	if c.CaptureTimeout <= 0 {
		c.CaptureTimeout = 30 * time.Second
	}
	if c.Settle <= 0 {
		c.Settle = 300 * time.Millisecond
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Serve.Addr == "" {
		c.Serve.Addr = "localhost:8000"
	}
}

// Validate checks values that defaults cannot repair.
func (c *Config) Validate() error {
	if c.Threshold < 0 || c.Threshold >= 1 {
		return fmt.Errorf("config: threshold %v outside [0,1), 1 disables detection", c.Threshold)
	}
	if c.DiffWorkers < 0 {
		return fmt.Errorf("config: diff_workers must be >= 0")
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("config: base_url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("config: base_url %q must be http or https", c.BaseURL)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown log_level %q", c.LogLevel)
	}
	return nil
}
