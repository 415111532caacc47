package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// BackendType selects the compiler output form
type BackendType string

const (
	BackendFlat       BackendType = "flat"
	BackendStructured BackendType = "structured"
)

// OutputFormat selects how commands print their results
type OutputFormat string

const (
	OutputText OutputFormat = "text"
	OutputJSON OutputFormat = "json"
)

// DirName is the per-user and per-project configuration directory.
const DirName = ".flowc"

// FileName is the configuration file inside DirName.
const FileName = "config.yaml"

// Config holds all configuration for flowc
type Config struct {
	// Backend is the default output form for structure and build
	Backend BackendType `yaml:"backend" env:"FLOWC_BACKEND"`

	// LabelPrefix is prepended to the numeric block labels
	LabelPrefix string `yaml:"label_prefix" env:"FLOWC_LABEL_PREFIX"`

	// Output format for command results
	Output OutputFormat `yaml:"output" env:"FLOWC_OUTPUT"`

	// ExplicitReturns appends "return 0" to functions that fall off the end
	ExplicitReturns bool `yaml:"explicit_returns" env:"FLOWC_EXPLICIT_RETURNS"`

	// Result cache
	CacheDir  string `yaml:"cache_dir" env:"FLOWC_CACHE_DIR"`
	CacheSize int    `yaml:"cache_size" env:"FLOWC_CACHE_SIZE"`

	// IgnoreFile lists paths build skips, gitignore syntax
	IgnoreFile string `yaml:"ignore_file" env:"FLOWC_IGNORE_FILE"`

	// Workers bounds concurrent compilations in build; 0 means GOMAXPROCS
	Workers int `yaml:"workers" env:"FLOWC_WORKERS"`

	// Logging
	Verbose  bool `yaml:"verbose" env:"FLOWC_VERBOSE"`
	JSONLogs bool `yaml:"json_logs" env:"FLOWC_JSON_LOGS"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Backend:         BackendStructured,
		LabelPrefix:     "L",
		Output:          OutputText,
		ExplicitReturns: true,
		CacheDir:        filepath.Join(DirName, "cache"),
		CacheSize:       1024,
		IgnoreFile:      ".flowcignore",
		Workers:         0,
		Verbose:         false,
		JSONLogs:        false,
	}
}

// GlobalConfigPath returns the global config file path (~/.flowc/config.yaml)
func GlobalConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(DirName, FileName)
	}
	return filepath.Join(home, DirName, FileName)
}

// ProjectConfigPath returns the project-level config file path under dir
func ProjectConfigPath(dir string) string {
	return filepath.Join(dir, DirName, FileName)
}

// Load reads configuration for the current directory. See LoadDir.
func Load() (*Config, error) {
	return LoadDir(".")
}

// LoadDir reads configuration with the following priority (highest to lowest):
// 1. Environment variables (FLOWC_*)
// 2. Project-level config (<dir>/.flowc/config.yaml)
// 3. Global config (~/.flowc/config.yaml)
// 4. Defaults
//
// Missing files are skipped; malformed ones are errors.
func LoadDir(dir string) (*Config, error) {
	cfg := DefaultConfig()

	for _, path := range []string{GlobalConfigPath(), ProjectConfigPath(dir)} {
		if err := mergeFile(cfg, path); err != nil {
			return nil, err
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromFile reads configuration from a specific YAML file path
func LoadFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	if data, err := os.ReadFile(path); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func mergeFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// Save writes the configuration to the specified YAML file path.
// It creates parent directories if they don't exist.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", path, err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides to the config.
// Numeric and boolean variables that do not parse are errors.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("FLOWC_BACKEND"); v != "" {
		cfg.Backend = BackendType(v)
	}
	if v := os.Getenv("FLOWC_LABEL_PREFIX"); v != "" {
		cfg.LabelPrefix = v
	}
	if v := os.Getenv("FLOWC_OUTPUT"); v != "" {
		cfg.Output = OutputFormat(v)
	}
	if v := os.Getenv("FLOWC_CACHE_DIR"); v != "" {
		cfg.CacheDir = v
	}
	if v := os.Getenv("FLOWC_IGNORE_FILE"); v != "" {
		cfg.IgnoreFile = v
	}

	ints := []struct {
		name string
		dst  *int
	}{
		{"FLOWC_CACHE_SIZE", &cfg.CacheSize},
		{"FLOWC_WORKERS", &cfg.Workers},
	}
	for _, e := range ints {
		if v := os.Getenv(e.name); v != "" {
			i, err := parseInt(v)
			if err != nil {
				return fmt.Errorf("%s: %w", e.name, err)
			}
			*e.dst = i
		}
	}

	bools := []struct {
		name string
		dst  *bool
	}{
		{"FLOWC_EXPLICIT_RETURNS", &cfg.ExplicitReturns},
		{"FLOWC_VERBOSE", &cfg.Verbose},
		{"FLOWC_JSON_LOGS", &cfg.JSONLogs},
	}
	for _, e := range bools {
		if v := os.Getenv(e.name); v != "" {
			b, err := parseBool(v)
			if err != nil {
				return fmt.Errorf("%s: %w", e.name, err)
			}
			*e.dst = b
		}
	}

	return nil
}

// Validate checks that the configuration has valid required fields
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendFlat, BackendStructured:
	default:
		return fmt.Errorf("invalid backend: %s (must be 'flat' or 'structured')", c.Backend)
	}

	switch c.Output {
	case OutputText, OutputJSON:
	default:
		return fmt.Errorf("invalid output: %s (must be 'text' or 'json')", c.Output)
	}

	if c.LabelPrefix == "" {
		return fmt.Errorf("label_prefix must not be empty")
	}
	if strings.ContainsAny(c.LabelPrefix, " \t\n:,$") {
		return fmt.Errorf("label_prefix %q contains a reserved character", c.LabelPrefix)
	}

	if c.CacheSize < 0 {
		return fmt.Errorf("cache_size must be non-negative")
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must be non-negative")
	}

	return nil
}

// CacheEnabled reports whether build should use the result cache.
func (c *Config) CacheEnabled() bool {
	return c.CacheDir != "" && c.CacheSize > 0
}

// parseInt attempts to parse a string as int
func parseInt(s string) (int, error) {
	var i int
	if _, err := fmt.Sscanf(s, "%d", &i); err != nil {
		return 0, fmt.Errorf("invalid integer %q", s)
	}
	return i, nil
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "true", "1", "yes":
		return true, nil
	case "false", "0", "no":
		return false, nil
	}
	return false, fmt.Errorf("invalid boolean %q", s)
}
