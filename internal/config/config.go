package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DumpFormat selects the output encoding for rewritten graphs.
type DumpFormat string

const (
	DumpYAML DumpFormat = "yaml"
	DumpJSON DumpFormat = "json"
	DumpDot  DumpFormat = "dot"
)

// Config holds all configuration for sopt
type Config struct {
	// PeelLoopHeaders allows duplicating loop headers when a jump is
	// threaded through one.
	PeelLoopHeaders bool `yaml:"peel_loop_headers" env:"SOPT_PEEL_LOOP_HEADERS"`

	// OptimizeSize suppresses duplication of blocks with multiple
	// predecessors.
	OptimizeSize bool `yaml:"optimize_size" env:"SOPT_OPTIMIZE_SIZE"`

	// MaxThreadPaths caps how many registered paths are admitted per run.
	// Zero means no limit.
	MaxThreadPaths int `yaml:"max_thread_paths" env:"SOPT_MAX_THREAD_PATHS"`

	// DumpFormat selects the encoding used when dumping rewritten graphs
	DumpFormat DumpFormat `yaml:"dump_format" env:"SOPT_DUMP_FORMAT"`

	// CacheDir is where binary graph snapshots are kept
	CacheDir string `yaml:"cache_dir" env:"SOPT_CACHE_DIR"`

	// Logging
	Verbose bool `yaml:"verbose" env:"SOPT_VERBOSE"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		PeelLoopHeaders: true,
		OptimizeSize:    false,
		MaxThreadPaths:  0,
		DumpFormat:      DumpYAML,
		CacheDir:        defaultCacheDir(),
		Verbose:         false,
	}
}

func defaultCacheDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".sopt/cache"
	}
	return filepath.Join(home, ".sopt", "cache")
}

// globalConfigFilePath returns the global config file path (~/.sopt/config.yaml)
func globalConfigFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".sopt/config.yaml"
	}
	return filepath.Join(home, ".sopt", "config.yaml")
}

// projectConfigFilePath returns the project-level config file path (./.sopt/config.yaml)
func projectConfigFilePath() string {
	return ".sopt/config.yaml"
}

// Load reads configuration with the following priority (highest to lowest):
// 1. Environment variables
// 2. Project-level config (./.sopt/config.yaml)
// 3. Global config (~/.sopt/config.yaml)
// 4. Defaults
func Load() (*Config, error) {
	cfg := DefaultConfig()

	globalConfigPath := globalConfigFilePath()
	if data, err := os.ReadFile(globalConfigPath); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", globalConfigPath, err)
		}
	}

	projectConfigPath := projectConfigFilePath()
	if data, err := os.ReadFile(projectConfigPath); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", projectConfigPath, err)
		}
	}

	applyEnvOverrides(cfg)

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

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
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

// applyEnvOverrides applies environment variable overrides to the config
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SOPT_PEEL_LOOP_HEADERS"); v != "" {
		cfg.PeelLoopHeaders = isTruthy(v)
	}
	if v := os.Getenv("SOPT_OPTIMIZE_SIZE"); v != "" {
		cfg.OptimizeSize = isTruthy(v)
	}
	if v := os.Getenv("SOPT_MAX_THREAD_PATHS"); v != "" {
		if i := parseInt(v); i > 0 {
			cfg.MaxThreadPaths = i
		}
	}
	if v := os.Getenv("SOPT_DUMP_FORMAT"); v != "" {
		cfg.DumpFormat = DumpFormat(v)
	}
	if v := os.Getenv("SOPT_CACHE_DIR"); v != "" {
		cfg.CacheDir = v
	}
	if v := os.Getenv("SOPT_VERBOSE"); v != "" {
		cfg.Verbose = isTruthy(v)
	}
}

// Validate checks that the configuration has valid required fields
func (c *Config) Validate() error {
	switch c.DumpFormat {
	case DumpYAML, DumpJSON, DumpDot:
		// Valid
	default:
		return fmt.Errorf("invalid dump_format: %s (must be 'yaml', 'json' or 'dot')", c.DumpFormat)
	}

	if c.MaxThreadPaths < 0 {
		return fmt.Errorf("max_thread_paths must be non-negative")
	}
	if c.CacheDir == "" {
		return fmt.Errorf("cache_dir must not be empty")
	}

	return nil
}

func isTruthy(v string) bool {
	return v == "true" || v == "1" || v == "yes"
}

// parseInt attempts to parse a string as int
func parseInt(s string) int {
	var i int
	if _, err := fmt.Sscanf(s, "%d", &i); err != nil {
		return 0
	}
	return i
}
