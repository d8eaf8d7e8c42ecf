package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	tests := []struct {
		name     string
		got      interface{}
		expected interface{}
	}{
		{"PeelLoopHeaders", cfg.PeelLoopHeaders, true},
		{"OptimizeSize", cfg.OptimizeSize, false},
		{"MaxThreadPaths", cfg.MaxThreadPaths, 0},
		{"DumpFormat", cfg.DumpFormat, DumpYAML},
		{"Verbose", cfg.Verbose, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.expected {
				t.Errorf("DefaultConfig().%s = %v, want %v", tt.name, tt.got, tt.expected)
			}
		})
	}

	if cfg.CacheDir == "" {
		t.Error("DefaultConfig().CacheDir is empty")
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name        string
		cfg         *Config
		wantErr     bool
		errContains string
	}{
		{
			name: "valid yaml dump config",
			cfg: &Config{
				DumpFormat: DumpYAML,
				CacheDir:   "/tmp/sopt",
			},
			wantErr: false,
		},
		{
			name: "valid dot dump config",
			cfg: &Config{
				DumpFormat:     DumpDot,
				CacheDir:       "/tmp/sopt",
				MaxThreadPaths: 32,
			},
			wantErr: false,
		},
		{
			name: "invalid dump format",
			cfg: &Config{
				DumpFormat: "svg",
				CacheDir:   "/tmp/sopt",
			},
			wantErr:     true,
			errContains: "invalid dump_format",
		},
		{
			name: "negative max_thread_paths",
			cfg: &Config{
				DumpFormat:     DumpYAML,
				CacheDir:       "/tmp/sopt",
				MaxThreadPaths: -1,
			},
			wantErr:     true,
			errContains: "max_thread_paths must be non-negative",
		},
		{
			name: "empty cache_dir",
			cfg: &Config{
				DumpFormat: DumpYAML,
				CacheDir:   "",
			},
			wantErr:     true,
			errContains: "cache_dir must not be empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				if err == nil {
					t.Errorf("Expected error containing %q, got nil", tt.errContains)
				} else if !contains(err.Error(), tt.errContains) {
					t.Errorf("Error = %q, should contain %q", err.Error(), tt.errContains)
				}
			} else {
				if err != nil {
					t.Errorf("Unexpected error: %v", err)
				}
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	tests := []struct {
		name        string
		configYAML  string
		envVars     map[string]string
		checkCfg    func(*testing.T, *Config)
		wantErr     bool
		errContains string
	}{
		{
			name: "load valid config from file",
			configYAML: `
peel_loop_headers: false
optimize_size: true
max_thread_paths: 64
dump_format: dot
cache_dir: /var/cache/sopt
verbose: true
`,
			checkCfg: func(t *testing.T, cfg *Config) {
				if cfg.PeelLoopHeaders {
					t.Error("PeelLoopHeaders = true, want false")
				}
				if !cfg.OptimizeSize {
					t.Error("OptimizeSize = false, want true")
				}
				if cfg.MaxThreadPaths != 64 {
					t.Errorf("MaxThreadPaths = %v, want 64", cfg.MaxThreadPaths)
				}
				if cfg.DumpFormat != DumpDot {
					t.Errorf("DumpFormat = %v, want %v", cfg.DumpFormat, DumpDot)
				}
				if cfg.CacheDir != "/var/cache/sopt" {
					t.Errorf("CacheDir = %v, want /var/cache/sopt", cfg.CacheDir)
				}
				if !cfg.Verbose {
					t.Error("Verbose = false, want true")
				}
			},
			wantErr: false,
		},
		{
			name: "env var overrides file values",
			configYAML: `
dump_format: yaml
max_thread_paths: 8
`,
			envVars: map[string]string{
				"SOPT_DUMP_FORMAT":      "json",
				"SOPT_MAX_THREAD_PATHS": "16",
			},
			checkCfg: func(t *testing.T, cfg *Config) {
				if cfg.DumpFormat != DumpJSON {
					t.Errorf("DumpFormat = %v, want %v (from env)", cfg.DumpFormat, DumpJSON)
				}
				if cfg.MaxThreadPaths != 16 {
					t.Errorf("MaxThreadPaths = %v, want 16 (from env)", cfg.MaxThreadPaths)
				}
			},
			wantErr: false,
		},
		{
			name: "invalid yaml",
			configYAML: `
dump_format: yaml
  invalid: indent
`,
			wantErr:     true,
			errContains: "failed to parse",
		},
		{
			name: "invalid dump format in file",
			configYAML: `
dump_format: png
`,
			wantErr:     true,
			errContains: "invalid dump_format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				os.Setenv(k, v)
				defer os.Unsetenv(k)
			}

			tmpDir := t.TempDir()
			configPath := filepath.Join(tmpDir, "config.yaml")
			err := os.WriteFile(configPath, []byte(tt.configYAML), 0644)
			if err != nil {
				t.Fatalf("Failed to write config file: %v", err)
			}

			cfg, err := LoadFromFile(configPath)

			if tt.wantErr {
				if err == nil {
					t.Errorf("Expected error containing %q, got nil", tt.errContains)
				} else if !contains(err.Error(), tt.errContains) {
					t.Errorf("Error = %q, should contain %q", err.Error(), tt.errContains)
				}
				return
			}

			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}

			if tt.checkCfg != nil {
				tt.checkCfg(t, cfg)
			}
		})
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	envKeys := []string{
		"SOPT_PEEL_LOOP_HEADERS",
		"SOPT_OPTIMIZE_SIZE",
		"SOPT_MAX_THREAD_PATHS",
		"SOPT_DUMP_FORMAT",
		"SOPT_CACHE_DIR",
		"SOPT_VERBOSE",
	}
	defer func() {
		for _, k := range envKeys {
			os.Unsetenv(k)
		}
	}()

	tests := []struct {
		name    string
		envVars map[string]string
		check   func(*testing.T, *Config)
	}{
		{
			name: "override peel_loop_headers",
			envVars: map[string]string{
				"SOPT_PEEL_LOOP_HEADERS": "0",
			},
			check: func(t *testing.T, cfg *Config) {
				if cfg.PeelLoopHeaders {
					t.Error("PeelLoopHeaders = true, want false")
				}
			},
		},
		{
			name: "override optimize_size with yes",
			envVars: map[string]string{
				"SOPT_OPTIMIZE_SIZE": "yes",
			},
			check: func(t *testing.T, cfg *Config) {
				if !cfg.OptimizeSize {
					t.Error("OptimizeSize = false, want true (from 'yes')")
				}
			},
		},
		{
			name: "override verbose with 1",
			envVars: map[string]string{
				"SOPT_VERBOSE": "1",
			},
			check: func(t *testing.T, cfg *Config) {
				if !cfg.Verbose {
					t.Error("Verbose = false, want true (from '1')")
				}
			},
		},
		{
			name: "override cache_dir",
			envVars: map[string]string{
				"SOPT_CACHE_DIR": "/my/custom/cache",
			},
			check: func(t *testing.T, cfg *Config) {
				if cfg.CacheDir != "/my/custom/cache" {
					t.Errorf("CacheDir = %v, want /my/custom/cache", cfg.CacheDir)
				}
			},
		},
		{
			name: "invalid int ignored",
			envVars: map[string]string{
				"SOPT_MAX_THREAD_PATHS": "not-an-int",
			},
			check: func(t *testing.T, cfg *Config) {
				if cfg.MaxThreadPaths != 0 {
					t.Errorf("MaxThreadPaths = %v, want 0 (default)", cfg.MaxThreadPaths)
				}
			},
		},
		{
			name: "negative values ignored",
			envVars: map[string]string{
				"SOPT_MAX_THREAD_PATHS": "-5",
			},
			check: func(t *testing.T, cfg *Config) {
				if cfg.MaxThreadPaths != 0 {
					t.Errorf("MaxThreadPaths = %v, want 0 (default)", cfg.MaxThreadPaths)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, k := range envKeys {
				os.Unsetenv(k)
			}
			for k, v := range tt.envVars {
				os.Setenv(k, v)
			}

			cfg := DefaultConfig()
			applyEnvOverrides(cfg)

			tt.check(t, cfg)
		})
	}
}

func TestParseInt(t *testing.T) {
	tests := []struct {
		input    string
		expected int
	}{
		{"0", 0},
		{"100", 100},
		{"invalid", 0},
		{"", 0},
		{"abc123", 0},
		{"10.5", 10}, // Will parse 10 from 10.5
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := parseInt(tt.input)
			if result != tt.expected {
				t.Errorf("parseInt(%q) = %v, want %v", tt.input, result, tt.expected)
			}
		})
	}
}

// Helper functions

func contains(s, substr string) bool {
	return len(s) >= len(substr) && (s == substr || len(s) > 0 && containsAt(s, substr))
}

func containsAt(s, substr string) bool {
	for i := 0; i <= len(s)-len(substr); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}

func TestConfigSave(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	cfg := &Config{
		PeelLoopHeaders: true,
		OptimizeSize:    true,
		MaxThreadPaths:  24,
		DumpFormat:      DumpDot,
		CacheDir:        "/tmp/sopt-cache",
	}

	err := cfg.Save(configPath)
	if err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		t.Fatalf("Config file was not created at %s", configPath)
	}

	loadedCfg, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("LoadFromFile() failed: %v", err)
	}

	if loadedCfg.PeelLoopHeaders != cfg.PeelLoopHeaders {
		t.Errorf("PeelLoopHeaders mismatch: got %v, want %v", loadedCfg.PeelLoopHeaders, cfg.PeelLoopHeaders)
	}
	if loadedCfg.OptimizeSize != cfg.OptimizeSize {
		t.Errorf("OptimizeSize mismatch: got %v, want %v", loadedCfg.OptimizeSize, cfg.OptimizeSize)
	}
	if loadedCfg.MaxThreadPaths != cfg.MaxThreadPaths {
		t.Errorf("MaxThreadPaths mismatch: got %d, want %d", loadedCfg.MaxThreadPaths, cfg.MaxThreadPaths)
	}
	if loadedCfg.DumpFormat != cfg.DumpFormat {
		t.Errorf("DumpFormat mismatch: got %s, want %s", loadedCfg.DumpFormat, cfg.DumpFormat)
	}
	if loadedCfg.CacheDir != cfg.CacheDir {
		t.Errorf("CacheDir mismatch: got %s, want %s", loadedCfg.CacheDir, cfg.CacheDir)
	}
}

func TestConfigSaveCreatesParentDirs(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "nested", "dirs", "config.yaml")

	cfg := DefaultConfig()

	err := cfg.Save(configPath)
	if err != nil {
		t.Fatalf("Save() failed to create parent dirs: %v", err)
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		t.Fatalf("Config file was not created at %s", configPath)
	}
}
