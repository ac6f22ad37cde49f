// Package config loads patchllm configuration with a defined load order:
// environment variables > repo config > global config > defaults.
//
// Paths:
//   - Repo: patchllm.toml (at the working-tree root)
//   - Global: XDG config dir, e.g. ~/.config/patchllm/config.toml (see os.UserConfigDir)
//
// Environment variables (override config files when set):
//   - PATCHLLM_MODEL, PATCHLLM_BASE_URL, PATCHLLM_API_KEY,
//   - PATCHLLM_CONTEXT_BUDGET, PATCHLLM_MAX_FILE_SIZE (bytes),
//   - PATCHLLM_FUZZ (max mismatched context lines per hunk),
//   - PATCHLLM_WORKERS (patch applier pool size),
//   - PATCHLLM_TIMEOUT (Go duration string for model requests),
//   - PATCHLLM_STATE_DIR (session state directory override).
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// ScopeDef maps a named scope to its root and glob pattern pair.
type ScopeDef struct {
	Root    string   `toml:"root"`
	Include []string `toml:"include"`
	Exclude []string `toml:"exclude"`
}

// Config holds all patchllm settings. Zero values mean "use default".
type Config struct {
	Model         string        `toml:"model"`
	BaseURL       string        `toml:"base_url"`
	APIKey        string        `toml:"-"` // env only, never persisted
	ContextBudget int           `toml:"context_budget"`
	MaxFileSize   int64         `toml:"max_file_size"`
	Fuzz          int           `toml:"fuzz"`
	Workers       int           `toml:"workers"`
	Timeout       time.Duration `toml:"-"`
	TimeoutRaw    string        `toml:"timeout"`
	StateDir      string        `toml:"state_dir"`
	SecretScan    bool          `toml:"secret_scan"`

	Scopes  map[string]ScopeDef `toml:"scopes"`
	Recipes map[string]string   `toml:"recipes"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Model:         "gpt-4o-mini",
		BaseURL:       "https://api.openai.com/v1",
		ContextBudget: 256 * 1024,
		MaxFileSize:   512 * 1024,
		Fuzz:          2,
		Workers:       4,
		Timeout:       120 * time.Second,
		SecretScan:    true,
		Scopes:        map[string]ScopeDef{},
		Recipes:       map[string]string{},
	}
}

// RepoConfigName is the repo-local config file looked up at the working-tree root.
const RepoConfigName = "patchllm.toml"

// Load reads global config, then repo config, then env overrides.
// A missing config file is not an error; a malformed one is.
func Load(worktreeRoot string) (Config, error) {
	// .env beside the repo config, for the model API key. Missing is fine.
	_ = godotenv.Load(filepath.Join(worktreeRoot, ".env"))

	cfg := Defaults()

	if dir, err := os.UserConfigDir(); err == nil {
		if err := mergeFile(&cfg, filepath.Join(dir, "patchllm", "config.toml")); err != nil {
			return Config{}, err
		}
	}
	if err := mergeFile(&cfg, filepath.Join(worktreeRoot, RepoConfigName)); err != nil {
		return Config{}, err
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}

	if cfg.TimeoutRaw != "" {
		d, err := time.ParseDuration(cfg.TimeoutRaw)
		if err != nil {
			return Config{}, fmt.Errorf("invalid timeout %q: %w", cfg.TimeoutRaw, err)
		}
		cfg.Timeout = d
	}
	if cfg.StateDir == "" {
		cfg.StateDir = filepath.Join(worktreeRoot, ".patchllm")
	}
	return cfg, nil
}

func mergeFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // controlled config locations
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv("PATCHLLM_MODEL"); v != "" {
		cfg.Model = v
	}
	if v := os.Getenv("PATCHLLM_BASE_URL"); v != "" {
		cfg.BaseURL = v
	}
	cfg.APIKey = os.Getenv("PATCHLLM_API_KEY")
	if v := os.Getenv("PATCHLLM_STATE_DIR"); v != "" {
		cfg.StateDir = v
	}
	if v := os.Getenv("PATCHLLM_TIMEOUT"); v != "" {
		cfg.TimeoutRaw = v
	}
	for _, e := range []struct {
		name string
		dst  *int
	}{
		{"PATCHLLM_CONTEXT_BUDGET", &cfg.ContextBudget},
		{"PATCHLLM_FUZZ", &cfg.Fuzz},
		{"PATCHLLM_WORKERS", &cfg.Workers},
	} {
		v := os.Getenv(e.name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return fmt.Errorf("invalid %s=%q: expected a non-negative integer", e.name, v)
		}
		*e.dst = n
	}
	if v := os.Getenv("PATCHLLM_MAX_FILE_SIZE"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			return fmt.Errorf("invalid PATCHLLM_MAX_FILE_SIZE=%q: expected a non-negative integer", v)
		}
		cfg.MaxFileSize = n
	}
	return nil
}

// SaveRepoScopes rewrites the repo config file with the given scope table,
// preserving the rest of cfg as currently loaded. Used by the init wizard.
func SaveRepoScopes(worktreeRoot string, cfg Config) error {
	path := filepath.Join(worktreeRoot, RepoConfigName)
	f, err := os.Create(path) //nolint:gosec // repo-root config file
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}
