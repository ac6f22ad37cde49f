package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeRepoConfig(t *testing.T, root, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(root, RepoConfigName), []byte(content), 0o644); err != nil {
		t.Fatalf("writing repo config: %v", err)
	}
}

func TestLoadDefaults(t *testing.T) {
	root := t.TempDir()
	cfg, err := Load(root)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Model == "" || cfg.Fuzz != 2 || cfg.Workers != 4 {
		t.Errorf("defaults not applied: %+v", cfg)
	}
	if cfg.StateDir != filepath.Join(root, ".patchllm") {
		t.Errorf("StateDir = %q", cfg.StateDir)
	}
}

func TestLoadRepoConfig(t *testing.T) {
	root := t.TempDir()
	writeRepoConfig(t, root, `
model = "local-model"
fuzz = 0
timeout = "30s"

[scopes.api]
root = "internal/api"
include = ["**/*.go"]
exclude = ["**/*_test.go"]

[recipes]
tidy = "remove unused imports and dead code"
`)

	cfg, err := Load(root)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Model != "local-model" {
		t.Errorf("Model = %q", cfg.Model)
	}
	if cfg.Fuzz != 0 {
		t.Errorf("Fuzz = %d, want explicit 0", cfg.Fuzz)
	}
	if cfg.Timeout != 30*time.Second {
		t.Errorf("Timeout = %v", cfg.Timeout)
	}
	sc, ok := cfg.Scopes["api"]
	if !ok || sc.Root != "internal/api" || len(sc.Include) != 1 || len(sc.Exclude) != 1 {
		t.Errorf("scope api = %+v", sc)
	}
	if cfg.Recipes["tidy"] == "" {
		t.Error("recipe tidy not loaded")
	}
}

func TestEnvOverridesRepoConfig(t *testing.T) {
	root := t.TempDir()
	writeRepoConfig(t, root, `model = "from-file"`)
	t.Setenv("PATCHLLM_MODEL", "from-env")
	t.Setenv("PATCHLLM_API_KEY", "sk-test")
	t.Setenv("PATCHLLM_WORKERS", "8")

	cfg, err := Load(root)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Model != "from-env" {
		t.Errorf("Model = %q, want env to win", cfg.Model)
	}
	if cfg.APIKey != "sk-test" {
		t.Errorf("APIKey = %q", cfg.APIKey)
	}
	if cfg.Workers != 8 {
		t.Errorf("Workers = %d", cfg.Workers)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	root := t.TempDir()
	writeRepoConfig(t, root, `timeout = "not-a-duration"`)
	if _, err := Load(root); err == nil {
		t.Error("expected error for bad timeout")
	}

	writeRepoConfig(t, root, `model = `)
	if _, err := Load(root); err == nil {
		t.Error("expected error for malformed TOML")
	}

	writeRepoConfig(t, root, `model = "m"`)
	t.Setenv("PATCHLLM_FUZZ", "-1")
	if _, err := Load(root); err == nil {
		t.Error("expected error for negative fuzz")
	}
}

func TestDotEnvLoadsAPIKey(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, ".env"), []byte("PATCHLLM_API_KEY=sk-from-dotenv\n"), 0o600); err != nil {
		t.Fatalf("writing .env: %v", err)
	}
	t.Setenv("PATCHLLM_API_KEY", "")
	os.Unsetenv("PATCHLLM_API_KEY")

	cfg, err := Load(root)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.APIKey != "sk-from-dotenv" {
		t.Errorf("APIKey = %q, want value from .env", cfg.APIKey)
	}
}

func TestSaveRepoScopesRoundTrip(t *testing.T) {
	root := t.TempDir()
	cfg := Defaults()
	cfg.Scopes["docs"] = ScopeDef{Include: []string{"docs/**/*.md"}}

	if err := SaveRepoScopes(root, cfg); err != nil {
		t.Fatalf("SaveRepoScopes failed: %v", err)
	}
	loaded, err := Load(root)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	sc, ok := loaded.Scopes["docs"]
	if !ok || len(sc.Include) != 1 || sc.Include[0] != "docs/**/*.md" {
		t.Errorf("scope docs = %+v", sc)
	}
}
