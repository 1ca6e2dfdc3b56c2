package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Default()

	if cfg.Run.BatchSize != 5 {
		t.Errorf("BatchSize = %d, want 5", cfg.Run.BatchSize)
	}
	if cfg.Run.MaxIterations != 50 {
		t.Errorf("MaxIterations = %d, want 50", cfg.Run.MaxIterations)
	}
	if cfg.Run.TimeoutMS != 600000 {
		t.Errorf("TimeoutMS = %d, want 600000", cfg.Run.TimeoutMS)
	}
	if cfg.Run.Runtime != "opencode" {
		t.Errorf("Runtime = %q, want opencode", cfg.Run.Runtime)
	}
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Run.BatchSize != DefaultBatchSize {
		t.Errorf("BatchSize = %d, want %d", cfg.Run.BatchSize, DefaultBatchSize)
	}
}

func TestLoad_FromFile(t *testing.T) {
	path := writeTempConfig(t, `
[run]
root = "/test/project"
runtime = "claude-code"
batch_size = 3
timeout_ms = 1500
mode = "continuous"
poll_interval = "10s"

[store]
database_path = "/tmp/history.db"

[[schedule]]
name = "nightly"
cron = "0 2 * * *"
max_duration = "1h"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Run.Root != "/test/project" {
		t.Errorf("Root = %q, want /test/project", cfg.Run.Root)
	}
	if cfg.Run.BatchSize != 3 {
		t.Errorf("BatchSize = %d, want 3", cfg.Run.BatchSize)
	}
	// untouched keys keep their defaults
	if cfg.Run.MaxIterations != DefaultMaxIterations {
		t.Errorf("MaxIterations = %d, want %d", cfg.Run.MaxIterations, DefaultMaxIterations)
	}
	if len(cfg.Schedule) != 1 || cfg.Schedule[0].Name != "nightly" {
		t.Errorf("Schedule = %+v, want one nightly entry", cfg.Schedule)
	}

	opts, err := cfg.RunOptions()
	if err != nil {
		t.Fatal(err)
	}
	if opts.Timeout != 1500*time.Millisecond {
		t.Errorf("Timeout = %s, want 1.5s", opts.Timeout)
	}
	if opts.PollInterval != 10*time.Second {
		t.Errorf("PollInterval = %s, want 10s", opts.PollInterval)
	}
}

func TestLoad_RelativePaths(t *testing.T) {
	path := writeTempConfig(t, `
[run]
root = "project"
checklist = "lists/sdk.md"

[store]
database_path = ".checklist-orch/history.db"
`)
	dir := filepath.Dir(path)

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Run.Root != filepath.Join(dir, "project") {
		t.Errorf("Root = %q, want it relative to the config file", cfg.Run.Root)
	}
	if cfg.Store.DatabasePath != filepath.Join(dir, ".checklist-orch", "history.db") {
		t.Errorf("DatabasePath = %q", cfg.Store.DatabasePath)
	}
	// the checklist stays relative to the root
	if cfg.Run.Checklist != "lists/sdk.md" {
		t.Errorf("Checklist = %q", cfg.Run.Checklist)
	}
}

func TestLoad_InvalidTOML(t *testing.T) {
	path := writeTempConfig(t, "[run\nbatch_size = ")
	_, err := Load(path)
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Load() error = %v, want ErrInvalidConfig", err)
	}
}

func TestRunOptions_BadDuration(t *testing.T) {
	cfg := Default()
	cfg.Run.IdleTimeout = "soon"
	if _, err := cfg.RunOptions(); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("RunOptions() error = %v, want ErrInvalidConfig", err)
	}
}

func TestExpandPath(t *testing.T) {
	home, _ := os.UserHomeDir()

	tests := []struct {
		input string
		want  string
	}{
		{"~/test", filepath.Join(home, "test")},
		{"/absolute/path", "/absolute/path"},
		{"relative", "relative"},
	}

	for _, tt := range tests {
		got := ExpandPath(tt.input)
		if got != tt.want {
			t.Errorf("ExpandPath(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestFindLocalConfig(t *testing.T) {
	root := t.TempDir()
	subdir := filepath.Join(root, "sub", "dir")
	if err := os.MkdirAll(subdir, 0755); err != nil {
		t.Fatal(err)
	}

	localConfig := filepath.Join(root, LocalConfigName)
	if err := os.WriteFile(localConfig, []byte("[run]\nroot = \"/local\""), 0644); err != nil {
		t.Fatal(err)
	}

	origDir, _ := os.Getwd()
	defer os.Chdir(origDir)

	if err := os.Chdir(subdir); err != nil {
		t.Fatal(err)
	}

	found := FindLocalConfig()
	if found != localConfig {
		t.Errorf("FindLocalConfig() = %q, want %q", found, localConfig)
	}

	cfg, path, err := LoadWithLocalFallback("")
	if err != nil {
		t.Fatal(err)
	}
	if path != localConfig {
		t.Errorf("path = %q, want %q", path, localConfig)
	}
	if cfg.Run.Root != "/local" {
		t.Errorf("Root = %q, want /local", cfg.Run.Root)
	}
}

func TestLoadWithLocalFallback_ExplicitPath(t *testing.T) {
	path := writeTempConfig(t, "[run]\nroot = \"/explicit\"\n")

	cfg, got, err := LoadWithLocalFallback(path)
	if err != nil {
		t.Fatal(err)
	}
	if got != path {
		t.Errorf("path = %q, want %q", got, path)
	}
	if cfg.Run.Root != "/explicit" {
		t.Errorf("Root = %q, want /explicit", cfg.Run.Root)
	}
}

func TestSave_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	cfg := Default()
	cfg.Run.Model = "opus"
	cfg.Notifications.SlackWebhook = "https://hooks.example/x"

	if err := cfg.Save(path); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Run.Model != "opus" || loaded.Notifications.SlackWebhook != "https://hooks.example/x" {
		t.Errorf("loaded = %+v", loaded)
	}
}

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}
