package config

import (
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileReturnsNil(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg != nil {
		t.Fatalf("expected nil config, got %+v", cfg)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config")
	keep := 3
	in := &Config{
		CurrentContext: "prod",
		Contexts: map[string]*Context{
			"prod": {
				PodID:          "abc123",
				SSHHost:        "203.0.113.7",
				SSHPort:        22075,
				SSHUser:        "root",
				KeepBatches:    &keep,
				TimeoutSeconds: 120,
			},
		},
	}
	if err := in.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	out, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	ctx, name, err := out.Resolve("")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if name != "prod" {
		t.Fatalf("name = %q", name)
	}
	if ctx.PodID != "abc123" || ctx.SSHPort != 22075 {
		t.Fatalf("context = %+v", ctx)
	}
	if ctx.KeepBatches == nil || *ctx.KeepBatches != 3 {
		t.Fatalf("keepBatches = %v", ctx.KeepBatches)
	}
}

func TestResolveUnknownContext(t *testing.T) {
	cfg := &Config{Contexts: map[string]*Context{}}
	_, _, err := cfg.Resolve("ghost")
	if !errors.Is(err, ErrContextNotFound) {
		t.Fatalf("err = %v, want ErrContextNotFound", err)
	}
}

func TestResolveNilConfig(t *testing.T) {
	var cfg *Config
	ctx, name, err := cfg.Resolve("anything")
	if err != nil || ctx != nil || name != "" {
		t.Fatalf("got (%v, %q, %v)", ctx, name, err)
	}
}

func writeSettingsConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config")
	cfg := &Config{
		CurrentContext: "lab",
		Contexts: map[string]*Context{
			"lab": {
				PodID:          "pod-from-file",
				SSHHost:        "198.51.100.4",
				SSHPort:        22001,
				TimeoutSeconds: 90,
			},
		},
	}
	if err := cfg.Save(path); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestResolveSettingsFlagBeatsFile(t *testing.T) {
	path := writeSettingsConfig(t)
	s, err := ResolveSettings(path, "", Overrides{PodID: "pod-from-flag", SSHPort: 2222})
	if err != nil {
		t.Fatalf("ResolveSettings: %v", err)
	}
	if s.PodID != "pod-from-flag" {
		t.Fatalf("pod id = %q", s.PodID)
	}
	if s.SSHPort != 2222 {
		t.Fatalf("ssh port = %d", s.SSHPort)
	}
	if s.SSHHost != "198.51.100.4" {
		t.Fatalf("ssh host = %q", s.SSHHost)
	}
	if s.Timeout != 90*time.Second {
		t.Fatalf("timeout = %v", s.Timeout)
	}
}

func TestResolveSettingsFileBeatsEnv(t *testing.T) {
	path := writeSettingsConfig(t)
	t.Setenv("PODCTL_POD_ID", "pod-from-env")
	t.Setenv("PODCTL_SSH_HOST", "env-host")

	s, err := ResolveSettings(path, "lab", Overrides{})
	if err != nil {
		t.Fatalf("ResolveSettings: %v", err)
	}
	if s.PodID != "pod-from-file" {
		t.Fatalf("pod id = %q", s.PodID)
	}
	if s.SSHHost != "198.51.100.4" {
		t.Fatalf("ssh host = %q", s.SSHHost)
	}
}

func TestResolveSettingsEnvAndDefaults(t *testing.T) {
	t.Setenv("PODCTL_POD_ID", "pod-from-env")
	t.Setenv("RUNPOD_API_KEY", "legacy-key")
	t.Setenv("PODCTL_SSH_PORT", "22099")

	s, err := ResolveSettings("", "", Overrides{})
	if err != nil {
		t.Fatalf("ResolveSettings: %v", err)
	}
	if s.PodID != "pod-from-env" {
		t.Fatalf("pod id = %q", s.PodID)
	}
	if s.APIKey != "legacy-key" {
		t.Fatalf("api key = %q", s.APIKey)
	}
	if s.SSHPort != 22099 {
		t.Fatalf("ssh port = %d", s.SSHPort)
	}
	if s.SSHUser != "root" || s.WorkspaceRoot != "/workspace" {
		t.Fatalf("defaults not applied: %+v", s)
	}
	if s.KeepBatches != -1 {
		t.Fatalf("keep batches default = %d", s.KeepBatches)
	}
}

func TestResolveSettingsBadPort(t *testing.T) {
	t.Setenv("PODCTL_SSH_PORT", "not-a-number")
	if _, err := ResolveSettings("", "", Overrides{}); err == nil {
		t.Fatal("expected error for bad port")
	}
}

func TestResolveSettingsPreferredKeyWins(t *testing.T) {
	t.Setenv("PODCTL_API_KEY", "new-key")
	t.Setenv("RUNPOD_API_KEY", "legacy-key")

	s, err := ResolveSettings("", "", Overrides{})
	if err != nil {
		t.Fatalf("ResolveSettings: %v", err)
	}
	if s.APIKey != "new-key" {
		t.Fatalf("api key = %q", s.APIKey)
	}
}
