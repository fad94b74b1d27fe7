package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestLoad_DefaultWhenMissing(t *testing.T) {
	tmpDir := t.TempDir()

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	def := DefaultConfig()
	if cfg.ServiceURL != def.ServiceURL {
		t.Errorf("ServiceURL = %q, want %q", cfg.ServiceURL, def.ServiceURL)
	}
	if cfg.QuietPeriodMS != 1000 {
		t.Errorf("QuietPeriodMS = %d, want 1000", cfg.QuietPeriodMS)
	}
	if cfg.ImageExt != ".png" {
		t.Errorf("ImageExt = %q, want .png", cfg.ImageExt)
	}
	if cfg.UngroupedKey != "ungrouped" {
		t.Errorf("UngroupedKey = %q, want ungrouped", cfg.UngroupedKey)
	}
}

func TestLoad_OverridesFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	writeConfig(t, tmpDir, `{"service_url": "http://flow.local:9000/", "quiet_period_ms": 250}`)

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ServiceURL != "http://flow.local:9000" {
		t.Errorf("ServiceURL = %q, want trailing slash trimmed", cfg.ServiceURL)
	}
	if cfg.QuietPeriod() != 250*time.Millisecond {
		t.Errorf("QuietPeriod() = %v, want 250ms", cfg.QuietPeriod())
	}
	if cfg.RequestTimeout() != 60*time.Second {
		t.Errorf("RequestTimeout() = %v, want default 60s", cfg.RequestTimeout())
	}
}

func TestLoad_InvalidJSON(t *testing.T) {
	tmpDir := t.TempDir()
	writeConfig(t, tmpDir, `{not json}`)

	if _, err := Load(tmpDir); err == nil {
		t.Fatalf("Load() expected error, got nil")
	}
}

func TestLoad_DisabledTools(t *testing.T) {
	tmpDir := t.TempDir()
	writeConfig(t, tmpDir, `{"disabled_tools": ["gallery_download", "preview_render"]}`)

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(cfg.DisabledTools) != 2 {
		t.Fatalf("DisabledTools length = %d, want 2", len(cfg.DisabledTools))
	}
	if cfg.DisabledTools[0] != "gallery_download" {
		t.Errorf("DisabledTools[0] = %q, want %q", cfg.DisabledTools[0], "gallery_download")
	}
}

func TestLoadWithRepo_BothPresent(t *testing.T) {
	globalDir := t.TempDir()
	repoRoot := t.TempDir()

	writeConfig(t, globalDir, `{"quiet_period_ms": 800, "disabled_tools": ["gallery_download"]}`)
	writeConfig(t, filepath.Join(repoRoot, ".flowgen"), `{"quiet_period_ms": 300, "disabled_tools": ["preview_render"]}`)

	cfg, err := LoadWithRepo(globalDir, repoRoot)
	if err != nil {
		t.Fatalf("LoadWithRepo() error = %v", err)
	}
	if cfg.QuietPeriodMS != 300 {
		t.Errorf("QuietPeriodMS = %d, want 300 (repo override)", cfg.QuietPeriodMS)
	}
	if len(cfg.DisabledTools) != 2 {
		t.Errorf("DisabledTools length = %d, want 2", len(cfg.DisabledTools))
	}
}

func TestLoadWithRepo_NeitherPresent(t *testing.T) {
	cfg, err := LoadWithRepo(t.TempDir(), t.TempDir())
	if err != nil {
		t.Fatalf("LoadWithRepo() error = %v", err)
	}
	if cfg.MaxEntryBytes != DefaultConfig().MaxEntryBytes {
		t.Errorf("MaxEntryBytes = %d, want default", cfg.MaxEntryBytes)
	}
	if len(cfg.DisabledTools) != 0 {
		t.Errorf("DisabledTools = %v, want empty", cfg.DisabledTools)
	}
}

func TestLoadWithRepo_WalksUpward(t *testing.T) {
	tmpDir := t.TempDir()
	writeConfig(t, filepath.Join(tmpDir, ".flowgen"), `{"ungrouped_key": "top-level"}`)

	subdir := filepath.Join(tmpDir, "src", "pkg")
	if err := os.MkdirAll(subdir, 0755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}

	cfg, err := LoadWithRepo(t.TempDir(), subdir)
	if err != nil {
		t.Fatalf("LoadWithRepo() error = %v", err)
	}
	if cfg.UngroupedKey != "top-level" {
		t.Errorf("UngroupedKey = %q, want top-level", cfg.UngroupedKey)
	}
}

func TestFindRepoConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := writeConfig(t, filepath.Join(tmpDir, ".flowgen"), `{}`)

	if found := FindRepoConfig(tmpDir); found != configPath {
		t.Errorf("FindRepoConfig() = %q, want %q", found, configPath)
	}

	deeper := filepath.Join(tmpDir, "a", "b")
	if err := os.MkdirAll(deeper, 0755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	if found := FindRepoConfig(deeper); found != configPath {
		t.Errorf("FindRepoConfig(deeper) = %q, want %q", found, configPath)
	}
}

func TestMerge_ScalarOverride(t *testing.T) {
	base := &Config{QuietPeriodMS: 1000, MaxEntryBytes: 5}
	overlay := &Config{QuietPeriodMS: 400}

	result := Merge(base, overlay)

	if result.QuietPeriodMS != 400 {
		t.Errorf("QuietPeriodMS = %d, want 400 (overlay)", result.QuietPeriodMS)
	}
	if result.MaxEntryBytes != 5 {
		t.Errorf("MaxEntryBytes = %d, want 5 (base, overlay is zero)", result.MaxEntryBytes)
	}
}

func TestMerge_BlankStringKeepsBase(t *testing.T) {
	result := Merge(&Config{ImageExt: ".png"}, &Config{ImageExt: "   "})
	if result.ImageExt != ".png" {
		t.Errorf("ImageExt = %q, want .png", result.ImageExt)
	}
}

func TestMerge_BooleanOr(t *testing.T) {
	result := Merge(&Config{AllowUnsafePaths: true}, &Config{AllowUnsafePaths: false})
	if !result.AllowUnsafePaths {
		t.Error("AllowUnsafePaths should be true (base OR overlay)")
	}
}

func TestMerge_ArrayMergeDedup(t *testing.T) {
	base := &Config{DisabledTypes: []string{"preview", " gallery "}}
	overlay := &Config{DisabledTypes: []string{"gallery", ""}}

	result := Merge(base, overlay)

	if len(result.DisabledTypes) != 2 {
		t.Fatalf("DisabledTypes = %v, want 2 entries", result.DisabledTypes)
	}
	if result.DisabledTypes[0] != "preview" || result.DisabledTypes[1] != "gallery" {
		t.Errorf("DisabledTypes = %v, want [preview gallery]", result.DisabledTypes)
	}
}
