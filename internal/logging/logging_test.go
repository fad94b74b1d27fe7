package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/hpungsan/flowgen/internal/config"
)

func TestNew_TextOmitsDebugAtInfo(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Options{Level: "info", Format: "text", Writer: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Debug("hidden")
	logger.Info("gallery replaced", "groups", 2)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("debug message leaked at info level: %q", out)
	}
	if !strings.Contains(out, "gallery replaced") || !strings.Contains(out, "groups=2") {
		t.Fatalf("missing info line: %q", out)
	}
	if !strings.Contains(out, "level=info") {
		t.Fatalf("expected lowercase level, got %q", out)
	}
}

func TestNew_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Options{Level: "debug", Format: "json", Writer: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Debug("preview settled", "generation", 7)

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode json log: %v (%q)", err, buf.String())
	}
	if line["msg"] != "preview settled" {
		t.Errorf("msg = %v", line["msg"])
	}
	if line["level"] != "debug" {
		t.Errorf("level = %v, want debug", line["level"])
	}
	if _, ok := line["ts"]; !ok {
		t.Error("expected ts key")
	}
	src, _ := line["source"].(string)
	if !strings.Contains(src, "logging_test.go:") {
		t.Errorf("source = %q, want file:line at debug level", src)
	}
}

func TestNew_UnsupportedFormat(t *testing.T) {
	if _, err := New(Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestNewFromConfig(t *testing.T) {
	var buf bytes.Buffer
	cfg := config.DefaultConfig()
	cfg.LogLevel = "warn"

	logger, err := NewFromConfig(cfg, &buf)
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	logger.Info("quiet")
	logger.Warn("loud")

	if strings.Contains(buf.String(), "quiet") {
		t.Error("info line written at warn level")
	}
	if !strings.Contains(buf.String(), "loud") {
		t.Error("warn line missing")
	}
}

func TestOrDiscard(t *testing.T) {
	if OrDiscard(nil) == nil {
		t.Fatal("OrDiscard(nil) returned nil")
	}
}
