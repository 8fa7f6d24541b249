package app

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestInit_WithValidConfig_Succeeds(t *testing.T) {
	t.Setenv("SNOOZE_API_BASE_URL", "http://localhost:8099")
	t.Setenv("SNOOZE_LOG_LEVEL", "")

	var buf bytes.Buffer
	cfg, log, err := Init(&buf, false)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg == nil || log == nil {
		t.Fatal("expected non-nil config and logger")
	}
	if cfg.APIBaseURL != "http://localhost:8099" {
		t.Errorf("APIBaseURL = %q, want http://localhost:8099", cfg.APIBaseURL)
	}

	// グローバルロガーがJSON出力に設定されていること
	slog.Default().Info("init test")
	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected JSON log output, got error: %v\nraw: %s", err, buf.String())
	}
	if entry["msg"] != "init test" {
		t.Errorf("msg = %q, want %q", entry["msg"], "init test")
	}
}

func TestInit_Verbose_EnablesDebug(t *testing.T) {
	t.Setenv("SNOOZE_API_BASE_URL", "http://localhost:8099")
	t.Setenv("SNOOZE_LOG_LEVEL", "error")

	var buf bytes.Buffer
	_, log, err := Init(&buf, true)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	log.Debug("debug line")
	if !bytes.Contains(buf.Bytes(), []byte("debug line")) {
		t.Errorf("expected debug output with verbose, got %q", buf.String())
	}
}

func TestInit_WithInvalidBaseURL_ReturnsError(t *testing.T) {
	t.Setenv("SNOOZE_API_BASE_URL", "ftp://example.com")

	var buf bytes.Buffer
	cfg, _, err := Init(&buf, false)
	if err == nil {
		t.Fatal("expected error for invalid base URL, got nil")
	}
	if cfg != nil {
		t.Error("expected nil config on error")
	}
}
