package config

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv(envListenAddr, "")
	t.Setenv(envDBPath, "")
	t.Setenv(envCacheDir, "")
	t.Setenv(envLangPath, "")
	t.Setenv(envCorePath, "")
	t.Setenv(envLogLevel, "")

	cfg := Load()

	if cfg.ListenAddr != defaultListenAddr {
		t.Errorf("ListenAddr = %q, want %q", cfg.ListenAddr, defaultListenAddr)
	}
	if cfg.DBPath != defaultDBPath {
		t.Errorf("DBPath = %q, want %q", cfg.DBPath, defaultDBPath)
	}
	if cfg.CacheDir != defaultCacheDir {
		t.Errorf("CacheDir = %q, want %q", cfg.CacheDir, defaultCacheDir)
	}
	if cfg.LangPath != defaultLangPath {
		t.Errorf("LangPath = %q, want %q", cfg.LangPath, defaultLangPath)
	}
	if cfg.CorePath != "" {
		t.Errorf("CorePath = %q, want empty", cfg.CorePath)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("LogLevel = %v, want %v", cfg.LogLevel, slog.LevelInfo)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv(envListenAddr, ":9090")
	t.Setenv(envDBPath, "/tmp/test.db")
	t.Setenv(envCacheDir, "/tmp/tessdata")
	t.Setenv(envLangPath, "https://example.com/tessdata")
	t.Setenv(envCorePath, "/opt/tesseract-core")
	t.Setenv(envLogLevel, "debug")

	cfg := Load()

	if cfg.ListenAddr != ":9090" {
		t.Errorf("ListenAddr = %q, want %q", cfg.ListenAddr, ":9090")
	}
	if cfg.DBPath != "/tmp/test.db" {
		t.Errorf("DBPath = %q, want %q", cfg.DBPath, "/tmp/test.db")
	}
	if cfg.CacheDir != "/tmp/tessdata" {
		t.Errorf("CacheDir = %q, want %q", cfg.CacheDir, "/tmp/tessdata")
	}
	if cfg.LangPath != "https://example.com/tessdata" {
		t.Errorf("LangPath = %q, want %q", cfg.LangPath, "https://example.com/tessdata")
	}
	if cfg.CorePath != "/opt/tesseract-core" {
		t.Errorf("CorePath = %q, want %q", cfg.CorePath, "/opt/tesseract-core")
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("LogLevel = %v, want %v", cfg.LogLevel, slog.LevelDebug)
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"invalid", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		got := parseLogLevel(tt.input)
		if got != tt.want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestNewLoggerOutputsJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, slog.LevelInfo)
	if logger == nil {
		t.Fatal("NewLogger returned nil")
	}

	logger.Info("test message", "key", "value")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("logger output is not valid JSON: %v\noutput: %s", err, buf.String())
	}

	for _, key := range []string{"time", "level", "msg"} {
		if _, ok := entry[key]; !ok {
			t.Errorf("JSON output missing expected key %q", key)
		}
	}
	if entry["msg"] != "test message" {
		t.Errorf("msg = %v, want %q", entry["msg"], "test message")
	}
	if entry["key"] != "value" {
		t.Errorf("key = %v, want %q", entry["key"], "value")
	}
}
