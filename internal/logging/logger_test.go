package logging_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"defaulter/internal/config"
	"defaulter/internal/logging"
	"defaulter/internal/services"
)

func TestConsoleLoggerOmitsCallerForInfo(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console-info.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logging.NewComponentLogger(logger, "updater").Info("message without caller", logging.String("viewer", "alice bob"))

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	line := string(content)
	if strings.Contains(line, ".go:") {
		t.Fatalf("expected no caller information in info logs, got %q", line)
	}
	if !strings.Contains(line, "INFO updater: message without caller") {
		t.Fatalf("expected component prefix, got %q", line)
	}
	if !strings.Contains(line, `viewer="alice bob"`) {
		t.Fatalf("expected quoted value, got %q", line)
	}
}

func TestConsoleLoggerIncludesCallerForDebug(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console-debug.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "debug", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Info("message with caller")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(content), ".go:") {
		t.Fatalf("expected caller information in debug logs, got %q", content)
	}
}

func TestJSONLoggerWritesStructuredLines(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "out.json")
	logger, err := logging.New(logging.Options{Format: "json", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Info("json message", logging.String("k", "v"))

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var payload map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(content), &payload); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if payload["msg"] != "json message" || payload["k"] != "v" || payload["level"] != "info" {
		t.Fatalf("unexpected payload: %v", payload)
	}
	if _, ok := payload["ts"]; !ok {
		t.Fatalf("expected ts key, got %v", payload)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestNewFromConfigWritesLogFile(t *testing.T) {
	cfg := config.Default()
	cfg.Logging.Dir = t.TempDir()
	cfg.Logging.Level = "info"

	started := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	logger, logPath, err := logging.NewFromConfig(&cfg, started)
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	if filepath.Base(logPath) != "defaulter-20240301T120000.000Z.log" {
		t.Fatalf("unexpected log path %q", logPath)
	}
	logger.Info("to file")

	if err := logging.PointCurrentLog(cfg.Logging.Dir, logPath); err != nil {
		t.Fatalf("PointCurrentLog returned error: %v", err)
	}
	content, err := os.ReadFile(filepath.Join(cfg.Logging.Dir, logging.CurrentLogName))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(content), `"msg":"to file"`) {
		t.Fatalf("expected JSON line in log file, got %q", content)
	}
	if matched, _ := filepath.Match(logging.LogFilePattern, filepath.Base(logPath)); !matched {
		t.Fatalf("log path %q does not match retention pattern", logPath)
	}
}

func TestNewFromConfigWithoutDirSkipsFile(t *testing.T) {
	cfg := config.Default()
	cfg.Logging.Dir = ""
	_, logPath, err := logging.NewFromConfig(&cfg, time.Now())
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	if logPath != "" {
		t.Fatalf("expected no log file, got %q", logPath)
	}
}

func TestWithContextAddsFields(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithRunID(ctx, "run-9")
	ctx = services.WithLibrary(ctx, "Movies")
	ctx = services.WithRequestID(ctx, "req-xyz")

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	logging.WithContext(ctx, logger).Info("contextual log")

	var payload map[string]any
	if err := json.Unmarshal(buf.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload[logging.FieldRunID] != "run-9" || payload[logging.FieldLibrary] != "Movies" || payload[logging.FieldCorrelationID] != "req-xyz" {
		t.Fatalf("missing context fields: %v", payload)
	}
	if _, ok := payload[logging.FieldGroup]; ok {
		t.Fatalf("unexpected group field: %v", payload)
	}
}

func TestWarnWithContextInjectsDefaults(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	logging.WarnWithContext(logger, "careful", "test_event", logging.String(logging.FieldImpact, "custom"))

	var payload map[string]any
	if err := json.Unmarshal(buf.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload[logging.FieldEventType] != "test_event" || payload[logging.FieldImpact] != "custom" || payload[logging.FieldErrorHint] == nil {
		t.Fatalf("unexpected payload: %v", payload)
	}
}

func TestMaskToken(t *testing.T) {
	cases := map[string]string{
		"":                "(none)",
		"abc":             "***",
		"abcdef":          "******",
		"abcdefg":         "***…bcdefg",
		"xyzTOKEN-123456": "***…123456",
		"   ":             "(none)",
		" abc\t":          "***",
		"  abcdefg\n":     "***…bcdefg",
	}
	for in, want := range cases {
		got := logging.MaskToken(in)
		if got != want {
			t.Fatalf("MaskToken(%q) = %q, want %q", in, got, want)
		}
		if len(in) > 6 && strings.Contains(got, in[:len(in)-6]) {
			t.Fatalf("MaskToken(%q) leaked prefix: %q", in, got)
		}
	}
}

func TestPruneOlderThan(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "run-20200101T000000.json")
	fresh := filepath.Join(dir, "run-20990101T000000.json")
	other := filepath.Join(dir, "notes.txt")
	for _, path := range []string{old, fresh, other} {
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
	}
	past := time.Now().AddDate(0, 0, -40)
	for _, path := range []string{old, other} {
		if err := os.Chtimes(path, past, past); err != nil {
			t.Fatalf("chtimes: %v", err)
		}
	}

	removed := logging.PruneOlderThan(logging.NewNop(), 30, time.Now(), logging.RetentionTarget{Dir: dir, Pattern: "run-*"})
	if removed != 1 {
		t.Fatalf("expected 1 removal, got %d", removed)
	}
	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Fatalf("expected old run file removed, stat err=%v", err)
	}
	for _, path := range []string{fresh, other} {
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("expected %s to remain: %v", path, err)
		}
	}
	if logging.PruneOlderThan(nil, 0, time.Now(), logging.RetentionTarget{Dir: dir}) != 0 {
		t.Fatal("expected pruning disabled for zero retention")
	}
}
