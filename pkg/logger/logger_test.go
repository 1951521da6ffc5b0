package logger

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRotatingWriterShiftsBackups(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	w, err := newRotatingWriter(rotateOptions{Path: path, MaxSizeMB: 1, MaxBackups: 2})
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}
	defer w.Close()
	w.maxSize = 10

	for _, chunk := range []string{"first-111\n", "second-22\n", "third-333\n"} {
		if _, err := w.Write([]byte(chunk)); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	current, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read current: %v", err)
	}
	if string(current) != "third-333\n" {
		t.Fatalf("unexpected current content: %q", current)
	}
	first, err := os.ReadFile(path + ".1")
	if err != nil {
		t.Fatalf("read backup 1: %v", err)
	}
	if string(first) != "second-22\n" {
		t.Fatalf("unexpected backup 1: %q", first)
	}
	second, err := os.ReadFile(path + ".2")
	if err != nil {
		t.Fatalf("read backup 2: %v", err)
	}
	if string(second) != "first-111\n" {
		t.Fatalf("unexpected backup 2: %q", second)
	}
}

func TestRotatingWriterReportsFailedRotation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "audit.log")
	// A non-empty directory in the backup slot cannot be removed or replaced.
	if err := os.MkdirAll(filepath.Join(path+".1", "keep"), 0o755); err != nil {
		t.Fatalf("prepare backup slot: %v", err)
	}
	w, err := newRotatingWriter(rotateOptions{Path: path, MaxSizeMB: 1, MaxBackups: 1})
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}
	defer w.Close()
	w.maxSize = 10

	if _, err := w.Write([]byte("first-111\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	n, err := w.Write([]byte("second-22\n"))
	if err == nil || !strings.Contains(err.Error(), "rotate audit log") {
		t.Fatalf("expected rotation error, got %v", err)
	}
	if n != len("second-22\n") {
		t.Fatalf("write after failed rotation must still append, wrote %d bytes", n)
	}

	current, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read current: %v", err)
	}
	if string(current) != "first-111\nsecond-22\n" {
		t.Fatalf("unexpected current content: %q", current)
	}
}

func TestInitWritesJSONAndAuditStreams(t *testing.T) {
	dir := t.TempDir()
	appLog := filepath.Join(dir, "app.log")
	auditLog := filepath.Join(dir, "audit", "audit.log")

	if err := Init(Config{
		Level:       "debug",
		OutputPaths: []string{appLog},
		Audit:       AuditConfig{Enabled: true, Path: auditLog},
	}); err != nil {
		t.Fatalf("init: %v", err)
	}
	t.Cleanup(func() {
		_ = Init(Config{OutputPaths: []string{"discard"}})
	})

	Named("tests").Debug("hello", slog.Int("n", 1))
	Audit().Info("task_created", slog.Int64("task_id", 3))
	if err := Sync(); err != nil {
		t.Fatalf("sync: %v", err)
	}

	raw, err := os.ReadFile(appLog)
	if err != nil {
		t.Fatalf("read app log: %v", err)
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(string(raw))), &entry); err != nil {
		t.Fatalf("app log is not json: %v (%s)", err, raw)
	}
	if entry["component"] != "tests" || entry["msg"] != "hello" {
		t.Fatalf("unexpected entry: %+v", entry)
	}

	audit, err := os.ReadFile(auditLog)
	if err != nil {
		t.Fatalf("read audit log: %v", err)
	}
	if !strings.Contains(string(audit), `"stream":"audit"`) || !strings.Contains(string(audit), "task_created") {
		t.Fatalf("unexpected audit content: %s", audit)
	}
}

func TestInitRejectsAuditWithoutPath(t *testing.T) {
	if err := Init(Config{OutputPaths: []string{"discard"}, Audit: AuditConfig{Enabled: true}}); err == nil {
		t.Fatalf("expected error for empty audit path")
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARNING": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Fatalf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
