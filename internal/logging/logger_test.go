package logging_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"camtrap/internal/logging"
)

func TestConsoleLoggerFormatsComponentAndFields(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console.log")
	logger, err := logging.New(logging.Options{
		Format:      "console",
		Level:       "info",
		OutputPaths: []string{logPath},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	worker := logging.NewComponentLogger(logger, "device-worker")
	worker.Info("command complete",
		logging.String("path", "/tmp/a b.jpg"),
		logging.String(logging.FieldCommandKind, "capture"),
		logging.String(logging.FieldCommandID, "cmd-7"),
	)

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	line := string(content)
	for _, fragment := range []string{`INFO  [device-worker] command complete command=cmd-7 kind=capture path="/tmp/a b.jpg"`} {
		if !strings.Contains(line, fragment) {
			t.Fatalf("expected %q in %q", fragment, line)
		}
	}
	if strings.Contains(line, ".go:") {
		t.Fatalf("expected no caller information at info level, got %q", line)
	}
}

func TestJSONLoggerUsesShortKeys(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "json.log")
	logger, err := logging.New(logging.Options{
		Format:      "json",
		Level:       "warn",
		OutputPaths: []string{logPath},
		SessionID:   "session-1",
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Info("filtered")
	logger.Warn("device fault")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	line := string(content)
	if strings.Contains(line, "filtered") {
		t.Fatalf("info line should be filtered at warn level: %q", line)
	}
	for _, fragment := range []string{`"ts":`, `"level":"warn"`, `"msg":"device fault"`, `"session_id":"session-1"`} {
		if !strings.Contains(line, fragment) {
			t.Fatalf("expected %q in %q", fragment, line)
		}
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestWarnWithContextFillsFields(t *testing.T) {
	hub := logging.NewStreamHub(10)
	logger, err := logging.New(logging.Options{Format: "json", OutputPaths: []string{filepath.Join(t.TempDir(), "w.log")}, Stream: hub})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logging.WarnWithContext(logger, "camera lost", "device_fault", logging.String(logging.FieldImpact, "captures delayed"))

	events, _ := hub.Tail(1)
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	fields := events[0].Fields
	if fields[logging.FieldEventType] != "device_fault" {
		t.Fatalf("unexpected event type %q", fields[logging.FieldEventType])
	}
	if fields[logging.FieldErrorHint] == "" {
		t.Fatal("expected default error hint")
	}
	if fields[logging.FieldImpact] != "captures delayed" {
		t.Fatalf("caller impact should win, got %q", fields[logging.FieldImpact])
	}
}
