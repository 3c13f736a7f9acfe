package main

import (
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"camtrap/internal/capture"
	"camtrap/internal/logging"
)

func TestRenderStatusLineNoColor(t *testing.T) {
	got := renderStatusLine("Camera", statusError, "released", false)
	want := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, "Camera:", "[ERROR] released")
	if got != want {
		t.Fatalf("renderStatusLine mismatch\n got: %q\nwant: %q", got, want)
	}
}

func TestRenderStatusLineWithColor(t *testing.T) {
	got := renderStatusLine("Camera", statusOK, "connected", true)
	if !strings.HasPrefix(got, ansiGreen) {
		t.Fatalf("expected green prefix, got %q", got)
	}
	if !strings.HasSuffix(got, ansiReset) {
		t.Fatalf("expected reset suffix, got %q", got)
	}
}

func TestDeviceLinesReportErrors(t *testing.T) {
	lines := deviceLines(&capture.Status{
		Stats:  capture.Stats{LastError: "gphoto2: capture image: I/O in progress"},
		Queued: 2,
	}, false)
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d: %q", len(lines), lines)
	}
	if !strings.Contains(lines[0], "[WARN] not initialized") {
		t.Fatalf("expected not initialized line, got %q", lines[0])
	}
	if !strings.Contains(lines[1], "2 queued, 0 pending") {
		t.Fatalf("expected queue line, got %q", lines[1])
	}
	if !strings.Contains(lines[2], "[ERROR] gphoto2: capture image") {
		t.Fatalf("expected error line, got %q", lines[2])
	}
}

func TestDetectionLinesWithoutSnapshot(t *testing.T) {
	lines := detectionLines(nil, false)
	if len(lines) != 1 || !strings.Contains(lines[0], "[WARN]") {
		t.Fatalf("unexpected lines: %q", lines)
	}
}

func TestFormatLogEventSortsFields(t *testing.T) {
	evt := logging.LogEvent{
		Timestamp: time.Date(2024, 5, 17, 9, 30, 15, 0, time.Local),
		Level:     "warn",
		Message:   "camera released",
		Fields:    map[string]string{"b": "2", "a": "1"},
	}
	got := formatLogEvent(evt)
	want := "2024-05-17 09:30:15 WARN  camera released a=1 b=2"
	if got != want {
		t.Fatalf("formatLogEvent mismatch\n got: %q\nwant: %q", got, want)
	}
}

func TestBaseURLFromBind(t *testing.T) {
	cases := map[string]string{
		"127.0.0.1:5000": "http://127.0.0.1:5000",
		"0.0.0.0:5000":   "http://127.0.0.1:5000",
		":8080":          "http://127.0.0.1:8080",
		"[::1]:9000":     "http://[::1]:9000",
	}
	for bind, want := range cases {
		got, err := baseURLFromBind(bind)
		if err != nil {
			t.Fatalf("baseURLFromBind(%q): %v", bind, err)
		}
		if got != want {
			t.Fatalf("baseURLFromBind(%q) = %q, want %q", bind, got, want)
		}
	}
	if _, err := baseURLFromBind("no-port"); err == nil {
		t.Fatal("expected error for bind without port")
	}
}

func TestShouldColorizeNonFile(t *testing.T) {
	if shouldColorize(io.Discard) {
		t.Fatalf("expected non-file writer to disable color")
	}
}
