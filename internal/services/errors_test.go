package services_test

import (
	"errors"
	"strings"
	"testing"

	"camtrap/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrDevice, "gphoto2", "capture", "capture failed", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrDevice) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"gphoto2", "capture", "capture failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapDefaultsToProgrammingMarker(t *testing.T) {
	err := services.Wrap(nil, "", "", "", nil)
	if !errors.Is(err, services.ErrProgramming) {
		t.Fatalf("expected programming marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "service failure") {
		t.Fatalf("expected fallback detail, got %q", err.Error())
	}
}

func TestIsDevice(t *testing.T) {
	if services.IsDevice(errors.New("plain")) {
		t.Fatal("plain error should not classify as device error")
	}
	if !services.IsDevice(services.Wrap(services.ErrDevice, "camera", "open", "", nil)) {
		t.Fatal("wrapped device error should classify as device error")
	}
	if services.ErrorHint(nil) != "" {
		t.Fatal("expected empty hint for nil error")
	}
	if hint := services.ErrorHint(services.ErrConfiguration); !strings.Contains(hint, "configuration") {
		t.Fatalf("unexpected hint %q", hint)
	}
}
