package logging_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"camtrap/internal/logging"
)

func TestStreamHubCapturesComponentAndCommand(t *testing.T) {
	hub := logging.NewStreamHub(100)
	logger, err := logging.New(logging.Options{Format: "console", OutputPaths: []string{filepath.Join(t.TempDir(), "s.log")}, Stream: hub})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logging.NewComponentLogger(logger, "device-worker").
		With(logging.String(logging.FieldCommandID, "abc")).
		Info("capture queued", logging.String(logging.FieldCommandKind, "capture"), logging.Int("attempt", 2))

	events, next := hub.Tail(10)
	if len(events) != 1 || next != 1 {
		t.Fatalf("expected one event with seq 1, got %d events next=%d", len(events), next)
	}
	evt := events[0]
	if evt.Component != "device-worker" || evt.CommandID != "abc" || evt.CommandKind != "capture" {
		t.Fatalf("unexpected event %+v", evt)
	}
	if evt.Fields["attempt"] != "2" {
		t.Fatalf("expected attempt field, got %+v", evt.Fields)
	}
}

func TestStreamHubEvictsOldest(t *testing.T) {
	hub := logging.NewStreamHub(2)
	for i := 0; i < 3; i++ {
		hub.Publish(logging.LogEvent{Message: "m"})
	}
	events, _ := hub.Tail(0)
	if len(events) != 2 {
		t.Fatalf("expected 2 buffered events, got %d", len(events))
	}
	if events[0].Sequence != 2 || events[1].Sequence != 3 {
		t.Fatalf("unexpected sequences %d,%d", events[0].Sequence, events[1].Sequence)
	}
}

func TestStreamHubFetchSince(t *testing.T) {
	hub := logging.NewStreamHub(10)
	hub.Publish(logging.LogEvent{Message: "one"})
	hub.Publish(logging.LogEvent{Message: "two"})

	events, next, err := hub.Fetch(context.Background(), 1, 10, false)
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if len(events) != 1 || events[0].Message != "two" || next != 2 {
		t.Fatalf("unexpected fetch result %+v next=%d", events, next)
	}
}

func TestStreamHubFetchWaitsForPublish(t *testing.T) {
	hub := logging.NewStreamHub(10)
	go func() {
		time.Sleep(20 * time.Millisecond)
		hub.Publish(logging.LogEvent{Message: "late"})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	events, _, err := hub.Fetch(ctx, 0, 10, true)
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if len(events) != 1 || events[0].Message != "late" {
		t.Fatalf("unexpected events %+v", events)
	}
}

func TestStreamHubFetchHonoursCancel(t *testing.T) {
	hub := logging.NewStreamHub(10)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, _, err := hub.Fetch(ctx, 0, 10, true)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestStreamHubFetchAfterWrap(t *testing.T) {
	hub := logging.NewStreamHub(3)
	for _, msg := range []string{"a", "b", "c", "d", "e"} {
		hub.Publish(logging.LogEvent{Message: msg})
	}

	events, next, err := hub.Fetch(context.Background(), 1, 0, false)
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if len(events) != 3 || events[0].Message != "c" || next != 5 {
		t.Fatalf("expected c..e after eviction, got %+v next=%d", events, next)
	}

	events, next, _ = hub.Fetch(context.Background(), 3, 1, false)
	if len(events) != 1 || events[0].Message != "d" || next != 4 {
		t.Fatalf("unexpected limited fetch %+v next=%d", events, next)
	}

	events, next, _ = hub.Fetch(context.Background(), 5, 10, false)
	if len(events) != 0 || next != 5 {
		t.Fatalf("expected nothing newer than 5, got %+v next=%d", events, next)
	}
}
