package feed_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"camtrap/internal/feed"
)

func TestSlotLatestWins(t *testing.T) {
	s := feed.NewSlot[int]()
	if _, _, ok := s.Latest(); ok {
		t.Fatal("empty slot reported a value")
	}
	s.Publish(1)
	s.Publish(2)
	s.Publish(3)

	v, version, err := s.Next(context.Background(), 0)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if v != 3 || version != 3 {
		t.Fatalf("got value %d version %d, want latest 3", v, version)
	}
}

func TestSlotNextBlocksUntilPublish(t *testing.T) {
	s := feed.NewSlot[string]()
	s.Publish("a")
	_, version, _ := s.Latest()

	got := make(chan string, 1)
	go func() {
		v, _, err := s.Next(context.Background(), version)
		if err == nil {
			got <- v
		}
	}()
	select {
	case <-got:
		t.Fatal("Next returned a value it had already seen")
	case <-time.After(20 * time.Millisecond):
	}
	s.Publish("b")
	select {
	case v := <-got:
		if v != "b" {
			t.Fatalf("got %q", v)
		}
	case <-time.After(time.Second):
		t.Fatal("Next did not wake")
	}
}

func TestSlotCloseAndCancel(t *testing.T) {
	s := feed.NewSlot[int]()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, _, err := s.Next(ctx, 0); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	s.Close()
	if _, _, err := s.Next(context.Background(), 0); !errors.Is(err, feed.ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestStatusBoardIsEdgeTriggered(t *testing.T) {
	b := feed.NewStatusBoard("Undetected")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan string, 8)
	started := make(chan struct{})
	go func() {
		close(started)
		for s := range b.Changes(ctx) {
			changes <- s.Text
		}
		close(changes)
	}()
	<-started
	time.Sleep(10 * time.Millisecond)

	at := time.Date(2024, 5, 1, 6, 30, 0, 0, time.UTC)
	if b.Set("Undetected", at) {
		t.Fatal("unchanged status must not publish")
	}
	if !b.Set("Movement Detected", at) {
		t.Fatal("changed status must publish")
	}
	select {
	case text := <-changes:
		if text != "Movement Detected" {
			t.Fatalf("got %q", text)
		}
	case <-time.After(time.Second):
		t.Fatal("no change delivered")
	}
	if line := b.Current().Line(); line != "24-05-01 06:30:00:Movement Detected" {
		t.Fatalf("Line = %q", line)
	}

	b.Close()
	select {
	case _, open := <-changes:
		if open {
			t.Fatal("unexpected extra status")
		}
	case <-time.After(time.Second):
		t.Fatal("stream did not end on close")
	}
}
