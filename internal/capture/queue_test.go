package capture_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"camtrap/internal/capture"
)

func popKinds(t *testing.T, q *capture.Queue, n int) []capture.Kind {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	kinds := make([]capture.Kind, 0, n)
	for range n {
		cmd, err := q.Pop(ctx)
		if err != nil {
			t.Fatalf("Pop: %v", err)
		}
		kinds = append(kinds, cmd.Kind)
		q.Done()
	}
	return kinds
}

func TestQueueDispatchesCaptureBeforeDownloads(t *testing.T) {
	q := capture.NewQueue()
	first := capture.NewDownload(capture.FileLocator{Folder: "/store_00010001/DCIM/100CANON", Name: "IMG_0001.JPG"})
	second := capture.NewDownload(capture.FileLocator{Folder: "/store_00010001/DCIM/100CANON", Name: "IMG_0002.JPG"})
	for _, cmd := range []capture.Command{first, second, capture.NewCapture(false)} {
		if err := q.Push(cmd); err != nil {
			t.Fatalf("Push: %v", err)
		}
	}

	ctx := context.Background()
	got := make([]capture.Command, 0, 3)
	for range 3 {
		cmd, err := q.Pop(ctx)
		if err != nil {
			t.Fatalf("Pop: %v", err)
		}
		got = append(got, cmd)
	}
	if got[0].Kind != capture.KindCapture {
		t.Fatalf("expected capture first, got %s", got[0].Kind)
	}
	if got[1].ID != first.ID || got[2].ID != second.ID {
		t.Fatalf("downloads out of submission order: %s, %s", got[1].File.Name, got[2].File.Name)
	}
}

func TestQueuePriorityAcrossAllKinds(t *testing.T) {
	q := capture.NewQueue()
	cmds := []capture.Command{
		capture.NewDownload(capture.FileLocator{Name: "a.jpg"}),
		capture.NewCapture(false),
		capture.NewInit(1),
		capture.NewRelease(),
	}
	for _, cmd := range cmds {
		if err := q.Push(cmd); err != nil {
			t.Fatalf("Push: %v", err)
		}
	}
	got := popKinds(t, q, 4)
	want := []capture.Kind{capture.KindRelease, capture.KindInit, capture.KindCapture, capture.KindDownload}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("dispatch order = %v, want %v", got, want)
		}
	}
}

func TestQueuePushAfterCloseFails(t *testing.T) {
	q := capture.NewQueue()
	q.Close()
	if err := q.Push(capture.NewCapture(false)); !errors.Is(err, capture.ErrQueueClosed) {
		t.Fatalf("expected ErrQueueClosed, got %v", err)
	}
	if _, err := q.Pop(context.Background()); !errors.Is(err, capture.ErrQueueClosed) {
		t.Fatalf("expected ErrQueueClosed from empty closed queue, got %v", err)
	}
}

func TestQueuePopWaitsForPush(t *testing.T) {
	q := capture.NewQueue()
	result := make(chan capture.Command, 1)
	go func() {
		cmd, err := q.Pop(context.Background())
		if err == nil {
			result <- cmd
		}
	}()

	select {
	case <-result:
		t.Fatal("Pop returned before anything was pushed")
	case <-time.After(20 * time.Millisecond):
	}

	want := capture.NewCapture(true)
	if err := q.Push(want); err != nil {
		t.Fatalf("Push: %v", err)
	}
	select {
	case got := <-result:
		if got.ID != want.ID {
			t.Fatalf("unexpected command %s", got.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("Pop did not wake after Push")
	}
}

func TestQueuePopHonorsCancellation(t *testing.T) {
	q := capture.NewQueue()
	ctx, cancel := context.WithCancel(context.Background())
	errs := make(chan error, 1)
	go func() {
		_, err := q.Pop(ctx)
		errs <- err
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()
	select {
	case err := <-errs:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Pop ignored cancellation")
	}
}

func TestQueueJoinWaitsForDone(t *testing.T) {
	q := capture.NewQueue()
	if err := q.Push(capture.NewCapture(false)); err != nil {
		t.Fatalf("Push: %v", err)
	}
	if _, err := q.Pop(context.Background()); err != nil {
		t.Fatalf("Pop: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := q.Join(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Join should block while a command is outstanding, got %v", err)
	}

	q.Done()
	if err := q.Join(context.Background()); err != nil {
		t.Fatalf("Join after Done: %v", err)
	}
}

func TestQueueDrainReturnsDispatchOrder(t *testing.T) {
	q := capture.NewQueue()
	_ = q.Push(capture.NewDownload(capture.FileLocator{Name: "x.jpg"}))
	_ = q.Push(capture.NewCapture(false))
	drained := q.Drain()
	if len(drained) != 2 || drained[0].Kind != capture.KindCapture {
		t.Fatalf("unexpected drain result %+v", drained)
	}
	if q.Len() != 0 {
		t.Fatalf("queue not empty after drain: %d", q.Len())
	}
	if q.Pending() != 2 {
		t.Fatalf("drained commands still need Done, pending=%d", q.Pending())
	}
}
