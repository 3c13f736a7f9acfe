package capture_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"camtrap/internal/capture"
	"camtrap/internal/services"
)

type fakeDriver struct {
	mu           sync.Mutex
	calls        []string
	openFails    int
	captureFails int
	downloadFail error
	next         int
	openHandles  int
}

func (d *fakeDriver) record(call string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, call)
}

func (d *fakeDriver) Calls() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.calls...)
}

func (d *fakeDriver) OpenHandles() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.openHandles
}

func (d *fakeDriver) Open(_ context.Context, target int) (capture.Handle, error) {
	d.record("open")
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.openFails > 0 {
		d.openFails--
		return nil, services.Wrap(services.ErrDevice, "fake", "open", "no camera", nil)
	}
	d.openHandles++
	return &fakeHandle{driver: d}, nil
}

type fakeHandle struct {
	driver *fakeDriver
}

func (h *fakeHandle) Capture(_ context.Context, _ bool) (capture.FileLocator, error) {
	d := h.driver
	d.record("capture")
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.captureFails > 0 {
		d.captureFails--
		return capture.FileLocator{}, services.Wrap(services.ErrDevice, "fake", "capture", "PTP I/O error", nil)
	}
	d.next++
	return capture.FileLocator{Folder: "/store_00010001/DCIM/100CANON", Name: fmt.Sprintf("IMG_%04d.JPG", d.next)}, nil
}

func (h *fakeHandle) Download(_ context.Context, file capture.FileLocator, destDir string) (string, error) {
	h.driver.record("download")
	h.driver.mu.Lock()
	fail := h.driver.downloadFail
	h.driver.mu.Unlock()
	if fail != nil {
		return "", fail
	}
	return filepath.Join(destDir, file.Name), nil
}

func (h *fakeHandle) Close() error {
	h.driver.record("close")
	h.driver.mu.Lock()
	h.driver.openHandles--
	h.driver.mu.Unlock()
	return nil
}

type sleepRecorder struct {
	mu     sync.Mutex
	sleeps []time.Duration
}

func (s *sleepRecorder) Sleep(_ context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sleeps = append(s.sleeps, d)
	return nil
}

func (s *sleepRecorder) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sleeps)
}

func startCoordinator(t *testing.T, driver capture.Driver, sleeper *sleepRecorder, hooks capture.Hooks) *capture.Coordinator {
	t.Helper()
	coord := capture.NewCoordinator(capture.Options{
		Driver:         driver,
		DownloadDir:    t.TempDir(),
		CaptureTarget:  1,
		SettleInterval: 5 * time.Second,
		Sleep:          sleeper.Sleep,
		Hooks:          hooks,
	})
	if err := coord.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		_ = coord.Stop(context.Background())
	})
	return coord
}

func waitFor(t *testing.T, ch <-chan string) string {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for worker")
		return ""
	}
}

func TestCaptureSchedulesDownload(t *testing.T) {
	driver := &fakeDriver{}
	downloaded := make(chan string, 1)
	coord := startCoordinator(t, driver, &sleepRecorder{}, capture.Hooks{
		OnDownloaded: func(_ capture.Command, path string) { downloaded <- path },
	})

	if err := coord.Capture(); err != nil {
		t.Fatalf("Capture: %v", err)
	}
	path := waitFor(t, downloaded)
	if filepath.Base(path) != "IMG_0001.JPG" {
		t.Fatalf("unexpected download path %q", path)
	}

	want := []string{"open", "capture", "download"}
	if got := driver.Calls(); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("calls = %v, want %v", got, want)
	}
	stats := coord.Status()
	if stats.Captures != 1 || stats.Downloads != 1 || stats.Recoveries != 0 {
		t.Fatalf("unexpected stats %+v", stats.Stats)
	}
}

func TestCaptureDeviceErrorReinitializesAndRetriesOnce(t *testing.T) {
	driver := &fakeDriver{captureFails: 1}
	sleeper := &sleepRecorder{}
	downloaded := make(chan string, 4)
	recovered := make(chan string, 4)
	coord := startCoordinator(t, driver, sleeper, capture.Hooks{
		OnDownloaded: func(_ capture.Command, path string) { downloaded <- path },
		OnRecovered:  func(cmd capture.Command) { recovered <- cmd.ID },
	})

	if err := coord.Capture(); err != nil {
		t.Fatalf("Capture: %v", err)
	}
	waitFor(t, downloaded)
	waitFor(t, recovered)

	want := []string{"open", "capture", "close", "open", "capture", "download"}
	if got := driver.Calls(); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("calls = %v, want %v", got, want)
	}
	if sleeper.Count() != 1 {
		t.Fatalf("expected one settle wait, got %d", sleeper.Count())
	}
	if sleeper.sleeps[0] != 5*time.Second {
		t.Fatalf("settle interval = %s", sleeper.sleeps[0])
	}
	select {
	case extra := <-downloaded:
		t.Fatalf("unexpected duplicate download %q", extra)
	case <-time.After(20 * time.Millisecond):
	}
	if stats := coord.Status(); stats.Recoveries != 1 || stats.LastError == "" {
		t.Fatalf("unexpected stats %+v", stats.Stats)
	}
}

func TestFailedInitRetriesWithoutSecondInit(t *testing.T) {
	driver := &fakeDriver{openFails: 1}
	sleeper := &sleepRecorder{}
	recovered := make(chan string, 1)
	coord := startCoordinator(t, driver, sleeper, capture.Hooks{
		OnRecovered: func(cmd capture.Command) { recovered <- cmd.ID },
	})
	waitFor(t, recovered)

	want := []string{"open", "open"}
	if got := driver.Calls(); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("calls = %v, want %v", got, want)
	}
	if !coord.Status().HandleOpen {
		t.Fatal("expected handle to be open after recovery")
	}
}

func TestCaptureWithoutHandleEntersRecovery(t *testing.T) {
	driver := &fakeDriver{}
	q := capture.NewQueue()
	sleeper := &sleepRecorder{}
	downloaded := make(chan string, 1)
	w := capture.NewWorker(q, capture.WorkerConfig{
		Driver:      driver,
		DownloadDir: t.TempDir(),
		Sleep:       sleeper.Sleep,
		Hooks: capture.Hooks{
			OnDownloaded: func(_ capture.Command, path string) { downloaded <- path },
		},
	})
	if err := q.Push(capture.NewCapture(false)); err != nil {
		t.Fatalf("Push: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- w.Run(context.Background()) }()
	waitFor(t, downloaded)

	if err := q.Push(capture.NewRelease()); err != nil {
		t.Fatalf("Push release: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := []string{"open", "capture", "download", "close"}
	if got := driver.Calls(); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("calls = %v, want %v", got, want)
	}
}

func TestMalformedCommandIsDroppedWithoutRecovery(t *testing.T) {
	driver := &fakeDriver{}
	sleeper := &sleepRecorder{}
	coord := startCoordinator(t, driver, sleeper, capture.Hooks{})

	if err := coord.Submit(capture.Command{ID: "bad", Kind: capture.KindDownload}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for coord.Status().Dropped == 0 {
		if time.Now().After(deadline) {
			t.Fatal("malformed command was never processed")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if err := coord.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	stats := coord.Status()
	if stats.Dropped != 1 {
		t.Fatalf("expected one dropped command, got %+v", stats.Stats)
	}
	if stats.Recoveries != 0 || sleeper.Count() != 0 {
		t.Fatalf("malformed command must not trigger recovery: %+v", stats.Stats)
	}
	if !errors.Is(coord.Submit(capture.NewCapture(false)), capture.ErrQueueClosed) {
		t.Fatal("expected submit after stop to fail")
	}
}

func TestStopClosesHandleAndRejectsSubmissions(t *testing.T) {
	driver := &fakeDriver{}
	downloaded := make(chan string, 1)
	coord := startCoordinator(t, driver, &sleepRecorder{}, capture.Hooks{
		OnDownloaded: func(_ capture.Command, path string) { downloaded <- path },
	})
	if err := coord.Capture(); err != nil {
		t.Fatalf("Capture: %v", err)
	}
	waitFor(t, downloaded)

	if err := coord.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	status := coord.Status()
	if status.Queued != 0 || status.Pending != 0 {
		t.Fatalf("queue not empty after stop: %+v", status)
	}
	if status.HandleOpen || driver.OpenHandles() != 0 {
		t.Fatal("camera handle still open after stop")
	}
	if err := coord.Submit(capture.NewCapture(false)); !errors.Is(err, capture.ErrQueueClosed) {
		t.Fatalf("expected ErrQueueClosed, got %v", err)
	}
	if err := coord.Stop(context.Background()); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
}

func TestReleaseDiscardsQueuedCommands(t *testing.T) {
	driver := &fakeDriver{}
	q := capture.NewQueue()
	w := capture.NewWorker(q, capture.WorkerConfig{Driver: driver, DownloadDir: t.TempDir()})
	for _, cmd := range []capture.Command{capture.NewCapture(false), capture.NewCapture(false), capture.NewRelease()} {
		if err := q.Push(cmd); err != nil {
			t.Fatalf("Push: %v", err)
		}
	}
	if err := w.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if calls := driver.Calls(); len(calls) != 0 {
		t.Fatalf("release must run before queued captures, got calls %v", calls)
	}
	if stats := w.Status(); stats.Discarded != 2 {
		t.Fatalf("expected 2 discarded commands, got %+v", stats)
	}
	if q.Pending() != 0 {
		t.Fatalf("pending = %d after release", q.Pending())
	}
}

func TestDownloadFailureRetriesDownloadOnly(t *testing.T) {
	driver := &fakeDriver{}
	q := capture.NewQueue()
	sleeper := &sleepRecorder{}
	faults := make(chan string, 2)
	downloaded := make(chan string, 1)
	var failOnce sync.Once
	driver.downloadFail = services.Wrap(services.ErrDevice, "fake", "download", "transfer aborted", nil)
	w := capture.NewWorker(q, capture.WorkerConfig{
		Driver:      driver,
		DownloadDir: t.TempDir(),
		Sleep: func(ctx context.Context, d time.Duration) error {
			failOnce.Do(func() {
				driver.mu.Lock()
				driver.downloadFail = nil
				driver.mu.Unlock()
			})
			return sleeper.Sleep(ctx, d)
		},
		Hooks: capture.Hooks{
			OnFault:      func(cmd capture.Command, _ error) { faults <- cmd.Kind.String() },
			OnDownloaded: func(_ capture.Command, path string) { downloaded <- path },
		},
	})
	_ = q.Push(capture.NewInit(1))
	_ = q.Push(capture.NewDownload(capture.FileLocator{Folder: "/DCIM", Name: "IMG_0042.JPG"}))

	done := make(chan error, 1)
	go func() { done <- w.Run(context.Background()) }()
	if kind := waitFor(t, faults); kind != "download" {
		t.Fatalf("fault kind = %q", kind)
	}
	waitFor(t, downloaded)
	_ = q.Push(capture.NewRelease())
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := []string{"open", "download", "close", "open", "download", "close"}
	if got := driver.Calls(); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("calls = %v, want %v", got, want)
	}
}
