package daemon_test

import (
	"context"
	"slices"
	"sync"
	"testing"
	"time"

	"camtrap/internal/capture"
	"camtrap/internal/config"
	"camtrap/internal/daemon"
	"camtrap/internal/events"
	"camtrap/internal/feed"
	"camtrap/internal/motion"
	"camtrap/internal/region"
	"camtrap/internal/testsupport"
)

type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) add(call string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.calls)
}

type stubDevice struct {
	rec *recorder
}

func (s *stubDevice) Start(context.Context) error {
	s.rec.add("device.start")
	return nil
}

func (s *stubDevice) Stop(context.Context) error {
	s.rec.add("device.stop")
	return nil
}

func (s *stubDevice) Capture() error         { return nil }
func (s *stubDevice) Reinitialize() error    { return nil }
func (s *stubDevice) Status() capture.Status { return capture.Status{} }

type stubDetector struct {
	rec     *recorder
	preview *feed.Slot[[]byte]
	board   *feed.StatusBoard
}

func newStubDetector(rec *recorder) *stubDetector {
	return &stubDetector{rec: rec, preview: feed.NewSlot[[]byte](), board: feed.NewStatusBoard(motion.StatusUndetected)}
}

func (s *stubDetector) Run(ctx context.Context) error {
	s.rec.add("detector.run")
	<-ctx.Done()
	s.rec.add("detector.exit")
	return nil
}

func (s *stubDetector) Preview() *feed.Slot[[]byte] { return s.preview }
func (s *stubDetector) Status() *feed.StatusBoard   { return s.board }
func (s *stubDetector) Recenter(x, y int) (region.Region, error) {
	return region.Region{CenterX: x, CenterY: y, Side: 200}, nil
}
func (s *stubDetector) Snapshot() motion.Snapshot { return motion.Snapshot{} }

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return testsupport.NewConfig(t)
}

func newDaemon(t *testing.T, cfg *config.Config, rec *recorder) *daemon.Daemon {
	t.Helper()
	d, err := daemon.New(cfg, daemon.Components{
		Device:   &stubDevice{rec: rec},
		Detector: newStubDetector(rec),
		Events:   events.NewDispatcher(nil, 4, time.Second),
	}, nil)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	return d
}

func TestDaemonStartStop(t *testing.T) {
	cfg := testConfig(t)
	rec := &recorder{}
	d := newDaemon(t, cfg, rec)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	status := d.Status()
	if !status.Running {
		t.Fatal("expected daemon to report running")
	}
	if status.WebAddress == "" {
		t.Fatal("expected web address")
	}

	if err := d.Start(ctx); err == nil {
		t.Fatal("expected second start to fail")
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	if err := d.Stop(stopCtx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if d.Status().Running {
		t.Fatal("expected daemon to be stopped")
	}

	calls := rec.snapshot()
	exit := slices.Index(calls, "detector.exit")
	stop := slices.Index(calls, "device.stop")
	if calls[0] != "device.start" || exit < 0 || stop < 0 || exit > stop {
		t.Fatalf("unexpected lifecycle order %v", calls)
	}
}

func TestDaemonRejectsSecondInstance(t *testing.T) {
	cfg := testConfig(t)
	first := newDaemon(t, cfg, &recorder{})
	ctx := context.Background()
	if err := first.Start(ctx); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	t.Cleanup(func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = first.Stop(stopCtx)
	})

	second := newDaemon(t, cfg, &recorder{})
	if err := second.Start(ctx); err == nil {
		t.Fatal("expected second instance to fail on the lock")
	}
}

func TestNewRequiresComponents(t *testing.T) {
	if _, err := daemon.New(testConfig(t), daemon.Components{}, nil); err == nil {
		t.Fatal("expected error without components")
	}
}
