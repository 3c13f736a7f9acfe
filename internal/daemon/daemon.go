package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"camtrap/internal/capture"
	"camtrap/internal/config"
	"camtrap/internal/events"
	"camtrap/internal/logging"
	"camtrap/internal/motion"
	"camtrap/internal/web"
)

// Device is the capture coordinator as seen by the daemon.
type Device interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Capture() error
	Reinitialize() error
	Status() capture.Status
}

// Detector is the frame analysis loop as seen by the daemon.
type Detector interface {
	web.Detector
	Run(ctx context.Context) error
}

// Components are the already constructed parts the daemon runs.
type Components struct {
	Device   Device
	Detector Detector
	Events   *events.Dispatcher
	Logs     *logging.StreamHub
}

// Daemon owns the process lifecycle and enforces single-instance execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	device   Device
	detector Detector
	events   *events.Dispatcher
	web      *web.Server
	monitor  *netlinkMonitor

	lockPath string
	lock     *flock.Flock

	running   atomic.Bool
	startedAt time.Time
	cancel    context.CancelFunc

	loopMu   sync.Mutex
	loopDone chan struct{}
	loopErr  error
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool            `json:"running"`
	PID          int             `json:"pid"`
	StartedAt    time.Time       `json:"started_at,omitzero"`
	LockFilePath string          `json:"lock_file"`
	USBMonitor   bool            `json:"usb_monitor"`
	WebAddress   string          `json:"web_address,omitempty"`
	Device       capture.Status  `json:"device"`
	Detection    motion.Snapshot `json:"detection"`
}

// New constructs a daemon around its components.
func New(cfg *config.Config, comps Components, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || comps.Device == nil || comps.Detector == nil {
		return nil, errors.New("daemon requires config, capture device and detector")
	}
	logger = logging.NewComponentLogger(logger, "daemon")

	lockPath := filepath.Join(cfg.Paths.LogDir, "camtrap.lock")
	d := &Daemon{
		cfg:      cfg,
		logger:   logger,
		device:   comps.Device,
		detector: comps.Detector,
		events:   comps.Events,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
		web: web.New(web.Options{
			Bind:     cfg.Paths.APIBind,
			Detector: comps.Detector,
			Device:   comps.Device,
			Logs:     comps.Logs,
			Logger:   logger,
		}),
	}
	d.monitor = newNetlinkMonitor(cfg, logger, comps.Device.Reinitialize)
	return d, nil
}

// Start acquires the lock and launches every component.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	if err := os.MkdirAll(filepath.Dir(d.lockPath), 0o755); err != nil {
		return fmt.Errorf("create lock directory: %w", err)
	}
	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another camtrap daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	if d.events != nil {
		d.events.Start(runCtx)
	}
	if err := d.device.Start(runCtx); err != nil {
		d.abort(cancel)
		return fmt.Errorf("start capture coordinator: %w", err)
	}
	if err := d.monitor.Start(runCtx); err != nil {
		d.abort(cancel)
		return fmt.Errorf("start usb monitor: %w", err)
	}

	d.startDetector(runCtx)

	if err := d.web.Start(); err != nil {
		d.abort(cancel)
		return err
	}

	d.startedAt = time.Now()
	d.running.Store(true)
	d.logger.Info("camtrap daemon started",
		logging.String(logging.FieldEventType, "daemon_started"),
		logging.String("lock", d.lockPath),
		logging.String("address", d.web.Addr()),
	)
	return nil
}

func (d *Daemon) startDetector(ctx context.Context) {
	done := make(chan struct{})
	d.loopMu.Lock()
	d.loopDone = done
	d.loopErr = nil
	d.loopMu.Unlock()

	go func() {
		defer close(done)
		err := d.detector.Run(ctx)
		d.loopMu.Lock()
		d.loopErr = err
		d.loopMu.Unlock()
		if err != nil {
			d.logger.Error("frame analysis stopped",
				logging.Error(err),
				logging.String(logging.FieldEventType, "detector_failed"),
				logging.String(logging.FieldErrorHint, "check the video source"),
			)
			return
		}
		d.logger.Info("frame analysis finished; serving last preview",
			logging.String(logging.FieldEventType, "detector_finished"),
		)
	}()
}

// abort unwinds a partially completed Start.
func (d *Daemon) abort(cancel context.CancelFunc) {
	cancel()
	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	d.shutdown(shutdownCtx)
	d.cancel = nil
}

// Stop shuts components down in reverse start order and releases the lock.
func (d *Daemon) Stop(ctx context.Context) error {
	if !d.running.Load() {
		return nil
	}
	err := d.shutdown(ctx)
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.running.Store(false)
	d.logger.Info("camtrap daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
	return err
}

func (d *Daemon) shutdown(ctx context.Context) error {
	var errs []error
	if err := d.web.Stop(ctx); err != nil {
		errs = append(errs, err)
	}

	d.loopMu.Lock()
	done := d.loopDone
	d.loopMu.Unlock()
	if d.cancel != nil {
		d.cancel()
	}
	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			errs = append(errs, fmt.Errorf("wait for frame analysis: %w", ctx.Err()))
		}
	}
	d.detector.Preview().Close()
	d.detector.Status().Close()

	d.monitor.Stop()

	if err := d.device.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stop capture coordinator: %w", err))
	}
	if d.events != nil {
		if err := d.events.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("flush events: %w", err))
		}
	}
	if err := d.lock.Unlock(); err != nil {
		logging.WarnWithContext(d.logger, "failed to release daemon lock", "lock_release_failed",
			logging.Error(err),
			logging.String("lock", d.lockPath),
		)
	}
	return errors.Join(errs...)
}

// Running reports whether the daemon is started.
func (d *Daemon) Running() bool { return d.running.Load() }

// LockPath returns the single-instance lock file.
func (d *Daemon) LockPath() string { return d.lockPath }

// Address returns the bound web address.
func (d *Daemon) Address() string { return d.web.Addr() }

// DetectorErr is the error the analysis loop exited with, if any.
func (d *Daemon) DetectorErr() error {
	d.loopMu.Lock()
	defer d.loopMu.Unlock()
	return d.loopErr
}

// Status returns the current daemon status.
func (d *Daemon) Status() Status {
	return Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		StartedAt:    d.startedAt,
		LockFilePath: d.lockPath,
		USBMonitor:   d.monitor.Running(),
		WebAddress:   d.web.Addr(),
		Device:       d.device.Status(),
		Detection:    d.detector.Snapshot(),
	}
}
