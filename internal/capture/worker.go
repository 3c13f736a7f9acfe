package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"camtrap/internal/logging"
	"camtrap/internal/services"
)

// Hooks receive worker outcomes. They run on the worker goroutine and must not block.
type Hooks struct {
	OnDownloaded func(cmd Command, path string)
	OnFault      func(cmd Command, err error)
	OnRecovered  func(cmd Command)
}

// Stats is a point-in-time view of worker activity.
type Stats struct {
	Captures   uint64    `json:"captures"`
	Downloads  uint64    `json:"downloads"`
	Recoveries uint64    `json:"recoveries"`
	Dropped    uint64    `json:"dropped"`
	Discarded  uint64    `json:"discarded"`
	HandleOpen bool      `json:"handle_open"`
	Running    bool      `json:"running"`
	LastError  string    `json:"last_error,omitempty"`
	LastPath   string    `json:"last_path,omitempty"`
	LastEvent  time.Time `json:"last_event,omitzero"`
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Worker is the single consumer of a Queue. It owns the camera handle.
type Worker struct {
	queue    *Queue
	driver   Driver
	logger   *slog.Logger
	destDir  string
	settle   time.Duration
	sleep    SleepFunc
	hooks    Hooks
	target   int
	handle   Handle
	faulted  bool

	captures   atomic.Uint64
	downloads  atomic.Uint64
	recoveries atomic.Uint64
	dropped    atomic.Uint64
	discarded  atomic.Uint64
	handleOpen atomic.Bool
	running    atomic.Bool

	mu        sync.Mutex
	lastError string
	lastPath  string
	lastEvent time.Time
}

// WorkerConfig configures a Worker.
type WorkerConfig struct {
	Driver         Driver
	DownloadDir    string
	CaptureTarget  int
	SettleInterval time.Duration
	Sleep          SleepFunc
	Hooks          Hooks
	Logger         *slog.Logger
}

// NewWorker binds a worker to queue.
func NewWorker(queue *Queue, cfg WorkerConfig) *Worker {
	sleep := cfg.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	return &Worker{
		queue:   queue,
		driver:  cfg.Driver,
		logger:  logging.NewComponentLogger(cfg.Logger, "device-worker"),
		destDir: cfg.DownloadDir,
		settle:  cfg.SettleInterval,
		sleep:   sleep,
		hooks:   cfg.Hooks,
		target:  cfg.CaptureTarget,
	}
}

// Run executes commands until Release is processed or ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	w.running.Store(true)
	defer w.running.Store(false)
	w.logger.Info("device worker started", logging.String("download_dir", w.destDir))

	for {
		cmd, err := w.queue.Pop(ctx)
		if err != nil {
			if errors.Is(err, ErrQueueClosed) {
				w.closeHandle()
				return nil
			}
			w.shutdown("context cancelled")
			return err
		}
		if cmd.Kind == KindRelease {
			w.shutdown("release")
			w.queue.Done()
			return nil
		}
		w.execute(ctx, cmd)
		w.queue.Done()
	}
}

// Status returns the current counters.
func (w *Worker) Status() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return Stats{
		Captures:   w.captures.Load(),
		Downloads:  w.downloads.Load(),
		Recoveries: w.recoveries.Load(),
		Dropped:    w.dropped.Load(),
		Discarded:  w.discarded.Load(),
		HandleOpen: w.handleOpen.Load(),
		Running:    w.running.Load(),
		LastError:  w.lastError,
		LastPath:   w.lastPath,
		LastEvent:  w.lastEvent,
	}
}

func (w *Worker) execute(ctx context.Context, cmd Command) {
	cmdCtx := services.WithCommand(ctx, cmd.ID, cmd.Kind.String())
	logger := logging.WithContext(cmdCtx, w.logger)

	err := w.dispatch(cmdCtx, logger, cmd)
	if err == nil {
		return
	}
	w.recordError(err)

	switch {
	case ctx.Err() != nil:
		logger.Info("device command interrupted by shutdown", logging.Error(err))
	case services.IsDevice(err):
		w.recover(ctx, logger, cmd, err)
	default:
		w.dropped.Add(1)
		logging.WarnWithContext(logger, "device command dropped", "device_command_dropped",
			logging.Error(err),
			logging.Int("attempt", cmd.Attempt),
			logging.String(logging.FieldErrorHint, services.ErrorHint(err)),
			logging.String(logging.FieldImpact, "command discarded without retry"),
		)
	}
}

func (w *Worker) dispatch(ctx context.Context, logger *slog.Logger, cmd Command) error {
	if err := cmd.validate(); err != nil {
		return err
	}
	switch cmd.Kind {
	case KindInit:
		return w.initialize(ctx, logger, cmd)
	case KindCapture:
		return w.capture(ctx, logger, cmd)
	case KindDownload:
		return w.download(ctx, logger, cmd)
	default:
		return services.Wrap(services.ErrProgramming, "device-worker", "dispatch", "unexpected "+cmd.Kind.String(), nil)
	}
}

func (w *Worker) initialize(ctx context.Context, logger *slog.Logger, cmd Command) error {
	if w.driver == nil {
		return services.Wrap(services.ErrProgramming, "device-worker", "init", "no device driver configured", nil)
	}
	w.closeHandle()
	w.target = cmd.Target
	handle, err := w.driver.Open(ctx, cmd.Target)
	if err != nil {
		return err
	}
	w.handle = handle
	w.handleOpen.Store(true)
	logger.Info("camera initialized",
		logging.String(logging.FieldEventType, "camera_initialized"),
		logging.Int("capture_target", cmd.Target),
		logging.Int("attempt", cmd.Attempt),
	)
	if w.faulted {
		w.faulted = false
		if w.hooks.OnRecovered != nil {
			w.hooks.OnRecovered(cmd)
		}
	}
	return nil
}

func (w *Worker) capture(ctx context.Context, logger *slog.Logger, cmd Command) error {
	if w.handle == nil {
		return services.Wrap(services.ErrDevice, "device-worker", "capture", "camera not initialized", nil)
	}
	file, err := w.handle.Capture(ctx, cmd.Autofocus)
	if err != nil {
		return err
	}
	w.captures.Add(1)
	logger.Info("image captured",
		logging.String(logging.FieldEventType, "image_captured"),
		logging.String("camera_path", file.Path()),
		logging.Bool("autofocus", cmd.Autofocus),
	)
	if err := w.queue.Push(NewDownload(file)); err != nil {
		logging.WarnWithContext(logger, "download not scheduled", "download_not_scheduled",
			logging.Error(err),
			logging.String("camera_path", file.Path()),
			logging.String(logging.FieldErrorHint, "file remains on the camera"),
			logging.String(logging.FieldImpact, "image not transferred"),
		)
	}
	return nil
}

func (w *Worker) download(ctx context.Context, logger *slog.Logger, cmd Command) error {
	if w.handle == nil {
		return services.Wrap(services.ErrDevice, "device-worker", "download", "camera not initialized", nil)
	}
	path, err := w.handle.Download(ctx, cmd.File, w.destDir)
	if err != nil {
		return err
	}
	w.downloads.Add(1)
	w.mu.Lock()
	w.lastPath = path
	w.lastEvent = time.Now()
	w.mu.Unlock()
	logger.Info("image downloaded",
		logging.String(logging.FieldEventType, "image_downloaded"),
		logging.String("camera_path", cmd.File.Path()),
		logging.String("path", path),
	)
	if w.hooks.OnDownloaded != nil {
		w.hooks.OnDownloaded(cmd, path)
	}
	return nil
}

// recover closes the handle, waits for the device to settle, then queues a
// fresh Init ahead of the failed command.
func (w *Worker) recover(ctx context.Context, logger *slog.Logger, cmd Command, cause error) {
	w.recoveries.Add(1)
	w.faulted = true
	logging.WarnWithContext(logger, "device command failed; reinitializing camera", "device_fault",
		logging.Error(cause),
		logging.Int("attempt", cmd.Attempt),
		logging.Duration("settle", w.settle),
		logging.String(logging.FieldErrorHint, services.ErrorHint(cause)),
		logging.String(logging.FieldImpact, "command retried after the camera reinitializes"),
	)
	if w.hooks.OnFault != nil {
		w.hooks.OnFault(cmd, cause)
	}

	w.closeHandle()
	if err := w.sleep(ctx, w.settle); err != nil {
		return
	}

	if cmd.Kind != KindInit {
		if err := w.queue.Push(NewInit(w.target)); err != nil {
			logger.Info("recovery init not queued", logging.Error(err))
			return
		}
	}
	if err := w.queue.Push(cmd.Retry()); err != nil {
		logger.Info("retry not queued", logging.Error(err))
	}
}

// shutdown stops intake, discards queued work and releases the camera.
func (w *Worker) shutdown(reason string) {
	w.queue.Close()
	for _, cmd := range w.queue.Drain() {
		w.discarded.Add(1)
		logging.WarnWithContext(w.logger, "discarding queued device command", "device_command_discarded",
			logging.String(logging.FieldCommandID, cmd.ID),
			logging.String(logging.FieldCommandKind, cmd.Kind.String()),
			logging.String("reason", reason),
			logging.String(logging.FieldErrorHint, "commands queued at shutdown are not executed"),
			logging.String(logging.FieldImpact, "command not executed"),
		)
		w.queue.Done()
	}
	w.closeHandle()
	w.logger.Info("device worker stopped", logging.String("reason", reason))
}

func (w *Worker) closeHandle() {
	if w.handle == nil {
		return
	}
	if err := w.handle.Close(); err != nil {
		w.logger.Debug("camera close failed", logging.Error(err))
	}
	w.handle = nil
	w.handleOpen.Store(false)
}

func (w *Worker) recordError(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.lastError = err.Error()
	w.lastEvent = time.Now()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("settle wait: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
