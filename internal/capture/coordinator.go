package capture

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"camtrap/internal/logging"
)

// Options configures a Coordinator.
type Options struct {
	Driver         Driver
	DownloadDir    string
	CaptureTarget  int
	Autofocus      bool
	SettleInterval time.Duration
	Sleep          SleepFunc
	Hooks          Hooks
	Logger         *slog.Logger
}

// Status combines worker counters with queue depth.
type Status struct {
	Stats
	Queued  int  `json:"queued"`
	Pending int  `json:"pending"`
	Closed  bool `json:"closed"`
}

// Coordinator owns the queue and the worker goroutine. Submit is safe for
// concurrent use.
type Coordinator struct {
	queue     *Queue
	worker    *Worker
	logger    *slog.Logger
	target    int
	autofocus bool

	mu      sync.Mutex
	started bool
	stopped bool
	cancel  context.CancelFunc
	done    chan struct{}
	runErr  error
}

// NewCoordinator builds an unstarted coordinator.
func NewCoordinator(opts Options) *Coordinator {
	queue := NewQueue()
	return &Coordinator{
		queue: queue,
		worker: NewWorker(queue, WorkerConfig{
			Driver:         opts.Driver,
			DownloadDir:    opts.DownloadDir,
			CaptureTarget:  opts.CaptureTarget,
			SettleInterval: opts.SettleInterval,
			Sleep:          opts.Sleep,
			Hooks:          opts.Hooks,
			Logger:         opts.Logger,
		}),
		logger:    logging.NewComponentLogger(opts.Logger, "capture"),
		target:    opts.CaptureTarget,
		autofocus: opts.Autofocus,
		done:      make(chan struct{}),
	}
}

// Start launches the worker and queues the initial Init. The worker outlives
// ctx cancellation until Stop is called.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return errors.New("capture coordinator already started")
	}
	if c.stopped {
		return ErrQueueClosed
	}
	if err := c.queue.Push(NewInit(c.target)); err != nil {
		return err
	}

	workerCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.cancel = cancel
	c.started = true
	go func() {
		defer close(c.done)
		err := c.worker.Run(workerCtx)
		c.mu.Lock()
		c.runErr = err
		c.mu.Unlock()
	}()
	c.logger.Info("capture coordinator started", logging.Int("capture_target", c.target))
	return nil
}

// Submit queues cmd for the worker without waiting for it to execute.
func (c *Coordinator) Submit(cmd Command) error {
	return c.queue.Push(cmd)
}

// Capture queues a capture using the configured autofocus setting.
func (c *Coordinator) Capture() error {
	return c.Submit(NewCapture(c.autofocus))
}

// Reinitialize queues an Init for the configured capture target.
func (c *Coordinator) Reinitialize() error {
	return c.Submit(NewInit(c.target))
}

// Stop queues Release and waits until the worker has drained and exited.
// When ctx expires first the worker is cancelled and Stop still waits for it.
func (c *Coordinator) Stop(ctx context.Context) error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		if c.started {
			<-c.done
		}
		return nil
	}
	c.stopped = true
	started := c.started
	c.mu.Unlock()

	if !started {
		c.queue.Close()
		return nil
	}

	if err := c.queue.Push(NewRelease()); err != nil && !errors.Is(err, ErrQueueClosed) {
		return err
	}

	var stopErr error
	if err := c.queue.Join(ctx); err != nil {
		stopErr = err
		c.cancel()
	}
	select {
	case <-c.done:
	case <-ctx.Done():
		c.cancel()
		<-c.done
		stopErr = ctx.Err()
	}
	c.cancel()
	c.logger.Info("capture coordinator stopped")
	return stopErr
}

// Done is closed once the worker has exited.
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

// Err returns the worker's exit error, if any.
func (c *Coordinator) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.runErr
}

// Status reports worker counters and queue depth.
func (c *Coordinator) Status() Status {
	return Status{
		Stats:   c.worker.Status(),
		Queued:  c.queue.Len(),
		Pending: c.queue.Pending(),
		Closed:  c.queue.Closed(),
	}
}
