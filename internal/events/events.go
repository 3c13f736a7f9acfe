// Package events fans capture outcomes out to slow sinks (push
// notifications, object storage, Kafka) without blocking the device worker.
package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/lo"

	"camtrap/internal/capture"
	"camtrap/internal/logging"
)

// Kind classifies an event.
type Kind string

const (
	CaptureSaved    Kind = "capture_saved"
	DeviceFault     Kind = "device_fault"
	DeviceRecovered Kind = "device_recovered"
)

// Event is one worker outcome.
type Event struct {
	Kind        Kind      `json:"kind"`
	CommandID   string    `json:"command_id"`
	CommandKind string    `json:"command_kind"`
	Path        string    `json:"path,omitempty"`
	CameraPath  string    `json:"camera_path,omitempty"`
	Error       string    `json:"error,omitempty"`
	Attempt     int       `json:"attempt"`
	At          time.Time `json:"at"`
}

// Sink consumes events. Handle may block; it runs on the dispatcher goroutine.
type Sink interface {
	Name() string
	Handle(ctx context.Context, ev Event) error
}

const defaultBuffer = 64

// Dispatcher queues events and delivers them to every sink in order.
type Dispatcher struct {
	logger  *slog.Logger
	sinks   []Sink
	timeout time.Duration
	ch      chan Event

	mu      sync.Mutex
	closed  bool
	started bool
	done    chan struct{}
}

// NewDispatcher builds a dispatcher with a bounded buffer.
func NewDispatcher(logger *slog.Logger, buffer int, timeout time.Duration, sinks ...Sink) *Dispatcher {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Dispatcher{
		logger:  logging.NewComponentLogger(logger, "events"),
		sinks:   lo.Filter(sinks, func(s Sink, _ int) bool { return s != nil }),
		timeout: timeout,
		ch:      make(chan Event, buffer),
		done:    make(chan struct{}),
	}
}

// SinkNames lists the attached sinks.
func (d *Dispatcher) SinkNames() []string {
	return lo.Map(d.sinks, func(s Sink, _ int) string { return s.Name() })
}

// Start launches delivery. Events are delivered until Close.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		return
	}
	d.started = true
	ctx = context.WithoutCancel(ctx)
	go func() {
		defer close(d.done)
		for ev := range d.ch {
			d.deliver(ctx, ev)
		}
	}()
	d.logger.Info("event dispatcher started", logging.Any("sinks", d.SinkNames()))
}

// Publish queues ev without blocking. It reports false when the event was dropped.
func (d *Dispatcher) Publish(ev Event) bool {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return false
	}
	select {
	case d.ch <- ev:
		return true
	default:
		logging.WarnWithContext(d.logger, "event dropped; dispatcher buffer full", "event_dropped",
			logging.String("event_kind", string(ev.Kind)),
			logging.String(logging.FieldCommandID, ev.CommandID),
			logging.String(logging.FieldErrorHint, "a sink is slow or unreachable"),
			logging.String(logging.FieldImpact, "sinks miss this event"),
		)
		return false
	}
}

// Close stops intake and waits for queued events to be delivered.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.ch)
	started := d.started
	d.mu.Unlock()
	if !started {
		return nil
	}
	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) deliver(ctx context.Context, ev Event) {
	for _, sink := range d.sinks {
		sinkCtx := ctx
		var cancel context.CancelFunc
		if d.timeout > 0 {
			sinkCtx, cancel = context.WithTimeout(ctx, d.timeout)
		}
		err := sink.Handle(sinkCtx, ev)
		if cancel != nil {
			cancel()
		}
		if err != nil {
			logging.WarnWithContext(d.logger, "event sink failed", "event_sink_failed",
				logging.String("sink", sink.Name()),
				logging.String("event_kind", string(ev.Kind)),
				logging.String(logging.FieldCommandID, ev.CommandID),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check the sink configuration and connectivity"),
				logging.String(logging.FieldImpact, "event not delivered to this sink"),
			)
		}
	}
}

// Hooks adapts worker callbacks into published events.
func (d *Dispatcher) Hooks() capture.Hooks {
	return capture.Hooks{
		OnDownloaded: func(cmd capture.Command, path string) {
			d.Publish(Event{
				Kind:        CaptureSaved,
				CommandID:   cmd.ID,
				CommandKind: cmd.Kind.String(),
				Path:        path,
				CameraPath:  cmd.File.Path(),
				Attempt:     cmd.Attempt,
			})
		},
		OnFault: func(cmd capture.Command, err error) {
			d.Publish(Event{
				Kind:        DeviceFault,
				CommandID:   cmd.ID,
				CommandKind: cmd.Kind.String(),
				Error:       err.Error(),
				Attempt:     cmd.Attempt,
			})
		},
		OnRecovered: func(cmd capture.Command) {
			d.Publish(Event{
				Kind:        DeviceRecovered,
				CommandID:   cmd.ID,
				CommandKind: cmd.Kind.String(),
				Attempt:     cmd.Attempt,
			})
		},
	}
}
