package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"camtrap/internal/config"
	"camtrap/internal/events"
)

const userAgent = "camtrap/0.1.0"

// Event names a notification type.
type Event string

const (
	EventCaptureSaved    Event = "capture_saved"
	EventDeviceFault     Event = "device_fault"
	EventDeviceRecovered Event = "device_recovered"
	EventDaemonStarted   Event = "daemon_started"
	EventTest            Event = "test"
)

// Payload carries event fields by name.
type Payload map[string]string

// Service publishes notifications.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds an ntfy-backed service, or a no-op one when no topic is set.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}
	timeout := cfg.NotificationTimeout()
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
		captures: cfg.Notifications.Captures,
		faults:   cfg.Notifications.DeviceFaults,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
	captures bool
	faults   bool
}

func (n *ntfyService) Publish(ctx context.Context, event Event, data Payload) error {
	msg, ok := n.format(event, data)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

func (n *ntfyService) format(event Event, data Payload) (payload, bool) {
	switch event {
	case EventCaptureSaved:
		if !n.captures {
			return payload{}, false
		}
		name := filepath.Base(strings.TrimSpace(data["path"]))
		return payload{
			title:   "camtrap - Photo Captured",
			message: fmt.Sprintf("📸 Motion capture saved: %s", name),
			tags:    []string{"camtrap", "capture"},
		}, true
	case EventDeviceFault:
		if !n.faults {
			return payload{}, false
		}
		message := "⚠️ Camera fault during " + orDefault(data["command"], "command")
		if errText := strings.TrimSpace(data["error"]); errText != "" {
			message += ": " + errText
		}
		return payload{
			title:    "camtrap - Camera Fault",
			message:  message + "\nReinitializing camera",
			tags:     []string{"camtrap", "camera", "fault"},
			priority: "high",
		}, true
	case EventDeviceRecovered:
		if !n.faults {
			return payload{}, false
		}
		return payload{
			title:   "camtrap - Camera Recovered",
			message: "✅ Camera reinitialized",
			tags:    []string{"camtrap", "camera", "recovered"},
		}, true
	case EventDaemonStarted:
		return payload{
			title:    "camtrap - Started",
			message:  "Watching for motion at " + orDefault(data["bind"], "unknown address"),
			tags:     []string{"camtrap", "daemon"},
			priority: "low",
		}, true
	case EventTest:
		return payload{
			title:    "camtrap - Test",
			message:  "🧪 Notification system test",
			tags:     []string{"camtrap", "test"},
			priority: "low",
		}, true
	default:
		return payload{}, false
	}
}

func orDefault(value, fallback string) string {
	if value = strings.TrimSpace(value); value != "" {
		return value
	}
	return fallback
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }

// Sink forwards dispatcher events to a Service.
type Sink struct {
	Service Service
}

func (s Sink) Name() string { return "ntfy" }

func (s Sink) Handle(ctx context.Context, ev events.Event) error {
	if s.Service == nil {
		return nil
	}
	data := Payload{
		"command":    ev.CommandKind,
		"command_id": ev.CommandID,
		"path":       ev.Path,
		"error":      ev.Error,
	}
	switch ev.Kind {
	case events.CaptureSaved:
		return s.Service.Publish(ctx, EventCaptureSaved, data)
	case events.DeviceFault:
		return s.Service.Publish(ctx, EventDeviceFault, data)
	case events.DeviceRecovered:
		return s.Service.Publish(ctx, EventDeviceRecovered, data)
	default:
		return nil
	}
}
