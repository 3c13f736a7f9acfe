package daemon

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/pilebones/go-udev/netlink"

	"camtrap/internal/config"
	"camtrap/internal/logging"
)

// stillImageInterface is the USB interface class/subclass/protocol prefix of
// PTP still image cameras as it appears in ID_USB_INTERFACES.
const stillImageInterface = ":0601"

// netlinkMonitor listens for udev netlink events and asks the device worker
// to re-initialize when the camera is plugged back in.
type netlinkMonitor struct {
	logger   *slog.Logger
	vendorID string
	onAttach func() error

	mu      sync.Mutex
	conn    *netlink.UEventConn
	quit    chan struct{}
	running bool
}

// newNetlinkMonitor creates a USB hotplug monitor. onAttach runs for every
// matching camera add event.
func newNetlinkMonitor(cfg *config.Config, logger *slog.Logger, onAttach func() error) *netlinkMonitor {
	if cfg == nil {
		return nil
	}
	return &netlinkMonitor{
		logger:   logging.NewComponentLogger(logger, "usb-monitor"),
		vendorID: strings.ToLower(strings.TrimPrefix(strings.TrimSpace(cfg.Camera.USBVendorID), "0x")),
		onAttach: onAttach,
	}
}

// Start begins listening for udev netlink events. A connect failure is logged
// and otherwise ignored.
func (m *netlinkMonitor) Start(ctx context.Context) error {
	if m == nil {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return nil
	}

	conn := new(netlink.UEventConn)
	if err := conn.Connect(netlink.UdevEvent); err != nil {
		logging.WarnWithContext(m.logger, "failed to connect to netlink socket; camera hotplug will not be detected", "netlink_connect_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "ensure the daemon has permission to access netlink sockets"),
			logging.String(logging.FieldImpact, "a re-plugged camera is picked up by the next capture's recovery cycle instead"),
		)
		return nil
	}

	m.conn = conn
	m.quit = make(chan struct{})
	m.running = true

	quit := m.quit
	go m.monitorLoop(ctx, conn, quit)

	m.logger.Info("usb monitor started",
		logging.String(logging.FieldEventType, "usb_monitor_started"),
		logging.String("vendor_id", m.vendorID),
	)
	return nil
}

// Stop shuts down the monitor.
func (m *netlinkMonitor) Stop() {
	if m == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}
	if m.quit != nil {
		close(m.quit)
		m.quit = nil
	}
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
	m.running = false

	m.logger.Info("usb monitor stopped", logging.String(logging.FieldEventType, "usb_monitor_stopped"))
}

// Running reports whether the monitor is active.
func (m *netlinkMonitor) Running() bool {
	if m == nil {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *netlinkMonitor) monitorLoop(ctx context.Context, conn *netlink.UEventConn, quit <-chan struct{}) {
	queue := make(chan netlink.UEvent)
	errs := make(chan error)
	monitorQuit := conn.Monitor(queue, errs, m.buildMatcher())

	for {
		select {
		case <-ctx.Done():
			close(monitorQuit)
			return
		case <-quit:
			close(monitorQuit)
			return
		case uevent := <-queue:
			m.handleEvent(uevent)
		case err := <-errs:
			logging.WarnWithContext(m.logger, "netlink monitor error", "netlink_monitor_error",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check kernel netlink subsystem"),
				logging.String(logging.FieldImpact, "camera hotplug detection may be affected"),
			)
		}
	}
}

// buildMatcher matches whole USB devices being added or removed.
func (m *netlinkMonitor) buildMatcher() netlink.Matcher {
	action := "add|remove"
	rules := &netlink.RuleDefinitions{}
	rules.AddRule(netlink.RuleDefinition{
		Action: &action,
		Env: map[string]string{
			"SUBSYSTEM": "usb",
			"DEVTYPE":   "usb_device",
		},
	})
	return rules
}

// isCamera reports whether a USB uevent describes the configured camera, or
// any PTP still image device when no vendor is configured.
func (m *netlinkMonitor) isCamera(uevent netlink.UEvent) bool {
	if m.vendorID != "" {
		if strings.EqualFold(uevent.Env["ID_VENDOR_ID"], m.vendorID) {
			return true
		}
		// PRODUCT is vendor/product/bcd in hex without leading zeros.
		vendor, _, _ := strings.Cut(uevent.Env["PRODUCT"], "/")
		return vendor != "" && strings.TrimLeft(m.vendorID, "0") == strings.ToLower(vendor)
	}
	if uevent.Env["ID_GPHOTO2"] == "1" {
		return true
	}
	return strings.Contains(uevent.Env["ID_USB_INTERFACES"], stillImageInterface)
}

func (m *netlinkMonitor) handleEvent(uevent netlink.UEvent) {
	if !m.isCamera(uevent) {
		m.logger.Debug("ignoring non-camera usb event",
			logging.String("action", string(uevent.Action)),
			logging.String("kobj", uevent.KObj),
		)
		return
	}

	model := uevent.Env["ID_MODEL"]
	switch uevent.Action {
	case netlink.REMOVE:
		logging.WarnWithContext(m.logger, "camera disconnected", "camera_disconnected",
			logging.String("model", model),
			logging.String("devpath", uevent.Env["DEVPATH"]),
			logging.String(logging.FieldErrorHint, "reconnect the camera; it is re-initialized automatically"),
			logging.String(logging.FieldImpact, "captures fail and retry until the camera returns"),
		)
	case netlink.ADD:
		m.logger.Info("camera connected",
			logging.String(logging.FieldEventType, "camera_connected"),
			logging.String("model", model),
			logging.String("devpath", uevent.Env["DEVPATH"]),
		)
		if m.onAttach == nil {
			return
		}
		if err := m.onAttach(); err != nil {
			logging.WarnWithContext(m.logger, "camera re-initialization not queued", "camera_reinit_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "the daemon may be shutting down"),
				logging.String(logging.FieldImpact, "camera stays closed until the next command"),
			)
		}
	}
}
