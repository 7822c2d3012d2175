// Package hotplug watches udev netlink events for the card reader being
// plugged in, so the card adapter can retry immediately instead of waiting
// out its retry delay.
package hotplug

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/pilebones/go-udev/netlink"

	"kiosk/internal/config"
	"kiosk/internal/logging"
)

// Monitor listens for USB add events matching the configured reader.
type Monitor struct {
	logger    *slog.Logger
	vendorID  string
	productID string
	wake      chan struct{}

	mu      sync.Mutex
	conn    *netlink.UEventConn
	quit    chan struct{}
	running bool
}

// New returns nil when hotplug is disabled or the reader is not configured.
func New(cfg *config.Config, logger *slog.Logger) *Monitor {
	if cfg == nil || !cfg.Reader.Enabled || !cfg.Reader.Hotplug {
		return nil
	}
	vendor := strings.ToLower(strings.TrimSpace(cfg.Reader.VendorID))
	product := strings.ToLower(strings.TrimSpace(cfg.Reader.ProductID))
	if vendor == "" || product == "" {
		return nil
	}
	return &Monitor{
		logger:    logging.NewComponentLogger(logger, "hotplug"),
		vendorID:  vendor,
		productID: product,
		wake:      make(chan struct{}, 1),
	}
}

// Wake receives a signal each time the reader is attached. A nil Monitor
// returns a nil channel, which never fires.
func (m *Monitor) Wake() <-chan struct{} {
	if m == nil {
		return nil
	}
	return m.wake
}

// Start connects to the udev netlink socket. Failure to connect is logged and
// not fatal: the card adapter falls back to its retry delay.
func (m *Monitor) Start(ctx context.Context) error {
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
		m.logger.Warn("failed to connect to netlink socket; reader reconnects will wait for the retry delay",
			logging.Error(err),
			logging.String(logging.FieldEventType, "netlink_connect_failed"),
			logging.String(logging.FieldErrorHint, "ensure the daemon may open netlink sockets"),
			logging.String(logging.FieldImpact, "reader hotplug detection unavailable"),
		)
		return nil
	}

	m.conn = conn
	m.quit = make(chan struct{})
	m.running = true

	quit := m.quit
	go m.monitorLoop(ctx, conn, quit)

	m.logger.Info("hotplug monitor started",
		logging.String(logging.FieldEventType, "hotplug_monitor_started"),
		logging.String("vendor_id", m.vendorID),
		logging.String("product_id", m.productID),
	)
	return nil
}

// Stop closes the netlink connection.
func (m *Monitor) Stop() {
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

	m.logger.Info("hotplug monitor stopped",
		logging.String(logging.FieldEventType, "hotplug_monitor_stopped"),
	)
}

// Running reports whether the monitor is connected.
func (m *Monitor) Running() bool {
	if m == nil {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *Monitor) monitorLoop(ctx context.Context, conn *netlink.UEventConn, quit <-chan struct{}) {
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
			m.logger.Warn("netlink monitor error",
				logging.Error(err),
				logging.String(logging.FieldEventType, "netlink_monitor_error"),
				logging.String(logging.FieldErrorHint, "check kernel netlink subsystem"),
				logging.String(logging.FieldImpact, "reader hotplug detection may miss events"),
			)
		}
	}
}

// buildMatcher matches ACTION=add, SUBSYSTEM=usb for the configured
// vendor and product ids.
func (m *Monitor) buildMatcher() netlink.Matcher {
	action := "add"
	rules := &netlink.RuleDefinitions{}
	rules.AddRule(netlink.RuleDefinition{
		Action: &action,
		Env: map[string]string{
			"SUBSYSTEM":    "usb",
			"ID_VENDOR_ID": m.vendorID,
			"ID_MODEL_ID":  m.productID,
		},
	})
	return rules
}

// handleEvent signals Wake once per attached device. Interface events for
// the same device are ignored.
func (m *Monitor) handleEvent(uevent netlink.UEvent) {
	if devtype := uevent.Env["DEVTYPE"]; devtype != "" && devtype != "usb_device" {
		m.logger.Debug("ignoring usb interface event",
			logging.String("devtype", devtype),
			logging.String("kobj", uevent.KObj),
		)
		return
	}
	if !m.matchesDevice(uevent) {
		m.logger.Debug("ignoring event for another usb device",
			logging.String("kobj", uevent.KObj),
		)
		return
	}

	m.logger.Info("card reader attached",
		logging.String(logging.FieldEventType, "reader_attached"),
		logging.String("devname", uevent.Env["DEVNAME"]),
	)
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// matchesDevice checks ID_VENDOR_ID/ID_MODEL_ID, falling back to the kernel
// PRODUCT variable ("54c/6c1/110") when udev properties are absent.
func (m *Monitor) matchesDevice(uevent netlink.UEvent) bool {
	vendor := strings.ToLower(uevent.Env["ID_VENDOR_ID"])
	model := strings.ToLower(uevent.Env["ID_MODEL_ID"])
	if vendor != "" || model != "" {
		return vendor == m.vendorID && model == m.productID
	}
	parts := strings.Split(strings.ToLower(uevent.Env["PRODUCT"]), "/")
	if len(parts) < 2 {
		return false
	}
	return trimHex(parts[0]) == trimHex(m.vendorID) && trimHex(parts[1]) == trimHex(m.productID)
}

func trimHex(s string) string {
	trimmed := strings.TrimLeft(s, "0")
	if trimmed == "" {
		return "0"
	}
	return trimmed
}
