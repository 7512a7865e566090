// Package systemd reports service readiness, watchdog keepalives and bridge
// status to systemd through the sd_notify protocol. Every call is a no-op
// when the process was not started by systemd with NOTIFY_SOCKET set.
package systemd

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"github.com/smazurov/serialbridge/internal/events"
)

// Notifier mirrors connection and mode changes into the unit's STATUS line.
type Notifier struct {
	eventBus    *events.Bus
	unsubscribe func()
	logger      *slog.Logger

	mu   sync.Mutex
	port string
	conn bool
	mode string

	stop chan struct{}
	done chan struct{}
}

// NewNotifier creates a notifier for eventBus.
func NewNotifier(eventBus *events.Bus, logger *slog.Logger) *Notifier {
	return &Notifier{
		eventBus: eventBus,
		logger:   logger,
		mode:     "idle",
	}
}

// Start signals readiness, follows bridge events and keeps the watchdog
// fed when WatchdogSec is set on the unit.
func (n *Notifier) Start() {
	n.send(daemon.SdNotifyReady, "STATUS=Disconnected")
	n.unsubscribe = n.eventBus.SubscribeSerial(n.handleEvent)

	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		n.logger.Warn("Invalid watchdog configuration", "error", err)
	}
	if interval > 0 {
		n.stop = make(chan struct{})
		n.done = make(chan struct{})
		go n.watchdog(interval / 2)
		n.logger.Info("Systemd watchdog enabled", "interval", interval)
	}
}

// Stop tells systemd the service is shutting down.
func (n *Notifier) Stop() {
	if n.unsubscribe != nil {
		n.unsubscribe()
	}
	if n.stop != nil {
		close(n.stop)
		<-n.done
	}
	n.send(daemon.SdNotifyStopping)
}

func (n *Notifier) watchdog(every time.Duration) {
	defer close(n.done)
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-n.stop:
			return
		case <-ticker.C:
			n.send(daemon.SdNotifyWatchdog)
		}
	}
}

func (n *Notifier) handleEvent(ev events.Event) {
	n.mu.Lock()
	switch e := ev.(type) {
	case events.ConnectionChangedEvent:
		n.port = e.Port
		n.conn = e.Status == "connected"
		n.mode = "idle"
	case events.ModeChangedEvent:
		n.mode = e.To
	default:
		n.mu.Unlock()
		return
	}
	status := n.statusLocked()
	n.mu.Unlock()

	n.send("STATUS=" + status)
}

// statusLocked requires mu.
func (n *Notifier) statusLocked() string {
	if !n.conn {
		return "Disconnected"
	}
	return fmt.Sprintf("Connected to %s, %s", n.port, n.mode)
}

func (n *Notifier) send(states ...string) {
	for _, state := range states {
		if _, err := daemon.SdNotify(false, state); err != nil {
			n.logger.Debug("sd_notify failed", "state", state, "error", err)
		}
	}
}
