package led

import (
	"log/slog"
	"sync"

	"github.com/smazurov/serialbridge/internal/events"
)

// state is what the status LED shows.
type state struct {
	on      bool
	pattern string
}

// Indicator shows bridge state on the status LED:
// off while disconnected, solid when idle, heartbeat while reading and
// blinking while writing.
type Indicator struct {
	controller  Controller
	eventBus    *events.Bus
	unsubscribe func()
	logger      *slog.Logger

	mu        sync.Mutex
	connected bool
	mode      string
	shown     *state
}

// NewIndicator creates an indicator driving controller from eventBus.
func NewIndicator(controller Controller, eventBus *events.Bus, logger *slog.Logger) *Indicator {
	return &Indicator{
		controller: controller,
		eventBus:   eventBus,
		logger:     logger,
		mode:       "idle",
	}
}

// Start switches the LED off and follows connection and mode events.
func (i *Indicator) Start() {
	i.mu.Lock()
	i.applyLocked()
	i.mu.Unlock()

	i.unsubscribe = i.eventBus.SubscribeSerial(i.handleEvent)
	i.logger.Info("LED indicator started")
}

// Stop unsubscribes and switches the LED off.
func (i *Indicator) Stop() {
	if i.unsubscribe != nil {
		i.unsubscribe()
	}
	if err := i.controller.Set(StatusLED, false, ""); err != nil {
		i.logger.Warn("Failed to switch status LED off", "error", err)
	}
	i.logger.Info("LED indicator stopped")
}

// Controller returns the underlying controller for direct API access.
func (i *Indicator) Controller() Controller {
	return i.controller
}

func (i *Indicator) handleEvent(ev events.Event) {
	i.mu.Lock()
	defer i.mu.Unlock()

	switch e := ev.(type) {
	case events.ConnectionChangedEvent:
		i.connected = e.Status == "connected"
		if !i.connected {
			i.mode = "idle"
		}
	case events.ModeChangedEvent:
		i.mode = e.To
	default:
		return
	}
	i.applyLocked()
}

func (i *Indicator) desiredLocked() state {
	if !i.connected {
		return state{}
	}
	switch i.mode {
	case "reading":
		return state{on: true, pattern: PatternHeartbeat}
	case "writing":
		return state{on: true, pattern: PatternBlink}
	default:
		return state{on: true, pattern: PatternSolid}
	}
}

// applyLocked requires mu.
func (i *Indicator) applyLocked() {
	want := i.desiredLocked()
	if i.shown != nil && *i.shown == want {
		return
	}
	if err := i.controller.Set(StatusLED, want.on, want.pattern); err != nil {
		i.logger.Warn("Failed to set status LED", "error", err, "pattern", want.pattern)
		return
	}
	i.shown = &want
	i.logger.Debug("Status LED updated", "on", want.on, "pattern", want.pattern)
}
