package controller

import (
	"context"

	"github.com/smazurov/serialbridge/internal/events"
	"github.com/smazurov/serialbridge/internal/metrics"
)

// readLoop pulls lines until cancelled, the device sends StopSentinel, or
// the session fails. It never holds mu across a read.
func (c *Controller) readLoop(ctx context.Context, task *readTask) {
	defer close(task.done)
	defer task.cancel()

	port := c.session.PortName()
	c.logger.Debug("Read loop started", "port", port, "poll", c.poll)

	for {
		if ctx.Err() != nil {
			c.logger.Debug("Read loop cancelled", "port", port)
			return
		}

		line, ok, err := c.session.ReadLine(c.poll)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.finish(task, metrics.StopReasonError)
			c.logger.Error("Read loop ended on I/O failure", "port", port, "error", err)
			c.bus.Publish(events.StreamErrorEvent{
				Port:      port,
				Error:     err.Error(),
				Timestamp: now(),
			})
			if !c.session.IsOpen() {
				c.markClosed(port)
			}
			return
		}
		if !ok || line == "" {
			continue
		}

		if line == StopSentinel {
			// An echo of our own stop byte after StopRead is not a device stop.
			if ctx.Err() != nil {
				return
			}
			c.finish(task, metrics.StopReasonDevice)
			c.logger.Info("Device ended read mode", "port", port)
			c.bus.Publish(events.StreamStoppedEvent{
				Port:      port,
				Reason:    metrics.StopReasonDevice,
				Timestamp: now(),
			})
			return
		}

		metrics.IncLinesReceived(port)
		c.bus.Publish(events.LineReceivedEvent{
			Port:      port,
			Text:      line,
			Timestamp: now(),
		})
	}
}

// finish clears the controller state for a loop that ended on its own.
// A loop already superseded by StopRead or Disconnect changes nothing.
func (c *Controller) finish(task *readTask, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.task != task {
		return
	}
	c.task = nil
	c.setModeLocked(ModeIdle)
	metrics.IncStreamStop(c.session.PortName(), reason)
}
