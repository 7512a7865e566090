// Package metrics provides Prometheus metrics for the serial bridge.
package metrics

import (
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	linesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "serialbridge",
		Subsystem: "serial",
		Name:      "lines_received_total",
		Help:      "Lines read from the device and published",
	}, []string{"port"})

	bytesWritten = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "serialbridge",
		Subsystem: "serial",
		Name:      "bytes_written_total",
		Help:      "Bytes written to the device",
	}, []string{"port"})

	streamStops = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "serialbridge",
		Subsystem: "serial",
		Name:      "stream_stops_total",
		Help:      "Read loop terminations by reason",
	}, []string{"port", "reason"})

	modeTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "serialbridge",
		Subsystem: "controller",
		Name:      "mode_transitions_total",
		Help:      "Controller mode transitions",
	}, []string{"from", "to"})

	connected = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "serialbridge",
		Subsystem: "serial",
		Name:      "connected",
		Help:      "1 when a serial port is open",
	})

	connectedNow atomic.Bool

	// Local totals for the status endpoint.
	totals   Totals
	totalsMu sync.RWMutex
)

// Totals holds process-wide counters since start.
type Totals struct {
	LinesReceived uint64 `json:"lines_received" doc:"Lines published since start"`
	BytesWritten  uint64 `json:"bytes_written" doc:"Bytes written since start"`
	StreamErrors  uint64 `json:"stream_errors" doc:"Read loops ended by I/O failure"`
}

// Stop reasons.
const (
	StopReasonDevice = "device"
	StopReasonClient = "client"
	StopReasonError  = "error"
)

// IncLinesReceived counts one published line.
func IncLinesReceived(port string) {
	linesReceived.WithLabelValues(port).Inc()
	totalsMu.Lock()
	totals.LinesReceived++
	totalsMu.Unlock()
}

// AddBytesWritten counts bytes sent to the device.
func AddBytesWritten(port string, n int) {
	bytesWritten.WithLabelValues(port).Add(float64(n))
	totalsMu.Lock()
	totals.BytesWritten += uint64(n)
	totalsMu.Unlock()
}

// IncStreamStop records why a read loop ended.
func IncStreamStop(port, reason string) {
	streamStops.WithLabelValues(port, reason).Inc()
	if reason == StopReasonError {
		totalsMu.Lock()
		totals.StreamErrors++
		totalsMu.Unlock()
	}
}

// IncModeTransition records a controller transition.
func IncModeTransition(from, to string) {
	modeTransitions.WithLabelValues(from, to).Inc()
}

// SetConnected sets the connection gauge.
func SetConnected(open bool) {
	connectedNow.Store(open)
	if open {
		connected.Set(1)
		return
	}
	connected.Set(0)
}

// Connected reports the last value given to SetConnected.
func Connected() bool {
	return connectedNow.Load()
}

// GetTotals returns a copy of the running totals.
func GetTotals() Totals {
	totalsMu.RLock()
	defer totalsMu.RUnlock()
	return totals
}
