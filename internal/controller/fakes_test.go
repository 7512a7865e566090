package controller

import (
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/smazurov/serialbridge/internal/events"
	"github.com/smazurov/serialbridge/internal/serial"
)

// fakeSession mimics serial.Session with scripted device lines.
type fakeSession struct {
	mu       sync.Mutex
	open     bool
	name     string
	baud     int
	writes   []string
	calls    []string
	readErr  error
	writeErr error
	lines    chan string
	echoStop bool // device echoes the stop byte back as a line

	activeReads atomic.Int32
	maxReads    atomic.Int32
}

func newFakeSession() *fakeSession {
	return &fakeSession{lines: make(chan string, 64)}
}

func (f *fakeSession) Connect(opts serial.Options) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.open {
		return serial.NewError(serial.ErrCodeAlreadyConnected, "already connected", nil)
	}
	if strings.Contains(opts.PortName, "missing") {
		return serial.NewError(serial.ErrCodePortUnavailable, "port not found", nil)
	}
	f.open = true
	f.name = opts.PortName
	f.baud = opts.BaudRate
	if f.baud == 0 {
		f.baud = serial.DefaultBaudRate
	}
	f.calls = append(f.calls, "connect:"+opts.PortName)
	return nil
}

func (f *fakeSession) Disconnect() (serial.CloseStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.open {
		return serial.CloseStatusAlreadyClosed, nil
	}
	f.open = false
	f.calls = append(f.calls, "disconnect:"+f.name)
	return serial.CloseStatusDisconnected, nil
}

func (f *fakeSession) IsOpen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open
}

func (f *fakeSession) PortName() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.name
}

func (f *fakeSession) BaudRate() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.baud
}

func (f *fakeSession) WriteBytes(b []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.open {
		return serial.ErrNotConnected
	}
	if f.writeErr != nil {
		f.open = false
		return serial.NewError(serial.ErrCodeIOFailure, "write failed", f.writeErr)
	}
	f.writes = append(f.writes, string(b))
	if f.echoStop && string(b) == "_" {
		f.lines <- "_"
	}
	return nil
}

func (f *fakeSession) WriteLine(text string) error {
	return f.WriteBytes([]byte(text + "\n"))
}

func (f *fakeSession) ReadLine(timeout time.Duration) (string, bool, error) {
	n := f.activeReads.Add(1)
	defer f.activeReads.Add(-1)
	for {
		m := f.maxReads.Load()
		if n <= m || f.maxReads.CompareAndSwap(m, n) {
			break
		}
	}

	f.mu.Lock()
	open := f.open
	readErr := f.readErr
	if readErr != nil {
		f.open = false
	}
	f.mu.Unlock()

	if !open {
		return "", false, serial.ErrNotConnected
	}
	if readErr != nil {
		return "", false, serial.NewError(serial.ErrCodeIOFailure, "read failed", readErr)
	}

	select {
	case line := <-f.lines:
		return line, true, nil
	case <-time.After(timeout):
		return "", false, nil
	}
}

func (f *fakeSession) feed(lines ...string) {
	for _, l := range lines {
		f.lines <- l
	}
}

func (f *fakeSession) failReads(err error) {
	f.mu.Lock()
	f.readErr = err
	f.mu.Unlock()
}

func (f *fakeSession) failWrites(err error) {
	f.mu.Lock()
	f.writeErr = err
	f.mu.Unlock()
}

func (f *fakeSession) Writes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.writes...)
}

func (f *fakeSession) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// recorder collects published events in order.
type recorder struct {
	mu     sync.Mutex
	events []events.Event
	notify chan struct{}
}

func newRecorder() *recorder {
	return &recorder{notify: make(chan struct{}, 256)}
}

func (r *recorder) Publish(ev events.Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
	select {
	case r.notify <- struct{}{}:
	default:
	}
}

func (r *recorder) Events() []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.Event(nil), r.events...)
}

func (r *recorder) Lines() []string {
	var out []string
	for _, ev := range r.Events() {
		if l, ok := ev.(events.LineReceivedEvent); ok {
			out = append(out, l.Text)
		}
	}
	return out
}

// waitFor polls until cond holds or the timeout expires.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func hasEvent[T events.Event](r *recorder) bool {
	return countEvents[T](r) > 0
}

func countEvents[T events.Event](r *recorder) int {
	n := 0
	for _, ev := range r.Events() {
		if _, ok := ev.(T); ok {
			n++
		}
	}
	return n
}

// connectionStatuses lists ConnectionChanged events as "status:port".
func (r *recorder) connectionStatuses() []string {
	var out []string
	for _, ev := range r.Events() {
		if cc, ok := ev.(events.ConnectionChangedEvent); ok {
			out = append(out, cc.Status+":"+cc.Port)
		}
	}
	return out
}
