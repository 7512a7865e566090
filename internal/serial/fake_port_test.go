package serial

import (
	"bytes"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	bugserial "go.bug.st/serial"
)

// fakePort is a scripted device. Reads deliver queued chunks and otherwise
// behave like a timed-out OS read (0, nil).
type fakePort struct {
	mu         sync.Mutex
	chunks     chan []byte
	readErr    error
	written    bytes.Buffer
	writeErr   error
	shortWrite bool
	timeout    time.Duration
	closed     bool
	closeCh    chan struct{}
}

func newFakePort() *fakePort {
	return &fakePort{
		chunks:  make(chan []byte, 64),
		timeout: 10 * time.Millisecond,
		closeCh: make(chan struct{}),
	}
}

func (f *fakePort) feed(s string) {
	f.chunks <- []byte(s)
}

func (f *fakePort) failReads(err error) {
	f.mu.Lock()
	f.readErr = err
	f.mu.Unlock()
}

func (f *fakePort) Read(p []byte) (int, error) {
	f.mu.Lock()
	timeout := f.timeout
	readErr := f.readErr
	f.mu.Unlock()

	select {
	case b := <-f.chunks:
		return copy(p, b), nil
	default:
	}
	if readErr != nil {
		return 0, readErr
	}

	select {
	case b := <-f.chunks:
		return copy(p, b), nil
	case <-f.closeCh:
		return 0, io.EOF
	case <-time.After(timeout):
		return 0, nil
	}
}

func (f *fakePort) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return 0, io.ErrClosedPipe
	}
	if f.writeErr != nil {
		return 0, f.writeErr
	}
	if f.shortWrite && len(p) > 1 {
		f.written.Write(p[:1])
		return 1, nil
	}
	f.written.Write(p)
	return len(p), nil
}

func (f *fakePort) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.closeCh)
	}
	return nil
}

func (f *fakePort) SetReadTimeout(t time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.timeout = t
	return nil
}

func (f *fakePort) Written() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.written.String()
}

func (f *fakePort) IsClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// useFakePort routes openPort to fp for the duration of the test and
// records the requested mode.
func useFakePort(t *testing.T, fp *fakePort) *bugserial.Mode {
	t.Helper()
	var got bugserial.Mode
	orig := openPort
	openPort = func(_ string, mode *bugserial.Mode) (Port, error) {
		got = *mode
		return fp, nil
	}
	t.Cleanup(func() { openPort = orig })
	return &got
}

var errUnplugged = errors.New("device unplugged")
