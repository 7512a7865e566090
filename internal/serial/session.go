package serial

import (
	"bytes"
	"fmt"
	"strings"
	"sync"
	"time"

	bugserial "go.bug.st/serial"

	"github.com/smazurov/serialbridge/internal/logging"
)

const (
	// DefaultBaudRate matches the firmware on the reader board.
	DefaultBaudRate = 9600

	// DefaultReadTimeout bounds a single OS-level read.
	DefaultReadTimeout = 100 * time.Millisecond

	// maxFrameSize caps a newline-less frame; longer input is emitted as a line.
	maxFrameSize = 4096

	readChunkSize = 256
)

// CloseStatus reports the outcome of Disconnect.
type CloseStatus string

const (
	CloseStatusDisconnected  CloseStatus = "disconnected"
	CloseStatusAlreadyClosed CloseStatus = "already_closed"
)

// Options configures Connect.
type Options struct {
	PortName    string
	BaudRate    int
	ReadTimeout time.Duration
}

func (o *Options) applyDefaults() {
	if o.BaudRate <= 0 {
		o.BaudRate = DefaultBaudRate
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = DefaultReadTimeout
	}
}

// Session owns the connection to one serial device.
//
// State (handle, name, frame buffer) is guarded by mu. Device access is
// serialized by ioMu so a write never interleaves with a read in flight;
// a read holds ioMu for at most the timeout passed to ReadLine.
type Session struct {
	mu       sync.Mutex
	ioMu     sync.Mutex
	port     Port
	portName string
	baudRate int
	chunk    time.Duration
	buf      []byte
	logger   logging.Logger
}

// NewSession creates a closed session.
func NewSession() *Session {
	return &Session{
		logger: logging.GetLogger("serial"),
	}
}

// Connect opens the named device. It fails with ErrCodeAlreadyConnected if
// the session already holds an open handle.
func (s *Session) Connect(opts Options) error {
	if opts.PortName == "" {
		return NewError(ErrCodePortUnavailable, "port name is required", nil)
	}
	opts.applyDefaults()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.port != nil {
		return NewError(ErrCodeAlreadyConnected, fmt.Sprintf("already connected to %s", s.portName), nil)
	}

	mode := &bugserial.Mode{
		BaudRate: opts.BaudRate,
		DataBits: 8,
		Parity:   bugserial.NoParity,
		StopBits: bugserial.OneStopBit,
	}
	p, err := openPort(opts.PortName, mode)
	if err != nil {
		return NewError(ErrCodePortUnavailable, fmt.Sprintf("%s: %s", opts.PortName, describeOpenError(err)), err)
	}
	if err := p.SetReadTimeout(opts.ReadTimeout); err != nil {
		_ = p.Close()
		return NewError(ErrCodePortUnavailable, fmt.Sprintf("%s: failed to set read timeout", opts.PortName), err)
	}

	s.port = p
	s.portName = opts.PortName
	s.baudRate = opts.BaudRate
	s.chunk = opts.ReadTimeout
	s.buf = s.buf[:0]

	s.logger.Info("Serial port opened", "port", opts.PortName, "baud", opts.BaudRate)
	return nil
}

// Disconnect closes the handle. Closing an already closed session is not
// an error and reports CloseStatusAlreadyClosed.
func (s *Session) Disconnect() (CloseStatus, error) {
	s.mu.Lock()
	p := s.port
	name := s.portName
	s.port = nil
	s.buf = s.buf[:0]
	s.mu.Unlock()

	if p == nil {
		return CloseStatusAlreadyClosed, nil
	}

	if err := p.Close(); err != nil {
		s.logger.Warn("Error closing serial port", "port", name, "error", err)
		return CloseStatusDisconnected, NewError(ErrCodeIOFailure, "close failed", err)
	}
	s.logger.Info("Serial port closed", "port", name)
	return CloseStatusDisconnected, nil
}

// IsOpen reports whether the session holds an open handle.
func (s *Session) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port != nil
}

// PortName returns the name of the open device, or the last one opened.
func (s *Session) PortName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.portName
}

// BaudRate returns the configured rate of the current connection.
func (s *Session) BaudRate() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.baudRate
}

// WriteBytes writes b to the device in full.
func (s *Session) WriteBytes(b []byte) error {
	s.ioMu.Lock()
	defer s.ioMu.Unlock()

	p, err := s.current()
	if err != nil {
		return err
	}

	n, err := p.Write(b)
	if err != nil {
		s.fail(p, err)
		return NewError(ErrCodeIOFailure, "write failed", err)
	}
	if n != len(b) {
		s.fail(p, nil)
		return NewError(ErrCodeIOFailure, fmt.Sprintf("short write: %d of %d bytes", n, len(b)), nil)
	}
	s.logger.Debug("Wrote to serial port", "bytes", n)
	return nil
}

// WriteLine writes text followed by a single newline.
func (s *Session) WriteLine(text string) error {
	b := make([]byte, 0, len(text)+1)
	b = append(b, text...)
	b = append(b, '\n')
	return s.WriteBytes(b)
}

// LineAvailable reports, without blocking, whether a complete frame is
// already buffered.
func (s *Session) LineAvailable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port != nil && bytes.IndexByte(s.buf, '\n') >= 0
}

// ReadLine waits up to timeout for one newline-terminated frame and returns
// it decoded and trimmed. ok is false when no complete frame arrived in
// time; that is not an error. Partial frames are kept for the next call.
func (s *Session) ReadLine(timeout time.Duration) (string, bool, error) {
	s.ioMu.Lock()
	defer s.ioMu.Unlock()

	p, err := s.current()
	if err != nil {
		return "", false, err
	}

	if line, ok := s.takeFrame(); ok {
		return line, true, nil
	}

	deadline := time.Now().Add(timeout)
	chunk := make([]byte, readChunkSize)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return "", false, nil
		}
		wait := s.chunk
		if remaining < wait {
			wait = remaining
		}
		if err := p.SetReadTimeout(wait); err != nil {
			s.fail(p, err)
			return "", false, NewError(ErrCodeIOFailure, "set read timeout failed", err)
		}

		n, err := p.Read(chunk)
		if err != nil {
			if !s.owns(p) {
				return "", false, ErrNotConnected
			}
			s.fail(p, err)
			if isClosedError(err) {
				return "", false, NewError(ErrCodeIOFailure, "device disconnected", err)
			}
			return "", false, NewError(ErrCodeIOFailure, "read failed", err)
		}
		if n == 0 {
			continue
		}

		s.mu.Lock()
		s.buf = append(s.buf, chunk[:n]...)
		s.mu.Unlock()

		if line, ok := s.takeFrame(); ok {
			return line, true, nil
		}
	}
}

// takeFrame removes the first complete frame from the buffer.
func (s *Session) takeFrame() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := bytes.IndexByte(s.buf, '\n')
	if idx < 0 {
		if len(s.buf) < maxFrameSize {
			return "", false
		}
		idx = len(s.buf)
	}

	frame := string(s.buf[:idx])
	if idx < len(s.buf) {
		idx++
	}
	s.buf = append(s.buf[:0], s.buf[idx:]...)
	return decodeLine(frame), true
}

// decodeLine drops invalid UTF-8 and surrounding whitespace, including \r.
func decodeLine(frame string) string {
	return strings.TrimSpace(strings.ToValidUTF8(frame, ""))
}

func (s *Session) current() (Port, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.port == nil {
		return nil, ErrNotConnected
	}
	return s.port, nil
}

func (s *Session) owns(p Port) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port == p
}

// fail closes the session after an unrecoverable I/O error, unless the
// handle was already replaced or closed.
func (s *Session) fail(p Port, cause error) {
	s.mu.Lock()
	if s.port != p {
		s.mu.Unlock()
		return
	}
	s.port = nil
	s.buf = s.buf[:0]
	name := s.portName
	s.mu.Unlock()

	_ = p.Close()
	s.logger.Error("Serial I/O failure, session closed", "port", name, "error", cause)
}
