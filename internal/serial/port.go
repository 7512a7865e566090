package serial

import (
	"errors"
	"io"
	"time"

	bugserial "go.bug.st/serial"
)

// Port is the subset of go.bug.st/serial.Port used by a Session.
type Port interface {
	io.ReadWriteCloser
	SetReadTimeout(t time.Duration) error
}

// openPort is a variable so tests can swap in a fake device.
var openPort = func(name string, mode *bugserial.Mode) (Port, error) {
	return bugserial.Open(name, mode)
}

// portErrorCode extracts the go.bug.st error code, which the library
// returns both by value and by pointer depending on platform.
func portErrorCode(err error) (bugserial.PortErrorCode, bool) {
	var pe *bugserial.PortError
	if errors.As(err, &pe) && pe != nil {
		return pe.Code(), true
	}
	var pv bugserial.PortError
	if errors.As(err, &pv) {
		return pv.Code(), true
	}
	return 0, false
}

// describeOpenError turns a library open failure into a short reason.
func describeOpenError(err error) string {
	code, ok := portErrorCode(err)
	if !ok {
		return "failed to open port"
	}
	switch code {
	case bugserial.PortBusy:
		return "port busy"
	case bugserial.PortNotFound:
		return "port not found"
	case bugserial.PermissionDenied:
		return "permission denied"
	case bugserial.InvalidSpeed:
		return "invalid baud rate"
	case bugserial.InvalidSerialPort:
		return "not a serial port"
	default:
		return "failed to open port"
	}
}

// isClosedError reports whether err means the handle was closed under us.
func isClosedError(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
		return true
	}
	code, ok := portErrorCode(err)
	return ok && code == bugserial.PortClosed
}
