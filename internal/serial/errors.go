package serial

import (
	"errors"
	"fmt"
)

// Error codes for serial and controller operations.
const (
	ErrCodePortUnavailable   = "PORT_UNAVAILABLE"
	ErrCodeNotConnected      = "NOT_CONNECTED"
	ErrCodeAlreadyConnected  = "ALREADY_CONNECTED"
	ErrCodeIOFailure         = "IO_FAILURE"
	ErrCodeInvalidTransition = "INVALID_TRANSITION"
	ErrCodeInvalidValue      = "INVALID_VALUE"
)

// Error is a serial-link error carrying one of the ErrCode constants.
type Error struct {
	Code    string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a coded error. Exported so the controller can raise
// transition errors in the same family.
func NewError(code, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code string) bool {
	return err != nil && CodeOf(err) == code
}

// ErrNotConnected is returned by operations that need an open session.
var ErrNotConnected = NewError(ErrCodeNotConnected, "serial not connected", nil)
