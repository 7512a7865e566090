package api

import (
	"errors"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/serialbridge/internal/serial"
)

// mapSerialError converts serial and controller errors to HTTP errors.
func mapSerialError(err error) error {
	var serr *serial.Error
	if !errors.As(err, &serr) {
		return huma.Error500InternalServerError("Internal server error", err)
	}

	switch serr.Code {
	case serial.ErrCodeNotConnected:
		return huma.Error400BadRequest("Serial not connected")
	case serial.ErrCodeInvalidValue:
		return huma.Error400BadRequest(serr.Message)
	case serial.ErrCodeInvalidTransition:
		return huma.Error409Conflict(serr.Message)
	case serial.ErrCodeAlreadyConnected:
		return huma.Error409Conflict(serr.Message)
	case serial.ErrCodePortUnavailable:
		return huma.Error503ServiceUnavailable(serr.Message, err)
	case serial.ErrCodeIOFailure:
		return huma.Error502BadGateway(serr.Message, err)
	default:
		return huma.Error500InternalServerError(serr.Message, err)
	}
}
