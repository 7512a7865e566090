// Package controller implements the device mode state machine and the
// background loop that streams lines while the device is in read mode.
package controller

// Mode is the device mode as tracked by the controller.
type Mode string

const (
	ModeIdle    Mode = "idle"
	ModeReading Mode = "reading"
	ModeWriting Mode = "writing"
)

// ParseMode maps the request-surface names ("read", "write") and the
// mode names themselves to a Mode.
func ParseMode(s string) (Mode, bool) {
	switch s {
	case "read", string(ModeReading):
		return ModeReading, true
	case "write", string(ModeWriting):
		return ModeWriting, true
	case string(ModeIdle):
		return ModeIdle, true
	default:
		return "", false
	}
}
