// Package led drives a board status LED from the bridge's connection and
// mode state, for headless single-board computers next to the reader.
package led

// Patterns accepted by Controller.Set.
const (
	PatternSolid     = "solid"
	PatternBlink     = "blink"
	PatternHeartbeat = "heartbeat"
)

// StatusLED is the logical LED the Indicator drives.
const StatusLED = "status"

// Controller abstracts LED hardware control across boards.
type Controller interface {
	// Set turns ledType on or off. A non-empty pattern also changes the
	// blink pattern; empty leaves it unchanged.
	Set(ledType string, enabled bool, pattern string) error

	// Available returns the LED types this board supports.
	Available() []string

	// Patterns returns the supported patterns.
	Patterns() []string
}
