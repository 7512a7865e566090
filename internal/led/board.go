package led

import (
	"log/slog"
	"os"
	"strings"
)

var deviceTreeModelPath = "/proc/device-tree/model"

// boardLEDs maps a device-tree model substring to sysfs LED names.
var boardLEDs = []struct {
	model string
	leds  map[string]string
}{
	{"NanoPC-T6", map[string]string{StatusLED: "usr_led", "system": "sys_led"}},
	{"Orange Pi", map[string]string{StatusLED: "green_led", "blue": "blue_led"}},
	{"Raspberry Pi", map[string]string{StatusLED: "ACT"}},
}

// New returns a sysfs controller for a known board and a no-op controller
// otherwise.
func New(logger *slog.Logger) Controller {
	model := detectBoard()
	for _, b := range boardLEDs {
		if strings.Contains(model, b.model) {
			logger.Info("Using sysfs LED controller", "board_model", model)
			return newSysfs(b.leds)
		}
	}
	logger.Info("No LED support detected, using no-op controller", "board_model", model)
	return newNoop(logger)
}

// detectBoard reads the device tree model, which is NUL-terminated.
func detectBoard() string {
	data, err := os.ReadFile(deviceTreeModelPath)
	if err != nil {
		return "unknown"
	}
	return strings.TrimRight(string(data), "\x00")
}
