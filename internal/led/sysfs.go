package led

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
)

var sysfsLEDPath = "/sys/class/leds"

// triggers maps patterns to kernel LED triggers.
var triggers = map[string]string{
	PatternSolid:     "none",
	PatternBlink:     "timer",
	PatternHeartbeat: "heartbeat",
}

// sysfs drives LEDs through /sys/class/leds.
type sysfs struct {
	leds map[string]string // LED type -> sysfs name
}

func newSysfs(leds map[string]string) *sysfs {
	return &sysfs{leds: leds}
}

func (s *sysfs) Set(ledType string, enabled bool, pattern string) error {
	name, ok := s.leds[ledType]
	if !ok {
		return fmt.Errorf("LED type %q not supported on this board", ledType)
	}

	ledPath := filepath.Join(sysfsLEDPath, name)
	if _, err := os.Stat(ledPath); err != nil {
		return fmt.Errorf("LED %q not found at %s: %w", ledType, ledPath, err)
	}

	trigger := "none"
	if enabled && pattern != "" {
		t, ok := triggers[pattern]
		if !ok {
			return fmt.Errorf("unknown LED pattern %q", pattern)
		}
		trigger = t
	}
	if pattern != "" || !enabled {
		if err := writeAttr(ledPath, "trigger", trigger); err != nil {
			return err
		}
	}

	// Blinking triggers own the brightness.
	if trigger != "none" {
		return nil
	}
	brightness := "0"
	if enabled {
		brightness = "1"
	}
	return writeAttr(ledPath, "brightness", brightness)
}

func writeAttr(ledPath, attr, value string) error {
	if err := os.WriteFile(filepath.Join(ledPath, attr), []byte(value), 0o644); err != nil {
		return fmt.Errorf("failed to set LED %s: %w", attr, err)
	}
	return nil
}

func (s *sysfs) Available() []string {
	types := make([]string, 0, len(s.leds))
	for ledType := range s.leds {
		types = append(types, ledType)
	}
	slices.Sort(types)
	return types
}

func (s *sysfs) Patterns() []string {
	return []string{PatternSolid, PatternBlink, PatternHeartbeat}
}
