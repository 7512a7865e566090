// Package logging provides structured logging with per-module log levels.
//
// Loggers are *slog.Logger values tagged with a "module" attribute. Each
// record goes to stdout (text or JSON), to the systemd journal when journald
// is reachable, and to an in-memory ring buffer served by the HTTP API.
//
// Initialize once at startup, then ask for a logger per package:
//
//	logging.Initialize(logging.Config{
//		Level:  "info",
//		Format: "text",
//		Modules: map[string]string{
//			"serial":     "debug",
//			"controller": "info",
//		},
//	})
//
//	logger := logging.GetLogger("serial")
//	logger.Info("Serial port opened", "port", "/dev/ttyUSB0")
//
// Levels live in slog.LevelVar values, so SetLevels can change them while
// the process runs; the config watcher uses this to apply edits to the
// [logging] table without a restart.
//
// Journal entries use the identifier "serialbridge":
//
//	journalctl -t serialbridge -f
//	journalctl -t serialbridge MODULE=controller
//
// Example TOML configuration:
//
//	[logging]
//	level = "info"
//	format = "text"
//
//	[logging.modules]
//	serial = "debug"
//	api = "warn"
package logging
