package main

import (
	"errors"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/smazurov/serialbridge/cmd"
	"github.com/smazurov/serialbridge/internal/api"
	"github.com/smazurov/serialbridge/internal/config"
	"github.com/smazurov/serialbridge/internal/controller"
	"github.com/smazurov/serialbridge/internal/events"
	"github.com/smazurov/serialbridge/internal/led"
	"github.com/smazurov/serialbridge/internal/logging"
	"github.com/smazurov/serialbridge/internal/nats"
	"github.com/smazurov/serialbridge/internal/serial"
	"github.com/smazurov/serialbridge/internal/systemd"
)

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"config.toml"`

	// Server settings
	Port        string `help:"Address to listen on" short:"p" default:":8000" toml:"server.port" env:"SERVER_PORT"`
	CORSOrigins string `help:"Comma-separated allowed origins, * for any" default:"*" toml:"server.cors_origins" env:"SERVER_CORS_ORIGINS"`

	// Serial settings
	SerialPort         string `help:"Serial device to open at startup, or auto for the first USB device" default:"" toml:"serial.port" env:"SERIAL_PORT"`
	SerialBaud         int    `help:"Baud rate" default:"9600" toml:"serial.baud" env:"SERIAL_BAUD"`
	SerialPollInterval string `help:"Read loop poll interval (max 1s)" default:"200ms" toml:"serial.poll_interval" env:"SERIAL_POLL_INTERVAL"`
	SerialAutoConnect  bool   `help:"Open the serial port at startup" default:"true" toml:"serial.auto_connect" env:"SERIAL_AUTO_CONNECT"`

	// Auth settings, disabled when either is empty
	AuthUsername string `help:"Basic auth username" default:"" toml:"auth.username" env:"AUTH_USERNAME"`
	AuthPassword string `help:"Basic auth password" default:"" toml:"auth.password" env:"AUTH_PASSWORD"`

	// NATS settings
	NATSEnabled      bool   `help:"Publish lines and status to NATS" default:"false" toml:"nats.enabled" env:"NATS_ENABLED"`
	NATSURL          string `help:"NATS server URL" default:"nats://127.0.0.1:4222" toml:"nats.url" env:"NATS_URL"`
	NATSEmbedded     bool   `help:"Run an embedded NATS server" default:"false" toml:"nats.embedded" env:"NATS_EMBEDDED"`
	NATSEmbeddedPort int    `help:"Embedded NATS server port" default:"4222" toml:"nats.embedded_port" env:"NATS_EMBEDDED_PORT"`
	NATSControl      bool   `help:"Accept device commands on serialbridge.control" default:"false" toml:"nats.control" env:"NATS_CONTROL"`

	// Feature flags
	FeaturesLEDControl bool `help:"Show bridge state on the board status LED" default:"false" toml:"features.led_control" env:"FEATURES_LED_CONTROL"`

	// Logging settings
	LoggingLevel      string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat     string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingSerial     string `help:"Serial session logging level" default:"info" toml:"logging.serial" env:"LOGGING_SERIAL"`
	LoggingController string `help:"Mode controller logging level" default:"info" toml:"logging.controller" env:"LOGGING_CONTROLLER"`
	LoggingAPI        string `help:"API logging level" default:"info" toml:"logging.api" env:"LOGGING_API"`
	LoggingHTTP       string `help:"HTTP request logging level" default:"info" toml:"logging.http" env:"LOGGING_HTTP"`
	LoggingNATS       string `help:"NATS logging level" default:"info" toml:"logging.nats" env:"LOGGING_NATS"`
}

func main() {
	var cli humacli.CLI
	cli = humacli.New(func(hooks humacli.Hooks, opts *Options) {
		if loadErr := config.LoadConfig(opts, cli.Root()); loadErr != nil {
			slog.Warn("Failed to load config", "error", loadErr)
		}

		logging.Initialize(logging.Config{
			Level:  opts.LoggingLevel,
			Format: opts.LoggingFormat,
			Modules: map[string]string{
				"serial":     opts.LoggingSerial,
				"controller": opts.LoggingController,
				"api":        opts.LoggingAPI,
				"http":       opts.LoggingHTTP,
				"websocket":  opts.LoggingAPI,
				"nats":       opts.LoggingNATS,
			},
		})

		logger := logging.GetLogger("main")

		eventBus := events.New()
		logging.SetLogCallback(func(entry logging.LogEntry) {
			eventBus.Publish(events.LogEntryEvent{
				Seq:        entry.Seq,
				Timestamp:  entry.Timestamp.Format(time.RFC3339Nano),
				Level:      entry.Level,
				Module:     entry.Module,
				Message:    entry.Message,
				Attributes: entry.Attributes,
			})
		})

		pollInterval, err := time.ParseDuration(opts.SerialPollInterval)
		if err != nil {
			logger.Warn("Invalid poll interval, using default", "value", opts.SerialPollInterval, "error", err)
			pollInterval = controller.DefaultPollInterval
		}

		session := serial.NewSession()
		ctrl := controller.New(session, eventBus, controller.Options{PollInterval: pollInterval})

		notifier := systemd.NewNotifier(eventBus, logging.GetLogger("systemd"))

		var indicator *led.Indicator
		var ledController led.Controller
		if opts.FeaturesLEDControl {
			ledController = led.New(logging.GetLogger("led"))
			indicator = led.NewIndicator(ledController, eventBus, logging.GetLogger("led"))
		}

		server := api.NewServer(ctrl, eventBus, &api.Options{
			AuthUsername:      opts.AuthUsername,
			AuthPassword:      opts.AuthPassword,
			CORSOrigins:       splitList(opts.CORSOrigins),
			DefaultBaudRate:   opts.SerialBaud,
			PrometheusHandler: promhttp.Handler(),
			LEDController:     ledController,
		})

		var (
			natsServer    *nats.Server
			natsPublisher *nats.Publisher
			natsControl   *nats.Control
			watcher       *config.Watcher[logging.Config]
		)

		hooks.OnStart(func() {
			if opts.Config != "" {
				w, watchErr := config.WatchLogging(opts.Config)
				if watchErr != nil {
					logger.Warn("Config hot reload disabled", "error", watchErr)
				} else {
					watcher = w
				}
			}

			if indicator != nil {
				indicator.Start()
			}

			if opts.NATSEmbedded {
				natsServer = nats.NewServer(nats.ServerOptions{
					Port:   opts.NATSEmbeddedPort,
					Logger: logging.GetLogger("nats"),
				})
				if startErr := natsServer.Start(); startErr != nil {
					logger.Error("Failed to start embedded NATS server", "error", startErr)
					os.Exit(1)
				}
				opts.NATSURL = natsServer.ClientURL()
			}

			if opts.NATSEnabled || opts.NATSEmbedded {
				natsPublisher = nats.NewPublisher(opts.NATSURL, logging.GetLogger("nats"))
				// Failure is logged; the bridge runs without NATS.
				_ = natsPublisher.Connect()
				natsPublisher.Attach(eventBus)

				if opts.NATSControl {
					natsControl = nats.NewControl(opts.NATSURL, ctrl, logging.GetLogger("nats"))
					if startErr := natsControl.Start(); startErr != nil {
						logger.Warn("NATS control unavailable", "error", startErr)
						natsControl = nil
					}
				}
			}

			if opts.SerialAutoConnect && opts.SerialPort != "" {
				autoConnect(ctrl, opts.SerialPort, opts.SerialBaud, logger)
			}

			notifier.Start()

			logger.Info("Starting HTTP server", "port", opts.Port)
			if startErr := server.Start(opts.Port); startErr != nil && !errors.Is(startErr, http.ErrServerClosed) {
				logger.Error("Failed to start HTTP server", "error", startErr)
				os.Exit(1)
			}
		})

		hooks.OnStop(func() {
			logger.Info("Shutting down server")
			notifier.Stop()
			if stopErr := server.Stop(); stopErr != nil {
				logger.Error("Error stopping HTTP server", "error", stopErr)
			}

			// Stops the read loop before the port is released.
			if _, closeErr := ctrl.Disconnect(); closeErr != nil {
				logger.Warn("Error closing serial port", "error", closeErr)
			}

			if indicator != nil {
				indicator.Stop()
			}
			if natsControl != nil {
				natsControl.Stop()
			}
			if natsPublisher != nil {
				natsPublisher.Close()
			}
			if natsServer != nil {
				natsServer.Stop()
			}
			if watcher != nil {
				if stopErr := watcher.Stop(); stopErr != nil {
					logger.Warn("Error stopping config watcher", "error", stopErr)
				}
			}
		})
	})

	cli.Root().Use = "serialbridge"
	cli.Root().Short = "Bridge an RFID reader on a serial port to HTTP, websocket and NATS subscribers"

	cli.Root().AddCommand(cmd.CreatePortsCmd())
	cli.Root().AddCommand(cmd.CreateMonitorCmd())

	cli.Run()
}

// autoConnect opens the configured port. "auto" picks the first USB serial
// device. Failure leaves the bridge running disconnected.
func autoConnect(ctrl *controller.Controller, port string, baud int, logger *slog.Logger) {
	if port == "auto" {
		ports, err := serial.ListPorts()
		if err != nil {
			logger.Warn("Failed to list serial ports", "error", err)
			return
		}
		port = firstUSBPort(ports)
		if port == "" {
			logger.Warn("No USB serial device found for auto-connect")
			return
		}
	}

	if err := ctrl.Connect(serial.Options{PortName: port, BaudRate: baud}); err != nil {
		logger.Warn("Auto-connect failed, connect via the API", "port", port, "error", err)
	}
}

func firstUSBPort(ports []serial.PortInfo) string {
	for _, p := range ports {
		if p.IsUSB {
			return p.Name
		}
	}
	return ""
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
