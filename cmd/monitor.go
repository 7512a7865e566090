package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/smazurov/serialbridge/internal/controller"
	"github.com/smazurov/serialbridge/internal/events"
	"github.com/smazurov/serialbridge/internal/logging"
	"github.com/smazurov/serialbridge/internal/serial"
)

// CreateMonitorCmd creates the monitor command.
func CreateMonitorCmd() *cobra.Command {
	var baud int
	var poll time.Duration
	var logLevel string

	cmd := &cobra.Command{
		Use:   "monitor [port]",
		Short: "Print lines read from a device",
		Long: `Opens the port, puts the reader in read mode and prints every line until ` +
			`the device ends read mode or the command is interrupted.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logging.Initialize(logging.Config{Level: logLevel, Format: "text"})

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			session := serial.NewSession()
			return runMonitor(ctx, session, serial.Options{PortName: args[0], BaudRate: baud}, poll, cmd.OutOrStdout())
		},
	}

	cmd.Flags().IntVarP(&baud, "baud", "b", serial.DefaultBaudRate, "Baud rate")
	cmd.Flags().DurationVar(&poll, "poll", controller.DefaultPollInterval, "Read poll interval")
	cmd.Flags().StringVar(&logLevel, "log-level", "warn", "Logging level")
	return cmd
}

// stderr is swapped in tests.
var stderr io.Writer = os.Stderr

// runMonitor drives the controller until the device stops streaming, the
// stream fails or ctx is done.
func runMonitor(ctx context.Context, session controller.Session, opts serial.Options, poll time.Duration, out io.Writer) error {
	bus := events.New()
	ctrl := controller.New(session, bus, controller.Options{PollInterval: poll})

	lines := make(chan any, 64)
	unsubscribe := events.ForwardToChannel(bus, lines,
		events.TypeLineReceived,
		events.TypeStreamStopped,
		events.TypeStreamError,
	)
	defer unsubscribe()

	if err := ctrl.Connect(opts); err != nil {
		return err
	}
	defer func() {
		if _, err := ctrl.Disconnect(); err != nil {
			fmt.Fprintf(stderr, "close: %v\n", err)
		}
	}()

	if err := ctrl.StartRead(); err != nil {
		return err
	}
	fmt.Fprintf(stderr, "Reading from %s at %d baud, Ctrl-C to stop\n", opts.PortName, session.BaudRate())

	for {
		select {
		case <-ctx.Done():
			if err := ctrl.StopRead(); err != nil && !serial.IsCode(err, serial.ErrCodeInvalidTransition) {
				return err
			}
			return nil
		case ev := <-lines:
			switch e := ev.(type) {
			case events.LineReceivedEvent:
				if _, err := fmt.Fprintln(out, e.Text); err != nil {
					return err
				}
			case events.StreamStoppedEvent:
				fmt.Fprintln(stderr, "Device left read mode")
				return nil
			case events.StreamErrorEvent:
				return fmt.Errorf("stream failed: %s", e.Error)
			}
		}
	}
}
