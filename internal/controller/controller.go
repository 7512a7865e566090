package controller

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/smazurov/serialbridge/internal/events"
	"github.com/smazurov/serialbridge/internal/logging"
	"github.com/smazurov/serialbridge/internal/metrics"
	"github.com/smazurov/serialbridge/internal/serial"
)

// Device command bytes.
const (
	cmdStartRead  byte = '-'
	cmdStopRead   byte = '_'
	cmdStartWrite byte = ';'
	cmdStopWrite  byte = ':'
)

// StopSentinel is the line the device sends when it leaves read mode.
const StopSentinel = "_"

const (
	DefaultPollInterval = 200 * time.Millisecond
	MaxPollInterval     = time.Second
)

// Session is the serial link the controller drives. *serial.Session
// satisfies it.
type Session interface {
	Connect(opts serial.Options) error
	Disconnect() (serial.CloseStatus, error)
	IsOpen() bool
	PortName() string
	BaudRate() int
	WriteBytes(b []byte) error
	WriteLine(text string) error
	ReadLine(timeout time.Duration) (string, bool, error)
}

// Publisher receives controller events. *events.Bus satisfies it.
type Publisher interface {
	Publish(ev events.Event)
}

// Options configures a Controller.
type Options struct {
	// PollInterval bounds each blocking read in the read loop and so the
	// latency of StopRead and Disconnect. Clamped to (0, MaxPollInterval].
	PollInterval time.Duration
}

// Status is a snapshot of the controller and its session.
type Status struct {
	Port      string `json:"port" example:"/dev/ttyUSB0" doc:"Serial port name, empty if never connected"`
	Connected bool   `json:"connected" doc:"Whether the serial port is open"`
	BaudRate  int    `json:"baud_rate,omitempty" example:"9600" doc:"Baud rate of the open port"`
	Mode      Mode   `json:"mode" example:"idle" enum:"idle,reading,writing" doc:"Current device mode"`
}

type readTask struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Controller is the device mode state machine. It owns at most one read
// loop, which runs only while the mode is ModeReading.
//
// opMu serializes public operations. mu guards mode, task and linked and is
// never held across device I/O. linked is true between the connected and
// disconnected events, so each connection announces its end once.
type Controller struct {
	opMu sync.Mutex

	mu       sync.Mutex
	mode     Mode
	task     *readTask
	loopDone chan struct{}
	linked   bool

	session Session
	bus     Publisher
	poll    time.Duration
	logger  logging.Logger
}

// New creates an idle controller driving session and publishing to bus.
func New(session Session, bus Publisher, opts Options) *Controller {
	poll := opts.PollInterval
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	if poll > MaxPollInterval {
		poll = MaxPollInterval
	}
	return &Controller{
		mode:    ModeIdle,
		session: session,
		bus:     bus,
		poll:    poll,
		logger:  logging.GetLogger("controller"),
	}
}

// Mode returns the current mode.
func (c *Controller) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// Status returns a snapshot of mode and connection.
func (c *Controller) Status() Status {
	c.mu.Lock()
	mode := c.mode
	c.mu.Unlock()

	open := c.session.IsOpen()
	st := Status{
		Port:      c.session.PortName(),
		Connected: open,
		Mode:      mode,
	}
	if open {
		st.BaudRate = c.session.BaudRate()
	}
	return st
}

// Connect opens a port. An already open port is closed first: any read
// loop is stopped without notifying the device and the old handle is
// released before the new one is opened.
func (c *Controller) Connect(opts serial.Options) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if c.session.IsOpen() {
		c.logger.Info("Closing current port before reconnect", "port", c.session.PortName(), "new_port", opts.PortName)
		c.closeLocked()
	}
	c.waitLoop()
	c.markClosed(c.session.PortName())

	if err := c.session.Connect(opts); err != nil {
		c.logger.Warn("Failed to connect", "port", opts.PortName, "error", err)
		return err
	}

	c.mu.Lock()
	c.setModeLocked(ModeIdle)
	c.linked = true
	metrics.SetConnected(true)
	c.bus.Publish(events.ConnectionChangedEvent{
		Port:      opts.PortName,
		Status:    "connected",
		BaudRate:  c.session.BaudRate(),
		Timestamp: now(),
	})
	c.mu.Unlock()

	c.logger.Info("Connected", "port", opts.PortName, "baud", c.session.BaudRate())
	return nil
}

// Disconnect stops any read loop and closes the port. Disconnecting a
// closed session reports serial.CloseStatusAlreadyClosed.
func (c *Controller) Disconnect() (serial.CloseStatus, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	return c.closeLocked()
}

// closeLocked requires opMu.
func (c *Controller) closeLocked() (serial.CloseStatus, error) {
	c.stopLoop()

	port := c.session.PortName()
	status, err := c.session.Disconnect()

	c.mu.Lock()
	c.setModeLocked(ModeIdle)
	c.mu.Unlock()

	if c.markClosed(port) {
		c.logger.Info("Disconnected", "port", port)
	}
	return status, err
}

// markClosed announces the end of the current connection. It reports
// whether this call published the disconnected event.
func (c *Controller) markClosed(port string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.linked {
		return false
	}
	c.linked = false
	metrics.SetConnected(false)
	c.bus.Publish(events.ConnectionChangedEvent{
		Port:      port,
		Status:    "disconnected",
		Timestamp: now(),
	})
	return true
}

// StartRead puts the device in read mode and starts the read loop.
func (c *Controller) StartRead() error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if err := c.require(ModeIdle, "start reading"); err != nil {
		return err
	}
	c.waitLoop()

	if err := c.writeCommand(cmdStartRead); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	task := &readTask{cancel: cancel, done: make(chan struct{})}

	c.mu.Lock()
	c.task = task
	c.loopDone = task.done
	c.setModeLocked(ModeReading)
	c.mu.Unlock()

	go c.readLoop(ctx, task)
	return nil
}

// StopRead cancels the read loop, waits for it to exit and then tells the
// device to leave read mode. The mode is Idle afterwards even if the
// command byte could not be written.
func (c *Controller) StopRead() error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if !c.session.IsOpen() {
		return serial.ErrNotConnected
	}

	c.mu.Lock()
	task := c.task
	mode := c.mode
	c.mu.Unlock()
	if mode != ModeReading || task == nil {
		return invalidTransition("stop reading", mode)
	}

	task.cancel()
	<-task.done

	c.mu.Lock()
	if c.task == task {
		c.task = nil
		c.setModeLocked(ModeIdle)
		metrics.IncStreamStop(c.session.PortName(), metrics.StopReasonClient)
	}
	c.mu.Unlock()

	return c.writeCommand(cmdStopRead)
}

// StartWrite puts the device in write mode.
func (c *Controller) StartWrite() error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if err := c.require(ModeIdle, "start writing"); err != nil {
		return err
	}
	if err := c.writeCommand(cmdStartWrite); err != nil {
		return err
	}

	c.mu.Lock()
	c.setModeLocked(ModeWriting)
	c.mu.Unlock()
	return nil
}

// StopWrite tells the device to leave write mode.
func (c *Controller) StopWrite() error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if err := c.require(ModeWriting, "stop writing"); err != nil {
		return err
	}
	if err := c.writeCommand(cmdStopWrite); err != nil {
		return err
	}

	c.mu.Lock()
	c.setModeLocked(ModeIdle)
	c.mu.Unlock()
	return nil
}

// SendValue writes one value line while in write mode. kind names the
// value for logging only (roll number, book id).
func (c *Controller) SendValue(kind, value string) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if err := c.require(ModeWriting, "send value"); err != nil {
		return err
	}
	if strings.TrimSpace(value) == "" {
		return serial.NewError(serial.ErrCodeInvalidValue, "value must not be empty", nil)
	}
	if strings.ContainsAny(value, "\r\n") {
		return serial.NewError(serial.ErrCodeInvalidValue, "value must be a single line", nil)
	}

	if err := c.session.WriteLine(value); err != nil {
		c.afterWriteFailure()
		return err
	}
	metrics.AddBytesWritten(c.session.PortName(), len(value)+1)
	c.logger.Info("Value sent", "kind", kind, "value", value)
	return nil
}

// require checks the session is open and the mode matches.
func (c *Controller) require(want Mode, op string) error {
	if !c.session.IsOpen() {
		return serial.ErrNotConnected
	}
	c.mu.Lock()
	mode := c.mode
	c.mu.Unlock()
	if mode != want {
		return invalidTransition(op, mode)
	}
	return nil
}

func (c *Controller) writeCommand(b byte) error {
	if err := c.session.WriteBytes([]byte{b}); err != nil {
		c.logger.Warn("Failed to write mode command", "command", string(b), "error", err)
		c.afterWriteFailure()
		return err
	}
	metrics.AddBytesWritten(c.session.PortName(), 1)
	c.logger.Debug("Mode command written", "command", string(b))
	return nil
}

// afterWriteFailure drops back to Idle and announces the disconnect when
// the session closed itself. A running read loop notices the closed
// session and clears its own state.
func (c *Controller) afterWriteFailure() {
	if c.session.IsOpen() {
		return
	}
	c.mu.Lock()
	if c.task == nil {
		c.setModeLocked(ModeIdle)
	}
	c.mu.Unlock()
	c.markClosed(c.session.PortName())
}

// stopLoop cancels the read loop, if any, and waits for it. No stop byte
// is sent. Requires opMu.
func (c *Controller) stopLoop() {
	c.mu.Lock()
	task := c.task
	c.mu.Unlock()

	if task != nil {
		task.cancel()
		<-task.done

		c.mu.Lock()
		if c.task == task {
			c.task = nil
			c.setModeLocked(ModeIdle)
			metrics.IncStreamStop(c.session.PortName(), metrics.StopReasonClient)
		}
		c.mu.Unlock()
	}
	c.waitLoop()
}

// waitLoop blocks until the most recent read loop has exited. A loop that
// ended on its own clears its state before returning, so this wait is short.
func (c *Controller) waitLoop() {
	c.mu.Lock()
	done := c.loopDone
	c.mu.Unlock()
	if done != nil {
		<-done
	}
}

// setModeLocked requires mu.
func (c *Controller) setModeLocked(to Mode) {
	from := c.mode
	if from == to {
		return
	}
	c.mode = to
	metrics.IncModeTransition(string(from), string(to))
	c.bus.Publish(events.ModeChangedEvent{
		Port:      c.session.PortName(),
		From:      string(from),
		To:        string(to),
		Timestamp: now(),
	})
	c.logger.Info("Mode changed", "from", from, "to", to)
}

func invalidTransition(op string, mode Mode) error {
	return serial.NewError(serial.ErrCodeInvalidTransition, fmt.Sprintf("cannot %s in mode %s", op, mode), nil)
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}
