package nats

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/nats-io/nats.go"

	"github.com/smazurov/serialbridge/internal/controller"
	"github.com/smazurov/serialbridge/internal/logging"
	"github.com/smazurov/serialbridge/internal/serial"
	"github.com/smazurov/serialbridge/internal/version"
)

// Commander is the part of the controller reachable over NATS.
// *controller.Controller satisfies it.
type Commander interface {
	StartRead() error
	StopRead() error
	StartWrite() error
	StopWrite() error
	SendValue(kind, value string) error
	Mode() controller.Mode
}

// Control answers device commands published as requests on SubjectControl.
type Control struct {
	url    string
	cmd    Commander
	conn   *nats.Conn
	sub    *nats.Subscription
	logger *slog.Logger
	mu     sync.Mutex
}

// NewControl creates a control responder driving cmd.
func NewControl(url string, cmd Commander, logger *slog.Logger) *Control {
	if logger == nil {
		logger = logging.GetLogger("nats")
	}
	return &Control{
		url:    url,
		cmd:    cmd,
		logger: logger.With("component", "nats-control"),
	}
}

// Start connects and subscribes to SubjectControl.
func (c *Control) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	conn, err := nats.Connect(c.url,
		nats.Name(version.UserAgent()+" control"),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				c.logger.Warn("NATS control disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			c.logger.Info("NATS control reconnected")
		}),
	)
	if err != nil {
		return err
	}

	// Queue group so several bridges on one broker do not both drive a device.
	sub, err := conn.QueueSubscribe(SubjectControl, "serialbridge", c.handle)
	if err != nil {
		conn.Close()
		return err
	}

	c.conn = conn
	c.sub = sub
	c.logger.Info("NATS control listening", "subject", SubjectControl)
	return nil
}

func (c *Control) handle(msg *nats.Msg) {
	reply := c.execute(msg.Data)
	if msg.Reply == "" {
		return
	}
	data, err := reply.Marshal()
	if err != nil {
		c.logger.Warn("Failed to marshal control reply", "error", err)
		return
	}
	if err := msg.Respond(data); err != nil {
		c.logger.Warn("Failed to send control reply", "error", err)
	}
}

func (c *Control) execute(data []byte) ControlReply {
	m, err := UnmarshalControl(data)
	if err != nil {
		c.logger.Warn("Failed to unmarshal control message", "error", err)
		return errorReply(serial.NewError(serial.ErrCodeInvalidValue, "malformed control message", err))
	}

	c.logger.Info("Received control command", "action", m.Action)

	switch m.Action {
	case ActionStartRead:
		err = c.cmd.StartRead()
	case ActionStopRead:
		err = c.cmd.StopRead()
	case ActionStartWrite:
		err = c.cmd.StartWrite()
	case ActionStopWrite:
		err = c.cmd.StopWrite()
	case ActionSend:
		kind := m.Kind
		if kind == "" {
			kind = "value"
		}
		err = c.cmd.SendValue(kind, m.Value)
	default:
		err = serial.NewError(serial.ErrCodeInvalidValue, fmt.Sprintf("unknown action %q", m.Action), nil)
	}
	if err != nil {
		return errorReply(err)
	}
	return ControlReply{OK: true, Mode: string(c.cmd.Mode())}
}

func errorReply(err error) ControlReply {
	return ControlReply{Code: serial.CodeOf(err), Error: err.Error()}
}

// Stop unsubscribes and closes the connection.
func (c *Control) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sub != nil {
		_ = c.sub.Unsubscribe()
		c.sub = nil
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.logger.Info("NATS control stopped")
}
