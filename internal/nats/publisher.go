package nats

import (
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/smazurov/serialbridge/internal/events"
	"github.com/smazurov/serialbridge/internal/logging"
	"github.com/smazurov/serialbridge/internal/version"
)

const reconnectWait = 2 * time.Second

// Publisher forwards bus events to NATS. It degrades to a no-op when NATS
// is unreachable and resumes after nats.go reconnects.
type Publisher struct {
	url       string
	conn      *nats.Conn
	unsubs    []func()
	logger    *slog.Logger
	mu        sync.RWMutex
	connected bool
}

// NewPublisher creates an unconnected publisher for url.
func NewPublisher(url string, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = logging.GetLogger("nats")
	}
	return &Publisher{
		url:    url,
		logger: logger.With("component", "nats-publisher"),
	}
}

// Connect dials NATS. On failure the publisher stays usable and drops
// messages.
func (p *Publisher) Connect() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	conn, err := nats.Connect(p.url,
		nats.Name(version.UserAgent()+" publisher"),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			p.setConnected(false)
			if err != nil {
				p.logger.Warn("NATS disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			p.setConnected(true)
			p.logger.Info("NATS reconnected")
		}),
	)
	if err != nil {
		p.logger.Warn("Failed to connect to NATS, publishing disabled", "url", p.url, "error", err)
		return err
	}

	p.conn = conn
	p.connected = true
	p.logger.Info("Connected to NATS", "url", p.url)
	return nil
}

func (p *Publisher) setConnected(v bool) {
	p.mu.Lock()
	p.connected = v
	p.mu.Unlock()
}

// Attach subscribes the publisher to the serial events on bus. Lines go to
// SubjectLines; mode, connection and stream changes to SubjectStatus.
func (p *Publisher) Attach(bus *events.Bus) {
	unsub := bus.SubscribeSerial(p.forward)

	p.mu.Lock()
	p.unsubs = append(p.unsubs, unsub)
	p.mu.Unlock()
}

func (p *Publisher) forward(ev events.Event) {
	switch e := ev.(type) {
	case events.LineReceivedEvent:
		p.PublishLine(LineMessage{Port: e.Port, Data: e.Text, Timestamp: e.Timestamp})
	case events.ModeChangedEvent:
		p.PublishStatus(StatusMessage{Kind: StatusKindMode, Port: e.Port, From: e.From, To: e.To, Timestamp: e.Timestamp})
	case events.ConnectionChangedEvent:
		p.PublishStatus(StatusMessage{Kind: StatusKindConnection, Port: e.Port, Status: e.Status, BaudRate: e.BaudRate, Timestamp: e.Timestamp})
	case events.StreamStoppedEvent:
		p.PublishStatus(StatusMessage{Kind: StatusKindStream, Port: e.Port, Reason: e.Reason, Timestamp: e.Timestamp})
	case events.StreamErrorEvent:
		p.PublishStatus(StatusMessage{Kind: StatusKindStream, Port: e.Port, Reason: "error", Error: e.Error, Timestamp: e.Timestamp})
	}
}

// PublishLine publishes a line. No-op if not connected.
func (p *Publisher) PublishLine(m LineMessage) {
	data, err := m.Marshal()
	if err != nil {
		p.logger.Warn("Failed to marshal line", "error", err)
		return
	}
	p.publish(SubjectLines, data)
}

// PublishStatus publishes a status change. No-op if not connected.
func (p *Publisher) PublishStatus(m StatusMessage) {
	data, err := m.Marshal()
	if err != nil {
		p.logger.Warn("Failed to marshal status", "error", err)
		return
	}
	p.publish(SubjectStatus, data)
}

func (p *Publisher) publish(subject string, data []byte) {
	p.mu.RLock()
	conn := p.conn
	connected := p.connected
	p.mu.RUnlock()

	if conn == nil || !connected {
		return
	}
	if err := conn.Publish(subject, data); err != nil {
		p.logger.Warn("Failed to publish", "subject", subject, "error", err)
	}
}

// IsConnected returns true if connected to NATS.
func (p *Publisher) IsConnected() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.connected && p.conn != nil
}

// Close detaches from the bus, flushes pending messages and closes the
// connection.
func (p *Publisher) Close() {
	p.mu.Lock()
	unsubs := p.unsubs
	p.unsubs = nil
	conn := p.conn
	p.conn = nil
	p.connected = false
	p.mu.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}
	if conn != nil {
		if err := conn.Drain(); err != nil {
			conn.Close()
		}
	}
	p.logger.Debug("NATS publisher closed")
}
