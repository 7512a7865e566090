package nats

import (
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/smazurov/serialbridge/internal/controller"
	"github.com/smazurov/serialbridge/internal/events"
	"github.com/smazurov/serialbridge/internal/serial"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func startServer(t *testing.T, port int) *Server {
	t.Helper()
	server := NewServer(ServerOptions{
		Port:   port,
		Name:   "test-server",
		Logger: testLogger(),
	})
	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	t.Cleanup(server.Stop)
	return server
}

func subscribe(t *testing.T, url, subject string) <-chan *nats.Msg {
	t.Helper()
	conn, err := nats.Connect(url)
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	t.Cleanup(conn.Close)

	ch := make(chan *nats.Msg, 16)
	if _, err := conn.ChanSubscribe(subject, ch); err != nil {
		t.Fatalf("Failed to subscribe: %v", err)
	}
	if err := conn.Flush(); err != nil {
		t.Fatalf("Failed to flush: %v", err)
	}
	return ch
}

func receive(t *testing.T, ch <-chan *nats.Msg) *nats.Msg {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("Timeout waiting for NATS message")
		return nil
	}
}

func TestServerStartStop(t *testing.T) {
	server := NewServer(ServerOptions{Port: 14222, Name: "test-server", Logger: testLogger()})

	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	if !server.IsRunning() {
		t.Error("Server should be running after Start()")
	}
	if url := server.ClientURL(); url == "" {
		t.Error("ClientURL should not be empty")
	}

	server.Stop()
	if server.IsRunning() {
		t.Error("Server should not be running after Stop()")
	}
	server.Stop()
}

func TestServerDefaults(t *testing.T) {
	server := NewServer(ServerOptions{})
	if got := server.ClientURL(); got != "nats://127.0.0.1:4222" {
		t.Errorf("Unexpected default URL %s", got)
	}
}

func TestPublisherGracefulDegradation(t *testing.T) {
	publisher := NewPublisher("nats://localhost:59999", testLogger())

	if err := publisher.Connect(); err == nil {
		t.Error("Connect should fail with non-existent server")
	}

	bus := events.New()
	publisher.Attach(bus)
	bus.Publish(events.LineReceivedEvent{Port: "/dev/ttyUSB0", Text: "A001"})
	publisher.PublishStatus(StatusMessage{Kind: StatusKindMode})

	if publisher.IsConnected() {
		t.Error("Publisher should not be connected")
	}
	publisher.Close()
}

func TestPublisherForwardsBusEvents(t *testing.T) {
	server := startServer(t, 14223)
	lines := subscribe(t, server.ClientURL(), SubjectLines)
	status := subscribe(t, server.ClientURL(), SubjectStatus)

	publisher := NewPublisher(server.ClientURL(), testLogger())
	if err := publisher.Connect(); err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	defer publisher.Close()

	bus := events.New()
	publisher.Attach(bus)

	for _, text := range []string{"A001", "B002", "C003"} {
		bus.Publish(events.LineReceivedEvent{Port: "/dev/ttyUSB0", Text: text, Timestamp: "2024-01-01T00:00:00Z"})
	}
	for _, want := range []string{"A001", "B002", "C003"} {
		m, err := UnmarshalLine(receive(t, lines).Data)
		if err != nil {
			t.Fatalf("Failed to decode line: %v", err)
		}
		if m.Data != want || m.Port != "/dev/ttyUSB0" {
			t.Errorf("Expected line %s, got %+v", want, m)
		}
	}

	bus.Publish(events.ModeChangedEvent{Port: "/dev/ttyUSB0", From: "idle", To: "reading"})
	m, err := UnmarshalStatus(receive(t, status).Data)
	if err != nil {
		t.Fatalf("Failed to decode status: %v", err)
	}
	if m.Kind != StatusKindMode || m.From != "idle" || m.To != "reading" {
		t.Errorf("Unexpected status %+v", m)
	}

	bus.Publish(events.StreamErrorEvent{Port: "/dev/ttyUSB0", Error: "IO_FAILURE: read failed"})
	m, err = UnmarshalStatus(receive(t, status).Data)
	if err != nil {
		t.Fatalf("Failed to decode status: %v", err)
	}
	if m.Kind != StatusKindStream || m.Reason != "error" || m.Error == "" {
		t.Errorf("Unexpected stream status %+v", m)
	}
}

// mockCommander records actions in order.
type mockCommander struct {
	mu      sync.Mutex
	actions []string
	mode    controller.Mode
	err     error
}

func (m *mockCommander) do(action string, mode controller.Mode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.actions = append(m.actions, action)
	if m.err != nil {
		return m.err
	}
	m.mode = mode
	return nil
}

func (m *mockCommander) StartRead() error  { return m.do("start_read", controller.ModeReading) }
func (m *mockCommander) StopRead() error   { return m.do("stop_read", controller.ModeIdle) }
func (m *mockCommander) StartWrite() error { return m.do("start_write", controller.ModeWriting) }
func (m *mockCommander) StopWrite() error  { return m.do("stop_write", controller.ModeIdle) }

func (m *mockCommander) SendValue(kind, value string) error {
	return m.do("send:"+kind+"="+value, controller.ModeWriting)
}

func (m *mockCommander) Mode() controller.Mode {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.mode == "" {
		return controller.ModeIdle
	}
	return m.mode
}

func request(t *testing.T, conn *nats.Conn, m ControlMessage) ControlReply {
	t.Helper()
	data, err := m.Marshal()
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	msg, err := conn.Request(SubjectControl, data, 2*time.Second)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	reply, err := UnmarshalControlReply(msg.Data)
	if err != nil {
		t.Fatalf("Failed to decode reply: %v", err)
	}
	return reply
}

func TestControlExecutesCommands(t *testing.T) {
	server := startServer(t, 14224)

	cmd := &mockCommander{}
	control := NewControl(server.ClientURL(), cmd, testLogger())
	if err := control.Start(); err != nil {
		t.Fatalf("Failed to start control: %v", err)
	}
	defer control.Stop()

	conn, err := nats.Connect(server.ClientURL())
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	defer conn.Close()

	reply := request(t, conn, ControlMessage{Action: ActionStartWrite})
	if !reply.OK || reply.Mode != "writing" {
		t.Errorf("Unexpected reply %+v", reply)
	}
	request(t, conn, ControlMessage{Action: ActionSend, Kind: "roll_no", Value: "12345"})
	request(t, conn, ControlMessage{Action: ActionStopWrite})

	want := []string{"start_write", "send:roll_no=12345", "stop_write"}
	cmd.mu.Lock()
	got := append([]string(nil), cmd.actions...)
	cmd.mu.Unlock()
	if len(got) != len(want) {
		t.Fatalf("Expected actions %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Action %d: expected %s, got %s", i, want[i], got[i])
		}
	}

	reply = request(t, conn, ControlMessage{Action: "explode"})
	if reply.OK || reply.Code != serial.ErrCodeInvalidValue {
		t.Errorf("Expected INVALID_VALUE for unknown action, got %+v", reply)
	}
}

func TestControlReportsErrorCodes(t *testing.T) {
	server := startServer(t, 14225)

	cmd := &mockCommander{err: serial.NewError(serial.ErrCodeInvalidTransition, "cannot start reading in mode writing", nil)}
	control := NewControl(server.ClientURL(), cmd, testLogger())
	if err := control.Start(); err != nil {
		t.Fatalf("Failed to start control: %v", err)
	}
	defer control.Stop()

	conn, err := nats.Connect(server.ClientURL())
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	defer conn.Close()

	reply := request(t, conn, ControlMessage{Action: ActionStartRead})
	if reply.OK || reply.Code != serial.ErrCodeInvalidTransition {
		t.Errorf("Expected INVALID_TRANSITION, got %+v", reply)
	}

	msg, err := conn.Request(SubjectControl, []byte("{not json"), 2*time.Second)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	reply, _ = UnmarshalControlReply(msg.Data)
	if reply.OK || reply.Code != serial.ErrCodeInvalidValue {
		t.Errorf("Expected INVALID_VALUE for malformed message, got %+v", reply)
	}
}

func TestErrorReplyWithoutCode(t *testing.T) {
	reply := errorReply(errors.New("boom"))
	if reply.OK || reply.Code != "" || reply.Error != "boom" {
		t.Errorf("Unexpected reply %+v", reply)
	}
}
