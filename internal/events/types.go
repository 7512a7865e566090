package events

// Event type constants for kelindar/event.
const (
	TypeLineReceived uint32 = iota + 1
	TypeStreamStopped
	TypeStreamError
	TypeModeChanged
	TypeConnectionChanged
	TypeLogEntry
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// LineReceivedEvent carries one line read from the device while in read mode.
type LineReceivedEvent struct {
	Port      string `json:"port" example:"/dev/ttyUSB0" doc:"Serial port the line came from"`
	Text      string `json:"data" example:"A001" doc:"Decoded line without the trailing newline"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Time the line was read"`
}

// Type returns the event type identifier for LineReceivedEvent.
func (e LineReceivedEvent) Type() uint32 { return TypeLineReceived }

// StreamStoppedEvent is published when the device ends read mode itself.
type StreamStoppedEvent struct {
	Port      string `json:"port" example:"/dev/ttyUSB0" doc:"Serial port"`
	Reason    string `json:"reason" example:"device" doc:"Why the stream stopped"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for StreamStoppedEvent.
func (e StreamStoppedEvent) Type() uint32 { return TypeStreamStopped }

// StreamErrorEvent is published when the read loop ends on an I/O failure.
type StreamErrorEvent struct {
	Port      string `json:"port" example:"/dev/ttyUSB0" doc:"Serial port"`
	Error     string `json:"error" example:"IO_FAILURE: device disconnected: EOF" doc:"Failure description"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for StreamErrorEvent.
func (e StreamErrorEvent) Type() uint32 { return TypeStreamError }

// ModeChangedEvent is published on every controller mode transition.
type ModeChangedEvent struct {
	Port      string `json:"port" example:"/dev/ttyUSB0" doc:"Serial port"`
	From      string `json:"from" example:"idle" doc:"Previous mode"`
	To        string `json:"to" example:"reading" doc:"New mode"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for ModeChangedEvent.
func (e ModeChangedEvent) Type() uint32 { return TypeModeChanged }

// ConnectionChangedEvent is published when the serial port opens or closes.
type ConnectionChangedEvent struct {
	Port      string `json:"port" example:"/dev/ttyUSB0" doc:"Serial port"`
	Status    string `json:"status" example:"connected" enum:"connected,disconnected" doc:"Connection status"`
	BaudRate  int    `json:"baud_rate,omitempty" example:"9600" doc:"Baud rate when connected"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for ConnectionChangedEvent.
func (e ConnectionChangedEvent) Type() uint32 { return TypeConnectionChanged }

// LogEntryEvent represents a log entry for SSE streaming.
type LogEntryEvent struct {
	Seq        uint64         `json:"seq" example:"42" doc:"Monotonic sequence number for deduplication"`
	Timestamp  string         `json:"timestamp" example:"2025-01-09T10:30:00.123Z" doc:"Log timestamp"`
	Level      string         `json:"level" example:"info" doc:"Log level"`
	Module     string         `json:"module" example:"controller" doc:"Source module"`
	Message    string         `json:"message" doc:"Log message"`
	Attributes map[string]any `json:"attributes,omitempty" doc:"Structured log attributes"`
}

// Type returns the event type identifier for LogEntryEvent.
func (e LogEntryEvent) Type() uint32 { return TypeLogEntry }
