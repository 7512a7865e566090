// Package nats exposes the serial bridge over NATS for subscribers outside
// the process.
//
// # Architecture
//
//   - Server: optional embedded NATS server (serialbridge with nats.embedded)
//   - Publisher: forwards event bus traffic to NATS subjects
//   - Control: answers device commands sent as NATS requests
//
// # Subject Hierarchy
//
//	serialbridge.lines     # lines read from the device (bridge → subscribers)
//	serialbridge.status    # mode, connection and stream changes
//	serialbridge.control   # device commands, request/reply
//
// Lines and status use fire-and-forget core NATS (no JetStream). The
// publisher degrades to a no-op when NATS is unreachable.
//
// # Debugging with nats CLI
//
// Watch cards as they are read:
//
//	nats sub "serialbridge.lines"
//
// Watch everything:
//
//	nats sub "serialbridge.>" -s nats://localhost:4222
//
// Put the reader in read mode:
//
//	nats req serialbridge.control '{"action":"start_read"}'
//
// Write a roll number to a card:
//
//	nats req serialbridge.control '{"action":"start_write"}'
//	nats req serialbridge.control '{"action":"send","kind":"roll_no","value":"12345"}'
//	nats req serialbridge.control '{"action":"stop_write"}'
//
// # Message Formats
//
// LineMessage (serialbridge.lines):
//
//	{
//	  "port": "/dev/ttyUSB0",
//	  "data": "A001",
//	  "timestamp": "2024-01-01T12:00:00Z"
//	}
//
// StatusMessage (serialbridge.status):
//
//	{
//	  "kind": "mode",
//	  "port": "/dev/ttyUSB0",
//	  "from": "idle",
//	  "to": "reading",
//	  "timestamp": "2024-01-01T12:00:00Z"
//	}
//
// ControlReply:
//
//	{
//	  "ok": false,
//	  "code": "INVALID_TRANSITION",
//	  "error": "INVALID_TRANSITION: cannot start reading in mode writing"
//	}
package nats
