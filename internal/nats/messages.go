package nats

import (
	"encoding/json"
)

// Subjects.
const (
	SubjectPrefix  = "serialbridge"
	SubjectLines   = SubjectPrefix + ".lines"
	SubjectStatus  = SubjectPrefix + ".status"
	SubjectControl = SubjectPrefix + ".control"
)

// Status kinds.
const (
	StatusKindMode       = "mode"
	StatusKindConnection = "connection"
	StatusKindStream     = "stream"
)

// Control actions.
const (
	ActionStartRead  = "start_read"
	ActionStopRead   = "stop_read"
	ActionStartWrite = "start_write"
	ActionStopWrite  = "stop_write"
	ActionSend       = "send"
)

// LineMessage is one line read from the device.
type LineMessage struct {
	Port      string `json:"port"`
	Data      string `json:"data"`
	Timestamp string `json:"timestamp"`
}

// Marshal serializes the message to JSON.
func (m LineMessage) Marshal() ([]byte, error) {
	return json.Marshal(m)
}

// StatusMessage reports a mode, connection or stream change. Only the
// fields relevant to Kind are set.
type StatusMessage struct {
	Kind      string `json:"kind"`
	Port      string `json:"port"`
	From      string `json:"from,omitempty"`
	To        string `json:"to,omitempty"`
	Status    string `json:"status,omitempty"` // connected, disconnected
	BaudRate  int    `json:"baud_rate,omitempty"`
	Reason    string `json:"reason,omitempty"` // device, error
	Error     string `json:"error,omitempty"`
	Timestamp string `json:"timestamp"`
}

// Marshal serializes the message to JSON.
func (m StatusMessage) Marshal() ([]byte, error) {
	return json.Marshal(m)
}

// ControlMessage is a device command received on SubjectControl.
type ControlMessage struct {
	Action string `json:"action"`
	Kind   string `json:"kind,omitempty"`
	Value  string `json:"value,omitempty"`
}

// Marshal serializes the message to JSON.
func (m ControlMessage) Marshal() ([]byte, error) {
	return json.Marshal(m)
}

// ControlReply answers a ControlMessage.
type ControlReply struct {
	OK    bool   `json:"ok"`
	Mode  string `json:"mode,omitempty"`
	Code  string `json:"code,omitempty"`
	Error string `json:"error,omitempty"`
}

// Marshal serializes the message to JSON.
func (m ControlReply) Marshal() ([]byte, error) {
	return json.Marshal(m)
}

// UnmarshalLine deserializes a LineMessage from JSON.
func UnmarshalLine(data []byte) (LineMessage, error) {
	var m LineMessage
	err := json.Unmarshal(data, &m)
	return m, err
}

// UnmarshalStatus deserializes a StatusMessage from JSON.
func UnmarshalStatus(data []byte) (StatusMessage, error) {
	var m StatusMessage
	err := json.Unmarshal(data, &m)
	return m, err
}

// UnmarshalControl deserializes a ControlMessage from JSON.
func UnmarshalControl(data []byte) (ControlMessage, error) {
	var m ControlMessage
	err := json.Unmarshal(data, &m)
	return m, err
}

// UnmarshalControlReply deserializes a ControlReply from JSON.
func UnmarshalControlReply(data []byte) (ControlReply, error) {
	var m ControlReply
	err := json.Unmarshal(data, &m)
	return m, err
}
