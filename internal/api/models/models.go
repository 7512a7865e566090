// Package models holds the request and response bodies of the HTTP API.
package models

import (
	"github.com/smazurov/serialbridge/internal/logging"
	"github.com/smazurov/serialbridge/internal/metrics"
	"github.com/smazurov/serialbridge/internal/serial"
)

// Health check models
type HealthData struct {
	Status  string `json:"status" example:"ok" doc:"Service status"`
	Message string `json:"message" example:"API is healthy" doc:"Status message"`
}

type HealthResponse struct {
	Body HealthData
}

// Version models
type VersionData struct {
	Version   string `json:"version" example:"dev" doc:"Application version"`
	GitCommit string `json:"git_commit" example:"abc1234" doc:"Git commit SHA"`
	BuildDate string `json:"build_date" example:"2024-12-15 14:30" doc:"Build timestamp"`
	GoVersion string `json:"go_version" example:"go1.24.0" doc:"Go compiler version"`
	Platform  string `json:"platform" example:"linux/amd64" doc:"Platform"`
}

type VersionResponse struct {
	Body VersionData
}

// Port listing models
type PortsData struct {
	Ports   []string          `json:"ports" doc:"Serial device names"`
	Details []serial.PortInfo `json:"details" doc:"Device details where the platform reports them"`
}

type PortsResponse struct {
	Body PortsData
}

// Connection models
type ConnectRequest struct {
	Body struct {
		Port string `json:"port,omitempty" example:"/dev/ttyUSB0" doc:"Serial device to open"`
		Baud int    `json:"baud,omitempty" example:"9600" minimum:"0" doc:"Baud rate, defaults to the configured rate"`
	}
}

// ActionData is the common shape of command responses.
type ActionData struct {
	Status  string `json:"status" example:"connected" doc:"Resulting status"`
	Message string `json:"message,omitempty" example:"Connected to /dev/ttyUSB0" doc:"Human-readable outcome"`
	Mode    string `json:"mode,omitempty" example:"reading" doc:"Controller mode after the command"`
}

type ActionResponse struct {
	Body ActionData
}

// Mode models
type ModeRequest struct {
	Body struct {
		Mode string `json:"mode,omitempty" example:"read" doc:"Mode to enter: read or write"`
	}
}

// Value models
type SendValueRequest struct {
	Body struct {
		Kind  string `json:"kind,omitempty" example:"roll_no" doc:"What the value is, for logging"`
		Value string `json:"value,omitempty" example:"12345" doc:"Value written to the device as one line"`
	}
}

type WriteStudentRequest struct {
	Body struct {
		RollNo string `json:"roll_no,omitempty" example:"12345" doc:"Student roll number"`
	}
}

type WriteBookRequest struct {
	Body struct {
		BookID string `json:"book_id,omitempty" example:"B-0042" doc:"Book identifier"`
	}
}

// Status models
type StatusData struct {
	Port      string         `json:"port" example:"/dev/ttyUSB0" doc:"Serial port name"`
	Connected bool           `json:"connected" doc:"Whether the port is open"`
	BaudRate  int            `json:"baud_rate,omitempty" example:"9600" doc:"Baud rate of the open port"`
	Mode      string         `json:"mode" example:"idle" enum:"idle,reading,writing" doc:"Current device mode"`
	Totals    metrics.Totals `json:"totals" doc:"Counters since start"`
}

type StatusResponse struct {
	Body StatusData
}

// Log models
type LogsRequest struct {
	Since uint64 `query:"since" doc:"Only return entries with a larger sequence number"`
}

type LogsData struct {
	Entries []logging.LogEntry `json:"entries" doc:"Buffered log entries, oldest first"`
}

type LogsResponse struct {
	Body LogsData
}
