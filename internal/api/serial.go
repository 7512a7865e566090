package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/serialbridge/internal/api/models"
	"github.com/smazurov/serialbridge/internal/controller"
	"github.com/smazurov/serialbridge/internal/metrics"
	"github.com/smazurov/serialbridge/internal/serial"
)

// registerSerialRoutes registers port, connection and mode endpoints.
func (s *Server) registerSerialRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-ports",
		Method:      http.MethodGet,
		Path:        "/api/ports",
		Summary:     "List Ports",
		Description: "List serial devices present on the host",
		Tags:        []string{"serial"},
		Security:    withAuth(),
		Errors:      []int{401, 500},
	}, func(_ context.Context, _ *struct{}) (*models.PortsResponse, error) {
		ports, err := s.options.ListPorts()
		if err != nil {
			s.logger.Error("Failed to list serial ports", "error", err)
			return nil, huma.Error500InternalServerError("Failed to list serial ports", err)
		}
		if ports == nil {
			ports = []serial.PortInfo{}
		}
		return &models.PortsResponse{
			Body: models.PortsData{
				Ports:   serial.PortNames(ports),
				Details: ports,
			},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "connect",
		Method:      http.MethodPost,
		Path:        "/api/connect",
		Summary:     "Connect",
		Description: "Open a serial port. An open port is closed first.",
		Tags:        []string{"serial"},
		Security:    withAuth(),
		Errors:      []int{400, 401, 503},
	}, func(_ context.Context, input *models.ConnectRequest) (*models.ActionResponse, error) {
		port := strings.TrimSpace(input.Body.Port)
		if port == "" {
			return nil, huma.Error400BadRequest("Port is required")
		}
		baud := input.Body.Baud
		if baud <= 0 {
			baud = s.options.DefaultBaudRate
		}

		if err := s.ctrl.Connect(serial.Options{PortName: port, BaudRate: baud}); err != nil {
			return nil, mapSerialError(err)
		}
		return s.action("connected", fmt.Sprintf("Connected to %s", port)), nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "disconnect",
		Method:      http.MethodPost,
		Path:        "/api/disconnect",
		Summary:     "Disconnect",
		Description: "Stop any read loop and close the serial port",
		Tags:        []string{"serial"},
		Security:    withAuth(),
		Errors:      []int{401, 502},
	}, func(_ context.Context, _ *struct{}) (*models.ActionResponse, error) {
		port := s.ctrl.Status().Port
		status, err := s.ctrl.Disconnect()
		if err != nil {
			return nil, mapSerialError(err)
		}
		if status == serial.CloseStatusAlreadyClosed {
			return s.action("idle", "No active connection"), nil
		}
		return s.action("disconnected", fmt.Sprintf("Disconnected from %s", port)), nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "set-mode",
		Method:      http.MethodPost,
		Path:        "/api/mode",
		Summary:     "Set Mode",
		Description: "Put the device in read or write mode. Read mode starts streaming lines to subscribers.",
		Tags:        []string{"serial"},
		Security:    withAuth(),
		Errors:      []int{400, 401, 409, 502},
	}, func(_ context.Context, input *models.ModeRequest) (*models.ActionResponse, error) {
		mode, ok := controller.ParseMode(input.Body.Mode)
		if !ok || mode == controller.ModeIdle {
			return nil, huma.Error400BadRequest("Invalid mode")
		}

		var err error
		if mode == controller.ModeReading {
			err = s.ctrl.StartRead()
		} else {
			err = s.ctrl.StartWrite()
		}
		if err != nil {
			return nil, mapSerialError(err)
		}
		return s.action(string(mode), fmt.Sprintf("Mode set to %s", mode)), nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "stop-read",
		Method:      http.MethodPost,
		Path:        "/api/stop_read",
		Summary:     "Stop Read",
		Description: "Leave read mode and stop the read loop",
		Tags:        []string{"serial"},
		Security:    withAuth(),
		Errors:      []int{400, 401, 409, 502},
	}, func(_ context.Context, _ *struct{}) (*models.ActionResponse, error) {
		if err := s.ctrl.StopRead(); err != nil {
			return nil, mapSerialError(err)
		}
		return s.action("stopped", "Read mode stopped"), nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "stop-write",
		Method:      http.MethodPost,
		Path:        "/api/stop_write",
		Summary:     "Stop Write",
		Description: "Leave write mode",
		Tags:        []string{"serial"},
		Security:    withAuth(),
		Errors:      []int{400, 401, 409, 502},
	}, func(_ context.Context, _ *struct{}) (*models.ActionResponse, error) {
		if err := s.ctrl.StopWrite(); err != nil {
			return nil, mapSerialError(err)
		}
		return s.action("stopped", "Write mode stopped"), nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "send-value",
		Method:      http.MethodPost,
		Path:        "/api/send",
		Summary:     "Send Value",
		Description: "Write one value line to the device while in write mode",
		Tags:        []string{"serial"},
		Security:    withAuth(),
		Errors:      []int{400, 401, 409, 502},
	}, func(_ context.Context, input *models.SendValueRequest) (*models.ActionResponse, error) {
		kind := input.Body.Kind
		if kind == "" {
			kind = "value"
		}
		return s.sendValue(kind, input.Body.Value, "Value")
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "write-student",
		Method:      http.MethodPost,
		Path:        "/api/write_student",
		Summary:     "Write Student",
		Description: "Write a student roll number to the card on the reader",
		Tags:        []string{"serial"},
		Security:    withAuth(),
		Errors:      []int{400, 401, 409, 502},
	}, func(_ context.Context, input *models.WriteStudentRequest) (*models.ActionResponse, error) {
		if strings.TrimSpace(input.Body.RollNo) == "" {
			return nil, huma.Error400BadRequest("roll_no is required")
		}
		return s.sendValue("roll_no", input.Body.RollNo, "Roll number")
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "write-book",
		Method:      http.MethodPost,
		Path:        "/api/write_book",
		Summary:     "Write Book",
		Description: "Write a book id to the card on the reader",
		Tags:        []string{"serial"},
		Security:    withAuth(),
		Errors:      []int{400, 401, 409, 502},
	}, func(_ context.Context, input *models.WriteBookRequest) (*models.ActionResponse, error) {
		if strings.TrimSpace(input.Body.BookID) == "" {
			return nil, huma.Error400BadRequest("book_id is required")
		}
		return s.sendValue("book_id", input.Body.BookID, "Book ID")
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-status",
		Method:      http.MethodGet,
		Path:        "/api/status",
		Summary:     "Status",
		Description: "Current port, connection state, mode and counters",
		Tags:        []string{"serial"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(_ context.Context, _ *struct{}) (*models.StatusResponse, error) {
		st := s.ctrl.Status()
		return &models.StatusResponse{
			Body: models.StatusData{
				Port:      st.Port,
				Connected: st.Connected,
				BaudRate:  st.BaudRate,
				Mode:      string(st.Mode),
				Totals:    metrics.GetTotals(),
			},
		}, nil
	})
}

func (s *Server) sendValue(kind, value, label string) (*models.ActionResponse, error) {
	if err := s.ctrl.SendValue(kind, value); err != nil {
		return nil, mapSerialError(err)
	}
	return s.action("sent", fmt.Sprintf("%s %s sent", label, value)), nil
}

func (s *Server) action(status, message string) *models.ActionResponse {
	return &models.ActionResponse{
		Body: models.ActionData{
			Status:  status,
			Message: message,
			Mode:    string(s.ctrl.Status().Mode),
		},
	}
}
