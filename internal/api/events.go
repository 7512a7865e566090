package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"

	"github.com/smazurov/serialbridge/internal/events"
)

// registerSSERoutes registers the native Huma SSE endpoint.
func (s *Server) registerSSERoutes() {
	sse.Register(s.api, huma.Operation{
		OperationID: "events-stream",
		Method:      http.MethodGet,
		Path:        "/api/events",
		Summary:     "Server-Sent Events Stream",
		Description: "Real-time stream of lines read from the device, mode changes and connection changes",
		Tags:        []string{"events"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, map[string]any{
		"serial-line":        events.LineReceivedEvent{},
		"stream-stopped":     events.StreamStoppedEvent{},
		"stream-error":       events.StreamErrorEvent{},
		"mode-changed":       events.ModeChangedEvent{},
		"connection-changed": events.ConnectionChangedEvent{},
	}, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		// Lines can arrive in bursts from the reader.
		eventCh := make(chan any, 64)

		unsubscribe := events.ForwardToChannel(s.eventBus, eventCh,
			events.TypeLineReceived,
			events.TypeStreamStopped,
			events.TypeStreamError,
			events.TypeModeChanged,
			events.TypeConnectionChanged,
		)
		defer unsubscribe()

		// Current connection state first, so clients need not poll /api/status.
		st := s.ctrl.Status()
		initial := events.ConnectionChangedEvent{
			Port:      st.Port,
			Status:    "disconnected",
			BaudRate:  st.BaudRate,
			Timestamp: nowRFC3339(),
		}
		if st.Connected {
			initial.Status = "connected"
		}
		if err := send.Data(initial); err != nil {
			return
		}

		for {
			select {
			case <-ctx.Done():
				return
			case event := <-eventCh:
				if err := send.Data(event); err != nil {
					return
				}
			}
		}
	})
}
