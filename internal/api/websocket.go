package api

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/smazurov/serialbridge/internal/events"
	"github.com/smazurov/serialbridge/internal/logging"
)

const (
	wsEventSerialData  = "serial_data"
	wsEventSerialError = "serial_error"

	// wsStopMarker tells websocket clients the device left read mode.
	wsStopMarker = "_STOP_"

	wsWriteWait  = 5 * time.Second
	wsClientSend = 64
)

// wsMessage is the frame sent to websocket clients.
type wsMessage struct {
	Event string `json:"event"`
	Data  string `json:"data"`
}

type wsClient struct {
	conn *websocket.Conn
	send chan wsMessage
	once sync.Once
}

func (c *wsClient) close() {
	c.once.Do(func() {
		close(c.send)
	})
}

// wsHub fans serial lines out to websocket clients. Every client has its
// own queue and writer so a slow client cannot stall the others.
type wsHub struct {
	upgrader websocket.Upgrader
	logger   *slog.Logger

	mu      sync.Mutex
	clients map[*wsClient]struct{}
	closed  bool

	unsubscribe func()
	stop        chan struct{}
	done        chan struct{}
}

func newWSHub(bus *events.Bus, cors CORSConfig) *wsHub {
	h := &wsHub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || cors.allowOrigin(origin) != ""
			},
		},
		logger:  logging.GetLogger("websocket"),
		clients: make(map[*wsClient]struct{}),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}

	eventCh := make(chan any, 256)
	h.unsubscribe = events.ForwardToChannel(bus, eventCh,
		events.TypeLineReceived,
		events.TypeStreamStopped,
		events.TypeStreamError,
	)
	go h.run(eventCh)
	return h
}

func (h *wsHub) run(eventCh <-chan any) {
	defer close(h.done)
	for {
		select {
		case <-h.stop:
			return
		case ev := <-eventCh:
			if msg, ok := toWSMessage(ev); ok {
				h.broadcast(msg)
			}
		}
	}
}

func toWSMessage(ev any) (wsMessage, bool) {
	switch e := ev.(type) {
	case events.LineReceivedEvent:
		return wsMessage{Event: wsEventSerialData, Data: e.Text}, true
	case events.StreamStoppedEvent:
		return wsMessage{Event: wsEventSerialData, Data: wsStopMarker}, true
	case events.StreamErrorEvent:
		return wsMessage{Event: wsEventSerialError, Data: e.Error}, true
	}
	return wsMessage{}, false
}

func (h *wsHub) broadcast(msg wsMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			h.logger.Warn("Dropping slow websocket client", "remote_addr", c.conn.RemoteAddr().String())
			delete(h.clients, c)
			c.close()
		}
	}
}

func (h *wsHub) add(c *wsClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

func (h *wsHub) remove(c *wsClient) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		c.close()
	}
	h.mu.Unlock()
}

// Count returns the number of connected clients.
func (h *wsHub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close unsubscribes from the bus and disconnects every client.
func (h *wsHub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		c.close()
	}
	h.mu.Unlock()

	h.unsubscribe()
	close(h.stop)
	<-h.done
}

// handleWebSocket upgrades the request and registers the client. Browsers
// cannot set headers on websocket requests, so credentials may also come in
// the "auth" query parameter.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.authEnabled() {
		user, pass, msg := parseBasicAuth(r.Header.Get("Authorization"), r.URL.Query().Get("auth"))
		if msg == "" && !credentialsMatch(user, pass, s.options.AuthUsername, s.options.AuthPassword) {
			msg = "Invalid credentials"
		}
		if msg != "" {
			w.Header().Set("WWW-Authenticate", authRealm)
			http.Error(w, msg, http.StatusUnauthorized)
			return
		}
	}

	conn, err := s.hub.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.hub.logger.Debug("Websocket upgrade failed", "error", err)
		return
	}

	client := &wsClient{conn: conn, send: make(chan wsMessage, wsClientSend)}
	if !s.hub.add(client) {
		_ = conn.Close()
		return
	}
	s.hub.logger.Info("Websocket client connected", "remote_addr", r.RemoteAddr)

	go s.hub.writePump(client)
	s.hub.readPump(client)
}

// writePump owns all writes to the connection.
func (h *wsHub) writePump(c *wsClient) {
	defer func() {
		if err := c.conn.Close(); err != nil {
			h.logger.Debug("Failed to close websocket", "error", err)
		}
	}()

	for msg := range c.send {
		if err := c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait)); err != nil {
			break
		}
		if err := c.conn.WriteJSON(msg); err != nil {
			h.logger.Debug("Websocket write failed", "error", err)
			break
		}
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	_ = c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// readPump discards client frames and detects disconnects.
func (h *wsHub) readPump(c *wsClient) {
	defer h.remove(c)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			h.logger.Info("Websocket client disconnected", "remote_addr", c.conn.RemoteAddr().String())
			return
		}
	}
}
