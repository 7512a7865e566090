package nats

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats-server/v2/server"

	"github.com/smazurov/serialbridge/internal/logging"
)

const (
	DefaultPort = 4222
	DefaultHost = "127.0.0.1"

	startTimeout = 5 * time.Second

	// Lines are capped far below this by the serial framer.
	maxPayload = 64 * 1024
)

// ServerOptions configures the embedded NATS server.
type ServerOptions struct {
	Port   int
	Host   string
	Name   string
	Logger *slog.Logger
}

func (o *ServerOptions) applyDefaults() {
	if o.Port == 0 {
		o.Port = DefaultPort
	}
	if o.Host == "" {
		o.Host = DefaultHost
	}
	if o.Name == "" {
		o.Name = "serialbridge"
	}
	if o.Logger == nil {
		o.Logger = logging.GetLogger("nats")
	}
}

// Server is an embedded NATS server for deployments without a broker.
type Server struct {
	mu     sync.Mutex
	ns     *server.Server
	opts   ServerOptions
	logger *slog.Logger
}

// NewServer creates a stopped embedded server. Zero options get defaults
// and the server listens on loopback only.
func NewServer(opts ServerOptions) *Server {
	opts.applyDefaults()
	return &Server{
		opts:   opts,
		logger: opts.Logger.With("component", "nats-server"),
	}
}

// Start starts the server and waits until it accepts connections.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ns != nil {
		return nil
	}

	ns, err := server.NewServer(&server.Options{
		Host:           s.opts.Host,
		Port:           s.opts.Port,
		ServerName:     s.opts.Name,
		NoLog:          true,
		NoSigs:         true,
		MaxControlLine: 4096,
		MaxPayload:     maxPayload,
	})
	if err != nil {
		return fmt.Errorf("failed to create NATS server: %w", err)
	}

	go ns.Start()

	if !ns.ReadyForConnections(startTimeout) {
		ns.Shutdown()
		return fmt.Errorf("NATS server not ready within %s", startTimeout)
	}

	s.ns = ns
	s.logger.Info("NATS server started", "url", ns.ClientURL())
	return nil
}

// Stop shuts the server down and waits for it to exit.
func (s *Server) Stop() {
	s.mu.Lock()
	ns := s.ns
	s.ns = nil
	s.mu.Unlock()

	if ns == nil {
		return
	}
	s.logger.Info("Stopping NATS server")
	ns.Shutdown()
	ns.WaitForShutdown()
}

// ClientURL returns the URL clients should use to connect.
func (s *Server) ClientURL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ns == nil {
		return fmt.Sprintf("nats://%s:%d", s.opts.Host, s.opts.Port)
	}
	return s.ns.ClientURL()
}

// IsRunning reports whether the server accepts connections.
func (s *Server) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ns != nil && s.ns.Running()
}

// NumClients returns the number of connected clients.
func (s *Server) NumClients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ns == nil {
		return 0
	}
	return s.ns.NumClients()
}
