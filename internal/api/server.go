package api

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"

	"github.com/smazurov/serialbridge/internal/api/models"
	"github.com/smazurov/serialbridge/internal/controller"
	"github.com/smazurov/serialbridge/internal/events"
	"github.com/smazurov/serialbridge/internal/led"
	"github.com/smazurov/serialbridge/internal/logging"
	"github.com/smazurov/serialbridge/internal/serial"
	"github.com/smazurov/serialbridge/internal/version"
)

const authRealm = `Basic realm="Serial Bridge API"`

// DeviceController is the mode state machine the API drives.
// *controller.Controller satisfies it.
type DeviceController interface {
	Connect(opts serial.Options) error
	Disconnect() (serial.CloseStatus, error)
	StartRead() error
	StopRead() error
	StartWrite() error
	StopWrite() error
	SendValue(kind, value string) error
	Status() controller.Status
}

// Options configures the API server.
type Options struct {
	AuthUsername      string
	AuthPassword      string
	CORSOrigins       []string
	DefaultBaudRate   int
	PrometheusHandler http.Handler   // Optional Prometheus metrics handler
	LEDController     led.Controller // Optional; LED routes are skipped when nil

	// ListPorts enumerates serial devices; defaults to serial.ListPorts.
	ListPorts func() ([]serial.PortInfo, error)
}

// Server is the Huma v2 HTTP API in front of the controller.
type Server struct {
	api        huma.API
	mux        *http.ServeMux
	httpServer *http.Server
	ctrl       DeviceController
	eventBus   *events.Bus
	hub        *wsHub
	options    *Options
	logger     *slog.Logger
}

// basicAuthMiddleware enforces HTTP basic authentication on operations that
// declare a security requirement.
func (s *Server) basicAuthMiddleware(username, password string) func(huma.Context, func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		op := ctx.Operation()
		if op != nil && len(op.Security) == 0 {
			next(ctx)
			return
		}

		user, pass, msg := parseBasicAuth(ctx.Header("Authorization"), ctx.Query("auth"))
		if msg == "" && !credentialsMatch(user, pass, username, password) {
			msg = "Invalid credentials"
		}
		if msg != "" {
			ctx.SetHeader("WWW-Authenticate", authRealm)
			huma.WriteErr(s.api, ctx, http.StatusUnauthorized, msg)
			return
		}

		next(ctx)
	}
}

// parseBasicAuth reads credentials from the Authorization header or, for
// EventSource and WebSocket clients that cannot set headers, from a
// base64 "auth" query parameter. msg is non-empty on failure.
func parseBasicAuth(header, query string) (user, pass, msg string) {
	var encoded string
	switch {
	case header != "":
		const prefix = "Basic "
		if !strings.HasPrefix(header, prefix) {
			return "", "", "Invalid authentication type"
		}
		encoded = header[len(prefix):]
	case query != "":
		encoded = query
	default:
		return "", "", "Authentication required"
	}

	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", "", "Invalid credentials format"
	}
	user, pass, ok := strings.Cut(string(decoded), ":")
	if !ok {
		return "", "", "Invalid credentials format"
	}
	return user, pass, ""
}

func credentialsMatch(user, pass, wantUser, wantPass string) bool {
	u := subtle.ConstantTimeCompare([]byte(user), []byte(wantUser))
	p := subtle.ConstantTimeCompare([]byte(pass), []byte(wantPass))
	return u&p == 1
}

// NewServer creates the API server using Go 1.22+ native routing.
func NewServer(ctrl DeviceController, bus *events.Bus, opts *Options) *Server {
	if opts.ListPorts == nil {
		opts.ListPorts = serial.ListPorts
	}
	if opts.DefaultBaudRate <= 0 {
		opts.DefaultBaudRate = serial.DefaultBaudRate
	}

	mux := http.NewServeMux()

	corsConfig := DefaultCORSConfig()
	if len(opts.CORSOrigins) > 0 {
		corsConfig.AllowOrigins = opts.CORSOrigins
	}
	AddCORSHandler(mux, corsConfig)

	config := huma.DefaultConfig("Serial Bridge API", version.Version)
	config.Info.Description = "Drive an RFID reader/writer over a serial link and stream what it reads"
	// Empty servers list will make OpenAPI use relative paths, working with any host
	config.Servers = []*huma.Server{}
	config.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"basicAuth": {
			Type:   "http",
			Scheme: "basic",
		},
	}

	api := humago.New(mux, config)

	server := &Server{
		api:      api,
		mux:      mux,
		ctrl:     ctrl,
		eventBus: bus,
		options:  opts,
		logger:   logging.GetLogger("api"),
	}

	api.UseMiddleware(NewCORSMiddleware(corsConfig))
	api.UseMiddleware(HTTPLoggingMiddleware)
	if server.authEnabled() {
		api.UseMiddleware(server.basicAuthMiddleware(opts.AuthUsername, opts.AuthPassword))
	}

	// Registered on the mux directly, outside auth.
	if opts.PrometheusHandler != nil {
		mux.Handle("GET /metrics", opts.PrometheusHandler)
	}

	server.hub = newWSHub(bus, corsConfig)
	mux.HandleFunc("GET /ws", server.handleWebSocket)

	server.registerRoutes()

	return server
}

func (s *Server) authEnabled() bool {
	return s.options.AuthUsername != "" && s.options.AuthPassword != ""
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// GetAPI returns the Huma API instance
func (s *Server) GetAPI() huma.API {
	return s.api
}

// Start serves HTTP on addr until Stop is called.
func (s *Server) Start(addr string) error {
	s.logger.Info("Starting API server", "addr", addr)
	s.logger.Info("OpenAPI documentation available", "url", "http://"+addr+"/docs")

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop closes websocket clients and shuts the HTTP server down.
func (s *Server) Stop() error {
	s.logger.Info("Stopping API server")

	s.hub.Close()

	if s.httpServer == nil {
		return nil
	}
	// SSE streams never finish on their own, so bound the graceful phase.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return s.httpServer.Close()
	}
	return nil
}

func (s *Server) registerRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "health-check",
		Method:      http.MethodGet,
		Path:        "/api/health",
		Summary:     "Health",
		Description: "Check API health status",
		Tags:        []string{"health"},
		Security:    []map[string][]string{}, // Empty security = no auth required
	}, func(_ context.Context, _ *struct{}) (*models.HealthResponse, error) {
		return &models.HealthResponse{
			Body: models.HealthData{
				Status:  "ok",
				Message: "API is healthy",
			},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-version",
		Method:      http.MethodGet,
		Path:        "/api/version",
		Summary:     "Version",
		Description: "Get application version information",
		Tags:        []string{"system"},
		Security:    []map[string][]string{},
	}, func(_ context.Context, _ *struct{}) (*models.VersionResponse, error) {
		info := version.Get()
		return &models.VersionResponse{
			Body: models.VersionData{
				Version:   info.Version,
				GitCommit: info.GitCommit,
				BuildDate: info.BuildDate,
				GoVersion: info.GoVersion,
				Platform:  info.Platform,
			},
		}, nil
	})

	s.registerSerialRoutes()
	s.registerSSERoutes()
	s.registerLogRoutes()
	s.registerMetricsRoutes()
	s.registerLEDRoutes()
}

// withAuth returns security requirement for basic auth
func withAuth() []map[string][]string {
	return []map[string][]string{
		{"basicAuth": {}},
	}
}
