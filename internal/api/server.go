package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spooldock/spooldock-core/internal/auth"
	"github.com/spooldock/spooldock-core/internal/infrastructure/config"
	"github.com/spooldock/spooldock-core/internal/infrastructure/logging"
	"github.com/spooldock/spooldock-core/internal/inventory"
	"github.com/spooldock/spooldock-core/internal/printer"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// fleetEventBuffer bounds the queue between the fleet's network goroutines
// and the broadcast pump. The decoder must never block on a slow client,
// so a full queue drops the oldest kind of event: a fresh snapshot always
// follows.
const fleetEventBuffer = 256

// StateRecorder receives every decoded state snapshot for long-term
// telemetry storage. Implemented by the history package.
type StateRecorder interface {
	RecordState(serial string, state *printer.PrinterState)
}

// DiscoverySource lists printers recently seen announcing on the LAN.
// Implemented by the discovery package.
type DiscoverySource interface {
	Discovered() []DiscoveredPrinter
}

// DiscoveredPrinter is one device seen by the discovery listener.
type DiscoveredPrinter struct {
	Serial    string    `json:"serial"`
	Name      string    `json:"name,omitempty"`
	Model     string    `json:"model,omitempty"`
	IPAddress string    `json:"ip_address"`
	LastSeen  time.Time `json:"last_seen"`
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config    config.APIConfig
	WS        config.WebSocketConfig
	Security  config.SecurityConfig
	Logger    *logging.Logger
	Fleet     *printer.Fleet
	Spools    inventory.SpoolRepository
	Printers  inventory.PrinterRepository
	Keys      auth.KeyRepository
	History   StateRecorder   // optional: telemetry history sink
	Discovery DiscoverySource // optional: LAN discovery listener
	Version   string
}

// fleetEvent is one fleet notification queued for the broadcast pump.
type fleetEvent struct {
	kind   string
	serial string
	state  *printer.PrinterState
}

// Server is the HTTP API server for SpoolDock.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub, and
// pumps fleet events out to WebSocket subscribers.
type Server struct {
	cfg       config.APIConfig
	wsCfg     config.WebSocketConfig
	secCfg    config.SecurityConfig
	logger    *logging.Logger
	fleet     *printer.Fleet
	spools    inventory.SpoolRepository
	printers  inventory.PrinterRepository
	keys      auth.KeyRepository
	verifier  *auth.Verifier
	history   StateRecorder
	discovery DiscoverySource
	version   string
	startedAt time.Time

	server *http.Server
	hub    *Hub
	events chan fleetEvent
	cancel context.CancelFunc
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Fleet == nil {
		return nil, fmt.Errorf("printer fleet is required")
	}
	if deps.Spools == nil || deps.Printers == nil {
		return nil, fmt.Errorf("inventory repositories are required")
	}

	s := &Server{
		cfg:       deps.Config,
		wsCfg:     deps.WS,
		secCfg:    deps.Security,
		logger:    deps.Logger,
		fleet:     deps.Fleet,
		spools:    deps.Spools,
		printers:  deps.Printers,
		keys:      deps.Keys,
		history:   deps.History,
		discovery: deps.Discovery,
		version:   deps.Version,
		events:    make(chan fleetEvent, fleetEventBuffer),
	}
	if deps.Keys != nil {
		s.verifier = auth.NewVerifier(deps.Keys)
	}
	return s, nil
}

// Start begins listening for HTTP connections.
//
// It starts the WebSocket hub, registers for fleet events, launches the
// event pump, and starts the HTTP listener in a background goroutine.
// The server can be stopped with Close().
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	s.startedAt = time.Now()
	s.hub = NewHub(s.wsCfg, s.logger)
	go s.hub.Run(srvCtx)

	s.subscribeFleetEvents()
	go s.pumpFleetEvents(srvCtx)

	router := s.buildRouter()

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           router,
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		err := s.server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	s.logger.Info("API server started", "address", s.server.Addr)
	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running and responsive.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}

// subscribeFleetEvents registers the fleet callbacks. The callbacks run on
// the printers' network goroutines, so they only enqueue; everything slow
// happens in the pump.
func (s *Server) subscribeFleetEvents() {
	s.fleet.OnStateUpdate(func(serial string, state *printer.PrinterState) {
		s.enqueue(fleetEvent{kind: "printer.state_changed", serial: serial, state: state})
	})
	s.fleet.OnConnect(func(serial string) {
		s.enqueue(fleetEvent{kind: "printer.connected", serial: serial})
	})
	s.fleet.OnDisconnect(func(serial string) {
		s.enqueue(fleetEvent{kind: "printer.disconnected", serial: serial})
	})
}

func (s *Server) enqueue(ev fleetEvent) {
	select {
	case s.events <- ev:
	default:
		s.logger.Warn("fleet event queue full, dropping event", "kind", ev.kind, "serial", ev.serial)
	}
}

// pumpFleetEvents drains the event queue: WebSocket broadcast, last-seen
// bookkeeping, and telemetry history.
func (s *Server) pumpFleetEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-s.events:
			s.handleFleetEvent(ctx, ev)
		}
	}
}

func (s *Server) handleFleetEvent(ctx context.Context, ev fleetEvent) {
	switch ev.kind {
	case "printer.state_changed":
		s.hub.Broadcast(ev.kind, map[string]any{
			"serial": ev.serial,
			"state":  ev.state,
		})
		if err := s.printers.TouchLastSeen(ctx, ev.serial, time.Now()); err != nil {
			s.logger.Debug("last_seen update failed", "serial", ev.serial, "error", err)
		}
		if s.history != nil {
			s.history.RecordState(ev.serial, ev.state)
		}
	case "printer.connected", "printer.disconnected":
		s.hub.Broadcast(ev.kind, map[string]any{"serial": ev.serial})
	}
}
