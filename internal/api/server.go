package api

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/nerrad567/bumper/internal/audit"
	"github.com/nerrad567/bumper/internal/auth"
	"github.com/nerrad567/bumper/internal/device"
	"github.com/nerrad567/bumper/internal/infrastructure/config"
	"github.com/nerrad567/bumper/internal/infrastructure/database"
	"github.com/nerrad567/bumper/internal/infrastructure/logging"
	"github.com/nerrad567/bumper/internal/metrics"
	"github.com/nerrad567/bumper/internal/presence"
	"github.com/nerrad567/bumper/internal/relay"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// ErrBind is returned by Start when a listener cannot bind its address.
var ErrBind = errors.New("api: bind failed")

// BusStatus reports the message bus connection state.
type BusStatus interface {
	Connected() bool
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   *config.Config
	Logger   *logging.Logger
	Registry *device.Registry
	Sessions *auth.Manager
	Relay    *relay.Relay
	Presence *presence.Table
	Bus      BusStatus        // optional: reported by the status endpoint
	DB       *database.DB     // optional: pool stats for the status endpoint
	Metrics  *metrics.Metrics // optional: HTTP metrics and /metrics
	Hub      *Hub             // optional: the server creates its own if nil
	Audit    audit.Repository // optional: activity journal and /api/audit
	Version  string
}

// Server serves the app and robot HTTP API on every configured listener.
//
// All listeners share one route table. The server is created with New()
// and started with Start().
type Server struct {
	cfg       *config.Config
	logger    *logging.Logger
	registry  *device.Registry
	sessions  *auth.Manager
	relay     *relay.Relay
	presence  *presence.Table
	bus       BusStatus
	db        *database.DB
	metrics   *metrics.Metrics
	hub       *Hub
	audit     audit.Repository
	auditCh   chan *audit.AuditLog
	auditDone chan struct{}
	version   string

	startTime time.Time
	handler   http.Handler

	mu        sync.Mutex
	servers   []*http.Server
	listeners []net.Listener
	cancel    context.CancelFunc
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	switch {
	case deps.Config == nil:
		return nil, fmt.Errorf("config is required")
	case deps.Logger == nil:
		return nil, fmt.Errorf("logger is required")
	case deps.Registry == nil:
		return nil, fmt.Errorf("bot registry is required")
	case deps.Sessions == nil:
		return nil, fmt.Errorf("session manager is required")
	case deps.Relay == nil:
		return nil, fmt.Errorf("relay is required")
	}

	s := &Server{
		cfg:       deps.Config,
		logger:    deps.Logger,
		registry:  deps.Registry,
		sessions:  deps.Sessions,
		relay:     deps.Relay,
		presence:  deps.Presence,
		bus:       deps.Bus,
		db:        deps.DB,
		metrics:   deps.Metrics,
		hub:       deps.Hub,
		audit:     deps.Audit,
		version:   deps.Version,
		startTime: time.Now(),
	}
	if s.presence == nil {
		s.presence = presence.NewTable()
	}
	if s.hub == nil {
		s.hub = NewHub(deps.Config.Events, deps.Logger)
	}
	if s.audit != nil {
		s.auditCh = make(chan *audit.AuditLog, auditChanSize)
	}
	s.handler = s.buildRouter()
	return s, nil
}

// Handler returns the route table shared by every listener.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Hub returns the websocket hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start binds every listener and begins serving.
//
// All addresses are bound before any is served, so a port that is already
// in use fails Start with ErrBind and nothing is left listening.
//
// Parameters:
//   - ctx: Parent context for the websocket hub
//
// Returns:
//   - error: ErrBind or a TLS certificate error
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	for _, lc := range s.cfg.Listeners {
		ln, err := listen(lc)
		if err != nil {
			s.closeListenersLocked()
			s.cancel()
			return err
		}
		s.listeners = append(s.listeners, ln)
		s.servers = append(s.servers, &http.Server{
			Handler:           s.handler,
			ReadTimeout:       s.cfg.GetReadTimeout(),
			ReadHeaderTimeout: s.cfg.GetReadTimeout(),
			WriteTimeout:      s.cfg.GetWriteTimeout(),
			IdleTimeout:       s.cfg.GetIdleTimeout(),
		})
	}

	go s.hub.Run(srvCtx)
	if s.audit != nil {
		s.auditDone = make(chan struct{})
		go func(done chan struct{}) {
			defer close(done)
			s.drainAuditLog(srvCtx)
		}(s.auditDone)
	}

	for i, srv := range s.servers {
		ln := s.listeners[i]
		lc := s.cfg.Listeners[i]
		s.logger.Info("listener started", "name", lc.Name, "address", ln.Addr().String(), "tls", lc.TLS.Enabled)
		go func() {
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.logger.Error("listener stopped", "name", lc.Name, "error", err)
			}
		}()
	}
	return nil
}

// listen binds one listener, wrapping it in TLS when configured.
func listen(lc config.ListenerConfig) (net.Listener, error) {
	var tlsCfg *tls.Config
	if lc.TLS.Enabled {
		cert, err := tls.LoadX509KeyPair(lc.TLS.CertFile, lc.TLS.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("listener %s: loading certificate: %w", lc.Name, err)
		}
		tlsCfg = &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS10, //nolint:gosec // older robots only speak TLS 1.0
		}
	}

	ln, err := net.Listen("tcp", lc.Address())
	if err != nil {
		return nil, fmt.Errorf("%w: listener %s on %s: %w", ErrBind, lc.Name, lc.Address(), err)
	}
	if tlsCfg != nil {
		ln = tls.NewListener(ln, tlsCfg)
	}
	return ln, nil
}

// Addrs returns the bound address of every listener, in config order.
func (s *Server) Addrs() []net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	addrs := make([]net.Addr, 0, len(s.listeners))
	for _, ln := range s.listeners {
		addrs = append(addrs, ln.Addr())
	}
	return addrs
}

// Close gracefully shuts down every listener.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}
	if s.auditDone != nil {
		<-s.auditDone
		s.auditDone = nil
	}
	if len(s.servers) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	var errs []error
	for _, srv := range s.servers {
		if err := srv.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	s.servers = nil
	s.listeners = nil
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

func (s *Server) closeListenersLocked() {
	for _, ln := range s.listeners {
		ln.Close() //nolint:errcheck // Best effort cleanup on error path
	}
	s.listeners = nil
	s.servers = nil
}

// HealthCheck verifies the API server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.servers) == 0 {
		return fmt.Errorf("api server not started")
	}
	return nil
}
