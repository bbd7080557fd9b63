// Package websocket provides the inbound listener: a WebSocket server that
// decodes feature frames from each connection and hands them to a
// FrameHandler.
package websocket

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/featurebridge/errors"
	"github.com/c360/featurebridge/frame"
	"github.com/c360/featurebridge/health"
	"github.com/c360/featurebridge/metric"
	"github.com/c360/featurebridge/session"
)

const (
	defaultStopTimeout = 2 * time.Second
	closeWriteTimeout  = time.Second
)

// FrameHandler receives decoded frames. Calls for one session are made
// sequentially in arrival order; calls for different sessions run
// concurrently.
type FrameHandler interface {
	HandleFrame(ctx context.Context, sessionID string, f frame.Frame)
}

// FrameHandlerFunc adapts a function to FrameHandler
type FrameHandlerFunc func(ctx context.Context, sessionID string, f frame.Frame)

// HandleFrame calls fn
func (fn FrameHandlerFunc) HandleFrame(ctx context.Context, sessionID string, f frame.Frame) {
	fn(ctx, sessionID, f)
}

// Launcher runs fn on a new goroutine. cmd/featurebridge passes
// lifecycle.Coordinator.Go so a panic in a read loop becomes a fault
// shutdown.
type Launcher func(name string, fn func() error)

func goLauncher(_ string, fn func() error) {
	go func() { _ = fn() }()
}

// Stats is a point-in-time snapshot of listener counters
type Stats struct {
	ConnectionsTotal int64
	Received         int64
	Rejected         int64
	Dropped          int64
}

// Metrics holds Prometheus metrics for the listener
type Metrics struct {
	connectionsActive prometheus.Gauge
	connectionsTotal  prometheus.Counter
	messagesReceived  prometheus.Counter
	framesRejected    prometheus.Counter
	messagesDropped   prometheus.Counter
	errorsTotal       *prometheus.CounterVec
}

func newMetrics(registry *metric.MetricsRegistry) *Metrics {
	if registry == nil {
		return nil
	}

	m := &Metrics{
		connectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metric.Namespace,
			Subsystem: "websocket",
			Name:      "connections_active",
			Help:      "Open inbound WebSocket connections",
		}),
		connectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "websocket",
			Name:      "connections_total",
			Help:      "Inbound WebSocket connections accepted",
		}),
		messagesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "websocket",
			Name:      "messages_received_total",
			Help:      "Inbound messages read",
		}),
		framesRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "websocket",
			Name:      "frames_rejected_total",
			Help:      "Inbound messages that failed frame decoding",
		}),
		messagesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "websocket",
			Name:      "messages_dropped_total",
			Help:      "Inbound messages ignored because the listener is shutting down",
		}),
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "websocket",
			Name:      "errors_total",
			Help:      "Listener errors by type",
		}, []string{"type"}),
	}

	_ = registry.RegisterGauge("websocket", "connections_active", m.connectionsActive)
	_ = registry.RegisterCounter("websocket", "connections_total", m.connectionsTotal)
	_ = registry.RegisterCounter("websocket", "messages_received", m.messagesReceived)
	_ = registry.RegisterCounter("websocket", "frames_rejected", m.framesRejected)
	_ = registry.RegisterCounter("websocket", "messages_dropped", m.messagesDropped)
	_ = registry.RegisterCounterVec("websocket", "errors", m.errorsTotal)

	return m
}

// Server accepts WebSocket connections and runs one read loop per
// connection. Each connection is registered as a session for its lifetime.
type Server struct {
	config   Config
	handler  FrameHandler
	sessions *session.Registry
	logger   *slog.Logger
	metrics  *Metrics
	upgrader websocket.Upgrader
	launch   Launcher

	lifecycleMu sync.Mutex
	httpServer  *http.Server
	listener    net.Listener
	stopWatch   func() bool
	started     atomic.Bool

	// closing is set under connsMu so no connection is tracked after Stop
	// takes its snapshot
	connsMu sync.Mutex
	conns   map[string]*conn
	closing atomic.Bool
	wg      sync.WaitGroup

	connectionsTotal atomic.Int64
	received         atomic.Int64
	rejected         atomic.Int64
	dropped          atomic.Int64
	lastErr          atomic.Pointer[error]
}

// NewServer creates a listener that registers connections in sessions and
// forwards decoded frames to handler. registry and logger may be nil.
func NewServer(
	config Config,
	sessions *session.Registry,
	handler FrameHandler,
	registry *metric.MetricsRegistry,
	logger *slog.Logger,
) (*Server, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if sessions == nil || handler == nil {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "websocket", "NewServer",
			"session registry and frame handler required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{
		config:   config,
		handler:  handler,
		sessions: sessions,
		logger:   logger.With("component", "websocket"),
		metrics:  newMetrics(registry),
		upgrader: websocket.Upgrader{
			ReadBufferSize:    config.ReadBufferSize,
			WriteBufferSize:   config.WriteBufferSize,
			EnableCompression: config.EnableCompression,
			// Producers run in browsers on arbitrary origins
			CheckOrigin: func(*http.Request) bool { return true },
		},
		conns:  make(map[string]*conn),
		launch: goLauncher,
	}, nil
}

// SetLauncher replaces the goroutine launcher for read loops. Must be called
// before Start.
func (s *Server) SetLauncher(l Launcher) {
	if l != nil {
		s.launch = l
	}
}

// Start binds the listening socket and begins accepting connections.
// Bind failures are fatal. Cancelling ctx stops the server.
func (s *Server) Start(ctx context.Context) error {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	if s.closing.Load() {
		return errors.WrapTransient(errors.ErrShuttingDown, "websocket", "Start", "check state")
	}
	if s.started.Load() {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "websocket", "Start", "check state")
	}

	ln, err := net.Listen("tcp", s.config.Address())
	if err != nil {
		return errors.WrapFatal(err, "websocket", "Start", fmt.Sprintf("listen on %s", s.config.Address()))
	}

	mux := http.NewServeMux()
	mux.HandleFunc(s.config.Path, func(w http.ResponseWriter, r *http.Request) {
		s.handleUpgrade(ctx, w, r)
	})

	s.listener = ln
	s.httpServer = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.started.Store(true)
	s.stopWatch = context.AfterFunc(ctx, func() {
		_ = s.Stop(defaultStopTimeout)
	})

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.trackError("serve_error", errors.WrapTransient(err, "websocket", "Serve", "accept connections"))
		}
	}()

	s.logger.Info("WebSocket listener started", "address", ln.Addr().String(), "path", s.config.Path)
	return nil
}

// Addr returns the bound address, or nil before Start
func (s *Server) Addr() net.Addr {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// URL returns the ws:// URL producers connect to, or "" before Start
func (s *Server) URL() string {
	addr := s.Addr()
	if addr == nil {
		return ""
	}
	return "ws://" + addr.String() + s.config.Path
}

func (s *Server) handleUpgrade(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	if s.closing.Load() {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	if limit := s.config.MaxConnections; limit > 0 && s.sessionsOpen() >= limit {
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		s.trackError("connection_limit", nil)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error response
		s.trackError("upgrade_error", errors.WrapInvalid(err, "websocket", "handleUpgrade", "upgrade connection"))
		return
	}

	c := &conn{
		id:     uuid.NewString(),
		ws:     ws,
		remote: r.RemoteAddr,
	}

	if admitted, reason := s.track(c); !admitted {
		if reason == rejectFull {
			s.trackError("connection_limit", nil)
			reject(ws, websocket.CloseTryAgainLater, "too many connections")
		} else {
			reject(ws, websocket.CloseGoingAway, "shutting down")
		}
		return
	}
	s.sessions.Register(c)

	s.connectionsTotal.Add(1)
	if s.metrics != nil {
		s.metrics.connectionsTotal.Inc()
		s.metrics.connectionsActive.Inc()
	}
	s.logger.Debug("Session opened", "session", c.id, "remote", c.remote)

	s.launch("session "+c.id, func() error {
		s.readLoop(ctx, c)
		return nil
	})
}

type rejectReason int

const (
	rejectClosing rejectReason = iota + 1
	rejectFull
)

// track admits c unless the server is closing or at MaxConnections. The
// limit is enforced under connsMu; the check before the upgrade only saves
// the handshake in the common case.
func (s *Server) track(c *conn) (bool, rejectReason) {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()

	if s.closing.Load() {
		return false, rejectClosing
	}
	if limit := s.config.MaxConnections; limit > 0 && len(s.conns) >= limit {
		return false, rejectFull
	}
	s.conns[c.id] = c
	s.wg.Add(1)
	return true, 0
}

func reject(ws *websocket.Conn, code int, text string) {
	_ = ws.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(code, text),
		time.Now().Add(closeWriteTimeout))
	_ = ws.Close()
}

func (s *Server) untrack(c *conn) {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()

	delete(s.conns, c.id)
}

func (s *Server) sessionsOpen() int {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()

	return len(s.conns)
}

// readLoop processes one connection's messages strictly in order. Malformed
// messages are dropped without a reply and the connection stays open.
func (s *Server) readLoop(ctx context.Context, c *conn) {
	defer s.wg.Done()
	defer func() {
		_ = c.Close()
		s.sessions.Unregister(c)
		s.untrack(c)
		if s.metrics != nil {
			s.metrics.connectionsActive.Dec()
		}
		s.logger.Debug("Session closed", "session", c.id)
	}()

	c.ws.SetReadLimit(s.config.MaxMessageBytes)

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			s.readFailed(c, err)
			return
		}

		if s.closing.Load() {
			s.dropped.Add(1)
			if s.metrics != nil {
				s.metrics.messagesDropped.Inc()
			}
			continue
		}

		s.received.Add(1)
		if s.metrics != nil {
			s.metrics.messagesReceived.Inc()
		}

		f, err := frame.Decode(data)
		if err != nil {
			s.rejected.Add(1)
			if s.metrics != nil {
				s.metrics.framesRejected.Inc()
			}
			continue
		}

		s.handler.HandleFrame(ctx, c.id, f)
	}
}

func (s *Server) readFailed(c *conn, err error) {
	switch {
	case s.closing.Load() || c.closed.Load():
		// Local close
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived):
		// Peer said goodbye
	case errors.Is(err, websocket.ErrReadLimit):
		s.trackError("read_limit", errors.WrapInvalid(err, "websocket", "readLoop", "read message"))
		s.logger.Debug("Message exceeded read limit", "session", c.id, "limit", s.config.MaxMessageBytes)
	default:
		s.trackError("read_error", errors.WrapTransient(err, "websocket", "readLoop", "read message"))
		s.logger.Debug("Session read failed", "session", c.id, "error", err)
	}
}

func (s *Server) trackError(kind string, err error) {
	if s.metrics != nil {
		s.metrics.errorsTotal.WithLabelValues(kind).Inc()
	}
	if err != nil {
		s.lastErr.Store(&err)
	}
}

// Stop stops accepting connections, closes the connections this server owns
// and waits up to timeout for their read loops to exit. Messages that arrive
// after Stop begins are dropped. Safe to call more than once.
func (s *Server) Stop(timeout time.Duration) error {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	s.connsMu.Lock()
	alreadyClosing := s.closing.Swap(true)
	open := make([]*conn, 0, len(s.conns))
	for _, c := range s.conns {
		open = append(open, c)
	}
	s.connsMu.Unlock()

	if alreadyClosing || !s.started.Load() {
		return nil
	}

	if s.stopWatch != nil {
		s.stopWatch()
	}

	var stopErr error
	if err := s.httpServer.Close(); err != nil {
		stopErr = errors.WrapTransient(err, "websocket", "Stop", "close listener")
	}

	for _, c := range open {
		_ = c.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		return errors.WrapTransient(
			fmt.Errorf("%w: %d read loops still running after %s", errors.ErrConnectionTimeout, len(open), timeout),
			"websocket", "Stop", "wait for sessions")
	}

	s.logger.Info("WebSocket listener stopped",
		"sessions_closed", len(open),
		"received", s.received.Load(),
		"rejected", s.rejected.Load())
	return stopErr
}

// Close stops the server with the default timeout
func (s *Server) Close() error {
	return s.Stop(defaultStopTimeout)
}

// Stats returns a snapshot of the listener counters
func (s *Server) Stats() Stats {
	return Stats{
		ConnectionsTotal: s.connectionsTotal.Load(),
		Received:         s.received.Load(),
		Rejected:         s.rejected.Load(),
		Dropped:          s.dropped.Load(),
	}
}

// Health reports whether the listener is accepting connections
func (s *Server) Health() health.Status {
	running := s.started.Load() && !s.closing.Load()

	var lastErr error
	if p := s.lastErr.Load(); p != nil && running {
		lastErr = *p
	}

	status := health.FromError("websocket", running, lastErr)
	return status.WithMetrics(&health.Metrics{
		MessagesProcessed: s.received.Load(),
		ErrorCount:        s.rejected.Load(),
		Sessions:          s.sessionsOpen(),
	})
}

// conn is one accepted WebSocket connection. It implements session.Session.
type conn struct {
	id     string
	ws     *websocket.Conn
	remote string

	closeOnce sync.Once
	closed    atomic.Bool
	closeErr  error
}

var _ session.Session = (*conn)(nil)

// ID returns the session identity
func (c *conn) ID() string {
	return c.id
}

// Close sends a going-away close frame and closes the socket. The read loop
// observes the close and unregisters the session.
func (c *conn) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		_ = c.ws.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(closeWriteTimeout))
		if err := c.ws.Close(); err != nil {
			c.closeErr = errors.WrapTransient(err, "websocket", "Close", fmt.Sprintf("close session %s", c.id))
		}
	})
	return c.closeErr
}
