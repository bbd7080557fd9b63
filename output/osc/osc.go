// Package osc implements the outbound adapter: it encodes addressed values
// as OSC 1.0 messages and writes each one as a single UDP datagram to a fixed
// destination.
package osc

import (
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	goosc "github.com/hypebeast/go-osc/osc"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/featurebridge/errors"
	"github.com/c360/featurebridge/health"
	"github.com/c360/featurebridge/message"
	"github.com/c360/featurebridge/metric"
)

// Config holds the outbound destination
type Config struct {
	Host string `json:"host"`
	Port int    `json:"port"`
	// WriteTimeout bounds a single datagram write; zero disables the deadline
	WriteTimeout time.Duration `json:"write_timeout"`
}

// DefaultConfig returns the default destination (a local OSC host)
func DefaultConfig() Config {
	return Config{
		Host:         "127.0.0.1",
		Port:         9000,
		WriteTimeout: 100 * time.Millisecond,
	}
}

// Validate checks the destination
func (c Config) Validate() error {
	if c.Host == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "osc", "Validate", "host required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return errors.WrapInvalid(
			fmt.Errorf("%w: port %d out of range", errors.ErrInvalidConfig, c.Port),
			"osc", "Validate", "check port")
	}
	if c.WriteTimeout < 0 {
		return errors.WrapInvalid(
			fmt.Errorf("%w: negative write timeout", errors.ErrInvalidConfig),
			"osc", "Validate", "check write timeout")
	}
	return nil
}

// Address returns host:port
func (c Config) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

type clientMetrics struct {
	sent       prometheus.Counter
	bytes      prometheus.Counter
	sendErrors *prometheus.CounterVec
}

func newMetrics(registry *metric.MetricsRegistry) *clientMetrics {
	if registry == nil {
		return nil
	}

	m := &clientMetrics{
		sent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "osc",
			Name:      "messages_sent_total",
			Help:      "OSC datagrams written",
		}),
		bytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "osc",
			Name:      "bytes_sent_total",
			Help:      "OSC bytes written",
		}),
		sendErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "osc",
			Name:      "send_errors_total",
			Help:      "OSC emissions that failed, by error class",
		}, []string{"class"}),
	}

	_ = registry.RegisterCounter("osc", "messages_sent", m.sent)
	_ = registry.RegisterCounter("osc", "bytes_sent", m.bytes)
	_ = registry.RegisterCounterVec("osc", "send_errors", m.sendErrors)

	return m
}

// Client owns the single outbound UDP socket. Emit is safe for concurrent
// use; Close waits for in-flight writes so nothing is written after it
// returns.
type Client struct {
	config  Config
	logger  *slog.Logger
	metrics *clientMetrics

	mu     sync.RWMutex
	conn   *net.UDPConn
	closed bool

	sent    atomic.Int64
	failed  atomic.Int64
	lastErr atomic.Pointer[error]
}

// NewClient creates an undialled client. registry and logger may be nil.
func NewClient(config Config, registry *metric.MetricsRegistry, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		config:  config,
		logger:  logger.With("component", "osc", "destination", config.Address()),
		metrics: newMetrics(registry),
	}
}

// Dial resolves the destination and opens the socket. A name that does not
// resolve yet is transient; a socket that cannot be opened is fatal.
func (c *Client) Dial() error {
	if err := c.config.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return errors.WrapTransient(errors.ErrShuttingDown, "osc", "Dial", "check state")
	}
	if c.conn != nil {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "osc", "Dial", "check state")
	}

	raddr, err := net.ResolveUDPAddr("udp", c.config.Address())
	if err != nil {
		return errors.WrapTransient(err, "osc", "Dial", "resolve destination")
	}

	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return errors.WrapFatal(err, "osc", "Dial", "open udp socket")
	}

	c.conn = conn
	c.logger.Info("OSC client ready", "local", conn.LocalAddr().String())
	return nil
}

// Encode serializes one address/value pair into an OSC packet
func Encode(address string, v message.Value) ([]byte, error) {
	data, err := goosc.NewMessage(address, v.Arg()).MarshalBinary()
	if err != nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %v", errors.ErrInvalidData, err),
			"osc", "Encode", fmt.Sprintf("encode %s", address))
	}
	return data, nil
}

// Emit encodes one pair and writes it as one datagram. Errors are classified:
// an undialled or closed client and socket failures are transient, an
// unencodable value is invalid. Callers decide whether to ignore them.
func (c *Client) Emit(address string, v message.Value) error {
	data, err := Encode(address, v)
	if err != nil {
		c.recordFailure(err)
		return err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return errors.WrapTransient(errors.ErrShuttingDown, "osc", "Emit", "check state")
	}
	if c.conn == nil {
		err := errors.WrapTransient(errors.ErrNoConnection, "osc", "Emit", "check connection")
		c.recordFailure(err)
		return err
	}

	if c.config.WriteTimeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	}

	n, err := c.conn.Write(data)
	if err != nil {
		err = errors.WrapTransient(err, "osc", "Emit", fmt.Sprintf("write %s", address))
		c.recordFailure(err)
		return err
	}

	c.sent.Add(1)
	if c.lastErr.Load() != nil {
		c.lastErr.Store(nil)
	}
	if c.metrics != nil {
		c.metrics.sent.Inc()
		c.metrics.bytes.Add(float64(n))
	}
	return nil
}

// Send emits a mapped message
func (c *Client) Send(m message.Message) error {
	return c.Emit(m.Address, m.Value)
}

// EmitAny coerces v with message.Coerce and emits it
func (c *Client) EmitAny(address string, v any) error {
	return c.Emit(address, message.Coerce(v))
}

func (c *Client) recordFailure(err error) {
	c.failed.Add(1)
	if c.metrics != nil {
		c.metrics.sendErrors.WithLabelValues(errors.Classify(err).String()).Inc()
	}
	c.lastErr.Store(&err)
}

// Close closes the socket. Safe to call more than once and before Dial.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	if c.conn == nil {
		return nil
	}

	err := c.conn.Close()
	c.conn = nil
	c.logger.Info("OSC client closed", "sent", c.sent.Load(), "failed", c.failed.Load())
	if err != nil {
		return errors.WrapTransient(err, "osc", "Close", "close udp socket")
	}
	return nil
}

// LocalAddr returns the socket's local address, or nil if not dialled
func (c *Client) LocalAddr() net.Addr {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.conn == nil {
		return nil
	}
	return c.conn.LocalAddr()
}

// Stats returns the number of datagrams written and emissions that failed
func (c *Client) Stats() (sent, failed int64) {
	return c.sent.Load(), c.failed.Load()
}

// Health reports the socket state and the last send failure
func (c *Client) Health() health.Status {
	c.mu.RLock()
	running := c.conn != nil && !c.closed
	c.mu.RUnlock()

	var lastErr error
	if p := c.lastErr.Load(); p != nil {
		lastErr = *p
	}

	status := health.FromError("osc", running, lastErr)
	return status.WithMetrics(&health.Metrics{
		MessagesProcessed: c.sent.Load(),
		ErrorCount:        c.failed.Load(),
	})
}
