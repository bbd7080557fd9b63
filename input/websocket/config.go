package websocket

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/c360/featurebridge/errors"
)

// Config holds configuration for the WebSocket listener
type Config struct {
	Host string `json:"host"`
	// Port 0 binds an ephemeral port
	Port int    `json:"port"`
	Path string `json:"path"`

	// MaxMessageBytes is the per-message read limit. Larger messages close
	// the connection.
	MaxMessageBytes   int64 `json:"max_message_bytes"`
	MaxConnections    int   `json:"max_connections"`
	ReadBufferSize    int   `json:"read_buffer_size"`
	WriteBufferSize   int   `json:"write_buffer_size"`
	EnableCompression bool  `json:"enable_compression"`
}

// DefaultConfig returns the default listener configuration
func DefaultConfig() Config {
	return Config{
		Host:            "0.0.0.0",
		Port:            8080,
		Path:            "/",
		MaxMessageBytes: 1 << 20,
		MaxConnections:  0,
		ReadBufferSize:  4096,
		WriteBufferSize: 1024,
	}
}

// Validate checks the configuration
func (c Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return invalid("port %d out of range", c.Port)
	}
	if !strings.HasPrefix(c.Path, "/") {
		return invalid("path %q must start with /", c.Path)
	}
	if c.MaxMessageBytes <= 0 {
		return invalid("max message bytes must be positive, got %d", c.MaxMessageBytes)
	}
	if c.MaxConnections < 0 {
		return invalid("max connections must not be negative, got %d", c.MaxConnections)
	}
	if c.ReadBufferSize < 0 || c.WriteBufferSize < 0 {
		return invalid("buffer sizes must not be negative")
	}
	return nil
}

// Address returns host:port
func (c Config) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func invalid(format string, args ...any) error {
	return errors.WrapInvalid(
		fmt.Errorf("%w: "+format, append([]any{errors.ErrInvalidConfig}, args...)...),
		"websocket", "Validate", "check config")
}
