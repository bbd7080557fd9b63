// Package config holds the bridge configuration: defaults, an optional JSON
// file layer and FEATUREBRIDGE_* environment overrides.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/c360/featurebridge/errors"
	"github.com/c360/featurebridge/input/websocket"
	"github.com/c360/featurebridge/output/osc"
)

// EnvPrefix prefixes every environment override
const EnvPrefix = "FEATUREBRIDGE"

// Config is read once at startup and never changes afterwards
type Config struct {
	WebSocket websocket.Config `json:"websocket"`
	OSC       osc.Config       `json:"osc"`

	HeartbeatInterval time.Duration `json:"heartbeat_interval"`
	ShutdownGrace     time.Duration `json:"shutdown_grace"`
	StepTimeout       time.Duration `json:"step_timeout"`

	Metrics MetricsConfig `json:"metrics"`
}

// MetricsConfig configures the /metrics and /health HTTP server
type MetricsConfig struct {
	// Port 0 disables the server
	Port int    `json:"port"`
	Path string `json:"path"`
}

// DefaultConfig returns the built-in defaults
func DefaultConfig() *Config {
	return &Config{
		WebSocket:         websocket.DefaultConfig(),
		OSC:               osc.DefaultConfig(),
		HeartbeatInterval: 10 * time.Second,
		ShutdownGrace:     250 * time.Millisecond,
		StepTimeout:       5 * time.Second,
		Metrics: MetricsConfig{
			Port: 9090,
			Path: "/metrics",
		},
	}
}

// Validate checks every section
func (c *Config) Validate() error {
	if err := c.WebSocket.Validate(); err != nil {
		return err
	}
	if err := c.OSC.Validate(); err != nil {
		return err
	}
	if c.HeartbeatInterval <= 0 {
		return invalid("heartbeat interval must be positive, got %s", c.HeartbeatInterval)
	}
	if c.ShutdownGrace < 0 {
		return invalid("shutdown grace must not be negative, got %s", c.ShutdownGrace)
	}
	if c.StepTimeout < 0 {
		return invalid("step timeout must not be negative, got %s", c.StepTimeout)
	}
	if c.Metrics.Port < 0 || c.Metrics.Port > 65535 {
		return invalid("metrics port %d out of range", c.Metrics.Port)
	}
	if c.Metrics.Port != 0 && c.Metrics.Port == c.WebSocket.Port {
		return invalid("metrics port %d collides with the websocket port", c.Metrics.Port)
	}
	if c.Metrics.Port != 0 && !strings.HasPrefix(c.Metrics.Path, "/") {
		return invalid("metrics path %q must start with /", c.Metrics.Path)
	}
	return nil
}

func invalid(format string, args ...any) error {
	return errors.WrapInvalid(
		fmt.Errorf("%w: "+format, append([]any{errors.ErrInvalidConfig}, args...)...),
		"config", "Validate", "check config")
}

// durationKeys lists the JSON paths that accept duration strings
var durationKeys = [][]string{
	{"heartbeat_interval"},
	{"shutdown_grace"},
	{"step_timeout"},
	{"osc", "write_timeout"},
}

// LoadFile layers a JSON file over the defaults. Keys missing from the file
// keep their default; durations may be written as "250ms" or as nanoseconds.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapFatal(err, "config", "LoadFile", fmt.Sprintf("read %s", path))
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %v", errors.ErrInvalidConfig, err),
			"config", "LoadFile", fmt.Sprintf("parse %s", path))
	}

	if err := parseDurations(raw); err != nil {
		return nil, errors.WrapInvalid(err, "config", "LoadFile", fmt.Sprintf("parse %s", path))
	}

	normalized, err := json.Marshal(raw)
	if err != nil {
		return nil, errors.WrapFatal(err, "config", "LoadFile", "re-encode config")
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(normalized, cfg); err != nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %v", errors.ErrInvalidConfig, err),
			"config", "LoadFile", fmt.Sprintf("decode %s", path))
	}
	return cfg, nil
}

// parseDurations rewrites duration strings to nanoseconds in place
func parseDurations(raw map[string]any) error {
	for _, path := range durationKeys {
		parent := raw
		for _, key := range path[:len(path)-1] {
			next, ok := parent[key].(map[string]any)
			if !ok {
				parent = nil
				break
			}
			parent = next
		}
		if parent == nil {
			continue
		}

		leaf := path[len(path)-1]
		s, ok := parent[leaf].(string)
		if !ok {
			continue
		}
		d, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", errors.ErrInvalidConfig, strings.Join(path, "."), err)
		}
		parent[leaf] = d.Nanoseconds()
	}
	return nil
}

// LookupFunc matches os.LookupEnv
type LookupFunc func(key string) (string, bool)

// ApplyEnv overrides fields from FEATUREBRIDGE_* variables. Malformed values
// are rejected rather than ignored.
func (c *Config) ApplyEnv(lookup LookupFunc) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}

	env := envReader{lookup: lookup}

	env.setString("WS_HOST", &c.WebSocket.Host)
	env.setInt("WS_PORT", &c.WebSocket.Port)
	env.setString("WS_PATH", &c.WebSocket.Path)
	env.setInt64("WS_MAX_MESSAGE_BYTES", &c.WebSocket.MaxMessageBytes)
	env.setInt("WS_MAX_CONNECTIONS", &c.WebSocket.MaxConnections)
	env.setString("OSC_HOST", &c.OSC.Host)
	env.setInt("OSC_PORT", &c.OSC.Port)
	env.setDuration("HEARTBEAT_INTERVAL", &c.HeartbeatInterval)
	env.setDuration("SHUTDOWN_GRACE", &c.ShutdownGrace)
	env.setInt("METRICS_PORT", &c.Metrics.Port)

	if env.err != nil {
		return errors.WrapInvalid(env.err, "config", "ApplyEnv", "parse environment")
	}
	return nil
}

// envReader keeps the first parse error so call sites stay linear
type envReader struct {
	lookup LookupFunc
	err    error
}

func (e *envReader) get(name string) (string, string, bool) {
	key := EnvPrefix + "_" + name
	v, ok := e.lookup(key)
	if !ok || v == "" || e.err != nil {
		return key, "", false
	}
	return key, v, true
}

func (e *envReader) fail(key, value string, err error) {
	e.err = fmt.Errorf("%w: %s=%q: %v", errors.ErrInvalidConfig, key, value, err)
}

func (e *envReader) setString(name string, dst *string) {
	if _, v, ok := e.get(name); ok {
		*dst = v
	}
}

func (e *envReader) setInt(name string, dst *int) {
	key, v, ok := e.get(name)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.fail(key, v, err)
		return
	}
	*dst = n
}

func (e *envReader) setInt64(name string, dst *int64) {
	key, v, ok := e.get(name)
	if !ok {
		return
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		e.fail(key, v, err)
		return
	}
	*dst = n
}

func (e *envReader) setDuration(name string, dst *time.Duration) {
	key, v, ok := e.get(name)
	if !ok {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.fail(key, v, err)
		return
	}
	*dst = d
}

// String renders the configuration for startup logs
func (c *Config) String() string {
	return fmt.Sprintf("ws=%s%s osc=%s heartbeat=%s grace=%s metrics_port=%d",
		c.WebSocket.Address(), c.WebSocket.Path, c.OSC.Address(),
		c.HeartbeatInterval, c.ShutdownGrace, c.Metrics.Port)
}
