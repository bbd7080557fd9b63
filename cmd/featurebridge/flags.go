package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"slices"
	"time"

	"github.com/c360/featurebridge/config"
)

// CLIConfig holds command-line configuration
type CLIConfig struct {
	ConfigPath  string
	LogLevel    string
	LogFormat   string
	ShowVersion bool
	Validate    bool

	// Bridge settings; applied over file and environment only when the
	// flag was given explicitly
	WSHost            string
	WSPort            int
	WSPath            string
	OSCHost           string
	OSCPort           int
	HeartbeatInterval time.Duration
	ShutdownGrace     time.Duration
	MetricsPort       int

	set map[string]bool
}

func parseFlags(args []string, output io.Writer) (*CLIConfig, error) {
	cfg := &CLIConfig{set: make(map[string]bool)}
	defaults := config.DefaultConfig()

	fs := flag.NewFlagSet(appName, flag.ContinueOnError)
	fs.SetOutput(output)

	fs.StringVar(&cfg.ConfigPath, "config",
		getEnv(config.EnvPrefix+"_CONFIG", ""),
		"Path to an optional JSON configuration file (env: FEATUREBRIDGE_CONFIG)")
	fs.StringVar(&cfg.ConfigPath, "c",
		getEnv(config.EnvPrefix+"_CONFIG", ""),
		"Path to an optional JSON configuration file (env: FEATUREBRIDGE_CONFIG)")

	fs.StringVar(&cfg.LogLevel, "log-level",
		getEnv(config.EnvPrefix+"_LOG_LEVEL", "info"),
		"Log level: debug, info, warn, error (env: FEATUREBRIDGE_LOG_LEVEL)")

	fs.StringVar(&cfg.LogFormat, "log-format",
		getEnv(config.EnvPrefix+"_LOG_FORMAT", "json"),
		"Log format: json, text (env: FEATUREBRIDGE_LOG_FORMAT)")

	fs.StringVar(&cfg.WSHost, "ws-host", defaults.WebSocket.Host, "Inbound listen host")
	fs.IntVar(&cfg.WSPort, "ws-port", defaults.WebSocket.Port, "Inbound listen port")
	fs.StringVar(&cfg.WSPath, "ws-path", defaults.WebSocket.Path, "Inbound upgrade path")
	fs.StringVar(&cfg.OSCHost, "osc-host", defaults.OSC.Host, "OSC destination host")
	fs.IntVar(&cfg.OSCPort, "osc-port", defaults.OSC.Port, "OSC destination port")
	fs.DurationVar(&cfg.HeartbeatInterval, "heartbeat", defaults.HeartbeatInterval, "Heartbeat interval")
	fs.DurationVar(&cfg.ShutdownGrace, "shutdown-grace", defaults.ShutdownGrace,
		"Pause after teardown so close frames can flush")
	fs.IntVar(&cfg.MetricsPort, "metrics-port", defaults.Metrics.Port,
		"Metrics and health port, 0 to disable")

	fs.BoolVar(&cfg.ShowVersion, "version", false, "Show version information")
	fs.BoolVar(&cfg.ShowVersion, "v", false, "Show version information")
	fs.BoolVar(&cfg.Validate, "validate", false, "Validate configuration and exit")

	fs.Usage = func() {
		printDetailedHelp(fs, output)
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	fs.Visit(func(f *flag.Flag) {
		cfg.set[f.Name] = true
	})

	return cfg, nil
}

func validateFlags(cfg *CLIConfig) error {
	if cfg.ShowVersion {
		return nil
	}

	if cfg.ConfigPath != "" {
		if _, err := os.Stat(cfg.ConfigPath); err != nil {
			return fmt.Errorf("config file not found: %s", cfg.ConfigPath)
		}
	}

	if !slices.Contains([]string{"debug", "info", "warn", "error"}, cfg.LogLevel) {
		return fmt.Errorf("invalid log level: %s", cfg.LogLevel)
	}

	if !slices.Contains([]string{"json", "text"}, cfg.LogFormat) {
		return fmt.Errorf("invalid log format: %s", cfg.LogFormat)
	}

	return nil
}

// apply writes explicitly set bridge flags into cfg
func (c *CLIConfig) apply(cfg *config.Config) {
	if c.set["ws-host"] {
		cfg.WebSocket.Host = c.WSHost
	}
	if c.set["ws-port"] {
		cfg.WebSocket.Port = c.WSPort
	}
	if c.set["ws-path"] {
		cfg.WebSocket.Path = c.WSPath
	}
	if c.set["osc-host"] {
		cfg.OSC.Host = c.OSCHost
	}
	if c.set["osc-port"] {
		cfg.OSC.Port = c.OSCPort
	}
	if c.set["heartbeat"] {
		cfg.HeartbeatInterval = c.HeartbeatInterval
	}
	if c.set["shutdown-grace"] {
		cfg.ShutdownGrace = c.ShutdownGrace
	}
	if c.set["metrics-port"] {
		cfg.Metrics.Port = c.MetricsPort
	}
}

func printDetailedHelp(fs *flag.FlagSet, w io.Writer) {
	_, _ = fmt.Fprintf(w, `%s - audio feature frames to OSC

Usage: %s [options]

Options:
`, appName, appName)
	fs.PrintDefaults()
	_, _ = fmt.Fprintf(w, `
Examples:
  # Forward to a local visual host on port 9000
  %s --osc-port=9000

  # Run with debug logging
  %s --log-level=debug --log-format=text

  # Run with environment variables
  export FEATUREBRIDGE_WS_PORT=8081
  export FEATUREBRIDGE_OSC_HOST=192.168.1.20
  %s

  # Validate configuration only
  %s --config=bridge.json --validate

Version: %s
Build: %s
`, appName, appName, appName, appName, Version, BuildTime)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
