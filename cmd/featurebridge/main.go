// Package main runs the feature bridge: it accepts audio feature frames over
// WebSocket and re-emits them as OSC messages over UDP.
package main

import (
	"context"
	stderrors "errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/c360/featurebridge/bridge"
	"github.com/c360/featurebridge/config"
	"github.com/c360/featurebridge/health"
	"github.com/c360/featurebridge/input/websocket"
	"github.com/c360/featurebridge/lifecycle"
	"github.com/c360/featurebridge/metric"
	"github.com/c360/featurebridge/output/osc"
	"github.com/c360/featurebridge/pkg/retry"
	"github.com/c360/featurebridge/session"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "featurebridge"
)

const stopTimeout = 2 * time.Second

type teardownStep struct {
	name string
	fn   func() error
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cliCfg, err := parseFlags(args, os.Stderr)
	if err != nil {
		if stderrors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	if err := validateFlags(cliCfg); err != nil {
		fmt.Fprintf(os.Stderr, "invalid flags: %v\n", err)
		return 2
	}

	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return 0
	}

	logger := setupLogger(cliCfg.LogLevel, cliCfg.LogFormat, os.Stdout)
	slog.SetDefault(logger)

	cfg, err := loadConfig(cliCfg, nil)
	if err != nil {
		logger.Error("Configuration failed", "error", err)
		return 1
	}

	if cliCfg.Validate {
		logger.Info("Configuration is valid", "config", cfg.String())
		return 0
	}

	logger.Info("Starting featurebridge",
		"version", Version,
		"build_time", BuildTime,
		"config", cfg.String())

	return serve(cfg, logger)
}

// loadConfig layers defaults, the optional file, the environment and
// explicit flags, then validates the result.
func loadConfig(cliCfg *CLIConfig, lookup config.LookupFunc) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if cliCfg.ConfigPath != "" {
		loaded, err := config.LoadFile(cliCfg.ConfigPath)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}

	if err := cfg.ApplyEnv(lookup); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}

	cliCfg.apply(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// serve wires the pipeline and blocks until the coordinator finishes
// teardown. The returned value is the process exit code.
func serve(cfg *config.Config, logger *slog.Logger) (code int) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry := metric.NewMetricsRegistry()
	monitor := health.NewMonitor()
	sessions := session.NewRegistry()

	coord := lifecycle.New(lifecycle.Config{
		Grace:       cfg.ShutdownGrace,
		StepTimeout: cfg.StepTimeout,
	}, registry, logger)

	defer func() {
		if coord.State() == lifecycle.StateStopped {
			code = coord.ExitCode()
		}
	}()
	defer coord.Recover()

	out := osc.NewClient(cfg.OSC, registry, logger)
	pipeline := bridge.New(out, nil, registry, logger)

	listener, err := websocket.NewServer(cfg.WebSocket, sessions, pipeline, registry, logger)
	if err != nil {
		logger.Error("Failed to create listener", "error", err)
		return 1
	}

	heartbeat := health.NewHeartbeat("heartbeat", cfg.HeartbeatInterval, sessions, monitor, registry, logger)
	heartbeat.AddReporter("websocket", listener)
	heartbeat.AddReporter("osc", out)

	// Panics in read loops and heartbeat ticks shut down through the coordinator
	listener.SetLauncher(coord.Go)
	heartbeat.SetLauncher(coord.Go)

	var metricsServer *metric.Server
	if cfg.Metrics.Port != 0 {
		addr := net.JoinHostPort("", strconv.Itoa(cfg.Metrics.Port))
		metricsServer = metric.NewServer(addr, cfg.Metrics.Path, registry)
		metricsServer.Handle("/health", monitor.Handler(appName))
	}

	// Teardown order: timer, sessions, listener, outbound socket
	steps := []teardownStep{
		{"heartbeat", heartbeat.Stop},
		{"sessions", func() error { return stderrors.Join(sessions.CloseAll()...) }},
		{"listener", func() error { return listener.Stop(stopTimeout) }},
		{"osc", out.Close},
	}
	if metricsServer != nil {
		steps = append(steps, teardownStep{"metrics", func() error { return metricsServer.Stop(stopTimeout) }})
	}
	for _, s := range steps {
		if err := coord.AddStep(s.name, s.fn); err != nil {
			logger.Error("Failed to register shutdown step", "step", s.name, "error", err)
			return 1
		}
	}

	stopSignals := coord.WatchSignals()
	defer stopSignals()

	if err := start(ctx, out, listener, heartbeat, metricsServer, coord); err != nil {
		coord.Shutdown(lifecycle.ReasonFault, err)
		<-coord.Done()
		return coord.ExitCode()
	}

	logger.Info("Bridge running",
		"listen", listener.URL(),
		"osc", cfg.OSC.Address(),
		"heartbeat", cfg.HeartbeatInterval.String())

	<-coord.Done()
	return coord.ExitCode()
}

func start(
	ctx context.Context,
	out *osc.Client,
	listener *websocket.Server,
	heartbeat *health.Heartbeat,
	metricsServer *metric.Server,
	coord *lifecycle.Coordinator,
) error {
	if err := retry.Do(ctx, retry.Startup(), out.Dial); err != nil {
		return fmt.Errorf("dial osc: %w", err)
	}

	if err := listener.Start(ctx); err != nil {
		return fmt.Errorf("start listener: %w", err)
	}

	if err := heartbeat.Start(ctx); err != nil {
		return fmt.Errorf("start heartbeat: %w", err)
	}

	if metricsServer != nil {
		if err := metricsServer.Start(); err != nil {
			return fmt.Errorf("start metrics server: %w", err)
		}
		coord.Go("metrics", metricsServer.Serve)
	}
	return nil
}
