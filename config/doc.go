// Package config provides the bridge configuration.
//
// Values are layered, later layers winning:
//
//  1. DefaultConfig
//  2. an optional JSON file (LoadFile)
//  3. FEATUREBRIDGE_* environment variables (ApplyEnv)
//  4. command-line flags, applied by cmd/featurebridge
//
// Example file:
//
//	{
//	  "websocket": {"host": "0.0.0.0", "port": 8080, "path": "/"},
//	  "osc": {"host": "127.0.0.1", "port": 9000, "write_timeout": "100ms"},
//	  "heartbeat_interval": "10s",
//	  "shutdown_grace": "250ms",
//	  "metrics": {"port": 9090, "path": "/metrics"}
//	}
//
// Environment variables: FEATUREBRIDGE_WS_HOST, FEATUREBRIDGE_WS_PORT,
// FEATUREBRIDGE_WS_PATH, FEATUREBRIDGE_WS_MAX_MESSAGE_BYTES,
// FEATUREBRIDGE_WS_MAX_CONNECTIONS, FEATUREBRIDGE_OSC_HOST,
// FEATUREBRIDGE_OSC_PORT, FEATUREBRIDGE_HEARTBEAT_INTERVAL,
// FEATUREBRIDGE_SHUTDOWN_GRACE and FEATUREBRIDGE_METRICS_PORT.
//
// Configuration is read once at startup. Validate reports the first problem
// as an invalid-class error.
package config
