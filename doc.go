// Package featurebridge relays real-time audio feature frames to an
// OSC-speaking visual host.
//
// # Architecture
//
// Producers, typically a browser running audio analysis, connect over
// WebSocket and send JSON envelopes of the form
//
//	{"type": "features", "payload": {"rms": 0.5, "beat": true, "mfcc": [...]}}
//
// Each frame flows through a fixed pipeline:
//
//	input/websocket  accepts sessions, decodes frames (frame)
//	bridge           maps frames to addressed values (mapping)
//	output/osc       encodes and sends one UDP datagram per value
//
// Around the pipeline:
//
//	session    live inbound connections, closed together on shutdown
//	health     heartbeat with the live-session count, health aggregation
//	lifecycle  signal and fault handling, ordered teardown, exit code
//	metric     Prometheus registry and the /metrics and /health server
//	config     defaults, JSON file and FEATUREBRIDGE_* environment
//	errors     transient, invalid and fatal error classes
//
// Malformed input is dropped at the edge and counted. Send failures are
// counted and never stop a frame. Only unexpected faults reach the
// lifecycle coordinator, which tears everything down exactly once.
//
// The binary lives in cmd/featurebridge.
package featurebridge
