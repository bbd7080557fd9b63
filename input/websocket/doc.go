// Package websocket provides the inbound side of the bridge.
//
// Server accepts WebSocket connections from feature producers (typically a
// browser-side audio analysis pipeline). Every accepted connection gets a
// uuid session identity and is registered in the injected session.Registry
// until it closes.
//
// # Message Protocol
//
// Each text message is one JSON envelope:
//
//	{"type": "features", "payload": {"rms": 0.5, "beat": true, "mfcc": [...]}}
//
// Messages are decoded with frame.Decode. Anything that fails to decode
// (non-JSON, a JSON non-object, a missing or foreign type, a missing
// payload) is counted and dropped. The producer gets no reply and the
// connection stays open. There are no acknowledgements in either direction.
//
// # Ordering
//
// One goroutine reads each connection and calls FrameHandler.HandleFrame
// synchronously, so frames from one session are handled in arrival order.
// Frames from different sessions are handled concurrently with no ordering
// between them.
//
// # Shutdown
//
// Stop marks the server closing, closes the listening socket, sends a
// going-away close frame on every owned connection and waits for the read
// loops to exit. Messages read after Stop begins are dropped without being
// decoded, so no new frames reach the handler.
//
// # Metrics
//
// With a metric.MetricsRegistry the server exports
// featurebridge_websocket_connections_active, _connections_total,
// _messages_received_total, _frames_rejected_total, _messages_dropped_total
// and _errors_total{type}.
package websocket
