// Package health provides component health reporting and the bridge
// heartbeat.
//
// # Health States
//
// Three states are reported:
//   - Healthy: component operating normally
//   - Degraded: running, but the last operation failed (e.g. an OSC send)
//   - Unhealthy: not running
//
// # Monitor
//
// Monitor is a thread-safe map of component name to Status. Components that
// implement Reporter are polled by the heartbeat; Snapshot combines
// them with Aggregate, where unhealthy beats degraded beats healthy. Handler
// serves the aggregate as JSON and answers 503 when it is unhealthy:
//
//	monitor := health.NewMonitor()
//	server.Handle("/health", monitor.Handler("featurebridge"))
//
// Error text passed through FromError is sanitized: URLs, paths, IP
// addresses, ports and credential-looking pairs are replaced with
// placeholders before they reach the endpoint.
//
// # Heartbeat
//
// Heartbeat logs one "heartbeat" record per interval with the live session
// count and uptime, refreshes the monitor and updates its gauges. It never
// blocks on I/O and its only stop action is cancelling the ticker:
//
//	hb := health.NewHeartbeat("heartbeat", 30*time.Second, sessions, monitor, registry, logger)
//	hb.AddReporter("osc", oscClient)
//	if err := hb.Start(ctx); err != nil {
//		return err
//	}
//	defer hb.Stop()
package health
