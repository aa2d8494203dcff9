// Package bridge implements the Starlink telemetry to MQTT bridge engine.
//
// The engine samples a telemetry.Source on a fixed cadence, flattens each
// snapshot into dotted field paths and publishes one retained message per
// field. Companion "/set" topics accept write-back commands which are
// validated, forwarded to the source and acknowledged on "/ack" topics.
//
// # Architecture
//
//	┌──────────────┐  Fetch/Write  ┌──────────────┐   MQTT   ┌──────────┐
//	│ Starlink dish│◄─────────────►│    bridge    │◄────────►│  broker  │
//	└──────────────┘     gRPC      └──────────────┘          └──────────┘
//
// The pieces are:
//
//   - Topics maps field paths to topic strings and back.
//   - Reconciler turns a snapshot into field publishes plus the optional
//     aggregate, and remembers the last payloads for replay.
//   - CommandBridge handles inbound "/set" messages and publishes acks.
//   - Session owns the transport: connect, liveness status with last will,
//     reconnect with capped exponential backoff and the poll loop.
//
// # Topics
//
// With the prefix "starlink":
//
//	starlink/status                          online | offline (retained)
//	starlink/all                             JSON aggregate (optional)
//	starlink/device_state.uptime_s           field value (retained)
//	starlink/dish_config.snow_melt_mode/set  command
//	starlink/dish_config.snow_melt_mode/ack  acknowledgement
//
// # Thread Safety
//
// Reconciler, CommandBridge and Session are safe for concurrent use.
package bridge
