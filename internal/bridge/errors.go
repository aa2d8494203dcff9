package bridge

import "errors"

// Domain errors for the bridge package.
var (
	// ErrInvalidPath is returned when a field path cannot be mapped to a
	// topic (empty segments, "/" or MQTT wildcards).
	ErrInvalidPath = errors.New("bridge: invalid field path")

	// ErrReservedPath is returned when a field path collides with one of
	// the bridge's own topics ("status", "all").
	ErrReservedPath = errors.New("bridge: reserved field path")

	// ErrInvalidPayload is returned when a command payload cannot be parsed
	// for the target field.
	ErrInvalidPayload = errors.New("bridge: invalid payload")

	// ErrConnectFailed is returned when the transport could not connect.
	ErrConnectFailed = errors.New("bridge: transport connect failed")

	// ErrFetchFailed is returned when a poll cycle could not fetch telemetry.
	ErrFetchFailed = errors.New("bridge: telemetry fetch failed")

	// ErrPublishFailed is returned when a message could not be published.
	ErrPublishFailed = errors.New("bridge: publish failed")

	// ErrNotReady is returned by Session.HealthCheck while the session is
	// not connected or the last fetch failed.
	ErrNotReady = errors.New("bridge: session not ready")
)
