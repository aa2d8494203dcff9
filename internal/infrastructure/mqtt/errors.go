package mqtt

import "errors"

// Sentinel errors, checked with errors.Is.
var (
	// ErrNotConnected is returned by Publish and Subscribe before Connect
	// or after Disconnect.
	ErrNotConnected = errors.New("mqtt: not connected")

	// ErrConnectionFailed wraps connect refusals and timeouts.
	ErrConnectionFailed = errors.New("mqtt: connect failed")

	// ErrPublishFailed wraps broker errors, timeouts and oversize payloads.
	ErrPublishFailed = errors.New("mqtt: publish failed")

	// ErrSubscribeFailed wraps subscription errors and timeouts.
	ErrSubscribeFailed = errors.New("mqtt: subscribe failed")

	// ErrInvalidTopic is returned for empty topics and for publish topics
	// containing wildcards.
	ErrInvalidTopic = errors.New("mqtt: invalid topic")

	// ErrTLSConfig is returned when the CA bundle or client certificate
	// cannot be loaded.
	ErrTLSConfig = errors.New("mqtt: invalid TLS configuration")
)
