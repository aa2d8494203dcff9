package telemetry

import "errors"

// Source contract errors. Adapters wrap these with %w so callers can branch
// with errors.Is without knowing the device protocol.
var (
	// ErrSourceUnavailable is returned when the device cannot be reached or
	// the call timed out. Transient: the next poll or a resent command may
	// succeed.
	ErrSourceUnavailable = errors.New("telemetry: source unavailable")

	// ErrSourceProtocol is returned when the device response cannot be
	// decoded into the expected structure.
	ErrSourceProtocol = errors.New("telemetry: source protocol error")

	// ErrFieldNotWritable is returned when a write targets a path that does
	// not correspond to a writable field.
	ErrFieldNotWritable = errors.New("telemetry: field not writable")

	// ErrPermissionDenied is returned when the device refuses a write due to
	// account or firmware policy.
	ErrPermissionDenied = errors.New("telemetry: permission denied")

	// ErrInvalidValue is returned when a write value is outside the target
	// field's domain (unknown enum name, non-numeric integer, ...).
	ErrInvalidValue = errors.New("telemetry: invalid value")
)
