package telemetry

import "context"

// Source is the capability a device adapter exposes to the bridge.
//
// Implementations perform no retries; callers bound each call with a context
// deadline and decide whether to try again.
type Source interface {
	// Fetch returns a fresh snapshot of the device's current field values.
	// Errors wrap ErrSourceUnavailable or ErrSourceProtocol.
	Fetch(ctx context.Context) (Snapshot, error)

	// Write sets a single field identified by its dotted path.
	// Errors wrap ErrFieldNotWritable, ErrPermissionDenied, ErrInvalidValue
	// or ErrSourceUnavailable.
	Write(ctx context.Context, path string, value any) (WriteOutcome, error)
}

// WriteOutcome describes a write the device accepted.
type WriteOutcome struct {
	// Path is the normalised dotted path that was written.
	Path string

	// Applied is the value as the device understood it (for example the
	// resolved enum name), rendered as a string.
	Applied string
}
