package bridge

import (
	"encoding/json"
	"time"

	"github.com/nerrad567/gray-logic-starlink/internal/telemetry"
)

// Outcome is the result category of a command.
type Outcome string

const (
	// OutcomeAccepted indicates the device applied the value.
	OutcomeAccepted Outcome = "accepted"

	// OutcomeRejected indicates the command was refused without a write,
	// or the device refused it for policy or validation reasons.
	OutcomeRejected Outcome = "rejected"

	// OutcomeError indicates the write could not be completed.
	OutcomeError Outcome = "error"
)

// Ack details for rejected and failed commands.
const (
	DetailNotWritable      = "field not writable"
	DetailInvalidPayload   = "invalid payload"
	DetailPermissionDenied = "permission denied"
	DetailUnreachable      = "device unreachable"
)

// CommandRequest is a write request received on a command topic.
type CommandRequest struct {
	// Field is the dotted path the command targets, after alias resolution.
	Field string

	// Target is the topic level the command arrived on: the field path, or
	// an alias name.
	Target string

	// Payload is the raw message payload.
	Payload string

	// Received is when the message was handled.
	Received time.Time
}

// AckResult reports the outcome of a single command.
// Published to "{prefix}/{target}/ack" as
// {"field":...,"outcome":...,"detail":...,"ts":<unix seconds>}.
type AckResult struct {
	Field     string
	Outcome   Outcome
	Detail    string
	Timestamp time.Time
}

type ackWire struct {
	Field   string  `json:"field"`
	Outcome Outcome `json:"outcome"`
	Detail  string  `json:"detail"`
	TS      int64   `json:"ts"`
}

// MarshalJSON encodes the ack in its wire format.
func (a AckResult) MarshalJSON() ([]byte, error) {
	return json.Marshal(ackWire{
		Field:   a.Field,
		Outcome: a.Outcome,
		Detail:  a.Detail,
		TS:      a.Timestamp.Unix(),
	})
}

// UnmarshalJSON decodes the wire format.
func (a *AckResult) UnmarshalJSON(data []byte) error {
	var w ackWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*a = AckResult{
		Field:     w.Field,
		Outcome:   w.Outcome,
		Detail:    w.Detail,
		Timestamp: time.Unix(w.TS, 0).UTC(),
	}
	return nil
}

// Aggregate is the combined snapshot published to "{prefix}/all".
type Aggregate struct {
	Fields    map[string]any `json:"fields"`
	Timestamp int64          `json:"timestamp"`
}

// NewAggregate builds the aggregate payload for fields captured at ts.
// encoding/json writes map keys sorted, so the payload is deterministic.
// NaN and infinite readings have no JSON form and are written as null.
func NewAggregate(fields []telemetry.FlatField, ts time.Time) Aggregate {
	values := make(map[string]any, len(fields))
	for _, f := range fields {
		if !telemetry.IsFinite(f.Value) {
			values[f.Path] = nil
			continue
		}
		values[f.Path] = f.Value
	}
	return Aggregate{Fields: values, Timestamp: ts.Unix()}
}
