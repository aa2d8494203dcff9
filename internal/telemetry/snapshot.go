package telemetry

import (
	"math"
	"strconv"
)

// PathSeparator joins nested field names into a dotted path.
const PathSeparator = "."

// Field is one named entry of a Snapshot.
//
// Value is a scalar (bool, any integer kind, float32/float64, string), a
// nested Snapshot, or something else (lists, raw bytes) which Flatten skips.
// A nil Value represents a field the device reported without a value.
type Field struct {
	Name  string
	Value any
}

// Snapshot is an ordered, possibly nested set of field values captured in a
// single poll.
type Snapshot []Field

// Get returns the value stored under name at this level.
func (s Snapshot) Get(name string) (any, bool) {
	for _, f := range s {
		if f.Name == name {
			return f.Value, true
		}
	}
	return nil, false
}

// Lookup resolves a dotted path through nested snapshots.
func (s Snapshot) Lookup(path string) (any, bool) {
	current := s
	parts := SplitPath(path)
	for i, part := range parts {
		v, ok := current.Get(part)
		if !ok {
			return nil, false
		}
		if i == len(parts)-1 {
			return v, true
		}
		nested, ok := v.(Snapshot)
		if !ok {
			return nil, false
		}
		current = nested
	}
	return nil, false
}

// FlatField is a single scalar value addressed by its dotted path.
type FlatField struct {
	Path  string
	Value any
}

// IsScalar reports whether v is a value Flatten will emit.
// nil counts as a scalar so callers can decide how to publish missing values.
func IsScalar(v any) bool {
	switch v.(type) {
	case nil, bool, string,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return true
	default:
		return false
	}
}

// IsFinite reports whether v can be encoded as a JSON number or stored as
// a time-series field. Only NaN and infinite floats are not finite.
func IsFinite(v any) bool {
	switch x := v.(type) {
	case float32:
		return !math.IsNaN(float64(x)) && !math.IsInf(float64(x), 0)
	case float64:
		return !math.IsNaN(x) && !math.IsInf(x, 0)
	default:
		return true
	}
}

// FormatValue renders a scalar as an MQTT payload string.
// Floats use the shortest representation that round-trips; nil renders as
// an empty string.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case int:
		return strconv.FormatInt(int64(x), 10)
	case int8:
		return strconv.FormatInt(int64(x), 10)
	case int16:
		return strconv.FormatInt(int64(x), 10)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case int64:
		return strconv.FormatInt(x, 10)
	case uint:
		return strconv.FormatUint(uint64(x), 10)
	case uint8:
		return strconv.FormatUint(uint64(x), 10)
	case uint16:
		return strconv.FormatUint(uint64(x), 10)
	case uint32:
		return strconv.FormatUint(uint64(x), 10)
	case uint64:
		return strconv.FormatUint(x, 10)
	case float32:
		return strconv.FormatFloat(float64(x), 'g', -1, 32)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	default:
		return ""
	}
}
