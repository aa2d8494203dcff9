package dish

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"google.golang.org/protobuf/reflect/protoreflect"

	"github.com/nerrad567/gray-logic-starlink/internal/telemetry"
)

// toSnapshot converts a message into a snapshot in declaration order.
// Unset message fields become empty snapshots; lists, maps and bytes are
// kept as non-scalar values.
func toSnapshot(m protoreflect.Message) telemetry.Snapshot {
	fields := m.Descriptor().Fields()
	snap := make(telemetry.Snapshot, 0, fields.Len())
	for i := 0; i < fields.Len(); i++ {
		fd := fields.Get(i)
		snap = append(snap, telemetry.Field{
			Name:  string(fd.Name()),
			Value: fieldValue(m, fd),
		})
	}
	return snap
}

func fieldValue(m protoreflect.Message, fd protoreflect.FieldDescriptor) any {
	switch {
	case fd.IsMap():
		out := make(map[string]any)
		m.Get(fd).Map().Range(func(k protoreflect.MapKey, v protoreflect.Value) bool {
			out[k.String()] = singularValue(fd.MapValue(), v)
			return true
		})
		return out

	case fd.IsList():
		list := m.Get(fd).List()
		out := make([]any, list.Len())
		for i := range out {
			out[i] = singularValue(fd, list.Get(i))
		}
		return out

	case fd.Message() != nil:
		if !m.Has(fd) {
			return telemetry.Snapshot{}
		}
		return toSnapshot(m.Get(fd).Message())
	}
	return singularValue(fd, m.Get(fd))
}

func singularValue(fd protoreflect.FieldDescriptor, v protoreflect.Value) any {
	switch fd.Kind() {
	case protoreflect.MessageKind, protoreflect.GroupKind:
		return toSnapshot(v.Message())
	case protoreflect.EnumKind:
		n := v.Enum()
		if ev := fd.Enum().Values().ByNumber(n); ev != nil {
			return string(ev.Name())
		}
		return int32(n)
	default:
		return v.Interface()
	}
}

// setPath resolves parts on m, creating intermediate messages, and stores
// the converted value in the leaf. It returns the applied value as text.
func setPath(m protoreflect.Message, parts []string, value any) (string, error) {
	current := m
	for _, part := range parts[:len(parts)-1] {
		fd := current.Descriptor().Fields().ByName(protoreflect.Name(part))
		if fd == nil {
			return "", fmt.Errorf("%w: unknown field %s", telemetry.ErrFieldNotWritable, part)
		}
		if fd.IsList() || fd.IsMap() {
			return "", fmt.Errorf("%w: repeated field %s", telemetry.ErrFieldNotWritable, part)
		}
		if fd.Message() == nil {
			return "", fmt.Errorf("%w: %s is not a message", telemetry.ErrFieldNotWritable, part)
		}
		current = current.Mutable(fd).Message()
	}

	leafName := parts[len(parts)-1]
	leaf := current.Descriptor().Fields().ByName(protoreflect.Name(leafName))
	if leaf == nil {
		return "", fmt.Errorf("%w: unknown field %s", telemetry.ErrFieldNotWritable, leafName)
	}
	if leaf.IsList() || leaf.IsMap() || leaf.Message() != nil {
		return "", fmt.Errorf("%w: %s is not a scalar field", telemetry.ErrFieldNotWritable, leafName)
	}

	v, applied, err := convertValue(leaf, value)
	if err != nil {
		return "", err
	}
	current.Set(leaf, v)
	return applied, nil
}

// convertValue converts a command value (bool, integer, float or string) to
// the protobuf type of fd.
func convertValue(fd protoreflect.FieldDescriptor, value any) (protoreflect.Value, string, error) {
	invalid := func(format string, args ...any) (protoreflect.Value, string, error) {
		return protoreflect.Value{}, "", fmt.Errorf("%w: %s: %s", telemetry.ErrInvalidValue, fd.Name(), fmt.Sprintf(format, args...))
	}

	switch fd.Kind() {
	case protoreflect.EnumKind:
		ev, err := parseEnum(fd.Enum(), value)
		if err != nil {
			return invalid("%v", err)
		}
		return protoreflect.ValueOfEnum(ev.Number()), string(ev.Name()), nil

	case protoreflect.BoolKind:
		b, ok := toBool(value)
		if !ok {
			return invalid("%v is not a boolean", value)
		}
		return protoreflect.ValueOfBool(b), strconv.FormatBool(b), nil

	case protoreflect.Int32Kind, protoreflect.Sint32Kind, protoreflect.Sfixed32Kind:
		n, ok := toInt64(value)
		if !ok || n < math.MinInt32 || n > math.MaxInt32 {
			return invalid("%v is not a 32-bit integer", value)
		}
		return protoreflect.ValueOfInt32(int32(n)), strconv.FormatInt(n, 10), nil

	case protoreflect.Int64Kind, protoreflect.Sint64Kind, protoreflect.Sfixed64Kind:
		n, ok := toInt64(value)
		if !ok {
			return invalid("%v is not an integer", value)
		}
		return protoreflect.ValueOfInt64(n), strconv.FormatInt(n, 10), nil

	case protoreflect.Uint32Kind, protoreflect.Fixed32Kind:
		n, ok := toInt64(value)
		if !ok || n < 0 || n > math.MaxUint32 {
			return invalid("%v is not an unsigned 32-bit integer", value)
		}
		return protoreflect.ValueOfUint32(uint32(n)), strconv.FormatInt(n, 10), nil

	case protoreflect.Uint64Kind, protoreflect.Fixed64Kind:
		n, ok := toInt64(value)
		if !ok || n < 0 {
			return invalid("%v is not an unsigned integer", value)
		}
		return protoreflect.ValueOfUint64(uint64(n)), strconv.FormatInt(n, 10), nil

	case protoreflect.FloatKind:
		f, ok := toFloat64(value)
		if !ok {
			return invalid("%v is not a number", value)
		}
		return protoreflect.ValueOfFloat32(float32(f)), strconv.FormatFloat(f, 'g', -1, 32), nil

	case protoreflect.DoubleKind:
		f, ok := toFloat64(value)
		if !ok {
			return invalid("%v is not a number", value)
		}
		return protoreflect.ValueOfFloat64(f), strconv.FormatFloat(f, 'g', -1, 64), nil

	case protoreflect.StringKind:
		s := fmt.Sprint(value)
		return protoreflect.ValueOfString(s), s, nil

	case protoreflect.BytesKind:
		s := fmt.Sprint(value)
		return protoreflect.ValueOfBytes([]byte(s)), s, nil
	}
	return protoreflect.Value{}, "", fmt.Errorf("%w: %s has unsupported kind %s", telemetry.ErrFieldNotWritable, fd.Name(), fd.Kind())
}

// parseEnum resolves value against ed: exact name after normalisation
// ("always-on" → "ALWAYS_ON"), then a unique "_SUFFIX" match ("on" →
// "ALWAYS_ON"), then a declared number.
func parseEnum(ed protoreflect.EnumDescriptor, value any) (protoreflect.EnumValueDescriptor, error) {
	values := ed.Values()

	if n, ok := value.(int64); ok {
		if ev := values.ByNumber(protoreflect.EnumNumber(n)); ev != nil && int64(int32(n)) == n {
			return ev, nil
		}
		return nil, fmt.Errorf("unknown value %d for %s", n, ed.Name())
	}

	text := strings.TrimSpace(fmt.Sprint(value))
	normalized := strings.ToUpper(text)
	normalized = strings.NewReplacer("-", "_", " ", "_").Replace(normalized)

	if ev := values.ByName(protoreflect.Name(normalized)); ev != nil {
		return ev, nil
	}

	var matches []protoreflect.EnumValueDescriptor
	for i := 0; i < values.Len(); i++ {
		ev := values.Get(i)
		if strings.HasSuffix(string(ev.Name()), "_"+normalized) {
			matches = append(matches, ev)
		}
	}
	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
	default:
		return nil, fmt.Errorf("ambiguous value %q for %s", text, ed.Name())
	}

	if n, err := strconv.ParseInt(text, 10, 32); err == nil {
		if ev := values.ByNumber(protoreflect.EnumNumber(n)); ev != nil {
			return ev, nil
		}
	}

	names := make([]string, values.Len())
	for i := range names {
		names[i] = string(values.Get(i).Name())
	}
	return nil, fmt.Errorf("unknown value %q for %s, supported: %s", text, ed.Name(), strings.Join(names, ", "))
}

func toBool(value any) (bool, bool) {
	switch v := value.(type) {
	case bool:
		return v, true
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "on", "yes":
			return true, true
		case "0", "false", "off", "no":
			return false, true
		}
	case int64:
		if v == 0 || v == 1 {
			return v == 1, true
		}
	}
	return false, false
}

func toInt64(value any) (int64, bool) {
	switch v := value.(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case float64:
		if v == math.Trunc(v) && v >= math.MinInt64 && v <= math.MaxInt64 {
			return int64(v), true
		}
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		return n, err == nil
	}
	return 0, false
}

func toFloat64(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case int64:
		return float64(v), true
	case int:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	}
	return 0, false
}
