package bridge

import (
	"fmt"
	"strings"

	"github.com/nerrad567/gray-logic-starlink/internal/telemetry"
)

// Topic suffixes and reserved names.
const (
	// StatusName is the liveness topic name under the prefix.
	StatusName = "status"

	// AllName is the aggregate topic name under the prefix.
	AllName = "all"

	// SetSuffix marks command topics.
	SetSuffix = "set"

	// AckSuffix marks acknowledgement topics.
	AckSuffix = "ack"

	// StatusOnline and StatusOffline are the liveness payloads.
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// Topics derives every MQTT topic the bridge uses from a single prefix.
//
// Field paths keep their dotted form and occupy exactly one topic level, so
// field, command and ack topics can never collide with each other or with
// the status and aggregate topics.
type Topics struct {
	prefix string
}

// NewTopics creates a mapper for prefix. Surrounding whitespace and
// trailing "/" are removed.
func NewTopics(prefix string) Topics {
	p := strings.TrimSpace(prefix)
	p = strings.TrimRight(p, "/")
	return Topics{prefix: p}
}

// Prefix returns the normalised prefix.
func (t Topics) Prefix() string {
	return t.prefix
}

// Status returns "{prefix}/status".
func (t Topics) Status() string {
	return t.join(StatusName)
}

// All returns "{prefix}/all".
func (t Topics) All() string {
	return t.join(AllName)
}

// CommandWildcard returns the subscription filter matching every command
// topic, "{prefix}/+/set".
func (t Topics) CommandWildcard() string {
	return t.join("+", SetSuffix)
}

// Field returns the telemetry topic for path.
func (t Topics) Field(path string) (string, error) {
	if err := ValidatePath(path); err != nil {
		return "", err
	}
	return t.join(path), nil
}

// Set returns the command topic for path.
func (t Topics) Set(path string) (string, error) {
	if err := ValidatePath(path); err != nil {
		return "", err
	}
	return t.join(path, SetSuffix), nil
}

// Ack returns the acknowledgement topic for path.
func (t Topics) Ack(path string) (string, error) {
	if err := ValidatePath(path); err != nil {
		return "", err
	}
	return t.join(path, AckSuffix), nil
}

// ParseCommand is the inverse of Set. It returns the path addressed by a
// command topic, or false when topic is not a command topic under this
// prefix.
func (t Topics) ParseCommand(topic string) (string, bool) {
	rest := topic
	if t.prefix != "" {
		head := t.prefix + "/"
		if !strings.HasPrefix(topic, head) {
			return "", false
		}
		rest = topic[len(head):]
	}

	tail := "/" + SetSuffix
	if !strings.HasSuffix(rest, tail) {
		return "", false
	}
	path := strings.TrimSuffix(rest, tail)
	if ValidatePath(path) != nil {
		return "", false
	}
	return path, true
}

func (t Topics) join(parts ...string) string {
	if t.prefix == "" {
		return strings.Join(parts, "/")
	}
	return t.prefix + "/" + strings.Join(parts, "/")
}

// ValidatePath reports whether path can be used as a single topic level.
func ValidatePath(path string) error {
	if path == "" {
		return fmt.Errorf("%w: empty", ErrInvalidPath)
	}
	if strings.ContainsAny(path, "/+#\x00") {
		return fmt.Errorf("%w: %q contains a topic separator or wildcard", ErrInvalidPath, path)
	}
	for _, segment := range strings.Split(path, telemetry.PathSeparator) {
		if segment == "" {
			return fmt.Errorf("%w: %q has an empty segment", ErrInvalidPath, path)
		}
	}
	if path == StatusName || path == AllName {
		return fmt.Errorf("%w: %q", ErrReservedPath, path)
	}
	return nil
}

// fieldPlaceholder stands for any field path in listed topics.
const fieldPlaceholder = "<field.path>"

// ListTopics returns every topic the bridge publishes or subscribes to for
// the given filter, writable fields and command aliases.
//
// A filter entry selects the field of that name or everything below it, and
// which one applies depends on the dish. Each entry is therefore listed
// twice: as a field topic and with a placeholder for its descendants. An
// empty filter lists the placeholder alone.
func ListTopics(t Topics, filter telemetry.Filter, writable []FieldSpec, aliases map[string]string) []string {
	out := []string{t.Status(), t.All()}

	if filter.IsEmpty() {
		out = append(out, t.join(fieldPlaceholder))
	}
	for _, entry := range filter.Entries() {
		if ValidatePath(entry) == nil {
			out = append(out, t.join(entry))
		}
		out = append(out, t.join(entry+telemetry.PathSeparator+fieldPlaceholder))
	}

	add := func(name string) {
		set, err := t.Set(name)
		if err != nil {
			return
		}
		ack, _ := t.Ack(name)
		out = append(out, set, ack)
	}
	for _, spec := range writable {
		add(spec.Path)
	}
	for _, alias := range sortedKeys(aliases) {
		add(alias)
	}
	return out
}
