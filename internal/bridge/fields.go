package bridge

import (
	"fmt"
	"slices"
	"sort"
	"strconv"
	"strings"
)

// FieldKind selects how a command payload is parsed.
type FieldKind string

const (
	KindBool   FieldKind = "bool"
	KindInt    FieldKind = "int"
	KindFloat  FieldKind = "float"
	KindEnum   FieldKind = "enum"
	KindString FieldKind = "string"
)

// Valid reports whether k is a known kind.
func (k FieldKind) Valid() bool {
	switch k {
	case KindBool, KindInt, KindFloat, KindEnum, KindString:
		return true
	}
	return false
}

// FieldSpec describes one writable field.
type FieldSpec struct {
	// Path is the dotted field path.
	Path string

	// Kind selects payload parsing.
	Kind FieldKind

	// Values optionally restricts enum payloads. Entries are compared
	// case-insensitively after normalisation.
	Values []string
}

var (
	trueWords  = []string{"on", "true", "1", "yes"}
	falseWords = []string{"off", "false", "0", "no"}
)

// ParseBool accepts on/true/1/yes and off/false/0/no in any case.
func ParseBool(s string) (bool, bool) {
	w := strings.ToLower(strings.TrimSpace(s))
	switch {
	case slices.Contains(trueWords, w):
		return true, true
	case slices.Contains(falseWords, w):
		return false, true
	}
	return false, false
}

// ParsePayload converts a command payload into the value handed to
// telemetry.Source.Write: bool, int64, float64 or string. Enum values are
// returned lower-cased. A payload that is not an allowed value itself but
// is a boolean word maps to "on" or "off" when the field allows those, so
// numeric enum values such as "0" and "1" pass through unchanged on fields
// that list them. Unrestricted enums are never aliased.
func (f FieldSpec) ParsePayload(payload string) (any, error) {
	text := strings.TrimSpace(payload)
	if text == "" {
		return nil, fmt.Errorf("%w: empty payload for %s", ErrInvalidPayload, f.Path)
	}

	switch f.Kind {
	case KindBool:
		v, ok := ParseBool(text)
		if !ok {
			return nil, fmt.Errorf("%w: %q is not a boolean", ErrInvalidPayload, text)
		}
		return v, nil

	case KindInt:
		v, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not an integer", ErrInvalidPayload, text)
		}
		return v, nil

	case KindFloat:
		v, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not a number", ErrInvalidPayload, text)
		}
		return v, nil

	case KindEnum:
		v := normalizeEnum(text)
		if len(f.Values) == 0 || f.allows(v) {
			return v, nil
		}
		if b, ok := ParseBool(v); ok {
			alias := "off"
			if b {
				alias = "on"
			}
			if f.allows(alias) {
				return alias, nil
			}
		}
		return nil, fmt.Errorf("%w: %q not one of %s", ErrInvalidPayload, text, strings.Join(f.Values, ", "))

	case KindString, "":
		return text, nil
	}
	return nil, fmt.Errorf("%w: unknown field kind %q", ErrInvalidPayload, f.Kind)
}

func (f FieldSpec) allows(v string) bool {
	for _, allowed := range f.Values {
		if normalizeEnum(allowed) == v {
			return true
		}
	}
	return false
}

func normalizeEnum(s string) string {
	v := strings.ToLower(strings.TrimSpace(s))
	return strings.Join(strings.Fields(v), "_")
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
