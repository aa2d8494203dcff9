package telemetry

import (
	"strings"
)

// Filter selects flattened fields by path prefix.
// An empty Filter includes everything.
type Filter struct {
	entries []string
}

// NewFilter builds a Filter from raw user input.
//
// Each value may hold a comma-separated list. Entries are trimmed, "/" is
// accepted as an alternative separator, and leading or trailing separators
// are dropped. Empty and duplicate entries are ignored.
func NewFilter(values ...string) Filter {
	seen := make(map[string]bool)
	var entries []string
	for _, raw := range values {
		for _, chunk := range strings.Split(raw, ",") {
			entry := NormalizePath(chunk)
			if entry == "" || seen[entry] {
				continue
			}
			seen[entry] = true
			entries = append(entries, entry)
		}
	}
	return Filter{entries: entries}
}

// Entries returns the normalised filter entries in input order.
func (f Filter) Entries() []string {
	out := make([]string, len(f.entries))
	copy(out, f.entries)
	return out
}

// IsEmpty reports whether the filter includes every path.
func (f Filter) IsEmpty() bool {
	return len(f.entries) == 0
}

// Includes reports whether path equals, or is nested under, a filter entry.
func (f Filter) Includes(path string) bool {
	if f.IsEmpty() {
		return true
	}
	for _, entry := range f.entries {
		if matchesPrefix(path, entry) {
			return true
		}
	}
	return false
}

// Unmatched returns the filter entries that select none of the given paths.
func (f Filter) Unmatched(paths []string) []string {
	var missing []string
	for _, entry := range f.entries {
		found := false
		for _, p := range paths {
			if matchesPrefix(p, entry) {
				found = true
				break
			}
		}
		if !found {
			missing = append(missing, entry)
		}
	}
	return missing
}

// matchesPrefix reports whether path is entry or a descendant of it.
func matchesPrefix(path, entry string) bool {
	return path == entry || strings.HasPrefix(path, entry+PathSeparator)
}

// NormalizePath converts user-supplied paths ("dish_config/snow_melt_mode",
// " .device_state. ") into canonical dotted form.
func NormalizePath(path string) string {
	p := strings.TrimSpace(path)
	p = strings.ReplaceAll(p, "/", PathSeparator)
	return strings.Trim(p, PathSeparator)
}

// SplitPath splits a dotted path into its segments.
func SplitPath(path string) []string {
	if path == "" {
		return nil
	}
	return strings.Split(path, PathSeparator)
}

// Apply returns the fields the filter includes, preserving order.
func (f Filter) Apply(fields []FlatField) []FlatField {
	if f.IsEmpty() {
		return fields
	}
	out := make([]FlatField, 0, len(fields))
	for _, field := range fields {
		if f.Includes(field.Path) {
			out = append(out, field)
		}
	}
	return out
}
