package telemetry

// Flatten converts a nested snapshot into dotted-path fields.
//
// Traversal is depth-first in the snapshot's own order, so the same snapshot
// always yields the same sequence. Nested snapshots extend the path with
// ".<name>"; leaves that are neither scalars nor snapshots are skipped.
// Only fields included by filter are returned.
func Flatten(snapshot Snapshot, filter Filter) []FlatField {
	var out []FlatField
	flattenInto(&out, snapshot, "", filter)
	return out
}

func flattenInto(out *[]FlatField, snapshot Snapshot, prefix string, filter Filter) {
	for _, field := range snapshot {
		if field.Name == "" {
			continue
		}
		path := field.Name
		if prefix != "" {
			path = prefix + PathSeparator + field.Name
		}

		if nested, ok := field.Value.(Snapshot); ok {
			flattenInto(out, nested, path, filter)
			continue
		}
		if !IsScalar(field.Value) {
			continue
		}
		if !filter.Includes(path) {
			continue
		}
		*out = append(*out, FlatField{Path: path, Value: field.Value})
	}
}

// Paths returns the path of every field, in order.
func Paths(fields []FlatField) []string {
	paths := make([]string, len(fields))
	for i, f := range fields {
		paths[i] = f.Path
	}
	return paths
}
