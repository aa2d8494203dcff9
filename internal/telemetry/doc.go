// Package telemetry defines the device-neutral telemetry model used by the
// bridge: nested snapshots, flattened fields, path filters, and the Source
// contract implemented by device adapters.
//
// # Model
//
// A Snapshot is an ordered list of named values. Each value is either a
// scalar (bool, integer, float, string) or a nested Snapshot. Order is the
// source's native enumeration order, which keeps Flatten output stable from
// one poll to the next.
//
//	snap := telemetry.Snapshot{
//	    {Name: "device_state", Value: telemetry.Snapshot{
//	        {Name: "uptime_s", Value: uint64(10)},
//	    }},
//	}
//	fields := telemetry.Flatten(snap, telemetry.NewFilter("device_state"))
//	// [{device_state.uptime_s 10}]
//
// # Thread Safety
//
// Snapshots and FlatFields are values produced per poll cycle and never
// mutated after construction. Filter is immutable after NewFilter.
package telemetry
