// Package dish implements telemetry.Source for a Starlink dish.
//
// The dish exposes a single unary gRPC method, SpaceX.API.Device.Device/Handle,
// that takes a Request with one of many sub-requests set and returns a
// Response. The message definitions are not published, so the client works
// from a protoset (a serialised FileDescriptorSet) captured from the dish
// with:
//
//	grpcurl -plaintext -protoset-out dish.protoset 192.168.100.1:9200 \
//	    describe SpaceX.API.Device.Device
//
// Requests and responses are built with dynamicpb, so no generated code is
// needed.
//
// # Snapshots
//
// Fetch issues get_status and dish_get_config. Status fields appear at the
// top level of the snapshot; the configuration appears under "dish_config".
// Enum values are rendered by name.
//
// # Writes
//
// Write resolves a dotted path on DishConfig ("dish_config." is optional),
// converts the value to the field's type, sets the matching apply_<field>
// flag and issues dish_set_config.
package dish
