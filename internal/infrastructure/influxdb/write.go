package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/gray-logic-starlink/internal/bridge"
	"github.com/nerrad567/gray-logic-starlink/internal/telemetry"
)

var _ bridge.HistorySink = (*Client)(nil)

// Record writes one point holding every field of a poll cycle.
//
// Field keys are the dotted telemetry paths. Missing values and non-finite
// floats are left out; a cycle with nothing left writes no point. The write
// is non-blocking.
func (c *Client) Record(fields []telemetry.FlatField, ts time.Time) {
	if !c.IsConnected() {
		return
	}

	values := pointFields(fields)
	if len(values) == 0 {
		return
	}

	c.writer.WritePoint(write.NewPoint(c.measurement, c.tags, values, ts))
}

// pointFields converts flat fields to InfluxDB field values.
func pointFields(fields []telemetry.FlatField) map[string]any {
	values := make(map[string]any, len(fields))
	for _, f := range fields {
		if f.Value == nil || !telemetry.IsScalar(f.Value) || !telemetry.IsFinite(f.Value) {
			continue
		}
		values[f.Path] = f.Value
	}
	return values
}
