// Package influxdb records dish telemetry history in InfluxDB v2.
//
// Client implements bridge.HistorySink: each successful poll cycle becomes
// one point in the configured measurement, with one field per telemetry
// path.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB, map[string]string{"prefix": prefix})
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//	client.SetOnError(func(err error) { logger.Warn("history write failed", "error", err) })
//
// # Error Handling
//
// Writes are non-blocking and batched (batch_size, flush_interval). Write
// failures arrive asynchronously through the SetOnError callback.
// Connection and health check errors are returned directly.
package influxdb
