// Package config handles loading and validating the bridge configuration.
//
// Values are layered in this order, later layers winning:
//   - Built-in defaults (Default)
//   - An optional YAML file
//   - STARLINK_BRIDGE_* environment variables
//   - Command-line flags, applied by the caller
//
// Validate reports every problem in one error so an operator can fix a
// config file in a single pass.
//
// Secrets (mqtt.auth.password, influxdb.token) are best supplied through
// STARLINK_BRIDGE_MQTT_PASSWORD and STARLINK_BRIDGE_INFLUXDB_TOKEN rather
// than the file.
//
//	cfg, err := config.Load(path)
//	if err != nil {
//	    return err
//	}
//	topics := bridge.NewTopics(cfg.Bridge.TopicPrefix)
package config
