// Package mqtt connects the bridge to an MQTT broker.
//
// Client implements bridge.Transport on top of paho.mqtt.golang:
//   - One connection attempt per Connect, bounded by the caller's context
//   - Last will armed before connecting (SetWill)
//   - Connection loss reported to a callback, never retried internally
//   - Publish and Subscribe use the configured QoS and reject bad topics
//   - Handler panics are recovered and logged
//   - Optional TLS with a CA bundle and client certificate
//
// # Usage
//
//	client, err := mqtt.NewClient(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	client.SetWill("taphome/starlink/status", []byte("offline"), true)
//	if err := client.Connect(ctx); err != nil {
//	    return err
//	}
//	defer client.Disconnect()
package mqtt
