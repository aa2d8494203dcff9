// Package logging provides structured logging for the Starlink bridge.
//
// Every entry carries the service name and build version. Attributes whose
// key mentions a password, token or secret are written as "[redacted]".
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Components take a child logger:
//
//	logger := logging.New(cfg.Logging, version)
//	logger.With("component", "dish").Info("fetched status", "fields", n)
package logging
