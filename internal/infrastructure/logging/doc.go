// Package logging provides structured logging for the MELCloud bridge.
//
// This package wraps Go's standard log/slog package so that every component
// logs with the same handler, level and default fields (service, version).
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, version)
//	logger.Info("device fetched", "device_id", 42)
//
// Never log the MELCloud password or context key.
package logging
