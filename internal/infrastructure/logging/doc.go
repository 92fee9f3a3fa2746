// Package logging provides structured logging for Bumper.
//
// It wraps log/slog so every component logs with the same handler,
// level and default fields (service, version).
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// The --debug flag forces the level to debug.
//
// # Usage
//
//	logger := logging.New(cfg.Logging, version)
//	relayLog := logger.Component("relay")
//	relayLog.Info("command relayed", "did", did, "correlation_id", id)
//
// # Security
//
// Access tokens and auth codes are credentials for the companion app.
// Log a short prefix at most, never the full value.
package logging
