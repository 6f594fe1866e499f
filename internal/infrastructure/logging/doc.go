// Package logging provides structured logging for indihub.
//
// This package wraps Go's standard log/slog package to provide
// consistent, structured logging across the broker and its adapters.
//
// # Features
//
//   - JSON output for log shippers, text output for a terminal
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (trace, debug, info, warn, error)
//   - Thread-safe for concurrent use
//
// # Configuration
//
//	logging:
//	  level: "info"      # trace, debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Passing -v to indihub raises the level to debug, which includes every
// routed element and every dropped stream frame. -vv selects trace, which
// adds the source location to each record.
//
// # Usage
//
//	logger := logging.New(cfg.Logging, version)
//	logger.Info("listening", "addr", ln.Addr())
//	logger.Error("driver retired", "driver", name, "restarts", n)
//
// Never log MQTT passwords or InfluxDB tokens.
package logging
