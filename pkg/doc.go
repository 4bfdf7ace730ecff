// Package pkg provides shared utilities for the bluebox device and host tools.
//
// This package contains common functionality used by the control-endpoint
// stack, the request dispatcher, the transceiver driver and the host client:
//
//   - Structured logging through [log/slog] backed by charmbracelet/log
//   - Sentinel error values for USB and radio configuration errors
//   - Component identifiers for log filtering
//
// # Logging
//
// The logging subsystem wraps [log/slog] with bluebox-specific context:
//
//	pkg.SetLogLevel(slog.LevelDebug)
//	pkg.LogInfo(pkg.ComponentDispatch, "frequency set", "freq", 437425000)
//
// Output format is selected with [SetLogFormat] and may be text, JSON or
// logfmt.
//
// # Errors
//
// Common errors are defined as sentinel values:
//
//	if errors.Is(err, pkg.ErrStall) {
//	    // Handle a stalled control request
//	}
package pkg
