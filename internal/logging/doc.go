// Package logging provides structured logging with per-module log levels.
//
// Every module logger writes to stdout (text or JSON), to the systemd
// journal when journald is reachable, and to an in-memory ring buffer that
// backs the log history endpoint and the log SSE stream.
//
// Initialize once at startup:
//
//	logging.Initialize(logging.Config{
//		Level:  "info",
//		Format: "text",
//		Modules: map[string]string{
//			"session":  "debug",
//			"pipeline": "warn",
//		},
//	})
//
// Get a logger for a module and scope it to a camera:
//
//	logger := logging.ForCamera(logging.GetLogger("session"), 0, "Porch")
//	logger.Info("Ingesting", "uri", uri)
//
// Levels can be changed while running with [SetModuleLevel].
//
// Journal entries carry SYSLOG_IDENTIFIER=camrecd and one upper-case field
// per attribute:
//
//	journalctl -t camrecd -f
//	journalctl -t camrecd MODULE=recording CAMERA=Porch
//
// TOML configuration:
//
//	[logging]
//	level = "info"
//	format = "text"
//
//	[logging.modules]
//	session = "debug"
package logging
