package logging

import (
	"log/slog"
)

// SetupServerMode initializes logging for the MCP stdio server.
// stdout carries JSON-RPC exclusively, so records go to the log file only
// and never to stdout or stderr.
func SetupServerMode(dataDir, level string) (func(), error) {
	if level == "" {
		level = "debug"
	}
	cfg := DefaultConfig(dataDir)
	cfg.Level = level
	cfg.WriteToStderr = false

	if err := EnsureLogDir(dataDir); err != nil {
		return nil, err
	}
	logger, cleanup, err := Setup(cfg)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)

	slog.Info("server_logging_initialized",
		slog.String("log_file", cfg.FilePath),
		slog.String("level", cfg.Level))

	return cleanup, nil
}
