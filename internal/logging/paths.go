package logging

import (
	"fmt"
	"os"
	"path/filepath"
)

// LogFileName is the active log file inside the logs directory.
const LogFileName = "chatbot.log"

// LogDir returns <dataDir>/logs.
func LogDir(dataDir string) string {
	return filepath.Join(dataDir, "logs")
}

// LogPath returns the active log file path for dataDir.
func LogPath(dataDir string) string {
	return filepath.Join(LogDir(dataDir), LogFileName)
}

// EnsureLogDir creates the log directory if it doesn't exist.
func EnsureLogDir(dataDir string) error {
	return os.MkdirAll(LogDir(dataDir), 0o755)
}

// FindLogFile returns the explicit path if it exists, otherwise the default
// log file of dataDir.
func FindLogFile(dataDir, explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("log file not found: %s", explicit)
		}
		return explicit, nil
	}

	path := LogPath(dataDir)
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("no log file found, run with --debug first (expected at %s)", path)
	}
	return path, nil
}
