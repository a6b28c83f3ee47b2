package retrieval

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/NguyenDuy1910/chatbot/internal/errors"
)

const lockFileName = ".lock"

// dataDirLock keeps a second process from opening the same data directory.
type dataDirLock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

func newDataDirLock(dataDir string) *dataDirLock {
	path := filepath.Join(dataDir, lockFileName)
	return &dataDirLock{path: path, flock: flock.New(path)}
}

// acquire takes the lock without blocking. A held lock is ERR_103.
func (l *dataDirLock) acquire() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return errors.New(errors.ErrCodeConfigInvalid, "failed to create data directory", err).
			WithDetail("path", filepath.Dir(l.path))
	}

	ok, err := l.flock.TryLock()
	if err != nil {
		return errors.New(errors.ErrCodeDataDirLocked, fmt.Sprintf("failed to lock data directory: %v", err), err).
			WithDetail("path", l.path)
	}
	if !ok {
		return errors.New(errors.ErrCodeDataDirLocked, "data directory is in use by another process", nil).
			WithDetail("path", l.path).
			WithSuggestion("stop the other chatbot process or use a different data_dir")
	}
	l.locked = true
	return nil
}

// release is safe to call more than once.
func (l *dataDirLock) release() error {
	if !l.locked {
		return nil
	}
	l.locked = false
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to release data directory lock: %w", err)
	}
	return nil
}
