package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	acerrors "github.com/academe-ai/academe/internal/errors"
)

// DirLock guards a data directory against concurrent processes.
// SQLite WAL tolerates concurrent readers, but the in-memory vector and
// lexical indexes do not survive two writers sharing one directory.
type DirLock struct {
	fl *flock.Flock
}

// AcquireDirLock takes a non-blocking exclusive lock on dataDir.
// Returns a StoreLocked error when another process holds it.
func AcquireDirLock(dataDir string) (*DirLock, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	fl := flock.New(filepath.Join(dataDir, ".academe.lock"))
	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire data dir lock: %w", err)
	}
	if !locked {
		return nil, acerrors.New(acerrors.ErrCodeStoreLocked,
			fmt.Sprintf("data directory %s is in use by another process", dataDir), nil)
	}
	return &DirLock{fl: fl}, nil
}

// Release unlocks the data directory.
func (l *DirLock) Release() error {
	return l.fl.Unlock()
}
