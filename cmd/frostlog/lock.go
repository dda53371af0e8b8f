package main

import (
	"errors"
	"fmt"

	"github.com/gofrs/flock"
)

var errWorkspaceBusy = errors.New("local workspace is in use by another frostlog process")

// workspaceLock is held by every command that writes the record collections: serve keeps the
// collections in memory and would overwrite changes made underneath it.
type workspaceLock struct {
	lock *flock.Flock
}

func lockWorkspace(databasePath string) (*workspaceLock, error) {
	lock := flock.New(databasePath + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire workspace lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: stop `frostlog serve` before running sync or publish (lock %s)", errWorkspaceBusy, lock.Path())
	}
	return &workspaceLock{lock: lock}, nil
}

func (l *workspaceLock) Close() error {
	return l.lock.Unlock()
}
