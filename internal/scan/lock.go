package scan

import (
	"fmt"
	"os"
	"syscall"
)

// lockRun acquires an exclusive advisory flock on the given path so two
// overlapping invocations cannot race the ledger. It returns an unlock
// function that must be called to release the lock.
func lockRun(path string) (unlock func() error, err error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening run lock: %w", err)
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX); err != nil {
		f.Close()
		return nil, fmt.Errorf("acquiring run lock: %w", err)
	}
	return func() error {
		defer f.Close()
		return syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
	}, nil
}
