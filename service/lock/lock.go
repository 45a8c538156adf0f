// Package lock guards a data directory so only one poller writes to it.
package lock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"golang.org/x/sys/unix"
)

// ErrHeld is returned when another process holds the lease.
var ErrHeld = errors.New("lease is held by another process")

// FileName is the lease file created in the data directory.
const FileName = "whalealert.lock"

// Lease is an exclusive advisory lock on a file. The kernel releases it when
// the process exits.
type Lease struct {
	f *os.File
}

// Acquire takes the lease at path without blocking. The file records the
// holder's pid.
func Acquire(path string) (*Lease, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create lease directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open lease file: %w", err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, fmt.Errorf("%w: %s", ErrHeld, path)
		}
		return nil, fmt.Errorf("failed to lock %s: %w", path, err)
	}

	if err := f.Truncate(0); err == nil {
		f.WriteAt([]byte(strconv.Itoa(os.Getpid())+"\n"), 0)
	}
	return &Lease{f: f}, nil
}

// AcquireDir takes the lease for a data directory.
func AcquireDir(dir string) (*Lease, error) {
	return Acquire(filepath.Join(dir, FileName))
}

// Release drops the lease.
func (l *Lease) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	if err := unix.Flock(int(l.f.Fd()), unix.LOCK_UN); err != nil {
		l.f.Close()
		l.f = nil
		return fmt.Errorf("failed to unlock: %w", err)
	}
	err := l.f.Close()
	l.f = nil
	return err
}
