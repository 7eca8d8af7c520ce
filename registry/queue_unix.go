//go:build !windows
// +build !windows

// File: registry/queue_unix.go
// Exclusive advisory locking for the queue file via flock(2).

package registry

import (
	"os"

	"golang.org/x/sys/unix"
)

func lockExclusive(f *os.File) error {
	return unix.Flock(int(f.Fd()), unix.LOCK_EX)
}

func unlockFile(f *os.File) error {
	return unix.Flock(int(f.Fd()), unix.LOCK_UN)
}
