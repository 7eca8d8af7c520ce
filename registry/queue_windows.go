//go:build windows
// +build windows

// File: registry/queue_windows.go
// Exclusive advisory locking for the queue file via LockFileEx.

package registry

import (
	"os"

	"golang.org/x/sys/windows"
)

// lockRangeBytes covers the whole file; the queue file is never large
// enough to need finer-grained ranges.
const lockRangeBytes = ^uint32(0)

func lockExclusive(f *os.File) error {
	var overlapped windows.Overlapped
	return windows.LockFileEx(
		windows.Handle(f.Fd()),
		windows.LOCKFILE_EXCLUSIVE_LOCK,
		0,
		lockRangeBytes,
		lockRangeBytes,
		&overlapped,
	)
}

func unlockFile(f *os.File) error {
	var overlapped windows.Overlapped
	return windows.UnlockFileEx(
		windows.Handle(f.Fd()),
		0,
		lockRangeBytes,
		lockRangeBytes,
		&overlapped,
	)
}
