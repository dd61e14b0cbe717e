//go:build unix

package lockfile

import (
	"errors"

	"golang.org/x/sys/unix"
)

// processAlive sends signal 0, which checks existence without delivering anything.
// EPERM means the process exists but belongs to someone else.
func processAlive(pid int) bool {
	err := unix.Kill(pid, 0)

	return err == nil || errors.Is(err, unix.EPERM)
}

func terminateProcess(pid int) error {
	return unix.Kill(pid, unix.SIGKILL)
}
