//go:build windows

package lockfile

import (
	"golang.org/x/sys/windows"
)

// stillActive is the exit code GetExitCodeProcess reports for running processes.
const stillActive = 259

func processAlive(pid int) bool {
	handle, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, uint32(pid)) //nolint:gosec // pid validated positive
	if err != nil {
		return false
	}
	defer windows.CloseHandle(handle) //nolint:errcheck // best effort

	var code uint32

	if err = windows.GetExitCodeProcess(handle, &code); err != nil {
		return false
	}

	return code == stillActive
}

func terminateProcess(pid int) error {
	handle, err := windows.OpenProcess(windows.PROCESS_TERMINATE, false, uint32(pid)) //nolint:gosec // pid validated positive
	if err != nil {
		return err
	}
	defer windows.CloseHandle(handle) //nolint:errcheck // best effort

	return windows.TerminateProcess(handle, 1)
}
