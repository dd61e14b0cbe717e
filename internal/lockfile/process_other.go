//go:build !unix && !windows

package lockfile

import "errors"

var errUnsupportedPlatform = errors.New("process control is not supported on this platform")

func processAlive(int) bool {
	return false
}

func terminateProcess(int) error {
	return errUnsupportedPlatform
}
