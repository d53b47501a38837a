//go:build !windows

package system

import (
	"errors"

	"golang.org/x/sys/unix"
)

// alive sends signal 0 to the pid; EPERM still proves the process exists
func alive(pid int) (bool, error) {
	if pid <= 0 {
		return false, nil
	}

	err := unix.Kill(pid, 0)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, unix.EPERM):
		return true, nil
	case errors.Is(err, unix.ESRCH):
		return false, nil
	}
	return false, err
}

func isNoSuchProcess(err error) bool {
	return errors.Is(err, unix.ESRCH)
}
