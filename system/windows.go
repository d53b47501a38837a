//go:build windows

package system

import (
	"errors"

	"golang.org/x/sys/windows"
)

// stillActive is the exit code reported for a process that has not exited
const stillActive = 259

// alive opens the process with the least privileged query right
func alive(pid int) (bool, error) {
	if pid <= 0 {
		return false, nil
	}

	h, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, uint32(pid))
	if err != nil {
		switch {
		case errors.Is(err, windows.ERROR_ACCESS_DENIED):
			return true, nil
		case errors.Is(err, windows.ERROR_INVALID_PARAMETER):
			return false, nil
		}
		return false, err
	}
	defer windows.CloseHandle(h)

	var code uint32
	if err := windows.GetExitCodeProcess(h, &code); err != nil {
		return false, err
	}
	return code == stillActive, nil
}

func isNoSuchProcess(err error) bool {
	return errors.Is(err, windows.ERROR_INVALID_PARAMETER)
}
