package types

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrAlreadyMonitored is returned when a logical name is registered twice
	ErrAlreadyMonitored = errors.New("process is already being monitored")
	// ErrEmptyName is returned when a process is registered without a name
	ErrEmptyName = errors.New("process name must not be empty")
)

// InvalidProcessError reports a pid that does not resolve to a running process
type InvalidProcessError struct {
	Name string
	PID  int
	Err  error
}

func (e *InvalidProcessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid process %q (pid %d): %v", e.Name, e.PID, e.Err)
	}
	return fmt.Sprintf("invalid process %q (pid %d): not running", e.Name, e.PID)
}

func (e *InvalidProcessError) Unwrap() error {
	return e.Err
}

// MonitoredProcessInfo describes a registry entry
type MonitoredProcessInfo struct {
	Name         string    `json:"name"`
	PID          int       `json:"pid"`
	RegisteredAt time.Time `json:"registered_at"`
}

// Uptime returns how long the process has been monitored
func (p MonitoredProcessInfo) Uptime() time.Duration {
	return time.Since(p.RegisteredAt)
}
