// Package system wraps OS process inspection behind a small capability
// interface so the monitor never talks to the operating system directly.
package system

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/dreamsxin/procwatch/types"
)

var (
	// ErrProcessGone means the process no longer exists
	ErrProcessGone = errors.New("process no longer exists")
	// ErrAccessDenied means the process exists but cannot be inspected
	ErrAccessDenied = errors.New("access denied")
	// ErrNotImplemented means the platform does not expose the requested field
	ErrNotImplemented = errors.New("not implemented on this platform")
)

// MemoryInfo is the byte breakdown of a process' memory usage
type MemoryInfo struct {
	RSS    uint64
	VMS    uint64
	Shared uint64
}

// Handle gives read access to a single OS process.
//
// Every method returns errors classified as ErrProcessGone, ErrAccessDenied
// or ErrNotImplemented when the failure falls into one of those buckets.
type Handle interface {
	Pid() int
	IsRunning(ctx context.Context) (bool, error)
	Name(ctx context.Context) (string, error)
	CPUPercent(ctx context.Context) (float64, error)
	MemoryPercent(ctx context.Context) (float64, error)
	MemoryInfo(ctx context.Context) (MemoryInfo, error)
	NumThreads(ctx context.Context) (int32, error)
	NumFDs(ctx context.Context) (int32, error)
	Status(ctx context.Context) (string, error)
	Cmdline(ctx context.Context) (string, error)
	Exe(ctx context.Context) (string, error)
	Cwd(ctx context.Context) (string, error)
	Username(ctx context.Context) (string, error)
	Ppid(ctx context.Context) (int, error)
	Children(ctx context.Context) ([]int, error)
	NumOpenFiles(ctx context.Context) (int, error)
	NumConnections(ctx context.Context) (int, error)
	CreateTime(ctx context.Context) (time.Time, error)
	Times(ctx context.Context) (types.CPUTimes, error)
	IOCounters(ctx context.Context) (types.IOCounters, error)
	CtxSwitches(ctx context.Context) (types.CtxSwitches, error)
	Nice(ctx context.Context) (int32, error)
}

// Capability resolves pids to handles and enumerates the host's processes
type Capability interface {
	// Open returns a handle for a running pid, or ErrProcessGone
	Open(ctx context.Context, pid int) (Handle, error)
	// Alive is a cheap liveness probe. A process that exists but cannot be
	// signalled is reported alive.
	Alive(ctx context.Context, pid int) (bool, error)
	// Processes enumerates every process on the host
	Processes(ctx context.Context) ([]Handle, error)
}

// IsGone reports whether err means the process disappeared
func IsGone(err error) bool {
	return errors.Is(err, ErrProcessGone)
}

// IsDenied reports whether err means the process could not be inspected
func IsDenied(err error) bool {
	return errors.Is(err, ErrAccessDenied)
}

// IsSoft reports whether err is a failure that only affects optional fields
func IsSoft(err error) bool {
	return errors.Is(err, ErrAccessDenied) || errors.Is(err, ErrNotImplemented)
}

// Classify maps a raw inspection error onto the capability's error taxonomy
func Classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrProcessGone), errors.Is(err, ErrAccessDenied), errors.Is(err, ErrNotImplemented):
		return err
	case errors.Is(err, process.ErrorProcessNotRunning), errors.Is(err, fs.ErrNotExist), isNoSuchProcess(err):
		return fmt.Errorf("%w: %v", ErrProcessGone, err)
	case errors.Is(err, fs.ErrPermission):
		return fmt.Errorf("%w: %v", ErrAccessDenied, err)
	case strings.Contains(err.Error(), "not implemented"):
		return fmt.Errorf("%w: %v", ErrNotImplemented, err)
	}
	return err
}
