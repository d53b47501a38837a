//go:build !linux

package system

import (
	"context"

	"github.com/shirou/gopsutil/v3/process"
)

func sharedMemory(_ context.Context, _ *process.Process) (uint64, error) {
	return 0, ErrNotImplemented
}
