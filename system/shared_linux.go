//go:build linux

package system

import (
	"context"

	"github.com/shirou/gopsutil/v3/process"
)

func sharedMemory(ctx context.Context, p *process.Process) (uint64, error) {
	ex, err := p.MemoryInfoExWithContext(ctx)
	if err != nil {
		return 0, Classify(err)
	}
	return ex.Shared, nil
}
