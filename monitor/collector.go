package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/dreamsxin/procwatch/system"
	"github.com/dreamsxin/procwatch/types"
)

const bytesPerMB = 1024 * 1024

// Collector reads one snapshot of a process through its capability handle
type Collector struct {
	timeout time.Duration
	now     func() time.Time
}

// NewCollector returns a Collector bounding every collection by timeout
func NewCollector(timeout time.Duration) *Collector {
	return &Collector{timeout: timeout, now: time.Now}
}

// pass tracks the failures seen while reading one snapshot
type pass struct {
	// err is the first failure of a core field
	err error
	// gone is set when any read shows the process has disappeared
	gone error
}

// core records a failure of a field the snapshot cannot do without
func (p *pass) core(err error) {
	if err == nil {
		return
	}
	if system.IsGone(err) && p.gone == nil {
		p.gone = err
	}
	if p.err == nil {
		p.err = err
	}
}

// optional only keeps track of disappearance; access-denied and
// unsupported fields stay zero.
func (p *pass) optional(err error) {
	if err != nil && system.IsGone(err) && p.gone == nil {
		p.gone = err
	}
}

// Collect builds the snapshot for name. Health and trends are left empty.
//
// The returned error wraps system.ErrProcessGone when the process vanished
// and system.ErrAccessDenied when a core field could not be read.
func (c *Collector) Collect(ctx context.Context, name string, h system.Handle) (*types.ExtendedProcessMetrics, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var p pass
	m := &types.ExtendedProcessMetrics{
		PID:  h.Pid(),
		Name: name,
	}

	var (
		mem system.MemoryInfo
		err error
	)
	// create time pins the pid to the process that was opened
	m.CreateTime, err = h.CreateTime(ctx)
	p.core(err)
	if p.gone != nil {
		return nil, fmt.Errorf("collect %s (pid %d): %w", name, m.PID, p.gone)
	}

	m.CPUPercent, err = h.CPUPercent(ctx)
	p.core(err)
	m.MemoryPercent, err = h.MemoryPercent(ctx)
	p.core(err)
	mem, err = h.MemoryInfo(ctx)
	p.core(err)
	m.Status, err = h.Status(ctx)
	p.core(err)

	m.NumThreads, err = h.NumThreads(ctx)
	p.optional(err)
	m.NumFDs, err = h.NumFDs(ctx)
	p.optional(err)
	m.CPUTimes, err = h.Times(ctx)
	p.optional(err)
	m.IOCounters, err = h.IOCounters(ctx)
	p.optional(err)
	m.CtxSwitches, err = h.CtxSwitches(ctx)
	p.optional(err)
	m.Nice, err = h.Nice(ctx)
	p.optional(err)
	m.Cmdline, err = h.Cmdline(ctx)
	p.optional(err)
	m.Exe, err = h.Exe(ctx)
	p.optional(err)
	m.Cwd, err = h.Cwd(ctx)
	p.optional(err)
	m.Username, err = h.Username(ctx)
	p.optional(err)
	m.ParentPID, err = h.Ppid(ctx)
	p.optional(err)
	m.ChildrenPIDs, err = h.Children(ctx)
	p.optional(err)
	m.OpenFilesCount, err = h.NumOpenFiles(ctx)
	p.optional(err)
	m.ConnectionsCount, err = h.NumConnections(ctx)
	p.optional(err)

	// the pid may have been reused while the fields were read
	_, err = h.CreateTime(ctx)
	p.optional(err)

	if p.gone != nil {
		return nil, fmt.Errorf("collect %s (pid %d): %w", name, m.PID, p.gone)
	}
	if p.err != nil {
		return nil, fmt.Errorf("collect %s (pid %d): %w", name, m.PID, p.err)
	}

	now := c.now()
	m.MemoryRSS = mem.RSS
	m.MemoryVMS = mem.VMS
	m.MemoryShared = mem.Shared
	m.MemoryMB = float64(mem.RSS) / bytesPerMB
	if !m.CreateTime.IsZero() {
		m.UptimeSeconds = now.Sub(m.CreateTime).Seconds()
	}
	m.Timestamp = now
	return m, nil
}
