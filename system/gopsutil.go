package system

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/dreamsxin/procwatch/types"
)

// cpuBaseline is how long the first cpu reading of a handle measures, since a
// rate needs two samples
const cpuBaseline = 200 * time.Millisecond

// NewCapability returns the host capability backed by gopsutil
func NewCapability() Capability {
	return hostCapability{}
}

type hostCapability struct{}

func (hostCapability) Open(ctx context.Context, pid int) (Handle, error) {
	alive, err := alive(pid)
	if err != nil {
		return nil, Classify(err)
	}
	if !alive {
		return nil, fmt.Errorf("%w: pid %d", ErrProcessGone, pid)
	}

	p, err := process.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return nil, Classify(err)
	}
	created, err := p.CreateTimeWithContext(ctx)
	if err != nil {
		return nil, Classify(err)
	}
	return &psHandle{proc: p, created: created}, nil
}

func (hostCapability) Alive(_ context.Context, pid int) (bool, error) {
	return alive(pid)
}

func (hostCapability) Processes(ctx context.Context) ([]Handle, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, Classify(err)
	}

	handles := make([]Handle, 0, len(procs))
	for _, p := range procs {
		handles = append(handles, &psHandle{proc: p})
	}
	return handles, nil
}

// psHandle keeps the gopsutil process across samples so that cpu percent is
// computed against the previous call. created pins the handle to one process:
// once the pid is reused every identity check reports ErrProcessGone.
type psHandle struct {
	proc    *process.Process
	created int64 // ms since epoch, 0 when unknown
	primed  bool
}

func (h *psHandle) Pid() int {
	return int(h.proc.Pid)
}

func (h *psHandle) IsRunning(ctx context.Context) (bool, error) {
	running, err := h.proc.IsRunningWithContext(ctx)
	if err != nil {
		err = Classify(err)
		if IsGone(err) {
			return false, nil
		}
		return false, err
	}
	return running, nil
}

func (h *psHandle) Name(ctx context.Context) (string, error) {
	name, err := h.proc.NameWithContext(ctx)
	return name, Classify(err)
}

// CPUPercent measures over cpuBaseline on the first call and since the
// previous call afterwards.
func (h *psHandle) CPUPercent(ctx context.Context) (float64, error) {
	interval := time.Duration(0)
	if !h.primed {
		interval = cpuBaseline
	}
	percent, err := h.proc.PercentWithContext(ctx, interval)
	if err != nil {
		return 0, Classify(err)
	}
	h.primed = true
	return percent, nil
}

func (h *psHandle) MemoryPercent(ctx context.Context) (float64, error) {
	percent, err := h.proc.MemoryPercentWithContext(ctx)
	return float64(percent), Classify(err)
}

func (h *psHandle) MemoryInfo(ctx context.Context) (MemoryInfo, error) {
	info, err := h.proc.MemoryInfoWithContext(ctx)
	if err != nil {
		return MemoryInfo{}, Classify(err)
	}

	mem := MemoryInfo{RSS: info.RSS, VMS: info.VMS}
	// shared memory is only reported on some platforms
	if shared, err := sharedMemory(ctx, h.proc); err == nil {
		mem.Shared = shared
	}
	return mem, nil
}

func (h *psHandle) NumThreads(ctx context.Context) (int32, error) {
	n, err := h.proc.NumThreadsWithContext(ctx)
	return n, Classify(err)
}

func (h *psHandle) NumFDs(ctx context.Context) (int32, error) {
	n, err := h.proc.NumFDsWithContext(ctx)
	return n, Classify(err)
}

func (h *psHandle) Status(ctx context.Context) (string, error) {
	status, err := h.proc.StatusWithContext(ctx)
	if err != nil {
		return "", Classify(err)
	}
	if len(status) == 0 {
		return "", nil
	}
	return status[0], nil
}

func (h *psHandle) Cmdline(ctx context.Context) (string, error) {
	cmdline, err := h.proc.CmdlineWithContext(ctx)
	return cmdline, Classify(err)
}

func (h *psHandle) Exe(ctx context.Context) (string, error) {
	exe, err := h.proc.ExeWithContext(ctx)
	return exe, Classify(err)
}

func (h *psHandle) Cwd(ctx context.Context) (string, error) {
	cwd, err := h.proc.CwdWithContext(ctx)
	return cwd, Classify(err)
}

func (h *psHandle) Username(ctx context.Context) (string, error) {
	user, err := h.proc.UsernameWithContext(ctx)
	return user, Classify(err)
}

func (h *psHandle) Ppid(ctx context.Context) (int, error) {
	ppid, err := h.proc.PpidWithContext(ctx)
	return int(ppid), Classify(err)
}

func (h *psHandle) Children(ctx context.Context) ([]int, error) {
	children, err := h.proc.ChildrenWithContext(ctx)
	if err != nil {
		if errors.Is(err, process.ErrorNoChildren) {
			return nil, nil
		}
		return nil, Classify(err)
	}

	pids := make([]int, 0, len(children))
	for _, child := range children {
		pids = append(pids, int(child.Pid))
	}
	return pids, nil
}

func (h *psHandle) NumOpenFiles(ctx context.Context) (int, error) {
	files, err := h.proc.OpenFilesWithContext(ctx)
	return len(files), Classify(err)
}

func (h *psHandle) NumConnections(ctx context.Context) (int, error) {
	conns, err := h.proc.ConnectionsWithContext(ctx)
	return len(conns), Classify(err)
}

// CreateTime reads the create time of whatever currently owns the pid, so it
// doubles as the identity check of the handle. gopsutil caches the value on
// the process it was opened with.
func (h *psHandle) CreateTime(ctx context.Context) (time.Time, error) {
	current, err := process.NewProcessWithContext(ctx, h.proc.Pid)
	if err != nil {
		return time.Time{}, Classify(err)
	}
	// gopsutil reports milliseconds since the epoch
	ms, err := current.CreateTimeWithContext(ctx)
	if err != nil {
		return time.Time{}, Classify(err)
	}
	if h.created != 0 && ms != h.created {
		return time.Time{}, fmt.Errorf("%w: pid %d was reused", ErrProcessGone, h.proc.Pid)
	}
	return time.UnixMilli(ms), nil
}

func (h *psHandle) Times(ctx context.Context) (types.CPUTimes, error) {
	times, err := h.proc.TimesWithContext(ctx)
	if err != nil {
		return types.CPUTimes{}, Classify(err)
	}
	return types.CPUTimes{User: times.User, System: times.System}, nil
}

func (h *psHandle) IOCounters(ctx context.Context) (types.IOCounters, error) {
	io, err := h.proc.IOCountersWithContext(ctx)
	if err != nil {
		return types.IOCounters{}, Classify(err)
	}
	return types.IOCounters{
		ReadCount:  io.ReadCount,
		WriteCount: io.WriteCount,
		ReadBytes:  io.ReadBytes,
		WriteBytes: io.WriteBytes,
	}, nil
}

func (h *psHandle) CtxSwitches(ctx context.Context) (types.CtxSwitches, error) {
	sw, err := h.proc.NumCtxSwitchesWithContext(ctx)
	if err != nil {
		return types.CtxSwitches{}, Classify(err)
	}
	return types.CtxSwitches{Voluntary: sw.Voluntary, Involuntary: sw.Involuntary}, nil
}

func (h *psHandle) Nice(ctx context.Context) (int32, error) {
	nice, err := h.proc.NiceWithContext(ctx)
	return nice, Classify(err)
}
