// Package systemtest provides an in-memory system.Capability for tests.
package systemtest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dreamsxin/procwatch/system"
	"github.com/dreamsxin/procwatch/types"
)

// Process describes a fake OS process. Zero values are returned for every
// field that is not set.
type Process struct {
	PID           int
	Name          string
	CPUPercent    float64
	MemoryPercent float64
	Memory        system.MemoryInfo
	NumThreads    int32
	NumFDs        int32
	Status        string
	Cmdline       string
	Exe           string
	Cwd           string
	Username      string
	Ppid          int
	Children      []int
	OpenFiles     int
	Connections   int
	CreateTime    time.Time
	Times         types.CPUTimes
	IO            types.IOCounters
	CtxSwitches   types.CtxSwitches
	Nice          int32

	// Errors forces the named field ("cpu", "memory", "status", "exe", ...)
	// to fail with the given error.
	Errors map[string]error
}

// Capability is a goroutine-safe fake of system.Capability
type Capability struct {
	mu    sync.Mutex
	procs map[int]*Process
	// OpenErr, when set, is returned by Open for every pid
	OpenErr error
	beforeRead func(pid int, field string)
}

// NewCapability returns a fake capability seeded with procs
func NewCapability(procs ...Process) *Capability {
	c := &Capability{procs: make(map[int]*Process)}
	for _, p := range procs {
		c.Set(p)
	}
	return c
}

// Set adds or replaces a fake process
func (c *Capability) Set(p Process) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p.CreateTime.IsZero() {
		p.CreateTime = time.Now().Add(-time.Minute)
	}
	cp := p
	c.procs[p.PID] = &cp
}

// Update mutates a fake process in place
func (c *Capability) Update(pid int, fn func(p *Process)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.procs[pid]; ok {
		fn(p)
	}
}

// SetBeforeRead installs fn to run before every handle read, outside the
// capability's lock
func (c *Capability) SetBeforeRead(fn func(pid int, field string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.beforeRead = fn
}

// Kill makes the pid disappear
func (c *Capability) Kill(pid int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.procs, pid)
}

func (c *Capability) Open(_ context.Context, pid int) (system.Handle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.OpenErr != nil {
		return nil, c.OpenErr
	}
	p, ok := c.procs[pid]
	if !ok {
		return nil, fmt.Errorf("%w: pid %d", system.ErrProcessGone, pid)
	}
	return &handle{c: c, pid: pid, created: p.CreateTime}, nil
}

func (c *Capability) Alive(_ context.Context, pid int) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.procs[pid]
	return ok, nil
}

func (c *Capability) Processes(_ context.Context) ([]system.Handle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	pids := make([]int, 0, len(c.procs))
	for pid := range c.procs {
		pids = append(pids, pid)
	}
	sort.Ints(pids)

	handles := make([]system.Handle, 0, len(pids))
	for _, pid := range pids {
		handles = append(handles, &handle{c: c, pid: pid, created: c.procs[pid].CreateTime})
	}
	return handles, nil
}

type handle struct {
	c       *Capability
	pid     int
	created time.Time
}

// identityFields are the reads that notice a recycled pid. Every other field
// is read from whatever process owns the pid, like the host capability.
var identityFields = map[string]bool{"running": true, "create_time": true}

// read runs fn against a copy of the process, failing with ErrProcessGone
// when the process was killed (or recycled, for identity fields) and with the
// injected error when one is configured for field.
func (h *handle) read(field string, fn func(p Process)) error {
	h.c.mu.Lock()
	hook := h.c.beforeRead
	h.c.mu.Unlock()
	if hook != nil {
		hook(h.pid, field)
	}

	h.c.mu.Lock()
	p, ok := h.c.procs[h.pid]
	var cp Process
	if ok {
		cp = *p
	}
	h.c.mu.Unlock()

	if !ok || (identityFields[field] && !cp.CreateTime.Equal(h.created)) {
		return fmt.Errorf("%w: pid %d", system.ErrProcessGone, h.pid)
	}
	if err := cp.Errors[field]; err != nil {
		return err
	}
	fn(cp)
	return nil
}

func (h *handle) Pid() int { return h.pid }

func (h *handle) IsRunning(_ context.Context) (bool, error) {
	err := h.read("running", func(Process) {})
	if system.IsGone(err) {
		return false, nil
	}
	return err == nil, err
}

func (h *handle) Name(_ context.Context) (v string, err error) {
	err = h.read("name", func(p Process) { v = p.Name })
	return
}

func (h *handle) CPUPercent(_ context.Context) (v float64, err error) {
	err = h.read("cpu", func(p Process) { v = p.CPUPercent })
	return
}

func (h *handle) MemoryPercent(_ context.Context) (v float64, err error) {
	err = h.read("memory", func(p Process) { v = p.MemoryPercent })
	return
}

func (h *handle) MemoryInfo(_ context.Context) (v system.MemoryInfo, err error) {
	err = h.read("memory_info", func(p Process) { v = p.Memory })
	return
}

func (h *handle) NumThreads(_ context.Context) (v int32, err error) {
	err = h.read("threads", func(p Process) { v = p.NumThreads })
	return
}

func (h *handle) NumFDs(_ context.Context) (v int32, err error) {
	err = h.read("fds", func(p Process) { v = p.NumFDs })
	return
}

func (h *handle) Status(_ context.Context) (v string, err error) {
	err = h.read("status", func(p Process) { v = p.Status })
	return
}

func (h *handle) Cmdline(_ context.Context) (v string, err error) {
	err = h.read("cmdline", func(p Process) { v = p.Cmdline })
	return
}

func (h *handle) Exe(_ context.Context) (v string, err error) {
	err = h.read("exe", func(p Process) { v = p.Exe })
	return
}

func (h *handle) Cwd(_ context.Context) (v string, err error) {
	err = h.read("cwd", func(p Process) { v = p.Cwd })
	return
}

func (h *handle) Username(_ context.Context) (v string, err error) {
	err = h.read("username", func(p Process) { v = p.Username })
	return
}

func (h *handle) Ppid(_ context.Context) (v int, err error) {
	err = h.read("ppid", func(p Process) { v = p.Ppid })
	return
}

func (h *handle) Children(_ context.Context) (v []int, err error) {
	err = h.read("children", func(p Process) { v = append([]int(nil), p.Children...) })
	return
}

func (h *handle) NumOpenFiles(_ context.Context) (v int, err error) {
	err = h.read("open_files", func(p Process) { v = p.OpenFiles })
	return
}

func (h *handle) NumConnections(_ context.Context) (v int, err error) {
	err = h.read("connections", func(p Process) { v = p.Connections })
	return
}

func (h *handle) CreateTime(_ context.Context) (v time.Time, err error) {
	err = h.read("create_time", func(p Process) { v = p.CreateTime })
	return
}

func (h *handle) Times(_ context.Context) (v types.CPUTimes, err error) {
	err = h.read("times", func(p Process) { v = p.Times })
	return
}

func (h *handle) IOCounters(_ context.Context) (v types.IOCounters, err error) {
	err = h.read("io", func(p Process) { v = p.IO })
	return
}

func (h *handle) CtxSwitches(_ context.Context) (v types.CtxSwitches, err error) {
	err = h.read("ctx_switches", func(p Process) { v = p.CtxSwitches })
	return
}

func (h *handle) Nice(_ context.Context) (v int32, err error) {
	err = h.read("nice", func(p Process) { v = p.Nice })
	return
}
