package monitor

import (
	"fmt"
	"time"

	"github.com/dreamsxin/procwatch/config"
	"github.com/dreamsxin/procwatch/types"
)

// Assessor classifies a snapshot against the health thresholds
type Assessor struct {
	cfg       config.HealthConfig
	badStates map[string]bool
	now       func() time.Time
}

// NewAssessor returns an Assessor for cfg
func NewAssessor(cfg config.HealthConfig) *Assessor {
	bad := make(map[string]bool, len(cfg.BadStates))
	for _, s := range cfg.BadStates {
		bad[s] = true
	}
	return &Assessor{cfg: cfg, badStates: bad, now: time.Now}
}

// Assess checks every category so that several issues can be reported at
// once. Errors win over warnings for the same metric.
func (a *Assessor) Assess(name string, m *types.ExtendedProcessMetrics) types.ProcessHealth {
	h := types.ProcessHealth{
		Issues:    []string{},
		LastCheck: a.now(),
	}

	warn := func(format string, args ...any) {
		h.Issues = append(h.Issues, fmt.Sprintf(format, args...))
		h.WarningCount++
	}
	fail := func(format string, args ...any) {
		h.Issues = append(h.Issues, fmt.Sprintf(format, args...))
		h.ErrorCount++
	}

	if m.CPUPercent > a.cfg.CPUWarnPercent {
		warn("High CPU usage: %.1f%%", m.CPUPercent)
	}

	switch {
	case m.MemoryPercent > a.cfg.MemoryCriticalPercent:
		fail("High memory usage: %.1f%%", m.MemoryPercent)
	case m.MemoryPercent > a.cfg.MemoryWarnPercent:
		warn("High memory usage: %.1f%%", m.MemoryPercent)
	}

	if a.badStates[m.Status] {
		fail("Process is in bad state: %s", m.Status)
	}

	if a.cfg.MaxFDs > 0 && m.NumFDs > a.cfg.MaxFDs {
		warn("High file descriptor count: %d", m.NumFDs)
	}
	if a.cfg.MaxThreads > 0 && m.NumThreads > a.cfg.MaxThreads {
		warn("High thread count: %d", m.NumThreads)
	}

	h.IsHealthy = h.WarningCount+h.ErrorCount == 0
	return h
}
