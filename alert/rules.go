package alert

import (
	"fmt"

	"github.com/dreamsxin/procwatch/config"
	"github.com/dreamsxin/procwatch/types"
)

// Alert types raised by the default rules
const (
	TypeHighCPU        = "high_cpu"
	TypeCriticalCPU    = "critical_cpu"
	TypeHighMemory     = "high_memory"
	TypeCriticalMemory = "critical_memory"
	TypeHighMemoryMB   = "high_memory_mb"
	TypeHighFDCount    = "high_fd_count"
	TypeHighThreads    = "high_thread_count"
	TypeBadState       = "bad_state"
)

// rule compares one metric of a snapshot against a threshold table entry.
// Rules with a predicate fire on it instead and carry a zero threshold.
type rule struct {
	alertType    string
	severity     types.Severity
	thresholdKey string
	value        func(m *types.ExtendedProcessMetrics) float64
	predicate    func(m *types.ExtendedProcessMetrics) bool
	message      func(m *types.ExtendedProcessMetrics, threshold float64) string
}

// evaluate reports whether the rule fires. A threshold missing from the
// table disables the rule.
func (r rule) evaluate(m *types.ExtendedProcessMetrics, thresholds map[string]float64) (firing bool, value, threshold float64) {
	if r.predicate != nil {
		return r.predicate(m), 0, 0
	}
	threshold, ok := thresholds[r.thresholdKey]
	if !ok {
		return false, 0, 0
	}
	value = r.value(m)
	return value > threshold, value, threshold
}

func badStateRule(states []string) rule {
	bad := make(map[string]bool, len(states))
	for _, s := range states {
		bad[s] = true
	}
	return rule{
		alertType: TypeBadState,
		severity:  types.SeverityError,
		predicate: func(m *types.ExtendedProcessMetrics) bool { return bad[m.Status] },
		message: func(m *types.ExtendedProcessMetrics, _ float64) string {
			return fmt.Sprintf("Process is in bad state: %s", m.Status)
		},
	}
}

func defaultRules(badStates []string) []rule {
	cpu := func(m *types.ExtendedProcessMetrics) float64 { return m.CPUPercent }
	mem := func(m *types.ExtendedProcessMetrics) float64 { return m.MemoryPercent }

	return []rule{
		{
			alertType:    TypeHighCPU,
			severity:     types.SeverityWarning,
			thresholdKey: config.ThresholdCPUPercent,
			value:        cpu,
			message: func(m *types.ExtendedProcessMetrics, t float64) string {
				return fmt.Sprintf("CPU usage %.1f%% exceeds %.1f%%", m.CPUPercent, t)
			},
		},
		{
			alertType:    TypeCriticalCPU,
			severity:     types.SeverityError,
			thresholdKey: config.ThresholdCPUPercentCritical,
			value:        cpu,
			message: func(m *types.ExtendedProcessMetrics, t float64) string {
				return fmt.Sprintf("CPU usage %.1f%% exceeds critical %.1f%%", m.CPUPercent, t)
			},
		},
		{
			alertType:    TypeHighMemory,
			severity:     types.SeverityWarning,
			thresholdKey: config.ThresholdMemoryPercent,
			value:        mem,
			message: func(m *types.ExtendedProcessMetrics, t float64) string {
				return fmt.Sprintf("Memory usage %.1f%% exceeds %.1f%%", m.MemoryPercent, t)
			},
		},
		{
			alertType:    TypeCriticalMemory,
			severity:     types.SeverityError,
			thresholdKey: config.ThresholdMemoryPercentCritical,
			value:        mem,
			message: func(m *types.ExtendedProcessMetrics, t float64) string {
				return fmt.Sprintf("Memory usage %.1f%% exceeds critical %.1f%%", m.MemoryPercent, t)
			},
		},
		{
			alertType:    TypeHighMemoryMB,
			severity:     types.SeverityWarning,
			thresholdKey: config.ThresholdMemoryMB,
			value:        func(m *types.ExtendedProcessMetrics) float64 { return m.MemoryMB },
			message: func(m *types.ExtendedProcessMetrics, t float64) string {
				return fmt.Sprintf("Resident memory %.0f MiB exceeds %.0f MiB", m.MemoryMB, t)
			},
		},
		{
			alertType:    TypeHighFDCount,
			severity:     types.SeverityWarning,
			thresholdKey: config.ThresholdNumFDs,
			value:        func(m *types.ExtendedProcessMetrics) float64 { return float64(m.NumFDs) },
			message: func(m *types.ExtendedProcessMetrics, t float64) string {
				return fmt.Sprintf("%d open file descriptors exceed %.0f", m.NumFDs, t)
			},
		},
		{
			alertType:    TypeHighThreads,
			severity:     types.SeverityWarning,
			thresholdKey: config.ThresholdNumThreads,
			value:        func(m *types.ExtendedProcessMetrics) float64 { return float64(m.NumThreads) },
			message: func(m *types.ExtendedProcessMetrics, t float64) string {
				return fmt.Sprintf("%d threads exceed %.0f", m.NumThreads, t)
			},
		},
		badStateRule(badStates),
	}
}
