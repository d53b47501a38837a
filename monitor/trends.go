package monitor

import (
	"github.com/dreamsxin/procwatch/types"
)

// TrendTracker keeps the rolling cpu and memory windows of one process.
// It is owned by that process' sampling goroutine.
type TrendTracker struct {
	size   int
	cpu    []float64
	memory []float64
}

// NewTrendTracker returns a tracker keeping at most size samples per series
func NewTrendTracker(size int) *TrendTracker {
	if size < 1 {
		size = 1
	}
	return &TrendTracker{
		size:   size,
		cpu:    make([]float64, 0, size),
		memory: make([]float64, 0, size),
	}
}

// Update appends the snapshot's cpu percent and memory MiB, evicting the
// oldest samples, and returns the recomputed trends.
func (t *TrendTracker) Update(m *types.ExtendedProcessMetrics) types.ProcessTrends {
	t.cpu = push(t.cpu, m.CPUPercent, t.size)
	t.memory = push(t.memory, m.MemoryMB, t.size)
	return t.Trends()
}

// Trends returns a copy of the current windows and their statistics
func (t *TrendTracker) Trends() types.ProcessTrends {
	avgCPU, peakCPU := stats(t.cpu)
	avgMem, peakMem := stats(t.memory)
	return types.ProcessTrends{
		CPUHistory:    append([]float64(nil), t.cpu...),
		MemoryHistory: append([]float64(nil), t.memory...),
		AvgCPU:        avgCPU,
		PeakCPU:       peakCPU,
		AvgMemory:     avgMem,
		PeakMemory:    peakMem,
	}
}

func push(window []float64, v float64, size int) []float64 {
	if len(window) >= size {
		copy(window, window[len(window)-size+1:])
		window = window[:size-1]
	}
	return append(window, v)
}

func stats(window []float64) (avg, peak float64) {
	if len(window) == 0 {
		return 0, 0
	}
	var sum float64
	peak = window[0]
	for _, v := range window {
		sum += v
		if v > peak {
			peak = v
		}
	}
	return sum / float64(len(window)), peak
}
