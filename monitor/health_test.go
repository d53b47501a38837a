package monitor

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dreamsxin/procwatch/config"
	"github.com/dreamsxin/procwatch/types"
)

func TestAssessHealthy(t *testing.T) {
	a := NewAssessor(config.Default().Health)

	h := a.Assess("svc", &types.ExtendedProcessMetrics{CPUPercent: 10, MemoryPercent: 20, Status: "sleep"})
	assert.True(t, h.IsHealthy)
	assert.Empty(t, h.Issues)
	assert.Zero(t, h.WarningCount)
	assert.Zero(t, h.ErrorCount)
	assert.False(t, h.LastCheck.IsZero())
}

func TestAssessHighCPU(t *testing.T) {
	a := NewAssessor(config.Default().Health)

	h := a.Assess("svc", &types.ExtendedProcessMetrics{CPUPercent: 90, Status: "running"})
	assert.False(t, h.IsHealthy)
	if assert.Len(t, h.Issues, 1) {
		assert.Contains(t, h.Issues[0], "High CPU usage")
	}
	assert.Equal(t, 1, h.WarningCount)
	assert.Equal(t, 0, h.ErrorCount)
}

func TestAssessMemoryCriticalWinsOverWarning(t *testing.T) {
	a := NewAssessor(config.Default().Health)

	h := a.Assess("svc", &types.ExtendedProcessMetrics{MemoryPercent: 97})
	assert.False(t, h.IsHealthy)
	assert.Equal(t, 1, h.ErrorCount)
	assert.Equal(t, 0, h.WarningCount)
	assert.Contains(t, h.Issues[0], "High memory usage")

	h = a.Assess("svc", &types.ExtendedProcessMetrics{MemoryPercent: 90})
	assert.Equal(t, 0, h.ErrorCount)
	assert.Equal(t, 1, h.WarningCount)
}

func TestAssessBadState(t *testing.T) {
	a := NewAssessor(config.Default().Health)

	h := a.Assess("svc", &types.ExtendedProcessMetrics{Status: "zombie"})
	assert.Equal(t, 1, h.ErrorCount)
	assert.Equal(t, 0, h.WarningCount)
	assert.Contains(t, h.Issues[0], "bad state: zombie")
}

func TestAssessCollectsEveryIssue(t *testing.T) {
	a := NewAssessor(config.Default().Health)

	h := a.Assess("svc", &types.ExtendedProcessMetrics{
		CPUPercent:    99,
		MemoryPercent: 99,
		Status:        "zombie",
		NumFDs:        5000,
		NumThreads:    5000,
	})
	assert.Len(t, h.Issues, 5)
	assert.Equal(t, 3, h.WarningCount)
	assert.Equal(t, 2, h.ErrorCount)
	assert.Equal(t, len(h.Issues) == 0, h.IsHealthy)
}

func TestAssessDisabledOptionalChecks(t *testing.T) {
	cfg := config.Default().Health
	cfg.MaxFDs = 0
	cfg.MaxThreads = 0
	a := NewAssessor(cfg)

	h := a.Assess("svc", &types.ExtendedProcessMetrics{NumFDs: 1 << 20, NumThreads: 1 << 20})
	assert.True(t, h.IsHealthy)
}
