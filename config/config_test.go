package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 5*time.Second, cfg.MonitoringInterval)
	assert.Equal(t, 80.0, cfg.Health.CPUWarnPercent)
	assert.Equal(t, 80.0, cfg.AlertThresholds[ThresholdCPUPercent])
	assert.Contains(t, cfg.Health.BadStates, "zombie")
}

func TestLoadYAMLAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "procwatch.yaml")
	content := `
monitoring_interval: 2s
trend_window_size: 3
health:
  cpu_warn_percent: 70
alert_thresholds:
  cpu_percent: 60
discovery:
  markers: [mcp, worker]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	t.Setenv("PROCWATCH_MAX_ALERTS", "50")
	t.Setenv("PROCWATCH_HEALTH_MAX_FDS", "256")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 2*time.Second, cfg.MonitoringInterval)
	assert.Equal(t, 3, cfg.TrendWindowSize)
	assert.Equal(t, 70.0, cfg.Health.CPUWarnPercent)
	assert.Equal(t, 85.0, cfg.Health.MemoryWarnPercent)
	assert.Equal(t, 60.0, cfg.AlertThresholds[ThresholdCPUPercent])
	assert.Equal(t, 95.0, cfg.AlertThresholds[ThresholdCPUPercentCritical])
	assert.Equal(t, []string{"mcp", "worker"}, cfg.Discovery.Markers)
	assert.Equal(t, 50, cfg.MaxAlerts)
	assert.Equal(t, int32(256), cfg.Health.MaxFDs)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidateReportsEveryProblem(t *testing.T) {
	cfg := Default()
	cfg.MonitoringInterval = time.Millisecond
	cfg.TrendWindowSize = 0
	cfg.AlertThresholds[ThresholdMemoryMB] = -1
	cfg.AlertThresholds[ThresholdCPUPercent] = 99

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "monitoring_interval")
	assert.Contains(t, err.Error(), "trend_window_size")
	assert.Contains(t, err.Error(), "alert_thresholds.memory_mb")
	assert.Contains(t, err.Error(), "cpu_percent must not exceed")
}

func TestNewLogger(t *testing.T) {
	cfg := Default()
	cfg.LogLevel = "debug"
	cfg.LogFormat = "json"

	log := cfg.NewLogger()
	assert.Equal(t, logrus.DebugLevel, log.Level)
	assert.IsType(t, &logrus.JSONFormatter{}, log.Formatter)

	cfg.LogLevel = "nonsense"
	assert.Equal(t, logrus.InfoLevel, cfg.NewLogger().Level)
}
