package manager

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamsxin/procwatch/alert"
	"github.com/dreamsxin/procwatch/config"
	"github.com/dreamsxin/procwatch/system"
	"github.com/dreamsxin/procwatch/system/systemtest"
	"github.com/dreamsxin/procwatch/types"
)

const (
	waitFor = 3 * time.Second
	tick    = 10 * time.Millisecond
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.MonitoringInterval = 20 * time.Millisecond
	cfg.HealthCheckInterval = 20 * time.Millisecond
	cfg.CollectionTimeout = time.Second
	cfg.TrendWindowSize = 5
	return cfg
}

func newTestEngine(t *testing.T, capability system.Capability) *Engine {
	t.Helper()
	log := logrus.New()
	log.SetLevel(logrus.WarnLevel)
	e := New(testConfig(), Options{
		Capability: capability,
		Logger:     log,
		Registerer: prometheus.NewRegistry(),
	})
	t.Cleanup(func() { _ = e.Close() })
	return e
}

type alertLog struct {
	mu     sync.Mutex
	fired  []types.MonitoringAlert
	solved []types.MonitoringAlert
}

func (l *alertLog) callback(a types.MonitoringAlert, resolved bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if resolved {
		l.solved = append(l.solved, a)
	} else {
		l.fired = append(l.fired, a)
	}
	return nil
}

func (l *alertLog) counts() (int, int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.fired), len(l.solved)
}

func worker(pid int, cpu float64) systemtest.Process {
	return systemtest.Process{
		PID:           pid,
		Name:          "python3",
		Cmdline:       "python3 -m mcp_server",
		CPUPercent:    cpu,
		MemoryPercent: 5,
		Memory:        system.MemoryInfo{RSS: 32 << 20},
		NumThreads:    3,
		NumFDs:        12,
		Status:        "running",
	}
}

func TestEngineAlertLifecycle(t *testing.T) {
	capability := systemtest.NewCapability(worker(100, 85))
	e := newTestEngine(t, capability)
	log := &alertLog{}
	e.AddAlertCallback(log.callback)

	require.NoError(t, e.StartMonitoring())
	require.NoError(t, e.AddProcess(context.Background(), "svc", 100))

	assert.Eventually(t, func() bool {
		fired, _ := log.counts()
		return fired == 1
	}, waitFor, tick)

	alerts := e.GetAlerts("svc")
	require.Len(t, alerts, 1)
	assert.Equal(t, alert.TypeHighCPU, alerts[0].AlertType)
	assert.Equal(t, 85.0, alerts[0].Value)
	assert.Len(t, e.ActiveAlerts(""), 1)

	capability.Update(100, func(p *systemtest.Process) { p.CPUPercent = 10 })
	assert.Eventually(t, func() bool {
		_, solved := log.counts()
		return solved == 1
	}, waitFor, tick)
	assert.Empty(t, e.ActiveAlerts("svc"))

	// no refire while the process stays calm
	time.Sleep(5 * testConfig().MonitoringInterval)
	fired, _ := log.counts()
	assert.Equal(t, 1, fired)

	e.ClearAlerts("svc")
	assert.Empty(t, e.GetAlerts(""))
}

func TestEngineThresholdChangeAppliesToNextSample(t *testing.T) {
	capability := systemtest.NewCapability(worker(100, 40))
	e := newTestEngine(t, capability)

	require.NoError(t, e.AddProcess(context.Background(), "svc", 100))
	assert.Eventually(t, func() bool {
		_, ok := e.GetProcessMetrics("svc")
		return ok
	}, waitFor, tick)
	assert.Empty(t, e.GetAlerts("svc"))

	require.NoError(t, e.SetAlertThreshold(config.ThresholdCPUPercent, 30))
	assert.Equal(t, 30.0, e.Thresholds()[config.ThresholdCPUPercent])
	assert.Eventually(t, func() bool {
		return len(e.GetAlerts("svc")) == 1
	}, waitFor, tick)

	assert.ErrorIs(t, e.SetAlertThreshold(config.ThresholdCPUPercent, -5), alert.ErrInvalidThreshold)
}

func TestEngineRegistry(t *testing.T) {
	capability := systemtest.NewCapability(worker(100, 10), worker(200, 10))
	e := newTestEngine(t, capability)
	ctx := context.Background()

	var invalid *types.InvalidProcessError
	require.ErrorAs(t, e.AddProcess(ctx, "ghost", 999), &invalid)
	assert.Equal(t, 999, invalid.PID)
	assert.Empty(t, e.ListProcesses())

	require.NoError(t, e.AddProcess(ctx, "a", 100))
	require.NoError(t, e.AddProcess(ctx, "b", 200))
	assert.ErrorIs(t, e.AddProcess(ctx, "a", 200), types.ErrAlreadyMonitored)

	assert.True(t, e.IsProcessRunning(ctx, "a"))
	assert.False(t, e.IsProcessRunning(ctx, "unknown"))

	assert.Eventually(t, func() bool {
		m, ok := e.GetExtendedMetrics("b")
		return ok && m.PID == 200 && m.Health.IsHealthy
	}, waitFor, tick)

	e.RemoveProcess("a")
	e.RemoveProcess("a")
	_, ok := e.GetProcessMetrics("a")
	assert.False(t, ok)

	names := []string{}
	for _, p := range e.ListProcesses() {
		names = append(names, p.Name)
	}
	assert.Equal(t, []string{"b"}, names)
}

func TestEngineHealthSummary(t *testing.T) {
	zombie := worker(300, 10)
	zombie.Status = "zombie"
	capability := systemtest.NewCapability(worker(100, 10), zombie)
	e := newTestEngine(t, capability)

	require.NoError(t, e.StartMonitoring())
	require.NoError(t, e.AddProcess(context.Background(), "ok", 100))
	require.NoError(t, e.AddProcess(context.Background(), "bad", 300))

	assert.Eventually(t, func() bool {
		s := e.HealthSummary()
		return s.Total == 2 && s.Healthy == 1 && s.Unhealthy == 1
	}, waitFor, tick)
	assert.Equal(t, []string{"bad"}, e.HealthSummary().UnhealthyNames())
}

func TestEngineDiscoverExcludesRegistered(t *testing.T) {
	capability := systemtest.NewCapability(
		worker(100, 10),
		worker(200, 10),
		systemtest.Process{PID: 300, Name: "bash", Cmdline: "bash mcp.sh"},
	)
	e := newTestEngine(t, capability)

	candidates, err := e.DiscoverCandidates(context.Background())
	require.NoError(t, err)
	require.Len(t, candidates, 2)

	require.NoError(t, e.AddProcess(context.Background(), "svc", 100))
	candidates, err = e.DiscoverCandidates(context.Background())
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, 200, candidates[0].PID)

	// discovery never registers
	assert.Len(t, e.ListProcesses(), 1)
}

func TestEngineRetiresExitedProcess(t *testing.T) {
	capability := systemtest.NewCapability(worker(100, 10))
	e := newTestEngine(t, capability)

	require.NoError(t, e.AddProcess(context.Background(), "svc", 100))
	capability.Kill(100)

	assert.False(t, e.IsProcessRunning(context.Background(), "svc"))
	assert.Eventually(t, func() bool {
		return len(e.ListProcesses()) == 0
	}, waitFor, tick)
}

func TestEngineClose(t *testing.T) {
	capability := systemtest.NewCapability(worker(100, 10))
	e := newTestEngine(t, capability)

	require.NoError(t, e.StartMonitoring())
	require.NoError(t, e.AddProcess(context.Background(), "svc", 100))

	require.NoError(t, e.Close())
	require.NoError(t, e.Close())
	assert.Empty(t, e.ListProcesses())

	assert.True(t, errors.Is(e.AddProcess(context.Background(), "svc", 100), ErrClosed))
	assert.ErrorIs(t, e.StartMonitoring(), ErrClosed)
	_, err := e.DiscoverCandidates(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}
