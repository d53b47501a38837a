package monitor

import (
	"context"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dreamsxin/procwatch/system"
	"github.com/dreamsxin/procwatch/types"
)

// sampleLoop samples p immediately and then every monitoring interval until
// ctx is cancelled or the process is gone.
func (m *ProcessMonitorManager) sampleLoop(ctx context.Context, p *monitoredProcess) {
	defer m.wg.Done()
	defer func() {
		// a removal may race with the last sample, forget again on the way
		// out unless the name was registered again meanwhile
		if !p.removed.Load() || m.get(p.name) != nil {
			return
		}
		m.metrics.forget(p.name)
		if m.alerts != nil {
			m.alerts.Forget(p.name)
		}
	}()

	ticker := time.NewTicker(m.cfg.MonitoringInterval)
	defer ticker.Stop()

	for {
		if !m.sample(ctx, p) {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// sample takes one snapshot of p and reports whether sampling should go on
func (m *ProcessMonitorManager) sample(ctx context.Context, p *monitoredProcess) bool {
	log := m.log.WithFields(logrus.Fields{"process": p.name, "pid": p.pid})

	metrics, err := m.collector.Collect(ctx, p.name, p.handle)
	if ctx.Err() != nil || p.removed.Load() {
		return false
	}

	switch {
	case err == nil:
	case system.IsGone(err):
		m.metrics.sample(p.name, outcomeGone)
		m.retire(p, log)
		return false
	case system.IsDenied(err):
		m.metrics.sample(p.name, outcomeDenied)
		if p.deniedLog.Allow() {
			log.WithError(err).Warn("access denied, skipping sample")
		}
		return true
	default:
		m.metrics.sample(p.name, outcomeError)
		log.WithError(err).Warn("failed to collect metrics")
		return true
	}

	metrics.Health = m.assessor.Assess(p.name, metrics)
	metrics.Trends = p.trends.Update(metrics)
	p.latest.Store(metrics)

	if p.removed.Load() {
		return false
	}
	m.metrics.sample(p.name, outcomeOK)
	m.metrics.observe(p.name, metrics)

	if m.alerts != nil && ctx.Err() == nil && !p.removed.Load() {
		m.alerts.Check(p.name, metrics.Clone())
	}
	return true
}

// retire handles a process that exited while being monitored
func (m *ProcessMonitorManager) retire(p *monitoredProcess, log logrus.FieldLogger) {
	if !m.cfg.RetireExited {
		log.Warn("process exited, keeping stale entry")
		return
	}

	m.mu.Lock()
	retired := m.processes[p.name] == p
	if retired {
		delete(m.processes, p.name)
		m.metrics.monitored.Set(float64(len(m.processes)))
	}
	m.mu.Unlock()

	if retired {
		m.drop(p)
		log.Warn("process exited, retired from monitoring")
	}
}

// aggregateLoop rebuilds the health summary every health check interval
func (m *ProcessMonitorManager) aggregateLoop(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.HealthCheckInterval)
	defer ticker.Stop()

	for {
		m.summarize()

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// summarize aggregates the latest health of every process
func (m *ProcessMonitorManager) summarize() types.HealthSummary {
	m.mu.RLock()
	entries := make([]*monitoredProcess, 0, len(m.processes))
	for _, p := range m.processes {
		entries = append(entries, p)
	}
	m.mu.RUnlock()

	summary := types.HealthSummary{
		Timestamp: time.Now(),
		Total:     len(entries),
		Processes: make(map[string]types.ProcessHealth, len(entries)),
	}
	for _, p := range entries {
		latest := p.latest.Load()
		if latest == nil {
			summary.Pending++
			continue
		}
		summary.Processes[p.name] = latest.Health
		if latest.Health.IsHealthy {
			summary.Healthy++
		} else {
			summary.Unhealthy++
		}
	}

	m.summary.Store(&summary)
	m.metrics.unhealthy.Set(float64(summary.Unhealthy))

	fields := logrus.Fields{
		"total":     summary.Total,
		"healthy":   summary.Healthy,
		"unhealthy": summary.Unhealthy,
		"pending":   summary.Pending,
	}
	if summary.Unhealthy > 0 {
		names := summary.UnhealthyNames()
		sort.Strings(names)
		m.log.WithFields(fields).WithField("unhealthy_processes", names).Warn("health check found unhealthy processes")
	} else {
		m.log.WithFields(fields).Debug("health check completed")
	}
	return summary
}
