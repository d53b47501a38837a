package monitor

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/dreamsxin/procwatch/config"
	"github.com/dreamsxin/procwatch/system"
	"github.com/dreamsxin/procwatch/types"
)

// Options 进程监控管理器的依赖
type Options struct {
	Capability system.Capability
	Alerts     AlertChecker
	Logger     logrus.FieldLogger
	Registerer prometheus.Registerer
}

// monitoredProcess 注册表条目，trends 和 latest 只由自己的采样协程写入
type monitoredProcess struct {
	name         string
	pid          int
	registeredAt time.Time
	handle       system.Handle
	trends       *TrendTracker
	latest       atomic.Pointer[types.ExtendedProcessMetrics]
	deniedLog    *rate.Limiter
	removed      atomic.Bool

	// 停止采样协程，由 mu 保护
	cancel context.CancelFunc
}

// ProcessMonitorManager 进程监控管理器
// 每个进程在独立的协程中采样，并定期汇总健康状态
type ProcessMonitorManager struct {
	cfg        *config.Config
	capability system.Capability
	collector  *Collector
	assessor   *Assessor
	alerts     AlertChecker
	log        logrus.FieldLogger
	metrics    *monitorMetrics

	mu          sync.RWMutex
	processes   map[string]*monitoredProcess
	rootCtx     context.Context
	rootCancel  context.CancelFunc
	stopped     bool
	aggregating bool

	// 串行化 StartMonitoring 和 StopMonitoring
	lifecycle sync.Mutex
	wg        sync.WaitGroup
	summary   atomic.Pointer[types.HealthSummary]
}

var _ Monitor = (*ProcessMonitorManager)(nil)

// NewProcessMonitorManager 创建新的进程监控管理器
// 添加的进程立即开始采样，健康汇总在 StartMonitoring 之后启动
func NewProcessMonitorManager(cfg *config.Config, opts Options) *ProcessMonitorManager {
	if cfg == nil {
		cfg = config.Default()
	}
	if opts.Capability == nil {
		opts.Capability = system.NewCapability()
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &ProcessMonitorManager{
		cfg:        cfg,
		capability: opts.Capability,
		collector:  NewCollector(cfg.CollectionTimeout),
		assessor:   NewAssessor(cfg.Health),
		alerts:     opts.Alerts,
		log:        opts.Logger.WithField("component", "monitor"),
		metrics:    newMonitorMetrics(opts.Registerer),
		processes:  make(map[string]*monitoredProcess),
		rootCtx:    ctx,
		rootCancel: cancel,
	}
	m.summary.Store(&types.HealthSummary{Processes: map[string]types.ProcessHealth{}})
	return m
}

// StartMonitoring 启动监控
// 在 StopMonitoring 之后调用会为所有已注册进程重新启动采样协程
func (m *ProcessMonitorManager) StartMonitoring() error {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		m.rootCtx, m.rootCancel = context.WithCancel(context.Background())
		m.stopped = false
		for _, p := range m.processes {
			m.spawn(p)
		}
	}

	if !m.aggregating {
		m.aggregating = true
		m.wg.Add(1)
		go m.aggregateLoop(m.rootCtx)
		m.log.WithField("interval", m.cfg.HealthCheckInterval).Info("monitoring started")
	}
	return nil
}

// StopMonitoring 停止监控
// 取消共享的根 context 并等待所有协程退出，已注册的进程会保留
func (m *ProcessMonitorManager) StopMonitoring() error {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return nil
	}
	m.stopped = true
	m.aggregating = false
	m.rootCancel()
	m.mu.Unlock()

	m.wg.Wait()
	m.log.Info("monitoring stopped")
	return nil
}

// AddProcess 添加进程到监控列表
// pid 必须对应一个正在运行的进程，否则返回 InvalidProcessError
func (m *ProcessMonitorManager) AddProcess(ctx context.Context, name string, pid int) error {
	if name == "" {
		return types.ErrEmptyName
	}

	m.mu.RLock()
	_, exists := m.processes[name]
	m.mu.RUnlock()
	if exists {
		return fmt.Errorf("%q: %w", name, types.ErrAlreadyMonitored)
	}

	alive, err := m.capability.Alive(ctx, pid)
	if err != nil {
		return &types.InvalidProcessError{Name: name, PID: pid, Err: err}
	}
	if !alive {
		return &types.InvalidProcessError{Name: name, PID: pid}
	}
	handle, err := m.capability.Open(ctx, pid)
	if err != nil {
		return &types.InvalidProcessError{Name: name, PID: pid, Err: err}
	}

	p := &monitoredProcess{
		name:         name,
		pid:          pid,
		registeredAt: time.Now(),
		handle:       handle,
		trends:       NewTrendTracker(m.cfg.TrendWindowSize),
		deniedLog:    rate.NewLimiter(rate.Every(time.Minute), 1),
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.processes[name]; exists {
		return fmt.Errorf("%q: %w", name, types.ErrAlreadyMonitored)
	}
	m.processes[name] = p
	m.metrics.monitored.Set(float64(len(m.processes)))
	if !m.stopped {
		m.spawn(p)
	}

	m.log.WithFields(logrus.Fields{"process": name, "pid": pid}).Info("process registered")
	return nil
}

// RemoveProcess 从监控列表移除进程
// 采样协程在下一次等待时退出，未知名称直接忽略
func (m *ProcessMonitorManager) RemoveProcess(name string) {
	m.mu.Lock()
	p, exists := m.processes[name]
	if exists {
		delete(m.processes, name)
		m.metrics.monitored.Set(float64(len(m.processes)))
	}
	m.mu.Unlock()

	if !exists {
		return
	}
	m.drop(p)
	m.log.WithFields(logrus.Fields{"process": name, "pid": p.pid}).Info("process removed")
}

// drop 释放已不在注册表中的进程状态
func (m *ProcessMonitorManager) drop(p *monitoredProcess) {
	p.removed.Store(true)
	m.mu.RLock()
	cancel := p.cancel
	m.mu.RUnlock()
	if cancel != nil {
		cancel()
	}
	m.metrics.forget(p.name)
	if m.alerts != nil {
		m.alerts.Forget(p.name)
	}
}

// IsProcessRunning 检查进程是否仍在运行，未知名称返回 false
func (m *ProcessMonitorManager) IsProcessRunning(ctx context.Context, name string) bool {
	p := m.get(name)
	if p == nil {
		return false
	}

	running, err := p.handle.IsRunning(ctx)
	if err != nil {
		m.log.WithError(err).WithField("process", name).Debug("liveness check failed")
		return false
	}
	return running
}

// GetProcessMetrics 获取进程统计信息
func (m *ProcessMonitorManager) GetProcessMetrics(name string) (*types.ProcessStats, bool) {
	ext, ok := m.GetExtendedMetrics(name)
	if !ok {
		return nil, false
	}
	return ext.Stats(), true
}

// GetExtendedMetrics 获取最新快照的副本
func (m *ProcessMonitorManager) GetExtendedMetrics(name string) (*types.ExtendedProcessMetrics, bool) {
	p := m.get(name)
	if p == nil {
		return nil, false
	}
	latest := p.latest.Load()
	if latest == nil {
		return nil, false
	}
	return latest.Clone(), true
}

// ListProcesses 获取被监控的进程列表
func (m *ProcessMonitorManager) ListProcesses() []types.MonitoredProcessInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]types.MonitoredProcessInfo, 0, len(m.processes))
	for _, p := range m.processes {
		result = append(result, types.MonitoredProcessInfo{
			Name:         p.name,
			PID:          p.pid,
			RegisteredAt: p.registeredAt,
		})
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Name < result[j].Name
	})
	return result
}

// HealthSummary 获取最新的健康汇总
func (m *ProcessMonitorManager) HealthSummary() types.HealthSummary {
	return *m.summary.Load()
}

// RegisteredPIDs 获取已注册的 PID 集合
func (m *ProcessMonitorManager) RegisteredPIDs() map[int]bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	pids := make(map[int]bool, len(m.processes))
	for _, p := range m.processes {
		pids[p.pid] = true
	}
	return pids
}

func (m *ProcessMonitorManager) get(name string) *monitoredProcess {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.processes[name]
}

// spawn 启动采样协程，调用方必须持有 m.mu
func (m *ProcessMonitorManager) spawn(p *monitoredProcess) {
	ctx, cancel := context.WithCancel(m.rootCtx)
	p.cancel = cancel
	m.wg.Add(1)
	go m.sampleLoop(ctx, p)
}
