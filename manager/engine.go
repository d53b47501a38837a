// Package manager composes the monitor, the alert manager and discovery into
// the single entry point used by embedders and the CLI.
package manager

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/dreamsxin/procwatch/alert"
	"github.com/dreamsxin/procwatch/config"
	"github.com/dreamsxin/procwatch/discovery"
	"github.com/dreamsxin/procwatch/monitor"
	"github.com/dreamsxin/procwatch/system"
	"github.com/dreamsxin/procwatch/types"
)

// ErrClosed is returned by operations on a closed Engine
var ErrClosed = errors.New("engine is closed")

// Options Engine 的依赖，零值使用本机进程信息、标准日志且不注册指标
type Options struct {
	Capability system.Capability
	Logger     logrus.FieldLogger
	Registerer prometheus.Registerer
}

// Engine 带告警和进程发现的监控引擎
type Engine struct {
	cfg       *config.Config
	monitor   *monitor.ProcessMonitorManager
	alerts    *alert.Manager
	discovery *discovery.Service
	log       logrus.FieldLogger

	closed    atomic.Bool
	closeOnce sync.Once
}

// New 创建监控引擎
// 进程添加后立即开始采样，StartMonitoring 启动健康汇总
func New(cfg *config.Config, opts Options) *Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	if opts.Capability == nil {
		opts.Capability = system.NewCapability()
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}

	alerts := alert.NewManager(cfg, alert.Options{
		Logger:     opts.Logger,
		Registerer: opts.Registerer,
	})
	return &Engine{
		cfg: cfg,
		monitor: monitor.NewProcessMonitorManager(cfg, monitor.Options{
			Capability: opts.Capability,
			Alerts:     alerts,
			Logger:     opts.Logger,
			Registerer: opts.Registerer,
		}),
		alerts:    alerts,
		discovery: discovery.NewService(opts.Capability, cfg.Discovery, opts.Logger),
		log:       opts.Logger.WithField("component", "engine"),
	}
}

// Config 获取监控配置
func (e *Engine) Config() *config.Config {
	return e.cfg
}

// StartMonitoring 启动监控
func (e *Engine) StartMonitoring() error {
	if e.closed.Load() {
		return ErrClosed
	}
	return e.monitor.StartMonitoring()
}

// StopMonitoring 停止监控，已注册的进程会保留
func (e *Engine) StopMonitoring() error {
	return e.monitor.StopMonitoring()
}

// AddProcess 添加进程到监控
func (e *Engine) AddProcess(ctx context.Context, name string, pid int) error {
	if e.closed.Load() {
		return ErrClosed
	}
	return e.monitor.AddProcess(ctx, name, pid)
}

// RemoveProcess 从监控移除进程
func (e *Engine) RemoveProcess(name string) {
	e.monitor.RemoveProcess(name)
}

// IsProcessRunning 检查进程是否仍在运行
func (e *Engine) IsProcessRunning(ctx context.Context, name string) bool {
	return e.monitor.IsProcessRunning(ctx, name)
}

// GetProcessMetrics 获取进程统计信息
func (e *Engine) GetProcessMetrics(name string) (*types.ProcessStats, bool) {
	return e.monitor.GetProcessMetrics(name)
}

// GetExtendedMetrics 获取完整的进程快照
func (e *Engine) GetExtendedMetrics(name string) (*types.ExtendedProcessMetrics, bool) {
	return e.monitor.GetExtendedMetrics(name)
}

// ListProcesses 获取被监控的进程列表
func (e *Engine) ListProcesses() []types.MonitoredProcessInfo {
	return e.monitor.ListProcesses()
}

// HealthSummary 获取健康汇总
func (e *Engine) HealthSummary() types.HealthSummary {
	return e.monitor.HealthSummary()
}

// SetAlertThreshold 更新告警阈值
func (e *Engine) SetAlertThreshold(metric string, value float64) error {
	return e.alerts.SetAlertThreshold(metric, value)
}

// Thresholds 获取告警阈值表
func (e *Engine) Thresholds() map[string]float64 {
	return e.alerts.Thresholds()
}

// AddAlertCallback 注册告警回调
func (e *Engine) AddAlertCallback(fn alert.Callback) {
	e.alerts.AddCallback(fn)
}

// GetAlerts 获取告警记录，serverID 为空时返回全部
func (e *Engine) GetAlerts(serverID string) []types.MonitoringAlert {
	return e.alerts.GetAlerts(serverID)
}

// ActiveAlerts 获取未恢复的告警
func (e *Engine) ActiveAlerts(serverID string) []types.MonitoringAlert {
	return e.alerts.ActiveAlerts(serverID)
}

// ClearAlerts 清空告警记录，serverID 为空时清空全部
func (e *Engine) ClearAlerts(serverID string) {
	e.alerts.ClearAlerts(serverID)
}

// DiscoverCandidates 发现尚未注册的候选进程，不会自动注册
func (e *Engine) DiscoverCandidates(ctx context.Context) ([]types.CandidateProcess, error) {
	if e.closed.Load() {
		return nil, ErrClosed
	}
	return e.discovery.Discover(ctx, e.monitor.RegisteredPIDs())
}

// Close 关闭监控引擎并移除所有进程，可重复调用
func (e *Engine) Close() error {
	var err error
	e.closeOnce.Do(func() {
		e.closed.Store(true)
		err = e.monitor.StopMonitoring()
		for _, p := range e.monitor.ListProcesses() {
			e.monitor.RemoveProcess(p.Name)
		}
		e.log.Info("engine closed")
	})
	return err
}
