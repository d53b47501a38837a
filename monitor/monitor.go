package monitor

import (
	"context"

	"github.com/dreamsxin/procwatch/types"
)

// Monitor 进程监控器接口
type Monitor interface {
	// 启动健康汇总，停止后再次调用会恢复采样
	StartMonitoring() error

	// 停止所有采样协程并等待退出
	StopMonitoring() error

	// 以唯一的逻辑名称注册进程并开始采样
	AddProcess(ctx context.Context, name string, pid int) error

	// 停止采样并移除进程状态
	RemoveProcess(name string)

	// 向操作系统查询进程是否仍在运行
	IsProcessRunning(ctx context.Context, name string) bool

	// 获取最新的进程统计信息
	GetProcessMetrics(name string) (*types.ProcessStats, bool)

	// 获取最新的完整进程快照
	GetExtendedMetrics(name string) (*types.ExtendedProcessMetrics, bool)

	// 获取被监控的进程列表，按名称排序
	ListProcesses() []types.MonitoredProcessInfo

	// 获取最新的健康汇总
	HealthSummary() types.HealthSummary
}

// AlertChecker 告警检查接口
type AlertChecker interface {
	Check(name string, m *types.ExtendedProcessMetrics) []types.MonitoringAlert
	Forget(name string)
}
