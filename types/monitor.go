package types

import (
	"time"
)

// ProcessStats is the compact view of a monitored process' latest sample
type ProcessStats struct {
	PID           int       `json:"pid"`
	Name          string    `json:"name"`
	CPUPercent    float64   `json:"cpu_percent"`
	MemoryPercent float64   `json:"memory_percent"`
	MemoryMB      float64   `json:"memory_mb"`
	Status        string    `json:"status"`
	NumThreads    int32     `json:"num_threads"`
	UptimeSeconds float64   `json:"uptime_seconds"`
	CreateTime    time.Time `json:"create_time"`
	Timestamp     time.Time `json:"timestamp"`
}

// CPUTimes holds cumulative user and system CPU seconds
type CPUTimes struct {
	User   float64 `json:"user"`
	System float64 `json:"system"`
}

// IOCounters holds cumulative I/O operation counters
type IOCounters struct {
	ReadCount  uint64 `json:"read_count"`
	WriteCount uint64 `json:"write_count"`
	ReadBytes  uint64 `json:"read_bytes"`
	WriteBytes uint64 `json:"write_bytes"`
}

// CtxSwitches holds cumulative context switch counters
type CtxSwitches struct {
	Voluntary   int64 `json:"voluntary"`
	Involuntary int64 `json:"involuntary"`
}

// ExtendedProcessMetrics is one point-in-time snapshot of a process.
//
// A snapshot is never mutated after it has been published by the monitor;
// readers always receive a copy.
type ExtendedProcessMetrics struct {
	PID              int           `json:"pid"`
	Name             string        `json:"name"`
	CPUPercent       float64       `json:"cpu_percent"`
	MemoryPercent    float64       `json:"memory_percent"`
	MemoryMB         float64       `json:"memory_mb"`
	MemoryRSS        uint64        `json:"memory_rss"`
	MemoryVMS        uint64        `json:"memory_vms"`
	MemoryShared     uint64        `json:"memory_shared"`
	UptimeSeconds    float64       `json:"uptime_seconds"`
	Status           string        `json:"status"`
	NumThreads       int32         `json:"num_threads"`
	NumFDs           int32         `json:"num_fds"`
	CPUTimes         CPUTimes      `json:"cpu_times"`
	IOCounters       IOCounters    `json:"io_counters"`
	CtxSwitches      CtxSwitches   `json:"ctx_switches"`
	Nice             int32         `json:"nice"`
	Cmdline          string        `json:"cmdline"`
	Exe              string        `json:"exe"`
	Cwd              string        `json:"cwd"`
	Username         string        `json:"username"`
	ParentPID        int           `json:"parent_pid"`
	ChildrenPIDs     []int         `json:"children_pids"`
	OpenFilesCount   int           `json:"open_files_count"`
	ConnectionsCount int           `json:"connections_count"`
	CreateTime       time.Time     `json:"create_time"`
	Timestamp        time.Time     `json:"timestamp"`
	Health           ProcessHealth `json:"health"`
	Trends           ProcessTrends `json:"trends"`
}

// Stats returns the compact view of the snapshot
func (m *ExtendedProcessMetrics) Stats() *ProcessStats {
	return &ProcessStats{
		PID:           m.PID,
		Name:          m.Name,
		CPUPercent:    m.CPUPercent,
		MemoryPercent: m.MemoryPercent,
		MemoryMB:      m.MemoryMB,
		Status:        m.Status,
		NumThreads:    m.NumThreads,
		UptimeSeconds: m.UptimeSeconds,
		CreateTime:    m.CreateTime,
		Timestamp:     m.Timestamp,
	}
}

// Clone returns a deep copy of the snapshot
func (m *ExtendedProcessMetrics) Clone() *ExtendedProcessMetrics {
	c := *m
	c.ChildrenPIDs = append([]int(nil), m.ChildrenPIDs...)
	c.Health.Issues = append([]string(nil), m.Health.Issues...)
	c.Trends.CPUHistory = append([]float64(nil), m.Trends.CPUHistory...)
	c.Trends.MemoryHistory = append([]float64(nil), m.Trends.MemoryHistory...)
	return &c
}

// ProcessHealth is the result of a health assessment
type ProcessHealth struct {
	IsHealthy    bool      `json:"is_healthy"`
	Issues       []string  `json:"issues"`
	WarningCount int       `json:"warning_count"`
	ErrorCount   int       `json:"error_count"`
	LastCheck    time.Time `json:"last_check"`
}

// ProcessTrends holds the rolling cpu and memory windows of a process
type ProcessTrends struct {
	CPUHistory    []float64 `json:"cpu_history"`
	MemoryHistory []float64 `json:"memory_history"`
	AvgCPU        float64   `json:"avg_cpu"`
	PeakCPU       float64   `json:"peak_cpu"`
	AvgMemory     float64   `json:"avg_memory"`
	PeakMemory    float64   `json:"peak_memory"`
}
