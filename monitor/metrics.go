package monitor

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dreamsxin/procwatch/types"
	"github.com/dreamsxin/procwatch/util"
)

// Sample outcomes recorded in procwatch_samples_total
const (
	outcomeOK     = "ok"
	outcomeDenied = "denied"
	outcomeGone   = "gone"
	outcomeError  = "error"
)

type monitorMetrics struct {
	cpuPercent    *prometheus.GaugeVec
	memoryPercent *prometheus.GaugeVec
	memoryMB      *prometheus.GaugeVec
	numFDs        *prometheus.GaugeVec
	numThreads    *prometheus.GaugeVec
	healthy       *prometheus.GaugeVec
	samples       *prometheus.CounterVec
	monitored     prometheus.Gauge
	unhealthy     prometheus.Gauge
}

func newMonitorMetrics(reg prometheus.Registerer) *monitorMetrics {
	processGauge := func(name, help string) *prometheus.GaugeVec {
		return util.Register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: name,
			Help: help,
		}, []string{"process"}))
	}

	return &monitorMetrics{
		cpuPercent:    processGauge("procwatch_process_cpu_percent", "CPU usage of a monitored process"),
		memoryPercent: processGauge("procwatch_process_memory_percent", "Memory usage of a monitored process as a share of host memory"),
		memoryMB:      processGauge("procwatch_process_memory_mb", "Resident memory of a monitored process in MiB"),
		numFDs:        processGauge("procwatch_process_num_fds", "Open file descriptors of a monitored process"),
		numThreads:    processGauge("procwatch_process_num_threads", "Threads of a monitored process"),
		healthy:       processGauge("procwatch_process_healthy", "1 when the last health assessment found no issue"),
		samples: util.Register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "procwatch_samples_total",
			Help: "Sampling attempts by outcome",
		}, []string{"process", "outcome"})),
		monitored: util.Register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "procwatch_monitored_processes",
			Help: "Number of registered processes",
		})),
		unhealthy: util.Register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "procwatch_unhealthy_processes",
			Help: "Number of processes whose last assessment found issues",
		})),
	}
}

func (mm *monitorMetrics) observe(name string, m *types.ExtendedProcessMetrics) {
	mm.cpuPercent.WithLabelValues(name).Set(m.CPUPercent)
	mm.memoryPercent.WithLabelValues(name).Set(m.MemoryPercent)
	mm.memoryMB.WithLabelValues(name).Set(m.MemoryMB)
	mm.numFDs.WithLabelValues(name).Set(float64(m.NumFDs))
	mm.numThreads.WithLabelValues(name).Set(float64(m.NumThreads))
	if m.Health.IsHealthy {
		mm.healthy.WithLabelValues(name).Set(1)
	} else {
		mm.healthy.WithLabelValues(name).Set(0)
	}
}

func (mm *monitorMetrics) sample(name, outcome string) {
	mm.samples.WithLabelValues(name, outcome).Inc()
}

// forget drops every series of a removed process
func (mm *monitorMetrics) forget(name string) {
	for _, g := range []*prometheus.GaugeVec{mm.cpuPercent, mm.memoryPercent, mm.memoryMB, mm.numFDs, mm.numThreads, mm.healthy} {
		g.DeleteLabelValues(name)
	}
	for _, outcome := range []string{outcomeOK, outcomeDenied, outcomeGone, outcomeError} {
		mm.samples.DeleteLabelValues(name, outcome)
	}
}
