package types

import (
	"time"
)

// HealthSummary aggregates the health of every monitored process
type HealthSummary struct {
	Timestamp time.Time                `json:"timestamp"`
	Total     int                      `json:"total"`
	Healthy   int                      `json:"healthy"`
	Unhealthy int                      `json:"unhealthy"`
	Pending   int                      `json:"pending"`
	Processes map[string]ProcessHealth `json:"processes"`
}

// UnhealthyNames returns the names of the unhealthy processes in the summary
func (s HealthSummary) UnhealthyNames() []string {
	var names []string
	for name, health := range s.Processes {
		if !health.IsHealthy {
			names = append(names, name)
		}
	}
	return names
}

// CandidateProcess is a discovered process that looks like an unregistered worker
type CandidateProcess struct {
	PID        int       `json:"pid"`
	Name       string    `json:"name"`
	Cmdline    string    `json:"cmdline"`
	CreateTime time.Time `json:"create_time"`
}
