package types

import (
	"time"
)

// Severity classifies an alert
type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// MonitoringAlert is raised when a threshold rule starts firing for a process
type MonitoringAlert struct {
	ID         string     `json:"id"`
	ServerID   string     `json:"server_id"`
	AlertType  string     `json:"alert_type"`
	Severity   Severity   `json:"severity"`
	Message    string     `json:"message"`
	Value      float64    `json:"value"`
	Threshold  float64    `json:"threshold"`
	Timestamp  time.Time  `json:"timestamp"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

// IsResolved reports whether the alert condition has cleared
func (a *MonitoringAlert) IsResolved() bool {
	return a.ResolvedAt != nil
}

// Status returns the current status of the alert as a string
func (a *MonitoringAlert) Status() string {
	if a.IsResolved() {
		return "resolved"
	}
	return "active"
}
