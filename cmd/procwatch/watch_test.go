package main

import (
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamsxin/procwatch/types"
)

func TestParseTargets(t *testing.T) {
	targets, err := parseTargets([]string{"api=1234", " worker = 42 ", "77"})
	require.NoError(t, err)
	assert.Equal(t, []target{
		{name: "api", pid: 1234},
		{name: "worker", pid: 42},
		{name: "pid-77", pid: 77},
	}, targets)

	for _, bad := range [][]string{
		{"api=abc"},
		{"api=-1"},
		{"=12"},
		{"api=1", "api=2"},
	} {
		_, err := parseTargets(bad)
		assert.Error(t, err, "%v", bad)
	}
}

func TestFormatAlert(t *testing.T) {
	color.NoColor = true
	at := time.Date(2024, 1, 2, 15, 4, 5, 0, time.UTC)
	a := types.MonitoringAlert{
		ServerID:  "api",
		AlertType: "high_cpu",
		Severity:  types.SeverityWarning,
		Message:   "CPU usage 85.0% exceeds 80.0%",
		Timestamp: at,
	}

	assert.Equal(t, "15:04:05 WARNING api/high_cpu: CPU usage 85.0% exceeds 80.0%", formatAlert(a, false))

	resolved := at.Add(time.Minute)
	a.ResolvedAt = &resolved
	assert.Equal(t, "15:05:05 RESOLVED api/high_cpu", formatAlert(a, true))
}
