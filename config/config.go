// Package config loads procwatch settings from defaults, an optional YAML
// file and PROCWATCH_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Alert threshold keys understood by the alert manager
const (
	ThresholdCPUPercent            = "cpu_percent"
	ThresholdCPUPercentCritical    = "cpu_percent_critical"
	ThresholdMemoryPercent         = "memory_percent"
	ThresholdMemoryPercentCritical = "memory_percent_critical"
	ThresholdMemoryMB              = "memory_mb"
	ThresholdNumFDs                = "num_fds"
	ThresholdNumThreads            = "num_threads"
)

// minInterval is the smallest accepted sampling or aggregation interval
const minInterval = 100 * time.Millisecond

// Config holds the complete monitoring configuration
type Config struct {
	// MonitoringInterval is how often each process is sampled
	MonitoringInterval time.Duration `yaml:"monitoring_interval" env:"MONITORING_INTERVAL"`

	// HealthCheckInterval is how often the health summary is rebuilt
	HealthCheckInterval time.Duration `yaml:"health_check_interval" env:"HEALTH_CHECK_INTERVAL"`

	// CollectionTimeout bounds a single snapshot collection
	CollectionTimeout time.Duration `yaml:"collection_timeout" env:"COLLECTION_TIMEOUT"`

	// TrendWindowSize is the number of samples kept per trend series
	TrendWindowSize int `yaml:"trend_window_size" env:"TREND_WINDOW_SIZE"`

	// RetireExited removes a process from the registry once it has exited
	RetireExited bool `yaml:"retire_exited" env:"RETIRE_EXITED"`

	// MaxAlerts bounds the alert log, oldest alerts are dropped first
	MaxAlerts int `yaml:"max_alerts" env:"MAX_ALERTS"`

	LogLevel    string `yaml:"log_level" env:"LOG_LEVEL"`
	LogFormat   string `yaml:"log_format" env:"LOG_FORMAT"`
	MetricsAddr string `yaml:"metrics_addr" env:"METRICS_ADDR"`

	Health          HealthConfig       `yaml:"health" envPrefix:"HEALTH_"`
	AlertThresholds map[string]float64 `yaml:"alert_thresholds" env:"ALERT_THRESHOLDS"`
	Discovery       DiscoveryConfig    `yaml:"discovery" envPrefix:"DISCOVERY_"`
}

// HealthConfig holds the health assessor thresholds
type HealthConfig struct {
	CPUWarnPercent        float64  `yaml:"cpu_warn_percent" env:"CPU_WARN_PERCENT"`
	MemoryWarnPercent     float64  `yaml:"memory_warn_percent" env:"MEMORY_WARN_PERCENT"`
	MemoryCriticalPercent float64  `yaml:"memory_critical_percent" env:"MEMORY_CRITICAL_PERCENT"`
	BadStates             []string `yaml:"bad_states" env:"BAD_STATES"`

	// MaxFDs and MaxThreads disable their check when zero
	MaxFDs     int32 `yaml:"max_fds" env:"MAX_FDS"`
	MaxThreads int32 `yaml:"max_threads" env:"MAX_THREADS"`
}

// DiscoveryConfig holds the candidate heuristics
type DiscoveryConfig struct {
	Interpreters []string `yaml:"interpreters" env:"INTERPRETERS"`
	Markers      []string `yaml:"markers" env:"MARKERS"`
	Concurrency  int      `yaml:"concurrency" env:"CONCURRENCY"`
}

// DefaultThresholds returns the seed alert threshold table
func DefaultThresholds() map[string]float64 {
	return map[string]float64{
		ThresholdCPUPercent:            80,
		ThresholdCPUPercentCritical:    95,
		ThresholdMemoryPercent:         85,
		ThresholdMemoryPercentCritical: 95,
		ThresholdMemoryMB:              2048,
		ThresholdNumFDs:                1024,
		ThresholdNumThreads:            1000,
	}
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		MonitoringInterval:  5 * time.Second,
		HealthCheckInterval: 30 * time.Second,
		CollectionTimeout:   5 * time.Second,
		TrendWindowSize:     10,
		RetireExited:        true,
		MaxAlerts:           1000,
		LogLevel:            "info",
		LogFormat:           "text",
		MetricsAddr:         ":9108",
		Health: HealthConfig{
			CPUWarnPercent:        80,
			MemoryWarnPercent:     85,
			MemoryCriticalPercent: 95,
			BadStates:             []string{"zombie", "dead"},
			MaxFDs:                1024,
			MaxThreads:            1000,
		},
		AlertThresholds: DefaultThresholds(),
		Discovery: DiscoveryConfig{
			Interpreters: []string{"python", "node", "nodejs", "deno", "bun", "uv", "npx"},
			Markers:      []string{"mcp"},
			Concurrency:  8,
		},
	}
}

// Load builds a Config from defaults, the YAML file at path (skipped when
// path is empty) and the environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: "PROCWATCH_"}); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	// thresholds missing from the file or environment keep their defaults
	for key, value := range DefaultThresholds() {
		if _, ok := cfg.AlertThresholds[key]; !ok {
			if cfg.AlertThresholds == nil {
				cfg.AlertThresholds = make(map[string]float64)
			}
			cfg.AlertThresholds[key] = value
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration and reports every problem found
func (c *Config) Validate() error {
	var errs []error

	if c.MonitoringInterval < minInterval {
		errs = append(errs, fmt.Errorf("monitoring_interval must be at least %s", minInterval))
	}
	if c.HealthCheckInterval < minInterval {
		errs = append(errs, fmt.Errorf("health_check_interval must be at least %s", minInterval))
	}
	if c.CollectionTimeout <= 0 {
		errs = append(errs, errors.New("collection_timeout must be positive"))
	}
	if c.TrendWindowSize < 1 {
		errs = append(errs, errors.New("trend_window_size must be at least 1"))
	}
	if c.MaxAlerts < 1 {
		errs = append(errs, errors.New("max_alerts must be at least 1"))
	}
	if c.Discovery.Concurrency < 1 {
		errs = append(errs, errors.New("discovery.concurrency must be at least 1"))
	}

	h := c.Health
	for name, v := range map[string]float64{
		"health.cpu_warn_percent":        h.CPUWarnPercent,
		"health.memory_warn_percent":     h.MemoryWarnPercent,
		"health.memory_critical_percent": h.MemoryCriticalPercent,
	} {
		if v < 0 || math.IsNaN(v) {
			errs = append(errs, fmt.Errorf("%s must not be negative", name))
		}
	}
	if h.MemoryWarnPercent > h.MemoryCriticalPercent {
		errs = append(errs, errors.New("health.memory_warn_percent must not exceed health.memory_critical_percent"))
	}
	if h.MaxFDs < 0 || h.MaxThreads < 0 {
		errs = append(errs, errors.New("health.max_fds and health.max_threads must not be negative"))
	}

	for key, v := range c.AlertThresholds {
		if v < 0 || math.IsNaN(v) {
			errs = append(errs, fmt.Errorf("alert_thresholds.%s must not be negative", key))
		}
	}
	if err := checkPair(c.AlertThresholds, ThresholdCPUPercent, ThresholdCPUPercentCritical); err != nil {
		errs = append(errs, err)
	}
	if err := checkPair(c.AlertThresholds, ThresholdMemoryPercent, ThresholdMemoryPercentCritical); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

func checkPair(t map[string]float64, warn, critical string) error {
	w, okW := t[warn]
	c, okC := t[critical]
	if okW && okC && w > c {
		return fmt.Errorf("alert_thresholds.%s must not exceed alert_thresholds.%s", warn, critical)
	}
	return nil
}
