// Package alert turns threshold crossings into edge-triggered alerts and
// dispatches them to registered callbacks.
package alert

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/dreamsxin/procwatch/config"
	"github.com/dreamsxin/procwatch/types"
	"github.com/dreamsxin/procwatch/util"
)

var (
	// ErrInvalidThreshold is returned for negative or NaN thresholds
	ErrInvalidThreshold = errors.New("invalid alert threshold")
	// ErrUnknownMetric is returned for a threshold no rule reads
	ErrUnknownMetric = errors.New("unknown alert metric")
)

// Callback receives fired alerts (resolved=false) and resolutions
// (resolved=true). Returned errors and panics are logged and swallowed.
type Callback func(alert types.MonitoringAlert, resolved bool) error

// Options wires the collaborators of a Manager
type Options struct {
	Logger     logrus.FieldLogger
	Registerer prometheus.Registerer
}

type alertKey struct {
	serverID  string
	alertType string
}

type event struct {
	alert    types.MonitoringAlert
	resolved bool
}

// Manager evaluates snapshots against the threshold table. An alert fires
// once when its rule starts firing and stays active until the rule clears.
type Manager struct {
	rules     []rule
	maxAlerts int
	log       logrus.FieldLogger
	now       func() time.Time

	thresholdsMu sync.RWMutex
	thresholds   map[string]float64

	mu        sync.Mutex
	alerts    []*types.MonitoringAlert
	active    map[alertKey]*types.MonitoringAlert
	callbacks []Callback

	fired    *prometheus.CounterVec
	resolved *prometheus.CounterVec
}

// NewManager returns a Manager seeded with cfg's thresholds
func NewManager(cfg *config.Config, opts Options) *Manager {
	if cfg == nil {
		cfg = config.Default()
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}

	thresholds := config.DefaultThresholds()
	for k, v := range cfg.AlertThresholds {
		thresholds[k] = v
	}

	return &Manager{
		rules:      defaultRules(cfg.Health.BadStates),
		maxAlerts:  cfg.MaxAlerts,
		log:        opts.Logger.WithField("component", "alert"),
		now:        time.Now,
		thresholds: thresholds,
		active:     make(map[alertKey]*types.MonitoringAlert),
		fired: util.Register(opts.Registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "procwatch_alerts_fired_total",
			Help: "Alerts fired by type and severity",
		}, []string{"alert_type", "severity"})),
		resolved: util.Register(opts.Registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "procwatch_alerts_resolved_total",
			Help: "Alerts resolved by type",
		}, []string{"alert_type"})),
	}
}

// AddCallback registers fn for every subsequent alert event
func (am *Manager) AddCallback(fn Callback) {
	if fn == nil {
		return
	}
	am.mu.Lock()
	defer am.mu.Unlock()
	am.callbacks = append(am.callbacks, fn)
}

// SetAlertThreshold updates one entry of the threshold table. The change is
// seen by the next Check.
func (am *Manager) SetAlertThreshold(metric string, value float64) error {
	if value < 0 || math.IsNaN(value) || math.IsInf(value, 0) {
		return fmt.Errorf("%w: %s=%v", ErrInvalidThreshold, metric, value)
	}

	am.thresholdsMu.Lock()
	defer am.thresholdsMu.Unlock()

	if _, ok := am.thresholds[metric]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownMetric, metric)
	}

	next := make(map[string]float64, len(am.thresholds))
	for k, v := range am.thresholds {
		next[k] = v
	}
	next[metric] = value
	for warn, critical := range map[string]string{
		config.ThresholdCPUPercent:    config.ThresholdCPUPercentCritical,
		config.ThresholdMemoryPercent: config.ThresholdMemoryPercentCritical,
	} {
		if next[warn] > next[critical] {
			return fmt.Errorf("%w: %s must not exceed %s", ErrInvalidThreshold, warn, critical)
		}
	}

	am.thresholds = next
	am.log.WithFields(logrus.Fields{"metric": metric, "threshold": value}).Info("alert threshold updated")
	return nil
}

// Thresholds returns a copy of the threshold table
func (am *Manager) Thresholds() map[string]float64 {
	am.thresholdsMu.RLock()
	defer am.thresholdsMu.RUnlock()

	result := make(map[string]float64, len(am.thresholds))
	for k, v := range am.thresholds {
		result[k] = v
	}
	return result
}

// Check evaluates every rule for the snapshot of serverID and returns the
// alerts that fired on this call.
func (am *Manager) Check(serverID string, m *types.ExtendedProcessMetrics) []types.MonitoringAlert {
	thresholds := am.Thresholds()
	now := am.now()

	var (
		events []event
		fired  []types.MonitoringAlert
	)

	am.mu.Lock()
	for _, r := range am.rules {
		key := alertKey{serverID: serverID, alertType: r.alertType}
		firing, value, threshold := r.evaluate(m, thresholds)
		active := am.active[key]

		switch {
		case firing && active == nil:
			a := &types.MonitoringAlert{
				ID:        util.NewID("alert"),
				ServerID:  serverID,
				AlertType: r.alertType,
				Severity:  r.severity,
				Message:   r.message(m, threshold),
				Value:     value,
				Threshold: threshold,
				Timestamp: now,
			}
			am.active[key] = a
			am.alerts = append(am.alerts, a)
			events = append(events, event{alert: clone(a)})
			fired = append(fired, clone(a))

		case !firing && active != nil:
			resolvedAt := now
			active.ResolvedAt = &resolvedAt
			delete(am.active, key)
			events = append(events, event{alert: clone(active), resolved: true})
		}
	}
	if overflow := len(am.alerts) - am.maxAlerts; am.maxAlerts > 0 && overflow > 0 {
		am.alerts = append([]*types.MonitoringAlert(nil), am.alerts[overflow:]...)
	}
	callbacks := append([]Callback(nil), am.callbacks...)
	am.mu.Unlock()

	for _, ev := range events {
		am.record(ev)
		for _, cb := range callbacks {
			am.dispatch(cb, ev)
		}
	}
	return fired
}

// GetAlerts returns the alert log in insertion order, restricted to
// serverID unless it is empty
func (am *Manager) GetAlerts(serverID string) []types.MonitoringAlert {
	am.mu.Lock()
	defer am.mu.Unlock()

	result := make([]types.MonitoringAlert, 0, len(am.alerts))
	for _, a := range am.alerts {
		if serverID == "" || a.ServerID == serverID {
			result = append(result, clone(a))
		}
	}
	return result
}

// ActiveAlerts returns the alerts that have not resolved yet
func (am *Manager) ActiveAlerts(serverID string) []types.MonitoringAlert {
	am.mu.Lock()
	defer am.mu.Unlock()

	var result []types.MonitoringAlert
	for key, a := range am.active {
		if serverID == "" || key.serverID == serverID {
			result = append(result, clone(a))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].Timestamp.Equal(result[j].Timestamp) {
			return result[i].Timestamp.Before(result[j].Timestamp)
		}
		if result[i].ServerID != result[j].ServerID {
			return result[i].ServerID < result[j].ServerID
		}
		return result[i].AlertType < result[j].AlertType
	})
	return result
}

// ClearAlerts empties the log, or only serverID's part of it. Active state
// is dropped as well, so a condition that still holds fires again on the
// next Check.
func (am *Manager) ClearAlerts(serverID string) {
	am.mu.Lock()
	defer am.mu.Unlock()

	if serverID == "" {
		am.alerts = nil
		am.active = make(map[alertKey]*types.MonitoringAlert)
		return
	}

	kept := am.alerts[:0]
	for _, a := range am.alerts {
		if a.ServerID != serverID {
			kept = append(kept, a)
		}
	}
	for i := len(kept); i < len(am.alerts); i++ {
		am.alerts[i] = nil
	}
	am.alerts = kept
	am.forgetLocked(serverID)
}

// Forget drops the active state of serverID. Its active alerts stay in the
// log, marked resolved. No callbacks run.
func (am *Manager) Forget(serverID string) {
	am.mu.Lock()
	defer am.mu.Unlock()
	am.forgetLocked(serverID)
}

func (am *Manager) forgetLocked(serverID string) {
	now := am.now()
	for key, a := range am.active {
		if key.serverID == serverID {
			resolvedAt := now
			a.ResolvedAt = &resolvedAt
			delete(am.active, key)
		}
	}
}

func (am *Manager) record(ev event) {
	log := am.log.WithFields(logrus.Fields{
		"process":    ev.alert.ServerID,
		"alert_type": ev.alert.AlertType,
		"severity":   ev.alert.Severity,
	})
	if ev.resolved {
		am.resolved.WithLabelValues(ev.alert.AlertType).Inc()
		log.Info("alert resolved")
		return
	}
	am.fired.WithLabelValues(ev.alert.AlertType, string(ev.alert.Severity)).Inc()
	if ev.alert.Severity == types.SeverityError {
		log.Error(ev.alert.Message)
	} else {
		log.Warn(ev.alert.Message)
	}
}

// dispatch runs one callback, containing its errors and panics
func (am *Manager) dispatch(cb Callback, ev event) {
	defer func() {
		if r := recover(); r != nil {
			am.log.WithFields(logrus.Fields{
				"alert_type": ev.alert.AlertType,
				"panic":      r,
			}).Error("alert callback panicked")
		}
	}()

	if err := cb(ev.alert, ev.resolved); err != nil {
		am.log.WithError(err).WithField("alert_type", ev.alert.AlertType).Error("alert callback failed")
	}
}

func clone(a *types.MonitoringAlert) types.MonitoringAlert {
	c := *a
	if a.ResolvedAt != nil {
		t := *a.ResolvedAt
		c.ResolvedAt = &t
	}
	return c
}
