package alerting

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Change describes what an evaluation did to the open alert for a condition.
type Change string

const (
	ChangeNone      Change = "none"
	ChangeCreated   Change = "created"
	ChangeEscalated Change = "escalated"
	ChangeResolved  Change = "resolved"
)

type Outcome struct {
	Change Change
	Alert  *Alert
}

// Evaluator turns metric samples into alert lifecycle decisions: create on
// immediate or sustained breach, escalate in place, auto-resolve on clear.
//
// The evaluator itself is not serialized; callers must hold the per-server
// lock so concurrent heartbeats for one server cannot double-create.
type Evaluator struct {
	store      Store
	thresholds map[MetricType]Threshold
	now        func() time.Time
}

func NewEvaluator(store Store, thresholds map[MetricType]Threshold) *Evaluator {
	return &Evaluator{
		store:      store,
		thresholds: thresholds,
		now:        time.Now,
	}
}

// EvaluateSample processes one metric sample for one server.
//
// A sample below high_percent resets the breach counter and auto-resolves any
// open alert for the metric. A breaching sample increments the counter and
// creates an alert once sustained_heartbeats consecutive breaches are seen
// (immediately when the configured count is zero). If an open alert already
// exists, the sample can only escalate its severity in place; it never creates
// a second row for the same condition.
func (e *Evaluator) EvaluateSample(ctx context.Context, serverID string, metric MetricType, value float64) (Outcome, error) {
	th, ok := e.thresholds[metric]
	if !ok || th.HighPercent <= 0 {
		return Outcome{Change: ChangeNone}, nil
	}

	open, err := e.store.GetOpenAlert(ctx, serverID, AlertType(metric))
	if err != nil && !errors.Is(err, ErrAlertNotFound) {
		return Outcome{}, fmt.Errorf("get open alert: %w", err)
	}

	if value < th.HighPercent {
		if err := e.store.SetBreachCount(ctx, serverID, metric, 0); err != nil {
			return Outcome{}, fmt.Errorf("reset breach count: %w", err)
		}
		if open == nil {
			return Outcome{Change: ChangeNone}, nil
		}
		return e.autoResolve(ctx, open, value)
	}

	severity := e.severityFor(th, value)

	if open != nil {
		if severity.Rank() <= open.Severity.Rank() {
			return Outcome{Change: ChangeNone, Alert: open}, nil
		}

		open.Severity = severity
		open.ActualValue = value
		open.ThresholdValue = e.thresholdFor(th, severity)
		open.Message = breachMessage(metric, value, open.ThresholdValue)
		if err := e.store.UpdateAlert(ctx, open); err != nil {
			return Outcome{}, fmt.Errorf("escalate alert: %w", err)
		}
		return Outcome{Change: ChangeEscalated, Alert: open}, nil
	}

	count, err := e.store.GetBreachCount(ctx, serverID, metric)
	if err != nil {
		return Outcome{}, fmt.Errorf("get breach count: %w", err)
	}
	count++

	if count < th.SustainedHeartbeats {
		if err := e.store.SetBreachCount(ctx, serverID, metric, count); err != nil {
			return Outcome{}, fmt.Errorf("set breach count: %w", err)
		}
		return Outcome{Change: ChangeNone}, nil
	}

	if err := e.store.SetBreachCount(ctx, serverID, metric, 0); err != nil {
		return Outcome{}, fmt.Errorf("clear breach count: %w", err)
	}

	threshold := e.thresholdFor(th, severity)
	alert := &Alert{
		ServerID:       serverID,
		Type:           AlertType(metric),
		Severity:       severity,
		Status:         StatusOpen,
		Title:          breachTitle(metric, severity),
		Message:        breachMessage(metric, value, threshold),
		ThresholdValue: threshold,
		ActualValue:    value,
		CreatedAt:      e.now(),
	}
	if err := e.store.CreateAlert(ctx, alert); err != nil {
		return Outcome{}, fmt.Errorf("create alert: %w", err)
	}
	return Outcome{Change: ChangeCreated, Alert: alert}, nil
}

// RaiseOffline creates the critical offline alert for a server that stopped
// heartbeating. Offline conditions are never sustained; the sweep fires them
// on first detection. A no-op when an offline alert is already open.
func (e *Evaluator) RaiseOffline(ctx context.Context, serverID string, lastSeen time.Time) (Outcome, error) {
	open, err := e.store.GetOpenAlert(ctx, serverID, AlertTypeOffline)
	if err != nil && !errors.Is(err, ErrAlertNotFound) {
		return Outcome{}, fmt.Errorf("get open alert: %w", err)
	}
	if open != nil {
		return Outcome{Change: ChangeNone, Alert: open}, nil
	}

	alert := &Alert{
		ServerID:  serverID,
		Type:      AlertTypeOffline,
		Severity:  SeverityCritical,
		Status:    StatusOpen,
		Title:     "Server offline",
		Message:   fmt.Sprintf("no heartbeat received since %s", lastSeen.UTC().Format(time.RFC3339)),
		CreatedAt: e.now(),
	}
	if err := e.store.CreateAlert(ctx, alert); err != nil {
		return Outcome{}, fmt.Errorf("create offline alert: %w", err)
	}
	return Outcome{Change: ChangeCreated, Alert: alert}, nil
}

// ResolveOffline auto-resolves an open offline alert. Called when any
// heartbeat arrives; receiving one at all is the clear condition.
func (e *Evaluator) ResolveOffline(ctx context.Context, serverID string) (Outcome, error) {
	open, err := e.store.GetOpenAlert(ctx, serverID, AlertTypeOffline)
	if err != nil {
		if errors.Is(err, ErrAlertNotFound) {
			return Outcome{Change: ChangeNone}, nil
		}
		return Outcome{}, fmt.Errorf("get open alert: %w", err)
	}
	return e.autoResolve(ctx, open, open.ActualValue)
}

func (e *Evaluator) autoResolve(ctx context.Context, alert *Alert, value float64) (Outcome, error) {
	now := e.now()
	alert.Status = StatusResolved
	alert.AutoResolved = true
	alert.ResolvedAt = &now
	alert.ActualValue = value
	if err := e.store.UpdateAlert(ctx, alert); err != nil {
		return Outcome{}, fmt.Errorf("auto-resolve alert: %w", err)
	}
	return Outcome{Change: ChangeResolved, Alert: alert}, nil
}

func (e *Evaluator) severityFor(th Threshold, value float64) Severity {
	if th.CriticalPercent > 0 && value >= th.CriticalPercent {
		return SeverityCritical
	}
	return SeverityHigh
}

func (e *Evaluator) thresholdFor(th Threshold, severity Severity) float64 {
	if severity == SeverityCritical && th.CriticalPercent > 0 {
		return th.CriticalPercent
	}
	return th.HighPercent
}

func breachTitle(metric MetricType, severity Severity) string {
	return fmt.Sprintf("%s %s usage", severity, metricLabel(metric))
}

func breachMessage(metric MetricType, value, threshold float64) string {
	return fmt.Sprintf("%s usage at %.1f%% (threshold %.1f%%)", metricLabel(metric), value, threshold)
}

func metricLabel(metric MetricType) string {
	switch metric {
	case MetricCPU:
		return "CPU"
	case MetricMemory:
		return "memory"
	case MetricDisk:
		return "disk"
	default:
		return string(metric)
	}
}
