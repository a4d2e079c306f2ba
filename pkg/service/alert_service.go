package service

import (
	"context"
	"fmt"
	"time"

	"github.com/homelabcmd/homelabcmd/pkg/infra/eventbus"
	"github.com/homelabcmd/homelabcmd/pkg/infra/logger"
	"github.com/homelabcmd/homelabcmd/pkg/unit/alerting"
)

// AlertService exposes the operator-facing alert lifecycle.
type AlertService struct {
	store alerting.Store
	bus   *eventbus.Bus
	now   func() time.Time
}

func NewAlertService(store alerting.Store, bus *eventbus.Bus) *AlertService {
	return &AlertService{store: store, bus: bus, now: time.Now}
}

type ListAlertsResult struct {
	Alerts []alerting.Alert `json:"alerts"`
	Total  int              `json:"total"`
}

func (s *AlertService) List(ctx context.Context, filter alerting.Filter) (*ListAlertsResult, error) {
	filter.Limit, filter.Offset = normalizePage(filter.Limit, filter.Offset)

	alerts, total, err := s.store.ListAlerts(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	return &ListAlertsResult{Alerts: alerts, Total: total}, nil
}

func (s *AlertService) Get(ctx context.Context, id string) (*alerting.Alert, error) {
	if id == "" {
		return nil, alerting.ErrInvalidAlertID
	}
	return s.store.GetAlert(ctx, id)
}

// Acknowledge marks an open alert as seen by an operator. Only open alerts
// may be acknowledged.
func (s *AlertService) Acknowledge(ctx context.Context, id, by string) (*alerting.Alert, error) {
	if id == "" {
		return nil, alerting.ErrInvalidAlertID
	}

	alert, err := s.store.GetAlert(ctx, id)
	if err != nil {
		return nil, err
	}
	if alert.Status != alerting.StatusOpen {
		return nil, alerting.ErrNotOpen
	}

	now := s.now()
	alert.Status = alerting.StatusAcknowledged
	alert.AcknowledgedAt = &now
	alert.AcknowledgedBy = by
	if err := s.store.UpdateAlert(ctx, alert); err != nil {
		return nil, fmt.Errorf("acknowledge alert: %w", err)
	}

	logger.Info("alert acknowledged", "alert_id", alert.ID, "by", by)
	publish(s.bus, "alert", "alert.acknowledged", alert)
	return alert, nil
}

// Resolve closes an alert manually. Resolving an already resolved alert is a
// conflict.
func (s *AlertService) Resolve(ctx context.Context, id, by string) (*alerting.Alert, error) {
	if id == "" {
		return nil, alerting.ErrInvalidAlertID
	}

	alert, err := s.store.GetAlert(ctx, id)
	if err != nil {
		return nil, err
	}
	if alert.Status == alerting.StatusResolved {
		return nil, alerting.ErrAlreadyResolved
	}

	now := s.now()
	alert.Status = alerting.StatusResolved
	alert.ResolvedAt = &now
	alert.AutoResolved = false
	if err := s.store.UpdateAlert(ctx, alert); err != nil {
		return nil, fmt.Errorf("resolve alert: %w", err)
	}

	logger.Info("alert resolved", "alert_id", alert.ID, "by", by)
	publish(s.bus, "alert", "alert.resolved", alert)
	return alert, nil
}
