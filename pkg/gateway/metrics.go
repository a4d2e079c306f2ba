package gateway

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/homelabcmd/homelabcmd/pkg/infra/eventbus"
	"github.com/homelabcmd/homelabcmd/pkg/unit/alerting"
)

// Metrics holds the Prometheus instruments exported at /metrics.
type Metrics struct {
	HeartbeatsTotal    *prometheus.CounterVec
	AlertsOpen         prometheus.Gauge
	ActionsDispatched  prometheus.Counter
	NotificationsTotal *prometheus.CounterVec
	RequestDuration    *prometheus.HistogramVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		HeartbeatsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "homelabcmd",
			Name:      "heartbeats_total",
			Help:      "Heartbeats processed, by outcome.",
		}, []string{"outcome"}),
		AlertsOpen: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "homelabcmd",
			Name:      "alerts_open",
			Help:      "Alerts currently not resolved.",
		}),
		ActionsDispatched: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "homelabcmd",
			Name:      "actions_dispatched_total",
			Help:      "Remediation actions handed to agents.",
		}),
		NotificationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "homelabcmd",
			Name:      "notifications_total",
			Help:      "Notification deliveries, by result.",
		}, []string{"result"}),
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "homelabcmd",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "status"}),
	}
}

// TrackOpenAlerts primes the open-alert gauge from the store and keeps it
// current from alert lifecycle events. Open and acknowledged both count as
// unresolved.
func (m *Metrics) TrackOpenAlerts(ctx context.Context, bus *eventbus.Bus, store alerting.Store) error {
	open := 0
	for _, status := range []alerting.Status{alerting.StatusOpen, alerting.StatusAcknowledged} {
		_, total, err := store.ListAlerts(ctx, alerting.Filter{Status: status, Limit: 1})
		if err != nil {
			return fmt.Errorf("count %s alerts: %w", status, err)
		}
		open += total
	}
	m.AlertsOpen.Set(float64(open))

	_, err := bus.Subscribe(func(event eventbus.Event) {
		switch event.Type() {
		case "alert.created":
			m.AlertsOpen.Inc()
		case "alert.resolved":
			m.AlertsOpen.Dec()
		}
	}, eventbus.DomainFilter("alert"))
	return err
}
