package notify

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/homelabcmd/homelabcmd/pkg/infra/cache"
	"github.com/homelabcmd/homelabcmd/pkg/infra/eventbus"
	"github.com/homelabcmd/homelabcmd/pkg/infra/logger"
	"github.com/homelabcmd/homelabcmd/pkg/unit/alerting"
	"github.com/homelabcmd/homelabcmd/pkg/unit/fleet"
)

// DispatcherConfig controls gating and suppression.
type DispatcherConfig struct {
	// MinSeverity is the lowest severity that notifies at all.
	MinSeverity alerting.Severity
	// Cooldowns suppress re-notification per severity tier while an alert
	// stays open.
	Cooldowns map[alerting.Severity]time.Duration
	// SendTimeout bounds each individual sink delivery.
	SendTimeout time.Duration
	// Deliveries, when set, counts outcomes under a "result" label
	// (sent, suppressed, failed).
	Deliveries *prometheus.CounterVec
}

func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		MinSeverity: alerting.SeverityHigh,
		Cooldowns: map[alerting.Severity]time.Duration{
			alerting.SeverityCritical: 30 * time.Minute,
			alerting.SeverityHigh:     4 * time.Hour,
		},
		SendTimeout: 10 * time.Second,
	}
}

// Dispatcher applies the severity gate and cooldowns, then fans a
// notification out to every sink. Successful delivery records
// last_notified_at and the notified tier on the alert.
type Dispatcher struct {
	alerts  alerting.Store
	servers fleet.Store
	sinks   []Sink
	cfg     DispatcherConfig
	names   cache.Cache
	now     func() time.Time
}

func NewDispatcher(alerts alerting.Store, servers fleet.Store, sinks []Sink, cfg DispatcherConfig) *Dispatcher {
	if cfg.MinSeverity == "" {
		cfg.MinSeverity = alerting.SeverityHigh
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	return &Dispatcher{
		alerts:  alerts,
		servers: servers,
		sinks:   sinks,
		cfg:     cfg,
		names:   cache.New(cache.WithTTL(5 * time.Minute)),
		now:     time.Now,
	}
}

// Subscribe attaches the dispatcher to alert lifecycle events.
func (d *Dispatcher) Subscribe(bus *eventbus.Bus) error {
	_, err := bus.Subscribe(func(event eventbus.Event) {
		alert, ok := event.Payload().(*alerting.Alert)
		if !ok {
			return
		}
		switch event.Type() {
		case "alert.created", "alert.escalated":
			d.Notify(context.Background(), alert)
		}
	}, eventbus.DomainFilter("alert"))
	return err
}

// Notify evaluates gate and cooldown for one alert and delivers if due,
// reporting whether a notification went out. The argument is a snapshot taken
// at publish time and may be arbitrarily stale by the time the eventbus
// workers get here, so only its ID is trusted: the row is re-read, and state
// is recorded through a conditional write that cannot resurrect a resolved
// alert. Delivery failures are logged, never returned.
func (d *Dispatcher) Notify(ctx context.Context, alert *alerting.Alert) bool {
	if len(d.sinks) == 0 {
		return false
	}

	current, err := d.alerts.GetAlert(ctx, alert.ID)
	if err != nil {
		logger.Warn("alert gone before notification", "alert_id", alert.ID, "error", err)
		return false
	}
	if !current.Open() {
		return false
	}
	if current.Severity.Rank() < d.cfg.MinSeverity.Rank() {
		d.count("suppressed")
		return false
	}

	now := d.now()
	escalated := current.NotifiedSeverity != "" && current.Severity.Rank() > current.NotifiedSeverity.Rank()

	// A higher tier is a new notifiable event; only same-tier repeats are
	// held to the cooldown.
	if !escalated && current.LastNotifiedAt != nil {
		if now.Sub(*current.LastNotifiedAt) < d.cooldown(current.Severity) {
			d.count("suppressed")
			return false
		}
	}

	event := EventReminder
	if current.LastNotifiedAt == nil {
		event = EventCreated
	} else if escalated {
		event = EventEscalated
	}

	n := Notification{
		Event:     event,
		AlertID:   current.ID,
		ServerID:  current.ServerID,
		AlertType: current.Type,
		Severity:  current.Severity,
		Title:     current.Title,
		Message:   current.Message,
		Timestamp: now,
	}
	n.ServerName = d.serverName(ctx, current.ServerID)

	delivered := false
	for _, sink := range d.sinks {
		sendCtx, cancel := context.WithTimeout(ctx, d.cfg.SendTimeout)
		err := sink.Send(sendCtx, n)
		cancel()
		if err != nil {
			logger.Warn("notification delivery failed", "sink", sink.Name(), "alert_id", current.ID, "error", err)
			continue
		}
		delivered = true
	}
	if !delivered {
		d.count("failed")
		return false
	}

	recorded, err := d.alerts.RecordNotification(ctx, current.ID, now, current.Severity)
	if err != nil {
		logger.Error("record notification state", "alert_id", current.ID, "error", err)
	} else if !recorded {
		logger.Info("alert resolved during delivery", "alert_id", current.ID)
	}
	d.count("sent")
	logger.Info("notification sent", "alert_id", current.ID, "event", string(event), "severity", string(current.Severity))
	return true
}

// SweepReminders re-notifies open alerts whose cooldown has elapsed. Run
// periodically; alerts still inside their cooldown are skipped by Notify.
func (d *Dispatcher) SweepReminders(ctx context.Context) int {
	sent := 0
	for _, status := range []alerting.Status{alerting.StatusOpen, alerting.StatusAcknowledged} {
		alerts, _, err := d.alerts.ListAlerts(ctx, alerting.Filter{Status: status})
		if err != nil {
			logger.Error("list alerts for reminder sweep", "error", err)
			continue
		}
		for i := range alerts {
			if d.Notify(ctx, &alerts[i]) {
				sent++
			}
		}
	}
	return sent
}

func (d *Dispatcher) cooldown(severity alerting.Severity) time.Duration {
	if cd, ok := d.cfg.Cooldowns[severity]; ok {
		return cd
	}
	return 4 * time.Hour
}

func (d *Dispatcher) count(result string) {
	if d.cfg.Deliveries != nil {
		d.cfg.Deliveries.WithLabelValues(result).Inc()
	}
}

func (d *Dispatcher) serverName(ctx context.Context, serverID string) string {
	if d.servers == nil {
		return ""
	}
	if cached, ok := d.names.Get(serverID); ok {
		if name, ok := cached.(string); ok {
			return name
		}
	}
	server, err := d.servers.Get(ctx, serverID)
	if err != nil {
		return serverID
	}
	d.names.Set(serverID, server.Name)
	return server.Name
}
