// Package notify delivers alert notifications to external sinks. Delivery is
// best effort: sink failures are logged and never propagate to the alert
// write that triggered them.
package notify

import (
	"context"
	"time"

	"github.com/homelabcmd/homelabcmd/pkg/unit/alerting"
)

// Event is the reason a notification fires.
type Event string

const (
	EventCreated   Event = "created"
	EventEscalated Event = "escalated"
	EventReminder  Event = "reminder"
)

// Notification is the summary payload handed to each sink.
type Notification struct {
	Event      Event              `json:"event"`
	AlertID    string             `json:"alert_id"`
	ServerID   string             `json:"server_id"`
	ServerName string             `json:"server_name,omitempty"`
	AlertType  alerting.AlertType `json:"alert_type"`
	Severity   alerting.Severity  `json:"severity"`
	Title      string             `json:"title"`
	Message    string             `json:"message"`
	Timestamp  time.Time          `json:"timestamp"`
}

// Sink delivers one notification. Implementations must honor ctx deadlines;
// the dispatcher bounds every send.
type Sink interface {
	Name() string
	Send(ctx context.Context, n Notification) error
}
