package alerting

import "time"

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank orders severities for escalation comparisons. Unknown severities rank
// below low.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	default:
		return 0
	}
}

func IsValidSeverity(s Severity) bool {
	return s.Rank() > 0
}

type Status string

const (
	StatusOpen         Status = "open"
	StatusAcknowledged Status = "acknowledged"
	StatusResolved     Status = "resolved"
)

// AlertType identifies the condition an alert reports on. For metric-driven
// alerts it equals the metric type string.
type AlertType string

const (
	AlertTypeCPU     AlertType = "cpu"
	AlertTypeMemory  AlertType = "memory"
	AlertTypeDisk    AlertType = "disk"
	AlertTypeOffline AlertType = "offline"
	AlertTypeService AlertType = "service"
)

type MetricType string

const (
	MetricCPU    MetricType = "cpu"
	MetricMemory MetricType = "memory"
	MetricDisk   MetricType = "disk"
)

// Alert is a single raised condition on one server. At most one alert with
// Status != resolved may exist per (ServerID, Type) at any time.
type Alert struct {
	ID               string     `json:"id"`
	ServerID         string     `json:"server_id"`
	Type             AlertType  `json:"alert_type"`
	Severity         Severity   `json:"severity"`
	Status           Status     `json:"status"`
	Title            string     `json:"title"`
	Message          string     `json:"message"`
	ThresholdValue   float64    `json:"threshold_value"`
	ActualValue      float64    `json:"actual_value"`
	CreatedAt        time.Time  `json:"created_at"`
	AcknowledgedAt   *time.Time `json:"acknowledged_at,omitempty"`
	AcknowledgedBy   string     `json:"acknowledged_by,omitempty"`
	ResolvedAt       *time.Time `json:"resolved_at,omitempty"`
	AutoResolved     bool       `json:"auto_resolved"`
	LastNotifiedAt   *time.Time `json:"last_notified_at,omitempty"`
	NotifiedSeverity Severity   `json:"notified_severity,omitempty"`
}

// Open reports whether the alert still counts against the one-open-alert
// invariant.
func (a *Alert) Open() bool {
	return a.Status != StatusResolved
}

// Threshold is the per-metric evaluation configuration. SustainedHeartbeats
// is the number of consecutive breaching samples required before an alert is
// created; zero means the first breaching sample fires immediately.
type Threshold struct {
	HighPercent         float64 `json:"high_percent"`
	CriticalPercent     float64 `json:"critical_percent"`
	SustainedHeartbeats int     `json:"sustained_heartbeats"`
}

type Filter struct {
	ServerID string
	Type     AlertType
	Status   Status
	Severity Severity
	Limit    int
	Offset   int
}
