package remediation

import "time"

type ActionType string

const (
	ActionRestartService   ActionType = "restart_service"
	ActionStopService      ActionType = "stop_service"
	ActionStartService     ActionType = "start_service"
	ActionRestartContainer ActionType = "restart_container"
	ActionReboot           ActionType = "reboot"
	ActionClearLogs        ActionType = "clear_logs"
)

type ActionStatus string

const (
	StatusPending   ActionStatus = "pending"
	StatusApproved  ActionStatus = "approved"
	StatusRejected  ActionStatus = "rejected"
	StatusExecuting ActionStatus = "executing"
	StatusCompleted ActionStatus = "completed"
	StatusFailed    ActionStatus = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s ActionStatus) Terminal() bool {
	switch s {
	case StatusRejected, StatusCompleted, StatusFailed:
		return true
	default:
		return false
	}
}

// OutputCapBytes limits stored stdout/stderr from execution results. Overflow
// is dropped, never an error.
const OutputCapBytes = 10 * 1024

// Action is one queued remediation command for one server.
//
// Lifecycle: created as approved (auto-approval) or pending (maintenance
// mode); pending may be approved or rejected; approved is delivered on the
// server's next heartbeat and becomes executing; a later heartbeat reports
// the result and the action ends completed or failed.
type Action struct {
	ID          string       `json:"id"`
	ServerID    string       `json:"server_id"`
	Type        ActionType   `json:"action_type"`
	ServiceName string       `json:"service_name,omitempty"`
	Command     string       `json:"command"`
	Status      ActionStatus `json:"status"`
	// AlertID is a weak reference; an empty string means no linked alert.
	AlertID      string     `json:"alert_id,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	CreatedBy    string     `json:"created_by,omitempty"`
	ApprovedAt   *time.Time `json:"approved_at,omitempty"`
	ApprovedBy   string     `json:"approved_by,omitempty"`
	RejectedAt   *time.Time `json:"rejected_at,omitempty"`
	RejectedBy   string     `json:"rejected_by,omitempty"`
	RejectReason string     `json:"reject_reason,omitempty"`
	ExecutedAt   *time.Time `json:"executed_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	ExitCode     *int       `json:"exit_code,omitempty"`
	Stdout       string     `json:"stdout,omitempty"`
	Stderr       string     `json:"stderr,omitempty"`
}

type Filter struct {
	ServerID string
	Status   ActionStatus
	Type     ActionType
	AlertID  string
	Limit    int
	Offset   int
}

// Result is one execution report from an agent, matched to an executing
// action by ID.
type Result struct {
	ActionID string `json:"action_id"`
	ExitCode *int   `json:"exit_code,omitempty"`
	Success  *bool  `json:"success,omitempty"`
	Stdout   string `json:"stdout,omitempty"`
	Stderr   string `json:"stderr,omitempty"`
}

// Failed reports whether the result describes a failed execution. A result
// with neither exit_code nor success is treated as failed.
func (r Result) Failed() bool {
	if r.ExitCode != nil {
		return *r.ExitCode != 0
	}
	if r.Success != nil {
		return !*r.Success
	}
	return true
}

// TruncateOutput caps captured output at OutputCapBytes.
func TruncateOutput(s string) string {
	if len(s) <= OutputCapBytes {
		return s
	}
	return s[:OutputCapBytes]
}
