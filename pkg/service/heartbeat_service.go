package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/homelabcmd/homelabcmd/pkg/infra/eventbus"
	"github.com/homelabcmd/homelabcmd/pkg/infra/logger"
	"github.com/homelabcmd/homelabcmd/pkg/unit/alerting"
	"github.com/homelabcmd/homelabcmd/pkg/unit/fleet"
	"github.com/homelabcmd/homelabcmd/pkg/unit/remediation"
)

// HeartbeatService owns the heartbeat cycle: record liveness, collect action
// results, evaluate metric thresholds, and dispatch at most one approved
// action back to the agent.
type HeartbeatService struct {
	servers   fleet.Store
	actions   remediation.Store
	evaluator *alerting.Evaluator
	locks     *serverLocks
	bus       *eventbus.Bus
	now       func() time.Time
}

func NewHeartbeatService(servers fleet.Store, actions remediation.Store, evaluator *alerting.Evaluator, bus *eventbus.Bus) *HeartbeatService {
	return &HeartbeatService{
		servers:   servers,
		actions:   actions,
		evaluator: evaluator,
		locks:     newServerLocks(),
		bus:       bus,
		now:       time.Now,
	}
}

// MetricsInput is the metric block of one heartbeat.
type MetricsInput struct {
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
	DiskPercent   float64 `json:"disk_percent"`
	UptimeSeconds uint64  `json:"uptime_seconds"`
}

// HeartbeatInput is one heartbeat report. Metrics is optional: an agent
// whose collector failed still beats for liveness and result delivery, and
// an absent block must not be evaluated as all-zero samples.
type HeartbeatInput struct {
	ServerID string               `json:"server_id"`
	Hostname string               `json:"hostname,omitempty"`
	Metrics  *MetricsInput        `json:"metrics,omitempty"`
	Results  []remediation.Result `json:"results,omitempty"`
}

// PendingCommand is the action handed to the agent in a heartbeat response.
type PendingCommand struct {
	ActionID    string `json:"action_id"`
	ActionType  string `json:"action_type"`
	Command     string `json:"command"`
	ServiceName string `json:"service_name,omitempty"`
}

// HeartbeatResult acknowledges a heartbeat. PendingCommands is always
// present in the JSON, holding zero or one command this cycle.
type HeartbeatResult struct {
	Received        bool             `json:"received"`
	ServerTime      time.Time        `json:"server_time"`
	ServerID        string           `json:"server_id"`
	PendingCommands []PendingCommand `json:"pending_commands"`
}

var ErrServerIDRequired = errors.New("server_id is required")

// Process handles one heartbeat under the server's lock.
func (s *HeartbeatService) Process(ctx context.Context, input HeartbeatInput) (*HeartbeatResult, error) {
	if input.ServerID == "" {
		return nil, ErrServerIDRequired
	}

	unlock := s.locks.lock(input.ServerID)
	defer unlock()

	now := s.now()

	if err := s.ensureServer(ctx, input, now); err != nil {
		return nil, err
	}
	if err := s.servers.Touch(ctx, input.ServerID, now); err != nil {
		return nil, fmt.Errorf("touch server: %w", err)
	}

	// Any heartbeat at all clears an open offline alert.
	outcome, err := s.evaluator.ResolveOffline(ctx, input.ServerID)
	if err != nil {
		return nil, fmt.Errorf("resolve offline alert: %w", err)
	}
	s.publishAlertOutcome(input.ServerID, outcome)

	s.collectResults(ctx, input, now)

	if err := s.evaluateMetrics(ctx, input); err != nil {
		return nil, err
	}

	result := &HeartbeatResult{
		Received:        true,
		ServerTime:      now,
		ServerID:        input.ServerID,
		PendingCommands: []PendingCommand{},
	}
	cmd, err := s.dispatchNext(ctx, input.ServerID, now)
	if err != nil {
		return nil, err
	}
	if cmd != nil {
		result.PendingCommands = append(result.PendingCommands, *cmd)
	}

	return result, nil
}

// ensureServer registers unknown servers on first heartbeat.
func (s *HeartbeatService) ensureServer(ctx context.Context, input HeartbeatInput, now time.Time) error {
	_, err := s.servers.Get(ctx, input.ServerID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, fleet.ErrServerNotFound) {
		return fmt.Errorf("get server: %w", err)
	}

	name := input.Hostname
	if name == "" {
		name = input.ServerID
	}
	server := &fleet.Server{
		ID:        input.ServerID,
		Name:      name,
		Status:    fleet.StatusOnline,
		LastSeen:  &now,
		CreatedAt: now,
	}
	if err := s.servers.Create(ctx, server); err != nil {
		return fmt.Errorf("register server: %w", err)
	}

	logger.Info("server registered", "server_id", server.ID, "name", server.Name)
	publish(s.bus, "server", "server.registered", server)
	return nil
}

// collectResults matches reported results to executing actions. A result for
// an action not currently executing is logged and skipped; results are
// reports, never errors for the heartbeat itself.
func (s *HeartbeatService) collectResults(ctx context.Context, input HeartbeatInput, now time.Time) {
	for _, result := range input.Results {
		action, err := s.actions.Get(ctx, result.ActionID)
		if err != nil {
			logger.Warn("result for unknown action", "server_id", input.ServerID, "action_id", result.ActionID)
			continue
		}
		if action.ServerID != input.ServerID {
			logger.Warn("result for another server's action", "server_id", input.ServerID, "action_id", result.ActionID)
			continue
		}

		if err := remediation.Complete(action, result, now); err != nil {
			logger.Warn("result rejected", "action_id", result.ActionID, "status", string(action.Status), "error", err)
			continue
		}
		if err := s.actions.Update(ctx, action); err != nil {
			logger.Error("persist action result", "action_id", action.ID, "error", err)
			continue
		}

		eventType := "action.completed"
		if action.Status == remediation.StatusFailed {
			eventType = "action.failed"
		}
		publish(s.bus, "action", eventType, action)
	}
}

func (s *HeartbeatService) evaluateMetrics(ctx context.Context, input HeartbeatInput) error {
	// No metrics block means the agent could not collect this cycle. Skip
	// evaluation entirely: zero samples would reset breach counters and
	// auto-resolve genuine alerts.
	if input.Metrics == nil {
		return nil
	}

	samples := []struct {
		metric alerting.MetricType
		value  float64
	}{
		{alerting.MetricCPU, input.Metrics.CPUPercent},
		{alerting.MetricMemory, input.Metrics.MemoryPercent},
		{alerting.MetricDisk, input.Metrics.DiskPercent},
	}

	for _, sample := range samples {
		outcome, err := s.evaluator.EvaluateSample(ctx, input.ServerID, sample.metric, sample.value)
		if err != nil {
			return fmt.Errorf("evaluate %s: %w", sample.metric, err)
		}
		s.publishAlertOutcome(input.ServerID, outcome)
	}
	return nil
}

// dispatchNext hands out the oldest approved action, if any. MarkExecuting is
// conditional, so a raced action is simply not delivered this cycle.
func (s *HeartbeatService) dispatchNext(ctx context.Context, serverID string, now time.Time) (*PendingCommand, error) {
	action, err := s.actions.NextApproved(ctx, serverID)
	if err != nil {
		if errors.Is(err, remediation.ErrActionNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("next approved action: %w", err)
	}

	ok, err := s.actions.MarkExecuting(ctx, action.ID, now)
	if err != nil {
		return nil, fmt.Errorf("mark action executing: %w", err)
	}
	if !ok {
		return nil, nil
	}

	logger.Info("action dispatched", "server_id", serverID, "action_id", action.ID, "action_type", string(action.Type))
	publish(s.bus, "action", "action.dispatched", action)

	return &PendingCommand{
		ActionID:    action.ID,
		ActionType:  string(action.Type),
		Command:     action.Command,
		ServiceName: action.ServiceName,
	}, nil
}

func (s *HeartbeatService) publishAlertOutcome(serverID string, outcome alerting.Outcome) {
	switch outcome.Change {
	case alerting.ChangeCreated:
		logger.Info("alert created", "server_id", serverID, "alert_type", string(outcome.Alert.Type), "severity", string(outcome.Alert.Severity))
		publish(s.bus, "alert", "alert.created", outcome.Alert)
	case alerting.ChangeEscalated:
		logger.Info("alert escalated", "server_id", serverID, "alert_type", string(outcome.Alert.Type), "severity", string(outcome.Alert.Severity))
		publish(s.bus, "alert", "alert.escalated", outcome.Alert)
	case alerting.ChangeResolved:
		logger.Info("alert auto-resolved", "server_id", serverID, "alert_type", string(outcome.Alert.Type))
		publish(s.bus, "alert", "alert.resolved", outcome.Alert)
	}
}

// MarkStaleOffline is the offline sweep body: servers still online whose
// last_seen predates the cutoff are flipped offline and get a critical
// offline alert. State is re-checked under each server's lock so a heartbeat
// racing the sweep wins.
func (s *HeartbeatService) MarkStaleOffline(ctx context.Context, threshold time.Duration) (int, error) {
	now := s.now()
	stale, err := s.servers.ListOnlineStale(ctx, now.Add(-threshold))
	if err != nil {
		return 0, fmt.Errorf("list stale servers: %w", err)
	}

	marked := 0
	for i := range stale {
		server := stale[i]
		if err := s.markOffline(ctx, &server, threshold); err != nil {
			logger.Error("mark server offline", "server_id", server.ID, "error", err)
			continue
		}
		marked++
	}
	return marked, nil
}

func (s *HeartbeatService) markOffline(ctx context.Context, server *fleet.Server, threshold time.Duration) error {
	unlock := s.locks.lock(server.ID)
	defer unlock()

	// Re-read: a heartbeat may have landed since the listing.
	current, err := s.servers.Get(ctx, server.ID)
	if err != nil {
		return fmt.Errorf("get server: %w", err)
	}
	cutoff := s.now().Add(-threshold)
	if current.Status != fleet.StatusOnline || current.LastSeen == nil || !current.LastSeen.Before(cutoff) {
		return nil
	}

	current.Status = fleet.StatusOffline
	if err := s.servers.Update(ctx, current); err != nil {
		return fmt.Errorf("update server: %w", err)
	}

	outcome, err := s.evaluator.RaiseOffline(ctx, current.ID, *current.LastSeen)
	if err != nil {
		return fmt.Errorf("raise offline alert: %w", err)
	}
	s.publishAlertOutcome(current.ID, outcome)

	logger.Warn("server offline", "server_id", current.ID, "last_seen", current.LastSeen.UTC().Format(time.RFC3339))
	publish(s.bus, "server", "server.offline", current)
	return nil
}
