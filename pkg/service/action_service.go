package service

import (
	"context"
	"fmt"
	"time"

	"github.com/homelabcmd/homelabcmd/pkg/infra/eventbus"
	"github.com/homelabcmd/homelabcmd/pkg/infra/logger"
	"github.com/homelabcmd/homelabcmd/pkg/unit/fleet"
	"github.com/homelabcmd/homelabcmd/pkg/unit/remediation"
)

// ActionService owns remediation action creation and the approval
// transitions.
type ActionService struct {
	actions remediation.Store
	servers fleet.Store
	bus     *eventbus.Bus
	now     func() time.Time
}

func NewActionService(actions remediation.Store, servers fleet.Store, bus *eventbus.Bus) *ActionService {
	return &ActionService{actions: actions, servers: servers, bus: bus, now: time.Now}
}

type CreateActionInput struct {
	ServerID    string                 `json:"server_id"`
	Type        remediation.ActionType `json:"action_type"`
	ServiceName string                 `json:"service_name,omitempty"`
	AlertID     string                 `json:"alert_id,omitempty"`
	CreatedBy   string                 `json:"created_by,omitempty"`
}

// Create validates the action against the whitelist and applies the
// auto-approval rule: the target server's is_paused flag is read once, here,
// and never re-checked later.
func (s *ActionService) Create(ctx context.Context, input CreateActionInput) (*remediation.Action, error) {
	command, err := remediation.ResolveCommand(input.Type, input.ServiceName)
	if err != nil {
		return nil, err
	}

	server, err := s.servers.Get(ctx, input.ServerID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	action := &remediation.Action{
		ServerID:    input.ServerID,
		Type:        input.Type,
		ServiceName: input.ServiceName,
		Command:     command,
		Status:      remediation.StatusPending,
		AlertID:     input.AlertID,
		CreatedAt:   now,
		CreatedBy:   input.CreatedBy,
	}

	if !server.IsPaused {
		action.Status = remediation.StatusApproved
		action.ApprovedAt = &now
		action.ApprovedBy = "auto"
	}

	if err := s.actions.Create(ctx, action); err != nil {
		return nil, fmt.Errorf("create action: %w", err)
	}

	logger.Info("action created", "action_id", action.ID, "server_id", action.ServerID,
		"action_type", string(action.Type), "status", string(action.Status))
	publish(s.bus, "action", "action.created", action)
	return action, nil
}

type ListActionsResult struct {
	Actions []remediation.Action `json:"actions"`
	Total   int                  `json:"total"`
}

func (s *ActionService) List(ctx context.Context, filter remediation.Filter) (*ListActionsResult, error) {
	filter.Limit, filter.Offset = normalizePage(filter.Limit, filter.Offset)

	actions, total, err := s.actions.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list actions: %w", err)
	}
	return &ListActionsResult{Actions: actions, Total: total}, nil
}

func (s *ActionService) Get(ctx context.Context, id string) (*remediation.Action, error) {
	if id == "" {
		return nil, remediation.ErrInvalidActionID
	}
	return s.actions.Get(ctx, id)
}

// Approve transitions a pending action to approved. The store performs the
// transition conditionally, so two racing decisions cannot both win and a
// terminal rejection is never overwritten.
func (s *ActionService) Approve(ctx context.Context, id, by string) (*remediation.Action, error) {
	if id == "" {
		return nil, remediation.ErrInvalidActionID
	}

	ok, err := s.actions.MarkApproved(ctx, id, by, s.now())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, s.decisionConflict(ctx, id)
	}
	action, err := s.actions.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	logger.Info("action approved", "action_id", action.ID, "by", by)
	publish(s.bus, "action", "action.approved", action)
	return action, nil
}

// Reject transitions a pending action to rejected. A reason is required and
// stored verbatim.
func (s *ActionService) Reject(ctx context.Context, id, by, reason string) (*remediation.Action, error) {
	if id == "" {
		return nil, remediation.ErrInvalidActionID
	}
	if reason == "" {
		return nil, remediation.ErrReasonRequired
	}

	ok, err := s.actions.MarkRejected(ctx, id, by, reason, s.now())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, s.decisionConflict(ctx, id)
	}
	action, err := s.actions.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	logger.Info("action rejected", "action_id", action.ID, "by", by)
	publish(s.bus, "action", "action.rejected", action)
	return action, nil
}

// decisionConflict builds the ErrNotPending error for a decision that lost
// the conditional update, naming the status that beat it there.
func (s *ActionService) decisionConflict(ctx context.Context, id string) error {
	action, err := s.actions.Get(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: status is %s", remediation.ErrNotPending, action.Status)
}

// FailStuckExecuting is the stuck-execution sweep body: executing actions
// dispatched before the timeout are marked failed with a synthetic stderr so
// the queue cannot wedge on an agent that died mid-command. A non-positive
// timeout disables the sweep.
func (s *ActionService) FailStuckExecuting(ctx context.Context, timeout time.Duration) (int, error) {
	if timeout <= 0 {
		return 0, nil
	}
	now := s.now()
	stuck, err := s.actions.ListExecutingOlderThan(ctx, now.Add(-timeout))
	if err != nil {
		return 0, fmt.Errorf("list stuck actions: %w", err)
	}

	failed := 0
	for i := range stuck {
		action := stuck[i]
		result := remediation.Result{
			ActionID: action.ID,
			Stderr:   fmt.Sprintf("no result received within %s of dispatch", timeout),
		}
		if err := remediation.Complete(&action, result, now); err != nil {
			continue
		}
		if err := s.actions.Update(ctx, &action); err != nil {
			logger.Error("fail stuck action", "action_id", action.ID, "error", err)
			continue
		}

		logger.Warn("action timed out", "action_id", action.ID, "server_id", action.ServerID)
		publish(s.bus, "action", "action.failed", &action)
		failed++
	}
	return failed, nil
}
