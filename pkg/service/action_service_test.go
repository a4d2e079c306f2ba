package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/homelabcmd/homelabcmd/pkg/unit/fleet"
	"github.com/homelabcmd/homelabcmd/pkg/unit/remediation"
)

type actionFixture struct {
	svc     *ActionService
	servers *fleet.MemoryStore
	actions *remediation.MemoryStore
}

func newActionFixture(t *testing.T, paused bool) *actionFixture {
	t.Helper()
	servers := fleet.NewMemoryStore()
	actions := remediation.NewMemoryStore()
	server := &fleet.Server{ID: "srv-1", Name: "nas", Status: fleet.StatusOnline, IsPaused: paused}
	if err := servers.Create(context.Background(), server); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	return &actionFixture{
		svc:     NewActionService(actions, servers, nil),
		servers: servers,
		actions: actions,
	}
}

func TestCreateAutoApproves(t *testing.T) {
	f := newActionFixture(t, false)

	action, err := f.svc.Create(context.Background(), CreateActionInput{
		ServerID:    "srv-1",
		Type:        remediation.ActionRestartService,
		ServiceName: "nginx",
		CreatedBy:   "admin",
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if action.Status != remediation.StatusApproved {
		t.Errorf("status = %s, want approved", action.Status)
	}
	if action.ApprovedBy != "auto" || action.ApprovedAt == nil {
		t.Errorf("action = %+v, want approved_by auto with approved_at", action)
	}
	if action.Command != "systemctl restart nginx" {
		t.Errorf("command = %q, want resolved whitelist command", action.Command)
	}
}

func TestCreatePausedServerStaysPending(t *testing.T) {
	f := newActionFixture(t, true)

	action, err := f.svc.Create(context.Background(), CreateActionInput{
		ServerID:    "srv-1",
		Type:        remediation.ActionRestartService,
		ServiceName: "nginx",
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if action.Status != remediation.StatusPending {
		t.Errorf("status = %s, want pending for paused server", action.Status)
	}
	if action.ApprovedBy != "" || action.ApprovedAt != nil {
		t.Errorf("action = %+v, want no approval fields", action)
	}
}

func TestCreateValidation(t *testing.T) {
	f := newActionFixture(t, false)
	ctx := context.Background()

	tests := []struct {
		name    string
		input   CreateActionInput
		wantErr error
	}{
		{
			name:    "unknown action type",
			input:   CreateActionInput{ServerID: "srv-1", Type: "wipe_disk"},
			wantErr: remediation.ErrUnknownActionType,
		},
		{
			name:    "service action without service name",
			input:   CreateActionInput{ServerID: "srv-1", Type: remediation.ActionRestartService},
			wantErr: remediation.ErrServiceRequired,
		},
		{
			name:    "unknown server",
			input:   CreateActionInput{ServerID: "srv-missing", Type: remediation.ActionReboot},
			wantErr: fleet.ErrServerNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.svc.Create(ctx, tt.input); !errors.Is(err, tt.wantErr) {
				t.Errorf("Create() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestApproveRejectTransitions(t *testing.T) {
	f := newActionFixture(t, true)
	ctx := context.Background()

	pending, err := f.svc.Create(ctx, CreateActionInput{
		ServerID: "srv-1", Type: remediation.ActionRestartService, ServiceName: "nginx",
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	approved, err := f.svc.Approve(ctx, pending.ID, "admin")
	if err != nil {
		t.Fatalf("Approve() error = %v", err)
	}
	if approved.Status != remediation.StatusApproved || approved.ApprovedBy != "admin" {
		t.Errorf("approved action = %+v", approved)
	}

	// Approving again is a conflict, and the action is unchanged.
	if _, err := f.svc.Approve(ctx, pending.ID, "admin"); !errors.Is(err, remediation.ErrNotPending) {
		t.Errorf("Approve() twice error = %v, want ErrNotPending", err)
	}
	if _, err := f.svc.Reject(ctx, pending.ID, "admin", "changed my mind"); !errors.Is(err, remediation.ErrNotPending) {
		t.Errorf("Reject() approved action error = %v, want ErrNotPending", err)
	}

	other, err := f.svc.Create(ctx, CreateActionInput{
		ServerID: "srv-1", Type: remediation.ActionClearLogs,
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if _, err := f.svc.Reject(ctx, other.ID, "admin", ""); !errors.Is(err, remediation.ErrReasonRequired) {
		t.Errorf("Reject() without reason error = %v, want ErrReasonRequired", err)
	}

	rejected, err := f.svc.Reject(ctx, other.ID, "admin", "not during business hours")
	if err != nil {
		t.Fatalf("Reject() error = %v", err)
	}
	if rejected.Status != remediation.StatusRejected || rejected.RejectReason != "not during business hours" {
		t.Errorf("rejected action = %+v, want reason stored verbatim", rejected)
	}
}

func TestRejectionIsTerminal(t *testing.T) {
	f := newActionFixture(t, true)
	ctx := context.Background()

	pending, err := f.svc.Create(ctx, CreateActionInput{
		ServerID: "srv-1", Type: remediation.ActionRestartService, ServiceName: "nginx",
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := f.svc.Reject(ctx, pending.ID, "admin", "too risky"); err != nil {
		t.Fatalf("Reject() error = %v", err)
	}

	// A late approval must lose the conditional update, never flip a
	// rejected action back to approved and into the dispatch queue.
	if _, err := f.svc.Approve(ctx, pending.ID, "other-admin"); !errors.Is(err, remediation.ErrNotPending) {
		t.Fatalf("Approve() after reject error = %v, want ErrNotPending", err)
	}

	got, err := f.actions.Get(ctx, pending.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Status != remediation.StatusRejected {
		t.Errorf("status = %s, want rejected preserved", got.Status)
	}
	if got.RejectedBy != "admin" || got.RejectReason != "too risky" {
		t.Errorf("action = %+v, want original rejection intact", got)
	}
	if _, err := f.actions.NextApproved(ctx, "srv-1"); !errors.Is(err, remediation.ErrActionNotFound) {
		t.Errorf("NextApproved() error = %v, want empty queue", err)
	}
}

func TestApproveMissingAction(t *testing.T) {
	f := newActionFixture(t, true)

	if _, err := f.svc.Approve(context.Background(), "act-missing", "admin"); !errors.Is(err, remediation.ErrActionNotFound) {
		t.Errorf("Approve() error = %v, want ErrActionNotFound", err)
	}
}

func TestFailStuckExecuting(t *testing.T) {
	f := newActionFixture(t, false)
	ctx := context.Background()

	old := time.Now().Add(-2 * time.Hour)
	recent := time.Now().Add(-time.Minute)
	stuck := &remediation.Action{
		ID: "act-stuck", ServerID: "srv-1", Type: remediation.ActionReboot,
		Command: "systemctl reboot", Status: remediation.StatusExecuting, ExecutedAt: &old,
	}
	fresh := &remediation.Action{
		ID: "act-fresh", ServerID: "srv-1", Type: remediation.ActionClearLogs,
		Command: "journalctl --vacuum-time=7d", Status: remediation.StatusExecuting, ExecutedAt: &recent,
	}
	for _, a := range []*remediation.Action{stuck, fresh} {
		if err := f.actions.Create(ctx, a); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	failed, err := f.svc.FailStuckExecuting(ctx, time.Hour)
	if err != nil {
		t.Fatalf("FailStuckExecuting() error = %v", err)
	}
	if failed != 1 {
		t.Fatalf("FailStuckExecuting() = %d, want 1", failed)
	}

	got, _ := f.actions.Get(ctx, "act-stuck")
	if got.Status != remediation.StatusFailed || got.Stderr == "" {
		t.Errorf("stuck action = %+v, want failed with stderr", got)
	}

	got, _ = f.actions.Get(ctx, "act-fresh")
	if got.Status != remediation.StatusExecuting {
		t.Errorf("fresh action status = %s, want still executing", got.Status)
	}
}

func TestFailStuckExecutingDisabled(t *testing.T) {
	f := newActionFixture(t, false)
	ctx := context.Background()

	// With the timeout disabled, even an action dispatched this instant
	// must not be swept: now.Add(-0) would otherwise catch it immediately.
	justDispatched := time.Now()
	action := &remediation.Action{
		ID: "act-live", ServerID: "srv-1", Type: remediation.ActionReboot,
		Command: "systemctl reboot", Status: remediation.StatusExecuting, ExecutedAt: &justDispatched,
	}
	if err := f.actions.Create(ctx, action); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	for _, timeout := range []time.Duration{0, -time.Minute} {
		failed, err := f.svc.FailStuckExecuting(ctx, timeout)
		if err != nil {
			t.Fatalf("FailStuckExecuting(%v) error = %v", timeout, err)
		}
		if failed != 0 {
			t.Errorf("FailStuckExecuting(%v) = %d, want 0", timeout, failed)
		}
	}

	got, _ := f.actions.Get(ctx, "act-live")
	if got.Status != remediation.StatusExecuting {
		t.Errorf("status = %s, want still executing", got.Status)
	}
}
