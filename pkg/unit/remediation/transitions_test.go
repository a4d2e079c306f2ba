package remediation

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestApprove(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name    string
		status  ActionStatus
		wantErr error
	}{
		{name: "pending approves", status: StatusPending, wantErr: nil},
		{name: "approved conflicts", status: StatusApproved, wantErr: ErrNotPending},
		{name: "executing conflicts", status: StatusExecuting, wantErr: ErrNotPending},
		{name: "completed conflicts", status: StatusCompleted, wantErr: ErrNotPending},
		{name: "rejected conflicts", status: StatusRejected, wantErr: ErrNotPending},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &Action{Status: tt.status}
			err := Approve(a, "admin", now)

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				if a.Status != tt.status {
					t.Error("conflicting approve must leave the action unchanged")
				}
				return
			}

			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if a.Status != StatusApproved {
				t.Errorf("expected approved, got %s", a.Status)
			}
			if a.ApprovedBy != "admin" || a.ApprovedAt == nil {
				t.Error("expected approved_by and approved_at to be set")
			}
		})
	}
}

func TestReject(t *testing.T) {
	now := time.Now()

	t.Run("requires reason", func(t *testing.T) {
		a := &Action{Status: StatusPending}
		if err := Reject(a, "admin", "", now); !errors.Is(err, ErrReasonRequired) {
			t.Fatalf("expected ErrReasonRequired, got %v", err)
		}
		if a.Status != StatusPending {
			t.Error("invalid reject must not change status")
		}
	})

	t.Run("records reason verbatim", func(t *testing.T) {
		a := &Action{Status: StatusPending}
		if err := Reject(a, "admin", "  not during backup window  ", now); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if a.Status != StatusRejected {
			t.Errorf("expected rejected, got %s", a.Status)
		}
		if a.RejectReason != "  not during backup window  " {
			t.Errorf("reason not recorded verbatim: %q", a.RejectReason)
		}
	})

	t.Run("non-pending conflicts", func(t *testing.T) {
		a := &Action{Status: StatusExecuting}
		if err := Reject(a, "admin", "too late", now); !errors.Is(err, ErrNotPending) {
			t.Fatalf("expected ErrNotPending, got %v", err)
		}
	})
}

func TestComplete(t *testing.T) {
	now := time.Now()
	zero, nonzero := 0, 3
	success, failure := true, false

	tests := []struct {
		name       string
		result     Result
		wantStatus ActionStatus
		wantCode   *int
	}{
		{name: "exit zero completes", result: Result{ExitCode: &zero}, wantStatus: StatusCompleted, wantCode: &zero},
		{name: "exit nonzero fails", result: Result{ExitCode: &nonzero}, wantStatus: StatusFailed, wantCode: &nonzero},
		{name: "success true completes", result: Result{Success: &success}, wantStatus: StatusCompleted, wantCode: &zero},
		{name: "success false fails", result: Result{Success: &failure}, wantStatus: StatusFailed},
		{name: "no outcome fields fails", result: Result{}, wantStatus: StatusFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &Action{Status: StatusExecuting}
			if err := Complete(a, tt.result, now); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if a.Status != tt.wantStatus {
				t.Errorf("expected %s, got %s", tt.wantStatus, a.Status)
			}
			if a.CompletedAt == nil {
				t.Error("expected completed_at to be set")
			}
			if tt.wantCode != nil {
				if a.ExitCode == nil || *a.ExitCode != *tt.wantCode {
					t.Errorf("expected exit code %d, got %v", *tt.wantCode, a.ExitCode)
				}
			}
		})
	}

	t.Run("non-executing conflicts", func(t *testing.T) {
		a := &Action{Status: StatusApproved}
		if err := Complete(a, Result{ExitCode: &zero}, now); !errors.Is(err, ErrNotExecuting) {
			t.Fatalf("expected ErrNotExecuting, got %v", err)
		}
	})

	t.Run("caps output", func(t *testing.T) {
		a := &Action{Status: StatusExecuting}
		big := strings.Repeat("x", OutputCapBytes+500)
		if err := Complete(a, Result{ExitCode: &zero, Stdout: big, Stderr: big}, now); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(a.Stdout) != OutputCapBytes || len(a.Stderr) != OutputCapBytes {
			t.Errorf("expected output capped at %d, got %d/%d", OutputCapBytes, len(a.Stdout), len(a.Stderr))
		}
	})
}
