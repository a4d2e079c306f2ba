package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/homelabcmd/homelabcmd/pkg/unit/alerting"
	"github.com/homelabcmd/homelabcmd/pkg/unit/fleet"
	"github.com/homelabcmd/homelabcmd/pkg/unit/remediation"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAlertRoundTrip(t *testing.T) {
	ctx := context.Background()
	alerts := NewSQLiteAlertStore(newTestStore(t))

	alert := &alerting.Alert{
		ServerID:       "srv-1",
		Type:           alerting.AlertTypeCPU,
		Severity:       alerting.SeverityHigh,
		Status:         alerting.StatusOpen,
		Title:          "High CPU usage on srv-1",
		ThresholdValue: 85,
		ActualValue:    91.5,
	}
	if err := alerts.CreateAlert(ctx, alert); err != nil {
		t.Fatalf("CreateAlert() error = %v", err)
	}
	if alert.ID == "" {
		t.Fatal("CreateAlert() did not assign an ID")
	}

	got, err := alerts.GetAlert(ctx, alert.ID)
	if err != nil {
		t.Fatalf("GetAlert() error = %v", err)
	}
	if got.Severity != alerting.SeverityHigh || got.ActualValue != 91.5 {
		t.Errorf("GetAlert() = %+v, want severity high actual 91.5", got)
	}

	open, err := alerts.GetOpenAlert(ctx, "srv-1", alerting.AlertTypeCPU)
	if err != nil {
		t.Fatalf("GetOpenAlert() error = %v", err)
	}
	if open.ID != alert.ID {
		t.Errorf("GetOpenAlert() ID = %s, want %s", open.ID, alert.ID)
	}

	now := time.Now()
	got.Status = alerting.StatusResolved
	got.ResolvedAt = &now
	got.AutoResolved = true
	if err := alerts.UpdateAlert(ctx, got); err != nil {
		t.Fatalf("UpdateAlert() error = %v", err)
	}

	if _, err := alerts.GetOpenAlert(ctx, "srv-1", alerting.AlertTypeCPU); !errors.Is(err, alerting.ErrAlertNotFound) {
		t.Errorf("GetOpenAlert() after resolve error = %v, want ErrAlertNotFound", err)
	}

	final, err := alerts.GetAlert(ctx, alert.ID)
	if err != nil {
		t.Fatalf("GetAlert() error = %v", err)
	}
	if !final.AutoResolved || final.ResolvedAt == nil {
		t.Errorf("GetAlert() = %+v, want auto_resolved with resolved_at", final)
	}
}

func TestBreachCounterPersistence(t *testing.T) {
	ctx := context.Background()
	alerts := NewSQLiteAlertStore(newTestStore(t))

	if err := alerts.SetBreachCount(ctx, "srv-1", alerting.MetricCPU, 2); err != nil {
		t.Fatalf("SetBreachCount() error = %v", err)
	}
	count, err := alerts.GetBreachCount(ctx, "srv-1", alerting.MetricCPU)
	if err != nil {
		t.Fatalf("GetBreachCount() error = %v", err)
	}
	if count != 2 {
		t.Errorf("GetBreachCount() = %d, want 2", count)
	}

	// Zero clears the record.
	if err := alerts.SetBreachCount(ctx, "srv-1", alerting.MetricCPU, 0); err != nil {
		t.Fatalf("SetBreachCount(0) error = %v", err)
	}
	count, err = alerts.GetBreachCount(ctx, "srv-1", alerting.MetricCPU)
	if err != nil {
		t.Fatalf("GetBreachCount() error = %v", err)
	}
	if count != 0 {
		t.Errorf("GetBreachCount() after clear = %d, want 0", count)
	}
}

func TestMarkExecutingExclusive(t *testing.T) {
	ctx := context.Background()
	actions := NewSQLiteActionStore(newTestStore(t))

	now := time.Now()
	action := &remediation.Action{
		ServerID:    "srv-1",
		Type:        remediation.ActionRestartService,
		ServiceName: "nginx",
		Command:     "systemctl restart nginx",
		Status:      remediation.StatusApproved,
		ApprovedAt:  &now,
		ApprovedBy:  "admin",
	}
	if err := actions.Create(ctx, action); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	ok, err := actions.MarkExecuting(ctx, action.ID, now)
	if err != nil {
		t.Fatalf("MarkExecuting() error = %v", err)
	}
	if !ok {
		t.Fatal("MarkExecuting() = false, want true for approved action")
	}

	ok, err = actions.MarkExecuting(ctx, action.ID, now)
	if err != nil {
		t.Fatalf("MarkExecuting() second call error = %v", err)
	}
	if ok {
		t.Error("MarkExecuting() = true on second call, want false")
	}

	got, err := actions.Get(ctx, action.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Status != remediation.StatusExecuting || got.ExecutedAt == nil {
		t.Errorf("Get() = %+v, want executing with executed_at", got)
	}
}

func TestRecordNotificationSkipsResolved(t *testing.T) {
	ctx := context.Background()
	alerts := NewSQLiteAlertStore(newTestStore(t))

	alert := &alerting.Alert{
		ServerID: "srv-1",
		Type:     alerting.AlertTypeMemory,
		Severity: alerting.SeverityCritical,
		Status:   alerting.StatusOpen,
		Title:    "High memory usage on srv-1",
	}
	if err := alerts.CreateAlert(ctx, alert); err != nil {
		t.Fatalf("CreateAlert() error = %v", err)
	}

	now := time.Now()
	ok, err := alerts.RecordNotification(ctx, alert.ID, now, alerting.SeverityCritical)
	if err != nil {
		t.Fatalf("RecordNotification() error = %v", err)
	}
	if !ok {
		t.Fatal("RecordNotification() = false, want true for open alert")
	}

	got, err := alerts.GetAlert(ctx, alert.ID)
	if err != nil {
		t.Fatalf("GetAlert() error = %v", err)
	}
	if got.LastNotifiedAt == nil || got.NotifiedSeverity != alerting.SeverityCritical {
		t.Errorf("GetAlert() = %+v, want notification state recorded", got)
	}

	got.Status = alerting.StatusResolved
	got.ResolvedAt = &now
	if err := alerts.UpdateAlert(ctx, got); err != nil {
		t.Fatalf("UpdateAlert() error = %v", err)
	}

	ok, err = alerts.RecordNotification(ctx, alert.ID, now.Add(time.Minute), alerting.SeverityCritical)
	if err != nil {
		t.Fatalf("RecordNotification() on resolved error = %v", err)
	}
	if ok {
		t.Error("RecordNotification() = true on resolved alert, want false")
	}

	final, err := alerts.GetAlert(ctx, alert.ID)
	if err != nil {
		t.Fatalf("GetAlert() error = %v", err)
	}
	if final.Status != alerting.StatusResolved {
		t.Errorf("status = %s, want still resolved", final.Status)
	}
	if !final.LastNotifiedAt.Equal(*got.LastNotifiedAt) {
		t.Error("last_notified_at moved on a resolved alert")
	}
}

func TestDecisionUpdatesAreExclusive(t *testing.T) {
	ctx := context.Background()
	actions := NewSQLiteActionStore(newTestStore(t))

	action := &remediation.Action{
		ServerID:    "srv-1",
		Type:        remediation.ActionRestartService,
		ServiceName: "nginx",
		Command:     "systemctl restart nginx",
		Status:      remediation.StatusPending,
	}
	if err := actions.Create(ctx, action); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	now := time.Now()
	ok, err := actions.MarkRejected(ctx, action.ID, "admin", "maintenance window", now)
	if err != nil {
		t.Fatalf("MarkRejected() error = %v", err)
	}
	if !ok {
		t.Fatal("MarkRejected() = false, want true for pending action")
	}

	// The losing side of a decision race gets false, and the terminal
	// rejection survives.
	ok, err = actions.MarkApproved(ctx, action.ID, "other-admin", now.Add(time.Second))
	if err != nil {
		t.Fatalf("MarkApproved() error = %v", err)
	}
	if ok {
		t.Error("MarkApproved() = true on rejected action, want false")
	}

	got, err := actions.Get(ctx, action.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Status != remediation.StatusRejected || got.RejectReason != "maintenance window" {
		t.Errorf("Get() = %+v, want rejection intact", got)
	}
	if got.ApprovedAt != nil || got.ApprovedBy != "" {
		t.Errorf("Get() = %+v, want no approval fields", got)
	}

	if _, err := actions.MarkApproved(ctx, "act-missing", "admin", now); !errors.Is(err, remediation.ErrActionNotFound) {
		t.Errorf("MarkApproved() missing action error = %v, want ErrActionNotFound", err)
	}
}

func TestNextApprovedFIFO(t *testing.T) {
	ctx := context.Background()
	actions := NewSQLiteActionStore(newTestStore(t))

	base := time.Now().Add(-time.Minute)
	for i, id := range []string{"act-b", "act-a"} {
		at := base.Add(time.Duration(i) * time.Second)
		action := &remediation.Action{
			ID:        id,
			ServerID:  "srv-1",
			Type:      remediation.ActionRestartService,
			Command:   "systemctl restart nginx",
			Status:    remediation.StatusApproved,
			CreatedAt: at,
		}
		if err := actions.Create(ctx, action); err != nil {
			t.Fatalf("Create(%s) error = %v", id, err)
		}
	}

	next, err := actions.NextApproved(ctx, "srv-1")
	if err != nil {
		t.Fatalf("NextApproved() error = %v", err)
	}
	if next.ID != "act-b" {
		t.Errorf("NextApproved() ID = %s, want act-b (oldest)", next.ID)
	}

	if _, err := actions.NextApproved(ctx, "srv-other"); !errors.Is(err, remediation.ErrActionNotFound) {
		t.Errorf("NextApproved() empty queue error = %v, want ErrActionNotFound", err)
	}
}

func TestServerStaleListing(t *testing.T) {
	ctx := context.Background()
	servers := NewSQLiteServerStore(newTestStore(t))

	now := time.Now()
	stale := now.Add(-10 * time.Minute)
	for _, srv := range []*fleet.Server{
		{ID: "srv-fresh", Name: "fresh", Status: fleet.StatusOnline, LastSeen: &now},
		{ID: "srv-stale", Name: "stale", Status: fleet.StatusOnline, LastSeen: &stale},
		{ID: "srv-off", Name: "off", Status: fleet.StatusOffline, LastSeen: &stale},
	} {
		if err := servers.Create(ctx, srv); err != nil {
			t.Fatalf("Create(%s) error = %v", srv.ID, err)
		}
	}

	got, err := servers.ListOnlineStale(ctx, now.Add(-3*time.Minute))
	if err != nil {
		t.Fatalf("ListOnlineStale() error = %v", err)
	}
	if len(got) != 1 || got[0].ID != "srv-stale" {
		t.Errorf("ListOnlineStale() = %+v, want only srv-stale", got)
	}

	if err := servers.Touch(ctx, "srv-stale", now); err != nil {
		t.Fatalf("Touch() error = %v", err)
	}
	got, err = servers.ListOnlineStale(ctx, now.Add(-3*time.Minute))
	if err != nil {
		t.Fatalf("ListOnlineStale() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("ListOnlineStale() after touch = %+v, want empty", got)
	}
}
