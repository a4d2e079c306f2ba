package integration

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/homelabcmd/homelabcmd/pkg/agentd"
	"github.com/homelabcmd/homelabcmd/pkg/gateway"
	"github.com/homelabcmd/homelabcmd/pkg/infra/eventbus"
	"github.com/homelabcmd/homelabcmd/pkg/infra/store"
	"github.com/homelabcmd/homelabcmd/pkg/service"
	"github.com/homelabcmd/homelabcmd/pkg/unit/alerting"
	"github.com/homelabcmd/homelabcmd/pkg/unit/fleet"
	"github.com/homelabcmd/homelabcmd/pkg/unit/ptrs"
	"github.com/homelabcmd/homelabcmd/pkg/unit/remediation"
)

type env struct {
	api        *httptest.Server
	client     *agentd.Client
	heartbeats *service.HeartbeatService
	alerts     *service.AlertService
	actions    *service.ActionService
	servers    *service.FleetService
}

// setupEnv wires the whole coordinator against a real SQLite database and
// serves it over HTTP, the way the serve command does.
func setupEnv(t *testing.T) *env {
	t.Helper()

	db, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "e2e.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	alertStore := store.NewSQLiteAlertStore(db)
	actionStore := store.NewSQLiteActionStore(db)
	serverStore := store.NewSQLiteServerStore(db)

	bus := eventbus.New()
	t.Cleanup(func() { _ = bus.Close() })

	evaluator := alerting.NewEvaluator(alertStore, map[alerting.MetricType]alerting.Threshold{
		alerting.MetricCPU:  {HighPercent: 85, CriticalPercent: 95, SustainedHeartbeats: 2},
		alerting.MetricDisk: {HighPercent: 80, CriticalPercent: 95, SustainedHeartbeats: 0},
	})

	heartbeats := service.NewHeartbeatService(serverStore, actionStore, evaluator, bus)
	alerts := service.NewAlertService(alertStore, bus)
	actions := service.NewActionService(actionStore, serverStore, bus)
	servers := service.NewFleetService(serverStore, bus)

	handlers := gateway.NewHandlers(heartbeats, alerts, actions, servers, nil)
	srv := gateway.NewServer(handlers, nil, gateway.DefaultServerConfig())

	api := httptest.NewServer(srv.Handler())
	t.Cleanup(api.Close)

	return &env{
		api:        api,
		client:     agentd.NewClient(api.URL, "", 5*time.Second),
		heartbeats: heartbeats,
		alerts:     alerts,
		actions:    actions,
		servers:    servers,
	}
}

func beat(t *testing.T, e *env, serverID string, cpu float64, results ...remediation.Result) *service.HeartbeatResult {
	t.Helper()

	result, err := e.client.SendHeartbeat(context.Background(), service.HeartbeatInput{
		ServerID: serverID,
		Metrics:  &service.MetricsInput{CPUPercent: cpu, MemoryPercent: 30, DiskPercent: 40},
		Results:  results,
	})
	require.NoError(t, err)
	return result
}

func openAlerts(t *testing.T, e *env, serverID string) []alerting.Alert {
	t.Helper()

	result, err := e.alerts.List(context.Background(), alerting.Filter{
		ServerID: serverID,
		Status:   alerting.StatusOpen,
	})
	require.NoError(t, err)
	return result.Alerts
}

func TestSustainedBreachLifecycle(t *testing.T) {
	e := setupEnv(t)
	ctx := context.Background()

	beat(t, e, "srv-1", 50)
	assert.Empty(t, openAlerts(t, e, "srv-1"))

	// First breach arms the counter, second one opens the alert.
	beat(t, e, "srv-1", 90)
	assert.Empty(t, openAlerts(t, e, "srv-1"))

	beat(t, e, "srv-1", 90)
	alerts := openAlerts(t, e, "srv-1")
	require.Len(t, alerts, 1)
	assert.Equal(t, alerting.AlertTypeCPU, alerts[0].Type)
	assert.Equal(t, alerting.SeverityHigh, alerts[0].Severity)

	// A critical sample escalates the same alert in place.
	beat(t, e, "srv-1", 97)
	alerts = openAlerts(t, e, "srv-1")
	require.Len(t, alerts, 1)
	assert.Equal(t, alerting.SeverityCritical, alerts[0].Severity)

	// Recovery auto-resolves.
	beat(t, e, "srv-1", 20)
	assert.Empty(t, openAlerts(t, e, "srv-1"))

	resolved, err := e.alerts.Get(ctx, alerts[0].ID)
	require.NoError(t, err)
	assert.Equal(t, alerting.StatusResolved, resolved.Status)
	assert.True(t, resolved.AutoResolved)
}

func TestRemediationRoundTrip(t *testing.T) {
	e := setupEnv(t)
	ctx := context.Background()

	beat(t, e, "srv-1", 10)

	action, err := e.actions.Create(ctx, service.CreateActionInput{
		ServerID:    "srv-1",
		Type:        remediation.ActionRestartService,
		ServiceName: "nginx",
		CreatedBy:   "admin",
	})
	require.NoError(t, err)
	assert.Equal(t, remediation.StatusApproved, action.Status)
	assert.Equal(t, "auto", action.ApprovedBy)

	// The next heartbeat carries the command.
	result := beat(t, e, "srv-1", 10)
	assert.True(t, result.Received)
	require.Len(t, result.PendingCommands, 1)
	assert.Equal(t, action.ID, result.PendingCommands[0].ActionID)
	assert.Equal(t, "systemctl restart nginx", result.PendingCommands[0].Command)

	executing, err := e.actions.Get(ctx, action.ID)
	require.NoError(t, err)
	assert.Equal(t, remediation.StatusExecuting, executing.Status)

	// The agent reports the outcome on the following beat.
	res := remediation.Result{
		ActionID: result.PendingCommands[0].ActionID,
		ExitCode: ptrs.Int(0),
		Stdout:   "restarted",
	}

	final := beat(t, e, "srv-1", 10, res)
	assert.Empty(t, final.PendingCommands)

	completed, err := e.actions.Get(ctx, action.ID)
	require.NoError(t, err)
	assert.Equal(t, remediation.StatusCompleted, completed.Status)
	assert.Equal(t, "restarted", completed.Stdout)
}

func TestMaintenanceModeRequiresApproval(t *testing.T) {
	e := setupEnv(t)
	ctx := context.Background()

	beat(t, e, "srv-1", 10)

	_, err := e.servers.SetPaused(ctx, "srv-1", true)
	require.NoError(t, err)

	action, err := e.actions.Create(ctx, service.CreateActionInput{
		ServerID: "srv-1",
		Type:     remediation.ActionClearLogs,
	})
	require.NoError(t, err)
	assert.Equal(t, remediation.StatusPending, action.Status)

	// Pending actions are never delivered.
	result := beat(t, e, "srv-1", 10)
	assert.Empty(t, result.PendingCommands)

	// Manual approval releases it, even though the server is still paused.
	_, err = e.actions.Approve(ctx, action.ID, "admin")
	require.NoError(t, err)

	result = beat(t, e, "srv-1", 10)
	require.Len(t, result.PendingCommands, 1)
	assert.Equal(t, action.ID, result.PendingCommands[0].ActionID)
}

func TestOfflineDetectionAndRecovery(t *testing.T) {
	e := setupEnv(t)
	ctx := context.Background()

	beat(t, e, "srv-1", 10)

	// With a zero threshold every online server is immediately stale.
	marked, err := e.heartbeats.MarkStaleOffline(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, marked)

	alerts := openAlerts(t, e, "srv-1")
	require.Len(t, alerts, 1)
	assert.Equal(t, alerting.AlertTypeOffline, alerts[0].Type)
	assert.Equal(t, alerting.SeverityCritical, alerts[0].Severity)

	// A second sweep pass changes nothing.
	marked, err = e.heartbeats.MarkStaleOffline(ctx, 0)
	require.NoError(t, err)
	assert.Zero(t, marked)
	assert.Len(t, openAlerts(t, e, "srv-1"), 1)

	// The next heartbeat brings the server back and resolves the alert.
	beat(t, e, "srv-1", 10)
	assert.Empty(t, openAlerts(t, e, "srv-1"))

	server, err := e.servers.Get(ctx, "srv-1")
	require.NoError(t, err)
	assert.Equal(t, fleet.StatusOnline, server.Status)
}
