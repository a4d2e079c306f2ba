package gateway

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/homelabcmd/homelabcmd/pkg/service"
	"github.com/homelabcmd/homelabcmd/pkg/unit/alerting"
	"github.com/homelabcmd/homelabcmd/pkg/unit/fleet"
	"github.com/homelabcmd/homelabcmd/pkg/unit/remediation"
)

type fixture struct {
	router  *router
	servers *fleet.MemoryStore
	alerts  *alerting.MemoryStore
	actions *remediation.MemoryStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	servers := fleet.NewMemoryStore()
	alerts := alerting.NewMemoryStore()
	actions := remediation.NewMemoryStore()

	thresholds := map[alerting.MetricType]alerting.Threshold{
		alerting.MetricCPU: {HighPercent: 85, CriticalPercent: 95, SustainedHeartbeats: 1},
	}
	evaluator := alerting.NewEvaluator(alerts, thresholds)

	metrics := NewMetrics(prometheus.NewRegistry())
	handlers := NewHandlers(
		service.NewHeartbeatService(servers, actions, evaluator, nil),
		service.NewAlertService(alerts, nil),
		service.NewActionService(actions, servers, nil),
		service.NewFleetService(servers, nil),
		metrics,
	)

	rt := newRouter()
	handlers.register(rt)

	return &fixture{router: rt, servers: servers, alerts: alerts, actions: actions}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	} else {
		buf.WriteString("{}")
	}

	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decodeData[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var envelope struct {
		Success bool            `json:"success"`
		Data    T               `json:"data"`
		Error   json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	if !envelope.Success {
		t.Fatalf("error response: %s", rec.Body.String())
	}
	return envelope.Data
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) Response {
	t.Helper()

	var resp Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	if resp.Success {
		t.Fatalf("Success = true on error response: %s", rec.Body.String())
	}
	return resp
}

func TestHeartbeatEndpoint(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/heartbeat", service.HeartbeatInput{
		ServerID: "srv-1",
		Hostname: "nas",
		Metrics:  &service.MetricsInput{CPUPercent: 10},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("heartbeat status = %d, body %s", rec.Code, rec.Body.String())
	}

	result := decodeData[service.HeartbeatResult](t, rec)
	if !result.Received || result.ServerTime.IsZero() {
		t.Errorf("result = %+v, want received with server_time", result)
	}
	if result.ServerID != "srv-1" {
		t.Errorf("ServerID = %q, want srv-1", result.ServerID)
	}
	if len(result.PendingCommands) != 0 {
		t.Errorf("unexpected commands %+v", result.PendingCommands)
	}

	// The wire shape carries an explicit ack and an always-present list.
	var envelope struct {
		Data map[string]json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	for _, field := range []string{"received", "server_time", "pending_commands"} {
		if _, ok := envelope.Data[field]; !ok {
			t.Errorf("response data missing %q field: %s", field, rec.Body.String())
		}
	}
	if string(envelope.Data["pending_commands"]) != "[]" {
		t.Errorf("pending_commands = %s, want []", envelope.Data["pending_commands"])
	}

	servers := decodeData[service.ListServersResult](t, f.do(t, http.MethodGet, "/servers", nil))
	if servers.Total != 1 {
		t.Fatalf("servers total = %d, want 1", servers.Total)
	}
	if servers.Servers[0].Name != "nas" {
		t.Errorf("server name = %q, want nas", servers.Servers[0].Name)
	}
}

func TestHeartbeatMissingServerID(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/heartbeat", service.HeartbeatInput{})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}

	resp := decodeError(t, rec)
	if resp.Error == nil || resp.Error.Code != ErrCodeInvalidRequest {
		t.Errorf("error = %+v, want code %s", resp.Error, ErrCodeInvalidRequest)
	}
}

func TestHeartbeatDispatchesApprovedAction(t *testing.T) {
	f := newFixture(t)

	hb := service.HeartbeatInput{ServerID: "srv-1", Metrics: &service.MetricsInput{CPUPercent: 5}}
	if rec := f.do(t, http.MethodPost, "/heartbeat", hb); rec.Code != http.StatusOK {
		t.Fatalf("register heartbeat status = %d", rec.Code)
	}

	rec := f.do(t, http.MethodPost, "/actions", service.CreateActionInput{
		ServerID:    "srv-1",
		Type:        remediation.ActionRestartService,
		ServiceName: "nginx",
		CreatedBy:   "admin",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create action status = %d, body %s", rec.Code, rec.Body.String())
	}
	created := decodeData[remediation.Action](t, rec)
	if created.Status != remediation.StatusApproved {
		t.Fatalf("action status = %s, want approved", created.Status)
	}

	hbRec := f.do(t, http.MethodPost, "/heartbeat", hb)
	result := decodeData[service.HeartbeatResult](t, hbRec)
	if len(result.PendingCommands) != 1 {
		t.Fatalf("pending commands = %d, want 1", len(result.PendingCommands))
	}
	if result.PendingCommands[0].ActionID != created.ID {
		t.Errorf("command action = %q, want %q", result.PendingCommands[0].ActionID, created.ID)
	}

	// The same action must not be handed out twice.
	again := decodeData[service.HeartbeatResult](t, f.do(t, http.MethodPost, "/heartbeat", hb))
	if len(again.PendingCommands) != 0 {
		t.Errorf("action dispatched twice: %+v", again.PendingCommands)
	}
}

func TestCreateActionValidation(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodPost, "/heartbeat", service.HeartbeatInput{ServerID: "srv-1"})

	tests := []struct {
		name  string
		input service.CreateActionInput
		want  int
	}{
		{
			name:  "unknown action type",
			input: service.CreateActionInput{ServerID: "srv-1", Type: "format_disk"},
			want:  http.StatusBadRequest,
		},
		{
			name:  "missing service name",
			input: service.CreateActionInput{ServerID: "srv-1", Type: remediation.ActionRestartService},
			want:  http.StatusBadRequest,
		},
		{
			name:  "unknown server",
			input: service.CreateActionInput{ServerID: "ghost", Type: remediation.ActionReboot},
			want:  http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/actions", tt.input)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d, body %s", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

func TestAlertLifecycleEndpoints(t *testing.T) {
	f := newFixture(t)

	f.do(t, http.MethodPost, "/heartbeat", service.HeartbeatInput{ServerID: "srv-1"})

	// CPU over the critical threshold with sustained=1 opens immediately.
	f.do(t, http.MethodPost, "/heartbeat", service.HeartbeatInput{
		ServerID: "srv-1",
		Metrics:  &service.MetricsInput{CPUPercent: 99},
	})

	list := decodeData[service.ListAlertsResult](t, f.do(t, http.MethodGet, "/alerts?status=open", nil))
	if list.Total != 1 {
		t.Fatalf("open alerts = %d, want 1", list.Total)
	}
	alert := list.Alerts[0]

	rec := f.do(t, http.MethodPost, "/alerts/"+alert.ID+"/acknowledge", actorBody{By: "admin"})
	if rec.Code != http.StatusOK {
		t.Fatalf("acknowledge status = %d, body %s", rec.Code, rec.Body.String())
	}
	acked := decodeData[alerting.Alert](t, rec)
	if acked.Status != alerting.StatusAcknowledged {
		t.Errorf("status = %s, want acknowledged", acked.Status)
	}

	// Acknowledging again conflicts.
	rec = f.do(t, http.MethodPost, "/alerts/"+alert.ID+"/acknowledge", actorBody{By: "admin"})
	if rec.Code != http.StatusConflict {
		t.Errorf("second acknowledge status = %d, want 409", rec.Code)
	}

	rec = f.do(t, http.MethodPost, "/alerts/"+alert.ID+"/resolve", actorBody{By: "admin"})
	if rec.Code != http.StatusOK {
		t.Fatalf("resolve status = %d", rec.Code)
	}

	rec = f.do(t, http.MethodGet, "/alerts/"+alert.ID, nil)
	resolved := decodeData[alerting.Alert](t, rec)
	if resolved.Status != alerting.StatusResolved {
		t.Errorf("status = %s, want resolved", resolved.Status)
	}
}

func TestListAlertsRejectsUnknownSeverity(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/alerts?severity=bogus", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400, body %s", rec.Code, rec.Body.String())
	}
	resp := decodeError(t, rec)
	if resp.Error == nil || resp.Error.Code != ErrCodeInvalidRequest {
		t.Errorf("error = %+v, want code %s", resp.Error, ErrCodeInvalidRequest)
	}

	// Known severities still filter.
	for _, severity := range []string{"low", "medium", "high", "critical"} {
		if rec := f.do(t, http.MethodGet, "/alerts?severity="+severity, nil); rec.Code != http.StatusOK {
			t.Errorf("severity %q status = %d, want 200", severity, rec.Code)
		}
	}
}

func TestGetAlertNotFound(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/alerts/nope", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	resp := decodeError(t, rec)
	if resp.Error == nil || resp.Error.Code != ErrCodeResourceNotFound {
		t.Errorf("error = %+v, want code %s", resp.Error, ErrCodeResourceNotFound)
	}
}

func TestPauseUnpauseServer(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodPost, "/heartbeat", service.HeartbeatInput{ServerID: "srv-1"})

	paused := decodeData[fleet.Server](t, f.do(t, http.MethodPost, "/servers/srv-1/pause", nil))
	if !paused.IsPaused {
		t.Error("IsPaused = false after pause")
	}

	unpaused := decodeData[fleet.Server](t, f.do(t, http.MethodPost, "/servers/srv-1/unpause", nil))
	if unpaused.IsPaused {
		t.Error("IsPaused = true after unpause")
	}
}

func TestRouteNotFound(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/nope", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}
