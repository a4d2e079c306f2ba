package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/homelabcmd/homelabcmd/pkg/service"
	"github.com/homelabcmd/homelabcmd/pkg/unit/alerting"
	"github.com/homelabcmd/homelabcmd/pkg/unit/fleet"
	"github.com/homelabcmd/homelabcmd/pkg/unit/remediation"
)

// Handlers binds the engine services to the REST surface.
type Handlers struct {
	heartbeats *service.HeartbeatService
	alerts     *service.AlertService
	actions    *service.ActionService
	servers    *service.FleetService
	metrics    *Metrics
}

func NewHandlers(heartbeats *service.HeartbeatService, alerts *service.AlertService, actions *service.ActionService, servers *service.FleetService, metrics *Metrics) *Handlers {
	return &Handlers{
		heartbeats: heartbeats,
		alerts:     alerts,
		actions:    actions,
		servers:    servers,
		metrics:    metrics,
	}
}

func (h *Handlers) register(rt *router) {
	rt.handle(http.MethodPost, "/heartbeat", h.handleHeartbeat)

	rt.handle(http.MethodGet, "/alerts", h.handleListAlerts)
	rt.handle(http.MethodGet, "/alerts/:id", h.handleGetAlert)
	rt.handle(http.MethodPost, "/alerts/:id/acknowledge", h.handleAcknowledgeAlert)
	rt.handle(http.MethodPost, "/alerts/:id/resolve", h.handleResolveAlert)

	rt.handle(http.MethodGet, "/actions", h.handleListActions)
	rt.handle(http.MethodGet, "/actions/:id", h.handleGetAction)
	rt.handle(http.MethodPost, "/actions", h.handleCreateAction)
	rt.handle(http.MethodPost, "/actions/:id/approve", h.handleApproveAction)
	rt.handle(http.MethodPost, "/actions/:id/reject", h.handleRejectAction)

	rt.handle(http.MethodGet, "/servers", h.handleListServers)
	rt.handle(http.MethodGet, "/servers/:id", h.handleGetServer)
	rt.handle(http.MethodPost, "/servers/:id/pause", h.handlePauseServer)
	rt.handle(http.MethodPost, "/servers/:id/unpause", h.handleUnpauseServer)
}

func (h *Handlers) handleHeartbeat(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	var input service.HeartbeatInput
	if !decodeBody(w, r, &input) {
		return
	}

	result, err := h.heartbeats.Process(r.Context(), input)
	if err != nil {
		h.countHeartbeat("error")
		writeDomainError(w, err)
		return
	}

	h.countHeartbeat("ok")
	if len(result.PendingCommands) > 0 {
		h.countDispatch()
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handlers) handleListAlerts(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	query := r.URL.Query()
	severity := alerting.Severity(query.Get("severity"))
	if severity != "" && !alerting.IsValidSeverity(severity) {
		writeDomainError(w, fmt.Errorf("%w: %q", alerting.ErrInvalidSeverity, severity))
		return
	}
	filter := alerting.Filter{
		ServerID: query.Get("server_id"),
		Type:     alerting.AlertType(query.Get("alert_type")),
		Status:   alerting.Status(query.Get("status")),
		Severity: severity,
		Limit:    intQuery(query.Get("limit")),
		Offset:   intQuery(query.Get("offset")),
	}

	result, err := h.alerts.List(r.Context(), filter)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handlers) handleGetAlert(w http.ResponseWriter, r *http.Request, params map[string]string) {
	alert, err := h.alerts.Get(r.Context(), params["id"])
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, alert)
}

type actorBody struct {
	By     string `json:"by"`
	Reason string `json:"reason,omitempty"`
}

func (h *Handlers) handleAcknowledgeAlert(w http.ResponseWriter, r *http.Request, params map[string]string) {
	var body actorBody
	if !decodeBody(w, r, &body) {
		return
	}

	alert, err := h.alerts.Acknowledge(r.Context(), params["id"], body.By)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, alert)
}

func (h *Handlers) handleResolveAlert(w http.ResponseWriter, r *http.Request, params map[string]string) {
	var body actorBody
	if !decodeBody(w, r, &body) {
		return
	}

	alert, err := h.alerts.Resolve(r.Context(), params["id"], body.By)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, alert)
}

func (h *Handlers) handleListActions(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	query := r.URL.Query()
	filter := remediation.Filter{
		ServerID: query.Get("server_id"),
		Status:   remediation.ActionStatus(query.Get("status")),
		Type:     remediation.ActionType(query.Get("action_type")),
		AlertID:  query.Get("alert_id"),
		Limit:    intQuery(query.Get("limit")),
		Offset:   intQuery(query.Get("offset")),
	}

	result, err := h.actions.List(r.Context(), filter)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handlers) handleGetAction(w http.ResponseWriter, r *http.Request, params map[string]string) {
	action, err := h.actions.Get(r.Context(), params["id"])
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, action)
}

func (h *Handlers) handleCreateAction(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	var input service.CreateActionInput
	if !decodeBody(w, r, &input) {
		return
	}

	action, err := h.actions.Create(r.Context(), input)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, action)
}

func (h *Handlers) handleApproveAction(w http.ResponseWriter, r *http.Request, params map[string]string) {
	var body actorBody
	if !decodeBody(w, r, &body) {
		return
	}

	action, err := h.actions.Approve(r.Context(), params["id"], body.By)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, action)
}

func (h *Handlers) handleRejectAction(w http.ResponseWriter, r *http.Request, params map[string]string) {
	var body actorBody
	if !decodeBody(w, r, &body) {
		return
	}

	action, err := h.actions.Reject(r.Context(), params["id"], body.By, body.Reason)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, action)
}

func (h *Handlers) handleListServers(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	query := r.URL.Query()
	filter := fleet.Filter{
		Status: fleet.ServerStatus(query.Get("status")),
		Limit:  intQuery(query.Get("limit")),
		Offset: intQuery(query.Get("offset")),
	}

	result, err := h.servers.List(r.Context(), filter)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handlers) handleGetServer(w http.ResponseWriter, r *http.Request, params map[string]string) {
	server, err := h.servers.Get(r.Context(), params["id"])
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, server)
}

func (h *Handlers) handlePauseServer(w http.ResponseWriter, r *http.Request, params map[string]string) {
	h.setPaused(w, r, params["id"], true)
}

func (h *Handlers) handleUnpauseServer(w http.ResponseWriter, r *http.Request, params map[string]string) {
	h.setPaused(w, r, params["id"], false)
}

func (h *Handlers) setPaused(w http.ResponseWriter, r *http.Request, id string, paused bool) {
	server, err := h.servers.SetPaused(r.Context(), id, paused)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, server)
}

func (h *Handlers) countHeartbeat(outcome string) {
	if h.metrics != nil {
		h.metrics.HeartbeatsTotal.WithLabelValues(outcome).Inc()
	}
}

func (h *Handlers) countDispatch() {
	if h.metrics != nil {
		h.metrics.ActionsDispatched.Inc()
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Body == nil {
		writeJSONError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "request body required")
		return false
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSONError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

func intQuery(s string) int {
	if s == "" {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
