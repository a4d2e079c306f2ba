package cli

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/homelabcmd/homelabcmd/pkg/unit/alerting"
)

func TestAPIClientListAlerts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/alerts" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.URL.Query().Get("status"); got != "open" {
			t.Errorf("status query = %q", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer key-1" {
			t.Errorf("Authorization = %q", got)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"data": map[string]any{
				"alerts": []alerting.Alert{{ID: "a1", Severity: alerting.SeverityHigh}},
				"total":  1,
			},
		})
	}))
	defer srv.Close()

	client := NewAPIClient(srv.URL, "key-1")

	query := url.Values{}
	query.Set("status", "open")
	result, err := client.ListAlerts(context.Background(), query)
	if err != nil {
		t.Fatalf("ListAlerts: %v", err)
	}
	if result.Total != 1 || len(result.Alerts) != 1 {
		t.Fatalf("result = %+v", result)
	}
	if result.Alerts[0].ID != "a1" {
		t.Errorf("alert ID = %q", result.Alerts[0].ID)
	}
}

func TestAPIClientErrorEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": false,
			"error":   map[string]string{"code": "RESOURCE_NOT_FOUND", "message": "alert not found"},
		})
	}))
	defer srv.Close()

	client := NewAPIClient(srv.URL, "")

	_, err := client.GetAlert(context.Background(), "ghost")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "alert not found") {
		t.Errorf("error = %v, want server message", err)
	}
}

func TestAPIClientAcknowledgeSendsActor(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if body["by"] != "admin" {
			t.Errorf("by = %q", body["by"])
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"data":    alerting.Alert{ID: "a1", Status: alerting.StatusAcknowledged},
		})
	}))
	defer srv.Close()

	client := NewAPIClient(srv.URL, "")

	alert, err := client.AcknowledgeAlert(context.Background(), "a1", "admin")
	if err != nil {
		t.Fatalf("AcknowledgeAlert: %v", err)
	}
	if alert.Status != alerting.StatusAcknowledged {
		t.Errorf("status = %s", alert.Status)
	}
}
