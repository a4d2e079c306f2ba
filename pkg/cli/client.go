package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/homelabcmd/homelabcmd/pkg/service"
	"github.com/homelabcmd/homelabcmd/pkg/unit/alerting"
	"github.com/homelabcmd/homelabcmd/pkg/unit/fleet"
	"github.com/homelabcmd/homelabcmd/pkg/unit/remediation"
)

// APIClient talks to a running coordinator from the CLI commands.
type APIClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func NewAPIClient(baseURL, apiKey string) *APIClient {
	return &APIClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *APIClient) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(b)
	} else if method == http.MethodPost {
		reqBody = strings.NewReader("{}")
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/api/v1"+path, reqBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var envelope struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data,omitempty"`
		Error   *struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error,omitempty"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("decode response (status %d): %w", resp.StatusCode, err)
	}

	if !envelope.Success {
		if envelope.Error != nil {
			return fmt.Errorf("%s", envelope.Error.Message)
		}
		return fmt.Errorf("request failed with status %d", resp.StatusCode)
	}

	if out != nil && envelope.Data != nil {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("decode data: %w", err)
		}
	}
	return nil
}

type actorRequest struct {
	By     string `json:"by,omitempty"`
	Reason string `json:"reason,omitempty"`
}

func (c *APIClient) ListAlerts(ctx context.Context, query url.Values) (*service.ListAlertsResult, error) {
	var out service.ListAlertsResult
	path := "/alerts"
	if encoded := query.Encode(); encoded != "" {
		path += "?" + encoded
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *APIClient) GetAlert(ctx context.Context, id string) (*alerting.Alert, error) {
	var out alerting.Alert
	if err := c.do(ctx, http.MethodGet, "/alerts/"+id, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *APIClient) AcknowledgeAlert(ctx context.Context, id, by string) (*alerting.Alert, error) {
	var out alerting.Alert
	if err := c.do(ctx, http.MethodPost, "/alerts/"+id+"/acknowledge", actorRequest{By: by}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *APIClient) ResolveAlert(ctx context.Context, id, by string) (*alerting.Alert, error) {
	var out alerting.Alert
	if err := c.do(ctx, http.MethodPost, "/alerts/"+id+"/resolve", actorRequest{By: by}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *APIClient) ListActions(ctx context.Context, query url.Values) (*service.ListActionsResult, error) {
	var out service.ListActionsResult
	path := "/actions"
	if encoded := query.Encode(); encoded != "" {
		path += "?" + encoded
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *APIClient) GetAction(ctx context.Context, id string) (*remediation.Action, error) {
	var out remediation.Action
	if err := c.do(ctx, http.MethodGet, "/actions/"+id, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *APIClient) CreateAction(ctx context.Context, input service.CreateActionInput) (*remediation.Action, error) {
	var out remediation.Action
	if err := c.do(ctx, http.MethodPost, "/actions", input, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *APIClient) ApproveAction(ctx context.Context, id, by string) (*remediation.Action, error) {
	var out remediation.Action
	if err := c.do(ctx, http.MethodPost, "/actions/"+id+"/approve", actorRequest{By: by}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *APIClient) RejectAction(ctx context.Context, id, by, reason string) (*remediation.Action, error) {
	var out remediation.Action
	if err := c.do(ctx, http.MethodPost, "/actions/"+id+"/reject", actorRequest{By: by, Reason: reason}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *APIClient) ListServers(ctx context.Context, query url.Values) (*service.ListServersResult, error) {
	var out service.ListServersResult
	path := "/servers"
	if encoded := query.Encode(); encoded != "" {
		path += "?" + encoded
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *APIClient) GetServer(ctx context.Context, id string) (*fleet.Server, error) {
	var out fleet.Server
	if err := c.do(ctx, http.MethodGet, "/servers/"+id, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *APIClient) PauseServer(ctx context.Context, id string) (*fleet.Server, error) {
	var out fleet.Server
	if err := c.do(ctx, http.MethodPost, "/servers/"+id+"/pause", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *APIClient) UnpauseServer(ctx context.Context, id string) (*fleet.Server, error) {
	var out fleet.Server
	if err := c.do(ctx, http.MethodPost, "/servers/"+id+"/unpause", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
